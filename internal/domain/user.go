// Package domain contains core domain types for the agro-solar web client.
package domain

import (
	"bytes"
	"encoding/json"
)

// UserProfile is the user record returned by the backend. It is kept as raw
// JSON and only ever echoed back for display.
type UserProfile json.RawMessage

// Present reports whether the profile holds a value. A JSON null counts as absent.
func (p UserProfile) Present() bool {
	trimmed := bytes.TrimSpace(p)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// MarshalJSON writes the raw profile, or null when absent.
func (p UserProfile) MarshalJSON() ([]byte, error) {
	if !p.Present() {
		return []byte("null"), nil
	}
	return []byte(p), nil
}

// UnmarshalJSON stores a copy of the raw profile.
func (p *UserProfile) UnmarshalJSON(data []byte) error {
	if p == nil {
		return nil
	}
	*p = append((*p)[0:0], data...)
	return nil
}

// Credentials are the username/password pair submitted by the login form.
// They are never persisted.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
