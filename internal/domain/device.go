package domain

import (
	"encoding/json"
	"time"
)

// Device is a browser identified by the device cookie.
type Device struct {
	DeviceID    string    `json:"device_id"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// IdleFor returns how long the device has been inactive.
func (d *Device) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(d.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}

// Analysis is a completed image analysis kept in the dashboard history.
type Analysis struct {
	ID          string          `json:"id"`
	DeviceID    string          `json:"-"`
	Filename    string          `json:"filename"`
	ContentType string          `json:"content_type"`
	Size        int64           `json:"size"`
	Prediction  json.RawMessage `json:"prediction"`
	Message     string          `json:"message"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ContactMessage is the payload of the contact form.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}
