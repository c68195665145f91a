package domain

import (
	"regexp"
	"sort"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`^\d{10}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

const minPasswordLength = 6

// ValidationError is a form validation failure. Its text is shown to the user verbatim.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// Validation messages.
const (
	MsgFullNameRequired ValidationError = "Full name is required"
	MsgUsernameRequired ValidationError = "Username is required"
	MsgInvalidPhone     ValidationError = "Phone number must be 10 digits"
	MsgInvalidEmail     ValidationError = "Please enter a valid email"
	MsgShortPassword    ValidationError = "Password must be at least 6 characters"
	MsgPasswordMismatch ValidationError = "Passwords do not match"
	MsgStateRequired    ValidationError = "Please select a state"
	MsgDistrictRequired ValidationError = "Please select a district"
	MsgVillageRequired  ValidationError = "Please select a village"
	MsgInvalidLocation  ValidationError = "Please select a valid location"
	MsgTermsRequired    ValidationError = "You must agree to the terms and conditions"
	MsgNameRequired     ValidationError = "Name is required"
	MsgMessageRequired  ValidationError = "Message is required"
)

// Locations is the state -> district -> villages catalog offered by signup.
var Locations = map[string]map[string][]string{
	"Gujarat": {
		"Ahmedabad": {"Village1", "Village2"},
		"Surat":     {"Village3", "Village4"},
	},
	"Maharashtra": {
		"Pune":   {"Village5", "Village6"},
		"Nagpur": {"Village7", "Village8"},
	},
}

// States returns the catalog's states in sorted order.
func States() []string {
	states := make([]string, 0, len(Locations))
	for s := range Locations {
		states = append(states, s)
	}
	sort.Strings(states)
	return states
}

// ValidLocation reports whether the state/district/village triple exists in the catalog.
func ValidLocation(state, district, village string) bool {
	districts, ok := Locations[state]
	if !ok {
		return false
	}
	villages, ok := districts[district]
	if !ok {
		return false
	}
	for _, v := range villages {
		if v == village {
			return true
		}
	}
	return false
}

// SignupForm is the registration form as submitted by the browser.
type SignupForm struct {
	FullName        string `json:"fullName"`
	Username        string `json:"username"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	State           string `json:"state"`
	District        string `json:"district"`
	Village         string `json:"village"`
	AgreeTerms      bool   `json:"agreeTerms"`
}

// Registration is the subset of the form sent to the backend signup endpoint.
type Registration struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
	State    string `json:"state"`
	District string `json:"district"`
	Village  string `json:"village"`
}

// Validate checks the form field by field and returns the first failure.
func (f *SignupForm) Validate() error {
	switch {
	case strings.TrimSpace(f.FullName) == "":
		return MsgFullNameRequired
	case strings.TrimSpace(f.Username) == "":
		return MsgUsernameRequired
	case !phonePattern.MatchString(f.Phone):
		return MsgInvalidPhone
	case !emailPattern.MatchString(f.Email):
		return MsgInvalidEmail
	case len(f.Password) < minPasswordLength:
		return MsgShortPassword
	case f.Password != f.ConfirmPassword:
		return MsgPasswordMismatch
	case f.State == "":
		return MsgStateRequired
	case f.District == "":
		return MsgDistrictRequired
	case f.Village == "":
		return MsgVillageRequired
	case !ValidLocation(f.State, f.District, f.Village):
		return MsgInvalidLocation
	case !f.AgreeTerms:
		return MsgTermsRequired
	}
	return nil
}

// Registration returns the fields forwarded to the backend.
func (f *SignupForm) Registration() Registration {
	return Registration{
		FullName: f.FullName,
		Username: f.Username,
		Phone:    f.Phone,
		Email:    f.Email,
		Password: f.Password,
		State:    f.State,
		District: f.District,
		Village:  f.Village,
	}
}

// Credentials returns the login pair used right after a successful signup.
func (f *SignupForm) Credentials() Credentials {
	return Credentials{Username: f.Username, Password: f.Password}
}

// Validate checks a contact form submission.
func (m *ContactMessage) Validate() error {
	switch {
	case strings.TrimSpace(m.Name) == "":
		return MsgNameRequired
	case !emailPattern.MatchString(m.Email):
		return MsgInvalidEmail
	case strings.TrimSpace(m.Message) == "":
		return MsgMessageRequired
	}
	return nil
}
