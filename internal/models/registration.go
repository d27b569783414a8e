package models

import "time"

// Registration represents a user registered through the message-driven
// sign-up flow. Records are keyed by the (CountryCode, PhoneNumber) pair
// and are never issued a second credential.
type Registration struct {
	CountryCode   string    `json:"country_code"`
	PhoneNumber   string    `json:"phone_number"`
	Name          string    `json:"name"`
	Credential    string    `json:"-"`
	CredentialExp time.Time `json:"credential_expires_at"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// CredentialValid reports whether the registration credential can still be
// accepted at the given instant.
func (r *Registration) CredentialValid(now time.Time) bool {
	return r.Credential != "" && now.Before(r.CredentialExp)
}
