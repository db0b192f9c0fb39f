package models

import "time"

// Session is the aggregator's own credential state: the bearer token issued
// by the backend, its absolute expiry, and the authenticated user's profile.
// The three fields always move together — a session with a token but no
// expiry (or a profile without a token) is never observable.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user,omitempty"`
}

// IsExpired returns true if the session's token has passed its expiry.
func (s Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
