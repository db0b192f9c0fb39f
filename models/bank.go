package models

import "time"

// Bank is read-only reference data supplied entirely by the backend. The
// client only reads Code and Name to drive consent issuance.
type Bank struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	IsEnabled    bool      `json:"is_enabled"`
	Authorized   bool      `json:"authorized"`
	TokenExpires time.Time `json:"token_expires,omitempty"`
}
