package models

// ConsentStatus is backend-sourced truth. Local code never invents a
// transition — the status only changes via a full refetch.
type ConsentStatus string

const (
	// ConsentAwaitingAuthorization means the bank has not yet approved the
	// consent; the record is read-only until the backend transitions it.
	ConsentAwaitingAuthorization ConsentStatus = "AwaitingAuthorization"

	// ConsentAuthorized means the bank approved the consent; only in this
	// state is the consent eligible for revocation.
	ConsentAuthorized ConsentStatus = "Authorized"
)

// Consent is a bank-granted authorization letting the aggregator read a
// client's data at that bank. The (bank code, client id) pair is the natural
// key the backend uses for creation and deletion; the consent id is assigned
// by the backend once issued.
type Consent struct {
	BankCode  string        `json:"bank_code"`
	ClientID  string        `json:"client_id"`
	ConsentID string        `json:"consent_id"`
	Status    ConsentStatus `json:"status"`
}

// Authorized reports whether the consent is revoke-eligible.
func (c Consent) Authorized() bool {
	return c.Status == ConsentAuthorized
}

// Key returns the natural identity used by the backend.
func (c Consent) Key() string {
	return c.BankCode + "/" + c.ClientID
}
