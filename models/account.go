package models

// Account is a bank account aggregated through an authorized consent.
// Amounts stay strings — they are display data passed through from the
// bank's API, never arithmetic operands here.
type Account struct {
	AccountID      string `json:"accountId"`
	Nickname       string `json:"nickname"`
	Status         string `json:"status"` // Enabled/Disabled, as the bank reports it
	AccountSubType string `json:"accountSubType"`
	OpeningDate    string `json:"openingDate"` // YYYY-MM-DD
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	BankCode       string `json:"bank_code"`
	ClientID       string `json:"client_id"`
}
