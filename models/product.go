package models

import "time"

// Product is a financial product offered by one of the aggregated banks.
type Product struct {
	ProductID     string    `json:"productId"`
	ProductType   string    `json:"productType"`
	ProductName   string    `json:"productName"`
	Description   string    `json:"description,omitempty"`
	InterestRate  float64   `json:"interestRate,omitempty"`
	MinAmount     float64   `json:"minAmount,omitempty"`
	MaxAmount     float64   `json:"maxAmount,omitempty"`
	TermMonths    int       `json:"termMonths,omitempty"`
	BankCode      string    `json:"bank_code"`
	BankName      string    `json:"bank_name"`
	IsRecommended bool      `json:"is_recommended,omitempty"`
	FetchedAt     time.Time `json:"fetched_at,omitempty"`
}
