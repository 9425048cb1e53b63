package deposit

import (
	"settlr/internal/models"
	"settlr/internal/services/provider"

	"github.com/shopspring/decimal"
)

const MaxProofSize = 2 << 20

type Config struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	// CallbackURL is where gateways redirect the user after checkout.
	CallbackURL string
}

type InitiateInput struct {
	UserID   uint
	Amount   decimal.Decimal
	Provider models.Provider
	// Proof is the uploaded payment evidence, required for manual deposits.
	Proof []byte
}

type InitiateResult struct {
	Reference    string                  `json:"reference"`
	Provider     models.Provider         `json:"provider"`
	Status       models.SettlementStatus `json:"status"`
	Amount       decimal.Decimal         `json:"amount"`
	Fee          decimal.Decimal         `json:"fee"`
	TotalAmount  decimal.Decimal         `json:"total_amount"`
	CheckoutURL  string                  `json:"checkout_url,omitempty"`
	Instructions *provider.Instructions  `json:"instructions,omitempty"`
}

// ReverifyReport summarizes one pass over stuck gateway deposits.
type ReverifyReport struct {
	Scanned   int `json:"scanned"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
}
