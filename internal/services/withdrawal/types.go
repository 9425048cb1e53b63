package withdrawal

import (
	"settlr/internal/models"

	"github.com/shopspring/decimal"
)

type Config struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	// Fee is a flat charge debited on top of the payout amount.
	Fee decimal.Decimal
	// Provider sends every payout.
	Provider  models.Provider
	Narration string
	// SandboxAutoSettle completes payouts without calling a provider.
	SandboxAutoSettle bool
}

type RequestInput struct {
	UserID uint
	Amount decimal.Decimal
}

type RequestResult struct {
	Reference string                  `json:"reference"`
	Status    models.SettlementStatus `json:"status"`
	Amount    decimal.Decimal         `json:"amount"`
	Fee       decimal.Decimal         `json:"fee"`
	Debited   decimal.Decimal         `json:"total_debited"`
	Message   string                  `json:"message"`
}

// SweepReport summarizes one retry sweep.
type SweepReport struct {
	Scanned     int `json:"scanned"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Reinitiated int `json:"reinitiated"`
	Pending     int `json:"pending"`
	Held        int `json:"held"`
	Errors      int `json:"errors"`
}
