package provider

import (
	"errors"
	"time"

	"settlr/internal/models"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the normalized outcome reported by every adapter.
type PaymentStatus string

const (
	StatusPaid    PaymentStatus = "paid"
	StatusPending PaymentStatus = "pending"
	StatusFailed  PaymentStatus = "failed"
)

// ErrUnhandledEvent is returned by ParseWebhook for authentic events that carry
// no settlement outcome. Callers acknowledge them without further processing.
var ErrUnhandledEvent = errors.New("webhook event not handled")

// FeeQuote is computed once at initiation and stored on the record.
type FeeQuote struct {
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	Total  decimal.Decimal `json:"total_amount"`
}

type InitiateRequest struct {
	Reference string
	// Amount is the total the user pays, fee included.
	Amount      decimal.Decimal
	UserID      uint
	Email       string
	Name        string
	CallbackURL string
}

// Initiation carries either a redirect for gateway checkouts or bank-transfer
// instructions for manual deposits.
type Initiation struct {
	ProviderReference string
	RedirectURL       string
	Instructions      *Instructions
}

type Instructions struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Reference     string `json:"reference,omitempty"`
	Note          string `json:"note"`
}

// SettlementEvent is a verified webhook normalized across providers.
type SettlementEvent struct {
	Provider          models.Provider
	Kind              models.SettlementKind
	Event             string
	Reference         string
	ProviderReference string
	Status            PaymentStatus
	Reason            string
}

// Ref returns the reference to resolve the event against.
func (e *SettlementEvent) Ref() string {
	if e.Reference != "" {
		return e.Reference
	}
	return e.ProviderReference
}

type TransferRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Recipient   string
	Destination models.PayoutDestination
	Narration   string
}

type TransferResult struct {
	ProviderReference string
	Status            PaymentStatus
	Reason            string
}

// Token is a provider access token with its absolute expiry.
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}
