package provider

import (
	"context"
	"net/http"

	"settlr/internal/models"

	"github.com/shopspring/decimal"
)

// Provider is implemented once per payment integration.
type Provider interface {
	Name() models.Provider
	Quote(amount decimal.Decimal) FeeQuote
	Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error)
	Verify(ctx context.Context, rec *models.SettlementRecord) (PaymentStatus, error)
	// ParseWebhook authenticates and normalizes an inbound notification.
	ParseWebhook(body []byte, header http.Header) (*SettlementEvent, error)
}

// PayoutProvider is implemented by providers that can send money out.
type PayoutProvider interface {
	Provider
	EnsureRecipient(ctx context.Context, dest models.PayoutDestination) (string, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	// QueryTransfer fails with ErrTransferNotFound when the provider never saw the reference.
	QueryTransfer(ctx context.Context, reference string) (*TransferResult, error)
}

// TokenCache holds provider access tokens for the whole process.
type TokenCache interface {
	// Token returns a cached token for key, calling refresh when it is missing
	// or about to expire. Concurrent refreshes of one key are collapsed.
	Token(ctx context.Context, key string, refresh func(ctx context.Context) (Token, error)) (string, error)
	Invalidate(ctx context.Context, key string)
}
