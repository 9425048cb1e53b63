package withdrawal

import (
	"context"
	"time"

	"settlr/internal/services/ledger"
	"settlr/internal/services/provider"
)

// Service defines the withdrawal payout operations
type Service interface {
	// Request reserves the funds and starts the payout.
	Request(ctx context.Context, in RequestInput) (*RequestResult, error)
	// InitiatePayout sends (or resends) the transfer for a pending withdrawal.
	// It never debits; the balance was reserved by Request.
	InitiatePayout(ctx context.Context, reference string) (*ledger.Result, error)
	Resolve(ctx context.Context, reference string, outcome provider.PaymentStatus, reason string) (*ledger.Result, error)
	HandleWebhook(ctx context.Context, ev *provider.SettlementEvent) (*ledger.Result, error)
	RetrySweep(ctx context.Context, olderThan time.Duration, limit int) (*SweepReport, error)
}
