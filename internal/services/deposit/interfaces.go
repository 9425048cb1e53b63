package deposit

import (
	"context"
	"time"

	"settlr/internal/models"
	"settlr/internal/services/ledger"
	"settlr/internal/services/provider"
)

// Service defines the deposit settlement operations
type Service interface {
	Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error)
	Resolve(ctx context.Context, reference string, outcome provider.PaymentStatus) (*ledger.Result, error)

	// HandleCallback re-verifies a redirect with the provider before resolving.
	HandleCallback(ctx context.Context, reference string) (*ledger.Result, error)
	// HandleWebhook applies an authenticated deposit event.
	HandleWebhook(ctx context.Context, ev *provider.SettlementEvent) (*ledger.Result, error)

	// Manual approval workflow
	Approve(ctx context.Context, reference string, adminID uint) (*ledger.Result, error)
	Reject(ctx context.Context, reference string, adminID uint, reason string) (*ledger.Result, error)
	ListAwaitingApproval(ctx context.Context, limit, offset int) ([]models.SettlementRecord, int64, error)
	ManualInstructions() (*provider.Instructions, error)

	ReverifyPending(ctx context.Context, olderThan time.Duration, limit int) (*ReverifyReport, error)
}

// ProofStore keeps uploaded proof-of-payment files and returns an opaque key.
type ProofStore interface {
	Save(ctx context.Context, reference, ext string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}
