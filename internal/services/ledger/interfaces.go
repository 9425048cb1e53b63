package ledger

import (
	"context"

	"settlr/internal/models"
	"settlr/internal/repositories"

	"github.com/shopspring/decimal"
)

// Service defines the ledger and idempotency guard operations
type Service interface {
	// Balance mutations. tx must be the caller's open transaction.
	Credit(tx repositories.SettlementTx, userID uint, amount decimal.Decimal, reference string) (decimal.Decimal, error)
	Debit(tx repositories.SettlementTx, userID uint, amount decimal.Decimal, reference string) (decimal.Decimal, error)
	Refund(tx repositories.SettlementTx, userID uint, amount decimal.Decimal, reference string) (decimal.Decimal, error)

	// Open creates a record in its initial status and applies m with it.
	Open(tx repositories.SettlementTx, rec *models.SettlementRecord, m Mutation) error
	// CommitSettlement moves rec to status to and applies m in the same transaction.
	CommitSettlement(tx repositories.SettlementTx, rec *models.SettlementRecord, to models.SettlementStatus, m Mutation) error

	// Resolve runs fn against the row-locked record unless it is terminal or held.
	Resolve(ctx context.Context, reference string, fn ResolveFunc) (*Result, error)

	// Reconcile checks the record's ledger entries against its status.
	Reconcile(ctx context.Context, reference string) error
}
