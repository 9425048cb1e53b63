package repositories

import (
	"context"
	"time"

	"settlr/internal/models"

	"github.com/shopspring/decimal"
)

// SettlementFilter narrows List queries. Zero values are ignored.
type SettlementFilter struct {
	Kind          models.SettlementKind
	Status        models.SettlementStatus
	Provider      models.Provider
	UserID        uint
	CreatedBefore time.Time
	ExcludeHeld   bool
	Limit         int
	Offset        int
}

// SettlementRepository is the storage contract of the settlement engine.
// Balance and status writes are only reachable through SettlementTx.
type SettlementRepository interface {
	// GetByReference matches either the reference or the provider reference.
	GetByReference(ctx context.Context, ref string) (*models.SettlementRecord, error)
	List(ctx context.Context, f SettlementFilter) ([]models.SettlementRecord, int64, error)

	GetUser(ctx context.Context, userID uint) (*models.User, error)
	UpdatePayoutAccount(ctx context.Context, userID uint, dest models.PayoutDestination) error

	// GetRecipient returns nil, nil when nothing is cached.
	GetRecipient(ctx context.Context, provider models.Provider, accountNumber, bankCode string) (*models.PayoutRecipient, error)
	SaveRecipient(ctx context.Context, r *models.PayoutRecipient) error

	ExecuteInTransaction(ctx context.Context, fn func(tx SettlementTx) error) error
}

// SettlementTx is a unit of work. Everything done through it commits or rolls back together.
type SettlementTx interface {
	CreateSettlement(rec *models.SettlementRecord) error
	// LockSettlement loads a record by reference or provider reference and holds
	// a row lock on it until the transaction ends.
	LockSettlement(ref string) (*models.SettlementRecord, error)
	SaveSettlement(rec *models.SettlementRecord) error

	GetUser(userID uint) (*models.User, error)
	// AdjustBalance adds delta to the user's balance and returns the result.
	// A negative delta that would overdraw the balance fails with ErrInsufficientFunds
	// and changes nothing.
	AdjustBalance(userID uint, delta decimal.Decimal) (decimal.Decimal, error)
	AppendLedgerEntry(entry *models.LedgerEntry) error
	// LedgerEntries returns the entries written for a reference, oldest first.
	LedgerEntries(reference string) ([]models.LedgerEntry, error)
}
