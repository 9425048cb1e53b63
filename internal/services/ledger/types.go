package ledger

import (
	"settlr/internal/models"
	"settlr/internal/repositories"

	"github.com/shopspring/decimal"
)

// Mutation is the optional balance change attached to a transition.
// The zero value changes nothing.
type Mutation struct {
	Kind   models.LedgerEntryKind
	Amount decimal.Decimal
}

var NoMutation = Mutation{}

func CreditOf(amount decimal.Decimal) Mutation {
	return Mutation{Kind: models.EntryCredit, Amount: amount}
}

func DebitOf(amount decimal.Decimal) Mutation {
	return Mutation{Kind: models.EntryDebit, Amount: amount}
}

func RefundOf(amount decimal.Decimal) Mutation {
	return Mutation{Kind: models.EntryRefund, Amount: amount}
}

func (m Mutation) IsZero() bool {
	return m.Kind == ""
}

// ResolveFunc applies an outcome to a locked, non-terminal record.
// Leaving rec.Status unchanged means nothing was applied.
type ResolveFunc func(tx repositories.SettlementTx, rec *models.SettlementRecord) error

// Result of a guarded resolution. Applied is false when the record was
// already terminal or the outcome left it unchanged.
type Result struct {
	Record  *models.SettlementRecord `json:"record"`
	Applied bool                     `json:"applied"`
}
