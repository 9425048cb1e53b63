package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntryKind string

const (
	EntryCredit LedgerEntryKind = "credit"
	EntryDebit  LedgerEntryKind = "debit"
	EntryRefund LedgerEntryKind = "refund"
)

// LedgerEntry is the append-only audit trail of balance mutations.
// (reference, kind) is unique: one credit, one debit, one refund per record at most.
type LedgerEntry struct {
	ID               uint            `gorm:"primarykey" json:"id"`
	UserID           uint            `gorm:"index;not null" json:"user_id"`
	Reference        string          `gorm:"uniqueIndex:idx_ledger_ref_kind;not null;size:64" json:"reference"`
	Kind             LedgerEntryKind `gorm:"uniqueIndex:idx_ledger_ref_kind;not null;size:16" json:"kind"`
	Delta            decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"delta"`
	ResultingBalance decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"resulting_balance"`
	CreatedAt        time.Time       `json:"created_at"`
}
