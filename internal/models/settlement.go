package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SettlementKind string

const (
	KindDeposit    SettlementKind = "deposit"
	KindWithdrawal SettlementKind = "withdrawal"
)

type Provider string

const (
	ProviderManual   Provider = "manual"
	ProviderGatewayA Provider = "gateway_a" // Paystack
	ProviderGatewayB Provider = "gateway_b" // Monnify
)

// ParseProvider accepts both the canonical names and the gateway brand names.
func ParseProvider(s string) (Provider, bool) {
	switch s {
	case "manual":
		return ProviderManual, true
	case "gateway_a", "paystack":
		return ProviderGatewayA, true
	case "gateway_b", "monnify":
		return ProviderGatewayB, true
	}
	return "", false
}

type SettlementStatus string

const (
	StatusInitiated        SettlementStatus = "initiated"
	StatusPending          SettlementStatus = "pending"
	StatusAwaitingApproval SettlementStatus = "awaiting_approval"
	StatusCompleted        SettlementStatus = "completed"
	StatusFailed           SettlementStatus = "failed"
	StatusApproved         SettlementStatus = "approved"
	StatusRejected         SettlementStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed.
func (s SettlementStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusApproved, StatusRejected:
		return true
	}
	return false
}

var transitions = map[SettlementKind]map[SettlementStatus][]SettlementStatus{
	KindDeposit: {
		StatusInitiated:        {StatusPending, StatusAwaitingApproval, StatusFailed},
		StatusPending:          {StatusCompleted, StatusFailed},
		StatusAwaitingApproval: {StatusApproved, StatusRejected},
	},
	KindWithdrawal: {
		StatusInitiated: {StatusPending, StatusFailed},
		StatusPending:   {StatusCompleted, StatusFailed},
	},
}

// CanTransition reports whether a record of the given kind may move from -> to.
func CanTransition(kind SettlementKind, from, to SettlementStatus) bool {
	for _, next := range transitions[kind][from] {
		if next == to {
			return true
		}
	}
	return false
}

// SettlementRecord is the single row shape shared by deposits and withdrawals.
// Only Status, ResolvedAt, ProviderReference and the operational annotations
// change after creation; rows are never deleted.
type SettlementRecord struct {
	ID                uint             `gorm:"primarykey" json:"-"`
	Reference         string           `gorm:"uniqueIndex;not null;size:64" json:"reference"`
	ProviderReference *string          `gorm:"index;size:128" json:"provider_reference,omitempty"`
	Kind              SettlementKind   `gorm:"index;not null;size:16" json:"kind"`
	UserID            uint             `gorm:"index;not null" json:"user_id"`
	Provider          Provider         `gorm:"not null;size:16" json:"provider"`
	Status            SettlementStatus `gorm:"index;not null;size:32" json:"status"`

	RequestedAmount decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"requested_amount"`
	Fee             decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"fee"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"total_amount"`
	SettledAmount   decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"settled_amount"`

	// Deposit annotations
	ProofOfPayment  string `gorm:"size:255" json:"-"`
	ApprovedBy      *uint  `json:"approved_by,omitempty"`
	RejectedBy      *uint  `json:"rejected_by,omitempty"`
	RejectionReason string `gorm:"type:text" json:"rejection_reason,omitempty"`

	// Withdrawal destination snapshot
	PayoutAccountNumber string     `gorm:"size:20" json:"payout_account_number,omitempty"`
	PayoutBankCode      string     `gorm:"size:16" json:"payout_bank_code,omitempty"`
	PayoutAccountName   string     `gorm:"size:128" json:"payout_account_name,omitempty"`
	PayoutAttempts      int        `gorm:"default:0" json:"payout_attempts,omitempty"`
	LastAttemptAt       *time.Time `json:"last_attempt_at,omitempty"`
	FailureReason       string     `gorm:"type:text" json:"failure_reason,omitempty"`

	ReconciliationHold bool `gorm:"default:false" json:"reconciliation_hold,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"-"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func (SettlementRecord) TableName() string {
	return "settlements"
}

// ProviderRef returns the provider reference or "".
func (r *SettlementRecord) ProviderRef() string {
	if r.ProviderReference == nil {
		return ""
	}
	return *r.ProviderReference
}

// Destination returns the payout destination snapshot.
func (r *SettlementRecord) Destination() PayoutDestination {
	return PayoutDestination{
		AccountNumber: r.PayoutAccountNumber,
		BankCode:      r.PayoutBankCode,
		AccountName:   r.PayoutAccountName,
	}
}

// PayoutDestination is a bank account payouts are sent to.
type PayoutDestination struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	AccountName   string `json:"account_name"`
}

func (d PayoutDestination) IsZero() bool {
	return d.AccountNumber == "" || d.BankCode == ""
}
