package ledger

import (
	"context"
	"fmt"
	"time"

	apperrors "settlr/internal/errors"
	"settlr/internal/metrics"
	"settlr/internal/models"
	"settlr/internal/repositories"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type service struct {
	repo    repositories.SettlementRepository
	log     *zap.Logger
	metrics metrics.Collector
}

// NewService creates a new ledger service
func NewService(repo repositories.SettlementRepository, log *zap.Logger, collector metrics.Collector) Service {
	if repo == nil {
		panic("repo is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	return &service{
		repo:    repo,
		log:     log.Named("ledger"),
		metrics: collector,
	}
}

func (s *service) Credit(tx repositories.SettlementTx, userID uint, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	return s.mutate(tx, userID, reference, models.EntryCredit, amount, amount)
}

func (s *service) Debit(tx repositories.SettlementTx, userID uint, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	return s.mutate(tx, userID, reference, models.EntryDebit, amount, amount.Neg())
}

func (s *service) Refund(tx repositories.SettlementTx, userID uint, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	return s.mutate(tx, userID, reference, models.EntryRefund, amount, amount)
}

func (s *service) mutate(
	tx repositories.SettlementTx,
	userID uint,
	reference string,
	kind models.LedgerEntryKind,
	amount, delta decimal.Decimal,
) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, apperrors.Validation("%s amount must be positive", kind)
	}

	balance, err := tx.AdjustBalance(userID, delta)
	if err != nil {
		return decimal.Zero, err
	}

	entry := &models.LedgerEntry{
		UserID:           userID,
		Reference:        reference,
		Kind:             kind,
		Delta:            delta,
		ResultingBalance: balance,
		CreatedAt:        time.Now(),
	}
	if err := tx.AppendLedgerEntry(entry); err != nil {
		return decimal.Zero, err
	}

	s.metrics.RecordLedgerMutation(string(kind), delta.InexactFloat64())
	s.log.Info("ledger mutation",
		zap.Uint("user_id", userID),
		zap.String("reference", reference),
		zap.String("kind", string(kind)),
		zap.String("delta", delta.StringFixed(2)),
		zap.String("balance", balance.StringFixed(2)),
	)
	return balance, nil
}

func (s *service) apply(tx repositories.SettlementTx, rec *models.SettlementRecord, m Mutation) error {
	var err error
	switch m.Kind {
	case "":
		return nil
	case models.EntryCredit:
		_, err = s.Credit(tx, rec.UserID, m.Amount, rec.Reference)
	case models.EntryDebit:
		_, err = s.Debit(tx, rec.UserID, m.Amount, rec.Reference)
	case models.EntryRefund:
		_, err = s.Refund(tx, rec.UserID, m.Amount, rec.Reference)
	default:
		err = fmt.Errorf("unknown ledger entry kind %q", m.Kind)
	}
	return err
}

// openStatuses lists the statuses a record may be created in.
var openStatuses = map[models.SettlementKind][]models.SettlementStatus{
	models.KindDeposit:    {models.StatusInitiated, models.StatusAwaitingApproval},
	models.KindWithdrawal: {models.StatusInitiated, models.StatusPending},
}

func (s *service) Open(tx repositories.SettlementTx, rec *models.SettlementRecord, m Mutation) error {
	allowed := false
	for _, st := range openStatuses[rec.Kind] {
		if st == rec.Status {
			allowed = true
			break
		}
	}
	if !allowed {
		return apperrors.ErrInvalidTransition.WithMessage(
			fmt.Sprintf("a %s cannot be created as %s", rec.Kind, rec.Status))
	}

	if err := tx.CreateSettlement(rec); err != nil {
		return err
	}
	if err := s.apply(tx, rec, m); err != nil {
		return err
	}

	s.metrics.RecordSettlement(string(rec.Kind), string(rec.Provider), string(rec.Status))
	return nil
}

func (s *service) CommitSettlement(
	tx repositories.SettlementTx,
	rec *models.SettlementRecord,
	to models.SettlementStatus,
	m Mutation,
) error {
	from := rec.Status
	if !models.CanTransition(rec.Kind, from, to) {
		return apperrors.ErrInvalidTransition.WithMessage(
			fmt.Sprintf("%s %s cannot move from %s to %s", rec.Kind, rec.Reference, from, to))
	}

	if err := s.apply(tx, rec, m); err != nil {
		return err
	}

	rec.Status = to
	if to.IsTerminal() {
		now := time.Now()
		rec.ResolvedAt = &now
	}
	if err := tx.SaveSettlement(rec); err != nil {
		return fmt.Errorf("failed to save settlement: %w", err)
	}

	s.metrics.RecordSettlement(string(rec.Kind), string(rec.Provider), string(to))
	s.log.Info("settlement transition",
		zap.String("reference", rec.Reference),
		zap.String("kind", string(rec.Kind)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

func (s *service) Resolve(ctx context.Context, reference string, fn ResolveFunc) (*Result, error) {
	var result Result
	err := s.repo.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
		rec, err := tx.LockSettlement(reference)
		if err != nil {
			return err
		}
		// Terminal comes first: a duplicate of a settled record is a no-op even when held.
		if rec.Status.IsTerminal() {
			result.Record = rec
			return nil
		}
		if rec.ReconciliationHold {
			return apperrors.ErrInconsistentState
		}

		before := rec.Status
		if err := fn(tx, rec); err != nil {
			return err
		}
		result.Record = rec
		result.Applied = rec.Status != before
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Applied && result.Record.Status.IsTerminal() {
		s.log.Debug("duplicate resolution ignored",
			zap.String("reference", result.Record.Reference),
			zap.String("status", string(result.Record.Status)),
		)
	}
	return &result, nil
}
