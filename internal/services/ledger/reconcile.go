package ledger

import (
	"context"
	"fmt"

	apperrors "settlr/internal/errors"
	"settlr/internal/models"
	"settlr/internal/repositories"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reconcile checks a record against its ledger entries under the row lock, so a
// resolution committing concurrently is either fully visible or not at all.
// A mismatch places the record on hold in the same transaction.
func (s *service) Reconcile(ctx context.Context, reference string) error {
	var rec *models.SettlementRecord
	var problem string
	err := s.repo.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
		locked, err := tx.LockSettlement(reference)
		if err != nil {
			return err
		}
		entries, err := tx.LedgerEntries(locked.Reference)
		if err != nil {
			return fmt.Errorf("failed to load ledger entries: %w", err)
		}
		rec = locked
		problem = checkEntries(locked, entries)
		if problem == "" || locked.ReconciliationHold {
			return nil
		}
		locked.ReconciliationHold = true
		if err := tx.SaveSettlement(locked); err != nil {
			return fmt.Errorf("failed to place settlement on hold: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if problem == "" {
		return nil
	}

	s.metrics.RecordError("reconcile", apperrors.ErrInconsistentState.Code)
	// zap.Fatal would exit the process; the event is flagged for alerting instead.
	s.log.Error("SECURITY: ledger inconsistent with settlement status",
		zap.Bool("security_event", true),
		zap.String("severity", "fatal"),
		zap.String("reference", rec.Reference),
		zap.String("kind", string(rec.Kind)),
		zap.String("status", string(rec.Status)),
		zap.Uint("user_id", rec.UserID),
		zap.String("problem", problem),
	)
	return apperrors.ErrInconsistentState.WithMessage(
		fmt.Sprintf("settlement %s is held for manual reconciliation: %s", rec.Reference, problem))
}

// checkEntries returns a description of the first mismatch, or "".
func checkEntries(rec *models.SettlementRecord, entries []models.LedgerEntry) string {
	byKind := make(map[models.LedgerEntryKind][]models.LedgerEntry)
	for _, e := range entries {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	expected := map[models.LedgerEntryKind]decimal.Decimal{}
	switch rec.Kind {
	case models.KindDeposit:
		if rec.Status == models.StatusCompleted || rec.Status == models.StatusApproved {
			expected[models.EntryCredit] = rec.SettledAmount
		}
	case models.KindWithdrawal:
		if rec.Status != models.StatusInitiated {
			expected[models.EntryDebit] = rec.SettledAmount.Neg()
		}
		if rec.Status == models.StatusFailed {
			expected[models.EntryRefund] = rec.SettledAmount
		}
	}

	for _, kind := range []models.LedgerEntryKind{models.EntryCredit, models.EntryDebit, models.EntryRefund} {
		got := byKind[kind]
		want, ok := expected[kind]
		switch {
		case !ok && len(got) > 0:
			return fmt.Sprintf("unexpected %s entry for a %s record", kind, rec.Status)
		case ok && len(got) == 0:
			return fmt.Sprintf("missing %s entry for a %s record", kind, rec.Status)
		case ok && len(got) > 1:
			return fmt.Sprintf("%d %s entries", len(got), kind)
		case ok && !got[0].Delta.Equal(want):
			return fmt.Sprintf("%s entry of %s, expected %s", kind, got[0].Delta.StringFixed(2), want.StringFixed(2))
		}
	}
	return ""
}
