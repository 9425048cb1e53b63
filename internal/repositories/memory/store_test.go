package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "settlr/internal/errors"
	"settlr/internal/models"
	"settlr/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RollbackOnError(t *testing.T) {
	s := NewStore()
	u := s.AddUser(models.User{Name: "Ada", Balance: decimal.NewFromInt(500)})

	boom := errors.New("boom")
	err := s.ExecuteInTransaction(context.Background(), func(tx repositories.SettlementTx) error {
		_, err := tx.AdjustBalance(u.ID, decimal.NewFromInt(-200))
		require.NoError(t, err)
		require.NoError(t, tx.CreateSettlement(&models.SettlementRecord{Reference: "WD-1", Kind: models.KindWithdrawal, UserID: u.ID}))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.True(t, decimal.NewFromInt(500).Equal(s.Balance(u.ID)))
	_, err = s.GetByReference(context.Background(), "WD-1")
	assert.ErrorIs(t, err, apperrors.ErrSettlementNotFound)
}

func TestStore_AdjustBalanceNeverNegative(t *testing.T) {
	s := NewStore()
	u := s.AddUser(models.User{Balance: decimal.NewFromInt(100)})

	err := s.ExecuteInTransaction(context.Background(), func(tx repositories.SettlementTx) error {
		_, err := tx.AdjustBalance(u.ID, decimal.NewFromInt(-101))
		return err
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	assert.True(t, decimal.NewFromInt(100).Equal(s.Balance(u.ID)))
}

func TestStore_DuplicateReferenceAndLedgerEntry(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
		return tx.CreateSettlement(&models.SettlementRecord{Reference: "DEP-1"})
	}))
	err := s.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
		return tx.CreateSettlement(&models.SettlementRecord{Reference: "DEP-1"})
	})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateReference)

	require.NoError(t, s.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
		return tx.AppendLedgerEntry(&models.LedgerEntry{Reference: "DEP-1", Kind: models.EntryCredit})
	}))
	err = s.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
		return tx.AppendLedgerEntry(&models.LedgerEntry{Reference: "DEP-1", Kind: models.EntryCredit})
	})
	assert.ErrorIs(t, err, apperrors.ErrInconsistentState)
}

func TestStore_LookupByProviderReference(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	pref := "MNFY|123"

	require.NoError(t, s.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
		return tx.CreateSettlement(&models.SettlementRecord{Reference: "DEP-2", ProviderReference: &pref})
	}))

	rec, err := s.GetByReference(ctx, pref)
	require.NoError(t, err)
	assert.Equal(t, "DEP-2", rec.Reference)
}

func TestStore_ListFilters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)

	require.NoError(t, s.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
		for _, rec := range []models.SettlementRecord{
			{Reference: "WD-old", Kind: models.KindWithdrawal, Status: models.StatusPending, CreatedAt: old},
			{Reference: "WD-new", Kind: models.KindWithdrawal, Status: models.StatusPending},
			{Reference: "WD-held", Kind: models.KindWithdrawal, Status: models.StatusPending, CreatedAt: old, ReconciliationHold: true},
			{Reference: "DEP-old", Kind: models.KindDeposit, Status: models.StatusPending, CreatedAt: old},
		} {
			rec := rec
			if err := tx.CreateSettlement(&rec); err != nil {
				return err
			}
		}
		return nil
	}))

	out, total, err := s.List(ctx, repositories.SettlementFilter{
		Kind:          models.KindWithdrawal,
		Status:        models.StatusPending,
		CreatedBefore: time.Now().Add(-time.Minute),
		ExcludeHeld:   true,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, out, 1)
	assert.Equal(t, "WD-old", out[0].Reference)
}
