package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	apperrors "settlr/internal/errors"
	"settlr/internal/models"
	"settlr/internal/repositories"
	"settlr/internal/repositories/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setup(t *testing.T, balance string) (*memory.Store, Service, models.User) {
	t.Helper()
	store := memory.NewStore()
	u := store.AddUser(models.User{Name: "Ada", Email: "ada@example.com", Balance: d(balance)})
	return store, NewService(store, nil, nil), u
}

func openDeposit(t *testing.T, store *memory.Store, svc Service, userID uint, ref string, status models.SettlementStatus) {
	t.Helper()
	require.NoError(t, store.ExecuteInTransaction(context.Background(), func(tx repositories.SettlementTx) error {
		return svc.Open(tx, &models.SettlementRecord{
			Reference:       ref,
			Kind:            models.KindDeposit,
			UserID:          userID,
			Provider:        models.ProviderGatewayA,
			Status:          status,
			RequestedAmount: d("1000"),
			Fee:             d("22.49"),
			TotalAmount:     d("1022.49"),
			SettledAmount:   d("1000"),
		}, NoMutation)
	}))
}

func TestLedger_MutationsAppendEntries(t *testing.T) {
	store, svc, u := setup(t, "50")

	err := store.ExecuteInTransaction(context.Background(), func(tx repositories.SettlementTx) error {
		bal, err := svc.Credit(tx, u.ID, d("100"), "DEP-1")
		require.NoError(t, err)
		assert.True(t, d("150").Equal(bal))

		bal, err = svc.Debit(tx, u.ID, d("120"), "WD-1")
		require.NoError(t, err)
		assert.True(t, d("30").Equal(bal))

		bal, err = svc.Refund(tx, u.ID, d("120"), "WD-1")
		require.NoError(t, err)
		assert.True(t, d("150").Equal(bal))
		return nil
	})
	require.NoError(t, err)

	entries := store.AllLedgerEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, models.EntryDebit, entries[1].Kind)
	assert.True(t, d("-120").Equal(entries[1].Delta))
	assert.True(t, d("30").Equal(entries[1].ResultingBalance))
}

func TestLedger_DebitNeverOverdraws(t *testing.T) {
	store, svc, u := setup(t, "99.99")

	err := store.ExecuteInTransaction(context.Background(), func(tx repositories.SettlementTx) error {
		_, err := svc.Debit(tx, u.ID, d("100"), "WD-1")
		return err
	})

	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	assert.True(t, d("99.99").Equal(store.Balance(u.ID)))
	assert.Empty(t, store.AllLedgerEntries())
}

func TestLedger_RejectsNonPositiveAmounts(t *testing.T) {
	store, svc, u := setup(t, "10")

	err := store.ExecuteInTransaction(context.Background(), func(tx repositories.SettlementTx) error {
		_, err := svc.Credit(tx, u.ID, decimal.Zero, "DEP-0")
		return err
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCommitSettlement_InvalidTransition(t *testing.T) {
	store, svc, u := setup(t, "0")
	openDeposit(t, store, svc, u.ID, "DEP-1", models.StatusInitiated)

	err := store.ExecuteInTransaction(context.Background(), func(tx repositories.SettlementTx) error {
		rec, err := tx.LockSettlement("DEP-1")
		require.NoError(t, err)
		return svc.CommitSettlement(tx, rec, models.StatusApproved, CreditOf(rec.SettledAmount))
	})

	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.True(t, store.Balance(u.ID).IsZero())
}

func TestCommitSettlement_SetsResolvedAtOnTerminal(t *testing.T) {
	store, svc, u := setup(t, "0")
	openDeposit(t, store, svc, u.ID, "DEP-1", models.StatusInitiated)
	ctx := context.Background()

	require.NoError(t, store.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
		rec, err := tx.LockSettlement("DEP-1")
		require.NoError(t, err)
		require.NoError(t, svc.CommitSettlement(tx, rec, models.StatusPending, NoMutation))
		assert.Nil(t, rec.ResolvedAt)
		return svc.CommitSettlement(tx, rec, models.StatusCompleted, CreditOf(rec.SettledAmount))
	}))

	rec, err := store.GetByReference(ctx, "DEP-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.NotNil(t, rec.ResolvedAt)
	assert.True(t, d("1000").Equal(store.Balance(u.ID)))
}

func TestOpen_RejectsNonInitialStatus(t *testing.T) {
	store, svc, u := setup(t, "0")

	err := store.ExecuteInTransaction(context.Background(), func(tx repositories.SettlementTx) error {
		return svc.Open(tx, &models.SettlementRecord{
			Reference: "DEP-X", Kind: models.KindDeposit, UserID: u.ID, Status: models.StatusCompleted,
		}, NoMutation)
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestResolve_CreditsAtMostOnceUnderConcurrency(t *testing.T) {
	store, svc, u := setup(t, "0")
	openDeposit(t, store, svc, u.ID, "DEP-1", models.StatusPending)

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Resolve(context.Background(), "DEP-1", func(tx repositories.SettlementTx, rec *models.SettlementRecord) error {
				return svc.CommitSettlement(tx, rec, models.StatusCompleted, CreditOf(rec.SettledAmount))
			})
			if assert.NoError(t, err) && res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.True(t, d("1000").Equal(store.Balance(u.ID)))
	assert.Len(t, store.AllLedgerEntries(), 1)
}

func TestResolve_TerminalIsNoop(t *testing.T) {
	store, svc, u := setup(t, "0")
	openDeposit(t, store, svc, u.ID, "DEP-1", models.StatusPending)
	ctx := context.Background()

	fail := func(tx repositories.SettlementTx, rec *models.SettlementRecord) error {
		return svc.CommitSettlement(tx, rec, models.StatusFailed, NoMutation)
	}
	res, err := svc.Resolve(ctx, "DEP-1", fail)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	called := false
	res, err = svc.Resolve(ctx, "DEP-1", func(tx repositories.SettlementTx, rec *models.SettlementRecord) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.False(t, called)
	assert.Equal(t, models.StatusFailed, res.Record.Status)
}

func TestResolve_HeldRecordRefused(t *testing.T) {
	store, svc, u := setup(t, "0")
	openDeposit(t, store, svc, u.ID, "DEP-1", models.StatusPending)
	require.NoError(t, store.SetHold(context.Background(), "DEP-1", true))

	_, err := svc.Resolve(context.Background(), "DEP-1", func(tx repositories.SettlementTx, rec *models.SettlementRecord) error {
		t.Fatal("held record must not be processed")
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrInconsistentState)
}

func TestResolve_UnknownReference(t *testing.T) {
	_, svc, _ := setup(t, "0")

	_, err := svc.Resolve(context.Background(), "nope", func(repositories.SettlementTx, *models.SettlementRecord) error { return nil })
	assert.ErrorIs(t, err, apperrors.ErrSettlementNotFound)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("consistent record passes", func(t *testing.T) {
		store, svc, u := setup(t, "0")
		openDeposit(t, store, svc, u.ID, "DEP-1", models.StatusPending)
		_, err := svc.Resolve(ctx, "DEP-1", func(tx repositories.SettlementTx, rec *models.SettlementRecord) error {
			return svc.CommitSettlement(tx, rec, models.StatusCompleted, CreditOf(rec.SettledAmount))
		})
		require.NoError(t, err)

		assert.NoError(t, svc.Reconcile(ctx, "DEP-1"))
	})

	t.Run("completed deposit without credit is held", func(t *testing.T) {
		store, svc, u := setup(t, "0")
		require.NoError(t, store.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
			return tx.CreateSettlement(&models.SettlementRecord{
				Reference: "DEP-2", Kind: models.KindDeposit, UserID: u.ID,
				Status: models.StatusCompleted, SettledAmount: d("500"),
			})
		}))

		err := svc.Reconcile(ctx, "DEP-2")
		assert.ErrorIs(t, err, apperrors.ErrInconsistentState)

		rec, err := store.GetByReference(ctx, "DEP-2")
		require.NoError(t, err)
		assert.True(t, rec.ReconciliationHold)
	})

	t.Run("failed withdrawal needs a matching refund", func(t *testing.T) {
		store, svc, u := setup(t, "300")
		require.NoError(t, store.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
			return svc.Open(tx, &models.SettlementRecord{
				Reference: "WD-1", Kind: models.KindWithdrawal, UserID: u.ID,
				Status: models.StatusPending, RequestedAmount: d("200"), SettledAmount: d("200"),
			}, DebitOf(d("200")))
		}))
		assert.NoError(t, svc.Reconcile(ctx, "WD-1"))

		// Fail it without refunding.
		require.NoError(t, store.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
			rec, err := tx.LockSettlement("WD-1")
			require.NoError(t, err)
			rec.Status = models.StatusFailed
			return tx.SaveSettlement(rec)
		}))
		assert.ErrorIs(t, svc.Reconcile(ctx, "WD-1"), apperrors.ErrInconsistentState)
	})
}

// racingStore commits a competing resolution just before the next transaction starts.
type racingStore struct {
	*memory.Store
	once   sync.Once
	before func()
}

func (r *racingStore) ExecuteInTransaction(ctx context.Context, fn func(repositories.SettlementTx) error) error {
	if r.before != nil {
		r.once.Do(r.before)
	}
	return r.Store.ExecuteInTransaction(ctx, fn)
}

func openWithdrawal(t *testing.T, store *memory.Store, svc Service, userID uint, ref string) {
	t.Helper()
	require.NoError(t, store.ExecuteInTransaction(context.Background(), func(tx repositories.SettlementTx) error {
		return svc.Open(tx, &models.SettlementRecord{
			Reference: ref, Kind: models.KindWithdrawal, UserID: userID, Provider: models.ProviderGatewayA,
			Status: models.StatusPending, RequestedAmount: d("200"), SettledAmount: d("200"),
		}, DebitOf(d("200")))
	}))
}

func failWithRefund(tx repositories.SettlementTx, svc Service, ref string) error {
	rec, err := tx.LockSettlement(ref)
	if err != nil {
		return err
	}
	return svc.CommitSettlement(tx, rec, models.StatusFailed, RefundOf(rec.SettledAmount))
}

func TestReconcile_ResolutionLandingAfterSweepListing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	u := store.AddUser(models.User{Name: "Ada", Email: "ada@example.com", Balance: d("300")})
	racing := &racingStore{Store: store}
	svc := NewService(racing, nil, nil)
	openWithdrawal(t, store, svc, u.ID, "WD-1")

	listed, err := store.GetByReference(ctx, "WD-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, listed.Status)

	var raceErr error
	racing.before = func() {
		raceErr = store.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
			return failWithRefund(tx, svc, "WD-1")
		})
	}

	require.NoError(t, svc.Reconcile(ctx, "WD-1"))
	require.NoError(t, raceErr)

	rec, err := store.GetByReference(ctx, "WD-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.False(t, rec.ReconciliationHold)

	res, err := svc.Resolve(ctx, "WD-1", func(repositories.SettlementTx, *models.SettlementRecord) error {
		t.Fatal("terminal record must not be processed")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.True(t, store.Balance(u.ID).Equal(d("300")))
}

func TestReconcile_ConcurrentWithResolutionNeverHolds(t *testing.T) {
	ctx := context.Background()
	store, svc, u := setup(t, "10000")

	for i := 0; i < 25; i++ {
		ref := fmt.Sprintf("WD-%d", i)
		openWithdrawal(t, store, svc, u.ID, ref)

		var wg sync.WaitGroup
		var reconcileErr, resolveErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			reconcileErr = svc.Reconcile(ctx, ref)
		}()
		go func() {
			defer wg.Done()
			_, resolveErr = svc.Resolve(ctx, ref, func(tx repositories.SettlementTx, rec *models.SettlementRecord) error {
				return svc.CommitSettlement(tx, rec, models.StatusFailed, RefundOf(rec.SettledAmount))
			})
		}()
		wg.Wait()

		require.NoError(t, reconcileErr, ref)
		require.NoError(t, resolveErr, ref)
		rec, err := store.GetByReference(ctx, ref)
		require.NoError(t, err)
		assert.False(t, rec.ReconciliationHold, ref)
	}
	assert.True(t, store.Balance(u.ID).Equal(d("10000")))
}

func TestResolve_HeldTerminalRecordIsNoop(t *testing.T) {
	ctx := context.Background()
	store, svc, u := setup(t, "0")
	openDeposit(t, store, svc, u.ID, "DEP-1", models.StatusPending)
	_, err := svc.Resolve(ctx, "DEP-1", func(tx repositories.SettlementTx, rec *models.SettlementRecord) error {
		return svc.CommitSettlement(tx, rec, models.StatusCompleted, CreditOf(rec.SettledAmount))
	})
	require.NoError(t, err)
	require.NoError(t, store.SetHold(ctx, "DEP-1", true))

	res, err := svc.Resolve(ctx, "DEP-1", func(repositories.SettlementTx, *models.SettlementRecord) error {
		t.Fatal("terminal record must not be processed")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, models.StatusCompleted, res.Record.Status)
	assert.True(t, store.Balance(u.ID).Equal(d("1000")))
}
