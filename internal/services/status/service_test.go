package status

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "settlr/internal/errors"
	"settlr/internal/models"
	"settlr/internal/repositories"
	"settlr/internal/repositories/memory"
	"settlr/internal/utils/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func (c *jsonCache) SetWithTTL(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func (c *jsonCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return false, errors.New("connection refused")
	}
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func seed(t *testing.T, store *memory.Store, ref string, userID uint, status models.SettlementStatus) {
	t.Helper()
	err := store.ExecuteInTransaction(context.Background(), func(tx repositories.SettlementTx) error {
		return tx.CreateSettlement(&models.SettlementRecord{
			Reference:       ref,
			Kind:            models.KindDeposit,
			UserID:          userID,
			Provider:        models.ProviderGatewayA,
			Status:          status,
			RequestedAmount: decimal.NewFromInt(1000),
			Fee:             decimal.RequireFromString("22.49"),
			TotalAmount:     decimal.RequireFromString("1022.49"),
			SettledAmount:   decimal.NewFromInt(1000),
		})
	})
	require.NoError(t, err)
}

func TestLookup_Authorization(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "DEP-1", 7, models.StatusPending)
	svc := NewService(store, nil, 0, nil)

	v, err := svc.Lookup(context.Background(), "DEP-1", Viewer{UserID: 7})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, v.Status)
	assert.True(t, decimal.RequireFromString("1022.49").Equal(v.TotalAmount))

	_, err = svc.Lookup(context.Background(), "DEP-1", Viewer{UserID: 8})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = svc.Lookup(context.Background(), "DEP-1", Viewer{UserID: 8, Admin: true})
	assert.NoError(t, err)

	_, err = svc.Lookup(context.Background(), "DEP-404", Viewer{Admin: true})
	assert.ErrorIs(t, err, apperrors.ErrSettlementNotFound)
}

func TestLookup_CachesOnlyTerminalRecords(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "DEP-PENDING", 1, models.StatusPending)
	seed(t, store, "DEP-DONE", 1, models.StatusCompleted)
	c := &jsonCache{data: map[string][]byte{}}
	svc := NewService(store, c, time.Minute, nil)

	_, err := svc.Lookup(context.Background(), "DEP-PENDING", Viewer{UserID: 1})
	require.NoError(t, err)
	_, err = svc.Lookup(context.Background(), "DEP-DONE", Viewer{UserID: 1})
	require.NoError(t, err)

	assert.NotContains(t, c.data, cache.SettlementKey("DEP-PENDING"))
	assert.Contains(t, c.data, cache.SettlementKey("DEP-DONE"))

	// Cached views still enforce ownership.
	_, err = svc.Lookup(context.Background(), "DEP-DONE", Viewer{UserID: 2})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestLookup_CacheFailureFallsBackToStore(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "DEP-1", 1, models.StatusFailed)
	c := &jsonCache{data: map[string][]byte{}, failGet: true}
	svc := NewService(store, c, time.Minute, nil)

	v, err := svc.Lookup(context.Background(), "DEP-1", Viewer{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, v.Status)
}
