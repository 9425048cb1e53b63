package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"settlr/internal/services/deposit"
	"settlr/internal/services/withdrawal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWithdrawals struct {
	calls     atomic.Int32
	olderThan atomic.Int64
}

func (c *countingWithdrawals) RetrySweep(_ context.Context, olderThan time.Duration, _ int) (*withdrawal.SweepReport, error) {
	c.calls.Add(1)
	c.olderThan.Store(int64(olderThan))
	return &withdrawal.SweepReport{}, nil
}

type failingDeposits struct {
	calls atomic.Int32
}

func (f *failingDeposits) ReverifyPending(context.Context, time.Duration, int) (*deposit.ReverifyReport, error) {
	f.calls.Add(1)
	return nil, errors.New("storage offline")
}

func TestRunOnce_DrivesBothEngines(t *testing.T) {
	w := &countingWithdrawals{}
	d := &failingDeposits{}
	s := New(w, d, Config{Threshold: 3 * time.Minute}, nil)

	s.RunOnce(context.Background())

	assert.EqualValues(t, 1, w.calls.Load())
	assert.EqualValues(t, 1, d.calls.Load())
	assert.Equal(t, int64(3*time.Minute), w.olderThan.Load())
}

func TestStart_TicksUntilCancelled(t *testing.T) {
	w := &countingWithdrawals{}
	s := New(w, nil, Config{Interval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := s.Start(ctx)

	require.Eventually(t, func() bool { return w.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
	stopped := w.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, w.calls.Load())
}

func TestSweepWithdrawals(t *testing.T) {
	w := &countingWithdrawals{}
	s := New(w, nil, Config{}, nil)

	report, err := s.SweepWithdrawals(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, report)
	assert.Equal(t, int64(10*time.Minute), w.olderThan.Load())
}
