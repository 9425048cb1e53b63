// Package sweeper runs the periodic settlement sweeps: pending withdrawals are
// re-queried or re-sent, and stuck gateway deposits are re-verified.
package sweeper

import (
	"context"
	"sync"
	"time"

	"settlr/internal/services/deposit"
	"settlr/internal/services/withdrawal"

	"go.uber.org/zap"
)

// WithdrawalSweeper is the part of the withdrawal engine the sweeper drives.
type WithdrawalSweeper interface {
	RetrySweep(ctx context.Context, olderThan time.Duration, limit int) (*withdrawal.SweepReport, error)
}

// DepositReverifier is the part of the deposit engine the sweeper drives.
type DepositReverifier interface {
	ReverifyPending(ctx context.Context, olderThan time.Duration, limit int) (*deposit.ReverifyReport, error)
}

type Config struct {
	Interval  time.Duration
	Threshold time.Duration
	BatchSize int
}

type Sweeper struct {
	withdrawals WithdrawalSweeper
	deposits    DepositReverifier
	config      Config
	log         *zap.Logger

	// mu keeps a manual trigger and a tick from overlapping.
	mu sync.Mutex
}

func New(withdrawals WithdrawalSweeper, deposits DepositReverifier, config Config, log *zap.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.Threshold <= 0 {
		config.Threshold = 10 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		withdrawals: withdrawals,
		deposits:    deposits,
		config:      config,
		log:         log.Named("sweeper"),
	}
}

// Start runs the sweep loop in a goroutine until ctx is cancelled.
// The returned channel is closed once the loop has exited.
func (s *Sweeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		s.log.Info("sweeper started",
			zap.Duration("interval", s.config.Interval),
			zap.Duration("threshold", s.config.Threshold),
		)
		for {
			select {
			case <-ctx.Done():
				s.log.Info("sweeper stopped")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
	return done
}

// RunOnce performs a single pass over both engines.
func (s *Sweeper) RunOnce(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.withdrawals != nil {
		if _, err := s.withdrawals.RetrySweep(ctx, s.config.Threshold, s.config.BatchSize); err != nil {
			s.log.Error("withdrawal sweep failed", zap.Error(err))
		}
	}
	if s.deposits != nil {
		if _, err := s.deposits.ReverifyPending(ctx, s.config.Threshold, s.config.BatchSize); err != nil {
			s.log.Error("deposit reverification failed", zap.Error(err))
		}
	}
}

// SweepWithdrawals runs the withdrawal sweep on demand, serialized with the loop.
func (s *Sweeper) SweepWithdrawals(ctx context.Context) (*withdrawal.SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdrawals.RetrySweep(ctx, s.config.Threshold, s.config.BatchSize)
}
