package notification

import (
	"context"

	"settlr/internal/models"

	"go.uber.org/zap"
)

type Event string

const (
	EventDepositConfirmed        Event = "deposit_confirmed"
	EventDepositFailed           Event = "deposit_failed"
	EventDepositAwaitingApproval Event = "deposit_awaiting_approval"
	EventDepositApproved         Event = "deposit_approved"
	EventDepositRejected         Event = "deposit_rejected"
	EventWithdrawalConfirmed     Event = "withdrawal_confirmed"
	EventWithdrawalFailed        Event = "withdrawal_failed"
)

// Notifier is told about settlement outcomes after they are committed.
// Implementations must not block the caller for long and never fail it.
type Notifier interface {
	Notify(ctx context.Context, event Event, rec *models.SettlementRecord)
}

// Service is a minimal notification service that only logs.
type Service struct {
	log *zap.Logger
}

// NewService creates a new notification service.
func NewService(log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log.Named("notification")}
}

// Notify logs the settlement notification.
func (s *Service) Notify(_ context.Context, event Event, rec *models.SettlementRecord) {
	fields := []zap.Field{
		zap.String("event", string(event)),
		zap.Uint("user_id", rec.UserID),
		zap.String("reference", rec.Reference),
		zap.String("amount", rec.RequestedAmount.StringFixed(2)),
	}
	if rec.RejectionReason != "" {
		fields = append(fields, zap.String("reason", rec.RejectionReason))
	}
	if rec.FailureReason != "" {
		fields = append(fields, zap.String("reason", rec.FailureReason))
	}
	s.log.Info("notify user", fields...)
}
