package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "settlr/internal/errors"
	"settlr/internal/metrics"
	"settlr/internal/models"
	"settlr/internal/repositories"
	"settlr/internal/services/ledger"
	"settlr/internal/services/notification"
	"settlr/internal/services/provider"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type service struct {
	repo      repositories.SettlementRepository
	ledger    ledger.Service
	providers *provider.Registry
	notifier  notification.Notifier
	config    Config
	log       *zap.Logger
	metrics   metrics.Collector
}

// NewService creates a new withdrawal service
func NewService(
	repo repositories.SettlementRepository,
	ledgerSvc ledger.Service,
	providers *provider.Registry,
	notifier notification.Notifier,
	config Config,
	log *zap.Logger,
	collector metrics.Collector,
) Service {
	if repo == nil {
		panic("repo is required")
	}
	if ledgerSvc == nil {
		panic("ledger is required")
	}
	if providers == nil {
		panic("provider registry is required")
	}
	if config.MinAmount.IsZero() {
		config.MinAmount = decimal.NewFromInt(1)
	}
	if config.Provider == "" {
		config.Provider = models.ProviderGatewayA
	}
	if config.Narration == "" {
		config.Narration = "Wallet withdrawal"
	}
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = notification.NewService(log)
	}
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	return &service{
		repo:      repo,
		ledger:    ledgerSvc,
		providers: providers,
		notifier:  notifier,
		config:    config,
		log:       log.Named("withdrawal"),
		metrics:   collector,
	}
}

// newReference returns WD-<yyyymmdd-hhmmss>-<6 upper alnum>.
func newReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "WD-" + now.Format("20060102-150405") + "-" + suffix
}

func (s *service) validateAmount(amount decimal.Decimal) error {
	if amount.LessThan(s.config.MinAmount) {
		return apperrors.Validation("minimum withdrawal is %s", s.config.MinAmount.StringFixed(2))
	}
	if !s.config.MaxAmount.IsZero() && amount.GreaterThan(s.config.MaxAmount) {
		return apperrors.Validation("maximum withdrawal is %s", s.config.MaxAmount.StringFixed(2))
	}
	if !amount.Equal(amount.Round(2)) {
		return apperrors.Validation("amount must have at most two decimal places")
	}
	return nil
}

func (s *service) Request(ctx context.Context, in RequestInput) (*RequestResult, error) {
	if err := s.validateAmount(in.Amount); err != nil {
		return nil, err
	}
	if _, err := s.providers.Payout(s.config.Provider); err != nil && !s.config.SandboxAutoSettle {
		return nil, err
	}
	user, err := s.repo.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	dest := user.PayoutDestination()
	if dest.IsZero() {
		return nil, apperrors.ErrMissingPayoutDestination
	}

	debit := in.Amount.Add(s.config.Fee)
	rec := &models.SettlementRecord{
		Reference:           newReference(time.Now()),
		Kind:                models.KindWithdrawal,
		UserID:              user.ID,
		Provider:            s.config.Provider,
		Status:              models.StatusPending,
		RequestedAmount:     in.Amount,
		Fee:                 s.config.Fee,
		TotalAmount:         debit,
		SettledAmount:       debit,
		PayoutAccountNumber: dest.AccountNumber,
		PayoutBankCode:      dest.BankCode,
		PayoutAccountName:   dest.AccountName,
	}
	err = s.repo.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
		return s.ledger.Open(tx, rec, ledger.DebitOf(debit))
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientFunds) {
			s.metrics.RecordError("withdrawal_request", apperrors.ErrInsufficientFunds.Code)
		}
		return nil, err
	}
	s.log.Info("withdrawal reserved",
		zap.String("reference", rec.Reference),
		zap.Uint("user_id", rec.UserID),
		zap.String("debited", debit.StringFixed(2)),
	)

	out := &RequestResult{
		Reference: rec.Reference,
		Status:    rec.Status,
		Amount:    rec.RequestedAmount,
		Fee:       rec.Fee,
		Debited:   debit,
		Message:   "Withdrawal request initiated",
	}

	res, err := s.InitiatePayout(ctx, rec.Reference)
	if err != nil {
		// The funds stay reserved; the sweep settles the payout later.
		s.log.Warn("payout not confirmed, left for retry sweep",
			zap.String("reference", rec.Reference),
			zap.Error(err),
		)
		return out, nil
	}
	out.Status = res.Record.Status
	switch out.Status {
	case models.StatusCompleted:
		out.Message = "Withdrawal successful"
	case models.StatusFailed:
		out.Message = "Withdrawal failed and the amount was refunded"
	}
	return out, nil
}

func (s *service) InitiatePayout(ctx context.Context, reference string) (*ledger.Result, error) {
	rec, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if rec.Kind != models.KindWithdrawal {
		return nil, apperrors.ErrSettlementNotFound
	}
	if rec.Status.IsTerminal() {
		return &ledger.Result{Record: rec}, nil
	}
	if rec.ReconciliationHold {
		return nil, apperrors.ErrInconsistentState
	}

	if s.config.SandboxAutoSettle {
		s.log.Info("sandbox payout settled without provider", zap.String("reference", rec.Reference))
		return s.Resolve(ctx, rec.Reference, provider.StatusPaid, "")
	}

	pp, err := s.providers.Payout(rec.Provider)
	if err != nil {
		return nil, err
	}

	recipient, err := s.recipient(ctx, pp, rec)
	if err != nil {
		if errors.Is(err, apperrors.ErrProviderRejected) {
			return s.Resolve(ctx, rec.Reference, provider.StatusFailed, "payout destination rejected by provider")
		}
		return nil, err
	}

	attempt, err := s.recordAttempt(ctx, rec.Reference)
	if err != nil {
		return nil, err
	}

	tr, err := pp.Transfer(ctx, provider.TransferRequest{
		Reference:   rec.Reference,
		Amount:      rec.RequestedAmount,
		Recipient:   recipient,
		Destination: rec.Destination(),
		Narration:   s.config.Narration,
	})
	if err != nil {
		s.metrics.RecordError("payout", errorCode(err))
		if !errors.Is(err, apperrors.ErrProviderRejected) {
			return nil, err
		}
		if attempt > 1 {
			// An earlier attempt may have gone through; only the provider can tell.
			return s.confirmRejected(ctx, pp, rec.Reference, err)
		}
		return s.Resolve(ctx, rec.Reference, provider.StatusFailed, "payout rejected by provider")
	}

	s.log.Info("payout sent",
		zap.String("reference", rec.Reference),
		zap.Int("attempt", attempt),
		zap.String("provider_status", string(tr.Status)),
	)
	return s.apply(ctx, rec.Reference, tr, "")
}

// confirmRejected settles a rejected retry according to what the provider reports.
func (s *service) confirmRejected(ctx context.Context, pp provider.PayoutProvider, reference string, cause error) (*ledger.Result, error) {
	tr, err := pp.QueryTransfer(ctx, reference)
	switch {
	case errors.Is(err, apperrors.ErrTransferNotFound):
		return s.Resolve(ctx, reference, provider.StatusFailed, "payout rejected by provider")
	case err != nil:
		return nil, cause
	}
	return s.apply(ctx, reference, tr, "")
}

// apply records a transfer result: terminal outcomes resolve, pending ones keep
// the provider reference for later correlation.
func (s *service) apply(ctx context.Context, reference string, tr *provider.TransferResult, from models.Provider) (*ledger.Result, error) {
	reason := tr.Reason
	if tr.Status == provider.StatusFailed && reason == "" {
		reason = "payout failed at provider"
	}
	return s.resolve(ctx, reference, tr.Status, reason, from, tr.ProviderReference)
}

func (s *service) recipient(ctx context.Context, pp provider.PayoutProvider, rec *models.SettlementRecord) (string, error) {
	dest := rec.Destination()
	cached, err := s.repo.GetRecipient(ctx, pp.Name(), dest.AccountNumber, dest.BankCode)
	if err != nil {
		return "", err
	}
	if cached != nil {
		return cached.RecipientCode, nil
	}

	code, err := pp.EnsureRecipient(ctx, dest)
	if err != nil {
		return "", err
	}
	err = s.repo.SaveRecipient(ctx, &models.PayoutRecipient{
		Provider:      pp.Name(),
		AccountNumber: dest.AccountNumber,
		BankCode:      dest.BankCode,
		RecipientCode: code,
	})
	if err != nil {
		s.log.Warn("failed to cache payout recipient", zap.String("reference", rec.Reference), zap.Error(err))
	}
	return code, nil
}

func (s *service) recordAttempt(ctx context.Context, reference string) (int, error) {
	var attempt int
	_, err := s.ledger.Resolve(ctx, reference, func(tx repositories.SettlementTx, rec *models.SettlementRecord) error {
		now := time.Now()
		rec.PayoutAttempts++
		rec.LastAttemptAt = &now
		attempt = rec.PayoutAttempts
		return tx.SaveSettlement(rec)
	})
	if err != nil {
		return 0, err
	}
	if attempt == 0 {
		return 0, apperrors.ErrInvalidTransition.WithMessage(
			fmt.Sprintf("withdrawal %s is already settled", reference))
	}
	return attempt, nil
}

func (s *service) Resolve(ctx context.Context, reference string, outcome provider.PaymentStatus, reason string) (*ledger.Result, error) {
	return s.resolve(ctx, reference, outcome, reason, "", "")
}

func (s *service) resolve(
	ctx context.Context,
	reference string,
	outcome provider.PaymentStatus,
	reason string,
	from models.Provider,
	providerRef string,
) (*ledger.Result, error) {
	res, err := s.ledger.Resolve(ctx, reference, func(tx repositories.SettlementTx, rec *models.SettlementRecord) error {
		if rec.Kind != models.KindWithdrawal {
			return apperrors.ErrSettlementNotFound
		}
		if from != "" && rec.Provider != from {
			return apperrors.ErrInvalidTransition.WithMessage(
				fmt.Sprintf("withdrawal %s belongs to %s", rec.Reference, rec.Provider))
		}
		refChanged := false
		if providerRef != "" && rec.ProviderReference == nil {
			rec.ProviderReference = &providerRef
			refChanged = true
		}

		switch outcome {
		case provider.StatusPaid:
			return s.ledger.CommitSettlement(tx, rec, models.StatusCompleted, ledger.NoMutation)
		case provider.StatusFailed:
			rec.FailureReason = reason
			return s.ledger.CommitSettlement(tx, rec, models.StatusFailed, ledger.RefundOf(rec.SettledAmount))
		}
		if refChanged {
			return tx.SaveSettlement(rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Applied {
		switch res.Record.Status {
		case models.StatusCompleted:
			s.notifier.Notify(ctx, notification.EventWithdrawalConfirmed, res.Record)
		case models.StatusFailed:
			s.log.Info("withdrawal refunded",
				zap.String("reference", res.Record.Reference),
				zap.String("amount", res.Record.SettledAmount.StringFixed(2)),
				zap.String("reason", res.Record.FailureReason),
			)
			s.notifier.Notify(ctx, notification.EventWithdrawalFailed, res.Record)
		}
	}
	return res, nil
}

func (s *service) HandleWebhook(ctx context.Context, ev *provider.SettlementEvent) (*ledger.Result, error) {
	if ev.Kind != models.KindWithdrawal {
		return nil, apperrors.Validation("%s is not a transfer event", ev.Event)
	}
	s.log.Info("transfer webhook",
		zap.String("provider", string(ev.Provider)),
		zap.String("event", ev.Event),
		zap.String("reference", ev.Ref()),
		zap.String("status", string(ev.Status)),
	)
	reason := ev.Reason
	if ev.Status == provider.StatusFailed && reason == "" {
		reason = ev.Event
	}
	return s.resolve(ctx, ev.Ref(), ev.Status, reason, ev.Provider, ev.ProviderReference)
}

func (s *service) RetrySweep(ctx context.Context, olderThan time.Duration, limit int) (*SweepReport, error) {
	records, _, err := s.repo.List(ctx, repositories.SettlementFilter{
		Kind:          models.KindWithdrawal,
		Status:        models.StatusPending,
		CreatedBefore: time.Now().Add(-olderThan),
		ExcludeHeld:   true,
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}

	report := &SweepReport{}
	for i := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		s.sweepOne(ctx, &records[i], report)
	}

	s.metrics.RecordSweep("withdrawal", report.Scanned)
	s.log.Info("withdrawal sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("completed", report.Completed),
		zap.Int("failed", report.Failed),
		zap.Int("reinitiated", report.Reinitiated),
		zap.Int("held", report.Held),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

func (s *service) sweepOne(ctx context.Context, rec *models.SettlementRecord, report *SweepReport) {
	log := s.log.With(zap.String("reference", rec.Reference))

	if err := s.ledger.Reconcile(ctx, rec.Reference); err != nil {
		if errors.Is(err, apperrors.ErrInconsistentState) {
			report.Held++
		} else {
			report.Errors++
			log.Warn("reconcile failed", zap.Error(err))
		}
		return
	}

	if s.config.SandboxAutoSettle {
		res, err := s.InitiatePayout(ctx, rec.Reference)
		s.count(report, res, err)
		return
	}

	pp, err := s.providers.Payout(rec.Provider)
	if err != nil {
		report.Errors++
		log.Warn("no payout provider", zap.Error(err))
		return
	}

	tr, err := pp.QueryTransfer(ctx, rec.Reference)
	switch {
	case errors.Is(err, apperrors.ErrTransferNotFound):
		res, err := s.InitiatePayout(ctx, rec.Reference)
		if err != nil {
			report.Errors++
			log.Warn("payout retry failed", zap.Error(err))
			return
		}
		report.Reinitiated++
		if res.Applied {
			s.count(report, res, nil)
		}
	case err != nil:
		report.Errors++
		log.Warn("transfer status query failed", zap.Error(err))
	default:
		res, err := s.apply(ctx, rec.Reference, tr, "")
		s.count(report, res, err)
	}
}

func (s *service) count(report *SweepReport, res *ledger.Result, err error) {
	switch {
	case err != nil:
		report.Errors++
		s.log.Warn("sweep resolution failed", zap.Error(err))
	case res.Applied && res.Record.Status == models.StatusCompleted:
		report.Completed++
	case res.Applied && res.Record.Status == models.StatusFailed:
		report.Failed++
	default:
		report.Pending++
	}
}

func errorCode(err error) string {
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal"
}
