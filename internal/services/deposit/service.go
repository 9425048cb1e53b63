package deposit

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
	proofs    ProofStore
	notifier  notification.Notifier
	config    Config
	log       *zap.Logger
	metrics   metrics.Collector
}

// NewService creates a new deposit service
func NewService(
	repo repositories.SettlementRepository,
	ledgerSvc ledger.Service,
	providers *provider.Registry,
	proofs ProofStore,
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
		config.MinAmount = decimal.NewFromInt(100)
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
		proofs:    proofs,
		notifier:  notifier,
		config:    config,
		log:       log.Named("deposit"),
		metrics:   collector,
	}
}

func newReference() string {
	return "DEP-" + uuid.NewString()
}

func (s *service) validateAmount(amount decimal.Decimal) error {
	if amount.LessThan(s.config.MinAmount) {
		return apperrors.Validation("minimum deposit is %s", s.config.MinAmount.StringFixed(2))
	}
	if !s.config.MaxAmount.IsZero() && amount.GreaterThan(s.config.MaxAmount) {
		return apperrors.Validation("maximum deposit is %s", s.config.MaxAmount.StringFixed(2))
	}
	if !amount.Equal(amount.Round(2)) {
		return apperrors.Validation("amount must have at most two decimal places")
	}
	return nil
}

func (s *service) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	if err := s.validateAmount(in.Amount); err != nil {
		return nil, err
	}
	p, err := s.providers.Get(in.Provider)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	quote := p.Quote(in.Amount)
	rec := &models.SettlementRecord{
		Reference:       newReference(),
		Kind:            models.KindDeposit,
		UserID:          user.ID,
		Provider:        p.Name(),
		Status:          models.StatusInitiated,
		RequestedAmount: quote.Amount,
		Fee:             quote.Fee,
		TotalAmount:     quote.Total,
		SettledAmount:   quote.Amount,
	}

	if p.Name() == models.ProviderManual {
		return s.initiateManual(ctx, rec, in.Proof)
	}
	return s.initiateGateway(ctx, p, user, rec)
}

func (s *service) initiateManual(ctx context.Context, rec *models.SettlementRecord, proof []byte) (*InitiateResult, error) {
	ext, err := ValidateProof(proof)
	if err != nil {
		return nil, err
	}
	if s.proofs == nil {
		return nil, errors.New("proof storage is not configured")
	}
	key, err := s.proofs.Save(ctx, rec.Reference, ext, proof)
	if err != nil {
		return nil, err
	}

	rec.ProofOfPayment = key
	rec.Status = models.StatusAwaitingApproval
	err = s.repo.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
		return s.ledger.Open(tx, rec, ledger.NoMutation)
	})
	if err != nil {
		if derr := s.proofs.Delete(ctx, key); derr != nil {
			s.log.Warn("failed to remove orphaned proof", zap.String("key", key), zap.Error(derr))
		}
		return nil, err
	}

	s.log.Info("manual deposit submitted",
		zap.String("reference", rec.Reference),
		zap.Uint("user_id", rec.UserID),
		zap.String("total", rec.TotalAmount.StringFixed(2)),
	)
	s.notifier.Notify(ctx, notification.EventDepositAwaitingApproval, rec)

	instructions, _ := s.ManualInstructions()
	if instructions != nil {
		instructions.Reference = rec.Reference
	}
	res := resultFor(rec)
	res.Instructions = instructions
	return res, nil
}

func (s *service) initiateGateway(ctx context.Context, p provider.Provider, user *models.User, rec *models.SettlementRecord) (*InitiateResult, error) {
	err := s.repo.ExecuteInTransaction(ctx, func(tx repositories.SettlementTx) error {
		return s.ledger.Open(tx, rec, ledger.NoMutation)
	})
	if err != nil {
		return nil, err
	}

	started, initErr := p.Initiate(ctx, provider.InitiateRequest{
		Reference:   rec.Reference,
		Amount:      rec.TotalAmount,
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		CallbackURL: s.config.CallbackURL,
	})

	next := models.StatusPending
	if errors.Is(initErr, apperrors.ErrProviderRejected) {
		next = models.StatusFailed
	}

	res, err := s.ledger.Resolve(ctx, rec.Reference, func(tx repositories.SettlementTx, locked *models.SettlementRecord) error {
		if locked.Status != models.StatusInitiated {
			return nil
		}
		if started != nil && started.ProviderReference != "" {
			ref := started.ProviderReference
			locked.ProviderReference = &ref
		}
		if next == models.StatusFailed {
			locked.FailureReason = "provider rejected initiation"
		}
		return s.ledger.CommitSettlement(tx, locked, next, ledger.NoMutation)
	})
	if err != nil {
		s.log.Error("failed to record initiation outcome",
			zap.String("reference", rec.Reference),
			zap.Error(err),
		)
		return nil, err
	}

	if initErr != nil {
		s.metrics.RecordError("deposit_initiate", errorCode(initErr))
		s.log.Warn("gateway initiation failed",
			zap.String("reference", rec.Reference),
			zap.String("provider", string(rec.Provider)),
			zap.String("status", string(res.Record.Status)),
			zap.Error(initErr),
		)
		return nil, initErr
	}

	out := resultFor(res.Record)
	out.CheckoutURL = started.RedirectURL
	return out, nil
}

func resultFor(rec *models.SettlementRecord) *InitiateResult {
	return &InitiateResult{
		Reference:   rec.Reference,
		Provider:    rec.Provider,
		Status:      rec.Status,
		Amount:      rec.RequestedAmount,
		Fee:         rec.Fee,
		TotalAmount: rec.TotalAmount,
	}
}

func (s *service) Resolve(ctx context.Context, reference string, outcome provider.PaymentStatus) (*ledger.Result, error) {
	return s.resolve(ctx, reference, outcome, "", "")
}

// resolve applies a gateway outcome. from restricts which provider may settle the record.
func (s *service) resolve(ctx context.Context, reference string, outcome provider.PaymentStatus, from models.Provider, providerRef string) (*ledger.Result, error) {
	res, err := s.ledger.Resolve(ctx, reference, func(tx repositories.SettlementTx, rec *models.SettlementRecord) error {
		if rec.Kind != models.KindDeposit {
			return apperrors.ErrSettlementNotFound
		}
		if rec.Provider == models.ProviderManual {
			return apperrors.ErrInvalidTransition.WithMessage("manual deposits are settled by an admin")
		}
		if from != "" && rec.Provider != from {
			return apperrors.ErrInvalidTransition.WithMessage(
				fmt.Sprintf("deposit %s belongs to %s", rec.Reference, rec.Provider))
		}
		if providerRef != "" && rec.ProviderReference == nil {
			rec.ProviderReference = &providerRef
		}

		var (
			to models.SettlementStatus
			m  ledger.Mutation
		)
		switch outcome {
		case provider.StatusPaid:
			to, m = models.StatusCompleted, ledger.CreditOf(rec.SettledAmount)
		case provider.StatusFailed:
			to, m = models.StatusFailed, ledger.NoMutation
		default:
			return nil
		}

		// An outcome can arrive before the initiation response was recorded.
		if rec.Status == models.StatusInitiated {
			if err := s.ledger.CommitSettlement(tx, rec, models.StatusPending, ledger.NoMutation); err != nil {
				return err
			}
		}
		return s.ledger.CommitSettlement(tx, rec, to, m)
	})
	if err != nil {
		return nil, err
	}

	if res.Applied {
		switch res.Record.Status {
		case models.StatusCompleted:
			s.notifier.Notify(ctx, notification.EventDepositConfirmed, res.Record)
		case models.StatusFailed:
			s.notifier.Notify(ctx, notification.EventDepositFailed, res.Record)
		}
	}
	return res, nil
}

func (s *service) HandleCallback(ctx context.Context, reference string) (*ledger.Result, error) {
	rec, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if rec.Kind != models.KindDeposit {
		return nil, apperrors.ErrSettlementNotFound
	}
	if rec.Status.IsTerminal() {
		return &ledger.Result{Record: rec}, nil
	}
	if rec.Provider == models.ProviderManual {
		return nil, apperrors.ErrUnsupportedProvider.WithMessage("manual deposits have no payment callback")
	}

	p, err := s.providers.Get(rec.Provider)
	if err != nil {
		return nil, err
	}
	status, err := p.Verify(ctx, rec)
	if err != nil {
		s.metrics.RecordError("deposit_verify", errorCode(err))
		s.log.Warn("deposit verification failed",
			zap.String("reference", rec.Reference),
			zap.Error(err),
		)
		if errors.Is(err, apperrors.ErrTimeout) {
			return nil, err
		}
		return nil, apperrors.ErrProviderUnavailable.WithCause(err)
	}
	return s.resolve(ctx, rec.Reference, status, rec.Provider, "")
}

func (s *service) HandleWebhook(ctx context.Context, ev *provider.SettlementEvent) (*ledger.Result, error) {
	if ev.Kind != models.KindDeposit {
		return nil, apperrors.Validation("%s is not a deposit event", ev.Event)
	}
	s.log.Info("deposit webhook",
		zap.String("provider", string(ev.Provider)),
		zap.String("event", ev.Event),
		zap.String("reference", ev.Ref()),
		zap.String("status", string(ev.Status)),
	)
	return s.resolve(ctx, ev.Ref(), ev.Status, ev.Provider, ev.ProviderReference)
}

func (s *service) Approve(ctx context.Context, reference string, adminID uint) (*ledger.Result, error) {
	if err := s.requireManual(ctx, reference); err != nil {
		return nil, err
	}

	res, err := s.ledger.Resolve(ctx, reference, func(tx repositories.SettlementTx, rec *models.SettlementRecord) error {
		rec.ApprovedBy = &adminID
		return s.ledger.CommitSettlement(tx, rec, models.StatusApproved, ledger.CreditOf(rec.SettledAmount))
	})
	if err != nil {
		return nil, err
	}

	if res.Applied {
		s.log.Info("manual deposit approved",
			zap.String("reference", reference),
			zap.Uint("admin_id", adminID),
		)
		s.notifier.Notify(ctx, notification.EventDepositApproved, res.Record)
	}
	return res, nil
}

func (s *service) Reject(ctx context.Context, reference string, adminID uint, reason string) (*ledger.Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("a rejection reason is required")
	}
	if err := s.requireManual(ctx, reference); err != nil {
		return nil, err
	}

	res, err := s.ledger.Resolve(ctx, reference, func(tx repositories.SettlementTx, rec *models.SettlementRecord) error {
		rec.RejectedBy = &adminID
		rec.RejectionReason = reason
		return s.ledger.CommitSettlement(tx, rec, models.StatusRejected, ledger.NoMutation)
	})
	if err != nil {
		return nil, err
	}

	if res.Applied {
		s.log.Info("manual deposit rejected",
			zap.String("reference", reference),
			zap.Uint("admin_id", adminID),
			zap.String("reason", reason),
		)
		s.notifier.Notify(ctx, notification.EventDepositRejected, res.Record)
	}
	return res, nil
}

func (s *service) requireManual(ctx context.Context, reference string) error {
	rec, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if rec.Kind != models.KindDeposit || rec.Provider != models.ProviderManual {
		return apperrors.ErrInvalidTransition.WithMessage("only manual deposits can be approved or rejected")
	}
	return nil
}

func (s *service) ListAwaitingApproval(ctx context.Context, limit, offset int) ([]models.SettlementRecord, int64, error) {
	return s.repo.List(ctx, repositories.SettlementFilter{
		Kind:     models.KindDeposit,
		Status:   models.StatusAwaitingApproval,
		Provider: models.ProviderManual,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *service) ManualInstructions() (*provider.Instructions, error) {
	m, ok := s.providers.Manual()
	if !ok {
		return nil, apperrors.ErrUnsupportedProvider.WithMessage("manual deposits are not enabled")
	}
	return m.Instructions(""), nil
}

func (s *service) ReverifyPending(ctx context.Context, olderThan time.Duration, limit int) (*ReverifyReport, error) {
	records, _, err := s.repo.List(ctx, repositories.SettlementFilter{
		Kind:          models.KindDeposit,
		Status:        models.StatusPending,
		CreatedBefore: time.Now().Add(-olderThan),
		ExcludeHeld:   true,
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deposits: %w", err)
	}

	report := &ReverifyReport{}
	for i := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rec := &records[i]
		if rec.Provider == models.ProviderManual {
			continue
		}
		report.Scanned++

		p, err := s.providers.Get(rec.Provider)
		if err != nil {
			report.Errors++
			continue
		}
		status, err := p.Verify(ctx, rec)
		if err != nil {
			report.Errors++
			s.log.Warn("reverify failed", zap.String("reference", rec.Reference), zap.Error(err))
			continue
		}
		res, err := s.resolve(ctx, rec.Reference, status, rec.Provider, "")
		if err != nil {
			report.Errors++
			s.log.Warn("reverify resolve failed", zap.String("reference", rec.Reference), zap.Error(err))
			continue
		}
		switch {
		case res.Applied && res.Record.Status == models.StatusCompleted:
			report.Completed++
		case res.Applied && res.Record.Status == models.StatusFailed:
			report.Failed++
		default:
			report.Pending++
		}
	}

	s.metrics.RecordSweep("deposit", report.Scanned)
	return report, nil
}

func errorCode(err error) string {
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal"
}
