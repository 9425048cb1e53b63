// Package status serves read-only settlement lookups. Terminal records never
// change again, so they are cached; in-flight records are always read through.
package status

import (
	"context"
	"time"

	apperrors "settlr/internal/errors"
	"settlr/internal/models"
	"settlr/internal/repositories"
	"settlr/internal/utils/cache"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Cache is the subset of the redis cache service used for status views.
type Cache interface {
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
}

// Viewer identifies who is asking.
type Viewer struct {
	UserID uint
	Admin  bool
}

type View struct {
	Reference       string                  `json:"reference"`
	Kind            models.SettlementKind   `json:"kind"`
	Provider        models.Provider         `json:"provider"`
	Status          models.SettlementStatus `json:"status"`
	UserID          uint                    `json:"user_id"`
	RequestedAmount decimal.Decimal         `json:"amount"`
	Fee             decimal.Decimal         `json:"fee"`
	TotalAmount     decimal.Decimal         `json:"total_amount"`
	FailureReason   string                  `json:"failure_reason,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	ResolvedAt      *time.Time              `json:"resolved_at,omitempty"`
}

type Service interface {
	Lookup(ctx context.Context, reference string, viewer Viewer) (*View, error)
}

type service struct {
	repo  repositories.SettlementRepository
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewService creates a status service. cache may be nil.
func NewService(repo repositories.SettlementRepository, c Cache, ttl time.Duration, log *zap.Logger) Service {
	if repo == nil {
		panic("repo is required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &service{repo: repo, cache: c, ttl: ttl, log: log.Named("status")}
}

func (s *service) Lookup(ctx context.Context, reference string, viewer Viewer) (*View, error) {
	key := cache.SettlementKey(reference)

	if s.cache != nil {
		var cached View
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("status cache read failed", zap.String("reference", reference), zap.Error(err))
		} else if found {
			return authorize(&cached, viewer)
		}
	}

	rec, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	view := toView(rec)

	if s.cache != nil && rec.Status.IsTerminal() {
		if err := s.cache.SetWithTTL(ctx, key, view, s.ttl); err != nil {
			s.log.Warn("status cache write failed", zap.String("reference", reference), zap.Error(err))
		}
	}
	return authorize(view, viewer)
}

func authorize(v *View, viewer Viewer) (*View, error) {
	if !viewer.Admin && v.UserID != viewer.UserID {
		return nil, apperrors.ErrForbidden
	}
	return v, nil
}

func toView(rec *models.SettlementRecord) *View {
	return &View{
		Reference:       rec.Reference,
		Kind:            rec.Kind,
		Provider:        rec.Provider,
		Status:          rec.Status,
		UserID:          rec.UserID,
		RequestedAmount: rec.RequestedAmount,
		Fee:             rec.Fee,
		TotalAmount:     rec.TotalAmount,
		FailureReason:   firstNonEmpty(rec.FailureReason, rec.RejectionReason),
		CreatedAt:       rec.CreatedAt,
		ResolvedAt:      rec.ResolvedAt,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
