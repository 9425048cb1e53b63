package handlers

import (
	"context"
	"errors"
	"net/http"

	apperrors "settlr/internal/errors"
	"settlr/internal/metrics"
	"settlr/internal/models"
	"settlr/internal/services/ledger"
	"settlr/internal/services/provider"
	"settlr/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// EventHandler applies an authenticated provider event.
type EventHandler interface {
	HandleWebhook(ctx context.Context, ev *provider.SettlementEvent) (*ledger.Result, error)
}

type WebhookHandler struct {
	providers   *provider.Registry
	deposits    EventHandler
	withdrawals EventHandler
	log         *zap.Logger
	metrics     metrics.Collector
}

func NewWebhookHandler(providers *provider.Registry, deposits, withdrawals EventHandler, log *zap.Logger, collector metrics.Collector) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	return &WebhookHandler{
		providers:   providers,
		deposits:    deposits,
		withdrawals: withdrawals,
		log:         log.Named("webhook"),
		metrics:     collector,
	}
}

// Handle returns the endpoint for one provider. The raw body is authenticated
// by the adapter before anything is decoded or applied.
func (h *WebhookHandler) Handle(name models.Provider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := h.providers.Get(name)
		if err != nil {
			return response.FromError(c, err)
		}

		ev, err := p.ParseWebhook(c.Body(), requestHeader(c))
		switch {
		case errors.Is(err, apperrors.ErrInvalidSignature):
			h.metrics.RecordWebhook(string(name), "invalid_signature")
			h.log.Warn("webhook signature rejected",
				zap.Bool("security_event", true),
				zap.String("provider", string(name)),
				zap.String("ip", c.IP()),
			)
			return response.FromError(c, err)
		case errors.Is(err, provider.ErrUnhandledEvent):
			h.metrics.RecordWebhook(string(name), "ignored")
			return c.JSON(fiber.Map{"status": "ignored"})
		case err != nil:
			h.metrics.RecordWebhook(string(name), "malformed")
			return response.FromError(c, err)
		}

		target := h.deposits
		if ev.Kind == models.KindWithdrawal {
			target = h.withdrawals
		}
		res, err := target.HandleWebhook(c.UserContext(), ev)
		if err != nil {
			h.metrics.RecordWebhook(string(name), "error")
			logFailure(h.log, "webhook not applied", err,
				zap.String("provider", string(name)),
				zap.String("event", ev.Event),
				zap.String("reference", ev.Ref()),
			)
			return response.FromError(c, err)
		}

		result := "duplicate"
		if res.Applied {
			result = "applied"
		}
		h.metrics.RecordWebhook(string(name), result)
		return c.JSON(fiber.Map{
			"status":    "ok",
			"reference": res.Record.Reference,
			"state":     res.Record.Status,
		})
	}
}

func requestHeader(c *fiber.Ctx) http.Header {
	header := make(http.Header)
	for k, values := range c.GetReqHeaders() {
		for _, v := range values {
			header.Add(k, v)
		}
	}
	return header
}
