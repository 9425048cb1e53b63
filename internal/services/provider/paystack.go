package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "settlr/internal/errors"
	"settlr/internal/metrics"
	"settlr/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	PaystackSignatureHeader = "x-paystack-signature"
	DefaultPaystackBaseURL  = "https://api.paystack.co"
)

type PaystackConfig struct {
	BaseURL   string
	SecretKey string
	// WebhookSecret defaults to SecretKey.
	WebhookSecret string
	FeePercent    decimal.Decimal
	Timeout       time.Duration
	// Sandbox accepts webhooks whose signature does not verify.
	Sandbox bool
}

// Paystack is the GatewayA adapter.
type Paystack struct {
	cfg PaystackConfig
	api *apiClient
	log *zap.Logger
}

var _ PayoutProvider = (*Paystack)(nil)

func NewPaystack(cfg PaystackConfig, log *zap.Logger, collector metrics.Collector) *Paystack {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultPaystackBaseURL
	}
	if cfg.WebhookSecret == "" {
		cfg.WebhookSecret = cfg.SecretKey
	}
	if cfg.FeePercent.IsZero() {
		cfg.FeePercent = DefaultGatewayPercent
	}
	api := newAPIClient(models.ProviderGatewayA, cfg.BaseURL, cfg.Timeout, log, collector)
	return &Paystack{cfg: cfg, api: api, log: api.log}
}

func (p *Paystack) Name() models.Provider {
	return models.ProviderGatewayA
}

func (p *Paystack) Quote(amount decimal.Decimal) FeeQuote {
	return GatewayQuote(amount, p.cfg.FeePercent)
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *Paystack) bearer(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
}

// call runs a request and unwraps the envelope into data.
func (p *Paystack) call(ctx context.Context, op, method, path string, body, data interface{}) (*apiResponse, error) {
	resp, err := p.api.do(ctx, apiRequest{op: op, method: method, path: path, body: body, auth: p.bearer})
	if err != nil {
		return resp, err
	}

	var env paystackEnvelope
	if err := p.api.decode(op, resp.body, &env); err != nil {
		return resp, err
	}
	if !env.Status {
		return resp, apperrors.ErrProviderRejected.WithCause(fmt.Errorf("%s: %s", op, env.Message))
	}
	if data != nil {
		if err := p.api.decode(op, env.Data, data); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func (p *Paystack) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	body := map[string]interface{}{
		"email":     req.Email,
		"amount":    toMinorUnits(req.Amount),
		"reference": req.Reference,
		"currency":  "NGN",
	}
	if req.CallbackURL != "" {
		body["callback_url"] = withQuery(req.CallbackURL, "reference", req.Reference)
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if _, err := p.call(ctx, "initialize", http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}
	if data.AuthorizationURL == "" {
		return nil, apperrors.ErrInvalidResponse.WithCause(fmt.Errorf("initialize: missing authorization_url"))
	}
	return &Initiation{RedirectURL: data.AuthorizationURL}, nil
}

func (p *Paystack) Verify(ctx context.Context, rec *models.SettlementRecord) (PaymentStatus, error) {
	var data struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
	}
	path := "/transaction/verify/" + url.PathEscape(rec.Reference)
	if _, err := p.call(ctx, "verify", http.MethodGet, path, nil, &data); err != nil {
		return "", err
	}
	return paystackChargeStatus(data.Status), nil
}

func paystackChargeStatus(s string) PaymentStatus {
	switch strings.ToLower(s) {
	case "success":
		return StatusPaid
	case "failed", "abandoned", "reversed":
		return StatusFailed
	default:
		return StatusPending
	}
}

func paystackTransferStatus(s string) PaymentStatus {
	switch strings.ToLower(s) {
	case "success":
		return StatusPaid
	case "failed", "reversed", "rejected", "abandoned", "blocked":
		return StatusFailed
	default:
		return StatusPending
	}
}

func (p *Paystack) ParseWebhook(body []byte, header http.Header) (*SettlementEvent, error) {
	if !ValidSignature(body, header.Get(PaystackSignatureHeader), p.cfg.WebhookSecret) {
		if !p.cfg.Sandbox {
			return nil, apperrors.ErrInvalidSignature
		}
		p.log.Warn("accepting unsigned webhook in sandbox mode")
	}

	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference    string `json:"reference"`
			Status       string `json:"status"`
			TransferCode string `json:"transfer_code"`
			Reason       string `json:"reason"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.Validation("malformed webhook payload")
	}

	ev := &SettlementEvent{
		Provider:  models.ProviderGatewayA,
		Event:     payload.Event,
		Reference: payload.Data.Reference,
		Reason:    payload.Data.Reason,
	}
	switch payload.Event {
	case "charge.success":
		ev.Kind = models.KindDeposit
		ev.Status = StatusPaid
	case "transfer.success":
		ev.Kind = models.KindWithdrawal
		ev.Status = StatusPaid
		ev.ProviderReference = payload.Data.TransferCode
	case "transfer.failed", "transfer.reversed":
		ev.Kind = models.KindWithdrawal
		ev.Status = StatusFailed
		ev.ProviderReference = payload.Data.TransferCode
	default:
		return nil, ErrUnhandledEvent
	}
	if ev.Reference == "" {
		return nil, apperrors.Validation("webhook payload has no reference")
	}
	return ev, nil
}

func (p *Paystack) EnsureRecipient(ctx context.Context, dest models.PayoutDestination) (string, error) {
	body := map[string]interface{}{
		"type":           "nuban",
		"name":           dest.AccountName,
		"account_number": dest.AccountNumber,
		"bank_code":      dest.BankCode,
		"currency":       "NGN",
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if _, err := p.call(ctx, "create_recipient", http.MethodPost, "/transferrecipient", body, &data); err != nil {
		return "", err
	}
	if data.RecipientCode == "" {
		return "", apperrors.ErrInvalidResponse.WithCause(fmt.Errorf("create_recipient: missing recipient_code"))
	}
	return data.RecipientCode, nil
}

type paystackTransfer struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
}

func (p *Paystack) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	body := map[string]interface{}{
		"source":    "balance",
		"amount":    toMinorUnits(req.Amount),
		"recipient": req.Recipient,
		"reference": req.Reference,
		"reason":    req.Narration,
		"currency":  "NGN",
	}
	var data paystackTransfer
	if _, err := p.call(ctx, "transfer", http.MethodPost, "/transfer", body, &data); err != nil {
		return nil, err
	}
	return &TransferResult{
		ProviderReference: data.TransferCode,
		Status:            paystackTransferStatus(data.Status),
		Reason:            data.Reason,
	}, nil
}

func (p *Paystack) QueryTransfer(ctx context.Context, reference string) (*TransferResult, error) {
	var data paystackTransfer
	resp, err := p.call(ctx, "verify_transfer", http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &data)
	if err != nil {
		if resp != nil && notFound(resp) {
			return nil, apperrors.ErrTransferNotFound.WithCause(err)
		}
		return nil, err
	}
	return &TransferResult{
		ProviderReference: data.TransferCode,
		Status:            paystackTransferStatus(data.Status),
		Reason:            data.Reason,
	}, nil
}

// notFound reports whether an answered call says the resource does not exist.
func notFound(resp *apiResponse) bool {
	if resp.status == http.StatusNotFound {
		return true
	}
	if resp.status >= 500 {
		return false
	}
	msg := strings.ToLower(string(resp.body))
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find")
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
