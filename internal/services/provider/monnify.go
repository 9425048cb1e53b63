package provider

import (
	"context"
	"encoding/json"
	"errors"
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
	MonnifySignatureHeader = "monnify-signature"
	DefaultMonnifyBaseURL  = "https://sandbox.monnify.com"
)

type MonnifyConfig struct {
	BaseURL             string
	APIKey              string
	SecretKey           string
	ContractCode        string
	SourceAccountNumber string
	RedirectURL         string
	FeePercent          decimal.Decimal
	Timeout             time.Duration
	Sandbox             bool
}

// Monnify is the GatewayB adapter. Bearer tokens come from the shared TokenCache.
type Monnify struct {
	cfg    MonnifyConfig
	api    *apiClient
	tokens TokenCache
	log    *zap.Logger
}

var _ PayoutProvider = (*Monnify)(nil)

func NewMonnify(cfg MonnifyConfig, tokens TokenCache, log *zap.Logger, collector metrics.Collector) *Monnify {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMonnifyBaseURL
	}
	if cfg.FeePercent.IsZero() {
		cfg.FeePercent = DefaultGatewayPercent
	}
	if tokens == nil {
		tokens = NewMemoryTokenCache(DefaultRefreshSkew)
	}
	api := newAPIClient(models.ProviderGatewayB, cfg.BaseURL, cfg.Timeout, log, collector)
	return &Monnify{cfg: cfg, api: api, tokens: tokens, log: api.log}
}

func (m *Monnify) Name() models.Provider {
	return models.ProviderGatewayB
}

func (m *Monnify) Quote(amount decimal.Decimal) FeeQuote {
	return GatewayQuote(amount, m.cfg.FeePercent)
}

type monnifyEnvelope struct {
	RequestSuccessful bool            `json:"requestSuccessful"`
	ResponseMessage   string          `json:"responseMessage"`
	ResponseCode      string          `json:"responseCode"`
	ResponseBody      json.RawMessage `json:"responseBody"`
}

func (m *Monnify) tokenKey() string {
	return string(models.ProviderGatewayB) + ":" + m.cfg.APIKey
}

func (m *Monnify) login(ctx context.Context) (Token, error) {
	resp, err := m.api.do(ctx, apiRequest{
		op:     "login",
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		auth: func(req *http.Request) {
			req.SetBasicAuth(m.cfg.APIKey, m.cfg.SecretKey)
		},
	})
	if err != nil {
		return Token{}, err
	}

	var body struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}
	if err := m.unwrap("login", resp, &body); err != nil {
		return Token{}, err
	}
	if body.AccessToken == "" {
		return Token{}, apperrors.ErrInvalidResponse.WithCause(errors.New("login: missing accessToken"))
	}
	return Token{
		Value:     body.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}

func (m *Monnify) unwrap(op string, resp *apiResponse, dest interface{}) error {
	var env monnifyEnvelope
	if err := m.api.decode(op, resp.body, &env); err != nil {
		return err
	}
	if !env.RequestSuccessful {
		return apperrors.ErrProviderRejected.WithCause(fmt.Errorf("%s: %s", op, env.ResponseMessage))
	}
	if dest != nil {
		return m.api.decode(op, env.ResponseBody, dest)
	}
	return nil
}

// call sends an authenticated request, retrying once with a fresh token on 401.
func (m *Monnify) call(ctx context.Context, op, method, path string, body, dest interface{}) (*apiResponse, error) {
	var (
		resp *apiResponse
		err  error
	)
	for attempt := 0; attempt < 2; attempt++ {
		var token string
		token, err = m.tokens.Token(ctx, m.tokenKey(), m.login)
		if err != nil {
			return nil, err
		}
		resp, err = m.api.do(ctx, apiRequest{
			op:     op,
			method: method,
			path:   path,
			body:   body,
			auth: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+token)
			},
		})
		if resp != nil && resp.status == http.StatusUnauthorized && attempt == 0 {
			m.tokens.Invalidate(ctx, m.tokenKey())
			continue
		}
		break
	}
	if err != nil {
		return resp, err
	}
	return resp, m.unwrap(op, resp, dest)
}

func (m *Monnify) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	redirect := m.cfg.RedirectURL
	if redirect == "" {
		redirect = req.CallbackURL
	}
	body := map[string]interface{}{
		"amount":             json.Number(req.Amount.StringFixed(2)),
		"customerName":       req.Name,
		"customerEmail":      req.Email,
		"paymentReference":   req.Reference,
		"paymentDescription": "Account Deposit",
		"currencyCode":       "NGN",
		"contractCode":       m.cfg.ContractCode,
		"redirectUrl":        withQuery(redirect, "paymentReference", req.Reference),
		"paymentMethods":     []string{"CARD", "ACCOUNT_TRANSFER"},
	}

	var out struct {
		TransactionReference string `json:"transactionReference"`
		PaymentReference     string `json:"paymentReference"`
		CheckoutURL          string `json:"checkoutUrl"`
	}
	if _, err := m.call(ctx, "init_transaction", http.MethodPost, "/api/v1/merchant/transactions/init-transaction", body, &out); err != nil {
		return nil, err
	}
	if out.TransactionReference == "" {
		return nil, apperrors.ErrInvalidResponse.WithCause(errors.New("init_transaction: missing transactionReference"))
	}
	return &Initiation{
		ProviderReference: out.TransactionReference,
		RedirectURL:       out.CheckoutURL,
	}, nil
}

func (m *Monnify) Verify(ctx context.Context, rec *models.SettlementRecord) (PaymentStatus, error) {
	path := "/api/v2/merchant/transactions/query?paymentReference=" + url.QueryEscape(rec.Reference)
	if ref := rec.ProviderRef(); ref != "" {
		path = "/api/v2/transactions/" + url.PathEscape(ref)
	}

	var out struct {
		PaymentStatus string `json:"paymentStatus"`
	}
	if _, err := m.call(ctx, "verify", http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return monnifyPaymentStatus(out.PaymentStatus), nil
}

func monnifyPaymentStatus(s string) PaymentStatus {
	switch strings.ToUpper(s) {
	case "PAID", "OVERPAID":
		return StatusPaid
	case "FAILED", "REVERSED", "EXPIRED", "ABANDONED", "CANCELLED":
		return StatusFailed
	default:
		return StatusPending
	}
}

func monnifyTransferStatus(s string) PaymentStatus {
	switch strings.ToUpper(s) {
	case "SUCCESS", "SUCCESSFUL", "COMPLETED":
		return StatusPaid
	case "FAILED", "REVERSED", "EXPIRED", "CANCELLED":
		return StatusFailed
	default:
		return StatusPending
	}
}

func (m *Monnify) ParseWebhook(body []byte, header http.Header) (*SettlementEvent, error) {
	if !ValidSignature(body, header.Get(MonnifySignatureHeader), m.cfg.SecretKey) {
		if !m.cfg.Sandbox {
			return nil, apperrors.ErrInvalidSignature
		}
		m.log.Warn("accepting unsigned webhook in sandbox mode")
	}

	var payload struct {
		EventType string `json:"eventType"`
		EventData struct {
			TransactionReference string `json:"transactionReference"`
			PaymentReference     string `json:"paymentReference"`
			PaymentStatus        string `json:"paymentStatus"`
			Reference            string `json:"reference"`
			Status               string `json:"status"`
		} `json:"eventData"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.Validation("malformed webhook payload")
	}

	d := payload.EventData
	ev := &SettlementEvent{
		Provider: models.ProviderGatewayB,
		Event:    payload.EventType,
	}
	switch payload.EventType {
	case "SUCCESSFUL_TRANSACTION":
		ev.Kind = models.KindDeposit
		ev.Reference = d.PaymentReference
		ev.ProviderReference = d.TransactionReference
		ev.Status = monnifyPaymentStatus(d.PaymentStatus)
		if d.PaymentStatus == "" {
			ev.Status = StatusPaid
		}
	case "SUCCESSFUL_DISBURSEMENT":
		ev.Kind = models.KindWithdrawal
		ev.Reference = d.Reference
		ev.ProviderReference = d.TransactionReference
		ev.Status = StatusPaid
	case "FAILED_DISBURSEMENT", "REVERSED_DISBURSEMENT":
		ev.Kind = models.KindWithdrawal
		ev.Reference = d.Reference
		ev.ProviderReference = d.TransactionReference
		ev.Status = StatusFailed
		ev.Reason = strings.ToLower(payload.EventType)
	default:
		return nil, ErrUnhandledEvent
	}
	if ev.Ref() == "" {
		return nil, apperrors.Validation("webhook payload has no reference")
	}
	return ev, nil
}

// EnsureRecipient needs no provider call: Monnify disburses straight to the account.
func (m *Monnify) EnsureRecipient(_ context.Context, dest models.PayoutDestination) (string, error) {
	if dest.IsZero() {
		return "", apperrors.ErrMissingPayoutDestination
	}
	return dest.AccountNumber, nil
}

type monnifyDisbursement struct {
	Reference            string `json:"reference"`
	TransactionReference string `json:"transactionReference"`
	Status               string `json:"status"`
}

func (m *Monnify) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	body := map[string]interface{}{
		"amount":                   json.Number(req.Amount.StringFixed(2)),
		"reference":                req.Reference,
		"narration":                req.Narration,
		"destinationBankCode":      req.Destination.BankCode,
		"destinationAccountNumber": req.Destination.AccountNumber,
		"currency":                 "NGN",
		"sourceAccountNumber":      m.cfg.SourceAccountNumber,
	}
	var out monnifyDisbursement
	if _, err := m.call(ctx, "disburse", http.MethodPost, "/api/v2/disbursements/single", body, &out); err != nil {
		return nil, err
	}
	return &TransferResult{
		ProviderReference: out.TransactionReference,
		Status:            monnifyTransferStatus(out.Status),
	}, nil
}

func (m *Monnify) QueryTransfer(ctx context.Context, reference string) (*TransferResult, error) {
	var out monnifyDisbursement
	path := "/api/v2/disbursements/single/summary?reference=" + url.QueryEscape(reference)
	resp, err := m.call(ctx, "disbursement_summary", http.MethodGet, path, nil, &out)
	if err != nil {
		if resp != nil && errors.Is(err, apperrors.ErrProviderRejected) && notFound(resp) {
			return nil, apperrors.ErrTransferNotFound.WithCause(err)
		}
		return nil, err
	}
	return &TransferResult{
		ProviderReference: out.TransactionReference,
		Status:            monnifyTransferStatus(out.Status),
	}, nil
}
