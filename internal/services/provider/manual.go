package provider

import (
	"context"
	"net/http"

	apperrors "settlr/internal/errors"
	"settlr/internal/models"

	"github.com/shopspring/decimal"
)

type ManualConfig struct {
	BankName      string
	AccountNumber string
	AccountName   string
	FlatFee       decimal.Decimal
}

// Manual is the bank-transfer adapter. Settlement happens by admin decision,
// so it never reports an outcome of its own.
type Manual struct {
	cfg ManualConfig
}

var _ Provider = (*Manual)(nil)

func NewManual(cfg ManualConfig) *Manual {
	if cfg.FlatFee.IsZero() {
		cfg.FlatFee = DefaultManualFlatFee
	}
	return &Manual{cfg: cfg}
}

func (m *Manual) Name() models.Provider {
	return models.ProviderManual
}

func (m *Manual) Quote(amount decimal.Decimal) FeeQuote {
	return FlatQuote(amount, m.cfg.FlatFee)
}

// Instructions returns the static transfer details shown to users.
func (m *Manual) Instructions(reference string) *Instructions {
	return &Instructions{
		BankName:      m.cfg.BankName,
		AccountNumber: m.cfg.AccountNumber,
		AccountName:   m.cfg.AccountName,
		Reference:     reference,
		Note:          "Transfer the total amount and upload your proof of payment. Your wallet is credited once an admin confirms it.",
	}
}

func (m *Manual) Initiate(_ context.Context, req InitiateRequest) (*Initiation, error) {
	return &Initiation{Instructions: m.Instructions(req.Reference)}, nil
}

func (m *Manual) Verify(context.Context, *models.SettlementRecord) (PaymentStatus, error) {
	return StatusPending, nil
}

func (m *Manual) ParseWebhook([]byte, http.Header) (*SettlementEvent, error) {
	return nil, apperrors.ErrUnsupportedProvider.WithMessage("manual deposits have no webhooks")
}
