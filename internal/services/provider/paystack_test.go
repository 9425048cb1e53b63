package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "settlr/internal/errors"
	"settlr/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaystackServer(t *testing.T, handler http.HandlerFunc) (*Paystack, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewPaystack(PaystackConfig{
		BaseURL:   srv.URL,
		SecretKey: "sk_test_123",
		Timeout:   200 * time.Millisecond,
	}, nil, nil)
	return p, srv
}

func TestPaystack_Initiate(t *testing.T) {
	var got map[string]interface{}
	p, _ := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"DEP-1"}}`))
	})

	started, err := p.Initiate(context.Background(), InitiateRequest{
		Reference:   "DEP-1",
		Amount:      decimal.RequireFromString("1022.49"),
		Email:       "ada@example.com",
		CallbackURL: "https://api.example.com/api/deposits/callback",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.paystack.com/abc", started.RedirectURL)
	assert.Equal(t, float64(102249), got["amount"])
	assert.Equal(t, "DEP-1", got["reference"])
	assert.Equal(t, "https://api.example.com/api/deposits/callback?reference=DEP-1", got["callback_url"])
}

func TestPaystack_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "server error is retryable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: apperrors.ErrProviderUnavailable,
		},
		{
			name: "client error is definitive",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
			},
			want: apperrors.ErrProviderRejected,
		},
		{
			name: "status false is definitive",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":false,"message":"Duplicate reference"}`))
			},
			want: apperrors.ErrProviderRejected,
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>`))
			},
			want: apperrors.ErrInvalidResponse,
		},
		{
			name: "slow provider times out",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(500 * time.Millisecond)
			},
			want: apperrors.ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newPaystackServer(t, tt.handler)
			_, err := p.Initiate(context.Background(), InitiateRequest{Reference: "DEP-1", Amount: decimal.NewFromInt(100)})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPaystack_Verify(t *testing.T) {
	for status, want := range map[string]PaymentStatus{
		"success":   StatusPaid,
		"abandoned": StatusFailed,
		"failed":    StatusFailed,
		"ongoing":   StatusPending,
	} {
		t.Run(status, func(t *testing.T) {
			p, _ := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transaction/verify/DEP-9", r.URL.Path)
				w.Write([]byte(`{"status":true,"data":{"status":"` + status + `","reference":"DEP-9"}}`))
			})
			got, err := p.Verify(context.Background(), &models.SettlementRecord{Reference: "DEP-9"})
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestPaystack_ParseWebhook(t *testing.T) {
	p := NewPaystack(PaystackConfig{SecretKey: "sk_test_123"}, nil, nil)
	body := []byte(`{"event":"transfer.failed","data":{"reference":"WD-1","status":"failed","transfer_code":"TRF_1","reason":"Could not credit"}}`)

	t.Run("valid signature", func(t *testing.T) {
		h := http.Header{}
		h.Set(PaystackSignatureHeader, Sign(body, "sk_test_123"))

		ev, err := p.ParseWebhook(body, h)
		require.NoError(t, err)
		assert.Equal(t, models.KindWithdrawal, ev.Kind)
		assert.Equal(t, StatusFailed, ev.Status)
		assert.Equal(t, "WD-1", ev.Reference)
		assert.Equal(t, "TRF_1", ev.ProviderReference)
	})

	t.Run("tampered body", func(t *testing.T) {
		h := http.Header{}
		h.Set(PaystackSignatureHeader, Sign(body, "sk_test_123"))

		tampered := []byte(`{"event":"transfer.success","data":{"reference":"WD-1","status":"success"}}`)
		_, err := p.ParseWebhook(tampered, h)
		assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)
	})

	t.Run("sandbox accepts unsigned", func(t *testing.T) {
		sandbox := NewPaystack(PaystackConfig{SecretKey: "sk_test_123", Sandbox: true}, nil, nil)
		ev, err := sandbox.ParseWebhook(body, http.Header{})
		require.NoError(t, err)
		assert.Equal(t, "WD-1", ev.Reference)
	})

	t.Run("unhandled event", func(t *testing.T) {
		other := []byte(`{"event":"subscription.create","data":{}}`)
		h := http.Header{}
		h.Set(PaystackSignatureHeader, Sign(other, "sk_test_123"))
		_, err := p.ParseWebhook(other, h)
		assert.ErrorIs(t, err, ErrUnhandledEvent)
	})
}

func TestPaystack_QueryTransferNotFound(t *testing.T) {
	p, _ := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":false,"message":"Transfer not found"}`))
	})

	_, err := p.QueryTransfer(context.Background(), "WD-404")
	assert.ErrorIs(t, err, apperrors.ErrTransferNotFound)
}

func TestPaystack_Transfer(t *testing.T) {
	var got map[string]interface{}
	p, _ := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfer", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":true,"data":{"transfer_code":"TRF_9","reference":"WD-9","status":"pending"}}`))
	})

	res, err := p.Transfer(context.Background(), TransferRequest{
		Reference: "WD-9",
		Amount:    decimal.RequireFromString("250.50"),
		Recipient: "RCP_1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, "TRF_9", res.ProviderReference)
	assert.Equal(t, float64(25050), got["amount"])
	assert.Equal(t, "WD-9", got["reference"])
}
