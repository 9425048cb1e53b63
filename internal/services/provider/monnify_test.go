package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	apperrors "settlr/internal/errors"
	"settlr/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type monnifyStub struct {
	logins  int32
	expired int32
	mux     *http.ServeMux
}

func newMonnifyStub(t *testing.T) (*Monnify, *monnifyStub) {
	t.Helper()
	stub := &monnifyStub{mux: http.NewServeMux()}
	stub.mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "MK_TEST", user)
		assert.Equal(t, "secret", pass)
		atomic.AddInt32(&stub.logins, 1)
		w.Write([]byte(`{"requestSuccessful":true,"responseBody":{"accessToken":"tok","expiresIn":3600}}`))
	})
	srv := httptest.NewServer(stub.mux)
	t.Cleanup(srv.Close)

	m := NewMonnify(MonnifyConfig{
		BaseURL:      srv.URL,
		APIKey:       "MK_TEST",
		SecretKey:    "secret",
		ContractCode: "123",
	}, NewMemoryTokenCache(DefaultRefreshSkew), nil, nil)
	return m, stub
}

func TestMonnify_InitiateSendsDecimalAmountAndCachesToken(t *testing.T) {
	m, stub := newMonnifyStub(t)
	var got map[string]json.RawMessage
	stub.mux.HandleFunc("/api/v1/merchant/transactions/init-transaction", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"requestSuccessful":true,"responseBody":{"transactionReference":"MNFY|1","paymentReference":"DEP-1","checkoutUrl":"https://checkout.monnify.com/1"}}`))
	})

	for i := 0; i < 2; i++ {
		started, err := m.Initiate(context.Background(), InitiateRequest{
			Reference: "DEP-1",
			Amount:    decimal.RequireFromString("1022.49"),
			Email:     "ada@example.com",
			Name:      "Ada",
		})
		require.NoError(t, err)
		assert.Equal(t, "MNFY|1", started.ProviderReference)
		assert.Equal(t, "https://checkout.monnify.com/1", started.RedirectURL)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.logins))
	assert.Equal(t, "1022.49", string(got["amount"]))
	assert.Equal(t, `"DEP-1"`, string(got["paymentReference"]))
}

func TestMonnify_RetriesOnceWithFreshTokenAfter401(t *testing.T) {
	m, stub := newMonnifyStub(t)
	stub.mux.HandleFunc("/api/v2/transactions/", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&stub.expired, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"requestSuccessful":true,"responseBody":{"paymentStatus":"PAID"}}`))
	})

	ref := "MNFY|2"
	status, err := m.Verify(context.Background(), &models.SettlementRecord{Reference: "DEP-2", ProviderReference: &ref})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&stub.logins))
}

func TestMonnify_VerifyStatuses(t *testing.T) {
	for s, want := range map[string]PaymentStatus{
		"PAID":     StatusPaid,
		"PENDING":  StatusPending,
		"REVERSED": StatusFailed,
		"EXPIRED":  StatusFailed,
	} {
		t.Run(s, func(t *testing.T) {
			m, stub := newMonnifyStub(t)
			stub.mux.HandleFunc("/api/v2/merchant/transactions/query", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "DEP-3", r.URL.Query().Get("paymentReference"))
				w.Write([]byte(`{"requestSuccessful":true,"responseBody":{"paymentStatus":"` + s + `"}}`))
			})
			got, err := m.Verify(context.Background(), &models.SettlementRecord{Reference: "DEP-3"})
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestMonnify_ParseWebhook(t *testing.T) {
	m := NewMonnify(MonnifyConfig{SecretKey: "secret"}, nil, nil, nil)

	deposit := []byte(`{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{"transactionReference":"MNFY|1","paymentReference":"DEP-1","paymentStatus":"PAID"}}`)
	h := http.Header{}
	h.Set(MonnifySignatureHeader, Sign(deposit, "secret"))
	ev, err := m.ParseWebhook(deposit, h)
	require.NoError(t, err)
	assert.Equal(t, models.KindDeposit, ev.Kind)
	assert.Equal(t, StatusPaid, ev.Status)
	assert.Equal(t, "DEP-1", ev.Ref())

	reversed := []byte(`{"eventType":"REVERSED_DISBURSEMENT","eventData":{"reference":"WD-1","transactionReference":"MFDS|1","status":"REVERSED"}}`)
	h.Set(MonnifySignatureHeader, Sign(reversed, "secret"))
	ev, err = m.ParseWebhook(reversed, h)
	require.NoError(t, err)
	assert.Equal(t, models.KindWithdrawal, ev.Kind)
	assert.Equal(t, StatusFailed, ev.Status)

	h.Set(MonnifySignatureHeader, "deadbeef")
	_, err = m.ParseWebhook(reversed, h)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)
}

func TestMonnify_QueryTransferNotFound(t *testing.T) {
	m, stub := newMonnifyStub(t)
	stub.mux.HandleFunc("/api/v2/disbursements/single/summary", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"requestSuccessful":false,"responseMessage":"Could not find transfer with reference WD-1","responseCode":"99"}`))
	})

	_, err := m.QueryTransfer(context.Background(), "WD-1")
	assert.ErrorIs(t, err, apperrors.ErrTransferNotFound)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(NewManual(ManualConfig{}), NewPaystack(PaystackConfig{}, nil, nil))

	_, err := reg.Get(models.ProviderGatewayB)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedProvider)

	_, err = reg.Payout(models.ProviderManual)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedProvider)

	pp, err := reg.Payout(models.ProviderGatewayA)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGatewayA, pp.Name())
}
