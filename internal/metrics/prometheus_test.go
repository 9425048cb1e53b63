package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusCollector(reg)

	m.RecordSettlement("deposit", "gateway_a", "completed")
	m.RecordSettlement("deposit", "gateway_a", "completed")
	m.RecordLedgerMutation("debit", -250)
	m.RecordProviderCall("gateway_b", "verify", "ok", 20*time.Millisecond)
	m.RecordWebhook("gateway_a", "invalid_signature")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.settlementsTotal.WithLabelValues("deposit", "gateway_a", "completed")))
	assert.Equal(t, float64(250), testutil.ToFloat64(m.ledgerVolume.WithLabelValues("debit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.webhooksTotal.WithLabelValues("gateway_a", "invalid_signature")))
}

func TestNoopCollectorSatisfiesInterface(t *testing.T) {
	var c Collector = NoopCollector{}
	c.RecordError("resolve", "INCONSISTENT_STATE")
}
