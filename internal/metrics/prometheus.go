package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	settlementsTotal     *prometheus.CounterVec
	ledgerMutationsTotal *prometheus.CounterVec
	ledgerVolume         *prometheus.CounterVec
	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	webhooksTotal        *prometheus.CounterVec
	sweepProcessed       *prometheus.CounterVec
	sweepLastRunUnix     *prometheus.GaugeVec
	errorsTotal          *prometheus.CounterVec
}

// NewPrometheusCollector registers the settlement metrics on reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		settlementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlr",
				Subsystem: "settlement",
				Name:      "transitions_total",
				Help:      "Settlement status transitions partitioned by kind, provider and resulting status.",
			},
			[]string{"kind", "provider", "status"},
		),
		ledgerMutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlr",
				Subsystem: "ledger",
				Name:      "mutations_total",
				Help:      "Ledger balance mutations partitioned by entry kind.",
			},
			[]string{"kind"},
		),
		ledgerVolume: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlr",
				Subsystem: "ledger",
				Name:      "volume_total",
				Help:      "Absolute amount moved through the ledger partitioned by entry kind.",
			},
			[]string{"kind"},
		),
		providerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlr",
				Subsystem: "provider",
				Name:      "calls_total",
				Help:      "Outbound provider calls partitioned by provider, operation and result.",
			},
			[]string{"provider", "operation", "result"},
		),
		providerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "settlr",
				Subsystem: "provider",
				Name:      "call_duration_seconds",
				Help:      "Outbound provider call latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		webhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlr",
				Subsystem: "webhook",
				Name:      "received_total",
				Help:      "Inbound webhooks partitioned by provider and result.",
			},
			[]string{"provider", "result"},
		),
		sweepProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlr",
				Subsystem: "sweep",
				Name:      "processed_total",
				Help:      "Records visited by the reconciliation sweeps.",
			},
			[]string{"kind"},
		),
		sweepLastRunUnix: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "settlr",
				Subsystem: "sweep",
				Name:      "last_run_unix",
				Help:      "Unix time of the most recent sweep run.",
			},
			[]string{"kind"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlr",
				Name:      "errors_total",
				Help:      "Errors partitioned by operation and error code.",
			},
			[]string{"operation", "type"},
		),
	}
}

func (m *PrometheusCollector) RecordSettlement(kind, provider, status string) {
	m.settlementsTotal.WithLabelValues(kind, provider, status).Inc()
}

func (m *PrometheusCollector) RecordLedgerMutation(entryKind string, amount float64) {
	m.ledgerMutationsTotal.WithLabelValues(entryKind).Inc()
	if amount < 0 {
		amount = -amount
	}
	m.ledgerVolume.WithLabelValues(entryKind).Add(amount)
}

func (m *PrometheusCollector) RecordProviderCall(provider, operation, result string, duration time.Duration) {
	m.providerCallsTotal.WithLabelValues(provider, operation, result).Inc()
	m.providerCallDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

func (m *PrometheusCollector) RecordWebhook(provider, result string) {
	m.webhooksTotal.WithLabelValues(provider, result).Inc()
}

func (m *PrometheusCollector) RecordSweep(kind string, processed int) {
	m.sweepProcessed.WithLabelValues(kind).Add(float64(processed))
	m.sweepLastRunUnix.WithLabelValues(kind).Set(float64(time.Now().Unix()))
}

func (m *PrometheusCollector) RecordError(operation, errType string) {
	m.errorsTotal.WithLabelValues(operation, errType).Inc()
}
