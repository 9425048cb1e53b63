// Package metrics defines the collector interface the settlement services report to.
package metrics

import "time"

// Collector defines the interface for collecting settlement metrics
type Collector interface {
	// Settlement lifecycle
	RecordSettlement(kind, provider, status string)
	RecordLedgerMutation(entryKind string, amount float64)

	// Provider integration
	RecordProviderCall(provider, operation, result string, duration time.Duration)
	RecordWebhook(provider, result string)

	// Background processing
	RecordSweep(kind string, processed int)

	// Error metrics
	RecordError(operation, errType string)
}

// NoopCollector is a no-op implementation of Collector
type NoopCollector struct{}

func (NoopCollector) RecordSettlement(string, string, string) {}
func (NoopCollector) RecordLedgerMutation(string, float64) {}
func (NoopCollector) RecordProviderCall(string, string, string, time.Duration) {}
func (NoopCollector) RecordWebhook(string, string) {}
func (NoopCollector) RecordSweep(string, int) {}
func (NoopCollector) RecordError(string, string) {}
