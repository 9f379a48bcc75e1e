// Package observe holds the OpenTelemetry metric instruments of the drive-in
// assistant and the Prometheus bridge that exposes them on /metrics.
//
// Components receive a *Metrics explicitly. DefaultMetrics builds one from
// the global meter provider, which is a no-op until InitProvider runs, so
// tests that do not care about metrics can use it freely. Tests that assert
// on metrics should call NewMetrics with a ManualReader-backed provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "drive-in"

// Metrics holds all instruments. The OTel types are safe for concurrent use.
type Metrics struct {
	// Utterances counts handled utterances by intent.
	Utterances metric.Int64Counter

	// ChatDuration tracks chat-completion latency.
	ChatDuration metric.Float64Histogram

	// STTDuration tracks transcription latency.
	STTDuration metric.Float64Histogram

	// ProviderErrors counts collaborator failures by provider and kind.
	ProviderErrors metric.Int64Counter

	// LookupMisses counts deal names that were not on the menu.
	LookupMisses metric.Int64Counter

	// Tickets counts orders dispatched to the kitchen.
	Tickets metric.Int64Counter

	// TicketValue records the total of each dispatched order in rupees.
	TicketValue metric.Int64Histogram

	// ActiveSessions is 1 while a customer conversation is open.
	ActiveSessions metric.Int64UpDownCounter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

var ticketBuckets = []float64{
	250, 500, 1000, 2000, 4000, 8000,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Utterances, err = m.Int64Counter("drivein.utterances",
		metric.WithDescription("Handled customer utterances by intent."),
	); err != nil {
		return nil, err
	}
	if met.ChatDuration, err = m.Float64Histogram("drivein.chat.duration",
		metric.WithDescription("Latency of chat completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("drivein.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("drivein.provider.errors",
		metric.WithDescription("Collaborator failures by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.LookupMisses, err = m.Int64Counter("drivein.menu.lookup_misses",
		metric.WithDescription("Requested deals that were not on the menu."),
	); err != nil {
		return nil, err
	}
	if met.Tickets, err = m.Int64Counter("drivein.tickets",
		metric.WithDescription("Orders dispatched to the kitchen."),
	); err != nil {
		return nil, err
	}
	if met.TicketValue, err = m.Int64Histogram("drivein.ticket.value",
		metric.WithDescription("Order total in rupees."),
		metric.WithExplicitBucketBoundaries(ticketBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("drivein.active_sessions",
		metric.WithDescription("Open customer conversations."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide Metrics built from
// otel.GetMeterProvider on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) RecordUtterance(ctx context.Context, intent string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

func (m *Metrics) RecordChat(ctx context.Context, provider string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, "chat")
	}
	m.ChatDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

func (m *Metrics) RecordSTT(ctx context.Context, elapsed time.Duration, err error) {
	if err != nil {
		m.RecordProviderError(ctx, "stt", "transcribe")
	}
	m.STTDuration.Record(ctx, elapsed.Seconds())
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

func (m *Metrics) RecordLookupMiss(ctx context.Context, intent string) {
	m.LookupMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

func (m *Metrics) RecordTicket(ctx context.Context, total int) {
	m.Tickets.Add(ctx, 1)
	m.TicketValue.Record(ctx, int64(total))
}
