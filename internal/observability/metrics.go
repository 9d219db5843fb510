package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all client metrics:
// - Latency: request round-trip times
// - Traffic: requests, submissions, poll cycles
// - Errors: request failures, gate rejections, failed jobs
// - Saturation: jobs currently tracked by the poller
type Metrics struct {
	meter metric.Meter

	// Request metrics (Latency, Traffic, Errors)
	RequestDuration    metric.Float64Histogram
	RequestsTotal      metric.Int64Counter
	RequestErrorsTotal metric.Int64Counter
	GateBlockedTotal   metric.Int64Counter

	// Version gate state
	VersionMismatchState metric.Int64Gauge

	// Job metrics (Traffic, Errors, Saturation)
	JobsSubmitted metric.Int64Counter
	JobsFinished  metric.Int64Counter
	JobsTracked   metric.Int64UpDownCounter

	// Poller metrics
	PollCycles metric.Int64Counter
	PollErrors metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("scribe")
	m := &Metrics{meter: meter}

	m.RequestDuration, err = meter.Float64Histogram(
		"client_request_duration_seconds",
		metric.WithDescription("Request round-trip latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RequestsTotal, err = meter.Int64Counter(
		"client_requests_total",
		metric.WithDescription("Total number of requests sent to the server"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RequestErrorsTotal, err = meter.Int64Counter(
		"client_request_errors_total",
		metric.WithDescription("Total number of failed requests (transport, decode, or non-2xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.GateBlockedTotal, err = meter.Int64Counter(
		"client_gate_blocked_total",
		metric.WithDescription("Requests rejected locally by the version gate without network contact"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.VersionMismatchState, err = meter.Int64Gauge(
		"client_version_mismatch",
		metric.WithDescription("1 while a server version mismatch is active, 0 otherwise"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsSubmitted, err = meter.Int64Counter(
		"jobs_submitted_total",
		metric.WithDescription("Total number of transcription jobs submitted"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsFinished, err = meter.Int64Counter(
		"jobs_finished_total",
		metric.WithDescription("Total number of jobs observed reaching a terminal state"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTracked, err = meter.Int64UpDownCounter(
		"jobs_tracked",
		metric.WithDescription("Number of jobs currently tracked by the poller (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollCycles, err = meter.Int64Counter(
		"poll_cycles_total",
		metric.WithDescription("Total number of reconciliation passes"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollErrors, err = meter.Int64Counter(
		"poll_errors_total",
		metric.WithDescription("Per-job fetch failures during reconciliation (retried next tick)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordRequest records one request round trip.
func (m *Metrics) RecordRequest(ctx context.Context, method, endpoint string, statusCode int, durationSeconds float64, failed bool) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		endpointAttr(endpoint),
		statusAttr(statusCode),
	)

	m.RequestDuration.Record(ctx, durationSeconds, attrs)
	m.RequestsTotal.Add(ctx, 1, attrs)

	if failed {
		m.RequestErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordGateBlocked records a request rejected locally by the version gate.
func (m *Metrics) RecordGateBlocked(ctx context.Context, endpoint string) {
	m.GateBlockedTotal.Add(ctx, 1, metric.WithAttributes(endpointAttr(endpoint)))
}

// RecordVersionMismatch records the current gate state.
func (m *Metrics) RecordVersionMismatch(ctx context.Context, mismatched bool) {
	var v int64
	if mismatched {
		v = 1
	}
	m.VersionMismatchState.Record(ctx, v)
}

// RecordJobSubmitted records a successful job submission.
func (m *Metrics) RecordJobSubmitted(ctx context.Context) {
	m.JobsSubmitted.Add(ctx, 1)
}

// RecordJobTracked records a job entering the tracked set, either by
// registration or by adoption from the listing recovery path.
func (m *Metrics) RecordJobTracked(ctx context.Context) {
	m.JobsTracked.Add(ctx, 1)
}

// RecordJobFinished records a job reaching a terminal state.
func (m *Metrics) RecordJobFinished(ctx context.Context, outcome string) {
	m.JobsFinished.Add(ctx, 1, metric.WithAttributes(outcomeAttr(outcome)))
}

// RecordJobsCleared records terminal jobs removed from the tracked set.
func (m *Metrics) RecordJobsCleared(ctx context.Context, n int) {
	m.JobsTracked.Add(ctx, -int64(n))
}

// RecordPollCycle records one reconciliation pass.
func (m *Metrics) RecordPollCycle(ctx context.Context) {
	m.PollCycles.Add(ctx, 1)
}

// RecordPollError records a per-job fetch failure within a pass.
func (m *Metrics) RecordPollError(ctx context.Context) {
	m.PollErrors.Add(ctx, 1)
}
