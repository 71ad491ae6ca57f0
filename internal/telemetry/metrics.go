package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/clientportal"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Relay metrics
	RelayRequestsTotal metric.Int64Counter
	RelayErrorsTotal   metric.Int64Counter
	RateLimitedTotal   metric.Int64Counter
	UpstreamDuration   metric.Float64Histogram

	// Stock news refresh
	StockNewsRowsWritten metric.Int64Counter

	// Newsletter delivery
	EmailsSentTotal   metric.Int64Counter
	EmailsFailedTotal metric.Int64Counter

	// Dashboard
	ForcedSignOutsTotal metric.Int64Counter
	PopupsShownTotal    metric.Int64Counter
	ActiveSessions      metric.Int64UpDownCounter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.RelayRequestsTotal, _ = meter.Int64Counter(
		"portal.relay.requests.total",
		metric.WithDescription("Total number of relay invocations"),
		metric.WithUnit("{request}"),
	)

	m.RelayErrorsTotal, _ = meter.Int64Counter(
		"portal.relay.errors.total",
		metric.WithDescription("Total number of relay invocations that ended in an error response"),
		metric.WithUnit("{error}"),
	)

	m.RateLimitedTotal, _ = meter.Int64Counter(
		"portal.relay.rate_limited.total",
		metric.WithDescription("Total number of chat requests denied by the local rate limiter"),
		metric.WithUnit("{request}"),
	)

	m.UpstreamDuration, _ = meter.Float64Histogram(
		"portal.upstream.duration",
		metric.WithDescription("Duration of upstream provider calls"),
		metric.WithUnit("ms"),
		// answers are bounded at 60s
		metric.WithExplicitBucketBoundaries(250, 500, 1000, 2500, 5000, 10000, 20000, 30000, 45000, 60000),
	)

	m.StockNewsRowsWritten, _ = meter.Int64Counter(
		"portal.stock_news.rows.total",
		metric.WithDescription("Total number of stock news rows written by refreshes"),
		metric.WithUnit("{row}"),
	)

	m.EmailsSentTotal, _ = meter.Int64Counter(
		"portal.newsletter.emails.sent.total",
		metric.WithDescription("Total number of newsletter emails delivered"),
		metric.WithUnit("{email}"),
	)

	m.EmailsFailedTotal, _ = meter.Int64Counter(
		"portal.newsletter.emails.failed.total",
		metric.WithDescription("Total number of newsletter emails that failed after retries"),
		metric.WithUnit("{email}"),
	)

	m.ForcedSignOutsTotal, _ = meter.Int64Counter(
		"portal.sessions.forced_sign_outs.total",
		metric.WithDescription("Total number of sessions signed out after inactivity"),
		metric.WithUnit("{session}"),
	)

	m.PopupsShownTotal, _ = meter.Int64Counter(
		"portal.popups.shown.total",
		metric.WithDescription("Total number of popups selected for display"),
		metric.WithUnit("{popup}"),
	)

	m.ActiveSessions, _ = meter.Int64UpDownCounter(
		"portal.sessions.active",
		metric.WithDescription("Number of browser sessions held by the portal"),
		metric.WithUnit("{session}"),
	)

	return m
}
