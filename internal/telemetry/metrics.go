package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/bloticlabs/arena-kiosk"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Login lifecycle metrics
	SessionsCreatedTotal metric.Int64Counter
	LoginsSucceededTotal metric.Int64Counter
	LoginsFailedTotal    metric.Int64Counter
	SessionsExpiredTotal metric.Int64Counter
	AutoLoginsTotal      metric.Int64Counter

	// Polling metrics
	PollTicksTotal     metric.Int64Counter
	PollErrorsTotal    metric.Int64Counter
	ActivePollingLoops metric.Int64UpDownCounter

	// Quota metrics
	PlaysConsumedTotal metric.Int64Counter
	QuotaErrorsTotal   metric.Int64Counter
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

	m.SessionsCreatedTotal, _ = meter.Int64Counter(
		"kiosk.sessions.created.total",
		metric.WithDescription("Total number of QR login sessions created"),
		metric.WithUnit("{session}"),
	)

	m.LoginsSucceededTotal, _ = meter.Int64Counter(
		"kiosk.logins.succeeded.total",
		metric.WithDescription("Total number of successful QR authentications"),
		metric.WithUnit("{login}"),
	)

	m.LoginsFailedTotal, _ = meter.Int64Counter(
		"kiosk.logins.failed.total",
		metric.WithDescription("Total number of failed authentication-success procedures"),
		metric.WithUnit("{login}"),
	)

	m.SessionsExpiredTotal, _ = meter.Int64Counter(
		"kiosk.sessions.expired.total",
		metric.WithDescription("Total number of QR sessions observed expired or lost"),
		metric.WithUnit("{session}"),
	)

	m.AutoLoginsTotal, _ = meter.Int64Counter(
		"kiosk.autologins.total",
		metric.WithDescription("Total number of identities restored from the persisted record"),
		metric.WithUnit("{login}"),
	)

	m.PollTicksTotal, _ = meter.Int64Counter(
		"kiosk.poll.ticks.total",
		metric.WithDescription("Total number of QR status poll checks performed"),
		metric.WithUnit("{tick}"),
	)

	m.PollErrorsTotal, _ = meter.Int64Counter(
		"kiosk.poll.errors.total",
		metric.WithDescription("Total number of poll checks that failed and were retried on the next tick"),
		metric.WithUnit("{error}"),
	)

	m.ActivePollingLoops, _ = meter.Int64UpDownCounter(
		"kiosk.poll.loops.active",
		metric.WithDescription("Number of active polling loops"),
		metric.WithUnit("{loop}"),
	)

	m.PlaysConsumedTotal, _ = meter.Int64Counter(
		"kiosk.plays.consumed.total",
		metric.WithDescription("Total number of plays consumed"),
		metric.WithUnit("{play}"),
	)

	m.QuotaErrorsTotal, _ = meter.Int64Counter(
		"kiosk.quota.errors.total",
		metric.WithDescription("Total number of quota queries or decrements that failed"),
		metric.WithUnit("{error}"),
	)

	return m
}
