// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollsTotal        prometheus.Counter
	FetchErrors       prometheus.Counter
	StreamsEnded      prometheus.Counter
	QuotaStops        prometheus.Counter
	EventsMatched     prometheus.Counter
	BatchesDelivered  prometheus.Counter
	DeliveriesFailed  prometheus.Counter
	DuplicatesSkipped prometheus.Counter

	// Histograms (seconds)
	FetchDuration    prometheus.Observer
	DeliveryDuration prometheus.Observer

	// Gauges
	StreamsWatchedGauge   prometheus.Gauge
	GatewayConnectedGauge prometheus.Gauge // 1=connected,0=down
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_polls_total", Help: "Number of chat page fetches attempted"})
		FetchErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_fetch_errors_total", Help: "Number of chat page fetches that failed transiently"})
		StreamsEnded = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_streams_ended_total", Help: "Number of watched streams that ended upstream"})
		QuotaStops = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_quota_stops_total", Help: "Number of streams dropped after an upstream quota signal"})
		EventsMatched = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_events_matched_total", Help: "Number of chat events that matched a subscriber's prefixes"})
		BatchesDelivered = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_batches_delivered_total", Help: "Number of batches posted to destinations"})
		DeliveriesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_delivery_failures_total", Help: "Number of batch posts that failed and were dropped"})
		DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_duplicates_skipped_total", Help: "Number of batches suppressed by the dedup ledger"})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_fetch_duration_seconds", Help: "Chat page fetch duration seconds", Buckets: prometheus.DefBuckets})
		DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_delivery_duration_seconds", Help: "Destination post duration seconds", Buckets: prometheus.DefBuckets})
		StreamsWatchedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_streams_watched", Help: "Current number of tracked streams"})
		GatewayConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_gateway_connected", Help: "Command gateway connected=1 down=0"})
	})
}

// SetStreamsWatched records the current tracked stream count.
func SetStreamsWatched(n int) {
	if StreamsWatchedGauge != nil {
		StreamsWatchedGauge.Set(float64(n))
	}
}

// UpdateGatewayGauge sets gauge to 1 if connected else 0.
func UpdateGatewayGauge(connected bool) {
	if GatewayConnectedGauge != nil {
		if connected {
			GatewayConnectedGauge.Set(1)
		} else {
			GatewayConnectedGauge.Set(0)
		}
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
