// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Classification outcomes.
const (
	OutcomeBuy       = "buy"
	OutcomeSell      = "sell"
	OutcomeIgnore    = "ignore"
	OutcomeDuplicate = "duplicate"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Webhook metrics
	WebhookBatches        *prometheus.CounterVec
	WebhookBatchLatency   prometheus.Histogram
	RecordsClassified     *prometheus.CounterVec
	RecordsMissingDecimal prometheus.Counter

	// Fanout metrics
	EventsBelowThreshold prometheus.Counter
	EventsPublished      *prometheus.CounterVec
	EventsDropped        *prometheus.CounterVec
	FanoutQueueDepth     prometheus.Gauge
	Subscribers          prometheus.Gauge

	// Price metrics
	PriceRefreshes *prometheus.CounterVec
	SolPriceUSD    prometheus.Gauge

	// Holder metrics
	HolderLookups *prometheus.CounterVec
	HolderCount   prometheus.Gauge

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Dedup metrics
	DedupSize prometheus.Gauge

	// Health metrics
	LastSuccessfulWebhook prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "swap_feed"
	}

	return &Metrics{
		WebhookBatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "batches_total",
			Help:      "Total number of webhook batches by status",
		}, []string{"status"}),
		WebhookBatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "batch_duration_seconds",
			Help:      "Webhook batch processing latency in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		RecordsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "records_total",
			Help:      "Total number of transaction records by classification outcome",
		}, []string{"outcome"}),
		RecordsMissingDecimal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "records_missing_decimals_total",
			Help:      "Swap records whose token transfer carried no decimals",
		}),

		EventsBelowThreshold: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "events_below_threshold_total",
			Help:      "Swap events not published because they were below the significance threshold",
		}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "events_published_total",
			Help:      "Total number of events delivered per sink",
		}, []string{"sink"}),
		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped per sink and reason",
		}, []string{"sink", "reason"}),
		FanoutQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "queue_depth",
			Help:      "Events waiting for delivery",
		}),
		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "subscribers",
			Help:      "Connected WebSocket subscribers",
		}),

		PriceRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "refreshes_total",
			Help:      "SOL price refresh attempts by status",
		}, []string{"status"}),
		SolPriceUSD: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "sol_usd",
			Help:      "Last known SOL price in USD",
		}),

		HolderLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holders",
			Name:      "lookups_total",
			Help:      "Holder count lookups by result (hit, refresh, stale, error)",
		}, []string{"result"}),
		HolderCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "holders",
			Name:      "count",
			Help:      "Last computed distinct holder count",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),

		DedupSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "signatures",
			Help:      "Signatures currently remembered by the deduplicator",
		}),

		LastSuccessfulWebhook: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_webhook_timestamp",
			Help:      "Unix timestamp of last successfully processed webhook batch",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordWebhookBatch records a processed webhook batch.
func RecordWebhookBatch(status string, d time.Duration) {
	DefaultMetrics.WebhookBatches.WithLabelValues(status).Inc()
	DefaultMetrics.WebhookBatchLatency.Observe(d.Seconds())
	if status == "ok" {
		DefaultMetrics.LastSuccessfulWebhook.SetToCurrentTime()
	}
}

// RecordOutcome increments the classification outcome counter.
func RecordOutcome(outcome string) {
	DefaultMetrics.RecordsClassified.WithLabelValues(outcome).Inc()
}

// RecordMissingDecimals flags a swap whose token amount was used unscaled.
func RecordMissingDecimals() {
	DefaultMetrics.RecordsMissingDecimal.Inc()
}

// RecordBelowThreshold counts an event filtered by the significance threshold.
func RecordBelowThreshold() {
	DefaultMetrics.EventsBelowThreshold.Inc()
}

// RecordPublished counts an event delivered to a sink.
func RecordPublished(sink string) {
	DefaultMetrics.EventsPublished.WithLabelValues(sink).Inc()
}

// RecordDropped counts an event a sink could not deliver.
func RecordDropped(sink, reason string) {
	DefaultMetrics.EventsDropped.WithLabelValues(sink, reason).Inc()
}

// UpdateQueueDepth sets the fanout queue depth gauge.
func UpdateQueueDepth(n int) {
	DefaultMetrics.FanoutQueueDepth.Set(float64(n))
}

// UpdateSubscribers sets the subscriber gauge.
func UpdateSubscribers(n int) {
	DefaultMetrics.Subscribers.Set(float64(n))
}

// RecordPriceRefresh records a price refresh attempt.
func RecordPriceRefresh(price float64, err error) {
	if err != nil {
		DefaultMetrics.PriceRefreshes.WithLabelValues("error").Inc()
		return
	}
	DefaultMetrics.PriceRefreshes.WithLabelValues("ok").Inc()
	DefaultMetrics.SolPriceUSD.Set(price)
}

// RecordHolderLookup records a holder cache lookup result.
func RecordHolderLookup(result string) {
	DefaultMetrics.HolderLookups.WithLabelValues(result).Inc()
}

// UpdateHolderCount sets the holder count gauge.
func UpdateHolderCount(n int) {
	DefaultMetrics.HolderCount.Set(float64(n))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// UpdateDedupSize sets the dedup size gauge.
func UpdateDedupSize(n int) {
	DefaultMetrics.DedupSize.Set(float64(n))
}
