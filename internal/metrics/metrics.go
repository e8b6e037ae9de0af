package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion metrics
var (
	// Poll cycles by outcome
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holdings",
			Subsystem: "ingest",
			Name:      "cycles_total",
			Help:      "Total poll cycles",
		},
		[]string{"status"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "holdings",
			Subsystem: "ingest",
			Name:      "cycle_duration_seconds",
			Help:      "Poll cycle duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// Gate decisions per form type
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holdings",
			Subsystem: "ingest",
			Name:      "gate_decisions_total",
			Help:      "Filing gate decisions",
		},
		[]string{"form_type", "decision"},
	)

	// Filings by processing outcome
	FilingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holdings",
			Subsystem: "ingest",
			Name:      "filings_total",
			Help:      "Admitted filings by processing outcome",
		},
		[]string{"status"},
	)

	HoldingsWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "holdings",
			Subsystem: "ingest",
			Name:      "holdings_written_total",
			Help:      "Holding rows committed to the store",
		},
	)

	// Extraction strategy that produced each attachment's rows
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holdings",
			Subsystem: "ingest",
			Name:      "extractions_total",
			Help:      "Attachment extractions by strategy",
		},
		[]string{"strategy"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holdings",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notification deliveries per endpoint outcome",
		},
		[]string{"status"},
	)

	FeedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holdings",
			Subsystem: "feed",
			Name:      "requests_total",
			Help:      "Upstream feed requests",
		},
		[]string{"kind", "status"},
	)

	FeedCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holdings",
			Subsystem: "feed",
			Name:      "cache_total",
			Help:      "Feed page cache lookups",
		},
		[]string{"result"},
	)

	WatchListSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "holdings",
			Subsystem: "watchlist",
			Name:      "ciks",
			Help:      "Tracked CIKs in the current snapshot",
		},
	)

	LivenessPingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holdings",
			Subsystem: "health",
			Name:      "pings_total",
			Help:      "Liveness pings by outcome",
		},
		[]string{"status"},
	)
)

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCycle records a completed poll cycle
func RecordCycle(status string, durationSec float64) {
	CyclesTotal.WithLabelValues(status).Inc()
	CycleDuration.Observe(durationSec)
}

// RecordDecision records a gate decision
func RecordDecision(formType, decision string) {
	GateDecisionsTotal.WithLabelValues(formType, decision).Inc()
}

// RecordFiling records the outcome of processing an admitted filing
func RecordFiling(status string) {
	FilingsTotal.WithLabelValues(status).Inc()
}

// RecordHoldings records committed holding rows
func RecordHoldings(n int) {
	HoldingsWrittenTotal.Add(float64(n))
}

// RecordStrategy records which extraction strategy succeeded
func RecordStrategy(strategy string) {
	ExtractionsTotal.WithLabelValues(strategy).Inc()
}

// RecordNotify records one endpoint delivery
func RecordNotify(status string) {
	NotificationsTotal.WithLabelValues(status).Inc()
}

// RecordFeedRequest records an upstream request
func RecordFeedRequest(kind, status string) {
	FeedRequestsTotal.WithLabelValues(kind, status).Inc()
}

// RecordFeedCache records a page cache hit or miss
func RecordFeedCache(result string) {
	FeedCacheTotal.WithLabelValues(result).Inc()
}

// RecordWatchList records the current watch list size
func RecordWatchList(n int) {
	WatchListSize.Set(float64(n))
}

// RecordPing records a liveness ping
func RecordPing(status string) {
	LivenessPingsTotal.WithLabelValues(status).Inc()
}
