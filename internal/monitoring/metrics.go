package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the harvest pipeline. A nil
// *Metrics is valid and records nothing, which keeps tests quiet.
type Metrics struct {
	PagesFetched       *prometheus.CounterVec
	BlocksDetected     prometheus.Counter
	ListingsExtracted  *prometheus.CounterVec
	ExtractionFailures *prometheus.CounterVec
	HarvestDuration    *prometheus.HistogramVec
	TargetsProcessed   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		PagesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_pages_fetched_total",
			Help: "The total number of pages fetched, by page kind.",
		}, []string{"kind"}), // "index" or "detail"
		BlocksDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvester_blocks_detected_total",
			Help: "The total number of anti-automation block responses.",
		}),
		ListingsExtracted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_listings_extracted_total",
			Help: "The total number of listing records extracted, by site.",
		}, []string{"domain"}),
		ExtractionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_extraction_failures_total",
			Help: "The total number of failed detail extractions, by reason.",
		}, []string{"reason"}), // "exhausted", "missing_id"
		HarvestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_target_duration_seconds",
			Help:    "Wall time spent harvesting one target end to end.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}, []string{"domain"}),
		TargetsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_targets_processed_total",
			Help: "The total number of targets finished, by terminal status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncPageFetched(kind string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncBlocked() {
	if m == nil {
		return
	}
	m.BlocksDetected.Inc()
}

func (m *Metrics) IncListing(domain string) {
	if m == nil {
		return
	}
	m.ListingsExtracted.WithLabelValues(domain).Inc()
}

func (m *Metrics) IncExtractionFailure(reason string) {
	if m == nil {
		return
	}
	m.ExtractionFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveTargetDuration(domain string, d time.Duration) {
	if m == nil {
		return
	}
	m.HarvestDuration.WithLabelValues(domain).Observe(d.Seconds())
}

func (m *Metrics) IncTargetProcessed(status string) {
	if m == nil {
		return
	}
	m.TargetsProcessed.WithLabelValues(status).Inc()
}
