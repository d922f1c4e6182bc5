package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	prefixLookups   *prometheus.CounterVec
	cacheResults    *prometheus.CounterVec
	providerResults *prometheus.CounterVec
	verdicts        *prometheus.CounterVec
	evaluateSeconds prometheus.Histogram
	datasetRecords  *prometheus.GaugeVec
	datasetReloads  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves them
// unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		prefixLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hashguard_prefix_lookups_total",
			Help: "Total number of range queries by dataset and outcome",
		}, []string{"dataset", "outcome"}),
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hashguard_reputation_cache_total",
			Help: "Reputation cache lookups by result (hit, miss, stale, shared)",
		}, []string{"result"}),
		providerResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hashguard_provider_results_total",
			Help: "Signal provider outcomes by provider and verdict",
		}, []string{"provider", "verdict"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hashguard_verdicts_total",
			Help: "Computed URL verdicts",
		}, []string{"verdict"}),
		evaluateSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hashguard_evaluate_duration_seconds",
			Help:    "Time spent computing a URL verdict",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		datasetRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hashguard_dataset_records",
			Help: "Records in the active snapshot of each dataset",
		}, []string{"dataset"}),
		datasetReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hashguard_dataset_publish_total",
			Help: "Dataset publish attempts by outcome",
		}, []string{"dataset", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.prefixLookups,
			m.cacheResults,
			m.providerResults,
			m.verdicts,
			m.evaluateSeconds,
			m.datasetRecords,
			m.datasetReloads,
		)
	}
	return m
}

func (m *Metrics) PrefixLookup(dataset, outcome string) {
	if m == nil {
		return
	}
	m.prefixLookups.WithLabelValues(dataset, outcome).Inc()
}

func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.cacheResults.WithLabelValues(result).Inc()
}

// ProviderResult counts one provider outcome; verdict is "unchecked" when the
// provider gave no usable answer.
func (m *Metrics) ProviderResult(provider, verdict string) {
	if m == nil {
		return
	}
	m.providerResults.WithLabelValues(provider, verdict).Inc()
}

func (m *Metrics) Verdict(verdict string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(verdict).Inc()
	m.evaluateSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) DatasetPublished(dataset string, records int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.datasetReloads.WithLabelValues(dataset, "rejected").Inc()
		return
	}
	m.datasetReloads.WithLabelValues(dataset, "published").Inc()
	m.datasetRecords.WithLabelValues(dataset).Set(float64(records))
}
