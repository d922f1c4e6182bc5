package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gathered returns the value of the sample of family name whose labels include want.
func gathered(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.PrefixLookup("breaches", "ok")
	m.CacheResult("hit")
	m.ProviderResult("heuristic", "clean")
	m.Verdict("safe", time.Second)
	m.DatasetPublished("passwords", 1, nil)
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PrefixLookup("breaches", "ok")
	m.PrefixLookup("breaches", "ok")
	m.CacheResult("miss")
	m.ProviderResult("dnsbl", "unchecked")
	m.Verdict("malicious", 150*time.Millisecond)
	m.DatasetPublished("passwords", 42, nil)
	m.DatasetPublished("passwords", 0, errors.New("malformed"))

	assert.Equal(t, 2.0, gathered(t, reg, "hashguard_prefix_lookups_total", map[string]string{"dataset": "breaches", "outcome": "ok"}))
	assert.Equal(t, 1.0, gathered(t, reg, "hashguard_reputation_cache_total", map[string]string{"result": "miss"}))
	assert.Equal(t, 1.0, gathered(t, reg, "hashguard_provider_results_total", map[string]string{"provider": "dnsbl", "verdict": "unchecked"}))
	assert.Equal(t, 1.0, gathered(t, reg, "hashguard_verdicts_total", map[string]string{"verdict": "malicious"}))
	assert.Equal(t, 1.0, gathered(t, reg, "hashguard_evaluate_duration_seconds", nil))
	assert.Equal(t, 42.0, gathered(t, reg, "hashguard_dataset_records", map[string]string{"dataset": "passwords"}))
	assert.Equal(t, 1.0, gathered(t, reg, "hashguard_dataset_publish_total", map[string]string{"dataset": "passwords", "outcome": "rejected"}))
}
