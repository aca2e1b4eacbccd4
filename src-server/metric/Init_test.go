package metric

import (
	"testing"
	"time"

	"nlcal/src-server/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gathered maps every registered nlcal metric to its first sample value.
func gathered(t *testing.T) map[string]float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, family := range families {
		if len(family.GetMetric()) == 0 {
			continue
		}
		m := family.GetMetric()[0]
		switch {
		case m.GetCounter() != nil:
			values[family.GetName()] = m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			values[family.GetName()] = m.GetGauge().GetValue()
		}
	}
	return values
}

func TestInitRegistersAndUnregisters(t *testing.T) {
	for _, key := range []string{"CONFIG_FILE", "LLM_PROVIDER", "GEMINI_API_KEY_FREE", "METRIC_COLLECTION_INTERVAL"} {
		t.Setenv(key, "")
	}
	t.Setenv("GEMINI_API_KEY", "AIzaSyMetricTestKey0")
	config, err := utils.NewConfig()
	require.NoError(t, err)
	as := utils.NewAppState(config)

	Init(as)
	values := gathered(t)
	for _, name := range []string{
		"nlcal_database_read_microsec",
		"nlcal_database_write_microsec",
		"nlcal_extraction_latency_microsec",
		"nlcal_extraction_failures_total",
		"nlcal_events_built_total",
	} {
		assert.Contains(t, values, name)
	}
	// no database, no Discord session
	assert.NotContains(t, values, "nlcal_database_empty_read_microsec")
	assert.NotContains(t, values, "nlcal_discord_heartbeat_latency_microsec")

	as.MetricChans.ObserveBuild(2, 1)
	as.MetricChans.ObserveDatabaseWrite(1500 * time.Microsecond)
	require.Eventually(t, func() bool {
		values := gathered(t)
		return values["nlcal_events_built_total"] == 2 &&
			values["nlcal_events_skipped_total"] == 1 &&
			values["nlcal_database_write_microsec"] == 1500
	}, time.Second, 10*time.Millisecond)

	as.GracefulShutdown()
	require.Eventually(t, func() bool {
		_, ok := gathered(t)["nlcal_events_built_total"]
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestRegisterReturnsExistingCollector(t *testing.T) {
	const name = "nlcal_register_reuse_test"
	opts := prometheus.GaugeOpts{Name: name, Help: "reuse test"}

	first := register(prometheus.NewGauge(opts), name)
	t.Cleanup(func() { prometheus.Unregister(first) })

	second := register(prometheus.NewGauge(opts), name)
	assert.Same(t, first, second)

	second.Set(42)
	assert.Equal(t, float64(42), gathered(t)[name])
}
