package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("audit:stats_warmup").End(nil))
	cause := errors.New("boom")
	require.ErrorIs(t, m.Track("audit:stats_warmup").End(cause), cause)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("audit:stats_warmup", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("audit:stats_warmup", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("audit:stats_warmup")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("x").End(nil))
	m.AddWarmed("7", 3)
}

func TestAddWarmed(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddWarmed("7", 2)
	m.AddWarmed("7", 0)
	require.Equal(t, 2.0, testutil.ToFloat64(m.warmed.WithLabelValues("7")))
}
