package audit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the audit trail.
type Metrics struct {
	appends  *prometheus.CounterVec
	failures prometheus.Counter
	cache    *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the audit metrics against registerer. When registerer
// is nil the default Prometheus registerer is used once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func (m *Metrics) observeAppend(status Status, err error) {
	if m == nil {
		return
	}
	outcome := "stored"
	if err != nil {
		outcome = "dropped"
		m.failures.Inc()
	}
	m.appends.WithLabelValues(string(status), outcome).Inc()
}

func (m *Metrics) observeCache(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	appends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_audit_appends_total",
		Help: "Audit append attempts partitioned by entry status and outcome.",
	}, []string{"status", "outcome"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_audit_append_failures_total",
		Help: "Audit entries that could not be persisted.",
	})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_audit_stats_cache_total",
		Help: "Activity summary cache lookups by result.",
	}, []string{"result"})
	registerer.MustRegister(appends, failures, cache)
	return &Metrics{appends: appends, failures: failures, cache: cache}
}
