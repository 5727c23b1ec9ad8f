package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "assemblyos"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	productionRuns     *prometheus.CounterVec
	productionDuration prometheus.Histogram
	unitsProduced      prometheus.Counter
	feasibilityChecks  *prometheus.CounterVec
	orderTransitions   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		productionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "production_runs_total",
			Help:      "Production runs by outcome.",
		}, []string{"outcome"}),
		productionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "production_duration_seconds",
			Help:      "Wall time of a production unit of work, lock waits included.",
			Buckets:   prometheus.DefBuckets,
		}),
		unitsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_produced_total",
			Help:      "Finished units credited by committed production runs.",
		}),
		feasibilityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feasibility_checks_total",
			Help:      "Advisory feasibility evaluations by verdict.",
		}, []string{"feasible"}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status changes by target status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.productionRuns, m.productionDuration, m.unitsProduced, m.feasibilityChecks, m.orderTransitions)
	return m
}

func (m *Metrics) ObserveProduction(outcome string, d time.Duration, units int64) {
	if m == nil {
		return
	}
	m.productionRuns.WithLabelValues(outcome).Inc()
	m.productionDuration.Observe(d.Seconds())
	if units > 0 {
		m.unitsProduced.Add(float64(units))
	}
}

func (m *Metrics) ObserveFeasibility(feasible bool) {
	if m == nil {
		return
	}
	label := "false"
	if feasible {
		label = "true"
	}
	m.feasibilityChecks.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(status).Inc()
}
