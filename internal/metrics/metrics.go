// Package metrics holds the enforcer's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics recorded by an Enforcer. Pass to
// NewEnforcer via WithMetrics; an Enforcer built without one records
// nothing.
type Metrics struct {
	EnforceTotal     *prometheus.CounterVec
	ReloadsTotal     prometheus.Counter
	ParseErrorsTotal prometheus.Counter
}

// NewMetrics creates and registers the enforcer's metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EnforceTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "policy",
				Name:      "enforce_total",
				Help:      "Total policy enforcement decisions",
			},
			[]string{"result"}, // result=allow/deny
		),
		ReloadsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "policy",
				Name:      "reloads_total",
				Help:      "Total successful policy file reloads",
			},
		),
		ParseErrorsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "policy",
				Name:      "parse_errors_total",
				Help:      "Total rules that failed to parse and were compiled to an always-deny check",
			},
		),
	}
}
