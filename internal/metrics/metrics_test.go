package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsRecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.EnforceTotal.WithLabelValues("allow").Inc()
	m.EnforceTotal.WithLabelValues("deny").Inc()
	m.EnforceTotal.WithLabelValues("deny").Inc()
	m.ReloadsTotal.Inc()
	m.ParseErrorsTotal.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var enforceTotal float64
	for _, f := range families {
		if f.GetName() != "policy_enforce_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			enforceTotal += metric.GetCounter().GetValue()
		}
	}
	if enforceTotal != 3 {
		t.Errorf("policy_enforce_total = %v, want 3", enforceTotal)
	}
}
