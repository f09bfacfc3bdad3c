package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ResolutionsTotal.WithLabelValues(OutcomeFound).Inc()
	m.ResolutionsTotal.WithLabelValues(OutcomeFound).Inc()
	m.PairsParsedTotal.Add(3)

	if got := testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues(OutcomeFound)); got != 2 {
		t.Errorf("found resolutions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PairsParsedTotal); got != 3 {
		t.Errorf("pairs parsed = %v, want 3", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}
