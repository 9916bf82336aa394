package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestComponentRegistry_ReusesExistingCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := NewComponentRegistryWith(reg, "prover", "actor")
	b := NewComponentRegistryWith(reg, "prover", "actor")

	c1 := a.NewCounterVec(prometheus.CounterOpts{Name: "actions_total", Help: "h"}, []string{"kind"})
	c2 := b.NewCounterVec(prometheus.CounterOpts{Name: "actions_total", Help: "h"}, []string{"kind"})

	c1.WithLabelValues("prove").Inc()
	c2.WithLabelValues("prove").Inc()

	require.Same(t, c1, c2)
	require.InDelta(t, 2, testutil.ToFloat64(c1.WithLabelValues("prove")), 0)
}

func TestComponentRegistry_PrefixesNames(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	g := NewComponentRegistryWith(reg, "prover", "gate").NewGauge(prometheus.GaugeOpts{Name: "in_use", Help: "h"})
	g.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "prover_gate_in_use", families[0].GetName())
}
