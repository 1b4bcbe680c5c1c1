package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FramesSent.WithLabelValues("ping").Inc()
	m.MergeOutcomes.WithLabelValues("appended").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("ping")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MergeOutcomes.WithLabelValues("appended")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewWithoutRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil).Reconnects.Inc()
		New(nil).Reconnects.Inc()
	})
}
