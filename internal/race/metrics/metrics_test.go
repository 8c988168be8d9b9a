package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/hybridrace/internal/race/access"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Check(access.Read)
		m.TicksScanned(3)
		m.Pruned()
		m.LockSuppressed()
		m.Duplicate()
		m.Reported()
		m.Evicted()
		m.Regressed()
		m.SetSeen(4)
		m.FlushFailed()
	})
}

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg, "")
	require.NoError(t, err)

	m.Check(access.Read)
	m.Check(access.Write)
	m.Check(access.Write)
	m.TicksScanned(5)
	m.TicksScanned(0)
	m.Reported()
	m.SetSeen(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.checks.WithLabelValues("Read")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.checks.WithLabelValues("Write")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ticksScanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.racesReported))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.seenRaces))

	n, err := testutil.GatherAndCount(reg, "hybridrace_races_reported_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, "x")
	require.NoError(t, err)

	_, err = New(reg, "x")
	assert.Error(t, err)

	_, err = New(nil, "x")
	assert.Error(t, err)
}
