// Package metrics exposes Prometheus instrumentation for the race detector.
//
// A *Metrics is optional everywhere it is accepted: every method is safe to
// call on a nil receiver, so uninstrumented detectors pay a single nil check.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kolkov/hybridrace/internal/race/access"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "hybridrace"

// Metrics holds the detector's collectors.
type Metrics struct {
	checks         *prometheus.CounterVec
	ticksScanned   prometheus.Counter
	prunedScans    prometheus.Counter
	lockSuppressed prometheus.Counter
	duplicates     prometheus.Counter
	racesReported  prometheus.Counter
	evictions      prometheus.Counter
	regressions    prometheus.Counter
	seenRaces      prometheus.Gauge
	flushFailures  prometheus.Counter
}

// New creates the collectors and registers them on reg.
//
// An empty namespace selects DefaultNamespace. Registering the same namespace
// twice on one registry fails; callers that build several detectors in one
// process should give each its own registry.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		return nil, errors.New("metrics: nil registerer")
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Accesses checked for races, by access kind.",
		}, []string{"kind"}),
		ticksScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_scanned_total",
			Help:      "History ticks examined by race checks.",
		}),
		prunedScans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_scans_total",
			Help:      "Per-thread window scans stopped early at an ordered tick.",
		}),
		lockSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_suppressed_total",
			Help:      "Unordered lock-set buckets skipped because a lock was shared.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_races_total",
			Help:      "Racing pairs suppressed because they were already reported.",
		}),
		racesReported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "races_reported_total",
			Help:      "Distinct racing program-point pairs reported.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_evictions_total",
			Help:      "Ticks dropped from full history windows.",
		}),
		regressions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clock_regressions_total",
			Help:      "Recorded accesses whose clock was older than the newest tick.",
		}),
		seenRaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seen_races",
			Help:      "Pairs in the deduplication set, including those loaded from disk.",
		}),
		flushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "race_log_flush_failures_total",
			Help:      "Failed writes of the persisted race log.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.checks, m.ticksScanned, m.prunedScans, m.lockSuppressed, m.duplicates,
		m.racesReported, m.evictions, m.regressions, m.seenRaces, m.flushFailures,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Check counts one access check.
func (m *Metrics) Check(kind access.Kind) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(kind.String()).Inc()
}

// TicksScanned adds n examined ticks.
func (m *Metrics) TicksScanned(n int) {
	if m == nil || n == 0 {
		return
	}
	m.ticksScanned.Add(float64(n))
}

// Pruned counts one early-terminated window scan.
func (m *Metrics) Pruned() {
	if m == nil {
		return
	}
	m.prunedScans.Inc()
}

// LockSuppressed counts one bucket skipped for a shared lock.
func (m *Metrics) LockSuppressed() {
	if m == nil {
		return
	}
	m.lockSuppressed.Inc()
}

// Duplicate counts one already-reported pair.
func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// Reported counts one new race.
func (m *Metrics) Reported() {
	if m == nil {
		return
	}
	m.racesReported.Inc()
}

// Evicted counts one window eviction.
func (m *Metrics) Evicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

// Regressed counts one out-of-order clock.
func (m *Metrics) Regressed() {
	if m == nil {
		return
	}
	m.regressions.Inc()
}

// SetSeen records the size of the deduplication set.
func (m *Metrics) SetSeen(n int) {
	if m == nil {
		return
	}
	m.seenRaces.Set(float64(n))
}

// FlushFailed counts one failed race-log flush.
func (m *Metrics) FlushFailed() {
	if m == nil {
		return
	}
	m.flushFailures.Inc()
}
