package detector

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/hybridrace/internal/race/access"
	"github.com/kolkov/hybridrace/internal/race/lockset"
	"github.com/kolkov/hybridrace/internal/race/metrics"
	"github.com/kolkov/hybridrace/internal/race/racelog"
	"github.com/kolkov/hybridrace/internal/race/shadowmem"
)

// clocks is a fixed vector clock for tests.
type clocks map[access.ThreadID]access.Clock

func (c clocks) ValueFor(tid access.ThreadID) access.Clock {
	return c[tid]
}

const locM access.Location = 0x7

type fixture struct {
	d     *Detector
	sink  *CollectSink
	log   *racelog.Log
	store *shadowmem.Store
}

func newFixture(t *testing.T, window int, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		sink:  &CollectSink{},
		log:   racelog.Open(nil, racelog.Options{}),
		store: shadowmem.NewStore(shadowmem.Options{WindowSize: window}),
	}
	if opts.Sink == nil {
		opts.Sink = f.sink
	}
	f.d = New(f.store, f.log, opts)
	return f
}

func (f *fixture) write(tid access.ThreadID, vc clocks, ls access.LockSet, point access.ProgramPoint) []RaceReport {
	return f.d.OnAccess(Access{Point: point, Thread: tid, Location: locM, Kind: access.Write, Clock: vc, Locks: ls})
}

func (f *fixture) read(tid access.ThreadID, vc clocks, ls access.LockSet, point access.ProgramPoint) []RaceReport {
	return f.d.OnAccess(Access{Point: point, Thread: tid, Location: locM, Kind: access.Read, Clock: vc, Locks: ls})
}

func TestScenarioUnorderedUnlocked(t *testing.T) {
	f := newFixture(t, 0, Options{})

	assert.Empty(t, f.write(1, clocks{1: 1}, lockset.Empty, 10))
	reports := f.read(2, clocks{1: 0, 2: 1}, lockset.Empty, 20)

	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, racelog.NewRacePair(10, 20), r.Pair)
	assert.Equal(t, RaceTypeWriteRead, r.Type())
	assert.Equal(t, locM, r.Location)
	assert.Equal(t, AccessInfo{Kind: access.Read, Thread: 2, Point: 20, Clock: 1, Locks: lockset.Empty, Where: "iid 20"}, r.Current)
	assert.Equal(t, access.Write, r.Previous.Kind)
	assert.Equal(t, access.ThreadID(1), r.Previous.Thread)
	assert.Equal(t, access.Clock(1), r.Previous.Clock)
	assert.Equal(t, reports, f.sink.Reports())
	assert.True(t, f.log.Contains(racelog.NewRacePair(20, 10)))
}

func TestScenarioCommonLock(t *testing.T) {
	f := newFixture(t, 0, Options{})
	l := lockset.Of(42)

	f.write(1, clocks{1: 1}, l, 10)
	assert.Empty(t, f.read(2, clocks{2: 1}, lockset.Of(3, 42), 20))
	assert.Equal(t, uint64(1), f.d.Stats().LockSuppressed)
	assert.Zero(t, f.log.Len())
}

func TestScenarioOrderedEqualClock(t *testing.T) {
	f := newFixture(t, 0, Options{})

	f.write(1, clocks{1: 1}, lockset.Empty, 10)
	assert.Empty(t, f.read(2, clocks{1: 1, 2: 1}, lockset.Empty, 20), "equal clock is ordered")
	assert.Equal(t, uint64(1), f.d.Stats().PrunedScans)
}

func TestHybridNecessity(t *testing.T) {
	tests := []struct {
		name       string
		known      access.Clock
		locks      access.LockSet
		wantReport bool
	}{
		{"unordered disjoint", 0, lockset.Of(2), true},
		{"unordered shared lock", 0, lockset.Of(1), false},
		{"ordered disjoint", 1, lockset.Of(2), false},
		{"ordered shared lock", 5, lockset.Of(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0, Options{})
			f.write(1, clocks{1: 1}, lockset.Of(1), 10)
			reports := f.write(2, clocks{1: tt.known, 2: 1}, tt.locks, 20)
			assert.Equal(t, tt.wantReport, len(reports) == 1)
		})
	}
}

func TestKindAsymmetry(t *testing.T) {
	t.Run("read after read", func(t *testing.T) {
		f := newFixture(t, 0, Options{})
		f.read(1, clocks{1: 1}, nil, 10)
		assert.Empty(t, f.read(2, clocks{2: 1}, nil, 20))
	})
	t.Run("write after read", func(t *testing.T) {
		f := newFixture(t, 0, Options{})
		f.read(1, clocks{1: 1}, nil, 10)
		reports := f.write(2, clocks{2: 1}, nil, 20)
		require.Len(t, reports, 1)
		assert.Equal(t, RaceTypeReadWrite, reports[0].Type())
	})
	t.Run("write after write", func(t *testing.T) {
		f := newFixture(t, 0, Options{})
		f.write(1, clocks{1: 1}, nil, 10)
		reports := f.write(2, clocks{2: 1}, nil, 20)
		require.Len(t, reports, 1)
		assert.Equal(t, RaceTypeWriteWrite, reports[0].Type())
	})
	t.Run("write checks writes before reads", func(t *testing.T) {
		f := newFixture(t, 0, Options{})
		f.read(1, clocks{1: 1}, nil, 11)
		f.write(1, clocks{1: 1}, nil, 10)
		reports := f.write(2, clocks{2: 1}, nil, 20)
		require.Len(t, reports, 2)
		assert.Equal(t, racelog.NewRacePair(10, 20), reports[0].Pair)
		assert.Equal(t, racelog.NewRacePair(11, 20), reports[1].Pair)
	})
}

func TestAtMostOnce(t *testing.T) {
	f := newFixture(t, 0, Options{})

	f.write(1, clocks{1: 1}, nil, 10)
	require.Len(t, f.read(2, clocks{2: 1}, nil, 20), 1)
	assert.Empty(t, f.read(2, clocks{2: 1}, nil, 20))
	assert.Empty(t, f.read(3, clocks{3: 1}, nil, 20), "same points from another thread")

	// Reversed roles produce the same pair.
	f2 := newFixture(t, 0, Options{})
	f2.log.Insert(racelog.NewRacePair(10, 20))
	f2.write(2, clocks{2: 1}, nil, 20)
	assert.Empty(t, f2.read(1, clocks{1: 1}, nil, 10))

	assert.Equal(t, uint64(2), f.d.Stats().Duplicates)
	assert.Len(t, f.sink.Reports(), 1)
}

func TestUnknownKindIgnored(t *testing.T) {
	f := newFixture(t, 0, Options{})
	f.write(1, clocks{1: 1}, lockset.Empty, 10)

	var reports []RaceReport
	require.NotPanics(t, func() {
		reports = f.d.OnAccess(Access{Point: 20, Thread: 2, Location: locM, Kind: access.Kind(9), Clock: clocks{2: 1}})
	})
	assert.Empty(t, reports)
	assert.Equal(t, uint64(1), f.d.Stats().Checks)
	assert.Equal(t, uint64(1), f.store.Stats().Records)
}

func TestOwnThreadIgnored(t *testing.T) {
	f := newFixture(t, 0, Options{})
	f.write(1, clocks{1: 1}, nil, 10)
	assert.Empty(t, f.write(1, clocks{1: 2}, nil, 11))
	assert.Empty(t, f.read(1, clocks{1: 3}, nil, 12))
}

func TestPruningStopsAtOrderedTick(t *testing.T) {
	f := newFixture(t, 0, Options{})
	for c := access.Clock(1); c <= 4; c++ {
		f.write(1, clocks{1: c}, nil, access.ProgramPoint(c))
	}

	reports := f.read(2, clocks{1: 2, 2: 1}, nil, 20)
	require.Len(t, reports, 2)
	assert.Equal(t, racelog.NewRacePair(4, 20), reports[0].Pair, "newest tick first")
	assert.Equal(t, racelog.NewRacePair(3, 20), reports[1].Pair)

	st := f.d.Stats()
	assert.Equal(t, uint64(3), st.TicksScanned, "ticks 4, 3 and the ordered tick 2")
	assert.Equal(t, uint64(1), st.PrunedScans)
}

func TestEvictedTickInvisible(t *testing.T) {
	f := newFixture(t, 2, Options{})
	for c := access.Clock(1); c <= 3; c++ {
		f.write(1, clocks{1: c}, nil, access.ProgramPoint(c))
	}

	reports := f.read(2, clocks{2: 1}, nil, 20)
	require.Len(t, reports, 2)
	assert.Equal(t, racelog.NewRacePair(3, 20), reports[0].Pair)
	assert.Equal(t, racelog.NewRacePair(2, 20), reports[1].Pair)
	assert.False(t, f.log.Contains(racelog.NewRacePair(1, 20)))
}

func TestBucketsSplitByLockSet(t *testing.T) {
	f := newFixture(t, 0, Options{})
	f.write(1, clocks{1: 1}, lockset.Of(1), 31)
	f.write(1, clocks{1: 1}, lockset.Empty, 11)
	f.write(1, clocks{1: 1}, lockset.Empty, 10)

	reports := f.write(2, clocks{2: 1}, lockset.Of(1), 20)
	require.Len(t, reports, 2)
	assert.Equal(t, racelog.NewRacePair(10, 20), reports[0].Pair, "points in ascending order")
	assert.Equal(t, racelog.NewRacePair(11, 20), reports[1].Pair)
}

func TestCheckDoesNotRecord(t *testing.T) {
	f := newFixture(t, 0, Options{})
	f.d.CheckAccess(10, 1, locM, false, clocks{1: 1}, nil)
	assert.Nil(t, f.store.Window(locM, access.Write, 1))

	f.write(1, clocks{1: 1}, nil, 10)
	reports := f.d.CheckAccess(20, 2, locM, true, clocks{2: 1}, lockset.Empty)
	require.Len(t, reports, 1)
	assert.Nil(t, f.store.Window(locM, access.Read, 2))
}

func TestRecordedLockSetIsSnapshot(t *testing.T) {
	f := newFixture(t, 0, Options{})
	held := lockset.NewHeld()
	held.Acquire(1)
	f.write(1, clocks{1: 1}, held.Snapshot(), 10)
	require.NoError(t, held.Release(1))

	assert.Empty(t, f.write(2, clocks{2: 1}, lockset.Of(1), 20))
}

func TestWriterSinkBanner(t *testing.T) {
	var buf bytes.Buffer
	names := map[access.ProgramPoint]string{10: "main.go:10", 20: "main.go:20"}
	f := newFixture(t, 0, Options{
		Sink: NewWriterSink(&buf),
		Describer: DescriberFunc(func(p access.ProgramPoint) string {
			return names[p]
		}),
	})

	f.write(1, clocks{1: 1}, lockset.Of(3), 10)
	f.d.OnAccess(Access{Point: 20, Thread: 2, Location: locM, Kind: access.Write, Clock: clocks{2: 4}, Origin: "worker loop"})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "==================\nWARNING: DATA RACE\n"))
	assert.Contains(t, out, "Race between main.go:10 and main.go:20 (write-write)")
	assert.Contains(t, out, "Write at location 0x0000000000000007 by thread 2:")
	assert.Contains(t, out, "  main.go:20 [clock 4, locks {}]")
	assert.Contains(t, out, "  origin: worker loop")
	assert.Contains(t, out, "Previous write at location 0x0000000000000007 by thread 1:")
	assert.Contains(t, out, "  main.go:10 [clock 1, locks {3}]")
	assert.Equal(t, 2, strings.Count(out, "==================\n"))
}

func TestCaptureOrigin(t *testing.T) {
	f := newFixture(t, 0, Options{CaptureOrigin: true})
	f.d.OnAccess(Access{Point: 10, Thread: 1, Location: locM, Kind: access.Write, Clock: clocks{1: 1}})
	reports := f.d.OnAccess(Access{Point: 20, Thread: 2, Location: locM, Kind: access.Write, Clock: clocks{2: 1}})

	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Origin, "TestCaptureOrigin")
	assert.Contains(t, reports[0].Origin, "detector_test.go:")

	f.d.OnAccess(Access{Point: 30, Thread: 3, Location: locM, Kind: access.Write, Clock: clocks{3: 1}, Origin: "given"})
	got := f.sink.Reports()
	require.Len(t, got, 3)
	assert.Equal(t, "given", got[1].Origin)
	assert.Equal(t, "given", got[2].Origin)
}

func TestIsDetectorFrame(t *testing.T) {
	tests := []struct {
		function string
		want     bool
	}{
		{"github.com/kolkov/hybridrace/internal/race/detector.(*Detector).Check", true},
		{"github.com/kolkov/hybridrace/internal/race/shadowmem.(*Store).EachWindow", true},
		{"github.com/kolkov/hybridrace/race.(*Thread).Access", true},
		{"github.com/kolkov/hybridrace/race.(*Session).Write", true},
		{"github.com/kolkov/hybridrace/internal/race/detector.TestCaptureOrigin", false},
		{"github.com/kolkov/hybridrace/race.TestConcurrentThreads.func1", false},
		{"example.com/app/db.(*Session).Write", false},
		{"example.com/app.(*Thread).run", false},
		{"main.(*Detector).poll", false},
	}
	for _, tt := range tests {
		t.Run(tt.function, func(t *testing.T) {
			assert.Equal(t, tt.want, isDetectorFrame(tt.function))
		})
	}
}

func TestDetectorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg, "")
	require.NoError(t, err)
	f := newFixture(t, 0, Options{Metrics: m})

	f.write(1, clocks{1: 1}, nil, 10)
	f.read(2, clocks{2: 1}, nil, 20)
	f.read(2, clocks{2: 1}, nil, 20)

	expected := `
# HELP hybridrace_races_reported_total Distinct racing program-point pairs reported.
# TYPE hybridrace_races_reported_total counter
hybridrace_races_reported_total 1
# HELP hybridrace_duplicate_races_total Racing pairs suppressed because they were already reported.
# TYPE hybridrace_duplicate_races_total counter
hybridrace_duplicate_races_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"hybridrace_races_reported_total", "hybridrace_duplicate_races_total"))

	st := f.d.Stats()
	assert.Equal(t, uint64(3), st.Checks)
	assert.Equal(t, uint64(2), st.Candidates)
	assert.Equal(t, uint64(1), st.Reported)
}

func TestNopSinkDefault(t *testing.T) {
	d := New(shadowmem.NewStore(shadowmem.Options{}), racelog.Open(nil, racelog.Options{}), Options{})
	d.OnAccess(Access{Point: 1, Thread: 1, Location: 1, Kind: access.Write, Clock: clocks{1: 1}})
	reports := d.OnAccess(Access{Point: 2, Thread: 2, Location: 1, Kind: access.Write, Clock: clocks{2: 1}})
	assert.Len(t, reports, 1)
	assert.Equal(t, "iid 2", reports[0].Current.Where)
}
