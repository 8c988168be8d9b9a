package detector

import (
	"log/slog"
	"reflect"
	"strings"

	"github.com/kolkov/hybridrace/internal/race/access"
	"github.com/kolkov/hybridrace/internal/race/lockset"
	"github.com/kolkov/hybridrace/internal/race/metrics"
	"github.com/kolkov/hybridrace/internal/race/racelog"
	"github.com/kolkov/hybridrace/internal/race/shadowmem"
	"github.com/kolkov/hybridrace/internal/race/stackdepot"
)

// Stats counts detector work since construction.
type Stats struct {
	Checks         uint64 // Accesses checked.
	TicksScanned   uint64 // History ticks examined.
	PrunedScans    uint64 // Per-thread scans stopped at an ordered tick.
	Candidates     uint64 // Unordered, lock-disjoint point pairs considered.
	LockSuppressed uint64 // Unordered buckets skipped because a lock was shared.
	Duplicates     uint64 // Candidates already present in the race log.
	Reported       uint64 // Races reported.
}

// Options configures a Detector.
type Options struct {
	// Sink receives new races. Nil discards them.
	Sink Sink

	// Describer renders program points in reports. Nil uses DefaultDescriber.
	Describer Describer

	// Metrics mirrors Stats into Prometheus collectors. Optional.
	Metrics *metrics.Metrics

	// Logger receives debug output. Nil uses slog.Default().
	Logger *slog.Logger

	// CaptureOrigin fills RaceReport.Origin with the first stack frame
	// outside the detector when the access carries no Origin of its own.
	CaptureOrigin bool
}

// Access is one memory access presented to the detector.
type Access struct {
	Point    access.ProgramPoint
	Thread   access.ThreadID
	Location access.Location
	Kind     access.Kind

	// Clock is the accessing thread's live vector clock.
	Clock access.VectorClock

	// Locks is the lock set held during the access. Nil means no locks.
	Locks access.LockSet

	// Origin is optional caller context copied into reports.
	Origin string
}

// Detector applies the hybrid happens-before / lock-set criterion to each
// access against the history kept in a shadowmem.Store.
//
// A recorded access races with the current one when the current thread has
// not yet observed the tick it was recorded in (its view of the other
// thread's clock is below the tick clock) and the two accesses hold no lock
// in common. Each racing program-point pair is reported at most once per
// race log, across runs when the log is persisted.
//
// Thread Safety: NOT safe for concurrent use. A check and the matching
// Record must happen in one critical section held by the caller.
type Detector struct {
	store     *shadowmem.Store
	log       *racelog.Log
	sink      Sink
	describer Describer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	depot     *stackdepot.Depot
	stats     Stats
}

// New creates a detector over store, deduplicating through log.
func New(store *shadowmem.Store, log *racelog.Log, opts Options) *Detector {
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.Describer == nil {
		opts.Describer = DefaultDescriber
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Detector{
		store:     store,
		log:       log,
		sink:      opts.Sink,
		describer: opts.Describer,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if opts.CaptureOrigin {
		d.depot = stackdepot.New()
	}
	return d
}

// Store returns the history store the detector reads.
func (d *Detector) Store() *shadowmem.Store {
	return d.store
}

// Log returns the race log the detector deduplicates through.
func (d *Detector) Log() *racelog.Log {
	return d.log
}

// CheckAccess checks one access in the argument order used by
// instrumentation callbacks. See Check.
func (d *Detector) CheckAccess(point access.ProgramPoint, tid access.ThreadID, loc access.Location,
	isRead bool, vc access.VectorClock, ls access.LockSet) []RaceReport {
	return d.Check(Access{
		Point:    point,
		Thread:   tid,
		Location: loc,
		Kind:     access.KindOf(isRead),
		Clock:    vc,
		Locks:    ls,
	})
}

// Check reports every new race between a and the recorded history of its
// location, and returns the reports in the order they were sent to the sink.
//
// Algorithm:
//  1. A read is checked against other threads' write windows; a write
//     against their write windows, then their read windows
//  2. For each other thread t2, known = a.Clock.ValueFor(t2)
//  3. Walk t2's window newest to oldest. A tick with clock <= known is
//     ordered before a, and so is every older tick: stop
//  4. Otherwise every bucket whose lock set is disjoint from a.Locks races;
//     each of its points forms a pair that is reported if the log did not
//     contain it yet
//
// Check never modifies the store.
func (d *Detector) Check(a Access) []RaceReport {
	if !a.Kind.Valid() {
		return nil
	}
	if a.Locks == nil {
		a.Locks = lockset.Empty
	}
	d.stats.Checks++
	d.metrics.Check(a.Kind)

	var reports []RaceReport
	d.scan(&a, access.Write, &reports)
	if a.Kind == access.Write {
		d.scan(&a, access.Read, &reports)
	}
	return reports
}

func (d *Detector) scan(a *Access, prevKind access.Kind, reports *[]RaceReport) {
	d.store.EachWindow(a.Location, prevKind, func(t2 access.ThreadID, w *shadowmem.Window) bool {
		if t2 == a.Thread {
			return true
		}
		known := a.Clock.ValueFor(t2)

		scanned := 0
		for i := 0; i < w.Len(); i++ {
			tick := w.At(i)
			scanned++
			if known >= tick.Clock {
				d.stats.PrunedScans++
				d.metrics.Pruned()
				break
			}
			for _, b := range tick.Buckets() {
				if b.Locks.Intersects(a.Locks) {
					d.stats.LockSuppressed++
					d.metrics.LockSuppressed()
					continue
				}
				for _, p := range b.Points() {
					d.candidate(a, t2, prevKind, tick.Clock, b.Locks, p, reports)
				}
			}
		}
		d.stats.TicksScanned += uint64(scanned)
		d.metrics.TicksScanned(scanned)
		return true
	})
}

func (d *Detector) candidate(a *Access, t2 access.ThreadID, prevKind access.Kind, clock access.Clock,
	locks access.LockSet, point access.ProgramPoint, reports *[]RaceReport) {
	d.stats.Candidates++
	pair := racelog.NewRacePair(a.Point, point)
	if !d.log.Insert(pair) {
		d.stats.Duplicates++
		d.metrics.Duplicate()
		return
	}

	r := RaceReport{
		Pair:     pair,
		Location: a.Location,
		Current: AccessInfo{
			Kind:   a.Kind,
			Thread: a.Thread,
			Point:  a.Point,
			Clock:  a.Clock.ValueFor(a.Thread),
			Locks:  a.Locks,
			Where:  d.describer.Describe(a.Point),
		},
		Previous: AccessInfo{
			Kind:   prevKind,
			Thread: t2,
			Point:  point,
			Clock:  clock,
			Locks:  locks,
			Where:  d.describer.Describe(point),
		},
		Origin: a.Origin,
	}
	if r.Origin == "" && d.depot != nil {
		r.Origin = d.captureOrigin()
	}

	d.stats.Reported++
	d.metrics.Reported()
	d.logger.Debug("race reported",
		"pair", pair.String(), "location", a.Location, "type", r.Type(),
		"thread", a.Thread, "previous_thread", t2)
	d.sink.Report(r)
	*reports = append(*reports, r)
}

func (d *Detector) captureOrigin() string {
	return d.depot.Get(d.depot.Capture(0)).Origin(isDetectorFrame)
}

// modulePrefix is the import path prefix shared by every package of this
// module, "github.com/kolkov/hybridrace/".
var modulePrefix = strings.TrimSuffix(reflect.TypeOf((*Detector)(nil)).Elem().PkgPath(), "internal/race/detector")

// isDetectorFrame matches the frames between user code and captureOrigin:
// any function of this module except tests, benchmarks and examples.
func isDetectorFrame(function string) bool {
	if !strings.HasPrefix(function, modulePrefix) {
		return false
	}
	name := function[strings.LastIndexByte(function, '/')+1:]
	name = name[strings.IndexByte(name, '.')+1:]
	for _, p := range []string{"Test", "Benchmark", "Example", "Fuzz"} {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	return true
}

// OnAccess checks a and then records it in the store, the order every
// driver must follow. It suits single-threaded drivers and tests.
func (d *Detector) OnAccess(a Access) []RaceReport {
	if a.Locks == nil {
		a.Locks = lockset.Empty
	}
	reports := d.Check(a)
	d.store.Record(a.Location, a.Thread, a.Kind, a.Clock.ValueFor(a.Thread), a.Locks, a.Point)
	return reports
}

// Stats returns the detector counters.
func (d *Detector) Stats() Stats {
	return d.stats
}
