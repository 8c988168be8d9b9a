package shadowmem

import (
	"log/slog"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/kolkov/hybridrace/internal/race/access"
	"github.com/kolkov/hybridrace/internal/race/lockset"
	"github.com/kolkov/hybridrace/internal/race/metrics"
)

// DefaultWindowSize is the per-thread tick bound used when Options leaves it unset.
const DefaultWindowSize = 5

// Options configures a Store.
type Options struct {
	// WindowSize is the bound W on ticks kept per (location, thread, kind).
	// Values below 1 select DefaultWindowSize.
	WindowSize int

	// Metrics receives eviction and regression counts. Optional.
	Metrics *metrics.Metrics

	// Logger receives debug records for clock regressions. Nil uses slog.Default().
	Logger *slog.Logger
}

// Stats summarizes store activity.
type Stats struct {
	Locations   int    // Locations with at least one window.
	Windows     int    // (location, thread, kind) windows allocated.
	Records     uint64 // Record calls.
	TicksOpened uint64 // Ticks created.
	Evictions   uint64 // Ticks dropped from full windows.
	Regressions uint64 // Records whose clock was below the newest tick.
}

// Store is the access history store: for every memory location and access
// kind it keeps, per thread, a bounded Window of recent ticks.
//
// Layout:
//
//	history[kind][location] -> ordered map ThreadID -> *Window
//
// Threads are kept in an ordered map so scans visit them in ascending
// ThreadID order and race reports come out in a reproducible order.
//
// Thread Safety: NOT safe for concurrent use. The caller serializes every
// check-then-record pair (see race.Session).
type Store struct {
	windowSize int
	history    [2]map[access.Location]*treemap.Map
	stats      Stats
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.WindowSize < 1 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Store{
		windowSize: opts.WindowSize,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	s.Reset()
	return s
}

// WindowSize returns the bound W.
func (s *Store) WindowSize() int {
	return s.windowSize
}

// threadComparator orders the per-location thread maps.
func threadComparator(a, b interface{}) int {
	ta, tb := a.(access.ThreadID), b.(access.ThreadID)
	switch {
	case ta < tb:
		return -1
	case ta > tb:
		return 1
	default:
		return 0
	}
}

// Record adds one observed access to the history.
//
// Algorithm:
//  1. Find or create the window for (loc, kind, tid)
//  2. If the window is empty or its newest clock is below clock, open a new
//     tick at the front, evicting the oldest tick when the window is full
//  3. Otherwise reuse the newest tick
//  4. Add point to the tick's bucket for ls (created with ls.Clone())
//
// Callers must present non-decreasing clocks per (loc, kind, tid). A smaller
// clock is a caller bug; it is merged into the newest tick so the window
// order is never corrupted, and counted in Stats.Regressions.
//
// A nil ls records the access as lock-free. A kind other than Read or Write
// is dropped.
func (s *Store) Record(loc access.Location, tid access.ThreadID, kind access.Kind, clock access.Clock, ls access.LockSet, point access.ProgramPoint) {
	if !kind.Valid() {
		s.logger.Debug("access of unknown kind dropped", "location", loc, "thread", tid, "kind", uint8(kind))
		return
	}
	if ls == nil {
		ls = lockset.Empty
	}
	s.stats.Records++
	w := s.getOrCreate(loc, kind, tid)

	tick := w.Newest()
	switch {
	case tick == nil || tick.Clock < clock:
		tick = newTick(clock)
		s.stats.TicksOpened++
		if w.push(tick) {
			s.stats.Evictions++
			s.metrics.Evicted()
		}
	case tick.Clock > clock:
		s.stats.Regressions++
		s.metrics.Regressed()
		s.logger.Debug("clock regression merged into newest tick",
			"location", loc, "thread", tid, "kind", kind,
			"clock", clock, "newest", tick.Clock)
	}

	tick.bucketFor(ls).add(point)
}

func (s *Store) getOrCreate(loc access.Location, kind access.Kind, tid access.ThreadID) *Window {
	threads, ok := s.history[kind][loc]
	if !ok {
		threads = treemap.NewWith(threadComparator)
		s.history[kind][loc] = threads
	}
	if w, ok := threads.Get(tid); ok {
		return w.(*Window)
	}
	w := newWindow(s.windowSize)
	threads.Put(tid, w)
	s.stats.Windows++
	return w
}

// Window returns the window for (loc, kind, tid), or nil if none was recorded.
func (s *Store) Window(loc access.Location, kind access.Kind, tid access.ThreadID) *Window {
	if !kind.Valid() {
		return nil
	}
	threads, ok := s.history[kind][loc]
	if !ok {
		return nil
	}
	w, ok := threads.Get(tid)
	if !ok {
		return nil
	}
	return w.(*Window)
}

// EachWindow calls fn for every thread window of (loc, kind) in ascending
// ThreadID order until fn returns false.
//
// fn must not call Record.
func (s *Store) EachWindow(loc access.Location, kind access.Kind, fn func(tid access.ThreadID, w *Window) bool) {
	if !kind.Valid() {
		return
	}
	threads, ok := s.history[kind][loc]
	if !ok {
		return
	}
	it := threads.Iterator()
	for it.Next() {
		if !fn(it.Key().(access.ThreadID), it.Value().(*Window)) {
			return
		}
	}
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	st := s.stats
	locs := make(map[access.Location]struct{}, len(s.history[access.Read])+len(s.history[access.Write]))
	for _, byLoc := range s.history {
		for loc := range byLoc {
			locs[loc] = struct{}{}
		}
	}
	st.Locations = len(locs)
	return st
}

// Reset forgets all recorded history and zeroes the counters.
func (s *Store) Reset() {
	s.history = [2]map[access.Location]*treemap.Map{
		access.Read:  make(map[access.Location]*treemap.Map),
		access.Write: make(map[access.Location]*treemap.Map),
	}
	s.stats = Stats{}
}
