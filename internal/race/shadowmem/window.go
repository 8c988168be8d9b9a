package shadowmem

import (
	"fmt"
	"slices"

	"github.com/kolkov/hybridrace/internal/race/access"
)

// Bucket groups the program points that executed under one lock set during
// one tick.
//
// Locks is an independent snapshot (see access.LockSet.Clone); the points are
// kept sorted and unique so scans report them in ascending order.
type Bucket struct {
	Locks  access.LockSet
	points []access.ProgramPoint
}

// Points returns the bucket's program points in ascending order.
//
// The returned slice is owned by the store and must not be modified.
func (b *Bucket) Points() []access.ProgramPoint {
	return b.points
}

// add inserts p, keeping points sorted and unique.
func (b *Bucket) add(p access.ProgramPoint) {
	i, found := slices.BinarySearch(b.points, p)
	if found {
		return
	}
	b.points = slices.Insert(b.points, i, p)
}

// Tick is one logical-clock step of a thread's history for a location.
//
// Every access the thread made at Clock lands in the same tick. Accesses made
// under different lock sets land in different buckets, because the lock-set
// test is applied per bucket while the happens-before test is applied per
// tick.
type Tick struct {
	Clock access.Clock

	// byFingerprint locates candidate buckets; Equal resolves collisions.
	byFingerprint map[uint64][]*Bucket

	// buckets preserves creation order for deterministic scans.
	buckets []*Bucket
}

func newTick(clock access.Clock) *Tick {
	return &Tick{Clock: clock, byFingerprint: make(map[uint64][]*Bucket, 1)}
}

// Buckets returns the tick's buckets in creation order.
func (t *Tick) Buckets() []*Bucket {
	return t.buckets
}

// bucketFor returns the bucket for ls, creating it with a cloned snapshot.
func (t *Tick) bucketFor(ls access.LockSet) *Bucket {
	fp := ls.Fingerprint()
	for _, b := range t.byFingerprint[fp] {
		if b.Locks.Equal(ls) {
			return b
		}
	}
	b := &Bucket{Locks: ls.Clone()}
	t.byFingerprint[fp] = append(t.byFingerprint[fp], b)
	t.buckets = append(t.buckets, b)
	return b
}

// Window is the bounded, newest-first history of one (location, thread, kind).
//
// Layout: a fixed-capacity ring. head is the slot of the newest tick and the
// ticks continue at head+1, head+2, ... (mod capacity) towards the oldest.
// Pushing a new tick moves head back one slot; when the ring is full that slot
// holds the oldest tick, which is thereby evicted.
//
// Invariant: clocks are strictly decreasing from At(0) to At(Len()-1).
type Window struct {
	ring []*Tick
	head int
	n    int
}

func newWindow(capacity int) *Window {
	return &Window{ring: make([]*Tick, capacity)}
}

// Len returns the number of ticks held.
func (w *Window) Len() int {
	return w.n
}

// Cap returns the window bound W.
func (w *Window) Cap() int {
	return len(w.ring)
}

// At returns the i-th newest tick (0 is the newest).
func (w *Window) At(i int) *Tick {
	if i < 0 || i >= w.n {
		panic(fmt.Sprintf("shadowmem: tick index %d out of range [0,%d)", i, w.n))
	}
	return w.ring[(w.head+i)%len(w.ring)]
}

// Newest returns the newest tick, or nil for an empty window.
func (w *Window) Newest() *Tick {
	if w.n == 0 {
		return nil
	}
	return w.ring[w.head]
}

// Clocks returns the tick clocks newest first.
func (w *Window) Clocks() []access.Clock {
	clocks := make([]access.Clock, w.n)
	for i := range clocks {
		clocks[i] = w.At(i).Clock
	}
	return clocks
}

// push makes t the newest tick and reports whether the oldest was evicted.
func (w *Window) push(t *Tick) bool {
	w.head = (w.head - 1 + len(w.ring)) % len(w.ring)
	evicted := w.n == len(w.ring)
	w.ring[w.head] = t
	if !evicted {
		w.n++
	}
	return evicted
}

// Validate checks the window invariants: bounded length and strictly
// decreasing clocks front to back.
func (w *Window) Validate() error {
	if w.n > len(w.ring) {
		return fmt.Errorf("window holds %d ticks, bound is %d", w.n, len(w.ring))
	}
	for i := 1; i < w.n; i++ {
		prev, cur := w.At(i-1).Clock, w.At(i).Clock
		if cur >= prev {
			return fmt.Errorf("tick %d clock %d not below tick %d clock %d", i, cur, i-1, prev)
		}
	}
	return nil
}
