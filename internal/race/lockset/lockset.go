// Package lockset implements lock-set snapshots and per-thread held-lock
// bookkeeping for the hybrid race detector.
//
// Set is the immutable snapshot handed to the detector (it implements
// access.LockSet). Held is the mutable, re-entrant tracker a driver keeps per
// thread; Held.Snapshot captures its current contents as a Set.
package lockset

import (
	"encoding/binary"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/kolkov/hybridrace/internal/race/access"
)

// LockID identifies a lock object.
type LockID uint64

// ErrNotHeld is returned when a thread releases a lock it does not hold.
var ErrNotHeld = errors.New("lock not held")

// Set is an immutable, sorted set of lock IDs.
//
// The zero value is the empty set. Sets are never modified after
// construction, so sharing the backing slice between copies is safe; Clone
// still allocates to honor the independent-snapshot contract.
type Set struct {
	ids []LockID
	fp  uint64
}

// Empty is the set holding no locks.
var Empty = Of()

// Of builds a Set from the given IDs. Duplicates are dropped.
func Of(ids ...LockID) Set {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return Set{ids: sorted, fp: fingerprint(sorted)}
}

// fingerprint hashes the sorted IDs with xxh3.
func fingerprint(ids []LockID) uint64 {
	buf := make([]byte, 8*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(id))
	}
	return xxh3.Hash(buf)
}

// Len returns the number of locks in the set.
func (s Set) Len() int {
	return len(s.ids)
}

// Contains reports whether id is in the set.
func (s Set) Contains(id LockID) bool {
	_, found := slices.BinarySearch(s.ids, id)
	return found
}

// IDs returns a copy of the lock IDs in ascending order.
func (s Set) IDs() []LockID {
	return slices.Clone(s.ids)
}

// IDLister is implemented by lock sets that can enumerate their lock IDs.
// Set intersects any IDLister directly.
type IDLister interface {
	IDs() []LockID
}

// Intersects implements access.LockSet.
//
// Both sets are sorted, so this is a linear merge. Another implementation is
// compared through IDLister when it has one; otherwise it is asked once, with
// a view of s that answers from its own IDs and never asks back.
func (s Set) Intersects(other access.LockSet) bool {
	switch o := other.(type) {
	case Set:
		return s.intersectsSorted(o.ids)
	case IDLister:
		for _, id := range o.IDs() {
			if s.Contains(id) {
				return true
			}
		}
		return false
	default:
		return other.Intersects(setView{s})
	}
}

func (s Set) intersectsSorted(ids []LockID) bool {
	i, j := 0, 0
	for i < len(s.ids) && j < len(ids) {
		switch {
		case s.ids[i] == ids[j]:
			return true
		case s.ids[i] < ids[j]:
			i++
		default:
			j++
		}
	}
	return false
}

// setView is the Set handed to another implementation's Intersects. It
// compares only against Set and IDLister values, so two implementations
// that defer to each other stop after one round.
type setView struct {
	s Set
}

func (v setView) Intersects(other access.LockSet) bool {
	switch other.(type) {
	case Set, IDLister:
		return v.s.Intersects(other)
	default:
		return false
	}
}

func (v setView) Equal(other access.LockSet) bool { return v.s.Equal(other) }

func (v setView) Fingerprint() uint64 { return v.s.Fingerprint() }

func (v setView) Clone() access.LockSet { return v.s.Clone() }

func (v setView) IDs() []LockID { return v.s.IDs() }

// Equal implements access.LockSet.
func (s Set) Equal(other access.LockSet) bool {
	o, ok := other.(Set)
	if !ok {
		return false
	}
	return s.Fingerprint() == o.Fingerprint() && slices.Equal(s.ids, o.ids)
}

// Fingerprint implements access.LockSet.
func (s Set) Fingerprint() uint64 {
	if s.fp == 0 && len(s.ids) == 0 {
		// Zero value: hash of the empty set.
		return Empty.fp
	}
	return s.fp
}

// Clone implements access.LockSet.
func (s Set) Clone() access.LockSet {
	return Set{ids: slices.Clone(s.ids), fp: s.Fingerprint()}
}

// String renders the set as "{1, 2}".
func (s Set) String() string {
	parts := make([]string, len(s.ids))
	for i, id := range s.ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Held tracks the locks currently held by one thread.
//
// Locks are re-entrant: a lock acquired twice must be released twice before
// it leaves the set. Held is not safe for concurrent use; each thread owns
// its tracker.
type Held struct {
	counts map[LockID]int
}

// NewHeld returns an empty tracker.
func NewHeld() *Held {
	return &Held{counts: make(map[LockID]int)}
}

// Acquire records one acquisition of id.
func (h *Held) Acquire(id LockID) {
	h.counts[id]++
}

// Release records one release of id.
func (h *Held) Release(id LockID) error {
	n, ok := h.counts[id]
	if !ok {
		return ErrNotHeld
	}
	if n == 1 {
		delete(h.counts, id)
	} else {
		h.counts[id] = n - 1
	}
	return nil
}

// Holds reports whether id is currently held.
func (h *Held) Holds(id LockID) bool {
	return h.counts[id] > 0
}

// Len returns the number of distinct locks held.
func (h *Held) Len() int {
	return len(h.counts)
}

// Snapshot captures the currently held locks as an immutable Set.
func (h *Held) Snapshot() Set {
	ids := make([]LockID, 0, len(h.counts))
	for id := range h.counts {
		ids = append(ids, id)
	}
	return Of(ids...)
}
