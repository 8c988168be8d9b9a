package goroutine

import (
	"fmt"

	"github.com/kolkov/hybridrace/internal/race/access"
	"github.com/kolkov/hybridrace/internal/race/lockset"
	"github.com/kolkov/hybridrace/internal/race/vectorclock"
)

// Context is the race detection state of one thread.
//
// Invariant: C[TID] >= 1 for the whole life of the context, so an access
// recorded at the thread's own clock is never mistaken as known to a thread
// that has not synchronized with it (whose view of TID is 0).
type Context struct {
	// TID identifies the thread.
	TID access.ThreadID

	// C is the thread's vector clock. It is live: the detector reads it
	// through access.VectorClock on every check.
	C *vectorclock.VectorClock

	// Locks tracks the locks the thread currently holds.
	Locks *lockset.Held
}

// Alloc creates the context of a newly started thread with C[tid] = 1.
//
// Example:
//
//	ctx := Alloc(5)
//	// ctx.C = {5:1}
func Alloc(tid access.ThreadID) *Context {
	ctx := &Context{
		TID:   tid,
		C:     vectorclock.New(),
		Locks: lockset.NewHeld(),
	}
	ctx.C.Set(tid, 1)
	return ctx
}

// Clock returns the thread's own clock component C[TID].
func (c *Context) Clock() access.Clock {
	return c.C.Get(c.TID)
}

// IncrementClock advances C[TID], starting a new tick for the thread.
func (c *Context) IncrementClock() {
	c.C.Increment(c.TID)
}

// LockSet returns an immutable snapshot of the held locks.
func (c *Context) LockSet() lockset.Set {
	return c.Locks.Snapshot()
}

// Acquire takes lock id. If released is non-nil (the lock's clock at its
// last release) it is joined into C, ordering the thread after that release.
func (c *Context) Acquire(id lockset.LockID, released *vectorclock.VectorClock) {
	c.C.Join(released)
	c.Locks.Acquire(id)
}

// Release drops lock id and returns the clock to publish as the lock's
// release clock. C[TID] is incremented afterwards, so accesses following the
// release land in a new tick that later acquirers have not seen.
func (c *Context) Release(id lockset.LockID) (*vectorclock.VectorClock, error) {
	if err := c.Locks.Release(id); err != nil {
		return nil, fmt.Errorf("thread %d release lock %d: %w", c.TID, id, err)
	}
	published := c.C.Clone()
	c.IncrementClock()
	return published, nil
}

// Fork orders child after everything the thread did so far.
func (c *Context) Fork(child *Context) {
	child.C.Join(c.C)
	c.IncrementClock()
}

// Join orders the thread after everything child did so far.
func (c *Context) Join(child *Context) {
	c.C.Join(child.C)
	child.IncrementClock()
}

// Table maps thread IDs to their contexts, allocating on first use.
//
// Thread Safety: NOT safe for concurrent use.
type Table struct {
	contexts map[access.ThreadID]*Context
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{contexts: make(map[access.ThreadID]*Context)}
}

// Get returns the context of tid, allocating it on first use.
func (t *Table) Get(tid access.ThreadID) *Context {
	ctx, ok := t.contexts[tid]
	if !ok {
		ctx = Alloc(tid)
		t.contexts[tid] = ctx
	}
	return ctx
}

// Len returns the number of allocated contexts.
func (t *Table) Len() int {
	return len(t.contexts)
}
