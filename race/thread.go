package race

import (
	"github.com/kolkov/hybridrace/internal/race/goroutine"
	"github.com/kolkov/hybridrace/internal/race/syncshadow"
)

// Thread lets the session keep a thread's vector clock and held locks.
//
// Accesses made through a Thread use its tracked clock and a snapshot of
// its locks; synchronization calls update them by the usual rules (lock
// release-acquire, fork-join, notify-await). Thread handles of one session
// may be used from different goroutines.
type Thread struct {
	s   *Session
	ctx *goroutine.Context
}

// Thread returns the handle of tid, starting the thread on first use.
func (s *Session) Thread(tid ThreadID) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Thread{s: s, ctx: s.threads.Get(tid)}
}

// ID returns the thread ID.
func (t *Thread) ID() ThreadID {
	return t.ctx.TID
}

// Clock returns the thread's own clock component.
func (t *Thread) Clock() Clock {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.ctx.Clock()
}

// Read records a read of loc at point.
func (t *Thread) Read(point ProgramPoint, loc Location) []Report {
	return t.Access(KindRead, point, loc, "")
}

// Write records a write of loc at point.
func (t *Thread) Write(point ProgramPoint, loc Location) []Report {
	return t.Access(KindWrite, point, loc, "")
}

// Access checks and records one access. origin is copied into reports.
func (t *Thread) Access(kind Kind, point ProgramPoint, loc Location, origin string) []Report {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.closed {
		return nil
	}
	return t.s.det.OnAccess(Access{
		Point:    point,
		Thread:   t.ctx.TID,
		Location: loc,
		Kind:     kind,
		Clock:    t.ctx.C,
		Locks:    t.ctx.LockSet(),
		Origin:   origin,
	})
}

// Acquire takes lock, ordering the thread after the lock's last release.
// Locks are re-entrant.
func (t *Thread) Acquire(lock LockID) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	sv := t.s.syncs.GetOrCreate(syncshadow.ObjectID(lock))
	t.ctx.Acquire(lock, sv.GetReleaseClock())
}

// Release drops lock and publishes the thread's clock to later acquirers.
// Releasing a lock the thread does not hold returns an error wrapping
// lockset.ErrNotHeld and changes nothing.
func (t *Thread) Release(lock LockID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	published, err := t.ctx.Release(lock)
	if err != nil {
		return err
	}
	t.s.syncs.GetOrCreate(syncshadow.ObjectID(lock)).SetReleaseClock(published)
	return nil
}

// Fork starts child after everything this thread did so far.
func (t *Thread) Fork(child ThreadID) *Thread {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	c := t.s.threads.Get(child)
	t.ctx.Fork(c)
	return &Thread{s: t.s, ctx: c}
}

// Join orders this thread after everything child did so far.
func (t *Thread) Join(child ThreadID) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.ctx.Join(t.s.threads.Get(child))
}

// Notify publishes the thread's clock on a signal object and advances the
// thread's clock.
func (t *Thread) Notify(obj ObjectID) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.syncs.GetOrCreate(syncshadow.ObjectID(obj)).MergeSignalClock(t.ctx.C)
	t.ctx.IncrementClock()
}

// Await orders the thread after every Notify on obj so far.
func (t *Thread) Await(obj ObjectID) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	sv := t.s.syncs.GetOrCreate(syncshadow.ObjectID(obj))
	t.ctx.C.Join(sv.GetSignalClock())
}
