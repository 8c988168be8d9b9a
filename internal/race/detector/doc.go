// Package detector implements the hybrid race check.
//
// The detector combines two classic techniques. Happens-before tracking via
// vector clocks decides whether two accesses are ordered; lock-set tracking
// decides whether a common lock protected them. A pair of accesses to the
// same location from different threads, at least one a write, is a race only
// when both tests fail: the accesses are unordered AND their lock sets are
// disjoint.
//
// # Architecture
//
//  1. shadowmem.Store: bounded per-thread access history (windows of ticks)
//  2. Detector.Check: scans the history of the accessed location
//  3. racelog.Log: deduplicates racing program-point pairs across runs
//
// # Race Detection Rules
//
// For an access a by thread t at location m:
//
//  1. Read: compare against other threads' writes to m
//  2. Write: compare against other threads' writes, then reads, to m
//  3. For thread t2, known = a's view of t2's clock. A recorded tick with
//     clock c is unordered iff known < c. Windows are newest first, so the
//     scan of t2 stops at the first tick with known >= c
//  4. Within an unordered tick, skip buckets whose lock set intersects a's
//  5. Every remaining program point p2 yields the pair {a.Point, p2}; it is
//     reported only if the race log did not already contain it
//
// After checking, the caller records a with its own clock component. The
// check-then-record order matters: a thread never races with itself, and the
// access is not yet part of the history it is checked against.
//
// # Thread Safety
//
// Nothing here is synchronized. race.Session serializes callers with one
// mutex around each check and record.
//
// # Example Usage
//
//	store := shadowmem.NewStore(shadowmem.Options{})
//	log := racelog.Open(racelog.NewFileStore("race.log", "race.count"), racelog.Options{})
//	d := detector.New(store, log, detector.Options{Sink: detector.NewWriterSink(os.Stderr)})
//	d.OnAccess(detector.Access{Point: 10, Thread: 1, Location: m, Kind: access.Write, Clock: vc1, Locks: held1.Snapshot()})
//	d.OnAccess(detector.Access{Point: 20, Thread: 2, Location: m, Kind: access.Read, Clock: vc2, Locks: held2.Snapshot()})
//	_ = log.Flush()
package detector
