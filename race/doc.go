// Package race is the public API of the hybrid race detector.
//
// A Session owns one detector run. NewSession loads the set of races
// reported by earlier runs; Close writes it back. In between, every memory
// access is checked against a bounded history of other threads' accesses to
// the same location and then recorded. Two accesses race when neither is
// ordered before the other by happens-before AND no common lock protects
// them. Each racing pair of program points is reported once, ever.
//
// # Quick Start
//
//	s, err := race.NewSession(race.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close()
//
//	t1 := s.Thread(1)
//	t2 := t1.Fork(2)
//
//	t1.Write(10, x)   // program point 10 writes location x
//	t2.Read(20, x)    // reported: iid 10 and iid 20 race on x
//
// # API Overview
//
// Two ways to feed accesses:
//   - [Session.Thread]: the session tracks each thread's vector clock and
//     held locks; synchronization goes through [Thread.Acquire],
//     [Thread.Release], [Thread.Fork], [Thread.Join], [Thread.Notify] and
//     [Thread.Await]
//   - [Session.Access]: the caller supplies the clock ([VectorClock]) and
//     lock set ([LockSet]) of each access
//
// Reports go to a [Sink] (stderr banners by default). The race log
// persists through the configured backend: a gob file with a companion
// count file, a BadgerDB directory, or process memory.
//
// # Configuration
//
// [LoadConfig] reads an optional YAML file and HYBRIDRACE_* environment
// overrides:
//
//	window_size: 5          # history ticks per (location, thread, kind)
//	capture_origin: false   # fill report origins from the call stack
//	log_level: info
//	storage:
//	  backend: file         # file | badger | memory
//	  log_path: race.log
//	  count_path: race.count
//	  badger_dir: race.db
package race
