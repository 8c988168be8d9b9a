package race

import (
	"io"

	"github.com/kolkov/hybridrace/internal/config"
	"github.com/kolkov/hybridrace/internal/race/access"
	"github.com/kolkov/hybridrace/internal/race/detector"
	"github.com/kolkov/hybridrace/internal/race/lockset"
	"github.com/kolkov/hybridrace/internal/race/racelog"
	"github.com/kolkov/hybridrace/internal/race/syncshadow"
	"github.com/kolkov/hybridrace/internal/race/vectorclock"
)

// Identifiers.
type (
	// ThreadID identifies a logical thread.
	ThreadID = access.ThreadID
	// Location identifies a shared memory location.
	Location = access.Location
	// ProgramPoint identifies a static access instruction.
	ProgramPoint = access.ProgramPoint
	// Clock is one vector clock component.
	Clock = access.Clock
	// Kind is Read or Write.
	Kind = access.Kind
	// LockID identifies a lock.
	LockID = lockset.LockID
	// ObjectID identifies a signal object for Notify and Await.
	ObjectID = syncshadow.ObjectID
)

// Access kinds.
const (
	KindRead  = access.Read
	KindWrite = access.Write
)

// Collaborator contracts for callers that keep their own clocks and locks.
type (
	// VectorClock is the accessing thread's view of other threads' clocks.
	VectorClock = access.VectorClock
	// LockSet is an immutable snapshot of held locks.
	LockSet = access.LockSet
	// Clocks is the vector clock implementation used by Thread.
	Clocks = vectorclock.VectorClock
	// Locks is the lock set implementation used by Thread.
	Locks = lockset.Set
)

// NewClocks returns a zero vector clock.
func NewClocks() *Clocks {
	return vectorclock.New()
}

// LocksOf returns the lock set holding ids.
func LocksOf(ids ...LockID) Locks {
	return lockset.Of(ids...)
}

// NoLocks is the empty lock set.
var NoLocks = lockset.Empty

// Reports.
type (
	// Access is one memory access.
	Access = detector.Access
	// Report describes a newly detected race.
	Report = detector.RaceReport
	// Sink receives reports.
	Sink = detector.Sink
	// CollectSink keeps reports in memory.
	CollectSink = detector.CollectSink
	// Describer renders program points.
	Describer = detector.Describer
	// DescriberFunc adapts a function to Describer.
	DescriberFunc = detector.DescriberFunc
)

// NewWriterSink prints report banners to w.
func NewWriterSink(w io.Writer) Sink {
	return detector.NewWriterSink(w)
}

// Race log persistence.
type (
	// RacePair is an unordered pair of racing program points.
	RacePair = racelog.RacePair
	// Store persists the race log between runs.
	Store = racelog.Store
)

// NewRacePair returns the normalized pair {a, b}.
func NewRacePair(a, b ProgramPoint) RacePair {
	return racelog.NewRacePair(a, b)
}

// NewFileStore keeps the race log in logPath and its count in countPath.
func NewFileStore(logPath, countPath string) Store {
	return racelog.NewFileStore(logPath, countPath)
}

// NewMemoryStore keeps the race log in process memory, so sessions created
// one after another in the same process share it.
func NewMemoryStore() *racelog.MemoryStore {
	return racelog.NewMemoryStore()
}

// Configuration.
type (
	// Config is the session configuration.
	Config = config.Config
	// StorageConfig selects the race log backend.
	StorageConfig = config.StorageConfig
)

// Storage backends.
const (
	BackendFile   = config.BackendFile
	BackendBadger = config.BackendBadger
	BackendMemory = config.BackendMemory
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a YAML configuration file (optional) and environment
// overrides, then validates the result.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}
