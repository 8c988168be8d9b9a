// Package racelog owns the set of already-reported races and persists it
// across runs.
//
// A Log is seeded from a Store when it is opened and written back by Flush.
// Loading is best effort: a missing, unreadable, corrupt or incompatible log
// yields an empty set, so a stale file can never stop a detector from
// starting. Flush failures are logged and returned, but leave the in-memory
// set untouched.
package racelog

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/emirpasic/gods/sets/linkedhashset"
	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/hybridrace/internal/race/metrics"
)

// FormatVersion is the version stamped into persisted race logs.
//
// Logs with a different major version are ignored on load.
const FormatVersion = "v1.0.0"

// ErrIncompatibleFormat is returned by stores whose persisted log was written
// with an incompatible FormatVersion.
var ErrIncompatibleFormat = errors.New("incompatible race log format")

// Store is the external race-log storage.
//
// Load returns the persisted pairs (any order). A store with nothing
// persisted yet returns (nil, nil). Save replaces the full collection.
// SaveCount writes the cardinality to the companion location.
type Store interface {
	Load() ([]RacePair, error)
	Save(pairs []RacePair) error
	SaveCount(n int) error
}

// CheckVersion validates a persisted format version against FormatVersion.
func CheckVersion(v string) error {
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: invalid version %q", ErrIncompatibleFormat, v)
	}
	if semver.Major(v) != semver.Major(FormatVersion) {
		return fmt.Errorf("%w: %s, want %s", ErrIncompatibleFormat, v, semver.Major(FormatVersion))
	}
	return nil
}

// Options configures a Log.
type Options struct {
	// Logger receives load and flush diagnostics. Nil uses slog.Default().
	Logger *slog.Logger

	// Metrics receives the seen-set size and flush failures. Optional.
	Metrics *metrics.Metrics
}

// Log is the insertion-ordered set of reported races.
//
// Thread Safety: NOT safe for concurrent use; callers serialize access
// together with the detector.
type Log struct {
	seen    *linkedhashset.Set
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Open creates a Log seeded from store.
//
// Load errors are logged at Warn and replaced by an empty set; Open itself
// never fails. A nil store gives a purely in-memory log whose Flush is a no-op.
func Open(store Store, opts Options) *Log {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	l := &Log{
		seen:    linkedhashset.New(),
		store:   store,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}

	if store != nil {
		pairs, err := store.Load()
		if err != nil {
			l.logger.Warn("race log not loaded, starting with an empty set", "error", err)
		} else {
			for _, p := range pairs {
				l.seen.Add(NewRacePair(p.Lo, p.Hi))
			}
			l.logger.Debug("race log loaded", "races", l.seen.Size())
		}
	}
	l.metrics.SetSeen(l.seen.Size())
	return l
}

// Insert adds pair if absent and reports whether it was newly inserted.
func (l *Log) Insert(pair RacePair) bool {
	if l.seen.Contains(pair) {
		return false
	}
	l.seen.Add(pair)
	l.metrics.SetSeen(l.seen.Size())
	return true
}

// Contains reports whether pair has been seen in this or a previous run.
func (l *Log) Contains(pair RacePair) bool {
	return l.seen.Contains(pair)
}

// Len returns the number of seen pairs.
func (l *Log) Len() int {
	return l.seen.Size()
}

// Pairs returns the seen pairs in insertion order.
func (l *Log) Pairs() []RacePair {
	values := l.seen.Values()
	pairs := make([]RacePair, len(values))
	for i, v := range values {
		pairs[i] = v.(RacePair)
	}
	return pairs
}

// Clear forgets every seen pair. The store is untouched until the next Flush.
func (l *Log) Clear() {
	l.seen.Clear()
	l.metrics.SetSeen(0)
}

// Flush writes the seen pairs and their count to the store.
//
// The log and the count are written concurrently. A failure is logged at
// Error and returned; the in-memory set is not modified either way.
func (l *Log) Flush() error {
	if l.store == nil {
		return nil
	}
	pairs := l.Pairs()

	var g errgroup.Group
	g.Go(func() error {
		if err := l.store.Save(pairs); err != nil {
			return fmt.Errorf("save race log: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := l.store.SaveCount(len(pairs)); err != nil {
			return fmt.Errorf("save race count: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		l.metrics.FlushFailed()
		l.logger.Error("race log flush failed", "races", len(pairs), "error", err)
		return err
	}
	l.logger.Info("race log flushed", "races", len(pairs))
	return nil
}
