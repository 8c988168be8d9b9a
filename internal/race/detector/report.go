package detector

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/kolkov/hybridrace/internal/race/access"
	"github.com/kolkov/hybridrace/internal/race/racelog"
)

// Race type constants.
const (
	// RaceTypeWriteWrite indicates a write-write data race.
	RaceTypeWriteWrite = "write-write"
	// RaceTypeReadWrite indicates a write racing with an earlier read.
	RaceTypeReadWrite = "read-write"
	// RaceTypeWriteRead indicates a read racing with an earlier write.
	RaceTypeWriteRead = "write-read"
)

// AccessInfo describes one side of a race.
type AccessInfo struct {
	// Kind is Read or Write.
	Kind access.Kind

	// Thread performed the access.
	Thread access.ThreadID

	// Point is the program point (iid) of the access.
	Point access.ProgramPoint

	// Clock is the accessing thread's own clock component. For the previous
	// access it is the clock of the history tick the point was found in.
	Clock access.Clock

	// Locks is the lock set held during the access.
	Locks access.LockSet

	// Where is the Describer rendering of Point.
	Where string
}

// RaceReport is a newly detected race between two program points.
type RaceReport struct {
	// Pair is the normalized program-point pair used for deduplication.
	Pair racelog.RacePair

	// Location is the shared memory location both accesses touched.
	Location access.Location

	// Current is the access being checked.
	Current AccessInfo

	// Previous is the recorded access it races with.
	Previous AccessInfo

	// Origin is caller-supplied context or a captured source position.
	// Empty when neither is available.
	Origin string
}

// Type returns one of the RaceType constants.
func (r *RaceReport) Type() string {
	switch {
	case r.Current.Kind == access.Write && r.Previous.Kind == access.Write:
		return RaceTypeWriteWrite
	case r.Current.Kind == access.Write:
		return RaceTypeReadWrite
	default:
		return RaceTypeWriteRead
	}
}

// Format writes the report as a banner block:
//
//	==================
//	WARNING: DATA RACE
//	Race between iid 10 and iid 20 (write-read)
//	Read at location 0x0000000000000007 by thread 2:
//	  iid 20 [clock 1, locks {}]
//
//	Previous write at location 0x0000000000000007 by thread 1:
//	  iid 10 [clock 1, locks {}]
//	==================
//
//nolint:errcheck // best-effort diagnostic output
func (r *RaceReport) Format(w io.Writer) {
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "WARNING: DATA RACE\n")
	fmt.Fprintf(w, "Race between %s and %s (%s)\n", r.Previous.Where, r.Current.Where, r.Type())

	fmt.Fprintf(w, "%s at location 0x%016x by thread %d:\n", r.Current.Kind, uint64(r.Location), r.Current.Thread)
	formatAccess(w, &r.Current)
	if r.Origin != "" {
		fmt.Fprintf(w, "  origin: %s\n", r.Origin)
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Previous %s at location 0x%016x by thread %d:\n",
		strings.ToLower(r.Previous.Kind.String()), uint64(r.Location), r.Previous.Thread)
	formatAccess(w, &r.Previous)
	fmt.Fprintf(w, "==================\n")
}

//nolint:errcheck
func formatAccess(w io.Writer, a *AccessInfo) {
	locks := "{}"
	if a.Locks != nil {
		locks = fmt.Sprint(a.Locks)
	}
	fmt.Fprintf(w, "  %s [clock %d, locks %s]\n", a.Where, a.Clock, locks)
}

// String returns the formatted banner.
func (r *RaceReport) String() string {
	var buf strings.Builder
	r.Format(&buf)
	return buf.String()
}

// Sink receives every newly reported race.
type Sink interface {
	Report(r RaceReport)
}

// WriterSink prints banners to an io.Writer, one complete block at a time.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a sink printing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Report implements Sink.
func (s *WriterSink) Report(r RaceReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Format(s.w)
}

// NopSink discards reports.
type NopSink struct{}

// Report implements Sink.
func (NopSink) Report(RaceReport) {}

// CollectSink keeps reports in memory.
type CollectSink struct {
	mu      sync.Mutex
	reports []RaceReport
}

// Report implements Sink.
func (s *CollectSink) Report(r RaceReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
}

// Reports returns a copy of the collected reports in arrival order.
func (s *CollectSink) Reports() []RaceReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RaceReport, len(s.reports))
	copy(out, s.reports)
	return out
}

// Pairs returns the pairs of the collected reports.
func (s *CollectSink) Pairs() []racelog.RacePair {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]racelog.RacePair, len(s.reports))
	for i := range s.reports {
		out[i] = s.reports[i].Pair
	}
	return out
}

// Describer turns a program point into human-readable text.
type Describer interface {
	Describe(p access.ProgramPoint) string
}

// DescriberFunc adapts a function to Describer.
type DescriberFunc func(p access.ProgramPoint) string

// Describe implements Describer.
func (f DescriberFunc) Describe(p access.ProgramPoint) string {
	return f(p)
}

// DefaultDescriber renders "iid <n>".
var DefaultDescriber Describer = DescriberFunc(func(p access.ProgramPoint) string {
	return fmt.Sprintf("iid %d", p)
})
