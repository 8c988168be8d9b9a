// Package stackdepot stores deduplicated stack traces for race reports.
//
// A Depot keeps each unique stack once, keyed by a 64-bit xxh3 hash of its
// program counters. Reports never carry whole stacks: the detector captures
// a stack when a race is found, keeps it in the depot, and resolves it to a
// short origin string ("pkg.Func file.go:12") naming the first frame outside
// the detector itself.
//
// Usage:
//
//	d := stackdepot.New()
//	hash := d.Capture(1)
//	origin := d.Get(hash).Origin(nil)
package stackdepot

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
)

// MaxFrames is the maximum number of frames kept per stack.
//
// Deeper than the usual 8 so the origin survives the detector's own frames.
const MaxFrames = 16

// StackTrace is a captured stack, zero-padded to MaxFrames.
type StackTrace struct {
	PC [MaxFrames]uintptr
}

// Depot is a deduplicating stack store.
//
// Thread Safety: safe for concurrent use.
type Depot struct {
	stacks sync.Map // uint64 hash -> *StackTrace
}

// New returns an empty depot.
func New() *Depot {
	return &Depot{}
}

// Capture records the calling goroutine's stack and returns its hash.
//
// skip is the number of frames to skip above Capture's caller: 0 starts the
// stack at the function that called Capture. Returns 0 if no frame was
// available.
func (d *Depot) Capture(skip int) uint64 {
	var pcs [MaxFrames]uintptr
	n := runtime.Callers(2+skip, pcs[:])
	if n == 0 {
		return 0
	}

	hash := hashStack(pcs[:n])
	if _, exists := d.stacks.Load(hash); exists {
		return hash
	}
	d.stacks.Store(hash, &StackTrace{PC: pcs})
	return hash
}

// Get returns the stack stored under hash, or nil.
func (d *Depot) Get(hash uint64) *StackTrace {
	if hash == 0 {
		return nil
	}
	v, ok := d.stacks.Load(hash)
	if !ok {
		return nil
	}
	return v.(*StackTrace)
}

// Len returns the number of unique stacks stored.
func (d *Depot) Len() int {
	n := 0
	d.stacks.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

func hashStack(pcs []uintptr) uint64 {
	buf := make([]byte, 0, len(pcs)*8)
	for _, pc := range pcs {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(pc))
	}
	return xxh3.Hash(buf)
}

// Frames resolves the stack, dropping runtime internals.
func (st *StackTrace) Frames() []runtime.Frame {
	if st == nil {
		return nil
	}
	n := 0
	for n < MaxFrames && st.PC[n] != 0 {
		n++
	}
	if n == 0 {
		return nil
	}

	var out []runtime.Frame
	frames := runtime.CallersFrames(st.PC[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, "runtime.") {
			out = append(out, frame)
		}
		if !more {
			break
		}
	}
	return out
}

// Origin returns "function file:line" for the first frame that skip does
// not reject (nil skip accepts every frame). Returns "" if none qualifies.
func (st *StackTrace) Origin(skip func(function string) bool) string {
	for _, f := range st.Frames() {
		if skip != nil && skip(f.Function) {
			continue
		}
		return fmt.Sprintf("%s %s:%d", f.Function, f.File, f.Line)
	}
	return ""
}

// FormatStack renders the stack in the race-report layout:
//
//	main.worker()
//	      /path/to/file.go:45
func (st *StackTrace) FormatStack() string {
	frames := st.Frames()
	if len(frames) == 0 {
		return "  <unknown>\n"
	}
	var buf strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&buf, "  %s()\n      %s:%d\n", f.Function, f.File, f.Line)
	}
	return buf.String()
}
