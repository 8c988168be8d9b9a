// Package trace parses and replays textual access traces.
//
// A trace is one event per line; blank lines and text after '#' are ignored:
//
//	loc    <iid> <text>          program point description
//	rd     <tid> <loc> <iid>     read of location loc at program point iid
//	wr     <tid> <loc> <iid>     write
//	acq    <tid> <lock>          lock acquire (re-entrant)
//	rel    <tid> <lock>          lock release
//	fork   <tid> <child>         thread start
//	join   <tid> <child>         thread join
//	notify <tid> <obj>           publish on a signal object
//	await  <tid> <obj>           wait for every earlier notify on obj
//
// Numbers are decimal, or hexadecimal with a 0x prefix.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kolkov/hybridrace/internal/race/access"
)

// ErrSyntax wraps every parse error.
var ErrSyntax = errors.New("trace syntax error")

// Op is an event type.
type Op uint8

// Event types.
const (
	OpRead Op = iota
	OpWrite
	OpAcquire
	OpRelease
	OpFork
	OpJoin
	OpNotify
	OpAwait
)

var opNames = map[string]Op{
	"rd":     OpRead,
	"wr":     OpWrite,
	"acq":    OpAcquire,
	"rel":    OpRelease,
	"fork":   OpFork,
	"join":   OpJoin,
	"notify": OpNotify,
	"await":  OpAwait,
}

// String returns the trace keyword of op.
func (op Op) String() string {
	for name, o := range opNames {
		if o == op {
			return name
		}
	}
	return "op(" + strconv.Itoa(int(op)) + ")"
}

// Event is one parsed trace line.
type Event struct {
	// Line is the 1-based source line.
	Line int

	Op     Op
	Thread access.ThreadID

	// Location and Point are set for OpRead and OpWrite.
	Location access.Location
	Point    access.ProgramPoint

	// Object is the lock, child thread or signal object of the other ops.
	Object uint64
}

// LocationTable maps program points to the text of their loc lines.
type LocationTable struct {
	text map[access.ProgramPoint]string
}

// NewLocationTable returns an empty table.
func NewLocationTable() *LocationTable {
	return &LocationTable{text: make(map[access.ProgramPoint]string)}
}

// Set records the description of p.
func (t *LocationTable) Set(p access.ProgramPoint, text string) {
	t.text[p] = text
}

// Merge copies other's descriptions into t. Later traces win.
func (t *LocationTable) Merge(other *LocationTable) {
	for p, text := range other.text {
		t.text[p] = text
	}
}

// Len returns the number of described points.
func (t *LocationTable) Len() int {
	return len(t.text)
}

// Describe returns "<text> (iid <p>)" for described points and "iid <p>"
// otherwise.
func (t *LocationTable) Describe(p access.ProgramPoint) string {
	if text, ok := t.text[p]; ok {
		return fmt.Sprintf("%s (iid %d)", text, p)
	}
	return fmt.Sprintf("iid %d", p)
}

// Parse reads a whole trace.
//
// Parsing stops at the first malformed line; the error wraps ErrSyntax and
// names the line.
func Parse(r io.Reader) ([]Event, *LocationTable, error) {
	var events []Event
	table := NewLocationTable()

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		if fields[0] == "loc" {
			if len(fields) < 3 {
				return nil, nil, syntaxError(line, "loc wants <iid> <text>")
			}
			iid, err := parseUint(fields[1], 32)
			if err != nil {
				return nil, nil, syntaxError(line, "iid: %v", err)
			}
			table.Set(access.ProgramPoint(iid), strings.Join(fields[2:], " "))
			continue
		}

		ev, err := parseEvent(fields)
		if err != nil {
			return nil, nil, syntaxError(line, "%v", err)
		}
		ev.Line = line
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read trace: %w", err)
	}
	return events, table, nil
}

func parseEvent(fields []string) (Event, error) {
	op, ok := opNames[fields[0]]
	if !ok {
		return Event{}, fmt.Errorf("unknown event %q", fields[0])
	}

	want := 3
	if op == OpRead || op == OpWrite {
		want = 4
	}
	if len(fields) != want {
		return Event{}, fmt.Errorf("%s wants %d operands, got %d", op, want-1, len(fields)-1)
	}

	tid, err := parseUint(fields[1], 32)
	if err != nil {
		return Event{}, fmt.Errorf("thread: %w", err)
	}
	ev := Event{Op: op, Thread: access.ThreadID(tid)}

	if op == OpRead || op == OpWrite {
		loc, err := parseUint(fields[2], 64)
		if err != nil {
			return Event{}, fmt.Errorf("location: %w", err)
		}
		iid, err := parseUint(fields[3], 32)
		if err != nil {
			return Event{}, fmt.Errorf("iid: %w", err)
		}
		ev.Location = access.Location(loc)
		ev.Point = access.ProgramPoint(iid)
		return ev, nil
	}

	bits := 64
	if op == OpFork || op == OpJoin {
		bits = 32
	}
	obj, err := parseUint(fields[2], bits)
	if err != nil {
		return Event{}, fmt.Errorf("operand: %w", err)
	}
	if (op == OpFork || op == OpJoin) && obj == tid {
		return Event{}, fmt.Errorf("thread %d cannot %s itself", tid, op)
	}
	ev.Object = obj
	return ev, nil
}

func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(s, 0, bits)
}

func syntaxError(line int, format string, args ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, line, fmt.Sprintf(format, args...))
}
