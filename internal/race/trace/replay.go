package trace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kolkov/hybridrace/internal/race/access"
	"github.com/kolkov/hybridrace/internal/race/lockset"
	"github.com/kolkov/hybridrace/race"
)

// Replayer feeds trace events through a race session, letting the session
// track each thread's clock and locks.
type Replayer struct {
	session *race.Session
	source  string
	logger  *slog.Logger
	reports int
}

// NewReplayer replays into session. source names the trace in report
// origins ("source:line"); logger may be nil.
func NewReplayer(session *race.Session, source string, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{session: session, source: source, logger: logger}
}

// Reports returns the number of races reported so far.
func (r *Replayer) Reports() int {
	return r.reports
}

// Replay applies events in order. It stops at the first event that cannot
// be applied or when ctx is done.
func (r *Replayer) Replay(ctx context.Context, events []Event) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Apply(ev); err != nil {
			return err
		}
	}
	r.logger.Debug("trace replayed", "source", r.source, "events", len(events), "races", r.reports)
	return nil
}

// Apply applies one event.
func (r *Replayer) Apply(ev Event) error {
	t := r.session.Thread(ev.Thread)
	switch ev.Op {
	case OpRead, OpWrite:
		kind := access.Read
		if ev.Op == OpWrite {
			kind = access.Write
		}
		origin := fmt.Sprintf("%s:%d", r.source, ev.Line)
		r.reports += len(t.Access(kind, ev.Point, ev.Location, origin))
	case OpAcquire:
		t.Acquire(lockset.LockID(ev.Object))
	case OpRelease:
		if err := t.Release(lockset.LockID(ev.Object)); err != nil {
			return fmt.Errorf("%s:%d: %w", r.source, ev.Line, err)
		}
	case OpFork:
		t.Fork(access.ThreadID(ev.Object))
	case OpJoin:
		t.Join(access.ThreadID(ev.Object))
	case OpNotify:
		t.Notify(race.ObjectID(ev.Object))
	case OpAwait:
		t.Await(race.ObjectID(ev.Object))
	default:
		return fmt.Errorf("%s:%d: unsupported event %s", r.source, ev.Line, ev.Op)
	}
	return nil
}
