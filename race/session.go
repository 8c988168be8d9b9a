package race

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kolkov/hybridrace/internal/config"
	"github.com/kolkov/hybridrace/internal/race/detector"
	"github.com/kolkov/hybridrace/internal/race/goroutine"
	"github.com/kolkov/hybridrace/internal/race/metrics"
	"github.com/kolkov/hybridrace/internal/race/racelog"
	"github.com/kolkov/hybridrace/internal/race/shadowmem"
	"github.com/kolkov/hybridrace/internal/race/syncshadow"
)

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("race session closed")

// Stats is a snapshot of a session's counters.
type Stats struct {
	Detector    detector.Stats
	History     shadowmem.Stats
	SeenRaces   int
	Threads     int
	SyncObjects int
}

type sessionOptions struct {
	sink      Sink
	store     Store
	reg       prometheus.Registerer
	logger    *slog.Logger
	describer Describer
}

// Option customizes NewSession.
type Option func(*sessionOptions)

// WithSink sends reports to sink instead of printing them to stderr.
func WithSink(sink Sink) Option {
	return func(o *sessionOptions) { o.sink = sink }
}

// WithStore persists the race log in store, overriding the configured
// backend. The caller keeps ownership of store.
func WithStore(store Store) Option {
	return func(o *sessionOptions) { o.store = store }
}

// WithRegisterer registers the session's Prometheus metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *sessionOptions) { o.reg = reg }
}

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *sessionOptions) { o.logger = logger }
}

// WithDescriber renders program points in reports.
func WithDescriber(d Describer) Option {
	return func(o *sessionOptions) { o.describer = d }
}

// Session is one detector run: it loads the race log when created, checks
// and records accesses, and flushes the log when closed.
//
// Thread Safety: all methods are safe for concurrent use. Every access is
// checked and recorded under one mutex, so concurrent instrumentation
// callbacks observe a consistent history.
type Session struct {
	mu sync.Mutex

	cfg     Config
	det     *detector.Detector
	history *shadowmem.Store
	log     *racelog.Log
	threads *goroutine.Table
	syncs   *syncshadow.SyncShadow
	closer  io.Closer
	logger  *slog.Logger
	runID   string
	closed  bool
}

// NewSession validates cfg, loads the persisted race log and returns a
// session ready to receive accesses.
//
// A race log that cannot be loaded is logged and replaced by an empty one; it
// never fails NewSession. Opening the storage backend itself can fail.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := sessionOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.sink == nil {
		o.sink = detector.NewWriterSink(os.Stderr)
	}

	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID)

	var m *metrics.Metrics
	if o.reg != nil {
		var err error
		m, err = metrics.New(o.reg, cfg.MetricsNamespace)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	store, closer := o.store, io.Closer(nil)
	if store == nil {
		var err error
		store, closer, err = openStore(cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
	}

	log := racelog.Open(store, racelog.Options{Logger: logger, Metrics: m})
	history := shadowmem.NewStore(shadowmem.Options{
		WindowSize: cfg.WindowSize,
		Metrics:    m,
		Logger:     logger,
	})
	det := detector.New(history, log, detector.Options{
		Sink:          o.sink,
		Describer:     o.describer,
		Metrics:       m,
		Logger:        logger,
		CaptureOrigin: cfg.CaptureOrigin,
	})

	logger.Info("race session started",
		"window", cfg.WindowSize, "backend", cfg.Storage.Backend, "seen_races", log.Len())

	return &Session{
		cfg:     cfg,
		det:     det,
		history: history,
		log:     log,
		threads: goroutine.NewTable(),
		syncs:   syncshadow.NewSyncShadow(),
		closer:  closer,
		logger:  logger,
		runID:   runID,
	}, nil
}

func openStore(cfg config.StorageConfig, logger *slog.Logger) (Store, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return racelog.NewFileStore(cfg.LogPath, cfg.CountPath), nil, nil
	case config.BackendBadger:
		bs, err := racelog.OpenBadgerStore(racelog.BadgerConfig{
			Dir:    cfg.BadgerDir,
			Logger: logger.With("component", "badger"),
		})
		if err != nil {
			return nil, nil, err
		}
		return bs, bs, nil
	case config.BackendMemory:
		return racelog.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalid, cfg.Backend)
	}
}

// RunID identifies this session in logs.
func (s *Session) RunID() string {
	return s.runID
}

// Config returns the configuration the session was created with.
func (s *Session) Config() Config {
	return s.cfg
}

// Access checks a against the recorded history, reports new races, then
// records a. The returned reports are the ones sent to the sink.
//
// a.Clock and a.Locks come from the caller's own bookkeeping. Callers that
// let the session track clocks and locks use Thread instead.
func (s *Session) Access(a Access) []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.det.OnAccess(a)
}

// Read is Access for a read.
func (s *Session) Read(point ProgramPoint, tid ThreadID, loc Location, vc VectorClock, ls LockSet) []Report {
	return s.Access(Access{Point: point, Thread: tid, Location: loc, Kind: KindRead, Clock: vc, Locks: ls})
}

// Write is Access for a write.
func (s *Session) Write(point ProgramPoint, tid ThreadID, loc Location, vc VectorClock, ls LockSet) []Report {
	return s.Access(Access{Point: point, Thread: tid, Location: loc, Kind: KindWrite, Clock: vc, Locks: ls})
}

// Seen returns every known racing pair, from earlier runs and this one, in
// insertion order.
func (s *Session) Seen() []RacePair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Pairs()
}

// ClearSeen forgets every known racing pair. The persisted log is replaced
// on the next Flush or Close.
func (s *Session) ClearSeen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Clear()
}

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Detector:    s.det.Stats(),
		History:     s.history.Stats(),
		SeenRaces:   s.log.Len(),
		Threads:     s.threads.Len(),
		SyncObjects: s.syncs.Len(),
	}
}

// Flush persists the race log without ending the session.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.log.Flush()
}

// Close flushes the race log and releases the storage backend. Calling
// Close again is a no-op.
//
// A flush failure is returned, but the backend is still released.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.log.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil {
			s.logger.Error("race log backend close failed", "error", cerr)
			err = errors.Join(err, fmt.Errorf("close race log backend: %w", cerr))
		}
	}
	st := s.det.Stats()
	s.logger.Info("race session closed",
		"races_reported", st.Reported, "checks", st.Checks, "seen_races", s.log.Len())
	return err
}

// ReadRaceLog returns the pairs persisted by cfg's storage backend without
// starting a session. Unlike NewSession it returns load failures, and it
// never writes to the store.
func ReadRaceLog(cfg Config, logger *slog.Logger) ([]RacePair, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	store, closer, err := openStore(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	pairs, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("read race log: %w", err)
	}
	out := make([]RacePair, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, racelog.NewRacePair(p.Lo, p.Hi))
	}
	return out, nil
}
