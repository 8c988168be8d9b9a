package racelog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

// Badger key layout.
var (
	pairPrefix = []byte("pair/")
	countKey   = []byte("count")
	versionKey = []byte("meta/version")
)

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Dir is the database directory. Ignored when InMemory is true.
	Dir string

	// InMemory keeps the database in RAM (tests).
	InMemory bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// BadgerStore keeps one key per race pair in a BadgerDB, plus the count and
// the format version under fixed keys.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadgerStore opens (or creates) the database described by cfg.
//
// The caller must Close the store.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("badger directory is required for a persistent race log")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger race log: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func pairKey(p RacePair) []byte {
	k := make([]byte, len(pairPrefix)+8)
	copy(k, pairPrefix)
	binary.BigEndian.PutUint64(k[len(pairPrefix):], p.key())
	return k
}

// Load implements Store.
func (s *BadgerStore) Load() ([]RacePair, error) {
	var pairs []RacePair
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(versionKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil // never flushed
		}
		if err != nil {
			return err
		}
		version, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := CheckVersion(string(version)); err != nil {
			return err
		}

		it := txn.NewIterator(badger.IteratorOptions{Prefix: pairPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			if len(k) != len(pairPrefix)+8 {
				return fmt.Errorf("malformed race key %q", k)
			}
			pairs = append(pairs, pairFromKey(binary.BigEndian.Uint64(k[len(pairPrefix):])))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load badger race log: %w", err)
	}
	return pairs, nil
}

// Save implements Store. The previous pair keys are dropped first.
func (s *BadgerStore) Save(pairs []RacePair) error {
	if err := s.db.DropPrefix(pairPrefix); err != nil {
		return fmt.Errorf("drop previous races: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, p := range pairs {
		if err := wb.Set(pairKey(p), nil); err != nil {
			return fmt.Errorf("stage race %s: %w", p, err)
		}
	}
	if err := wb.Set(versionKey, []byte(FormatVersion)); err != nil {
		return fmt.Errorf("stage format version: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("write races: %w", err)
	}
	return nil
}

// SaveCount implements Store.
func (s *BadgerStore) SaveCount(n int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(countKey, []byte(strconv.Itoa(n)))
	})
}

// Count returns the persisted count, or 0 if none was saved.
func (s *BadgerStore) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(countKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			n, err = strconv.Atoi(string(val))
			return err
		})
	})
	if err != nil {
		return 0, fmt.Errorf("read badger race count: %w", err)
	}
	return n, nil
}

// setVersion overwrites the stored format version (tests).
func (s *BadgerStore) setVersion(v string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(versionKey, []byte(v))
	})
}
