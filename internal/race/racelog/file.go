package racelog

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// logFile is the on-disk envelope of a file race log.
type logFile struct {
	Version string
	Pairs   []RacePair
}

// FileStore keeps the race log in a gob file and the count in a small text
// file next to it.
//
// Save writes to a temporary file in the same directory and renames it over
// LogPath, so a crash mid-flush leaves the previous log intact.
type FileStore struct {
	LogPath   string
	CountPath string
}

// NewFileStore returns a store for the given paths.
func NewFileStore(logPath, countPath string) *FileStore {
	return &FileStore{LogPath: logPath, CountPath: countPath}
}

// Load implements Store. A missing log file is not an error.
func (s *FileStore) Load() ([]RacePair, error) {
	f, err := os.Open(s.LogPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open race log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var lf logFile
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&lf); err != nil {
		return nil, fmt.Errorf("decode race log %s: %w", s.LogPath, err)
	}
	if err := CheckVersion(lf.Version); err != nil {
		return nil, fmt.Errorf("race log %s: %w", s.LogPath, err)
	}
	return lf.Pairs, nil
}

// Save implements Store.
func (s *FileStore) Save(pairs []RacePair) error {
	return writeAtomic(s.LogPath, func(w *bufio.Writer) error {
		return gob.NewEncoder(w).Encode(logFile{Version: FormatVersion, Pairs: pairs})
	})
}

// SaveCount implements Store.
func (s *FileStore) SaveCount(n int) error {
	return writeAtomic(s.CountPath, func(w *bufio.Writer) error {
		_, err := w.WriteString(strconv.Itoa(n) + "\n")
		return err
	})
}

// ReadCount reads a count file written by SaveCount.
func ReadCount(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read race count: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse race count %s: %w", path, err)
	}
	return n, nil
}

func writeAtomic(path string, write func(w *bufio.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }() // no-op after a successful rename

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
