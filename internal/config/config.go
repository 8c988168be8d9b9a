// Package config loads hybridrace settings.
//
// Priority: environment > file > defaults. The result is always validated.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Defaults.
const (
	DefaultWindowSize = 5
	DefaultLogPath    = "race.log"
	DefaultCountPath  = "race.count"
	DefaultBadgerDir  = "race.db"
	DefaultLogLevel   = "info"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full detector configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// WindowSize is W, the number of history ticks kept per
	// (location, thread, access kind).
	WindowSize int `json:"window_size" yaml:"window_size" validate:"min=1"`

	// Storage selects where the race log persists.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// CaptureOrigin fills report origins from the call stack.
	CaptureOrigin bool `json:"capture_origin" yaml:"capture_origin"`

	// MetricsNamespace prefixes Prometheus metric names.
	MetricsNamespace string `json:"metrics_namespace" yaml:"metrics_namespace" validate:"omitempty,promname"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
}

// StorageConfig describes the race-log backend.
type StorageConfig struct {
	Backend   string `json:"backend" yaml:"backend" validate:"oneof=file badger memory"`
	LogPath   string `json:"log_path" yaml:"log_path" validate:"required_if=Backend file"`
	CountPath string `json:"count_path" yaml:"count_path" validate:"required_if=Backend file"`
	BadgerDir string `json:"badger_dir" yaml:"badger_dir" validate:"required_if=Backend badger"`
}

var (
	configValidate *validator.Validate
	promNameRE     = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("promname", func(fl validator.FieldLevel) bool {
		return promNameRE.MatchString(fl.Field().String())
	})
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		WindowSize: DefaultWindowSize,
		Storage: StorageConfig{
			Backend:   BackendFile,
			LogPath:   DefaultLogPath,
			CountPath: DefaultCountPath,
			BadgerDir: DefaultBadgerDir,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Load reads configuration with priority: env > file > defaults.
//
// An empty path or a missing file uses the defaults. A file that exists but
// does not parse is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadFromEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("HYBRIDRACE_WINDOW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: HYBRIDRACE_WINDOW=%q: %v", ErrInvalid, v, err)
		}
		cfg.WindowSize = n
	}
	if v := os.Getenv("HYBRIDRACE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("HYBRIDRACE_LOG"); v != "" {
		cfg.Storage.LogPath = v
	}
	if v := os.Getenv("HYBRIDRACE_COUNT"); v != "" {
		cfg.Storage.CountPath = v
	}
	if v := os.Getenv("HYBRIDRACE_BADGER_DIR"); v != "" {
		cfg.Storage.BadgerDir = v
	}
	if v := os.Getenv("HYBRIDRACE_CAPTURE_ORIGIN"); v != "" {
		cfg.CaptureOrigin = v == "true" || v == "1"
	}
	if v := os.Getenv("HYBRIDRACE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Storage.Backend == BackendFile && c.Storage.LogPath == c.Storage.CountPath {
		return fmt.Errorf("%w: log_path and count_path are both %q", ErrInvalid, c.Storage.LogPath)
	}
	return nil
}

// SlogLevel converts LogLevel for slog handlers.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
