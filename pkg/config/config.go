// Package config handles ndexgraph configuration via environment variables and
// an optional YAML file.
//
// Configuration is layered: built-in defaults, then the YAML file (if any), then
// NDEX_* environment variables. Validate() must be called before use.
//
// Example Usage:
//
//	cfg, err := config.Load("ndexgraph.yaml")
//	if err != nil {
//		log.Fatalf("Loading config: %v", err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	fmt.Printf("Data dir: %s\n", cfg.Database.DataDir)
//
// Environment Variables:
//
// Storage:
//   - NDEX_DATA_DIR="./data"
//   - NDEX_IN_MEMORY=false
//   - NDEX_SYNC_WRITES=false
//   - NDEX_MEMTABLE_SIZE="64MB"
//   - NDEX_LOW_MEMORY=false
//
// Networks:
//   - NDEX_URI_PREFIX="http://localhost:8080/v2"
//   - NDEX_ID_LEASE=1000
//   - NDEX_DELETE_BATCH=500
//
// Tasks:
//   - NDEX_TASK_DB="./data/tasks.db"
//   - NDEX_TASK_WORKERS=2
//   - NDEX_TASK_VISIBILITY_TIMEOUT=5m
//   - NDEX_TASK_MAX_ATTEMPTS=5
//   - NDEX_TASK_POLL_INTERVAL=1s
//
// Logging / Metrics:
//   - NDEX_LOG_BADGER=false
//   - NDEX_METRICS_ENABLED=false
//   - NDEX_METRICS_ADDRESS=":9464"
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all ndexgraph configuration.
//
// Configuration is organized into logical sections:
//   - Database: Badger storage settings
//   - NDEx: network identity and clone settings
//   - Tasks: deferred deletion queue and workers
//   - Logging: logging configuration
//   - Metrics: Prometheus endpoint
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	NDEx     NDExConfig     `yaml:"ndex"`
	Tasks    TasksConfig    `yaml:"tasks"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	// DataDir is the directory for Badger data files
	DataDir string `yaml:"data_dir"`
	// InMemory keeps everything in RAM (tests, dry runs)
	InMemory bool `yaml:"in_memory"`
	// SyncWrites forces fsync on every Badger write
	SyncWrites bool `yaml:"sync_writes"`
	// MemTableSizeStr is the human-readable memtable size (e.g., "64MB")
	MemTableSizeStr string `yaml:"memtable_size"`
	// MemTableSize is MemTableSizeStr in bytes; clones commit in batches of
	// roughly 7% of it
	MemTableSize int64 `yaml:"-"`
	// LowMemory shrinks Badger caches
	LowMemory bool `yaml:"low_memory"`
}

// NDExConfig holds network-level settings.
type NDExConfig struct {
	// URIPrefix prefixes every network URI: <prefix>/network/<uuid>
	URIPrefix string `yaml:"uri_prefix" validate:"required"`
	// IDLease is how many identifiers are leased from storage at once
	IDLease uint64 `yaml:"id_lease" validate:"gt=0"`
	// DeleteBatch is the number of entities removed per deletion transaction
	DeleteBatch int `yaml:"delete_batch" validate:"gt=0"`
}

// TasksConfig holds task queue settings.
type TasksConfig struct {
	// QueuePath is the SQLite file backing the task queue
	QueuePath string `yaml:"queue_path" validate:"required"`
	// Workers is the number of concurrent task processors
	Workers int `yaml:"workers" validate:"gte=1"`
	// VisibilityTimeout hides a claimed task from other workers
	VisibilityTimeout time.Duration `yaml:"visibility_timeout" validate:"gt=0"`
	// MaxAttempts discards a task after this many failed claims
	MaxAttempts int `yaml:"max_attempts" validate:"gte=1"`
	// PollInterval is the idle wait between empty claims
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Badger forwards Badger's internal log lines to the process log
	Badger bool `yaml:"badger"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataDir:         "./data",
			MemTableSizeStr: "64MB",
			MemTableSize:    64 << 20,
		},
		NDEx: NDExConfig{
			URIPrefix:   "http://localhost:8080/v2",
			IDLease:     1000,
			DeleteBatch: 500,
		},
		Tasks: TasksConfig{
			QueuePath:         "./data/tasks.db",
			Workers:           2,
			VisibilityTimeout: 5 * time.Minute,
			MaxAttempts:       5,
			PollInterval:      time.Second,
		},
		Metrics: MetricsConfig{
			Address: ":9464",
		},
	}
}

// LoadFromEnv returns the defaults overridden by NDEX_* environment variables.
//
// Configuration Priority:
//  1. Environment variables (highest)
//  2. Default values (if env var not set)
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Database.MemTableSize = parseMemorySize(cfg.Database.MemTableSizeStr)
	return cfg, nil
}

// Load layers defaults, the YAML file at path and the environment.
// An empty path or a missing file skips the file layer.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		fileCfg, err := LoadFile(path)
		switch {
		case err == nil:
			cfg = fileCfg
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.DataDir = getEnv("NDEX_DATA_DIR", c.Database.DataDir)
	c.Database.InMemory = getEnvBool("NDEX_IN_MEMORY", c.Database.InMemory)
	c.Database.SyncWrites = getEnvBool("NDEX_SYNC_WRITES", c.Database.SyncWrites)
	c.Database.MemTableSizeStr = getEnv("NDEX_MEMTABLE_SIZE", c.Database.MemTableSizeStr)
	c.Database.MemTableSize = parseMemorySize(c.Database.MemTableSizeStr)
	c.Database.LowMemory = getEnvBool("NDEX_LOW_MEMORY", c.Database.LowMemory)

	c.NDEx.URIPrefix = strings.TrimRight(getEnv("NDEX_URI_PREFIX", c.NDEx.URIPrefix), "/")
	c.NDEx.IDLease = uint64(getEnvInt("NDEX_ID_LEASE", int(c.NDEx.IDLease)))
	c.NDEx.DeleteBatch = getEnvInt("NDEX_DELETE_BATCH", c.NDEx.DeleteBatch)

	c.Tasks.QueuePath = getEnv("NDEX_TASK_DB", c.Tasks.QueuePath)
	c.Tasks.Workers = getEnvInt("NDEX_TASK_WORKERS", c.Tasks.Workers)
	c.Tasks.VisibilityTimeout = getEnvDuration("NDEX_TASK_VISIBILITY_TIMEOUT", c.Tasks.VisibilityTimeout)
	c.Tasks.MaxAttempts = getEnvInt("NDEX_TASK_MAX_ATTEMPTS", c.Tasks.MaxAttempts)
	c.Tasks.PollInterval = getEnvDuration("NDEX_TASK_POLL_INTERVAL", c.Tasks.PollInterval)

	c.Logging.Badger = getEnvBool("NDEX_LOG_BADGER", c.Logging.Badger)

	c.Metrics.Enabled = getEnvBool("NDEX_METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Address = getEnv("NDEX_METRICS_ADDRESS", c.Metrics.Address)
}

var configValidate = validator.New()

// Validate checks the configuration for errors.
//
// Returns nil if configuration is valid, or an error describing the problem.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s (%s=%v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if !c.Database.InMemory && c.Database.DataDir == "" {
		return fmt.Errorf("invalid config: data dir is required unless in_memory is set")
	}
	if c.Database.MemTableSize < 0 {
		return fmt.Errorf("invalid memtable size: %q", c.Database.MemTableSizeStr)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics enabled but no address provided")
	}

	return nil
}

// String returns a compact representation of the Config for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir: %s, InMemory: %v, MemTable: %s, URIPrefix: %s, Tasks: %s x%d, Metrics: %v}",
		c.Database.DataDir, c.Database.InMemory, FormatMemorySize(c.Database.MemTableSize),
		c.NDEx.URIPrefix, c.Tasks.QueuePath, c.Tasks.Workers, c.Metrics.Enabled,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

// parseMemorySize parses a human-readable memory size string.
// Supports: "1024", "1KB", "1MB", "1GB", "1TB". Empty means 0 (engine default).
// Returns -1 for unparsable input.
func parseMemorySize(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" {
		return 0
	}

	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "T")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return -1
	}
	return val * multiplier
}

// FormatMemorySize formats bytes as human-readable string.
func FormatMemorySize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
