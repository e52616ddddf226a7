// Package config provides configuration loading and management for Artificer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverNATS   = "nats"
	DriverMemory = "memory"
)

// Config represents the complete Artificer configuration
type Config struct {
	Archive ArchiveConfig `yaml:"archive"`
	Jar     JarConfig     `yaml:"jar"`
	Query   QueryConfig   `yaml:"query"`
	Storage StorageConfig `yaml:"storage"`
	Events  EventsConfig  `yaml:"events"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ArchiveConfig configures archive working directories
type ArchiveConfig struct {
	// WorkDir is the parent of archive working directories (empty = system temp dir)
	WorkDir string `yaml:"work_dir"`
	// KeepPacked keeps the packed S-RAMP archive of each ingest as <name>.sramp
	// in WorkDir, or next to the source when WorkDir is empty
	KeepPacked bool `yaml:"keep_packed"`
}

// JarConfig configures the default JAR candidate filter
type JarConfig struct {
	// Extensions is the allow-list of candidate extensions
	Extensions []string `yaml:"extensions"`
	// Exclude holds doublestar globs of paths that are never archived
	Exclude []string `yaml:"exclude"`
}

// QueryConfig configures query execution
type QueryConfig struct {
	// CacheSize is the number of parsed queries kept in the LRU cache (0 = no cache)
	CacheSize int `yaml:"cache_size"`
}

// StorageConfig selects and configures the artifact store
type StorageConfig struct {
	// Driver is one of sqlite, nats or memory
	Driver string `yaml:"driver"`
	// SQLiteDSN is the database file (":memory:" for an in-process database)
	SQLiteDSN string `yaml:"sqlite_dsn"`
	// NATSURL is the JetStream server used by the nats driver
	NATSURL string `yaml:"nats_url"`
	// Bucket is the JetStream KV bucket name
	Bucket string `yaml:"bucket"`
}

// EventsConfig configures graph event publishing
type EventsConfig struct {
	// NATSURL is the server events are published to (empty = events disabled)
	NATSURL string `yaml:"nats_url"`
	// SubjectPrefix prefixes every event subject
	SubjectPrefix string `yaml:"subject_prefix"`
}

// WatchConfig configures the drop-directory ingester
type WatchConfig struct {
	// Dir is the directory to watch
	Dir string `yaml:"dir"`
	// Patterns are doublestar globs, relative to Dir, of files to ingest
	Patterns []string `yaml:"patterns"`
	// Debounce is how long a file must stay quiet before it is ingested
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			WorkDir: "", // System temp dir
		},
		Jar: JarConfig{
			Extensions: []string{"xml", "xsd", "wsdl", "wspolicy"},
			Exclude:    []string{"**/pom.xml"},
		},
		Query: QueryConfig{
			CacheSize: 256,
		},
		Storage: StorageConfig{
			Driver:    DriverSQLite,
			SQLiteDSN: "artificer.db",
			Bucket:    "ARTIFICER_ARTIFACTS",
		},
		Events: EventsConfig{
			SubjectPrefix: "artificer",
		},
		Watch: WatchConfig{
			Patterns: []string{"**/*.jar", "**/*.war", "**/*.ear", "**/*.zip"},
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Query.CacheSize < 0 {
		return fmt.Errorf("query.cache_size must not be negative")
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLiteDSN == "" {
			return fmt.Errorf("storage.sqlite_dsn is required for the sqlite driver")
		}
	case DriverNATS:
		if c.Storage.NATSURL == "" {
			return fmt.Errorf("storage.nats_url is required for the nats driver")
		}
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the nats driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be one of %s, %s, %s", DriverSQLite, DriverNATS, DriverMemory)
	}
	for _, pattern := range slices.Concat(c.Jar.Exclude, c.Watch.Patterns) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid glob pattern %q", pattern)
		}
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Archive
	if other.Archive.WorkDir != "" {
		c.Archive.WorkDir = other.Archive.WorkDir
	}
	if other.Archive.KeepPacked {
		c.Archive.KeepPacked = true
	}

	// Jar
	if len(other.Jar.Extensions) > 0 {
		c.Jar.Extensions = other.Jar.Extensions
	}
	if other.Jar.Exclude != nil {
		c.Jar.Exclude = other.Jar.Exclude
	}

	// Query
	if other.Query.CacheSize != 0 {
		c.Query.CacheSize = other.Query.CacheSize
	}

	// Storage
	if other.Storage.Driver != "" {
		c.Storage.Driver = other.Storage.Driver
	}
	if other.Storage.SQLiteDSN != "" {
		c.Storage.SQLiteDSN = other.Storage.SQLiteDSN
	}
	if other.Storage.NATSURL != "" {
		c.Storage.NATSURL = other.Storage.NATSURL
	}
	if other.Storage.Bucket != "" {
		c.Storage.Bucket = other.Storage.Bucket
	}

	// Events
	if other.Events.NATSURL != "" {
		c.Events.NATSURL = other.Events.NATSURL
	}
	if other.Events.SubjectPrefix != "" {
		c.Events.SubjectPrefix = other.Events.SubjectPrefix
	}

	// Watch
	if other.Watch.Dir != "" {
		c.Watch.Dir = other.Watch.Dir
	}
	if len(other.Watch.Patterns) > 0 {
		c.Watch.Patterns = other.Watch.Patterns
	}
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
}
