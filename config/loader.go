package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "artificer.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/artificer"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvFile is the dotenv file read from the working directory
	EnvFile = ".env"
	// EnvPrefix prefixes every environment override
	EnvPrefix = "ARTIFICER_"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger  *slog.Logger
	lookup  func(string) (string, bool)
	homeDir func() (string, error)
	workDir func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:  logger,
		lookup:  os.LookupEnv,
		homeDir: os.UserHomeDir,
		workDir: os.Getwd,
	}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/artificer/config.yaml)
// 3. Project config (artificer.yaml in current or parent directories)
// 4. .env in the current directory
// 5. ARTIFICER_* environment variables
func (l *Loader) Load() (*Config, error) {
	return l.LoadWith("")
}

// LoadWith is Load with an explicit config file used in place of the
// project config. An explicit file that cannot be read is an error.
func (l *Loader) LoadWith(path string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Load user config
	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		if userConfig, err := LoadFromFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	if path != "" {
		explicit, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", slog.String("path", path))
		config.Merge(explicit)
	} else if projectConfigPath := l.findProjectConfig(); projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	// .env never overrides variables already set in the process
	if err := godotenv.Load(l.envFilePath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("Failed to load env file", slog.String("error", err.Error()))
	}

	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	// Validate final config
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnv overrides config values from ARTIFICER_* variables.
func (l *Loader) applyEnv(c *Config) error {
	str := func(name string, dst *string) {
		if v, ok := l.lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := l.lookup(EnvPrefix + name); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("WORK_DIR", &c.Archive.WorkDir)
	list("JAR_EXTENSIONS", &c.Jar.Extensions)
	list("JAR_EXCLUDE", &c.Jar.Exclude)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("SQLITE_DSN", &c.Storage.SQLiteDSN)
	str("STORAGE_NATS_URL", &c.Storage.NATSURL)
	str("BUCKET", &c.Storage.Bucket)
	str("EVENTS_NATS_URL", &c.Events.NATSURL)
	str("SUBJECT_PREFIX", &c.Events.SubjectPrefix)
	str("WATCH_DIR", &c.Watch.Dir)
	list("WATCH_PATTERNS", &c.Watch.Patterns)

	// NATS_URL sets both connections unless they were set explicitly
	if v, ok := l.lookup(EnvPrefix + "NATS_URL"); ok && v != "" {
		if _, set := l.lookup(EnvPrefix + "STORAGE_NATS_URL"); !set {
			c.Storage.NATSURL = v
		}
		if _, set := l.lookup(EnvPrefix + "EVENTS_NATS_URL"); !set {
			c.Events.NATSURL = v
		}
	}

	if v, ok := l.lookup(EnvPrefix + "QUERY_CACHE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sQUERY_CACHE_SIZE: %w", EnvPrefix, err)
		}
		c.Query.CacheSize = n
	}
	if v, ok := l.lookup(EnvPrefix + "WATCH_DEBOUNCE"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sWATCH_DEBOUNCE: %w", EnvPrefix, err)
		}
		c.Watch.Debounce = d
	}
	if v, ok := l.lookup(EnvPrefix + "KEEP_PACKED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %sKEEP_PACKED: %w", EnvPrefix, err)
		}
		c.Archive.KeepPacked = b
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return fmt.Errorf("resolve user config path: no home directory")
	}

	// Check if it already exists
	if _, err := os.Stat(userConfigPath); err == nil {
		return nil // Already exists
	}

	// Create default config
	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := l.homeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

func (l *Loader) envFilePath() string {
	cwd, err := l.workDir()
	if err != nil {
		return EnvFile
	}
	return filepath.Join(cwd, EnvFile)
}

// findProjectConfig searches for artificer.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := l.workDir()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}
