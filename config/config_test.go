package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("expected default driver sqlite, got %s", cfg.Storage.Driver)
	}
	if cfg.Query.CacheSize != 256 {
		t.Errorf("expected default cache size 256, got %d", cfg.Query.CacheSize)
	}
	if cfg.Events.SubjectPrefix != "artificer" {
		t.Errorf("expected default subject prefix artificer, got %s", cfg.Events.SubjectPrefix)
	}
	if len(cfg.Watch.Patterns) != 4 {
		t.Errorf("expected 4 default watch patterns, got %d", len(cfg.Watch.Patterns))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "memory driver",
			modify:  func(c *Config) { c.Storage.Driver = DriverMemory },
			wantErr: false,
		},
		{
			name:    "unknown driver",
			modify:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantErr: true,
		},
		{
			name:    "sqlite without dsn",
			modify:  func(c *Config) { c.Storage.SQLiteDSN = "" },
			wantErr: true,
		},
		{
			name:    "nats without url",
			modify:  func(c *Config) { c.Storage.Driver = DriverNATS },
			wantErr: true,
		},
		{
			name: "nats with url",
			modify: func(c *Config) {
				c.Storage.Driver = DriverNATS
				c.Storage.NATSURL = "nats://localhost:4222"
			},
			wantErr: false,
		},
		{
			name:    "negative cache size",
			modify:  func(c *Config) { c.Query.CacheSize = -1 },
			wantErr: true,
		},
		{
			name:    "bad exclude glob",
			modify:  func(c *Config) { c.Jar.Exclude = []string{"[a-"} },
			wantErr: true,
		},
		{
			name:    "negative debounce",
			modify:  func(c *Config) { c.Watch.Debounce = -time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
archive:
  work_dir: "/tmp/artificer"
  keep_packed: true
jar:
  extensions: [xml, xsd]
  exclude: ["**/test/**"]
storage:
  driver: nats
  nats_url: "nats://test:4222"
watch:
  dir: "/drop"
  debounce: 2s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Archive.WorkDir != "/tmp/artificer" || !cfg.Archive.KeepPacked {
		t.Errorf("unexpected archive config %+v", cfg.Archive)
	}
	if len(cfg.Jar.Extensions) != 2 {
		t.Errorf("expected 2 extensions, got %d", len(cfg.Jar.Extensions))
	}
	if cfg.Storage.Driver != DriverNATS {
		t.Errorf("expected driver nats, got %s", cfg.Storage.Driver)
	}
	if cfg.Storage.NATSURL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.Storage.NATSURL)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("expected debounce 2s, got %v", cfg.Watch.Debounce)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Storage: StorageConfig{
			Driver: DriverMemory,
		},
		Watch: WatchConfig{
			Dir: "/override/drop",
		},
	}

	base.Merge(override)

	if base.Storage.Driver != DriverMemory {
		t.Errorf("expected driver memory, got %s", base.Storage.Driver)
	}
	// DSN should remain from base since override didn't set it
	if base.Storage.SQLiteDSN != "artificer.db" {
		t.Errorf("expected dsn to remain default, got %s", base.Storage.SQLiteDSN)
	}
	if base.Watch.Dir != "/override/drop" {
		t.Errorf("expected watch dir /override/drop, got %s", base.Watch.Dir)
	}
	if len(base.Watch.Patterns) != 4 {
		t.Errorf("expected default patterns to survive merge, got %v", base.Watch.Patterns)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Storage.SQLiteDSN = "saved.db"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Load and verify
	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Storage.SQLiteDSN != "saved.db" {
		t.Errorf("expected dsn saved.db, got %s", loaded.Storage.SQLiteDSN)
	}
	if loaded.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("expected debounce to round-trip, got %v", loaded.Watch.Debounce)
	}
}

func testLoader(t *testing.T, env map[string]string) (*Loader, string, string) {
	t.Helper()
	home := t.TempDir()
	cwd := t.TempDir()
	l := NewLoader(slog.Default())
	l.homeDir = func() (string, error) { return home, nil }
	l.workDir = func() (string, error) { return cwd, nil }
	l.lookup = func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
	return l, home, cwd
}

func TestLoaderLayers(t *testing.T) {
	l, home, cwd := testLoader(t, map[string]string{
		"ARTIFICER_SQLITE_DSN":     "env.db",
		"ARTIFICER_WATCH_DEBOUNCE": "3s",
		"ARTIFICER_NATS_URL":       "nats://env:4222",
	})

	user := DefaultConfig()
	user.Storage.SQLiteDSN = "user.db"
	user.Watch.Dir = "/user/drop"
	if err := user.SaveToFile(filepath.Join(home, UserConfigDir, UserConfigFile)); err != nil {
		t.Fatal(err)
	}
	project := "watch:\n  dir: /project/drop\nquery:\n  cache_size: 16\n"
	if err := os.WriteFile(filepath.Join(cwd, ProjectConfigFile), []byte(project), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Watch.Dir != "/project/drop" {
		t.Errorf("project config should override user config, got %s", cfg.Watch.Dir)
	}
	if cfg.Query.CacheSize != 16 {
		t.Errorf("expected cache size 16, got %d", cfg.Query.CacheSize)
	}
	if cfg.Storage.SQLiteDSN != "env.db" {
		t.Errorf("environment should override files, got %s", cfg.Storage.SQLiteDSN)
	}
	if cfg.Watch.Debounce != 3*time.Second {
		t.Errorf("expected debounce 3s, got %v", cfg.Watch.Debounce)
	}
	if cfg.Storage.NATSURL != "nats://env:4222" || cfg.Events.NATSURL != "nats://env:4222" {
		t.Errorf("ARTIFICER_NATS_URL should set both urls, got %q and %q", cfg.Storage.NATSURL, cfg.Events.NATSURL)
	}
}

func TestLoaderExplicitFile(t *testing.T) {
	l, _, _ := testLoader(t, nil)

	if _, err := l.LoadWith(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}

	path := filepath.Join(t.TempDir(), "explicit.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: memory\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := l.LoadWith(path)
	if err != nil {
		t.Fatalf("LoadWith() error = %v", err)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Errorf("expected driver memory, got %s", cfg.Storage.Driver)
	}
}

func TestLoaderEnvFile(t *testing.T) {
	l, _, cwd := testLoader(t, nil)
	l.lookup = os.LookupEnv

	const name = "ARTIFICER_SUBJECT_PREFIX"
	if _, set := os.LookupEnv(name); set {
		t.Skipf("%s is set in the environment", name)
	}
	t.Cleanup(func() { os.Unsetenv(name) })

	if err := os.WriteFile(filepath.Join(cwd, EnvFile), []byte(name+"=dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Events.SubjectPrefix != "dotenv" {
		t.Errorf("expected subject prefix from .env, got %s", cfg.Events.SubjectPrefix)
	}
}

func TestLoaderBadEnv(t *testing.T) {
	l, _, _ := testLoader(t, map[string]string{"ARTIFICER_QUERY_CACHE_SIZE": "lots"})
	if _, err := l.Load(); err == nil {
		t.Error("expected error for a non-numeric cache size")
	}
}

func TestEnsureUserConfig(t *testing.T) {
	l, home, _ := testLoader(t, nil)

	if err := l.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	path := filepath.Join(home, UserConfigDir, UserConfigFile)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Storage.Bucket != DefaultConfig().Storage.Bucket {
		t.Errorf("expected default bucket, got %s", cfg.Storage.Bucket)
	}

	// An existing file is left alone.
	if err := os.WriteFile(path, []byte("query:\n  cache_size: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := l.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	cfg, err = LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Query.CacheSize != 7 {
		t.Errorf("expected existing config kept, got cache size %d", cfg.Query.CacheSize)
	}
}
