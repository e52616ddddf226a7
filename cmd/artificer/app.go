package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/artificer/config"
	"github.com/c360studio/artificer/graph"
	"github.com/c360studio/artificer/jar"
	"github.com/c360studio/artificer/metrics"
	"github.com/c360studio/artificer/processor/ingester"
	"github.com/c360studio/artificer/query/adapter"
	"github.com/c360studio/artificer/query/eval"
	"github.com/c360studio/artificer/storage"
)

// App wires configuration, storage and messaging for one command run.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	// NATS connections, shared when storage and events use the same server
	conns map[string]*nats.Conn

	store storage.Store
	cache *adapter.Cache
}

// NewApp loads configuration. Connections are opened lazily.
func NewApp(flags *globalFlags) (*App, error) {
	logger := slog.Default()
	cfg, err := config.NewLoader(logger).LoadWith(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	app := &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(nil),
		conns:   make(map[string]*nats.Conn),
	}
	if cfg.Query.CacheSize > 0 {
		cache, err := adapter.NewCache(cfg.Query.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create query cache: %w", err)
		}
		app.cache = cache
	}
	return app, nil
}

// Store opens the configured artifact store.
func (a *App) Store(ctx context.Context) (storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	var (
		store storage.Store
		err   error
	)
	switch a.cfg.Storage.Driver {
	case config.DriverSQLite:
		store, err = storage.OpenSQLite(a.cfg.Storage.SQLiteDSN)
	case config.DriverNATS:
		var nc *nats.Conn
		nc, err = a.connect(a.cfg.Storage.NATSURL)
		if err != nil {
			return nil, err
		}
		var js jetstream.JetStream
		js, err = jetstream.New(nc)
		if err != nil {
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		store, err = storage.NewKVStore(ctx, js, a.cfg.Storage.Bucket)
	case config.DriverMemory:
		store = storage.NewMemoryStore()
	default:
		err = fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Storage.Driver, err)
	}

	a.logger.Debug("Store opened", "driver", a.cfg.Storage.Driver)
	a.store = store
	return store, nil
}

// Query prepares a query over the configured store.
func (a *App) Query(ctx context.Context, template string) (*adapter.Query, error) {
	store, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	opts := []adapter.Option{
		adapter.WithValidator(eval.Validator(eval.DefaultFunctions)),
		adapter.WithMetrics(a.metrics),
		adapter.WithLogger(a.logger),
	}
	if a.cache != nil {
		opts = append(opts, adapter.WithCache(a.cache))
	}
	return adapter.New(template, eval.NewExecutor(store, a.logger), opts...), nil
}

// Filter builds the configured candidate filter.
func (a *App) Filter() (jar.Filter, error) {
	f, err := jar.NewDefaultFilter(a.cfg.Jar.Extensions, a.cfg.Jar.Exclude)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Publisher returns the graph event publisher. Without an events URL it
// drops every event.
func (a *App) Publisher() (*graph.Publisher, error) {
	if a.cfg.Events.NATSURL == "" {
		return graph.NewPublisher(nil, a.cfg.Events.SubjectPrefix, a.logger), nil
	}
	nc, err := a.connect(a.cfg.Events.NATSURL)
	if err != nil {
		return nil, err
	}
	return graph.NewPublisher(nc, a.cfg.Events.SubjectPrefix, a.logger), nil
}

// Ingester builds the archive ingestion pipeline.
func (a *App) Ingester(ctx context.Context) (*ingester.Ingester, error) {
	store, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	filter, err := a.Filter()
	if err != nil {
		return nil, err
	}
	publisher, err := a.Publisher()
	if err != nil {
		return nil, err
	}
	opts := []ingester.Option{
		ingester.WithFilter(filter),
		ingester.WithPublisher(publisher),
		ingester.WithMetrics(a.metrics, a.cfg.Storage.Driver),
		ingester.WithBaseDir(a.cfg.Archive.WorkDir),
		ingester.WithLogger(a.logger),
	}
	if a.cfg.Archive.KeepPacked {
		opts = append(opts, ingester.WithKeepPacked(a.cfg.Archive.WorkDir))
	}
	return ingester.New(store, opts...), nil
}

func (a *App) connect(url string) (*nats.Conn, error) {
	if nc, ok := a.conns[url]; ok {
		return nc, nil
	}

	a.logger.Info("Connecting to NATS", "url", url)
	nc, err := nats.Connect(url,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.Timeout(10*time.Second))
	if err != nil {
		return nil, wrapNATSError(err, url)
	}

	a.logger.Info("Connected to NATS", "url", url)
	a.conns[url] = nc
	return nc, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	// Check for common connection errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker run -p 4222:4222 nats -js

Or set ARTIFICER_NATS_URL to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

// Close releases the store and drains NATS connections.
func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close store", "error", err)
		}
	}
	for url, nc := range a.conns {
		if err := nc.Drain(); err != nil {
			a.logger.Warn("Failed to drain NATS connection", "url", url, "error", err)
		}
	}
}
