package ingester

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultPatterns selects the archives a watcher ingests.
var DefaultPatterns = []string{"**/*.jar", "**/*.war", "**/*.ear", "**/*.zip"}

// WatcherConfig configures the drop-directory watcher
type WatcherConfig struct {
	// Dir is the root directory to watch
	Dir string

	// Patterns are doublestar globs matched against paths relative to Dir
	Patterns []string

	// DebounceDelay is how long a file must be quiet before it is ingested
	DebounceDelay time.Duration

	// Logger for logging events
	Logger *slog.Logger
}

// WatchEvent reports one handled file
type WatchEvent struct {
	// Path is the file path relative to Dir
	Path string

	// Operation is the type of change
	Operation WatchOperation

	// Result is the ingest result (nil for delete operations)
	Result *Result

	// Error if ingesting failed
	Error error
}

// WatchOperation indicates the type of file operation
type WatchOperation string

const (
	OpCreate WatchOperation = "create"
	OpModify WatchOperation = "modify"
	OpDelete WatchOperation = "delete"
)

// Watcher ingests archives as they appear in a directory.
type Watcher struct {
	config   WatcherConfig
	ingester *Ingester
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	// Debouncing: a path is handled once it has been quiet for DebounceDelay
	pendingMu sync.Mutex
	pending   map[string]pendingChange

	// Content hashes and ingested UUIDs keyed by relative path
	stateMu  sync.Mutex
	hashes   map[string]string
	ingested map[string][]string

	// sendMu guards events against sends after the loop closed it
	sendMu  sync.Mutex
	closed  bool
	started bool
	events  chan WatchEvent
	done    chan struct{}
}

type pendingChange struct {
	op   fsnotify.Op
	seen time.Time
}

// NewWatcher creates a watcher feeding in.
func NewWatcher(config WatcherConfig, in *Ingester) (*Watcher, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("watch dir is required")
	}
	if len(config.Patterns) == 0 {
		config.Patterns = DefaultPatterns
	}
	for _, pattern := range config.Patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid watch pattern %q", pattern)
		}
	}
	if config.DebounceDelay == 0 {
		config.DebounceDelay = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		config:   config,
		ingester: in,
		watcher:  fsw,
		logger:   logger,
		pending:  make(map[string]pendingChange),
		hashes:   make(map[string]string),
		ingested: make(map[string][]string),
		events:   make(chan WatchEvent, 100),
		done:     make(chan struct{}),
	}, nil
}

// Events returns the channel of watch events. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Matches reports whether a path relative to Dir is watched.
func (w *Watcher) Matches(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, pattern := range w.config.Patterns {
		if doublestar.MatchUnvalidated(pattern, relPath) {
			return true
		}
	}
	return false
}

// Scan ingests every matching file already in Dir.
func (w *Watcher) Scan(ctx context.Context) error {
	seen := make(map[string]bool)
	root := os.DirFS(w.config.Dir)
	for _, pattern := range w.config.Patterns {
		matches, err := doublestar.Glob(root, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, rel := range matches {
			if seen[rel] || hiddenPath(rel) {
				continue
			}
			seen[rel] = true
			if err := ctx.Err(); err != nil {
				return err
			}
			// Files seen before count as modified
			w.handleChange(ctx, filepath.Join(w.config.Dir, filepath.FromSlash(rel)), fsnotify.Write)
		}
	}
	return nil
}

// Start begins watching the directory for changes
func (w *Watcher) Start(ctx context.Context) error {
	// Add watches recursively
	if err := w.addWatchesRecursive(w.config.Dir); err != nil {
		return err
	}

	// Start the event processing goroutine
	w.started = true
	go w.processEvents(ctx)

	w.logger.Info("File watcher started",
		"root", w.config.Dir,
		"patterns", w.config.Patterns,
		"debounce", w.config.DebounceDelay)

	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	if w.started {
		<-w.done
	}
	return err
}

// addWatchesRecursive adds watches to all directories
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Only watch directories
		if !d.IsDir() {
			return nil
		}

		// Skip hidden directories
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		w.addWatch(path)
		return nil
	})
}

func (w *Watcher) addWatch(path string) {
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("Failed to watch directory",
			"path", path,
			"error", err)
	} else {
		w.logger.Debug("Watching directory", "path", path)
	}
}

// processEvents handles fsnotify events with debouncing
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	defer func() {
		w.sendMu.Lock()
		w.closed = true
		close(w.events)
		w.sendMu.Unlock()
	}()

	ticker := time.NewTicker(max(w.config.DebounceDelay/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case now := <-ticker.C:
			w.flushPending(ctx, now)
		}
	}
}

// handleFSEvent processes a single fsnotify event
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	// Handle directory creation (for new watches)
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(path), ".") {
				w.addWatch(path)
			}
			return
		}
	}

	relPath, err := filepath.Rel(w.config.Dir, path)
	if err != nil || hiddenPath(relPath) || !w.Matches(relPath) {
		return
	}

	// Accumulate pending changes; a later event restarts the quiet period
	w.pendingMu.Lock()
	change := w.pending[path]
	change.op |= event.Op
	change.seen = time.Now()
	w.pending[path] = change
	w.pendingMu.Unlock()

	w.logger.Debug("File change detected",
		"path", relPath,
		"op", event.Op.String())
}

// flushPending handles changes that have been quiet long enough
func (w *Watcher) flushPending(ctx context.Context, now time.Time) {
	w.pendingMu.Lock()
	ready := make(map[string]fsnotify.Op)
	for path, change := range w.pending {
		if now.Sub(change.seen) >= w.config.DebounceDelay {
			ready[path] = change.op
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	for path, op := range ready {
		if ctx.Err() != nil {
			return
		}
		w.handleChange(ctx, path, op)
	}
}

// handleChange ingests or removes one file.
func (w *Watcher) handleChange(ctx context.Context, path string, op fsnotify.Op) {
	relPath, _ := filepath.Rel(w.config.Dir, path)
	event := WatchEvent{Path: filepath.ToSlash(relPath)}

	// Check if file still exists
	if _, err := os.Stat(path); err != nil {
		event.Operation = OpDelete
		w.stateMu.Lock()
		uuids := w.ingested[event.Path]
		delete(w.ingested, event.Path)
		delete(w.hashes, event.Path)
		w.stateMu.Unlock()
		event.Error = w.ingester.Remove(ctx, uuids)
		w.sendEvent(event)
		return
	}

	hash, err := hashFile(path)
	if err != nil {
		event.Error = err
		w.sendEvent(event)
		return
	}

	// Check if content actually changed
	w.stateMu.Lock()
	oldHash, hadHash := w.hashes[event.Path]
	previous := w.ingested[event.Path]
	w.stateMu.Unlock()
	if hadHash && oldHash == hash {
		return
	}

	if op.Has(fsnotify.Create) || !hadHash {
		event.Operation = OpCreate
	} else {
		event.Operation = OpModify
	}

	// A modified archive replaces everything it produced before. The
	// previous artifacts stay until the new ingest succeeds.
	result, err := w.ingester.Replace(ctx, path, previous)
	if result == nil {
		event.Error = err
		w.sendEvent(event)
		return
	}
	event.Error = err

	w.stateMu.Lock()
	w.hashes[event.Path] = hash
	w.ingested[event.Path] = result.UUIDs()
	w.stateMu.Unlock()

	event.Result = result
	w.sendEvent(event)
}

// sendEvent sends an event to the output channel
func (w *Watcher) sendEvent(event WatchEvent) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.events <- event:
		w.logger.Debug("Sent watch event",
			"path", event.Path,
			"op", event.Operation)
	default:
		w.logger.Warn("Event channel full, dropping event",
			"path", event.Path)
	}
}

func hiddenPath(relPath string) bool {
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
