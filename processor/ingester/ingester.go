// Package ingester turns dropped archives into stored artifacts. Each file
// is converted to an S-RAMP archive, its entries are stored, derivation
// runs over every entry and the results are stored and published.
package ingester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360studio/artificer/archive"
	"github.com/c360studio/artificer/artifact"
	"github.com/c360studio/artificer/derive"
	"github.com/c360studio/artificer/graph"
	"github.com/c360studio/artificer/jar"
	"github.com/c360studio/artificer/metrics"
	"github.com/c360studio/artificer/query/eval"
	"github.com/c360studio/artificer/storage"
)

const (
	// DefaultArchiveType labels files no expander recognizes.
	DefaultArchiveType = "default"
	// PackedSuffix names kept S-RAMP archives.
	PackedSuffix = ".sramp"
)

// Result summarizes one ingested file.
type Result struct {
	Source      string
	ArchiveType string
	Entries     []*artifact.Artifact
	Derived     []*artifact.Artifact
	// Packed is the kept S-RAMP archive, when packing is enabled.
	Packed string
	// Failed lists entries whose derivation failed. They stay stored
	// without derived artifacts.
	Failed []Failure
}

// Failure is a derivation error for one stored entry.
type Failure struct {
	Entry *artifact.Artifact
	Err   error
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithFilter sets the base candidate filter. Expanders layer their
// descriptors on top of it.
func WithFilter(f jar.Filter) Option {
	return func(in *Ingester) {
		in.filter = f
	}
}

// WithDeriver replaces the deriver built over the store.
func WithDeriver(d *derive.Deriver) Option {
	return func(in *Ingester) {
		in.deriver = d
	}
}

// WithPublisher sets the graph event publisher.
func WithPublisher(p *graph.Publisher) Option {
	return func(in *Ingester) {
		in.publisher = p
	}
}

// WithMetrics sets the metrics sink and the store label used for it.
func WithMetrics(m *metrics.Metrics, storeName string) Option {
	return func(in *Ingester) {
		in.metrics = m
		in.storeName = storeName
	}
}

// WithBaseDir sets the parent of conversion working directories.
func WithBaseDir(dir string) Option {
	return func(in *Ingester) {
		in.baseDir = dir
	}
}

// WithKeepPacked keeps the converted S-RAMP archive of every successful
// ingest as <dir>/<name>.sramp. An empty dir keeps it next to the source.
func WithKeepPacked(dir string) Option {
	return func(in *Ingester) {
		in.keepPacked = true
		in.packedDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Ingester) {
		in.logger = logger
	}
}

// Ingester runs the convert, store, derive and publish pipeline.
type Ingester struct {
	store     storage.Store
	filter    jar.Filter
	deriver   *derive.Deriver
	publisher *graph.Publisher
	metrics   *metrics.Metrics
	storeName string
	baseDir   string
	logger    *slog.Logger

	keepPacked bool
	packedDir  string
}

// New creates an ingester writing to store. Unless WithDeriver is given,
// cross-document references are resolved by querying the store.
func New(store storage.Store, opts ...Option) *Ingester {
	in := &Ingester{
		store:     store,
		storeName: "store",
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.logger == nil {
		in.logger = slog.Default()
	}
	if in.publisher == nil {
		in.publisher = graph.NewPublisher(nil, "", in.logger)
	}
	if in.deriver == nil {
		lookup := derive.ExecutorLookup(eval.NewExecutor(visibleSource(store), in.logger))
		in.deriver = derive.NewDeriver(nil,
			derive.WithLookup(lookup),
			derive.WithMetrics(in.metrics),
			derive.WithLogger(in.logger))
	}
	return in
}

type replacingKey struct{}

// visibleSource hides the artifacts a Replace is about to remove from
// lookups made during that Replace.
func visibleSource(store storage.Store) eval.Source {
	return eval.SourceFunc(func(ctx context.Context) ([]*artifact.Artifact, error) {
		all, err := store.Artifacts(ctx)
		if err != nil {
			return nil, err
		}
		hidden, _ := ctx.Value(replacingKey{}).(map[string]bool)
		if len(hidden) == 0 {
			return all, nil
		}
		visible := all[:0]
		for _, a := range all {
			if !hidden[a.UUID] {
				visible = append(visible, a)
			}
		}
		return visible, nil
	})
}

// Replace ingests the archive at path in place of the artifacts in
// previous. The previous artifacts are invisible to reference lookups
// during the ingest and are removed only once it succeeds.
func (in *Ingester) Replace(ctx context.Context, path string, previous []string) (*Result, error) {
	if len(previous) > 0 {
		hidden := make(map[string]bool, len(previous))
		for _, id := range previous {
			hidden[id] = true
		}
		ctx = context.WithValue(ctx, replacingKey{}, hidden)
	}
	res, err := in.IngestFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := in.Remove(ctx, previous); err != nil {
		return res, fmt.Errorf("remove previous artifacts: %w", err)
	}
	return res, nil
}

// IngestFile ingests the archive at path.
func (in *Ingester) IngestFile(ctx context.Context, path string) (*Result, error) {
	start := time.Now()
	res, err := in.ingest(ctx, path)
	in.metrics.RecordIngest(err)
	if err != nil {
		in.logger.Error("Ingest failed", slog.String("path", path), slog.String("error", err.Error()))
		return nil, err
	}
	in.logger.Info("Archive ingested",
		slog.String("path", path),
		slog.String("archive_type", res.ArchiveType),
		slog.Int("entries", len(res.Entries)),
		slog.Int("derived", len(res.Derived)),
		slog.Int("failed", len(res.Failed)),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

func (in *Ingester) ingest(ctx context.Context, path string) (*Result, error) {
	opts := []jar.Option{
		jar.WithBaseDir(in.baseDir),
		jar.WithLogger(in.logger),
		jar.WithMetrics(in.metrics),
	}
	if in.filter != nil {
		opts = append(opts, jar.WithFilter(in.filter))
	}

	archiveType := DefaultArchiveType
	expander, err := jar.DefaultExpanders.Detect(path)
	switch {
	case err == nil:
		archiveType = expander.Type
		opts = append(opts, jar.WithExpander(expander))
		if in.filter != nil {
			opts = append(opts, jar.WithFilter(expander.Filter(in.filter)))
		}
	case errors.Is(err, jar.ErrUnknownArchiveType):
		// Plain ZIP, convert with the base filter and factory
	default:
		return nil, fmt.Errorf("detect archive type: %w", err)
	}

	conv, err := jar.NewConverter(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer conv.CloseQuietly()

	out, err := conv.Convert(ctx)
	if err != nil {
		return nil, fmt.Errorf("convert archive: %w", err)
	}
	defer out.CloseQuietly()

	res := &Result{Source: path, ArchiveType: archiveType}
	if err := in.storeAndDerive(ctx, out, res); err != nil {
		in.rollback(ctx, res)
		return nil, err
	}

	if in.keepPacked {
		packed, err := in.keep(out, path)
		if err != nil {
			in.rollback(ctx, res)
			return nil, err
		}
		res.Packed = packed
	}

	if err := in.publisher.PublishConverted(ctx, path, archiveType, res.Entries); err != nil {
		in.logger.Warn("Failed to publish archive event", slog.String("path", path), slog.String("error", err.Error()))
	}
	if err := in.publisher.PublishDerived(ctx, res.Derived); err != nil {
		in.logger.Warn("Failed to publish derived artifacts", slog.String("path", path), slog.String("error", err.Error()))
	}
	return res, nil
}

func (in *Ingester) storeAndDerive(ctx context.Context, out *archive.Archive, res *Result) error {
	contents, err := in.storeEntries(ctx, out, res)
	if err != nil {
		return err
	}

	// Every entry is built and stored with its updated properties before
	// any reference is resolved, so documents of the same archive find each
	// other whatever their order.
	builds := make([]*derive.Derivation, len(res.Entries))
	for i, primary := range res.Entries {
		x, err := in.deriver.Build(ctx, primary, contents[i])
		if err != nil {
			if err := in.derivationFailed(ctx, res, primary, err); err != nil {
				return err
			}
			continue
		}
		if x == nil {
			continue
		}
		if err := in.store.Put(ctx, x.Primary(), contents[i]); err != nil {
			return fmt.Errorf("store %s: %w", primary.Name, err)
		}
		builds[i] = x
	}

	for i, x := range builds {
		if x == nil {
			continue
		}
		primary := res.Entries[i]
		derived, err := x.Resolve(ctx)
		if err != nil {
			if err := in.derivationFailed(ctx, res, primary, err); err != nil {
				return err
			}
			// Put back the entry as converted
			if err := in.store.Put(ctx, primary, contents[i]); err != nil {
				return fmt.Errorf("store %s: %w", primary.Name, err)
			}
			continue
		}
		if err := in.store.Put(ctx, primary, contents[i]); err != nil {
			return fmt.Errorf("store %s: %w", primary.Name, err)
		}
		if len(derived) == 0 {
			continue
		}
		// Tracked before storing so a rollback covers partial writes
		res.Derived = append(res.Derived, derived...)
		for _, d := range derived {
			if err := in.store.Put(ctx, d, nil); err != nil {
				return fmt.Errorf("store derived %s: %w", d.Name, err)
			}
		}
		in.metrics.RecordStored(in.storeName, len(derived))
	}
	return nil
}

// derivationFailed records a failed entry. Cancellation is returned
// instead since it fails the whole ingest.
func (in *Ingester) derivationFailed(ctx context.Context, res *Result, primary *artifact.Artifact, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	in.logger.Warn("Derivation failed, entry kept without derived artifacts",
		slog.String("entry", primary.Name),
		slog.String("error", err.Error()))
	res.Failed = append(res.Failed, Failure{Entry: primary, Err: err})
	return nil
}

// keep packs out next to the source or into the packed dir.
func (in *Ingester) keep(out *archive.Archive, source string) (string, error) {
	dir := in.packedDir
	if dir == "" {
		dir = filepath.Dir(source)
	}
	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)) + PackedSuffix
	dst := filepath.Join(dir, name)
	if err := out.PackTo(dst); err != nil {
		return "", fmt.Errorf("keep packed archive: %w", err)
	}
	in.logger.Debug("Packed archive kept", slog.String("path", dst))
	return dst, nil
}

// rollback deletes whatever a failed ingest stored.
func (in *Ingester) rollback(ctx context.Context, res *Result) {
	ids := res.UUIDs()
	if len(ids) == 0 {
		return
	}
	if err := in.Remove(context.WithoutCancel(ctx), ids); err != nil {
		in.logger.Error("Rollback failed", slog.String("source", res.Source), slog.String("error", err.Error()))
		return
	}
	in.logger.Debug("Rolled back partial ingest", slog.String("source", res.Source), slog.Int("artifacts", len(ids)))
}

func (in *Ingester) storeEntries(ctx context.Context, out *archive.Archive, res *Result) ([][]byte, error) {
	entries, err := out.Entries()
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	contents := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		meta, err := entry.Metadata()
		if err != nil {
			return nil, fmt.Errorf("read metadata %s: %w", entry.Path, err)
		}
		data, err := readContent(out, entry)
		if err != nil {
			return nil, err
		}
		res.Entries = append(res.Entries, meta)
		contents = append(contents, data)
		if err := in.store.Put(ctx, meta, data); err != nil {
			return nil, fmt.Errorf("store %s: %w", entry.Path, err)
		}
	}
	in.metrics.RecordStored(in.storeName, len(entries))
	return contents, nil
}

func readContent(out *archive.Archive, entry *archive.Entry) ([]byte, error) {
	rc, err := out.Content(entry)
	if err != nil {
		return nil, fmt.Errorf("open content %s: %w", entry.Path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read content %s: %w", entry.Path, err)
	}
	return data, nil
}

// Remove deletes previously ingested artifacts from the store. Artifacts
// that are already gone are skipped.
func (in *Ingester) Remove(ctx context.Context, uuids []string) error {
	for _, id := range uuids {
		if err := in.store.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return nil
}

// UUIDs returns the UUIDs of every artifact in the result.
func (r *Result) UUIDs() []string {
	ids := make([]string, 0, len(r.Entries)+len(r.Derived))
	for _, a := range r.Entries {
		ids = append(ids, a.UUID)
	}
	for _, a := range r.Derived {
		ids = append(ids, a.UUID)
	}
	return ids
}
