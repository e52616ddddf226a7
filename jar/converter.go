// Package jar converts a JAR, WAR or EAR into an S-RAMP archive. Every
// regular file in the source archive is a candidate; a Filter picks the
// candidates to keep and a MetaDataFactory types them.
package jar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/c360studio/artificer/archive"
	"github.com/c360studio/artificer/metrics"
)

// Option configures a Converter.
type Option func(*Converter)

// WithFilter sets the candidate filter. The default accepts allow-listed
// extensions minus the default excludes.
func WithFilter(f Filter) Option {
	return func(c *Converter) {
		c.filter = f
	}
}

// WithMetaDataFactory sets the metadata factory.
func WithMetaDataFactory(f MetaDataFactory) Option {
	return func(c *Converter) {
		c.factory = f
	}
}

// WithExpander sets the filter and factory from an archive expander,
// layered over the default filter and factory.
func WithExpander(e *Expander) Option {
	return func(c *Converter) {
		c.filter = e.Filter(nil)
		c.factory = e.Factory(nil)
		c.archiveType = e.Type
	}
}

// WithBaseDir sets the directory working directories and buffered input
// are created in. The produced archive uses it too.
func WithBaseDir(dir string) Option {
	return func(c *Converter) {
		c.baseDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Converter) {
		c.metrics = m
	}
}

// Converter holds one unpacked source archive. It owns a working directory
// until Close and is not safe for concurrent use.
type Converter struct {
	filter      Filter
	factory     MetaDataFactory
	baseDir     string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	archiveType string

	source  string
	buffer  string
	workDir string
	fs      billy.Filesystem
	closed  bool
}

// NewConverter unpacks the archive at file into a private working
// directory. On failure nothing is left behind.
func NewConverter(file string, opts ...Option) (*Converter, error) {
	c := newConverter(opts)
	c.source = file
	if err := c.unpack(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewConverterFromReader buffers r to a temporary file and unpacks it. The
// buffer is removed by Close.
func NewConverterFromReader(r io.Reader, opts ...Option) (*Converter, error) {
	c := newConverter(opts)

	tmp, err := os.CreateTemp(c.baseDir, "artificer-jar-*.jar")
	if err != nil {
		return nil, fmt.Errorf("buffer archive: %w", err)
	}
	c.buffer = tmp.Name()
	c.source = c.buffer

	_, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		c.CloseQuietly()
		return nil, fmt.Errorf("buffer archive: %w", err)
	}
	if err := c.unpack(); err != nil {
		return nil, err
	}
	return c, nil
}

func newConverter(opts []Option) *Converter {
	c := &Converter{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.filter == nil {
		c.filter = defaultFilter
	}
	if c.factory == nil {
		c.factory = DefaultMetaDataFactory{}
	}
	if c.archiveType == "" {
		c.archiveType = "default"
	}
	return c
}

func (c *Converter) unpack() error {
	dir, err := os.MkdirTemp(c.baseDir, "artificer-jar-*.work")
	if err != nil {
		c.CloseQuietly()
		return fmt.Errorf("create work dir: %w", err)
	}
	c.workDir = dir
	c.fs = osfs.New(dir)

	if err := archive.Unpack(c.source, c.fs); err != nil {
		c.CloseQuietly()
		return fmt.Errorf("unpack %s: %w", filepath.Base(c.source), err)
	}
	c.logger.Debug("Archive unpacked", "source", c.source, "work_dir", dir)
	return nil
}

// WorkDir returns the working directory. It is removed by Close.
func (c *Converter) WorkDir() string {
	return c.workDir
}

// Candidates lists every regular file in the source archive in lexical
// path order.
func (c *Converter) Candidates() ([]CandidateArtifact, error) {
	if c.closed {
		return nil, ErrClosed
	}
	var candidates []CandidateArtifact
	err := util.Walk(c.fs, ".", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		candidates = append(candidates, CandidateArtifact{
			Path: filepath.ToSlash(p),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return candidates, nil
}

// Convert runs every candidate through the filter and then the factory and
// returns a new archive holding the accepted ones. The caller closes the
// archive. Filter and factory errors are returned as is.
func (c *Converter) Convert(ctx context.Context) (*archive.Archive, error) {
	start := time.Now()
	out, err := c.convert(ctx)
	entries := 0
	if out != nil {
		if list, listErr := out.Entries(); listErr == nil {
			entries = len(list)
		}
	}
	c.metrics.RecordConversion(c.archiveType, entries, time.Since(start), err)
	return out, err
}

func (c *Converter) convert(ctx context.Context) (*archive.Archive, error) {
	candidates, err := c.Candidates()
	if err != nil {
		return nil, err
	}

	convCtx := newContext(c.fs, c.workDir)
	convCtx.Set(ContextCandidates, candidates)

	out, err := archive.New(archive.WithBaseDir(c.baseDir), archive.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}

	// Every candidate is filtered before any metadata is created, so the
	// factory sees the filter's complete state in the context.
	var discovered []*DiscoveredArtifact
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			out.CloseQuietly()
			return nil, err
		}
		ok, err := c.filter.Accepts(convCtx, candidate)
		if err != nil {
			out.CloseQuietly()
			return nil, err
		}
		if ok {
			discovered = append(discovered, &DiscoveredArtifact{CandidateArtifact: candidate, fs: c.fs})
		}
	}

	for _, d := range discovered {
		if err := ctx.Err(); err != nil {
			out.CloseQuietly()
			return nil, err
		}
		if err := c.addDiscovered(convCtx, out, d); err != nil {
			out.CloseQuietly()
			return nil, err
		}
	}

	c.logger.Info("Archive converted",
		slog.String("source", filepath.Base(c.source)),
		slog.String("archive_type", c.archiveType),
		slog.Int("candidates", len(candidates)),
		slog.Int("discovered", len(discovered)))
	return out, nil
}

func (c *Converter) addDiscovered(ctx *Context, out *archive.Archive, d *DiscoveredArtifact) error {
	meta, err := c.factory.CreateMetaData(ctx, d)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("%w: %s", ErrNoMetaData, d.Path)
	}
	meta.EnsureUUID()
	d.Metadata = meta

	content, err := d.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", d.Path, err)
	}
	defer content.Close()

	return out.AddEntry(d.Path, meta, content)
}

// Close removes the working directory and any buffered input. It is safe
// to call more than once.
func (c *Converter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.workDir != "" {
		parent := osfs.New(filepath.Dir(c.workDir))
		if err := util.RemoveAll(parent, filepath.Base(c.workDir)); err != nil {
			errs = append(errs, fmt.Errorf("remove work dir: %w", err))
		}
	}
	if c.buffer != "" {
		if err := os.Remove(c.buffer); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove buffered archive: %w", err))
		}
	}
	return errors.Join(errs...)
}

// CloseQuietly is Close for deferred cleanup. Failures are logged.
func (c *Converter) CloseQuietly() {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		c.logger.Warn("Failed to close converter", "error", err)
	}
}
