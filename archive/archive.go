// Package archive implements the S-RAMP package format: a ZIP in which every
// artifact is stored as its content at <path> plus its metadata at
// <path>.atom.
//
// An Archive owns a private working directory from construction until
// Close. It is not safe for concurrent use.
package archive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/c360studio/artificer/artifact"
)

// MetadataSuffix is appended to an entry path to name its sidecar.
const MetadataSuffix = ".atom"

// Option configures an Archive.
type Option func(*Archive)

// WithBaseDir sets the directory working directories are created in.
// The default is os.TempDir().
func WithBaseDir(dir string) Option {
	return func(a *Archive) {
		a.baseDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// Archive is an open S-RAMP package backed by a working directory.
type Archive struct {
	baseDir string
	workDir string
	fs      billy.Filesystem
	logger  *slog.Logger

	// original is the temp zip materialized by OpenReader, removed on Close.
	original string
	closed   bool
}

// New creates an empty archive.
func New(opts ...Option) (*Archive, error) {
	a := &Archive{}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if err := a.createWorkDir(); err != nil {
		return nil, err
	}
	return a, nil
}

// Open creates an archive from a package file on disk.
func Open(file string, opts ...Option) (*Archive, error) {
	a, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := unpackZip(file, a.fs); err != nil {
		a.CloseQuietly()
		return nil, archiveErr("unpack", file, err)
	}
	a.logger.Debug("Archive opened", "file", file, "work_dir", a.workDir)
	return a, nil
}

// OpenReader creates an archive from a package stream. The stream is copied
// to a temporary file, which is removed when the archive is closed.
func OpenReader(r io.Reader, opts ...Option) (*Archive, error) {
	a, err := New(opts...)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(a.baseDir, "artificer-archive-*.zip")
	if err != nil {
		a.CloseQuietly()
		return nil, archiveErr("buffer", "", err)
	}
	a.original = tmp.Name()

	_, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		a.CloseQuietly()
		return nil, archiveErr("buffer", a.original, err)
	}

	if err := unpackZip(a.original, a.fs); err != nil {
		a.CloseQuietly()
		return nil, archiveErr("unpack", "", err)
	}
	return a, nil
}

func (a *Archive) createWorkDir() error {
	dir, err := os.MkdirTemp(a.baseDir, "artificer-archive-*.work")
	if err != nil {
		return archiveErr("create work dir", a.baseDir, err)
	}
	a.workDir = dir
	a.fs = osfs.New(dir)
	return nil
}

// WorkDir returns the working directory. It is removed by Close.
func (a *Archive) WorkDir() string {
	return a.workDir
}

// Filesystem returns the working directory as a billy filesystem.
func (a *Archive) Filesystem() billy.Filesystem {
	return a.fs
}

func (a *Archive) checkOpen() error {
	if a.closed {
		return ErrClosed
	}
	return nil
}

// cleanPath normalizes an entry path and rejects paths that would escape
// the working directory.
func cleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	clean := path.Clean("/" + p)[1:]
	if clean == "" || clean == "." {
		return "", fmt.Errorf("invalid entry path %q", p)
	}
	if strings.HasSuffix(clean, MetadataSuffix) {
		return "", fmt.Errorf("entry path %q uses the reserved %s suffix", p, MetadataSuffix)
	}
	return clean, nil
}

// AddEntry writes content to path and metadata to its sidecar, replacing
// any existing entry at path. A nil content reader stores metadata only.
func (a *Archive) AddEntry(entryPath string, metadata *artifact.Artifact, content io.Reader) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	p, err := cleanPath(entryPath)
	if err != nil {
		return archiveErr("add", entryPath, err)
	}
	if metadata == nil {
		return archiveErr("add", p, errors.New("missing metadata"))
	}

	if err := a.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return archiveErr("add", p, err)
	}
	if content != nil {
		if err := a.writeContent(p, content); err != nil {
			return err
		}
	} else if err := a.removeIfFile(p); err != nil {
		return archiveErr("add", p, err)
	}
	if err := a.writeMetadata(p, metadata); err != nil {
		return err
	}
	a.logger.Debug("Archive entry added", "path", p, "type", metadata.Type.String())
	return nil
}

// UpdateEntry rewrites an existing entry's metadata and, when content is not
// nil, its content.
func (a *Archive) UpdateEntry(entry *Entry, content io.Reader) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if entry == nil {
		return archiveErr("update", "", errors.New("missing entry"))
	}
	p, err := cleanPath(entry.Path)
	if err != nil {
		return archiveErr("update", entry.Path, err)
	}
	if content != nil {
		if err := a.writeContent(p, content); err != nil {
			return err
		}
	}
	if entry.metadata != nil {
		if err := a.writeMetadata(p, entry.metadata); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) writeContent(p string, content io.Reader) error {
	f, err := a.fs.Create(p)
	if err != nil {
		return archiveErr("write content", p, err)
	}
	_, copyErr := io.Copy(f, content)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return archiveErr("write content", p, err)
	}
	return nil
}

func (a *Archive) writeMetadata(p string, metadata *artifact.Artifact) error {
	data, err := artifact.Marshal(metadata)
	if err != nil {
		return archiveErr("write metadata", p, err)
	}
	if err := util.WriteFile(a.fs, p+MetadataSuffix, data, 0o644); err != nil {
		return archiveErr("write metadata", p, err)
	}
	return nil
}

func (a *Archive) removeIfFile(p string) error {
	info, err := a.fs.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return a.fs.Remove(p)
}

// Entries lists every entry, that is every path with a metadata sidecar,
// in lexical path order. Metadata is read on first use.
func (a *Archive) Entries() ([]*Entry, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	var entries []*Entry
	err := util.Walk(a.fs, ".", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(p, MetadataSuffix) {
			return nil
		}
		rel := filepath.ToSlash(strings.TrimSuffix(p, MetadataSuffix))
		entries = append(entries, &Entry{Path: rel, archive: a})
		return nil
	})
	if err != nil {
		return nil, archiveErr("list", "", err)
	}
	return entries, nil
}

// Entry returns the entry at path, or nil and no error if there is none.
func (a *Archive) Entry(entryPath string) (*Entry, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	p, err := cleanPath(entryPath)
	if err != nil {
		return nil, nil
	}
	if !a.isFile(p + MetadataSuffix) {
		return nil, nil
	}
	return &Entry{Path: p, archive: a}, nil
}

// ContainsEntry reports whether an entry exists at path.
func (a *Archive) ContainsEntry(entryPath string) (bool, error) {
	e, err := a.Entry(entryPath)
	return e != nil, err
}

// RemoveEntry deletes the entry at path and reports whether it existed.
func (a *Archive) RemoveEntry(entryPath string) (bool, error) {
	if err := a.checkOpen(); err != nil {
		return false, err
	}
	p, err := cleanPath(entryPath)
	if err != nil || !a.isFile(p+MetadataSuffix) {
		return false, nil
	}
	if err := a.fs.Remove(p + MetadataSuffix); err != nil {
		return false, archiveErr("remove", p, err)
	}
	if a.isFile(p) {
		if err := a.fs.Remove(p); err != nil {
			return true, archiveErr("remove", p, err)
		}
	}
	return true, nil
}

// Content opens an entry's content. The caller closes the reader.
func (a *Archive) Content(entry *Entry) (io.ReadCloser, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	if !a.isFile(entry.Path) {
		return nil, ErrNoContent
	}
	f, err := a.fs.Open(entry.Path)
	if err != nil {
		return nil, archiveErr("read content", entry.Path, err)
	}
	return f, nil
}

func (a *Archive) isFile(p string) bool {
	info, err := a.fs.Stat(p)
	return err == nil && !info.IsDir()
}

// Close removes the working directory and, for archives read from a
// stream, the buffered package file.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	parent := osfs.New(filepath.Dir(a.workDir))
	if err := util.RemoveAll(parent, filepath.Base(a.workDir)); err != nil {
		errs = append(errs, fmt.Errorf("remove work dir: %w", err))
	}
	if a.original != "" {
		if err := os.Remove(a.original); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove buffered package: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return archiveErr("close", a.workDir, err)
	}
	a.logger.Debug("Archive closed", "work_dir", a.workDir)
	return nil
}

// CloseQuietly is Close for deferred cleanup. Failures are logged, not
// returned.
func (a *Archive) CloseQuietly() {
	if a == nil {
		return
	}
	if err := a.Close(); err != nil {
		a.logger.Warn("Failed to close archive", "error", err)
	}
}

// Entry is one artifact in an archive.
type Entry struct {
	Path string

	archive  *Archive
	metadata *artifact.Artifact
}

// Metadata returns the entry's metadata, reading the sidecar on first use.
func (e *Entry) Metadata() (*artifact.Artifact, error) {
	if e.metadata != nil {
		return e.metadata, nil
	}
	if e.archive == nil {
		return nil, archiveErr("read metadata", e.Path, errors.New("entry not bound to an archive"))
	}
	if err := e.archive.checkOpen(); err != nil {
		return nil, err
	}
	data, err := util.ReadFile(e.archive.fs, e.Path+MetadataSuffix)
	if err != nil {
		return nil, archiveErr("read metadata", e.Path, err)
	}
	meta, err := artifact.Unmarshal(data)
	if err != nil {
		return nil, archiveErr("read metadata", e.Path, err)
	}
	e.metadata = meta
	return meta, nil
}

// SetMetadata replaces the entry's metadata. It is written by
// Archive.UpdateEntry.
func (e *Entry) SetMetadata(meta *artifact.Artifact) {
	e.metadata = meta
}
