package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/klauspost/compress/zip"
)

// Unpack extracts every entry of the ZIP at file into fs, in the order the
// entries are stored. A directory entry whose path is already a file is an
// error, as is a file whose parent cannot be created.
func Unpack(file string, fs billy.Filesystem) error {
	return unpackZip(file, fs)
}

func unpackZip(file string, fs billy.Filesystem) error {
	r, err := zip.OpenReader(file)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := unpackEntry(f, fs); err != nil {
			return err
		}
	}
	return nil
}

func unpackEntry(f *zip.File, fs billy.Filesystem) error {
	name := strings.ReplaceAll(f.Name, "\\", "/")
	clean := path.Clean("/" + name)[1:]
	if clean == "" {
		return nil
	}
	if strings.HasPrefix(name, "/") || slices.Contains(strings.Split(name, "/"), "..") {
		return fmt.Errorf("zip entry %q escapes the working directory", f.Name)
	}

	if f.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
		info, err := fs.Stat(clean)
		switch {
		case err == nil && !info.IsDir():
			return fmt.Errorf("zip directory %q collides with an existing file", clean)
		case err == nil:
			return nil
		case !os.IsNotExist(err):
			return fmt.Errorf("stat %q: %w", clean, err)
		}
		if err := fs.MkdirAll(clean, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", clean, err)
		}
		return nil
	}

	if err := fs.MkdirAll(path.Dir(clean), 0o755); err != nil {
		return fmt.Errorf("create parent of %q: %w", clean, err)
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("read zip entry %q: %w", clean, err)
	}
	defer src.Close()

	dst, err := fs.Create(clean)
	if err != nil {
		return fmt.Errorf("create %q: %w", clean, err)
	}
	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return fmt.Errorf("write %q: %w", clean, err)
	}
	return nil
}

// Pack zips every entry, content first and then its sidecar, into a new
// temporary file and returns its path. The caller owns the file.
func (a *Archive) Pack() (string, error) {
	if err := a.checkOpen(); err != nil {
		return "", err
	}
	entries, err := a.Entries()
	if err != nil {
		return "", err
	}

	out, err := os.CreateTemp(a.baseDir, "artificer-archive-*.sramp")
	if err != nil {
		return "", archiveErr("pack", "", err)
	}
	name := out.Name()

	zw := zip.NewWriter(out)
	packErr := a.packEntries(zw, entries)
	closeErr := errors.Join(zw.Close(), out.Close())
	if err := errors.Join(packErr, closeErr); err != nil {
		_ = os.Remove(name)
		return "", archiveErr("pack", name, err)
	}

	a.logger.Debug("Archive packed", "file", name, "entries", len(entries))
	return name, nil
}

// PackTo packs the archive into dst, replacing any existing file.
func (a *Archive) PackTo(dst string) error {
	packed, err := a.Pack()
	if err != nil {
		return err
	}
	if err := moveFile(packed, dst); err != nil {
		return archiveErr("pack", dst, err)
	}
	return nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	defer os.Remove(src)

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}

func (a *Archive) packEntries(zw *zip.Writer, entries []*Entry) error {
	for _, e := range entries {
		if a.isFile(e.Path) {
			if err := a.copyToZip(zw, e.Path); err != nil {
				return err
			}
		}
		if err := a.copyToZip(zw, e.Path+MetadataSuffix); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) copyToZip(zw *zip.Writer, p string) error {
	src, err := a.fs.Open(p)
	if err != nil {
		return fmt.Errorf("open %q: %w", p, err)
	}
	defer src.Close()

	w, err := zw.Create(p)
	if err != nil {
		return fmt.Errorf("add %q: %w", p, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write %q: %w", p, err)
	}
	return nil
}
