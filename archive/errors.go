package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation on a closed archive.
	ErrClosed = errors.New("archive closed")

	// ErrNoContent is returned by Content for metadata-only entries.
	ErrNoContent = errors.New("entry has no content")
)

// ArchiveError reports a failed archive operation. Path is the entry or
// file involved, when there is one.
type ArchiveError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("archive %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

func archiveErr(op, path string, err error) error {
	return &ArchiveError{Op: op, Path: path, Err: err}
}
