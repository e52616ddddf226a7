package jar

import "errors"

var (
	// ErrClosed is returned by a Converter after Close.
	ErrClosed = errors.New("converter closed")

	// ErrUnknownArchiveType is returned when no expander recognizes an archive.
	ErrUnknownArchiveType = errors.New("unknown archive type")

	// ErrNoMetaData is returned when a metadata factory returns neither
	// metadata nor an error.
	ErrNoMetaData = errors.New("metadata factory returned no metadata")
)
