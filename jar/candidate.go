package jar

import (
	"io"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/c360studio/artificer/artifact"
)

// CandidateArtifact is a regular file found in an unpacked archive.
type CandidateArtifact struct {
	// Path is the slash-separated path relative to the archive root.
	Path string
	// Size is the file size in bytes.
	Size int64
}

// Name returns the file's base name.
func (c CandidateArtifact) Name() string {
	return path.Base(c.Path)
}

// Extension returns the lower-cased extension without the dot.
func (c CandidateArtifact) Extension() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(c.Path), "."))
}

// DiscoveredArtifact is a candidate accepted by the filter. Metadata is set
// by the metadata factory.
type DiscoveredArtifact struct {
	CandidateArtifact
	Metadata *artifact.Artifact

	fs billy.Filesystem
}

// Open opens the artifact's content. The caller closes the reader.
func (d *DiscoveredArtifact) Open() (io.ReadCloser, error) {
	return d.fs.Open(d.Path)
}
