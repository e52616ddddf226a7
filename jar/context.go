package jar

import (
	"fmt"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Well-known context keys.
const (
	// ContextWorkDir holds the unpacked archive's working directory.
	ContextWorkDir = "workDir"
	// ContextCandidates holds every CandidateArtifact found, as
	// []CandidateArtifact.
	ContextCandidates = "candidates"
)

// Context is shared by the filter and the metadata factory during one
// conversion so they can cache state, such as a parsed descriptor, across
// the whole pass. A new Context is created for every conversion.
type Context struct {
	fs     billy.Filesystem
	values map[string]any
}

func newContext(fs billy.Filesystem, workDir string) *Context {
	return &Context{
		fs:     fs,
		values: map[string]any{ContextWorkDir: workDir},
	}
}

// Set stores a value.
func (c *Context) Set(key string, value any) {
	c.values[key] = value
}

// Get returns a value and whether it was set.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Has reports whether key is set.
func (c *Context) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// WorkDir returns the unpacked archive's working directory.
func (c *Context) WorkDir() string {
	dir, _ := c.values[ContextWorkDir].(string)
	return dir
}

// Candidates returns every file found in the archive.
func (c *Context) Candidates() []CandidateArtifact {
	candidates, _ := c.values[ContextCandidates].([]CandidateArtifact)
	return candidates
}

// HasEntry reports whether the archive holds a regular file at p.
func (c *Context) HasEntry(p string) bool {
	info, err := c.fs.Stat(path.Clean(p))
	return err == nil && !info.IsDir()
}

// ReadEntry reads a file from the archive.
func (c *Context) ReadEntry(p string) ([]byte, error) {
	data, err := util.ReadFile(c.fs, path.Clean(p))
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", p, err)
	}
	return data, nil
}
