package jar

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter decides which candidates become archive entries.
type Filter interface {
	Accepts(ctx *Context, c CandidateArtifact) (bool, error)
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(ctx *Context, c CandidateArtifact) (bool, error)

func (f FilterFunc) Accepts(ctx *Context, c CandidateArtifact) (bool, error) {
	return f(ctx, c)
}

// AcceptAll is a Filter that accepts every candidate.
var AcceptAll Filter = FilterFunc(func(*Context, CandidateArtifact) (bool, error) {
	return true, nil
})

// Default extension allow-list and exclude globs.
var (
	DefaultExtensions = []string{"xml", "xsd", "wsdl", "wspolicy"}
	DefaultExcludes   = []string{"**/pom.xml"}
)

// DefaultFilter accepts candidates whose extension is allow-listed and
// whose path matches none of the exclude globs.
type DefaultFilter struct {
	Extensions []string
	Exclude    []string
}

// NewDefaultFilter creates a filter with the given allow-list and excludes.
// Nil slices select the defaults. Exclude patterns are validated up front.
func NewDefaultFilter(extensions, exclude []string) (*DefaultFilter, error) {
	if extensions == nil {
		extensions = DefaultExtensions
	}
	if exclude == nil {
		exclude = DefaultExcludes
	}
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		exts = append(exts, strings.ToLower(strings.TrimPrefix(e, ".")))
	}
	return &DefaultFilter{Extensions: exts, Exclude: exclude}, nil
}

// Accepts implements Filter.
func (f *DefaultFilter) Accepts(_ *Context, c CandidateArtifact) (bool, error) {
	if !slices.Contains(f.Extensions, c.Extension()) {
		return false, nil
	}
	for _, pattern := range f.Exclude {
		if doublestar.MatchUnvalidated(pattern, c.Path) {
			return false, nil
		}
	}
	return true, nil
}

// defaultFilter is used when no filter is configured.
var defaultFilter = &DefaultFilter{Extensions: DefaultExtensions, Exclude: DefaultExcludes}
