package derive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/c360studio/artificer/artifact"
	"github.com/c360studio/artificer/query/adapter"
)

// Lookup runs an S-RAMP query template with string parameters and returns
// the matching artifacts.
type Lookup func(ctx context.Context, template string, params ...string) ([]*artifact.Artifact, error)

// ExecutorLookup resolves lookups by executing queries against exec.
func ExecutorLookup(exec adapter.Executor, opts ...adapter.Option) Lookup {
	return func(ctx context.Context, template string, params ...string) ([]*artifact.Artifact, error) {
		q := adapter.New(template, exec, opts...)
		for _, p := range params {
			q.SetString(p)
		}
		set, err := q.Execute(ctx)
		if err != nil {
			return nil, err
		}
		return set.Artifacts, nil
	}
}

// documentRef is a relationship from the primary artifact to another
// document, found by its target namespace and file name, that can only be
// resolved once the repository is available.
type documentRef struct {
	relType   string
	model     string
	docType   string
	namespace string
	location  string
}

// resolve adds the matching documents as targets of the primary's
// relationship. The relationship was declared when the reference was found,
// so an unresolved reference leaves it without targets.
func (r documentRef) resolve(ctx context.Context, primary *artifact.Artifact, lookup Lookup) error {
	if lookup == nil {
		return nil
	}
	template := fmt.Sprintf("/s-ramp/%s/%s[@targetNamespace = ?", r.model, r.docType)
	params := []string{r.namespace}
	if r.location != "" {
		template += " and @name = ?"
		params = append(params, r.location)
	}
	template += "]"

	found, err := lookup(ctx, template, params...)
	if err != nil {
		return fmt.Errorf("resolve %s %s: %w", r.relType, r.namespace, err)
	}
	for _, a := range found {
		if a.UUID != primary.UUID {
			primary.AddRelationship(r.relType, a.UUID)
		}
	}
	return nil
}

// stripPath reduces a schemaLocation to its file name.
func stripPath(location string) string {
	location = strings.ReplaceAll(location, "\\", "/")
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	return path.Base(location)
}
