package eval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/c360studio/artificer/artifact"
	"github.com/c360studio/artificer/query"
	"github.com/c360studio/artificer/query/adapter"
)

// Source supplies the artifacts a query runs over.
type Source interface {
	Artifacts(ctx context.Context) ([]*artifact.Artifact, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]*artifact.Artifact, error)

func (f SourceFunc) Artifacts(ctx context.Context) ([]*artifact.Artifact, error) {
	return f(ctx)
}

// Executor is an adapter.Executor that loads every artifact from a Source
// and evaluates the query in memory.
type Executor struct {
	source Source
	vars   map[string]string
	logger *slog.Logger
}

// NewExecutor creates an executor over source. A nil logger uses
// slog.Default().
func NewExecutor(source Source, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{source: source, vars: make(map[string]string), logger: logger}
}

// Bind sets the value of $name for every query this executor runs.
func (x *Executor) Bind(name, value string) *Executor {
	x.vars[name] = value
	return x
}

// ExecuteQuery implements adapter.Executor.
func (x *Executor) ExecuteQuery(ctx context.Context, q *query.Query, paging adapter.Paging) (*adapter.ArtifactSet, error) {
	all, err := x.source.Artifacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}

	e := New(all)
	for k, v := range x.vars {
		e.Bind(k, v)
	}
	matched, err := e.Select(q)
	if err != nil {
		return nil, fmt.Errorf("evaluate query: %w", err)
	}

	Sort(matched, paging.OrderBy, paging.Ascending)
	x.logger.Debug("Query evaluated", "candidates", len(all), "matched", len(matched))

	return &adapter.ArtifactSet{
		Artifacts: Page(matched, paging.StartIndex, paging.Count),
		Total:     len(matched),
	}, nil
}

// Sort orders artifacts by a property, numerically when both values are
// numbers. Artifacts missing the property sort last. An empty property
// leaves the order unchanged.
func Sort(artifacts []*artifact.Artifact, property string, ascending bool) {
	if property == "" {
		return
	}
	qn := &query.QName{Local: property}
	slices.SortStableFunc(artifacts, func(a, b *artifact.Artifact) int {
		va, oka := propertyValue(a, qn)
		vb, okb := propertyValue(b, qn)
		switch {
		case !oka && !okb:
			return 0
		case !oka:
			return 1
		case !okb:
			return -1
		}
		c := compareValues(va, vb)
		if !ascending {
			c = -c
		}
		return c
	})
}

// Page returns the window [start, start+count). A count of zero or less
// means no limit.
func Page(artifacts []*artifact.Artifact, start, count int) []*artifact.Artifact {
	if start < 0 {
		start = 0
	}
	if start >= len(artifacts) {
		return nil
	}
	end := len(artifacts)
	if count > 0 && start+count < end {
		end = start + count
	}
	return artifacts[start:end]
}
