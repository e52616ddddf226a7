// Package derive extracts derived artifacts, such as the declarations in an
// XSD or the servlets in a web.xml, from a document's content.
package derive

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/artificer/artifact"
	"github.com/c360studio/artificer/metrics"
)

// ArtifactBuilder derives artifacts from one document. A builder is used
// for a single document: BuildArtifacts runs first, then BuildRelationships
// once the primary artifact can be referenced.
type ArtifactBuilder interface {
	// BuildArtifacts returns the artifacts derived from content. It may
	// update the primary artifact, e.g. its content encoding.
	BuildArtifacts(ctx context.Context, primary *artifact.Artifact, content []byte) ([]*artifact.Artifact, error)

	// BuildRelationships resolves relationships that point outside the
	// document.
	BuildRelationships(ctx context.Context, rc *RelationshipContext) error
}

// Provider returns the builders that apply to a document, if any.
type Provider interface {
	Builders(primary *artifact.Artifact, content []byte) []ArtifactBuilder
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(primary *artifact.Artifact, content []byte) []ArtifactBuilder

func (f ProviderFunc) Builders(primary *artifact.Artifact, content []byte) []ArtifactBuilder {
	return f(primary, content)
}

// RelationshipContext gives builders access to artifacts outside the
// document being derived.
type RelationshipContext struct {
	// Lookup finds existing artifacts. Nil leaves cross-document
	// relationships declared but without targets.
	Lookup Lookup
}

type registration struct {
	name     string
	provider Provider
}

// Registry holds builder providers in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a provider under name, replacing an existing one with the
// same name in place.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.providers {
		if r.providers[i].name == name {
			r.providers[i].provider = p
			return
		}
	}
	r.providers = append(r.providers, registration{name: name, provider: p})
}

// Names returns the provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for _, reg := range r.providers {
		names = append(names, reg.name)
	}
	return names
}

// Builders returns the builders every provider offers for the document.
func (r *Registry) Builders(primary *artifact.Artifact, content []byte) []ArtifactBuilder {
	named := r.namedBuilders(primary, content)
	builders := make([]ArtifactBuilder, 0, len(named))
	for _, nb := range named {
		builders = append(builders, nb.builder)
	}
	return builders
}

type namedBuilder struct {
	name    string
	builder ArtifactBuilder
}

func (r *Registry) namedBuilders(primary *artifact.Artifact, content []byte) []namedBuilder {
	r.mu.RLock()
	providers := append([]registration(nil), r.providers...)
	r.mu.RUnlock()

	var builders []namedBuilder
	for _, reg := range providers {
		for _, b := range reg.provider.Builders(primary, content) {
			builders = append(builders, namedBuilder{name: reg.name, builder: b})
		}
	}
	return builders
}

// DefaultRegistry holds the built-in providers.
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.Register("xsd", ProviderFunc(func(primary *artifact.Artifact, _ []byte) []ArtifactBuilder {
		if primary.Type.Base != artifact.XSDDocument {
			return nil
		}
		return []ArtifactBuilder{NewXSDBuilder()}
	}))
	DefaultRegistry.Register("wsdl", ProviderFunc(func(primary *artifact.Artifact, _ []byte) []ArtifactBuilder {
		if primary.Type.Base != artifact.WSDLDocument {
			return nil
		}
		return []ArtifactBuilder{NewWSDLBuilder()}
	}))
	DefaultRegistry.Register("web.xml", ProviderFunc(func(primary *artifact.Artifact, _ []byte) []ArtifactBuilder {
		if primary.Type.Base != artifact.ExtendedDocument || primary.Type.ExtendedType != WebXMLDocumentType {
			return nil
		}
		return []ArtifactBuilder{NewWebXMLBuilder()}
	}))
}

// DeriverOption configures a Deriver.
type DeriverOption func(*Deriver)

// WithLookup sets how cross-document relationships are resolved.
func WithLookup(l Lookup) DeriverOption {
	return func(d *Deriver) {
		d.lookup = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) DeriverOption {
	return func(d *Deriver) {
		d.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DeriverOption {
	return func(d *Deriver) {
		d.logger = logger
	}
}

// Deriver runs every applicable builder over a document.
type Deriver struct {
	registry *Registry
	lookup   Lookup
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewDeriver creates a Deriver. A nil registry uses DefaultRegistry.
func NewDeriver(registry *Registry, opts ...DeriverOption) *Deriver {
	if registry == nil {
		registry = DefaultRegistry
	}
	d := &Deriver{registry: registry}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Derive returns every artifact derived from the document. Derivation is
// all or nothing: on error no artifacts are returned and primary is left
// unchanged. On success primary receives the builders' updates.
func (d *Deriver) Derive(ctx context.Context, primary *artifact.Artifact, content []byte) ([]*artifact.Artifact, error) {
	x, err := d.Build(ctx, primary, content)
	if err != nil || x == nil {
		return nil, err
	}
	return x.Resolve(ctx)
}

// Derivation is a document whose artifacts are built but whose
// cross-document relationships are not resolved yet.
type Derivation struct {
	deriver  *Deriver
	primary  *artifact.Artifact
	work     *artifact.Artifact
	builders []namedBuilder
	derived  []*artifact.Artifact
	start    time.Time
}

// Build runs the first phase of Derive. It returns nil when no builder
// applies. Callers deriving several documents that reference each other
// build all of them, store each Primary, then Resolve each.
func (d *Deriver) Build(ctx context.Context, primary *artifact.Artifact, content []byte) (*Derivation, error) {
	start := time.Now()
	builders := d.registry.namedBuilders(primary, content)
	if len(builders) == 0 {
		return nil, nil
	}

	work := primary.Clone()
	work.EnsureUUID()

	var derived []*artifact.Artifact
	for _, nb := range builders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := nb.builder.BuildArtifacts(ctx, work, content)
		d.metrics.RecordDerivation(nb.name, len(out), err)
		if err != nil {
			return nil, d.wrap(nb.name, work, err)
		}
		derived = append(derived, out...)
	}
	return &Derivation{
		deriver:  d,
		primary:  primary,
		work:     work,
		builders: builders,
		derived:  derived,
		start:    start,
	}, nil
}

// Primary returns the primary artifact with the builders' updates. It is
// a copy until Resolve succeeds.
func (x *Derivation) Primary() *artifact.Artifact {
	return x.work
}

// Resolve runs the second phase of Derive and, on success, copies the
// updates into the original primary and returns the derived artifacts.
func (x *Derivation) Resolve(ctx context.Context) ([]*artifact.Artifact, error) {
	d := x.deriver
	rc := &RelationshipContext{Lookup: d.lookup}
	for _, nb := range x.builders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := nb.builder.BuildRelationships(ctx, rc); err != nil {
			return nil, d.wrap(nb.name, x.work, err)
		}
	}

	*x.primary = *x.work
	d.logger.Debug("Document derived",
		slog.String("uuid", x.primary.UUID),
		slog.String("type", x.primary.Type.String()),
		slog.Int("derived", len(x.derived)),
		slog.Duration("duration", time.Since(x.start)))
	return x.derived, nil
}

func (d *Deriver) wrap(builder string, doc *artifact.Artifact, err error) error {
	var de *DerivationError
	if errors.As(err, &de) {
		return err
	}
	name := doc.Name
	if name == "" {
		name = doc.UUID
	}
	return &DerivationError{Builder: builder, Document: name, Err: err}
}

// Derive runs the registry's builders over a document. A nil registry uses
// DefaultRegistry.
func Derive(ctx context.Context, primary *artifact.Artifact, content []byte, registry *Registry) ([]*artifact.Artifact, error) {
	return NewDeriver(registry).Derive(ctx, primary, content)
}
