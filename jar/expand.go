package jar

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/c360studio/artificer/artifact"
)

// Archive expander types.
const (
	TypeSwitchYardApplication     = "SwitchYardApplication"
	TypeKieJarArchive             = "KieJarArchive"
	TypeTeiidVdb                  = "TeiidVdb"
	TypeJavaWebApplication        = "JavaWebApplication"
	TypeJavaEnterpriseApplication = "JavaEnterpriseApplication"
	TypeJavaArchive               = "JavaArchive"
)

// ContextDescriptors holds the descriptor paths an expander found in the
// archive, as map[string]artifact.ArtifactType keyed by lower-cased path.
const ContextDescriptors = "descriptors"

// Expander describes one kind of composite archive: how to recognize it and
// which filter and metadata factory convert it.
type Expander struct {
	// Type names the archive kind, e.g. "JavaWebApplication".
	Type string
	// Markers are paths whose presence in the archive identifies the kind.
	Markers []string
	// Extensions are archive file extensions, without the dot, that
	// identify the kind when no marker matches.
	Extensions []string
	// Priority orders detection. Higher runs first.
	Priority int
	// Descriptors maps well-known paths inside the archive to the artifact
	// type they are stored as. Descriptors are always accepted.
	Descriptors map[string]artifact.ArtifactType
}

// Filter returns a filter that accepts the expander's descriptors plus
// whatever base accepts. A nil base uses the default filter.
func (e *Expander) Filter(base Filter) Filter {
	if base == nil {
		base = defaultFilter
	}
	return FilterFunc(func(ctx *Context, c CandidateArtifact) (bool, error) {
		if _, ok := e.descriptors(ctx)[strings.ToLower(c.Path)]; ok {
			return true, nil
		}
		return base.Accepts(ctx, c)
	})
}

// Factory returns a metadata factory that types descriptors by the
// expander's table and falls back to base for everything else. A nil base
// uses DefaultMetaDataFactory.
func (e *Expander) Factory(base MetaDataFactory) MetaDataFactory {
	if base == nil {
		base = DefaultMetaDataFactory{}
	}
	return MetaDataFactoryFunc(func(ctx *Context, d *DiscoveredArtifact) (*artifact.Artifact, error) {
		t, ok := e.descriptors(ctx)[strings.ToLower(d.Path)]
		if !ok {
			return base.CreateMetaData(ctx, d)
		}
		a := artifact.New(t)
		a.Name = d.Name()
		a.ContentSize = d.Size
		a.ContentType = artifact.MimeXML
		return a, nil
	})
}

// descriptors resolves which descriptors the archive actually holds once
// per conversion and caches the result in the context.
func (e *Expander) descriptors(ctx *Context) map[string]artifact.ArtifactType {
	if v, ok := ctx.Get(ContextDescriptors); ok {
		if found, ok := v.(map[string]artifact.ArtifactType); ok {
			return found
		}
	}
	found := make(map[string]artifact.ArtifactType, len(e.Descriptors))
	for _, c := range ctx.Candidates() {
		for p, t := range e.Descriptors {
			if strings.EqualFold(c.Path, p) {
				found[strings.ToLower(c.Path)] = t
			}
		}
	}
	ctx.Set(ContextDescriptors, found)
	return found
}

// matchesMarker reports whether any marker is among the lower-cased entry
// names.
func (e *Expander) matchesMarker(names map[string]bool) bool {
	for _, m := range e.Markers {
		if names[strings.ToLower(m)] {
			return true
		}
	}
	return false
}

func (e *Expander) matchesExtension(file string) bool {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(file), "."))
	return ext != "" && slices.Contains(e.Extensions, ext)
}

// ExpanderRegistry holds the known archive expanders.
type ExpanderRegistry struct {
	mu        sync.RWMutex
	expanders map[string]*Expander
}

// NewExpanderRegistry creates an empty registry.
func NewExpanderRegistry() *ExpanderRegistry {
	return &ExpanderRegistry{expanders: make(map[string]*Expander)}
}

// Register adds or replaces the expander for e.Type.
func (r *ExpanderRegistry) Register(e *Expander) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expanders[e.Type] = e
}

// Get returns the expander for an archive type.
func (r *ExpanderRegistry) Get(archiveType string) (*Expander, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.expanders[archiveType]
	return e, ok
}

// List returns every expander in detection order: priority descending,
// then type name.
func (r *ExpanderRegistry) List() []*Expander {
	r.mu.RLock()
	list := make([]*Expander, 0, len(r.expanders))
	for _, e := range r.expanders {
		list = append(list, e)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority > list[j].Priority
		}
		return list[i].Type < list[j].Type
	})
	return list
}

// Detect opens the ZIP at file and returns the expander that recognizes
// it. Markers are checked first across all expanders, then the file
// extension.
func (r *ExpanderRegistry) Detect(file string) (*Expander, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	names := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		names[strings.ToLower(strings.TrimPrefix(f.Name, "/"))] = true
	}

	expanders := r.List()
	for _, e := range expanders {
		if e.matchesMarker(names) {
			return e, nil
		}
	}
	for _, e := range expanders {
		if e.matchesExtension(file) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownArchiveType, path.Base(file))
}

// DefaultExpanders is the registry used by DetectArchiveType and
// ExpanderFor.
var DefaultExpanders = NewExpanderRegistry()

func init() {
	mustExtendedDocument := func(name string) artifact.ArtifactType {
		t, err := artifact.ExtendedDocumentType(name)
		if err != nil {
			panic(err)
		}
		return t
	}

	DefaultExpanders.Register(&Expander{
		Type:     TypeSwitchYardApplication,
		Markers:  []string{"META-INF/switchyard.xml"},
		Priority: 30,
		Descriptors: map[string]artifact.ArtifactType{
			"META-INF/switchyard.xml": mustExtendedDocument("SwitchYardXmlDocument"),
		},
	})
	DefaultExpanders.Register(&Expander{
		Type:     TypeKieJarArchive,
		Markers:  []string{"META-INF/kmodule.xml"},
		Priority: 30,
		Descriptors: map[string]artifact.ArtifactType{
			"META-INF/kmodule.xml": mustExtendedDocument("KieXmlDocument"),
		},
	})
	DefaultExpanders.Register(&Expander{
		Type:     TypeTeiidVdb,
		Markers:  []string{"META-INF/vdb.xml"},
		Priority: 30,
		Descriptors: map[string]artifact.ArtifactType{
			"META-INF/vdb.xml": mustExtendedDocument("TeiidVdbManifest"),
		},
	})
	DefaultExpanders.Register(&Expander{
		Type:       TypeJavaWebApplication,
		Markers:    []string{"WEB-INF/web.xml"},
		Extensions: []string{"war"},
		Priority:   20,
		Descriptors: map[string]artifact.ArtifactType{
			"WEB-INF/web.xml": mustExtendedDocument("WebXmlDocument"),
		},
	})
	DefaultExpanders.Register(&Expander{
		Type:       TypeJavaEnterpriseApplication,
		Markers:    []string{"META-INF/application.xml"},
		Extensions: []string{"ear"},
		Priority:   20,
		Descriptors: map[string]artifact.ArtifactType{
			"META-INF/application.xml": mustExtendedDocument("ApplicationXmlDocument"),
		},
	})
	DefaultExpanders.Register(&Expander{
		Type:       TypeJavaArchive,
		Extensions: []string{"jar"},
		Priority:   10,
	})
}

// DetectArchiveType returns the archive type of the ZIP at file using the
// default expanders.
func DetectArchiveType(file string) (string, error) {
	e, err := DefaultExpanders.Detect(file)
	if err != nil {
		return "", err
	}
	return e.Type, nil
}

// ExpanderFor returns the default expander for an archive type.
func ExpanderFor(archiveType string) (*Expander, bool) {
	return DefaultExpanders.Get(archiveType)
}
