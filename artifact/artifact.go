package artifact

import (
	"time"

	"github.com/google/uuid"
)

// Well-known relationship types.
const (
	// RelatedDocument links a derived artifact to the document it came from.
	RelatedDocument = "relatedDocument"
)

// Artifact is the metadata record for one repository artifact.
type Artifact struct {
	Type ArtifactType

	UUID        string
	Name        string
	Description string
	Version     string

	CreatedBy             string
	CreatedTimestamp      time.Time
	LastModifiedBy        string
	LastModifiedTimestamp time.Time

	ContentType     string
	ContentSize     int64
	ContentEncoding string

	Classifications []string
	Properties      []Property
	Relationships   []Relationship
}

// Property is a custom name/value pair.
type Property struct {
	Name  string
	Value string
}

// Target is one end of a relationship. Href is only set for targets that
// live outside the repository the artifact was read from.
type Target struct {
	UUID string
	Href string
}

// Relationship is a named, directed edge to zero or more targets. A
// relationship with no targets is valid and records that the edge type
// exists without pointing anywhere.
type Relationship struct {
	Type       string
	Targets    []Target
	Generic    bool
	Properties []Property
}

// New returns an artifact of the given type with a fresh UUID.
func New(t ArtifactType) *Artifact {
	return &Artifact{
		Type: t,
		UUID: uuid.NewString(),
	}
}

// EnsureUUID assigns a fresh UUID if none is set and returns the UUID.
func (a *Artifact) EnsureUUID() string {
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	return a.UUID
}

// Property returns the value of a custom property.
func (a *Artifact) Property(name string) (string, bool) {
	for _, p := range a.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// SetProperty sets a custom property, replacing an existing value.
func (a *Artifact) SetProperty(name, value string) {
	for i := range a.Properties {
		if a.Properties[i].Name == name {
			a.Properties[i].Value = value
			return
		}
	}
	a.Properties = append(a.Properties, Property{Name: name, Value: value})
}

// RemoveProperty deletes a custom property. It reports whether it existed.
func (a *Artifact) RemoveProperty(name string) bool {
	for i, p := range a.Properties {
		if p.Name == name {
			a.Properties = append(a.Properties[:i], a.Properties[i+1:]...)
			return true
		}
	}
	return false
}

// AddClassification adds a classification URI unless already present.
func (a *Artifact) AddClassification(uri string) {
	for _, c := range a.Classifications {
		if c == uri {
			return
		}
	}
	a.Classifications = append(a.Classifications, uri)
}

// Relationship returns the relationship of the given type, or nil.
func (a *Artifact) Relationship(relType string) *Relationship {
	for i := range a.Relationships {
		if a.Relationships[i].Type == relType {
			return &a.Relationships[i]
		}
	}
	return nil
}

// AddRelationship appends targets to the relationship of the given type,
// creating it if needed. Calling it without target UUIDs declares an empty
// relationship.
func (a *Artifact) AddRelationship(relType string, targetUUIDs ...string) *Relationship {
	rel := a.Relationship(relType)
	if rel == nil {
		a.Relationships = append(a.Relationships, Relationship{Type: relType})
		rel = &a.Relationships[len(a.Relationships)-1]
	}
	for _, id := range targetUUIDs {
		rel.Targets = append(rel.Targets, Target{UUID: id})
	}
	return rel
}

// TargetUUIDs returns the target UUIDs of the relationship, in order.
func (r *Relationship) TargetUUIDs() []string {
	ids := make([]string, 0, len(r.Targets))
	for _, t := range r.Targets {
		ids = append(ids, t.UUID)
	}
	return ids
}

// Clone returns a deep copy.
func (a *Artifact) Clone() *Artifact {
	c := *a
	c.Classifications = append([]string(nil), a.Classifications...)
	c.Properties = append([]Property(nil), a.Properties...)
	if a.Relationships != nil {
		c.Relationships = make([]Relationship, len(a.Relationships))
		for i, r := range a.Relationships {
			r.Targets = append([]Target(nil), r.Targets...)
			r.Properties = append([]Property(nil), r.Properties...)
			c.Relationships[i] = r
		}
	}
	return &c
}
