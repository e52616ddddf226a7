package artifact

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// Namespaces and schemes of the Atom entry envelope.
const (
	AtomNamespace  = "http://www.w3.org/2005/Atom"
	SrampNamespace = "http://s-ramp.org/xmlns/2010/s-ramp"
	TypeScheme     = "x-s-ramp:2010:type"
)

type atomEntry struct {
	XMLName    xml.Name       `xml:"http://www.w3.org/2005/Atom entry"`
	ID         string         `xml:"id"`
	Title      string         `xml:"title,omitempty"`
	Summary    string         `xml:"summary,omitempty"`
	Updated    string         `xml:"updated,omitempty"`
	Published  string         `xml:"published,omitempty"`
	Authors    []atomPerson   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Wrapper    *atomWrapper   `xml:"http://s-ramp.org/xmlns/2010/s-ramp artifact"`
}

type atomPerson struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term   string `xml:"term,attr"`
	Label  string `xml:"label,attr,omitempty"`
	Scheme string `xml:"scheme,attr"`
}

type atomWrapper struct {
	Element *artifactElement `xml:",any"`
}

type artifactElement struct {
	XMLName xml.Name

	ArtifactType          string `xml:"artifactType,attr,omitempty"`
	UUID                  string `xml:"uuid,attr"`
	Name                  string `xml:"name,attr,omitempty"`
	Version               string `xml:"version,attr,omitempty"`
	CreatedBy             string `xml:"createdBy,attr,omitempty"`
	CreatedTimestamp      string `xml:"createdTimestamp,attr,omitempty"`
	LastModifiedBy        string `xml:"lastModifiedBy,attr,omitempty"`
	LastModifiedTimestamp string `xml:"lastModifiedTimestamp,attr,omitempty"`
	ContentType           string `xml:"contentType,attr,omitempty"`
	ContentSize           int64  `xml:"contentSize,attr,omitempty"`
	ContentEncoding       string `xml:"contentEncoding,attr,omitempty"`
	ExtendedType          string `xml:"extendedType,attr,omitempty"`
	Derived               bool   `xml:"derived,attr,omitempty"`

	Description   string                `xml:"description,omitempty"`
	ClassifiedBy  []string              `xml:"classifiedBy"`
	Relationships []relationshipElement `xml:"relationship"`
	Properties    []propertyElement     `xml:"property"`
}

type relationshipElement struct {
	Type       string            `xml:"relationshipType"`
	Generic    bool              `xml:"generic,attr,omitempty"`
	Targets    []targetElement   `xml:"relationshipTarget"`
	Properties []propertyElement `xml:"relationshipProperty"`
}

type targetElement struct {
	UUID string `xml:",chardata"`
	Href string `xml:"href,attr,omitempty"`
}

type propertyElement struct {
	Name  string `xml:"propertyName"`
	Value string `xml:"propertyValue"`
}

// Marshal renders the artifact as a pretty-printed Atom entry.
func Marshal(a *Artifact) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the artifact to w as a pretty-printed Atom entry.
func Encode(w io.Writer, a *Artifact) error {
	if a.Type.IsZero() {
		return fmt.Errorf("encode artifact %s: %w", a.UUID, ErrUnknownType)
	}
	if a.Type.IsExtended() {
		if err := validateExtendedName(a.Type.ExtendedType); err != nil {
			return fmt.Errorf("encode artifact %s: %w", a.UUID, err)
		}
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(toEntry(a)); err != nil {
		return fmt.Errorf("encode artifact %s: %w", a.UUID, err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("write trailing newline: %w", err)
	}
	return nil
}

// Unmarshal parses an Atom entry produced by Marshal.
func Unmarshal(data []byte) (*Artifact, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads an Atom entry from r.
//
// The artifact type comes from the wrapped element's name, then from its
// artifactType attribute, then from the S-RAMP type category. When none of
// these resolve, Decode fails with ErrUnknownType rather than guessing.
func Decode(r io.Reader) (*Artifact, error) {
	var entry atomEntry
	if err := xml.NewDecoder(r).Decode(&entry); err != nil {
		return nil, fmt.Errorf("decode atom entry: %w", err)
	}
	if entry.Wrapper == nil || entry.Wrapper.Element == nil {
		return nil, ErrNoArtifact
	}
	return fromEntry(&entry)
}

func toEntry(a *Artifact) *atomEntry {
	el := &artifactElement{
		XMLName:               xml.Name{Local: a.Type.Base.String()},
		ArtifactType:          a.Type.Base.String(),
		UUID:                  a.UUID,
		Name:                  a.Name,
		Version:               a.Version,
		CreatedBy:             a.CreatedBy,
		CreatedTimestamp:      formatTime(a.CreatedTimestamp),
		LastModifiedBy:        a.LastModifiedBy,
		LastModifiedTimestamp: formatTime(a.LastModifiedTimestamp),
		ContentType:           a.ContentType,
		ContentSize:           a.ContentSize,
		ContentEncoding:       a.ContentEncoding,
		Description:           a.Description,
		ClassifiedBy:          a.Classifications,
	}
	if a.Type.IsExtended() {
		el.ExtendedType = a.Type.ExtendedType
		el.Derived = a.Type.ExtendedDerived
	}
	for _, rel := range a.Relationships {
		re := relationshipElement{
			Type:       rel.Type,
			Generic:    rel.Generic,
			Properties: toPropertyElements(rel.Properties),
		}
		for _, t := range rel.Targets {
			re.Targets = append(re.Targets, targetElement(t))
		}
		el.Relationships = append(el.Relationships, re)
	}
	el.Properties = toPropertyElements(a.Properties)

	entry := &atomEntry{
		ID:        "urn:uuid:" + a.UUID,
		Title:     a.Name,
		Summary:   a.Description,
		Updated:   formatTime(a.LastModifiedTimestamp),
		Published: formatTime(a.CreatedTimestamp),
		Categories: []atomCategory{{
			Term:   a.Type.Type(),
			Label:  a.Type.Label(),
			Scheme: TypeScheme,
		}},
		Wrapper: &atomWrapper{Element: el},
	}
	if a.CreatedBy != "" {
		entry.Authors = []atomPerson{{Name: a.CreatedBy}}
	}
	return entry
}

func fromEntry(entry *atomEntry) (*Artifact, error) {
	el := entry.Wrapper.Element
	t, err := resolveType(entry, el)
	if err != nil {
		return nil, err
	}

	a := &Artifact{
		Type:            t,
		UUID:            el.UUID,
		Name:            el.Name,
		Description:     el.Description,
		Version:         el.Version,
		CreatedBy:       el.CreatedBy,
		LastModifiedBy:  el.LastModifiedBy,
		ContentType:     el.ContentType,
		ContentSize:     el.ContentSize,
		ContentEncoding: el.ContentEncoding,
		Classifications: el.ClassifiedBy,
		Properties:      fromPropertyElements(el.Properties),
	}
	if a.UUID == "" {
		a.UUID = strings.TrimPrefix(entry.ID, "urn:uuid:")
	}
	if a.CreatedTimestamp, err = parseTime(el.CreatedTimestamp); err != nil {
		return nil, err
	}
	if a.LastModifiedTimestamp, err = parseTime(el.LastModifiedTimestamp); err != nil {
		return nil, err
	}
	for _, re := range el.Relationships {
		rel := Relationship{
			Type:       re.Type,
			Generic:    re.Generic,
			Properties: fromPropertyElements(re.Properties),
		}
		for _, te := range re.Targets {
			rel.Targets = append(rel.Targets, Target{UUID: strings.TrimSpace(te.UUID), Href: te.Href})
		}
		a.Relationships = append(a.Relationships, rel)
	}
	return a, nil
}

func resolveType(entry *atomEntry, el *artifactElement) (ArtifactType, error) {
	candidates := []string{el.XMLName.Local, el.ArtifactType}
	for _, name := range candidates {
		bt, ok := ParseBaseType(name)
		if !ok {
			continue
		}
		switch bt {
		case ExtendedArtifactType:
			return Extended(el.ExtendedType, el.Derived)
		case ExtendedDocument:
			return ExtendedDocumentType(el.ExtendedType)
		default:
			return NewType(bt), nil
		}
	}
	for _, c := range entry.Categories {
		if c.Scheme == TypeScheme && c.Term != "" {
			return TypeOfDocument(c.Term, el.ContentType != "")
		}
	}
	return ArtifactType{}, fmt.Errorf("resolve type of artifact %s: %w", el.UUID, ErrUnknownType)
}

func toPropertyElements(props []Property) []propertyElement {
	var out []propertyElement
	for _, p := range props {
		out = append(out, propertyElement(p))
	}
	return out
}

func fromPropertyElements(props []propertyElement) []Property {
	var out []Property
	for _, p := range props {
		out = append(out, Property(p))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
