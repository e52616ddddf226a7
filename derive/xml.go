package derive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/c360studio/artificer/artifact"
)

// DefaultEncoding is recorded for XML documents whose prolog names none.
const DefaultEncoding = "UTF-8"

// XMLDeriver is the document-specific half of an XMLBuilder.
type XMLDeriver interface {
	// NamespaceMappings returns the prefixes used in the deriver's XPath
	// expressions. It is called once per document, before any query.
	NamespaceMappings(root *xmlquery.Node) map[string]string

	// Derive adds derived artifacts to x.Derived.
	Derive(x *XMLContext) error
}

// XMLBuilder parses a document and hands it to an XMLDeriver. It records
// the document's encoding on the primary artifact and links every derived
// artifact back to the primary with a relatedDocument relationship.
type XMLBuilder struct {
	name    string
	deriver XMLDeriver

	primary *artifact.Artifact
	refs    []documentRef
}

// NewXMLBuilder creates a builder for one document.
func NewXMLBuilder(name string, d XMLDeriver) *XMLBuilder {
	return &XMLBuilder{name: name, deriver: d}
}

// BuildArtifacts implements ArtifactBuilder.
func (b *XMLBuilder) BuildArtifacts(ctx context.Context, primary *artifact.Artifact, content []byte) ([]*artifact.Artifact, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, b.fail(primary, fmt.Errorf("parse xml: %w", err))
	}
	root := rootElement(doc)
	if root == nil {
		return nil, b.fail(primary, fmt.Errorf("parse xml: no root element"))
	}

	primary.ContentEncoding = documentEncoding(doc)
	b.primary = primary

	x := &XMLContext{
		Context:    ctx,
		Primary:    primary,
		Root:       root,
		Derived:    NewIndexedCollection(),
		namespaces: b.deriver.NamespaceMappings(root),
		compiled:   make(map[string]*xpath.Expr),
		builder:    b,
	}
	if err := b.deriver.Derive(x); err != nil {
		return nil, b.fail(primary, err)
	}

	derived := x.Derived.Artifacts()
	for _, a := range derived {
		if a.Relationship(artifact.RelatedDocument) == nil {
			a.AddRelationship(artifact.RelatedDocument, primary.UUID)
		}
	}
	return derived, nil
}

// BuildRelationships implements ArtifactBuilder.
func (b *XMLBuilder) BuildRelationships(ctx context.Context, rc *RelationshipContext) error {
	if b.primary == nil {
		return nil
	}
	for _, ref := range b.refs {
		if err := ref.resolve(ctx, b.primary, rc.Lookup); err != nil {
			return b.fail(b.primary, err)
		}
	}
	return nil
}

func (b *XMLBuilder) fail(primary *artifact.Artifact, err error) error {
	return &DerivationError{Builder: b.name, Document: primary.Name, Err: err}
}

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

func documentEncoding(doc *xmlquery.Node) string {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.DeclarationNode {
			if enc := strings.TrimSpace(n.SelectAttr("encoding")); enc != "" {
				return enc
			}
		}
	}
	return DefaultEncoding
}

// XMLContext is what an XMLDeriver works with for one document.
type XMLContext struct {
	Context context.Context
	Primary *artifact.Artifact
	Root    *xmlquery.Node
	Derived *IndexedCollection

	namespaces map[string]string
	compiled   map[string]*xpath.Expr
	builder    *XMLBuilder
}

func (x *XMLContext) compile(expr string) (*xpath.Expr, error) {
	if c, ok := x.compiled[expr]; ok {
		return c, nil
	}
	c, err := xpath.CompileWithNS(expr, x.namespaces)
	if err != nil {
		return nil, fmt.Errorf("compile xpath %q: %w", expr, err)
	}
	x.compiled[expr] = c
	return c, nil
}

// Select evaluates expr relative to n.
func (x *XMLContext) Select(n *xmlquery.Node, expr string) ([]*xmlquery.Node, error) {
	if err := x.Context.Err(); err != nil {
		return nil, err
	}
	c, err := x.compile(expr)
	if err != nil {
		return nil, err
	}
	return xmlquery.QuerySelectorAll(n, c), nil
}

// Text returns the trimmed text of the first node expr selects relative to
// n, or "" if it selects nothing.
func (x *XMLContext) Text(n *xmlquery.Node, expr string) (string, error) {
	c, err := x.compile(expr)
	if err != nil {
		return "", err
	}
	found := xmlquery.QuerySelector(n, c)
	if found == nil {
		return "", nil
	}
	return strings.TrimSpace(found.InnerText()), nil
}

// Texts returns the trimmed text of every node expr selects relative to n.
func (x *XMLContext) Texts(n *xmlquery.Node, expr string) ([]string, error) {
	nodes, err := x.Select(n, expr)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(nodes))
	for _, node := range nodes {
		texts = append(texts, strings.TrimSpace(node.InnerText()))
	}
	return texts, nil
}

// ReferenceDocument declares a relationship from the primary artifact to
// the documents of the given model and type with the given target
// namespace and, when location is set, file name. The relationship is
// declared now and gains targets when relationships are built.
func (x *XMLContext) ReferenceDocument(relType, model, docType, namespace, location string) {
	x.Primary.AddRelationship(relType)
	x.builder.refs = append(x.builder.refs, documentRef{
		relType:   relType,
		model:     model,
		docType:   docType,
		namespace: namespace,
		location:  location,
	})
}

// localName strips the prefix from a QName such as "tns:EchoMessage".
func localName(qname string) string {
	if i := strings.LastIndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}

// resolveQName splits a QName used as an attribute value on n and maps its
// prefix to the namespace declared in scope. ok is false when the prefix is
// not declared.
func resolveQName(n *xmlquery.Node, qname string) (namespace, local string, ok bool) {
	prefix, local := "", qname
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		prefix, local = qname[:i], qname[i+1:]
	}
	for node := n; node != nil; node = node.Parent {
		for _, attr := range node.Attr {
			declared := (prefix == "" && attr.Name.Space == "" && attr.Name.Local == "xmlns") ||
				(prefix != "" && attr.Name.Space == "xmlns" && attr.Name.Local == prefix)
			if declared {
				return attr.Value, local, true
			}
		}
	}
	// An unprefixed name with no default namespace is in no namespace
	return "", local, prefix == ""
}
