package derive

import (
	"github.com/antchfx/xmlquery"

	"github.com/c360studio/artificer/artifact"
)

// XMLSchemaNamespace is the W3C XML Schema namespace.
const XMLSchemaNamespace = "http://www.w3.org/2001/XMLSchema"

// Properties set on schema documents and their declarations.
const (
	PropTargetNamespace = "targetNamespace"
	PropNamespace       = "namespace"
	PropNCName          = "ncName"
)

// Relationships from a schema to the schemas it pulls in.
const (
	RelImportedXsds  = "importedXsds"
	RelIncludedXsds  = "includedXsds"
	RelRedefinedXsds = "redefinedXsds"
)

type xsdDeriver struct{}

// NewXSDBuilder creates a builder for one XML Schema document. It derives
// the schema's top-level named element, attribute, simple type and complex
// type declarations.
func NewXSDBuilder() *XMLBuilder {
	return NewXMLBuilder("xsd", xsdDeriver{})
}

func (xsdDeriver) NamespaceMappings(*xmlquery.Node) map[string]string {
	return map[string]string{
		"xs":  XMLSchemaNamespace,
		"xsd": XMLSchemaNamespace,
	}
}

func (xsdDeriver) Derive(x *XMLContext) error {
	targetNS := x.Root.SelectAttr("targetNamespace")
	x.Primary.SetProperty(PropTargetNamespace, targetNS)

	if err := deriveSchema(x, x.Root, targetNS); err != nil {
		return err
	}
	return schemaReferences(x, x.Root, targetNS)
}

var schemaDeclarations = []struct {
	element string
	base    artifact.BaseType
}{
	{"xsd:element", artifact.ElementDeclaration},
	{"xsd:attribute", artifact.AttributeDeclaration},
	{"xsd:simpleType", artifact.SimpleTypeDeclaration},
	{"xsd:complexType", artifact.ComplexTypeDeclaration},
}

// deriveSchema adds the named top-level declarations of schema.
func deriveSchema(x *XMLContext, schema *xmlquery.Node, targetNS string) error {
	for _, decl := range schemaDeclarations {
		nodes, err := x.Select(schema, decl.element+"[@name]")
		if err != nil {
			return err
		}
		for _, n := range nodes {
			name := n.SelectAttr("name")
			a := artifact.New(artifact.NewType(decl.base))
			a.Name = name
			a.SetProperty(PropNamespace, targetNS)
			a.SetProperty(PropNCName, name)
			x.Derived.Add(indexKey(decl.base.String(), targetNS+"/"+name), a)
		}
	}
	return nil
}

// schemaReferences declares the import, include and redefine relationships
// of schema. They are resolved against the repository later.
func schemaReferences(x *XMLContext, schema *xmlquery.Node, targetNS string) error {
	imports, err := x.Select(schema, "xsd:import[@namespace and @schemaLocation]")
	if err != nil {
		return err
	}
	for _, n := range imports {
		x.ReferenceDocument(RelImportedXsds, artifact.ModelXSD, artifact.XSDDocument.String(),
			n.SelectAttr("namespace"), stripPath(n.SelectAttr("schemaLocation")))
	}

	for _, ref := range []struct{ element, rel string }{
		{"xsd:include[@schemaLocation]", RelIncludedXsds},
		{"xsd:redefine[@schemaLocation]", RelRedefinedXsds},
	} {
		nodes, err := x.Select(schema, ref.element)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			x.ReferenceDocument(ref.rel, artifact.ModelXSD, artifact.XSDDocument.String(),
				targetNS, stripPath(n.SelectAttr("schemaLocation")))
		}
	}
	return nil
}
