package derive

import (
	"github.com/antchfx/xmlquery"

	"github.com/c360studio/artificer/artifact"
)

// WSDL 1.1 namespaces.
const (
	WSDLNamespace     = "http://schemas.xmlsoap.org/wsdl/"
	WSDLSOAPNamespace = "http://schemas.xmlsoap.org/wsdl/soap/"
)

// Relationships between WSDL components.
const (
	RelPart             = "part"
	RelElement          = "element"
	RelOperation        = "operation"
	RelInput            = "input"
	RelOutput           = "output"
	RelFault            = "fault"
	RelMessage          = "message"
	RelPortType         = "portType"
	RelBindingOperation = "bindingOperation"
	RelBinding          = "binding"
	RelPort             = "port"
	RelExtension        = "extension"
)

type wsdlDeriver struct{}

// NewWSDLBuilder creates a builder for one WSDL 1.1 document. It derives
// messages, port types, bindings and services, any inline schema
// declarations, and the relationships between them.
func NewWSDLBuilder() *XMLBuilder {
	return NewXMLBuilder("wsdl", wsdlDeriver{})
}

func (wsdlDeriver) NamespaceMappings(*xmlquery.Node) map[string]string {
	return map[string]string{
		"wsdl": WSDLNamespace,
		"soap": WSDLSOAPNamespace,
		"xsd":  XMLSchemaNamespace,
	}
}

func (d wsdlDeriver) Derive(x *XMLContext) error {
	targetNS := x.Root.SelectAttr("targetNamespace")
	x.Primary.SetProperty(PropTargetNamespace, targetNS)

	schemas, err := x.Select(x.Root, "wsdl:types/xsd:schema")
	if err != nil {
		return err
	}
	for _, schema := range schemas {
		schemaNS := schema.SelectAttr("targetNamespace")
		if err := deriveSchema(x, schema, schemaNS); err != nil {
			return err
		}
		if err := schemaReferences(x, schema, schemaNS); err != nil {
			return err
		}
	}

	steps := []func(*XMLContext, string) error{
		d.messages,
		d.portTypes,
		d.bindings,
		d.services,
	}
	for _, step := range steps {
		if err := step(x, targetNS); err != nil {
			return err
		}
	}
	return nil
}

// component creates a named WSDL component in the target namespace.
func component(base artifact.BaseType, name, targetNS string) *artifact.Artifact {
	a := artifact.New(artifact.NewType(base))
	a.Name = name
	a.SetProperty(PropNamespace, targetNS)
	a.SetProperty(PropNCName, name)
	return a
}

// link adds a relationship from a to the component indexed under key, if
// the document declares it.
func link(x *XMLContext, a *artifact.Artifact, relType, key string) {
	if target, ok := x.Derived.Lookup(key); ok {
		a.AddRelationship(relType, target.UUID)
	}
}

func (wsdlDeriver) messages(x *XMLContext, targetNS string) error {
	nodes, err := x.Select(x.Root, "wsdl:message[@name]")
	if err != nil {
		return err
	}
	for _, n := range nodes {
		msg := component(artifact.Message, n.SelectAttr("name"), targetNS)
		x.Derived.Add(indexKey("message", msg.Name), msg)

		parts, err := x.Select(n, "wsdl:part[@name]")
		if err != nil {
			return err
		}
		for _, p := range parts {
			part := component(artifact.Part, p.SelectAttr("name"), targetNS)
			if el := p.SelectAttr("element"); el != "" {
				part.SetProperty("element", el)
				if decl := elementDeclaration(x, p, el); decl != nil {
					part.AddRelationship(RelElement, decl.UUID)
				}
			}
			if typ := p.SelectAttr("type"); typ != "" {
				part.SetProperty("type", typ)
			}
			x.Derived.Add("", part)
			msg.AddRelationship(RelPart, part.UUID)
		}
	}
	return nil
}

// elementDeclaration finds the document's element declaration named by
// the QName ref, matching both namespace and local name.
func elementDeclaration(x *XMLContext, n *xmlquery.Node, ref string) *artifact.Artifact {
	namespace, local, ok := resolveQName(n, ref)
	if !ok {
		return nil
	}
	decl, _ := x.Derived.Lookup(indexKey(artifact.ElementDeclaration.String(), namespace+"/"+local))
	return decl
}

func (wsdlDeriver) portTypes(x *XMLContext, targetNS string) error {
	nodes, err := x.Select(x.Root, "wsdl:portType[@name]")
	if err != nil {
		return err
	}
	for _, n := range nodes {
		pt := component(artifact.PortType, n.SelectAttr("name"), targetNS)
		x.Derived.Add(indexKey("portType", pt.Name), pt)

		ops, err := x.Select(n, "wsdl:operation[@name]")
		if err != nil {
			return err
		}
		for _, o := range ops {
			op := component(artifact.Operation, o.SelectAttr("name"), targetNS)
			x.Derived.Add("", op)
			pt.AddRelationship(RelOperation, op.UUID)

			if err := operationMessages(x, o, op, targetNS); err != nil {
				return err
			}
		}
	}
	return nil
}

var operationMessageKinds = []struct {
	element string
	base    artifact.BaseType
	rel     string
}{
	{"wsdl:input", artifact.OperationInput, RelInput},
	{"wsdl:output", artifact.OperationOutput, RelOutput},
	{"wsdl:fault", artifact.Fault, RelFault},
}

func operationMessages(x *XMLContext, opNode *xmlquery.Node, op *artifact.Artifact, targetNS string) error {
	for _, kind := range operationMessageKinds {
		nodes, err := x.Select(opNode, kind.element)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			msgRef := n.SelectAttr("message")
			name := firstNonEmpty(n.SelectAttr("name"), localName(msgRef))
			a := component(kind.base, name, targetNS)
			link(x, a, RelMessage, indexKey("message", localName(msgRef)))
			x.Derived.Add("", a)
			op.AddRelationship(kind.rel, a.UUID)
		}
	}
	return nil
}

func (wsdlDeriver) bindings(x *XMLContext, targetNS string) error {
	nodes, err := x.Select(x.Root, "wsdl:binding[@name]")
	if err != nil {
		return err
	}
	for _, n := range nodes {
		b := component(artifact.Binding, n.SelectAttr("name"), targetNS)
		link(x, b, RelPortType, indexKey("portType", localName(n.SelectAttr("type"))))
		x.Derived.Add(indexKey("binding", b.Name), b)

		soapBindings, err := x.Select(n, "soap:binding")
		if err != nil {
			return err
		}
		for _, s := range soapBindings {
			ext := artifact.New(artifact.NewType(artifact.SoapBinding))
			ext.Name = "soap:binding"
			ext.SetProperty(PropNamespace, WSDLSOAPNamespace)
			ext.SetProperty(PropNCName, "binding")
			ext.SetProperty("style", s.SelectAttr("style"))
			ext.SetProperty("transport", s.SelectAttr("transport"))
			x.Derived.Add("", ext)
			b.AddRelationship(RelExtension, ext.UUID)
		}

		ops, err := x.Select(n, "wsdl:operation[@name]")
		if err != nil {
			return err
		}
		for _, o := range ops {
			bop := component(artifact.BindingOperation, o.SelectAttr("name"), targetNS)
			x.Derived.Add("", bop)
			b.AddRelationship(RelBindingOperation, bop.UUID)
		}
	}
	return nil
}

func (wsdlDeriver) services(x *XMLContext, targetNS string) error {
	nodes, err := x.Select(x.Root, "wsdl:service[@name]")
	if err != nil {
		return err
	}
	for _, n := range nodes {
		svc := component(artifact.WSDLService, n.SelectAttr("name"), targetNS)
		x.Derived.Add("", svc)

		ports, err := x.Select(n, "wsdl:port[@name]")
		if err != nil {
			return err
		}
		for _, p := range ports {
			port := component(artifact.Port, p.SelectAttr("name"), targetNS)
			link(x, port, RelBinding, indexKey("binding", localName(p.SelectAttr("binding"))))
			x.Derived.Add("", port)
			svc.AddRelationship(RelPort, port.UUID)

			addresses, err := x.Select(p, "soap:address[@location]")
			if err != nil {
				return err
			}
			for _, addr := range addresses {
				ext := artifact.New(artifact.NewType(artifact.SoapAddress))
				ext.Name = "soap:address"
				ext.SetProperty(PropNamespace, WSDLSOAPNamespace)
				ext.SetProperty(PropNCName, "address")
				ext.SetProperty("soapLocation", addr.SelectAttr("location"))
				x.Derived.Add("", ext)
				port.AddRelationship(RelExtension, ext.UUID)
			}
		}
	}
	return nil
}
