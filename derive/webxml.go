package derive

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/c360studio/artificer/artifact"
)

// WebXMLDocumentType is the extended document type of a web.xml deployment
// descriptor.
const WebXMLDocumentType = "WebXmlDocument"

// JavaEENamespace is assumed when a web.xml has no recognized namespace.
const JavaEENamespace = "http://java.sun.com/xml/ns/javaee"

var javaEENamespaces = []string{
	"http://java.sun.com/xml/ns/j2ee",
	JavaEENamespace,
	"http://xmlns.jcp.org/xml/ns/javaee",
	"https://jakarta.ee/xml/ns/jakartaee",
}

// Types derived from a web.xml.
var (
	ListenerDeclarationType = artifact.MustExtended("ListenerDeclaration", true)
	FilterDeclarationType   = artifact.MustExtended("FilterDeclaration", true)
	FilterMappingType       = artifact.MustExtended("FilterMapping", true)
	ServletDeclarationType  = artifact.MustExtended("ServletDeclaration", true)
	ServletMappingType      = artifact.MustExtended("ServletMapping", true)
)

// Relationships between web.xml declarations.
const (
	RelMapsFilter  = "mapsFilter"
	RelMapsServlet = "mapsServlet"
)

// webXMLDeriver derives listeners, filters, servlets and their mappings.
// Declarations are processed before the mappings that refer to them, so a
// mapping resolves its declaration from the index.
type webXMLDeriver struct{}

// NewWebXMLBuilder creates a builder for one web.xml.
func NewWebXMLBuilder() *XMLBuilder {
	return NewXMLBuilder("web.xml", webXMLDeriver{})
}

func (webXMLDeriver) NamespaceMappings(root *xmlquery.Node) map[string]string {
	ns := JavaEENamespace
	for _, known := range javaEENamespaces {
		if root.NamespaceURI == known {
			ns = known
		}
	}
	return map[string]string{"jee": ns}
}

func (d webXMLDeriver) Derive(x *XMLContext) error {
	displayName, err := x.Text(x.Root, "jee:display-name")
	if err != nil {
		return err
	}
	if displayName != "" {
		x.Primary.Name = displayName
	}

	steps := []func(*XMLContext) error{
		d.listeners,
		d.filters,
		d.filterMappings,
		d.servlets,
		d.servletMappings,
	}
	for _, step := range steps {
		if err := step(x); err != nil {
			return err
		}
	}
	return nil
}

// fields reads the named child elements of n.
func fields(x *XMLContext, n *xmlquery.Node, names ...string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	for _, name := range names {
		v, err := x.Text(n, "jee:"+name)
		if err != nil {
			return nil, err
		}
		values[name] = v
	}
	return values, nil
}

func (webXMLDeriver) listeners(x *XMLContext) error {
	nodes, err := x.Select(x.Root, "jee:listener")
	if err != nil {
		return err
	}
	for _, n := range nodes {
		f, err := fields(x, n, "listener-class", "display-name", "description")
		if err != nil {
			return err
		}
		a := artifact.New(ListenerDeclarationType)
		a.Name = firstNonEmpty(f["display-name"], f["listener-class"])
		a.Description = f["description"]
		a.SetProperty("listener-class", f["listener-class"])
		x.Derived.Add("", a)
	}
	return nil
}

func (webXMLDeriver) filters(x *XMLContext) error {
	nodes, err := x.Select(x.Root, "jee:filter")
	if err != nil {
		return err
	}
	for _, n := range nodes {
		f, err := fields(x, n, "filter-name", "filter-class", "display-name", "description")
		if err != nil {
			return err
		}
		a := artifact.New(FilterDeclarationType)
		a.Name = f["filter-name"]
		a.Description = f["description"]
		a.SetProperty("display-name", firstNonEmpty(f["display-name"], f["filter-class"]))
		a.SetProperty("filter-class", f["filter-class"])
		x.Derived.Add(indexKey("filter", a.Name), a)
	}
	return nil
}

func (webXMLDeriver) filterMappings(x *XMLContext) error {
	nodes, err := x.Select(x.Root, "jee:filter-mapping")
	if err != nil {
		return err
	}
	for _, n := range nodes {
		name, err := x.Text(n, "jee:filter-name")
		if err != nil {
			return err
		}
		patterns, err := x.Texts(n, "jee:url-pattern")
		if err != nil {
			return err
		}
		pattern := strings.Join(patterns, ", ")

		a := artifact.New(FilterMappingType)
		a.Name = name + " Mapping"
		a.Description = fmt.Sprintf("Maps URLs of the form '%s' to filter %s.", pattern, name)
		a.SetProperty("filter-name", name)
		a.SetProperty("url-pattern", pattern)
		if filter, ok := x.Derived.Lookup(indexKey("filter", name)); ok {
			a.AddRelationship(RelMapsFilter, filter.UUID).Generic = true
		}
		x.Derived.Add("", a)
	}
	return nil
}

func (webXMLDeriver) servlets(x *XMLContext) error {
	nodes, err := x.Select(x.Root, "jee:servlet")
	if err != nil {
		return err
	}
	for _, n := range nodes {
		f, err := fields(x, n, "servlet-name", "servlet-class", "display-name", "description")
		if err != nil {
			return err
		}
		a := artifact.New(ServletDeclarationType)
		a.Name = f["servlet-name"]
		a.Description = f["description"]
		a.SetProperty("display-name", firstNonEmpty(f["display-name"], f["servlet-class"]))
		a.SetProperty("servlet-class", f["servlet-class"])
		x.Derived.Add(indexKey("servlet", a.Name), a)
	}
	return nil
}

func (webXMLDeriver) servletMappings(x *XMLContext) error {
	nodes, err := x.Select(x.Root, "jee:servlet-mapping")
	if err != nil {
		return err
	}
	for _, n := range nodes {
		name, err := x.Text(n, "jee:servlet-name")
		if err != nil {
			return err
		}
		patterns, err := x.Texts(n, "jee:url-pattern")
		if err != nil {
			return err
		}
		pattern := strings.Join(patterns, ", ")

		a := artifact.New(ServletMappingType)
		a.Name = name + " Mapping"
		a.Description = fmt.Sprintf("Maps URLs of the form '%s' to servlet %s.", pattern, name)
		a.SetProperty("servlet-name", name)
		a.SetProperty("url-pattern", pattern)
		if servlet, ok := x.Derived.Lookup(indexKey("servlet", name)); ok {
			a.AddRelationship(RelMapsServlet, servlet.UUID).Generic = true
		}
		x.Derived.Add("", a)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
