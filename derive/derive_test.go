package derive

import (
	"context"
	"errors"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/artificer/artifact"
	"github.com/c360studio/artificer/metrics"
	"github.com/c360studio/artificer/query/eval"
)

const webXML = `<?xml version="1.0" encoding="ISO-8859-1"?>
<web-app xmlns="http://java.sun.com/xml/ns/javaee" version="3.0">
  <display-name>Echo Application</display-name>
  <listener>
    <description>Boots the echo service</description>
    <listener-class>com.acme.EchoListener</listener-class>
  </listener>
  <filter>
    <filter-name>Audit</filter-name>
    <filter-class>com.acme.AuditFilter</filter-class>
  </filter>
  <filter-mapping>
    <filter-name>Audit</filter-name>
    <url-pattern>/*</url-pattern>
  </filter-mapping>
  <servlet>
    <servlet-name>Echo</servlet-name>
    <display-name>Echo Servlet</display-name>
    <servlet-class>com.acme.EchoServlet</servlet-class>
  </servlet>
  <servlet>
    <servlet-name>Hello</servlet-name>
    <servlet-class>com.acme.HelloServlet</servlet-class>
  </servlet>
  <servlet-mapping>
    <servlet-name>Echo</servlet-name>
    <url-pattern>/echo/*</url-pattern>
  </servlet-mapping>
  <servlet-mapping>
    <servlet-name>Missing</servlet-name>
    <url-pattern>/missing</url-pattern>
  </servlet-mapping>
</web-app>`

func webXMLPrimary(t *testing.T) *artifact.Artifact {
	t.Helper()
	typ, err := artifact.ExtendedDocumentType(WebXMLDocumentType)
	require.NoError(t, err)
	a := artifact.New(typ)
	a.Name = "web.xml"
	return a
}

func byName(artifacts []*artifact.Artifact) map[string]*artifact.Artifact {
	m := make(map[string]*artifact.Artifact, len(artifacts))
	for _, a := range artifacts {
		m[a.Name] = a
	}
	return m
}

func property(t *testing.T, a *artifact.Artifact, name string) string {
	t.Helper()
	v, ok := a.Property(name)
	require.True(t, ok, "property %s", name)
	return v
}

func TestWebXMLDerivation(t *testing.T) {
	primary := webXMLPrimary(t)
	derived, err := Derive(context.Background(), primary, []byte(webXML), nil)
	require.NoError(t, err)

	assert.Equal(t, "Echo Application", primary.Name)
	assert.Equal(t, "ISO-8859-1", primary.ContentEncoding)
	require.Len(t, derived, 7)

	// Processing order: listeners, filters, filter mappings, servlets,
	// servlet mappings.
	var order []string
	for _, a := range derived {
		order = append(order, a.Type.ExtendedType)
	}
	assert.Equal(t, []string{
		"ListenerDeclaration",
		"FilterDeclaration",
		"FilterMapping",
		"ServletDeclaration",
		"ServletDeclaration",
		"ServletMapping",
		"ServletMapping",
	}, order)

	got := byName(derived)

	listener := got["com.acme.EchoListener"]
	require.NotNil(t, listener)
	assert.Equal(t, "Boots the echo service", listener.Description)
	assert.Equal(t, "com.acme.EchoListener", property(t, listener, "listener-class"))

	audit := got["Audit"]
	require.NotNil(t, audit)
	assert.Equal(t, "com.acme.AuditFilter", property(t, audit, "filter-class"))
	assert.Equal(t, "com.acme.AuditFilter", property(t, audit, "display-name"))

	auditMapping := got["Audit Mapping"]
	require.NotNil(t, auditMapping)
	assert.Equal(t, "Maps URLs of the form '/*' to filter Audit.", auditMapping.Description)
	rel := auditMapping.Relationship(RelMapsFilter)
	require.NotNil(t, rel)
	assert.True(t, rel.Generic)
	assert.Equal(t, []string{audit.UUID}, rel.TargetUUIDs())

	echo := got["Echo"]
	require.NotNil(t, echo)
	assert.Equal(t, "Echo Servlet", property(t, echo, "display-name"))
	assert.Equal(t, "com.acme.EchoServlet", property(t, echo, "servlet-class"))
	assert.True(t, echo.Type.IsDerived())

	hello := got["Hello"]
	assert.Equal(t, "com.acme.HelloServlet", property(t, hello, "display-name"))

	echoMapping := got["Echo Mapping"]
	require.NotNil(t, echoMapping)
	assert.Equal(t, "Maps URLs of the form '/echo/*' to servlet Echo.", echoMapping.Description)
	assert.Equal(t, "Echo", property(t, echoMapping, "servlet-name"))
	assert.Equal(t, "/echo/*", property(t, echoMapping, "url-pattern"))
	assert.Equal(t, []string{echo.UUID}, echoMapping.Relationship(RelMapsServlet).TargetUUIDs())

	assert.Nil(t, got["Missing Mapping"].Relationship(RelMapsServlet))

	for _, a := range derived {
		assert.NotEmpty(t, a.UUID)
		related := a.Relationship(artifact.RelatedDocument)
		require.NotNil(t, related, a.Name)
		assert.Equal(t, []string{primary.UUID}, related.TargetUUIDs())
	}
}

func TestWebXMLMappingBeforeServlet(t *testing.T) {
	content := `<web-app xmlns="http://xmlns.jcp.org/xml/ns/javaee">
  <servlet-mapping><servlet-name>Echo</servlet-name><url-pattern>/e</url-pattern></servlet-mapping>
  <servlet><servlet-name>Echo</servlet-name><servlet-class>E</servlet-class></servlet>
</web-app>`
	primary := webXMLPrimary(t)
	derived, err := Derive(context.Background(), primary, []byte(content), nil)
	require.NoError(t, err)

	got := byName(derived)
	assert.Equal(t, DefaultEncoding, primary.ContentEncoding)
	assert.Equal(t, "web.xml", primary.Name)
	require.NotNil(t, got["Echo Mapping"])
	assert.Equal(t, []string{got["Echo"].UUID}, got["Echo Mapping"].Relationship(RelMapsServlet).TargetUUIDs())
}

func TestDeriveAllOrNothing(t *testing.T) {
	primary := webXMLPrimary(t)
	before := primary.Clone()

	derived, err := Derive(context.Background(), primary, []byte("<web-app><servlet>"), nil)
	require.Error(t, err)
	assert.Nil(t, derived)
	assert.ErrorIs(t, err, ErrDerivation)

	var de *DerivationError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "web.xml", de.Builder)
	assert.Equal(t, before, primary)
}

type failingDeriver struct{}

func (failingDeriver) NamespaceMappings(*xmlquery.Node) map[string]string { return nil }

func (failingDeriver) Derive(x *XMLContext) error {
	x.Derived.Add("", artifact.New(ServletDeclarationType))
	_, err := x.Select(x.Root, "xs:element[")
	return err
}

func TestDeriveXPathFailure(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ok", ProviderFunc(func(*artifact.Artifact, []byte) []ArtifactBuilder {
		return []ArtifactBuilder{NewXSDBuilder()}
	}))
	reg.Register("broken", ProviderFunc(func(*artifact.Artifact, []byte) []ArtifactBuilder {
		return []ArtifactBuilder{NewXMLBuilder("broken", failingDeriver{})}
	}))

	primary := artifact.New(artifact.NewType(artifact.XSDDocument))
	derived, err := Derive(context.Background(), primary, []byte(xsdContent), reg)

	require.Error(t, err)
	assert.Nil(t, derived)
	var de *DerivationError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "broken", de.Builder)
	_, ok := primary.Property(PropTargetNamespace)
	assert.False(t, ok)
}

func TestNoBuilders(t *testing.T) {
	primary := artifact.New(artifact.NewType(artifact.Document))
	derived, err := Derive(context.Background(), primary, []byte("anything"), nil)
	require.NoError(t, err)
	assert.Empty(t, derived)
}

const xsdContent = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:teetime">
  <xs:import namespace="urn:common" schemaLocation="../common/common.xsd"/>
  <xs:include schemaLocation="extra.xsd"/>
  <xs:element name="TeeTimeRequest" type="xs:string"/>
  <xs:element ref="Other"/>
  <xs:attribute name="course" type="xs:string"/>
  <xs:simpleType name="Holes"><xs:restriction base="xs:int"/></xs:simpleType>
  <xs:complexType name="Player"><xs:sequence/></xs:complexType>
</xs:schema>`

func TestXSDDerivation(t *testing.T) {
	primary := artifact.New(artifact.NewType(artifact.XSDDocument))
	primary.Name = "teetime.xsd"

	derived, err := Derive(context.Background(), primary, []byte(xsdContent), nil)
	require.NoError(t, err)

	v, _ := primary.Property(PropTargetNamespace)
	assert.Equal(t, "urn:teetime", v)
	require.Len(t, derived, 4)

	want := map[string]artifact.BaseType{
		"TeeTimeRequest": artifact.ElementDeclaration,
		"course":         artifact.AttributeDeclaration,
		"Holes":          artifact.SimpleTypeDeclaration,
		"Player":         artifact.ComplexTypeDeclaration,
	}
	for name, a := range byName(derived) {
		assert.Equal(t, want[name], a.Type.Base, name)
		assert.Equal(t, "urn:teetime", property(t, a, PropNamespace))
		assert.Equal(t, name, property(t, a, PropNCName))
	}

	// Without a lookup the relationships are declared but empty.
	require.NotNil(t, primary.Relationship(RelImportedXsds))
	assert.Empty(t, primary.Relationship(RelImportedXsds).Targets)
	require.NotNil(t, primary.Relationship(RelIncludedXsds))
}

func TestXSDImportsResolvedWithLookup(t *testing.T) {
	common := artifact.New(artifact.NewType(artifact.XSDDocument))
	common.Name = "common.xsd"
	common.SetProperty(PropTargetNamespace, "urn:common")

	other := artifact.New(artifact.NewType(artifact.XSDDocument))
	other.Name = "other.xsd"
	other.SetProperty(PropTargetNamespace, "urn:common")

	extra := artifact.New(artifact.NewType(artifact.XSDDocument))
	extra.Name = "extra.xsd"
	extra.SetProperty(PropTargetNamespace, "urn:teetime")

	source := eval.SourceFunc(func(context.Context) ([]*artifact.Artifact, error) {
		return []*artifact.Artifact{common, other, extra}, nil
	})
	deriver := NewDeriver(nil,
		WithLookup(ExecutorLookup(eval.NewExecutor(source, nil))),
		WithMetrics(metrics.New(nil)))

	primary := artifact.New(artifact.NewType(artifact.XSDDocument))
	_, err := deriver.Derive(context.Background(), primary, []byte(xsdContent))
	require.NoError(t, err)

	assert.Equal(t, []string{common.UUID}, primary.Relationship(RelImportedXsds).TargetUUIDs())
	assert.Equal(t, []string{extra.UUID}, primary.Relationship(RelIncludedXsds).TargetUUIDs())
}

func TestBuildThenResolve(t *testing.T) {
	common := artifact.New(artifact.NewType(artifact.XSDDocument))
	common.Name = "common.xsd"

	// The referenced schema only gets its namespace once it is built
	var repo []*artifact.Artifact
	source := eval.SourceFunc(func(context.Context) ([]*artifact.Artifact, error) {
		return repo, nil
	})
	deriver := NewDeriver(nil, WithLookup(ExecutorLookup(eval.NewExecutor(source, nil))))

	primary := artifact.New(artifact.NewType(artifact.XSDDocument))
	x, err := deriver.Build(context.Background(), primary, []byte(xsdContent))
	require.NoError(t, err)
	require.NotNil(t, x)
	_, hasNS := primary.Property(PropTargetNamespace)
	assert.False(t, hasNS, "primary is unchanged until Resolve")
	built, _ := x.Primary().Property(PropTargetNamespace)
	assert.Equal(t, "urn:teetime", built)

	commonBuild, err := deriver.Build(context.Background(), common,
		[]byte(`<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:common"/>`))
	require.NoError(t, err)
	repo = append(repo, commonBuild.Primary())

	_, err = x.Resolve(context.Background())
	require.NoError(t, err)
	ns, _ := primary.Property(PropTargetNamespace)
	assert.Equal(t, "urn:teetime", ns)
	assert.Equal(t, []string{common.UUID}, primary.Relationship(RelImportedXsds).TargetUUIDs())

	none, err := deriver.Build(context.Background(), artifact.New(artifact.NewType(artifact.Document)), nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestLookupFailureFailsDerivation(t *testing.T) {
	boom := errors.New("repository down")
	deriver := NewDeriver(nil, WithLookup(func(context.Context, string, ...string) ([]*artifact.Artifact, error) {
		return nil, boom
	}))

	primary := artifact.New(artifact.NewType(artifact.XSDDocument))
	derived, err := deriver.Derive(context.Background(), primary, []byte(xsdContent))
	assert.Nil(t, derived)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrDerivation)
}

const wsdlContent = `<?xml version="1.0"?>
<wsdl:definitions xmlns:wsdl="http://schemas.xmlsoap.org/wsdl/"
    xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/"
    xmlns:xsd="http://www.w3.org/2001/XMLSchema"
    xmlns:tns="urn:echo" targetNamespace="urn:echo">
  <wsdl:types>
    <xsd:schema targetNamespace="urn:echo">
      <xsd:element name="EchoRequest" type="xsd:string"/>
    </xsd:schema>
  </wsdl:types>
  <wsdl:message name="EchoMessage">
    <wsdl:part name="body" element="tns:EchoRequest"/>
  </wsdl:message>
  <wsdl:portType name="EchoPortType">
    <wsdl:operation name="echo">
      <wsdl:input message="tns:EchoMessage"/>
      <wsdl:output name="echoOut" message="tns:EchoMessage"/>
    </wsdl:operation>
  </wsdl:portType>
  <wsdl:binding name="EchoBinding" type="tns:EchoPortType">
    <soap:binding style="document" transport="http://schemas.xmlsoap.org/soap/http"/>
    <wsdl:operation name="echo"/>
  </wsdl:binding>
  <wsdl:service name="EchoService">
    <wsdl:port name="EchoPort" binding="tns:EchoBinding">
      <soap:address location="http://localhost:8080/echo"/>
    </wsdl:port>
  </wsdl:service>
</wsdl:definitions>`

func TestWSDLDerivation(t *testing.T) {
	primary := artifact.New(artifact.NewType(artifact.WSDLDocument))
	derived, err := Derive(context.Background(), primary, []byte(wsdlContent), nil)
	require.NoError(t, err)

	v, _ := primary.Property(PropTargetNamespace)
	assert.Equal(t, "urn:echo", v)

	byType := map[artifact.BaseType][]*artifact.Artifact{}
	for _, a := range derived {
		byType[a.Type.Base] = append(byType[a.Type.Base], a)
	}
	require.Len(t, byType[artifact.ElementDeclaration], 1)
	require.Len(t, byType[artifact.Message], 1)
	require.Len(t, byType[artifact.Part], 1)
	require.Len(t, byType[artifact.PortType], 1)
	require.Len(t, byType[artifact.Operation], 1)
	require.Len(t, byType[artifact.OperationInput], 1)
	require.Len(t, byType[artifact.OperationOutput], 1)
	require.Len(t, byType[artifact.Binding], 1)
	require.Len(t, byType[artifact.SoapBinding], 1)
	require.Len(t, byType[artifact.BindingOperation], 1)
	require.Len(t, byType[artifact.WSDLService], 1)
	require.Len(t, byType[artifact.Port], 1)
	require.Len(t, byType[artifact.SoapAddress], 1)

	msg := byType[artifact.Message][0]
	part := byType[artifact.Part][0]
	pt := byType[artifact.PortType][0]
	op := byType[artifact.Operation][0]
	binding := byType[artifact.Binding][0]
	port := byType[artifact.Port][0]

	assert.Equal(t, []string{part.UUID}, msg.Relationship(RelPart).TargetUUIDs())
	assert.Equal(t, []string{byType[artifact.ElementDeclaration][0].UUID}, part.Relationship(RelElement).TargetUUIDs())
	assert.Equal(t, []string{op.UUID}, pt.Relationship(RelOperation).TargetUUIDs())
	assert.Equal(t, "EchoMessage", byType[artifact.OperationInput][0].Name)
	assert.Equal(t, "echoOut", byType[artifact.OperationOutput][0].Name)
	assert.Equal(t, []string{msg.UUID}, byType[artifact.OperationInput][0].Relationship(RelMessage).TargetUUIDs())
	assert.Equal(t, []string{pt.UUID}, binding.Relationship(RelPortType).TargetUUIDs())
	assert.Equal(t, []string{binding.UUID}, port.Relationship(RelBinding).TargetUUIDs())
	assert.Equal(t, "document", property(t, byType[artifact.SoapBinding][0], "style"))
	assert.Equal(t, "http://localhost:8080/echo", property(t, byType[artifact.SoapAddress][0], "soapLocation"))
}

func TestWSDLPartElementMatchesNamespace(t *testing.T) {
	const doc = `<?xml version="1.0"?>
<wsdl:definitions xmlns:wsdl="http://schemas.xmlsoap.org/wsdl/"
    xmlns:xsd="http://www.w3.org/2001/XMLSchema"
    xmlns:v1="urn:orders:v1" xmlns:v2="urn:orders:v2" targetNamespace="urn:orders">
  <wsdl:types>
    <xsd:schema targetNamespace="urn:orders:v1">
      <xsd:element name="Order" type="xsd:string"/>
    </xsd:schema>
    <xsd:schema targetNamespace="urn:orders:v2">
      <xsd:element name="Order" type="xsd:string"/>
    </xsd:schema>
  </wsdl:types>
  <wsdl:message name="PlaceOrder">
    <wsdl:part name="body" element="v2:Order"/>
    <wsdl:part name="legacy" element="missing:Order"/>
  </wsdl:message>
</wsdl:definitions>`

	primary := artifact.New(artifact.NewType(artifact.WSDLDocument))
	derived, err := Derive(context.Background(), primary, []byte(doc), nil)
	require.NoError(t, err)

	var v2 string
	parts := map[string]*artifact.Artifact{}
	for _, a := range derived {
		switch a.Type.Base {
		case artifact.ElementDeclaration:
			if ns, _ := a.Property(PropNamespace); ns == "urn:orders:v2" {
				v2 = a.UUID
			}
		case artifact.Part:
			parts[a.Name] = a
		}
	}
	require.NotEmpty(t, v2)
	require.Len(t, parts, 2)

	assert.Equal(t, []string{v2}, parts["body"].Relationship(RelElement).TargetUUIDs())
	assert.Nil(t, parts["legacy"].Relationship(RelElement))
}

func TestIndexedCollection(t *testing.T) {
	c := NewIndexedCollection()
	a := c.Add("servlet:Echo", &artifact.Artifact{Name: "Echo"})
	assert.NotEmpty(t, a.UUID)
	c.Add("", &artifact.Artifact{Name: "unindexed"})

	got, ok := c.Lookup("servlet:Echo")
	require.True(t, ok)
	assert.Same(t, a, got)
	_, ok = c.Lookup("")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "unindexed", c.Artifacts()[1].Name)
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"xsd", "wsdl", "web.xml"}, DefaultRegistry.Names())

	reg := NewRegistry()
	reg.Register("a", ProviderFunc(func(*artifact.Artifact, []byte) []ArtifactBuilder { return nil }))
	reg.Register("b", ProviderFunc(func(*artifact.Artifact, []byte) []ArtifactBuilder {
		return []ArtifactBuilder{NewXSDBuilder()}
	}))
	reg.Register("a", ProviderFunc(func(*artifact.Artifact, []byte) []ArtifactBuilder {
		return []ArtifactBuilder{NewWSDLBuilder()}
	}))
	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.Len(t, reg.Builders(artifact.New(artifact.NewType(artifact.Document)), nil), 2)
}

func TestStripPath(t *testing.T) {
	assert.Equal(t, "common.xsd", stripPath("../common/common.xsd"))
	assert.Equal(t, "a.xsd", stripPath(`C:\schemas\a.xsd`))
	assert.Equal(t, "a.xsd", stripPath("http://example.com/x/a.xsd?version=2"))
}
