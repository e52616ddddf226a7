// Package artifact provides the S-RAMP artifact model: the artifact type
// taxonomy, the artifact metadata record, ordered visitor dispatch and the
// Atom entry codec used for archive metadata sidecars.
package artifact

import (
	"fmt"
	"strings"
	"unicode"
)

// BaseType is the closed set of S-RAMP artifact kinds.
type BaseType int

// Core, XSD, policy, SOAP, WSDL, service implementation, extended and SOA
// model types, in table order.
const (
	Unknown BaseType = iota

	Document
	XMLDocument

	XSDDocument
	AttributeDeclaration
	ElementDeclaration
	SimpleTypeDeclaration
	ComplexTypeDeclaration
	XSDType

	PolicyDocument
	PolicyExpression
	PolicyAttachment

	SoapAddress
	SoapBinding

	WSDLDocument
	WSDLService
	Port
	WSDLExtension
	Part
	Message
	Fault
	PortType
	Operation
	OperationInput
	OperationOutput
	Binding
	BindingOperation
	BindingOperationInput
	BindingOperationOutput
	BindingOperationFault

	ServiceEndpoint
	ServiceInstance
	ServiceOperation
	Organization

	ExtendedArtifactType
	ExtendedDocument

	Actor
	Choreography
	ChoreographyProcess
	Collaboration
	CollaborationProcess
	Composition
	Effect
	Element
	Event
	InformationType
	Orchestration
	OrchestrationProcess
	Policy
	PolicySubject
	Process
	Service
	ServiceContract
	ServiceComposition
	ServiceInterface
	System
	Task

	numBaseTypes
)

// Artifact model names.
const (
	ModelCore                  = "core"
	ModelXSD                   = "xsd"
	ModelPolicy                = "policy"
	ModelSoapWSDL              = "soapWsdl"
	ModelWSDL                  = "wsdl"
	ModelServiceImplementation = "serviceImplementation"
	ModelExtended              = "ext"
	ModelSOA                   = "soa"
)

// MIME types assigned when nothing more specific is known.
const (
	MimeOctetStream = "application/octet-stream"
	MimeXML         = "application/xml"
)

type typeInfo struct {
	name     string
	model    string
	label    string
	derived  bool
	document bool
}

var baseTypes = [numBaseTypes]typeInfo{
	Document:    {"Document", ModelCore, "Document", false, true},
	XMLDocument: {"XmlDocument", ModelCore, "XML Document", false, true},

	XSDDocument:            {"XsdDocument", ModelXSD, "XML Schema", false, true},
	AttributeDeclaration:   {"AttributeDeclaration", ModelXSD, "XML Schema Attribute Declaration", true, false},
	ElementDeclaration:     {"ElementDeclaration", ModelXSD, "XML Schema Element Declaration", true, false},
	SimpleTypeDeclaration:  {"SimpleTypeDeclaration", ModelXSD, "XML Schema Simple Type Declaration", true, false},
	ComplexTypeDeclaration: {"ComplexTypeDeclaration", ModelXSD, "XML Schema Complex Type Declaration", true, false},
	XSDType:                {"XsdType", ModelXSD, "XML Schema Type Declaration", true, false},

	PolicyDocument:   {"PolicyDocument", ModelPolicy, "Policy", false, true},
	PolicyExpression: {"PolicyExpression", ModelPolicy, "Policy Expression", true, false},
	PolicyAttachment: {"PolicyAttachment", ModelPolicy, "Policy Attachment", true, false},

	SoapAddress: {"SoapAddress", ModelSoapWSDL, "SOAP Address", true, false},
	SoapBinding: {"SoapBinding", ModelSoapWSDL, "SOAP Binding", true, false},

	WSDLDocument:           {"WsdlDocument", ModelWSDL, "WSDL", false, true},
	WSDLService:            {"WsdlService", ModelWSDL, "WSDL Service", true, false},
	Port:                   {"Port", ModelWSDL, "WSDL Port", true, false},
	WSDLExtension:          {"WsdlExtension", ModelWSDL, "WSDL Extension", true, false},
	Part:                   {"Part", ModelWSDL, "WSDL Part", true, false},
	Message:                {"Message", ModelWSDL, "WSDL Message", true, false},
	Fault:                  {"Fault", ModelWSDL, "WSDL Fault", true, false},
	PortType:               {"PortType", ModelWSDL, "WSDL Port Type", true, false},
	Operation:              {"Operation", ModelWSDL, "WSDL Operation", true, false},
	OperationInput:         {"OperationInput", ModelWSDL, "WSDL Operation Input", true, false},
	OperationOutput:        {"OperationOutput", ModelWSDL, "WSDL Operation Output", true, false},
	Binding:                {"Binding", ModelWSDL, "WSDL Binding", true, false},
	BindingOperation:       {"BindingOperation", ModelWSDL, "WSDL Binding Operation", true, false},
	BindingOperationInput:  {"BindingOperationInput", ModelWSDL, "WSDL Binding Operation Input", true, false},
	BindingOperationOutput: {"BindingOperationOutput", ModelWSDL, "WSDL Binding Operation Output", true, false},
	BindingOperationFault:  {"BindingOperationFault", ModelWSDL, "WSDL Binding Operation Fault", true, false},

	ServiceEndpoint:  {"ServiceEndpoint", ModelServiceImplementation, "Service Endpoint", false, false},
	ServiceInstance:  {"ServiceInstance", ModelServiceImplementation, "Service Instance", false, false},
	ServiceOperation: {"ServiceOperation", ModelServiceImplementation, "Service Operation", false, false},
	Organization:     {"Organization", ModelServiceImplementation, "SOA Organization", false, false},

	ExtendedArtifactType: {"ExtendedArtifactType", ModelExtended, "Extended Artifact Type", false, false},
	ExtendedDocument:     {"ExtendedDocument", ModelExtended, "Extended Document", false, true},

	Actor:                {"Actor", ModelSOA, "SOA Actor", false, false},
	Choreography:         {"Choreography", ModelSOA, "SOA Choreography", false, false},
	ChoreographyProcess:  {"ChoreographyProcess", ModelSOA, "SOA Choreography Process", false, false},
	Collaboration:        {"Collaboration", ModelSOA, "SOA Collaboration", false, false},
	CollaborationProcess: {"CollaborationProcess", ModelSOA, "SOA Collaboration Process", false, false},
	Composition:          {"Composition", ModelSOA, "SOA Composition", false, false},
	Effect:               {"Effect", ModelSOA, "SOA Effect", false, false},
	Element:              {"Element", ModelSOA, "SOA Element", false, false},
	Event:                {"Event", ModelSOA, "SOA Event", false, false},
	InformationType:      {"InformationType", ModelSOA, "SOA Information Type", false, false},
	Orchestration:        {"Orchestration", ModelSOA, "SOA Orchestration", false, false},
	OrchestrationProcess: {"OrchestrationProcess", ModelSOA, "SOA Orchestration Process", false, false},
	Policy:               {"Policy", ModelSOA, "SOA Policy", false, false},
	PolicySubject:        {"PolicySubject", ModelSOA, "SOA Policy Subject", false, false},
	Process:              {"Process", ModelSOA, "SOA Process", false, false},
	Service:              {"Service", ModelSOA, "SOA Service", false, false},
	ServiceContract:      {"ServiceContract", ModelSOA, "SOA Service Contract", false, false},
	ServiceComposition:   {"ServiceComposition", ModelSOA, "SOA Service Composition", false, false},
	ServiceInterface:     {"ServiceInterface", ModelSOA, "SOA Service Interface", false, false},
	System:               {"System", ModelSOA, "SOA System", false, false},
	Task:                 {"Task", ModelSOA, "SOA Task", false, false},
}

var baseTypesByName = func() map[string]BaseType {
	m := make(map[string]BaseType, numBaseTypes)
	for bt := Document; bt < numBaseTypes; bt++ {
		m[baseTypes[bt].name] = bt
	}
	return m
}()

// String returns the wire name of the base type, e.g. "XsdDocument".
func (b BaseType) String() string {
	if !b.valid() {
		return "Unknown"
	}
	return baseTypes[b].name
}

// Model returns the S-RAMP model the base type belongs to.
func (b BaseType) Model() string {
	if !b.valid() {
		return ""
	}
	return baseTypes[b].model
}

// Label returns the human readable label.
func (b BaseType) Label() string {
	if !b.valid() {
		return ""
	}
	return baseTypes[b].label
}

// IsDerived reports whether artifacts of this type are only ever produced by
// derivation from a document.
func (b BaseType) IsDerived() bool {
	return b.valid() && baseTypes[b].derived
}

// IsDocument reports whether artifacts of this type carry content.
func (b BaseType) IsDocument() bool {
	return b.valid() && baseTypes[b].document
}

func (b BaseType) valid() bool {
	return b > Unknown && b < numBaseTypes
}

// ParseBaseType looks up a base type by its wire name.
func ParseBaseType(name string) (BaseType, bool) {
	bt, ok := baseTypesByName[name]
	return bt, ok
}

// BaseTypes returns every known base type in table order.
func BaseTypes() []BaseType {
	types := make([]BaseType, 0, numBaseTypes-1)
	for bt := Document; bt < numBaseTypes; bt++ {
		types = append(types, bt)
	}
	return types
}

// ArtifactType is a base type plus, for the two extended kinds, the
// integration specific type name.
type ArtifactType struct {
	Base            BaseType
	ExtendedType    string
	ExtendedDerived bool
}

// TypeOf returns the built-in type with the given name, or an extended
// artifact type when the name is not a built-in one.
func TypeOf(name string) (ArtifactType, error) {
	return TypeOfDocument(name, false)
}

// TypeOfDocument is TypeOf, choosing ExtendedDocument over
// ExtendedArtifactType for unknown names when isDocument is set. The bare
// names ExtendedArtifactType and ExtendedDocument are rejected since an
// artifact of either kind needs its own type name; see TypeFor for the
// query side.
func TypeOfDocument(name string, isDocument bool) (ArtifactType, error) {
	if name == "" {
		return ArtifactType{}, ErrUnknownType
	}
	if bt, ok := ParseBaseType(name); ok {
		if bt == ExtendedArtifactType || bt == ExtendedDocument {
			return ArtifactType{}, fmt.Errorf("%w: %s needs a type name", ErrInvalidExtendedType, name)
		}
		return ArtifactType{Base: bt}, nil
	}
	if isDocument {
		return ExtendedDocumentType(name)
	}
	return Extended(name, false)
}

// TypeFor resolves a model/type pair as it appears in a query location path
// or a repository URL. Under the "ext" model every type name other than
// ExtendedArtifactType and ExtendedDocument is an extended type name.
func TypeFor(model, typ string, isDocument bool) (ArtifactType, error) {
	if model == ModelExtended {
		switch {
		case typ == ExtendedDocument.String():
			return ArtifactType{Base: ExtendedDocument}, nil
		case typ == ExtendedArtifactType.String():
			return ArtifactType{Base: ExtendedArtifactType}, nil
		case isDocument:
			return ExtendedDocumentType(typ)
		default:
			return Extended(typ, false)
		}
	}
	bt, ok := ParseBaseType(typ)
	if !ok {
		return ArtifactType{}, fmt.Errorf("%w: %s/%s", ErrUnknownType, model, typ)
	}
	if bt.Model() != model {
		return ArtifactType{}, fmt.Errorf("%w: %s is not in model %s", ErrUnknownType, typ, model)
	}
	return ArtifactType{Base: bt}, nil
}

// NewType returns the artifact type for a built-in base type.
func NewType(bt BaseType) ArtifactType {
	return ArtifactType{Base: bt}
}

// Extended returns an ExtendedArtifactType with the given type name.
func Extended(name string, derived bool) (ArtifactType, error) {
	if err := validateExtendedName(name); err != nil {
		return ArtifactType{}, err
	}
	return ArtifactType{Base: ExtendedArtifactType, ExtendedType: name, ExtendedDerived: derived}, nil
}

// ExtendedDocumentType returns an ExtendedDocument with the given type name.
func ExtendedDocumentType(name string) (ArtifactType, error) {
	if err := validateExtendedName(name); err != nil {
		return ArtifactType{}, err
	}
	return ArtifactType{Base: ExtendedDocument, ExtendedType: name}, nil
}

// MustExtended is Extended for names known at compile time.
func MustExtended(name string, derived bool) ArtifactType {
	t, err := Extended(name, derived)
	if err != nil {
		panic(err)
	}
	return t
}

func validateExtendedName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidExtendedType)
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("%w: %q", ErrInvalidExtendedType, name)
		}
	}
	return nil
}

// IsExtended reports whether this is an ExtendedArtifactType or ExtendedDocument.
func (t ArtifactType) IsExtended() bool {
	return t.Base == ExtendedArtifactType || t.Base == ExtendedDocument
}

// IsDerived reports whether the type is derived, either by definition or
// because an extended type was flagged as derived.
func (t ArtifactType) IsDerived() bool {
	return t.Base.IsDerived() || t.ExtendedDerived
}

// IsDocument reports whether artifacts of the type carry content.
func (t ArtifactType) IsDocument() bool {
	return !t.IsDerived() && t.Base.IsDocument()
}

// Model returns the model name.
func (t ArtifactType) Model() string {
	return t.Base.Model()
}

// Type returns the type name used in paths and queries: the extended type
// name for extended types, the base type name otherwise.
func (t ArtifactType) Type() string {
	if t.IsExtended() && t.ExtendedType != "" {
		return t.ExtendedType
	}
	return t.Base.String()
}

// Label returns the base type's label.
func (t ArtifactType) Label() string {
	return t.Base.Label()
}

// MimeType returns the default content type for the type.
func (t ArtifactType) MimeType() string {
	switch t.Base {
	case Document, ExtendedDocument, ExtendedArtifactType:
		return MimeOctetStream
	default:
		return MimeXML
	}
}

// String returns "model/type".
func (t ArtifactType) String() string {
	return t.Model() + "/" + t.Type()
}

// IsZero reports whether no type is set.
func (t ArtifactType) IsZero() bool {
	return t.Base == Unknown
}

// TypeForExtension maps a file extension (with or without the leading dot)
// to the artifact type a plain file with that extension gets.
func TypeForExtension(ext string) ArtifactType {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "xml":
		return NewType(XMLDocument)
	case "xsd":
		return NewType(XSDDocument)
	case "wsdl":
		return NewType(WSDLDocument)
	case "wspolicy":
		return NewType(PolicyDocument)
	default:
		return NewType(Document)
	}
}
