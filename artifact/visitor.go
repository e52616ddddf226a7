package artifact

// Visitor receives an artifact once per tag in its dispatch chain, most
// specific tag first, until a call reports the artifact handled.
type Visitor interface {
	VisitArtifact(a *Artifact, tag BaseType) bool
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc func(a *Artifact, tag BaseType) bool

// VisitArtifact implements Visitor.
func (f VisitorFunc) VisitArtifact(a *Artifact, tag BaseType) bool {
	return f(a, tag)
}

// DispatchChain returns the tags an artifact of type t is visited as, in
// order. The XSD, WSDL and policy documents are XML documents, and every
// XML document and extended document is also a Document.
func DispatchChain(t ArtifactType) []BaseType {
	switch t.Base {
	case XSDDocument, WSDLDocument, PolicyDocument:
		return []BaseType{t.Base, XMLDocument, Document}
	case XMLDocument, ExtendedDocument:
		return []BaseType{t.Base, Document}
	case Unknown:
		return nil
	default:
		return []BaseType{t.Base}
	}
}

// Visit dispatches a to v along the artifact's dispatch chain. It reports
// whether any tag was handled.
func Visit(a *Artifact, v Visitor) bool {
	for _, tag := range DispatchChain(a.Type) {
		if v.VisitArtifact(a, tag) {
			return true
		}
	}
	return false
}

// TypeVisitor routes artifacts to handlers registered per tag. A handler
// registered for a general tag, e.g. Document, also sees every more
// specific artifact that has no handler of its own.
type TypeVisitor struct {
	handlers map[BaseType]func(*Artifact)

	// Fallback, if set, receives artifacts no handler matched.
	Fallback func(*Artifact)
}

// NewTypeVisitor creates an empty TypeVisitor.
func NewTypeVisitor() *TypeVisitor {
	return &TypeVisitor{handlers: make(map[BaseType]func(*Artifact))}
}

// On registers fn for tag, replacing any earlier handler.
func (v *TypeVisitor) On(tag BaseType, fn func(*Artifact)) *TypeVisitor {
	v.handlers[tag] = fn
	return v
}

// VisitArtifact implements Visitor.
func (v *TypeVisitor) VisitArtifact(a *Artifact, tag BaseType) bool {
	fn, ok := v.handlers[tag]
	if !ok {
		return false
	}
	fn(a)
	return true
}

// Visit dispatches a and falls back to v.Fallback when nothing matched.
func (v *TypeVisitor) Visit(a *Artifact) {
	if !Visit(a, v) && v.Fallback != nil {
		v.Fallback(a)
	}
}
