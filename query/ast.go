// Package query implements the S-RAMP query language, an XPath subset that
// selects artifacts by model, type, property comparisons and relationships.
//
// Parse turns query text into a tree of nodes rooted at Query. Every node
// accepts a Visitor; Serializer is the Visitor that renders a tree back to
// canonical query text.
package query

import "math/big"

// Node is implemented by every AST node.
type Node interface {
	Accept(v Visitor)
}

// Query is the root of a parsed query.
type Query struct {
	ArtifactSet    *ArtifactSet
	Predicate      *Predicate
	SubartifactSet *SubartifactSet
}

// ArtifactSet selects the base set of artifacts.
type ArtifactSet struct {
	LocationPath *LocationPath
}

// LocationPath is the /s-ramp/{model}/{type} step. Both parts are optional;
// an empty model means all artifacts and an empty type means all types in
// the model.
type LocationPath struct {
	ArtifactModel string
	ArtifactType  string
}

// SubartifactSet navigates from the current artifact set, either through a
// function call or along a relationship.
type SubartifactSet struct {
	FunctionCall     *FunctionCall
	RelationshipPath *RelationshipPath
	Predicate        *Predicate
	SubartifactSet   *SubartifactSet
}

// Outgoing is the relationship path that follows every outgoing relationship.
const Outgoing = "outgoing"

// RelationshipPath names a relationship type.
type RelationshipPath struct {
	RelationshipType string
}

// IsOutgoing reports whether the path matches any outgoing relationship.
func (r *RelationshipPath) IsOutgoing() bool {
	return r.RelationshipType == Outgoing
}

// Predicate is a bracketed filter expression.
type Predicate struct {
	Expr *Expr
}

// Expr is the top of the boolean expression grammar.
type Expr struct {
	OrExpr *OrExpr
}

// OrExpr is a disjunction of one or more AndExprs.
type OrExpr struct {
	Operands []*AndExpr
}

// AndExpr is a conjunction of one or more EqualityExprs.
type AndExpr struct {
	Operands []*EqualityExpr
}

// EqualityExpr is either a parenthesized Expr or a comparison.
type EqualityExpr struct {
	Expr       *Expr
	Comparison *ComparisonExpr
}

// ComparisonExpr compares a property step against a primary expression.
// Without an operator it is an existence test: the property is set, or the
// subartifact set is not empty. Operator and Right are set together.
type ComparisonExpr struct {
	Left     *ForwardPropertyStep
	Operator Operator
	Right    *PrimaryExpr
}

// ForwardPropertyStep selects a property, optionally after navigating a
// subartifact set: "@name", "relatedDocument/@name" or just "relatedDocument".
type ForwardPropertyStep struct {
	SubartifactSet *SubartifactSet
	Property       *QName
}

// FunctionCall is a call such as xp2:matches(@name, 'x.*').
type FunctionCall struct {
	Name      QName
	Arguments []*Argument
}

// Argument is one function argument. Exactly one field is set.
type Argument struct {
	PrimaryExpr *PrimaryExpr
	Expr        *Expr
}

// PrimaryKind tells which field of a PrimaryExpr holds the value.
type PrimaryKind int

// Primary expression kinds.
const (
	PrimaryLiteral PrimaryKind = iota
	PrimaryInteger
	PrimaryDecimal
	PrimaryVariable
)

// PrimaryExpr is a string literal, a number or a $variable.
type PrimaryExpr struct {
	Kind     PrimaryKind
	Literal  string
	Integer  *big.Int
	Decimal  float64
	Variable *QName
}

// QName is a possibly prefixed name. Namespace is resolved from the prefix
// at parse time and is empty for unknown prefixes.
type QName struct {
	Prefix    string
	Local     string
	Namespace string
}

// String returns "prefix:local", or just "local" without a prefix.
func (q QName) String() string {
	if q.Prefix == "" {
		return q.Local
	}
	return q.Prefix + ":" + q.Local
}

// Operator is a comparison operator.
type Operator int

// Comparison operators. OpNone marks an existence test.
const (
	OpNone Operator = iota
	OpEQ
	OpNE
	OpLT
	OpGT
	OpLTE
	OpGTE
)

var operatorSymbols = map[Operator]string{
	OpEQ:  "=",
	OpNE:  "!=",
	OpLT:  "<",
	OpGT:  ">",
	OpLTE: "<=",
	OpGTE: ">=",
}

// String returns the operator symbol.
func (o Operator) String() string {
	return operatorSymbols[o]
}

func (q *Query) Accept(v Visitor)               { v.VisitQuery(q) }
func (a *ArtifactSet) Accept(v Visitor)         { v.VisitArtifactSet(a) }
func (l *LocationPath) Accept(v Visitor)        { v.VisitLocationPath(l) }
func (s *SubartifactSet) Accept(v Visitor)      { v.VisitSubartifactSet(s) }
func (r *RelationshipPath) Accept(v Visitor)    { v.VisitRelationshipPath(r) }
func (p *Predicate) Accept(v Visitor)           { v.VisitPredicate(p) }
func (e *Expr) Accept(v Visitor)                { v.VisitExpr(e) }
func (o *OrExpr) Accept(v Visitor)              { v.VisitOrExpr(o) }
func (a *AndExpr) Accept(v Visitor)             { v.VisitAndExpr(a) }
func (e *EqualityExpr) Accept(v Visitor)        { v.VisitEqualityExpr(e) }
func (c *ComparisonExpr) Accept(v Visitor)      { v.VisitComparisonExpr(c) }
func (f *ForwardPropertyStep) Accept(v Visitor) { v.VisitForwardPropertyStep(f) }
func (f *FunctionCall) Accept(v Visitor)        { v.VisitFunctionCall(f) }
func (a *Argument) Accept(v Visitor)            { v.VisitArgument(a) }
func (p *PrimaryExpr) Accept(v Visitor)         { v.VisitPrimaryExpr(p) }
