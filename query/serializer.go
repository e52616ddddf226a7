package query

import (
	"strconv"
	"strings"
)

// Serializer is a Visitor that renders a query tree as canonical query
// text. It accumulates output across visits; call Reset before reusing it.
// A Serializer must not be shared between goroutines.
type Serializer struct {
	buf strings.Builder
}

// NewSerializer creates an empty serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Reset clears the accumulated text.
func (s *Serializer) Reset() {
	s.buf.Reset()
}

// XPath returns the text accumulated so far.
func (s *Serializer) XPath() string {
	return s.buf.String()
}

// Format renders a node as canonical query text.
func Format(n Node) string {
	s := NewSerializer()
	n.Accept(s)
	return s.XPath()
}

func (s *Serializer) VisitQuery(q *Query) {
	q.ArtifactSet.Accept(s)
	if q.Predicate != nil {
		s.buf.WriteByte('[')
		q.Predicate.Accept(s)
		s.buf.WriteByte(']')
	}
	if q.SubartifactSet != nil {
		s.buf.WriteByte('/')
		q.SubartifactSet.Accept(s)
	}
}

func (s *Serializer) VisitArtifactSet(a *ArtifactSet) {
	a.LocationPath.Accept(s)
}

func (s *Serializer) VisitLocationPath(l *LocationPath) {
	s.buf.WriteString("/s-ramp")
	if l.ArtifactModel != "" {
		s.buf.WriteByte('/')
		s.buf.WriteString(l.ArtifactModel)
	}
	if l.ArtifactType != "" {
		s.buf.WriteByte('/')
		s.buf.WriteString(l.ArtifactType)
	}
}

func (s *Serializer) VisitSubartifactSet(sub *SubartifactSet) {
	if sub.FunctionCall != nil {
		sub.FunctionCall.Accept(s)
		return
	}
	sub.RelationshipPath.Accept(s)
	if sub.Predicate != nil {
		s.buf.WriteByte('[')
		sub.Predicate.Accept(s)
		s.buf.WriteByte(']')
	}
	if sub.SubartifactSet != nil {
		s.buf.WriteByte('/')
		sub.SubartifactSet.Accept(s)
	}
}

func (s *Serializer) VisitRelationshipPath(r *RelationshipPath) {
	s.buf.WriteString(r.RelationshipType)
}

func (s *Serializer) VisitPredicate(p *Predicate) {
	p.Expr.Accept(s)
}

func (s *Serializer) VisitExpr(e *Expr) {
	e.OrExpr.Accept(s)
}

func (s *Serializer) VisitOrExpr(o *OrExpr) {
	for i, and := range o.Operands {
		if i > 0 {
			s.buf.WriteString(" or ")
		}
		and.Accept(s)
	}
}

func (s *Serializer) VisitAndExpr(a *AndExpr) {
	for i, eq := range a.Operands {
		if i > 0 {
			s.buf.WriteString(" and ")
		}
		eq.Accept(s)
	}
}

func (s *Serializer) VisitEqualityExpr(e *EqualityExpr) {
	if e.Expr != nil {
		s.buf.WriteByte('(')
		e.Expr.Accept(s)
		s.buf.WriteByte(')')
		return
	}
	e.Comparison.Accept(s)
}

func (s *Serializer) VisitComparisonExpr(c *ComparisonExpr) {
	c.Left.Accept(s)
	if c.Operator != OpNone && c.Right != nil {
		s.buf.WriteByte(' ')
		s.buf.WriteString(c.Operator.String())
		s.buf.WriteByte(' ')
		c.Right.Accept(s)
	}
}

func (s *Serializer) VisitForwardPropertyStep(f *ForwardPropertyStep) {
	if f.SubartifactSet != nil {
		f.SubartifactSet.Accept(s)
		if f.Property != nil {
			s.buf.WriteByte('/')
		}
	}
	if f.Property != nil {
		s.buf.WriteByte('@')
		s.buf.WriteString(f.Property.String())
	}
}

func (s *Serializer) VisitFunctionCall(f *FunctionCall) {
	if f.Name.Prefix != "" && f.Name.Prefix != SrampPrefix {
		s.buf.WriteString(f.Name.Prefix)
		s.buf.WriteByte(':')
	}
	s.buf.WriteString(f.Name.Local)
	s.buf.WriteByte('(')
	for i, arg := range f.Arguments {
		if i > 0 {
			s.buf.WriteString(", ")
		}
		arg.Accept(s)
	}
	s.buf.WriteByte(')')
}

func (s *Serializer) VisitArgument(a *Argument) {
	if a.PrimaryExpr != nil {
		a.PrimaryExpr.Accept(s)
		return
	}
	a.Expr.Accept(s)
}

func (s *Serializer) VisitPrimaryExpr(p *PrimaryExpr) {
	switch p.Kind {
	case PrimaryLiteral:
		s.buf.WriteString(QuoteLiteral(p.Literal))
	case PrimaryInteger:
		s.buf.WriteString(p.Integer.String())
	case PrimaryDecimal:
		s.buf.WriteString(FormatDecimal(p.Decimal))
	case PrimaryVariable:
		s.buf.WriteByte('$')
		s.buf.WriteString(p.Variable.String())
	}
}

// QuoteLiteral single-quotes a string literal, doubling embedded quotes.
func QuoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// FormatDecimal renders a decimal so that it reparses as a decimal, which
// means it always carries a '.'.
func FormatDecimal(f float64) string {
	out := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}
