package query

// Visitor is implemented by anything that walks a query tree. Each node's
// Accept calls the matching method; visitors descend into children by
// calling Accept on them.
type Visitor interface {
	VisitQuery(*Query)
	VisitArtifactSet(*ArtifactSet)
	VisitLocationPath(*LocationPath)
	VisitSubartifactSet(*SubartifactSet)
	VisitRelationshipPath(*RelationshipPath)
	VisitPredicate(*Predicate)
	VisitExpr(*Expr)
	VisitOrExpr(*OrExpr)
	VisitAndExpr(*AndExpr)
	VisitEqualityExpr(*EqualityExpr)
	VisitComparisonExpr(*ComparisonExpr)
	VisitForwardPropertyStep(*ForwardPropertyStep)
	VisitFunctionCall(*FunctionCall)
	VisitArgument(*Argument)
	VisitPrimaryExpr(*PrimaryExpr)
}

// Inspect traverses the tree rooted at node in depth-first order, calling
// fn for each node. If fn returns false, Inspect skips the node's children.
func Inspect(node Node, fn func(Node) bool) {
	node.Accept(&inspector{fn: fn})
}

type inspector struct {
	fn func(Node) bool
}

func (in *inspector) VisitQuery(q *Query) {
	if !in.fn(q) {
		return
	}
	acceptAll(in, q.ArtifactSet, q.Predicate, q.SubartifactSet)
}

func (in *inspector) VisitArtifactSet(a *ArtifactSet) {
	if in.fn(a) && a.LocationPath != nil {
		a.LocationPath.Accept(in)
	}
}

func (in *inspector) VisitLocationPath(l *LocationPath) { in.fn(l) }

func (in *inspector) VisitSubartifactSet(s *SubartifactSet) {
	if !in.fn(s) {
		return
	}
	acceptAll(in, s.FunctionCall, s.RelationshipPath, s.Predicate, s.SubartifactSet)
}

func (in *inspector) VisitRelationshipPath(r *RelationshipPath) { in.fn(r) }

func (in *inspector) VisitPredicate(p *Predicate) {
	if in.fn(p) && p.Expr != nil {
		p.Expr.Accept(in)
	}
}

func (in *inspector) VisitExpr(e *Expr) {
	if in.fn(e) && e.OrExpr != nil {
		e.OrExpr.Accept(in)
	}
}

func (in *inspector) VisitOrExpr(o *OrExpr) {
	if !in.fn(o) {
		return
	}
	for _, op := range o.Operands {
		op.Accept(in)
	}
}

func (in *inspector) VisitAndExpr(a *AndExpr) {
	if !in.fn(a) {
		return
	}
	for _, op := range a.Operands {
		op.Accept(in)
	}
}

func (in *inspector) VisitEqualityExpr(e *EqualityExpr) {
	if !in.fn(e) {
		return
	}
	acceptAll(in, e.Expr, e.Comparison)
}

func (in *inspector) VisitComparisonExpr(c *ComparisonExpr) {
	if !in.fn(c) {
		return
	}
	acceptAll(in, c.Left, c.Right)
}

func (in *inspector) VisitForwardPropertyStep(f *ForwardPropertyStep) {
	if in.fn(f) && f.SubartifactSet != nil {
		f.SubartifactSet.Accept(in)
	}
}

func (in *inspector) VisitFunctionCall(f *FunctionCall) {
	if !in.fn(f) {
		return
	}
	for _, arg := range f.Arguments {
		arg.Accept(in)
	}
}

func (in *inspector) VisitArgument(a *Argument) {
	if !in.fn(a) {
		return
	}
	acceptAll(in, a.PrimaryExpr, a.Expr)
}

func (in *inspector) VisitPrimaryExpr(p *PrimaryExpr) { in.fn(p) }

// acceptAll visits the non-nil nodes. Typed nil pointers are skipped, which
// is why the nil check goes through isNil rather than node != nil.
func acceptAll(v Visitor, nodes ...Node) {
	for _, n := range nodes {
		if !isNil(n) {
			n.Accept(v)
		}
	}
}

func isNil(n Node) bool {
	switch n := n.(type) {
	case nil:
		return true
	case *ArtifactSet:
		return n == nil
	case *Predicate:
		return n == nil
	case *SubartifactSet:
		return n == nil
	case *FunctionCall:
		return n == nil
	case *RelationshipPath:
		return n == nil
	case *Expr:
		return n == nil
	case *ComparisonExpr:
		return n == nil
	case *ForwardPropertyStep:
		return n == nil
	case *PrimaryExpr:
		return n == nil
	default:
		return false
	}
}
