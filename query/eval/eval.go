// Package eval evaluates parsed queries against an in-memory set of
// artifacts. It backs the memory and SQL stores and the command-line query
// runner.
package eval

import (
	"fmt"
	"math/big"

	"github.com/c360studio/artificer/artifact"
	"github.com/c360studio/artificer/query"
)

// Evaluator selects artifacts matching a query. Relationship targets are
// resolved by UUID within the same artifact set; targets outside it are
// skipped.
type Evaluator struct {
	all    []*artifact.Artifact
	byUUID map[string]*artifact.Artifact
	vars   map[string]string
	funcs  *Functions
}

// New creates an evaluator over artifacts.
func New(artifacts []*artifact.Artifact) *Evaluator {
	byUUID := make(map[string]*artifact.Artifact, len(artifacts))
	for _, a := range artifacts {
		if a.UUID != "" {
			byUUID[a.UUID] = a
		}
	}
	return &Evaluator{
		all:    artifacts,
		byUUID: byUUID,
		vars:   make(map[string]string),
		funcs:  DefaultFunctions,
	}
}

// Bind sets the value of $name.
func (e *Evaluator) Bind(name, value string) *Evaluator {
	e.vars[name] = value
	return e
}

// WithFunctions replaces the function table.
func (e *Evaluator) WithFunctions(f *Functions) *Evaluator {
	e.funcs = f
	return e
}

// Select returns the artifacts matching q, in source order.
func (e *Evaluator) Select(q *query.Query) ([]*artifact.Artifact, error) {
	var matched []*artifact.Artifact
	for _, a := range e.all {
		if !inLocation(a, q.ArtifactSet.LocationPath) {
			continue
		}
		ok, err := e.matchPredicate(a, q.Predicate)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, a)
		}
	}
	if q.SubartifactSet == nil {
		return matched, nil
	}
	return e.resolveSet(q.SubartifactSet, matched)
}

// Match reports whether a single artifact satisfies q's location path and
// predicate. Subartifact sets are ignored.
func (e *Evaluator) Match(a *artifact.Artifact, q *query.Query) (bool, error) {
	if !inLocation(a, q.ArtifactSet.LocationPath) {
		return false, nil
	}
	return e.matchPredicate(a, q.Predicate)
}

func inLocation(a *artifact.Artifact, lp *query.LocationPath) bool {
	if lp == nil {
		return true
	}
	if lp.ArtifactModel != "" && a.Type.Model() != lp.ArtifactModel {
		return false
	}
	if lp.ArtifactType != "" && a.Type.Type() != lp.ArtifactType {
		return false
	}
	return true
}

func (e *Evaluator) matchPredicate(a *artifact.Artifact, p *query.Predicate) (bool, error) {
	if p == nil {
		return true, nil
	}
	return e.evalExpr(a, p.Expr)
}

func (e *Evaluator) evalExpr(a *artifact.Artifact, x *query.Expr) (bool, error) {
	for _, and := range x.OrExpr.Operands {
		ok, err := e.evalAnd(a, and)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (e *Evaluator) evalAnd(a *artifact.Artifact, and *query.AndExpr) (bool, error) {
	for _, eq := range and.Operands {
		ok, err := e.evalEquality(a, eq)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Evaluator) evalEquality(a *artifact.Artifact, eq *query.EqualityExpr) (bool, error) {
	if eq.Expr != nil {
		return e.evalExpr(a, eq.Expr)
	}
	return e.evalComparison(a, eq.Comparison)
}

func (e *Evaluator) evalComparison(a *artifact.Artifact, c *query.ComparisonExpr) (bool, error) {
	values, err := e.evalStep(a, c.Left)
	if err != nil {
		return false, err
	}
	if c.Operator == query.OpNone || c.Right == nil {
		return len(values) > 0, nil
	}
	right, err := e.operand(c.Right)
	if err != nil {
		return false, err
	}
	return compareAny(values, c.Operator, right), nil
}

// evalStep returns the values a forward property step yields for a. A
// boolean function yields "true" when it holds and nothing otherwise.
func (e *Evaluator) evalStep(a *artifact.Artifact, step *query.ForwardPropertyStep) ([]string, error) {
	if step.SubartifactSet == nil {
		if v, ok := propertyValue(a, step.Property); ok {
			return []string{v}, nil
		}
		return nil, nil
	}

	sub := step.SubartifactSet
	if sub.FunctionCall != nil {
		return e.call(a, sub.FunctionCall)
	}

	targets, err := e.resolveSet(sub, []*artifact.Artifact{a})
	if err != nil {
		return nil, err
	}
	var values []string
	for _, t := range targets {
		if step.Property == nil {
			values = append(values, t.UUID)
			continue
		}
		if v, ok := propertyValue(t, step.Property); ok {
			values = append(values, v)
		}
	}
	return values, nil
}

// resolveSet follows a relationship path from each context artifact,
// filters the targets and continues down the chain. Results are unique and
// keep first-seen order.
func (e *Evaluator) resolveSet(sub *query.SubartifactSet, from []*artifact.Artifact) ([]*artifact.Artifact, error) {
	if sub.FunctionCall != nil {
		return nil, fmt.Errorf("%w: %s as artifact set", ErrUnsupportedFunction, sub.FunctionCall.Name)
	}

	seen := make(map[string]bool)
	var out []*artifact.Artifact
	for _, a := range from {
		for _, rel := range a.Relationships {
			if !sub.RelationshipPath.IsOutgoing() && rel.Type != sub.RelationshipPath.RelationshipType {
				continue
			}
			for _, tgt := range rel.Targets {
				t, ok := e.byUUID[tgt.UUID]
				if !ok || seen[t.UUID] {
					continue
				}
				ok, err := e.matchPredicate(t, sub.Predicate)
				if err != nil {
					return nil, err
				}
				if ok {
					seen[t.UUID] = true
					out = append(out, t)
				}
			}
		}
	}

	if sub.SubartifactSet == nil {
		return out, nil
	}
	return e.resolveSet(sub.SubartifactSet, out)
}

func (e *Evaluator) operand(p *query.PrimaryExpr) (operand, error) {
	switch p.Kind {
	case query.PrimaryInteger:
		return operand{text: p.Integer.String(), number: new(big.Float).SetInt(p.Integer), numeric: true}, nil
	case query.PrimaryDecimal:
		return operand{text: query.FormatDecimal(p.Decimal), number: big.NewFloat(p.Decimal), numeric: true}, nil
	case query.PrimaryVariable:
		v, ok := e.vars[p.Variable.Local]
		if !ok {
			return operand{}, fmt.Errorf("%w: $%s", ErrUnboundVariable, p.Variable)
		}
		return operand{text: v}, nil
	default:
		return operand{text: p.Literal}, nil
	}
}

// primaryText is the string form of a primary expression used as a
// function argument.
func (e *Evaluator) primaryText(p *query.PrimaryExpr) (string, error) {
	op, err := e.operand(p)
	if err != nil {
		return "", err
	}
	return op.text, nil
}
