package eval

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/c360studio/artificer/artifact"
	"github.com/c360studio/artificer/query"
)

// Func implements a query function for one context artifact. Boolean
// functions return []string{"true"} when they hold and nil otherwise.
type Func func(e *Evaluator, a *artifact.Artifact, args []*query.Argument) ([]string, error)

// Functions is a table of query functions keyed by namespace and local
// name. It is safe for concurrent use.
type Functions struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewFunctions creates an empty function table.
func NewFunctions() *Functions {
	return &Functions{funcs: make(map[string]Func)}
}

// DefaultFunctions holds the s-ramp and XPath functions the evaluator
// supports.
var DefaultFunctions = NewFunctions()

func init() {
	DefaultFunctions.Register(query.XPathFunctionsNamespace, "matches", fnMatches)
	DefaultFunctions.Register(query.XPathFunctionsNamespace, "not", fnNot)
	DefaultFunctions.Register(query.SrampNamespace, "classifiedByAnyOf", classifiedBy(false))
	DefaultFunctions.Register(query.SrampNamespace, "classifiedByAllOf", classifiedBy(true))
	DefaultFunctions.Register(query.SrampNamespace, "exactlyClassifiedByAnyOf", classifiedBy(false))
	DefaultFunctions.Register(query.SrampNamespace, "exactlyClassifiedByAllOf", classifiedBy(true))
	DefaultFunctions.Register(query.SrampNamespace, "getRelationshipAttribute", fnRelationshipAttribute)
	DefaultFunctions.Register(query.SrampNamespace, "getTargetAttribute", fnTargetAttribute)
}

func funcKey(namespace, local string) string {
	return "{" + namespace + "}" + local
}

// Register adds or replaces a function.
func (f *Functions) Register(namespace, local string, fn Func) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funcs[funcKey(namespace, local)] = fn
}

// Lookup returns the function for a resolved name.
func (f *Functions) Lookup(name query.QName) (Func, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn, ok := f.funcs[funcKey(name.Namespace, name.Local)]
	return fn, ok
}

func (e *Evaluator) call(a *artifact.Artifact, fc *query.FunctionCall) ([]string, error) {
	fn, ok := e.funcs.Lookup(fc.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFunction, fc.Name)
	}
	return fn(e, a, fc.Arguments)
}

func truth(b bool) []string {
	if b {
		return []string{"true"}
	}
	return nil
}

// isContext reports whether the argument is the bare "." context item.
func isContext(arg *query.Argument) bool {
	step := simpleStep(arg)
	return step != nil && step.Property == nil && step.SubartifactSet != nil &&
		step.SubartifactSet.RelationshipPath != nil &&
		step.SubartifactSet.RelationshipPath.RelationshipType == "." &&
		step.SubartifactSet.Predicate == nil && step.SubartifactSet.SubartifactSet == nil
}

// simpleStep returns the property step when the argument is exactly one
// un-compared step, as in matches(@name, ...).
func simpleStep(arg *query.Argument) *query.ForwardPropertyStep {
	if arg.Expr == nil {
		return nil
	}
	ors := arg.Expr.OrExpr.Operands
	if len(ors) != 1 || len(ors[0].Operands) != 1 {
		return nil
	}
	cmp := ors[0].Operands[0].Comparison
	if cmp == nil || cmp.Operator != query.OpNone {
		return nil
	}
	return cmp.Left
}

// argValues evaluates an argument to its string values.
func (e *Evaluator) argValues(a *artifact.Artifact, arg *query.Argument) ([]string, error) {
	if arg.PrimaryExpr != nil {
		v, err := e.primaryText(arg.PrimaryExpr)
		if err != nil {
			return nil, err
		}
		return []string{v}, nil
	}
	if step := simpleStep(arg); step != nil {
		return e.evalStep(a, step)
	}
	ok, err := e.evalExpr(a, arg.Expr)
	if err != nil {
		return nil, err
	}
	return truth(ok), nil
}

// argText evaluates an argument that must be a single literal value.
func (e *Evaluator) argText(a *artifact.Artifact, arg *query.Argument) (string, error) {
	values, err := e.argValues(a, arg)
	if err != nil {
		return "", err
	}
	if len(values) != 1 {
		return "", fmt.Errorf("%w: expected a single value", ErrInvalidArgument)
	}
	return values[0], nil
}

func fnMatches(e *Evaluator, a *artifact.Artifact, args []*query.Argument) ([]string, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("%w: matches takes 2 or 3 arguments", ErrInvalidArgument)
	}
	inputs, err := e.argValues(a, args[0])
	if err != nil {
		return nil, err
	}
	pattern, err := e.argText(a, args[1])
	if err != nil {
		return nil, err
	}
	if len(args) == 3 {
		flags, err := e.argText(a, args[2])
		if err != nil {
			return nil, err
		}
		if flags != "" {
			pattern = "(?" + flags + ")" + pattern
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	for _, in := range inputs {
		if re.MatchString(in) {
			return truth(true), nil
		}
	}
	return nil, nil
}

func fnNot(e *Evaluator, a *artifact.Artifact, args []*query.Argument) ([]string, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: not takes 1 argument", ErrInvalidArgument)
	}
	values, err := e.argValues(a, args[0])
	if err != nil {
		return nil, err
	}
	return truth(len(values) == 0), nil
}

// classifiedBy matches artifact classifications. A classifier matches a
// classification URI exactly or by its fragment or last path segment.
func classifiedBy(all bool) Func {
	return func(e *Evaluator, a *artifact.Artifact, args []*query.Argument) ([]string, error) {
		if len(args) < 2 || !isContext(args[0]) {
			return nil, fmt.Errorf("%w: expected (., classifier...)", ErrInvalidArgument)
		}
		for _, arg := range args[1:] {
			classifier, err := e.argText(a, arg)
			if err != nil {
				return nil, err
			}
			has := hasClassification(a, classifier)
			if all && !has {
				return nil, nil
			}
			if !all && has {
				return truth(true), nil
			}
		}
		return truth(all), nil
	}
}

func hasClassification(a *artifact.Artifact, classifier string) bool {
	for _, c := range a.Classifications {
		if c == classifier {
			return true
		}
		if i := strings.LastIndexAny(c, "#/"); i >= 0 && c[i+1:] == classifier {
			return true
		}
	}
	return false
}

// fnRelationshipAttribute returns the named property of every relationship
// of the given type.
func fnRelationshipAttribute(e *Evaluator, a *artifact.Artifact, args []*query.Argument) ([]string, error) {
	relType, attr, err := e.relationshipArgs(a, args)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, rel := range a.Relationships {
		if rel.Type != relType {
			continue
		}
		for _, p := range rel.Properties {
			if p.Name == attr {
				values = append(values, p.Value)
			}
		}
	}
	return values, nil
}

// fnTargetAttribute returns an attribute of every target of the given
// relationship type: "href" and "uuid" come from the target reference, any
// other name from the target artifact itself.
func fnTargetAttribute(e *Evaluator, a *artifact.Artifact, args []*query.Argument) ([]string, error) {
	relType, attr, err := e.relationshipArgs(a, args)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, rel := range a.Relationships {
		if rel.Type != relType {
			continue
		}
		for _, tgt := range rel.Targets {
			switch attr {
			case "href":
				if tgt.Href != "" {
					values = append(values, tgt.Href)
				}
			case "uuid":
				values = append(values, tgt.UUID)
			default:
				if t, ok := e.byUUID[tgt.UUID]; ok {
					if v, ok := propertyValue(t, &query.QName{Local: attr}); ok {
						values = append(values, v)
					}
				}
			}
		}
	}
	return values, nil
}

func (e *Evaluator) relationshipArgs(a *artifact.Artifact, args []*query.Argument) (string, string, error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("%w: expected (relationshipType, attribute)", ErrInvalidArgument)
	}
	relType, err := e.argText(a, args[0])
	if err != nil {
		return "", "", err
	}
	attr, err := e.argText(a, args[1])
	if err != nil {
		return "", "", err
	}
	return relType, attr, nil
}
