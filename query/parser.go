package query

import (
	"math/big"
	"slices"
	"strconv"
	"strings"

	"github.com/c360studio/artificer/artifact"
)

// Well-known prefixes and their namespaces.
const (
	SrampPrefix             = "s-ramp"
	SrampNamespace          = artifact.SrampNamespace
	XPathFunctionsPrefix    = "xp2"
	XPathFunctionsNamespace = "http://www.w3.org/2005/xpath-functions"
)

// Parser parses query text. The zero value is not usable; use NewParser.
type Parser struct {
	// DefaultPrefix is the prefix given to unprefixed function names.
	DefaultPrefix string

	namespaces map[string]string
}

// NewParser creates a parser that knows the s-ramp and xp2 prefixes.
func NewParser() *Parser {
	return &Parser{
		DefaultPrefix: SrampPrefix,
		namespaces: map[string]string{
			SrampPrefix:          SrampNamespace,
			XPathFunctionsPrefix: XPathFunctionsNamespace,
			"fn":                 XPathFunctionsNamespace,
		},
	}
}

// BindPrefix maps a prefix to a namespace URI for later parses.
func (p *Parser) BindPrefix(prefix, namespace string) {
	p.namespaces[prefix] = namespace
}

// Bindings returns a stable description of the parser's default prefix and
// prefix bindings. Parsers with equal bindings parse text identically.
func (p *Parser) Bindings() string {
	prefixes := make([]string, 0, len(p.namespaces))
	for prefix := range p.namespaces {
		prefixes = append(prefixes, prefix)
	}
	slices.Sort(prefixes)

	var b strings.Builder
	b.WriteString(p.DefaultPrefix)
	for _, prefix := range prefixes {
		b.WriteByte(' ')
		b.WriteString(prefix)
		b.WriteByte('=')
		b.WriteString(p.namespaces[prefix])
	}
	return b.String()
}

var defaultParser = NewParser()

// Parse parses query text with the default parser.
func Parse(xpath string) (*Query, error) {
	return defaultParser.Parse(xpath)
}

// MustParse is Parse for queries known to be valid. It panics on error.
func MustParse(xpath string) *Query {
	q, err := Parse(xpath)
	if err != nil {
		panic(err)
	}
	return q
}

// Parse parses query text. Errors are *ParseError.
func (p *Parser) Parse(xpath string) (*Query, error) {
	tokens, err := tokenize(xpath)
	if err != nil {
		return nil, err
	}
	ps := &parseState{Parser: p, tokens: &tokenStream{input: xpath, tokens: tokens}}
	return ps.parseQuery()
}

type parseState struct {
	*Parser
	tokens *tokenStream
}

func (p *parseState) parseQuery() (*Query, error) {
	q := &Query{}

	lp, err := p.parseLocationPath()
	if err != nil {
		return nil, err
	}
	q.ArtifactSet = &ArtifactSet{LocationPath: lp}

	if p.tokens.canConsume("[") {
		if q.Predicate, err = p.parsePredicate(); err != nil {
			return nil, err
		}
		if !p.tokens.canConsume("]") {
			return nil, p.tokens.errorf("Predicate not terminated (missing ']').")
		}
	}

	if p.tokens.canConsume("/") {
		if q.SubartifactSet, err = p.parseSubartifactSet(); err != nil {
			return nil, err
		}
	}

	if p.tokens.hasNext() {
		return nil, p.tokens.errorf("Unexpected query content: %s", p.tokens.input[p.tokens.offset():])
	}
	return q, nil
}

func (p *parseState) parseLocationPath() (*LocationPath, error) {
	t := p.tokens
	if !t.canConsume("/") {
		return nil, t.errorf("Query must begin with a / (forward slash).")
	}
	if !t.matchesType(tokName) && !t.matches("/") {
		return nil, t.errorf("Invalid artifact set (must begin with /s-ramp).")
	}

	lp := &LocationPath{}

	// //{ArtifactType}
	if t.canConsume("/") {
		if !t.matchesType(tokName) {
			return nil, t.errorf("Missing artifact type after //.")
		}
		name, _ := t.consume()
		model, ok := typeModel(name.value)
		if !ok {
			return nil, &ParseError{Msg: "Invalid artifact type: " + name.value + ".", Pos: name.pos, Query: t.input}
		}
		lp.ArtifactModel = model
		lp.ArtifactType = name.value
		return lp, nil
	}

	root, _ := t.consume()
	if root.value != SrampPrefix {
		return nil, &ParseError{Msg: "Invalid artifact set (must begin with /s-ramp).", Pos: root.pos, Query: t.input}
	}

	if !t.hasNext() || t.matches("[") {
		return lp, nil
	}
	if !t.canConsume("/") || !t.matchesType(tokName) {
		return nil, t.errorf("Invalid artifact model.")
	}
	model, _ := t.consume()
	lp.ArtifactModel = model.value

	if !t.hasNext() || t.matches("[") {
		return lp, nil
	}
	if !t.canConsume("/") || !t.matchesType(tokName) {
		return nil, t.errorf("Invalid artifact type.")
	}
	typ, _ := t.consume()
	lp.ArtifactType = typ.value
	return lp, nil
}

func (p *parseState) parsePredicate() (*Predicate, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Predicate{Expr: expr}, nil
}

func (p *parseState) parseExpr() (*Expr, error) {
	or, err := p.parseOrExpr()
	if err != nil {
		return nil, err
	}
	return &Expr{OrExpr: or}, nil
}

func (p *parseState) parseOrExpr() (*OrExpr, error) {
	or := &OrExpr{}
	for {
		and, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		or.Operands = append(or.Operands, and)
		if !p.tokens.canConsume("or") {
			return or, nil
		}
	}
}

func (p *parseState) parseAndExpr() (*AndExpr, error) {
	and := &AndExpr{}
	for {
		eq, err := p.parseEqualityExpr()
		if err != nil {
			return nil, err
		}
		and.Operands = append(and.Operands, eq)
		if !p.tokens.canConsume("and") {
			return and, nil
		}
	}
}

func (p *parseState) parseEqualityExpr() (*EqualityExpr, error) {
	if p.tokens.canConsume("(") {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.tokens.canConsume(")") {
			return nil, p.tokens.errorf("Missing close-paren ')' in expression.")
		}
		return &EqualityExpr{Expr: expr}, nil
	}

	step, err := p.parseForwardPropertyStep()
	if err != nil {
		return nil, err
	}
	cmp := &ComparisonExpr{Left: step, Operator: p.parseOperator()}
	if cmp.Operator != OpNone {
		// Only properties and function results can be compared.
		if step.Property == nil && step.SubartifactSet.FunctionCall == nil {
			return nil, p.tokens.errorf("Missing '@' from forward property step.")
		}
		if cmp.Right, err = p.parsePrimaryExpr(); err != nil {
			return nil, err
		}
	}
	return &EqualityExpr{Comparison: cmp}, nil
}

func (p *parseState) parseOperator() Operator {
	t := p.tokens
	switch {
	case t.canConsume("!", "="):
		return OpNE
	case t.canConsume("<", "="):
		return OpLTE
	case t.canConsume(">", "="):
		return OpGTE
	case t.canConsume("="):
		return OpEQ
	case t.canConsume("<"):
		return OpLT
	case t.canConsume(">"):
		return OpGT
	default:
		return OpNone
	}
}

func (p *parseState) parseForwardPropertyStep() (*ForwardPropertyStep, error) {
	step := &ForwardPropertyStep{}
	if p.tokens.canConsume("@") {
		qn, err := p.parseQName("")
		if err != nil {
			return nil, err
		}
		step.Property = &qn
		return step, nil
	}

	sub, err := p.parseSubartifactSet()
	if err != nil {
		return nil, err
	}
	step.SubartifactSet = sub
	if p.tokens.canConsume("/") {
		if !p.tokens.canConsume("@") {
			return nil, p.tokens.errorf("Missing '@' from forward property step.")
		}
		qn, err := p.parseQName("")
		if err != nil {
			return nil, err
		}
		step.Property = &qn
	}
	return step, nil
}

func (p *parseState) parseSubartifactSet() (*SubartifactSet, error) {
	t := p.tokens
	if !t.matchesType(tokName) && !t.matches(".") {
		return nil, t.errorf("Expression expected.")
	}
	name, _ := t.consume()
	sub := &SubartifactSet{}

	switch {
	case t.canConsume(":"):
		if !t.matchesType(tokName) {
			return nil, t.errorf("Expected function name.")
		}
		local, _ := t.consume()
		fc, err := p.parseFunctionCall(name.value, local.value)
		if err != nil {
			return nil, err
		}
		sub.FunctionCall = fc
		return sub, nil

	case t.matches("("):
		fc, err := p.parseFunctionCall(p.DefaultPrefix, name.value)
		if err != nil {
			return nil, err
		}
		sub.FunctionCall = fc
		return sub, nil
	}

	sub.RelationshipPath = &RelationshipPath{RelationshipType: name.value}
	if t.canConsume("[") {
		pred, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		if !t.canConsume("]") {
			return nil, t.errorf("Predicate not terminated (missing ']').")
		}
		sub.Predicate = pred
	}

	// A "/@" that follows belongs to the enclosing property step.
	if t.matches("/") && !t.matches("/", "@") {
		t.canConsume("/")
		var err error
		if sub.SubartifactSet, err = p.parseSubartifactSet(); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func (p *parseState) parseFunctionCall(prefix, local string) (*FunctionCall, error) {
	if !p.tokens.matches("(") {
		return nil, p.tokens.errorf("Expected function arguments.")
	}
	args, err := p.parseFunctionArguments()
	if err != nil {
		return nil, err
	}
	return &FunctionCall{Name: p.qname(prefix, local), Arguments: args}, nil
}

func (p *parseState) parseFunctionArguments() ([]*Argument, error) {
	t := p.tokens
	t.canConsume("(")
	var args []*Argument
	if !t.matches(")") {
		for {
			arg, err := p.parseArgument()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !t.canConsume(",") {
				break
			}
		}
	}
	if !t.canConsume(")") {
		return nil, t.errorf("Function argument list not terminated (missing ')').")
	}
	return args, nil
}

func (p *parseState) parseArgument() (*Argument, error) {
	t := p.tokens
	if t.matchesType(tokQuoted) || t.matchesType(tokNumeric) || t.matches("$") {
		pe, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, err
		}
		return &Argument{PrimaryExpr: pe}, nil
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Argument{Expr: expr}, nil
}

func (p *parseState) parsePrimaryExpr() (*PrimaryExpr, error) {
	t := p.tokens
	switch {
	case t.canConsume("$"):
		qn, err := p.parseQName("")
		if err != nil {
			return nil, err
		}
		return &PrimaryExpr{Kind: PrimaryVariable, Variable: &qn}, nil

	case t.matchesType(tokQuoted):
		tok, _ := t.consume()
		return &PrimaryExpr{Kind: PrimaryLiteral, Literal: unquote(tok.value)}, nil

	case t.matchesType(tokNumeric):
		tok, _ := t.consume()
		invalid := &ParseError{Msg: "Invalid numeric literal.", Pos: tok.pos, Query: t.input}
		if strings.Contains(tok.value, ".") {
			f, err := strconv.ParseFloat(tok.value, 64)
			if err != nil {
				return nil, invalid
			}
			return &PrimaryExpr{Kind: PrimaryDecimal, Decimal: f}, nil
		}
		n, ok := new(big.Int).SetString(tok.value, 10)
		if !ok {
			return nil, invalid
		}
		return &PrimaryExpr{Kind: PrimaryInteger, Integer: n}, nil

	default:
		return nil, t.errorf("Expected a literal, number or $variable.")
	}
}

func (p *parseState) parseQName(defaultPrefix string) (QName, error) {
	t := p.tokens
	if !t.matchesType(tokName) {
		return QName{}, t.errorf("Expected NAME type token.")
	}
	first, _ := t.consume()
	if t.canConsume(":") {
		if !t.matchesType(tokName) {
			return QName{}, t.errorf("Expected NAME type token.")
		}
		second, _ := t.consume()
		return p.qname(first.value, second.value), nil
	}
	return p.qname(defaultPrefix, first.value), nil
}

func (p *parseState) qname(prefix, local string) QName {
	return QName{Prefix: prefix, Local: local, Namespace: p.namespaces[prefix]}
}

// typeModel returns the model of a //{ArtifactType} shorthand. The bare
// extended base names match every artifact of that kind.
func typeModel(name string) (string, bool) {
	if bt, ok := artifact.ParseBaseType(name); ok {
		return bt.Model(), true
	}
	at, err := artifact.TypeOf(name)
	if err != nil {
		return "", false
	}
	return at.Model(), true
}
