package eval

import (
	"math/big"
	"strings"

	"github.com/c360studio/artificer/query"
)

// operand is the right-hand side of a comparison, already resolved.
type operand struct {
	text    string
	number  *big.Float
	numeric bool
}

// compareAny applies the operator between each left value and the operand
// and reports whether any pair satisfies it.
func compareAny(values []string, op query.Operator, right operand) bool {
	for _, v := range values {
		if compareOne(v, op, right) {
			return true
		}
	}
	return false
}

func compareOne(left string, op query.Operator, right operand) bool {
	var c int
	if right.numeric {
		n, ok := parseNumber(left)
		if !ok {
			return op == query.OpNE
		}
		c = n.Cmp(right.number)
	} else {
		c = strings.Compare(left, right.text)
	}
	return satisfies(c, op)
}

func satisfies(c int, op query.Operator) bool {
	switch op {
	case query.OpEQ:
		return c == 0
	case query.OpNE:
		return c != 0
	case query.OpLT:
		return c < 0
	case query.OpGT:
		return c > 0
	case query.OpLTE:
		return c <= 0
	case query.OpGTE:
		return c >= 0
	default:
		return false
	}
}

func parseNumber(s string) (*big.Float, bool) {
	f, ok := new(big.Float).SetString(strings.TrimSpace(s))
	return f, ok
}

// compareValues orders two property values, numerically when both parse
// as numbers.
func compareValues(a, b string) int {
	if na, ok := parseNumber(a); ok {
		if nb, ok := parseNumber(b); ok {
			return na.Cmp(nb)
		}
	}
	return strings.Compare(a, b)
}
