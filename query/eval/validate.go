package eval

import (
	"fmt"

	"github.com/c360studio/artificer/query"
	"github.com/c360studio/artificer/query/adapter"
)

// Validator returns an adapter.Validator that rejects queries the
// evaluator cannot run: unknown functions, and functions used where an
// artifact set is expected.
func Validator(funcs *Functions) adapter.Validator {
	if funcs == nil {
		funcs = DefaultFunctions
	}
	return adapter.ValidatorFunc(func(q *query.Query) error {
		for sub := q.SubartifactSet; sub != nil; sub = sub.SubartifactSet {
			if sub.FunctionCall != nil {
				return fmt.Errorf("%w: %s as artifact set", ErrUnsupportedFunction, sub.FunctionCall.Name)
			}
		}

		var err error
		query.Inspect(q, func(n query.Node) bool {
			if err != nil {
				return false
			}
			if fc, ok := n.(*query.FunctionCall); ok {
				if _, known := funcs.Lookup(fc.Name); !known {
					err = fmt.Errorf("%w: %s", ErrUnsupportedFunction, fc.Name)
					return false
				}
			}
			return true
		})
		return err
	})
}
