package adapter

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/c360studio/artificer/query"
)

// Param is a typed replacement for one '?' in a query template.
type Param interface {
	// Format renders the value as query text.
	Format() string
}

// validatingParam is a Param that can hold a value with no query text form.
type validatingParam interface {
	Param
	Validate() error
}

// StringParam is rendered as a single-quoted literal.
type StringParam string

func (p StringParam) Format() string {
	return query.QuoteLiteral(string(p))
}

// NumberParam is rendered as a bare numeric literal. Exactly one of the
// fields is used: Big when set, then Float when IsFloat, then Int.
type NumberParam struct {
	Int     int64
	Float   float64
	IsFloat bool
	Big     *big.Int
}

// Validate rejects NaN and infinite floats, which have no literal form.
func (p NumberParam) Validate() error {
	if p.Big == nil && p.IsFloat && (math.IsNaN(p.Float) || math.IsInf(p.Float, 0)) {
		return fmt.Errorf("%w: %v", ErrNonFiniteNumber, p.Float)
	}
	return nil
}

func (p NumberParam) Format() string {
	switch {
	case p.Big != nil:
		return p.Big.String()
	case p.IsFloat:
		return query.FormatDecimal(p.Float)
	default:
		return strconv.FormatInt(p.Int, 10)
	}
}

// DateParam is rendered as a quoted ISO date (2006-01-02).
type DateParam time.Time

func (p DateParam) Format() string {
	return query.QuoteLiteral(time.Time(p).Format(time.DateOnly))
}

// DateTimeParam is rendered as a quoted ISO timestamp without fractional
// seconds.
type DateTimeParam time.Time

func (p DateTimeParam) Format() string {
	return query.QuoteLiteral(time.Time(p).Format(time.RFC3339))
}
