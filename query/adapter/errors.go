package adapter

import "errors"

// ErrAlreadyExecuted is returned when Execute is called a second time on the
// same Query.
var ErrAlreadyExecuted = errors.New("query already executed")

// ErrNonFiniteNumber is the cause when a float parameter is NaN or infinite.
var ErrNonFiniteNumber = errors.New("number is not finite")

// InvalidQueryError reports a query that could not be built, parsed or
// validated. Cause is the underlying parse or validation error, if any.
type InvalidQueryError struct {
	Msg   string
	Cause error
}

func (e *InvalidQueryError) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *InvalidQueryError) Unwrap() error {
	return e.Cause
}
