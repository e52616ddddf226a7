package eval

import "errors"

var (
	// ErrUnsupportedFunction is returned for function calls the evaluator
	// does not implement.
	ErrUnsupportedFunction = errors.New("unsupported query function")

	// ErrUnboundVariable is returned when a $variable has no value.
	ErrUnboundVariable = errors.New("unbound query variable")

	// ErrInvalidArgument is returned when a function gets the wrong
	// number or kind of arguments.
	ErrInvalidArgument = errors.New("invalid function argument")
)
