package derive

import (
	"errors"
	"fmt"
)

// ErrDerivation matches every DerivationError with errors.Is.
var ErrDerivation = errors.New("derivation failed")

// DerivationError reports a document that could not be derived. Nothing
// derived from the document before the failure is kept.
type DerivationError struct {
	Builder  string
	Document string
	Err      error
}

func (e *DerivationError) Error() string {
	if e.Document == "" {
		return fmt.Sprintf("derive with %s: %v", e.Builder, e.Err)
	}
	return fmt.Sprintf("derive %s with %s: %v", e.Document, e.Builder, e.Err)
}

func (e *DerivationError) Unwrap() error {
	return e.Err
}

// Is reports ErrDerivation as a match.
func (e *DerivationError) Is(target error) bool {
	return target == ErrDerivation
}
