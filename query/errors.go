package query

import "fmt"

// ParseError reports malformed query text. Pos is the byte offset of the
// token where parsing stopped, or the input length at end of input.
type ParseError struct {
	Msg   string
	Pos   int
	Query string
}

func (e *ParseError) Error() string {
	return e.Msg
}

// Detail returns the message with the failing position marked.
func (e *ParseError) Detail() string {
	return fmt.Sprintf("%s (at offset %d in %q)", e.Msg, e.Pos, e.Query)
}
