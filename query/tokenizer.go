package query

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tokName tokenType = iota
	tokSymbol
	tokQuoted
	tokNumeric
)

type token struct {
	typ   tokenType
	value string
	pos   int
}

// symbols are single-character tokens. '(' is handled separately because
// "(:" opens a comment.
const symbols = "){}*,;+%?$!<>|=:[]^/\\#@.-"

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])
		switch {
		case unicode.IsSpace(r):
			i += size

		case r == '(':
			if strings.HasPrefix(input[i:], "(:") {
				end := strings.Index(input[i+2:], ":)")
				if end < 0 {
					return nil, tokenError(input, i, "Unterminated comment.")
				}
				i += 2 + end + 2
				continue
			}
			tokens = append(tokens, token{typ: tokSymbol, value: "(", pos: i})
			i++

		case r == '\'' || r == '"':
			end, err := scanQuoted(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{typ: tokQuoted, value: input[i:end], pos: i})
			i = end

		case (r == '.' || r == '-') && i+1 < len(input) && isDigit(input[i+1]):
			end := scanNumber(input, i+1)
			tokens = append(tokens, token{typ: tokNumeric, value: input[i:end], pos: i})
			i = end

		case isDigit(input[i]):
			end := scanNumber(input, i)
			tokens = append(tokens, token{typ: tokNumeric, value: input[i:end], pos: i})
			i = end

		case unicode.IsLetter(r) || r == '_':
			end := scanName(input, i)
			tokens = append(tokens, token{typ: tokName, value: input[i:end], pos: i})
			i = end

		case strings.ContainsRune(symbols, r):
			tokens = append(tokens, token{typ: tokSymbol, value: string(r), pos: i})
			i += size

		default:
			return nil, tokenError(input, i, fmt.Sprintf("Unexpected character '%c'.", r))
		}
	}
	return tokens, nil
}

// scanQuoted returns the offset just past the closing quote. A doubled
// quote character inside the literal is an escaped quote.
func scanQuoted(input string, start int) (int, error) {
	quote := input[start]
	i := start + 1
	for i < len(input) {
		if input[i] == quote {
			if i+1 < len(input) && input[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, tokenError(input, start, "Unterminated string literal.")
}

func scanNumber(input string, i int) int {
	for i < len(input) && (isDigit(input[i]) || input[i] == '.') {
		i++
	}
	return i
}

func scanName(input string, i int) int {
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '-' && r != '_' {
			break
		}
		i += size
	}
	return i
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func tokenError(input string, pos int, msg string) *ParseError {
	return &ParseError{Msg: msg, Pos: pos, Query: input}
}

// unquote strips the surrounding quotes of a quoted token and collapses
// doubled quotes.
func unquote(raw string) string {
	q := raw[:1]
	return strings.ReplaceAll(raw[1:len(raw)-1], q+q, q)
}

// tokenStream is a cursor over the token list.
type tokenStream struct {
	input  string
	tokens []token
	pos    int
}

func (s *tokenStream) hasNext() bool {
	return s.pos < len(s.tokens)
}

// matches reports whether the upcoming tokens are exactly the given
// name or symbol values. Quoted and numeric tokens never match.
func (s *tokenStream) matches(values ...string) bool {
	if s.pos+len(values) > len(s.tokens) {
		return false
	}
	for i, v := range values {
		t := s.tokens[s.pos+i]
		if t.typ == tokQuoted || t.typ == tokNumeric || t.value != v {
			return false
		}
	}
	return true
}

func (s *tokenStream) matchesAnyOf(values ...string) bool {
	for _, v := range values {
		if s.matches(v) {
			return true
		}
	}
	return false
}

func (s *tokenStream) matchesType(typ tokenType) bool {
	return s.hasNext() && s.tokens[s.pos].typ == typ
}

// canConsume consumes the given token sequence if it is next.
func (s *tokenStream) canConsume(values ...string) bool {
	if !s.matches(values...) {
		return false
	}
	s.pos += len(values)
	return true
}

func (s *tokenStream) consume() (token, error) {
	if !s.hasNext() {
		return token{}, s.errorf("Query string terminated unexpectedly.")
	}
	t := s.tokens[s.pos]
	s.pos++
	return t, nil
}

// offset is the byte offset of the next token, or the input length.
func (s *tokenStream) offset() int {
	if s.hasNext() {
		return s.tokens[s.pos].pos
	}
	return len(s.input)
}

func (s *tokenStream) errorf(format string, args ...any) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Pos: s.offset(), Query: s.input}
}
