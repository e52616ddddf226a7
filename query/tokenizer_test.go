package query

import (
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"root", "/s-ramp", []string{"/", "s-ramp"}},
		{"comment skipped", "/s-ramp (: all :) /xsd", []string{"/", "s-ramp", "/", "xsd"}},
		{"two-char operator", "@a!='b'", []string{"@", "a", "!", "=", "'b'"}},
		{"escaped quote", `'it''s'`, []string{`'it''s'`}},
		{"negative decimal", "-1.5", []string{"-1.5"}},
		{"leading dot number", ".5", []string{".5"}},
		{"dot alone", "./@x", []string{".", "/", "@", "x"}},
		{"function", "xp2:matches(@name, 'x')", []string{"xp2", ":", "matches", "(", "@", "name", ",", "'x'", ")"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := tokenize(tt.input)
			if err != nil {
				t.Fatalf("tokenize(%q) error = %v", tt.input, err)
			}
			if len(tokens) != len(tt.want) {
				t.Fatalf("tokenize(%q) got %d tokens, want %d: %v", tt.input, len(tokens), len(tt.want), tokens)
			}
			for i, tok := range tokens {
				if tok.value != tt.want[i] {
					t.Errorf("token %d = %q, want %q", i, tok.value, tt.want[i])
				}
			}
		})
	}
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		input string
		msg   string
	}{
		{"/s-ramp[@name = 'abc]", "Unterminated string literal."},
		{"/s-ramp (: open", "Unterminated comment."},
		{"/s-ramp[@a = `x`]", "Unexpected character '`'."},
	}
	for _, tt := range tests {
		_, err := tokenize(tt.input)
		if err == nil {
			t.Errorf("tokenize(%q) expected error", tt.input)
			continue
		}
		if err.Error() != tt.msg {
			t.Errorf("tokenize(%q) error = %q, want %q", tt.input, err.Error(), tt.msg)
		}
	}
}

func TestUnquote(t *testing.T) {
	if got := unquote(`'it''s'`); got != "it's" {
		t.Errorf("unquote = %q", got)
	}
	if got := unquote(`"say ""hi"""`); got != `say "hi"` {
		t.Errorf("unquote = %q", got)
	}
}
