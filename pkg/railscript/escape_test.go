package railscript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringLiteral(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", `"hello"`},
		{"empty", "", `""`},
		{"double quote", `say "hi"`, `"say \"hi\""`},
		{"backslash", `a\b`, `"a\\b"`},
		{"interpolation", `#{User.delete_all}`, `"\#{User.delete_all}"`},
		{"newline", "line1\nline2", `"line1\nline2"`},
		{"carriage return", "a\rb", `"a\rb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"control char", "a\x01b", `"a\u0001b"`},
		{"unicode", "naïve ok", `"naïve ok"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StringLiteral(tt.in))
		})
	}
}

// Hostile values must stay inert: the rendered literal contains no unescaped
// quote, no live interpolation, and no raw newline that could terminate the
// statement early.
func TestStringLiteral_InjectionSafety(t *testing.T) {
	hostile := []string{
		`"; User.delete_all; "`,
		`#{system('rm -rf /')}`,
		"line1\nUser.delete_all\nline2",
		`\" + User.count.to_s + \"`,
		"it's a trap\"#{:boom}",
	}
	for _, s := range hostile {
		lit := StringLiteral(s)
		assert.True(t, strings.HasPrefix(lit, `"`))
		assert.True(t, strings.HasSuffix(lit, `"`))
		assert.NotContains(t, lit, "\n", "raw newline escaped the literal")

		// Every interior quote and hash must be preceded by a backslash, so
		// neither string termination nor interpolation can fire.
		body := lit[1 : len(lit)-1]
		for i := 0; i < len(body); i++ {
			if body[i] == '"' || body[i] == '#' {
				assert.Greater(t, i, 0)
				assert.Equal(t, byte('\\'), body[i-1], "unescaped %q at %d in %q", body[i], i, body)
			}
		}
	}
}
