package validate

import (
	"testing"
	"unicode/utf8"
)

func FuzzSanitizeIdempotent(f *testing.F) {
	seeds := []string{
		"",
		"  user@example.com ",
		"a\x00b\tc\r\nd",
		"e\x01\u0301",
		"Jose\u0301  Garci\u0301a",
		"\u200b\ufeffzero width",
		"  \u3000wide spaces",
		"\xff\xfe invalid utf8",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, in string) {
		once := Sanitize(in)
		twice := Sanitize(once)
		if once != twice {
			t.Fatalf("Sanitize not idempotent: %q -> %q -> %q", in, once, twice)
		}
		if utf8.ValidString(in) && !utf8.ValidString(once) {
			t.Fatalf("Sanitize produced invalid UTF-8 from %q", in)
		}
	})
}
