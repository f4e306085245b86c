package cligen

import (
	"strings"
	"unicode"
)

// kebabCase turns a parameter name into a flag name: camelCase boundaries and
// any non-alphanumeric run become a single dash, letters are lower-cased.
// Acronym runs stay together, so "bootSetURL" becomes "boot-set-url".
func kebabCase(s string) string {
	runes := []rune(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(runes) + 8)

	dash := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
			b.WriteByte('-')
		}
	}
	for i, r := range runes {
		if !isASCIIAlnum(r) {
			dash()
			continue
		}
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				dash()
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.Trim(b.String(), "-")
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
