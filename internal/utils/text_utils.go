package utils

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// TruncateRunes returns at most max runes of text. A non-positive max
// disables truncation.
func TruncateRunes(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max])
}

// SanitizeUTF8 ensures the string contains only valid UTF-8 characters,
// dropping invalid byte sequences
func SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

// NormalizeNFC applies Unicode NFC normalization so that visually equal
// strings compare and tokenize equal
func NormalizeNFC(text string) string {
	return norm.NFC.String(text)
}

// CollapseWhitespace replaces every run of whitespace with a single space
// and trims the result
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
