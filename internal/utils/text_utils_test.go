package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "hello", TruncateRunes("hello", 10))
	assert.Equal(t, "hel", TruncateRunes("hello", 3))
	assert.Equal(t, "hello", TruncateRunes("hello", 0))
	assert.Equal(t, "hello", TruncateRunes("hello", -1))
	// Multibyte runes count as one.
	assert.Equal(t, "hél", TruncateRunes("héllo", 3))
	assert.Equal(t, "日本", TruncateRunes("日本語", 2))
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "clean text", SanitizeUTF8("clean text"))
	assert.Equal(t, "héllo", SanitizeUTF8("héllo"))
	assert.Equal(t, "ab", SanitizeUTF8("a\xffb"))
	assert.Equal(t, "", SanitizeUTF8("\xff\xfe"))
}

func TestNormalizeNFC(t *testing.T) {
	// e + combining acute accent composes to the single code point é.
	decomposed := "é"
	assert.Equal(t, "é", NormalizeNFC(decomposed))
	assert.Equal(t, "plain", NormalizeNFC("plain"))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("a   b\t\nc"))
	assert.Equal(t, "a b", CollapseWhitespace("  a b  "))
	assert.Equal(t, "", CollapseWhitespace("   "))
	assert.Equal(t, "", CollapseWhitespace(""))
}
