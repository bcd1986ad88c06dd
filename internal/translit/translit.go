// Package translit maps the Turkish-specific letters onto the ASCII alphabet
// the name corpus is written in.
package translit

import (
	"strings"
	"unicode"
)

// table is the fixed substitution table. Only lower-case letters are listed;
// NormalizeSeed lower-cases before substituting.
var table = map[rune]rune{
	'ç': 'c',
	'ğ': 'g',
	'ı': 'i',
	'ö': 'o',
	'ş': 's',
	'ü': 'u',
}

// Transliterate replaces every rune found in the substitution table with its
// ASCII counterpart. All other runes, including ones that are not valid name
// characters, are returned unchanged.
func Transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if ascii, ok := table[r]; ok {
			b.WriteRune(ascii)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeSeed prepares user supplied seed text for generation: Turkish-aware
// lower-casing (so "I" becomes "ı" and "İ" becomes "i") followed by
// Transliterate.
func NormalizeSeed(s string) string {
	return Transliterate(strings.ToLowerSpecial(unicode.TurkishCase, s))
}
