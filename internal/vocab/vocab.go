// Package vocab holds the character vocabulary and the code sequence helpers
// built on top of it.
package vocab

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Null is the reserved code for "no character". It pads windows and, when a
// predictor samples it, ends generation.
const Null = 0

// filtered lists the characters the vocabulary never assigns a code to. The
// space is dropped too because it separates words.
const filtered = "!\"#$%&()*+,-./:;<=>?@[\\]^_`{|}~ "

var (
	// ErrNullCode is returned when the null code is decoded.
	ErrNullCode = errors.New("null code has no character")
	// ErrUnknownCode is returned when a code outside the vocabulary is decoded.
	ErrUnknownCode = errors.New("code is not in the vocabulary")
)

// UnknownCharError reports a character that never appeared in the corpus.
type UnknownCharError struct {
	Char rune
	Pos  int
}

func (e *UnknownCharError) Error() string {
	return fmt.Sprintf("character %q at position %d is not in the vocabulary", e.Char, e.Pos)
}

// Vocabulary is an immutable bidirectional character <-> code mapping. Codes
// start at 1; code 0 is Null.
type Vocabulary struct {
	codes map[rune]int
	chars []rune // chars[code-1]
}

// Build creates the vocabulary from corpus records.
//
// Characters are lower-cased, then ranked by frequency (most frequent gets
// code 1). Ties keep the order of first appearance, which makes the mapping
// deterministic for a given corpus.
func Build(records []string) *Vocabulary {
	counts := make(map[rune]int)
	var order []rune
	for _, rec := range records {
		for _, r := range rec {
			r = unicode.ToLower(r)
			if strings.ContainsRune(filtered, r) {
				continue
			}
			if _, seen := counts[r]; !seen {
				order = append(order, r)
			}
			counts[r]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	v := &Vocabulary{
		codes: make(map[rune]int, len(order)),
		chars: order,
	}
	for i, r := range order {
		v.codes[r] = i + 1
	}
	return v
}

// Size is the number of codes including Null, i.e. the length of a
// probability vector over the vocabulary.
func (v *Vocabulary) Size() int {
	return len(v.chars) + 1
}

// Code returns the code of r, or false when r is unknown.
func (v *Vocabulary) Code(r rune) (int, bool) {
	code, ok := v.codes[unicode.ToLower(r)]
	return code, ok
}

// Chars returns the characters in code order, starting with code 1.
func (v *Vocabulary) Chars() []rune {
	return append([]rune(nil), v.chars...)
}

// Encode converts s to codes, one per rune. It fails on the first character
// that has no code.
func (v *Vocabulary) Encode(s string) ([]int, error) {
	codes := make([]int, 0, len(s))
	pos := 0
	for _, r := range s {
		code, ok := v.Code(r)
		if !ok {
			return nil, &UnknownCharError{Char: r, Pos: pos}
		}
		codes = append(codes, code)
		pos++
	}
	return codes, nil
}

// DecodeCode returns the character for a single code.
func (v *Vocabulary) DecodeCode(code int) (rune, error) {
	if code == Null {
		return 0, ErrNullCode
	}
	if code < 0 || code > len(v.chars) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownCode, code)
	}
	return v.chars[code-1], nil
}

// Decode concatenates the characters of codes.
func (v *Vocabulary) Decode(codes []int) (string, error) {
	var b strings.Builder
	for _, code := range codes {
		r, err := v.DecodeCode(code)
		if err != nil {
			return "", err
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

// Label is a printable form of a code for traces and logs.
func (v *Vocabulary) Label(code int) string {
	switch r, err := v.DecodeCode(code); {
	case errors.Is(err, ErrNullCode):
		return "<NULL>"
	case err != nil:
		return fmt.Sprintf("<%d>", code)
	case r == '\n':
		return "<END>"
	default:
		return string(r)
	}
}
