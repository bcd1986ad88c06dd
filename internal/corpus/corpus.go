// Package corpus loads the list of known names the model was trained on and
// answers whether a generated string is one of them.
package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"
)

// Corpus is an immutable set of name records. A record keeps its trailing
// newline, which is also the end-of-name character of the vocabulary.
type Corpus struct {
	records []string
	index   map[string]struct{}
	maxLen  int
}

// Load reads the corpus file at path.
func Load(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses one record per line from r. Line terminators are kept; the last
// line may omit its terminator.
func Read(r io.Reader) (*Corpus, error) {
	br := bufio.NewReader(r)
	var records []string
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			records = append(records, line)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus: %w", err)
		}
	}
	return New(records), nil
}

// New builds a corpus from records as given.
func New(records []string) *Corpus {
	c := &Corpus{
		records: append([]string(nil), records...),
		index:   make(map[string]struct{}, len(records)),
	}
	for _, rec := range c.records {
		c.index[rec] = struct{}{}
		if n := utf8.RuneCountInString(rec); n > c.maxLen {
			c.maxLen = n
		}
	}
	return c
}

// Contains reports whether name equals a record exactly, terminator included.
func (c *Corpus) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// MaxLen is the rune length of the longest record.
func (c *Corpus) MaxLen() int { return c.maxLen }

// Len is the number of records.
func (c *Corpus) Len() int { return len(c.records) }

// Records returns a copy of the records in file order.
func (c *Corpus) Records() []string {
	return append([]string(nil), c.records...)
}
