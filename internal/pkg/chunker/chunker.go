// Package chunker groups sentences of page text into bounded chunks.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"legalrag/internal/model"
)

const (
	UnitWords  = "words"
	UnitTokens = "tokens"

	DefaultMethod = "Sentence"
)

// Counter measures the size of a piece of text in chunking units.
type Counter func(text string) int

func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CountApproxTokens estimates tokens as one per four characters, rounded up.
func CountApproxTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

type Chunker struct {
	maxUnit int
	count   Counter
	method  string
}

func New(maxUnit int, unit, method string) (*Chunker, error) {
	if maxUnit <= 0 {
		return nil, fmt.Errorf("chunker max unit must be positive, got %d", maxUnit)
	}
	var count Counter
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "", UnitWords:
		count = CountWords
	case UnitTokens:
		count = CountApproxTokens
	default:
		return nil, fmt.Errorf("unknown chunker unit %q", unit)
	}
	method = strings.TrimSpace(method)
	if method == "" {
		method = DefaultMethod
	}
	return &Chunker{maxUnit: maxUnit, count: count, method: method}, nil
}

// Chunk splits every page separately; chunks never span pages and ids run across the
// whole call starting at 0. Pages without sentences contribute nothing.
func (c *Chunker) Chunk(pages []model.PageText) []model.Chunk {
	chunks := make([]model.Chunk, 0, len(pages))
	id := 0
	for _, page := range pages {
		for _, text := range c.Split(page.Text) {
			chunks = append(chunks, model.Chunk{
				ChunkID:       id,
				Text:          text,
				Tokens:        c.count(text),
				Page:          page.Page,
				PositionLabel: fmt.Sprintf("%s %d (Page %d)", c.method, id+1, page.Page),
				Method:        c.method,
			})
			id++
		}
	}
	return chunks
}

// Split greedily packs whole sentences while the running size stays within the limit.
// A sentence larger than the limit becomes a chunk on its own.
func (c *Chunker) Split(text string) []string {
	var (
		out     []string
		current []string
		size    int
	)
	for _, sentence := range Sentences(text) {
		n := c.count(sentence)
		if len(current) > 0 && size+n > c.maxUnit {
			out = append(out, strings.Join(current, " "))
			current, size = current[:0], 0
		}
		current = append(current, sentence)
		size += n
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}

// Sentences splits at '.', '!' or '?' followed by whitespace and collapses whitespace runs
// inside each sentence to a single space.
func Sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := normalize(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if start < len(runes) {
		if s := normalize(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
