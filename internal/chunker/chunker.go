// Package chunker splits extracted document text into overlapping
// fixed-size windows ready for embedding.
package chunker

import (
	"strings"
)

const (
	// DefaultChunkSize is the window length in characters.
	DefaultChunkSize = 1000

	// DefaultOverlap is the number of characters shared by adjacent windows.
	DefaultOverlap = 200
)

// Span is one window produced by the chunker. Start and End are rune
// offsets into the original text; Text is the trimmed window content.
type Span struct {
	Start int
	End   int
	Text  string
}

// Chunker produces fixed-size character windows.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. A non-positive size falls back to DefaultChunkSize
// and a negative overlap is treated as zero.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

// Default returns a Chunker with DefaultChunkSize and DefaultOverlap.
func Default() *Chunker {
	return New(DefaultChunkSize, DefaultOverlap)
}

// Size returns the configured window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// step is how far the window start advances. When the overlap would stall
// or reverse the window, chunks are laid out back to back instead.
func (c *Chunker) step() int {
	if c.overlap >= c.size {
		return c.size
	}
	return c.size - c.overlap
}

// Spans returns every non-empty window of text in order.
func (c *Chunker) Spans(text string) []Span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	step := c.step()
	spans := make([]Span, 0, n/step+1)
	for start := 0; start < n; start += step {
		end := start + c.size
		if end > n {
			end = n
		}
		if trimmed := strings.TrimSpace(string(runes[start:end])); trimmed != "" {
			spans = append(spans, Span{Start: start, End: end, Text: trimmed})
		}
		if end == n {
			break
		}
	}
	return spans
}

// Chunk returns the trimmed text of every non-empty window.
func (c *Chunker) Chunk(text string) []string {
	spans := c.Spans(text)
	if len(spans) == 0 {
		return []string{}
	}
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}

// Chunk splits text with the given window size and overlap.
func Chunk(text string, size, overlap int) []string {
	return New(size, overlap).Chunk(text)
}
