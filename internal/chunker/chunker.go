// Package chunker splits normalised text to fit a capability's input
// budget. Splits happen on paragraph boundaries, falling back to
// sentence boundaries for oversized paragraphs, and never mid-sentence.
package chunker

import "strings"

// DefaultMaxChars is the default chunk budget in characters.
const DefaultMaxChars = 24000

// Chunker splits text into capability-sized chunks.
type Chunker struct {
	maxChars int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxChars sets the chunk budget in characters.
func WithMaxChars(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{maxChars: DefaultMaxChars}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split breaks text into chunks no larger than the budget wherever a
// paragraph or sentence boundary allows it. A single sentence longer
// than the budget is emitted whole; overflowing beats cutting a
// sentence in half.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.maxChars {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, para := range paragraphs(text) {
		units := []string{para}
		if len(para) > c.maxChars {
			units = sentences(para)
		}

		for _, unit := range units {
			// +2 accounts for the separator re-inserted below.
			if current.Len() > 0 && current.Len()+len(unit)+2 > c.maxChars {
				flush()
			}
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(unit)
		}
	}
	flush()

	return chunks
}

// paragraphs splits on blank lines.
func paragraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sentenceEnders are the runes that close a sentence when followed by
// whitespace.
var sentenceEnders = map[rune]bool{'.': true, '!': true, '?': true}

// sentences splits a paragraph on sentence boundaries.
func sentences(para string) []string {
	var out []string
	var current strings.Builder

	runes := []rune(para)
	for i, r := range runes {
		current.WriteRune(r)
		if sentenceEnders[r] {
			// Boundary only when followed by whitespace or end of text.
			if i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n' {
				s := strings.TrimSpace(current.String())
				if s != "" {
					out = append(out, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}
