// Package plaintext normalises plain text artifacts.
package plaintext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text artifacts.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 10 // Near-fallback; format-aware normalisers win
}

// Normalise passes text through with whitespace normalised and
// fingerprints the result.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawArtifact) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if !utf8.Valid(raw.Data) {
		return nil, domain.ErrUnsupportedFormat
	}

	text := CleanText(string(raw.Data))
	return &driven.NormaliseResult{
		Text:        text,
		Fingerprint: domain.Fingerprint(text),
		SourceKind:  domain.SourceKindRawText,
	}, nil
}

// CleanText normalises line endings and trims trailing whitespace per
// line so fingerprints don't vary by platform.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
