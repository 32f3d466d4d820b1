// Package transcript normalises meeting transcripts.
package transcript

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
	"github.com/compass-labs/roadsync/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles transcript artifacts. It strips speaker tags and
// timestamps so fingerprints depend on what was said, not on how the
// transcription tool decorated it.
type Normaliser struct{}

// New creates a new transcript normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"text/vtt",
		"application/x-subrip",
		"text/x-transcript",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 90 // Specialised format handling
}

var (
	// [00:03:12] or 00:03:12 --> 00:03:15 style timestamps.
	timestampRe = regexp.MustCompile(`(?m)^\[?\d{2}:\d{2}(:\d{2})?([.,]\d{3})?\]?(\s*-->\s*\d{2}:\d{2}(:\d{2})?([.,]\d{3})?)?\s*`)

	// "Alice:" or "ALICE JOHNSON:" speaker prefixes.
	speakerRe = regexp.MustCompile(`(?m)^[A-Z][A-Za-z .'-]{0,40}:\s+`)

	// SRT cue numbers on their own line.
	cueNumberRe = regexp.MustCompile(`(?m)^\d+$`)
)

// Normalise extracts the spoken text from a transcript.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawArtifact) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if !utf8.Valid(raw.Data) {
		return nil, domain.ErrUnsupportedFormat
	}

	content := string(raw.Data)
	content = strings.TrimPrefix(content, "WEBVTT")
	content = timestampRe.ReplaceAllString(content, "")
	content = cueNumberRe.ReplaceAllString(content, "")
	content = speakerRe.ReplaceAllString(content, "")

	text := plaintext.CleanText(content)
	if text == "" {
		return nil, domain.ErrUnsupportedFormat
	}

	return &driven.NormaliseResult{
		Text:        text,
		Fingerprint: domain.Fingerprint(text),
		SourceKind:  domain.SourceKindTranscript,
	}, nil
}
