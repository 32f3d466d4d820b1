// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"

	"github.com/compass-labs/roadsync/internal/core/domain"
)

// Normaliser turns a raw uploaded artifact into normalised UTF-8 text
// plus a content fingerprint. Each normaliser handles specific MIME
// types (e.g., Markdown, transcripts).
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Specialised normalisers should return 90-100, generic MIME
	// normalisers 50-89, fallbacks 1-9.
	Priority() int

	// Normalise transforms a raw artifact into normalised text.
	// Returns domain.ErrUnsupportedFormat when the artifact cannot be
	// handled despite the MIME type match.
	Normalise(ctx context.Context, raw *domain.RawArtifact) (*NormaliseResult, error)
}

// NormaliseResult contains the output of normalisation.
type NormaliseResult struct {
	// Text is the normalised UTF-8 content.
	Text string

	// Fingerprint is the content-derived item identifier.
	Fingerprint string

	// SourceKind classifies the artifact.
	SourceKind domain.SourceKind
}

// NormaliserRegistry selects the appropriate normaliser for an
// artifact. It maintains a priority-ordered list of normalisers and
// dispatches on MIME type.
type NormaliserRegistry interface {
	// Normalise transforms a raw artifact using the best matching
	// normaliser. Returns domain.ErrUnsupportedFormat when no
	// registered normaliser handles the MIME type.
	Normalise(ctx context.Context, raw *domain.RawArtifact) (*NormaliseResult, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedMIMETypes returns all MIME types that can be normalised.
	SupportedMIMETypes() []string
}
