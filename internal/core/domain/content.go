package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SourceKind identifies the class of an ingested artifact.
type SourceKind string

// Supported source kinds.
const (
	SourceKindDocument   SourceKind = "document"
	SourceKindTranscript SourceKind = "transcript"
	SourceKindRawText    SourceKind = "raw-text"
)

// Valid returns true if the source kind is one of the known values.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindDocument, SourceKindTranscript, SourceKindRawText:
		return true
	default:
		return false
	}
}

// ContentItem represents one ingested artifact after normalisation.
// It is the unit of work the pipeline advances through stages.
type ContentItem struct {
	// ID is the stable fingerprint derived from the normalised content
	// hash, not the filename. The same bytes uploaded twice resolve to
	// the same item.
	ID string

	// SourceKind classifies the original artifact.
	SourceKind SourceKind

	// NormalizedTextRef is the location of the normalised UTF-8 text.
	// The text itself is immutable once the item exists.
	NormalizedTextRef string

	// Title is a human-readable label, usually the original filename.
	Title string

	// CreatedAt is when the item was first ingested.
	CreatedAt time.Time

	// RetryCount tracks transient-failure retries for the current stage.
	RetryCount int
}

// Fingerprint computes the content-addressed identifier for normalised
// text. Items are keyed by what they say, not where they came from.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// RawArtifact is an un-normalised upload handed to a Normaliser.
type RawArtifact struct {
	// URI is the original location (file path, URL, etc).
	URI string

	// MIMEType drives normaliser selection.
	MIMEType string

	// Data is the raw artifact bytes.
	Data []byte
}
