package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compass-labs/roadsync/internal/core/domain"
)

func TestNormalise(t *testing.T) {
	n := New()

	result, err := n.Normalise(context.Background(), &domain.RawArtifact{
		URI:      "notes.txt",
		MIMEType: "text/plain",
		Data:     []byte("line one  \r\nline two\t\n"),
	})

	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", result.Text)
	assert.Equal(t, domain.SourceKindRawText, result.SourceKind)
	assert.Equal(t, domain.Fingerprint(result.Text), result.Fingerprint)
}

func TestNormalise_SameBytesSameFingerprint(t *testing.T) {
	n := New()
	ctx := context.Background()

	// Same content, different filenames and line endings.
	a, err := n.Normalise(ctx, &domain.RawArtifact{URI: "a.txt", Data: []byte("hello\nworld")})
	require.NoError(t, err)
	b, err := n.Normalise(ctx, &domain.RawArtifact{URI: "b.txt", Data: []byte("hello\r\nworld")})
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestNormalise_InvalidUTF8(t *testing.T) {
	n := New()

	_, err := n.Normalise(context.Background(), &domain.RawArtifact{
		Data: []byte{0xff, 0xfe, 0x00},
	})

	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestNormalise_NilArtifact(t *testing.T) {
	n := New()
	_, err := n.Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
