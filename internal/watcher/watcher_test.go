package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driving"
)

// mockPipeline records submissions.
type mockPipeline struct {
	mu        sync.Mutex
	submitted []*domain.RawArtifact
}

func (m *mockPipeline) Submit(_ context.Context, raw *domain.RawArtifact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, raw)
	return domain.Fingerprint(string(raw.Data)), nil
}

func (m *mockPipeline) Run(context.Context, *domain.RoadmapStructure) error { return nil }
func (m *mockPipeline) Reconcile(context.Context) error                     { return nil }
func (m *mockPipeline) Status(context.Context, string) (*domain.ProcessingRecord, error) {
	return nil, domain.ErrNotFound
}

func (m *mockPipeline) submissions() []*domain.RawArtifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.RawArtifact, len(m.submitted))
	copy(out, m.submitted)
	return out
}

var _ driving.Pipeline = (*mockPipeline)(nil)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWatcherSubmitsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	pipeline := &mockPipeline{}
	w := New(dir, pipeline, WithDebounce(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = w.Watch(ctx)
		close(done)
	}()

	// Let the watch register before writing.
	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes\n\nShip SSO."), 0644))

	waitFor(t, 3*time.Second, func() bool {
		return len(pipeline.submissions()) == 1
	})

	got := pipeline.submissions()[0]
	assert.Equal(t, path, got.URI)
	assert.Equal(t, "text/markdown", got.MIMEType)
	assert.Contains(t, string(got.Data), "Ship SSO.")

	cancel()
	<-done
}

func TestWatcherDebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	pipeline := &mockPipeline{}
	w := New(dir, pipeline, WithDebounce(150*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "draft.txt")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("revision"), 0644))
		time.Sleep(30 * time.Millisecond)
	}

	waitFor(t, 3*time.Second, func() bool {
		return len(pipeline.submissions()) >= 1
	})

	// The writes landed inside one debounce window.
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, pipeline.submissions(), 1)
}

func TestWatcherSkipsUnknownExtensions(t *testing.T) {
	dir := t.TempDir()
	pipeline := &mockPipeline{}
	w := New(dir, pipeline, WithDebounce(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0644))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, pipeline.submissions())
}

func TestWatcherStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, &mockPipeline{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Watch(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	w := New("/no/such/dir", &mockPipeline{})
	err := w.Watch(context.Background())
	assert.Error(t, err)
}
