// Package watcher feeds files dropped into a directory to the pipeline.
// Create and write events are debounced per path so a file still being
// written is submitted once, after it settles.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driving"
	"github.com/compass-labs/roadsync/internal/logger"
)

// DefaultDebounce is how long a file must be quiet before submission.
const DefaultDebounce = 500 * time.Millisecond

// mimeByExt maps drop-directory file extensions onto the MIME types
// the normaliser registry dispatches on.
var mimeByExt = map[string]string{
	".txt":        "text/plain",
	".csv":        "text/csv",
	".md":         "text/markdown",
	".markdown":   "text/markdown",
	".vtt":        "text/vtt",
	".srt":        "application/x-subrip",
	".transcript": "text/x-transcript",
}

// MIMETypeFor resolves a file path to the MIME type used for
// normaliser dispatch. The second result is false for unrecognised
// extensions.
func MIMETypeFor(path string) (string, bool) {
	mimeType, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]
	return mimeType, ok
}

// Watcher submits files appearing in a directory to the pipeline.
type Watcher struct {
	dir      string
	pipeline driving.Pipeline
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the settle delay before submission.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// New creates a watcher over a directory.
func New(dir string, pipeline driving.Pipeline, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		pipeline: pipeline,
		debounce: DefaultDebounce,
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch blocks, submitting dropped files until the context is
// cancelled. Files with unrecognised extensions are skipped with a
// warning rather than failing the watch.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	logger.Info("watching %s", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error: %v", err)
		}
	}
}

// schedule (re)arms the debounce timer for a path. Every new write
// pushes submission back until the file settles.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.submit(ctx, path)
	})
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

// submit reads a settled file and hands it to the pipeline.
func (w *Watcher) submit(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	mimeType, ok := MIMETypeFor(path)
	if !ok {
		logger.Warn("skipping %s: unrecognised extension", path)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("reading %s: %v", path, err)
		return
	}

	id, err := w.pipeline.Submit(ctx, &domain.RawArtifact{
		URI:      path,
		MIMEType: mimeType,
		Data:     data,
	})
	if err != nil {
		logger.Warn("submitting %s: %v", path, err)
		return
	}
	logger.Info("submitted %s as item %.12s", filepath.Base(path), id)
}
