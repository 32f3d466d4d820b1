package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
)

// Ensure ItemStore implements the interface.
var _ driven.ItemStore = (*ItemStore)(nil)

// ItemStore persists content items and their normalised text.
type ItemStore struct {
	store *Store
}

// SaveItem stores an item. Saving the same fingerprint twice is a
// no-op; items are immutable once created.
func (s *ItemStore) SaveItem(ctx context.Context, item *domain.ContentItem) error {
	if item == nil || item.ID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO content_items (id, source_kind, title, text_ref, created_at, retry_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, item.ID, string(item.SourceKind), item.Title, item.NormalizedTextRef,
		item.CreatedAt.UTC().Format(time.RFC3339), item.RetryCount)
	if err != nil {
		return fmt.Errorf("saving item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by fingerprint.
func (s *ItemStore) GetItem(ctx context.Context, id string) (*domain.ContentItem, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, source_kind, title, text_ref, created_at, retry_count
		FROM content_items WHERE id = ?
	`, id)

	var item domain.ContentItem
	var kind, createdAt string
	err := row.Scan(&item.ID, &kind, &item.Title, &item.NormalizedTextRef, &createdAt, &item.RetryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning item: %w", err)
	}

	item.SourceKind = domain.SourceKind(kind)
	item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &item, nil
}

// SaveText stores normalised text keyed by the item's fingerprint and
// returns the reference.
func (s *ItemStore) SaveText(ctx context.Context, itemID, text string) (string, error) {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO item_texts (ref, content) VALUES (?, ?)
		ON CONFLICT(ref) DO NOTHING
	`, itemID, text)
	if err != nil {
		return "", fmt.Errorf("saving text: %w", err)
	}
	return itemID, nil
}

// GetText loads normalised text by reference.
func (s *ItemStore) GetText(ctx context.Context, ref string) (string, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT content FROM item_texts WHERE ref = ?", ref)

	var content string
	err := row.Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("scanning text: %w", err)
	}
	return content, nil
}
