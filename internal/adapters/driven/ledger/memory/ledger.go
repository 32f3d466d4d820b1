// Package memory provides in-memory ledger implementations for tests
// and ephemeral runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
)

// Ensure Ledger implements the interfaces.
var (
	_ driven.LedgerStore = (*Ledger)(nil)
	_ driven.ItemStore   = (*Ledger)(nil)
)

// Ledger is an in-memory implementation of the Status Ledger with the
// same compare-and-swap semantics as the persistent store.
type Ledger struct {
	mu      sync.Mutex
	records map[string]*domain.ProcessingRecord
	items   map[string]domain.ContentItem
	texts   map[string]string
	audit   map[string][]domain.AuditEntry
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[string]*domain.ProcessingRecord),
		items:   make(map[string]domain.ContentItem),
		texts:   make(map[string]string),
		audit:   make(map[string][]domain.AuditEntry),
	}
}

// Upsert creates the record for an item or returns the existing one.
func (l *Ledger) Upsert(_ context.Context, item *domain.ContentItem) (*domain.ProcessingRecord, error) {
	if item == nil || item.ID == "" {
		return nil, domain.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[item.ID]; ok {
		return copyRecord(rec), nil
	}

	rec := &domain.ProcessingRecord{
		ItemID:    item.ID,
		Stage:     domain.StageIngested,
		UpdatedAt: time.Now(),
	}
	l.records[item.ID] = rec
	return copyRecord(rec), nil
}

// Advance performs the compare-and-swap stage transition.
func (l *Ledger) Advance(_ context.Context, itemID string, fromStage, toStage domain.Stage, actor string) (*domain.ProcessingRecord, error) {
	if !domain.CanAdvance(fromStage, toStage) {
		return nil, domain.ErrIllegalTransition
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[itemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if rec.Stage != fromStage {
		return nil, domain.ErrStaleState
	}

	rec.Stage = toStage
	rec.RetryCount = 0
	rec.UpdatedAt = time.Now()

	entries := l.audit[itemID]
	l.audit[itemID] = append(entries, domain.AuditEntry{
		ID:        ulid.Make().String(),
		ItemID:    itemID,
		Seq:       len(entries) + 1,
		FromStage: fromStage,
		ToStage:   toStage,
		Actor:     actor,
		At:        time.Now(),
	})

	return copyRecord(rec), nil
}

// RecordFailure moves the record to StageFailed. Terminal records are
// left untouched so a stale actor cannot regress a closed item.
func (l *Ledger) RecordFailure(_ context.Context, itemID string, stage domain.Stage, failure error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.Stage.Terminal() {
		return domain.ErrStaleState
	}

	rec.Stage = domain.StageFailed
	rec.FailedStage = stage
	if failure != nil {
		rec.LastError = failure.Error()
	}
	rec.UpdatedAt = time.Now()
	return nil
}

// SetRetryCount updates the transient retry counter.
func (l *Ledger) SetRetryCount(_ context.Context, itemID string, count int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.RetryCount = count
	return nil
}

// AddProposal records a change proposal produced for an item.
func (l *Ledger) AddProposal(_ context.Context, itemID, proposalID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, id := range rec.ProposalIDs {
		if id == proposalID {
			return nil
		}
	}
	rec.ProposalIDs = append(rec.ProposalIDs, proposalID)
	return nil
}

// MarkSuperseded flags a proposal as replaced by an escalated rebuild.
func (l *Ledger) MarkSuperseded(_ context.Context, itemID, proposalID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	if !contains(rec.ProposalIDs, proposalID) {
		rec.ProposalIDs = append(rec.ProposalIDs, proposalID)
	}
	if !contains(rec.SupersededIDs, proposalID) {
		rec.SupersededIDs = append(rec.SupersededIDs, proposalID)
	}
	return nil
}

// Get retrieves a record.
func (l *Ledger) Get(_ context.Context, itemID string) (*domain.ProcessingRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[itemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRecord(rec), nil
}

// List returns all records.
func (l *Ledger) List(_ context.Context) ([]domain.ProcessingRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.ProcessingRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, *copyRecord(rec))
	}
	return out, nil
}

// ListByStage returns records currently at a stage.
func (l *Ledger) ListByStage(_ context.Context, stage domain.Stage) ([]domain.ProcessingRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.ProcessingRecord
	for _, rec := range l.records {
		if rec.Stage == stage {
			out = append(out, *copyRecord(rec))
		}
	}
	return out, nil
}

// AuditTrail returns an item's audit entries in sequence order.
func (l *Ledger) AuditTrail(_ context.Context, itemID string) ([]domain.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.audit[itemID]
	out := make([]domain.AuditEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// SaveItem stores an item. Re-saving the same fingerprint is a no-op.
func (l *Ledger) SaveItem(_ context.Context, item *domain.ContentItem) error {
	if item == nil || item.ID == "" {
		return domain.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.items[item.ID]; ok {
		return nil
	}
	l.items[item.ID] = *item
	return nil
}

// GetItem retrieves an item by fingerprint.
func (l *Ledger) GetItem(_ context.Context, id string) (*domain.ContentItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

// SaveText stores normalised text keyed by the item's fingerprint.
func (l *Ledger) SaveText(_ context.Context, itemID, text string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.texts[itemID] = text
	return itemID, nil
}

// GetText loads normalised text by reference.
func (l *Ledger) GetText(_ context.Context, ref string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	text, ok := l.texts[ref]
	if !ok {
		return "", domain.ErrNotFound
	}
	return text, nil
}

func contains(ids []string, id string) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}
	return false
}

func copyRecord(rec *domain.ProcessingRecord) *domain.ProcessingRecord {
	out := *rec
	out.ProposalIDs = append([]string(nil), rec.ProposalIDs...)
	out.SupersededIDs = append([]string(nil), rec.SupersededIDs...)
	return &out
}
