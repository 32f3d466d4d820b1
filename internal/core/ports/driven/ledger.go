package driven

import (
	"context"

	"github.com/compass-labs/roadsync/internal/core/domain"
)

// LedgerStore is the Status Ledger: the single source of truth for
// each item's pipeline stage. It is the only mutable shared state the
// pipeline owns, and every mutation goes through Advance's
// compare-and-swap.
type LedgerStore interface {
	// Upsert creates the record for an item at StageIngested, or
	// returns the existing record unchanged. At most one record exists
	// per item ID.
	Upsert(ctx context.Context, item *domain.ContentItem) (*domain.ProcessingRecord, error)

	// Advance moves a record from one stage to the next with
	// compare-and-swap semantics: if the stored stage does not equal
	// fromStage, it returns domain.ErrStaleState and changes nothing.
	// Transitions must also be legal per domain.CanAdvance, otherwise
	// domain.ErrIllegalTransition. Every successful advance appends an
	// immutable audit entry recording the transition and actor.
	Advance(ctx context.Context, itemID string, fromStage, toStage domain.Stage, actor string) (*domain.ProcessingRecord, error)

	// RecordFailure moves the record to StageFailed, remembering the
	// failing stage and last error. Failed items stay visible; they
	// are never silently dropped. A record already in a terminal stage
	// is left untouched and the call returns domain.ErrStaleState.
	RecordFailure(ctx context.Context, itemID string, stage domain.Stage, failure error) error

	// SetRetryCount updates the transient retry counter for an item.
	SetRetryCount(ctx context.Context, itemID string, count int) error

	// AddProposal records a change proposal produced for an item.
	AddProposal(ctx context.Context, itemID, proposalID string) error

	// MarkSuperseded records that a proposal was replaced by an
	// escalated rebuild. The proposal is added to the item's set if an
	// earlier run never recorded it.
	MarkSuperseded(ctx context.Context, itemID, proposalID string) error

	// Get retrieves a record. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, itemID string) (*domain.ProcessingRecord, error)

	// List returns all records.
	List(ctx context.Context) ([]domain.ProcessingRecord, error)

	// ListByStage returns records currently at a stage.
	ListByStage(ctx context.Context, stage domain.Stage) ([]domain.ProcessingRecord, error)

	// AuditTrail returns an item's audit entries in sequence order.
	AuditTrail(ctx context.Context, itemID string) ([]domain.AuditEntry, error)
}

// ItemStore persists content items alongside the ledger.
type ItemStore interface {
	// SaveItem stores an item. Saving the same fingerprint twice is a
	// no-op; items are immutable once created.
	SaveItem(ctx context.Context, item *domain.ContentItem) error

	// GetItem retrieves an item by fingerprint.
	GetItem(ctx context.Context, id string) (*domain.ContentItem, error)

	// SaveText stores normalised text and returns its reference.
	SaveText(ctx context.Context, itemID, text string) (string, error)

	// GetText loads normalised text by reference.
	GetText(ctx context.Context, ref string) (string, error)
}
