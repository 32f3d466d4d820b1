// Package driving provides interfaces for application entry points (primary/inbound ports).
package driving

import (
	"context"

	"github.com/compass-labs/roadsync/internal/core/domain"
)

// Pipeline drives content items from ingestion through mapping to
// change proposals.
type Pipeline interface {
	// Submit normalises a raw artifact and enqueues the resulting
	// item. Submitting the same bytes twice yields the same item ID
	// and no duplicate work.
	Submit(ctx context.Context, raw *domain.RawArtifact) (string, error)

	// Run processes queued items against a roadmap snapshot until the
	// queue drains or the context is cancelled.
	Run(ctx context.Context, roadmap *domain.RoadmapStructure) error

	// Reconcile polls review outcomes for items awaiting review and
	// closes them in the ledger.
	Reconcile(ctx context.Context) error

	// Status returns the ledger record for an item.
	Status(ctx context.Context, itemID string) (*domain.ProcessingRecord, error)
}
