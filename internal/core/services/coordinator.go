package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
	"github.com/compass-labs/roadsync/internal/core/ports/driving"
	"github.com/compass-labs/roadsync/internal/logger"
)

// Ensure Coordinator implements the interface.
var _ driving.Pipeline = (*Coordinator)(nil)

// Default coordinator tuning.
const (
	DefaultWorkers    = 4
	DefaultAttemptCap = 3
)

// defaultBackoff doubles from half a second per attempt.
func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * 500 * time.Millisecond
}

// Coordinator drives content items through the pipeline stages. A pool
// of workers pulls items from the queue; each item's run is an
// independent unit of work, with every stage transition going through
// the ledger's compare-and-swap.
type Coordinator struct {
	registry driven.NormaliserRegistry
	items    driven.ItemStore
	ledger   driven.LedgerStore
	mapper   *MappingEngine
	builder  *ProposalBuilder
	vcs      driven.VCSBackend
	notifier driven.Notifier
	locks    *componentLocks

	workers    int
	attemptCap int
	backoff    func(attempt int) time.Duration
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithAttemptCap sets the per-stage retry cap for transient failures.
func WithAttemptCap(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.attemptCap = n
		}
	}
}

// WithBackoff overrides the retry backoff schedule.
func WithBackoff(f func(attempt int) time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.backoff = f
	}
}

// NewCoordinator creates a pipeline coordinator.
func NewCoordinator(
	registry driven.NormaliserRegistry,
	items driven.ItemStore,
	ledger driven.LedgerStore,
	mapper *MappingEngine,
	builder *ProposalBuilder,
	vcs driven.VCSBackend,
	notifier driven.Notifier,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		registry:   registry,
		items:      items,
		ledger:     ledger,
		mapper:     mapper,
		builder:    builder,
		vcs:        vcs,
		notifier:   notifier,
		locks:      newComponentLocks(),
		workers:    DefaultWorkers,
		attemptCap: DefaultAttemptCap,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit normalises a raw artifact and records it in the ledger.
// Submitting the same bytes twice resolves to the same fingerprint and
// leaves the existing record untouched.
func (c *Coordinator) Submit(ctx context.Context, raw *domain.RawArtifact) (string, error) {
	result, err := c.registry.Normalise(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("normalising %s: %w", raw.URI, err)
	}

	item := &domain.ContentItem{
		ID:         result.Fingerprint,
		SourceKind: result.SourceKind,
		Title:      path.Base(raw.URI),
		CreatedAt:  time.Now(),
	}

	ref, err := c.items.SaveText(ctx, item.ID, result.Text)
	if err != nil {
		return "", fmt.Errorf("saving normalised text: %w", err)
	}
	item.NormalizedTextRef = ref

	if err := c.items.SaveItem(ctx, item); err != nil {
		return "", fmt.Errorf("saving item: %w", err)
	}

	rec, err := c.ledger.Upsert(ctx, item)
	if err != nil {
		return "", fmt.Errorf("upserting ledger record: %w", err)
	}

	if rec.Stage == domain.StageIngested {
		_, err = c.ledger.Advance(ctx, item.ID, domain.StageIngested, domain.StageNormalized, "submit")
		if err != nil && !errors.Is(err, domain.ErrStaleState) {
			return "", fmt.Errorf("advancing to normalized: %w", err)
		}
		if err == nil {
			c.notify(item.ID, domain.StageNormalized)
		}
	}

	logger.Info("submitted %s as item %s", raw.URI, shortID(item.ID))
	return item.ID, nil
}

// Run processes queued items against a roadmap snapshot until the
// queue drains or the context is cancelled. Items interrupted by an
// earlier crash resume from their recorded stage.
func (c *Coordinator) Run(ctx context.Context, roadmap *domain.RoadmapStructure) error {
	if c.mapper == nil || c.builder == nil || c.vcs == nil {
		return errors.New("pipeline not fully configured: AI capability and version-control backend are required")
	}
	if err := roadmap.Validate(); err != nil {
		return fmt.Errorf("validating roadmap: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	queue, err := c.collectQueue(ctx)
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		logger.Info("nothing to process")
		return nil
	}

	// Run identifier for correlating log lines across workers.
	runID := uuid.NewString()[:8]
	logger.Info("run %s: processing %d item(s) with %d worker(s)", runID, len(queue), c.workers)

	work := make(chan domain.ProcessingRecord)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range work {
				c.processItem(ctx, rec, roadmap)
			}
		}()
	}

	for _, rec := range queue {
		select {
		case work <- rec:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(work)
	wg.Wait()
	logger.Info("run %s: done", runID)

	return ctx.Err()
}

// collectQueue gathers every record still in a resumable working stage.
func (c *Coordinator) collectQueue(ctx context.Context) ([]domain.ProcessingRecord, error) {
	var queue []domain.ProcessingRecord
	for _, stage := range []domain.Stage{domain.StageNormalized, domain.StageMapped, domain.StageProposalsCreated} {
		recs, err := c.ledger.ListByStage(ctx, stage)
		if err != nil {
			return nil, fmt.Errorf("listing %s items: %w", stage, err)
		}
		queue = append(queue, recs...)
	}
	return queue, nil
}

// processItem runs one item from its current stage as far as
// AwaitingReview. Failures are classified: transient errors retry with
// backoff up to the attempt cap, everything else fails the item at its
// current stage. Items found at Mapped re-run the mapping; the
// deterministic branch names make the rebuild idempotent.
func (c *Coordinator) processItem(ctx context.Context, rec domain.ProcessingRecord, roadmap *domain.RoadmapStructure) {
	stage := rec.Stage
	itemID := rec.ItemID

	var mappings []domain.ComponentMapping
	if stage == domain.StageNormalized || stage == domain.StageMapped {
		var err error
		mappings, err = c.runMapping(ctx, itemID, roadmap)
		if err != nil {
			c.failItem(ctx, itemID, stage, err)
			return
		}

		if stage == domain.StageNormalized {
			if !c.advance(ctx, itemID, domain.StageNormalized, domain.StageMapped, "mapper") {
				return
			}
		}
		stage = domain.StageMapped
	}

	if stage == domain.StageMapped {
		if len(mappings) == 0 {
			// Nothing cleared the confidence bar; there is no change to
			// propose and nothing for a reviewer to see.
			logger.Info("item %s: no mappings at or above threshold, closing", shortID(itemID))
			c.advance(ctx, itemID, domain.StageMapped, domain.StageClosedRejected, "mapper")
			return
		}

		for _, m := range mappings {
			if err := c.buildProposal(ctx, itemID, m, roadmap); err != nil {
				c.failItem(ctx, itemID, domain.StageMapped, err)
				return
			}
		}

		if !c.advance(ctx, itemID, domain.StageMapped, domain.StageProposalsCreated, "builder") {
			return
		}
		stage = domain.StageProposalsCreated
	}

	if stage == domain.StageProposalsCreated {
		c.advance(ctx, itemID, domain.StageProposalsCreated, domain.StageAwaitingReview, "builder")
	}
}

// runMapping loads the item's normalised text and maps it, retrying
// transient capability failures.
func (c *Coordinator) runMapping(ctx context.Context, itemID string, roadmap *domain.RoadmapStructure) ([]domain.ComponentMapping, error) {
	item, err := c.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("loading item: %w", err)
	}
	text, err := c.items.GetText(ctx, item.NormalizedTextRef)
	if err != nil {
		return nil, fmt.Errorf("loading normalised text: %w", err)
	}

	var mappings []domain.ComponentMapping
	err = c.withRetry(ctx, itemID, func() error {
		var mErr error
		mappings, mErr = c.mapper.Map(ctx, itemID, text, roadmap)
		return mErr
	})
	return mappings, err
}

// buildProposal serializes on the component lock, builds the proposal
// and records it in the ledger.
func (c *Coordinator) buildProposal(ctx context.Context, itemID string, m domain.ComponentMapping, roadmap *domain.RoadmapStructure) error {
	item, err := c.items.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("loading item: %w", err)
	}

	if err := c.locks.Acquire(ctx, m.ComponentID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCancelled, err)
	}
	defer c.locks.Release(m.ComponentID)

	var result *BuildResult
	err = c.withRetry(ctx, itemID, func() error {
		var bErr error
		result, bErr = c.builder.Build(ctx, item, m, roadmap)
		return bErr
	})
	if err != nil {
		return fmt.Errorf("building proposal for %s: %w", m.ComponentID, err)
	}

	if result.SupersededID != "" {
		logger.Warn("item %s: proposal %s superseded by %s", shortID(itemID), result.SupersededID, result.Proposal.ID)
		if err := c.ledger.MarkSuperseded(ctx, itemID, result.SupersededID); err != nil {
			return fmt.Errorf("marking proposal superseded: %w", err)
		}
	}
	if err := c.ledger.AddProposal(ctx, itemID, result.Proposal.ID); err != nil {
		return fmt.Errorf("recording proposal: %w", err)
	}
	return nil
}

// Reconcile polls review outcomes for items awaiting review and closes
// them in the ledger. An item closes merged as soon as any of its
// proposals merges. Superseded proposals came out of escalated
// rebuilds and carry no review verdict: they neither hold the item
// open nor count as a rejection. Once every live proposal is closed
// without a merge the item closes rejected, or superseded when no live
// proposal remained at all.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	if c.vcs == nil {
		return errors.New("pipeline not fully configured: version-control backend is required")
	}
	recs, err := c.ledger.ListByStage(ctx, domain.StageAwaitingReview)
	if err != nil {
		return fmt.Errorf("listing items awaiting review: %w", err)
	}

	for _, rec := range recs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(rec.ProposalIDs) == 0 {
			continue
		}

		superseded := make(map[string]bool, len(rec.SupersededIDs))
		for _, id := range rec.SupersededIDs {
			superseded[id] = true
		}

		anyOpen := false
		anyMerged := false
		liveCount := 0
		for _, id := range rec.ProposalIDs {
			if !superseded[id] {
				liveCount++
			}
			state, err := c.vcs.GetProposalState(ctx, id)
			if err != nil {
				logger.Warn("item %s: checking proposal %s: %v", shortID(rec.ItemID), id, err)
				anyOpen = true
				break
			}
			switch state {
			case domain.ReviewStateOpen:
				if !superseded[id] {
					anyOpen = true
				}
			case domain.ReviewStateMerged:
				anyMerged = true
			}
		}

		switch {
		case anyMerged:
			c.advance(ctx, rec.ItemID, domain.StageAwaitingReview, domain.StageClosedMerged, "reconciler")
		case anyOpen:
			// Still under review.
		case liveCount == 0:
			c.advance(ctx, rec.ItemID, domain.StageAwaitingReview, domain.StageClosedSuperseded, "reconciler")
		default:
			c.advance(ctx, rec.ItemID, domain.StageAwaitingReview, domain.StageClosedRejected, "reconciler")
		}
	}
	return nil
}

// Status returns the ledger record for an item.
func (c *Coordinator) Status(ctx context.Context, itemID string) (*domain.ProcessingRecord, error) {
	return c.ledger.Get(ctx, itemID)
}

// advance performs one CAS stage transition. A stale-state loss means
// another worker already moved the item; the caller stops without
// failing it. Returns true when this worker won the transition.
func (c *Coordinator) advance(ctx context.Context, itemID string, from, to domain.Stage, actor string) bool {
	_, err := c.ledger.Advance(ctx, itemID, from, to, actor)
	if errors.Is(err, domain.ErrStaleState) {
		logger.Debug("item %s: lost %s -> %s advance to another worker", shortID(itemID), from, to)
		return false
	}
	if err != nil {
		logger.Warn("item %s: advancing %s -> %s: %v", shortID(itemID), from, to, err)
		return false
	}
	c.notify(itemID, to)
	return true
}

// failItem moves an item to Failed, recording the failing stage.
// Cancellation is recorded like any other failure so aborted items
// stay visible in the ledger.
func (c *Coordinator) failItem(ctx context.Context, itemID string, stage domain.Stage, failure error) {
	if errors.Is(failure, context.Canceled) || errors.Is(failure, context.DeadlineExceeded) {
		failure = fmt.Errorf("%w: %v", domain.ErrCancelled, failure)
	}
	logger.Warn("item %s failed at %s: %v", shortID(itemID), stage, failure)

	// RecordFailure needs a live context even when the run's context
	// caused the failure.
	recordCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		recordCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := c.ledger.RecordFailure(recordCtx, itemID, stage, failure); err != nil {
		logger.Warn("item %s: recording failure: %v", shortID(itemID), err)
	}
	c.notify(itemID, domain.StageFailed)
}

// withRetry runs fn, retrying transient and concurrency failures with
// exponential backoff up to the attempt cap. Validation and fatal
// failures return immediately.
func (c *Coordinator) withRetry(ctx context.Context, itemID string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.attemptCap; attempt++ {
		err = fn()
		if err == nil {
			if attempt > 1 {
				_ = c.ledger.SetRetryCount(ctx, itemID, 0)
			}
			return nil
		}
		if !domain.Retryable(err) || attempt == c.attemptCap {
			return err
		}

		delay := c.backoff(attempt)
		logger.Debug("item %s: attempt %d/%d failed (%v), backing off %s", shortID(itemID), attempt, c.attemptCap, err, delay)
		_ = c.ledger.SetRetryCount(ctx, itemID, attempt)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// notify dispatches a stage event. Delivery is best-effort and never
// blocks pipeline progress.
func (c *Coordinator) notify(itemID string, stage domain.Stage) {
	if c.notifier == nil {
		return
	}
	event := driven.StageEvent{
		ItemID: itemID,
		Stage:  stage,
		At:     time.Now(),
	}
	// Delivery stays off the critical path.
	go c.notifier.StageChanged(event)
}
