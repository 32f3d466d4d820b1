package domain

import "time"

// Stage is a pipeline processing stage. A record's stage only moves
// forward or to Failed; it never silently regresses.
type Stage string

// Pipeline stages in order.
const (
	StageIngested         Stage = "ingested"
	StageNormalized       Stage = "normalized"
	StageMapped           Stage = "mapped"
	StageProposalsCreated Stage = "proposals-created"
	StageAwaitingReview   Stage = "awaiting-review"
	StageClosedMerged     Stage = "closed-merged"
	StageClosedRejected   Stage = "closed-rejected"
	StageClosedSuperseded Stage = "closed-superseded"
	StageFailed           Stage = "failed"
)

// stageOrder gives each non-terminal stage its position in the forward
// progression. Closed states share a rank; Failed is reachable from
// anywhere.
var stageOrder = map[Stage]int{
	StageIngested:         0,
	StageNormalized:       1,
	StageMapped:           2,
	StageProposalsCreated: 3,
	StageAwaitingReview:   4,
	StageClosedMerged:     5,
	StageClosedRejected:   5,
	StageClosedSuperseded: 5,
}

// Valid returns true for a known stage.
func (s Stage) Valid() bool {
	if s == StageFailed {
		return true
	}
	_, ok := stageOrder[s]
	return ok
}

// Terminal reports whether no further transitions are allowed.
func (s Stage) Terminal() bool {
	switch s {
	case StageClosedMerged, StageClosedRejected, StageClosedSuperseded, StageFailed:
		return true
	default:
		return false
	}
}

// CanAdvance reports whether a transition from one stage to another is
// legal: strictly forward through the progression, or to Failed from
// any non-terminal stage.
func CanAdvance(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	fo, ok := stageOrder[from]
	if !ok {
		return false
	}
	to2, ok := stageOrder[to]
	if !ok {
		return false
	}
	return to2 > fo
}

// ProcessingRecord is the Status Ledger row for one ContentItem. At
// most one record exists per item ID (upsert semantics).
type ProcessingRecord struct {
	// ItemID keys the record.
	ItemID string

	// Stage is the item's current pipeline stage.
	Stage Stage

	// FailedStage records which stage failed when Stage is Failed.
	FailedStage Stage

	// LastError is the most recent failure message, if any.
	LastError string

	// ProposalIDs is the set of change proposals produced for the item.
	ProposalIDs []string

	// SupersededIDs is the subset of ProposalIDs replaced by escalated
	// rebuilds. A superseded proposal no longer counts toward the
	// item's review outcome.
	SupersededIDs []string

	// RetryCount tracks transient retries within the current stage.
	RetryCount int

	UpdatedAt time.Time
}

// AuditEntry is one append-only record of a successful stage advance.
type AuditEntry struct {
	// ID is a monotonic, lexically sortable entry identifier.
	ID string

	// ItemID is the item the transition belongs to.
	ItemID string

	// Seq is the per-item sequence number, starting at 1.
	Seq int

	FromStage Stage
	ToStage   Stage

	// Actor identifies who drove the transition (worker, CLI, reconciler).
	Actor string

	At time.Time
}
