package domain

import (
	"fmt"
	"time"
)

// ReviewState is the review lifecycle of a change proposal.
type ReviewState string

// Review states.
const (
	ReviewStateOpen       ReviewState = "open"
	ReviewStateMerged     ReviewState = "merged"
	ReviewStateRejected   ReviewState = "rejected"
	ReviewStateSuperseded ReviewState = "superseded"
)

// ChangeProposal is one isolated, reviewable version-control change
// carrying one accepted mapping. The version-control backend owns the
// proposal once created; the pipeline tracks only its ID and state.
type ChangeProposal struct {
	// ID is the backend's proposal identifier (e.g. PR number).
	ID string

	// BranchName is derived deterministically from the item and
	// component IDs, so re-creation is idempotent.
	BranchName string

	// BaseRevision is the roadmap revision the branch was cut from.
	BaseRevision string

	// TargetComponentID is the component the proposal updates.
	TargetComponentID string

	// ItemID is the source content item.
	ItemID string

	// ReviewState is the last observed review outcome.
	ReviewState ReviewState

	// CreatedAt is when the proposal was opened.
	CreatedAt time.Time
}

const branchPrefix = "roadsync"

// BranchName is the pure function from (item, component) to the
// proposal branch. Re-invoking the builder for the same pair always
// lands on the same branch; this is the pipeline's core idempotence
// guarantee. Attempt versions above 1 get a -rN suffix, used when a
// stale base forces a fresh proposal.
func BranchName(itemID, componentID string, attempt int) string {
	short := itemID
	if len(short) > 12 {
		short = short[:12]
	}
	name := fmt.Sprintf("%s/%s/%s", branchPrefix, componentID, short)
	if attempt > 1 {
		name = fmt.Sprintf("%s-r%d", name, attempt)
	}
	return name
}
