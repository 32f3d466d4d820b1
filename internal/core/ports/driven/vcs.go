package driven

import (
	"context"

	"github.com/compass-labs/roadsync/internal/core/domain"
)

// VCSBackend is the version-control host the roadmap lives in. The
// pipeline owns nothing on the backend; it creates isolated branches
// and proposals and polls their review state. The backend offers no
// transactions, so callers combine per-component locking with
// base-SHA checks (domain.ErrBaseRevisionStale) instead.
type VCSBackend interface {
	// CreateBranch creates a branch at the given base revision.
	// Returns domain.ErrBranchNotOurs if the branch already exists but
	// does not point at baseRevision.
	CreateBranch(ctx context.Context, name, baseRevision string) error

	// GetFile fetches a file's content and blob SHA at a ref.
	GetFile(ctx context.Context, path, ref string) (*FileContent, error)

	// UpdateFile writes content to a file on a branch. baseSHA must
	// match the current blob SHA or the backend rejects the write with
	// domain.ErrBaseRevisionStale.
	UpdateFile(ctx context.Context, path, content, baseSHA, branch, message string) error

	// OpenProposal opens a pull/merge request from branch onto base and
	// returns the backend's proposal ID.
	OpenProposal(ctx context.Context, branch, base, title, body string) (string, error)

	// ProposalForBranch returns the existing proposal whose head is the
	// given branch, or nil if none exists. Used for idempotent rebuild.
	ProposalForBranch(ctx context.Context, branch string) (*domain.ChangeProposal, error)

	// GetProposalState returns the current review state of a proposal.
	GetProposalState(ctx context.Context, proposalID string) (domain.ReviewState, error)
}

// FileContent is a file fetched from the backend.
type FileContent struct {
	// Content is the decoded file text.
	Content string

	// SHA is the blob SHA, used as the optimistic-concurrency token
	// for updates.
	SHA string
}
