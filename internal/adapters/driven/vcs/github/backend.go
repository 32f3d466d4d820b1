// Package github implements the version-control backend on the GitHub API.
package github

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// Ensure Backend implements the interface.
var _ driven.VCSBackend = (*Backend)(nil)

// Config holds configuration for the GitHub backend.
type Config struct {
	// Owner is the repository owner (user or organisation).
	Owner string

	// Repo is the roadmap repository name.
	Repo string

	// BaseBranch is the branch proposals target (default: main).
	BaseBranch string

	// Token is the API token.
	Token string
}

// Backend wraps the go-github client behind the VCSBackend port.
type Backend struct {
	gh          *gh.Client
	owner       string
	repo        string
	baseBranch  string
	rateLimiter *RateLimiter
}

// New creates a GitHub backend.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github: owner and repo are required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("github: token is required")
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = DefaultTimeout

	return &Backend{
		gh:          gh.NewClient(tc),
		owner:       cfg.Owner,
		repo:        cfg.Repo,
		baseBranch:  cfg.BaseBranch,
		rateLimiter: NewRateLimiter(),
	}, nil
}

// BaseBranch returns the branch proposals target.
func (b *Backend) BaseBranch() string {
	return b.baseBranch
}

// CreateBranch creates a branch at the given base revision. Creating a
// branch that already exists at the same revision is a no-op;
// an existing branch at a different revision is someone else's and is
// never touched.
func (b *Backend) CreateBranch(ctx context.Context, name, baseRevision string) error {
	if err := b.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	_, resp, err := b.gh.Git.CreateRef(ctx, b.owner, b.repo, gh.CreateRef{
		Ref: "refs/heads/" + name,
		SHA: baseRevision,
	})
	b.updateRateLimit(resp)
	if err == nil {
		return nil
	}

	wrapped := b.wrapError(err, "create branch")
	if !IsConflict(wrapped) {
		return wrapped
	}

	// The ref exists. Ours if it points at the same base revision.
	existing, resp, err := b.gh.Git.GetRef(ctx, b.owner, b.repo, "heads/"+name)
	b.updateRateLimit(resp)
	if err != nil {
		return b.wrapError(err, "get branch")
	}
	if existing.GetObject().GetSHA() == baseRevision {
		return nil
	}
	return fmt.Errorf("github: branch %s: %w", name, domain.ErrBranchNotOurs)
}

// GetFile fetches a file's content and blob SHA at a ref.
func (b *Backend) GetFile(ctx context.Context, path, ref string) (*driven.FileContent, error) {
	if err := b.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	opts := &gh.RepositoryContentGetOptions{Ref: ref}
	content, _, resp, err := b.gh.Repositories.GetContents(ctx, b.owner, b.repo, path, opts)
	b.updateRateLimit(resp)
	if err != nil {
		wrapped := b.wrapError(err, "get file")
		if IsNotFound(wrapped) {
			return nil, fmt.Errorf("github: %s@%s: %w", path, ref, domain.ErrNotFound)
		}
		return nil, wrapped
	}
	if content == nil {
		return nil, fmt.Errorf("github: %s is a directory, not a file", path)
	}

	decoded, err := content.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return &driven.FileContent{
		Content: decoded,
		SHA:     content.GetSHA(),
	}, nil
}

// UpdateFile writes content to a file on a branch. A mismatched base
// SHA surfaces as domain.ErrBaseRevisionStale.
func (b *Backend) UpdateFile(ctx context.Context, path, content, baseSHA, branch, message string) error {
	if err := b.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(message),
		Content: []byte(content),
		SHA:     gh.Ptr(baseSHA),
		Branch:  gh.Ptr(branch),
	}
	_, resp, err := b.gh.Repositories.UpdateFile(ctx, b.owner, b.repo, path, opts)
	b.updateRateLimit(resp)
	if err != nil {
		wrapped := b.wrapError(err, "update file")
		if IsConflict(wrapped) {
			return fmt.Errorf("github: %s: %w", path, domain.ErrBaseRevisionStale)
		}
		return wrapped
	}
	return nil
}

// OpenProposal opens a pull request from branch onto base.
func (b *Backend) OpenProposal(ctx context.Context, branch, base, title, body string) (string, error) {
	if err := b.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	pr, resp, err := b.gh.PullRequests.Create(ctx, b.owner, b.repo, &gh.NewPullRequest{
		Title: gh.Ptr(title),
		Head:  gh.Ptr(branch),
		Base:  gh.Ptr(base),
		Body:  gh.Ptr(body),
	})
	b.updateRateLimit(resp)
	if err != nil {
		wrapped := b.wrapError(err, "open proposal")
		if IsConflict(wrapped) {
			// A pull request for this head already exists; reuse it.
			existing, perr := b.ProposalForBranch(ctx, branch)
			if perr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return "", wrapped
	}
	return strconv.Itoa(pr.GetNumber()), nil
}

// ProposalForBranch returns the existing proposal whose head is the
// given branch, or nil if none exists.
func (b *Backend) ProposalForBranch(ctx context.Context, branch string) (*domain.ChangeProposal, error) {
	if err := b.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	prs, resp, err := b.gh.PullRequests.List(ctx, b.owner, b.repo, &gh.PullRequestListOptions{
		Head:        b.owner + ":" + branch,
		State:       "all",
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	b.updateRateLimit(resp)
	if err != nil {
		return nil, b.wrapError(err, "list proposals")
	}
	if len(prs) == 0 {
		return nil, nil
	}

	pr := prs[0]
	return &domain.ChangeProposal{
		ID:          strconv.Itoa(pr.GetNumber()),
		BranchName:  branch,
		ReviewState: reviewState(pr),
		CreatedAt:   pr.GetCreatedAt().Time,
	}, nil
}

// GetProposalState returns the current review state of a proposal.
func (b *Backend) GetProposalState(ctx context.Context, proposalID string) (domain.ReviewState, error) {
	number, err := strconv.Atoi(proposalID)
	if err != nil {
		return "", fmt.Errorf("github: proposal id %q: %w", proposalID, domain.ErrInvalidInput)
	}

	if err := b.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	pr, resp, err := b.gh.PullRequests.Get(ctx, b.owner, b.repo, number)
	b.updateRateLimit(resp)
	if err != nil {
		return "", b.wrapError(err, "get proposal")
	}
	return reviewState(pr), nil
}

// reviewState maps a pull request to the domain review state. A closed
// PR that was not merged counts as rejected.
func reviewState(pr *gh.PullRequest) domain.ReviewState {
	switch {
	case pr.GetMerged() || pr.MergedAt != nil:
		return domain.ReviewStateMerged
	case pr.GetState() == "closed":
		return domain.ReviewStateRejected
	default:
		return domain.ReviewStateOpen
	}
}

func (b *Backend) updateRateLimit(resp *gh.Response) {
	if resp != nil {
		b.rateLimiter.UpdateFromResponse(resp.Response)
	}
}

func (b *Backend) wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) {
		return &APIError{
			StatusCode: ghErr.Response.StatusCode,
			Message:    ghErr.Message,
			URL:        ghErr.Response.Request.URL.String(),
		}
	}

	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, (&RateLimitError{
			ResetAt:   b.rateLimiter.ResetTime(),
			Remaining: b.rateLimiter.Remaining(),
			Limit:     b.rateLimiter.Limit(),
		}).Error())
	}

	return fmt.Errorf("%s: %w", operation, err)
}
