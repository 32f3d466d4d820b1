package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
	"github.com/compass-labs/roadsync/internal/logger"
)

// DefaultBaseBranch is the review target branch for proposals.
const DefaultBaseBranch = "main"

// maxBuildAttempts bounds branch-name escalation on persistently stale
// bases. Attempt 1 uses the plain deterministic branch, attempt 2 the
// -r2 suffix.
const maxBuildAttempts = 2

// ProposalBuilder turns one accepted mapping into one reviewable
// change proposal on the version-control backend. Branch names are a
// pure function of (item, component), so re-invoking the builder after
// a crash lands on the same branch instead of duplicating work.
type ProposalBuilder struct {
	vcs        driven.VCSBackend
	baseBranch string
}

// BuilderOption configures a ProposalBuilder.
type BuilderOption func(*ProposalBuilder)

// WithBaseBranch overrides the review target branch.
func WithBaseBranch(branch string) BuilderOption {
	return func(b *ProposalBuilder) {
		b.baseBranch = branch
	}
}

// NewProposalBuilder creates a builder over a version-control backend.
func NewProposalBuilder(vcs driven.VCSBackend, opts ...BuilderOption) *ProposalBuilder {
	b := &ProposalBuilder{
		vcs:        vcs,
		baseBranch: DefaultBaseBranch,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildResult is the outcome of one builder invocation.
type BuildResult struct {
	// Proposal is the open (or already-merged) proposal for the mapping.
	Proposal *domain.ChangeProposal

	// Reused is true when an existing open or merged proposal was found
	// on the deterministic branch and nothing new was created.
	Reused bool

	// SupersededID names a prior open proposal replaced by an escalated
	// rebuild, if any.
	SupersededID string
}

// Build creates the change proposal for one accepted mapping. Callers
// must hold the component lock for mapping.ComponentID.
//
// A base revision that goes stale mid-build gets one re-fetch and
// retry; a second conflict escalates to a versioned branch name and a
// fresh proposal. A branch another actor owns, or has rewritten under
// an open proposal of ours, also escalates; the rewritten case reports
// the abandoned proposal in SupersededID.
func (b *ProposalBuilder) Build(ctx context.Context, item *domain.ContentItem, mapping domain.ComponentMapping, roadmap *domain.RoadmapStructure) (*BuildResult, error) {
	comp := roadmap.Component(mapping.ComponentID)
	if comp == nil {
		return nil, fmt.Errorf("component %q: %w", mapping.ComponentID, domain.ErrMalformedRoadmap)
	}

	var supersededID string
	var lastErr error
	for attempt := 1; attempt <= maxBuildAttempts; attempt++ {
		branch := domain.BranchName(item.ID, mapping.ComponentID, attempt)

		existing, err := b.vcs.ProposalForBranch(ctx, branch)
		if err != nil {
			return nil, fmt.Errorf("checking branch %s: %w", branch, err)
		}
		if existing != nil && existing.ReviewState == domain.ReviewStateMerged {
			logger.Debug("branch %s already has merged proposal %s, reusing", branch, existing.ID)
			return &BuildResult{Proposal: existing, Reused: true}, nil
		}
		if existing != nil && existing.ReviewState == domain.ReviewStateOpen {
			ours, err := b.branchCarriesUpdate(ctx, branch, comp, item)
			if err != nil {
				return nil, fmt.Errorf("checking branch %s: %w", branch, err)
			}
			if ours {
				logger.Debug("branch %s already has open proposal %s, reusing", branch, existing.ID)
				return &BuildResult{Proposal: existing, Reused: true, SupersededID: supersededID}, nil
			}
			// Another actor rewrote the branch; the open proposal no
			// longer delivers this update. Leave it behind and rebuild
			// under the next branch name.
			supersededID = existing.ID
			lastErr = fmt.Errorf("branch %s: %w", branch, domain.ErrBranchNotOurs)
			logger.Warn("branch %s no longer carries item %s, superseding proposal %s", branch, shortID(item.ID), existing.ID)
			continue
		}

		proposal, err := b.buildOnBranch(ctx, branch, item, mapping, comp, roadmap)
		if err == nil {
			return &BuildResult{Proposal: proposal, SupersededID: supersededID}, nil
		}
		lastErr = err
		switch {
		case errors.Is(err, domain.ErrBaseRevisionStale):
			// The retry inside buildOnBranch already re-fetched once.
			if attempt < maxBuildAttempts {
				logger.Warn("base revision stale twice for %s, escalating", branch)
			}
		case errors.Is(err, domain.ErrBranchNotOurs):
			// Conflicting branch name from another actor. Never
			// force-push; take the next name instead.
			if attempt < maxBuildAttempts {
				logger.Warn("branch %s belongs to another actor, escalating", branch)
			}
		default:
			return nil, err
		}
	}

	return nil, fmt.Errorf("building proposal for component %s: %w", mapping.ComponentID, lastErr)
}

// branchCarriesUpdate reports whether the component file on a branch
// still contains this item's delimited update section. It
// distinguishes our own branches, including those left by an
// interrupted run, from branches other actors have rewritten.
func (b *ProposalBuilder) branchCarriesUpdate(ctx context.Context, branch string, comp *domain.RoadmapComponent, item *domain.ContentItem) (bool, error) {
	file, err := b.vcs.GetFile(ctx, comp.ContentPath, branch)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	open, _ := updateMarker(item.ID)
	return strings.Contains(file.Content, open), nil
}

// buildOnBranch cuts the branch, writes the component update and opens
// the proposal. It retries a stale write exactly once against
// re-fetched content before giving up.
func (b *ProposalBuilder) buildOnBranch(ctx context.Context, branch string, item *domain.ContentItem, mapping domain.ComponentMapping, comp *domain.RoadmapComponent, roadmap *domain.RoadmapStructure) (*domain.ChangeProposal, error) {
	if err := b.vcs.CreateBranch(ctx, branch, roadmap.BaseRevision); err != nil {
		if !errors.Is(err, domain.ErrBranchNotOurs) {
			return nil, fmt.Errorf("creating branch %s: %w", branch, err)
		}
		// A branch we advanced before a crash no longer points at the
		// base revision but still carries the update marker. Only a
		// branch without the marker is genuinely foreign.
		ours, oerr := b.branchCarriesUpdate(ctx, branch, comp, item)
		if oerr != nil {
			return nil, fmt.Errorf("checking branch %s: %w", branch, oerr)
		}
		if !ours {
			return nil, fmt.Errorf("creating branch %s: %w", branch, err)
		}
		logger.Debug("resuming interrupted build on branch %s", branch)
	}

	file, err := b.vcs.GetFile(ctx, comp.ContentPath, branch)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", comp.ContentPath, err)
	}

	// The SHA captured at snapshot time is the optimistic token: a
	// mismatch means the component changed between mapping and build.
	baseSHA := comp.ContentSHA
	if baseSHA == "" {
		baseSHA = file.SHA
	} else if baseSHA != file.SHA {
		logger.Warn("component %s changed since snapshot, rebuilding against live content", comp.ID)
		baseSHA = file.SHA
	}

	content := renderUpdate(file.Content, item, mapping)
	message := fmt.Sprintf("Update %s from ingested content %s", comp.ID, shortID(item.ID))

	// An interrupted run may have committed the update already.
	if content != file.Content {
		err = b.vcs.UpdateFile(ctx, comp.ContentPath, content, baseSHA, branch, message)
		if errors.Is(err, domain.ErrBaseRevisionStale) {
			// One re-fetch and retry against whatever is there now.
			file, ferr := b.vcs.GetFile(ctx, comp.ContentPath, branch)
			if ferr != nil {
				return nil, fmt.Errorf("re-fetching %s: %w", comp.ContentPath, ferr)
			}
			content = renderUpdate(file.Content, item, mapping)
			err = b.vcs.UpdateFile(ctx, comp.ContentPath, content, file.SHA, branch, message)
		}
		if err != nil {
			return nil, fmt.Errorf("updating %s on %s: %w", comp.ContentPath, branch, err)
		}
	}

	title := fmt.Sprintf("roadsync: update %s from %s", comp.ID, itemLabel(item))
	id, err := b.vcs.OpenProposal(ctx, branch, b.baseBranch, title, provenanceBody(item, mapping))
	if err != nil {
		return nil, fmt.Errorf("opening proposal for %s: %w", branch, err)
	}

	return &domain.ChangeProposal{
		ID:                id,
		BranchName:        branch,
		BaseRevision:      roadmap.BaseRevision,
		TargetComponentID: mapping.ComponentID,
		ItemID:            item.ID,
		ReviewState:       domain.ReviewStateOpen,
	}, nil
}

// updateMarker delimits the incoming-update section so repeated builds
// of the same item never stack duplicate sections.
func updateMarker(itemID string) (open, end string) {
	short := shortID(itemID)
	return fmt.Sprintf("<!-- roadsync:update %s -->", short),
		fmt.Sprintf("<!-- /roadsync:update %s -->", short)
}

// renderUpdate appends the suggested update to the component content
// under a delimited section. Existing content is never rewritten; human
// text above the marker stays untouched.
func renderUpdate(existing string, item *domain.ContentItem, mapping domain.ComponentMapping) string {
	open, closeMark := updateMarker(item.ID)
	if strings.Contains(existing, open) {
		// Section already present from an earlier interrupted run.
		return existing
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(existing, "\n"))
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(open)
	b.WriteString("\n## Incoming update\n\n")
	b.WriteString(strings.TrimSpace(mapping.SuggestedUpdate))
	b.WriteString("\n")
	b.WriteString(closeMark)
	b.WriteString("\n")
	return b.String()
}

// provenanceBody renders the proposal description: where the change
// came from and why the model believes it belongs here.
func provenanceBody(item *domain.ContentItem, mapping domain.ComponentMapping) string {
	var b strings.Builder
	b.WriteString("Automated change proposal from roadsync.\n\n")
	fmt.Fprintf(&b, "- Source item: `%s`\n", item.ID)
	if item.Title != "" {
		fmt.Fprintf(&b, "- Source title: %s (%s)\n", item.Title, item.SourceKind)
	}
	fmt.Fprintf(&b, "- Target component: `%s`\n", mapping.ComponentID)
	fmt.Fprintf(&b, "- Confidence: %d/100\n", mapping.Confidence)
	if mapping.RelevanceNote != "" {
		fmt.Fprintf(&b, "- Rationale: %s\n", mapping.RelevanceNote)
	}
	return b.String()
}

func itemLabel(item *domain.ContentItem) string {
	if item.Title != "" {
		return item.Title
	}
	return shortID(item.ID)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
