package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
)

// mockVCS is an in-memory version-control backend. Files are keyed per
// branch; proposals per head branch.
type mockVCS struct {
	mu         sync.Mutex
	branches   map[string]string             // branch -> base revision
	files      map[string]driven.FileContent // branch + "!" + path
	baseFiles  map[string]driven.FileContent // path -> content at every base
	proposals  map[string]*domain.ChangeProposal
	byBranch   map[string]*domain.ChangeProposal
	bodies     map[string]string
	nextID     int
	staleLeft  int // UpdateFile calls to fail with ErrBaseRevisionStale
	updateErrs []error
	shaSeq     int
}

func newMockVCS() *mockVCS {
	return &mockVCS{
		branches: make(map[string]string),
		files:    make(map[string]driven.FileContent),
		baseFiles: map[string]driven.FileContent{
			"roadmap/auth-service.md": {Content: "# Auth Service\n\nExisting notes.", SHA: "sha-auth-1"},
			"roadmap/billing.md":      {Content: "# Billing\n\nExisting notes.", SHA: "sha-billing-1"},
		},
		proposals: make(map[string]*domain.ChangeProposal),
		byBranch:  make(map[string]*domain.ChangeProposal),
		bodies:    make(map[string]string),
	}
}

func (v *mockVCS) CreateBranch(_ context.Context, name, baseRevision string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if base, exists := v.branches[name]; exists {
		if base != baseRevision {
			return domain.ErrBranchNotOurs
		}
		return nil
	}
	v.branches[name] = baseRevision
	return nil
}

func (v *mockVCS) GetFile(_ context.Context, path, ref string) (*driven.FileContent, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if f, ok := v.files[ref+"!"+path]; ok {
		out := f
		return &out, nil
	}
	if f, ok := v.baseFiles[path]; ok {
		out := f
		return &out, nil
	}
	return nil, domain.ErrNotFound
}

func (v *mockVCS) UpdateFile(_ context.Context, path, content, baseSHA, branch, _ string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.updateErrs) > 0 {
		err := v.updateErrs[0]
		v.updateErrs = v.updateErrs[1:]
		if err != nil {
			return err
		}
	}
	if v.staleLeft > 0 {
		v.staleLeft--
		return domain.ErrBaseRevisionStale
	}

	current, ok := v.files[branch+"!"+path]
	if !ok {
		current = v.baseFiles[path]
	}
	if current.SHA != baseSHA {
		return domain.ErrBaseRevisionStale
	}

	v.shaSeq++
	v.files[branch+"!"+path] = driven.FileContent{
		Content: content,
		SHA:     fmt.Sprintf("sha-new-%d", v.shaSeq),
	}
	return nil
}

func (v *mockVCS) OpenProposal(_ context.Context, branch, _, _, body string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.nextID++
	id := fmt.Sprintf("%d", 100+v.nextID)
	p := &domain.ChangeProposal{
		ID:          id,
		BranchName:  branch,
		ReviewState: domain.ReviewStateOpen,
	}
	v.proposals[id] = p
	v.byBranch[branch] = p
	v.bodies[id] = body
	return id, nil
}

func (v *mockVCS) ProposalForBranch(_ context.Context, branch string) (*domain.ChangeProposal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if p, ok := v.byBranch[branch]; ok {
		out := *p
		return &out, nil
	}
	return nil, nil
}

func (v *mockVCS) GetProposalState(_ context.Context, proposalID string) (domain.ReviewState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, ok := v.proposals[proposalID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return p.ReviewState, nil
}

func (v *mockVCS) setProposalState(id string, state domain.ReviewState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.proposals[id].ReviewState = state
}

func (v *mockVCS) fileOn(branch, path string) (driven.FileContent, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[branch+"!"+path]
	return f, ok
}

var _ driven.VCSBackend = (*mockVCS)(nil)

func testItem() *domain.ContentItem {
	text := "We should ship SSO next quarter."
	return &domain.ContentItem{
		ID:         domain.Fingerprint(text),
		SourceKind: domain.SourceKindRawText,
		Title:      "auth-update.txt",
	}
}

func testMapping(itemID string) domain.ComponentMapping {
	return domain.ComponentMapping{
		ItemID:          itemID,
		ComponentID:     "auth-service",
		Confidence:      90,
		RelevanceNote:   "discusses single sign-on",
		SuggestedUpdate: "Add SSO support milestone for Q3.",
	}
}

func TestProposalBuilderHappyPath(t *testing.T) {
	vcs := newMockVCS()
	builder := NewProposalBuilder(vcs)
	item := testItem()
	roadmap := testRoadmap()

	result, err := builder.Build(context.Background(), item, testMapping(item.ID), roadmap)
	require.NoError(t, err)
	require.False(t, result.Reused)

	wantBranch := domain.BranchName(item.ID, "auth-service", 1)
	assert.Equal(t, wantBranch, result.Proposal.BranchName)
	assert.Equal(t, "auth-service", result.Proposal.TargetComponentID)
	assert.Equal(t, "rev-abc123", result.Proposal.BaseRevision)
	assert.Equal(t, item.ID, result.Proposal.ItemID)
	assert.Equal(t, domain.ReviewStateOpen, result.Proposal.ReviewState)

	// The component file carries the delimited update section with the
	// original content untouched above it.
	file, ok := vcs.fileOn(wantBranch, "roadmap/auth-service.md")
	require.True(t, ok)
	assert.Contains(t, file.Content, "# Auth Service")
	assert.Contains(t, file.Content, "Add SSO support milestone for Q3.")
	assert.Contains(t, file.Content, "<!-- roadsync:update "+shortID(item.ID)+" -->")
}

func TestProposalBuilderReusesOpenProposal(t *testing.T) {
	vcs := newMockVCS()
	builder := NewProposalBuilder(vcs)
	item := testItem()
	roadmap := testRoadmap()

	first, err := builder.Build(context.Background(), item, testMapping(item.ID), roadmap)
	require.NoError(t, err)

	// Re-running for the same (item, component) resolves to the same
	// branch and finds the existing proposal.
	second, err := builder.Build(context.Background(), item, testMapping(item.ID), roadmap)
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.Proposal.ID, second.Proposal.ID)
	assert.Len(t, vcs.proposals, 1)
}

func TestProposalBuilderReusesMergedProposal(t *testing.T) {
	vcs := newMockVCS()
	builder := NewProposalBuilder(vcs)
	item := testItem()
	roadmap := testRoadmap()

	first, err := builder.Build(context.Background(), item, testMapping(item.ID), roadmap)
	require.NoError(t, err)
	vcs.setProposalState(first.Proposal.ID, domain.ReviewStateMerged)

	second, err := builder.Build(context.Background(), item, testMapping(item.ID), roadmap)
	require.NoError(t, err)
	assert.True(t, second.Reused)
}

func TestProposalBuilderRetriesStaleBaseOnce(t *testing.T) {
	vcs := newMockVCS()
	vcs.staleLeft = 1
	builder := NewProposalBuilder(vcs)
	item := testItem()

	result, err := builder.Build(context.Background(), item, testMapping(item.ID), testRoadmap())
	require.NoError(t, err)

	// Recovered on the plain branch, no escalation.
	assert.Equal(t, domain.BranchName(item.ID, "auth-service", 1), result.Proposal.BranchName)
	assert.Empty(t, result.SupersededID)
}

func TestProposalBuilderEscalatesAfterSecondStaleBase(t *testing.T) {
	vcs := newMockVCS()
	vcs.staleLeft = 2 // first write and its retry both conflict
	builder := NewProposalBuilder(vcs)
	item := testItem()

	result, err := builder.Build(context.Background(), item, testMapping(item.ID), testRoadmap())
	require.NoError(t, err)

	wantBranch := domain.BranchName(item.ID, "auth-service", 2)
	assert.Equal(t, wantBranch, result.Proposal.BranchName)
	assert.Contains(t, result.Proposal.BranchName, "-r2")
}

func TestProposalBuilderGivesUpWhenEveryAttemptIsStale(t *testing.T) {
	vcs := newMockVCS()
	vcs.staleLeft = 4
	builder := NewProposalBuilder(vcs)
	item := testItem()

	_, err := builder.Build(context.Background(), item, testMapping(item.ID), testRoadmap())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBaseRevisionStale)
	assert.Equal(t, domain.ClassConcurrencyConflict, domain.Classify(err))
}

func TestProposalBuilderEscalatesPastForeignBranch(t *testing.T) {
	vcs := newMockVCS()
	item := testItem()
	roadmap := testRoadmap()

	// Someone else owns a branch with our deterministic name, and its
	// component file carries none of our update markers.
	branch := domain.BranchName(item.ID, "auth-service", 1)
	vcs.branches[branch] = "some-other-revision"

	builder := NewProposalBuilder(vcs)
	result, err := builder.Build(context.Background(), item, testMapping(item.ID), roadmap)
	require.NoError(t, err)

	// The foreign branch is left alone; the build lands on the next name.
	assert.Equal(t, domain.BranchName(item.ID, "auth-service", 2), result.Proposal.BranchName)
	assert.Equal(t, "some-other-revision", vcs.branches[branch])
}

func TestProposalBuilderGivesUpWhenEveryBranchIsForeign(t *testing.T) {
	vcs := newMockVCS()
	item := testItem()
	roadmap := testRoadmap()

	vcs.branches[domain.BranchName(item.ID, "auth-service", 1)] = "other-rev-1"
	vcs.branches[domain.BranchName(item.ID, "auth-service", 2)] = "other-rev-2"

	builder := NewProposalBuilder(vcs)
	_, err := builder.Build(context.Background(), item, testMapping(item.ID), roadmap)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBranchNotOurs)
	assert.Equal(t, domain.ClassConcurrencyConflict, domain.Classify(err))
}

func TestProposalBuilderResumesInterruptedBranch(t *testing.T) {
	vcs := newMockVCS()
	item := testItem()
	mapping := testMapping(item.ID)
	roadmap := testRoadmap()

	// A crash between the file commit and the proposal left our branch
	// with its head past the base revision and no proposal open.
	branch := domain.BranchName(item.ID, "auth-service", 1)
	vcs.branches[branch] = "head-moved"
	committed := renderUpdate("# Auth Service\n\nExisting notes.", item, mapping)
	vcs.files[branch+"!roadmap/auth-service.md"] = driven.FileContent{Content: committed, SHA: "sha-committed"}

	builder := NewProposalBuilder(vcs)
	result, err := builder.Build(context.Background(), item, mapping, roadmap)
	require.NoError(t, err)

	// The update marker identifies the branch as ours; the resume opens
	// the proposal on it instead of escalating or failing.
	assert.Equal(t, branch, result.Proposal.BranchName)
	assert.False(t, result.Reused)
	assert.Empty(t, result.SupersededID)

	file, ok := vcs.fileOn(branch, "roadmap/auth-service.md")
	require.True(t, ok)
	assert.Equal(t, "sha-committed", file.SHA, "committed content must not be rewritten")
}

func TestProposalBuilderSupersedesTakenOverBranch(t *testing.T) {
	vcs := newMockVCS()
	item := testItem()
	mapping := testMapping(item.ID)
	roadmap := testRoadmap()

	// An open proposal exists on our branch, but another actor rewrote
	// the branch and the update marker is gone.
	branch := domain.BranchName(item.ID, "auth-service", 1)
	vcs.branches[branch] = "rewritten"
	vcs.files[branch+"!roadmap/auth-service.md"] = driven.FileContent{Content: "# Auth Service\n\nRewritten by someone else.", SHA: "sha-rewritten"}
	staleID, err := vcs.OpenProposal(context.Background(), branch, "main", "old title", "old body")
	require.NoError(t, err)

	builder := NewProposalBuilder(vcs)
	result, err := builder.Build(context.Background(), item, mapping, roadmap)
	require.NoError(t, err)

	assert.Equal(t, domain.BranchName(item.ID, "auth-service", 2), result.Proposal.BranchName)
	assert.Equal(t, staleID, result.SupersededID)
	assert.NotEqual(t, staleID, result.Proposal.ID)
}

func TestRenderUpdateIsIdempotent(t *testing.T) {
	item := testItem()
	mapping := testMapping(item.ID)

	once := renderUpdate("# Auth Service\n", item, mapping)
	twice := renderUpdate(once, item, mapping)
	assert.Equal(t, once, twice)
}

func TestProvenanceBody(t *testing.T) {
	item := testItem()
	body := provenanceBody(item, testMapping(item.ID))

	assert.Contains(t, body, item.ID)
	assert.Contains(t, body, "90/100")
	assert.Contains(t, body, "auth-service")
	assert.Contains(t, body, "discusses single sign-on")
}
