package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compass-labs/roadsync/internal/core/domain"
)

func newItem(text string) *domain.ContentItem {
	return &domain.ContentItem{
		ID:         domain.Fingerprint(text),
		SourceKind: domain.SourceKindRawText,
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	item := newItem("hello")

	first, err := l.Upsert(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, domain.StageIngested, first.Stage)

	_, err = l.Advance(ctx, item.ID, domain.StageIngested, domain.StageNormalized, "test")
	require.NoError(t, err)

	// Second upsert returns the advanced record, not a reset one.
	second, err := l.Upsert(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, domain.StageNormalized, second.Stage)
}

func TestAdvance_CASSingleWinner(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	item := newItem("race")

	_, err := l.Upsert(ctx, item)
	require.NoError(t, err)

	const contenders = 16
	var wg sync.WaitGroup
	var successes, stales int
	var mu sync.Mutex

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Advance(ctx, item.ID, domain.StageIngested, domain.StageNormalized, "worker")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrStaleState):
				stales++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, contenders-1, stales)
}

func TestAdvance_IllegalTransition(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	item := newItem("x")

	_, err := l.Upsert(ctx, item)
	require.NoError(t, err)

	_, err = l.Advance(ctx, item.ID, domain.StageMapped, domain.StageNormalized, "test")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestAdvance_AppendsAudit(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	item := newItem("audited")

	_, err := l.Upsert(ctx, item)
	require.NoError(t, err)

	_, err = l.Advance(ctx, item.ID, domain.StageIngested, domain.StageNormalized, "worker-1")
	require.NoError(t, err)
	_, err = l.Advance(ctx, item.ID, domain.StageNormalized, domain.StageMapped, "worker-2")
	require.NoError(t, err)

	trail, err := l.AuditTrail(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, 1, trail[0].Seq)
	assert.Equal(t, 2, trail[1].Seq)
	assert.Equal(t, domain.StageIngested, trail[0].FromStage)
	assert.Equal(t, domain.StageMapped, trail[1].ToStage)
	assert.Equal(t, "worker-1", trail[0].Actor)
	assert.Less(t, trail[0].ID, trail[1].ID) // ULIDs sort by creation
}

func TestRecordFailure_Visible(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	item := newItem("failing")

	_, err := l.Upsert(ctx, item)
	require.NoError(t, err)

	err = l.RecordFailure(ctx, item.ID, domain.StageMapped, domain.ErrMalformedAIResponse)
	require.NoError(t, err)

	rec, err := l.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageFailed, rec.Stage)
	assert.Equal(t, domain.StageMapped, rec.FailedStage)
	assert.Contains(t, rec.LastError, "malformed AI response")
}

func TestRecordFailure_LeavesTerminalRecordsAlone(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	item := newItem("merged")

	_, err := l.Upsert(ctx, item)
	require.NoError(t, err)
	_, err = l.Advance(ctx, item.ID, domain.StageIngested, domain.StageClosedMerged, "reconciler")
	require.NoError(t, err)

	// A stale actor reporting a failure after the item closed must not
	// regress it.
	err = l.RecordFailure(ctx, item.ID, domain.StageMapped, domain.ErrCapabilityTimeout)
	assert.ErrorIs(t, err, domain.ErrStaleState)

	rec, err := l.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageClosedMerged, rec.Stage)
	assert.Empty(t, rec.LastError)
}

func TestMarkSuperseded(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	item := newItem("superseded")

	_, err := l.Upsert(ctx, item)
	require.NoError(t, err)
	require.NoError(t, l.AddProposal(ctx, item.ID, "42"))

	require.NoError(t, l.MarkSuperseded(ctx, item.ID, "42"))
	require.NoError(t, l.MarkSuperseded(ctx, item.ID, "42"))

	// A proposal an earlier run never recorded is added on the fly.
	require.NoError(t, l.MarkSuperseded(ctx, item.ID, "41"))

	rec, err := l.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"41", "42"}, rec.ProposalIDs)
	assert.ElementsMatch(t, []string{"41", "42"}, rec.SupersededIDs)

	assert.ErrorIs(t, l.MarkSuperseded(ctx, "missing", "42"), domain.ErrNotFound)
}

func TestAddProposal_Dedupes(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	item := newItem("proposals")

	_, err := l.Upsert(ctx, item)
	require.NoError(t, err)

	require.NoError(t, l.AddProposal(ctx, item.ID, "42"))
	require.NoError(t, l.AddProposal(ctx, item.ID, "42"))
	require.NoError(t, l.AddProposal(ctx, item.ID, "43"))

	rec, err := l.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"42", "43"}, rec.ProposalIDs)
}

func TestListByStage(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	a, b := newItem("a"), newItem("b")
	_, err := l.Upsert(ctx, a)
	require.NoError(t, err)
	_, err = l.Upsert(ctx, b)
	require.NoError(t, err)
	_, err = l.Advance(ctx, b.ID, domain.StageIngested, domain.StageNormalized, "test")
	require.NoError(t, err)

	ingested, err := l.ListByStage(ctx, domain.StageIngested)
	require.NoError(t, err)
	require.Len(t, ingested, 1)
	assert.Equal(t, a.ID, ingested[0].ItemID)
}

func TestItemStore_SaveTwiceNoop(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	item := newItem("bytes")
	item.Title = "first.txt"
	require.NoError(t, l.SaveItem(ctx, item))

	dup := newItem("bytes")
	dup.Title = "second.txt"
	require.NoError(t, l.SaveItem(ctx, dup))

	got, err := l.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "first.txt", got.Title)
}

func TestTextRoundTrip(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	ref, err := l.SaveText(ctx, "item-1", "normalised text")
	require.NoError(t, err)

	text, err := l.GetText(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "normalised text", text)

	_, err = l.GetText(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
