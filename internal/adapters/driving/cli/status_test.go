package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compass-labs/roadsync/internal/adapters/driven/ledger/memory"
	"github.com/compass-labs/roadsync/internal/core/domain"
)

// seedLedger builds a memory ledger with one item advanced to Mapped.
func seedLedger(t *testing.T) (*memory.Ledger, string) {
	t.Helper()
	ledger := memory.NewLedger()
	ctx := context.Background()

	item := &domain.ContentItem{
		ID:         domain.Fingerprint("status test content"),
		SourceKind: domain.SourceKindRawText,
		Title:      "notes.txt",
		CreatedAt:  time.Now(),
	}
	_, err := ledger.Upsert(ctx, item)
	require.NoError(t, err)
	_, err = ledger.Advance(ctx, item.ID, domain.StageIngested, domain.StageNormalized, "test")
	require.NoError(t, err)
	_, err = ledger.Advance(ctx, item.ID, domain.StageNormalized, domain.StageMapped, "test")
	require.NoError(t, err)
	return ledger, item.ID
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestStatusCmd_ListsItems(t *testing.T) {
	oldLedger := ledgerStore
	ledger, itemID := seedLedger(t)
	ledgerStore = ledger
	defer func() { ledgerStore = oldLedger }()

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, itemID[:12])
	assert.Contains(t, out, string(domain.StageMapped))
}

func TestStatusCmd_ShowsItemWithHistory(t *testing.T) {
	oldLedger := ledgerStore
	ledger, itemID := seedLedger(t)
	ledgerStore = ledger
	defer func() { ledgerStore = oldLedger }()

	out, err := execute(t, "status", itemID)
	require.NoError(t, err)
	assert.Contains(t, out, itemID)
	assert.Contains(t, out, "History:")
	assert.Contains(t, out, string(domain.StageIngested))
}

func TestStatusCmd_UnknownItem(t *testing.T) {
	oldLedger := ledgerStore
	ledger, _ := seedLedger(t)
	ledgerStore = ledger
	defer func() { ledgerStore = oldLedger }()

	_, err := execute(t, "status", "no-such-item")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatusCmd_NotConfigured(t *testing.T) {
	oldLedger := ledgerStore
	ledgerStore = nil
	defer func() { ledgerStore = oldLedger }()

	_, err := execute(t, "status")
	assert.Error(t, err)
}

func TestStatusCmd_EmptyLedger(t *testing.T) {
	oldLedger := ledgerStore
	ledgerStore = memory.NewLedger()
	defer func() { ledgerStore = oldLedger }()

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No items in the ledger.")
}
