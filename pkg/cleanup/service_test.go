package cleanup

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/pkg/models"
	"github.com/specforge/specforge/pkg/mutation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedProposal creates a proposal, optionally driving it to a terminal state.
// Tests control "age" through the purge cutoff instead of mutating timestamps.
func seedProposal(t *testing.T, store *mutation.MemoryStore, settled bool) string {
	t.Helper()
	ctx := context.Background()
	p, err := store.Create(ctx, &models.MutationProposal{
		SpecID:          "spec-1",
		UserID:          "u1",
		OperationType:   models.OperationUpdate,
		ProposedChanges: &models.ProposedChange{},
	})
	require.NoError(t, err)

	if settled {
		_, err = store.Transition(ctx, p.ProposalID, models.ProposalStatusProposed, models.ProposalStatusCancelled)
		require.NoError(t, err)
	}
	return p.ProposalID
}

func TestPurgeRemovesOnlySettledProposals(t *testing.T) {
	store := mutation.NewMemoryStore()
	ctx := context.Background()

	settled := seedProposal(t, store, true)
	inflight := seedProposal(t, store, false)

	// Cutoff in the future: everything settled is "old enough".
	count, err := store.PurgeSettled(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = store.Get(ctx, settled)
	assert.ErrorIs(t, err, mutation.ErrProposalNotFound)

	kept, err := store.Get(ctx, inflight)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusProposed, kept.Status)
}

func TestPurgeHonorsRetentionWindow(t *testing.T) {
	store := mutation.NewMemoryStore()
	ctx := context.Background()

	settled := seedProposal(t, store, true)

	// Cutoff in the past: the proposal is too fresh to purge.
	count, err := store.PurgeSettled(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.Get(ctx, settled)
	require.NoError(t, err)
}

func TestServiceLifecycle(t *testing.T) {
	store := mutation.NewMemoryStore()
	seedProposal(t, store, true)

	// Zero retention means everything settled is past the window as soon
	// as the first purge runs.
	svc := NewService(store, 0, time.Hour, testLogger())
	svc.Start(context.Background())

	require.Eventually(t, func() bool {
		list, err := store.List(context.Background(), nil)
		return err == nil && len(list) == 0
	}, time.Second, 10*time.Millisecond)

	svc.Stop()
	// Stop is idempotent.
	svc.Stop()
}
