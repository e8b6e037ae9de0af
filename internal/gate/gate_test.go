package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/holdings-ingest/internal/types"
	"github.com/ksred/holdings-ingest/internal/watchlist"
)

type fakeStore struct {
	existing map[string]bool
	calls    int
	err      error
}

func (f *fakeStore) FilingExists(_ context.Context, accession string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.existing[accession], nil
}

func desc(accession, cik string) *types.FilingDescriptor {
	return &types.FilingDescriptor{AccessionNumber: accession, CIK: types.PadCIK(cik), FormType: "13F-HR"}
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{existing: map[string]bool{"0001067983-24-000002": true}}
	s := NewSession(store, watchlist.NewSnapshot("1067983"))

	d, err := s.Evaluate(ctx, desc("0000102909-24-000001", "102909"))
	require.NoError(t, err)
	assert.Equal(t, Irrelevant, d)
	assert.Zero(t, store.calls, "untracked filers never hit the store")

	d, err = s.Evaluate(ctx, desc("0001067983-24-000001", "1067983"))
	require.NoError(t, err)
	assert.Equal(t, Admitted, d)
	assert.False(t, s.Seen("0001067983-24-000001"), "admission alone does not mark seen")

	d, err = s.Evaluate(ctx, desc("0001067983-24-000002", "1067983"))
	require.NoError(t, err)
	assert.Equal(t, AlreadyProcessed, d)
	assert.True(t, s.Seen("0001067983-24-000002"), "store hit is recorded")

	calls := store.calls
	d, err = s.Evaluate(ctx, desc("0001067983-24-000002", "1067983"))
	require.NoError(t, err)
	assert.Equal(t, AlreadyProcessed, d)
	assert.Equal(t, calls, store.calls, "seen set answers without the store")
}

func TestEvaluate_MarkSeenAfterIngest(t *testing.T) {
	ctx := context.Background()
	s := NewSession(&fakeStore{}, watchlist.NewSnapshot("1067983"))
	filing := desc("0001067983-24-000001", "1067983")

	d, err := s.Evaluate(ctx, filing)
	require.NoError(t, err)
	require.Equal(t, Admitted, d)

	s.MarkSeen(filing.AccessionNumber)
	d, err = s.Evaluate(ctx, filing)
	require.NoError(t, err)
	assert.Equal(t, AlreadyProcessed, d)
	assert.Equal(t, 1, s.SeenCount())
}

func TestEvaluate_WatchListSwap(t *testing.T) {
	ctx := context.Background()
	s := NewSession(&fakeStore{}, watchlist.NewSnapshot("1067983"))
	filing := desc("0001364742-24-000001", "1364742")

	d, err := s.Evaluate(ctx, filing)
	require.NoError(t, err)
	assert.Equal(t, Irrelevant, d)

	s.SetWatchList(watchlist.NewSnapshot("1067983", "1364742"))
	d, err = s.Evaluate(ctx, filing)
	require.NoError(t, err)
	assert.Equal(t, Admitted, d)
}

func TestEvaluate_StoreError(t *testing.T) {
	boom := errors.New("connection refused")
	s := NewSession(&fakeStore{err: boom}, watchlist.NewSnapshot("1067983"))

	d, err := s.Evaluate(context.Background(), desc("0001067983-24-000001", "1067983"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Unseen, d)
	assert.Zero(t, s.SeenCount())
}

func TestEvaluate_NilWatchList(t *testing.T) {
	s := NewSession(&fakeStore{}, nil)
	d, err := s.Evaluate(context.Background(), desc("0001067983-24-000001", "1067983"))
	require.NoError(t, err)
	assert.Equal(t, Irrelevant, d)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "admitted", Admitted.String())
	assert.Equal(t, "irrelevant", Irrelevant.String())
	assert.Equal(t, "already_processed", AlreadyProcessed.String())
	assert.Equal(t, "unseen", Unseen.String())
}
