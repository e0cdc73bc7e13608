package localstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStore_EmptyState(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	ids, err := s.RatedMinisters(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	rated, err := s.HasRated(ctx, "m-1")
	require.NoError(t, err)
	assert.False(t, rated)

	seen, err := s.HasSeenWelcome(ctx)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestStore_MarkRated_KeepsPreviousEntries(t *testing.T) {
	rq := require.New(t)
	s, _ := openTestStore(t)
	ctx := context.Background()

	rq.NoError(s.MarkRated(ctx, "m-1"))
	rq.NoError(s.MarkRated(ctx, "m-2"))
	rq.NoError(s.MarkRated(ctx, "m-1"))

	ids, err := s.RatedMinisters(ctx)
	rq.NoError(err)
	rq.Equal([]string{"m-1", "m-2"}, ids)

	for _, id := range []string{"m-1", "m-2"} {
		rated, err := s.HasRated(ctx, id)
		rq.NoError(err)
		rq.True(rated, id)
	}
}

func TestStore_MarkRated_MergesWithExistingValue(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyRatedMinisters, `["m-9","m-3"]`))
	require.NoError(t, s.MarkRated(ctx, "m-5"))

	ids, err := s.RatedMinisters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m-3", "m-5", "m-9"}, ids)
}

func TestStore_CorruptValueIsError(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyRatedMinisters, `not json`))

	_, err := s.HasRated(ctx, "m-1")
	require.Error(t, err)
	require.Error(t, s.MarkRated(ctx, "m-1"))

	raw, ok, err := s.Get(ctx, KeyRatedMinisters)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "not json", raw)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	rq := require.New(t)
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	rq.NoError(err)
	rq.NoError(s.MarkRated(ctx, "m-1"))
	rq.NoError(s.MarkWelcomeSeen(ctx))
	rq.NoError(s.Close())

	s, err = Open(ctx, path)
	rq.NoError(err)
	defer s.Close()

	rated, err := s.HasRated(ctx, "m-1")
	rq.NoError(err)
	rq.True(rated)

	seen, err := s.HasSeenWelcome(ctx)
	rq.NoError(err)
	rq.True(seen)
}
