package ratingflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/ministers/internal/model"
)

var (
	alice = model.Identity{UserID: "user-alice", Email: "alice@example.com"}
	anon  = model.Anonymous
)

// memoryGuard はテスト用のAnonymousGuard。
type memoryGuard struct {
	mu      sync.Mutex
	ids     map[string]bool
	readErr error
	markErr error
}

func newMemoryGuard(ids ...string) *memoryGuard {
	g := &memoryGuard{ids: make(map[string]bool)}
	for _, id := range ids {
		g.ids[id] = true
	}
	return g
}

func (g *memoryGuard) HasRated(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.readErr != nil {
		return false, g.readErr
	}
	return g.ids[id], nil
}

func (g *memoryGuard) MarkRated(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.markErr != nil {
		return g.markErr
	}
	g.ids[id] = true
	return nil
}

func (g *memoryGuard) list() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.ids))
	for id := range g.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// mockWriter はテスト用のRatingWriter。
type mockWriter struct {
	createFn func(ctx context.Context, ministerID string, value int) (*model.Aggregate, error)
	updateFn func(ctx context.Context, ministerID string, value int) (*model.Aggregate, error)
	calls    int
}

func (m *mockWriter) CreateRating(ctx context.Context, ministerID string, value int) (*model.Aggregate, error) {
	m.calls++
	return m.createFn(ctx, ministerID, value)
}

func (m *mockWriter) UpdateOwnRating(ctx context.Context, ministerID string, value int) (*model.Aggregate, error) {
	m.calls++
	return m.updateFn(ctx, ministerID, value)
}

type patch struct {
	ministerID string
	value      int
	agg        model.Aggregate
}

// recordingPatcher は適用されたパッチを記録する。
type recordingPatcher struct {
	patches []patch
}

func (p *recordingPatcher) ApplyRating(ministerID string, value int, agg model.Aggregate) {
	p.patches = append(p.patches, patch{ministerID, value, agg})
}

// recordingNotifier は通知を記録する。
type recordingNotifier struct {
	notices []Notice
}

func (n *recordingNotifier) Notify(notice Notice) {
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) last() Notice {
	return n.notices[len(n.notices)-1]
}

func okAggregate(ministerID string, value int) (*model.Aggregate, error) {
	return &model.Aggregate{MinisterID: ministerID, AverageRating: float64(value), RatingCount: 1}, nil
}

func TestResolver_AuthenticatedTakesPrecedence(t *testing.T) {
	guard := newMemoryGuard("m-1", "m-2")
	r := NewResolver(guard)
	ctx := context.Background()

	// 匿名の記録にあっても認証済みの判定はサーバーの評価記録のみで決まる
	verdict, err := r.Resolve(ctx, "m-1", alice, map[string]int{"m-1": 4})
	require.NoError(t, err)
	assert.Equal(t, Verdict{Status: AlreadyRated, Channel: model.ChannelAuthenticated, Value: 4}, verdict)

	verdict, err = r.Resolve(ctx, "m-2", alice, map[string]int{"m-1": 4})
	require.NoError(t, err)
	assert.Equal(t, Verdict{Status: NotRated, Channel: model.ChannelAuthenticated}, verdict)
}

func TestResolver_AuthenticatedIgnoresGuardErrors(t *testing.T) {
	guard := newMemoryGuard()
	guard.readErr = errors.New("disk failure")
	r := NewResolver(guard)

	verdict, err := r.Resolve(context.Background(), "m-1", alice, map[string]int{"m-1": 2})
	require.NoError(t, err)
	assert.True(t, verdict.Rated())
}

func TestResolver_AnonymousUsesGuard(t *testing.T) {
	r := NewResolver(newMemoryGuard("m-1"))
	ctx := context.Background()

	verdict, err := r.Resolve(ctx, "m-1", anon, map[string]int{})
	require.NoError(t, err)
	assert.Equal(t, Verdict{Status: AlreadyRated, Channel: model.ChannelAnonymous}, verdict)

	verdict, err = r.Resolve(ctx, "m-2", anon, map[string]int{"m-2": 5})
	require.NoError(t, err)
	assert.Equal(t, NotRated, verdict.Status)
	assert.Equal(t, model.ChannelAnonymous, verdict.Channel)
}

func TestResolver_AnonymousGuardError(t *testing.T) {
	guard := newMemoryGuard()
	guard.readErr = errors.New("disk failure")

	verdict, err := NewResolver(guard).Resolve(context.Background(), "m-1", anon, nil)
	require.Error(t, err)
	assert.False(t, verdict.Rated())
}

func TestSubmitter_RejectsOutOfRangeWithoutRemoteCall(t *testing.T) {
	for _, value := range []int{-1, 0, 6, 100} {
		writer := &mockWriter{}
		notifier := &recordingNotifier{}
		patcher := &recordingPatcher{}
		s := NewSubmitter(writer, newMemoryGuard(), patcher, notifier, nil)

		_, err := s.Submit(context.Background(), anon, "m-1", value)

		require.Error(t, err)
		assert.True(t, model.IsCode(err, model.ErrCodeInvalidInput))
		assert.Equal(t, model.KindInvalidInput, model.KindOf(err))
		assert.Zero(t, writer.calls, "value %d must not reach the network", value)
		assert.Empty(t, patcher.patches)
		assert.Equal(t, LevelError, notifier.last().Level)
	}
}

func TestSubmitter_AnonymousSuccessUnionsLocalSet(t *testing.T) {
	rq := require.New(t)
	guard := newMemoryGuard("m-0")
	patcher := &recordingPatcher{}
	writer := &mockWriter{createFn: func(_ context.Context, id string, v int) (*model.Aggregate, error) {
		return okAggregate(id, v)
	}}
	s := NewSubmitter(writer, guard, patcher, nil, nil)

	_, err := s.Submit(context.Background(), anon, "m-1", 5)
	rq.NoError(err)
	_, err = s.Submit(context.Background(), anon, "m-2", 3)
	rq.NoError(err)

	rq.Equal([]string{"m-0", "m-1", "m-2"}, guard.list())
	rq.Len(patcher.patches, 2)
	rq.Equal(patch{"m-1", 5, model.Aggregate{MinisterID: "m-1", AverageRating: 5, RatingCount: 1}}, patcher.patches[0])
	rq.Equal("m-2", patcher.patches[1].ministerID)
}

func TestSubmitter_AuthenticatedDoesNotTouchGuard(t *testing.T) {
	guard := newMemoryGuard()
	writer := &mockWriter{createFn: func(_ context.Context, id string, v int) (*model.Aggregate, error) {
		return okAggregate(id, v)
	}}
	s := NewSubmitter(writer, guard, &recordingPatcher{}, nil, nil)

	_, err := s.Submit(context.Background(), alice, "m-1", 4)
	require.NoError(t, err)
	assert.Empty(t, guard.list())
}

func TestSubmitter_RemoteFailureLeavesStateUnchanged(t *testing.T) {
	guard := newMemoryGuard()
	patcher := &recordingPatcher{}
	notifier := &recordingNotifier{}
	writer := &mockWriter{createFn: func(context.Context, string, int) (*model.Aggregate, error) {
		return nil, model.NewRemoteFailureError("unreachable")
	}}
	s := NewSubmitter(writer, guard, patcher, notifier, nil)

	_, err := s.Submit(context.Background(), anon, "m-1", 3)

	require.Error(t, err)
	assert.Equal(t, model.KindRemoteFailure, model.KindOf(err))
	assert.Empty(t, guard.list())
	assert.Empty(t, patcher.patches)
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, LevelError, notifier.notices[0].Level)

	// 失敗後も再試行できる
	writer.createFn = func(_ context.Context, id string, v int) (*model.Aggregate, error) { return okAggregate(id, v) }
	_, err = s.Submit(context.Background(), anon, "m-1", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"m-1"}, guard.list())
}

func TestSubmitter_GuardWriteFailureStillPatches(t *testing.T) {
	guard := newMemoryGuard()
	guard.markErr = errors.New("read-only file system")
	patcher := &recordingPatcher{}
	writer := &mockWriter{createFn: func(_ context.Context, id string, v int) (*model.Aggregate, error) {
		return okAggregate(id, v)
	}}
	s := NewSubmitter(writer, guard, patcher, nil, nil)

	_, err := s.Submit(context.Background(), anon, "m-1", 2)
	require.NoError(t, err)
	assert.Len(t, patcher.patches, 1)
}

func TestSubmitter_OneInFlightPerMinister(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	writer := &mockWriter{createFn: func(_ context.Context, id string, v int) (*model.Aggregate, error) {
		close(started)
		<-release
		return okAggregate(id, v)
	}}
	s := NewSubmitter(writer, newMemoryGuard(), &recordingPatcher{}, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), alice, "m-1", 5)
		done <- err
	}()
	<-started

	_, err := s.Submit(context.Background(), alice, "m-1", 4)
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, writer.calls)
}

func TestEditor_RequiresAuthenticatedExistingRating(t *testing.T) {
	e := NewEditor(&mockWriter{}, &recordingPatcher{}, nil, nil)

	err := e.Begin(anon, "m-1", map[string]int{"m-1": 3})
	assert.True(t, model.IsCode(err, model.ErrCodeUnauthorized))

	err = e.Begin(alice, "m-1", map[string]int{})
	assert.True(t, model.IsCode(err, model.ErrCodeRatingNotFound))

	_, editing := e.Editing("m-1")
	assert.False(t, editing)
}

func TestEditor_SuccessPatchesOnlyEditedMinister(t *testing.T) {
	rq := require.New(t)
	patcher := &recordingPatcher{}
	notifier := &recordingNotifier{}
	writer := &mockWriter{updateFn: func(_ context.Context, id string, v int) (*model.Aggregate, error) {
		return &model.Aggregate{MinisterID: id, AverageRating: 3.5, RatingCount: 2}, nil
	}}
	e := NewEditor(writer, patcher, notifier, nil)

	rq.NoError(e.Begin(alice, "m-1", map[string]int{"m-1": 5, "m-2": 1}))
	prior, editing := e.Editing("m-1")
	rq.True(editing)
	rq.Equal(5, prior)

	agg, err := e.Commit(context.Background(), alice, "m-1", 2)
	rq.NoError(err)
	rq.Equal(3.5, agg.AverageRating)

	rq.Equal([]patch{{"m-1", 2, model.Aggregate{MinisterID: "m-1", AverageRating: 3.5, RatingCount: 2}}}, patcher.patches)
	_, editing = e.Editing("m-1")
	rq.False(editing)
	rq.Equal(LevelInfo, notifier.last().Level)
}

func TestEditor_FailureStaysInEditMode(t *testing.T) {
	patcher := &recordingPatcher{}
	notifier := &recordingNotifier{}
	writer := &mockWriter{updateFn: func(context.Context, string, int) (*model.Aggregate, error) {
		return nil, errors.New("connection reset")
	}}
	e := NewEditor(writer, patcher, notifier, nil)

	require.NoError(t, e.Begin(alice, "m-1", map[string]int{"m-1": 4}))

	_, err := e.Commit(context.Background(), alice, "m-1", 1)
	require.Error(t, err)

	prior, editing := e.Editing("m-1")
	assert.True(t, editing)
	assert.Equal(t, 4, prior)
	assert.Empty(t, patcher.patches)
	assert.Equal(t, LevelError, notifier.last().Level)

	e.Cancel("m-1")
	_, editing = e.Editing("m-1")
	assert.False(t, editing)
}

func TestEditor_InvalidValueStaysInEditMode(t *testing.T) {
	writer := &mockWriter{}
	e := NewEditor(writer, &recordingPatcher{}, nil, nil)
	require.NoError(t, e.Begin(alice, "m-1", map[string]int{"m-1": 4}))

	_, err := e.Commit(context.Background(), alice, "m-1", 9)

	assert.True(t, model.IsCode(err, model.ErrCodeInvalidInput))
	assert.Zero(t, writer.calls)
	_, editing := e.Editing("m-1")
	assert.True(t, editing)
}

func TestEditor_CommitWithoutBegin(t *testing.T) {
	writer := &mockWriter{}
	e := NewEditor(writer, &recordingPatcher{}, nil, nil)

	_, err := e.Commit(context.Background(), alice, "m-1", 3)
	assert.True(t, model.IsCode(err, model.ErrCodeRatingNotFound))
	assert.Zero(t, writer.calls)
}

func TestMessageOf(t *testing.T) {
	apiErr := &model.APIError{Code: model.ErrCodeAlreadyRated, Message: "評価済みです。", Action: "編集してください。"}
	assert.Equal(t, "評価済みです。 編集してください。", messageOf(apiErr))
	assert.NotEmpty(t, messageOf(errors.New("dial tcp: refused")))
}
