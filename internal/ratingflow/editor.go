package ratingflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/ministers/internal/logger"
	"github.com/hitoshi/ministers/internal/model"
)

// Editor は認証済みユーザーによる自分の評価の編集フロー。
// 編集モードは大臣ごとに保持し、失敗時は編集モードのまま元の値を保つ。
type Editor struct {
	writer   RatingWriter
	patcher  Patcher
	notifier Notifier
	logger   *slog.Logger
	inflight inflight

	mu      sync.Mutex
	editing map[string]int
}

// NewEditor はEditorを生成する。
func NewEditor(writer RatingWriter, patcher Patcher, notifier Notifier, l *slog.Logger) *Editor {
	if notifier == nil {
		notifier = NopNotifier
	}
	if l == nil {
		l = slog.Default()
	}
	return &Editor{
		writer:   writer,
		patcher:  patcher,
		notifier: notifier,
		logger:   l,
		editing:  make(map[string]int),
	}
}

// Begin は編集モードに入る。認証済みで、かつ評価済みの大臣のみ対象。
func (e *Editor) Begin(identity model.Identity, ministerID string, ratings map[string]int) error {
	if !identity.IsAuthenticated() {
		return model.NewUnauthorizedError()
	}
	prior, ok := ratings[ministerID]
	if !ok {
		return model.NewRatingNotFoundError()
	}

	e.mu.Lock()
	e.editing[ministerID] = prior
	e.mu.Unlock()
	return nil
}

// Editing は編集モード中かと編集前の値を返す。
func (e *Editor) Editing(ministerID string) (prior int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prior, ok = e.editing[ministerID]
	return prior, ok
}

// Cancel は編集モードを終了する。
func (e *Editor) Cancel(ministerID string) {
	e.mu.Lock()
	delete(e.editing, ministerID)
	e.mu.Unlock()
}

// Commit は新しい評価値を送信する。成功時のみ編集モードを終了する。
func (e *Editor) Commit(ctx context.Context, identity model.Identity, ministerID string, value int) (*model.Aggregate, error) {
	if !identity.IsAuthenticated() {
		return nil, model.NewUnauthorizedError()
	}
	if _, ok := e.Editing(ministerID); !ok {
		return nil, model.NewRatingNotFoundError()
	}
	if !model.ValidRatingValue(value) {
		err := model.NewInvalidRatingError(value)
		notifyError(e.notifier, err)
		return nil, err
	}
	if !e.inflight.acquire(ministerID) {
		return nil, ErrInFlight
	}
	defer e.inflight.release(ministerID)

	agg, err := e.writer.UpdateOwnRating(ctx, ministerID, value)
	if err != nil {
		e.logger.Warn("rating update failed",
			slog.String("minister_id", ministerID),
			logger.Err(err),
		)
		notifyError(e.notifier, err)
		return nil, err
	}

	e.patcher.ApplyRating(ministerID, value, *agg)
	e.Cancel(ministerID)
	notifyInfo(e.notifier, "評価を更新しました。")
	return agg, nil
}
