package ratingflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/ministers/internal/logger"
	"github.com/hitoshi/ministers/internal/model"
)

// ErrInFlight は同じ大臣への書き込みが処理中の場合に返される。
var ErrInFlight = errors.New("この大臣への評価を送信中です")

// RatingWriter は評価の書き込みエンドポイント。
// いずれも書き込み後の権威ある集計値を返す。
type RatingWriter interface {
	CreateRating(ctx context.Context, ministerID string, value int) (*model.Aggregate, error)
	UpdateOwnRating(ctx context.Context, ministerID string, value int) (*model.Aggregate, error)
}

// Patcher は書き込み成功後に表示中の1件の大臣と自分の評価値を更新する。
type Patcher interface {
	ApplyRating(ministerID string, value int, agg model.Aggregate)
}

// inflight は大臣ごとに同時に1件の書き込みだけを許可する。
type inflight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func (f *inflight) acquire(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ids == nil {
		f.ids = make(map[string]struct{})
	}
	if _, busy := f.ids[id]; busy {
		return false
	}
	f.ids[id] = struct{}{}
	return true
}

func (f *inflight) release(id string) {
	f.mu.Lock()
	delete(f.ids, id)
	f.mu.Unlock()
}

// Submitter は新規評価の登録フロー。
type Submitter struct {
	writer   RatingWriter
	guard    AnonymousGuard
	patcher  Patcher
	notifier Notifier
	logger   *slog.Logger
	inflight inflight
}

// NewSubmitter はSubmitterを生成する。
func NewSubmitter(writer RatingWriter, guard AnonymousGuard, patcher Patcher, notifier Notifier, l *slog.Logger) *Submitter {
	if notifier == nil {
		notifier = NopNotifier
	}
	if l == nil {
		l = slog.Default()
	}
	return &Submitter{writer: writer, guard: guard, patcher: patcher, notifier: notifier, logger: l}
}

// Submit は評価を登録する。
// 評価値が1〜5の範囲外の場合はINVALID_INPUTを返し、リモート呼び出しを行わない。
// 失敗時はローカル状態を変更せずに通知し、エラーを返す。
func (s *Submitter) Submit(ctx context.Context, identity model.Identity, ministerID string, value int) (*model.Aggregate, error) {
	if !model.ValidRatingValue(value) {
		err := model.NewInvalidRatingError(value)
		notifyError(s.notifier, err)
		return nil, err
	}
	if !s.inflight.acquire(ministerID) {
		return nil, ErrInFlight
	}
	defer s.inflight.release(ministerID)

	agg, err := s.writer.CreateRating(ctx, ministerID, value)
	if err != nil {
		s.logger.Warn("rating submission failed",
			slog.String("minister_id", ministerID),
			slog.String("channel", string(identity.Channel())),
			logger.Err(err),
		)
		notifyError(s.notifier, err)
		return nil, err
	}

	if !identity.IsAuthenticated() {
		if err := s.guard.MarkRated(ctx, ministerID); err != nil {
			// サーバーへの登録は完了しているため表示の更新は続ける
			s.logger.Error("failed to record anonymous rating",
				slog.String("minister_id", ministerID),
				logger.Err(err),
			)
		}
	}

	s.patcher.ApplyRating(ministerID, value, *agg)
	notifyInfo(s.notifier, "評価を送信しました。")
	return agg, nil
}
