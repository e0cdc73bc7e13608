// Package rating は評価の登録・編集・参照のドメインロジックを提供する。
package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ministers/internal/metrics"
	"github.com/hitoshi/ministers/internal/model"
	"github.com/hitoshi/ministers/internal/repository"
)

// Service は評価のサービス層。
// すべての書き込みは再計算済みの集計値を返す。
type Service struct {
	repo    repository.RatingRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。collectorはnil可。
func NewService(repo repository.RatingRepository, collector metrics.MetricsCollector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

// Rate は大臣への新規評価を登録する。
// 認証済みの場合はユーザーに紐付け、同一大臣への2回目はALREADY_RATEDを返す。
// 匿名の場合はサーバー側で重複を判定しない。
func (s *Service) Rate(ctx context.Context, identity model.Identity, ministerID string, value int) (*model.Aggregate, error) {
	if !model.ValidRatingValue(value) {
		return nil, model.NewInvalidRatingError(value)
	}
	if _, err := uuid.Parse(ministerID); err != nil {
		return nil, model.NewMinisterNotFoundError(ministerID)
	}

	now := s.now()
	r := &model.Rating{
		ID:         uuid.NewString(),
		MinisterID: ministerID,
		Value:      value,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if identity.IsAuthenticated() {
		userID := identity.UserID
		r.UserID = &userID
	}

	agg, err := s.repo.Create(ctx, r)
	switch {
	case errors.Is(err, repository.ErrDuplicateRating):
		return nil, model.NewAlreadyRatedError()
	case errors.Is(err, repository.ErrMinisterMissing):
		return nil, model.NewMinisterNotFoundError(ministerID)
	case err != nil:
		return nil, fmt.Errorf("評価の登録に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordRatingSubmitted(string(identity.Channel()))
	}
	s.logger.Debug("評価を登録しました",
		slog.String("minister_id", ministerID),
		slog.String("channel", string(identity.Channel())),
	)
	return agg, nil
}

// UpdateOwn は認証済みユーザー自身の、指定大臣への評価を変更する。
func (s *Service) UpdateOwn(ctx context.Context, identity model.Identity, ministerID string, value int) (*model.Aggregate, error) {
	if !identity.IsAuthenticated() {
		return nil, model.NewUnauthorizedError()
	}
	if !model.ValidRatingValue(value) {
		return nil, model.NewInvalidRatingError(value)
	}
	if _, err := uuid.Parse(ministerID); err != nil {
		return nil, model.NewRatingNotFoundError()
	}

	agg, err := s.repo.UpdateByMinister(ctx, ministerID, identity.UserID, value, s.now())
	if err != nil {
		return nil, fmt.Errorf("評価の更新に失敗しました: %w", err)
	}
	if agg == nil {
		return nil, model.NewRatingNotFoundError()
	}

	s.recordUpdated()
	return agg, nil
}

// UpdateByID は評価履歴から評価IDを指定して評価を変更する。
// 他ユーザーの評価は存在しないものとして扱う。
func (s *Service) UpdateByID(ctx context.Context, identity model.Identity, ratingID string, value int) (*model.Aggregate, error) {
	if !identity.IsAuthenticated() {
		return nil, model.NewUnauthorizedError()
	}
	if !model.ValidRatingValue(value) {
		return nil, model.NewInvalidRatingError(value)
	}
	if _, err := uuid.Parse(ratingID); err != nil {
		return nil, model.NewRatingNotFoundError()
	}

	agg, err := s.repo.UpdateByID(ctx, ratingID, identity.UserID, value, s.now())
	if err != nil {
		return nil, fmt.Errorf("評価の更新に失敗しました: %w", err)
	}
	if agg == nil {
		return nil, model.NewRatingNotFoundError()
	}

	s.recordUpdated()
	return agg, nil
}

// MyRatings は認証済みユーザーの評価値を大臣IDをキーとするマップで返す。
func (s *Service) MyRatings(ctx context.Context, identity model.Identity) (map[string]int, error) {
	if !identity.IsAuthenticated() {
		return nil, model.NewUnauthorizedError()
	}

	values, err := s.repo.ValuesByUser(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("評価一覧の取得に失敗しました: %w", err)
	}
	return values, nil
}

// History は認証済みユーザーの評価履歴を新しい順に返す。
func (s *Service) History(ctx context.Context, identity model.Identity) ([]model.HistoryEntry, error) {
	if !identity.IsAuthenticated() {
		return nil, model.NewUnauthorizedError()
	}

	entries, err := s.repo.HistoryByUser(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("評価履歴の取得に失敗しました: %w", err)
	}
	return entries, nil
}

func (s *Service) recordUpdated() {
	if s.metrics != nil {
		s.metrics.RecordRatingUpdated()
	}
}
