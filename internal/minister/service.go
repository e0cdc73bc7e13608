// Package minister は大臣カタログのドメインロジックを提供する。
package minister

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/ministers/internal/catalog"
	"github.com/hitoshi/ministers/internal/metrics"
	"github.com/hitoshi/ministers/internal/model"
	"github.com/hitoshi/ministers/internal/repository"
)

// WikiFetcher はWikipedia要約をその場で取得するインターフェース。
type WikiFetcher interface {
	Fetch(ctx context.Context, m model.Minister) (*model.WikiSummary, error)
}

// Service は大臣カタログのサービス層。
// 一覧・詳細の読み取り、管理者によるCRUD、Wikipedia要約の提供を担う。
type Service struct {
	repo     repository.MinisterRepository
	wikiRepo repository.WikiRepository
	fetcher  WikiFetcher
	metrics  metrics.MetricsCollector
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// wikiRepoとfetcherはnil可で、nilの場合Wikiは常にWIKI_NOT_FOUNDを返す。
func NewService(
	repo repository.MinisterRepository,
	wikiRepo repository.WikiRepository,
	fetcher WikiFetcher,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		wikiRepo: wikiRepo,
		fetcher:  fetcher,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		now:      time.Now,
	}
}

// WithMetrics はカタログ読み取りのレイテンシを記録するコレクターを設定する。
func (s *Service) WithMetrics(c metrics.MetricsCollector) *Service {
	s.metrics = c
	return s
}

// List はカタログ読み取りリクエストに従って大臣の一覧を返す。
func (s *Service) List(ctx context.Context, req catalog.Request) (*catalog.Page, error) {
	if !req.Order.Column.Valid() {
		return nil, model.NewInvalidInputError(fmt.Sprintf("order column %q", req.Order.Column))
	}
	if req.Range.From < 0 || req.Range.To < req.Range.From {
		return nil, model.NewInvalidInputError("range")
	}

	start := s.now()
	page, err := s.repo.List(ctx, req)
	if s.metrics != nil {
		s.metrics.RecordCatalogQuery(s.now().Sub(start))
	}
	if err != nil {
		return nil, fmt.Errorf("大臣一覧の取得に失敗しました: %w", err)
	}
	return page, nil
}

// Get は指定IDの大臣を返す。IDが不正な形式の場合も未検出として扱う。
func (s *Service) Get(ctx context.Context, id string) (*model.Minister, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewMinisterNotFoundError(id)
	}

	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("大臣の取得に失敗しました: %w", err)
	}
	if m == nil {
		return nil, model.NewMinisterNotFoundError(id)
	}
	return m, nil
}

// ListAll は管理画面用に全大臣を名前順で返す。
func (s *Service) ListAll(ctx context.Context) ([]model.Minister, error) {
	ministers, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("大臣一覧の取得に失敗しました: %w", err)
	}
	return ministers, nil
}

// Create は大臣を登録する。
func (s *Service) Create(ctx context.Context, in model.MinisterInput) (*model.Minister, error) {
	in = normalizeInput(in)
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	now := s.now()
	m := &model.Minister{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Party:     in.Party,
		Position:  in.Position,
		PhotoURL:  in.PhotoURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("大臣の登録に失敗しました: %w", err)
	}

	s.logger.Info("大臣を登録しました", slog.String("minister_id", m.ID), slog.String("name", m.Name))
	return m, nil
}

// Update は大臣の基本情報を更新し、集計値付きの最新状態を返す。
func (s *Service) Update(ctx context.Context, id string, in model.MinisterInput) (*model.Minister, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewMinisterNotFoundError(id)
	}
	in = normalizeInput(in)
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	ok, err := s.repo.Update(ctx, &model.Minister{
		ID:        id,
		Name:      in.Name,
		Party:     in.Party,
		Position:  in.Position,
		PhotoURL:  in.PhotoURL,
		UpdatedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("大臣の更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewMinisterNotFoundError(id)
	}

	return s.Get(ctx, id)
}

// Delete は大臣を削除する。関連する評価と要約キャッシュも削除される。
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewMinisterNotFoundError(id)
	}

	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("大臣の削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewMinisterNotFoundError(id)
	}

	s.logger.Info("大臣を削除しました", slog.String("minister_id", id))
	return nil
}

// Wiki は大臣のWikipedia要約を返す。
// キャッシュがなければその場で取得して保存する。記事が存在しない場合はWIKI_NOT_FOUNDを返す。
func (s *Service) Wiki(ctx context.Context, id string) (*model.WikiSummary, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.wikiRepo == nil {
		return nil, model.NewWikiNotFoundError(m.Name)
	}

	cached, err := s.wikiRepo.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("要約キャッシュの取得に失敗しました: %w", err)
	}
	if cached != nil {
		return presentSummary(cached, m.Name)
	}
	if s.fetcher == nil {
		return nil, model.NewWikiNotFoundError(m.Name)
	}

	summary, err := s.fetcher.Fetch(ctx, *m)
	if err != nil {
		s.logger.Warn("Wikipedia要約の取得に失敗しました",
			slog.String("minister_id", id),
			slog.String("error", err.Error()),
		)
		return nil, model.NewWikiNotFoundError(m.Name)
	}

	if err := s.wikiRepo.Upsert(ctx, summary); err != nil {
		// 保存に失敗しても取得結果は返す
		s.logger.Warn("要約キャッシュの保存に失敗しました",
			slog.String("minister_id", id),
			slog.String("error", err.Error()),
		)
	}
	return presentSummary(summary, m.Name)
}

// presentSummary はHTMLが空の要約（記事なしの記録）を未検出エラーに変換する。
func presentSummary(summary *model.WikiSummary, name string) (*model.WikiSummary, error) {
	if summary.HTML == "" {
		return nil, model.NewWikiNotFoundError(name)
	}
	return summary, nil
}

func (s *Service) validateInput(in model.MinisterInput) error {
	if err := s.validate.Struct(in); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return model.NewInvalidInputError(fmt.Sprintf("%s (%s)", strings.ToLower(verrs[0].Field()), verrs[0].Tag()))
		}
		return model.NewInvalidInputError(err.Error())
	}
	return nil
}

// normalizeInput は前後の空白を除去し、空の写真URLをnilにする。
func normalizeInput(in model.MinisterInput) model.MinisterInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Party = strings.TrimSpace(in.Party)
	in.Position = strings.TrimSpace(in.Position)
	if in.PhotoURL != nil {
		photo := strings.TrimSpace(*in.PhotoURL)
		if photo == "" {
			in.PhotoURL = nil
		} else {
			in.PhotoURL = &photo
		}
	}
	return in
}
