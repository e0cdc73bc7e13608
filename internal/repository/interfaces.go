// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/ministers/internal/catalog"
	"github.com/hitoshi/ministers/internal/model"
)

var (
	// ErrDuplicateRating は認証済みユーザーが同じ大臣を再度評価しようとした場合に返される。
	ErrDuplicateRating = errors.New("rating already exists for this user")
	// ErrMinisterMissing は評価対象の大臣が存在しない場合に返される。
	ErrMinisterMissing = errors.New("minister does not exist")
)

// MinisterRepository は大臣カタログの永続化インターフェース。
type MinisterRepository interface {
	// List はカタログ読み取りリクエストに従って大臣の一覧を集計値付きで取得する。
	// req.CountExactがtrueの場合はフィルタ後の総件数も返す。
	List(ctx context.Context, req catalog.Request) (*catalog.Page, error)

	// FindByID は指定IDの大臣を集計値付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Minister, error)

	// ListAll は全大臣を名前順で取得する。管理画面用。
	ListAll(ctx context.Context) ([]model.Minister, error)

	// Create は大臣を作成する。
	Create(ctx context.Context, minister *model.Minister) error

	// Update は大臣の基本情報を更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, minister *model.Minister) (bool, error)

	// Delete は大臣を削除する。関連するratingsとminister_wikiはCASCADE削除される。
	// 対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
}

// RatingRepository は評価の永続化インターフェース。
// 書き込み系はすべて同一トランザクション内で再計算した集計値を返す。
type RatingRepository interface {
	// Create は評価を作成する。
	// 認証済みユーザーの重複はErrDuplicateRating、大臣が存在しない場合はErrMinisterMissingを返す。
	Create(ctx context.Context, rating *model.Rating) (*model.Aggregate, error)

	// UpdateByMinister はユーザー自身の指定大臣への評価を更新する。対象がない場合はnilを返す。
	UpdateByMinister(ctx context.Context, ministerID, userID string, value int, now time.Time) (*model.Aggregate, error)

	// UpdateByID は評価IDで評価を更新する。userIDの所有する行のみが対象で、対象がない場合はnilを返す。
	UpdateByID(ctx context.Context, ratingID, userID string, value int, now time.Time) (*model.Aggregate, error)

	// ValuesByUser はユーザーの評価値を大臣IDをキーとするマップで返す。
	ValuesByUser(ctx context.Context, userID string) (map[string]int, error)

	// HistoryByUser はユーザーの評価履歴を大臣情報付きで作成日時の降順に返す。
	HistoryByUser(ctx context.Context, userID string) ([]model.HistoryEntry, error)
}

// AdminRepository は管理者権限の参照インターフェース。
type AdminRepository interface {
	// IsAdmin はユーザーが管理者かを返す。
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// WikiRepository はWikipedia要約キャッシュの永続化インターフェース。
type WikiRepository interface {
	// Find は大臣の要約キャッシュを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, ministerID string) (*model.WikiSummary, error)

	// Upsert は要約キャッシュを冪等に保存する。
	Upsert(ctx context.Context, summary *model.WikiSummary) error

	// ListNeedingFetch は要約が未取得、またはstaleBeforeより古い大臣を取得する。
	// 未取得を優先し、次にfetched_atが古い順に返す。
	ListNeedingFetch(ctx context.Context, staleBefore time.Time, limit int) ([]model.Minister, error)
}
