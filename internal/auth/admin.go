package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hitoshi/ministers/internal/repository"
)

// DefaultAdminCacheTTL は管理者判定結果をキャッシュする期間。
const DefaultAdminCacheTTL = time.Minute

// AdminChecker はadminsテーブルを参照して管理者権限を判定する。
// 判定結果は短時間キャッシュする。
type AdminChecker struct {
	repo  repository.AdminRepository
	cache *cache.Cache
}

// NewAdminChecker はAdminCheckerを生成する。ttlが0以下の場合はDefaultAdminCacheTTLを使う。
func NewAdminChecker(repo repository.AdminRepository, ttl time.Duration) *AdminChecker {
	if ttl <= 0 {
		ttl = DefaultAdminCacheTTL
	}
	return &AdminChecker{
		repo:  repo,
		cache: cache.New(ttl, 2*ttl),
	}
}

// IsAdmin はユーザーが管理者かを返す。
func (a *AdminChecker) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if v, ok := a.cache.Get(userID); ok {
		return v.(bool), nil
	}

	isAdmin, err := a.repo.IsAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("管理者権限の確認に失敗しました: %w", err)
	}

	a.cache.SetDefault(userID, isAdmin)
	return isAdmin, nil
}
