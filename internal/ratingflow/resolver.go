// Package ratingflow は評価済み判定・評価の新規登録・評価の編集を扱う。
// 認証済みユーザーの判定はサーバーの評価記録を、匿名の判定は端末ローカルの記録を使い、
// どちらの経路による判定かをVerdictに残す。
package ratingflow

import (
	"context"
	"fmt"

	"github.com/hitoshi/ministers/internal/model"
)

// AnonymousGuard は匿名評価の重複をベストエフォートで防ぐ端末ローカルの記録。
// サーバー側の一意制約とは別物で、記録を消去すれば再評価できる。
type AnonymousGuard interface {
	HasRated(ctx context.Context, ministerID string) (bool, error)
	MarkRated(ctx context.Context, ministerID string) error
}

// Status は評価済みかどうか。
type Status int

const (
	NotRated Status = iota
	AlreadyRated
)

func (s Status) String() string {
	if s == AlreadyRated {
		return "AlreadyRated"
	}
	return "NotRated"
}

// Verdict は評価済み判定の結果。Channelは判定に使った経路。
// Valueは認証済みで評価済みの場合のみ自分の評価値を持つ。
type Verdict struct {
	Status  Status
	Channel model.Channel
	Value   int
}

// Rated は評価済みかを返す。
func (v Verdict) Rated() bool {
	return v.Status == AlreadyRated
}

// Resolver は大臣ごとの評価済み判定を行う。
type Resolver struct {
	guard AnonymousGuard
}

// NewResolver はResolverを生成する。
func NewResolver(guard AnonymousGuard) *Resolver {
	return &Resolver{guard: guard}
}

// Resolve は操作主体が大臣を評価済みかを判定する。
// 認証済みの場合はratingsのみを参照し、匿名の記録は参照しない。
func (r *Resolver) Resolve(ctx context.Context, ministerID string, identity model.Identity, ratings map[string]int) (Verdict, error) {
	if identity.IsAuthenticated() {
		if value, ok := ratings[ministerID]; ok {
			return Verdict{Status: AlreadyRated, Channel: model.ChannelAuthenticated, Value: value}, nil
		}
		return Verdict{Status: NotRated, Channel: model.ChannelAuthenticated}, nil
	}

	rated, err := r.guard.HasRated(ctx, ministerID)
	if err != nil {
		return Verdict{Status: NotRated, Channel: model.ChannelAnonymous}, fmt.Errorf("匿名評価の記録を読み込めません: %w", err)
	}
	if rated {
		return Verdict{Status: AlreadyRated, Channel: model.ChannelAnonymous}, nil
	}
	return Verdict{Status: NotRated, Channel: model.ChannelAnonymous}, nil
}
