package model

import "time"

const (
	// MinRatingValue は評価値の下限。
	MinRatingValue = 1
	// MaxRatingValue は評価値の上限。
	MaxRatingValue = 5
)

// ValidRatingValue は評価値が1〜5の範囲内かを判定する。
func ValidRatingValue(v int) bool {
	return v >= MinRatingValue && v <= MaxRatingValue
}

// Rating は1件の評価レコードを表す。
// UserIDがnilの場合は匿名評価で、サーバー側での重複排除は行わない。
type Rating struct {
	ID         string
	MinisterID string
	Value      int
	UserID     *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Aggregate は評価書き込み後にサーバーが返す権威ある集計値。
type Aggregate struct {
	MinisterID    string
	AverageRating float64
	RatingCount   int
}

// HistoryEntry は評価履歴の1行。評価と大臣情報を結合したもの。
type HistoryEntry struct {
	RatingID         string
	MinisterID       string
	Value            int
	CreatedAt        time.Time
	MinisterName     string
	MinisterPosition string
	MinisterPhotoURL *string
}

// Identity は現在の操作主体を表す。
// ゼロ値は匿名（Anonymous）で、UserIDが空でなければ認証済み。
type Identity struct {
	UserID string
	Email  string
}

// Anonymous は匿名のIdentity。
var Anonymous = Identity{}

// IsAuthenticated は認証済みかを返す。
func (i Identity) IsAuthenticated() bool {
	return i.UserID != ""
}

// Channel は評価がどの経路で扱われるかを表す。
type Channel string

const (
	// ChannelAuthenticated はサーバー側でユーザーに紐付く評価。
	ChannelAuthenticated Channel = "authenticated"
	// ChannelAnonymous はクライアント端末のローカル記録で重複を防ぐ匿名評価。
	ChannelAnonymous Channel = "anonymous"
)

// Channel はIdentityに対応する評価経路を返す。
func (i Identity) Channel() Channel {
	if i.IsAuthenticated() {
		return ChannelAuthenticated
	}
	return ChannelAnonymous
}
