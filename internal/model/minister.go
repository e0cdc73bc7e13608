// Package model はドメインモデルを定義する。
package model

import "time"

// Minister は評価対象となる大臣（カタログのエントリ）を表す。
// AverageRatingとRatingCountはratingsから集計される派生値で、書き込み後に再計算される。
type Minister struct {
	ID            string
	Name          string
	Party         string
	Position      string
	PhotoURL      *string
	AverageRating float64
	RatingCount   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WithAggregate は集計値だけを差し替えたコピーを返す。
func (m Minister) WithAggregate(agg Aggregate) Minister {
	m.AverageRating = agg.AverageRating
	m.RatingCount = agg.RatingCount
	return m
}

// MinisterInput は管理者による大臣の作成・更新入力。
type MinisterInput struct {
	Name     string  `validate:"required,max=200"`
	Party    string  `validate:"required,max=200"`
	Position string  `validate:"required,max=200"`
	PhotoURL *string `validate:"omitempty,url,startswith=https://,max=2048"`
}

// WikiSummary は大臣のWikipedia要約（サニタイズ済みHTML）のキャッシュ。
type WikiSummary struct {
	MinisterID string
	Title      string
	HTML       string
	PageURL    string
	FetchedAt  time.Time
}
