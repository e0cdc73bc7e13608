package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/ministers/internal/model"
)

// wikiRow はminister_wikiの1行。
type wikiRow struct {
	MinisterID string    `db:"minister_id"`
	Title      string    `db:"title"`
	HTML       string    `db:"html"`
	PageURL    string    `db:"page_url"`
	FetchedAt  time.Time `db:"fetched_at"`
}

// PostgresWikiRepo はPostgreSQLを使用したWikipedia要約キャッシュのリポジトリ。
type PostgresWikiRepo struct {
	db *sqlx.DB
}

// NewPostgresWikiRepo はPostgresWikiRepoを生成する。
func NewPostgresWikiRepo(db *sqlx.DB) *PostgresWikiRepo {
	return &PostgresWikiRepo{db: db}
}

// Find は大臣の要約キャッシュを取得する。見つからない場合はnilを返す。
func (r *PostgresWikiRepo) Find(ctx context.Context, ministerID string) (*model.WikiSummary, error) {
	var row wikiRow
	err := r.db.GetContext(ctx, &row,
		`SELECT minister_id, title, html, page_url, fetched_at FROM minister_wiki WHERE minister_id = $1`,
		ministerID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wiki summary: %w", err)
	}

	return &model.WikiSummary{
		MinisterID: row.MinisterID,
		Title:      row.Title,
		HTML:       row.HTML,
		PageURL:    row.PageURL,
		FetchedAt:  row.FetchedAt,
	}, nil
}

// Upsert は要約キャッシュを冪等に保存する。
func (r *PostgresWikiRepo) Upsert(ctx context.Context, s *model.WikiSummary) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO minister_wiki (minister_id, title, html, page_url, fetched_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (minister_id) DO UPDATE
		 SET title = EXCLUDED.title, html = EXCLUDED.html,
		     page_url = EXCLUDED.page_url, fetched_at = EXCLUDED.fetched_at`,
		s.MinisterID, s.Title, s.HTML, s.PageURL, s.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert wiki summary: %w", err)
	}
	return nil
}

// ListNeedingFetch は要約が未取得、またはstaleBeforeより古い大臣を取得する。
func (r *PostgresWikiRepo) ListNeedingFetch(ctx context.Context, staleBefore time.Time, limit int) ([]model.Minister, error) {
	var rows []ministerRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT m.id, m.name, m.party, m.position, m.photo_url,
		        0::DOUBLE PRECISION AS average_rating, 0 AS rating_count,
		        m.created_at, m.updated_at
		 FROM ministers m
		 LEFT JOIN minister_wiki w ON w.minister_id = m.id
		 WHERE w.minister_id IS NULL OR w.fetched_at < $1
		 ORDER BY w.fetched_at ASC NULLS FIRST, m.id ASC
		 LIMIT $2`,
		staleBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ministers needing wiki fetch: %w", err)
	}

	ministers := make([]model.Minister, len(rows))
	for i, row := range rows {
		ministers[i] = row.toModel()
	}
	return ministers, nil
}

// compile-time interface check
var _ WikiRepository = (*PostgresWikiRepo)(nil)
