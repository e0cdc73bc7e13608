package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hitoshi/ministers/internal/model"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

const aggregateQuery = `SELECT id AS minister_id, average_rating, rating_count
	 FROM ministers_with_ratings WHERE id = $1`

// aggregateRow は集計値の1行。
type aggregateRow struct {
	MinisterID    string  `db:"minister_id"`
	AverageRating float64 `db:"average_rating"`
	RatingCount   int     `db:"rating_count"`
}

func (r aggregateRow) toModel() *model.Aggregate {
	return &model.Aggregate{
		MinisterID:    r.MinisterID,
		AverageRating: r.AverageRating,
		RatingCount:   r.RatingCount,
	}
}

// historyRow は評価履歴の1行。
type historyRow struct {
	RatingID         string         `db:"rating_id"`
	MinisterID       string         `db:"minister_id"`
	Value            int            `db:"rating"`
	CreatedAt        time.Time      `db:"created_at"`
	MinisterName     string         `db:"name"`
	MinisterPosition string         `db:"position"`
	MinisterPhotoURL sql.NullString `db:"photo_url"`
}

// PostgresRatingRepo はPostgreSQLを使用した評価リポジトリ。
type PostgresRatingRepo struct {
	db *sqlx.DB
}

// NewPostgresRatingRepo はPostgresRatingRepoを生成する。
func NewPostgresRatingRepo(db *sqlx.DB) *PostgresRatingRepo {
	return &PostgresRatingRepo{db: db}
}

// Create は評価を作成し、同一トランザクション内で再計算した集計値を返す。
func (r *PostgresRatingRepo) Create(ctx context.Context, rating *model.Rating) (*model.Aggregate, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ratings (id, minister_id, rating, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rating.ID, rating.MinisterID, rating.Value, rating.UserID, rating.CreatedAt, rating.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case pqUniqueViolation:
				return nil, ErrDuplicateRating
			case pqForeignKeyViolation:
				return nil, ErrMinisterMissing
			}
		}
		return nil, fmt.Errorf("failed to insert rating: %w", err)
	}

	agg, err := loadAggregate(ctx, tx, rating.MinisterID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return agg, nil
}

// UpdateByMinister はユーザー自身の指定大臣への評価を更新する。対象がない場合はnilを返す。
func (r *PostgresRatingRepo) UpdateByMinister(ctx context.Context, ministerID, userID string, value int, now time.Time) (*model.Aggregate, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE ratings SET rating = $1, updated_at = $2
		 WHERE minister_id = $3 AND user_id = $4`,
		value, now, ministerID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update rating: %w", err)
	}
	ok, err := affectedOne(result)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	agg, err := loadAggregate(ctx, tx, ministerID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return agg, nil
}

// UpdateByID は評価IDで評価を更新する。userIDの所有する行のみが対象で、対象がない場合はnilを返す。
func (r *PostgresRatingRepo) UpdateByID(ctx context.Context, ratingID, userID string, value int, now time.Time) (*model.Aggregate, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ministerID string
	err = tx.GetContext(ctx, &ministerID,
		`UPDATE ratings SET rating = $1, updated_at = $2
		 WHERE id = $3 AND user_id = $4
		 RETURNING minister_id`,
		value, now, ratingID, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update rating by ID: %w", err)
	}

	agg, err := loadAggregate(ctx, tx, ministerID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return agg, nil
}

// ValuesByUser はユーザーの評価値を大臣IDをキーとするマップで返す。
func (r *PostgresRatingRepo) ValuesByUser(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT minister_id, rating FROM ratings WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings by user: %w", err)
	}
	defer rows.Close()

	values := make(map[string]int)
	for rows.Next() {
		var ministerID string
		var value int
		if err := rows.Scan(&ministerID, &value); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		values[ministerID] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ratings: %w", err)
	}

	return values, nil
}

// HistoryByUser はユーザーの評価履歴を大臣情報付きで作成日時の降順に返す。
func (r *PostgresRatingRepo) HistoryByUser(ctx context.Context, userID string) ([]model.HistoryEntry, error) {
	var rows []historyRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT r.id AS rating_id, r.minister_id, r.rating, r.created_at,
		        m.name, m.position, m.photo_url
		 FROM ratings r
		 JOIN ministers m ON m.id = r.minister_id
		 WHERE r.user_id = $1
		 ORDER BY r.created_at DESC, r.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rating history: %w", err)
	}

	entries := make([]model.HistoryEntry, len(rows))
	for i, row := range rows {
		entries[i] = model.HistoryEntry{
			RatingID:         row.RatingID,
			MinisterID:       row.MinisterID,
			Value:            row.Value,
			CreatedAt:        row.CreatedAt,
			MinisterName:     row.MinisterName,
			MinisterPosition: row.MinisterPosition,
		}
		if row.MinisterPhotoURL.Valid {
			photo := row.MinisterPhotoURL.String
			entries[i].MinisterPhotoURL = &photo
		}
	}
	return entries, nil
}

// loadAggregate はトランザクション内で大臣の集計値を再取得する。
func loadAggregate(ctx context.Context, tx *sqlx.Tx, ministerID string) (*model.Aggregate, error) {
	var row aggregateRow
	if err := tx.GetContext(ctx, &row, aggregateQuery, ministerID); err != nil {
		return nil, fmt.Errorf("failed to load aggregate: %w", err)
	}
	return row.toModel(), nil
}

// compile-time interface check
var _ RatingRepository = (*PostgresRatingRepo)(nil)
