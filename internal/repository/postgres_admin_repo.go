package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresAdminRepo はPostgreSQLを使用した管理者リポジトリ。
type PostgresAdminRepo struct {
	db *sqlx.DB
}

// NewPostgresAdminRepo はPostgresAdminRepoを生成する。
func NewPostgresAdminRepo(db *sqlx.DB) *PostgresAdminRepo {
	return &PostgresAdminRepo{db: db}
}

// IsAdmin はユーザーがadminsテーブルに登録されているかを返す。
func (r *PostgresAdminRepo) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM admins WHERE user_id = $1)`,
		userID,
	); err != nil {
		return false, fmt.Errorf("failed to check admin: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ AdminRepository = (*PostgresAdminRepo)(nil)
