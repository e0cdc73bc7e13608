package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/ministers/internal/catalog"
	"github.com/hitoshi/ministers/internal/model"
)

const (
	dialectPostgres  = "postgres"
	viewWithRatings  = "ministers_with_ratings"
	tableMinisters   = "ministers"
	colID            = "id"
	colName          = "name"
	colParty         = "party"
	colPosition      = "position"
	colPhotoURL      = "photo_url"
	colAverageRating = "average_rating"
	colRatingCount   = "rating_count"
	colCreatedAt     = "created_at"
	colUpdatedAt     = "updated_at"
)

// ministerColumns はministers_with_ratingsから取得するカラム。
var ministerColumns = []any{
	colID, colName, colParty, colPosition, colPhotoURL,
	colAverageRating, colRatingCount, colCreatedAt, colUpdatedAt,
}

// ministerRow はministers_with_ratingsの1行。
type ministerRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Party         string         `db:"party"`
	Position      string         `db:"position"`
	PhotoURL      sql.NullString `db:"photo_url"`
	AverageRating float64        `db:"average_rating"`
	RatingCount   int            `db:"rating_count"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r ministerRow) toModel() model.Minister {
	m := model.Minister{
		ID:            r.ID,
		Name:          r.Name,
		Party:         r.Party,
		Position:      r.Position,
		AverageRating: r.AverageRating,
		RatingCount:   r.RatingCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.PhotoURL.Valid {
		photo := r.PhotoURL.String
		m.PhotoURL = &photo
	}
	return m
}

// PostgresMinisterRepo はPostgreSQLを使用した大臣リポジトリ。
type PostgresMinisterRepo struct {
	db *sqlx.DB
}

// NewPostgresMinisterRepo はPostgresMinisterRepoを生成する。
func NewPostgresMinisterRepo(db *sqlx.DB) *PostgresMinisterRepo {
	return &PostgresMinisterRepo{db: db}
}

// escapeLike はLIKEパターンのワイルドカード文字をエスケープする。
// 検索文字列はリテラルの部分一致として扱う。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// searchFilter は名前または政党への大文字小文字を区別しない部分一致条件を返す。
// 検索文字列が空の場合はnilを返す。
func searchFilter(search string) exp.Expression {
	if search == "" {
		return nil
	}
	pattern := "%" + escapeLike(search) + "%"
	return goqu.Or(
		goqu.C(colName).ILike(pattern),
		goqu.C(colParty).ILike(pattern),
	)
}

// buildListQuery はカタログ読み取りのSELECT文を組み立てる。
// 同順位の行のページ間での揺れを防ぐため、idの昇順を第2キーに加える。
func buildListQuery(req catalog.Request) (string, []any, error) {
	order := goqu.C(string(req.Order.Column)).Desc()
	if req.Order.Ascending {
		order = goqu.C(string(req.Order.Column)).Asc()
	}

	ds := goqu.Dialect(dialectPostgres).
		From(viewWithRatings).
		Prepared(true).
		Select(ministerColumns...).
		Order(order, goqu.C(colID).Asc()).
		Offset(uint(req.Range.From)).
		Limit(uint(req.Range.Limit()))

	if f := searchFilter(req.Search); f != nil {
		ds = ds.Where(f)
	}

	return ds.ToSQL()
}

// buildCountQuery はフィルタ後の総件数を取得するSELECT文を組み立てる。
func buildCountQuery(req catalog.Request) (string, []any, error) {
	ds := goqu.Dialect(dialectPostgres).
		From(tableMinisters).
		Prepared(true).
		Select(goqu.COUNT(goqu.Star()))

	if f := searchFilter(req.Search); f != nil {
		ds = ds.Where(f)
	}

	return ds.ToSQL()
}

// List はカタログ読み取りリクエストに従って大臣の一覧を集計値付きで取得する。
func (r *PostgresMinisterRepo) List(ctx context.Context, req catalog.Request) (*catalog.Page, error) {
	if !req.Order.Column.Valid() {
		return nil, fmt.Errorf("invalid order column: %q", req.Order.Column)
	}

	query, args, err := buildListQuery(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	var rows []ministerRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list ministers: %w", err)
	}

	page := &catalog.Page{Items: make([]model.Minister, len(rows))}
	for i, row := range rows {
		page.Items[i] = row.toModel()
	}

	if req.CountExact {
		countQuery, countArgs, err := buildCountQuery(req)
		if err != nil {
			return nil, fmt.Errorf("failed to build count query: %w", err)
		}
		if err := r.db.GetContext(ctx, &page.Total, countQuery, countArgs...); err != nil {
			return nil, fmt.Errorf("failed to count ministers: %w", err)
		}
		page.Counted = true
	}

	return page, nil
}

// FindByID は指定IDの大臣を集計値付きで取得する。見つからない場合はnilを返す。
func (r *PostgresMinisterRepo) FindByID(ctx context.Context, id string) (*model.Minister, error) {
	var row ministerRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, name, party, position, photo_url, average_rating, rating_count, created_at, updated_at
		 FROM ministers_with_ratings WHERE id = $1`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find minister by ID: %w", err)
	}

	m := row.toModel()
	return &m, nil
}

// ListAll は全大臣を名前順で取得する。
func (r *PostgresMinisterRepo) ListAll(ctx context.Context) ([]model.Minister, error) {
	var rows []ministerRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, name, party, position, photo_url, average_rating, rating_count, created_at, updated_at
		 FROM ministers_with_ratings ORDER BY name ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list all ministers: %w", err)
	}

	ministers := make([]model.Minister, len(rows))
	for i, row := range rows {
		ministers[i] = row.toModel()
	}
	return ministers, nil
}

// Create は大臣を作成する。
func (r *PostgresMinisterRepo) Create(ctx context.Context, m *model.Minister) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ministers (id, name, party, position, photo_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.Name, m.Party, m.Position, m.PhotoURL, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert minister: %w", err)
	}
	return nil
}

// Update は大臣の基本情報を更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresMinisterRepo) Update(ctx context.Context, m *model.Minister) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE ministers SET name = $2, party = $3, position = $4, photo_url = $5, updated_at = $6
		 WHERE id = $1`,
		m.ID, m.Name, m.Party, m.Position, m.PhotoURL, m.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update minister: %w", err)
	}
	return affectedOne(result)
}

// Delete は大臣を削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresMinisterRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ministers WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete minister: %w", err)
	}
	return affectedOne(result)
}

// affectedOne は更新件数が1件以上あったかを返す。
func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ MinisterRepository = (*PostgresMinisterRepo)(nil)
