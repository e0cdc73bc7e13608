// Package localstore は端末ローカルの永続キー・バリューストアを提供する。
// 匿名評価の記録（ratedMinisters）と初回ウェルカム表示フラグ（hasSeenWelcomePopup）を保持する。
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	_ "modernc.org/sqlite"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// KeyRatedMinisters は匿名で評価済みの大臣IDの集合（JSON配列）。
	KeyRatedMinisters = "ratedMinisters"
	// KeyHasSeenWelcome は初回ウェルカムメッセージを表示済みかのフラグ。
	KeyHasSeenWelcome = "hasSeenWelcomePopup"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// Store はSQLiteファイルに保存するキー・バリューストア。
// 1プロファイルにつき1ファイルで、複数端末間での共有は想定しない。
type Store struct {
	db *sqlx.DB
}

// Open はpathのSQLiteファイルを開き、必要ならテーブルを作成する。
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ローカルストアを開けません: %w", err)
	}
	// 読み取り・変更・書き込みを直列化する
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ローカルストアの初期化に失敗しました: %w", err)
	}
	return &Store{db: db}, nil
}

// Close はストアを閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Get はキーの値を返す。存在しない場合はokがfalse。
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Set はキーの値を上書きする。
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// RatedMinisters は匿名で評価済みの大臣IDをソートして返す。
func (s *Store) RatedMinisters(ctx context.Context) ([]string, error) {
	raw, ok, err := s.Get(ctx, KeyRatedMinisters)
	if err != nil || !ok {
		return nil, err
	}
	return decodeIDs(raw)
}

// HasRated は大臣IDが匿名評価済み集合に含まれるかを返す。
func (s *Store) HasRated(ctx context.Context, ministerID string) (bool, error) {
	ids, err := s.RatedMinisters(ctx)
	if err != nil {
		return false, err
	}
	return lo.Contains(ids, ministerID), nil
}

// MarkRated は大臣IDを匿名評価済み集合に追加する。
// 既存の集合を読み込んで和集合を書き戻すため、以前の記録は失われない。
func (s *Store) MarkRated(ctx context.Context, ministerID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ids []string
	var raw string
	err = tx.GetContext(ctx, &raw, `SELECT value FROM kv WHERE key = ?`, KeyRatedMinisters)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read %s: %w", KeyRatedMinisters, err)
	default:
		if ids, err = decodeIDs(raw); err != nil {
			return err
		}
	}

	merged := lo.Union(ids, []string{ministerID})
	sort.Strings(merged)
	encoded, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		KeyRatedMinisters, string(encoded),
	); err != nil {
		return fmt.Errorf("failed to write %s: %w", KeyRatedMinisters, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HasSeenWelcome はウェルカムメッセージを表示済みかを返す。
func (s *Store) HasSeenWelcome(ctx context.Context) (bool, error) {
	raw, ok, err := s.Get(ctx, KeyHasSeenWelcome)
	if err != nil || !ok {
		return false, err
	}
	return raw == "true", nil
}

// MarkWelcomeSeen はウェルカムメッセージを表示済みにする。
func (s *Store) MarkWelcomeSeen(ctx context.Context) error {
	return s.Set(ctx, KeyHasSeenWelcome, "true")
}

// decodeIDs はJSON配列を読み込む。壊れた値は空集合として扱わずエラーにする。
func decodeIDs(raw string) ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("%sの値が不正です: %w", KeyRatedMinisters, err)
	}
	return lo.Uniq(ids), nil
}
