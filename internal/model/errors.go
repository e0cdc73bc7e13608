package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, rating, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeRemoteFailure    = "REMOTE_FAILURE"
	ErrCodeMinisterNotFound = "MINISTER_NOT_FOUND"
	ErrCodeRatingNotFound   = "RATING_NOT_FOUND"
	ErrCodeWikiNotFound     = "WIKI_NOT_FOUND"
	ErrCodeAlreadyRated     = "ALREADY_RATED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
)

// ErrorKind はクライアント側フローが扱うエラー分類。
type ErrorKind int

const (
	// KindRemoteFailure はリモート呼び出しの失敗。ローカル状態を巻き戻して通知する。
	KindRemoteFailure ErrorKind = iota
	// KindInvalidInput はクライアント側の入力検証エラー。ネットワークには到達しない。
	KindInvalidInput
	// KindNotFound は単一エンティティが存在しないことを表す。ページ単位のエラー表示に使う。
	KindNotFound
)

// String はログ出力用の名前を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	default:
		return "remote_failure"
	}
}

// KindOf はエラーを分類する。APIError以外はすべてリモート失敗として扱う。
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return KindRemoteFailure
	}
	switch apiErr.Code {
	case ErrCodeInvalidInput:
		return KindInvalidInput
	case ErrCodeMinisterNotFound, ErrCodeRatingNotFound, ErrCodeWikiNotFound:
		return KindNotFound
	default:
		return KindRemoteFailure
	}
}

// IsCode はエラーが指定コードのAPIErrorかを判定する。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewInvalidInputError は入力検証エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidRatingError は評価値が範囲外の場合のエラーを生成する。
func NewInvalidRatingError(value int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("無効な評価値です: %d", value),
		Category: "validation",
		Action:   "評価は1から5の整数で指定してください。",
	}
}

// NewRemoteFailureError はリモート呼び出し失敗エラーを生成する。
func NewRemoteFailureError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRemoteFailure,
		Message:  fmt.Sprintf("サーバーとの通信に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewMinisterNotFoundError は大臣未検出エラーを生成する。
func NewMinisterNotFoundError(ministerID string) *APIError {
	return &APIError{
		Code:     ErrCodeMinisterNotFound,
		Message:  fmt.Sprintf("指定された大臣が見つかりません: %s", ministerID),
		Category: "catalog",
		Action:   "一覧から大臣を選択し直してください。",
	}
}

// NewRatingNotFoundError は評価未検出エラーを生成する。
func NewRatingNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRatingNotFound,
		Message:  "編集対象の評価が見つかりません。",
		Category: "rating",
		Action:   "評価履歴を再読み込みしてください。",
	}
}

// NewWikiNotFoundError はWikipedia要約が見つからない場合のエラーを生成する。
func NewWikiNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeWikiNotFound,
		Message:  fmt.Sprintf("Wikipediaのページが見つかりません: %s", name),
		Category: "catalog",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAlreadyRatedError は同一ユーザーによる重複評価エラーを生成する。
func NewAlreadyRatedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRated,
		Message:  "この大臣は既に評価済みです。",
		Category: "rating",
		Action:   "評価を変更する場合は編集してください。",
	}
}

// NewUnauthorizedError は認証が必要な操作を未認証で行った場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は管理者権限が必要な操作のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}
