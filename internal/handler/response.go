package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/ministers/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限。
const maxRequestBodySize = 64 << 10

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ministerResponse は大臣情報のAPIレスポンス。
type ministerResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Party         string    `json:"party"`
	Position      string    `json:"position"`
	PhotoURL      *string   `json:"photo_url"`
	AverageRating float64   `json:"average_rating"`
	RatingCount   int       `json:"rating_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ministerListResponse は大臣一覧のAPIレスポンス。totalは件数要求時のみ含む。
type ministerListResponse struct {
	Items []ministerResponse `json:"items"`
	Total *int               `json:"total,omitempty"`
}

// aggregateResponse は評価書き込み後の集計値レスポンス。
type aggregateResponse struct {
	MinisterID    string  `json:"minister_id"`
	Rating        int     `json:"rating"`
	AverageRating float64 `json:"average_rating"`
	RatingCount   int     `json:"rating_count"`
}

// historyEntryResponse は評価履歴の1行。
type historyEntryResponse struct {
	RatingID         string    `json:"rating_id"`
	MinisterID       string    `json:"minister_id"`
	Rating           int       `json:"rating"`
	CreatedAt        time.Time `json:"created_at"`
	MinisterName     string    `json:"minister_name"`
	MinisterPosition string    `json:"minister_position"`
	MinisterPhotoURL *string   `json:"minister_photo_url"`
}

// wikiResponse はWikipedia要約のAPIレスポンス。
type wikiResponse struct {
	MinisterID string    `json:"minister_id"`
	Title      string    `json:"title"`
	HTML       string    `json:"html"`
	PageURL    string    `json:"page_url"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// meResponse は現在の操作主体のAPIレスポンス。
type meResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	IsAdmin       bool   `json:"is_admin"`
}

func toMinisterResponse(m model.Minister) ministerResponse {
	return ministerResponse{
		ID:            m.ID,
		Name:          m.Name,
		Party:         m.Party,
		Position:      m.Position,
		PhotoURL:      m.PhotoURL,
		AverageRating: m.AverageRating,
		RatingCount:   m.RatingCount,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toMinisterResponses(ms []model.Minister) []ministerResponse {
	out := make([]ministerResponse, len(ms))
	for i, m := range ms {
		out[i] = toMinisterResponse(m)
	}
	return out
}

func toAggregateResponse(agg *model.Aggregate, value int) aggregateResponse {
	return aggregateResponse{
		MinisterID:    agg.MinisterID,
		Rating:        value,
		AverageRating: agg.AverageRating,
		RatingCount:   agg.RatingCount,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをデコードする。失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidInput,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case model.ErrCodeMinisterNotFound, model.ErrCodeRatingNotFound, model.ErrCodeWikiNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadyRated:
		return http.StatusConflict
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeRemoteFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
