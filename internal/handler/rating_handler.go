package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ministers/internal/middleware"
	"github.com/hitoshi/ministers/internal/model"
)

// RatingServiceInterface は評価ハンドラーが必要とするサービスインターフェース。
type RatingServiceInterface interface {
	// Rate は評価を作成し、再計算後の集計値を返す。
	Rate(ctx context.Context, identity model.Identity, ministerID string, value int) (*model.Aggregate, error)
	// UpdateOwn は認証済みユーザー自身の指定大臣への評価を更新する。
	UpdateOwn(ctx context.Context, identity model.Identity, ministerID string, value int) (*model.Aggregate, error)
	// UpdateByID は評価IDで認証済みユーザー自身の評価を更新する。
	UpdateByID(ctx context.Context, identity model.Identity, ratingID string, value int) (*model.Aggregate, error)
	// MyRatings は認証済みユーザーの評価値を大臣IDごとに返す。
	MyRatings(ctx context.Context, identity model.Identity) (map[string]int, error)
	// History は認証済みユーザーの評価履歴を返す。
	History(ctx context.Context, identity model.Identity) ([]model.HistoryEntry, error)
}

// RatingHandler は評価のHTTPハンドラー。
type RatingHandler struct {
	service RatingServiceInterface
}

// NewRatingHandler はRatingHandlerを生成する。
func NewRatingHandler(service RatingServiceInterface) *RatingHandler {
	return &RatingHandler{service: service}
}

// createRatingRequest は評価作成リクエストのボディ。
// 操作主体はトークンからのみ決定し、ボディでは受け付けない。
type createRatingRequest struct {
	MinisterID string `json:"minister_id"`
	Rating     int    `json:"rating"`
}

// updateRatingRequest は評価更新リクエストのボディ。
type updateRatingRequest struct {
	Rating int `json:"rating"`
}

// CreateRating は評価を作成する。
// POST /api/ratings
func (h *RatingHandler) CreateRating(w http.ResponseWriter, r *http.Request) {
	var req createRatingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	agg, err := h.service.Rate(r.Context(), middleware.IdentityFromContext(r.Context()), req.MinisterID, req.Rating)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAggregateResponse(agg, req.Rating))
}

// UpdateOwnRating は指定大臣への自分の評価を更新する。
// PATCH /api/ministers/{id}/rating
func (h *RatingHandler) UpdateOwnRating(w http.ResponseWriter, r *http.Request) {
	var req updateRatingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	agg, err := h.service.UpdateOwn(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req.Rating)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAggregateResponse(agg, req.Rating))
}

// UpdateRatingByID は評価IDで自分の評価を更新する。
// PATCH /api/ratings/{id}
func (h *RatingHandler) UpdateRatingByID(w http.ResponseWriter, r *http.Request) {
	var req updateRatingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	agg, err := h.service.UpdateByID(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req.Rating)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAggregateResponse(agg, req.Rating))
}

// MyRatings は自分の評価値を大臣IDごとに返す。
// GET /api/me/ratings
func (h *RatingHandler) MyRatings(w http.ResponseWriter, r *http.Request) {
	values, err := h.service.MyRatings(r.Context(), middleware.IdentityFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if values == nil {
		values = map[string]int{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ratings": values})
}

// History は自分の評価履歴を新しい順に返す。
// GET /api/me/history
func (h *RatingHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.History(r.Context(), middleware.IdentityFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]historyEntryResponse, len(entries))
	for i, e := range entries {
		items[i] = historyEntryResponse{
			RatingID:         e.RatingID,
			MinisterID:       e.MinisterID,
			Rating:           e.Value,
			CreatedAt:        e.CreatedAt,
			MinisterName:     e.MinisterName,
			MinisterPosition: e.MinisterPosition,
			MinisterPhotoURL: e.MinisterPhotoURL,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
