package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ministers/internal/catalog"
	"github.com/hitoshi/ministers/internal/model"
)

// MinisterServiceInterface は大臣ハンドラーが必要とするサービスインターフェース。
type MinisterServiceInterface interface {
	// List はカタログ読み取りリクエストに従って大臣の一覧を返す。
	List(ctx context.Context, req catalog.Request) (*catalog.Page, error)
	// Get は大臣を集計値付きで取得する。
	Get(ctx context.Context, id string) (*model.Minister, error)
	// Wiki は大臣のWikipedia要約を返す。
	Wiki(ctx context.Context, id string) (*model.WikiSummary, error)
}

// MinisterHandler は大臣カタログ読み取りのHTTPハンドラー。
type MinisterHandler struct {
	service MinisterServiceInterface
}

// NewMinisterHandler はMinisterHandlerを生成する。
func NewMinisterHandler(service MinisterServiceInterface) *MinisterHandler {
	return &MinisterHandler{service: service}
}

// ListMinisters は大臣一覧を返す。
// GET /api/ministers?search=&order=<column>.<asc|desc>&from=&to=&count=exact
func (h *MinisterHandler) ListMinisters(w http.ResponseWriter, r *http.Request) {
	req, err := catalog.DecodeRequest(r.URL.Query())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError(err.Error()))
		return
	}

	page, err := h.service.List(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := ministerListResponse{Items: toMinisterResponses(page.Items)}
	if page.Counted {
		total := page.Total
		resp.Total = &total
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMinister は大臣詳細を返す。
// GET /api/ministers/{id}
func (h *MinisterHandler) GetMinister(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMinisterResponse(*m))
}

// GetWiki は大臣のWikipedia要約を返す。
// GET /api/ministers/{id}/wiki
func (h *MinisterHandler) GetWiki(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Wiki(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wikiResponse{
		MinisterID: summary.MinisterID,
		Title:      summary.Title,
		HTML:       summary.HTML,
		PageURL:    summary.PageURL,
		FetchedAt:  summary.FetchedAt,
	})
}
