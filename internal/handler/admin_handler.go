package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ministers/internal/model"
)

// AdminServiceInterface は管理ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	ListAll(ctx context.Context) ([]model.Minister, error)
	Create(ctx context.Context, in model.MinisterInput) (*model.Minister, error)
	Update(ctx context.Context, id string, in model.MinisterInput) (*model.Minister, error)
	Delete(ctx context.Context, id string) error
}

// AdminHandler は管理者によるカタログ管理のHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// ministerRequest は大臣の作成・更新リクエストのボディ。
type ministerRequest struct {
	Name     string  `json:"name"`
	Party    string  `json:"party"`
	Position string  `json:"position"`
	PhotoURL *string `json:"photo_url"`
}

func (r ministerRequest) toInput() model.MinisterInput {
	return model.MinisterInput{
		Name:     r.Name,
		Party:    r.Party,
		Position: r.Position,
		PhotoURL: r.PhotoURL,
	}
}

// ListMinisters は全大臣を名前順で返す。
// GET /api/admin/ministers
func (h *AdminHandler) ListMinisters(w http.ResponseWriter, r *http.Request) {
	ministers, err := h.service.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toMinisterResponses(ministers)})
}

// CreateMinister は大臣を作成する。
// POST /api/admin/ministers
func (h *AdminHandler) CreateMinister(w http.ResponseWriter, r *http.Request) {
	var req ministerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.service.Create(r.Context(), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMinisterResponse(*m))
}

// UpdateMinister は大臣を更新する。
// PUT /api/admin/ministers/{id}
func (h *AdminHandler) UpdateMinister(w http.ResponseWriter, r *http.Request) {
	var req ministerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMinisterResponse(*m))
}

// DeleteMinister は大臣を削除する。関連する評価もCASCADE削除される。
// DELETE /api/admin/ministers/{id}
func (h *AdminHandler) DeleteMinister(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
