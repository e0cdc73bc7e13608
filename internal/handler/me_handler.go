package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/ministers/internal/middleware"
)

// MeHandler は現在の操作主体を返すHTTPハンドラー。
type MeHandler struct {
	admins middleware.AdminAuthorizer
}

// NewMeHandler はMeHandlerを生成する。adminsはnil可。
func NewMeHandler(admins middleware.AdminAuthorizer) *MeHandler {
	return &MeHandler{admins: admins}
}

// Me は現在の操作主体を返す。匿名の場合もauthenticated=falseで200を返す。
// GET /api/me
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	resp := meResponse{
		Authenticated: identity.IsAuthenticated(),
		UserID:        identity.UserID,
		Email:         identity.Email,
	}

	if identity.IsAuthenticated() && h.admins != nil {
		isAdmin, err := h.admins.IsAdmin(r.Context(), identity.UserID)
		if err != nil {
			// 管理者判定の失敗は一般ユーザーとして扱う
			slog.Warn("failed to check admin",
				slog.String("user_id", identity.UserID),
				slog.String("error", err.Error()),
			)
		}
		resp.IsAdmin = isAdmin
	}

	writeJSON(w, http.StatusOK, resp)
}
