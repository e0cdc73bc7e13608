package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/ministers/internal/catalog"
	"github.com/hitoshi/ministers/internal/model"
)

// --- モック定義 ---

// mockMinisterService はMinisterServiceInterfaceのモック実装。
type mockMinisterService struct {
	listFn func(ctx context.Context, req catalog.Request) (*catalog.Page, error)
	getFn  func(ctx context.Context, id string) (*model.Minister, error)
	wikiFn func(ctx context.Context, id string) (*model.WikiSummary, error)
}

func (m *mockMinisterService) List(ctx context.Context, req catalog.Request) (*catalog.Page, error) {
	if m.listFn != nil {
		return m.listFn(ctx, req)
	}
	return &catalog.Page{}, nil
}

func (m *mockMinisterService) Get(ctx context.Context, id string) (*model.Minister, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewMinisterNotFoundError(id)
}

func (m *mockMinisterService) Wiki(ctx context.Context, id string) (*model.WikiSummary, error) {
	if m.wikiFn != nil {
		return m.wikiFn(ctx, id)
	}
	return nil, model.NewWikiNotFoundError(id)
}

func sampleMinister(id, name string) model.Minister {
	return model.Minister{
		ID:            id,
		Name:          name,
		Party:         "BJP",
		Position:      "Minister of Finance",
		AverageRating: 4.5,
		RatingCount:   2,
	}
}

// --- GET /api/ministers ---

func TestMinisterHandler_ListMinisters_Success(t *testing.T) {
	var gotReq catalog.Request
	svc := &mockMinisterService{
		listFn: func(ctx context.Context, req catalog.Request) (*catalog.Page, error) {
			gotReq = req
			return &catalog.Page{
				Items:   []model.Minister{sampleMinister("m-1", "Anita Sharma"), sampleMinister("m-2", "Ravi Sharma")},
				Total:   2,
				Counted: true,
			}, nil
		},
	}
	h := NewMinisterHandler(svc)

	query := catalog.Build("Sharma", catalog.SortNameAsc, 0).Values()
	req := httptest.NewRequest(http.MethodGet, "/api/ministers?"+query.Encode(), nil)
	w := httptest.NewRecorder()

	h.ListMinisters(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotReq.Search != "Sharma" {
		t.Errorf("search = %q, want %q", gotReq.Search, "Sharma")
	}
	if gotReq.Order.Column != catalog.ColumnName || !gotReq.Order.Ascending {
		t.Errorf("order = %v, want name.asc", gotReq.Order)
	}
	if gotReq.Range.From != 0 || gotReq.Range.To != 11 || !gotReq.CountExact {
		t.Errorf("range = %+v countExact=%v, want 0-11 exact", gotReq.Range, gotReq.CountExact)
	}

	var body ministerListResponse
	decodeBody(t, w, &body)
	if len(body.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(body.Items))
	}
	if body.Total == nil || *body.Total != 2 {
		t.Errorf("total = %v, want 2", body.Total)
	}
	if body.Items[0].Name != "Anita Sharma" || body.Items[0].AverageRating != 4.5 {
		t.Errorf("items[0] = %+v", body.Items[0])
	}
}

// TestMinisterHandler_ListMinisters_NoCount は件数要求がない場合totalを返さないことを検証する。
func TestMinisterHandler_ListMinisters_NoCount(t *testing.T) {
	svc := &mockMinisterService{
		listFn: func(ctx context.Context, req catalog.Request) (*catalog.Page, error) {
			return &catalog.Page{Items: []model.Minister{}}, nil
		},
	}
	h := NewMinisterHandler(svc)

	w := httptest.NewRecorder()
	h.ListMinisters(w, httptest.NewRequest(http.MethodGet, "/api/ministers", nil))

	var raw map[string]any
	decodeBody(t, w, &raw)
	if _, ok := raw["total"]; ok {
		t.Errorf("total should be omitted: %v", raw)
	}
	if items, ok := raw["items"].([]any); !ok || len(items) != 0 {
		t.Errorf("items = %v, want empty array", raw["items"])
	}
}

func TestMinisterHandler_ListMinisters_InvalidQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"許可されていないカラム", "order=party.asc"},
		{"方向が不正", "order=name.up"},
		{"範囲が逆転", "from=12&to=3"},
		{"範囲が大きすぎる", "from=0&to=1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockMinisterService{
				listFn: func(ctx context.Context, req catalog.Request) (*catalog.Page, error) {
					t.Fatal("service should not be called")
					return nil, nil
				},
			}
			w := httptest.NewRecorder()
			NewMinisterHandler(svc).ListMinisters(w, httptest.NewRequest(http.MethodGet, "/api/ministers?"+tt.query, nil))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if resp := parseAPIErrorResponse(t, w); resp["code"] != model.ErrCodeInvalidInput {
				t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeInvalidInput)
			}
		})
	}
}

func TestMinisterHandler_ListMinisters_ServiceError(t *testing.T) {
	svc := &mockMinisterService{
		listFn: func(ctx context.Context, req catalog.Request) (*catalog.Page, error) {
			return nil, errors.New("db down")
		},
	}
	w := httptest.NewRecorder()
	NewMinisterHandler(svc).ListMinisters(w, httptest.NewRequest(http.MethodGet, "/api/ministers", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if resp := parseAPIErrorResponse(t, w); resp["code"] != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeInternal)
	}
}

// --- GET /api/ministers/{id} ---

func TestMinisterHandler_GetMinister(t *testing.T) {
	photo := "https://img.example.com/a.jpg"
	svc := &mockMinisterService{
		getFn: func(ctx context.Context, id string) (*model.Minister, error) {
			if id != "m-1" {
				return nil, model.NewMinisterNotFoundError(id)
			}
			m := sampleMinister("m-1", "Anita Sharma")
			m.PhotoURL = &photo
			return &m, nil
		},
	}
	h := NewMinisterHandler(svc)

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/ministers/m-1", nil), "id", "m-1")
	w := httptest.NewRecorder()
	h.GetMinister(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body ministerResponse
	decodeBody(t, w, &body)
	if body.ID != "m-1" || body.PhotoURL == nil || *body.PhotoURL != photo {
		t.Errorf("body = %+v", body)
	}

	req = withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/ministers/m-x", nil), "id", "m-x")
	w = httptest.NewRecorder()
	h.GetMinister(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if resp := parseAPIErrorResponse(t, w); resp["code"] != model.ErrCodeMinisterNotFound {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeMinisterNotFound)
	}
}

// --- GET /api/ministers/{id}/wiki ---

func TestMinisterHandler_GetWiki(t *testing.T) {
	fetched := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := &mockMinisterService{
		wikiFn: func(ctx context.Context, id string) (*model.WikiSummary, error) {
			return &model.WikiSummary{
				MinisterID: id,
				Title:      "Anita Sharma",
				HTML:       "<p>Politician</p>",
				PageURL:    "https://en.wikipedia.org/wiki/Anita_Sharma",
				FetchedAt:  fetched,
			}, nil
		},
	}

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/ministers/m-1/wiki", nil), "id", "m-1")
	w := httptest.NewRecorder()
	NewMinisterHandler(svc).GetWiki(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body wikiResponse
	decodeBody(t, w, &body)
	if body.HTML != "<p>Politician</p>" || !body.FetchedAt.Equal(fetched) {
		t.Errorf("body = %+v", body)
	}
}

func TestMinisterHandler_GetWiki_NotFound(t *testing.T) {
	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/ministers/m-1/wiki", nil), "id", "m-1")
	w := httptest.NewRecorder()
	NewMinisterHandler(&mockMinisterService{}).GetWiki(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if resp := parseAPIErrorResponse(t, w); resp["code"] != model.ErrCodeWikiNotFound {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeWikiNotFound)
	}
}
