// Package client はカタログAPIのHTTPクライアントを提供する。
// サーバーのエラーレスポンスはmodel.APIErrorに復元して返す。
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/ministers/internal/catalog"
	"github.com/hitoshi/ministers/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseSize はレスポンスボディの読み込み上限。
const maxResponseSize = 4 << 20

// Client はカタログAPIのクライアント。
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource

	// トークン付きのリクエストが401を返したときに呼ばれる
	onUnauthorized func()
}

// New はClientを生成する。tokensがnilの場合は常に匿名でリクエストする。
func New(baseURL string, tokens TokenSource, logger *slog.Logger, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("API URLが不正です: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("API URLのスキームが不正です: %q", baseURL)
	}

	transport := NewLoggingRoundTripper(
		NewBearerRoundTripper(http.DefaultTransport, tokens),
		logger,
	)

	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		tokens:     tokens,
	}, nil
}

// OnUnauthorized はアクセストークンが拒否されたときの処理を登録する。
// 期限切れのトークンを破棄して匿名に戻すために使う。
func (c *Client) OnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

func (c *Client) hasToken() bool {
	return c.tokens != nil && c.tokens.Token() != ""
}

type errorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

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

func (m ministerResponse) toModel() model.Minister {
	return model.Minister{
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

type ministerListResponse struct {
	Items []ministerResponse `json:"items"`
	Total *int               `json:"total"`
}

type aggregateResponse struct {
	MinisterID    string  `json:"minister_id"`
	Rating        int     `json:"rating"`
	AverageRating float64 `json:"average_rating"`
	RatingCount   int     `json:"rating_count"`
}

type historyEntryResponse struct {
	RatingID         string    `json:"rating_id"`
	MinisterID       string    `json:"minister_id"`
	Rating           int       `json:"rating"`
	CreatedAt        time.Time `json:"created_at"`
	MinisterName     string    `json:"minister_name"`
	MinisterPosition string    `json:"minister_position"`
	MinisterPhotoURL *string   `json:"minister_photo_url"`
}

type wikiResponse struct {
	MinisterID string    `json:"minister_id"`
	Title      string    `json:"title"`
	HTML       string    `json:"html"`
	PageURL    string    `json:"page_url"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Me は/api/meの応答。
type Me struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	IsAdmin       bool   `json:"is_admin"`
}

type createRatingRequest struct {
	MinisterID string `json:"minister_id"`
	Rating     int    `json:"rating"`
}

type updateRatingRequest struct {
	Rating int `json:"rating"`
}

// ListMinisters はカタログ読み取りリクエストを実行する。
func (c *Client) ListMinisters(ctx context.Context, req catalog.Request) (*catalog.Page, error) {
	var resp ministerListResponse
	if err := c.do(ctx, http.MethodGet, "/api/ministers", req.Values(), nil, &resp); err != nil {
		return nil, err
	}

	page := &catalog.Page{Items: make([]model.Minister, len(resp.Items))}
	for i, item := range resp.Items {
		page.Items[i] = item.toModel()
	}
	if resp.Total != nil {
		page.Total = *resp.Total
		page.Counted = true
	}
	return page, nil
}

// GetMinister は大臣を1件取得する。
func (c *Client) GetMinister(ctx context.Context, id string) (*model.Minister, error) {
	var resp ministerResponse
	if err := c.do(ctx, http.MethodGet, "/api/ministers/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	m := resp.toModel()
	return &m, nil
}

// GetWiki は大臣のWikipedia要約を取得する。
func (c *Client) GetWiki(ctx context.Context, id string) (*model.WikiSummary, error) {
	var resp wikiResponse
	if err := c.do(ctx, http.MethodGet, "/api/ministers/"+url.PathEscape(id)+"/wiki", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &model.WikiSummary{
		MinisterID: resp.MinisterID,
		Title:      resp.Title,
		HTML:       resp.HTML,
		PageURL:    resp.PageURL,
		FetchedAt:  resp.FetchedAt,
	}, nil
}

// CreateRating は評価を新規作成し、再計算された集計値を返す。
// 操作主体はアクセストークンの有無でサーバーが判定する。
func (c *Client) CreateRating(ctx context.Context, ministerID string, value int) (*model.Aggregate, error) {
	var resp aggregateResponse
	body := createRatingRequest{MinisterID: ministerID, Rating: value}
	if err := c.do(ctx, http.MethodPost, "/api/ratings", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// UpdateOwnRating は自分の評価を更新し、再計算された集計値を返す。
func (c *Client) UpdateOwnRating(ctx context.Context, ministerID string, value int) (*model.Aggregate, error) {
	var resp aggregateResponse
	body := updateRatingRequest{Rating: value}
	if err := c.do(ctx, http.MethodPatch, "/api/ministers/"+url.PathEscape(ministerID)+"/rating", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// UpdateRatingByID は評価IDを指定して自分の評価を更新する。
func (c *Client) UpdateRatingByID(ctx context.Context, ratingID string, value int) (*model.Aggregate, error) {
	var resp aggregateResponse
	body := updateRatingRequest{Rating: value}
	if err := c.do(ctx, http.MethodPatch, "/api/ratings/"+url.PathEscape(ratingID), nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// MyRatings は認証済みユーザーの評価値を大臣IDをキーとするマップで返す。
func (c *Client) MyRatings(ctx context.Context) (map[string]int, error) {
	var resp struct {
		Ratings map[string]int `json:"ratings"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/me/ratings", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Ratings == nil {
		resp.Ratings = map[string]int{}
	}
	return resp.Ratings, nil
}

// History は認証済みユーザーの評価履歴を返す。
func (c *Client) History(ctx context.Context) ([]model.HistoryEntry, error) {
	var resp struct {
		Items []historyEntryResponse `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/me/history", nil, nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]model.HistoryEntry, len(resp.Items))
	for i, item := range resp.Items {
		entries[i] = model.HistoryEntry{
			RatingID:         item.RatingID,
			MinisterID:       item.MinisterID,
			Value:            item.Rating,
			CreatedAt:        item.CreatedAt,
			MinisterName:     item.MinisterName,
			MinisterPosition: item.MinisterPosition,
			MinisterPhotoURL: item.MinisterPhotoURL,
		}
	}
	return entries, nil
}

// Me は現在の操作主体をサーバーに問い合わせる。
func (c *Client) Me(ctx context.Context) (*Me, error) {
	var resp Me
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r aggregateResponse) toModel() *model.Aggregate {
	return &model.Aggregate{
		MinisterID:    r.MinisterID,
		AverageRating: r.AverageRating,
		RatingCount:   r.RatingCount,
	}
}

// do はリクエストを送信し、2xxの場合はoutへデコードする。
// それ以外の場合はサーバーのエラーレスポンスをAPIErrorとして返す。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	authorized := c.hasToken()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && authorized && c.onUnauthorized != nil {
		c.onUnauthorized()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s %s: レスポンスの読み込みに失敗しました: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: レスポンスの解析に失敗しました: %w", method, path, err)
	}
	return nil
}

// decodeError はエラーレスポンスをAPIErrorに変換する。
// 統一フォーマットでない場合はステータスコードからリモート失敗として扱う。
func decodeError(status int, data []byte) error {
	var body errorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Code != "" {
		return &model.APIError{
			Code:     body.Code,
			Message:  body.Message,
			Category: body.Category,
			Action:   body.Action,
		}
	}
	return model.NewRemoteFailureError(fmt.Sprintf("サーバーがステータス%dを返しました", status))
}
