// Package wiki は大臣のWikipedia要約の取得と整形を提供する。
// Wikipedia APIの呼び出し、HTMLの整形、要約キャッシュのバッチ更新ジョブを含む。
package wiki

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/ministers/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultOrigin は英語版WikipediaのオリジンURL。
	DefaultOrigin = "https://en.wikipedia.org"
	// DefaultHost はSSRFガードで許可するホスト名。
	DefaultHost = "en.wikipedia.org"
	// userAgent はWikipedia APIのUser-Agentポリシーに従った識別子。
	userAgent = "MinistersRating/1.0 (wiki summary fetcher)"
)

// searchResponse はaction=query&list=searchのレスポンス。
type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

// parseResponse はaction=parse&formatversion=2のレスポンス。
type parseResponse struct {
	Parse *struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	} `json:"parse"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// Page はWikipediaから取得した記事本文。
type Page struct {
	Title string
	HTML  string
}

// Client はWikipedia APIのクライアント。
type Client struct {
	httpClient *http.Client
	cleaner    *Cleaner
	logger     *slog.Logger
	origin     string // テスト用にオリジンを差し替え可能
	now        func() time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはSSRFガード付きのクライアントを渡す。
func NewClient(httpClient *http.Client, cleaner *Cleaner, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		cleaner:    cleaner,
		logger:     logger,
		origin:     DefaultOrigin,
		now:        time.Now,
	}
}

// Search は検索語に最も一致する記事タイトルを返す。一致がない場合は空文字を返す。
func (c *Client) Search(ctx context.Context, term string) (string, error) {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "search")
	q.Set("srsearch", term)
	q.Set("srlimit", "1")
	q.Set("format", "json")

	var resp searchResponse
	if err := c.get(ctx, q, &resp); err != nil {
		return "", err
	}
	if len(resp.Query.Search) == 0 {
		return "", nil
	}
	return resp.Query.Search[0].Title, nil
}

// Parse は記事タイトルの本文HTMLを取得する。記事が存在しない場合はnilを返す。
func (c *Client) Parse(ctx context.Context, title string) (*Page, error) {
	q := url.Values{}
	q.Set("action", "parse")
	q.Set("page", title)
	q.Set("prop", "text")
	q.Set("redirects", "1")
	q.Set("formatversion", "2")
	q.Set("format", "json")

	var resp parseResponse
	if err := c.get(ctx, q, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		if resp.Error.Code == "missingtitle" {
			return nil, nil
		}
		return nil, fmt.Errorf("Wikipedia APIがエラーを返しました: %s: %s", resp.Error.Code, resp.Error.Info)
	}
	if resp.Parse == nil {
		return nil, nil
	}
	return &Page{Title: resp.Parse.Title, HTML: resp.Parse.Text}, nil
}

// Fetch は大臣の要約を取得する。
// 名前で検索し、見つからなければ「名前 (役職)」で再検索する。
// どちらでも見つからない場合はHTMLが空の要約を返す（取得済みとして記録するため）。
func (c *Client) Fetch(ctx context.Context, m model.Minister) (*model.WikiSummary, error) {
	terms := []string{m.Name}
	if m.Position != "" {
		terms = append(terms, fmt.Sprintf("%s (%s)", m.Name, m.Position))
	}

	for _, term := range terms {
		page, err := c.find(ctx, term)
		if err != nil {
			return nil, err
		}
		if page == nil {
			continue
		}
		return &model.WikiSummary{
			MinisterID: m.ID,
			Title:      page.Title,
			HTML:       c.cleaner.Clean(page.HTML),
			PageURL:    c.PageURL(page.Title),
			FetchedAt:  c.now(),
		}, nil
	}

	c.logger.Info("Wikipediaの記事が見つかりませんでした",
		slog.String("minister_id", m.ID),
		slog.String("name", m.Name),
	)
	return &model.WikiSummary{MinisterID: m.ID, FetchedAt: c.now()}, nil
}

// PageURL は記事タイトルの閲覧URLを返す。
func (c *Client) PageURL(title string) string {
	return c.origin + "/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

func (c *Client) find(ctx context.Context, term string) (*Page, error) {
	title, err := c.Search(ctx, term)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, nil
	}
	return c.Parse(ctx, title)
}

func (c *Client) get(ctx context.Context, q url.Values, out any) error {
	reqURL := c.origin + "/w/api.php?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Wikipedia APIの呼び出しに失敗しました",
			slog.String("action", q.Get("action")),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Wikipedia APIがエラーステータスを返しました",
			slog.String("action", q.Get("action")),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("Wikipedia APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("Wikipedia APIのレスポンスのパースに失敗しました",
			slog.String("action", q.Get("action")),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
