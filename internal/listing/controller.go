// Package listing は大臣一覧の段階的な読み込み（無限スクロール）を管理する。
// 検索文字列またはソートキーの変更で一覧をリセットし、近接トリガーごとに次のページを1件ずつ読み込む。
package listing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/ministers/internal/catalog"
	"github.com/hitoshi/ministers/internal/logger"
	"github.com/hitoshi/ministers/internal/model"
	"github.com/hitoshi/ministers/internal/ratingflow"
)

// Fetcher はカタログ読み取りと自分の評価値の取得を行う。
type Fetcher interface {
	ListMinisters(ctx context.Context, req catalog.Request) (*catalog.Page, error)
	MyRatings(ctx context.Context) (map[string]int, error)
}

// State は一覧の読み込み状態。
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateExhausted:
		return "exhausted"
	default:
		return "idle"
	}
}

// Snapshot は表示用の一覧のコピー。
type Snapshot struct {
	Search  string
	Sort    catalog.SortKey
	Items   []model.Minister
	Ratings map[string]int
	Page    int
	Total   int
	HasMore bool
	State   State
}

// Controller は(search, sort)ごとのセッションで一覧を保持する。
// 同時に読み込むページは1件までで、置き換えられたセッションの結果は破棄する。
type Controller struct {
	fetcher  Fetcher
	notifier ratingflow.Notifier
	logger   *slog.Logger

	mu         sync.Mutex
	generation uint64
	identity   model.Identity
	search     string
	sort       catalog.SortKey
	items      []model.Minister
	ratings    map[string]int
	page       int
	total      int
	hasMore    bool
	state      State
}

// NewController はControllerを生成する。初期ソートはcatalog.DefaultSort。
func NewController(fetcher Fetcher, notifier ratingflow.Notifier, l *slog.Logger) *Controller {
	if notifier == nil {
		notifier = ratingflow.NopNotifier
	}
	if l == nil {
		l = slog.Default()
	}
	return &Controller{
		fetcher:  fetcher,
		notifier: notifier,
		logger:   l,
		sort:     catalog.DefaultSort,
		ratings:  map[string]int{},
		hasMore:  true,
	}
}

// Snapshot は現在の表示状態を返す。
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Search:  c.search,
		Sort:    c.sort,
		Items:   append([]model.Minister(nil), c.items...),
		Ratings: lo.Assign(c.ratings),
		Page:    c.page,
		Total:   c.total,
		HasMore: c.hasMore,
		State:   c.state,
	}
}

// Identity は一覧が前提としている操作主体を返す。
func (c *Controller) Identity() model.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Ratings は自分の評価値マップのコピーを返す。
func (c *Controller) Ratings() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Assign(c.ratings)
}

// Start は現在の検索条件で先頭ページから読み込み直す。
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	gen := c.resetLocked()
	c.mu.Unlock()
	return c.load(ctx, gen, 0)
}

// SetQuery は検索文字列とソートキーを設定する。
// いずれかが変わった場合は一覧を空にしてページ0から読み込む。
func (c *Controller) SetQuery(ctx context.Context, search string, sort catalog.SortKey) error {
	c.mu.Lock()
	if c.state != StateIdle && search == c.search && sort == c.sort {
		c.mu.Unlock()
		return nil
	}
	c.search = search
	c.sort = sort
	gen := c.resetLocked()
	c.mu.Unlock()
	return c.load(ctx, gen, 0)
}

// SetSearch は検索文字列のみを変更する。
func (c *Controller) SetSearch(ctx context.Context, search string) error {
	c.mu.Lock()
	sort := c.sort
	c.mu.Unlock()
	return c.SetQuery(ctx, search, sort)
}

// SetSort はソートキーのみを変更する。
func (c *Controller) SetSort(ctx context.Context, sort catalog.SortKey) error {
	c.mu.Lock()
	search := c.search
	c.mu.Unlock()
	return c.SetQuery(ctx, search, sort)
}

// LoadMore は次のページを読み込む。近接トリガーから呼ばれる。
// 読み込み中または残りページがない場合は何もせずfalseを返す。
func (c *Controller) LoadMore(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.state == StateLoading || c.state == StateIdle || !c.hasMore {
		c.mu.Unlock()
		return false, nil
	}
	c.page++
	page := c.page
	gen := c.generation
	c.state = StateLoading
	c.mu.Unlock()

	return true, c.load(ctx, gen, page)
}

// SetIdentity は操作主体を切り替え、自分の評価値マップを取り直す。
// 表示中の一覧はリセットしない。
func (c *Controller) SetIdentity(ctx context.Context, identity model.Identity) error {
	c.mu.Lock()
	if c.identity == identity {
		c.mu.Unlock()
		return nil
	}
	c.identity = identity
	c.ratings = map[string]int{}
	gen := c.generation
	c.mu.Unlock()

	if !identity.IsAuthenticated() {
		return nil
	}

	ratings, err := c.fetcher.MyRatings(ctx)
	if err != nil {
		c.logger.Warn("failed to load own ratings", logger.Err(err))
		c.notifier.Notify(ratingflow.Notice{Level: ratingflow.LevelError, Message: "評価の読み込みに失敗しました。"})
		return fmt.Errorf("自分の評価の取得に失敗しました: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == identity && c.generation == gen {
		c.ratings = ratings
	}
	return nil
}

// ApplyRating は評価の書き込み結果を対象の大臣1件と自分の評価値マップに反映する。
func (c *Controller) ApplyRating(ministerID string, value int, agg model.Aggregate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.items[i].ID == ministerID {
			c.items[i] = c.items[i].WithAggregate(agg)
			break
		}
	}
	c.ratings[ministerID] = value
}

// resetLocked は一覧を初期状態に戻し、新しいセッションの世代を返す。
// 評価値マップは利用者に紐づくため残す。呼び出し側でmuを保持していること。
func (c *Controller) resetLocked() uint64 {
	c.generation++
	c.items = nil
	c.page = 0
	c.total = 0
	c.hasMore = true
	c.state = StateLoading
	return c.generation
}

// load はページを取得してセッションに反映する。
// ページ0では認証済みの場合に自分の評価値マップも並行して取得する。
func (c *Controller) load(ctx context.Context, gen uint64, page int) error {
	c.mu.Lock()
	req := catalog.Build(c.search, c.sort, page)
	identity := c.identity
	c.mu.Unlock()

	var (
		result     *catalog.Page
		ratings    map[string]int
		ratingsErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		result, err = c.fetcher.ListMinisters(gctx, req)
		return err
	})
	if page == 0 && identity.IsAuthenticated() {
		// 自分の評価の取得失敗では一覧の表示を止めない
		g.Go(func() error {
			ratings, ratingsErr = c.fetcher.MyRatings(gctx)
			return nil
		})
	}
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.Debug("discarded superseded page",
			slog.Int("page", page),
			slog.String("search", req.Search),
		)
		return nil
	}

	if err != nil {
		// 次の近接トリガーで同じページを再試行できるよう読み込み前の状態に戻す
		if page > 0 {
			c.page = page - 1
			c.state = StateLoaded
		} else {
			c.state = StateIdle
		}
		c.logger.Warn("failed to load page", slog.Int("page", page), logger.Err(err))
		c.notifier.Notify(ratingflow.Notice{Level: ratingflow.LevelError, Message: "一覧の読み込みに失敗しました。"})
		return fmt.Errorf("ページ%dの読み込みに失敗しました: %w", page, err)
	}

	if page == 0 {
		c.items = result.Items
	} else {
		seen := lo.SliceToMap(c.items, func(m model.Minister) (string, struct{}) { return m.ID, struct{}{} })
		c.items = append(c.items, lo.Reject(result.Items, func(m model.Minister, _ int) bool {
			_, dup := seen[m.ID]
			return dup
		})...)
	}
	switch {
	case ratingsErr != nil:
		c.logger.Warn("failed to load own ratings", logger.Err(ratingsErr))
		c.notifier.Notify(ratingflow.Notice{Level: ratingflow.LevelError, Message: "あなたの評価を取得できませんでした。"})
	case ratings != nil && c.identity == identity:
		c.ratings = ratings
	}
	c.total = result.Total
	c.hasMore = catalog.HasMore(page, len(result.Items), result.Total)
	c.state = StateLoaded
	if !c.hasMore {
		c.state = StateExhausted
	}
	return nil
}

var _ ratingflow.Patcher = (*Controller)(nil)
