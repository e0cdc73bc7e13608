// Package browse は大臣カタログを閲覧・評価する対話型の端末ビューを提供する。
package browse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"github.com/hitoshi/ministers/internal/catalog"
	"github.com/hitoshi/ministers/internal/listing"
	"github.com/hitoshi/ministers/internal/model"
	"github.com/hitoshi/ministers/internal/ratingflow"
)

// API はビューが使用するリモートエンドポイント。
type API interface {
	listing.Fetcher
	ratingflow.RatingWriter
	GetMinister(ctx context.Context, id string) (*model.Minister, error)
	GetWiki(ctx context.Context, id string) (*model.WikiSummary, error)
	History(ctx context.Context) ([]model.HistoryEntry, error)
	UpdateRatingByID(ctx context.Context, ratingID string, value int) (*model.Aggregate, error)
}

// Sessions は操作主体の取得・購読・切り替えを行う。
type Sessions interface {
	Current() model.Identity
	Subscribe(fn func(model.Identity)) (cancel func())
	SignIn(token string) (model.Identity, error)
	SignOut()
}

// LocalState は端末ローカルの永続状態。
type LocalState interface {
	ratingflow.AnonymousGuard
	HasSeenWelcome(ctx context.Context) (bool, error)
	MarkWelcomeSeen(ctx context.Context) error
}

// WelcomeMessage は初回起動時に1度だけ表示するメッセージ。
const WelcomeMessage = `大臣評価へようこそ。
大臣を検索し、1〜5の星で評価できます。匿名でも評価できますが、1つの端末につき1大臣1回までです。
ログインすると自分の評価を後から編集できます。"help"でコマンド一覧を表示します。`

// View は端末ビュー。コマンドを1行ずつ処理する。
type View struct {
	api      API
	sessions Sessions
	local    LocalState
	logger   *slog.Logger

	outMu sync.Mutex
	out   io.Writer

	controller *listing.Controller
	resolver   *ratingflow.Resolver
	submitter  *ratingflow.Submitter
	editor     *ratingflow.Editor
	trigger    *listing.Trigger

	// 近接トリガー経由の読み込みに使うコンテキストと結果
	triggerCtx context.Context
	triggerErr error

	// 最後に表示した評価履歴。history-editの番号はこれを指す
	history []model.HistoryEntry
}

// New はViewを生成する。
func New(api API, sessions Sessions, local LocalState, out io.Writer, l *slog.Logger) *View {
	if l == nil {
		l = slog.Default()
	}
	v := &View{api: api, sessions: sessions, local: local, out: out, logger: l}

	notifier := ratingflow.NotifierFunc(v.notify)
	v.controller = listing.NewController(api, notifier, l)
	v.resolver = ratingflow.NewResolver(local)
	v.submitter = ratingflow.NewSubmitter(api, local, v.controller, notifier, l)
	v.editor = ratingflow.NewEditor(api, v.controller, notifier, l)
	v.trigger = listing.NewTrigger(func() {
		_, v.triggerErr = v.controller.LoadMore(v.triggerCtx)
	})
	return v
}

// Run は入力が終わるかquitコマンドまでコマンドを処理する。
func (v *View) Run(ctx context.Context, in io.Reader) error {
	cancel := v.sessions.Subscribe(func(identity model.Identity) {
		if err := v.controller.SetIdentity(ctx, identity); err != nil {
			v.logger.Debug("identity refresh failed", slog.String("error", err.Error()))
		}
	})
	defer cancel()

	v.showWelcome(ctx)

	if err := v.controller.SetIdentity(ctx, v.sessions.Current()); err != nil {
		v.logger.Debug("initial ratings unavailable", slog.String("error", err.Error()))
	}
	if err := v.controller.Start(ctx); err == nil {
		v.render(ctx)
	}

	scanner := bufio.NewScanner(in)
	v.prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		quit := v.Execute(ctx, scanner.Text())
		if quit {
			return nil
		}
		v.prompt()
	}
	return scanner.Err()
}

// Execute は1行のコマンドを処理する。quitの場合はtrueを返す。
func (v *View) Execute(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		v.printHelp()
	case "search":
		if err := v.controller.SetSearch(ctx, strings.Join(args, " ")); err == nil {
			v.render(ctx)
		}
	case "sort":
		v.sort(ctx, args)
	case "list":
		v.render(ctx)
	case "more":
		v.more(ctx)
	case "rate":
		v.rate(ctx, args)
	case "edit":
		v.edit(ctx, args)
	case "cancel":
		v.cancel(args)
	case "show":
		v.show(ctx, args)
	case "history":
		v.showHistory(ctx)
	case "history-edit":
		v.editHistory(ctx, args)
	case "login":
		v.login(args)
	case "logout":
		v.sessions.SignOut()
		v.printf("ログアウトしました。\n")
	default:
		v.printf("不明なコマンドです: %s（helpで一覧を表示）\n", cmd)
	}
	return false
}

func (v *View) showWelcome(ctx context.Context) {
	seen, err := v.local.HasSeenWelcome(ctx)
	if err != nil {
		v.logger.Warn("failed to read welcome flag", slog.String("error", err.Error()))
		return
	}
	if seen {
		return
	}
	v.printf("%s\n\n", WelcomeMessage)
	if err := v.local.MarkWelcomeSeen(ctx); err != nil {
		v.logger.Warn("failed to store welcome flag", slog.String("error", err.Error()))
	}
}

func (v *View) sort(ctx context.Context, args []string) {
	if len(args) != 1 || !lo.Contains(catalog.SortKeys, catalog.SortKey(args[0])) {
		v.printf("使い方: sort <%s>\n", strings.Join(sortKeyNames(), "|"))
		return
	}
	if err := v.controller.SetSort(ctx, catalog.SortKey(args[0])); err == nil {
		v.render(ctx)
	}
}

// more は一覧の末尾が表示されたものとして近接トリガーに通知する。
func (v *View) more(ctx context.Context) {
	snap := v.controller.Snapshot()
	if len(snap.Items) == 0 || !snap.HasMore {
		v.printf("これ以上の大臣はいません。\n")
		return
	}
	before := len(snap.Items)
	last := snap.Items[before-1].ID

	v.triggerCtx, v.triggerErr = ctx, nil
	if !v.trigger.Visible(last) {
		v.printf("読み込み中です。\n")
		return
	}
	if v.triggerErr != nil {
		// 末尾の要素が一度画面外に出たものとして再試行を可能にする
		v.trigger.Hidden(last)
		return
	}
	if len(v.controller.Snapshot().Items) == before {
		// 重複行だけのページでは末尾が変わらないため、次のmoreで読み込めるよう戻す
		v.trigger.Hidden(last)
	}
	v.renderFrom(ctx, before)
}

func (v *View) rate(ctx context.Context, args []string) {
	if len(args) != 2 {
		v.printf("使い方: rate <番号> <1-5>\n")
		return
	}
	m, ok := v.lookup(args[0])
	if !ok {
		return
	}
	value, err := strconv.Atoi(args[1])
	if err != nil {
		value = 0
	}

	identity := v.sessions.Current()
	verdict, err := v.resolver.Resolve(ctx, m.ID, identity, v.controller.Ratings())
	if err != nil {
		v.notify(ratingflow.Notice{Level: ratingflow.LevelError, Message: "評価状態を確認できません。"})
		return
	}
	if verdict.Rated() {
		if verdict.Channel == model.ChannelAuthenticated {
			v.printf("%sは評価済みです（★%d）。edit %s <1-5> で変更できます。\n", m.Name, verdict.Value, args[0])
		} else {
			v.printf("%sはこの端末から評価済みです。\n", m.Name)
		}
		return
	}

	if _, err := v.submitter.Submit(ctx, identity, m.ID, value); err != nil {
		if errors.Is(err, ratingflow.ErrInFlight) {
			v.printf("送信中です。\n")
		}
		return
	}
	v.renderOne(ctx, m.ID)
}

func (v *View) edit(ctx context.Context, args []string) {
	if len(args) < 1 || len(args) > 2 {
		v.printf("使い方: edit <番号> [1-5]\n")
		return
	}
	m, ok := v.lookup(args[0])
	if !ok {
		return
	}
	identity := v.sessions.Current()

	if _, editing := v.editor.Editing(m.ID); !editing {
		if err := v.editor.Begin(identity, m.ID, v.controller.Ratings()); err != nil {
			v.printf("%s\n", errorMessage(err))
			return
		}
	}
	prior, _ := v.editor.Editing(m.ID)
	if len(args) == 1 {
		v.printf("%sの評価を編集中です（現在★%d）。edit %s <1-5> で確定、cancel %s で中止します。\n", m.Name, prior, args[0], args[0])
		return
	}

	value, err := strconv.Atoi(args[1])
	if err != nil {
		value = 0
	}
	if _, err := v.editor.Commit(ctx, identity, m.ID, value); err != nil {
		v.printf("編集モードのままです（現在★%d）。\n", prior)
		return
	}
	v.renderOne(ctx, m.ID)
}

func (v *View) cancel(args []string) {
	if len(args) != 1 {
		v.printf("使い方: cancel <番号>\n")
		return
	}
	m, ok := v.lookup(args[0])
	if !ok {
		return
	}
	v.editor.Cancel(m.ID)
	v.printf("%sの編集を中止しました。\n", m.Name)
}

func (v *View) show(ctx context.Context, args []string) {
	if len(args) != 1 {
		v.printf("使い方: show <番号|ID>\n")
		return
	}
	id := args[0]
	if m, ok := v.itemAt(args[0]); ok {
		id = m.ID
	}

	m, err := v.api.GetMinister(ctx, id)
	if err != nil {
		if model.KindOf(err) == model.KindNotFound {
			v.printf("== 大臣が見つかりません ==\n")
		} else {
			v.notify(ratingflow.Notice{Level: ratingflow.LevelError, Message: errorMessage(err)})
		}
		return
	}

	v.printf("== %s ==\n政党: %s\n役職: %s\n評価: %s\n", m.Name, m.Party, m.Position, stars(m.AverageRating, m.RatingCount))
	if m.PhotoURL != nil {
		v.printf("写真: %s\n", *m.PhotoURL)
	}

	wiki, err := v.api.GetWiki(ctx, m.ID)
	switch {
	case err == nil:
		v.printf("\n%s\n(%s)\n", htmlText(wiki.HTML), wiki.PageURL)
	case model.KindOf(err) == model.KindNotFound:
		v.printf("\nWikipediaの要約はありません。\n")
	default:
		v.logger.Debug("wiki unavailable", slog.String("minister_id", m.ID), slog.String("error", err.Error()))
	}
}

func (v *View) showHistory(ctx context.Context) {
	if !v.sessions.Current().IsAuthenticated() {
		v.printf("評価履歴を見るにはログインしてください。\n")
		return
	}
	entries, err := v.api.History(ctx)
	if err != nil {
		v.notify(ratingflow.Notice{Level: ratingflow.LevelError, Message: errorMessage(err)})
		return
	}
	v.history = entries
	if len(entries) == 0 {
		v.printf("まだ評価していません。\n")
		return
	}
	for i, e := range entries {
		v.printf("%3d. %s  %-24s %-20s ★%d\n", i+1, e.CreatedAt.Format("2006-01-02"), e.MinisterName, e.MinisterPosition, e.Value)
	}
}

// editHistory は評価履歴の番号で指定した評価を変更し、一覧の該当行にも反映する。
func (v *View) editHistory(ctx context.Context, args []string) {
	if len(args) != 2 {
		v.printf("使い方: history-edit <履歴の番号> <1-5>\n")
		return
	}
	if !v.sessions.Current().IsAuthenticated() {
		v.printf("%s\n", model.NewUnauthorizedError().Message)
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(v.history) {
		v.printf("番号が評価履歴にありません: %s（先にhistoryを実行してください）\n", args[0])
		return
	}
	value, err := strconv.Atoi(args[1])
	if err != nil || !model.ValidRatingValue(value) {
		v.notify(ratingflow.Notice{Level: ratingflow.LevelError, Message: model.NewInvalidRatingError(value).Message})
		return
	}

	entry := v.history[n-1]
	agg, err := v.api.UpdateRatingByID(ctx, entry.RatingID, value)
	if err != nil {
		v.logger.Warn("failed to update rating from history",
			slog.String("rating_id", entry.RatingID),
			slog.String("error", err.Error()),
		)
		v.notify(ratingflow.Notice{Level: ratingflow.LevelError, Message: errorMessage(err)})
		return
	}

	v.history[n-1].Value = value
	v.controller.ApplyRating(entry.MinisterID, value, *agg)
	v.notify(ratingflow.Notice{Level: ratingflow.LevelInfo, Message: fmt.Sprintf("%sの評価を★%dに更新しました。", entry.MinisterName, value)})
	v.renderOne(ctx, entry.MinisterID)
}

// SessionExpired はアクセストークンがサーバーに拒否されたときに匿名へ戻す。
func (v *View) SessionExpired() {
	if !v.sessions.Current().IsAuthenticated() {
		return
	}
	v.sessions.SignOut()
	v.notify(ratingflow.Notice{Level: ratingflow.LevelError, Message: "ログインの有効期限が切れたため、匿名に戻りました。"})
}

func (v *View) login(args []string) {
	if len(args) != 1 {
		v.printf("使い方: login <アクセストークン>\n")
		return
	}
	identity, err := v.sessions.SignIn(args[0])
	if err != nil {
		v.notify(ratingflow.Notice{Level: ratingflow.LevelError, Message: err.Error()})
		return
	}
	name := identity.Email
	if name == "" {
		name = identity.UserID
	}
	v.printf("%sとしてログインしました。\n", name)
}

// lookup は一覧の番号から大臣を取得する。見つからない場合はメッセージを表示する。
func (v *View) lookup(arg string) (model.Minister, bool) {
	m, ok := v.itemAt(arg)
	if !ok {
		v.printf("番号が一覧にありません: %s\n", arg)
	}
	return m, ok
}

func (v *View) itemAt(arg string) (model.Minister, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return model.Minister{}, false
	}
	items := v.controller.Snapshot().Items
	if n < 1 || n > len(items) {
		return model.Minister{}, false
	}
	return items[n-1], true
}

func (v *View) render(ctx context.Context) {
	snap := v.controller.Snapshot()
	label := "（検索なし）"
	if snap.Search != "" {
		label = fmt.Sprintf("「%s」", snap.Search)
	}
	v.printf("-- %s 並び順: %s 件数: %d --\n", label, snap.Sort, snap.Total)
	if len(snap.Items) == 0 {
		v.printf("該当する大臣はいません。\n")
		return
	}
	v.renderFrom(ctx, 0)
}

// renderFrom はfrom番目以降の行を表示し、末尾の要素を近接トリガーで追跡する。
func (v *View) renderFrom(ctx context.Context, from int) {
	snap := v.controller.Snapshot()
	identity := v.sessions.Current()
	for i := from; i < len(snap.Items); i++ {
		v.printf("%s\n", v.line(ctx, i+1, snap.Items[i], identity, snap.Ratings))
	}
	if len(snap.Items) > 0 {
		v.trigger.Track(snap.Items[len(snap.Items)-1].ID)
	}
	if snap.HasMore {
		v.printf("（moreで続きを表示）\n")
	}
}

func (v *View) renderOne(ctx context.Context, ministerID string) {
	snap := v.controller.Snapshot()
	identity := v.sessions.Current()
	for i, m := range snap.Items {
		if m.ID == ministerID {
			v.printf("%s\n", v.line(ctx, i+1, m, identity, snap.Ratings))
			return
		}
	}
}

func (v *View) line(ctx context.Context, n int, m model.Minister, identity model.Identity, ratings map[string]int) string {
	mark := ""
	if verdict, err := v.resolver.Resolve(ctx, m.ID, identity, ratings); err == nil && verdict.Rated() {
		mark = " [評価済み]"
		if verdict.Channel == model.ChannelAuthenticated {
			mark = fmt.Sprintf(" [あなたの評価 ★%d]", verdict.Value)
		}
	}
	if _, editing := v.editor.Editing(m.ID); editing {
		mark += " [編集中]"
	}
	return fmt.Sprintf("%3d. %-24s %-16s %-20s %s%s", n, m.Name, m.Party, m.Position, stars(m.AverageRating, m.RatingCount), mark)
}

func (v *View) notify(n ratingflow.Notice) {
	prefix := "*"
	if n.Level == ratingflow.LevelError {
		prefix = "!"
	}
	v.printf("%s %s\n", prefix, n.Message)
}

func (v *View) prompt() {
	identity := v.sessions.Current()
	who := "anonymous"
	if identity.IsAuthenticated() {
		who = lo.Ternary(identity.Email != "", identity.Email, identity.UserID)
	}
	v.printf("%s> ", who)
}

func (v *View) printHelp() {
	v.printf(`コマンド:
  search [文字列]        名前・政党で絞り込み（空で解除）
  sort <キー>            並び順: %s
  list                   現在の一覧を再表示
  more                   続きを読み込む
  show <番号>            大臣の詳細とWikipediaの要約
  rate <番号> <1-5>      評価する
  edit <番号> [1-5]      自分の評価を編集する（ログイン時のみ）
  cancel <番号>          編集を中止する
  history                自分の評価履歴（ログイン時のみ）
  history-edit <n> <1-5> 評価履歴のn番目の評価を変更する
  login <トークン>       ログイン
  logout                 ログアウト
  quit                   終了
`, strings.Join(sortKeyNames(), ", "))
}

func (v *View) printf(format string, args ...any) {
	v.outMu.Lock()
	defer v.outMu.Unlock()
	fmt.Fprintf(v.out, format, args...)
}

func sortKeyNames() []string {
	return lo.Map(catalog.SortKeys, func(k catalog.SortKey, _ int) string { return string(k) })
}

// stars は平均評価と件数を表示用に整形する。
func stars(avg float64, count int) string {
	if count == 0 {
		return "未評価"
	}
	return fmt.Sprintf("★%.1f (%d件)", avg, count)
}

// htmlText はサニタイズ済みHTMLから本文テキストを取り出す。
func htmlText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func errorMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
