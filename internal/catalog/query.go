// Package catalog は大臣カタログの読み取りリクエストを組み立てる。
// 検索文字列、ソートキー、ページ番号の3つの入力から
// フィルタ・並び順・範囲・件数要求を持つRequestを生成する。
package catalog

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/ministers/internal/model"
)

// PageSize は1ページあたりの件数。
const PageSize = 12

// MaxRangeSize はサーバーが1リクエストで受け付ける最大件数。
const MaxRangeSize = 100

// SortKey はUIで選択される複合ソートキー（"<対象>_<方向>"）。
type SortKey string

const (
	SortMostRated    SortKey = "count_desc"
	SortHighestRated SortKey = "rating_desc"
	SortLowestRated  SortKey = "rating_asc"
	SortNameAsc      SortKey = "name_asc"
	SortNameDesc     SortKey = "name_desc"
)

// DefaultSort は初期表示のソートキー。
const DefaultSort = SortMostRated

// SortKeys はUIに提示するソートキーの一覧。
var SortKeys = []SortKey{SortMostRated, SortHighestRated, SortLowestRated, SortNameAsc, SortNameDesc}

// Column は並び替え対象のカラム。
type Column string

const (
	ColumnRatingCount   Column = "rating_count"
	ColumnAverageRating Column = "average_rating"
	ColumnName          Column = "name"
)

// Valid はカラムが許可リストに含まれるかを返す。
func (c Column) Valid() bool {
	switch c {
	case ColumnRatingCount, ColumnAverageRating, ColumnName:
		return true
	}
	return false
}

// Order は並び順（カラムと方向）。
type Order struct {
	Column    Column
	Ascending bool
}

// String は"<column>.<asc|desc>"形式を返す。
func (o Order) String() string {
	dir := "desc"
	if o.Ascending {
		dir = "asc"
	}
	return string(o.Column) + "." + dir
}

// Range は両端を含むオフセット範囲 [From, To]。
type Range struct {
	From int
	To   int
}

// Limit は範囲に含まれる件数を返す。
func (r Range) Limit() int {
	return r.To - r.From + 1
}

// Request はカタログ読み取りの要求内容。
type Request struct {
	// Search は名前または政党に対する大文字小文字を区別しない部分一致。空文字の場合はフィルタなし。
	Search     string
	Order      Order
	Range      Range
	CountExact bool
}

// Page はカタログ読み取りの結果。Totalは件数要求時のみ有効。
type Page struct {
	Items   []model.Minister
	Total   int
	Counted bool
}

// ParseSort はソートキーを"_"で分割し、対象カラムと方向に変換する。
// 認識できない対象はnameとして扱い、方向は"asc"のときのみ昇順。
func ParseSort(key SortKey) Order {
	target, dir, _ := strings.Cut(string(key), "_")

	col := ColumnName
	switch target {
	case "rating":
		col = ColumnAverageRating
	case "count":
		col = ColumnRatingCount
	}

	return Order{Column: col, Ascending: dir == "asc"}
}

// Build は検索文字列・ソートキー・ページ番号からRequestを生成する。
// 範囲は [page*PageSize, page*PageSize+PageSize-1] で、総件数を常に要求する。
func Build(search string, sort SortKey, page int) Request {
	if page < 0 {
		page = 0
	}
	from := page * PageSize
	return Request{
		Search:     search,
		Order:      ParseSort(sort),
		Range:      Range{From: from, To: from + PageSize - 1},
		CountExact: true,
	}
}

// HasMore は取得したページの後にさらにページが残っているかを判定する。
// 取得件数がページサイズと等しく、かつ総件数が (page+1)*PageSize を超える場合のみtrue。
func HasMore(page, rows, total int) bool {
	return rows == PageSize && total > (page+1)*PageSize
}

// Values はRequestをHTTPクエリパラメータに変換する。
// 検索文字列が空の場合はsearchパラメータを出力しない。
func (r Request) Values() url.Values {
	v := url.Values{}
	if r.Search != "" {
		v.Set("search", r.Search)
	}
	v.Set("order", r.Order.String())
	v.Set("from", strconv.Itoa(r.Range.From))
	v.Set("to", strconv.Itoa(r.Range.To))
	if r.CountExact {
		v.Set("count", "exact")
	}
	return v
}

// DecodeRequest はHTTPクエリパラメータからRequestを復元する。
// orderはカラムの許可リストで検証し、未指定の場合は名前の昇順、範囲未指定の場合は先頭ページとする。
func DecodeRequest(v url.Values) (Request, error) {
	req := Request{
		Search:     v.Get("search"),
		Order:      Order{Column: ColumnName, Ascending: true},
		Range:      Range{From: 0, To: PageSize - 1},
		CountExact: v.Get("count") == "exact",
	}

	if raw := v.Get("order"); raw != "" {
		col, dir, ok := strings.Cut(raw, ".")
		if !ok || (dir != "asc" && dir != "desc") {
			return Request{}, fmt.Errorf("invalid order: %q", raw)
		}
		req.Order = Order{Column: Column(col), Ascending: dir == "asc"}
		if !req.Order.Column.Valid() {
			return Request{}, fmt.Errorf("invalid order column: %q", col)
		}
	}

	if raw := v.Get("from"); raw != "" {
		from, err := strconv.Atoi(raw)
		if err != nil || from < 0 {
			return Request{}, fmt.Errorf("invalid from: %q", raw)
		}
		req.Range.From = from
		req.Range.To = from + PageSize - 1
	}
	if raw := v.Get("to"); raw != "" {
		to, err := strconv.Atoi(raw)
		if err != nil {
			return Request{}, fmt.Errorf("invalid to: %q", raw)
		}
		req.Range.To = to
	}
	if req.Range.To < req.Range.From {
		return Request{}, fmt.Errorf("invalid range: %d-%d", req.Range.From, req.Range.To)
	}
	if req.Range.Limit() > MaxRangeSize {
		return Request{}, fmt.Errorf("range too large: %d (max %d)", req.Range.Limit(), MaxRangeSize)
	}

	return req, nil
}
