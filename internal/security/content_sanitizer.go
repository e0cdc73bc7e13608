// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は外部から取得したHTML（Wikipedia要約）を
// 許可リストベースでサニタイズする。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェース。
type ContentSanitizerService interface {
	// Sanitize は許可タグのみを残した安全なHTMLを返す。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が付与される。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 見出し、段落、リスト、表、強調、リンク、https画像を許可する。
// script, iframe, styleおよびon*イベント属性は除去される。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li", "dl", "dt", "dd",
		"h2", "h3", "h4", "h5",
		"blockquote", "pre", "code",
		"strong", "em", "b", "i", "sub", "sup", "span",
		"table", "caption", "thead", "tbody", "tr", "th", "td",
	)
	p.AllowAttrs("colspan", "rowspan").Matching(bluemonday.Integer).OnElements("th", "td")

	// 相対URLは要約の整形時に絶対URLへ書き換え済み
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.RequireNoFollowOnLinks(false)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})

	return &contentSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
