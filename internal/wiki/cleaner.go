package wiki

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hitoshi/ministers/internal/security"
)

// removedSelectors は要約表示に不要な要素。
var removedSelectors = []string{
	".mw-editsection",
	"sup.reference",
	".noprint",
	`div[role="navigation"]`,
	"#toc",
	".infobox",
	".thumb",
	".mw-references-wrap",
	".reflist",
}

// Cleaner はWikipediaの本文HTMLを表示用に整形する。
type Cleaner struct {
	origin    string
	sanitizer security.ContentSanitizerService
}

// NewCleaner はCleanerを生成する。originは相対リンクの書き換え先。
func NewCleaner(origin string, sanitizer security.ContentSanitizerService) *Cleaner {
	return &Cleaner{origin: strings.TrimRight(origin, "/"), sanitizer: sanitizer}
}

// Clean は不要要素を除去し、リンクを絶対URLの新規タブリンクに書き換えた上でサニタイズする。
// パースできない入力には空文字を返す。
func (c *Cleaner) Clean(rawHTML string) string {
	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(rawHTML), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return ""
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}

	doc := goquery.NewDocumentFromNode(container)
	for _, sel := range removedSelectors {
		doc.Find(sel).Remove()
	}

	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			a.SetAttr("href", c.absolute(href))
		}
		a.SetAttr("target", "_blank")
		a.SetAttr("rel", "noopener noreferrer")
	})
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok {
			img.SetAttr("src", c.absolute(src))
		}
	})

	var buf bytes.Buffer
	for n := container.FirstChild; n != nil; n = n.NextSibling {
		if err := html.Render(&buf, n); err != nil {
			return ""
		}
	}

	out := buf.String()
	if c.sanitizer != nil {
		out = c.sanitizer.Sanitize(out)
	}
	return strings.TrimSpace(out)
}

// absolute はプロトコル相対URLとルート相対URLを絶対URLに変換する。
func (c *Cleaner) absolute(ref string) string {
	switch {
	case strings.HasPrefix(ref, "//"):
		return "https:" + ref
	case strings.HasPrefix(ref, "/"):
		return c.origin + ref
	default:
		return ref
	}
}
