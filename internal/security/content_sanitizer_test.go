package security

import (
	"strings"
	"testing"
)

// TestSanitize_AllowedTags は要約に必要なタグが通過することを検証する。
func TestSanitize_AllowedTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{"段落", "<p>Member of Parliament</p>", []string{"<p>Member of Parliament</p>"}},
		{"見出し", "<h2>Early life</h2>", []string{"<h2>Early life</h2>"}},
		{"リスト", "<ul><li>Finance</li><li>Defence</li></ul>", []string{"<ul>", "<li>Finance</li>", "</ul>"}},
		{"表", `<table><tr><th colspan="2">Term</th></tr><tr><td>2019</td><td>2024</td></tr></table>`,
			[]string{"<table>", `<th colspan="2">`, "<td>2019</td>"}},
		{"強調", "<b>Born</b> <i>1959</i>", []string{"<b>Born</b>", "<i>1959</i>"}},
		{"https画像", `<img src="https://upload.wikimedia.org/a.jpg" alt="portrait">`,
			[]string{"<img", "https://upload.wikimedia.org/a.jpg", `alt="portrait"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_ForbiddenContent は危険なタグと属性が除去されることを検証する。
func TestSanitize_ForbiddenContent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name         string
		input        string
		wantAbsent   []string
		wantContains []string
	}{
		{"script", `<p>a</p><script>alert('xss')</script>`, []string{"<script", "alert"}, []string{"<p>a</p>"}},
		{"iframe", `<p>a</p><iframe src="https://evil.example"></iframe>`, []string{"<iframe", "evil.example"}, []string{"<p>a</p>"}},
		{"style", `<style>body{display:none}</style><p>a</p>`, []string{"<style", "display:none"}, []string{"<p>a</p>"}},
		{"onclick", `<p onclick="steal()">a</p>`, []string{"onclick", "steal"}, []string{"<p>a</p>"}},
		{"onerror", `<img src="https://x.example/a.png" onerror="steal()">`, []string{"onerror"}, []string{"<img"}},
		{"javascript href", `<a href="javascript:alert(1)">x</a>`, []string{"javascript:"}, []string{"x"}},
		{"http画像", `<img src="http://x.example/a.png">`, []string{"http://x.example"}, nil},
		{"data画像", `<img src="data:image/png;base64,AAAA">`, []string{"data:"}, nil},
		{"相対リンク", `<a href="/wiki/Delhi">Delhi</a>`, []string{"/wiki/Delhi"}, []string{"Delhi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should not contain %q", tt.input, got, absent)
				}
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_AnchorAttributes は絶対URLのリンクに新規タブ属性が付与されることを検証する。
func TestSanitize_AnchorAttributes(t *testing.T) {
	sanitizer := NewContentSanitizer()

	got := sanitizer.Sanitize(`<a href="https://en.wikipedia.org/wiki/Lok_Sabha">Lok Sabha</a>`)
	for _, want := range []string{`target="_blank"`, "noopener", "noreferrer", `href="https://en.wikipedia.org/wiki/Lok_Sabha"`} {
		if !strings.Contains(got, want) {
			t.Errorf("Sanitize() = %q, expected to contain %q", got, want)
		}
	}
}

// TestSanitize_EmptyAndIdempotent は空入力と冪等性を検証する。
func TestSanitize_EmptyAndIdempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}

	input := `<p>Minister of <a href="https://en.wikipedia.org/wiki/Finance">Finance</a></p>`
	once := sanitizer.Sanitize(input)
	twice := sanitizer.Sanitize(once)
	if once != twice {
		t.Errorf("Sanitize is not idempotent:\n first: %q\nsecond: %q", once, twice)
	}
}

// TestContentSanitizerInterface はインターフェースの実装を検証する。
func TestContentSanitizerInterface(t *testing.T) {
	var _ ContentSanitizerService = NewContentSanitizer()
}
