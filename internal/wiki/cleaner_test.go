package wiki

import (
	"strings"
	"testing"

	"github.com/hitoshi/ministers/internal/security"
)

func TestCleaner_RemovesNoise(t *testing.T) {
	c := NewCleaner(DefaultOrigin, security.NewContentSanitizer())

	raw := `<div class="mw-parser-output">
<table class="infobox"><tr><td>Born 1959</td></tr></table>
<div id="toc">Contents</div>
<p>Leader<sup class="reference">[1]</sup> of the party.<span class="mw-editsection">edit</span></p>
<div role="navigation">Navbox</div>
<div class="thumb">Photo caption</div>
<div class="noprint">Print hint</div>
<div class="reflist">References</div>
<div class="mw-references-wrap">More references</div>
</div>`

	got := c.Clean(raw)

	for _, absent := range []string{"Born 1959", "Contents", "[1]", "edit", "Navbox", "Photo caption", "Print hint", "References"} {
		if strings.Contains(got, absent) {
			t.Errorf("Clean() = %q, should not contain %q", got, absent)
		}
	}
	if !strings.Contains(got, "Leader of the party.") {
		t.Errorf("Clean() = %q, expected body text", got)
	}
}

func TestCleaner_RewritesLinks(t *testing.T) {
	c := NewCleaner(DefaultOrigin+"/", security.NewContentSanitizer())

	got := c.Clean(`<p><a href="/wiki/Lok_Sabha">Lok Sabha</a> <a href="https://example.org/x">ext</a>` +
		`<img src="//upload.wikimedia.org/a.jpg" alt="a"></p>`)

	for _, want := range []string{
		`href="https://en.wikipedia.org/wiki/Lok_Sabha"`,
		`href="https://example.org/x"`,
		`target="_blank"`,
		"noopener",
		`src="https://upload.wikimedia.org/a.jpg"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Clean() = %q, expected to contain %q", got, want)
		}
	}
}

func TestCleaner_WithoutSanitizer(t *testing.T) {
	c := NewCleaner(DefaultOrigin, nil)

	got := c.Clean(`<p><a href="/wiki/Delhi">Delhi</a></p>`)
	want := `<p><a href="https://en.wikipedia.org/wiki/Delhi" target="_blank" rel="noopener noreferrer">Delhi</a></p>`
	if got != want {
		t.Errorf("Clean() = %q, want %q", got, want)
	}
}

func TestCleaner_Empty(t *testing.T) {
	c := NewCleaner(DefaultOrigin, security.NewContentSanitizer())
	if got := c.Clean(""); got != "" {
		t.Errorf("Clean(\"\") = %q, want empty", got)
	}
}
