// Copyright 2024-2026 Aiku AI

package richtext

import (
	"strings"
	"testing"

	"maunium.net/go/mautrix/event"
)

func TestToHTMLPlain(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "hello world", "snake_case_name", "   "} {
		got := ToHTML(in)
		if got.Body != in {
			t.Errorf("ToHTML(%q).Body: got %q, want %q", in, got.Body, in)
		}
		if got.Format != "" || got.FormattedBody != "" {
			t.Errorf("ToHTML(%q): expected no formatting, got %q %q", in, got.Format, got.FormattedBody)
		}
		if got.MsgType != event.MsgText {
			t.Errorf("ToHTML(%q).MsgType: got %q", in, got.MsgType)
		}
	}
}

func TestToHTML(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bold", "**bold text**", "<strong>bold text</strong>"},
		{"italic", "say _hi_ now", "say <em>hi</em> now"},
		{"strike", "~~gone~~", "<del>gone</del>"},
		{"inline code", "run `ls`", "run <code>ls</code>"},
		{"code fence", "```go\nx := 1\n```", `<pre><code class="language-go">x := 1` + "\n" + `</code></pre>`},
		{"fence keeps markdown", "```\n**not bold**```", "<pre><code>**not bold**</code></pre>"},
		{"link", "[docs](https://example.com)", `<a href="https://example.com">docs</a>`},
		{"javascript link", "[click](javascript:void)", "click"},
		{"data link", "[x](data:text/html,hi)", "x"},
		{"heading", "## Title", "<h2>Title</h2>"},
		{"blockquote", "> quoted", "<blockquote>quoted</blockquote>"},
		{"bullets", "- a\n- b", "<ul><li>a</li><li>b</li></ul>"},
		{"numbers", "1. a\n2. b", "<ol><li>a</li><li>b</li></ol>"},
		{"escapes html", "**<script>**", "<strong>&lt;script&gt;</strong>"},
		{"paragraphs", "**a**\n\nb", "<p><strong>a</strong></p><p>b</p>"},
		{"line break", "**a**\nb", "<strong>a</strong><br/>b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ToHTML(tt.in)
			if got.Format != event.FormatHTML {
				t.Fatalf("Format: got %q, want %q", got.Format, event.FormatHTML)
			}
			if got.FormattedBody != tt.want {
				t.Errorf("FormattedBody: got %q, want %q", got.FormattedBody, tt.want)
			}
			if got.Body != tt.in {
				t.Errorf("Body: got %q, want original %q", got.Body, tt.in)
			}
		})
	}
}

func TestToMarkdownFallsBackToBody(t *testing.T) {
	t.Parallel()
	if got := ToMarkdown(nil); got != "" {
		t.Errorf("nil content: got %q", got)
	}
	noFormat := &event.MessageEventContent{Body: "plain", FormattedBody: "<b>ignored</b>"}
	if got := ToMarkdown(noFormat); got != "plain" {
		t.Errorf("no format: got %q, want %q", got, "plain")
	}
	emptyHTML := &event.MessageEventContent{Body: "fallback", Format: event.FormatHTML}
	if got := ToMarkdown(emptyHTML); got != "fallback" {
		t.Errorf("empty formatted body: got %q, want %q", got, "fallback")
	}
}

func TestToMarkdown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bold", "<strong>a</strong> <b>b</b>", "**a** **b**"},
		{"italic", "<em>a</em>", "_a_"},
		{"strike", "<del>a</del>", "~~a~~"},
		{"code", "<code>ls</code>", "`ls`"},
		{"pre", "<pre><code>x := 1</code></pre>", "```\nx := 1\n```"},
		{"pre with language", `<pre><code class="language-go">x</code></pre>`, "```go\nx\n```"},
		{"link", `<a href="https://example.com">docs</a>`, "[docs](https://example.com)"},
		{"heading", "<h3>Title</h3>", "### Title"},
		{"blockquote", "<blockquote>one\ntwo</blockquote>", "> one\n> two"},
		{"bullets", "<ul><li>a</li><li>b</li></ul>", "- a\n- b"},
		{"numbers", "<ol><li>a</li><li>b</li><li>c</li></ol>", "1. a\n2. b\n3. c"},
		{"breaks", "a<br>b<br/>c", "a\nb\nc"},
		{"strips tags", "<span>hi</span> &amp; bye", "hi & bye"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ToMarkdown(&event.MessageEventContent{Format: event.FormatHTML, FormattedBody: tt.in})
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	in := "**bold** and ~~old~~ with `code`"
	got := ToMarkdown(ToHTML(in))
	if got != in {
		t.Errorf("round trip: got %q, want %q", got, in)
	}
	if strings.Contains(got, "<") {
		t.Errorf("round trip left tags: %q", got)
	}
}
