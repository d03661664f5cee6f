// Copyright 2024-2026 Aiku AI

// Package richtext converts between the markdown posted on Mattermost and the
// HTML shown to web clients. Both directions carry text as mautrix message
// content so that plain and formatted bodies travel together.
package richtext

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

var (
	mdBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic     = regexp.MustCompile(`(^|[^*\w])_(.+?)_([^*\w]|$)`)
	mdStrike     = regexp.MustCompile(`~~(.+?)~~`)
	mdCode       = regexp.MustCompile("`([^`]+)`")
	mdFence      = regexp.MustCompile("(?s)```(\\w+)?\\n?(.*?)```")
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdHeading    = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	mdBullet     = regexp.MustCompile(`^[-*]\s+(.+)$`)
	mdNumbered   = regexp.MustCompile(`^\d+\.\s+(.+)$`)
	mdBlockquote = regexp.MustCompile(`^>\s+(.+)$`)

	// Lines are checked one at a time, the patterns above are anchored per line.
	mdMultiline = []*regexp.Regexp{mdHeading, mdBullet, mdNumbered, mdBlockquote}
	mdInline    = []*regexp.Regexp{mdBold, mdItalic, mdStrike, mdCode, mdFence, mdLink}
)

const fencePlaceholder = "\x00FENCE"

func hasMarkdown(text string) bool {
	for _, re := range mdInline {
		if re.MatchString(text) {
			return true
		}
	}
	for _, line := range strings.Split(text, "\n") {
		for _, re := range mdMultiline {
			if re.MatchString(line) {
				return true
			}
		}
	}
	return false
}

// ToHTML renders Mattermost markdown. Text without any markdown is returned
// as a plain body with no formatted body.
func ToHTML(text string) *event.MessageEventContent {
	content := &event.MessageEventContent{MsgType: event.MsgText, Body: text}
	if text == "" || !hasMarkdown(text) {
		return content
	}

	var fences []string
	text = mdFence.ReplaceAllStringFunc(text, func(match string) string {
		parts := mdFence.FindStringSubmatch(match)
		code := "<code>"
		if parts[1] != "" {
			code = `<code class="language-` + html.EscapeString(parts[1]) + `">`
		}
		fences = append(fences, "<pre>"+code+html.EscapeString(parts[2])+"</code></pre>")
		return fencePlaceholder + strconv.Itoa(len(fences)-1) + "\x00"
	})

	var out []string
	var list string
	var items []string
	closeList := func() {
		if len(items) > 0 {
			out = append(out, "<"+list+">"+strings.Join(items, "")+"</"+list+">")
		}
		items, list = nil, ""
	}
	openList := func(kind, item string) {
		if list != kind {
			closeList()
			list = kind
		}
		items = append(items, "<li>"+html.EscapeString(item)+"</li>")
	}
	for _, line := range strings.Split(text, "\n") {
		if m := mdBlockquote.FindStringSubmatch(line); m != nil {
			closeList()
			out = append(out, "<blockquote>"+html.EscapeString(m[1])+"</blockquote>")
		} else if m = mdHeading.FindStringSubmatch(line); m != nil {
			closeList()
			lvl := strconv.Itoa(len(m[1]))
			out = append(out, "<h"+lvl+">"+html.EscapeString(m[2])+"</h"+lvl+">")
		} else if m = mdBullet.FindStringSubmatch(line); m != nil {
			openList("ul", m[1])
		} else if m = mdNumbered.FindStringSubmatch(line); m != nil {
			openList("ol", m[1])
		} else {
			closeList()
			out = append(out, html.EscapeString(line))
		}
	}
	closeList()

	formatted := strings.Join(out, "\n")
	formatted = mdCode.ReplaceAllString(formatted, "<code>$1</code>")
	formatted = mdBold.ReplaceAllString(formatted, "<strong>$1</strong>")
	formatted = mdItalic.ReplaceAllString(formatted, "$1<em>$2</em>$3")
	formatted = mdStrike.ReplaceAllString(formatted, "<del>$1</del>")
	formatted = mdLink.ReplaceAllStringFunc(formatted, renderLink)
	formatted = strings.ReplaceAll(formatted, "\n\n", "</p><p>")
	formatted = strings.ReplaceAll(formatted, "\n", "<br/>")
	if strings.Contains(formatted, "</p><p>") {
		formatted = "<p>" + formatted + "</p>"
	}
	// Fences go back last so their newlines survive.
	for i, fence := range fences {
		formatted = strings.Replace(formatted, fencePlaceholder+strconv.Itoa(i)+"\x00", fence, 1)
	}

	content.Format = event.FormatHTML
	content.FormattedBody = formatted
	return content
}

// renderLink keeps http, https and mailto links. Other schemes are reduced
// to their text.
func renderLink(match string) string {
	parts := mdLink.FindStringSubmatch(match)
	label, href := parts[1], parts[2]
	scheme := strings.ToLower(strings.TrimSpace(href))
	for _, safe := range []string{"http://", "https://", "mailto:"} {
		if strings.HasPrefix(scheme, safe) {
			return `<a href="` + href + `">` + label + `</a>`
		}
	}
	return label
}
