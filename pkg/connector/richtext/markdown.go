// Copyright 2024-2026 Aiku AI

package richtext

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

var (
	htmlPre        = regexp.MustCompile(`(?s)<pre><code(?: class="language-(\w+)")?>(.*?)</code></pre>`)
	htmlCode       = regexp.MustCompile(`<code>(.*?)</code>`)
	htmlStrong     = regexp.MustCompile(`<(?:strong|b)>(.*?)</(?:strong|b)>`)
	htmlEm         = regexp.MustCompile(`<(?:em|i)>(.*?)</(?:em|i)>`)
	htmlDel        = regexp.MustCompile(`<(?:del|s)>(.*?)</(?:del|s)>`)
	htmlLink       = regexp.MustCompile(`<a href="([^"]+)"[^>]*>(.*?)</a>`)
	htmlHeading    = regexp.MustCompile(`<h([1-6])>(.*?)</h[1-6]>`)
	htmlBlockquote = regexp.MustCompile(`(?s)<blockquote>(.*?)</blockquote>`)
	htmlList       = regexp.MustCompile(`(?s)<(ul|ol)>(.*?)</(?:ul|ol)>`)
	htmlItem       = regexp.MustCompile(`(?s)<li>(.*?)</li>`)
	htmlParagraph  = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	htmlBreak      = regexp.MustCompile(`<br\s*/?>`)
	htmlTag        = regexp.MustCompile(`<[^>]+>`)
)

// ToMarkdown converts message content to Mattermost markdown. Content
// without an HTML body is returned as its plain body.
func ToMarkdown(content *event.MessageEventContent) string {
	if content == nil {
		return ""
	}
	if content.Format != event.FormatHTML || content.FormattedBody == "" {
		return content.Body
	}

	text := htmlPre.ReplaceAllString(content.FormattedBody, "```$1\n$2\n```")
	text = htmlCode.ReplaceAllString(text, "`$1`")
	text = htmlStrong.ReplaceAllString(text, "**$1**")
	text = htmlEm.ReplaceAllString(text, "_${1}_")
	text = htmlDel.ReplaceAllString(text, "~~$1~~")
	text = htmlLink.ReplaceAllString(text, "[$2]($1)")
	text = htmlHeading.ReplaceAllStringFunc(text, func(match string) string {
		parts := htmlHeading.FindStringSubmatch(match)
		level, _ := strconv.Atoi(parts[1])
		return strings.Repeat("#", level) + " " + parts[2]
	})
	text = htmlBlockquote.ReplaceAllStringFunc(text, func(match string) string {
		lines := strings.Split(strings.TrimSpace(htmlBlockquote.FindStringSubmatch(match)[1]), "\n")
		for i, line := range lines {
			lines[i] = "> " + strings.TrimSpace(line)
		}
		return strings.Join(lines, "\n")
	})
	text = htmlList.ReplaceAllStringFunc(text, func(match string) string {
		parts := htmlList.FindStringSubmatch(match)
		var lines []string
		for i, item := range htmlItem.FindAllStringSubmatch(parts[2], -1) {
			marker := "-"
			if parts[1] == "ol" {
				marker = strconv.Itoa(i+1) + "."
			}
			lines = append(lines, marker+" "+strings.TrimSpace(item[1]))
		}
		return strings.Join(lines, "\n")
	})
	text = htmlParagraph.ReplaceAllString(text, "$1\n\n")
	text = htmlBreak.ReplaceAllString(text, "\n")
	text = htmlTag.ReplaceAllString(text, "")
	return strings.TrimSpace(html.UnescapeString(text))
}
