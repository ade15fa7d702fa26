package content

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdown renders markdown bodies before stripping
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough),
)

// StripMarkup reduces an HTML fragment to plain text: script and style
// elements are dropped, text nodes are joined with single spaces and
// whitespace runs are collapsed.
func StripMarkup(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Unparseable input is indexed as-is, whitespace-collapsed
		return strings.Join(strings.Fields(html), " ")
	}

	doc.Find("script, style, noscript").Remove()

	var parts []string
	collectText(doc.Selection, &parts)

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func collectText(selection *goquery.Selection, parts *[]string) {
	selection.Contents().Each(func(i int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "#text":
			*parts = append(*parts, s.Text())
		case "#comment":
		default:
			collectText(s, parts)
		}
	})
}

// RenderMarkdown converts a markdown body to HTML
func RenderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

// PlainText strips a body in the given format ("html" or "markdown")
func PlainText(body string, format string) string {
	if format == "markdown" {
		rendered, err := RenderMarkdown(body)
		if err == nil {
			body = rendered
		}
	}
	return StripMarkup(body)
}
