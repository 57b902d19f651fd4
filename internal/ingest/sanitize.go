package ingest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripHTML reduces a possibly-HTML description to plain text with block
// elements separated by newlines. Plain-text input passes through with
// whitespace collapsed.
func StripHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.ContainsRune(s, '<') {
		return collapseWhitespace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseWhitespace(s)
	}

	doc.Find("script, style").Remove()
	// keep block boundaries as line breaks so the keyword heuristics in
	// the analyzer still see one statement per line
	doc.Find("br, p, li, div, h1, h2, h3, h4").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})

	return collapseWhitespace(doc.Text())
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
