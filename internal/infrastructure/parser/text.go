package parser

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	bbcodeExpr     = regexp.MustCompile(`\[/?[a-zA-Z0-9*]+(=[^\]]*)?\]`)
	blankLinesExpr = regexp.MustCompile(`\n{3,}`)
	spacesExpr     = regexp.MustCompile(`[ \t\f\v]+`)
	blockTags      = "p, div, li, h1, h2, h3, h4, h5, h6, tr, ul, ol, blockquote, pre"
	bbcodeBullets  = strings.NewReplacer("[*]", "\n- ", "[br]", "\n")
	strictPolicy   = bluemonday.StrictPolicy()
)

// StripBBCode removes [tag] and [/tag] markup used by some feeds; list
// bullets become "- " lines.
func StripBBCode(text string) string {
	return bbcodeExpr.ReplaceAllString(bbcodeBullets.Replace(text), "")
}

// HTMLToText renders markup to plain text, keeping block elements on their own lines.
func HTMLToText(markup string) string {
	if !strings.ContainsAny(markup, "<&") {
		return normalizeSpace(markup)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return normalizeSpace(html.UnescapeString(strictPolicy.Sanitize(markup)))
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})
	doc.Find(blockTags).Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n").AppendHtml("\n")
	})
	return normalizeSpace(doc.Text())
}

// SanitizeText drops any markup and decodes entities.
func SanitizeText(markup string) string {
	return normalizeSpace(html.UnescapeString(strictPolicy.Sanitize(markup)))
}

func normalizeSpace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spacesExpr.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLinesExpr.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
