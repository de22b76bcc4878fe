package fetcher

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// boilerplate is removed before any text is taken from a page.
const boilerplate = "script, style, nav, footer, header"

// contentSelectors are tried in order; the first one present on the page
// supplies the body text.
var contentSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
	".main-content",
	".page-content",
	"section",
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// everything except word characters, whitespace and basic punctuation
	disallowedRe = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s.,!?;:()\-]`)
)

// CleanText collapses whitespace and strips characters other than letters,
// digits, underscore and .,!?;:-()
func CleanText(s string) string {
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = disallowedRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Extract returns the cleaned title and main text of doc. doc is modified.
func Extract(doc *goquery.Document) (title, body string) {
	title = CleanText(doc.Find("title").First().Text())

	doc.Find(boilerplate).Remove()

	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			body = CleanText(textOf(s))
			break
		}
	}

	if body == "" {
		if b := doc.Find("body"); b.Length() > 0 {
			body = CleanText(textOf(b))
		} else {
			body = CleanText(textOf(doc.Selection))
		}
	}
	return title, body
}

// textOf concatenates the text nodes below s with a space between each, so
// adjacent block elements do not run their words together.
func textOf(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				b.WriteString(c.Text())
				b.WriteByte(' ')
				return
			}
			walk(c)
		})
	}
	walk(s)
	return b.String()
}
