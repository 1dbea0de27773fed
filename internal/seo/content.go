package seo

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// wordsPerMinute is the reading speed used for reading-time estimates.
const wordsPerMinute = 225

// Heading is one h2/h3 entry of a post's table of contents.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id,omitempty"`
}

// PlainText strips markup and collapses whitespace.
func PlainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// ReadingMinutes estimates reading time, never less than one minute.
func ReadingMinutes(html string) int {
	words := len(strings.Fields(PlainText(html)))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Excerpt returns the first paragraph's text (or the document text) cut to max runes.
func Excerpt(html string, max int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Truncate(PlainText(html), max)
	}
	first := strings.Join(strings.Fields(doc.Find("p").First().Text()), " ")
	if first == "" {
		first = PlainText(html)
	}
	return Truncate(first, max)
}

// Headings lists h2 and h3 elements in document order.
func Headings(html string) []Heading {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []Heading
	doc.Find("h2, h3").Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return
		}
		level := 2
		if goquery.NodeName(sel) == "h3" {
			level = 3
		}
		id, _ := sel.Attr("id")
		out = append(out, Heading{Level: level, Text: text, ID: id})
	})
	return out
}

// Truncate cuts s to at most max runes on a word boundary, adding an ellipsis
// when anything was removed.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max-1])
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:-") + "…"
}
