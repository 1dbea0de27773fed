package seo

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/residencyreview/eras-review-api/internal/models"
)

// StaticPage is a marketing page listed in the sitemap.
type StaticPage struct {
	Path       string
	ChangeFreq string
	Priority   float64
}

// MarketingPages are the public pages outside the blog.
var MarketingPages = []StaticPage{
	{Path: "/", ChangeFreq: "weekly", Priority: 1.0},
	{Path: "/pricing", ChangeFreq: "monthly", Priority: 0.9},
	{Path: "/services/personal-statement-review", ChangeFreq: "monthly", Priority: 0.8},
	{Path: "/services/eras-application-review", ChangeFreq: "monthly", Priority: 0.8},
	{Path: "/services/mock-interviews", ChangeFreq: "monthly", Priority: 0.8},
	{Path: "/about", ChangeFreq: "yearly", Priority: 0.5},
	{Path: "/contact", ChangeFreq: "yearly", Priority: 0.5},
	{Path: "/blog", ChangeFreq: "daily", Priority: 0.7},
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// Sitemap renders sitemap.xml for the marketing pages and published posts.
func Sitemap(site Site, pages []StaticPage, posts []models.BlogPost) ([]byte, error) {
	set := urlSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range pages {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        site.URL + p.Path,
			ChangeFreq: p.ChangeFreq,
			Priority:   fmt.Sprintf("%.1f", p.Priority),
		})
	}
	for _, post := range posts {
		if post.Status != models.PostStatusPublished {
			continue
		}
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        site.PostURL(post.Slug),
			LastMod:    post.UpdatedAt.UTC().Format(time.RFC3339),
			ChangeFreq: "monthly",
			Priority:   "0.6",
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return nil, fmt.Errorf("encode sitemap: %w", err)
	}
	return buf.Bytes(), nil
}

type rss struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        string   `xml:"guid"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate,omitempty"`
	Categories  []string `xml:"category,omitempty"`
}

// RSS renders an RSS 2.0 feed of published posts, newest first as given.
func RSS(site Site, posts []models.BlogPost) ([]byte, error) {
	ch := rssChannel{
		Title:       site.Name + " Blog",
		Link:        site.URL + "/blog",
		Description: site.Description,
		Language:    "en-us",
	}
	for _, post := range posts {
		if post.Status != models.PostStatusPublished || post.PublishedAt == nil {
			continue
		}
		if ch.LastBuildDate == "" {
			ch.LastBuildDate = post.PublishedAt.UTC().Format(time.RFC1123Z)
		}
		desc := post.Excerpt
		if desc == "" {
			desc = Excerpt(post.ContentHTML, 300)
		}
		ch.Items = append(ch.Items, rssItem{
			Title:       post.Title,
			Link:        site.PostURL(post.Slug),
			GUID:        site.PostURL(post.Slug),
			Description: desc,
			PubDate:     post.PublishedAt.UTC().Format(time.RFC1123Z),
			Categories:  post.Tags,
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(rss{Version: "2.0", Channel: ch}); err != nil {
		return nil, fmt.Errorf("encode rss: %w", err)
	}
	return buf.Bytes(), nil
}

// Robots renders robots.txt, keeping crawlers out of private areas.
func Robots(site Site) string {
	return fmt.Sprintf(`User-agent: *
Allow: /
Disallow: /dashboard
Disallow: /admin
Disallow: /checkout
Disallow: /v1/

Sitemap: %s/sitemap.xml
`, site.URL)
}
