package seo

import (
	"strings"
	"time"

	"github.com/residencyreview/eras-review-api/internal/models"
)

const (
	MaxTitleLength       = 60
	MaxDescriptionLength = 160
)

// Site describes the public website the API serves.
type Site struct {
	Name        string
	URL         string // public front-end origin, no trailing slash
	Description string
	LogoURL     string
	DefaultOG   string
	TwitterUser string
}

// Metadata is everything a page head needs.
type Metadata struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Canonical     string     `json:"canonical"`
	Keywords      []string   `json:"keywords,omitempty"`
	Robots        string     `json:"robots"`
	OGType        string     `json:"ogType"`
	OGImage       string     `json:"ogImage,omitempty"`
	TwitterCard   string     `json:"twitterCard"`
	PublishedTime *time.Time `json:"publishedTime,omitempty"`
	ModifiedTime  *time.Time `json:"modifiedTime,omitempty"`
}

// PostURL is the canonical URL of a blog post.
func (s Site) PostURL(slug string) string {
	return s.URL + "/blog/" + slug
}

// PostMetadata builds head metadata for a blog post, deriving anything the
// post is missing.
func PostMetadata(site Site, post *models.BlogPost) Metadata {
	title := post.MetaTitle
	if title == "" {
		title = post.Title
	}
	desc := post.MetaDescription
	if desc == "" {
		desc = post.Excerpt
	}
	if desc == "" {
		desc = Excerpt(post.ContentHTML, MaxDescriptionLength)
	}

	image := site.DefaultOG
	if post.CoverImageURL != nil && *post.CoverImageURL != "" {
		image = *post.CoverImageURL
	}

	robots := "index, follow"
	if post.Status != models.PostStatusPublished {
		robots = "noindex, nofollow"
	}

	modified := post.UpdatedAt
	return Metadata{
		Title:         Truncate(title, MaxTitleLength),
		Description:   Truncate(desc, MaxDescriptionLength),
		Canonical:     site.PostURL(post.Slug),
		Keywords:      post.Keywords,
		Robots:        robots,
		OGType:        "article",
		OGImage:       image,
		TwitterCard:   "summary_large_image",
		PublishedTime: post.PublishedAt,
		ModifiedTime:  &modified,
	}
}

// PageMetadata builds head metadata for a static marketing page.
func PageMetadata(site Site, path, title, description string) Metadata {
	full := title
	if !strings.Contains(title, site.Name) {
		full = title + " | " + site.Name
	}
	return Metadata{
		Title:       Truncate(full, MaxTitleLength),
		Description: Truncate(description, MaxDescriptionLength),
		Canonical:   site.URL + path,
		Robots:      "index, follow",
		OGType:      "website",
		OGImage:     site.DefaultOG,
		TwitterCard: "summary_large_image",
	}
}
