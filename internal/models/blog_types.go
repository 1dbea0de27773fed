package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	PostStatusDraft     = "DRAFT"
	PostStatusPublished = "PUBLISHED"
)

// FAQ is one question/answer pair rendered as FAQPage structured data.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// BlogPost defines the model for the 'blog_posts' table.
// Keywords, Tags and FAQ are stored as JSON text columns.
type BlogPost struct {
	ID              int64      `json:"id" db:"id"`
	Slug            string     `json:"slug" db:"slug"`
	Title           string     `json:"title" db:"title"`
	Excerpt         string     `json:"excerpt" db:"excerpt"`
	ContentHTML     string     `json:"contentHtml" db:"content_html"`
	MetaTitle       string     `json:"metaTitle" db:"meta_title"`
	MetaDescription string     `json:"metaDescription" db:"meta_description"`
	KeywordsJSON    string     `json:"-" db:"keywords"`
	TagsJSON        string     `json:"-" db:"tags"`
	FAQJSON         string     `json:"-" db:"faq"`
	CoverImageURL   *string    `json:"coverImageUrl,omitempty" db:"cover_image_url"`
	Author          string     `json:"author" db:"author"`
	Status          string     `json:"status" db:"status"`
	AIGenerated     bool       `json:"aiGenerated" db:"ai_generated"`
	Topic           *string    `json:"topic,omitempty" db:"topic"`
	ReadingMinutes  int        `json:"readingMinutes" db:"reading_minutes"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty" db:"published_at"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`

	// Decoded from the JSON columns for responses.
	Keywords []string `json:"keywords" db:"-"`
	Tags     []string `json:"tags" db:"-"`
	FAQ      []FAQ    `json:"faq" db:"-"`
}

// EncodeJSONFields fills the JSON columns from the decoded slices.
func (p *BlogPost) EncodeJSONFields() error {
	if p.Keywords == nil {
		p.Keywords = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.FAQ == nil {
		p.FAQ = []FAQ{}
	}
	kw, err := json.Marshal(p.Keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	faq, err := json.Marshal(p.FAQ)
	if err != nil {
		return fmt.Errorf("encode faq: %w", err)
	}
	p.KeywordsJSON, p.TagsJSON, p.FAQJSON = string(kw), string(tags), string(faq)
	return nil
}

// DecodeJSONFields fills the slices from the JSON columns. Empty columns decode to empty slices.
func (p *BlogPost) DecodeJSONFields() error {
	p.Keywords, p.Tags, p.FAQ = []string{}, []string{}, []FAQ{}
	if p.KeywordsJSON != "" {
		if err := json.Unmarshal([]byte(p.KeywordsJSON), &p.Keywords); err != nil {
			return fmt.Errorf("decode keywords: %w", err)
		}
	}
	if p.TagsJSON != "" {
		if err := json.Unmarshal([]byte(p.TagsJSON), &p.Tags); err != nil {
			return fmt.Errorf("decode tags: %w", err)
		}
	}
	if p.FAQJSON != "" {
		if err := json.Unmarshal([]byte(p.FAQJSON), &p.FAQ); err != nil {
			return fmt.Errorf("decode faq: %w", err)
		}
	}
	return nil
}
