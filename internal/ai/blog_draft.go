package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/tidwall/gjson"
)

var ErrUnparseable = errors.New("ai: could not parse blog draft")

// DraftRequest describes the post the generator wants.
type DraftRequest struct {
	Topic    string
	Keywords []string
	Audience string
}

// BlogDraft is the structured post returned by the model.
type BlogDraft struct {
	Title           string       `json:"title"`
	MetaTitle       string       `json:"metaTitle"`
	MetaDescription string       `json:"metaDescription"`
	Excerpt         string       `json:"excerpt"`
	Keywords        []string     `json:"keywords"`
	Tags            []string     `json:"tags"`
	ContentHTML     string       `json:"contentHtml"`
	FAQ             []models.FAQ `json:"faq"`
}

const draftSystemPrompt = `You write SEO blog posts for an ERAS residency application review service.
Audience: %s.
Reply with ONE JSON object and nothing else, using exactly these keys:
title, metaTitle (max 60 chars), metaDescription (max 160 chars), excerpt (1-2 sentences),
keywords (array of 5-8 strings), tags (array of 2-4 strings),
contentHtml (1200-1800 words of semantic HTML using h2, h3, p, ul, li; no h1, no inline styles),
faq (array of 3-5 objects with question and answer).
Be accurate about the NRMP Match and ERAS timeline; never invent statistics.`

// GenerateBlogDraft asks the model for a post on the topic and parses the reply.
func (s *AIService) GenerateBlogDraft(ctx context.Context, req DraftRequest) (*BlogDraft, int, error) {
	audience := req.Audience
	if audience == "" {
		audience = "US and international medical graduates applying to residency"
	}

	model := s.Client.GenerativeModel(s.ModelName)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.7)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(fmt.Sprintf(draftSystemPrompt, audience))},
	}

	prompt := "Topic: " + req.Topic
	if len(req.Keywords) > 0 {
		prompt += "\nTarget keywords: " + strings.Join(req.Keywords, ", ")
	}

	res, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, 0, fmt.Errorf("generate blog draft: %w", err)
	}
	tokens := tokensOf(res)

	raw := textOf(res)
	if strings.TrimSpace(raw) == "" {
		return nil, tokens, ErrEmptyResponse
	}

	draft, err := ParseBlogDraft(raw)
	if err != nil {
		return nil, tokens, err
	}
	return draft, tokens, nil
}

// ParseBlogDraft turns a model reply into a BlogDraft. It tries strict JSON
// first, then the outermost {...} block after stripping code fences, then
// lenient field-by-field extraction.
func ParseBlogDraft(raw string) (*BlogDraft, error) {
	text := stripCodeFence(strings.TrimSpace(raw))

	if d, ok := decodeDraft(text); ok {
		return d, nil
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
		if d, ok := decodeDraft(text); ok {
			return d, nil
		}
	}

	d := extractDraft(text)
	if d.Title == "" && d.ContentHTML == "" {
		return nil, ErrUnparseable
	}
	return d, nil
}

// draftAliases accepts the alternate key spellings models tend to produce.
type draftAliases struct {
	BlogDraft
	Content        string       `json:"content"`
	ContentHTMLAlt string       `json:"content_html"`
	MetaTitleAlt   string       `json:"meta_title"`
	MetaDescAlt    string       `json:"meta_description"`
	FAQs           []models.FAQ `json:"faqs"`
}

func decodeDraft(text string) (*BlogDraft, bool) {
	var a draftAliases
	if err := json.Unmarshal([]byte(text), &a); err != nil {
		return nil, false
	}
	d := a.BlogDraft
	d.ContentHTML = firstNonEmpty(d.ContentHTML, a.ContentHTMLAlt, a.Content)
	d.MetaTitle = firstNonEmpty(d.MetaTitle, a.MetaTitleAlt)
	d.MetaDescription = firstNonEmpty(d.MetaDescription, a.MetaDescAlt)
	if len(d.FAQ) == 0 {
		d.FAQ = a.FAQs
	}
	if d.Title == "" && d.ContentHTML == "" {
		return nil, false
	}
	return &d, true
}

func extractDraft(text string) *BlogDraft {
	str := func(paths ...string) string {
		for _, p := range paths {
			if v := gjson.Get(text, p); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
		return ""
	}
	strs := func(path string) []string {
		var out []string
		for _, v := range gjson.Get(text, path).Array() {
			if s := strings.TrimSpace(v.String()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	d := &BlogDraft{
		Title:           str("title"),
		MetaTitle:       str("metaTitle", "meta_title"),
		MetaDescription: str("metaDescription", "meta_description"),
		Excerpt:         str("excerpt"),
		ContentHTML:     str("contentHtml", "content_html", "content"),
		Keywords:        strs("keywords"),
		Tags:            strs("tags"),
	}
	for _, item := range gjson.Get(text, "faq").Array() {
		q, a := item.Get("question").String(), item.Get("answer").String()
		if q != "" && a != "" {
			d.FAQ = append(d.FAQ, models.FAQ{Question: q, Answer: a})
		}
	}
	return d
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 && !strings.Contains(s[:nl], "{") {
		s = s[nl+1:] // language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
