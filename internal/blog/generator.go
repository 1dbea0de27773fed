package blog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/residencyreview/eras-review-api/internal/ai"
	"github.com/residencyreview/eras-review-api/internal/cache"
	"github.com/residencyreview/eras-review-api/internal/metrics"
	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/residencyreview/eras-review-api/internal/seo"
	"github.com/residencyreview/eras-review-api/internal/social"
	"github.com/sirupsen/logrus"
)

// ErrGeneratorDisabled is returned when no LLM is configured.
var ErrGeneratorDisabled = errors.New("blog generation is not configured")

// CachePrefix namespaces every cached public blog response.
const CachePrefix = "blog:"

// DraftWriter produces a structured draft for a topic.
type DraftWriter interface {
	GenerateBlogDraft(ctx context.Context, req ai.DraftRequest) (*ai.BlogDraft, int, error)
}

// Pinger tells search engines a URL changed.
type Pinger interface {
	Ping(ctx context.Context, pageURL string) ([]seo.PingResult, error)
}

// Request asks for one generated post. An empty Topic picks from the catalogue.
type Request struct {
	Topic    string
	Keywords []string
	Publish  bool
}

// Generator runs the topic -> draft -> post pipeline.
type Generator struct {
	Store   *Store
	Writer  DraftWriter
	Topics  []Topic
	Site    seo.Site
	Pinger  Pinger
	Posters []social.Poster
	Cache   cache.Cache
	Author  string
	Log     logrus.FieldLogger
	Now     func() time.Time
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Generate writes a new post. Side effects after the insert are best-effort.
func (g *Generator) Generate(ctx context.Context, req Request) (*models.BlogPost, error) {
	if g.Writer == nil {
		return nil, ErrGeneratorDisabled
	}

	// 1. --- Pick Topic ---
	topic := Topic{Title: strings.TrimSpace(req.Topic), Keywords: req.Keywords}
	if topic.Title == "" {
		used, err := g.Store.TopicUsage(ctx)
		if err != nil {
			metrics.RecordBlogGeneration("error")
			return nil, err
		}
		picked, ok := PickTopic(g.Topics, used)
		if !ok {
			metrics.RecordBlogGeneration("error")
			return nil, errors.New("no blog topics available")
		}
		topic = picked
		if len(req.Keywords) > 0 {
			topic.Keywords = req.Keywords
		}
	}
	log := g.Log.WithField("topic", topic.Title)

	// 2. --- Ask the Model ---
	draft, tokens, err := g.Writer.GenerateBlogDraft(ctx, ai.DraftRequest{
		Topic:    topic.Title,
		Keywords: topic.Keywords,
		Audience: topic.Audience,
	})
	if err != nil {
		metrics.RecordBlogGeneration("llm_error")
		return nil, fmt.Errorf("generate draft: %w", err)
	}
	log.WithField("tokens", tokens).Debug("blog draft received")

	// 3. --- Build & Store ---
	post := BuildPost(draft, topic.Title, g.Author, req.Publish, g.now())
	if err := g.Store.InsertUnique(ctx, post); err != nil {
		metrics.RecordBlogGeneration("error")
		return nil, err
	}
	metrics.RecordBlogGeneration("ok")
	log.WithFields(logrus.Fields{"post_id": post.ID, "slug": post.Slug}).Info("blog post generated")

	// 4. --- Announce (best-effort) ---
	if post.Status == models.PostStatusPublished {
		g.Announce(ctx, post)
	}
	return post, nil
}

// Announce drops cached listings, pings search engines and posts to social
// networks. Failures are logged and counted, never returned.
func (g *Generator) Announce(ctx context.Context, post *models.BlogPost) {
	log := g.Log.WithFields(logrus.Fields{"post_id": post.ID, "slug": post.Slug})

	if g.Cache != nil {
		if err := g.Cache.DeletePrefix(ctx, CachePrefix); err != nil {
			log.WithError(err).Warn("failed to invalidate blog cache")
		}
	}

	url := g.Site.PostURL(post.Slug)
	if g.Pinger != nil {
		results, err := g.Pinger.Ping(ctx, url)
		if err != nil {
			log.WithError(err).Warn("search engine pings incomplete")
		} else if len(results) > 0 {
			log.WithField("engines", len(results)).Debug("search engines pinged")
		}
	}
	if len(g.Posters) > 0 {
		social.Share(ctx, g.Posters, social.Post{
			Title:   post.Title,
			URL:     url,
			Summary: post.Excerpt,
			Tags:    post.Tags,
		}, log)
	}
}

// BuildPost turns a draft into a post row, deriving and clamping the SEO fields.
func BuildPost(draft *ai.BlogDraft, topic, author string, publish bool, now time.Time) *models.BlogPost {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		title = topic
	}
	content := strings.TrimSpace(draft.ContentHTML)

	excerpt := strings.TrimSpace(draft.Excerpt)
	if excerpt == "" {
		excerpt = seo.Excerpt(content, 300)
	}
	metaTitle := strings.TrimSpace(draft.MetaTitle)
	if metaTitle == "" {
		metaTitle = title
	}
	metaDesc := strings.TrimSpace(draft.MetaDescription)
	if metaDesc == "" {
		metaDesc = excerpt
	}

	base := slug.Make(title)
	if base == "" {
		base = "post"
	}
	if len(base) > 80 {
		base = strings.TrimRight(base[:80], "-")
	}

	post := &models.BlogPost{
		Slug:            base,
		Title:           title,
		Excerpt:         seo.Truncate(excerpt, 300),
		ContentHTML:     content,
		MetaTitle:       seo.Truncate(metaTitle, seo.MaxTitleLength),
		MetaDescription: seo.Truncate(metaDesc, seo.MaxDescriptionLength),
		Keywords:        cleanList(draft.Keywords),
		Tags:            NormalizeTags(draft.Tags),
		FAQ:             cleanFAQ(draft.FAQ),
		Author:          author,
		Status:          models.PostStatusDraft,
		AIGenerated:     true,
		ReadingMinutes:  seo.ReadingMinutes(content),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if topic != "" {
		t := topic
		post.Topic = &t
	}
	if publish {
		post.Status = models.PostStatusPublished
		post.PublishedAt = &now
	}
	return post
}

func cleanList(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// maxTagLength bounds stored tags and tag lookups alike.
const maxTagLength = 40

// NormalizeTag returns the slug form tags are stored and filtered in.
func NormalizeTag(tag string) string {
	t := slug.Make(tag)
	if len(t) > maxTagLength {
		t = strings.TrimRight(t[:maxTagLength], "-")
	}
	return t
}

// NormalizeTags slugs and dedupes tags, keeping their order.
func NormalizeTags(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, t := range in {
		t = NormalizeTag(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func cleanFAQ(in []models.FAQ) []models.FAQ {
	out := []models.FAQ{}
	for _, f := range in {
		q, a := strings.TrimSpace(f.Question), strings.TrimSpace(f.Answer)
		if q != "" && a != "" {
			out = append(out, models.FAQ{Question: q, Answer: a})
		}
	}
	return out
}
