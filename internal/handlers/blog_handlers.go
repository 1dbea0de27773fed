package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"github.com/residencyreview/eras-review-api/internal/ai"
	"github.com/residencyreview/eras-review-api/internal/blog"
	"github.com/residencyreview/eras-review-api/internal/cache"
	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/residencyreview/eras-review-api/internal/seo"
)

const blogCacheTTL = 10 * time.Minute

// maxBlogPage bounds the public list pages that may be requested and cached.
const maxBlogPage = 100

const maxSlugLength = 255

const (
	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeXML  = "application/xml; charset=utf-8"
	contentTypeRSS  = "application/rss+xml; charset=utf-8"
)

// errNotFound lets a cached builder ask for a 404.
var errNotFound = errors.New("not found")

// serveCached answers from the cache when it can, otherwise builds the body,
// stores it if build says so and answers. Cache failures are treated as misses.
func (h *Handlers) serveCached(c *gin.Context, key, contentType string, build func() ([]byte, bool, error)) {
	ctx := c.Request.Context()
	if h.Cache != nil {
		body, err := h.Cache.Get(ctx, key)
		if err == nil {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, contentType, body)
			return
		}
		if !errors.Is(err, cache.ErrMiss) {
			h.Log.WithError(err).WithField("key", key).Warn("cache read failed")
		}
	}

	body, cacheable, err := build()
	if errors.Is(err, errNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if err != nil {
		h.Log.WithError(err).WithField("key", key).Error("failed to build response")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load content"})
		return
	}

	if h.Cache != nil && cacheable {
		if err := h.Cache.Set(ctx, key, body, blogCacheTTL); err != nil {
			h.Log.WithError(err).WithField("key", key).Warn("cache write failed")
		}
	}
	c.Header("X-Cache", "MISS")
	c.Data(http.StatusOK, contentType, body)
}

func (h *Handlers) invalidateBlogCache(c *gin.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.DeletePrefix(c.Request.Context(), blog.CachePrefix); err != nil {
		h.Log.WithError(err).Warn("failed to invalidate blog cache")
	}
}

//
// --- Public Blog ---
//

// ListBlogPosts is the handler for GET /v1/blog?page=&tag=
func (h *Handlers) ListBlogPosts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	if page > maxBlogPage {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Page is out of range"})
		return
	}
	tag := blog.NormalizeTag(c.Query("tag"))
	key := fmt.Sprintf("%slist:%d:%s", blog.CachePrefix, page, tag)

	// Empty pages are not cached so unknown tags and far pages add no keys.
	h.serveCached(c, key, contentTypeJSON, func() ([]byte, bool, error) {
		filter := blog.ListFilter{Status: models.PostStatusPublished, Tag: tag, Page: page}
		posts, total, err := h.Posts.List(c.Request.Context(), filter)
		if err != nil {
			return nil, false, err
		}
		if posts == nil {
			posts = []models.BlogPost{}
		}
		body, err := json.Marshal(gin.H{
			"posts": posts,
			"total": total,
			"page":  page,
		})
		return body, len(posts) > 0, err
	})
}

// GetBlogPost is the handler for GET /v1/blog/:slug
// It returns the post with its head metadata and JSON-LD graph.
func (h *Handlers) GetBlogPost(c *gin.Context) {
	// Stored slugs are always canonical, so anything else cannot exist.
	postSlug := c.Param("slug")
	if postSlug == "" || len(postSlug) > maxSlugLength || slug.Make(postSlug) != postSlug {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	key := blog.CachePrefix + "post:" + postSlug

	h.serveCached(c, key, contentTypeJSON, func() ([]byte, bool, error) {
		post, err := h.Posts.PublishedBySlug(c.Request.Context(), postSlug)
		if errors.Is(err, blog.ErrNotFound) {
			return nil, false, errNotFound
		}
		if err != nil {
			return nil, false, err
		}
		body, err := json.Marshal(gin.H{
			"post":     post,
			"metadata": seo.PostMetadata(h.Site, post),
			"jsonLd":   seo.PostGraph(h.Site, post),
			"headings": seo.Headings(post.ContentHTML),
		})
		return body, true, err
	})
}

// Sitemap is the handler for GET /sitemap.xml
func (h *Handlers) Sitemap(c *gin.Context) {
	h.serveCached(c, blog.CachePrefix+"sitemap", contentTypeXML, func() ([]byte, bool, error) {
		posts, err := h.Posts.AllPublished(c.Request.Context())
		if err != nil {
			return nil, false, err
		}
		body, err := seo.Sitemap(h.Site, seo.MarketingPages, posts)
		return body, true, err
	})
}

// RSS is the handler for GET /rss.xml
func (h *Handlers) RSS(c *gin.Context) {
	h.serveCached(c, blog.CachePrefix+"rss", contentTypeRSS, func() ([]byte, bool, error) {
		posts, err := h.Posts.AllPublished(c.Request.Context())
		if err != nil {
			return nil, false, err
		}
		body, err := seo.RSS(h.Site, posts)
		return body, true, err
	})
}

// Robots is the handler for GET /robots.txt
func (h *Handlers) Robots(c *gin.Context) {
	c.String(http.StatusOK, seo.Robots(h.Site))
}

// SEOOrganization is the handler for GET /v1/seo/organization
func (h *Handlers) SEOOrganization(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"jsonLd": []seo.Schema{seo.Organization(h.Site), seo.WebSite(h.Site)},
	})
}

// SEOPricing is the handler for GET /v1/seo/pricing
func (h *Handlers) SEOPricing(c *gin.Context) {
	plans, err := h.publicPlans(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve plans"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metadata": seo.PageMetadata(h.Site, "/pricing", "Pricing", "ERAS application and personal statement review plans."),
		"jsonLd":   seo.PricingProducts(h.Site, plans),
	})
}

//
// --- Admin Blog ---
//

type GenerateBlogInput struct {
	Topic    string   `json:"topic" binding:"max=255"`
	Keywords []string `json:"keywords"`
	Publish  bool     `json:"publish"`
}

// AdminGenerateBlogPost is the handler for POST /v1/admin/blog/generate
func (h *Handlers) AdminGenerateBlogPost(c *gin.Context) {
	// 1. --- Check Generator ---
	if h.Blog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Blog generation is not configured"})
		return
	}

	// 2. --- Bind JSON ---
	// An empty body means "pick a topic from the catalogue".
	var input GenerateBlogInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	// 3. --- Generate ---
	post, err := h.Blog.Generate(c.Request.Context(), blog.Request{
		Topic:    input.Topic,
		Keywords: input.Keywords,
		Publish:  input.Publish,
	})
	switch {
	case errors.Is(err, blog.ErrGeneratorDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Blog generation is not configured"})
		return
	case errors.Is(err, ai.ErrUnparseable), errors.Is(err, ai.ErrEmptyResponse):
		h.Log.WithError(err).Warn("blog draft rejected")
		c.JSON(http.StatusBadGateway, gin.H{"error": "The model returned an unusable draft, please retry"})
		return
	case err != nil:
		h.Log.WithError(err).Error("blog generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Blog generation failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"post": post})
}

type BlogPostInput struct {
	Title           string       `json:"title" binding:"required,max=255"`
	Slug            string       `json:"slug" binding:"max=255"`
	ContentHTML     string       `json:"contentHtml" binding:"required"`
	Excerpt         string       `json:"excerpt" binding:"max=500"`
	MetaTitle       string       `json:"metaTitle"`
	MetaDescription string       `json:"metaDescription"`
	Keywords        []string     `json:"keywords"`
	Tags            []string     `json:"tags"`
	FAQ             []models.FAQ `json:"faq"`
	CoverImageURL   *string      `json:"coverImageUrl" binding:"omitempty,url"`
	Publish         bool         `json:"publish"`
}

// buildPost derives the SEO fields the same way generated posts get them.
func (h *Handlers) buildPost(input BlogPostInput) *models.BlogPost {
	post := blog.BuildPost(&ai.BlogDraft{
		Title:           input.Title,
		MetaTitle:       input.MetaTitle,
		MetaDescription: input.MetaDescription,
		Excerpt:         input.Excerpt,
		Keywords:        input.Keywords,
		Tags:            input.Tags,
		ContentHTML:     input.ContentHTML,
		FAQ:             input.FAQ,
	}, "", h.postAuthor(), input.Publish, h.now())
	post.AIGenerated = false
	post.CoverImageURL = input.CoverImageURL
	if s := slug.Make(input.Slug); s != "" {
		post.Slug = s
	}
	return post
}

func (h *Handlers) postAuthor() string {
	if h.Blog != nil && h.Blog.Author != "" {
		return h.Blog.Author
	}
	return h.Site.Name + " Team"
}

// AdminCreateBlogPost is the handler for POST /v1/admin/blog
func (h *Handlers) AdminCreateBlogPost(c *gin.Context) {
	var input BlogPostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post := h.buildPost(input)
	if err := h.Posts.InsertUnique(c.Request.Context(), post); err != nil {
		if blog.IsDuplicateSlug(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "Slug is already taken"})
			return
		}
		h.Log.WithError(err).Error("failed to create blog post")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create post"})
		return
	}

	if post.Status == models.PostStatusPublished {
		h.announce(c, post)
	}
	c.JSON(http.StatusCreated, gin.H{"post": post})
}

// AdminListBlogPosts is the handler for GET /v1/admin/blog?status=&page=
func (h *Handlers) AdminListBlogPosts(c *gin.Context) {
	page, pageSize, _ := pagination(c)
	if pageSize > 50 {
		pageSize = 50
	}
	posts, total, err := h.Posts.List(c.Request.Context(), blog.ListFilter{
		Status:   strings.ToUpper(c.Query("status")),
		Tag:      blog.NormalizeTag(c.Query("tag")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve posts"})
		return
	}
	if posts == nil {
		posts = []models.BlogPost{}
	}
	c.JSON(http.StatusOK, gin.H{
		"posts":    posts,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// AdminUpdateBlogPost is the handler for PUT /v1/admin/blog/:id
// Status is changed through the publish endpoint, not here.
func (h *Handlers) AdminUpdateBlogPost(c *gin.Context) {
	// 1. --- Get ID & Bind JSON ---
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input BlogPostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	// 2. --- Load Existing ---
	existing, err := h.Posts.ByID(ctx, id)
	if errors.Is(err, blog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	// 3. --- Rebuild Editable Fields ---
	updated := h.buildPost(input)
	updated.ID = existing.ID
	updated.Author = existing.Author
	updated.Status = existing.Status
	updated.AIGenerated = existing.AIGenerated
	updated.Topic = existing.Topic
	updated.PublishedAt = existing.PublishedAt
	updated.CreatedAt = existing.CreatedAt
	if input.Slug == "" {
		updated.Slug = existing.Slug
	}

	if err := h.Posts.Update(ctx, updated); err != nil {
		if blog.IsDuplicateSlug(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "Slug is already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update post"})
		return
	}

	if updated.Status == models.PostStatusPublished {
		h.invalidateBlogCache(c)
	}
	c.JSON(http.StatusOK, gin.H{"post": updated})
}

// AdminPublishBlogPost is the handler for POST /v1/admin/blog/:id/publish
func (h *Handlers) AdminPublishBlogPost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := h.Posts.Publish(ctx, id, h.now()); err != nil {
		if errors.Is(err, blog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to publish post"})
		return
	}
	post, err := h.Posts.ByID(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	h.announce(c, post)
	c.JSON(http.StatusOK, gin.H{"post": post})
}

// announce runs the best-effort publish side effects.
func (h *Handlers) announce(c *gin.Context, post *models.BlogPost) {
	if h.Blog != nil {
		h.Blog.Announce(c.Request.Context(), post)
		return
	}
	h.invalidateBlogCache(c)
}

// AdminDeleteBlogPost is the handler for DELETE /v1/admin/blog/:id
func (h *Handlers) AdminDeleteBlogPost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.Posts.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, blog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete post"})
		return
	}
	h.invalidateBlogCache(c)
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}
