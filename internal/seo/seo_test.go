package seo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSite = Site{
	Name:        "ERAS Review",
	URL:         "https://erasreview.test",
	Description: "Physician-led ERAS application reviews.",
	LogoURL:     "https://erasreview.test/logo.png",
	DefaultOG:   "https://erasreview.test/og.png",
}

func publishedPost() *models.BlogPost {
	published := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	return &models.BlogPost{
		Slug:        "eras-personal-statement-tips",
		Title:       "ERAS Personal Statement Tips",
		ContentHTML: "<h2 id=\"start\">Start early</h2><p>Your statement should tell a story.</p><h3>Drafts</h3><p>Write three drafts.</p>",
		Author:      "ERAS Review Team",
		Status:      models.PostStatusPublished,
		PublishedAt: &published,
		UpdatedAt:   published,
		Tags:        []string{"writing"},
		FAQ:         []models.FAQ{{Question: "How long?", Answer: "About one page."}},
	}
}

func TestContentHelpers(t *testing.T) {
	html := "<p>First   paragraph here.</p>\n<script>alert(1)</script>\n<p>Second.</p>"
	assert.Equal(t, "First paragraph here. Second.", PlainText(html))
	assert.Equal(t, "First paragraph here.", Excerpt(html, 100))
	assert.Equal(t, 1, ReadingMinutes(html))

	long := "<p>" + strings.Repeat("word ", 500) + "</p>"
	assert.Equal(t, 3, ReadingMinutes(long))
}

func TestHeadings(t *testing.T) {
	hs := Headings(publishedPost().ContentHTML)
	require.Len(t, hs, 2)
	assert.Equal(t, Heading{Level: 2, Text: "Start early", ID: "start"}, hs[0])
	assert.Equal(t, 3, hs[1].Level)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 60))
	out := Truncate("The complete guide to writing a residency personal statement that stands out", 40)
	assert.LessOrEqual(t, len([]rune(out)), 40)
	assert.True(t, strings.HasSuffix(out, "…"))
}

func TestPostMetadataDerivesMissingFields(t *testing.T) {
	post := publishedPost()
	meta := PostMetadata(testSite, post)

	assert.Equal(t, "ERAS Personal Statement Tips", meta.Title)
	assert.Equal(t, "Your statement should tell a story.", meta.Description)
	assert.Equal(t, "https://erasreview.test/blog/eras-personal-statement-tips", meta.Canonical)
	assert.Equal(t, "index, follow", meta.Robots)
	assert.Equal(t, testSite.DefaultOG, meta.OGImage)

	post.Status = models.PostStatusDraft
	assert.Equal(t, "noindex, nofollow", PostMetadata(testSite, post).Robots)
}

func TestPostGraph(t *testing.T) {
	graph := PostGraph(testSite, publishedPost())
	require.Len(t, graph, 3)
	assert.Equal(t, "BlogPosting", graph[0]["@type"])
	assert.Equal(t, "2026-09-01T12:00:00Z", graph[0]["datePublished"])
	assert.Equal(t, "BreadcrumbList", graph[1]["@type"])
	assert.Equal(t, "FAQPage", graph[2]["@type"])
	assert.Nil(t, FAQPage(nil))

	_, err := json.Marshal(graph)
	assert.NoError(t, err)
}

func TestPricingProducts(t *testing.T) {
	plans := []models.Plan{
		{Code: "personal-statement", Name: "Personal Statement Review", PriceCents: 14900, Currency: "usd", Interval: models.IntervalOneTime},
		{Code: "unlimited-monthly", Name: "Unlimited", PriceCents: 9900, Currency: "usd", Interval: models.IntervalMonth},
	}
	out := PricingProducts(testSite, plans)
	require.Len(t, out, 2)

	offer := out[0]["offers"].(Schema)
	assert.Equal(t, "149.00", offer["price"])
	assert.Equal(t, "USD", offer["priceCurrency"])
	assert.NotContains(t, offer, "priceSpecification")
	assert.Contains(t, out[1]["offers"].(Schema), "priceSpecification")
}

func TestSitemapSkipsDrafts(t *testing.T) {
	draft := *publishedPost()
	draft.Slug = "draft-post"
	draft.Status = models.PostStatusDraft

	out, err := Sitemap(testSite, MarketingPages[:1], []models.BlogPost{*publishedPost(), draft})
	require.NoError(t, err)

	xml := string(out)
	assert.Contains(t, xml, "<loc>https://erasreview.test/</loc>")
	assert.Contains(t, xml, "<loc>https://erasreview.test/blog/eras-personal-statement-tips</loc>")
	assert.NotContains(t, xml, "draft-post")
	assert.Contains(t, xml, "<lastmod>2026-09-01T12:00:00Z</lastmod>")
}

func TestRSS(t *testing.T) {
	out, err := RSS(testSite, []models.BlogPost{*publishedPost()})
	require.NoError(t, err)
	assert.Contains(t, string(out), `<rss version="2.0">`)
	assert.Contains(t, string(out), "<title>ERAS Personal Statement Tips</title>")
	assert.Contains(t, string(out), "<category>writing</category>")
}

func TestRobots(t *testing.T) {
	robots := Robots(testSite)
	assert.Contains(t, robots, "Disallow: /admin")
	assert.Contains(t, robots, "Sitemap: https://erasreview.test/sitemap.xml")
}

func TestPingerReportsEachEngine(t *testing.T) {
	var hits int32
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "k123", r.URL.Query().Get("key"))
		assert.Equal(t, "https://erasreview.test/blog/x", r.URL.Query().Get("url"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer bad.Close()

	log := logrus.New()
	p := NewPinger("k123", log)
	p.Engines = map[string]string{"good": ok.URL, "bad": bad.URL}

	results, err := p.Ping(context.Background(), "https://erasreview.test/blog/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping bad")
	require.Len(t, results, 2)
	assert.Equal(t, "bad", results[0].Engine)
	assert.Equal(t, "good", results[1].Engine)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	byEngine := map[string]PingResult{}
	for _, r := range results {
		byEngine[r.Engine] = r
	}
	assert.Empty(t, byEngine["good"].Error)
	assert.Equal(t, http.StatusForbidden, byEngine["bad"].Status)
	assert.NotEmpty(t, byEngine["bad"].Error)
}

func TestPingerAllAccepted(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	p := NewPinger("k123", logrus.New())
	p.Engines = map[string]string{"a": ok.URL, "b": ok.URL, "c": ok.URL, "d": ok.URL, "e": ok.URL}

	results, err := p.Ping(context.Background(), "https://erasreview.test/blog/x")
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.Equal(t, http.StatusOK, r.Status, r.Engine)
	}
}

func TestPingerWithoutKeyIsNoop(t *testing.T) {
	p := NewPinger("", logrus.New())
	results, err := p.Ping(context.Background(), "https://erasreview.test/blog/x")
	assert.NoError(t, err)
	assert.Nil(t, results)
}
