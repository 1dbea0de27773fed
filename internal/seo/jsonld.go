package seo

import (
	"fmt"
	"strings"
	"time"

	"github.com/residencyreview/eras-review-api/internal/models"
)

// Schema is one schema.org JSON-LD object.
type Schema map[string]any

const schemaContext = "https://schema.org"

// Organization describes the business behind the site.
func Organization(site Site) Schema {
	org := Schema{
		"@context": schemaContext,
		"@type":    "Organization",
		"name":     site.Name,
		"url":      site.URL,
	}
	if site.LogoURL != "" {
		org["logo"] = site.LogoURL
	}
	if site.Description != "" {
		org["description"] = site.Description
	}
	return org
}

// WebSite enables the sitelinks search box for the blog.
func WebSite(site Site) Schema {
	return Schema{
		"@context": schemaContext,
		"@type":    "WebSite",
		"name":     site.Name,
		"url":      site.URL,
		"potentialAction": Schema{
			"@type":       "SearchAction",
			"target":      site.URL + "/blog?q={search_term_string}",
			"query-input": "required name=search_term_string",
		},
	}
}

// BlogPosting is the Article schema for one post.
func BlogPosting(site Site, post *models.BlogPost) Schema {
	meta := PostMetadata(site, post)
	article := Schema{
		"@context":         schemaContext,
		"@type":            "BlogPosting",
		"headline":         Truncate(post.Title, 110),
		"description":      meta.Description,
		"mainEntityOfPage": Schema{"@type": "WebPage", "@id": meta.Canonical},
		"url":              meta.Canonical,
		"author":           Schema{"@type": "Person", "name": post.Author},
		"publisher":        publisher(site),
		"dateModified":     post.UpdatedAt.UTC().Format(time.RFC3339),
		"wordCount":        len(strings.Fields(PlainText(post.ContentHTML))),
	}
	if post.PublishedAt != nil {
		article["datePublished"] = post.PublishedAt.UTC().Format(time.RFC3339)
	}
	if meta.OGImage != "" {
		article["image"] = meta.OGImage
	}
	if len(post.Keywords) > 0 {
		article["keywords"] = post.Keywords
	}
	return article
}

// Breadcrumbs builds a BreadcrumbList from (name, path) pairs.
func Breadcrumbs(site Site, crumbs ...[2]string) Schema {
	items := make([]Schema, 0, len(crumbs))
	for i, c := range crumbs {
		items = append(items, Schema{
			"@type":    "ListItem",
			"position": i + 1,
			"name":     c[0],
			"item":     site.URL + c[1],
		})
	}
	return Schema{
		"@context":        schemaContext,
		"@type":           "BreadcrumbList",
		"itemListElement": items,
	}
}

// FAQPage returns nil when there are no questions.
func FAQPage(faq []models.FAQ) Schema {
	if len(faq) == 0 {
		return nil
	}
	entities := make([]Schema, 0, len(faq))
	for _, f := range faq {
		entities = append(entities, Schema{
			"@type": "Question",
			"name":  f.Question,
			"acceptedAnswer": Schema{
				"@type": "Answer",
				"text":  f.Answer,
			},
		})
	}
	return Schema{
		"@context":   schemaContext,
		"@type":      "FAQPage",
		"mainEntity": entities,
	}
}

// PricingProducts describes each public plan as a Service with an Offer.
func PricingProducts(site Site, plans []models.Plan) []Schema {
	out := make([]Schema, 0, len(plans))
	for _, p := range plans {
		offer := Schema{
			"@type":         "Offer",
			"price":         fmt.Sprintf("%d.%02d", p.PriceCents/100, p.PriceCents%100),
			"priceCurrency": strings.ToUpper(p.Currency),
			"availability":  "https://schema.org/InStock",
			"url":           site.URL + "/pricing#" + p.Code,
		}
		if p.Recurring() {
			offer["priceSpecification"] = Schema{
				"@type":           "UnitPriceSpecification",
				"price":           offer["price"],
				"priceCurrency":   offer["priceCurrency"],
				"billingDuration": "P1M",
			}
		}
		out = append(out, Schema{
			"@context":    schemaContext,
			"@type":       "Service",
			"name":        p.Name,
			"description": p.Description,
			"provider":    publisher(site),
			"serviceType": "Residency application review",
			"offers":      offer,
		})
	}
	return out
}

// PostGraph is every JSON-LD block a post page embeds.
func PostGraph(site Site, post *models.BlogPost) []Schema {
	graph := []Schema{
		BlogPosting(site, post),
		Breadcrumbs(site, [2]string{"Home", "/"}, [2]string{"Blog", "/blog"}, [2]string{post.Title, "/blog/" + post.Slug}),
	}
	if faq := FAQPage(post.FAQ); faq != nil {
		graph = append(graph, faq)
	}
	return graph
}

func publisher(site Site) Schema {
	p := Schema{"@type": "Organization", "name": site.Name, "url": site.URL}
	if site.LogoURL != "" {
		p["logo"] = Schema{"@type": "ImageObject", "url": site.LogoURL}
	}
	return p
}
