package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlogDraftStrictJSON(t *testing.T) {
	raw := `{"title":"How to Write an ERAS Personal Statement","metaTitle":"ERAS Personal Statement Guide",
		"metaDescription":"A step-by-step guide.","excerpt":"Start early.","keywords":["eras","personal statement"],
		"tags":["writing"],"contentHtml":"<h2>Start</h2><p>Begin early.</p>",
		"faq":[{"question":"How long?","answer":"One page."}]}`

	d, err := ParseBlogDraft(raw)
	require.NoError(t, err)
	assert.Equal(t, "How to Write an ERAS Personal Statement", d.Title)
	assert.Equal(t, []string{"eras", "personal statement"}, d.Keywords)
	assert.Len(t, d.FAQ, 1)
	assert.Equal(t, "One page.", d.FAQ[0].Answer)
}

func TestParseBlogDraftCodeFenceAndChatter(t *testing.T) {
	raw := "Sure! Here is your post:\n```json\n{\"title\":\"Match Day Tips\",\"content\":\"<p>Breathe.</p>\"}\n```\nLet me know if you need changes."

	d, err := ParseBlogDraft(raw)
	require.NoError(t, err)
	assert.Equal(t, "Match Day Tips", d.Title)
	assert.Equal(t, "<p>Breathe.</p>", d.ContentHTML)
}

func TestParseBlogDraftFencedOnly(t *testing.T) {
	raw := "```json\n{\"title\":\"Fenced\",\"content_html\":\"<p>x</p>\",\"meta_title\":\"Fenced Meta\"}\n```"

	d, err := ParseBlogDraft(raw)
	require.NoError(t, err)
	assert.Equal(t, "Fenced", d.Title)
	assert.Equal(t, "<p>x</p>", d.ContentHTML)
	assert.Equal(t, "Fenced Meta", d.MetaTitle)
}

func TestParseBlogDraftLenientFallback(t *testing.T) {
	// Trailing comma makes this invalid JSON; fields are still recoverable.
	raw := `{"title": "Interview Season Checklist", "contentHtml": "<p>Prepare.</p>", "tags": ["interviews"],}`

	d, err := ParseBlogDraft(raw)
	require.NoError(t, err)
	assert.Equal(t, "Interview Season Checklist", d.Title)
	assert.Equal(t, "<p>Prepare.</p>", d.ContentHTML)
	assert.Equal(t, []string{"interviews"}, d.Tags)
}

func TestParseBlogDraftUnparseable(t *testing.T) {
	_, err := ParseBlogDraft("I'm sorry, I can't help with that.")
	assert.ErrorIs(t, err, ErrUnparseable)

	_, err = ParseBlogDraft(`{"keywords": ["a"]}`)
	assert.ErrorIs(t, err, ErrUnparseable)
}
