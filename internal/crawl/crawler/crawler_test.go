package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidPageURL_RejectsAssetExtensions(t *testing.T) {
	for _, u := range []string{
		"https://example.com/logo.png",
		"https://example.com/feed.rss",
		"https://example.com/doc.PDF",
		"https://example.com/sitemap.xml",
		"https://example.com/data.json",
		"https://example.com/font.woff2",
		"https://example.com/movie.mp4",
	} {
		assert.False(t, isValidPageURL(u), u)
	}
}

func TestIsValidPageURL_AcceptsPages(t *testing.T) {
	for _, u := range []string{
		"https://example.com",
		"https://example.com/pricing",
		"https://example.com/products?id=3",
		"https://example.com/docs/index.html",
	} {
		assert.True(t, isValidPageURL(u), u)
	}
}

func TestIsIgnorableScheme(t *testing.T) {
	for _, href := range []string{
		"javascript:void(0)",
		"mailto:team@example.com",
		"tel:+155555",
		"data:text/plain;base64,aGk=",
		"blob:https://example.com/uuid",
		"  JAVASCRIPT:alert(1)",
	} {
		assert.True(t, isIgnorableScheme(href), href)
	}

	assert.False(t, isIgnorableScheme("/relative"))
	assert.False(t, isIgnorableScheme("https://example.com"))
}
