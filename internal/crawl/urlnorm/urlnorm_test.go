package urlnorm

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_RelativeResolution(t *testing.T) {
	got, err := Normalize("/pricing", "https://example.com/home")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/pricing", got)
}

func TestNormalize_StripsFragment(t *testing.T) {
	got, err := Normalize("https://example.com/docs#section-2", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/docs", got)
}

func TestNormalize_SortsQueryParams(t *testing.T) {
	a, err := Normalize("https://example.com/search?z=1&a=2", "https://example.com")
	require.NoError(t, err)
	b, err := Normalize("https://example.com/search?a=2&z=1", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalize_DistinctQueryValuesStayDistinct(t *testing.T) {
	a, err := Normalize("https://example.com/item?id=1", "https://example.com")
	require.NoError(t, err)
	b, err := Normalize("https://example.com/item?id=2", "https://example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNormalize_TrimsTrailingSlash(t *testing.T) {
	got, err := Normalize("https://example.com/about/", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/about", got)
}

func TestNormalize_RootPathUnaffected(t *testing.T) {
	got, err := Normalize("https://example.com/", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", got)
}

func TestPageID_DeterministicAndLength(t *testing.T) {
	id1 := PageID("https://example.com/pricing")
	id2 := PageID("https://example.com/pricing")
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 12)
}

func TestPageID_DifferentURLsDifferentIDs(t *testing.T) {
	assert.NotEqual(t, PageID("https://example.com/a"), PageID("https://example.com/b"))
}

func TestSameHost_WWWAlias(t *testing.T) {
	a, _ := url.Parse("https://www.example.com/a")
	b, _ := url.Parse("https://example.com/b")
	assert.True(t, SameHost(a, b))
}

func TestSameHost_DifferentHost(t *testing.T) {
	a, _ := url.Parse("https://example.com/a")
	b, _ := url.Parse("https://evil.example.net/b")
	assert.False(t, SameHost(a, b))
}
