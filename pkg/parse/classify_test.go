package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/utils"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want models.PageKind
	}{
		{"http://site.example/category/foo", models.PageKindCategory},
		{"http://site.example/12345", models.PageKindPost},
		{"http://swanjun.egloos.com/category/%EB%A7%8C%ED%99%94", models.PageKindCategory},
		{"http://site.example/categoryfoo", models.PageKindPost},
		{"http://site.example/category", models.PageKindPost},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.url), tt.url)
	}
}

func TestTarget(t *testing.T) {
	target := Target("http://site.example/category/foo")
	assert.Equal(t, "http://site.example/category/foo", target.URL)
	assert.Equal(t, models.PageKindCategory, target.Kind)
}

func TestBaseOrigin(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://ehei.egloos.com/7529993", "http://ehei.egloos.com"},
		{"http://swanjun.egloos.com/category/trip", "http://swanjun.egloos.com"},
		{"http://blog.egloos.test/category/a/page/2", "http://blog.egloos.test"},
		{"http://a.b.c.d/x", "http://a.b.c"},
	}
	for _, tt := range tests {
		got, err := BaseOrigin(tt.url)
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got)
	}
}

func TestBaseOrigin_Malformed(t *testing.T) {
	for _, u := range []string{"http://sg-mh.com/2018413", "http://localhost/x", ""} {
		_, err := BaseOrigin(u)
		assert.ErrorIs(t, err, utils.ErrMalformedURL, u)
	}
}

func TestResolveReference(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"http://ehei.egloos.com", "/7529993", "http://ehei.egloos.com/7529993"},
		{"http://ehei.egloos.com", "7529993", "http://ehei.egloos.com/7529993"},
		{"http://ehei.egloos.com", "/category/trip/page/2", "http://ehei.egloos.com/category/trip/page/2"},
		{"http://ehei.egloos.com", "http://other.egloos.com/1", "http://other.egloos.com/1"},
		{"http://ehei.egloos.com", " /12 ", "http://ehei.egloos.com/12"},
	}
	for _, tt := range tests {
		got, err := ResolveReference(tt.base, tt.href)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestResolveReference_BadLink(t *testing.T) {
	_, err := ResolveReference("http://ehei.egloos.com", "http://[::1")
	assert.ErrorIs(t, err, utils.ErrParsing)
}
