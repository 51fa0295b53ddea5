package site

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blog-gallery-scraper/pkg/utils"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

const postPage = `<html><head><title>Ehei's Lair : Trip photos</title></head><body>
<div class="post_view">
  <div class="post_title"><a href="/1">Re: Trip [2020]!</a></div>
  <span class="post_title_category">Travel</span>
  <img class="image_mid" onclick="showImage('http://pds.egloos.test/t.jpg', 100, 100)">
  <img class="image_mid" onclick="showImage('http://pds.egloos.test/a.jpg', 800, 600)">
  <img class="image_mid">
  <img class="thumb" onclick="showImage('http://pds.egloos.test/x.jpg', 900, 900)">
</div>
<div class="post_view">
  <div class="post_title_area"><span>[ignored]</span> Fallback title <em>x</em></div>
  <span class="post_title_category"> Food </span>
</div>
<div class="post_view">
  <div class="post_title_area"><span>only child</span></div>
</div>
<div class="post_view">
  <div class="post_title"><a href="/4">No category</a></div>
</div>
</body></html>`

func TestParsePostPage(t *testing.T) {
	page, err := ParsePostPage(mustDoc(t, postPage))
	require.NoError(t, err)
	assert.Equal(t, "Ehei's Lair", page.BlogTitle)
	require.Len(t, page.Blocks, 4)

	title, ok := page.Blocks[0].Title()
	assert.True(t, ok)
	assert.Equal(t, "Re: Trip [2020]!", title)
	category, err := page.Blocks[0].Category()
	require.NoError(t, err)
	assert.Equal(t, "Travel", category)
	assert.Equal(t, []string{
		"showImage('http://pds.egloos.test/t.jpg', 100, 100)",
		"showImage('http://pds.egloos.test/a.jpg', 800, 600)",
	}, page.Blocks[0].GalleryFragments())

	title, ok = page.Blocks[1].Title()
	assert.True(t, ok)
	assert.Equal(t, "Fallback title", title)
	category, err = page.Blocks[1].Category()
	require.NoError(t, err)
	assert.Equal(t, "Food", category)
	assert.Empty(t, page.Blocks[1].GalleryFragments())

	_, ok = page.Blocks[2].Title()
	assert.False(t, ok, "title area without a second child node is unresolved")

	_, err = page.Blocks[3].Category()
	assert.ErrorIs(t, err, utils.ErrMissingCategory)
}

func TestParsePostPage_TitleWithoutColon(t *testing.T) {
	page, err := ParsePostPage(mustDoc(t, `<html><head><title>  Plain Blog </title></head></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Plain Blog", page.BlogTitle)
	assert.Empty(t, page.Blocks)
}

func TestParsePostPage_MissingTitle(t *testing.T) {
	_, err := ParsePostPage(mustDoc(t, `<html><body><div class="post_view"></div></body></html>`))
	assert.ErrorIs(t, err, utils.ErrMissingTitle)
}

func TestPostBlock_NoTitleElements(t *testing.T) {
	page, err := ParsePostPage(mustDoc(t, `<html><head><title>B</title></head><body><div class="post_view"></div></body></html>`))
	require.NoError(t, err)
	_, ok := page.Blocks[0].Title()
	assert.False(t, ok)
}

func TestPostBlock_BlankTitleLinkFallsBackToArea(t *testing.T) {
	page, err := ParsePostPage(mustDoc(t, `<html><head><title>B</title></head><body><div class="post_view">
<div class="post_title"><a href="#">  </a></div>
<div class="post_title_area"><span>icon</span>Area Title</div>
</div></body></html>`))
	require.NoError(t, err)

	title, ok := page.Blocks[0].Title()
	assert.True(t, ok)
	assert.Equal(t, "Area Title", title)
}

func TestPostBlock_BlankTitleLinkWithoutArea(t *testing.T) {
	page, err := ParsePostPage(mustDoc(t, `<html><head><title>B</title></head><body><div class="post_view">
<div class="post_title"><a href="#"></a></div>
</div></body></html>`))
	require.NoError(t, err)

	_, ok := page.Blocks[0].Title()
	assert.False(t, ok)
}

const listingPage = `<html><body>
<div id="titlelist_list"><ul>
  <li><a href="/101">first</a></li>
  <li><span>no link</span></li>
  <li><a href="http://blog.egloos.test/102">second</a></li>
</ul></div>
<div id="titlelist_paging">
  <span class="page"><strong>1</strong> <a href="/category/trip/page/2">2</a> <a href="/category/trip/page/3">3</a></span>
  <a class="next" href="/category/trip/page/11">next</a>
</div>
</body></html>`

func TestParseListingPage(t *testing.T) {
	page, err := ParseListingPage(mustDoc(t, listingPage))
	require.NoError(t, err)
	assert.Equal(t, []string{"/101", "http://blog.egloos.test/102"}, page.PostLinks)
	assert.Equal(t, []string{"/category/trip/page/2", "/category/trip/page/3"}, page.PageLinks)
	assert.Equal(t, "/category/trip/page/11", page.NextLink)
}

func TestParseListingPage_NestedNext(t *testing.T) {
	page, err := ParseListingPage(mustDoc(t, `<div id="titlelist_list"></div>
<div id="titlelist_paging"><span class="next"><a href="/category/a/page/2">»</a></span></div>`))
	require.NoError(t, err)
	assert.Empty(t, page.PostLinks)
	assert.Equal(t, "/category/a/page/2", page.NextLink)
}

func TestParseListingPage_NoPaging(t *testing.T) {
	page, err := ParseListingPage(mustDoc(t, `<div id="titlelist_list"><li><a href="/1">x</a></li></div>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"/1"}, page.PostLinks)
	assert.Empty(t, page.PageLinks)
	assert.Empty(t, page.NextLink)
}

func TestParseListingPage_MissingListing(t *testing.T) {
	_, err := ParseListingPage(mustDoc(t, `<html><body><div id="other"></div></body></html>`))
	assert.ErrorIs(t, err, utils.ErrMissingListing)
}
