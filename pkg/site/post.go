// Package site knows the blog platform's page markup. Layout drift on the
// platform should only ever require changes here.
package site

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"blog-gallery-scraper/pkg/utils"
)

const (
	postViewSelector      = "div.post_view"
	postTitleLinkSelector = "div.post_title a"
	postTitleAreaSelector = "div.post_title_area"
	categorySelector      = "span.post_title_category"
	galleryImageSelector  = "img.image_mid"
	galleryActionAttr     = "onclick"
)

// PostPage is a parsed post page. A listing-style page may hold several blocks.
type PostPage struct {
	BlogTitle string
	Blocks    []PostBlock
}

// PostBlock is one post view on a page. Fields are read lazily so callers
// decide in which order structural failures surface.
type PostBlock struct {
	sel *goquery.Selection
}

// ParsePostPage reads the blog title and locates the post blocks.
// The blog title is the part of <title> before the first ':'.
func ParsePostPage(doc *goquery.Document) (*PostPage, error) {
	title := doc.Find("title").First()
	if title.Length() == 0 {
		return nil, utils.ErrMissingTitle
	}
	blogTitle, _, _ := strings.Cut(title.Text(), ":")

	page := &PostPage{BlogTitle: strings.TrimSpace(blogTitle)}
	doc.Find(postViewSelector).Each(func(_ int, s *goquery.Selection) {
		page.Blocks = append(page.Blocks, PostBlock{sel: s})
	})
	return page, nil
}

// Title resolves the post title from the title link, falling back to the
// second child node of the title area when the link is missing or blank.
// ok is false when neither yields text.
func (b PostBlock) Title() (title string, ok bool) {
	if link := b.sel.Find(postTitleLinkSelector).First(); link.Length() > 0 {
		if title = strings.TrimSpace(link.Text()); title != "" {
			return title, true
		}
	}
	area := b.sel.Find(postTitleAreaSelector).First()
	if area.Length() == 0 {
		return "", false
	}
	second := area.Contents().Eq(1)
	if second.Length() == 0 {
		return "", false
	}
	title = strings.TrimSpace(second.Text())
	return title, title != ""
}

// Category returns the block's category label
func (b PostBlock) Category() (string, error) {
	label := b.sel.Find(categorySelector).First()
	if label.Length() == 0 {
		return "", utils.ErrMissingCategory
	}
	return strings.TrimSpace(label.Text()), nil
}

// GalleryFragments returns the inline action of every gallery image in the block, in page order
func (b PostBlock) GalleryFragments() []string {
	var fragments []string
	b.sel.Find(galleryImageSelector).Each(func(_ int, img *goquery.Selection) {
		if action, ok := img.Attr(galleryActionAttr); ok {
			fragments = append(fragments, action)
		}
	})
	return fragments
}
