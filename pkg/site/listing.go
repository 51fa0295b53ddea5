package site

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"blog-gallery-scraper/pkg/utils"
)

const (
	listingSelector  = "div#titlelist_list"
	pagingSelector   = "div#titlelist_paging"
	pageLinkSelector = "span.page a[href]"
)

// ListingPage is a parsed category page. Links are raw hrefs, unresolved.
type ListingPage struct {
	PostLinks []string
	PageLinks []string // numbered sibling pages
	NextLink  string   // empty on the last page
}

// ParseListingPage extracts post links and pagination from a category page
func ParseListingPage(doc *goquery.Document) (*ListingPage, error) {
	list := doc.Find(listingSelector).First()
	if list.Length() == 0 {
		return nil, utils.ErrMissingListing
	}

	page := &ListingPage{}
	list.Find("li").Each(func(_ int, li *goquery.Selection) {
		if href, ok := li.Find("a[href]").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			page.PostLinks = append(page.PostLinks, href)
		}
	})

	paging := doc.Find(pagingSelector).First()
	if paging.Length() == 0 {
		return page, nil
	}
	paging.Find(pageLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if strings.TrimSpace(href) != "" {
			page.PageLinks = append(page.PageLinks, href)
		}
	})

	next := paging.Find("a.next[href]").First()
	if next.Length() == 0 {
		next = paging.Find(".next a[href]").First()
	}
	page.NextLink, _ = next.Attr("href")
	return page, nil
}
