package parse

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/utils"
)

const categoryMarker = "/category/"

// dotLabel matches a '.' followed by a run of word characters, e.g. ".egloos" in a host
var dotLabel = regexp.MustCompile(`[.]\w+`)

// Classify decides whether rawURL is a category listing or a post page.
// It never touches the network.
func Classify(rawURL string) models.PageKind {
	if strings.Contains(rawURL, categoryMarker) {
		return models.PageKindCategory
	}
	return models.PageKindPost
}

// Target wraps rawURL with its classified kind
func Target(rawURL string) models.CrawlTarget {
	return models.CrawlTarget{URL: rawURL, Kind: Classify(rawURL)}
}

// BaseOrigin truncates rawURL right after its second dot-delimited label.
// "http://name.egloos.com/category/x" becomes "http://name.egloos.com".
func BaseOrigin(rawURL string) (string, error) {
	matches := dotLabel.FindAllStringIndex(rawURL, 2)
	if len(matches) < 2 {
		return "", fmt.Errorf("%w: %s", utils.ErrMalformedURL, rawURL)
	}
	return rawURL[:matches[1][1]], nil
}

// ResolveReference resolves href found on a page against the page's base origin
func ResolveReference(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base URL '%s': %w", utils.ErrParsing, base, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("%w: invalid link URL '%s': %w", utils.ErrParsing, href, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}
