// Package gallery decides which images of a post gallery are worth downloading
// and how each one is named on disk.
package gallery

import (
	"fmt"
	"math"
	"net/url"
	"path"
	"regexp"
	"strconv"

	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/utils"
)

var (
	// declared display size: numbers preceded by at least one space
	declaredSize = regexp.MustCompile(` +([0-9]+)`)
	// absolute http: source address, ended by a quote, backslash, comma, whitespace or ')'
	sourceAddress = regexp.MustCompile(`http:[^'\\,\s)]+`)
)

// Selector filters gallery fragments against a minimum size
type Selector struct {
	minimum models.Size
}

// NewSelector returns a Selector that admits images at least as large as minimum
func NewSelector(minimum models.Size) *Selector {
	return &Selector{minimum: minimum}
}

// Minimum returns the configured bound
func (s *Selector) Minimum() models.Size {
	return s.minimum
}

// DeclaredSize parses the width and height a fragment declares.
// Anything other than exactly two numbers is ErrUnparseableSize.
func DeclaredSize(fragment string) (width, height int, err error) {
	found := declaredSize.FindAllStringSubmatch(fragment, -1)
	if len(found) != 2 {
		return 0, 0, fmt.Errorf("%w: found %d numbers in %q", utils.ErrUnparseableSize, len(found), fragment)
	}
	if width, err = strconv.Atoi(found[0][1]); err != nil {
		return 0, 0, fmt.Errorf("%w: width in %q: %w", utils.ErrUnparseableSize, fragment, err)
	}
	if height, err = strconv.Atoi(found[1][1]); err != nil {
		return 0, 0, fmt.Errorf("%w: height in %q: %w", utils.ErrUnparseableSize, fragment, err)
	}
	return width, height, nil
}

// Qualifies reports whether the fragment's declared size meets the minimum on both axes
func (s *Selector) Qualifies(fragment string) (bool, error) {
	w, h, err := DeclaredSize(fragment)
	if err != nil {
		return false, err
	}
	return s.minimum.Admits(w, h), nil
}

// Select skips fragments at the head of the gallery until the first qualifying one
// and returns it together with every fragment after it. Thumbnails come first on
// the site, so once one image qualifies the rest are taken without checking.
// Fragments after the cut are never size-checked.
func (s *Selector) Select(fragments []string) ([]models.GalleryItem, error) {
	start := len(fragments)
	for i, fragment := range fragments {
		ok, err := s.Qualifies(fragment)
		if err != nil {
			return nil, err
		}
		if ok {
			start = i
			break
		}
	}

	items := make([]models.GalleryItem, 0, len(fragments)-start)
	for i, fragment := range fragments[start:] {
		source := ExtractSourceURL(fragment)
		if source == "" {
			return nil, fmt.Errorf("%w: no http: source address in %q", utils.ErrParsing, fragment)
		}
		items = append(items, models.GalleryItem{
			Fragment:  fragment,
			SourceURL: source,
			Index:     i + 1,
		})
	}
	return items, nil
}

// ExtractSourceURL pulls the absolute http: address out of a fragment, or "" if none
func ExtractSourceURL(fragment string) string {
	return sourceAddress.FindString(fragment)
}

// PadWidth is the number of digits file indexes are zero-padded to for a gallery of n.
// It is ceil(log10(n)), so n=10 pads to 1 digit like n=9 does.
func PadWidth(n int) int {
	if n <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log10(float64(n))))
}

// FormatIndex renders a 1-based index zero-padded to width
func FormatIndex(index, width int) string {
	return fmt.Sprintf("%0*d", width, index)
}

// FileName is the on-disk name of item: the padded index plus the
// extension of the last path segment of its source URL.
func FileName(item models.GalleryItem, width int) string {
	return FormatIndex(item.Index, width) + sourceExtension(item.SourceURL)
}

func sourceExtension(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil {
		p = u.Path
	}
	return path.Ext(path.Base(p))
}
