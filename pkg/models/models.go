package models

import (
	"fmt"
	"strconv"
	"time"
)

// PageKind tells whether a URL points at a category listing or a post page
type PageKind int

const (
	PageKindPost PageKind = iota
	PageKindCategory
)

// String implements fmt.Stringer for logging
func (k PageKind) String() string {
	if k == PageKindCategory {
		return "category"
	}
	return "post"
}

// CrawlTarget is a start URL plus its classified kind
type CrawlTarget struct {
	URL  string
	Kind PageKind
}

// Size is a minimum image resolution. A nil axis places no constraint on that axis.
type Size struct {
	Width  *int `yaml:"width,omitempty" json:"width,omitempty"`
	Height *int `yaml:"height,omitempty" json:"height,omitempty"`
}

// NewSize builds a Size with both axes bounded
func NewSize(width, height int) Size {
	return Size{Width: &width, Height: &height}
}

// DefaultMinimumSize is used when no override is supplied
func DefaultMinimumSize() Size {
	return NewSize(600, 600)
}

// Admits reports whether an image of the declared dimensions meets both bounds
func (s Size) Admits(width, height int) bool {
	if s.Width != nil && *s.Width > width {
		return false
	}
	if s.Height != nil && *s.Height > height {
		return false
	}
	return true
}

// String renders the size as WxH, leaving an unbounded axis empty
func (s Size) String() string {
	axis := func(v *int) string {
		if v == nil {
			return ""
		}
		return strconv.Itoa(*v)
	}
	return fmt.Sprintf("%sx%s", axis(s.Width), axis(s.Height))
}

// GalleryItem is one selected image reference within a post
type GalleryItem struct {
	Fragment  string // raw onclick action the item was parsed from
	SourceURL string
	Index     int // 1-based position among the selected items
}

// PostIdentity names a post block; it only feeds the destination path
type PostIdentity struct {
	BlogTitle string
	Category  string
	PostTitle string
}

// WorkItem is one listing page waiting to be crawled
type WorkItem struct {
	URL          string
	FollowPaging bool // expand sibling page links and the next-page link
}

// PostDBEntry journals the outcome of crawling one post block
type PostDBEntry struct {
	Status      PostStatus `json:"status"`
	Folder      string     `json:"folder,omitempty"`      // destination folder of the block (on success/skip)
	ImageCount  int        `json:"image_count,omitempty"` // qualifying images in the block
	ErrorType   string     `json:"error_type,omitempty"`
	ProcessedAt time.Time  `json:"processed_at,omitempty"`
	LastAttempt time.Time  `json:"last_attempt"`
}

// ImageDBEntry journals the outcome of downloading one gallery image
type ImageDBEntry struct {
	Status      ImageStatus `json:"status"`
	LocalPath   string      `json:"local_path,omitempty"`
	Attempts    int         `json:"attempts,omitempty"` // includes disconnect retries
	ContentHash string      `json:"content_hash,omitempty"`
	ErrorType   string      `json:"error_type,omitempty"`
	LastAttempt time.Time   `json:"last_attempt"`
}

// CrawlSummary is the structured result of one crawl session
type CrawlSummary struct {
	SessionID      string        `yaml:"session_id" json:"session_id"`
	StartURL       string        `yaml:"start_url" json:"start_url"`
	Kind           string        `yaml:"kind" json:"kind"`
	DestinationDir string        `yaml:"destination_dir" json:"destination_dir"`
	MinimumSize    string        `yaml:"minimum_size" json:"minimum_size"`
	CrawlStartTime time.Time     `yaml:"crawl_start_time" json:"crawl_start_time"`
	CrawlEndTime   time.Time     `yaml:"crawl_end_time" json:"crawl_end_time"`
	Duration       time.Duration `yaml:"duration" json:"duration"`
	ListingPages   int           `yaml:"listing_pages" json:"listing_pages"`
	Posts          int           `yaml:"posts" json:"posts"`
	PostsSkipped   int           `yaml:"posts_skipped" json:"posts_skipped"`
	ImagesSaved    int           `yaml:"images_saved" json:"images_saved"`
	ErrorCode      int64         `yaml:"error_code" json:"error_code"`
	FatalError     string        `yaml:"fatal_error,omitempty" json:"fatal_error,omitempty"`
}
