package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"blog-gallery-scraper/pkg/models"
)

// ListingStore journals the listing pages a crawl has fetched
type ListingStore interface {
	// MarkPageVisited records a normalized listing URL.
	// Returns true if the URL was newly added, false if it was already recorded
	MarkPageVisited(normalizedListingURL string) (bool, error)
}

// PostStore journals post block outcomes
type PostStore interface {
	// CheckPostStatus retrieves the status and details of a post block key
	CheckPostStatus(postKey string) (status models.PostStatus, entry *models.PostDBEntry, err error)

	// UpdatePostStatus updates the status and details for a post block key
	UpdatePostStatus(postKey string, entry *models.PostDBEntry) error
}

// ImageStore journals image download outcomes
type ImageStore interface {
	// CheckImageStatus retrieves the status and details of an image URL
	CheckImageStatus(normalizedImgURL string) (status models.ImageStatus, entry *models.ImageDBEntry, err error)

	// UpdateImageStatus updates the status and details for an image URL
	UpdateImageStatus(normalizedImgURL string, entry *models.ImageDBEntry) error
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetVisitedCount returns the number of journal keys
	GetVisitedCount() (int, error)

	// IncompletePosts returns the post URLs whose last outcome was pending or failure
	IncompletePosts(ctx context.Context) ([]string, error)

	// WriteVisitedLog writes all listing, post and image URLs to the specified file path
	WriteVisitedLog(filePath string) error

	// RunGC runs periodic garbage collection until ctx is done
	RunGC(ctx context.Context, interval time.Duration)

	// Close releases the store
	Close() error
}

// VisitedStore combines all store interfaces for components that need full access
type VisitedStore interface {
	ListingStore
	PostStore
	ImageStore
	StoreAdmin
}

// Open returns a BadgerStore under stateDir, or a MemoryStore when stateDir is empty
func Open(ctx context.Context, stateDir string, resume bool, logger *logrus.Entry) (VisitedStore, error) {
	if stateDir == "" {
		logger.Debug("No state_dir configured, journaling in memory")
		return NewMemoryStore(), nil
	}
	return NewBadgerStore(ctx, stateDir, resume, logger)
}

const blockSeparator = "|"

// PostKey identifies block n of the post page at normalizedURL.
// Block 0 uses the bare URL.
func PostKey(normalizedURL string, block int) string {
	if block == 0 {
		return normalizedURL
	}
	return normalizedURL + blockSeparator + strconv.Itoa(block)
}

// PostURL strips the block suffix from a post key
func PostURL(postKey string) string {
	i := strings.LastIndex(postKey, blockSeparator)
	if i < 0 {
		return postKey
	}
	if _, err := strconv.Atoi(postKey[i+1:]); err != nil {
		return postKey
	}
	return postKey[:i]
}
