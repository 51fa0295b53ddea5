package storage

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/utils"
)

// MemoryStore is the VisitedStore used when no state directory is configured.
// Nothing survives the process.
type MemoryStore struct {
	mu       sync.Mutex
	listings map[string]struct{}
	posts    map[string]models.PostDBEntry
	images   map[string]models.ImageDBEntry
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings: make(map[string]struct{}),
		posts:    make(map[string]models.PostDBEntry),
		images:   make(map[string]models.ImageDBEntry),
	}
}

// MarkPageVisited implements the VisitedStore interface
func (m *MemoryStore) MarkPageVisited(normalizedListingURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[normalizedListingURL]; ok {
		return false, nil
	}
	m.listings[normalizedListingURL] = struct{}{}
	return true, nil
}

// CheckPostStatus implements the VisitedStore interface
func (m *MemoryStore) CheckPostStatus(postKey string) (models.PostStatus, *models.PostDBEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.posts[postKey]
	if !ok {
		return models.PostStatusNotFound, nil, nil
	}
	return entry.Status, &entry, nil
}

// UpdatePostStatus implements the VisitedStore interface
func (m *MemoryStore) UpdatePostStatus(postKey string, entry *models.PostDBEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[postKey] = *entry
	return nil
}

// CheckImageStatus implements the VisitedStore interface
func (m *MemoryStore) CheckImageStatus(normalizedImgURL string) (models.ImageStatus, *models.ImageDBEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.images[normalizedImgURL]
	if !ok {
		return models.ImageStatusNotFound, nil, nil
	}
	return entry.Status, &entry, nil
}

// UpdateImageStatus implements the VisitedStore interface
func (m *MemoryStore) UpdateImageStatus(normalizedImgURL string, entry *models.ImageDBEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[normalizedImgURL] = *entry
	return nil
}

// GetVisitedCount implements the VisitedStore interface
func (m *MemoryStore) GetVisitedCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listings) + len(m.posts) + len(m.images), nil
}

// IncompletePosts implements the VisitedStore interface
func (m *MemoryStore) IncompletePosts(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var urls []string
	for key, entry := range m.posts {
		if entry.Status != models.PostStatusPending && entry.Status != models.PostStatusFailure {
			continue
		}
		if u := PostURL(key); !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	sort.Strings(urls)
	return urls, ctx.Err()
}

// WriteVisitedLog implements the VisitedStore interface
func (m *MemoryStore) WriteVisitedLog(filePath string) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.listings)+len(m.posts)+len(m.images))
	for k := range m.listings {
		keys = append(keys, k)
	}
	for k := range m.posts {
		keys = append(keys, k)
	}
	for k := range m.images {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(filePath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("%w: write visited log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	return nil
}

// RunGC blocks until ctx is done; there is nothing to collect
func (m *MemoryStore) RunGC(ctx context.Context, _ time.Duration) {
	<-ctx.Done()
}

// Close implements the VisitedStore interface
func (m *MemoryStore) Close() error { return nil }

var (
	_ VisitedStore = (*MemoryStore)(nil)
	_ VisitedStore = (*BadgerStore)(nil)
)
