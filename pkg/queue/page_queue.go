package queue

import (
	"sync"

	"github.com/sirupsen/logrus"

	"blog-gallery-scraper/pkg/models"
)

// PageQueue is the FIFO of listing pages still to crawl for one category.
//
// Two insertion policies keep the traversal order of a depth-first walk over the
// pagination: PushSibling queues a page whose own paging links are ignored,
// PushNext queues the next page of the chain, which expands its paging links in turn.
// Since only chain pages add work, draining the queue in FIFO order visits pages in
// the same order as recursing into each sibling and then into the next page.
type PageQueue struct {
	items  []models.WorkItem
	mu     sync.Mutex
	closed bool
	log    *logrus.Entry
}

// NewPageQueue creates an empty queue
func NewPageQueue(logger *logrus.Entry) *PageQueue {
	return &PageQueue{log: logger}
}

// PushSibling queues a page from the pagination container
func (q *PageQueue) PushSibling(url string) {
	q.push(models.WorkItem{URL: url, FollowPaging: false})
}

// PushNext queues the page behind the "next" link
func (q *PageQueue) PushNext(url string) {
	q.push(models.WorkItem{URL: url, FollowPaging: true})
}

func (q *PageQueue) push(item models.WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Warnf("Attempted to add page to closed queue: %s", item.URL)
		return
	}
	q.items = append(q.items, item)
}

// Pop removes and returns the oldest item.
// Returns false when the queue is empty or closed.
func (q *PageQueue) Pop() (models.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.items) == 0 {
		return models.WorkItem{}, false
	}
	item := q.items[0]
	q.items[0] = models.WorkItem{}
	q.items = q.items[1:]
	return item, true
}

// Close drops pending pages and rejects further pushes
func (q *PageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.items = nil
	}
}

// Len returns the current number of pending pages
func (q *PageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
