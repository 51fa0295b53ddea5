package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"blog-gallery-scraper/pkg/download"
	"blog-gallery-scraper/pkg/fetch"
	"blog-gallery-scraper/pkg/gallery"
	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/parse"
	"blog-gallery-scraper/pkg/queue"
	"blog-gallery-scraper/pkg/site"
	"blog-gallery-scraper/pkg/storage"
	"blog-gallery-scraper/pkg/utils"
)

const DefaultPostDelay = 2 * time.Second

// Options holds the per-crawl settings of a Crawler
type Options struct {
	Root         string        // destination root; must already exist
	PostDelay    time.Duration // pause after each post block and after each post page
	ListingDelay time.Duration // pause between listing pages of a category
	DetectCycles bool          // skip listing pages already crawled by the same CrawlCategory call
	Out          io.Writer     // progress lines; defaults to os.Stdout
	Sleep        utils.SleepFunc
	ErrorCounter *atomic.Int64 // also incremented on every unresolved title, if set
}

// Crawler walks posts and category listings of one blog and saves the galleries it finds.
// Everything happens sequentially: one request in flight, one block at a time.
type Crawler struct {
	log        *logrus.Entry
	fetcher    *fetch.Fetcher
	selector   *gallery.Selector
	downloader *download.Downloader
	store      storage.VisitedStore

	root         string
	postDelay    time.Duration
	listingDelay time.Duration
	detectCycles bool
	out          io.Writer
	sleep        utils.SleepFunc

	errorCount   atomic.Int64 // recoverable structural skips
	sharedErrors *atomic.Int64
	progress     progress
}

// NewCrawler wires a Crawler. store may not be nil; use storage.NewMemoryStore when no journal is wanted.
func NewCrawler(
	fetcher *fetch.Fetcher,
	selector *gallery.Selector,
	downloader *download.Downloader,
	store storage.VisitedStore,
	opts Options,
	log *logrus.Entry,
) *Crawler {
	c := &Crawler{
		log:          log,
		fetcher:      fetcher,
		selector:     selector,
		downloader:   downloader,
		store:        store,
		root:         opts.Root,
		postDelay:    opts.PostDelay,
		listingDelay: opts.ListingDelay,
		detectCycles: opts.DetectCycles,
		out:          opts.Out,
		sleep:        opts.Sleep,
		sharedErrors: opts.ErrorCounter,
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.sleep == nil {
		c.sleep = utils.Sleep
	}
	return c
}

// ErrorCount returns the number of post blocks skipped because their title could not be resolved
func (c *Crawler) ErrorCount() int64 {
	return c.errorCount.Load()
}

// CrawlPost fetches a post page and processes its blocks one after another.
// Structural failures other than an unresolved title abort the crawl.
func (c *Crawler) CrawlPost(ctx context.Context, postURL string) error {
	postLog := c.log.WithField("url", postURL)
	fmt.Fprintf(c.out, "%s requests...", postURL)

	doc, err := c.fetcher.FetchDocument(ctx, postURL)
	if errors.Is(err, utils.ErrRobotsDisallowed) {
		fmt.Fprintln(c.out)
		postLog.Warn("Post disallowed by robots.txt, skipping")
		c.progress.postsSkipped.Add(1)
		c.journalPost(postURL, 0, models.PostStatusSkipped, "", 0, err)
		return nil
	}
	if err != nil {
		return err
	}

	page, err := site.ParsePostPage(doc)
	if err != nil {
		return fmt.Errorf("%w: %s", err, postURL)
	}
	postLog.WithFields(logrus.Fields{"blog_title": page.BlogTitle, "blocks": len(page.Blocks)}).Debug("Parsed post page")

	for i, block := range page.Blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.processBlock(ctx, postURL, i, page.BlogTitle, block, postLog); err != nil {
			return err
		}
	}
	return c.sleep(ctx, c.postDelay)
}

// processBlock handles one post view. A block whose folder already holds as many
// files as it has selected images is left alone; otherwise the folder is rebuilt.
func (c *Crawler) processBlock(ctx context.Context, postURL string, index int, blogTitle string, block site.PostBlock, postLog *logrus.Entry) error {
	title, ok := block.Title()
	if !ok {
		fmt.Fprintf(c.out, "failed through getting title: %s\n", postURL)
		c.errorCount.Add(1)
		if c.sharedErrors != nil {
			c.sharedErrors.Add(1)
		}
		c.journalPost(postURL, index, models.PostStatusSkipped, "", 0, utils.ErrMissingTitle)
		return nil
	}

	category, err := block.Category()
	if err != nil {
		c.journalPost(postURL, index, models.PostStatusFailure, "", 0, err)
		return fmt.Errorf("%w: block %d of %s", err, index, postURL)
	}
	fmt.Fprintf(c.out, "\t%s/%s requests...\n", category, title)
	blockLog := postLog.WithFields(logrus.Fields{"category": category, "post_title": title})

	fragments := block.GalleryFragments()
	if len(fragments) > 0 {
		items, err := c.selector.Select(fragments)
		if err != nil {
			c.journalPost(postURL, index, models.PostStatusFailure, "", 0, err)
			return fmt.Errorf("selecting gallery of %s: %w", postURL, err)
		}

		if len(items) == 0 {
			blockLog.Debugf("None of %d gallery images reaches %s", len(fragments), c.selector.Minimum())
		} else {
			folder := utils.DestinationPath(c.root, blogTitle, category, title)
			skip, err := c.prepareFolder(folder, len(items))
			if err != nil {
				c.journalPost(postURL, index, models.PostStatusFailure, folder, len(items), err)
				return err
			}
			if skip {
				fmt.Fprintln(c.out, "\t\talready exists")
				blockLog.WithField("folder", folder).Debug("Gallery already complete")
				c.progress.postsSkipped.Add(1)
				c.journalPost(postURL, index, models.PostStatusSkipped, folder, len(items), nil)
				return nil
			}

			// A process killed mid-download leaves the block pending for -retry-failed
			c.journalPost(postURL, index, models.PostStatusPending, folder, len(items), nil)
			saved, err := c.downloader.SaveGallery(ctx, folder, items)
			c.progress.imagesSaved.Add(int64(saved))
			if err != nil {
				c.journalPost(postURL, index, models.PostStatusFailure, folder, len(items), err)
				return err
			}
			blockLog.WithFields(logrus.Fields{"folder": folder, "images": saved}).Info("Gallery saved")
			c.journalPost(postURL, index, models.PostStatusSuccess, folder, len(items), nil)
		}
	}

	c.progress.posts.Add(1)
	return c.sleep(ctx, c.postDelay)
}

// prepareFolder creates folder if needed and reports whether it already holds want entries.
// A folder with any other entry count is emptied.
func (c *Crawler) prepareFolder(folder string, want int) (skip bool, err error) {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return false, fmt.Errorf("%w: creating '%s': %w", utils.ErrFilesystem, folder, err)
	}
	entries, err := os.ReadDir(folder)
	if err != nil {
		return false, fmt.Errorf("%w: reading '%s': %w", utils.ErrFilesystem, folder, err)
	}
	if len(entries) == want {
		return true, nil
	}

	c.log.WithFields(logrus.Fields{"folder": folder, "found": len(entries), "want": want}).Debug("Rebuilding incomplete gallery")
	if err := os.RemoveAll(folder); err != nil {
		return false, fmt.Errorf("%w: clearing '%s': %w", utils.ErrFilesystem, folder, err)
	}
	if err := os.Mkdir(folder, 0755); err != nil {
		return false, fmt.Errorf("%w: recreating '%s': %w", utils.ErrFilesystem, folder, err)
	}
	return false, nil
}

// CrawlCategory crawls every post of a category listing. With followPaging the
// numbered sibling pages are crawled as well, and the "next" link continues the
// chain until a page has none.
func (c *Crawler) CrawlCategory(ctx context.Context, categoryURL string, followPaging bool) error {
	pages := queue.NewPageQueue(c.log)
	defer pages.Close()
	if followPaging {
		pages.PushNext(categoryURL)
	} else {
		pages.PushSibling(categoryURL)
	}

	visited := make(map[string]struct{}) // listing pages of this call only
	first := true
	for item, ok := pages.Pop(); ok; item, ok = pages.Pop() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !first {
			if err := c.sleep(ctx, c.listingDelay); err != nil {
				return err
			}
		}
		first = false
		if err := c.crawlListingPage(ctx, pages, visited, item); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) crawlListingPage(ctx context.Context, pages *queue.PageQueue, visited map[string]struct{}, item models.WorkItem) error {
	pageLog := c.log.WithFields(logrus.Fields{"url": item.URL, "follow_paging": item.FollowPaging})

	norm, _, err := parse.ParseAndNormalize(item.URL)
	if err != nil {
		return fmt.Errorf("%w: listing URL '%s': %w", utils.ErrParsing, item.URL, err)
	}
	if c.detectCycles {
		if _, seen := visited[norm]; seen {
			pageLog.Info("Listing page already crawled in this call, skipping")
			return nil
		}
		visited[norm] = struct{}{}
	}
	// The journal only records the page for the visited log; it never decides skipping.
	if _, err := c.store.MarkPageVisited(norm); err != nil {
		return err
	}

	base, err := parse.BaseOrigin(item.URL)
	if err != nil {
		return err
	}
	doc, err := c.fetcher.FetchDocument(ctx, item.URL)
	if err != nil {
		return err
	}
	listing, err := site.ParseListingPage(doc)
	if err != nil {
		return fmt.Errorf("%w: %s", err, item.URL)
	}
	c.progress.listingPages.Add(1)
	pageLog.WithFields(logrus.Fields{"posts": len(listing.PostLinks), "pages": len(listing.PageLinks), "has_next": listing.NextLink != ""}).Debug("Parsed listing page")

	for _, href := range listing.PostLinks {
		postURL, err := parse.ResolveReference(base, href)
		if err != nil {
			return err
		}
		if err := c.CrawlPost(ctx, postURL); err != nil {
			return err
		}
	}

	if !item.FollowPaging {
		return nil
	}
	for _, href := range listing.PageLinks {
		pageURL, err := parse.ResolveReference(base, href)
		if err != nil {
			return err
		}
		pages.PushSibling(pageURL)
	}
	if listing.NextLink != "" {
		nextURL, err := parse.ResolveReference(base, listing.NextLink)
		if err != nil {
			return err
		}
		pages.PushNext(nextURL)
	}
	return nil
}

func (c *Crawler) journalPost(postURL string, block int, status models.PostStatus, folder string, images int, cause error) {
	key := postURL
	if norm, _, err := parse.ParseAndNormalize(postURL); err == nil {
		key = norm
	}
	now := time.Now()
	entry := &models.PostDBEntry{
		Status:      status,
		Folder:      folder,
		ImageCount:  images,
		LastAttempt: now,
	}
	if cause != nil {
		entry.ErrorType = utils.CategorizeError(cause)
	}
	if status == models.PostStatusSuccess || status == models.PostStatusSkipped {
		entry.ProcessedAt = now
	}
	if err := c.store.UpdatePostStatus(storage.PostKey(key, block), entry); err != nil {
		c.log.WithField("url", postURL).Errorf("Failed to journal post status: %v", err)
	}
}
