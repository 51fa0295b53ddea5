package crawler

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/utils"
)

// progress counts what a crawl did. Readers may poll it while the crawl runs.
type progress struct {
	listingPages atomic.Int64
	posts        atomic.Int64
	postsSkipped atomic.Int64
	imagesSaved  atomic.Int64
}

// Fill copies the crawl counters and error code into summary
func (c *Crawler) Fill(summary *models.CrawlSummary) {
	summary.ListingPages = int(c.progress.listingPages.Load())
	summary.Posts = int(c.progress.posts.Load())
	summary.PostsSkipped = int(c.progress.postsSkipped.Load())
	summary.ImagesSaved = int(c.progress.imagesSaved.Load())
	summary.ErrorCode = c.errorCount.Load()
}

// WriteSummaryYAML writes the summaries of one invocation to filePath as a YAML list
func WriteSummaryYAML(filePath string, summaries []models.CrawlSummary, log *logrus.Entry) error {
	log.Infof("Writing crawl summary to: %s", filePath)

	yamlData, err := yaml.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("failed to marshal crawl summary to YAML: %w", err)
	}
	if err := os.WriteFile(filePath, yamlData, 0644); err != nil {
		return fmt.Errorf("%w: writing summary file '%s': %w", utils.ErrFilesystem, filePath, err)
	}

	var posts, images int
	for _, s := range summaries {
		posts += s.Posts
		images += s.ImagesSaved
	}
	log.WithFields(logrus.Fields{"crawls": len(summaries), "posts": posts, "images": images}).Info("Crawl summary written")
	return nil
}
