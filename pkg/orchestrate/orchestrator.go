package orchestrate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"blog-gallery-scraper/pkg/config"
	"blog-gallery-scraper/pkg/crawler"
	"blog-gallery-scraper/pkg/download"
	"blog-gallery-scraper/pkg/fetch"
	"blog-gallery-scraper/pkg/gallery"
	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/parse"
	"blog-gallery-scraper/pkg/storage"
	"blog-gallery-scraper/pkg/utils"
)

// Options contains optional parameters for NewSession
type Options struct {
	SiteKey string          // site whose overrides apply; empty uses the global settings only
	Out     io.Writer       // progress lines; defaults to os.Stdout
	Sleep   utils.SleepFunc // defaults to utils.Sleep
	Client  *http.Client    // defaults to a client built from http_client_settings
}

// Session is the entry point of a crawl. It owns the shared fetcher and journal
// and builds a crawler per StartCrawl call.
type Session struct {
	id      string
	appCfg  *config.AppConfig
	siteCfg config.SiteConfig
	siteKey string
	store   storage.VisitedStore
	fetcher *fetch.Fetcher
	out     io.Writer
	sleep   utils.SleepFunc
	log     *logrus.Entry

	errorCode atomic.Int64

	mu     sync.Mutex
	active *crawler.Crawler
	last   models.CrawlSummary
}

// NewSession creates a Session. appCfg must already be validated.
func NewSession(appCfg *config.AppConfig, store storage.VisitedStore, opts Options, log *logrus.Entry) (*Session, error) {
	var siteCfg config.SiteConfig
	if opts.SiteKey != "" {
		if err := ValidateSiteKeys(appCfg, []string{opts.SiteKey}); err != nil {
			return nil, err
		}
		siteCfg = appCfg.Sites[opts.SiteKey]
	}

	id := uuid.New().String()
	logger := log.WithField("session_id", id)
	if opts.SiteKey != "" {
		logger = logger.WithField("site_key", opts.SiteKey)
	}

	client := opts.Client
	if client == nil {
		client = fetch.NewClient(appCfg.HTTPClientSettings, logger)
	}
	limiter := fetch.NewRateLimiter(config.GetEffectiveDelayPerHost(siteCfg, *appCfg), logger)
	fetcher := fetch.NewFetcher(client, config.GetEffectiveUserAgent(siteCfg, *appCfg), limiter, logger)
	fetcher.SetMaxPageSize(appCfg.MaxPageSizeBytes)
	if appCfg.RespectRobots {
		fetcher.EnableRobots()
	}

	s := &Session{
		id:      id,
		appCfg:  appCfg,
		siteCfg: siteCfg,
		siteKey: opts.SiteKey,
		store:   store,
		fetcher: fetcher,
		out:     opts.Out,
		sleep:   opts.Sleep,
		log:     logger,
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.sleep == nil {
		s.sleep = utils.Sleep
	}
	return s, nil
}

// ID returns the session's unique identifier
func (s *Session) ID() string {
	return s.id
}

// ErrorCode is the number of post blocks skipped so far because their title
// could not be resolved, over every crawl of this session.
func (s *Session) ErrorCode() int64 {
	return s.errorCode.Load()
}

// Progress returns the counters of the running crawl, or the last finished one
func (s *Session) Progress() models.CrawlSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := s.last
	if s.active != nil {
		s.active.Fill(&summary)
	}
	return summary
}

// StartCrawl classifies url and crawls it into root, which must already exist.
// minSize overrides the configured minimum image size when non-nil.
// The summary is returned even when the crawl fails.
func (s *Session) StartCrawl(ctx context.Context, url, root string, minSize *models.Size) (models.CrawlSummary, error) {
	target := parse.Target(url)
	return s.run(ctx, target.URL, target.Kind.String(), root, minSize, func(ctx context.Context, c *crawler.Crawler) error {
		if target.Kind == models.PageKindCategory {
			return c.CrawlCategory(ctx, target.URL, true)
		}
		return c.CrawlPost(ctx, target.URL)
	})
}

// RetryIncomplete crawls again every post the journal recorded as pending or failed
func (s *Session) RetryIncomplete(ctx context.Context, root string, minSize *models.Size) (models.CrawlSummary, error) {
	urls, err := s.store.IncompletePosts(ctx)
	if err != nil {
		return models.CrawlSummary{SessionID: s.id, FatalError: err.Error()}, err
	}
	s.log.Infof("Retrying %d incomplete posts from the journal", len(urls))
	return s.run(ctx, "", "retry", root, minSize, func(ctx context.Context, c *crawler.Crawler) error {
		for _, u := range urls {
			if err := c.CrawlPost(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Session) run(ctx context.Context, url, kind, root string, minSize *models.Size, crawl func(context.Context, *crawler.Crawler) error) (models.CrawlSummary, error) {
	summary := models.CrawlSummary{
		SessionID:      s.id,
		StartURL:       url,
		Kind:           kind,
		DestinationDir: root,
		CrawlStartTime: time.Now(),
	}
	runLog := s.log.WithFields(logrus.Fields{"url": url, "kind": kind, "destination": root})

	fail := func(err error) (models.CrawlSummary, error) {
		summary.CrawlEndTime = time.Now()
		summary.Duration = summary.CrawlEndTime.Sub(summary.CrawlStartTime)
		summary.FatalError = err.Error()
		runLog.WithField("error_type", utils.CategorizeError(err)).Errorf("Crawl aborted: %v", err)
		s.finish(summary)
		return summary, err
	}

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fail(fmt.Errorf("%w: %s", utils.ErrDestinationNotFound, root))
	}

	size := config.GetEffectiveMinImageSize(s.siteCfg, *s.appCfg)
	if minSize != nil {
		size = *minSize
	}
	if err := config.ValidateSize(size); err != nil {
		return fail(err)
	}
	summary.MinimumSize = size.String()

	if s.appCfg.GlobalCrawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.appCfg.GlobalCrawlTimeout)
		defer cancel()
	}

	downloader := download.NewDownloader(s.fetcher, s.store, s.out, download.Options{
		RetryDelay:   s.appCfg.DisconnectRetryDelay,
		MaxRetries:   s.appCfg.MaxDisconnectRetries,
		MaxImageSize: s.appCfg.MaxImageSizeBytes,
		Sleep:        s.sleep,
	}, runLog.WithField("component", "download"))

	c := crawler.NewCrawler(s.fetcher, gallery.NewSelector(size), downloader, s.store, crawler.Options{
		Root:         root,
		PostDelay:    s.appCfg.PostDelay,
		ListingDelay: s.appCfg.ListingDelay,
		DetectCycles: config.GetEffectiveDetectCycles(s.siteCfg, *s.appCfg),
		Out:          s.out,
		Sleep:        s.sleep,
		ErrorCounter: &s.errorCode,
	}, runLog.WithField("component", "crawler"))

	s.mu.Lock()
	s.active = c
	s.mu.Unlock()

	runLog.WithField("minimum_size", summary.MinimumSize).Info("Crawl starting")
	err := crawl(ctx, c)

	c.Fill(&summary)
	if err != nil {
		return fail(err)
	}

	summary.CrawlEndTime = time.Now()
	summary.Duration = summary.CrawlEndTime.Sub(summary.CrawlStartTime)
	s.finish(summary)
	logSummary(runLog, summary)
	return summary, nil
}

func (s *Session) finish(summary models.CrawlSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
	s.last = summary
}

// logSummary logs a summary of a finished crawl
func logSummary(log *logrus.Entry, summary models.CrawlSummary) {
	log.Info("============================================")
	log.Infof("Crawl completed in %v", summary.Duration)
	log.Infof("  Listing pages: %d", summary.ListingPages)
	log.Infof("  Post blocks:   %d (%d already complete)", summary.Posts, summary.PostsSkipped)
	log.Infof("  Images saved:  %d", summary.ImagesSaved)
	if summary.ErrorCode > 0 {
		log.Warnf("  Blocks skipped for missing title: %d", summary.ErrorCode)
	}
	log.Info("============================================")
}

// ValidateSiteKeys checks that all provided site keys exist in the config
func ValidateSiteKeys(appCfg *config.AppConfig, siteKeys []string) error {
	for _, key := range siteKeys {
		if _, exists := appCfg.Sites[key]; !exists {
			return fmt.Errorf("%w: site '%s' not found. Available sites: %v", utils.ErrConfigValidation, key, GetAllSiteKeys(appCfg))
		}
	}
	return nil
}

// GetAllSiteKeys returns all site keys from the config, sorted
func GetAllSiteKeys(appCfg *config.AppConfig) []string {
	keys := make([]string, 0, len(appCfg.Sites))
	for k := range appCfg.Sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
