package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/orchestrate"
	"blog-gallery-scraper/pkg/storage"
	"blog-gallery-scraper/pkg/watch"
)

// runWatch handles the watch subcommand
func runWatch(args []string) {
	var opts crawlOptions
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", "config.yaml", "Path to config file")
	fs.StringVar(&opts.siteKey, "site", "", "Site key from config (watches its start_urls; all sites if empty)")
	fs.StringVar(&opts.url, "url", "", "Single post or category URL to watch instead of the configured start_urls")
	fs.StringVar(&opts.dest, "dest", "", "Existing destination directory (overrides output_base_dir)")
	fs.StringVar(&opts.minSize, "min-size", "", "Minimum image size as WxH (overrides min_image_size)")
	fs.StringVar(&opts.stateDir, "state-dir", "", "Directory of the crawl journal and watch state (overrides state_dir)")
	fs.StringVar(&opts.logLevel, "loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	interval := fs.String("interval", "24h", "Crawl interval (e.g., 30m, 1h, 24h, 7d)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gallery-scraper watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  gallery-scraper watch -site travel -interval 24h\n")
		fmt.Fprintf(os.Stderr, "  gallery-scraper watch -url http://name.egloos.com/category/Travel -dest ./galleries -interval 6h\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := doWatch(ctx, opts, *interval, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}

// doWatch re-crawls the resolved start URLs every interval until ctx is done.
// Returns exit code (0 = stopped, 1 = error).
func doWatch(ctx context.Context, opts crawlOptions, intervalStr string, stdout, stderr io.Writer) int {
	log := setupLogger(opts.logLevel, stderr)

	interval, err := watch.ParseInterval(intervalStr)
	if err != nil {
		log.Errorf("Invalid interval: %v", err)
		return 1
	}

	appCfg, minSize, targets, err := prepareCrawl(opts, log)
	if err != nil {
		log.Error(err)
		return 1
	}
	if len(targets) == 0 {
		log.Error("Nothing to watch: pass -url or configure start_urls")
		return 1
	}

	// Watching keeps the journal across runs
	store, err := storage.Open(ctx, appCfg.StateDir, true, log.WithField("component", "storage"))
	if err != nil {
		log.Errorf("Failed to open crawl journal: %v", err)
		return 1
	}
	defer store.Close()
	go store.RunGC(ctx, dbGCInterval)

	logEntry := log.WithField("component", "watch")
	pool := newSessionPool(appCfg, store, orchestrate.Options{Out: stdout, Client: opts.client, Sleep: opts.sleep}, logEntry)

	watchTargets := make([]watch.Target, 0, len(targets))
	for _, t := range targets {
		watchTargets = append(watchTargets, watch.Target{SiteKey: t.siteKey, URL: t.url})
	}

	crawl := func(ctx context.Context, target watch.Target) (models.CrawlSummary, error) {
		s, err := pool.get(target.SiteKey)
		if err != nil {
			return models.CrawlSummary{}, err
		}
		return s.StartCrawl(ctx, target.URL, appCfg.OutputBaseDir, minSize)
	}

	scheduler := watch.NewScheduler(appCfg.StateDir, watchTargets, interval, crawl, logEntry)
	if err := scheduler.Run(ctx); err != nil {
		log.Errorf("Watch scheduler error: %v", err)
		return 1
	}

	log.Info("Watch mode stopped")
	return 0
}
