package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"blog-gallery-scraper/pkg/config"
	"blog-gallery-scraper/pkg/crawler"
	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/orchestrate"
	"blog-gallery-scraper/pkg/storage"
	"blog-gallery-scraper/pkg/utils"
)

const version = "1.0.0"

const dbGCInterval = 10 * time.Minute

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCrawl(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("gallery-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `gallery-scraper - Blog gallery image crawler

Usage:
  gallery-scraper <command> [options]

Commands:
  crawl       Crawl a post or category URL and save its gallery images
  watch       Re-crawl start URLs on a schedule to pick up new posts
  validate    Validate configuration file
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'gallery-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// setupLogger creates a configured logrus.Logger writing to w
func setupLogger(logLevelStr string, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}

	return log
}

// crawlOptions holds the parsed flags of the crawl subcommand
type crawlOptions struct {
	configPath     string
	siteKey        string
	url            string
	dest           string
	minSize        string
	stateDir       string
	resume         bool
	retryFailed    bool
	visitedLogPath string
	treePath       string
	summaryPath    string
	logLevel       string

	client *http.Client // set by tests
	sleep  utils.SleepFunc
}

// runCrawl handles the crawl subcommand
func runCrawl(args []string) {
	var opts crawlOptions
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", "config.yaml", "Path to config file")
	fs.StringVar(&opts.siteKey, "site", "", "Site key from config whose overrides apply (crawls its start_urls when -url is empty)")
	fs.StringVar(&opts.url, "url", "", "Post or category URL to crawl (defaults to the configured start_urls)")
	fs.StringVar(&opts.dest, "dest", "", "Existing destination directory (overrides output_base_dir)")
	fs.StringVar(&opts.minSize, "min-size", "", "Minimum image size as WxH, either side may be empty (overrides min_image_size)")
	fs.StringVar(&opts.stateDir, "state-dir", "", "Directory of the crawl journal (overrides state_dir)")
	fs.BoolVar(&opts.resume, "resume", false, "Keep the existing crawl journal instead of starting fresh")
	fs.BoolVar(&opts.retryFailed, "retry-failed", false, "Crawl again the posts the journal recorded as failed or pending")
	fs.StringVar(&opts.visitedLogPath, "write-visited-log", "", "Write all journaled URLs to this file after the crawl")
	fs.StringVar(&opts.treePath, "write-tree", "", "Write a tree of the destination directory to this file after a successful crawl")
	fs.StringVar(&opts.summaryPath, "summary", "", "Write the crawl summary as YAML to this file")
	fs.StringVar(&opts.logLevel, "loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gallery-scraper crawl [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  gallery-scraper crawl -url http://name.egloos.com/category/Travel -dest ./galleries\n")
		fmt.Fprintf(os.Stderr, "  gallery-scraper crawl -url http://name.egloos.com/1234567 -dest ./galleries -min-size 800x\n")
		fmt.Fprintf(os.Stderr, "  gallery-scraper crawl -site travel -state-dir ./state -resume -retry-failed\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := doCrawl(ctx, opts, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}

// crawlTarget is one start URL plus the site whose overrides apply to it
type crawlTarget struct {
	siteKey string
	url     string
}

// prepareCrawl loads and validates the config, applies flag overrides and
// resolves the minimum size and the start URLs to crawl.
func prepareCrawl(opts crawlOptions, log *logrus.Logger) (*config.AppConfig, *models.Size, []crawlTarget, error) {
	appCfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config error: %w", err)
	}
	applyCrawlOverrides(appCfg, opts)

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config error: %w", err)
	}
	logAppConfig(appCfg, log)

	var minSize *models.Size
	if opts.minSize != "" {
		size, err := config.ParseSize(opts.minSize)
		if err == nil {
			err = config.ValidateSize(size)
		}
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid -min-size: %w", err)
		}
		minSize = &size
	}

	targets, err := resolveTargets(appCfg, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	return appCfg, minSize, targets, nil
}

// sessionPool hands out one orchestrate.Session per site key, sharing the journal
type sessionPool struct {
	appCfg   *config.AppConfig
	store    storage.VisitedStore
	opts     orchestrate.Options
	log      *logrus.Entry
	sessions map[string]*orchestrate.Session
}

func newSessionPool(appCfg *config.AppConfig, store storage.VisitedStore, opts orchestrate.Options, log *logrus.Entry) *sessionPool {
	return &sessionPool{appCfg: appCfg, store: store, opts: opts, log: log, sessions: make(map[string]*orchestrate.Session)}
}

func (p *sessionPool) get(siteKey string) (*orchestrate.Session, error) {
	if s, ok := p.sessions[siteKey]; ok {
		return s, nil
	}
	opts := p.opts
	opts.SiteKey = siteKey
	s, err := orchestrate.NewSession(p.appCfg, p.store, opts, p.log)
	if err != nil {
		return nil, err
	}
	p.sessions[siteKey] = s
	return s, nil
}

// errorCode sums the unresolved-title counters of every session
func (p *sessionPool) errorCode() int64 {
	var total int64
	for _, s := range p.sessions {
		total += s.ErrorCode()
	}
	return total
}

// doCrawl runs the crawl subcommand. Progress lines go to stdout, logs to stderr.
// Returns exit code (0 = success or cancelled, 1 = error).
func doCrawl(ctx context.Context, opts crawlOptions, stdout, stderr io.Writer) int {
	log := setupLogger(opts.logLevel, stderr)

	appCfg, minSize, targets, err := prepareCrawl(opts, log)
	if err != nil {
		log.Error(err)
		return 1
	}
	if len(targets) == 0 && !opts.retryFailed {
		log.Error("Nothing to crawl: pass -url or configure start_urls")
		return 1
	}

	logEntry := log.WithField("component", "crawl")
	store, err := storage.Open(ctx, appCfg.StateDir, opts.resume || opts.retryFailed, log.WithField("component", "storage"))
	if err != nil {
		log.Errorf("Failed to open crawl journal: %v", err)
		return 1
	}
	defer store.Close()

	pool := newSessionPool(appCfg, store, orchestrate.Options{Out: stdout, Client: opts.client, Sleep: opts.sleep}, logEntry)
	var summaries []models.CrawlSummary

	g, gctx := errgroup.WithContext(ctx)
	gcCtx, stopGC := context.WithCancel(gctx)
	g.Go(func() error {
		store.RunGC(gcCtx, dbGCInterval)
		return nil
	})
	g.Go(func() error {
		defer stopGC()

		if opts.retryFailed {
			s, err := pool.get(opts.siteKey)
			if err != nil {
				return err
			}
			summary, err := s.RetryIncomplete(gctx, appCfg.OutputBaseDir, minSize)
			summaries = append(summaries, summary)
			if err != nil {
				return err
			}
		}

		for _, target := range targets {
			s, err := pool.get(target.siteKey)
			if err != nil {
				return err
			}
			summary, err := s.StartCrawl(gctx, target.url, appCfg.OutputBaseDir, minSize)
			summaries = append(summaries, summary)
			if err != nil {
				return err
			}
		}
		return nil
	})
	err = g.Wait()

	if opts.summaryPath != "" && len(summaries) > 0 {
		if writeErr := crawler.WriteSummaryYAML(opts.summaryPath, summaries, logEntry); writeErr != nil {
			log.Errorf("Failed to write crawl summary: %v", writeErr)
		}
	}

	if opts.treePath != "" {
		if err == nil {
			if treeErr := utils.GenerateAndSaveGalleryTree(appCfg.OutputBaseDir, opts.treePath, logEntry); treeErr != nil {
				log.Errorf("Failed to generate or save directory structure: %v", treeErr)
			}
		} else {
			log.Warnf("Skipping directory structure generation due to crawl error: %v", err)
		}
	}

	if opts.visitedLogPath != "" {
		if ctx.Err() != nil {
			log.Warnf("Skipping visited log due to cancellation: %v", ctx.Err())
		} else if writeErr := store.WriteVisitedLog(opts.visitedLogPath); writeErr != nil {
			log.Errorf("Error writing visited log: %v", writeErr)
		}
	}

	if errorCode := pool.errorCode(); errorCode > 0 {
		log.Warnf("%d post blocks were skipped because their title could not be resolved", errorCode)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Crawl cancelled gracefully.")
			return 0
		} else if errors.Is(err, context.DeadlineExceeded) {
			log.Error("Crawl timed out (global timeout).")
			return 1
		}
		log.Errorf("Crawl finished with error: %v", err)
		return 1
	}

	log.Info("Crawl completed successfully.")
	return 0
}

// applyCrawlOverrides lets command-line flags replace config values
func applyCrawlOverrides(appCfg *config.AppConfig, opts crawlOptions) {
	if opts.dest != "" {
		appCfg.OutputBaseDir = opts.dest
	}
	if opts.stateDir != "" {
		appCfg.StateDir = opts.stateDir
	}
}

// resolveTargets picks what to crawl: -url, else the start_urls of -site,
// else the start_urls of every configured site in key order.
func resolveTargets(appCfg *config.AppConfig, opts crawlOptions) ([]crawlTarget, error) {
	if opts.siteKey != "" {
		if err := orchestrate.ValidateSiteKeys(appCfg, []string{opts.siteKey}); err != nil {
			return nil, err
		}
	}
	if opts.url != "" {
		return []crawlTarget{{siteKey: opts.siteKey, url: opts.url}}, nil
	}

	keys := orchestrate.GetAllSiteKeys(appCfg)
	if opts.siteKey != "" {
		keys = []string{opts.siteKey}
	}
	var targets []crawlTarget
	for _, key := range keys {
		for _, u := range appCfg.Sites[key].StartURLs {
			targets = append(targets, crawlTarget{siteKey: key, url: u})
		}
	}
	return targets, nil
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	siteKey := fs.String("site", "", "Site key to validate (optional, validates all if empty)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gallery-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, *siteKey, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, siteKey string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Sites are validated one by one below so every broken site is reported
	sites := appCfg.Sites
	appCfg.Sites = nil
	warnings, err := appCfg.Validate()
	appCfg.Sites = sites
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	keys := orchestrate.GetAllSiteKeys(appCfg)
	if siteKey != "" {
		if err := orchestrate.ValidateSiteKeys(appCfg, []string{siteKey}); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		keys = []string{siteKey}
	}

	hasError := false
	for _, key := range keys {
		siteCfg := appCfg.Sites[key]
		siteWarnings, err := siteCfg.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
			hasError = true
			continue
		}
		for _, w := range siteWarnings {
			fmt.Fprintf(stdout, "WARN: [%s] %s\n", key, w)
		}
		fmt.Fprintf(stdout, "OK: [%s] %d start URLs\n", key, len(siteCfg.StartURLs))
	}
	if hasError {
		return 1
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// logAppConfig logs the effective global configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Global Config: UserAgent:'%s', DefaultDelay:%v, StateDir:%s, OutputDir:%s",
		appCfg.DefaultUserAgent, appCfg.DefaultDelayPerHost, appCfg.StateDir, appCfg.OutputBaseDir)
	log.Infof("Global Config Gallery: MinSize:%s, PostDelay:%v, ListingDelay:%v, DetectCycles:%t",
		appCfg.MinImageSize, appCfg.PostDelay, appCfg.ListingDelay, appCfg.DetectCycles)
	log.Infof("Global Config Downloads: RetryDelay:%v, MaxRetries:%d, MaxImageSize:%d bytes, MaxPageSize:%d bytes",
		appCfg.DisconnectRetryDelay, appCfg.MaxDisconnectRetries, appCfg.MaxImageSizeBytes, appCfg.MaxPageSizeBytes)
	log.Infof("Global Config Timeouts: GlobalCrawl:%v, RespectRobots:%t",
		appCfg.GlobalCrawlTimeout, appCfg.RespectRobots)
	log.Infof("Global Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
}
