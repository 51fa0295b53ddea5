package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"

	"blog-gallery-scraper/pkg/utils"
)

const defaultMaxPageSize = 10 << 20

// Fetcher sends every request of a crawl: it stamps the User-Agent, waits on the
// per-host rate limiter and, when configured, consults robots.txt for pages.
// It never retries; retry policy belongs to the caller.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	limiter     *RateLimiter
	robots      *RobotsHandler
	maxPageSize int64
	log         *logrus.Entry
}

// NewFetcher creates a new Fetcher instance. limiter may be nil.
func NewFetcher(client *http.Client, userAgent string, limiter *RateLimiter, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:      client,
		userAgent:   userAgent,
		limiter:     limiter,
		maxPageSize: defaultMaxPageSize,
		log:         log,
	}
}

// EnableRobots makes FetchDocument refuse pages robots.txt disallows for the fetcher's agent
func (f *Fetcher) EnableRobots() *RobotsHandler {
	f.robots = NewRobotsHandler(f, f.log)
	return f.robots
}

// SetMaxPageSize caps the body size FetchDocument will read. n <= 0 keeps the default.
func (f *Fetcher) SetMaxPageSize(n int64) {
	if n > 0 {
		f.maxPageSize = n
	}
}

// UserAgent returns the header value sent with every request
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Get issues a GET for rawURL and returns the response whatever its status.
// The caller must close the body.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrRequestCreation, rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	if err := f.limiter.Wait(ctx, req.URL.Host); err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	f.log.WithFields(logrus.Fields{"url": rawURL, "status_code": resp.StatusCode}).Debug("Fetched")
	return resp, nil
}

// FetchDocument fetches a page and parses it. A non-2xx status is ErrFetch.
// Bodies in legacy encodings are decoded to UTF-8 using the Content-Type header
// or the page's meta charset.
func (f *Fetcher) FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if f.robots != nil {
		target, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid URL '%s': %w", utils.ErrParsing, rawURL, err)
		}
		if !f.robots.TestAgent(ctx, target, f.userAgent) {
			return nil, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, rawURL)
		}
	}

	resp, err := f.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %s for %s", utils.ErrFetch, resp.Status, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxPageSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrResponseBodyRead, rawURL, err)
	}
	if int64(len(body)) > f.maxPageSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", utils.ErrResponseBodyRead, rawURL, f.maxPageSize)
	}

	decoded, err := charset.NewReader(bytes.NewReader(body), resp.Header.Get("Content-Type"))
	if err != nil {
		f.log.WithField("url", rawURL).Warnf("Unknown charset, reading body as UTF-8: %v", err)
		decoded = bytes.NewReader(body)
	}

	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: HTML of %s: %w", utils.ErrParsing, rawURL, err)
	}
	return doc, nil
}
