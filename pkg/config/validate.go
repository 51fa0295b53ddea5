package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/parse"
	"blog-gallery-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// DefaultUserAgent
	if c.DefaultUserAgent == "" {
		c.DefaultUserAgent = DefaultUserAgent
	}

	// DefaultDelayPerHost
	if c.DefaultDelayPerHost < 0 {
		warnings = append(warnings, "default_delay_per_host cannot be negative, disabling host delay")
		c.DefaultDelayPerHost = 0
	}

	// OutputBaseDir
	if c.OutputBaseDir == "" {
		warnings = append(warnings, "output_base_dir is empty, defaulting to '.'")
		c.OutputBaseDir = "."
	}

	// MinImageSize
	if c.MinImageSize == nil {
		size := models.DefaultMinimumSize()
		c.MinImageSize = &size
	} else if err := ValidateSize(*c.MinImageSize); err != nil {
		return warnings, fmt.Errorf("min_image_size: %w", err)
	}

	// Delays
	if c.PostDelay < 0 {
		warnings = append(warnings, "post_delay cannot be negative, setting to 0")
		c.PostDelay = 0
	} else if c.PostDelay == 0 {
		c.PostDelay = 2 * time.Second
	}
	if c.ListingDelay < 0 {
		warnings = append(warnings, "listing_delay cannot be negative, setting to 0")
		c.ListingDelay = 0
	}
	if c.DisconnectRetryDelay <= 0 {
		c.DisconnectRetryDelay = 10 * time.Second
	}

	// MaxDisconnectRetries
	if c.MaxDisconnectRetries < 0 {
		warnings = append(warnings, "max_disconnect_retries cannot be negative, setting to 0 (unbounded)")
		c.MaxDisconnectRetries = 0
	}
	if c.MaxDisconnectRetries == 0 {
		warnings = append(warnings, "max_disconnect_retries is 0: a download whose host keeps disconnecting is retried forever")
	}

	// MaxPageSizeBytes
	if c.MaxPageSizeBytes <= 0 {
		c.MaxPageSizeBytes = 10 << 20
	}

	// MaxImageSizeBytes
	if c.MaxImageSizeBytes < 0 {
		warnings = append(warnings, "max_image_size_bytes cannot be negative, setting to 0 (unlimited)")
		c.MaxImageSizeBytes = 0
	}

	// GlobalCrawlTimeout
	if c.GlobalCrawlTimeout < 0 {
		warnings = append(warnings, "global_crawl_timeout cannot be negative, disabling timeout")
		c.GlobalCrawlTimeout = 0
	}

	// MaxConcurrentJobs
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 1
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	// Sites
	for name, site := range c.Sites {
		siteWarnings, err := site.Validate()
		if err != nil {
			return warnings, fmt.Errorf("site '%s': %w", name, err)
		}
		for _, w := range siteWarnings {
			warnings = append(warnings, fmt.Sprintf("site '%s': %s", name, w))
		}
		c.Sites[name] = site
	}

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks SiteConfig fields.
// Returns collected warnings and any fatal error.
func (c *SiteConfig) Validate() (warnings []string, err error) {
	if len(c.StartURLs) == 0 {
		return nil, fmt.Errorf("%w: site has no start_urls", utils.ErrConfigValidation)
	}
	for _, u := range c.StartURLs {
		if _, _, err := parse.ParseAndNormalize(u); err != nil {
			return nil, fmt.Errorf("%w: invalid start URL '%s': %v", utils.ErrConfigValidation, u, err)
		}
		if _, err := parse.BaseOrigin(u); err != nil {
			warnings = append(warnings, fmt.Sprintf("start URL '%s' has no base origin; category crawling will fail", u))
		}
	}

	if c.DelayPerHost < 0 {
		warnings = append(warnings, "delay_per_host cannot be negative, using global default")
		c.DelayPerHost = 0
	}

	if c.MinImageSize != nil {
		if err := ValidateSize(*c.MinImageSize); err != nil {
			return nil, fmt.Errorf("min_image_size: %w", err)
		}
	}

	return warnings, nil
}

// ValidateSize rejects non-positive dimensions
func ValidateSize(s models.Size) error {
	if s.Width != nil && *s.Width <= 0 {
		return fmt.Errorf("%w: width must be positive, got %d", utils.ErrConfigValidation, *s.Width)
	}
	if s.Height != nil && *s.Height <= 0 {
		return fmt.Errorf("%w: height must be positive, got %d", utils.ErrConfigValidation, *s.Height)
	}
	return nil
}

// ParseSize reads a size flag of the form WxH. Either side may be left
// empty to leave that axis unbounded: "800x", "x600", "x".
func ParseSize(value string) (models.Size, error) {
	var size models.Size
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(value)), "x")
	if !ok {
		return size, fmt.Errorf("%w: size '%s' is not WxH", utils.ErrConfigValidation, value)
	}
	axis := func(name, s string) (*int, error) {
		if s == "" {
			return nil, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s in size '%s': %v", utils.ErrConfigValidation, name, value, err)
		}
		return &n, nil
	}
	var err error
	if size.Width, err = axis("width", w); err != nil {
		return models.Size{}, err
	}
	if size.Height, err = axis("height", h); err != nil {
		return models.Size{}, err
	}
	if err := ValidateSize(size); err != nil {
		return models.Size{}, err
	}
	return size, nil
}
