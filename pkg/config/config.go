package config

import (
	"time"

	"blog-gallery-scraper/pkg/models"
)

// DefaultUserAgent is sent when neither the site nor the global config names one
const DefaultUserAgent = "My User Agent 1.0"

// SiteConfig holds overrides for one blog. Nil or zero fields fall back to AppConfig.
type SiteConfig struct {
	StartURLs    []string      `yaml:"start_urls"`
	UserAgent    string        `yaml:"user_agent,omitempty"`
	DelayPerHost time.Duration `yaml:"delay_per_host,omitempty"`
	MinImageSize *models.Size  `yaml:"min_image_size,omitempty"`
	DetectCycles *bool         `yaml:"detect_cycles,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	DefaultUserAgent     string                `yaml:"default_user_agent"`
	DefaultDelayPerHost  time.Duration         `yaml:"default_delay_per_host"`
	OutputBaseDir        string                `yaml:"output_base_dir"`
	StateDir             string                `yaml:"state_dir,omitempty"` // Empty keeps the journal in memory
	MinImageSize         *models.Size          `yaml:"min_image_size,omitempty"`
	PostDelay            time.Duration         `yaml:"post_delay,omitempty"`
	ListingDelay         time.Duration         `yaml:"listing_delay,omitempty"`
	DisconnectRetryDelay time.Duration         `yaml:"disconnect_retry_delay,omitempty"`
	MaxDisconnectRetries int                   `yaml:"max_disconnect_retries,omitempty"` // 0 = retry until the download succeeds
	RespectRobots        bool                  `yaml:"respect_robots,omitempty"`
	DetectCycles         bool                  `yaml:"detect_cycles,omitempty"`
	MaxPageSizeBytes     int64                 `yaml:"max_page_size_bytes,omitempty"`
	MaxImageSizeBytes    int64                 `yaml:"max_image_size_bytes,omitempty"` // 0 = unlimited
	GlobalCrawlTimeout   time.Duration         `yaml:"global_crawl_timeout,omitempty"`
	MaxConcurrentJobs    int                   `yaml:"max_concurrent_jobs,omitempty"` // MCP server only
	HTTPClientSettings   HTTPClientConfig      `yaml:"http_client_settings,omitempty"`
	Sites                map[string]SiteConfig `yaml:"sites,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// GetEffectiveUserAgent determines the User-Agent header for a site
func GetEffectiveUserAgent(siteCfg SiteConfig, appCfg AppConfig) string {
	if siteCfg.UserAgent != "" {
		return siteCfg.UserAgent
	}
	if appCfg.DefaultUserAgent != "" {
		return appCfg.DefaultUserAgent
	}
	return DefaultUserAgent
}

// GetEffectiveDelayPerHost determines the minimum gap between requests to one host
func GetEffectiveDelayPerHost(siteCfg SiteConfig, appCfg AppConfig) time.Duration {
	if siteCfg.DelayPerHost > 0 {
		return siteCfg.DelayPerHost
	}
	return appCfg.DefaultDelayPerHost
}

// GetEffectiveMinImageSize determines the minimum gallery image size.
// Falls back to 600x600 when neither config sets one.
func GetEffectiveMinImageSize(siteCfg SiteConfig, appCfg AppConfig) models.Size {
	if siteCfg.MinImageSize != nil {
		return *siteCfg.MinImageSize
	}
	if appCfg.MinImageSize != nil {
		return *appCfg.MinImageSize
	}
	return models.DefaultMinimumSize()
}

// GetEffectiveDetectCycles determines whether listing pages are deduplicated
func GetEffectiveDetectCycles(siteCfg SiteConfig, appCfg AppConfig) bool {
	if siteCfg.DetectCycles != nil {
		return *siteCfg.DetectCycles
	}
	return appCfg.DetectCycles
}
