package mcp

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"blog-gallery-scraper/pkg/config"
	"blog-gallery-scraper/pkg/storage"
	"blog-gallery-scraper/pkg/utils"
)

const (
	serverName    = "gallery-scraper"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig // must already be validated
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
	Store      storage.VisitedStore // shared journal; defaults to an in-memory store
	Progress   io.Writer            // crawl progress lines; defaults to io.Discard since stdio carries the protocol
	Client     *http.Client         // overrides the configured HTTP client (tests)
	Sleep      utils.SleepFunc
}

// Server wraps the MCP server with gallery crawl jobs
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	jobManager *JobManager
	slots      *semaphore.Weighted
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("%w: AppConfig is required", utils.ErrConfigValidation)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}
	if cfg.Progress == nil {
		cfg.Progress = io.Discard
	}

	maxJobs := cfg.AppConfig.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 1
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		log:        cfg.Logger.WithField("component", "mcp"),
		jobManager: NewJobManager(),
		slots:      semaphore.NewWeighted(int64(maxJobs)),
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	classifyTool := mcp.NewTool("classify_url",
		mcp.WithDescription("Tell whether a blog URL is a category listing or a single post. Does not fetch anything."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Blog URL to classify"),
		),
	)
	s.mcpServer.AddTool(classifyTool, s.handleClassifyURL)

	crawlTool := mcp.NewTool("crawl_gallery",
		mcp.WithDescription("Start a background gallery crawl of a post or category URL. Returns immediately with a job ID."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Post or category URL to crawl"),
		),
		mcp.WithString("destination",
			mcp.Description("Existing directory to save galleries under (defaults to output_base_dir)"),
		),
		mcp.WithNumber("min_width",
			mcp.Description("Minimum image width in pixels (overrides the configured size)"),
		),
		mcp.WithNumber("min_height",
			mcp.Description("Minimum image height in pixels (overrides the configured size)"),
		),
		mcp.WithString("site_key",
			mcp.Description("Site key from config file whose overrides apply (optional)"),
		),
	)
	s.mcpServer.AddTool(crawlTool, s.handleCrawlGallery)

	getJobStatusTool := mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status and counters of a crawl job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by crawl_gallery"),
		),
	)
	s.mcpServer.AddTool(getJobStatusTool, s.handleGetJobStatus)

	listJobsTool := mcp.NewTool("list_jobs",
		mcp.WithDescription("List all crawl jobs of this server, oldest first"),
	)
	s.mcpServer.AddTool(listJobsTool, s.handleListJobs)

	cancelJobTool := mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a pending or running crawl job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by crawl_gallery"),
		),
	)
	s.mcpServer.AddTool(cancelJobTool, s.handleCancelJob)

	s.log.Infof("Registered %d MCP tools", 5)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels every active job
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
