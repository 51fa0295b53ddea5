package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blog-gallery-scraper/pkg/config"
	"blog-gallery-scraper/pkg/fetch/fetchtest"
)

const testPost = `<html><head><title>My Blog : Day 1</title></head><body>
<div class="post_view">
<div class="post_title"><a href="#">Day 1</a></div>
<span class="post_title_category">Travel</span>
<img class="image_mid" onclick="showImage('http://pds.egloos.test/big.jpg', 900, 700)">
</div>
</body></html>`

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestServer(t *testing.T, site *fetchtest.Site) *Server {
	t.Helper()
	appCfg := &config.AppConfig{
		OutputBaseDir: t.TempDir(),
		Sites: map[string]config.SiteConfig{
			"blog": {StartURLs: []string{"http://blog.egloos.test/category/Travel"}},
		},
	}
	_, err := appCfg.Validate()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := NewServer(&ServerConfig{
		AppConfig:  appCfg,
		ConfigPath: "config.yaml",
		Transport:  "stdio",
		Logger:     logger,
		Client:     site.Client(),
		Sleep:      noSleep,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (map[string]any, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args

	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	if res.IsError {
		return map[string]any{"error": text.Text}, true
	}

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out, false
}

func waitForStatus(t *testing.T, s *Server, jobID string, want JobStatus) *Job {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.jobManager.GetJob(jobID).Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return s.jobManager.GetJob(jobID)
}

func TestNewServer_RequiresAppConfig(t *testing.T) {
	_, err := NewServer(&ServerConfig{})
	assert.Error(t, err)
}

func TestHandleClassifyURL(t *testing.T) {
	s := newTestServer(t, fetchtest.NewSite(t))

	tests := []struct {
		name   string
		url    string
		kind   string
		origin string
	}{
		{"category", "http://name.egloos.com/category/Travel", "category", "http://name.egloos.com"},
		{"post", "http://name.egloos.com/1234567", "post", "http://name.egloos.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, isErr := callTool(t, s.handleClassifyURL, map[string]any{"url": tt.url})
			require.False(t, isErr)
			assert.Equal(t, tt.kind, out["kind"])
			assert.Equal(t, tt.origin, out["base_origin"])
		})
	}

	t.Run("missing url", func(t *testing.T) {
		out, isErr := callTool(t, s.handleClassifyURL, map[string]any{})
		require.True(t, isErr)
		assert.Contains(t, out["error"], "url parameter is required")
	})
}

func TestHandleCrawlGallery_CompletesJob(t *testing.T) {
	site := fetchtest.NewSite(t)
	site.HTML("http://blog.egloos.test/1", testPost)
	site.Bytes("http://pds.egloos.test/big.jpg", "image/jpeg", []byte("b"))
	s := newTestServer(t, site)
	dest := t.TempDir()

	out, isErr := callTool(t, s.handleCrawlGallery, map[string]any{
		"url":         "http://blog.egloos.test/1",
		"destination": dest,
		"site_key":    "blog",
	})
	require.False(t, isErr, out["error"])
	assert.Equal(t, "started", out["status"])
	assert.Equal(t, "post", out["kind"])

	jobID := out["job_id"].(string)
	job := waitForStatus(t, s, jobID, JobStatusCompleted)
	assert.Equal(t, 1, job.Summary.ImagesSaved)
	assert.FileExists(t, filepath.Join(dest, "My Blog", "Travel", "Day 1", "1.jpg"))

	status, isErr := callTool(t, s.handleGetJobStatus, map[string]any{"job_id": jobID})
	require.False(t, isErr)
	assert.Equal(t, "completed", status["status"])
	assert.EqualValues(t, 1, status["images_saved"])
	assert.Equal(t, "600x600", status["minimum_size"])
	assert.Contains(t, status, "completed_at")
}

func TestHandleCrawlGallery_SizeOverride(t *testing.T) {
	site := fetchtest.NewSite(t)
	site.HTML("http://blog.egloos.test/1", testPost)
	site.Bytes("http://pds.egloos.test/big.jpg", "image/jpeg", []byte("b"))
	s := newTestServer(t, site)

	out, isErr := callTool(t, s.handleCrawlGallery, map[string]any{
		"url":         "http://blog.egloos.test/1",
		"destination": t.TempDir(),
		"min_width":   1000,
	})
	require.False(t, isErr, out["error"])

	job := waitForStatus(t, s, out["job_id"].(string), JobStatusCompleted)
	assert.Equal(t, 0, job.Summary.ImagesSaved, "900px wide image is below the override")
	assert.Equal(t, "1000x", job.Summary.MinimumSize)
}

func TestHandleCrawlGallery_FailedJob(t *testing.T) {
	site := fetchtest.NewSite(t)
	s := newTestServer(t, site)

	out, isErr := callTool(t, s.handleCrawlGallery, map[string]any{
		"url":         "http://blog.egloos.test/gone",
		"destination": t.TempDir(),
	})
	require.False(t, isErr)

	job := waitForStatus(t, s, out["job_id"].(string), JobStatusFailed)
	assert.Contains(t, job.ErrorMessage, "404")
}

func TestHandleCrawlGallery_Validation(t *testing.T) {
	s := newTestServer(t, fetchtest.NewSite(t))

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{"missing url", map[string]any{}, "url parameter is required"},
		{"unknown site", map[string]any{"url": "http://blog.egloos.test/1", "site_key": "nope"}, "nope"},
		{"missing destination", map[string]any{"url": "http://blog.egloos.test/1", "destination": filepath.Join(t.TempDir(), "missing")}, "not an existing directory"},
		{"negative size", map[string]any{"url": "http://blog.egloos.test/1", "min_height": -5}, "positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, isErr := callTool(t, s.handleCrawlGallery, tt.args)
			require.True(t, isErr)
			assert.Contains(t, out["error"], tt.wantErr)
		})
	}
	assert.Empty(t, s.jobManager.ListJobs())
}

func TestHandleCrawlGallery_AlreadyRunning(t *testing.T) {
	site := fetchtest.NewSite(t)
	release := make(chan struct{})
	site.Handle("http://blog.egloos.test/1", func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(testPost))
	})
	site.Bytes("http://pds.egloos.test/big.jpg", "image/jpeg", []byte("b"))
	s := newTestServer(t, site)
	dest := t.TempDir()

	first, _ := callTool(t, s.handleCrawlGallery, map[string]any{"url": "http://blog.egloos.test/1", "destination": dest})
	second, isErr := callTool(t, s.handleCrawlGallery, map[string]any{"url": "http://blog.egloos.test/1", "destination": dest})
	require.False(t, isErr)
	assert.Equal(t, "already_running", second["status"])
	assert.Equal(t, first["job_id"], second["job_id"])

	close(release)
	waitForStatus(t, s, first["job_id"].(string), JobStatusCompleted)
}

func TestHandleCancelJob(t *testing.T) {
	site := fetchtest.NewSite(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	site.Handle("http://blog.egloos.test/1", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	s := newTestServer(t, site)

	out, _ := callTool(t, s.handleCrawlGallery, map[string]any{"url": "http://blog.egloos.test/1", "destination": t.TempDir()})
	jobID := out["job_id"].(string)

	cancelled, isErr := callTool(t, s.handleCancelJob, map[string]any{"job_id": jobID})
	require.False(t, isErr)
	assert.Equal(t, "cancelled", cancelled["status"])

	again, isErr := callTool(t, s.handleCancelJob, map[string]any{"job_id": jobID})
	require.False(t, isErr)
	assert.Equal(t, "Job already finished", again["message"])

	t.Run("unknown job", func(t *testing.T) {
		out, isErr := callTool(t, s.handleCancelJob, map[string]any{"job_id": "ghost"})
		require.True(t, isErr)
		assert.Contains(t, out["error"], "not found")
	})
}

func TestHandleGetJobStatus_Errors(t *testing.T) {
	s := newTestServer(t, fetchtest.NewSite(t))

	out, isErr := callTool(t, s.handleGetJobStatus, map[string]any{})
	require.True(t, isErr)
	assert.Contains(t, out["error"], "job_id parameter is required")

	out, isErr = callTool(t, s.handleGetJobStatus, map[string]any{"job_id": "ghost"})
	require.True(t, isErr)
	assert.Contains(t, out["error"], "not found")
}

func TestHandleListJobs(t *testing.T) {
	s := newTestServer(t, fetchtest.NewSite(t))
	s.jobManager.CreateJob("http://a.egloos.test/1", "/tmp")
	s.jobManager.CreateJob("http://b.egloos.test/1", "/tmp")

	out, isErr := callTool(t, s.handleListJobs, nil)
	require.False(t, isErr)
	assert.EqualValues(t, 2, out["total_jobs"])
	assert.Equal(t, "config.yaml", out["config_path"])
	assert.Len(t, out["jobs"], 2)
}

func TestFormatJSON(t *testing.T) {
	t.Run("valid map", func(t *testing.T) {
		var parsed map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(formatJSON(map[string]interface{}{"key": "value", "n": 42})), &parsed))
		assert.Equal(t, "value", parsed["key"])
		assert.Equal(t, float64(42), parsed["n"])
	})

	t.Run("unmarshalable value", func(t *testing.T) {
		got := formatJSON(map[string]interface{}{"ch": make(chan int)})
		assert.Contains(t, got, "error")
	})
}
