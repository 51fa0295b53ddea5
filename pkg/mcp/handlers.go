package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/orchestrate"
	"blog-gallery-scraper/pkg/parse"
	"blog-gallery-scraper/pkg/utils"
)

// handleClassifyURL handles the classify_url tool
func (s *Server) handleClassifyURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urlStr := request.GetString("url", "")
	if urlStr == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	target := parse.Target(urlStr)
	result := map[string]interface{}{
		"url":  target.URL,
		"kind": target.Kind.String(),
	}
	if origin, err := parse.BaseOrigin(urlStr); err == nil {
		result["base_origin"] = origin
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleCrawlGallery handles the crawl_gallery tool
func (s *Server) handleCrawlGallery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urlStr := request.GetString("url", "")
	if urlStr == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	siteKey := request.GetString("site_key", "")
	if siteKey != "" {
		if err := orchestrate.ValidateSiteKeys(s.cfg.AppConfig, []string{siteKey}); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	destination := request.GetString("destination", s.cfg.AppConfig.OutputBaseDir)
	if info, err := os.Stat(destination); err != nil || !info.IsDir() {
		return mcp.NewToolResultError(fmt.Sprintf("destination '%s' is not an existing directory", destination)), nil
	}

	minSize, err := sizeOverride(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	job, created := s.jobManager.CreateJob(urlStr, destination)
	if !created {
		result := map[string]interface{}{
			"status":  "already_running",
			"message": "A crawl is already in progress for this URL",
			"job_id":  job.ID,
			"url":     urlStr,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	go s.runCrawlJob(job, siteKey, minSize)

	result := map[string]interface{}{
		"status":      "started",
		"message":     "Crawl started successfully",
		"job_id":      job.ID,
		"url":         urlStr,
		"kind":        parse.Classify(urlStr).String(),
		"destination": destination,
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// sizeOverride builds a minimum size from min_width/min_height, or nil when neither is given
func sizeOverride(request mcp.CallToolRequest) (*models.Size, error) {
	width := request.GetInt("min_width", 0)
	height := request.GetInt("min_height", 0)
	if width == 0 && height == 0 {
		return nil, nil
	}
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: min_width and min_height must be positive", utils.ErrConfigValidation)
	}
	var size models.Size
	if width != 0 {
		size.Width = &width
	}
	if height != 0 {
		size.Height = &height
	}
	return &size, nil
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	return mcp.NewToolResultText(formatJSON(jobResult(job))), nil
}

// handleListJobs handles the list_jobs tool
func (s *Server) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs := s.jobManager.ListJobs()
	results := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, jobResult(job))
	}

	result := map[string]interface{}{
		"jobs":        results,
		"total_jobs":  len(results),
		"config_path": s.cfg.ConfigPath,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleCancelJob handles the cancel_job tool
func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	if !s.jobManager.CancelJob(jobID) {
		result := map[string]interface{}{
			"job_id":  jobID,
			"status":  job.Status,
			"message": "Job already finished",
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	result := map[string]interface{}{
		"job_id":  jobID,
		"status":  JobStatusCancelled,
		"message": "Job cancelled",
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// jobResult renders a job snapshot for tool output
func jobResult(job *Job) map[string]interface{} {
	result := map[string]interface{}{
		"job_id":        job.ID,
		"url":           job.URL,
		"destination":   job.Destination,
		"status":        job.Status,
		"started_at":    job.StartedAt.Format(time.RFC3339),
		"listing_pages": job.Summary.ListingPages,
		"posts":         job.Summary.Posts,
		"posts_skipped": job.Summary.PostsSkipped,
		"images_saved":  job.Summary.ImagesSaved,
		"error_code":    job.Summary.ErrorCode,
	}

	if job.Summary.MinimumSize != "" {
		result["minimum_size"] = job.Summary.MinimumSize
	}

	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}

	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}

	return result
}

// runCrawlJob runs a crawl job in the background once a job slot is free
func (s *Server) runCrawlJob(job *Job, siteKey string, minSize *models.Size) {
	jobCtx := s.jobManager.GetContext(job.ID)
	jobLog := s.log.WithField("job_id", job.ID)

	if err := s.slots.Acquire(jobCtx, 1); err != nil {
		s.jobManager.Finish(job.ID, JobStatusCancelled, models.CrawlSummary{}, "")
		return
	}
	defer s.slots.Release(1)

	session, err := orchestrate.NewSession(s.cfg.AppConfig, s.cfg.Store, orchestrate.Options{
		SiteKey: siteKey,
		Out:     s.cfg.Progress,
		Sleep:   s.cfg.Sleep,
		Client:  s.cfg.Client,
	}, jobLog)
	if err != nil {
		s.jobManager.Finish(job.ID, JobStatusFailed, models.CrawlSummary{}, fmt.Sprintf("failed to create session: %v", err))
		return
	}

	if !s.jobManager.MarkRunning(job.ID, session.Progress) {
		return
	}

	summary, err := session.StartCrawl(jobCtx, job.URL, job.Destination, minSize)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.jobManager.Finish(job.ID, JobStatusCancelled, summary, "")
		} else {
			jobLog.WithError(err).Warn("Crawl job failed")
			s.jobManager.Finish(job.ID, JobStatusFailed, summary, err.Error())
		}
		return
	}

	s.jobManager.Finish(job.ID, JobStatusCompleted, summary, "")
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
