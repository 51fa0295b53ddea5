package mcp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"blog-gallery-scraper/pkg/models"
)

// JobStatus represents the current state of a crawl job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending" // waiting for a job slot
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsActive reports whether the job has not finished yet
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// Job represents a background gallery crawl
type Job struct {
	ID           string              `json:"id"`
	URL          string              `json:"url"`
	Destination  string              `json:"destination"`
	Status       JobStatus           `json:"status"`
	StartedAt    time.Time           `json:"started_at"`
	CompletedAt  time.Time           `json:"completed_at,omitempty"`
	Summary      models.CrawlSummary `json:"summary"`
	ErrorMessage string              `json:"error_message,omitempty"`

	// Internal fields
	ctx      context.Context
	cancel   context.CancelFunc
	progress func() models.CrawlSummary // live counters while running
}

// JobManager manages background crawl jobs
type JobManager struct {
	jobs  map[string]*Job
	mu    sync.RWMutex
	byURL map[string]string // start URL -> jobID for active jobs
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:  make(map[string]*Job),
		byURL: make(map[string]string),
	}
}

// CreateJob creates a job crawling startURL into destination.
// If a job for the same URL is still active it is returned instead, with created false.
func (m *JobManager) CreateJob(startURL, destination string) (job *Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingJobID, exists := m.byURL[startURL]; exists {
		if existing := m.jobs[existingJobID]; existing != nil && existing.Status.IsActive() {
			return existing, false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	job = &Job{
		ID:          uuid.New().String(),
		URL:         startURL,
		Destination: destination,
		Status:      JobStatusPending,
		StartedAt:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}

	m.jobs[job.ID] = job
	m.byURL[startURL] = job.ID
	return job, true
}

// GetJob returns a snapshot of the job with live progress filled in, or nil
func (m *JobManager) GetJob(jobID string) *Job {
	m.mu.RLock()
	job, exists := m.jobs[jobID]
	if !exists {
		m.mu.RUnlock()
		return nil
	}
	snapshot := *job
	m.mu.RUnlock()

	if snapshot.Status == JobStatusRunning && snapshot.progress != nil {
		snapshot.Summary = snapshot.progress()
	}
	return &snapshot
}

// IsRunning checks if an active job exists for startURL
func (m *JobManager) IsRunning(startURL string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if jobID, exists := m.byURL[startURL]; exists {
		job := m.jobs[jobID]
		return job != nil && job.Status.IsActive()
	}
	return false
}

// MarkRunning moves a pending job to running and registers its progress source.
// Returns false if the job was cancelled meanwhile.
func (m *JobManager) MarkRunning(jobID string, progress func() models.CrawlSummary) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || job.Status != JobStatusPending {
		return false
	}
	job.Status = JobStatusRunning
	job.progress = progress
	return true
}

// Finish records the final status and summary of a job. A cancelled job stays cancelled.
func (m *JobManager) Finish(jobID string, status JobStatus, summary models.CrawlSummary, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return
	}
	job.Summary = summary
	job.progress = nil
	if job.Status == JobStatusCancelled {
		return
	}
	job.Status = status
	job.CompletedAt = time.Now()
	if errorMsg != "" {
		job.ErrorMessage = errorMsg
	}
	delete(m.byURL, job.URL)
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists && job.Status.IsActive() {
		job.cancel()
		job.Status = JobStatusCancelled
		job.CompletedAt = time.Now()
		delete(m.byURL, job.URL)
		return true
	}
	return false
}

// CancelAll cancels all active jobs
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.Status.IsActive() {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
	m.byURL = make(map[string]string)
}

// ListJobs returns snapshots of all jobs, oldest first
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		if job := m.GetJob(id); job != nil {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.Before(jobs[j].StartedAt) })
	return jobs
}

// GetContext returns the context for a job (for running the crawl)
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, exists := m.jobs[jobID]; exists {
		return job.ctx
	}
	return context.Background()
}
