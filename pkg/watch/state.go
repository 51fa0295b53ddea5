package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/utils"
)

const stateFileName = "watch_state.yaml"

// TargetState is the outcome of the last crawl of one start URL
type TargetState struct {
	LastRunTime    time.Time `yaml:"last_run_time"`
	LastRunSuccess bool      `yaml:"last_run_success"`
	ImagesSaved    int       `yaml:"images_saved"`
	PostsSkipped   int       `yaml:"posts_skipped"`
	ErrorCode      int64     `yaml:"error_code,omitempty"`
	ErrorMessage   string    `yaml:"error_message,omitempty"`
}

// WatchState is what the scheduler persists between runs
type WatchState struct {
	Targets   map[string]TargetState `yaml:"targets"` // keyed by start URL
	UpdatedAt time.Time              `yaml:"updated_at"`
}

// StateManager loads and saves watch state. With an empty state dir the
// state lives in memory only.
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager
func NewStateManager(stateDir string) *StateManager {
	m := &StateManager{
		stateDir: stateDir,
		state:    WatchState{Targets: make(map[string]TargetState)},
	}
	if stateDir != "" {
		m.statePath = filepath.Join(stateDir, stateFileName)
	}
	return m
}

// Load reads the state file. A missing file starts fresh.
func (m *StateManager) Load() error {
	if m.statePath == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.state = WatchState{Targets: make(map[string]TargetState)}
			return nil
		}
		return fmt.Errorf("%w: read watch state: %w", utils.ErrFilesystem, err)
	}

	if err := yaml.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("%w: watch state '%s': %w", utils.ErrParsing, m.statePath, err)
	}
	if m.state.Targets == nil {
		m.state.Targets = make(map[string]TargetState)
	}
	return nil
}

// Save writes the state file
func (m *StateManager) Save() error {
	if m.statePath == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()

	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("%w: create state directory: %w", utils.ErrFilesystem, err)
	}

	data, err := yaml.Marshal(&m.state)
	if err != nil {
		return fmt.Errorf("failed to marshal watch state: %w", err)
	}

	if err := os.WriteFile(m.statePath, data, 0644); err != nil {
		return fmt.Errorf("%w: write watch state: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// GetTargetState returns the state recorded for a start URL
func (m *StateManager) GetTargetState(url string) (TargetState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Targets[url]
	return state, ok
}

// Record stores the outcome of a crawl finished at now
func (m *StateManager) Record(url string, now time.Time, summary models.CrawlSummary, crawlErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := TargetState{
		LastRunTime:    now,
		LastRunSuccess: crawlErr == nil,
		ImagesSaved:    summary.ImagesSaved,
		PostsSkipped:   summary.PostsSkipped,
		ErrorCode:      summary.ErrorCode,
	}
	if crawlErr != nil {
		state.ErrorMessage = crawlErr.Error()
	}
	m.state.Targets[url] = state
}

// ShouldRun reports whether interval has passed since the last crawl of url
func (m *StateManager) ShouldRun(url string, interval time.Duration, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Targets[url]
	if !ok {
		return true
	}
	return now.Sub(state.LastRunTime) >= interval
}

// GetNextRunTime returns when url is due again
func (m *StateManager) GetNextRunTime(url string, interval time.Duration, now time.Time) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Targets[url]
	if !ok {
		return now
	}
	return state.LastRunTime.Add(interval)
}
