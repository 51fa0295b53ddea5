package watch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"blog-gallery-scraper/pkg/models"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"30s", 30 * time.Second, false},
		{"5m", 5 * time.Minute, false},
		{"1h", time.Hour, false},
		{"24h", 24 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"1d12h", 36 * time.Hour, false},
		{"2d6h", 54 * time.Hour, false},
		{"0s", 0, true},
		{"-1h", 0, true},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseInterval(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseInterval(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseInterval(%q) unexpected error: %v", tt.input, err)
				return
			}
			if got != tt.expected {
				t.Errorf("ParseInterval(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatInterval(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{time.Hour, "1h"},
		{90 * time.Minute, "1h30m"},
		{24 * time.Hour, "1d"},
		{36 * time.Hour, "1d12h"},
		{7 * 24 * time.Hour, "7d"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := FormatInterval(tt.input)
			if got != tt.expected {
				t.Errorf("FormatInterval(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStateManager(t *testing.T) {
	tmpDir := t.TempDir()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	url := "http://name.egloos.com/category/Travel"

	sm := NewStateManager(tmpDir)
	if err := sm.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !sm.ShouldRun(url, time.Hour, now) {
		t.Error("ShouldRun() should return true for a new target")
	}

	sm.Record(url, now, models.CrawlSummary{ImagesSaved: 12, PostsSkipped: 3, ErrorCode: 1}, nil)

	if sm.ShouldRun(url, time.Hour, now.Add(59*time.Minute)) {
		t.Error("ShouldRun() should return false before the interval passed")
	}
	if !sm.ShouldRun(url, time.Hour, now.Add(time.Hour)) {
		t.Error("ShouldRun() should return true once the interval passed")
	}

	if err := sm.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, stateFileName)); err != nil {
		t.Errorf("State file should exist after Save(): %v", err)
	}

	sm2 := NewStateManager(tmpDir)
	if err := sm2.Load(); err != nil {
		t.Fatalf("Load() from saved state failed: %v", err)
	}
	state, ok := sm2.GetTargetState(url)
	if !ok {
		t.Fatal("GetTargetState() should return true after Load()")
	}
	if !state.LastRunSuccess || state.ImagesSaved != 12 || state.PostsSkipped != 3 || state.ErrorCode != 1 {
		t.Errorf("Loaded state = %+v", state)
	}
	if !state.LastRunTime.Equal(now) {
		t.Errorf("LastRunTime = %v, want %v", state.LastRunTime, now)
	}
}

func TestStateManagerRecordsFailure(t *testing.T) {
	sm := NewStateManager(t.TempDir())
	sm.Record("http://name.egloos.com/1", time.Now(), models.CrawlSummary{}, errors.New("status 404 Not Found"))

	state, _ := sm.GetTargetState("http://name.egloos.com/1")
	if state.LastRunSuccess {
		t.Error("LastRunSuccess should be false")
	}
	if state.ErrorMessage != "status 404 Not Found" {
		t.Errorf("ErrorMessage = %q", state.ErrorMessage)
	}
}

func TestStateManagerInMemory(t *testing.T) {
	sm := NewStateManager("")
	if err := sm.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	sm.Record("http://name.egloos.com/1", time.Now(), models.CrawlSummary{}, nil)
	if err := sm.Save(); err != nil {
		t.Fatalf("Save() without a state dir should be a no-op: %v", err)
	}
	if _, ok := sm.GetTargetState("http://name.egloos.com/1"); !ok {
		t.Error("state should still be kept in memory")
	}
}

func TestStateManagerCorruptFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, stateFileName), []byte("targets: [not a map"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := NewStateManager(tmpDir).Load(); err == nil {
		t.Error("Load() should fail on a corrupt state file")
	}
}

func TestGetNextRunTime(t *testing.T) {
	sm := NewStateManager("")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := sm.GetNextRunTime("http://new.egloos.com/1", time.Hour, now); !got.Equal(now) {
		t.Errorf("GetNextRunTime() for new target = %v, want %v", got, now)
	}

	sm.Record("http://old.egloos.com/1", now, models.CrawlSummary{}, nil)
	if got := sm.GetNextRunTime("http://old.egloos.com/1", time.Hour, now); !got.Equal(now.Add(time.Hour)) {
		t.Errorf("GetNextRunTime() = %v, want %v", got, now.Add(time.Hour))
	}
}

func TestSchedulerRunDue(t *testing.T) {
	targets := []Target{
		{SiteKey: "travel", URL: "http://a.egloos.com/category/Travel"},
		{SiteKey: "food", URL: "http://b.egloos.com/1"},
	}
	var crawled []string
	crawl := func(ctx context.Context, target Target) (models.CrawlSummary, error) {
		crawled = append(crawled, target.URL)
		if target.SiteKey == "food" {
			return models.CrawlSummary{}, errors.New("boom")
		}
		return models.CrawlSummary{ImagesSaved: 4}, nil
	}

	tmpDir := t.TempDir()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScheduler(tmpDir, targets, time.Hour, crawl, testLogger())
	s.now = func() time.Time { return now }

	if err := s.RunDue(context.Background()); err != nil {
		t.Fatalf("RunDue() error: %v", err)
	}
	if len(crawled) != 2 || crawled[0] != targets[0].URL || crawled[1] != targets[1].URL {
		t.Fatalf("crawled = %v, want both targets in order", crawled)
	}

	status := s.Status()
	if status[0].NeverRun || !status[0].LastRunSuccess || status[0].ImagesSaved != 4 {
		t.Errorf("status[0] = %+v", status[0])
	}
	if status[1].LastRunSuccess || status[1].ErrorMessage != "boom" {
		t.Errorf("status[1] = %+v", status[1])
	}

	// Nothing is due within the interval
	crawled = nil
	now = now.Add(30 * time.Minute)
	if err := s.RunDue(context.Background()); err != nil {
		t.Fatalf("RunDue() error: %v", err)
	}
	if len(crawled) != 0 {
		t.Errorf("crawled = %v, want none", crawled)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, stateFileName)); err != nil {
		t.Errorf("state should be saved after a run: %v", err)
	}
}

func TestSchedulerRunDueCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	crawl := func(ctx context.Context, target Target) (models.CrawlSummary, error) {
		calls++
		cancel()
		return models.CrawlSummary{}, ctx.Err()
	}
	targets := []Target{{URL: "http://a.egloos.com/1"}, {URL: "http://b.egloos.com/1"}}
	s := NewScheduler("", targets, time.Hour, crawl, testLogger())

	if err := s.RunDue(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunDue() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !s.Status()[0].NeverRun {
		t.Error("a cancelled crawl should not be recorded")
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	crawl := func(ctx context.Context, target Target) (models.CrawlSummary, error) {
		cancel()
		return models.CrawlSummary{ImagesSaved: 1}, nil
	}
	s := NewScheduler("", []Target{{URL: "http://a.egloos.com/1"}}, time.Hour, crawl, testLogger())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestCalculateTickInterval(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     time.Duration
	}{
		{5 * time.Minute, time.Minute},
		{time.Hour, 6 * time.Minute},
		{24 * time.Hour, 10 * time.Minute},
	}
	for _, tt := range tests {
		s := NewScheduler("", nil, tt.interval, nil, testLogger())
		if got := s.calculateTickInterval(); got != tt.want {
			t.Errorf("calculateTickInterval(%v) = %v, want %v", tt.interval, got, tt.want)
		}
	}
}
