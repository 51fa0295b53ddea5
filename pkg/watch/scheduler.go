package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/utils"
)

// Target is a start URL watched for new galleries
type Target struct {
	SiteKey string
	URL     string
}

// CrawlFunc crawls one target and returns its summary
type CrawlFunc func(ctx context.Context, target Target) (models.CrawlSummary, error)

// Scheduler re-crawls its targets every interval. Targets run one after
// another; already downloaded posts are skipped by the crawler itself.
type Scheduler struct {
	targets      []Target
	interval     time.Duration
	crawl        CrawlFunc
	log          *logrus.Entry
	stateManager *StateManager
	now          func() time.Time
}

// NewScheduler creates a new watch scheduler
func NewScheduler(stateDir string, targets []Target, interval time.Duration, crawl CrawlFunc, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		targets:      targets,
		interval:     interval,
		crawl:        crawl,
		log:          log,
		stateManager: NewStateManager(stateDir),
		now:          time.Now,
	}
}

// Run crawls due targets until ctx is done. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode for %d start URLs with interval %s", len(s.targets), FormatInterval(s.interval))

	ticker := time.NewTicker(s.calculateTickInterval())
	defer ticker.Stop()

	for {
		if err := s.RunDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		s.logNextRun()

		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			return nil
		case <-ticker.C:
		}
	}
}

// RunDue crawls every target whose interval has passed and saves the state.
// A failed crawl is recorded and does not stop the others; cancellation does.
func (s *Scheduler) RunDue(ctx context.Context) error {
	var ran int
	for _, target := range s.targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.stateManager.ShouldRun(target.URL, s.interval, s.now()) {
			continue
		}

		targetLog := s.log.WithFields(logrus.Fields{"url": target.URL, "site_key": target.SiteKey})
		targetLog.Info("Crawl due")
		summary, err := s.crawl(ctx, target)
		if errors.Is(err, context.Canceled) {
			return err
		}
		if err != nil {
			targetLog.WithField("error_type", utils.CategorizeError(err)).Warnf("Watched crawl failed: %v", err)
		} else {
			targetLog.Infof("Watched crawl finished: %d images saved, %d posts already complete", summary.ImagesSaved, summary.PostsSkipped)
		}
		s.stateManager.Record(target.URL, s.now(), summary, err)
		ran++
	}

	if ran == 0 {
		return nil
	}
	if err := s.stateManager.Save(); err != nil {
		s.log.Errorf("Failed to save watch state: %v", err)
	}
	return nil
}

// calculateTickInterval returns how often to check for due targets
func (s *Scheduler) calculateTickInterval() time.Duration {
	checkInterval := s.interval / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

// logNextRun logs the earliest upcoming crawl
func (s *Scheduler) logNextRun() {
	now := s.now()
	var next Target
	var nextTime time.Time
	for i, target := range s.targets {
		t := s.stateManager.GetNextRunTime(target.URL, s.interval, now)
		if i == 0 || t.Before(nextTime) {
			next, nextTime = target, t
		}
	}
	if next.URL == "" {
		return
	}
	until := nextTime.Sub(now)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next crawl: %s in %v (at %s)", next.URL, until.Round(time.Second), nextTime.Format("15:04:05"))
}

// Status returns the recorded state of every target, in target order
func (s *Scheduler) Status() []TargetStatus {
	now := s.now()
	status := make([]TargetStatus, 0, len(s.targets))
	for _, target := range s.targets {
		state, exists := s.stateManager.GetTargetState(target.URL)
		status = append(status, TargetStatus{
			Target:      target,
			TargetState: state,
			NextRunTime: s.stateManager.GetNextRunTime(target.URL, s.interval, now),
			NeverRun:    !exists,
		})
	}
	return status
}

// TargetStatus contains the status of a watched start URL
type TargetStatus struct {
	Target
	TargetState
	NextRunTime time.Time
	NeverRun    bool
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string, also accepting a leading day count ("7d", "1d12h")
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("%w: interval must be positive: %s", utils.ErrConfigValidation, s)
		}
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 && days > 0 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("%w: invalid interval format: %s", utils.ErrConfigValidation, s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("%w: invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", utils.ErrConfigValidation, s)
}
