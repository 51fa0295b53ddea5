package utils

import (
	"context"
	"time"
)

// SleepFunc pauses for d or until ctx is done, returning ctx.Err() in the latter case.
// Components take one so tests can record delays instead of waiting them out.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the SleepFunc that actually waits
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
