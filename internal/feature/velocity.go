package feature

import (
	"context"
	"fmt"
	"time"

	"github.com/securepay-ai/sentinel/internal/domain"
)

// Tracker counts per-account submission velocity in fixed windows, backed by
// cache counters so the hot path never touches the database.
type Tracker struct {
	cache domain.Cache
}

// NewTracker creates a velocity tracker on top of the cache.
func NewTracker(cache domain.Cache) *Tracker {
	return &Tracker{cache: cache}
}

// Observe registers the submission and returns how many prior submissions the
// account made within the last hour and the last 24 hours. The current
// submission is not counted in the returned values.
func (t *Tracker) Observe(ctx context.Context, accountID string) (int64, int64, error) {
	hour, err := t.cache.IncrementCounter(ctx, "velocity:1h:"+accountID, time.Hour)
	if err != nil {
		return 0, 0, fmt.Errorf("velocity counter: %w", err)
	}

	day, err := t.cache.IncrementCounter(ctx, "velocity:24h:"+accountID, 24*time.Hour)
	if err != nil {
		return 0, 0, fmt.Errorf("velocity counter: %w", err)
	}

	return hour - 1, day - 1, nil
}
