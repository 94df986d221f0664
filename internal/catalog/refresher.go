package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/piragazh/feasto/internal/lock"
)

// PromotedLister extends Reader with the worker-facing query that drives the
// pre-warm loop.
type PromotedLister interface {
	Reader
	ListPromotedRestaurants(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// Refresher keeps the promotion cache warm so sessions rarely hit Postgres on
// the hot path. Exactly one worker replica refreshes at a time, guarded by a
// Redis lock.
type Refresher struct {
	Store    PromotedLister
	Cache    *Cache
	Locker   lock.Locker
	Interval time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
}

const refreshLockKey = "catalog:refresh:lock"

// Run blocks until ctx is cancelled, refreshing the cache on every tick.
func (r Refresher) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r Refresher) refresh(ctx context.Context) {
	err := r.Locker.WithLock(ctx, refreshLockKey, 2*r.tickInterval(), func(ctx context.Context) error {
		return r.warm(ctx)
	})
	if err != nil && ctx.Err() == nil {
		r.Logger.Error().Err(err).Msg("catalog refresh failed")
	}
}

func (r Refresher) tickInterval() time.Duration {
	if r.Interval > 0 {
		return r.Interval
	}
	return time.Minute
}

func (r Refresher) warm(ctx context.Context) error {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	ids, err := r.Store.ListPromotedRestaurants(ctx, now)
	if err != nil {
		return err
	}
	var warmed int
	for _, id := range ids {
		promos, err := r.Store.ListActivePromotions(ctx, id)
		if err != nil {
			r.Logger.Warn().Err(err).Str("restaurant_id", id.String()).Msg("catalog warm skipped")
			continue
		}
		if err := r.Cache.SetJSON(ctx, r.Cache.PromotionsKey(id), promos); err != nil {
			r.Logger.Warn().Err(err).Str("restaurant_id", id.String()).Msg("catalog warm write")
			continue
		}
		warmed++
	}
	r.Logger.Info().Int("restaurants", len(ids)).Int("warmed", warmed).Msg("catalog cache refreshed")
	return nil
}
