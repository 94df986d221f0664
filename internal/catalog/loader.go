package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/piragazh/feasto/internal/discount"
)

// Reader captures the store methods the loader depends on.
type Reader interface {
	ListActivePromotions(ctx context.Context, restaurantID uuid.UUID) ([]discount.Promotion, error)
	FindCouponsByCode(ctx context.Context, code string) ([]discount.Coupon, error)
	FindPromotionsByCode(ctx context.Context, restaurantID uuid.UUID, code string) ([]discount.Promotion, error)
}

// Loader is the engine-facing catalog: promotion snapshots are served
// cache-first with a store fallback, code lookups always hit the store. The
// loader never invents data on errors; a fetch failure propagates so the
// engine can fail closed.
type Loader struct {
	Reader Reader
	Cache  *Cache
	Logger zerolog.Logger
}

var _ discount.Loader = Loader{}

// ListActivePromotions returns a restaurant's promotion snapshot, preferring
// the cache warmed by the refresher.
func (l Loader) ListActivePromotions(ctx context.Context, restaurantID uuid.UUID) ([]discount.Promotion, error) {
	if l.Reader == nil {
		return nil, errors.New("catalog: reader not configured")
	}
	key := l.Cache.PromotionsKey(restaurantID)
	var cached []discount.Promotion
	hit, err := l.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		// Cache trouble is not catalog trouble; fall through to the store.
		l.Logger.Warn().Err(err).Str("key", key).Msg("catalog cache read")
	}
	if hit {
		return cached, nil
	}
	promos, err := l.Reader.ListActivePromotions(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if err := l.Cache.SetJSON(ctx, key, promos); err != nil {
		l.Logger.Warn().Err(err).Str("key", key).Msg("catalog cache write")
	}
	return promos, nil
}

// FindCouponsByCode passes through to the store; coupon redemption is rare
// enough that caching would only widen the staleness window.
func (l Loader) FindCouponsByCode(ctx context.Context, code string) ([]discount.Coupon, error) {
	if l.Reader == nil {
		return nil, errors.New("catalog: reader not configured")
	}
	return l.Reader.FindCouponsByCode(ctx, code)
}

// FindPromotionsByCode passes through to the store.
func (l Loader) FindPromotionsByCode(ctx context.Context, restaurantID uuid.UUID, code string) ([]discount.Promotion, error) {
	if l.Reader == nil {
		return nil, errors.New("catalog: reader not configured")
	}
	return l.Reader.FindPromotionsByCode(ctx, restaurantID, code)
}
