package discount

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Loader supplies catalog data to the engine. Implementations live outside
// this package; the engine only ever reads from the catalog.
type Loader interface {
	// ListActivePromotions returns the promotions currently published for a
	// restaurant, automatic and code-gated alike.
	ListActivePromotions(ctx context.Context, restaurantID uuid.UUID) ([]Promotion, error)
	// FindCouponsByCode looks a code up in the storefront-wide coupon catalog.
	FindCouponsByCode(ctx context.Context, code string) ([]Coupon, error)
	// FindPromotionsByCode looks a code up among a restaurant's promotions.
	FindPromotionsByCode(ctx context.Context, restaurantID uuid.UUID, code string) ([]Promotion, error)
}

// ErrCatalogUnavailable wraps catalog fetch failures. The ledger is never
// mutated on this path; the user may simply resubmit.
var ErrCatalogUnavailable = errors.New("failed to validate code")

// Resolver matches user-entered codes against the catalog. Coupon codes are
// checked first, then the restaurant's promotion codes; the first hit wins.
type Resolver struct {
	Loader Loader
}

// Resolve returns the rule for a normalized code. ErrCodeNotFound is
// returned for misses, ErrCatalogUnavailable for fetch failures.
func (r Resolver) Resolve(ctx context.Context, restaurantID uuid.UUID, code string) (Rule, error) {
	if r.Loader == nil {
		return Rule{}, errors.New("resolver not configured")
	}
	if code == "" {
		return Rule{}, ErrCodeNotFound
	}
	coupons, err := r.Loader.FindCouponsByCode(ctx, code)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	for _, c := range coupons {
		if NormalizeCode(c.Code) == code {
			return CouponRule(c), nil
		}
	}
	promos, err := r.Loader.FindPromotionsByCode(ctx, restaurantID, code)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	for _, p := range promos {
		if p.Automatic() || !p.Active {
			continue
		}
		if NormalizeCode(*p.Code) == code {
			return PromotionRule(p), nil
		}
	}
	return Rule{}, ErrCodeNotFound
}
