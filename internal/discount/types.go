package discount

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Kind identifies the catalog source of a discount.
type Kind string

const (
	// KindCoupon marks a discount that originated from a coupon code.
	KindCoupon Kind = "coupon"
	// KindPromotion marks a discount that originated from a promotion.
	KindPromotion Kind = "promotion"
)

// ParseKind converts a string into a Kind, reporting whether it is valid.
func ParseKind(value string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindCoupon:
		return KindCoupon, true
	case KindPromotion:
		return KindPromotion, true
	}
	return "", false
}

// CouponType enumerates supported coupon discount shapes.
type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

// PromotionType enumerates supported promotion discount shapes.
type PromotionType string

const (
	PromoPercentageOff  PromotionType = "percentage_off"
	PromoFixedAmountOff PromotionType = "fixed_amount_off"
	PromoFreeDelivery   PromotionType = "free_delivery"
	PromoBuyOneGetOne   PromotionType = "buy_one_get_one"
)

// Coupon is a manually entered discount code. Coupons without a restaurant
// scope are redeemable storefront-wide.
type Coupon struct {
	ID           uuid.UUID
	Code         string
	Type         CouponType
	Value        int64 // minor units for fixed, basis points for percentage
	MaxDiscount  *Money
	MinimumOrder *Money
	RestaurantID *uuid.UUID
	UsageLimit   *int32
	UsageCount   int32
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	Active       bool
}

// Promotion is a restaurant-scoped offer. A promotion with no code is
// automatic and applied by the scanner; one with a code is entered manually.
type Promotion struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Name         string
	Type         PromotionType
	Value        int64 // minor units for fixed credits, basis points for percentage_off
	MinimumOrder *Money
	UsageLimit   *int32
	UsageCount   int32
	StartDate    time.Time
	EndDate      time.Time
	Code         *string
	Active       bool
}

// Automatic reports whether the promotion applies without user input.
func (p Promotion) Automatic() bool {
	return p.Code == nil || strings.TrimSpace(*p.Code) == ""
}

// Rule captures the runtime constraints of a discount regardless of its
// catalog source. Both coupons and promotions collapse into a Rule before
// evaluation.
type Rule struct {
	SourceID     uuid.UUID
	Kind         Kind
	Label        string
	Code         string // empty for automatic promotions
	PercentBps   *int32
	Value        Money
	FreeDelivery bool
	MaxDiscount  *Money
	MinimumOrder *Money
	RestaurantID *uuid.UUID // nil means storefront-wide
	UsageLimit   *int32
	UsageCount   int32
	StartsAt     *time.Time
	EndsAt       *time.Time
	Active       bool
	Automatic    bool
}

// CouponRule converts a coupon into its evaluation rule.
func CouponRule(c Coupon) Rule {
	rule := Rule{
		SourceID:     c.ID,
		Kind:         KindCoupon,
		Label:        c.Code,
		Code:         c.Code,
		Value:        c.Value,
		MaxDiscount:  c.MaxDiscount,
		MinimumOrder: c.MinimumOrder,
		RestaurantID: c.RestaurantID,
		UsageLimit:   c.UsageLimit,
		UsageCount:   c.UsageCount,
		StartsAt:     c.ValidFrom,
		EndsAt:       c.ValidUntil,
		Active:       c.Active,
	}
	if c.Type == CouponPercentage {
		bps := int32(c.Value)
		rule.PercentBps = &bps
		rule.Value = 0
	}
	return rule
}

// PromotionRule converts a promotion into its evaluation rule. Promotion
// windows are mandatory, so both bounds are always set.
func PromotionRule(p Promotion) Rule {
	rid := p.RestaurantID
	starts := p.StartDate
	ends := p.EndDate
	rule := Rule{
		SourceID:     p.ID,
		Kind:         KindPromotion,
		Label:        p.Name,
		Value:        p.Value,
		MinimumOrder: p.MinimumOrder,
		RestaurantID: &rid,
		UsageLimit:   p.UsageLimit,
		UsageCount:   p.UsageCount,
		StartsAt:     &starts,
		EndsAt:       &ends,
		Active:       p.Active,
		Automatic:    p.Automatic(),
	}
	if p.Code != nil {
		rule.Code = strings.TrimSpace(*p.Code)
	}
	switch p.Type {
	case PromoPercentageOff:
		bps := int32(p.Value)
		rule.PercentBps = &bps
		rule.Value = 0
	case PromoFreeDelivery:
		rule.FreeDelivery = true
		rule.Value = 0
	}
	return rule
}

// Applied is a discount currently attached to a checkout session. The amount
// is refreshed on every recompute pass.
type Applied struct {
	Rule      Rule      `json:"-"`
	SourceID  uuid.UUID `json:"sourceId"`
	Kind      Kind      `json:"kind"`
	Label     string    `json:"label"`
	Amount    Money     `json:"amount"`
	Auto      bool      `json:"auto"`
	AppliedAt time.Time `json:"appliedAt"`
}

// NormalizeCode canonicalises user-entered discount codes.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
