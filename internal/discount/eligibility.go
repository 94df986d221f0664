package discount

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInactive is returned when the discount has been disabled in the catalog.
	ErrInactive = errors.New("discount not active")
	// ErrWrongRestaurant is returned when the discount is scoped to another restaurant.
	ErrWrongRestaurant = errors.New("discount not valid for this restaurant")
	// ErrNotYetValid is returned before the validity window opens.
	ErrNotYetValid = errors.New("discount not yet valid")
	// ErrExpired is returned after the validity window has closed.
	ErrExpired = errors.New("discount expired")
	// ErrUsageLimitReached indicates the discount has exhausted its usage quota.
	ErrUsageLimitReached = errors.New("discount usage limit reached")
	// ErrBelowMinimum indicates the subtotal does not meet the minimum order.
	ErrBelowMinimum = errors.New("minimum order not met")
	// ErrCodeNotFound is returned when a manual code matches nothing in the catalog.
	ErrCodeNotFound = errors.New("code not found")
	// ErrAlreadyApplied is returned when the matched discount is already on the ledger.
	ErrAlreadyApplied = errors.New("discount already applied")
)

// Reason is the machine-readable eligibility failure code surfaced to clients.
type Reason string

const (
	ReasonInactive          Reason = "INACTIVE"
	ReasonWrongRestaurant   Reason = "WRONG_RESTAURANT"
	ReasonExpired           Reason = "EXPIRED"
	ReasonNotYetValid       Reason = "NOT_YET_VALID"
	ReasonUsageLimitReached Reason = "USAGE_LIMIT_REACHED"
	ReasonBelowMinimum      Reason = "BELOW_MINIMUM"
	ReasonCodeNotFound      Reason = "CODE_NOT_FOUND"
	ReasonAlreadyApplied    Reason = "ALREADY_APPLIED"
)

// ReasonFor maps an eligibility error to its reason code. It reports false
// for errors outside the eligibility taxonomy (e.g. catalog fetch failures).
func ReasonFor(err error) (Reason, bool) {
	switch {
	case errors.Is(err, ErrInactive):
		return ReasonInactive, true
	case errors.Is(err, ErrWrongRestaurant):
		return ReasonWrongRestaurant, true
	case errors.Is(err, ErrExpired):
		return ReasonExpired, true
	case errors.Is(err, ErrNotYetValid):
		return ReasonNotYetValid, true
	case errors.Is(err, ErrUsageLimitReached):
		return ReasonUsageLimitReached, true
	case errors.Is(err, ErrBelowMinimum):
		return ReasonBelowMinimum, true
	case errors.Is(err, ErrCodeNotFound):
		return ReasonCodeNotFound, true
	case errors.Is(err, ErrAlreadyApplied):
		return ReasonAlreadyApplied, true
	}
	return "", false
}

// Eligible checks the rule against the session context. Checks run in a
// fixed order and the first failure is authoritative. The same check runs at
// application time and on every subsequent recompute.
func (r Rule) Eligible(now time.Time, restaurantID uuid.UUID, subtotal Money) error {
	if !r.Active {
		return ErrInactive
	}
	if r.RestaurantID != nil && *r.RestaurantID != restaurantID {
		return ErrWrongRestaurant
	}
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return ErrNotYetValid
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return ErrExpired
	}
	if r.UsageLimit != nil && *r.UsageLimit >= 0 && r.UsageCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	if r.MinimumOrder != nil && subtotal < *r.MinimumOrder {
		return ErrBelowMinimum
	}
	return nil
}
