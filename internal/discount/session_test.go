package discount

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestSession(t *testing.T, loader *stubLoader, restaurant uuid.UUID, onChange ChangeListener) *Session {
	t.Helper()
	s, err := NewSession(SessionConfig{
		RestaurantID: restaurant,
		Loader:       loader,
		DeliveryFee:  249,
		OnChange:     onChange,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSessionAutoApplyAndEvict(t *testing.T) {
	ctx := context.Background()
	restaurant := uuid.New()
	loader := &stubLoader{promos: []Promotion{autoPromotion(restaurant, PromoPercentageOff, 1000, 2500)}}
	s := newTestSession(t, loader, restaurant, nil)

	if err := s.RefreshCatalog(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := s.SetSubtotal(ctx, 3000); err != nil {
		t.Fatalf("set subtotal: %v", err)
	}
	applied, total, err := s.Discounts(ctx)
	if err != nil {
		t.Fatalf("discounts: %v", err)
	}
	if len(applied) != 1 || total != 300 {
		t.Fatalf("expected auto-applied 300, got %d entries total %d", len(applied), total)
	}

	// Dropping below the minimum evicts on the next recompute.
	if err := s.SetSubtotal(ctx, 2000); err != nil {
		t.Fatalf("set subtotal: %v", err)
	}
	applied, total, _ = s.Discounts(ctx)
	if len(applied) != 0 || total != 0 {
		t.Fatalf("expected eviction below minimum, got %d entries total %d", len(applied), total)
	}
}

func TestSessionApplyCodeBelowMinimum(t *testing.T) {
	ctx := context.Background()
	restaurant := uuid.New()
	loader := &stubLoader{coupons: []Coupon{fixedCoupon("SAVE10", 1000, 2000)}}
	s := newTestSession(t, loader, restaurant, nil)

	if err := s.SetSubtotal(ctx, 1500); err != nil {
		t.Fatalf("set subtotal: %v", err)
	}
	result, err := s.ApplyCode(ctx, "save10")
	if err != nil {
		t.Fatalf("apply code: %v", err)
	}
	if result.Success || result.ErrorReason != ReasonBelowMinimum {
		t.Fatalf("expected BELOW_MINIMUM, got %+v", result)
	}
	applied, _, _ := s.Discounts(ctx)
	if len(applied) != 0 {
		t.Fatalf("failed application must not mutate the ledger")
	}
}

func TestSessionApplyCodeTwice(t *testing.T) {
	ctx := context.Background()
	restaurant := uuid.New()
	loader := &stubLoader{coupons: []Coupon{fixedCoupon("SAVE10", 1000, 0)}}
	s := newTestSession(t, loader, restaurant, nil)

	if err := s.SetSubtotal(ctx, 3000); err != nil {
		t.Fatalf("set subtotal: %v", err)
	}
	first, err := s.ApplyCode(ctx, "SAVE10")
	if err != nil || !first.Success || first.AmountSaved != 1000 {
		t.Fatalf("expected successful apply of 1000, got %+v (%v)", first, err)
	}
	second, err := s.ApplyCode(ctx, " save10 ")
	if err != nil {
		t.Fatalf("apply code: %v", err)
	}
	if second.Success || second.ErrorReason != ReasonAlreadyApplied {
		t.Fatalf("expected ALREADY_APPLIED, got %+v", second)
	}
	applied, _, _ := s.Discounts(ctx)
	if len(applied) != 1 {
		t.Fatalf("duplicate apply must keep ledger size at 1, got %d", len(applied))
	}
}

func TestSessionApplyCodeUnknown(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, &stubLoader{}, uuid.New(), nil)
	result, err := s.ApplyCode(ctx, "NOPE")
	if err != nil {
		t.Fatalf("apply code: %v", err)
	}
	if result.Success || result.ErrorReason != ReasonCodeNotFound {
		t.Fatalf("expected CODE_NOT_FOUND, got %+v", result)
	}
}

func TestSessionStaleLookupRevalidated(t *testing.T) {
	ctx := context.Background()
	restaurant := uuid.New()
	loader := &stubLoader{coupons: []Coupon{fixedCoupon("SAVE10", 1000, 2000)}}
	s := newTestSession(t, loader, restaurant, nil)

	if err := s.SetSubtotal(ctx, 3000); err != nil {
		t.Fatalf("set subtotal: %v", err)
	}
	// While the lookup is in flight, the cart shrinks below the minimum.
	loader.onFindCoupons = func() {
		if err := s.SetSubtotal(ctx, 1500); err != nil {
			t.Errorf("set subtotal during lookup: %v", err)
		}
	}
	result, err := s.ApplyCode(ctx, "SAVE10")
	if err != nil {
		t.Fatalf("apply code: %v", err)
	}
	if result.Success || result.ErrorReason != ReasonBelowMinimum {
		t.Fatalf("stale lookup must validate against the current subtotal, got %+v", result)
	}
}

func TestSessionRemovedAutoPromotionReturns(t *testing.T) {
	ctx := context.Background()
	restaurant := uuid.New()
	promo := autoPromotion(restaurant, PromoPercentageOff, 1000, 0)
	loader := &stubLoader{promos: []Promotion{promo}}
	s := newTestSession(t, loader, restaurant, nil)

	_ = s.RefreshCatalog(ctx)
	_ = s.SetSubtotal(ctx, 3000)
	if err := s.RemoveDiscount(ctx, promo.ID, KindPromotion); err != nil {
		t.Fatalf("remove: %v", err)
	}
	applied, _, _ := s.Discounts(ctx)
	if len(applied) != 0 {
		t.Fatalf("expected removal to take effect")
	}

	// The next qualifying tick reattaches it. Known product behaviour.
	_ = s.SetSubtotal(ctx, 3100)
	applied, _, _ = s.Discounts(ctx)
	if len(applied) != 1 {
		t.Fatalf("expected rescan to reapply the promotion")
	}
}

func TestSessionTransientFailureFailsClosed(t *testing.T) {
	ctx := context.Background()
	loader := &stubLoader{couponErr: errors.New("catalog down")}
	s := newTestSession(t, loader, uuid.New(), nil)

	_ = s.SetSubtotal(ctx, 3000)
	if _, err := s.ApplyCode(ctx, "SAVE10"); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
	applied, _, _ := s.Discounts(ctx)
	if len(applied) != 0 {
		t.Fatalf("fetch failure must leave the ledger untouched")
	}
}

func TestSessionCatalogRefreshEvictsUnpublished(t *testing.T) {
	ctx := context.Background()
	restaurant := uuid.New()
	promo := autoPromotion(restaurant, PromoPercentageOff, 1000, 0)
	loader := &stubLoader{promos: []Promotion{promo}}
	s := newTestSession(t, loader, restaurant, nil)

	_ = s.RefreshCatalog(ctx)
	_ = s.SetSubtotal(ctx, 3000)
	applied, _, _ := s.Discounts(ctx)
	if len(applied) != 1 {
		t.Fatalf("expected promotion applied, got %d", len(applied))
	}

	loader.promos = nil
	if err := s.RefreshCatalog(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	applied, _, _ = s.Discounts(ctx)
	if len(applied) != 0 {
		t.Fatalf("promotion dropped from the catalog must be evicted")
	}
}

func TestSessionTwoAutoPromotionsRecomputeIndependently(t *testing.T) {
	ctx := context.Background()
	restaurant := uuid.New()
	percent := autoPromotion(restaurant, PromoPercentageOff, 1000, 0)
	fixed := autoPromotion(restaurant, PromoFixedAmountOff, 500, 0)
	loader := &stubLoader{promos: []Promotion{percent, fixed}}
	s := newTestSession(t, loader, restaurant, nil)

	_ = s.RefreshCatalog(ctx)
	_ = s.SetSubtotal(ctx, 3000)
	_, total, _ := s.Discounts(ctx)
	if total != 300+500 {
		t.Fatalf("expected stacked total 800, got %d", total)
	}

	_ = s.SetSubtotal(ctx, 5000)
	_, total, _ = s.Discounts(ctx)
	if total != 500+500 {
		t.Fatalf("expected percent leg to track the subtotal, got %d", total)
	}
}

func TestSessionChangeListener(t *testing.T) {
	ctx := context.Background()
	restaurant := uuid.New()
	loader := &stubLoader{coupons: []Coupon{fixedCoupon("SAVE10", 1000, 0)}}

	var calls int
	var lastTotal Money
	s := newTestSession(t, loader, restaurant, func(_ uuid.UUID, _ []Applied, total Money) {
		calls++
		lastTotal = total
	})

	_ = s.SetSubtotal(ctx, 3000)
	if _, err := s.ApplyCode(ctx, "SAVE10"); err != nil {
		t.Fatalf("apply code: %v", err)
	}
	if calls == 0 || lastTotal != 1000 {
		t.Fatalf("expected change notification with total 1000, got %d calls total %d", calls, lastTotal)
	}
	before := calls
	if err := s.RemoveDiscount(ctx, loader.coupons[0].ID, KindCoupon); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if calls != before+1 {
		t.Fatalf("expected removal to notify")
	}
}

func TestSessionClosed(t *testing.T) {
	s := newTestSession(t, &stubLoader{}, uuid.New(), nil)
	s.Close()
	if err := s.SetSubtotal(context.Background(), 100); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
