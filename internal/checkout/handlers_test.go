package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/piragazh/feasto/internal/discount"
)

type stubLoader struct {
	promos  []discount.Promotion
	coupons []discount.Coupon
	fail    bool
}

func (s *stubLoader) ListActivePromotions(_ context.Context, _ uuid.UUID) ([]discount.Promotion, error) {
	if s.fail {
		return nil, errors.New("catalog down")
	}
	return s.promos, nil
}

func (s *stubLoader) FindCouponsByCode(_ context.Context, code string) ([]discount.Coupon, error) {
	if s.fail {
		return nil, errors.New("catalog down")
	}
	var out []discount.Coupon
	for _, c := range s.coupons {
		if discount.NormalizeCode(c.Code) == code {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubLoader) FindPromotionsByCode(_ context.Context, _ uuid.UUID, _ string) ([]discount.Promotion, error) {
	if s.fail {
		return nil, errors.New("catalog down")
	}
	return nil, nil
}

var testRestaurantID = uuid.New()

func minOrder(v int64) *int64 { return &v }

func testPromotion() discount.Promotion {
	now := time.Now()
	return discount.Promotion{
		ID:           uuid.New(),
		RestaurantID: testRestaurantID,
		Name:         "10% off",
		Type:         discount.PromoPercentageOff,
		Value:        1000,
		MinimumOrder: minOrder(2500),
		StartDate:    now.Add(-time.Hour),
		EndDate:      now.Add(time.Hour),
		Active:       true,
	}
}

func testCoupon() discount.Coupon {
	return discount.Coupon{
		ID:           uuid.New(),
		Code:         "SAVE5",
		Type:         discount.CouponFixed,
		Value:        500,
		MinimumOrder: minOrder(2000),
		Active:       true,
	}
}

func newTestRouter(t *testing.T, loader discount.Loader) (chi.Router, *Service) {
	t.Helper()
	svc := &Service{
		Loader:      loader,
		Logger:      zerolog.Nop(),
		DeliveryFee: 249,
		SessionTTL:  time.Minute,
	}
	t.Cleanup(svc.closeAll)
	h := &Handler{Svc: svc, Validate: validator.New()}
	r := chi.NewRouter()
	r.Route("/api/v1/checkout/sessions", func(s chi.Router) {
		s.Post("/", h.Open)
		s.Route("/{sessionID}", func(child chi.Router) {
			child.Get("/discounts", h.Discounts)
			child.Put("/subtotal", h.SetSubtotal)
			child.Post("/apply-code", h.ApplyCode)
			child.Delete("/discounts/{kind}/{sourceID}", h.RemoveDiscount)
			child.Delete("/", h.Close)
		})
	})
	return r, svc
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func openSession(t *testing.T, r chi.Router, subtotal int64) string {
	t.Helper()
	rr := doJSON(t, r, http.MethodPost, "/api/v1/checkout/sessions", map[string]any{
		"restaurantId": testRestaurantID.String(),
		"subtotal":     subtotal,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	id, _ := decodeData(t, rr)["sessionId"].(string)
	if id == "" {
		t.Fatal("missing session id in response")
	}
	return id
}

func TestOpenSessionAutoApplies(t *testing.T) {
	loader := &stubLoader{promos: []discount.Promotion{testPromotion()}}
	r, _ := newTestRouter(t, loader)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/checkout/sessions", map[string]any{
		"restaurantId": testRestaurantID.String(),
		"subtotal":     3000,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	data := decodeData(t, rr)
	discounts, _ := data["discounts"].([]any)
	if len(discounts) != 1 {
		t.Fatalf("expected one auto-applied discount, got %d", len(discounts))
	}
	if total, _ := data["totalDiscount"].(float64); total != 300 {
		t.Fatalf("expected total 300, got %v", total)
	}
}

func TestOpenSessionRejectsBadPayload(t *testing.T) {
	r, _ := newTestRouter(t, &stubLoader{})

	rr := doJSON(t, r, http.MethodPost, "/api/v1/checkout/sessions", map[string]any{
		"restaurantId": "not-a-uuid",
		"subtotal":     100,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = doJSON(t, r, http.MethodPost, "/api/v1/checkout/sessions", map[string]any{
		"restaurantId": testRestaurantID.String(),
		"subtotal":     -5,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative subtotal, got %d", rr.Code)
	}
}

func TestApplyCodeSuccess(t *testing.T) {
	loader := &stubLoader{coupons: []discount.Coupon{testCoupon()}}
	r, _ := newTestRouter(t, loader)
	id := openSession(t, r, 3000)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/checkout/sessions/"+id+"/apply-code", map[string]any{"code": "save5"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	data := decodeData(t, rr)
	if success, _ := data["success"].(bool); !success {
		t.Fatalf("expected success, got %v", data)
	}
	if saved, _ := data["amountSaved"].(float64); saved != 500 {
		t.Fatalf("expected 500 saved, got %v", saved)
	}
}

func TestApplyCodeFailures(t *testing.T) {
	loader := &stubLoader{coupons: []discount.Coupon{testCoupon()}}
	r, _ := newTestRouter(t, loader)
	id := openSession(t, r, 1500)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/checkout/sessions/"+id+"/apply-code", map[string]any{"code": "SAVE5"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for below minimum, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, r, http.MethodPost, "/api/v1/checkout/sessions/"+id+"/apply-code", map[string]any{"code": "NOPE"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d", rr.Code)
	}
}

func TestApplyCodeCatalogUnavailable(t *testing.T) {
	loader := &stubLoader{coupons: []discount.Coupon{testCoupon()}}
	r, _ := newTestRouter(t, loader)
	id := openSession(t, r, 3000)

	loader.fail = true
	rr := doJSON(t, r, http.MethodPost, "/api/v1/checkout/sessions/"+id+"/apply-code", map[string]any{"code": "SAVE5"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSubtotalUpdateEvictsDiscount(t *testing.T) {
	loader := &stubLoader{promos: []discount.Promotion{testPromotion()}}
	r, _ := newTestRouter(t, loader)
	id := openSession(t, r, 3000)

	rr := doJSON(t, r, http.MethodPut, "/api/v1/checkout/sessions/"+id+"/subtotal", map[string]any{"subtotal": 2000})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	data := decodeData(t, rr)
	discounts, _ := data["discounts"].([]any)
	if len(discounts) != 0 {
		t.Fatalf("expected empty ledger below minimum, got %d entries", len(discounts))
	}
}

func TestRemoveDiscountEndpoint(t *testing.T) {
	loader := &stubLoader{coupons: []discount.Coupon{testCoupon()}}
	r, _ := newTestRouter(t, loader)
	id := openSession(t, r, 3000)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/checkout/sessions/"+id+"/apply-code", map[string]any{"code": "SAVE5"})
	if rr.Code != http.StatusOK {
		t.Fatalf("apply failed: %d", rr.Code)
	}

	path := fmt.Sprintf("/api/v1/checkout/sessions/%s/discounts/coupon/%s", id, loader.coupons[0].ID)
	rr = doJSON(t, r, http.MethodDelete, path, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	data := decodeData(t, rr)
	discounts, _ := data["discounts"].([]any)
	if len(discounts) != 0 {
		t.Fatalf("expected removed discount to be gone, got %d entries", len(discounts))
	}
}

func TestCloseSessionEndpoint(t *testing.T) {
	r, svc := newTestRouter(t, &stubLoader{})
	id := openSession(t, r, 1000)

	rr := doJSON(t, r, http.MethodDelete, "/api/v1/checkout/sessions/"+id, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if svc.Len() != 0 {
		t.Fatalf("expected no live sessions, got %d", svc.Len())
	}

	rr = doJSON(t, r, http.MethodGet, "/api/v1/checkout/sessions/"+id+"/discounts", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", rr.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	r, _ := newTestRouter(t, &stubLoader{})

	rr := doJSON(t, r, http.MethodGet, "/api/v1/checkout/sessions/"+uuid.NewString()+"/discounts", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
