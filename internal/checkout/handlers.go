package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/piragazh/feasto/internal/common"
	"github.com/piragazh/feasto/internal/discount"
	"github.com/piragazh/feasto/internal/obs"
)

// Handler exposes the checkout discount endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type openSessionRequest struct {
	RestaurantID string `json:"restaurantId" validate:"required,uuid4"`
	Subtotal     int64  `json:"subtotal" validate:"gte=0"`
}

type subtotalRequest struct {
	Subtotal int64 `json:"subtotal" validate:"gte=0"`
}

type applyCodeRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type sessionResponse struct {
	SessionID     string             `json:"sessionId"`
	RestaurantID  string             `json:"restaurantId"`
	Subtotal      int64              `json:"subtotal"`
	Discounts     []discount.Applied `json:"discounts"`
	TotalDiscount int64              `json:"totalDiscount"`
}

// Open handles POST /api/v1/checkout/sessions.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request payload", validationDetails(err))
		return
	}
	restaurantID, err := uuid.Parse(req.RestaurantID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid restaurant id", nil)
		return
	}
	sess, err := h.Svc.Open(r.Context(), restaurantID, req.Subtotal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	body, err := h.snapshot(r, sess)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": body})
}

// Discounts handles GET /api/v1/checkout/sessions/{sessionID}/discounts.
func (h *Handler) Discounts(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	body, err := h.snapshot(r, sess)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": body})
}

// SetSubtotal handles PUT /api/v1/checkout/sessions/{sessionID}/subtotal.
// Every change triggers a full recompute and auto-apply scan.
func (h *Handler) SetSubtotal(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req subtotalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request payload", validationDetails(err))
		return
	}
	if err := sess.SetSubtotal(r.Context(), req.Subtotal); err != nil {
		h.writeError(w, err)
		return
	}
	body, err := h.snapshot(r, sess)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": body})
}

// ApplyCode handles POST /api/v1/checkout/sessions/{sessionID}/apply-code.
// Eligibility failures come back with a machine-readable reason; transient
// catalog failures surface as 503 so the client can retry.
func (h *Handler) ApplyCode(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req applyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request payload", validationDetails(err))
		return
	}
	result, err := sess.ApplyCode(r.Context(), req.Code)
	if err != nil {
		obs.ObserveCodeApply("unavailable")
		h.writeError(w, err)
		return
	}
	if !result.Success {
		obs.ObserveCodeApply(string(result.ErrorReason))
		common.JSONError(w, reasonStatus(result.ErrorReason), string(result.ErrorReason), reasonMessage(result.ErrorReason), nil)
		return
	}
	obs.ObserveCodeApply("success")
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// RemoveDiscount handles DELETE /api/v1/checkout/sessions/{sessionID}/discounts/{kind}/{sourceID}.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	kind, ok := discount.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid discount kind", nil)
		return
	}
	sourceID, err := uuid.Parse(chi.URLParam(r, "sourceID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid source id", nil)
		return
	}
	if err := sess.RemoveDiscount(r.Context(), sourceID, kind); err != nil {
		h.writeError(w, err)
		return
	}
	body, err := h.snapshot(r, sess)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": body})
}

// Close handles DELETE /api/v1/checkout/sessions/{sessionID}.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id", nil)
		return
	}
	if !h.Svc.CloseSession(id) {
		h.writeError(w, ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*discount.Session, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id", nil)
		return nil, false
	}
	sess, ok := h.Svc.Get(id)
	if !ok {
		h.writeError(w, ErrSessionNotFound)
		return nil, false
	}
	return sess, true
}

func (h *Handler) snapshot(r *http.Request, sess *discount.Session) (sessionResponse, error) {
	applied, total, err := sess.Discounts(r.Context())
	if err != nil {
		return sessionResponse{}, err
	}
	subtotal, err := sess.Subtotal(r.Context())
	if err != nil {
		return sessionResponse{}, err
	}
	if applied == nil {
		applied = []discount.Applied{}
	}
	return sessionResponse{
		SessionID:     sess.ID.String(),
		RestaurantID:  sess.RestaurantID().String(),
		Subtotal:      subtotal,
		Discounts:     applied,
		TotalDiscount: total,
	}, nil
}

func (h *Handler) validate(v any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(v)
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
	case errors.Is(err, discount.ErrSessionClosed):
		common.JSONError(w, http.StatusGone, "SESSION_CLOSED", "checkout session closed", nil)
	case errors.Is(err, discount.ErrCatalogUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "DISCOUNT_VALIDATION_UNAVAILABLE", "failed to validate code", nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			status := appErr.HTTPStatus
			if status == 0 {
				status = http.StatusBadRequest
			}
			code := appErr.Code
			if code == "" {
				code = "BAD_REQUEST"
			}
			common.JSONError(w, status, code, appErr.Message, appErr.Details)
			return
		}
		common.JSONError(w, http.StatusServiceUnavailable, "DISCOUNT_VALIDATION_UNAVAILABLE", "failed to validate code", nil)
	}
}

func reasonStatus(reason discount.Reason) int {
	switch reason {
	case discount.ReasonCodeNotFound:
		return http.StatusNotFound
	case discount.ReasonAlreadyApplied:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func reasonMessage(reason discount.Reason) string {
	switch reason {
	case discount.ReasonCodeNotFound:
		return "discount code not found"
	case discount.ReasonAlreadyApplied:
		return "discount already applied"
	case discount.ReasonBelowMinimum:
		return "order subtotal below the discount minimum"
	case discount.ReasonExpired:
		return "discount code expired"
	case discount.ReasonNotYetValid:
		return "discount code not yet valid"
	case discount.ReasonUsageLimitReached:
		return "discount usage limit reached"
	case discount.ReasonWrongRestaurant:
		return "discount does not apply to this restaurant"
	case discount.ReasonInactive:
		return "discount is not active"
	default:
		return "discount not applicable"
	}
}
