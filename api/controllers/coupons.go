package controllers

import (
	"context"
	"net/http"

	"github.com/casadeele/storefront/api/responses"
	"github.com/casadeele/storefront/api/validators"
	checkoutsvc "github.com/casadeele/storefront/internal/checkout"
	pkgerrors "github.com/casadeele/storefront/pkg/errors"
	"github.com/casadeele/storefront/pkg/logger"
)

const maxCouponLength = 64

type couponService interface {
	ApplyCoupon(ctx context.Context, sessionID, code string) (checkoutsvc.Summary, error)
	RemoveCoupon(ctx context.Context, sessionID string) (checkoutsvc.Summary, error)
	Summary(ctx context.Context, sessionID string) (checkoutsvc.Summary, error)
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"required"`
}

// CouponApply validates a coupon against the current cart subtotal and, when
// accepted, remembers it for the session's next checkout.
func CouponApply(svc couponService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, svc != nil, "checkout service unavailable", logg)
		if !ok {
			return
		}

		var payload applyCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code := validators.SanitizeString(payload.Code, maxCouponLength)
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Please enter a coupon code"))
			return
		}

		summary, err := svc.ApplyCoupon(r.Context(), sessionID, code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// CouponRemove drops the applied coupon.
func CouponRemove(svc couponService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, svc != nil, "checkout service unavailable", logg)
		if !ok {
			return
		}
		summary, err := svc.RemoveCoupon(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// CheckoutSummary returns subtotal, discount and total for the current cart.
func CheckoutSummary(svc couponService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, svc != nil, "checkout service unavailable", logg)
		if !ok {
			return
		}
		summary, err := svc.Summary(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func requireSession(w http.ResponseWriter, r *http.Request, available bool, unavailable string, logg *logger.Logger) (string, bool) {
	if !available {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, unavailable))
		return "", false
	}
	sessionID, err := sessionFromRequest(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return "", false
	}
	return sessionID, true
}
