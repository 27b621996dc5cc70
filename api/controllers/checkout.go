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

type checkoutService interface {
	Begin(ctx context.Context, sessionID string, billing checkoutsvc.BillingDetails) (checkoutsvc.AttemptView, error)
	Current(ctx context.Context, sessionID string) (checkoutsvc.AttemptView, error)
	CompletePayment(ctx context.Context, sessionID, attemptID string, p checkoutsvc.PaymentSuccess) (checkoutsvc.AttemptView, error)
	Dismiss(ctx context.Context, sessionID, attemptID string) (checkoutsvc.AttemptView, error)
	ReportFailure(ctx context.Context, sessionID, attemptID string, kind checkoutsvc.EventKind, reason string) (checkoutsvc.AttemptView, error)
}

// Field names follow the gateway's success callback.
type paymentRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

type failureRequest struct {
	Kind   checkoutsvc.EventKind `json:"kind" validate:"required,oneof=payment_failed script_load_failed"`
	Reason string                `json:"reason" validate:"max=512"`
}

// CheckoutBegin starts a checkout attempt with the submitted billing details.
// The response carries the widget configuration once the gateway order exists.
func CheckoutBegin(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, svc != nil, "checkout service unavailable", logg)
		if !ok {
			return
		}

		var billing checkoutsvc.BillingDetails
		if err := validators.DecodeJSON(r, &billing); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Begin(r.Context(), sessionID, billing)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeAttempt(w, r, logg, view)
	}
}

// CheckoutCurrent returns the session's latest attempt.
func CheckoutCurrent(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, svc != nil, "checkout service unavailable", logg)
		if !ok {
			return
		}
		view, err := svc.Current(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CheckoutPayment relays the widget's success callback and waits for verification.
func CheckoutPayment(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return withAttempt(svc, logg, func(w http.ResponseWriter, r *http.Request, sessionID, attemptID string) {
		var payload paymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.CompletePayment(r.Context(), sessionID, attemptID, checkoutsvc.PaymentSuccess{
			OrderID:   payload.OrderID,
			PaymentID: payload.PaymentID,
			Signature: payload.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	})
}

// CheckoutDismiss relays the shopper closing the widget.
func CheckoutDismiss(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return withAttempt(svc, logg, func(w http.ResponseWriter, r *http.Request, sessionID, attemptID string) {
		view, err := svc.Dismiss(r.Context(), sessionID, attemptID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	})
}

// CheckoutFailure relays a gateway payment failure or a widget script that never loaded.
func CheckoutFailure(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return withAttempt(svc, logg, func(w http.ResponseWriter, r *http.Request, sessionID, attemptID string) {
		var payload failureRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.ReportFailure(r.Context(), sessionID, attemptID, payload.Kind, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	})
}

func withAttempt(svc checkoutService, logg *logger.Logger, next func(http.ResponseWriter, *http.Request, string, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, svc != nil, "checkout service unavailable", logg)
		if !ok {
			return
		}
		attemptID, err := validators.URLParam(r, "attemptId", maxIDLength)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			r = r.WithContext(logg.WithAttemptID(r.Context(), attemptID))
		}
		next(w, r, sessionID, attemptID)
	}
}

// writeAttempt answers field errors as a validation failure and an opened
// widget as 201.
func writeAttempt(w http.ResponseWriter, r *http.Request, logg *logger.Logger, view checkoutsvc.AttemptView) {
	switch {
	case len(view.FieldErrors) > 0:
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(view.FieldErrors))
	case view.State == checkoutsvc.StateAwaitingPayment:
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	default:
		responses.WriteSuccess(w, view)
	}
}
