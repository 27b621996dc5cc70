package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	checkoutsvc "github.com/casadeele/storefront/internal/checkout"
	"github.com/casadeele/storefront/internal/coupons"
	pkgerrors "github.com/casadeele/storefront/pkg/errors"
)

type stubCheckout struct {
	view    checkoutsvc.AttemptView
	err     error
	billing checkoutsvc.BillingDetails
	payment checkoutsvc.PaymentSuccess
	attempt string
	kind    checkoutsvc.EventKind
	summary checkoutsvc.Summary
	code    string
}

func (s *stubCheckout) Begin(_ context.Context, _ string, billing checkoutsvc.BillingDetails) (checkoutsvc.AttemptView, error) {
	s.billing = billing
	return s.view, s.err
}

func (s *stubCheckout) Current(context.Context, string) (checkoutsvc.AttemptView, error) {
	return s.view, s.err
}

func (s *stubCheckout) CompletePayment(_ context.Context, _ string, attemptID string, p checkoutsvc.PaymentSuccess) (checkoutsvc.AttemptView, error) {
	s.attempt, s.payment = attemptID, p
	return s.view, s.err
}

func (s *stubCheckout) Dismiss(_ context.Context, _ string, attemptID string) (checkoutsvc.AttemptView, error) {
	s.attempt = attemptID
	return s.view, s.err
}

func (s *stubCheckout) ReportFailure(_ context.Context, _ string, attemptID string, kind checkoutsvc.EventKind, _ string) (checkoutsvc.AttemptView, error) {
	s.attempt, s.kind = attemptID, kind
	return s.view, s.err
}

func (s *stubCheckout) ApplyCoupon(_ context.Context, _ string, code string) (checkoutsvc.Summary, error) {
	s.code = code
	return s.summary, s.err
}

func (s *stubCheckout) RemoveCoupon(context.Context, string) (checkoutsvc.Summary, error) {
	return s.summary, s.err
}

func (s *stubCheckout) Summary(context.Context, string) (checkoutsvc.Summary, error) {
	return s.summary, s.err
}

const billingBody = `{"name":"Asha Rao","email":"asha@example.com","phone":"9876543210","address":"12 MG Road","city":"Pune","state":"MH","postalCode":"411001"}`

func TestCheckoutBeginOpensWidget(t *testing.T) {
	svc := &stubCheckout{view: checkoutsvc.AttemptView{
		ID:     "att-1",
		State:  checkoutsvc.StateAwaitingPayment,
		Widget: &checkoutsvc.WidgetConfig{OrderID: "order_1", Amount: 99900, Currency: "INR"},
	}}
	resp := httptest.NewRecorder()
	CheckoutBegin(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/checkout", billingBody, "sess-1"))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.billing.City != "Pune" || svc.billing.PostalCode != "411001" {
		t.Fatalf("billing not passed through: %+v", svc.billing)
	}
	var env struct {
		Data checkoutsvc.AttemptView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Widget == nil || env.Data.Widget.OrderID != "order_1" {
		t.Fatalf("expected widget config in response, got %+v", env.Data)
	}
}

func TestCheckoutBeginFieldErrorsAreValidationFailures(t *testing.T) {
	svc := &stubCheckout{view: checkoutsvc.AttemptView{
		ID:          "att-1",
		State:       checkoutsvc.StateIdle,
		FieldErrors: map[string]string{"email": "must be a valid email"},
	}}
	resp := httptest.NewRecorder()
	CheckoutBegin(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/checkout", `{"name":"Asha","email":"nope"}`, "sess-1"))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	var env struct {
		Error struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Details["email"] == "" {
		t.Fatalf("expected field details, got %+v", env.Error)
	}
}

func TestCheckoutBeginInProgressConflict(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already in progress")}
	resp := httptest.NewRecorder()
	CheckoutBegin(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/checkout", billingBody, "sess-1"))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestCheckoutPaymentRelaysCallback(t *testing.T) {
	svc := &stubCheckout{view: checkoutsvc.AttemptView{ID: "att-1", State: checkoutsvc.StateSucceeded, Redirect: "/order-confirmation?orderId=ORD-1"}}
	body := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig"}`
	req := withURLParam(sessionRequest(http.MethodPost, "/api/v1/checkout/att-1/payment", body, "sess-1"), "attemptId", "att-1")

	resp := httptest.NewRecorder()
	CheckoutPayment(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.attempt != "att-1" || svc.payment.PaymentID != "pay_1" || svc.payment.OrderID != "order_1" {
		t.Fatalf("callback not relayed: attempt=%s payment=%+v", svc.attempt, svc.payment)
	}
}

func TestCheckoutPaymentRequiresSignature(t *testing.T) {
	svc := &stubCheckout{}
	body := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1"}`
	req := withURLParam(sessionRequest(http.MethodPost, "/api/v1/checkout/att-1/payment", body, "sess-1"), "attemptId", "att-1")

	resp := httptest.NewRecorder()
	CheckoutPayment(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.attempt != "" {
		t.Fatalf("service should not be called")
	}
}

func TestCheckoutFailureKinds(t *testing.T) {
	svc := &stubCheckout{view: checkoutsvc.AttemptView{ID: "att-1", State: checkoutsvc.StateFailed}}

	req := withURLParam(sessionRequest(http.MethodPost, "/api/v1/checkout/att-1/failure", `{"kind":"script_load_failed"}`, "sess-1"), "attemptId", "att-1")
	resp := httptest.NewRecorder()
	CheckoutFailure(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || svc.kind != checkoutsvc.EventScriptLoad {
		t.Fatalf("unexpected result %d kind=%s", resp.Code, svc.kind)
	}

	req = withURLParam(sessionRequest(http.MethodPost, "/api/v1/checkout/att-1/failure", `{"kind":"success"}`, "sess-1"), "attemptId", "att-1")
	resp = httptest.NewRecorder()
	CheckoutFailure(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported kind, got %d", resp.Code)
	}
}

func TestCheckoutDismissUnknownAttempt(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeNotFound, "checkout attempt not found")}
	req := withURLParam(sessionRequest(http.MethodPost, "/api/v1/checkout/att-x/dismiss", "", "sess-1"), "attemptId", "att-x")
	resp := httptest.NewRecorder()
	CheckoutDismiss(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestCouponApplyTrimsCode(t *testing.T) {
	coupon := coupons.Coupon{Code: "SAVE10", DiscountType: coupons.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), DiscountAmount: decimal.NewFromInt(50)}
	svc := &stubCheckout{summary: checkoutsvc.Summary{
		Subtotal: decimal.NewFromInt(500),
		Discount: decimal.NewFromInt(50),
		Total:    decimal.NewFromInt(450),
		Coupon:   &coupon,
	}}

	resp := httptest.NewRecorder()
	CouponApply(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/coupons", `{"code":"  SAVE10 "}`, "sess-1"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.code != "SAVE10" {
		t.Fatalf("expected trimmed code, got %q", svc.code)
	}
}

func TestCouponApplyBlankCode(t *testing.T) {
	svc := &stubCheckout{}
	resp := httptest.NewRecorder()
	CouponApply(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/coupons", `{"code":"   "}`, "sess-1"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.code != "" {
		t.Fatalf("service should not be called for a blank code")
	}
}

func TestCouponApplyRejectionPassesMessage(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeValidation, "Coupon has expired")}
	resp := httptest.NewRecorder()
	CouponApply(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/coupons", `{"code":"OLD"}`, "sess-1"))

	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != http.StatusBadRequest || env.Error.Message != "Coupon has expired" {
		t.Fatalf("unexpected response %d %q", resp.Code, env.Error.Message)
	}
}
