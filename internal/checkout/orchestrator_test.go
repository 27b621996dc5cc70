package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casadeele/storefront/internal/cart"
	"github.com/casadeele/storefront/internal/coupons"
	pkgerrors "github.com/casadeele/storefront/pkg/errors"
)

type fakeOrders struct {
	mu         sync.Mutex
	created    []int64
	createErr  error
	verdict    VerifyResult
	verifyErr  error
	verifyReqs []VerifyRequest
}

func (f *fakeOrders) CreateOrder(_ context.Context, amount int64, currency string) (GatewayOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return GatewayOrder{}, f.createErr
	}
	f.created = append(f.created, amount)
	id := "o" + string(rune('0'+len(f.created)))
	return GatewayOrder{ID: id, KeyID: "rzp_test_key"}, nil
}

func (f *fakeOrders) VerifyPayment(_ context.Context, req VerifyRequest) (VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyReqs = append(f.verifyReqs, req)
	return f.verdict, f.verifyErr
}

type fakeCoupons struct {
	coupon coupons.Coupon
	err    error
	calls  int
}

func (f *fakeCoupons) Validate(_ context.Context, code string, _ decimal.Decimal) (coupons.Coupon, error) {
	f.calls++
	if f.err != nil {
		return coupons.Coupon{}, f.err
	}
	c := f.coupon
	c.Code = code
	return c, nil
}

// eventWidget answers Open with a single pre-scripted event.
type eventWidget struct {
	event   *PaymentEvent
	openErr error
	opened  []WidgetConfig
}

func (w *eventWidget) Open(_ context.Context, cfg WidgetConfig) (<-chan PaymentEvent, error) {
	if w.openErr != nil {
		return nil, w.openErr
	}
	w.opened = append(w.opened, cfg)
	ch := make(chan PaymentEvent, 1)
	if w.event != nil {
		ch <- *w.event
	}
	return ch, nil
}

type providerCart struct {
	p *cart.Provider
}

func (c providerCart) Snapshot(context.Context) (cart.Snapshot, error) { return c.p.Snapshot(), nil }
func (c providerCart) Clear(ctx context.Context) error                 { c.p.ClearCart(ctx); return nil }

func cartWithTotal500(t *testing.T) providerCart {
	t.Helper()
	ctx := context.Background()
	p := cart.NewProvider(ctx, "sess", cart.NewMemorySlots("", 0).Slot("sess"), cart.ProviderOptions{})
	p.AddToCart(ctx, cart.CatalogItem{ID: "c1", Price: cart.AmountFromString("200")}, cart.Variant{Level: "A1"}, 2)
	p.AddToCart(ctx, cart.CatalogItem{ID: "c2", Price: cart.AmountFromString("150"), DiscountPrice: cart.AmountFromString("100")}, cart.Variant{}, 1)
	require.True(t, p.TotalPrice().Equal(decimal.NewFromInt(500)))
	return providerCart{p: p}
}

func validBilling() BillingDetails {
	return BillingDetails{
		Name:       "Ana Ruiz",
		Email:      "ana@example.com",
		Phone:      "+91 98765-43210",
		Address:    "12 MG Road",
		City:       "Pune",
		State:      "MH",
		PostalCode: "411001",
		Country:    "India",
	}
}

func newTestOrchestrator(t *testing.T, orders OrderAPI, c coupons.Service) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(orders, c, Options{
		Currency:         "INR",
		MerchantName:     "CasaDeEle",
		Description:      "Course Purchase",
		ThemeColor:       "#F37254",
		ConfirmationPath: "/order-confirmation",
		PaymentWindow:    time.Minute,
	}, nil, nil)
	require.NoError(t, err)
	return o
}

func success(orderID string) *PaymentEvent {
	return &PaymentEvent{Kind: EventSuccess, OrderID: orderID, PaymentID: "pay_1", Signature: "sig"}
}

func TestCheckoutHappyPath(t *testing.T) {
	orders := &fakeOrders{verdict: VerifyResult{Success: true, OrderID: "ORD-42"}}
	o := newTestOrchestrator(t, orders, &fakeCoupons{})
	c := cartWithTotal500(t)
	widget := &eventWidget{event: success("o1")}
	a := newAttempt("a1", "sess", time.Now())

	res := o.Run(context.Background(), a, Input{Cart: c, Billing: validBilling(), Widget: widget})

	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, "ORD-42", res.OrderID)
	assert.Equal(t, "/order-confirmation?orderId=ORD-42", res.Redirect)
	assert.Equal(t, []int64{50000}, orders.created)
	assert.Empty(t, c.p.Lines(), "cart must be cleared after success")
	assert.Equal(t, []State{StateIdle, StateValidatingBilling, StateCreatingOrder, StateAwaitingPayment, StateVerifyingPayment, StateSucceeded}, a.History())

	require.Len(t, widget.opened, 1)
	cfg := widget.opened[0]
	assert.Equal(t, "rzp_test_key", cfg.Key)
	assert.Equal(t, int64(50000), cfg.Amount)
	assert.Equal(t, "o1", cfg.OrderID)
	assert.Equal(t, "919876543210", cfg.Prefill.Contact)
	assert.Equal(t, "12 MG Road, Pune, MH, 411001, India", cfg.Notes.Address)

	require.Len(t, orders.verifyReqs, 1)
	req := orders.verifyReqs[0]
	assert.Equal(t, "o1", req.OrderID)
	assert.Equal(t, "pay_1", req.PaymentID)
	assert.Equal(t, "sig", req.Signature)
	assert.Len(t, req.CartItems, 2)
	assert.Equal(t, "500", req.TotalAmount.String())

	select {
	case <-a.Done():
	default:
		t.Fatal("attempt should be done")
	}
}

func TestCheckoutFailedVerificationPreservesCart(t *testing.T) {
	orders := &fakeOrders{verdict: VerifyResult{Success: false, Message: "bad signature"}}
	o := newTestOrchestrator(t, orders, &fakeCoupons{})
	c := cartWithTotal500(t)

	res := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: c, Billing: validBilling(), Widget: &eventWidget{event: success("o1")}})

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, msgVerifyFailed, res.Message)
	assert.Len(t, c.p.Lines(), 2)
	assert.Equal(t, 3, c.p.TotalItems())
}

func TestCheckoutVerificationNetworkErrorPreservesCart(t *testing.T) {
	orders := &fakeOrders{verifyErr: pkgerrors.New(pkgerrors.CodeDependency, "backend request failed")}
	o := newTestOrchestrator(t, orders, &fakeCoupons{})
	c := cartWithTotal500(t)

	res := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: c, Billing: validBilling(), Widget: &eventWidget{event: success("o1")}})

	assert.Equal(t, StateFailed, res.State)
	assert.Len(t, c.p.Lines(), 2)
}

func TestCheckoutDismissIsSilent(t *testing.T) {
	orders := &fakeOrders{}
	o := newTestOrchestrator(t, orders, &fakeCoupons{})
	c := cartWithTotal500(t)
	a := newAttempt("a1", "sess", time.Now())

	res := o.Run(context.Background(), a, Input{Cart: c, Billing: validBilling(), Widget: &eventWidget{event: &PaymentEvent{Kind: EventDismissed}}})

	assert.Equal(t, StateIdle, res.State)
	assert.Equal(t, StateCancelled, res.Outcome)
	assert.Empty(t, res.Message)
	assert.Empty(t, res.FieldErrors)
	assert.Len(t, c.p.Lines(), 2)
	assert.Empty(t, orders.verifyReqs)
	assert.Equal(t, []State{StateIdle, StateValidatingBilling, StateCreatingOrder, StateAwaitingPayment, StateCancelled, StateIdle}, a.History())
}

func TestCheckoutInvalidBillingStaysLocal(t *testing.T) {
	orders := &fakeOrders{}
	o := newTestOrchestrator(t, orders, &fakeCoupons{})
	billing := validBilling()
	billing.Email = "not-an-email"
	billing.Phone = "12345"
	billing.City = " "

	res := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: cartWithTotal500(t), Billing: billing, Widget: &eventWidget{}})

	assert.Equal(t, StateIdle, res.State)
	assert.Contains(t, res.FieldErrors, "email")
	assert.Contains(t, res.FieldErrors, "phone")
	assert.Contains(t, res.FieldErrors, "city")
	assert.Empty(t, orders.created, "no network call on validation failure")
}

func TestCheckoutEmptyCart(t *testing.T) {
	orders := &fakeOrders{}
	o := newTestOrchestrator(t, orders, &fakeCoupons{})
	p := cart.NewProvider(context.Background(), "sess", cart.NewMemorySlots("", 0).Slot("sess"), cart.ProviderOptions{})

	res := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: providerCart{p: p}, Billing: validBilling(), Widget: &eventWidget{}})

	assert.Equal(t, StateIdle, res.State)
	assert.Equal(t, msgCartEmpty, res.FieldErrors["cart"])
	assert.Empty(t, orders.created)
}

func TestCheckoutOrderCreationFailure(t *testing.T) {
	orders := &fakeOrders{createErr: pkgerrors.New(pkgerrors.CodeDependency, "backend unavailable")}
	o := newTestOrchestrator(t, orders, &fakeCoupons{})
	c := cartWithTotal500(t)
	widget := &eventWidget{}

	res := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: c, Billing: validBilling(), Widget: widget})

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, msgOrderFailed, res.Message)
	assert.Empty(t, widget.opened)
	assert.Len(t, c.p.Lines(), 2)
}

func TestCheckoutScriptLoadFailure(t *testing.T) {
	o := newTestOrchestrator(t, &fakeOrders{}, &fakeCoupons{})
	c := cartWithTotal500(t)

	res := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: c, Billing: validBilling(), Widget: &eventWidget{openErr: errors.New("script error")}})
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, msgScriptLoad, res.Message)

	res = o.Run(context.Background(), newAttempt("a2", "sess", time.Now()), Input{Cart: c, Billing: validBilling(), Widget: &eventWidget{event: &PaymentEvent{Kind: EventScriptLoad}}})
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, msgScriptLoad, res.Message)
	assert.Len(t, c.p.Lines(), 2)
}

func TestCheckoutGatewayPaymentFailed(t *testing.T) {
	o := newTestOrchestrator(t, &fakeOrders{}, &fakeCoupons{})
	c := cartWithTotal500(t)

	res := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: c, Billing: validBilling(), Widget: &eventWidget{event: &PaymentEvent{Kind: EventFailed, Reason: "Card declined"}}})

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, "Card declined", res.Message)
	assert.Len(t, c.p.Lines(), 2)
}

func TestCheckoutPaymentWindowExpires(t *testing.T) {
	o := newTestOrchestrator(t, &fakeOrders{}, &fakeCoupons{})
	o.opts.PaymentWindow = 20 * time.Millisecond

	res := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: cartWithTotal500(t), Billing: validBilling(), Widget: &eventWidget{}})

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, msgWindowExpired, res.Message)
}

func TestCheckoutRetryCreatesFreshOrder(t *testing.T) {
	orders := &fakeOrders{verdict: VerifyResult{Success: false}}
	o := newTestOrchestrator(t, orders, &fakeCoupons{})
	c := cartWithTotal500(t)

	first := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: c, Billing: validBilling(), Widget: &eventWidget{event: success("o1")}})
	require.Equal(t, StateFailed, first.State)

	orders.verdict = VerifyResult{Success: true, OrderID: "ORD-2"}
	widget := &eventWidget{event: success("o2")}
	second := o.Run(context.Background(), newAttempt("a2", "sess", time.Now()), Input{Cart: c, Billing: validBilling(), Widget: widget})

	assert.Equal(t, StateSucceeded, second.State)
	assert.Len(t, orders.created, 2, "retry must create a new order")
	assert.Equal(t, "o2", widget.opened[0].OrderID)
	assert.Equal(t, "o2", orders.verifyReqs[1].OrderID)
}

func TestCheckoutRejectsMismatchedWidgetOrder(t *testing.T) {
	orders := &fakeOrders{verdict: VerifyResult{Success: true}}
	o := newTestOrchestrator(t, orders, &fakeCoupons{})
	c := cartWithTotal500(t)

	res := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: c, Billing: validBilling(), Widget: &eventWidget{event: success("stale")}})

	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, orders.verifyReqs)
	assert.Len(t, c.p.Lines(), 2)
}

func TestCheckoutRevalidatesCoupon(t *testing.T) {
	orders := &fakeOrders{verdict: VerifyResult{Success: true, OrderID: "ORD-9"}}
	cp := &fakeCoupons{coupon: coupons.Coupon{DiscountType: coupons.DiscountFlat, DiscountAmount: decimal.NewFromInt(50)}}
	o := newTestOrchestrator(t, orders, cp)

	res := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: cartWithTotal500(t), Billing: validBilling(), CouponCode: "HOLA50", Widget: &eventWidget{event: success("o1")}})

	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, 1, cp.calls)
	assert.Equal(t, []int64{45000}, orders.created)
	assert.Equal(t, "450", orders.verifyReqs[0].TotalAmount.String())
}

func TestCheckoutRejectedCouponFailsAttempt(t *testing.T) {
	orders := &fakeOrders{}
	cp := &fakeCoupons{err: pkgerrors.New(pkgerrors.CodeValidation, "Coupon expired")}
	o := newTestOrchestrator(t, orders, cp)

	res := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: cartWithTotal500(t), Billing: validBilling(), CouponCode: "OLD", Widget: &eventWidget{}})

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, "Coupon expired", res.Message)
	assert.Empty(t, orders.created)
}

func TestCheckoutFullyDiscountedOrderFails(t *testing.T) {
	orders := &fakeOrders{}
	cp := &fakeCoupons{coupon: coupons.Coupon{DiscountAmount: decimal.NewFromInt(900)}}
	o := newTestOrchestrator(t, orders, cp)

	res := o.Run(context.Background(), newAttempt("a1", "sess", time.Now()), Input{Cart: cartWithTotal500(t), Billing: validBilling(), CouponCode: "ALL", Widget: &eventWidget{}})

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, msgZeroAmount, res.Message)
	assert.Empty(t, orders.created)
}
