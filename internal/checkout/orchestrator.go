package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/casadeele/storefront/internal/cart"
	"github.com/casadeele/storefront/internal/coupons"
	"github.com/casadeele/storefront/pkg/config"
	pkgerrors "github.com/casadeele/storefront/pkg/errors"
	"github.com/casadeele/storefront/pkg/logger"
	"github.com/casadeele/storefront/pkg/metrics"
	"github.com/casadeele/storefront/pkg/money"
)

const (
	msgOrderFailed   = "Unable to start the payment. Please try again."
	msgScriptLoad    = "The payment gateway could not be loaded. Please check your internet connection and try again."
	msgPaymentFailed = "Payment failed. Please try again."
	msgVerifyFailed  = "We could not confirm your payment. If you were charged, please contact support."
	msgWindowExpired = "Payment window expired. Please try again."
	msgZeroAmount    = "Order total must be greater than zero."
	msgCartEmpty     = "is empty"
)

// Cart is the orchestrator's view of the session cart.
type Cart interface {
	Snapshot(ctx context.Context) (cart.Snapshot, error)
	Clear(ctx context.Context) error
}

// Options carries the merchant and flow settings for the payment widget.
type Options struct {
	Currency         string
	MerchantName     string
	Description      string
	Image            string
	ThemeColor       string
	ConfirmationPath string
	PaymentWindow    time.Duration
	OpenWait         time.Duration
}

func OptionsFromConfig(cfg config.CheckoutConfig) Options {
	return Options{
		Currency:         strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		MerchantName:     cfg.MerchantName,
		Description:      cfg.Description,
		Image:            cfg.Image,
		ThemeColor:       cfg.ThemeColor,
		ConfirmationPath: cfg.ConfirmationPath,
		PaymentWindow:    cfg.PaymentWindow,
		OpenWait:         cfg.OpenWait,
	}
}

// Input is everything one attempt consumes.
type Input struct {
	Cart       Cart
	Billing    BillingDetails
	CouponCode string
	Widget     PaymentWidget
}

// Result is where an attempt came to rest. State is Idle, Succeeded or Failed;
// Outcome additionally distinguishes a cancelled widget (State Idle).
type Result struct {
	State          State             `json:"state"`
	Outcome        State             `json:"outcome"`
	Message        string            `json:"message,omitempty"`
	FieldErrors    map[string]string `json:"fieldErrors,omitempty"`
	GatewayOrderID string            `json:"gatewayOrderId,omitempty"`
	OrderID        string            `json:"orderId,omitempty"`
	Redirect       string            `json:"redirect,omitempty"`
}

// Orchestrator drives billing validation, order creation, the payment widget
// and verification. Errors never escape Run; they become a Failed result.
type Orchestrator struct {
	orders  OrderAPI
	coupons coupons.Service
	opts    Options
	logg    *logger.Logger
	metrics *metrics.CheckoutMetrics
	now     func() time.Time
}

func NewOrchestrator(orders OrderAPI, couponSvc coupons.Service, opts Options, logg *logger.Logger, m *metrics.CheckoutMetrics) (*Orchestrator, error) {
	if orders == nil {
		return nil, fmt.Errorf("order api required")
	}
	if couponSvc == nil {
		return nil, fmt.Errorf("coupon service required")
	}
	if opts.Currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Orchestrator{
		orders:  orders,
		coupons: couponSvc,
		opts:    opts,
		logg:    logg,
		metrics: m,
		now:     time.Now,
	}, nil
}

// Run executes a on in and returns where it came to rest.
func (o *Orchestrator) Run(ctx context.Context, a *Attempt, in Input) Result {
	ctx = o.logg.WithAttemptID(o.logg.WithSessionID(ctx, a.SessionID), a.ID)
	res := o.run(ctx, a, in)
	a.finish(res)
	o.metrics.ObserveOutcome(string(res.Outcome), o.now().Sub(a.StartedAt))
	o.logg.Info(o.logg.WithField(ctx, "outcome", string(res.Outcome)), "checkout.attempt.finished")
	return res
}

func (o *Orchestrator) run(ctx context.Context, a *Attempt, in Input) Result {
	if err := o.move(ctx, a, StateValidatingBilling); err != nil {
		return o.fail(ctx, a, msgOrderFailed, err)
	}
	billing := in.Billing.Normalize()
	if fieldErrs := billing.Validate(); len(fieldErrs) > 0 {
		return o.rest(ctx, a, fieldErrs)
	}
	snap, err := in.Cart.Snapshot(ctx)
	if err != nil {
		return o.fail(ctx, a, msgOrderFailed, err)
	}
	if len(snap.Lines) == 0 {
		return o.rest(ctx, a, map[string]string{"cart": msgCartEmpty})
	}

	if err := o.move(ctx, a, StateCreatingOrder); err != nil {
		return o.fail(ctx, a, msgOrderFailed, err)
	}
	var applied *coupons.Coupon
	if code := strings.TrimSpace(in.CouponCode); code != "" {
		c, err := o.coupons.Validate(ctx, code, snap.TotalPrice)
		if err != nil {
			return o.fail(ctx, a, userMessage(err, pkgerrors.CodeValidation), err)
		}
		applied = &c
	}
	amount, err := money.ToMinorUnits(coupons.Apply(snap.TotalPrice, applied), o.opts.Currency)
	if err != nil {
		return o.fail(ctx, a, msgOrderFailed, err)
	}
	if amount <= 0 {
		return o.fail(ctx, a, msgZeroAmount, nil)
	}
	order, err := o.orders.CreateOrder(ctx, amount, o.opts.Currency)
	if err != nil {
		return o.fail(ctx, a, userMessage(err, pkgerrors.CodeUpstream), err)
	}

	cfg := o.widgetConfig(order, amount, billing)
	if err := o.move(ctx, a, StateAwaitingPayment); err != nil {
		return o.failOrder(ctx, a, order.ID, msgOrderFailed, err)
	}
	events, err := in.Widget.Open(ctx, cfg)
	if err != nil {
		return o.failOrder(ctx, a, order.ID, msgScriptLoad, err)
	}
	a.setWidget(cfg)

	ev, err := o.await(ctx, events)
	if err != nil {
		return o.failOrder(ctx, a, order.ID, msgWindowExpired, err)
	}

	switch ev.Kind {
	case EventDismissed:
		if err := o.move(ctx, a, StateCancelled); err != nil {
			return o.failOrder(ctx, a, order.ID, msgPaymentFailed, err)
		}
		if err := o.move(ctx, a, StateIdle); err != nil {
			return o.failOrder(ctx, a, order.ID, msgPaymentFailed, err)
		}
		return Result{State: StateIdle, Outcome: StateCancelled, GatewayOrderID: order.ID}
	case EventFailed:
		msg := strings.TrimSpace(ev.Reason)
		if msg == "" {
			msg = msgPaymentFailed
		}
		return o.failOrder(ctx, a, order.ID, msg, errors.New("payment failed at gateway"))
	case EventScriptLoad:
		return o.failOrder(ctx, a, order.ID, msgScriptLoad, errors.New("payment widget script failed to load"))
	case EventSuccess:
		return o.verify(ctx, a, in, order, applied, billing, ev)
	default:
		return o.failOrder(ctx, a, order.ID, msgPaymentFailed, fmt.Errorf("unknown widget event %q", ev.Kind))
	}
}

func (o *Orchestrator) verify(ctx context.Context, a *Attempt, in Input, order GatewayOrder, applied *coupons.Coupon, billing BillingDetails, ev PaymentEvent) Result {
	if err := o.move(ctx, a, StateVerifyingPayment); err != nil {
		return o.failOrder(ctx, a, order.ID, msgVerifyFailed, err)
	}
	if ev.OrderID != "" && ev.OrderID != order.ID {
		return o.failOrder(ctx, a, order.ID, msgVerifyFailed, fmt.Errorf("widget reported order %q", ev.OrderID))
	}
	current, err := in.Cart.Snapshot(ctx)
	if err != nil {
		return o.failOrder(ctx, a, order.ID, msgVerifyFailed, err)
	}
	total := coupons.Apply(current.TotalPrice, applied)
	verdict, err := o.orders.VerifyPayment(ctx, VerifyRequest{
		OrderID:     order.ID,
		PaymentID:   ev.PaymentID,
		Signature:   ev.Signature,
		Billing:     billing,
		CartItems:   current.Lines,
		TotalAmount: json.Number(total.String()),
	})
	if err != nil {
		return o.failOrder(ctx, a, order.ID, msgVerifyFailed, err)
	}
	if !verdict.Success {
		return o.failOrder(ctx, a, order.ID, msgVerifyFailed, fmt.Errorf("verification rejected: %s", verdict.Message))
	}

	if err := in.Cart.Clear(ctx); err != nil {
		// the payment is confirmed; a stale cart must not turn it into a failure
		o.logg.Error(ctx, "checkout.cart_clear.failed", err)
	}
	if err := o.move(ctx, a, StateSucceeded); err != nil {
		return o.failOrder(ctx, a, order.ID, msgVerifyFailed, err)
	}
	orderID := verdict.OrderID
	if orderID == "" {
		orderID = order.ID
	}
	return Result{
		State:          StateSucceeded,
		Outcome:        StateSucceeded,
		GatewayOrderID: order.ID,
		OrderID:        orderID,
		Redirect:       o.confirmationURL(orderID),
	}
}

// await parks in AwaitingPayment until the widget reports or the payment window closes.
func (o *Orchestrator) await(ctx context.Context, events <-chan PaymentEvent) (PaymentEvent, error) {
	if o.opts.PaymentWindow > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.PaymentWindow)
		defer cancel()
	}
	select {
	case ev, ok := <-events:
		if !ok {
			return PaymentEvent{}, errors.New("payment widget closed without an outcome")
		}
		return ev, nil
	case <-ctx.Done():
		return PaymentEvent{}, ctx.Err()
	}
}

func (o *Orchestrator) widgetConfig(order GatewayOrder, amount int64, billing BillingDetails) WidgetConfig {
	return WidgetConfig{
		Key:         order.KeyID,
		Amount:      amount,
		Currency:    o.opts.Currency,
		OrderID:     order.ID,
		Name:        o.opts.MerchantName,
		Description: o.opts.Description,
		Image:       o.opts.Image,
		Prefill: Prefill{
			Name:    billing.Name,
			Email:   billing.Email,
			Contact: billing.Contact(),
		},
		Notes: Notes{Address: billing.FullAddress()},
		Theme: Theme{Color: o.opts.ThemeColor},
	}
}

func (o *Orchestrator) confirmationURL(orderID string) string {
	path := o.opts.ConfirmationPath
	if path == "" {
		path = "/order-confirmation"
	}
	return path + "?orderId=" + url.QueryEscape(orderID)
}

func (o *Orchestrator) move(ctx context.Context, a *Attempt, to State) error {
	from, err := a.move(to)
	if err != nil {
		o.logg.Error(ctx, "checkout.transition.rejected", err)
		return err
	}
	o.metrics.IncTransition(string(from), string(to))
	o.logg.Debug(o.logg.WithFields(ctx, map[string]any{"from": string(from), "to": string(to)}), "checkout.transition")
	return nil
}

// rest sends a validating attempt back to Idle with field errors.
func (o *Orchestrator) rest(ctx context.Context, a *Attempt, fieldErrs map[string]string) Result {
	if err := o.move(ctx, a, StateIdle); err != nil {
		return o.fail(ctx, a, msgOrderFailed, err)
	}
	return Result{State: StateIdle, Outcome: StateIdle, FieldErrors: fieldErrs}
}

func (o *Orchestrator) fail(ctx context.Context, a *Attempt, msg string, cause error) Result {
	return o.failOrder(ctx, a, "", msg, cause)
}

func (o *Orchestrator) failOrder(ctx context.Context, a *Attempt, gatewayOrderID, msg string, cause error) Result {
	if cause != nil {
		o.logg.Error(o.logg.WithField(ctx, "from", string(a.State())), "checkout.attempt.failed", cause)
	}
	if a.State() != StateFailed {
		if from, err := a.move(StateFailed); err == nil {
			o.metrics.IncTransition(string(from), string(StateFailed))
		}
	}
	return Result{State: StateFailed, Outcome: StateFailed, Message: msg, GatewayOrderID: gatewayOrderID}
}

// userMessage surfaces the backend's own wording for codes that carry one,
// and a generic retry message for everything else.
func userMessage(err error, passthrough pkgerrors.Code) string {
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == passthrough && typed.Message() != "" {
		return typed.Message()
	}
	return msgOrderFailed
}
