package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/casadeele/storefront/internal/cart"
	"github.com/casadeele/storefront/internal/coupons"
	pkgerrors "github.com/casadeele/storefront/pkg/errors"
	"github.com/casadeele/storefront/pkg/logger"
)

// Carts resolves a session's cart provider; *cart.Registry satisfies it.
type Carts interface {
	Get(ctx context.Context, sessionID string) (*cart.Provider, error)
}

// AttemptView is what clients see of an attempt.
type AttemptView struct {
	ID          string            `json:"attemptId"`
	State       State             `json:"state"`
	Outcome     State             `json:"outcome,omitempty"`
	Message     string            `json:"message,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
	Widget      *WidgetConfig     `json:"widget,omitempty"`
	OrderID     string            `json:"orderId,omitempty"`
	Redirect    string            `json:"redirect,omitempty"`
	History     []State           `json:"history"`
}

// Summary is the order total as displayed before checkout.
type Summary struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Coupon   *coupons.Coupon `json:"coupon,omitempty"`
}

// PaymentSuccess is the widget's success callback payload.
type PaymentSuccess struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Service owns the checkout attempts and applied coupons of every session.
type Service interface {
	Begin(ctx context.Context, sessionID string, billing BillingDetails) (AttemptView, error)
	Current(ctx context.Context, sessionID string) (AttemptView, error)
	CompletePayment(ctx context.Context, sessionID, attemptID string, p PaymentSuccess) (AttemptView, error)
	Dismiss(ctx context.Context, sessionID, attemptID string) (AttemptView, error)
	ReportFailure(ctx context.Context, sessionID, attemptID string, kind EventKind, reason string) (AttemptView, error)
	ApplyCoupon(ctx context.Context, sessionID, code string) (Summary, error)
	RemoveCoupon(ctx context.Context, sessionID string) (Summary, error)
	Summary(ctx context.Context, sessionID string) (Summary, error)
	Forget(sessionID string)
	Prune(idle time.Duration) int
	Run(ctx context.Context, interval, idle time.Duration)
	Close()
}

const pruneJob = "checkout.prune"

type sessionState struct {
	attempt *Attempt
	bridge  *Bridge
	coupon  *coupons.Coupon
	// last time the session touched checkout; drives Prune
	touched time.Time
}

type service struct {
	carts   Carts
	orch    *Orchestrator
	coupons coupons.Service
	logg    *logger.Logger
	wait    time.Duration
	newID   func() string
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionState

	stopCtx context.Context
	stop    context.CancelFunc
	running sync.WaitGroup
}

// NewService builds the checkout service.
func NewService(carts Carts, orch *Orchestrator, couponSvc coupons.Service, logg *logger.Logger) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart registry required")
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	if couponSvc == nil {
		return nil, fmt.Errorf("coupon service required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	wait := orch.opts.OpenWait
	if wait <= 0 {
		wait = 20 * time.Second
	}
	stopCtx, stop := context.WithCancel(context.Background())
	return &service{
		carts:    carts,
		orch:     orch,
		coupons:  couponSvc,
		logg:     logg,
		wait:     wait,
		newID:    func() string { return uuid.NewString() },
		now:      orch.now,
		sessions: make(map[string]*sessionState),
		stopCtx:  stopCtx,
		stop:     stop,
	}, nil
}

// Begin starts a fresh attempt and returns once the widget is open or the
// attempt has already come to rest (validation errors, order failure).
func (s *service) Begin(ctx context.Context, sessionID string, billing BillingDetails) (AttemptView, error) {
	s.mu.Lock()
	st := s.session(sessionID)
	if st.attempt != nil && !s.finished(st.attempt) {
		s.mu.Unlock()
		return AttemptView{}, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already in progress").
			WithDetails(map[string]string{"attemptId": st.attempt.ID, "state": string(st.attempt.State())})
	}
	attempt := newAttempt(s.newID(), sessionID, s.orch.now())
	bridge := NewBridge()
	st.attempt, st.bridge = attempt, bridge
	code := ""
	if st.coupon != nil {
		code = st.coupon.Code
	}
	s.mu.Unlock()

	// the attempt outlives the request that started it; Close still stops it
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopRun := context.AfterFunc(s.stopCtx, cancel)
	in := Input{
		Cart:       sessionCart{carts: s.carts, sessionID: sessionID},
		Billing:    billing,
		CouponCode: code,
		Widget:     bridge,
	}
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer cancel()
		defer stopRun()
		res := s.orch.Run(runCtx, attempt, in)
		if res.Outcome == StateSucceeded {
			s.mu.Lock()
			st.coupon = nil
			s.mu.Unlock()
		}
	}()

	select {
	case <-attempt.Done():
	case <-bridge.Opened():
	case <-ctx.Done():
		return AttemptView{}, ctx.Err()
	case <-time.After(s.wait):
	}
	return viewOf(attempt), nil
}

func (s *service) Current(_ context.Context, sessionID string) (AttemptView, error) {
	attempt, _, err := s.lookup(sessionID, "")
	if err != nil {
		return AttemptView{}, err
	}
	return viewOf(attempt), nil
}

func (s *service) CompletePayment(ctx context.Context, sessionID, attemptID string, p PaymentSuccess) (AttemptView, error) {
	if strings.TrimSpace(p.PaymentID) == "" || strings.TrimSpace(p.Signature) == "" {
		return AttemptView{}, pkgerrors.New(pkgerrors.CodeValidation, "payment id and signature are required")
	}
	return s.deliver(ctx, sessionID, attemptID, PaymentEvent{
		Kind:      EventSuccess,
		OrderID:   p.OrderID,
		PaymentID: p.PaymentID,
		Signature: p.Signature,
	})
}

func (s *service) Dismiss(ctx context.Context, sessionID, attemptID string) (AttemptView, error) {
	return s.deliver(ctx, sessionID, attemptID, PaymentEvent{Kind: EventDismissed})
}

func (s *service) ReportFailure(ctx context.Context, sessionID, attemptID string, kind EventKind, reason string) (AttemptView, error) {
	if kind != EventFailed && kind != EventScriptLoad {
		return AttemptView{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown failure kind").
			WithDetails(map[string]string{"kind": string(kind)})
	}
	return s.deliver(ctx, sessionID, attemptID, PaymentEvent{Kind: kind, Reason: reason})
}

func (s *service) deliver(ctx context.Context, sessionID, attemptID string, ev PaymentEvent) (AttemptView, error) {
	attempt, bridge, err := s.lookup(sessionID, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	if err := bridge.Deliver(ev); err != nil {
		return AttemptView{}, err
	}
	select {
	case <-attempt.Done():
	case <-ctx.Done():
		return AttemptView{}, ctx.Err()
	case <-time.After(s.wait):
	}
	return viewOf(attempt), nil
}

func (s *service) ApplyCoupon(ctx context.Context, sessionID, code string) (Summary, error) {
	snap, err := s.snapshot(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	c, err := s.coupons.Validate(ctx, code, snap.TotalPrice)
	if err != nil {
		return Summary{}, err
	}
	s.mu.Lock()
	s.session(sessionID).coupon = &c
	s.mu.Unlock()
	return summarize(snap.TotalPrice, &c), nil
}

func (s *service) RemoveCoupon(ctx context.Context, sessionID string) (Summary, error) {
	s.mu.Lock()
	if st, ok := s.sessions[sessionID]; ok {
		st.coupon = nil
		st.touched = s.now()
	}
	s.mu.Unlock()
	return s.Summary(ctx, sessionID)
}

func (s *service) Summary(ctx context.Context, sessionID string) (Summary, error) {
	snap, err := s.snapshot(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	s.mu.Lock()
	var applied *coupons.Coupon
	if st, ok := s.sessions[sessionID]; ok && st.coupon != nil {
		c := *st.coupon
		applied = &c
	}
	s.mu.Unlock()
	return summarize(snap.TotalPrice, applied), nil
}

// Forget drops the session's checkout state unless an attempt is still running.
func (s *service) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[sessionID]; ok && s.settled(st) {
		delete(s.sessions, sessionID)
	}
}

// Prune drops sessions idle for longer than idle whose attempt has come to
// rest. An applied coupon lapses with its session.
func (s *service) Prune(idle time.Duration) int {
	cutoff := s.now().Add(-idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id, st := range s.sessions {
		if st.touched.Before(cutoff) && s.settled(st) {
			delete(s.sessions, id)
			pruned++
		}
	}
	return pruned
}

// Run prunes idle sessions every interval until ctx is done.
func (s *service) Run(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := s.Prune(idle); pruned > 0 {
				s.logg.Debug(s.logg.WithFields(ctx, map[string]any{"job": pruneJob, "pruned": pruned}), "checkout.prune.completed")
			}
		}
	}
}

// Close stops in-flight attempts and waits for them to come to rest.
func (s *service) Close() {
	s.stop()
	s.running.Wait()
}

func (s *service) snapshot(ctx context.Context, sessionID string) (cart.Snapshot, error) {
	return sessionCart{carts: s.carts, sessionID: sessionID}.Snapshot(ctx)
}

// session returns the session's state, creating it. Callers hold s.mu.
func (s *service) session(sessionID string) *sessionState {
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		s.sessions[sessionID] = st
	}
	st.touched = s.now()
	return st
}

// settled reports whether no attempt of st is running. Callers hold s.mu.
func (s *service) settled(st *sessionState) bool {
	return st.attempt == nil || s.finished(st.attempt)
}

func (s *service) finished(a *Attempt) bool {
	select {
	case <-a.Done():
		return true
	default:
		return false
	}
}

func (s *service) lookup(sessionID, attemptID string) (*Attempt, *Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok || st.attempt == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "no checkout attempt")
	}
	if attemptID != "" && st.attempt.ID != attemptID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout attempt not found").
			WithDetails(map[string]string{"attemptId": attemptID})
	}
	st.touched = s.now()
	return st.attempt, st.bridge, nil
}

func summarize(subtotal decimal.Decimal, c *coupons.Coupon) Summary {
	total := coupons.Apply(subtotal, c)
	return Summary{
		Subtotal: subtotal,
		Discount: subtotal.Sub(total),
		Total:    total,
		Coupon:   c,
	}
}

func viewOf(a *Attempt) AttemptView {
	view := AttemptView{
		ID:      a.ID,
		State:   a.State(),
		History: a.History(),
	}
	if cfg, ok := a.Widget(); ok && view.State == StateAwaitingPayment {
		view.Widget = &cfg
	}
	if res, ok := a.Result(); ok {
		view.State = res.State
		view.Outcome = res.Outcome
		view.Message = res.Message
		view.FieldErrors = res.FieldErrors
		view.OrderID = res.OrderID
		view.Redirect = res.Redirect
	}
	return view
}

// sessionCart resolves the provider on every call, so registry eviction
// during a long payment window is harmless.
type sessionCart struct {
	carts     Carts
	sessionID string
}

func (c sessionCart) Snapshot(ctx context.Context) (cart.Snapshot, error) {
	p, err := c.carts.Get(ctx, c.sessionID)
	if err != nil {
		return cart.Snapshot{}, err
	}
	return p.Snapshot(), nil
}

func (c sessionCart) Clear(ctx context.Context) error {
	p, err := c.carts.Get(ctx, c.sessionID)
	if err != nil {
		return err
	}
	p.ClearCart(ctx)
	return nil
}
