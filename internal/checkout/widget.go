package checkout

import (
	"context"
	"sync"

	pkgerrors "github.com/casadeele/storefront/pkg/errors"
)

// EventKind is what the payment widget reported.
type EventKind string

const (
	EventSuccess    EventKind = "success"
	EventDismissed  EventKind = "dismissed"
	EventFailed     EventKind = "payment_failed"
	EventScriptLoad EventKind = "script_load_failed"
)

// PaymentEvent is one widget callback.
type PaymentEvent struct {
	Kind      EventKind
	OrderID   string
	PaymentID string
	Signature string
	Reason    string
}

// Prefill is the buyer data the widget shows pre-filled.
type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

type Notes struct {
	Address string `json:"address"`
}

type Theme struct {
	Color string `json:"color"`
}

// WidgetConfig is handed to the browser to open the gateway widget.
type WidgetConfig struct {
	Key         string  `json:"key"`
	Amount      int64   `json:"amount"`
	Currency    string  `json:"currency"`
	OrderID     string  `json:"order_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Prefill     Prefill `json:"prefill"`
	Notes       Notes   `json:"notes"`
	Theme       Theme   `json:"theme"`
}

// PaymentWidget opens the external widget. The returned channel yields exactly
// one event for the opened order.
type PaymentWidget interface {
	Open(ctx context.Context, cfg WidgetConfig) (<-chan PaymentEvent, error)
}

// Bridge is the widget for one attempt when the real widget runs in a browser:
// Open publishes the config for the browser to fetch, and Deliver feeds the
// browser's callback back into the waiting orchestrator.
type Bridge struct {
	mu        sync.Mutex
	cfg       *WidgetConfig
	opened    chan struct{}
	events    chan PaymentEvent
	delivered bool
}

func NewBridge() *Bridge {
	return &Bridge{
		opened: make(chan struct{}),
		events: make(chan PaymentEvent, 1),
	}
}

func (b *Bridge) Open(_ context.Context, cfg WidgetConfig) (<-chan PaymentEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment widget already open")
	}
	b.cfg = &cfg
	close(b.opened)
	return b.events, nil
}

// Opened is closed once the widget config is available.
func (b *Bridge) Opened() <-chan struct{} {
	return b.opened
}

// Config returns the published config, if the widget has been opened.
func (b *Bridge) Config() (WidgetConfig, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg == nil {
		return WidgetConfig{}, false
	}
	return *b.cfg, true
}

// Deliver hands a browser callback to the orchestrator. Only the first event
// counts; anything after it is a conflict.
func (b *Bridge) Deliver(ev PaymentEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.delivered {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment outcome already reported")
	}
	// a script-load failure may arrive before the widget ever opened
	if b.cfg == nil && ev.Kind != EventScriptLoad {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment widget not open")
	}
	b.delivered = true
	b.events <- ev
	return nil
}
