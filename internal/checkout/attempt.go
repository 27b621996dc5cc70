package checkout

import (
	"sync"
	"time"
)

// Attempt is one run of the checkout state machine, from proceed to a resting state.
type Attempt struct {
	ID        string
	SessionID string
	StartedAt time.Time

	mu      sync.RWMutex
	state   State
	history []State
	widget  *WidgetConfig
	result  *Result
	done    chan struct{}
}

func newAttempt(id, sessionID string, now time.Time) *Attempt {
	return &Attempt{
		ID:        id,
		SessionID: sessionID,
		StartedAt: now,
		state:     StateIdle,
		history:   []State{StateIdle},
		done:      make(chan struct{}),
	}
}

// State is the current state.
func (a *Attempt) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// History lists every state visited, in order.
func (a *Attempt) History() []State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]State(nil), a.history...)
}

// Widget is the config the payment widget was opened with.
func (a *Attempt) Widget() (WidgetConfig, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.widget == nil {
		return WidgetConfig{}, false
	}
	return *a.widget, true
}

// Result is available once Done is closed.
func (a *Attempt) Result() (Result, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.result == nil {
		return Result{}, false
	}
	return *a.result, true
}

// Done is closed when the attempt reaches its resting state.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

func (a *Attempt) move(to State) (State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	from := a.state
	if !CanTransition(from, to) {
		return from, transitionError(from, to)
	}
	a.state = to
	a.history = append(a.history, to)
	return from, nil
}

func (a *Attempt) setWidget(cfg WidgetConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.widget = &cfg
}

func (a *Attempt) finish(res Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result != nil {
		return
	}
	a.result = &res
	close(a.done)
}
