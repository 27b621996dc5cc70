package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/casadeele/storefront/pkg/metrics"
)

const evictJob = "cart.evict"

// ErrNoSession is returned when a provider is requested without a session id.
var ErrNoSession = errors.New("cart: session id is required")

// Registry owns one Provider per storefront session. It is built once at
// bootstrap and injected into the handlers that need carts.
type Registry struct {
	slots SlotStore
	opts  ProviderOptions
	jobs  *metrics.JobMetrics

	mu        sync.Mutex
	providers map[string]*Provider
	loads     singleflight.Group
}

func NewRegistry(slots SlotStore, opts ProviderOptions, jobs *metrics.JobMetrics) *Registry {
	return &Registry{
		slots:     slots,
		opts:      opts.withDefaults(),
		jobs:      jobs,
		providers: make(map[string]*Provider),
	}
}

// Get returns the session's provider, loading it from its slot on first use.
// Concurrent first requests for a session share a single load.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Provider, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrNoSession
	}
	if p := r.lookup(sessionID); p != nil {
		return p, nil
	}

	v, _, _ := r.loads.Do(sessionID, func() (any, error) {
		if p := r.lookup(sessionID); p != nil {
			return p, nil
		}
		// the load outlives the first caller's request
		p := NewProvider(context.WithoutCancel(ctx), sessionID, r.slots.Slot(sessionID), r.opts)
		r.mu.Lock()
		r.providers[sessionID] = p
		n := len(r.providers)
		r.mu.Unlock()
		r.opts.Metrics.SetActive(n)
		return p, nil
	})
	p := v.(*Provider)
	p.touch()
	return p, nil
}

// Forget drops the session's provider from memory. Its slot is left intact.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	delete(r.providers, sessionID)
	n := len(r.providers)
	r.mu.Unlock()
	r.opts.Metrics.SetActive(n)
}

// Len returns the number of providers held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.providers)
}

// EvictIdle drops providers unused for longer than idle. Their state is already
// persisted, so the next Get reloads it from the slot.
func (r *Registry) EvictIdle(idle time.Duration) int {
	cutoff := r.opts.Now().Add(-idle)
	r.mu.Lock()
	evicted := 0
	for id, p := range r.providers {
		if p.LastUsed().Before(cutoff) {
			delete(r.providers, id)
			evicted++
		}
	}
	n := len(r.providers)
	r.mu.Unlock()
	r.opts.Metrics.SetActive(n)
	return evicted
}

// Run evicts idle providers every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) {
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
			start := time.Now()
			evicted := r.EvictIdle(idle)
			r.jobs.ObserveRun(evictJob, time.Since(start), evicted, nil)
			if evicted > 0 {
				r.opts.Logger.Debug(r.opts.Logger.WithField(ctx, "evicted", evicted), "cart.evict.completed")
			}
		}
	}
}

func (r *Registry) lookup(sessionID string) *Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.providers[sessionID]
	if p != nil {
		p.touch()
	}
	return p
}
