package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/casadeele/storefront/pkg/logger"
	"github.com/casadeele/storefront/pkg/metrics"
)

// Snapshot is the cart as seen by readers: lines plus the derived totals.
type Snapshot struct {
	Lines      []Line          `json:"items"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// ProviderOptions configures every provider a registry builds.
type ProviderOptions struct {
	PlaceholderImage string
	Logger           *logger.Logger
	Metrics          *metrics.CartMetrics
	Now              func() time.Time
}

func (o ProviderOptions) withDefaults() ProviderOptions {
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Provider is the single access point to one session's cart. Mutations are
// serialized and applied in call order; each one is mirrored to the slot
// before the call returns. Slot failures are logged and counted, never returned.
type Provider struct {
	sessionID string
	slot      Slot
	opts      ProviderOptions

	mu    sync.Mutex
	store *Store
	subs  map[int]chan Snapshot
	next  int

	lastUsed atomic.Int64
}

// NewProvider loads the session's persisted cart, falling back to an empty one.
func NewProvider(ctx context.Context, sessionID string, slot Slot, opts ProviderOptions) *Provider {
	opts = opts.withDefaults()
	p := &Provider{
		sessionID: sessionID,
		slot:      slot,
		opts:      opts,
		store:     NewStore(),
		subs:      make(map[int]chan Snapshot),
	}
	p.touch()

	logCtx := opts.Logger.WithSessionID(ctx, sessionID)
	res := Load(ctx, slot)
	opts.Metrics.IncLoad(string(res.Source))
	if res.Failed() {
		opts.Metrics.IncPersistFailure("load")
		opts.Logger.Error(opts.Logger.WithField(logCtx, "source", string(res.Source)), "cart.load.failed", res.Err)
	}
	if res.Dropped > 0 {
		opts.Logger.Warn(opts.Logger.WithField(logCtx, "dropped", res.Dropped), "cart.load.sanitized")
	}
	p.store.lines = res.Lines
	return p
}

// SessionID returns the owning storefront session.
func (p *Provider) SessionID() string {
	return p.sessionID
}

// Lines returns the current lines in display order.
func (p *Provider) Lines() []Line {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	return p.store.Lines()
}

// Snapshot returns the lines and totals read under one lock.
func (p *Provider) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	return p.snapshotLocked()
}

// AddToCart adds qty of item in variant. Missing title or image are defaulted.
func (p *Provider) AddToCart(ctx context.Context, item CatalogItem, variant Variant, qty int) Snapshot {
	item = item.withDefaults(p.opts.PlaceholderImage)
	return p.mutate(ctx, "add", func(s *Store) { s.Add(item, variant, qty) })
}

// RemoveFromCart removes the line; absent lines are ignored.
func (p *Provider) RemoveFromCart(ctx context.Context, id LineID) Snapshot {
	return p.mutate(ctx, "remove", func(s *Store) { s.Remove(id) })
}

// UpdateQuantity overwrites the quantity; non-positive quantities remove the line.
func (p *Provider) UpdateQuantity(ctx context.Context, id LineID, qty int) Snapshot {
	return p.mutate(ctx, "set_quantity", func(s *Store) { s.SetQuantity(id, qty) })
}

// ClearCart empties the cart.
func (p *Provider) ClearCart(ctx context.Context) Snapshot {
	return p.mutate(ctx, "clear", func(s *Store) { s.Clear() })
}

// IsItemAdded matches on the base catalog id only; the variant is ignored.
func (p *Provider) IsItemAdded(baseID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	return p.store.HasItem(baseID)
}

func (p *Provider) TotalItems() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.TotalQuantity()
}

func (p *Provider) TotalPrice() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.TotalPrice()
}

// Subscribe delivers a snapshot after every mutation. A slow subscriber only
// ever sees the latest snapshot; stale ones are replaced, never queued.
// The returned func unsubscribes and closes the channel.
func (p *Provider) Subscribe() (<-chan Snapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	ch := make(chan Snapshot, 1)
	p.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
}

// LastUsed is the time of the most recent read or mutation.
func (p *Provider) LastUsed() time.Time {
	return time.Unix(0, p.lastUsed.Load())
}

func (p *Provider) mutate(ctx context.Context, op string, fn func(*Store)) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()

	fn(p.store)
	p.opts.Metrics.IncMutation(op)
	p.persistLocked(ctx, op)

	snap := p.snapshotLocked()
	for _, ch := range p.subs {
		publish(ch, snap)
	}
	return snap
}

// persistLocked mirrors the store into the slot. A request that has already
// been cancelled still gets its mutation persisted.
func (p *Provider) persistLocked(ctx context.Context, op string) {
	if err := Save(context.WithoutCancel(ctx), p.slot, p.store.Lines()); err != nil {
		p.opts.Metrics.IncPersistFailure("save")
		logCtx := p.opts.Logger.WithSessionID(ctx, p.sessionID)
		p.opts.Logger.Error(p.opts.Logger.WithField(logCtx, "op", op), "cart.persist.failed", err)
	}
}

func (p *Provider) snapshotLocked() Snapshot {
	return Snapshot{
		Lines:      p.store.Lines(),
		TotalItems: p.store.TotalQuantity(),
		TotalPrice: p.store.TotalPrice(),
	}
}

func (p *Provider) touch() {
	p.lastUsed.Store(p.opts.Now().UnixNano())
}

func publish(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
