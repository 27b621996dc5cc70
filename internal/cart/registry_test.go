package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSlots struct {
	inner *MemorySlots
	reads atomic.Int32
}

func (c *countingSlots) Slot(sessionID string) Slot {
	return countingSlot{Slot: c.inner.Slot(sessionID), reads: &c.reads}
}

type countingSlot struct {
	Slot
	reads *atomic.Int32
}

func (c countingSlot) Read(ctx context.Context) ([]byte, error) {
	c.reads.Add(1)
	time.Sleep(10 * time.Millisecond)
	return c.Slot.Read(ctx)
}

func TestRegistryLoadsEachSessionOnce(t *testing.T) {
	slots := &countingSlots{inner: NewMemorySlots(DefaultSlotKey, 0)}
	reg := NewRegistry(slots, ProviderOptions{}, nil)

	var wg sync.WaitGroup
	got := make([]*Provider, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := reg.Get(context.Background(), "sess")
			if err != nil {
				t.Errorf("get failed: %v", err)
				return
			}
			got[i] = p
		}(i)
	}
	wg.Wait()

	if n := slots.reads.Load(); n != 1 {
		t.Fatalf("expected a single slot read, got %d", n)
	}
	for _, p := range got {
		if p != got[0] {
			t.Fatalf("expected every caller to share one provider")
		}
	}
	if reg.Len() != 1 {
		t.Fatalf("expected one provider, got %d", reg.Len())
	}
}

func TestRegistryRejectsEmptySession(t *testing.T) {
	reg := NewRegistry(NewMemorySlots("", 0), ProviderOptions{}, nil)
	if _, err := reg.Get(context.Background(), "  "); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestRegistryEvictIdleKeepsStateInSlot(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	reg := NewRegistry(NewMemorySlots(DefaultSlotKey, 0), ProviderOptions{Now: clock}, nil)

	idle, _ := reg.Get(ctx, "idle")
	idle.AddToCart(ctx, course("c1", "10", ""), Variant{}, 2)

	now = now.Add(20 * time.Minute)
	if _, err := reg.Get(ctx, "busy"); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	now = now.Add(15 * time.Minute)
	if evicted := reg.EvictIdle(30 * time.Minute); evicted != 1 {
		t.Fatalf("expected one eviction, got %d", evicted)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected the busy session to remain")
	}

	reloaded, _ := reg.Get(ctx, "idle")
	if reloaded == idle {
		t.Fatalf("expected a fresh provider after eviction")
	}
	if reloaded.TotalItems() != 2 {
		t.Fatalf("expected state reloaded from the slot, got %d items", reloaded.TotalItems())
	}
}

func TestRegistryForget(t *testing.T) {
	reg := NewRegistry(NewMemorySlots("", 0), ProviderOptions{}, nil)
	_, _ = reg.Get(context.Background(), "sess")
	reg.Forget("sess")
	if reg.Len() != 0 {
		t.Fatalf("expected provider dropped")
	}
}

func TestRegistryRunStopsOnCancel(t *testing.T) {
	reg := NewRegistry(NewMemorySlots("", 0), ProviderOptions{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
