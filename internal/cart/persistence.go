package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultSlotKey is the fixed slot the cart is mirrored into.
const DefaultSlotKey = "cartItems"

// ErrSlotEmpty is returned by Slot.Read when nothing has been persisted yet.
var ErrSlotEmpty = errors.New("cart slot empty")

// Slot is one durable key/value cell holding a serialized cart.
type Slot interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
}

// SlotStore hands out the slot for a storefront session.
type SlotStore interface {
	Slot(sessionID string) Slot
}

// LoadSource says where an initial cart state came from.
type LoadSource string

const (
	LoadFromSlot    LoadSource = "slot"
	LoadEmpty       LoadSource = "empty"
	LoadCorrupt     LoadSource = "corrupt"
	LoadUnavailable LoadSource = "unavailable"
)

// LoadResult is the outcome of reading a slot. Lines is always usable; Err
// carries the swallowed failure for logging when Source is corrupt or unavailable.
type LoadResult struct {
	Lines   []Line
	Source  LoadSource
	Dropped int
	Err     error
}

// Failed reports whether the load fell back to an empty cart because of an error.
func (r LoadResult) Failed() bool {
	return r.Err != nil
}

// Load reads and sanitizes the persisted cart. It never returns an error.
func Load(ctx context.Context, slot Slot) LoadResult {
	payload, err := slot.Read(ctx)
	switch {
	case errors.Is(err, ErrSlotEmpty):
		return LoadResult{Source: LoadEmpty}
	case err != nil:
		return LoadResult{Source: LoadUnavailable, Err: err}
	}
	lines, err := Decode(payload)
	if err != nil {
		return LoadResult{Source: LoadCorrupt, Err: err}
	}
	clean, dropped := sanitize(lines)
	return LoadResult{Lines: clean, Source: LoadFromSlot, Dropped: dropped}
}

// Save mirrors lines into slot.
func Save(ctx context.Context, slot Slot, lines []Line) error {
	payload, err := Encode(lines)
	if err != nil {
		return err
	}
	if err := slot.Write(ctx, payload); err != nil {
		return fmt.Errorf("write cart slot: %w", err)
	}
	return nil
}

// Encode renders the persisted JSON array. An empty cart is "[]", never "null".
func Encode(lines []Line) ([]byte, error) {
	if lines == nil {
		lines = []Line{}
	}
	payload, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("encode cart: %w", err)
	}
	return payload, nil
}

// Decode parses a persisted JSON array without sanitizing it.
func Decode(payload []byte) ([]Line, error) {
	var lines []Line
	if err := json.Unmarshal(payload, &lines); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return lines, nil
}

// sanitize restores the store invariants on data read from outside: lines
// without an id or with a non-positive quantity are dropped and duplicate
// identities are merged into the first occurrence.
func sanitize(lines []Line) ([]Line, int) {
	store := NewStore()
	dropped := 0
	for _, l := range lines {
		if Resolve(l.Item, l.Variant).ItemID == "" || l.Quantity < 1 {
			dropped++
			continue
		}
		if store.indexOf(l.ID()) >= 0 {
			dropped++
		}
		store.Add(l.Item, l.Variant, l.Quantity)
	}
	return store.lines, dropped
}
