package cart

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxQuantity caps a single line. Merges and overwrites saturate at it.
const MaxQuantity = 999

// Line is one row of the cart. Quantity is always >= 1 while the line is in a Store.
type Line struct {
	Item     CatalogItem
	Variant  Variant
	Quantity int
}

// ID resolves the line identity.
func (l Line) ID() LineID {
	return Resolve(l.Item, l.Variant)
}

// Subtotal is the unit price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Item.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// MarshalJSON writes the persisted layout: the catalog fields flattened with
// the variant, quantity and derived uniqueId.
func (l Line) MarshalJSON() ([]byte, error) {
	fields := l.Item.fields()
	if l.Variant.Level != "" {
		fields["selectedLevel"] = l.Variant.Level
	}
	if l.Variant.Format != "" {
		fields["selectedFormat"] = l.Variant.Format
	}
	fields["quantity"] = l.Quantity
	fields["uniqueId"] = l.ID().String()
	return json.Marshal(fields)
}

// UnmarshalJSON reads the persisted layout. Only a non-object payload is an
// error; malformed fields decode to zero values and are dealt with by sanitize.
func (l *Line) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	level := lenientString(raw["selectedLevel"])
	format := lenientString(raw["selectedFormat"])
	var qty Amount
	_ = qty.UnmarshalJSON(raw["quantity"])

	// uniqueId is derived, never trusted from storage
	delete(raw, "selectedLevel")
	delete(raw, "selectedFormat")
	delete(raw, "quantity")
	delete(raw, "uniqueId")

	*l = Line{
		Item:    catalogFromFields(raw),
		Variant: Variant{Level: strings.TrimSpace(level), Format: strings.TrimSpace(format)},
	}
	// fractional or oversized quantities stay zero so sanitize drops the line
	if qty.Valid && qty.Value.IsInteger() && qty.Value.LessThanOrEqual(decimal.NewFromInt(MaxQuantity)) {
		l.Quantity = int(qty.Value.IntPart())
	}
	return nil
}

// Store is the ordered, invariant-preserving collection of cart lines.
// Insertion order is display order. Every operation is total. Store is not
// safe for concurrent use; Provider serializes access to it.
type Store struct {
	lines []Line
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Add merges qty into the line for (item, variant), or appends a new line.
// qty is clamped to [1, MaxQuantity] and the merged quantity saturates at MaxQuantity.
func (s *Store) Add(item CatalogItem, variant Variant, qty int) {
	qty = clampQuantity(qty)
	id := Resolve(item, variant)
	if i := s.indexOf(id); i >= 0 {
		if qty > MaxQuantity-s.lines[i].Quantity {
			s.lines[i].Quantity = MaxQuantity
			return
		}
		s.lines[i].Quantity += qty
		return
	}
	s.lines = append(s.lines, Line{
		Item:     item,
		Variant:  id.Variant(),
		Quantity: qty,
	})
}

// Remove deletes the line if present.
func (s *Store) Remove(id LineID) {
	i := s.indexOf(id)
	if i < 0 {
		return
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
}

// SetQuantity overwrites the line quantity; a non-positive qty removes the line
// and anything above MaxQuantity is capped.
func (s *Store) SetQuantity(id LineID, qty int) {
	if qty <= 0 {
		s.Remove(id)
		return
	}
	if i := s.indexOf(id); i >= 0 {
		s.lines[i].Quantity = clampQuantity(qty)
	}
}

func clampQuantity(qty int) int {
	switch {
	case qty < 1:
		return 1
	case qty > MaxQuantity:
		return MaxQuantity
	}
	return qty
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.lines = nil
}

// HasItem reports whether any variant of the base catalog item is in the cart.
func (s *Store) HasItem(baseID string) bool {
	baseID = strings.TrimSpace(baseID)
	for _, l := range s.lines {
		if l.ID().ItemID == baseID {
			return true
		}
	}
	return false
}

// TotalQuantity sums line quantities.
func (s *Store) TotalQuantity() int {
	total := 0
	for _, l := range s.lines {
		total += l.Quantity
	}
	return total
}

// TotalPrice sums (discountPrice ?? price ?? 0) * quantity over all lines.
func (s *Store) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Lines returns a copy of the lines in display order.
func (s *Store) Lines() []Line {
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// Len returns the number of distinct lines.
func (s *Store) Len() int {
	return len(s.lines)
}

func (s *Store) indexOf(id LineID) int {
	for i, l := range s.lines {
		if l.ID() == id {
			return i
		}
	}
	return -1
}
