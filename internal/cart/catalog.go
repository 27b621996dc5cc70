package cart

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

const untitledItem = "Untitled item"

// Amount is a price read from catalog data. Decoding never fails: a missing,
// null or non-numeric value decodes to an invalid (absent) Amount.
type Amount struct {
	Value decimal.Decimal
	Valid bool
}

// NewAmount returns a valid Amount.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Value: d, Valid: true}
}

// AmountFromString parses s, returning an absent Amount when it is not numeric.
func AmountFromString(s string) Amount {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}
	}
	return NewAmount(d)
}

// IsZero reports absence so `omitzero` drops unset optional prices.
func (a Amount) IsZero() bool {
	return !a.Valid
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(a.Value.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = Amount{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		*a = AmountFromString(s)
		return nil
	}
	*a = AmountFromString(string(data))
	return nil
}

// CatalogItem is the cart's copy of a purchasable course or product. Fields the
// cart does not interpret are kept in Extra so the persisted layout round-trips.
type CatalogItem struct {
	ID            string
	Title         string
	Price         Amount
	DiscountPrice Amount
	Image         string
	Extra         map[string]json.RawMessage
}

// catalog keys the cart interprets; everything else lands in Extra.
var catalogKeys = map[string]struct{}{
	"_id": {}, "id": {}, "title": {}, "price": {}, "discountPrice": {}, "image": {},
}

// UnitPrice is discountPrice, else price, else zero.
func (c CatalogItem) UnitPrice() decimal.Decimal {
	if c.DiscountPrice.Valid {
		return c.DiscountPrice.Value
	}
	if c.Price.Valid {
		return c.Price.Value
	}
	return decimal.Zero
}

// withDefaults fills the fields storefront views cannot render without.
func (c CatalogItem) withDefaults(placeholderImage string) CatalogItem {
	c.ID = strings.TrimSpace(c.ID)
	if strings.TrimSpace(c.Title) == "" {
		c.Title = untitledItem
	}
	if strings.TrimSpace(c.Image) == "" {
		c.Image = placeholderImage
	}
	return c
}

func (c CatalogItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.fields())
}

func (c *CatalogItem) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = catalogFromFields(raw)
	return nil
}

func (c CatalogItem) fields() map[string]any {
	out := make(map[string]any, len(c.Extra)+5)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["_id"] = c.ID
	out["price"] = c.Price
	if c.Title != "" {
		out["title"] = c.Title
	}
	if c.DiscountPrice.Valid {
		out["discountPrice"] = c.DiscountPrice
	}
	if c.Image != "" {
		out["image"] = c.Image
	}
	return out
}

// catalogFromFields consumes the catalog keys from raw and keeps the rest as Extra.
func catalogFromFields(raw map[string]json.RawMessage) CatalogItem {
	var item CatalogItem
	item.ID = lenientString(raw["_id"])
	if item.ID == "" {
		item.ID = lenientString(raw["id"])
	}
	item.Title = lenientString(raw["title"])
	item.Image = lenientString(raw["image"])
	_ = item.Price.UnmarshalJSON(raw["price"])
	_ = item.DiscountPrice.UnmarshalJSON(raw["discountPrice"])

	for k, v := range raw {
		if _, known := catalogKeys[k]; known {
			continue
		}
		if item.Extra == nil {
			item.Extra = make(map[string]json.RawMessage)
		}
		item.Extra[k] = v
	}
	return item
}

// lenientString decodes a JSON string, or the literal text of a number; anything else is "".
func lenientString(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String()
	}
	return ""
}
