package cart

import "strings"

// noneVariant renders an absent variant attribute inside the legacy uniqueId.
const noneVariant = "none"

// Variant is the optional sub-configuration chosen when an item is added.
// An empty field means the attribute was not selected.
type Variant struct {
	Level  string `json:"selectedLevel,omitempty"`
	Format string `json:"selectedFormat,omitempty"`
}

// LineID is the identity of a cart line: one catalog item in one variant.
// It is a comparable value; two lines are the same line iff their LineIDs are ==.
type LineID struct {
	ItemID string
	Level  string
	Format string
}

// Resolve derives the line identity for item in variant. It is total: a missing
// variant attribute is simply the empty value.
func Resolve(item CatalogItem, variant Variant) LineID {
	return LineID{
		ItemID: strings.TrimSpace(item.ID),
		Level:  strings.TrimSpace(variant.Level),
		Format: strings.TrimSpace(variant.Format),
	}
}

// String renders the persisted uniqueId: id-level-format with "none" for absent attributes.
func (id LineID) String() string {
	return id.ItemID + "-" + orNone(id.Level) + "-" + orNone(id.Format)
}

// Variant returns the variant half of the identity.
func (id LineID) Variant() Variant {
	return Variant{Level: id.Level, Format: id.Format}
}

func orNone(v string) string {
	if v == "" {
		return noneVariant
	}
	return v
}
