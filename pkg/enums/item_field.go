package enums

import "fmt"

// ItemField names one editable (or derived) column of a line item. Field names
// double as the wire-level field identifiers sent to the store.
type ItemField string

const (
	ItemFieldProductName ItemField = "product_name"
	ItemFieldPrice       ItemField = "price"
	ItemFieldQuantity    ItemField = "quantity"
	ItemFieldAmount      ItemField = "amount"
	ItemFieldTaxRate     ItemField = "tax_rate"
	ItemFieldRemarks     ItemField = "remarks"
	ItemFieldUnit        ItemField = "unit"
	ItemFieldSortOrder   ItemField = "sort_order"
)

var validItemFields = []ItemField{
	ItemFieldProductName,
	ItemFieldPrice,
	ItemFieldQuantity,
	ItemFieldAmount,
	ItemFieldTaxRate,
	ItemFieldRemarks,
	ItemFieldUnit,
	ItemFieldSortOrder,
}

// CommitTrigger declares when a host UI should commit a field edit.
type CommitTrigger string

const (
	// CommitTriggerExplicit commits when the user leaves the field.
	CommitTriggerExplicit CommitTrigger = "explicit"
	// CommitTriggerImmediate commits on every change, used for
	// stepper-style numeric controls.
	CommitTriggerImmediate CommitTrigger = "immediate"
)

// String implements fmt.Stringer.
func (f ItemField) String() string {
	return string(f)
}

// IsValid reports whether the value is a known ItemField.
func (f ItemField) IsValid() bool {
	for _, candidate := range validItemFields {
		if candidate == f {
			return true
		}
	}
	return false
}

// Trigger returns the commit policy a host should apply to the field.
func (f ItemField) Trigger() CommitTrigger {
	switch f {
	case ItemFieldPrice, ItemFieldQuantity:
		return CommitTriggerImmediate
	default:
		return CommitTriggerExplicit
	}
}

// Numeric reports whether the field carries a numeric value on the wire.
func (f ItemField) Numeric() bool {
	switch f {
	case ItemFieldPrice, ItemFieldQuantity, ItemFieldAmount, ItemFieldTaxRate, ItemFieldSortOrder:
		return true
	default:
		return false
	}
}

// ParseItemField converts raw input into an ItemField.
func ParseItemField(value string) (ItemField, error) {
	for _, candidate := range validItemFields {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item field %q", value)
}
