package ledger

import (
	"github.com/bizmanager/ledgersync/pkg/enums"
	"github.com/bizmanager/ledgersync/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is one editable row of a ledger. LocalID is assigned at creation
// and never reused; RemoteID stays zero until the store confirms creation.
type LineItem struct {
	LocalID     uuid.UUID
	RemoteID    int64
	ProductName string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Amount      int64
	TaxRate     *decimal.Decimal
	Remarks     string
	Unit        string
	SortOrder   int
	Lifecycle   enums.ItemLifecycle
}

// Editable reports whether the field accepts edits in the item's current
// lifecycle state. UI enablement is a pure function of this; dependent fields
// stay disabled on drafts so no edit can reference a row the store has never
// seen. Amount and sort order are derived and never directly editable.
func (i *LineItem) Editable(field enums.ItemField) bool {
	switch field {
	case enums.ItemFieldAmount, enums.ItemFieldSortOrder:
		return false
	}
	switch i.Lifecycle {
	case enums.ItemLifecycleDraft, enums.ItemLifecyclePromoting:
		return field == enums.ItemFieldProductName
	case enums.ItemLifecyclePersisted:
		return true
	default:
		return false
	}
}

func (i *LineItem) recomputeAmount() {
	i.Amount = money.Amount(i.Price, i.Quantity)
}

func (i *LineItem) taxLine() money.Line {
	return money.Line{Amount: i.Amount, Rate: i.TaxRate}
}

// clone returns a snapshot safe to hand to the host.
func (i *LineItem) clone() LineItem {
	out := *i
	if i.TaxRate != nil {
		rate := *i.TaxRate
		out.TaxRate = &rate
	}
	return out
}
