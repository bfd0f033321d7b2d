package items

import "github.com/bizmanager/ledgersync/pkg/enums"

// CreateItemInput seeds a new row. Only the product name field may seed a
// create; every other field is committed against the row afterwards.
type CreateItemInput struct {
	Kind           enums.LedgerKind
	OrderID        int64
	Field          enums.ItemField
	Value          string
	IdempotencyKey string
}

// UpdateFieldInput commits one field value against an existing row.
type UpdateFieldInput struct {
	Kind    enums.LedgerKind
	OrderID int64
	ItemID  int64
	Field   enums.ItemField
	Value   string
}

// SortEntry pairs a stored row with its new rank.
type SortEntry struct {
	ItemID    int64
	SortOrder int
}
