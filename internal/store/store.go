package store

import (
	"context"

	"github.com/bizmanager/ledgersync/pkg/enums"
)

// SortEntry pairs a persisted item with its new dense rank.
type SortEntry struct {
	ItemID    int64 `json:"item_id"`
	SortOrder int   `json:"sort_order"`
}

// ItemSnapshot is one stored row as the server reports it, used to hydrate a
// ledger when an order is opened. Numeric fields stay as wire strings; the
// ledger re-parses them with the same rules it applies to user input.
type ItemSnapshot struct {
	ItemID      int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	Kind        string  `json:"kind"`
	ProductName string  `json:"product_name"`
	Price       string  `json:"price"`
	Quantity    string  `json:"quantity"`
	Amount      int64   `json:"amount"`
	TaxRate     *string `json:"tax_rate"`
	Remarks     string  `json:"remarks"`
	Unit        string  `json:"unit"`
	SortOrder   int     `json:"sort_order"`
}

// Store is the remote authority for durable line-item state. Implementations
// must apply each call atomically; the engine never holds client-side locks
// across calls.
//
// The idempotency key on CreateItem lets the store refuse to duplicate a row
// when a create is replayed; the engine passes the item's local identity,
// which is unique per draft→promoting transition.
type Store interface {
	CreateItem(ctx context.Context, kind enums.LedgerKind, orderID int64, field enums.ItemField, value, idempotencyKey string) (int64, error)
	UpdateItemField(ctx context.Context, kind enums.LedgerKind, itemID int64, field enums.ItemField, value string, orderID int64) (bool, error)
	DeleteItem(ctx context.Context, kind enums.LedgerKind, itemID, orderID int64) error
	ReorderItems(ctx context.Context, kind enums.LedgerKind, orderID int64, entries []SortEntry) error
}
