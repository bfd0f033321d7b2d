package models

import (
	"time"

	"github.com/bizmanager/ledgersync/pkg/enums"
	"github.com/shopspring/decimal"
)

// LedgerItem is the durable form of one line item row. The numeric columns
// mirror the client-side model: Amount is stored as the client computed it so
// the two never diverge.
type LedgerItem struct {
	ID          int64            `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID     int64            `gorm:"column:order_id;not null;index:idx_ledger_items_order_kind"`
	Kind        enums.LedgerKind `gorm:"column:kind;not null;index:idx_ledger_items_order_kind"`
	ProductName string           `gorm:"column:product_name;not null"`
	Price       decimal.Decimal  `gorm:"column:price;type:numeric(14,4);not null;default:0"`
	Quantity    decimal.Decimal  `gorm:"column:quantity;type:numeric(14,4);not null;default:0"`
	Amount      int64            `gorm:"column:amount;not null;default:0"`
	TaxRate     *decimal.Decimal `gorm:"column:tax_rate;type:numeric(5,2)"`
	Remarks     string           `gorm:"column:remarks"`
	Unit        string           `gorm:"column:unit"`
	SortOrder   int              `gorm:"column:sort_order;not null;default:0"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table used by the store service.
func (LedgerItem) TableName() string {
	return "ledger_items"
}
