package items

import (
	"context"

	"github.com/bizmanager/ledgersync/pkg/db/models"
	"github.com/bizmanager/ledgersync/pkg/enums"
	"gorm.io/gorm"
)

// Repository defines persistence operations for ledger item rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, item *models.LedgerItem) (*models.LedgerItem, error)
	FindByID(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (*models.LedgerItem, error)
	ListByOrder(ctx context.Context, kind enums.LedgerKind, orderID int64) ([]models.LedgerItem, error)
	CountByOrder(ctx context.Context, kind enums.LedgerKind, orderID int64) (int64, error)
	UpdateColumns(ctx context.Context, itemID int64, updates map[string]any) error
	Delete(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (int64, error)
	UpdateSortOrder(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64, sortOrder int) (int64, error)
}
