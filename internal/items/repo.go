package items

import (
	"context"

	"github.com/bizmanager/ledgersync/pkg/db/models"
	"github.com/bizmanager/ledgersync/pkg/enums"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ledger items repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, item *models.LedgerItem) (*models.LedgerItem, error) {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *repository) FindByID(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (*models.LedgerItem, error) {
	var item models.LedgerItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND order_id = ? AND kind = ?", itemID, orderID, kind).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListByOrder(ctx context.Context, kind enums.LedgerKind, orderID int64) ([]models.LedgerItem, error) {
	var items []models.LedgerItem
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND kind = ?", orderID, kind).
		Order("sort_order ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CountByOrder(ctx context.Context, kind enums.LedgerKind, orderID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerItem{}).
		Where("order_id = ? AND kind = ?", orderID, kind).
		Count(&count).Error
	return count, err
}

func (r *repository) UpdateColumns(ctx context.Context, itemID int64, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerItem{}).
		Where("id = ?", itemID).
		Updates(updates).Error
}

func (r *repository) Delete(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND order_id = ? AND kind = ?", itemID, orderID, kind).
		Delete(&models.LedgerItem{})
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateSortOrder(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64, sortOrder int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.LedgerItem{}).
		Where("id = ? AND order_id = ? AND kind = ?", itemID, orderID, kind).
		Update("sort_order", sortOrder)
	return res.RowsAffected, res.Error
}
