package items

import (
	"context"
	"testing"
	"time"

	"github.com/bizmanager/ledgersync/pkg/db/models"
	"github.com/bizmanager/ledgersync/pkg/enums"
	pkgerrors "github.com/bizmanager/ledgersync/pkg/errors"
	pkgredis "github.com/bizmanager/ledgersync/pkg/redis"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubRepo struct {
	insertFn    func(ctx context.Context, item *models.LedgerItem) (*models.LedgerItem, error)
	findFn      func(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (*models.LedgerItem, error)
	listFn      func(ctx context.Context, kind enums.LedgerKind, orderID int64) ([]models.LedgerItem, error)
	countFn     func(ctx context.Context, kind enums.LedgerKind, orderID int64) (int64, error)
	updateFn    func(ctx context.Context, itemID int64, updates map[string]any) error
	deleteFn    func(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (int64, error)
	sortOrderFn func(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64, sortOrder int) (int64, error)
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Insert(ctx context.Context, item *models.LedgerItem) (*models.LedgerItem, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, item)
	}
	item.ID = 1
	return item, nil
}

func (s *stubRepo) FindByID(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (*models.LedgerItem, error) {
	if s.findFn != nil {
		return s.findFn(ctx, kind, orderID, itemID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) ListByOrder(ctx context.Context, kind enums.LedgerKind, orderID int64) ([]models.LedgerItem, error) {
	if s.listFn != nil {
		return s.listFn(ctx, kind, orderID)
	}
	return nil, nil
}

func (s *stubRepo) CountByOrder(ctx context.Context, kind enums.LedgerKind, orderID int64) (int64, error) {
	if s.countFn != nil {
		return s.countFn(ctx, kind, orderID)
	}
	return 0, nil
}

func (s *stubRepo) UpdateColumns(ctx context.Context, itemID int64, updates map[string]any) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, itemID, updates)
	}
	return nil
}

func (s *stubRepo) Delete(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (int64, error) {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, kind, orderID, itemID)
	}
	return 1, nil
}

func (s *stubRepo) UpdateSortOrder(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64, sortOrder int) (int64, error) {
	if s.sortOrderFn != nil {
		return s.sortOrderFn(ctx, kind, orderID, itemID, sortOrder)
	}
	return 1, nil
}

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubIdem struct {
	reservations map[string]int64
	reserveErr   error
	lookupErr    error
}

func (s *stubIdem) ReserveCreate(ctx context.Context, key string, itemID int64, ttl time.Duration) (bool, error) {
	if s.reserveErr != nil {
		return false, s.reserveErr
	}
	if s.reservations == nil {
		s.reservations = make(map[string]int64)
	}
	if _, ok := s.reservations[key]; ok {
		return false, nil
	}
	s.reservations[key] = itemID
	return true, nil
}

func (s *stubIdem) CreatedItemID(ctx context.Context, key string) (int64, error) {
	if s.lookupErr != nil {
		return 0, s.lookupErr
	}
	id, ok := s.reservations[key]
	if !ok {
		return 0, pkgredis.ErrNotFound
	}
	return id, nil
}

func newService(t *testing.T, repo Repository, opts Options) Service {
	t.Helper()
	svc, err := NewService(repo, stubTx{}, opts)
	require.NoError(t, err)
	return svc
}

func persistedItem(id int64) *models.LedgerItem {
	return &models.LedgerItem{
		ID:          id,
		OrderID:     42,
		Kind:        enums.LedgerKindInvoice,
		ProductName: "widget",
		Price:       decimal.RequireFromString("10"),
		Quantity:    decimal.NewFromInt(2),
		Amount:      20,
	}
}

func TestCreateItemSeedsTailSortOrder(t *testing.T) {
	var inserted *models.LedgerItem
	repo := &stubRepo{
		countFn: func(ctx context.Context, kind enums.LedgerKind, orderID int64) (int64, error) {
			return 2, nil
		},
		insertFn: func(ctx context.Context, item *models.LedgerItem) (*models.LedgerItem, error) {
			item.ID = 7
			inserted = item
			return item, nil
		},
	}
	svc := newService(t, repo, Options{})

	item, err := svc.CreateItem(context.Background(), CreateItemInput{
		Kind:    enums.LedgerKindInvoice,
		OrderID: 42,
		Field:   enums.ItemFieldProductName,
		Value:   "  widget  ",
	})
	require.NoError(t, err)
	require.NotNil(t, inserted)
	assert.Equal(t, int64(7), item.ID)
	assert.Equal(t, "widget", item.ProductName)
	assert.Equal(t, 2, item.SortOrder)
}

func TestCreateItemRejectsNonNameSeed(t *testing.T) {
	svc := newService(t, &stubRepo{}, Options{})

	_, err := svc.CreateItem(context.Background(), CreateItemInput{
		Kind:    enums.LedgerKindInvoice,
		OrderID: 42,
		Field:   enums.ItemFieldPrice,
		Value:   "10",
	})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = svc.CreateItem(context.Background(), CreateItemInput{
		Kind:    enums.LedgerKindInvoice,
		OrderID: 42,
		Field:   enums.ItemFieldProductName,
		Value:   "   ",
	})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestCreateItemReplaysIdempotencyKey(t *testing.T) {
	existing := persistedItem(7)
	var inserts int
	repo := &stubRepo{
		findFn: func(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (*models.LedgerItem, error) {
			if itemID == existing.ID {
				return existing, nil
			}
			return nil, gorm.ErrRecordNotFound
		},
		insertFn: func(ctx context.Context, item *models.LedgerItem) (*models.LedgerItem, error) {
			inserts++
			item.ID = 99
			return item, nil
		},
	}
	idem := &stubIdem{reservations: map[string]int64{"key-1": existing.ID}}
	svc := newService(t, repo, Options{Idempotency: idem})

	item, err := svc.CreateItem(context.Background(), CreateItemInput{
		Kind:           enums.LedgerKindInvoice,
		OrderID:        42,
		Field:          enums.ItemFieldProductName,
		Value:          "widget",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, item.ID)
	assert.Zero(t, inserts)
}

func TestCreateItemReservesKeyAfterInsert(t *testing.T) {
	repo := &stubRepo{
		insertFn: func(ctx context.Context, item *models.LedgerItem) (*models.LedgerItem, error) {
			item.ID = 11
			return item, nil
		},
	}
	idem := &stubIdem{}
	svc := newService(t, repo, Options{Idempotency: idem})

	_, err := svc.CreateItem(context.Background(), CreateItemInput{
		Kind:           enums.LedgerKindInvoice,
		OrderID:        42,
		Field:          enums.ItemFieldProductName,
		Value:          "widget",
		IdempotencyKey: "key-2",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), idem.reservations["key-2"])
}

func TestCreateItemSurvivesIdempotencyOutage(t *testing.T) {
	repo := &stubRepo{
		insertFn: func(ctx context.Context, item *models.LedgerItem) (*models.LedgerItem, error) {
			item.ID = 11
			return item, nil
		},
	}
	idem := &stubIdem{lookupErr: assert.AnError, reserveErr: assert.AnError}
	svc := newService(t, repo, Options{Idempotency: idem})

	item, err := svc.CreateItem(context.Background(), CreateItemInput{
		Kind:           enums.LedgerKindInvoice,
		OrderID:        42,
		Field:          enums.ItemFieldProductName,
		Value:          "widget",
		IdempotencyKey: "key-3",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), item.ID)
}

func TestUpdateItemFieldReportsChanged(t *testing.T) {
	item := persistedItem(7)
	var updates []map[string]any
	repo := &stubRepo{
		findFn: func(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (*models.LedgerItem, error) {
			return item, nil
		},
		updateFn: func(ctx context.Context, itemID int64, u map[string]any) error {
			updates = append(updates, u)
			return nil
		},
	}
	svc := newService(t, repo, Options{})

	// Same value: acknowledged without a write.
	changed, err := svc.UpdateItemField(context.Background(), UpdateFieldInput{
		Kind: enums.LedgerKindInvoice, OrderID: 42, ItemID: 7,
		Field: enums.ItemFieldPrice, Value: "10.00",
	})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, updates)

	changed, err = svc.UpdateItemField(context.Background(), UpdateFieldInput{
		Kind: enums.LedgerKindInvoice, OrderID: 42, ItemID: 7,
		Field: enums.ItemFieldPrice, Value: "12.50",
	})
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, updates, 1)
}

func TestUpdateItemFieldClearsTaxRate(t *testing.T) {
	rate := decimal.RequireFromString("10")
	item := persistedItem(7)
	item.TaxRate = &rate

	var got map[string]any
	repo := &stubRepo{
		findFn: func(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (*models.LedgerItem, error) {
			return item, nil
		},
		updateFn: func(ctx context.Context, itemID int64, u map[string]any) error {
			got = u
			return nil
		},
	}
	svc := newService(t, repo, Options{})

	changed, err := svc.UpdateItemField(context.Background(), UpdateFieldInput{
		Kind: enums.LedgerKindInvoice, OrderID: 42, ItemID: 7,
		Field: enums.ItemFieldTaxRate, Value: "",
	})
	require.NoError(t, err)
	assert.True(t, changed)
	require.Contains(t, got, "tax_rate")
	assert.Nil(t, got["tax_rate"])
}

func TestUpdateItemFieldValidation(t *testing.T) {
	repo := &stubRepo{
		findFn: func(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (*models.LedgerItem, error) {
			return persistedItem(7), nil
		},
	}
	svc := newService(t, repo, Options{})

	cases := []struct {
		field enums.ItemField
		value string
	}{
		{enums.ItemFieldAmount, "-1"},
		{enums.ItemFieldAmount, "abc"},
		{enums.ItemFieldTaxRate, "101"},
		{enums.ItemFieldTaxRate, "-1"},
		{enums.ItemFieldPrice, "abc"},
		{enums.ItemFieldPrice, "-5"},
		{enums.ItemFieldSortOrder, "1"},
	}
	for _, tc := range cases {
		_, err := svc.UpdateItemField(context.Background(), UpdateFieldInput{
			Kind: enums.LedgerKindInvoice, OrderID: 42, ItemID: 7,
			Field: tc.field, Value: tc.value,
		})
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err), "%s=%s", tc.field, tc.value)
	}
}

func TestUpdateItemFieldNotFound(t *testing.T) {
	svc := newService(t, &stubRepo{}, Options{})

	_, err := svc.UpdateItemField(context.Background(), UpdateFieldInput{
		Kind: enums.LedgerKindInvoice, OrderID: 42, ItemID: 7,
		Field: enums.ItemFieldPrice, Value: "10",
	})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestDeleteItemResequencesGap(t *testing.T) {
	remaining := []models.LedgerItem{
		{ID: 1, SortOrder: 0},
		{ID: 3, SortOrder: 2},
	}
	var moved []SortEntry
	repo := &stubRepo{
		listFn: func(ctx context.Context, kind enums.LedgerKind, orderID int64) ([]models.LedgerItem, error) {
			return remaining, nil
		},
		sortOrderFn: func(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64, sortOrder int) (int64, error) {
			moved = append(moved, SortEntry{ItemID: itemID, SortOrder: sortOrder})
			return 1, nil
		},
	}
	svc := newService(t, repo, Options{})

	require.NoError(t, svc.DeleteItem(context.Background(), enums.LedgerKindInvoice, 42, 2))
	assert.Equal(t, []SortEntry{{ItemID: 3, SortOrder: 1}}, moved)
}

func TestDeleteItemNotFound(t *testing.T) {
	repo := &stubRepo{
		deleteFn: func(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) (int64, error) {
			return 0, nil
		},
	}
	svc := newService(t, repo, Options{})

	err := svc.DeleteItem(context.Background(), enums.LedgerKindInvoice, 42, 9)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestReorderItemsValidation(t *testing.T) {
	svc := newService(t, &stubRepo{}, Options{})

	err := svc.ReorderItems(context.Background(), enums.LedgerKindInvoice, 42, nil)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	err = svc.ReorderItems(context.Background(), enums.LedgerKindInvoice, 42, []SortEntry{
		{ItemID: 1, SortOrder: 0},
		{ItemID: 1, SortOrder: 1},
	})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestReorderItemsAppliesAllEntries(t *testing.T) {
	var moved []SortEntry
	repo := &stubRepo{
		sortOrderFn: func(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64, sortOrder int) (int64, error) {
			moved = append(moved, SortEntry{ItemID: itemID, SortOrder: sortOrder})
			return 1, nil
		},
	}
	svc := newService(t, repo, Options{})

	entries := []SortEntry{{ItemID: 2, SortOrder: 0}, {ItemID: 1, SortOrder: 1}}
	require.NoError(t, svc.ReorderItems(context.Background(), enums.LedgerKindInvoice, 42, entries))
	assert.Equal(t, entries, moved)
}

func TestReorderItemsUnknownRow(t *testing.T) {
	repo := &stubRepo{
		sortOrderFn: func(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64, sortOrder int) (int64, error) {
			return 0, nil
		},
	}
	svc := newService(t, repo, Options{})

	err := svc.ReorderItems(context.Background(), enums.LedgerKindInvoice, 42, []SortEntry{{ItemID: 9, SortOrder: 0}})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}
