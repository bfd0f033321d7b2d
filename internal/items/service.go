package items

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bizmanager/ledgersync/pkg/db/models"
	"github.com/bizmanager/ledgersync/pkg/enums"
	pkgerrors "github.com/bizmanager/ledgersync/pkg/errors"
	"github.com/bizmanager/ledgersync/pkg/logger"
	pkgredis "github.com/bizmanager/ledgersync/pkg/redis"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultIdempotencyTTL = 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// IdempotencyStore records which row a create request produced so a replayed
// request returns the same row instead of inserting a duplicate.
type IdempotencyStore interface {
	ReserveCreate(ctx context.Context, key string, itemID int64, ttl time.Duration) (bool, error)
	CreatedItemID(ctx context.Context, key string) (int64, error)
}

// Service defines the store-side ledger item operations.
type Service interface {
	CreateItem(ctx context.Context, input CreateItemInput) (*models.LedgerItem, error)
	UpdateItemField(ctx context.Context, input UpdateFieldInput) (bool, error)
	DeleteItem(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) error
	ReorderItems(ctx context.Context, kind enums.LedgerKind, orderID int64, entries []SortEntry) error
	ListItems(ctx context.Context, kind enums.LedgerKind, orderID int64) ([]models.LedgerItem, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	idem    IdempotencyStore
	idemTTL time.Duration
	logg    *logger.Logger
}

// Options carries the optional service dependencies.
type Options struct {
	Idempotency    IdempotencyStore
	IdempotencyTTL time.Duration
	Logger         *logger.Logger
}

// NewService builds a ledger items service.
func NewService(repo Repository, tx txRunner, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("items repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}
	return &service{
		repo:    repo,
		tx:      tx,
		idem:    opts.Idempotency,
		idemTTL: opts.IdempotencyTTL,
		logg:    opts.Logger,
	}, nil
}

// CreateItem inserts a new row seeded with its product name at the tail of
// the ledger. A replayed idempotency key returns the originally created row.
func (s *service) CreateItem(ctx context.Context, input CreateItemInput) (*models.LedgerItem, error) {
	if err := validateScope(input.Kind, input.OrderID); err != nil {
		return nil, err
	}
	if input.Field != enums.ItemFieldProductName {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a new item is seeded with its product name")
	}
	name := strings.TrimSpace(input.Value)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name cannot be empty")
	}

	if existing := s.replayedItem(ctx, input); existing != nil {
		return existing, nil
	}

	count, err := s.repo.CountByOrder(ctx, input.Kind, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting ledger items")
	}

	item := &models.LedgerItem{
		OrderID:     input.OrderID,
		Kind:        input.Kind,
		ProductName: name,
		Price:       decimal.Zero,
		Quantity:    decimal.Zero,
		SortOrder:   int(count),
	}
	if _, err := s.repo.Insert(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "inserting ledger item")
	}

	s.reserveCreate(ctx, input.IdempotencyKey, item.ID)
	return item, nil
}

// replayedItem resolves an already-claimed idempotency key to its row. A
// redis failure degrades to a plain insert rather than failing the create.
func (s *service) replayedItem(ctx context.Context, input CreateItemInput) *models.LedgerItem {
	if s.idem == nil || input.IdempotencyKey == "" {
		return nil
	}
	id, err := s.idem.CreatedItemID(ctx, input.IdempotencyKey)
	if err != nil {
		if !errors.Is(err, pkgredis.ErrNotFound) && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "idempotency lookup failed")
		}
		return nil
	}
	item, err := s.repo.FindByID(ctx, input.Kind, input.OrderID, id)
	if err != nil {
		return nil
	}
	return item
}

func (s *service) reserveCreate(ctx context.Context, key string, itemID int64) {
	if s.idem == nil || key == "" {
		return
	}
	if _, err := s.idem.ReserveCreate(ctx, key, itemID, s.idemTTL); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "idempotency reservation failed")
	}
}

// UpdateItemField applies one field commit and reports whether the stored
// value actually changed. Unchanged commits are acknowledged without writing.
func (s *service) UpdateItemField(ctx context.Context, input UpdateFieldInput) (bool, error) {
	if err := validateScope(input.Kind, input.OrderID); err != nil {
		return false, err
	}
	if input.ItemID <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if !input.Field.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "unknown field")
	}

	item, err := s.repo.FindByID(ctx, input.Kind, input.OrderID, input.ItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "ledger item not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading ledger item")
	}

	updates, changed, err := buildFieldUpdate(item, input.Field, input.Value)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	if err := s.repo.UpdateColumns(ctx, item.ID, updates); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating ledger item")
	}
	return true, nil
}

// DeleteItem removes the row and closes the sort order gap it leaves.
func (s *service) DeleteItem(ctx context.Context, kind enums.LedgerKind, orderID, itemID int64) error {
	if err := validateScope(kind, orderID); err != nil {
		return err
	}
	if itemID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.Delete(ctx, kind, orderID, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting ledger item")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "ledger item not found")
		}
		return resequence(ctx, repo, kind, orderID)
	})
}

// ReorderItems applies a batched set of (item, rank) pairs atomically. Every
// entry must reference a row of the ledger being reordered.
func (s *service) ReorderItems(ctx context.Context, kind enums.LedgerKind, orderID int64, entries []SortEntry) error {
	if err := validateScope(kind, orderID); err != nil {
		return err
	}
	if len(entries) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reorder entries required")
	}
	seen := make(map[int64]struct{}, len(entries))
	for _, entry := range entries {
		if entry.ItemID <= 0 || entry.SortOrder < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid reorder entry")
		}
		if _, dup := seen[entry.ItemID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate item in reorder")
		}
		seen[entry.ItemID] = struct{}{}
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, entry := range entries {
			affected, err := repo.UpdateSortOrder(ctx, kind, orderID, entry.ItemID, entry.SortOrder)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating sort order")
			}
			if affected == 0 {
				return pkgerrors.New(pkgerrors.CodeNotFound, "ledger item not found")
			}
		}
		return nil
	})
}

// ListItems returns the ledger's rows in display order.
func (s *service) ListItems(ctx context.Context, kind enums.LedgerKind, orderID int64) ([]models.LedgerItem, error) {
	if err := validateScope(kind, orderID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListByOrder(ctx, kind, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing ledger items")
	}
	return list, nil
}

func resequence(ctx context.Context, repo Repository, kind enums.LedgerKind, orderID int64) error {
	remaining, err := repo.ListByOrder(ctx, kind, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing ledger items")
	}
	for rank, item := range remaining {
		if item.SortOrder == rank {
			continue
		}
		if _, err := repo.UpdateSortOrder(ctx, kind, orderID, item.ID, rank); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resequencing ledger items")
		}
	}
	return nil
}

func validateScope(kind enums.LedgerKind, orderID int64) error {
	if !kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown ledger kind")
	}
	if orderID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return nil
}

// buildFieldUpdate maps one committed field value to its column update and
// reports whether the stored value would change. Amount arrives already
// computed on the client and is stored verbatim; sort order only moves
// through reorder.
func buildFieldUpdate(item *models.LedgerItem, field enums.ItemField, value string) (map[string]any, bool, error) {
	switch field {
	case enums.ItemFieldProductName:
		return map[string]any{"product_name": value}, value != item.ProductName, nil

	case enums.ItemFieldPrice:
		d, err := parseNonNegativeDecimal(value, "price")
		if err != nil {
			return nil, false, err
		}
		return map[string]any{"price": d}, !d.Equal(item.Price), nil

	case enums.ItemFieldQuantity:
		d, err := parseNonNegativeDecimal(value, "quantity")
		if err != nil {
			return nil, false, err
		}
		return map[string]any{"quantity": d}, !d.Equal(item.Quantity), nil

	case enums.ItemFieldAmount:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || n < 0 {
			return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a non-negative integer")
		}
		return map[string]any{"amount": n}, n != item.Amount, nil

	case enums.ItemFieldTaxRate:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return map[string]any{"tax_rate": nil}, item.TaxRate != nil, nil
		}
		d, err := decimal.NewFromString(trimmed)
		if err != nil {
			return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "tax rate must be a number")
		}
		if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
			return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "tax rate must be between 0 and 100")
		}
		changed := item.TaxRate == nil || !d.Equal(*item.TaxRate)
		return map[string]any{"tax_rate": d}, changed, nil

	case enums.ItemFieldRemarks:
		return map[string]any{"remarks": value}, value != item.Remarks, nil

	case enums.ItemFieldUnit:
		return map[string]any{"unit": value}, value != item.Unit, nil

	case enums.ItemFieldSortOrder:
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "sort order moves through reorder")
	}
	return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "unknown field")
}

func parseNonNegativeDecimal(value, name string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, pkgerrors.New(pkgerrors.CodeValidation, name+" must be a number")
	}
	if d.IsNegative() {
		return decimal.Decimal{}, pkgerrors.New(pkgerrors.CodeValidation, name+" must not be negative")
	}
	return d, nil
}
