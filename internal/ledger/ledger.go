package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bizmanager/ledgersync/internal/store"
	"github.com/bizmanager/ledgersync/internal/syncer"
	"github.com/bizmanager/ledgersync/pkg/enums"
	pkgerrors "github.com/bizmanager/ledgersync/pkg/errors"
	"github.com/bizmanager/ledgersync/pkg/logger"
	"github.com/bizmanager/ledgersync/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Syncer is the outbound half of the engine: it persists field commits
// asynchronously and reports failures as notifications, never as errors into
// the ledger's synchronous path. Implementations may invoke callbacks inline;
// the ledger never calls a Syncer while holding its own lock.
type Syncer interface {
	CommitField(commit syncer.FieldCommit)
	CreateItem(req syncer.CreateRequest)
	DeleteItem(req syncer.DeleteRequest)
	Reorder(req syncer.ReorderRequest)
}

// Seed hydrates one already-persisted row when a ledger is opened.
type Seed struct {
	RemoteID    int64
	ProductName string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	TaxRate     *decimal.Decimal
	Remarks     string
	Unit        string
}

// Config wires a ledger to its order and its sync dependencies.
type Config struct {
	OrderID int64
	Kind    enums.LedgerKind
	TaxMode enums.TaxMode
	Syncer  Syncer
	Logger  *logger.Logger
	Items   []Seed
}

// Ledger is the ordered collection of line items for one order and one kind.
// Every mutation recomputes the derived aggregates synchronously; network I/O
// happens only behind the Syncer and never blocks an edit.
type Ledger struct {
	orderID int64
	kind    enums.LedgerKind
	mode    enums.TaxMode
	syncer  Syncer
	logg    *logger.Logger

	mu            sync.Mutex
	items         []*LineItem
	totals        money.Aggregates
	addInProgress bool
}

// outbound collects syncer calls built while the lock is held so they can be
// issued after release. A syncer callback that re-enters the ledger would
// otherwise deadlock.
type outbound []func()

func (o outbound) send() {
	for _, fn := range o {
		fn()
	}
}

// New builds a ledger. When no persisted rows are supplied it seeds one empty
// draft row, so a ledger always contains at least one row.
func New(cfg Config) (*Ledger, error) {
	if !cfg.Kind.IsValid() {
		return nil, fmt.Errorf("invalid ledger kind %q", cfg.Kind)
	}
	if !cfg.TaxMode.IsValid() {
		return nil, fmt.Errorf("invalid tax mode %q", cfg.TaxMode)
	}
	if cfg.OrderID <= 0 {
		return nil, fmt.Errorf("order id required")
	}
	if cfg.Syncer == nil {
		return nil, fmt.Errorf("syncer required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.New(logger.Options{ServiceName: "ledger"})
	}

	l := &Ledger{
		orderID: cfg.OrderID,
		kind:    cfg.Kind,
		mode:    cfg.TaxMode,
		syncer:  cfg.Syncer,
		logg:    cfg.Logger,
	}

	for _, seed := range cfg.Items {
		item := &LineItem{
			LocalID:     uuid.New(),
			RemoteID:    seed.RemoteID,
			ProductName: seed.ProductName,
			Price:       clampNonNegative(seed.Price),
			Quantity:    clampNonNegative(seed.Quantity),
			TaxRate:     seed.TaxRate,
			Remarks:     seed.Remarks,
			Unit:        seed.Unit,
			SortOrder:   len(l.items),
			Lifecycle:   enums.ItemLifecyclePersisted,
		}
		item.recomputeAmount()
		l.items = append(l.items, item)
	}
	if len(l.items) == 0 {
		l.addDraftLocked()
	}
	l.recomputeLocked()
	return l, nil
}

// OrderID returns the owning order identity.
func (l *Ledger) OrderID() int64 {
	return l.orderID
}

// Kind returns the ledger kind.
func (l *Ledger) Kind() enums.LedgerKind {
	return l.kind
}

// TaxMode returns the display mode the ledger computes with. Cost ledgers
// still force the inclusive formula internally.
func (l *Ledger) TaxMode() enums.TaxMode {
	return l.mode
}

// Items returns a snapshot of the current rows in display order.
func (l *Ledger) Items() []LineItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LineItem, 0, len(l.items))
	for _, item := range l.items {
		out = append(out, item.clone())
	}
	return out
}

// Totals returns the current derived aggregates.
func (l *Ledger) Totals() money.Aggregates {
	l.mu.Lock()
	defer l.mu.Unlock()
	totals := l.totals
	totals.Buckets = append([]money.TaxBucket(nil), l.totals.Buckets...)
	return totals
}

// AddRow appends a new draft row. Only one unpromoted draft may exist at a
// time; the guard clears when the draft is promoted or deleted.
func (l *Ledger) AddRow() (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.addInProgress {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "a new row is already being added")
	}
	item := l.addDraftLocked()
	l.recomputeLocked()
	return item.LocalID, nil
}

// SetField commits one field edit. The local value is applied and aggregates
// recomputed synchronously; persistence happens asynchronously through the
// syncer. Committing a non-empty name on a draft row triggers promotion.
func (l *Ledger) SetField(localID uuid.UUID, field enums.ItemField, value string) error {
	if !field.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown field")
	}

	var out outbound
	l.mu.Lock()
	err := l.setFieldLocked(localID, field, value, &out)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	out.send()
	return nil
}

func (l *Ledger) setFieldLocked(localID uuid.UUID, field enums.ItemField, value string, out *outbound) error {
	item, err := l.findLocked(localID)
	if err != nil {
		return err
	}
	if !item.Editable(field) {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("field %s is not editable while the row is %s", field, item.Lifecycle))
	}

	switch field {
	case enums.ItemFieldProductName:
		item.ProductName = value
		switch item.Lifecycle {
		case enums.ItemLifecycleDraft:
			if strings.TrimSpace(value) != "" {
				l.promoteLocked(item, out)
			}
		case enums.ItemLifecyclePersisted:
			l.queueCommitLocked(out, item, field, value)
		}
		// While promoting, the edit stays local; completePromotion
		// re-sends the name if it drifted from the created value.

	case enums.ItemFieldPrice:
		item.Price = parseAmountInput(value)
		item.recomputeAmount()
		l.queueCommitLocked(out, item, field, item.Price.String())
		l.queueAmountLocked(out, item)

	case enums.ItemFieldQuantity:
		item.Quantity = parseAmountInput(value)
		item.recomputeAmount()
		l.queueCommitLocked(out, item, field, item.Quantity.String())
		l.queueAmountLocked(out, item)

	case enums.ItemFieldTaxRate:
		rate, err := parseTaxRate(value)
		if err != nil {
			return err
		}
		item.TaxRate = rate
		l.queueCommitLocked(out, item, field, rateWireValue(rate))

	case enums.ItemFieldRemarks:
		item.Remarks = value
		l.queueCommitLocked(out, item, field, value)

	case enums.ItemFieldUnit:
		item.Unit = value
		l.queueCommitLocked(out, item, field, value)
	}

	l.recomputeLocked()
	return nil
}

// DeleteRow removes a row after explicit confirmation. The last remaining row
// can never be deleted. Persisted rows are removed locally only after the
// store confirms the deletion.
func (l *Ledger) DeleteRow(localID uuid.UUID, confirmed bool) error {
	if !confirmed {
		return pkgerrors.New(pkgerrors.CodeValidation, "row deletion requires confirmation")
	}

	var out outbound
	l.mu.Lock()
	err := l.deleteRowLocked(localID, &out)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	out.send()
	return nil
}

func (l *Ledger) deleteRowLocked(localID uuid.UUID, out *outbound) error {
	item, err := l.findLocked(localID)
	if err != nil {
		return err
	}
	if len(l.items) <= 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "a ledger must keep at least one row")
	}

	switch item.Lifecycle {
	case enums.ItemLifecycleDraft:
		l.removeLocked(item.LocalID)
		l.addInProgress = false
		l.recomputeLocked()
		return nil
	case enums.ItemLifecyclePromoting:
		return pkgerrors.New(pkgerrors.CodeValidation, "row creation is still in progress")
	case enums.ItemLifecycleDeleting:
		return nil
	}

	item.Lifecycle = enums.ItemLifecycleDeleting
	id := item.LocalID
	req := syncer.DeleteRequest{
		Kind:     l.kind,
		OrderID:  l.orderID,
		ItemKey:  id.String(),
		RemoteID: item.RemoteID,
		OnSuccess: func() {
			l.completeDelete(id)
		},
		OnFailure: func(error) {
			l.failDelete(id)
		},
	}
	*out = append(*out, func() { l.syncer.DeleteItem(req) })
	return nil
}

// Reorder applies a user-driven permutation of the rows. Sort order is
// recomputed as the dense 0-based rank; only persisted rows are sent to the
// store, in one batched call. On failure the local order stays as dropped.
func (l *Ledger) Reorder(order []uuid.UUID) error {
	l.mu.Lock()

	if len(order) != len(l.items) {
		l.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeValidation, "reorder must include every row exactly once")
	}
	byID := make(map[uuid.UUID]*LineItem, len(l.items))
	for _, item := range l.items {
		byID[item.LocalID] = item
	}

	reordered := make([]*LineItem, 0, len(order))
	var entries []store.SortEntry
	for rank, id := range order {
		item, ok := byID[id]
		if !ok {
			l.mu.Unlock()
			return pkgerrors.New(pkgerrors.CodeValidation, "reorder must include every row exactly once")
		}
		delete(byID, id)
		item.SortOrder = rank
		reordered = append(reordered, item)
		if item.Lifecycle == enums.ItemLifecyclePersisted {
			entries = append(entries, store.SortEntry{ItemID: item.RemoteID, SortOrder: rank})
		}
	}

	l.items = reordered
	l.recomputeLocked()
	l.mu.Unlock()

	if len(entries) > 0 {
		l.syncer.Reorder(syncer.ReorderRequest{
			Kind:    l.kind,
			OrderID: l.orderID,
			Entries: entries,
		})
	}
	return nil
}

func (l *Ledger) addDraftLocked() *LineItem {
	item := &LineItem{
		LocalID:   uuid.New(),
		SortOrder: len(l.items),
		Lifecycle: enums.ItemLifecycleDraft,
	}
	l.items = append(l.items, item)
	l.addInProgress = true
	return item
}

func (l *Ledger) promoteLocked(item *LineItem, out *outbound) {
	item.Lifecycle = enums.ItemLifecyclePromoting
	id := item.LocalID
	sentName := item.ProductName
	req := syncer.CreateRequest{
		Kind:    l.kind,
		OrderID: l.orderID,
		ItemKey: id.String(),
		Field:   enums.ItemFieldProductName,
		Value:   sentName,
		OnSuccess: func(remoteID int64) {
			l.completePromotion(id, remoteID, sentName)
		},
		OnFailure: func(error) {
			l.failPromotion(id)
		},
	}
	*out = append(*out, func() { l.syncer.CreateItem(req) })
}

// completePromotion runs once the store confirms the create. The amount is
// re-sent so the stored value never diverges from the client-computed one,
// and a name that drifted during promotion is synced as a regular commit.
func (l *Ledger) completePromotion(localID uuid.UUID, remoteID int64, sentName string) {
	var out outbound
	l.mu.Lock()
	item := l.lookupLocked(localID)
	if item == nil || item.Lifecycle != enums.ItemLifecyclePromoting {
		l.mu.Unlock()
		return
	}
	item.RemoteID = remoteID
	item.Lifecycle = enums.ItemLifecyclePersisted
	l.addInProgress = false

	l.queueAmountLocked(&out, item)
	if item.TaxRate != nil {
		l.queueCommitLocked(&out, item, enums.ItemFieldTaxRate, rateWireValue(item.TaxRate))
	}
	if item.ProductName != sentName {
		l.queueCommitLocked(&out, item, enums.ItemFieldProductName, item.ProductName)
	}
	l.mu.Unlock()
	out.send()
}

func (l *Ledger) failPromotion(localID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item := l.lookupLocked(localID)
	if item == nil || item.Lifecycle != enums.ItemLifecyclePromoting {
		return
	}
	// Entered values are kept; the user retries by re-committing the name.
	item.Lifecycle = enums.ItemLifecycleDraft
	l.logg.Warn(l.rowCtx(localID), "row creation failed, row reverted to draft")
}

func (l *Ledger) completeDelete(localID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item := l.lookupLocked(localID)
	if item == nil || item.Lifecycle != enums.ItemLifecycleDeleting {
		return
	}
	item.Lifecycle = enums.ItemLifecycleRemoved
	l.removeLocked(localID)
	l.recomputeLocked()
}

func (l *Ledger) failDelete(localID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item := l.lookupLocked(localID)
	if item == nil || item.Lifecycle != enums.ItemLifecycleDeleting {
		return
	}
	item.Lifecycle = enums.ItemLifecyclePersisted
	l.logg.Warn(l.rowCtx(localID), "row deletion failed, row restored")
}

func (l *Ledger) rowCtx(localID uuid.UUID) context.Context {
	ctx := l.logg.WithOrderID(context.Background(), l.orderID)
	ctx = l.logg.WithLedgerKind(ctx, l.kind.String())
	return l.logg.WithItemID(ctx, localID.String())
}

func (l *Ledger) queueCommitLocked(out *outbound, item *LineItem, field enums.ItemField, value string) {
	if item.Lifecycle != enums.ItemLifecyclePersisted {
		return
	}
	commit := syncer.FieldCommit{
		Kind:     l.kind,
		OrderID:  l.orderID,
		ItemKey:  item.LocalID.String(),
		RemoteID: item.RemoteID,
		Field:    field,
		Value:    value,
	}
	*out = append(*out, func() { l.syncer.CommitField(commit) })
}

func (l *Ledger) queueAmountLocked(out *outbound, item *LineItem) {
	l.queueCommitLocked(out, item, enums.ItemFieldAmount, strconv.FormatInt(item.Amount, 10))
}

func (l *Ledger) recomputeLocked() {
	lines := make([]money.Line, 0, len(l.items))
	for _, item := range l.items {
		lines = append(lines, item.taxLine())
	}
	l.totals = money.Compute(lines, l.kind, l.mode)
}

func (l *Ledger) findLocked(localID uuid.UUID) (*LineItem, error) {
	item := l.lookupLocked(localID)
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "row not found")
	}
	return item, nil
}

func (l *Ledger) lookupLocked(localID uuid.UUID) *LineItem {
	for _, item := range l.items {
		if item.LocalID == localID {
			return item
		}
	}
	return nil
}

func (l *Ledger) removeLocked(localID uuid.UUID) {
	kept := l.items[:0]
	for _, item := range l.items {
		if item.LocalID != localID {
			item.SortOrder = len(kept)
			kept = append(kept, item)
		}
	}
	l.items = kept
}

// Profit is the invoice ledger's total with tax less the cost ledger's, the
// cost side always computed inclusive.
func Profit(invoice, cost *Ledger) int64 {
	return money.Profit(invoice.Totals(), cost.Totals())
}

func clampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// parseAmountInput normalizes price/quantity input: blank or non-numeric
// input counts as zero, negatives clamp to zero.
func parseAmountInput(value string) decimal.Decimal {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero
	}
	return clampNonNegative(d)
}

func parseTaxRate(value string) (*decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax rate must be a number")
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax rate must be between 0 and 100")
	}
	return &d, nil
}

func rateWireValue(rate *decimal.Decimal) string {
	if rate == nil {
		return ""
	}
	return rate.String()
}
