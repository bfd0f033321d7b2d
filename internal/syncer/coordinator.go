package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bizmanager/ledgersync/internal/store"
	"github.com/bizmanager/ledgersync/pkg/enums"
	pkgerrors "github.com/bizmanager/ledgersync/pkg/errors"
	"github.com/bizmanager/ledgersync/pkg/logger"
	"github.com/bizmanager/ledgersync/pkg/metrics"
)

const defaultRequestTimeout = 30 * time.Second

const (
	opCreateItem   = "create_item"
	opUpdateField  = "update_field"
	opDeleteItem   = "delete_item"
	opReorderItems = "reorder_items"
)

// Coordinator maps local field commits to store calls with
// at-most-one-in-flight-per-key semantics. A newer commit for the same
// (kind, item, operation) key cancels the outstanding request before issuing
// its own, and a completion that lost its key is dropped, never applied.
type Coordinator struct {
	store    store.Store
	notifier Notifier
	logg     *logger.Logger
	metrics  *metrics.SyncMetrics
	timeout  time.Duration

	mu       sync.Mutex
	seq      uint64
	inflight map[requestKey]*inflightEntry
	wg       sync.WaitGroup
}

type requestKey struct {
	kind enums.LedgerKind
	item string
	op   string
}

type inflightEntry struct {
	seq    uint64
	cancel context.CancelFunc
}

// Options configures a Coordinator. Store is required; everything else is
// optional.
type Options struct {
	Store          store.Store
	Notifier       Notifier
	Logger         *logger.Logger
	Metrics        *metrics.SyncMetrics
	RequestTimeout time.Duration
}

// NewCoordinator wires a coordinator with the provided dependencies.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	return &Coordinator{
		store:    opts.Store,
		notifier: opts.Notifier,
		logg:     opts.Logger,
		metrics:  opts.Metrics,
		timeout:  opts.RequestTimeout,
		inflight: make(map[requestKey]*inflightEntry),
	}, nil
}

// FieldCommit carries one committed field value to the store.
type FieldCommit struct {
	Kind     enums.LedgerKind
	OrderID  int64
	ItemKey  string
	RemoteID int64
	Field    enums.ItemField
	Value    string
}

// CommitField asynchronously persists a single field. The latest commit for a
// key wins; an in-flight predecessor is cancelled first.
func (c *Coordinator) CommitField(commit FieldCommit) {
	key := requestKey{kind: commit.Kind, item: commit.ItemKey, op: commit.Field.String()}
	c.dispatch(key, opUpdateField, commit.ItemKey, commit.Field, func(ctx context.Context) (bool, error) {
		return c.store.UpdateItemField(ctx, commit.Kind, commit.RemoteID, commit.Field, commit.Value, commit.OrderID)
	}, nil, nil)
}

// CreateRequest promotes a draft row to a persisted one. The ledger issues at
// most one create per draft→promoting transition; the item's local identity
// doubles as the store-side idempotency key.
type CreateRequest struct {
	Kind      enums.LedgerKind
	OrderID   int64
	ItemKey   string
	Field     enums.ItemField
	Value     string
	OnSuccess func(remoteID int64)
	OnFailure func(err error)
}

// CreateItem asynchronously creates the remote row seeded with one field.
func (c *Coordinator) CreateItem(req CreateRequest) {
	key := requestKey{kind: req.Kind, item: req.ItemKey, op: req.Field.String()}
	var remoteID int64
	c.dispatch(key, opCreateItem, req.ItemKey, req.Field, func(ctx context.Context) (bool, error) {
		id, err := c.store.CreateItem(ctx, req.Kind, req.OrderID, req.Field, req.Value, req.ItemKey)
		if err != nil {
			return false, err
		}
		remoteID = id
		return false, nil
	}, func() {
		if req.OnSuccess != nil {
			req.OnSuccess(remoteID)
		}
	}, req.OnFailure)
}

// DeleteRequest removes a persisted row.
type DeleteRequest struct {
	Kind      enums.LedgerKind
	OrderID   int64
	ItemKey   string
	RemoteID  int64
	OnSuccess func()
	OnFailure func(err error)
}

// DeleteItem asynchronously deletes the remote row.
func (c *Coordinator) DeleteItem(req DeleteRequest) {
	key := requestKey{kind: req.Kind, item: req.ItemKey, op: "delete"}
	c.dispatch(key, opDeleteItem, req.ItemKey, "", func(ctx context.Context) (bool, error) {
		return false, c.store.DeleteItem(ctx, req.Kind, req.RemoteID, req.OrderID)
	}, req.OnSuccess, req.OnFailure)
}

// ReorderRequest persists a batched set of (item, rank) pairs.
type ReorderRequest struct {
	Kind      enums.LedgerKind
	OrderID   int64
	Entries   []store.SortEntry
	OnFailure func(err error)
}

// Reorder asynchronously persists the new sequence in one call. Consecutive
// reorders of the same ledger coalesce like any other key.
func (c *Coordinator) Reorder(req ReorderRequest) {
	key := requestKey{kind: req.Kind, item: fmt.Sprintf("order:%d", req.OrderID), op: "reorder"}
	c.dispatch(key, opReorderItems, key.item, enums.ItemFieldSortOrder, func(ctx context.Context) (bool, error) {
		return false, c.store.ReorderItems(ctx, req.Kind, req.OrderID, req.Entries)
	}, nil, req.OnFailure)
}

// Wait blocks until every outstanding request goroutine has finished. Useful
// for shutdown and tests; new commits may still be issued afterwards.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// InFlight reports the number of keys with an outstanding request.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func (c *Coordinator) dispatch(key requestKey, operation, itemKey string, field enums.ItemField, call func(ctx context.Context) (bool, error), onSuccess func(), onFailure func(err error)) {
	c.mu.Lock()
	if existing, ok := c.inflight[key]; ok {
		existing.cancel()
		c.metrics.IncCancelled(operation)
	}
	c.seq++
	seq := c.seq
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	c.inflight[key] = &inflightEntry{seq: seq, cancel: cancel}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer cancel()

		start := time.Now()
		changed, err := call(ctx)
		c.metrics.ObserveDuration(operation, time.Since(start))

		if !c.settle(key, seq) {
			// Superseded by a newer commit for the same key. The
			// result, success or failure, must not be applied.
			return
		}

		if err == nil {
			c.metrics.IncCompleted(operation, "ok")
			if operation == opUpdateField && changed {
				c.notify(Notification{
					Severity:  enums.NotificationSeverityInfo,
					Message:   "saved",
					Kind:      key.kind,
					ItemKey:   itemKey,
					Field:     field,
					Operation: operation,
				})
			}
			if onSuccess != nil {
				onSuccess()
			}
			return
		}

		if errors.Is(err, context.Canceled) {
			// Raced between settle and an external cancel; treat as
			// superseded rather than failed.
			c.metrics.IncCompleted(operation, "cancelled")
			return
		}

		c.metrics.IncCompleted(operation, "error")
		failure := c.classify(err)
		if c.logg != nil {
			ctx := c.logg.WithLedgerKind(context.Background(), key.kind.String())
			ctx = c.logg.WithItemID(ctx, itemKey)
			if field != "" {
				ctx = c.logg.WithItemField(ctx, field.String())
			}
			c.logg.Error(ctx, "store request failed", failure)
		}
		c.notify(Notification{
			Severity:  enums.NotificationSeverityError,
			Code:      failure.Code(),
			Message:   failure.Message(),
			Kind:      key.kind,
			ItemKey:   itemKey,
			Field:     field,
			Operation: operation,
		})
		if onFailure != nil {
			onFailure(failure)
		}
	}()
}

// settle reports whether this request is still the authoritative one for its
// key and clears the slot if so.
func (c *Coordinator) settle(key requestKey, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.inflight[key]
	if !ok || current.seq != seq {
		return false
	}
	delete(c.inflight, key)
	return true
}

func (c *Coordinator) classify(err error) *pkgerrors.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "store did not answer in time; the entered value is kept locally")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store request failed")
}

func (c *Coordinator) notify(n Notification) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(n)
}
