package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bizmanager/ledgersync/internal/store"
	"github.com/bizmanager/ledgersync/pkg/enums"
	pkgerrors "github.com/bizmanager/ledgersync/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type updateCall struct {
	itemID int64
	field  enums.ItemField
	value  string
	err    error
}

type stubStore struct {
	mu      sync.Mutex
	updates []updateCall

	createFn  func(ctx context.Context, kind enums.LedgerKind, orderID int64, field enums.ItemField, value, idemKey string) (int64, error)
	updateFn  func(ctx context.Context, itemID int64, field enums.ItemField, value string) (bool, error)
	deleteFn  func(ctx context.Context, itemID int64) error
	reorderFn func(ctx context.Context, entries []store.SortEntry) error
}

func (s *stubStore) CreateItem(ctx context.Context, kind enums.LedgerKind, orderID int64, field enums.ItemField, value, idemKey string) (int64, error) {
	if s.createFn != nil {
		return s.createFn(ctx, kind, orderID, field, value, idemKey)
	}
	return 1, nil
}

func (s *stubStore) UpdateItemField(ctx context.Context, kind enums.LedgerKind, itemID int64, field enums.ItemField, value string, orderID int64) (bool, error) {
	var changed bool
	var err error
	if s.updateFn != nil {
		changed, err = s.updateFn(ctx, itemID, field, value)
	} else {
		changed = true
	}
	s.mu.Lock()
	s.updates = append(s.updates, updateCall{itemID: itemID, field: field, value: value, err: err})
	s.mu.Unlock()
	return changed, err
}

func (s *stubStore) DeleteItem(ctx context.Context, kind enums.LedgerKind, itemID, orderID int64) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, itemID)
	}
	return nil
}

func (s *stubStore) ReorderItems(ctx context.Context, kind enums.LedgerKind, orderID int64, entries []store.SortEntry) error {
	if s.reorderFn != nil {
		return s.reorderFn(ctx, entries)
	}
	return nil
}

func (s *stubStore) appliedUpdates() []updateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]updateCall, 0, len(s.updates))
	for _, u := range s.updates {
		if u.err == nil {
			out = append(out, u)
		}
	}
	return out
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}

func newCoordinator(t *testing.T, st store.Store, notifier Notifier, timeout time.Duration) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(Options{Store: st, Notifier: notifier, RequestTimeout: timeout})
	require.NoError(t, err)
	return c
}

func TestRapidCommitsCoalesce(t *testing.T) {
	firstStarted := make(chan struct{})
	firstCancelled := make(chan struct{})

	st := &stubStore{}
	st.updateFn = func(ctx context.Context, itemID int64, field enums.ItemField, value string) (bool, error) {
		if value == "first" {
			close(firstStarted)
			<-ctx.Done()
			close(firstCancelled)
			return false, ctx.Err()
		}
		return true, nil
	}

	notifier := &recordingNotifier{}
	c := newCoordinator(t, st, notifier, 5*time.Second)

	commit := FieldCommit{
		Kind:     enums.LedgerKindInvoice,
		OrderID:  42,
		ItemKey:  "item-1",
		RemoteID: 9,
		Field:    enums.ItemFieldPrice,
	}

	commit.Value = "first"
	c.CommitField(commit)
	<-firstStarted

	commit.Value = "second"
	c.CommitField(commit)

	select {
	case <-firstCancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("first request was not cancelled")
	}
	c.Wait()

	applied := st.appliedUpdates()
	require.Len(t, applied, 1)
	assert.Equal(t, "second", applied[0].value)

	// The cancelled predecessor must not surface a failure notification.
	for _, n := range notifier.all() {
		assert.NotEqual(t, enums.NotificationSeverityError, n.Severity)
	}
}

func TestDifferentKeysRunIndependently(t *testing.T) {
	release := make(chan struct{})
	st := &stubStore{}
	st.updateFn = func(ctx context.Context, itemID int64, field enums.ItemField, value string) (bool, error) {
		if field == enums.ItemFieldPrice {
			<-release
		}
		return true, nil
	}

	c := newCoordinator(t, st, nil, 5*time.Second)

	c.CommitField(FieldCommit{Kind: enums.LedgerKindInvoice, OrderID: 42, ItemKey: "item-1", RemoteID: 9, Field: enums.ItemFieldPrice, Value: "10"})
	c.CommitField(FieldCommit{Kind: enums.LedgerKindInvoice, OrderID: 42, ItemKey: "item-1", RemoteID: 9, Field: enums.ItemFieldRemarks, Value: "rush"})

	deadline := time.After(2 * time.Second)
	for {
		if len(st.appliedUpdates()) >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("independent key was blocked")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(release)
	c.Wait()
	assert.Len(t, st.appliedUpdates(), 2)
}

func TestTimeoutSurfacesNotificationWithoutRetry(t *testing.T) {
	var calls int
	var mu sync.Mutex
	st := &stubStore{}
	st.updateFn = func(ctx context.Context, itemID int64, field enums.ItemField, value string) (bool, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-ctx.Done()
		return false, ctx.Err()
	}

	notifier := &recordingNotifier{}
	c := newCoordinator(t, st, notifier, 20*time.Millisecond)

	c.CommitField(FieldCommit{Kind: enums.LedgerKindInvoice, OrderID: 42, ItemKey: "item-1", RemoteID: 9, Field: enums.ItemFieldPrice, Value: "10"})
	c.Wait()

	notifications := notifier.all()
	require.Len(t, notifications, 1)
	assert.Equal(t, pkgerrors.CodeTimeout, notifications[0].Code)
	assert.Equal(t, enums.NotificationSeverityError, notifications[0].Severity)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestPermissionFailureIsDistinct(t *testing.T) {
	st := &stubStore{}
	st.updateFn = func(ctx context.Context, itemID int64, field enums.ItemField, value string) (bool, error) {
		return false, pkgerrors.New(pkgerrors.CodeForbidden, "permission denied")
	}

	notifier := &recordingNotifier{}
	c := newCoordinator(t, st, notifier, time.Second)

	c.CommitField(FieldCommit{Kind: enums.LedgerKindInvoice, OrderID: 42, ItemKey: "item-1", RemoteID: 9, Field: enums.ItemFieldPrice, Value: "10"})
	c.Wait()

	notifications := notifier.all()
	require.Len(t, notifications, 1)
	assert.Equal(t, pkgerrors.CodeForbidden, notifications[0].Code)
	assert.Contains(t, notifications[0].Message, "permission")
}

func TestChangedUpdateNotifiesSaved(t *testing.T) {
	st := &stubStore{}
	st.updateFn = func(ctx context.Context, itemID int64, field enums.ItemField, value string) (bool, error) {
		return value == "new", nil
	}

	notifier := &recordingNotifier{}
	c := newCoordinator(t, st, notifier, time.Second)

	c.CommitField(FieldCommit{Kind: enums.LedgerKindInvoice, OrderID: 42, ItemKey: "item-1", RemoteID: 9, Field: enums.ItemFieldUnit, Value: "unchanged-value"})
	c.Wait()
	assert.Empty(t, notifier.all())

	c.CommitField(FieldCommit{Kind: enums.LedgerKindInvoice, OrderID: 42, ItemKey: "item-1", RemoteID: 9, Field: enums.ItemFieldUnit, Value: "new"})
	c.Wait()

	notifications := notifier.all()
	require.Len(t, notifications, 1)
	assert.Equal(t, enums.NotificationSeverityInfo, notifications[0].Severity)
}

func TestCreateCallbacks(t *testing.T) {
	st := &stubStore{}
	st.createFn = func(ctx context.Context, kind enums.LedgerKind, orderID int64, field enums.ItemField, value, idemKey string) (int64, error) {
		assert.Equal(t, "item-1", idemKey)
		return 55, nil
	}

	c := newCoordinator(t, st, nil, time.Second)

	var gotID int64
	done := make(chan struct{})
	c.CreateItem(CreateRequest{
		Kind:    enums.LedgerKindInvoice,
		OrderID: 42,
		ItemKey: "item-1",
		Field:   enums.ItemFieldProductName,
		Value:   "widget",
		OnSuccess: func(remoteID int64) {
			gotID = remoteID
			close(done)
		},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("create success callback not invoked")
	}
	assert.Equal(t, int64(55), gotID)
}

func TestCreateFailureInvokesOnFailure(t *testing.T) {
	st := &stubStore{}
	st.createFn = func(ctx context.Context, kind enums.LedgerKind, orderID int64, field enums.ItemField, value, idemKey string) (int64, error) {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "store down")
	}

	notifier := &recordingNotifier{}
	c := newCoordinator(t, st, notifier, time.Second)

	failed := make(chan error, 1)
	c.CreateItem(CreateRequest{
		Kind:    enums.LedgerKindInvoice,
		OrderID: 42,
		ItemKey: "item-1",
		Field:   enums.ItemFieldProductName,
		Value:   "widget",
		OnFailure: func(err error) {
			failed <- err
		},
	})

	select {
	case err := <-failed:
		assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("create failure callback not invoked")
	}
	c.Wait()
	require.Len(t, notifier.all(), 1)
}

func TestReorderCoalescesPerLedger(t *testing.T) {
	firstStarted := make(chan struct{})
	var mu sync.Mutex
	var applied [][]store.SortEntry

	st := &stubStore{}
	var once sync.Once
	st.reorderFn = func(ctx context.Context, entries []store.SortEntry) error {
		var first bool
		once.Do(func() { first = true })
		if first {
			close(firstStarted)
			<-ctx.Done()
			return ctx.Err()
		}
		mu.Lock()
		applied = append(applied, entries)
		mu.Unlock()
		return nil
	}

	c := newCoordinator(t, st, nil, 5*time.Second)

	c.Reorder(ReorderRequest{Kind: enums.LedgerKindInvoice, OrderID: 42, Entries: []store.SortEntry{{ItemID: 1, SortOrder: 0}}})
	<-firstStarted
	second := []store.SortEntry{{ItemID: 1, SortOrder: 1}, {ItemID: 2, SortOrder: 0}}
	c.Reorder(ReorderRequest{Kind: enums.LedgerKindInvoice, OrderID: 42, Entries: second})
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, applied, 1)
	assert.Equal(t, second, applied[0])
}
