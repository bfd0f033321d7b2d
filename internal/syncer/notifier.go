package syncer

import (
	"github.com/bizmanager/ledgersync/pkg/enums"
	pkgerrors "github.com/bizmanager/ledgersync/pkg/errors"
)

// Notification is the user-visible outcome of an outbound store request.
// Failures never mutate ledger state; they surface here and the user retries
// by re-committing the field.
type Notification struct {
	Severity  enums.NotificationSeverity
	Code      pkgerrors.Code
	Message   string
	Kind      enums.LedgerKind
	ItemKey   string
	Field     enums.ItemField
	Operation string
}

// Notifier receives notifications from the coordinator. Implementations are
// called from request goroutines and must be safe for concurrent use.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}
