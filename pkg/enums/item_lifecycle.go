package enums

import "fmt"

// ItemLifecycle tracks a line item's state relative to the remote store.
//
// draft → promoting → persisted, and draft|persisted → deleting → removed.
type ItemLifecycle string

const (
	ItemLifecycleDraft     ItemLifecycle = "draft"
	ItemLifecyclePromoting ItemLifecycle = "promoting"
	ItemLifecyclePersisted ItemLifecycle = "persisted"
	ItemLifecycleDeleting  ItemLifecycle = "deleting"
	ItemLifecycleRemoved   ItemLifecycle = "removed"
)

var validItemLifecycles = []ItemLifecycle{
	ItemLifecycleDraft,
	ItemLifecyclePromoting,
	ItemLifecyclePersisted,
	ItemLifecycleDeleting,
	ItemLifecycleRemoved,
}

// String implements fmt.Stringer.
func (l ItemLifecycle) String() string {
	return string(l)
}

// IsValid reports whether the value is a known ItemLifecycle.
func (l ItemLifecycle) IsValid() bool {
	for _, candidate := range validItemLifecycles {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseItemLifecycle converts raw input into an ItemLifecycle.
func ParseItemLifecycle(value string) (ItemLifecycle, error) {
	for _, candidate := range validItemLifecycles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item lifecycle %q", value)
}
