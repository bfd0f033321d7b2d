package enums

import "fmt"

// NotificationSeverity grades user-facing sync notifications.
type NotificationSeverity string

const (
	NotificationSeverityInfo    NotificationSeverity = "info"
	NotificationSeverityWarning NotificationSeverity = "warning"
	NotificationSeverityError   NotificationSeverity = "error"
)

var validNotificationSeverities = []NotificationSeverity{
	NotificationSeverityInfo,
	NotificationSeverityWarning,
	NotificationSeverityError,
}

// String implements fmt.Stringer.
func (s NotificationSeverity) String() string {
	return string(s)
}

// IsValid reports whether the value is a known NotificationSeverity.
func (s NotificationSeverity) IsValid() bool {
	for _, candidate := range validNotificationSeverities {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseNotificationSeverity converts raw input into a NotificationSeverity.
func ParseNotificationSeverity(value string) (NotificationSeverity, error) {
	for _, candidate := range validNotificationSeverities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification severity %q", value)
}
