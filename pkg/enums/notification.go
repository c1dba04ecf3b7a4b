package enums

import "fmt"

// NotificationEventType routes push payloads published after order changes.
type NotificationEventType string

const (
	NotificationOrderStatusChanged NotificationEventType = "order_status_changed"
	NotificationOrderRefunded      NotificationEventType = "order_refunded"
	NotificationRiderAssigned      NotificationEventType = "rider_assigned"
	NotificationWalletCredited     NotificationEventType = "wallet_credited"
)

var validNotificationEventTypes = []NotificationEventType{
	NotificationOrderStatusChanged,
	NotificationOrderRefunded,
	NotificationRiderAssigned,
	NotificationWalletCredited,
}

// String implements fmt.Stringer.
func (n NotificationEventType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationEventType.
func (n NotificationEventType) IsValid() bool {
	for _, candidate := range validNotificationEventTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationEventType converts raw input into a NotificationEventType.
func ParseNotificationEventType(value string) (NotificationEventType, error) {
	for _, candidate := range validNotificationEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification event type %q", value)
}
