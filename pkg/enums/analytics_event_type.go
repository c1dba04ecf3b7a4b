package enums

import "fmt"

// AnalyticsEventType is the canonical event_type for analytics routing.
type AnalyticsEventType string

const (
	AnalyticsEventOrderPlaced     AnalyticsEventType = "order_placed"
	AnalyticsEventOrderAccepted   AnalyticsEventType = "order_accepted"
	AnalyticsEventOrderRejected   AnalyticsEventType = "order_rejected"
	AnalyticsEventOrderCancelled  AnalyticsEventType = "order_cancelled"
	AnalyticsEventOrderDelivered  AnalyticsEventType = "order_delivered"
	AnalyticsEventRefundIssued    AnalyticsEventType = "refund_issued"
	AnalyticsEventSettlementDone  AnalyticsEventType = "settlement_completed"
	AnalyticsEventRiderAssigned   AnalyticsEventType = "rider_assigned"
	AnalyticsEventWalletTopUp     AnalyticsEventType = "wallet_top_up"
	AnalyticsEventWalletWithdrawn AnalyticsEventType = "wallet_withdrawal"
)

var validAnalyticsEventTypes = []AnalyticsEventType{
	AnalyticsEventOrderPlaced,
	AnalyticsEventOrderAccepted,
	AnalyticsEventOrderRejected,
	AnalyticsEventOrderCancelled,
	AnalyticsEventOrderDelivered,
	AnalyticsEventRefundIssued,
	AnalyticsEventSettlementDone,
	AnalyticsEventRiderAssigned,
	AnalyticsEventWalletTopUp,
	AnalyticsEventWalletWithdrawn,
}

// IsValid reports whether the value matches the canonical analytics event_type enum.
func (a AnalyticsEventType) IsValid() bool {
	for _, candidate := range validAnalyticsEventTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAnalyticsEventType converts the raw string to AnalyticsEventType.
func ParseAnalyticsEventType(value string) (AnalyticsEventType, error) {
	for _, candidate := range validAnalyticsEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid analytics event type %q", value)
}
