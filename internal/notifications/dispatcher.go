package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/pubsub"
)

const publishTimeout = 10 * time.Second

// publishFunc sends one message to the notification topic.
type publishFunc func(ctx context.Context, data []byte, attributes map[string]string) error

// Dispatcher emits notification events after committed transitions. Every
// method is best-effort: failures are logged and never propagate back into
// the settlement path.
type Dispatcher interface {
	OrderStatusChanged(ctx context.Context, order *models.Order, from, to enums.OrderStatus)
	OrderRefunded(ctx context.Context, order *models.Order, amount decimal.Decimal)
	RiderAssigned(ctx context.Context, order *models.Order, riderID uuid.UUID)
	WalletCredited(ctx context.Context, entry *models.LedgerEntry)
}

type dispatcher struct {
	publish publishFunc
	log     *logger.Logger
}

// NewDispatcher wires a dispatcher onto the notification topic publisher.
func NewDispatcher(client *pubsub.Client, log *logger.Logger) (Dispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client required")
	}
	pub := client.NotificationPublisher()
	return &dispatcher{
		publish: func(ctx context.Context, data []byte, attributes map[string]string) error {
			publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			defer cancel()
			result := pub.Publish(publishCtx, &gcppubsub.Message{Data: data, Attributes: attributes})
			_, err := result.Get(publishCtx)
			return err
		},
		log: log,
	}, nil
}

// NewNoopDispatcher returns a dispatcher that drops every event. Used when
// the deployment runs without Pub/Sub.
func NewNoopDispatcher() Dispatcher {
	return &dispatcher{publish: func(context.Context, []byte, map[string]string) error { return nil }}
}

type envelope struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

func (d *dispatcher) OrderStatusChanged(ctx context.Context, order *models.Order, from, to enums.OrderStatus) {
	d.emit(ctx, enums.NotificationOrderStatusChanged, map[string]any{
		"order_id":    order.ID.String(),
		"user_id":     order.UserID.String(),
		"vendor_id":   order.VendorID.String(),
		"from_status": string(from),
		"to_status":   string(to),
	})
}

func (d *dispatcher) OrderRefunded(ctx context.Context, order *models.Order, amount decimal.Decimal) {
	d.emit(ctx, enums.NotificationOrderRefunded, map[string]any{
		"order_id": order.ID.String(),
		"user_id":  order.UserID.String(),
		"amount":   amount.String(),
	})
}

func (d *dispatcher) RiderAssigned(ctx context.Context, order *models.Order, riderID uuid.UUID) {
	d.emit(ctx, enums.NotificationRiderAssigned, map[string]any{
		"order_id": order.ID.String(),
		"rider_id": riderID.String(),
		"user_id":  order.UserID.String(),
	})
}

func (d *dispatcher) WalletCredited(ctx context.Context, entry *models.LedgerEntry) {
	d.emit(ctx, enums.NotificationWalletCredited, map[string]any{
		"wallet_id":  entry.WalletID.String(),
		"entry_type": string(entry.EntryType),
		"amount":     entry.Amount.String(),
		"reference":  entry.Reference,
	})
}

func (d *dispatcher) emit(ctx context.Context, eventType enums.NotificationEventType, data map[string]any) {
	payload, err := json.Marshal(envelope{
		EventID:    uuid.NewString(),
		EventType:  string(eventType),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		if d.log != nil {
			d.log.Error(ctx, "marshal notification event", err)
		}
		return
	}

	attributes := map[string]string{"event_type": string(eventType)}
	if err := d.publish(ctx, payload, attributes); err != nil && d.log != nil {
		d.log.Error(ctx, "publish notification event", err)
	}
}
