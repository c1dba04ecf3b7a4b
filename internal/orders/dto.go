package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/types"
)

// PlaceOrderInput converts the caller's open cart into an order.
type PlaceOrderInput struct {
	AddressID     uuid.UUID           `json:"address_id" validate:"required"`
	PaymentMethod enums.PaymentMethod `json:"payment_method" validate:"required"`
	Note          *string             `json:"note,omitempty" validate:"omitempty,max=500"`
}

// TransitionInput moves an order to its next status. ActorID is the
// authenticated user driving the change; RiderID is required when the
// target status assigns a courier. Location is the rider's position at
// the moment of the transition, recorded on the tracking row.
type TransitionInput struct {
	Target   enums.OrderStatus     `json:"target" validate:"required"`
	Actor    enums.ActorRole       `json:"-"`
	ActorID  uuid.UUID             `json:"-"`
	RiderID  *uuid.UUID            `json:"rider_id,omitempty"`
	Reason   *string               `json:"reason,omitempty" validate:"omitempty,max=500"`
	Location *types.GeographyPoint `json:"-"`
}

// OrderPage is one cursor page of orders.
type OrderPage struct {
	Orders     []OrderResponse `json:"orders"`
	NextCursor *string         `json:"next_cursor,omitempty"`
}

// OrderResponse is the API shape of an order.
type OrderResponse struct {
	ID             uuid.UUID           `json:"id"`
	UserID         uuid.UUID           `json:"user_id"`
	VendorID       uuid.UUID           `json:"vendor_id"`
	RiderID        *uuid.UUID          `json:"rider_id,omitempty"`
	AddressID      uuid.UUID           `json:"address_id"`
	Status         enums.OrderStatus   `json:"status"`
	PaymentMethod  enums.PaymentMethod `json:"payment_method"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	DeliveryFee    decimal.Decimal     `json:"delivery_fee"`
	Total          decimal.Decimal     `json:"total"`
	RefundedAmount decimal.Decimal     `json:"refunded_amount"`
	Note           *string             `json:"note,omitempty"`
	RejectReason   *string             `json:"reject_reason,omitempty"`
	Items          []OrderItemResponse `json:"items"`
	AcceptedAt     *time.Time          `json:"accepted_at,omitempty"`
	DeliveredAt    *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt    *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// OrderItemResponse is one snapshotted line on an order.
type OrderItemResponse struct {
	ID            uuid.UUID            `json:"id"`
	MenuItemID    uuid.UUID            `json:"menu_item_id"`
	Name          string               `json:"name"`
	VariationName *string              `json:"variation_name,omitempty"`
	UnitPrice     decimal.Decimal      `json:"unit_price"`
	Quantity      int                  `json:"quantity"`
	LineTotal     decimal.Decimal      `json:"line_total"`
	Addons        []OrderAddonResponse `json:"addons,omitempty"`
}

// OrderAddonResponse is one snapshotted addon on an order line.
type OrderAddonResponse struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// TrackingResponse is one entry in an order's audit trail.
type TrackingResponse struct {
	FromStatus *enums.OrderStatus    `json:"from_status,omitempty"`
	ToStatus   enums.OrderStatus     `json:"to_status"`
	ActorRole  enums.ActorRole       `json:"actor_role"`
	Note       *string               `json:"note,omitempty"`
	Location   *types.GeographyPoint `json:"location,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

func toOrderResponse(order *models.Order) *OrderResponse {
	resp := &OrderResponse{
		ID:             order.ID,
		UserID:         order.UserID,
		VendorID:       order.VendorID,
		RiderID:        order.RiderID,
		AddressID:      order.AddressID,
		Status:         order.Status,
		PaymentMethod:  order.PaymentMethod,
		Subtotal:       order.Subtotal,
		DeliveryFee:    order.DeliveryFee,
		Total:          order.Total,
		RefundedAmount: order.RefundedAmount,
		Note:           order.Note,
		RejectReason:   order.RejectReason,
		AcceptedAt:     order.AcceptedAt,
		DeliveredAt:    order.DeliveredAt,
		CancelledAt:    order.CancelledAt,
		CreatedAt:      order.CreatedAt,
	}
	for _, item := range order.Items {
		line := OrderItemResponse{
			ID:            item.ID,
			MenuItemID:    item.MenuItemID,
			Name:          item.Name,
			VariationName: item.VariationName,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			LineTotal:     item.LineTotal,
		}
		for _, addon := range item.Addons {
			line.Addons = append(line.Addons, OrderAddonResponse{Name: addon.Name, Price: addon.Price})
		}
		resp.Items = append(resp.Items, line)
	}
	return resp
}

func toTrackingResponses(rows []models.OrderTracking) []TrackingResponse {
	out := make([]TrackingResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, TrackingResponse{
			FromStatus: row.FromStatus,
			ToStatus:   row.ToStatus,
			ActorRole:  row.ActorRole,
			Note:       row.Note,
			Location:   row.Location,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out
}
