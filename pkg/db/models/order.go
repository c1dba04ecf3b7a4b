package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/types"
)

// Order is the lifecycle aggregate. Totals and the commission rate are
// snapshotted at placement and never recomputed from the catalog.
type Order struct {
	ID             uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	VendorID       uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;index"`
	RiderID        *uuid.UUID          `gorm:"column:rider_id;type:uuid;index"`
	AddressID      uuid.UUID           `gorm:"column:address_id;type:uuid;not null"`
	Status         enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'PENDING'"`
	PaymentMethod  enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Subtotal       decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DeliveryFee    decimal.Decimal     `gorm:"column:delivery_fee;type:numeric(12,2);not null;default:0"`
	CommissionRate decimal.Decimal     `gorm:"column:commission_rate;type:numeric(6,4);not null"`
	Total          decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	RefundedAmount decimal.Decimal     `gorm:"column:refunded_amount;type:numeric(12,2);not null;default:0"`
	Note           *string             `gorm:"column:note"`
	RejectReason   *string             `gorm:"column:reject_reason"`
	Items          []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Tracking       []OrderTracking     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	AcceptedAt     *time.Time          `gorm:"column:accepted_at"`
	DeliveredAt    *time.Time          `gorm:"column:delivered_at"`
	CancelledAt    *time.Time          `gorm:"column:cancelled_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem snapshots one purchased line. Names and prices are copied from
// the catalog at checkout so later edits never change a placed order.
type OrderItem struct {
	ID            uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index"`
	MenuItemID    uuid.UUID        `gorm:"column:menu_item_id;type:uuid;not null"`
	Name          string           `gorm:"column:name;not null"`
	VariationName *string          `gorm:"column:variation_name"`
	UnitPrice     decimal.Decimal  `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity      int              `gorm:"column:quantity;not null"`
	LineTotal     decimal.Decimal  `gorm:"column:line_total;type:numeric(12,2);not null"`
	Addons        []OrderItemAddon `gorm:"foreignKey:OrderItemID;constraint:OnDelete:CASCADE"`
}

// OrderItemAddon snapshots a chosen addon on an order line.
type OrderItemAddon struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderItemID uuid.UUID       `gorm:"column:order_item_id;type:uuid;not null;index"`
	Name        string          `gorm:"column:name;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
}

// OrderTracking appends one row per status transition for the audit trail.
// Location is the rider's reported position at the transition, when given.
type OrderTracking struct {
	ID         uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus *enums.OrderStatus    `gorm:"column:from_status;type:text"`
	ToStatus   enums.OrderStatus     `gorm:"column:to_status;type:text;not null"`
	ActorRole  enums.ActorRole       `gorm:"column:actor_role;type:text;not null"`
	ActorID    *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	Note       *string               `gorm:"column:note"`
	Location   *types.GeographyPoint `gorm:"column:location;type:geography(Point,4326)"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
}
