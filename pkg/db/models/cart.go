package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart holds a user's in-progress selection. One open cart per user and
// vendor; checkout converts it into an order with price snapshots.
type Cart struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	VendorID  uuid.UUID  `gorm:"column:vendor_id;type:uuid;not null"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// CartItem persists one selected menu item with its priced options.
type CartItem struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CartID       uuid.UUID       `gorm:"column:cart_id;type:uuid;not null;index"`
	MenuItemID   uuid.UUID       `gorm:"column:menu_item_id;type:uuid;not null"`
	VariationID  *uuid.UUID      `gorm:"column:variation_id;type:uuid"`
	Quantity     int             `gorm:"column:quantity;not null"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineSubtotal decimal.Decimal `gorm:"column:line_subtotal;type:numeric(12,2);not null"`
	Note         *string         `gorm:"column:note"`
	Addons       []CartItemAddon `gorm:"foreignKey:CartItemID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// CartItemAddon snapshots a chosen addon's name and price at selection time.
type CartItemAddon struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CartItemID uuid.UUID       `gorm:"column:cart_item_id;type:uuid;not null;index"`
	AddonID    uuid.UUID       `gorm:"column:addon_id;type:uuid;not null"`
	Name       string          `gorm:"column:name;not null"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
}
