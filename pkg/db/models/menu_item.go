package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MenuItem represents a sellable catalog entry owned by a vendor.
type MenuItem struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID        uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null;index"`
	Name            string          `gorm:"column:name;not null"`
	Description     *string         `gorm:"column:description"`
	Price           decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Category        *string         `gorm:"column:category"`
	ImageURL        *string         `gorm:"column:image_url"`
	IsAvailable     bool            `gorm:"column:is_available;not null;default:true"`
	PrepTimeMinutes int             `gorm:"column:prep_time_minutes;not null;default:15"`
	Variations      []ItemVariation `gorm:"foreignKey:MenuItemID;constraint:OnDelete:CASCADE"`
	AddonGroups     []AddonGroup    `gorm:"foreignKey:MenuItemID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// ItemVariation is a size or preparation option priced relative to the base item.
type ItemVariation struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MenuItemID uuid.UUID       `gorm:"column:menu_item_id;type:uuid;not null;index"`
	Name       string          `gorm:"column:name;not null"`
	PriceDelta decimal.Decimal `gorm:"column:price_delta;type:numeric(12,2);not null;default:0"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}
