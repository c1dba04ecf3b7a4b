package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddonGroup bundles optional extras under a menu item with selection bounds.
// MinSelect zero means the group is optional; MaxSelect zero means unbounded.
type AddonGroup struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MenuItemID uuid.UUID `gorm:"column:menu_item_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	MinSelect  int       `gorm:"column:min_select;not null;default:0"`
	MaxSelect  int       `gorm:"column:max_select;not null;default:0"`
	Addons     []Addon   `gorm:"foreignKey:AddonGroupID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Addon is a single selectable extra inside a group.
type Addon struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AddonGroupID uuid.UUID       `gorm:"column:addon_group_id;type:uuid;not null;index"`
	Name         string          `gorm:"column:name;not null"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null;default:0"`
	IsAvailable  bool            `gorm:"column:is_available;not null;default:true"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
