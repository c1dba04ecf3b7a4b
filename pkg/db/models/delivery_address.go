package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forkline-app/forkline-backend/pkg/types"
)

// DeliveryAddress is a saved drop-off location belonging to a user.
type DeliveryAddress struct {
	ID        uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	Label     string               `gorm:"column:label;not null"`
	Street    string               `gorm:"column:street;not null"`
	City      string               `gorm:"column:city;not null"`
	State     *string              `gorm:"column:state"`
	Location  types.GeographyPoint `gorm:"column:location;type:geography(Point,4326)"`
	IsDefault bool                 `gorm:"column:is_default;not null;default:false"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
