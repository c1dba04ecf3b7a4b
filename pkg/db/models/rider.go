package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/types"
)

// Rider represents a delivery courier and their live dispatch state.
type Rider struct {
	ID          uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID            `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Status      enums.RiderStatus    `gorm:"column:status;type:text;not null;default:'OFFLINE'"`
	VehicleType *string              `gorm:"column:vehicle_type"`
	Location    types.GeographyPoint `gorm:"column:location;type:geography(Point,4326)"`
	LastSeenAt  *time.Time           `gorm:"column:last_seen_at"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
