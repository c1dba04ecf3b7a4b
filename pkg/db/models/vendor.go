package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/types"
)

// Vendor represents a storefront that sells through the marketplace.
type Vendor struct {
	ID             uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerUserID    uuid.UUID            `gorm:"column:owner_user_id;type:uuid;not null"`
	Name           string               `gorm:"column:name;not null"`
	Type           enums.VendorType     `gorm:"column:type;type:text;not null"`
	Description    *string              `gorm:"column:description"`
	Phone          *string              `gorm:"column:phone"`
	AddressLine    string               `gorm:"column:address_line;not null"`
	City           string               `gorm:"column:city;not null"`
	Location       types.GeographyPoint `gorm:"column:location;type:geography(Point,4326)"`
	IsOpen         bool                 `gorm:"column:is_open;not null;default:true"`
	CommissionRate *decimal.Decimal     `gorm:"column:commission_rate;type:numeric(6,4)"`
	Categories     pq.StringArray       `gorm:"column:categories;type:text[]"`
	LogoURL        *string              `gorm:"column:logo_url"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
