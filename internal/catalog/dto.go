package catalog

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateMenuItemInput is the payload for adding a catalog entry.
type CreateMenuItemInput struct {
	VendorID        uuid.UUID
	Name            string
	Description     *string
	Price           decimal.Decimal
	Category        *string
	ImageURL        *string
	PrepTimeMinutes int
	Variations      []VariationInput
	AddonGroups     []AddonGroupInput
}

// UpdateMenuItemInput carries the mutable menu item fields. Nil means keep.
type UpdateMenuItemInput struct {
	Name            *string
	Description     *string
	Price           *decimal.Decimal
	Category        *string
	ImageURL        *string
	PrepTimeMinutes *int
}

// VariationInput defines one size or preparation option.
type VariationInput struct {
	Name       string
	PriceDelta decimal.Decimal
}

// AddonGroupInput defines a group of optional extras with selection bounds.
type AddonGroupInput struct {
	Name      string
	MinSelect int
	MaxSelect int
	Addons    []AddonInput
}

// AddonInput defines one selectable extra.
type AddonInput struct {
	Name  string
	Price decimal.Decimal
}

// MenuItemPage is one page of a vendor's menu.
type MenuItemPage struct {
	Items      []MenuItemResponse `json:"items"`
	NextCursor *string            `json:"next_cursor,omitempty"`
}

// MenuItemResponse is the external shape of a catalog entry.
type MenuItemResponse struct {
	ID              uuid.UUID            `json:"id"`
	VendorID        uuid.UUID            `json:"vendor_id"`
	Name            string               `json:"name"`
	Description     *string              `json:"description,omitempty"`
	Price           decimal.Decimal      `json:"price"`
	Category        *string              `json:"category,omitempty"`
	ImageURL        *string              `json:"image_url,omitempty"`
	IsAvailable     bool                 `json:"is_available"`
	PrepTimeMinutes int                  `json:"prep_time_minutes"`
	Variations      []VariationResponse  `json:"variations,omitempty"`
	AddonGroups     []AddonGroupResponse `json:"addon_groups,omitempty"`
}

// VariationResponse is the external shape of an item variation.
type VariationResponse struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

// AddonGroupResponse is the external shape of an addon group.
type AddonGroupResponse struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	MinSelect int             `json:"min_select"`
	MaxSelect int             `json:"max_select"`
	Addons    []AddonResponse `json:"addons,omitempty"`
}

// AddonResponse is the external shape of an addon.
type AddonResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable bool            `json:"is_available"`
}
