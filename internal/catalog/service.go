package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/pagination"
)

// Service manages a vendor's menu.
type Service interface {
	CreateMenuItem(ctx context.Context, input CreateMenuItemInput) (*models.MenuItem, error)
	UpdateMenuItem(ctx context.Context, vendorID, itemID uuid.UUID, input UpdateMenuItemInput) (*models.MenuItem, error)
	DeleteMenuItem(ctx context.Context, vendorID, itemID uuid.UUID) error
	GetMenuItem(ctx context.Context, itemID uuid.UUID) (*models.MenuItem, error)
	ListMenu(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*MenuItemPage, error)
	SetAvailability(ctx context.Context, vendorID, itemID uuid.UUID, available bool) error
	PriceSelection(ctx context.Context, sel Selection) (*PricedSelection, error)
}

// Selection is a menu item plus chosen variation and addons, as a buyer
// submits it.
type Selection struct {
	MenuItemID  uuid.UUID
	VariationID *uuid.UUID
	AddonIDs    []uuid.UUID
	Quantity    int
}

// PricedSelection is a validated selection with catalog prices resolved.
// LineTotal is UnitPrice times quantity plus AddonsTotal, which counts each
// chosen addon once per line.
type PricedSelection struct {
	Item        *models.MenuItem
	Variation   *models.ItemVariation
	Addons      []models.Addon
	UnitPrice   decimal.Decimal
	AddonsTotal decimal.Decimal
	LineTotal   decimal.Decimal
}

type service struct {
	repo Repository
}

// NewService builds the catalog service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreateMenuItem(ctx context.Context, input CreateMenuItemInput) (*models.MenuItem, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name is required")
	}
	if !input.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "item price must be positive")
	}
	for _, group := range input.AddonGroups {
		if err := validateGroupBounds(group); err != nil {
			return nil, err
		}
	}

	item := &models.MenuItem{
		VendorID:        input.VendorID,
		Name:            input.Name,
		Description:     input.Description,
		Price:           input.Price,
		Category:        input.Category,
		ImageURL:        input.ImageURL,
		IsAvailable:     true,
		PrepTimeMinutes: input.PrepTimeMinutes,
	}
	for _, v := range input.Variations {
		item.Variations = append(item.Variations, models.ItemVariation{
			Name:       v.Name,
			PriceDelta: v.PriceDelta,
		})
	}
	for _, g := range input.AddonGroups {
		group := models.AddonGroup{
			Name:      g.Name,
			MinSelect: g.MinSelect,
			MaxSelect: g.MaxSelect,
		}
		for _, a := range g.Addons {
			group.Addons = append(group.Addons, models.Addon{
				Name:        a.Name,
				Price:       a.Price,
				IsAvailable: true,
			})
		}
		item.AddonGroups = append(item.AddonGroups, group)
	}

	if err := s.repo.CreateMenuItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create menu item")
	}
	return item, nil
}

func (s *service) UpdateMenuItem(ctx context.Context, vendorID, itemID uuid.UUID, input UpdateMenuItemInput) (*models.MenuItem, error) {
	item, err := s.ownedItem(ctx, vendorID, itemID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		item.Name = *input.Name
	}
	if input.Description != nil {
		item.Description = input.Description
	}
	if input.Price != nil {
		if !input.Price.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "item price must be positive")
		}
		item.Price = *input.Price
	}
	if input.Category != nil {
		item.Category = input.Category
	}
	if input.ImageURL != nil {
		item.ImageURL = input.ImageURL
	}
	if input.PrepTimeMinutes != nil {
		item.PrepTimeMinutes = *input.PrepTimeMinutes
	}

	if err := s.repo.UpdateMenuItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update menu item")
	}
	return item, nil
}

func (s *service) DeleteMenuItem(ctx context.Context, vendorID, itemID uuid.UUID) error {
	if _, err := s.ownedItem(ctx, vendorID, itemID); err != nil {
		return err
	}
	if err := s.repo.DeleteMenuItem(ctx, itemID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete menu item")
	}
	return nil
}

func (s *service) GetMenuItem(ctx context.Context, itemID uuid.UUID) (*models.MenuItem, error) {
	item, err := s.repo.FindMenuItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu item")
	}
	return item, nil
}

func (s *service) ListMenu(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*MenuItemPage, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	items, err := s.repo.ListMenuItemsByVendor(ctx, vendorID, cursor, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list menu items")
	}

	page := &MenuItemPage{}
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		page.NextCursor = &next
	}
	for i := range items {
		page.Items = append(page.Items, toMenuItemResponse(&items[i]))
	}
	return page, nil
}

func (s *service) SetAvailability(ctx context.Context, vendorID, itemID uuid.UUID, available bool) error {
	if _, err := s.ownedItem(ctx, vendorID, itemID); err != nil {
		return err
	}
	if err := s.repo.SetAvailability(ctx, itemID, available); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update availability")
	}
	return nil
}

// PriceSelection validates a buyer's selection against the live catalog and
// resolves its price. The unit price is the base (or base plus variation
// delta) and multiplies by quantity; addon prices count once per line, not
// per unit. Addon choices must satisfy each group's min/max-selection bounds.
func (s *service) PriceSelection(ctx context.Context, sel Selection) (*PricedSelection, error) {
	if sel.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	item, err := s.GetMenuItem(ctx, sel.MenuItemID)
	if err != nil {
		return nil, err
	}
	if !item.IsAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "menu item is unavailable")
	}

	unit := item.Price
	var variation *models.ItemVariation
	if sel.VariationID != nil {
		for i := range item.Variations {
			if item.Variations[i].ID == *sel.VariationID {
				variation = &item.Variations[i]
				break
			}
		}
		if variation == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variation does not belong to item")
		}
		unit = unit.Add(variation.PriceDelta)
	}

	addons, err := s.resolveAddons(item, sel.AddonIDs)
	if err != nil {
		return nil, err
	}
	addonsTotal := decimal.Zero
	for _, addon := range addons {
		addonsTotal = addonsTotal.Add(addon.Price)
	}

	return &PricedSelection{
		Item:        item,
		Variation:   variation,
		Addons:      addons,
		UnitPrice:   unit,
		AddonsTotal: addonsTotal,
		LineTotal:   unit.Mul(decimal.NewFromInt(int64(sel.Quantity))).Add(addonsTotal),
	}, nil
}

// resolveAddons maps the chosen addon ids onto the item's groups and checks
// every group's selection bounds.
func (s *service) resolveAddons(item *models.MenuItem, addonIDs []uuid.UUID) ([]models.Addon, error) {
	chosen := make(map[uuid.UUID]bool, len(addonIDs))
	for _, id := range addonIDs {
		if chosen[id] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate addon selection")
		}
		chosen[id] = true
	}

	var resolved []models.Addon
	for _, group := range item.AddonGroups {
		count := 0
		for _, addon := range group.Addons {
			if !chosen[addon.ID] {
				continue
			}
			if !addon.IsAvailable {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "addon is unavailable")
			}
			resolved = append(resolved, addon)
			delete(chosen, addon.ID)
			count++
		}
		if count < group.MinSelect {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("group %q requires at least %d selection(s)", group.Name, group.MinSelect))
		}
		if group.MaxSelect > 0 && count > group.MaxSelect {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("group %q allows at most %d selection(s)", group.Name, group.MaxSelect))
		}
	}
	if len(chosen) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "addon does not belong to item")
	}
	return resolved, nil
}

func (s *service) ownedItem(ctx context.Context, vendorID, itemID uuid.UUID) (*models.MenuItem, error) {
	item, err := s.GetMenuItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "menu item belongs to another vendor")
	}
	return item, nil
}

func validateGroupBounds(group AddonGroupInput) error {
	if group.MinSelect < 0 || group.MaxSelect < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "selection bounds cannot be negative")
	}
	if group.MaxSelect > 0 && group.MinSelect > group.MaxSelect {
		return pkgerrors.New(pkgerrors.CodeValidation, "min selections cannot exceed max selections")
	}
	if group.MinSelect > len(group.Addons) {
		return pkgerrors.New(pkgerrors.CodeValidation, "min selections exceed available addons")
	}
	return nil
}

func toMenuItemResponse(item *models.MenuItem) MenuItemResponse {
	resp := MenuItemResponse{
		ID:              item.ID,
		VendorID:        item.VendorID,
		Name:            item.Name,
		Description:     item.Description,
		Price:           item.Price,
		Category:        item.Category,
		ImageURL:        item.ImageURL,
		IsAvailable:     item.IsAvailable,
		PrepTimeMinutes: item.PrepTimeMinutes,
	}
	for _, v := range item.Variations {
		resp.Variations = append(resp.Variations, VariationResponse{ID: v.ID, Name: v.Name, PriceDelta: v.PriceDelta})
	}
	for _, g := range item.AddonGroups {
		group := AddonGroupResponse{ID: g.ID, Name: g.Name, MinSelect: g.MinSelect, MaxSelect: g.MaxSelect}
		for _, a := range g.Addons {
			group.Addons = append(group.Addons, AddonResponse{ID: a.ID, Name: a.Name, Price: a.Price, IsAvailable: a.IsAvailable})
		}
		resp.AddonGroups = append(resp.AddonGroups, group)
	}
	return resp
}
