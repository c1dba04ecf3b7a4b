package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/internal/catalog"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
)

// Service manages a user's staging cart. A cart is bound to a single vendor;
// adding an item from another vendor is rejected until the cart is cleared.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*CartResponse, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartResponse, error)
	UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*CartResponse, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*CartResponse, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// AddItemInput is one selection added to the cart.
type AddItemInput struct {
	MenuItemID  uuid.UUID
	VariationID *uuid.UUID
	AddonIDs    []uuid.UUID
	Quantity    int
	Note        *string
}

// CartResponse is the external cart shape with computed totals.
type CartResponse struct {
	ID       uuid.UUID          `json:"id"`
	VendorID uuid.UUID          `json:"vendor_id"`
	Items    []CartItemResponse `json:"items"`
	Subtotal decimal.Decimal    `json:"subtotal"`
}

// CartItemResponse is one cart line with its priced addons.
type CartItemResponse struct {
	ID           uuid.UUID           `json:"id"`
	MenuItemID   uuid.UUID           `json:"menu_item_id"`
	VariationID  *uuid.UUID          `json:"variation_id,omitempty"`
	Quantity     int                 `json:"quantity"`
	UnitPrice    decimal.Decimal     `json:"unit_price"`
	LineSubtotal decimal.Decimal     `json:"line_subtotal"`
	Note         *string             `json:"note,omitempty"`
	Addons       []CartAddonResponse `json:"addons,omitempty"`
}

// CartAddonResponse is one snapshotted addon on a cart line.
type CartAddonResponse struct {
	AddonID uuid.UUID       `json:"addon_id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
}

type service struct {
	repo    Repository
	catalog catalog.Service
}

// NewService builds the cart service.
func NewService(repo Repository, catalogSvc catalog.Service) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogSvc == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	return &service{repo: repo, catalog: catalogSvc}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*CartResponse, error) {
	record, err := s.openCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toCartResponse(record), nil
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartResponse, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	priced, err := s.catalog.PriceSelection(ctx, catalog.Selection{
		MenuItemID:  input.MenuItemID,
		VariationID: input.VariationID,
		AddonIDs:    input.AddonIDs,
		Quantity:    input.Quantity,
	})
	if err != nil {
		return nil, err
	}

	record, err := s.repo.FindOpenByUser(ctx, userID)
	switch {
	case err == nil:
		if record.VendorID != priced.Item.VendorID {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart holds items from another vendor")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		record = &models.Cart{UserID: userID, VendorID: priced.Item.VendorID}
		if err := s.repo.Create(ctx, record); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
		}
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	item := &models.CartItem{
		CartID:       record.ID,
		MenuItemID:   input.MenuItemID,
		VariationID:  input.VariationID,
		Quantity:     input.Quantity,
		UnitPrice:    priced.UnitPrice,
		LineSubtotal: priced.LineTotal,
		Note:         input.Note,
	}
	for _, addon := range priced.Addons {
		item.Addons = append(item.Addons, models.CartItemAddon{
			AddonID: addon.ID,
			Name:    addon.Name,
			Price:   addon.Price,
		})
	}
	if err := s.repo.AddItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}

	return s.Get(ctx, userID)
}

func (s *service) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*CartResponse, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	record, err := s.openCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	item := findItem(record, itemID)
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	// Unit price and addon prices were snapshotted when the line was added;
	// only the quantity and the derived subtotal change here. Addons count
	// once per line regardless of quantity.
	item.Quantity = quantity
	item.LineSubtotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))).Add(addonsTotal(item.Addons))
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	return s.Get(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*CartResponse, error) {
	record, err := s.openCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if findItem(record, itemID) == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	// Count before the delete: the repository may share the loaded slice.
	lastItem := len(record.Items) == 1
	if err := s.repo.RemoveItem(ctx, record.ID, itemID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}

	// Removing the last line removes the cart itself.
	if lastItem {
		if err := s.repo.Delete(ctx, record.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart")
		}
		return &CartResponse{Subtotal: decimal.Zero}, nil
	}
	return s.Get(ctx, userID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	record, err := s.repo.FindOpenByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if err := s.repo.Delete(ctx, record.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart")
	}
	return nil
}

func (s *service) openCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	record, err := s.repo.FindOpenByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return record, nil
}

func findItem(record *models.Cart, itemID uuid.UUID) *models.CartItem {
	for i := range record.Items {
		if record.Items[i].ID == itemID {
			return &record.Items[i]
		}
	}
	return nil
}

func addonsTotal(addons []models.CartItemAddon) decimal.Decimal {
	total := decimal.Zero
	for _, addon := range addons {
		total = total.Add(addon.Price)
	}
	return total
}

// Subtotal sums the cart's line subtotals.
func Subtotal(record *models.Cart) decimal.Decimal {
	total := decimal.Zero
	for _, item := range record.Items {
		total = total.Add(item.LineSubtotal)
	}
	return total
}

func toCartResponse(record *models.Cart) *CartResponse {
	resp := &CartResponse{
		ID:       record.ID,
		VendorID: record.VendorID,
		Subtotal: Subtotal(record),
	}
	for _, item := range record.Items {
		line := CartItemResponse{
			ID:           item.ID,
			MenuItemID:   item.MenuItemID,
			VariationID:  item.VariationID,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineSubtotal: item.LineSubtotal,
			Note:         item.Note,
		}
		for _, addon := range item.Addons {
			line.Addons = append(line.Addons, CartAddonResponse{
				AddonID: addon.AddonID,
				Name:    addon.Name,
				Price:   addon.Price,
			})
		}
		resp.Items = append(resp.Items, line)
	}
	return resp
}
