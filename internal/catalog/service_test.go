package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/pagination"
)

type fakeRepository struct {
	Repository
	items map[uuid.UUID]*models.MenuItem
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{items: make(map[uuid.UUID]*models.MenuItem)}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) FindMenuItemByID(ctx context.Context, id uuid.UUID) (*models.MenuItem, error) {
	if item, ok := f.items[id]; ok {
		return item, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) CreateMenuItem(ctx context.Context, item *models.MenuItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	f.items[item.ID] = item
	return nil
}

func (f *fakeRepository) ListMenuItemsByVendor(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.MenuItem, error) {
	var items []models.MenuItem
	for _, item := range f.items {
		if item.VendorID == vendorID {
			items = append(items, *item)
		}
	}
	return items, nil
}

// burgerItem has a base price, one variation, and one bounded sauce group.
func burgerItem() *models.MenuItem {
	itemID := uuid.New()
	groupID := uuid.New()
	return &models.MenuItem{
		ID:          itemID,
		VendorID:    uuid.New(),
		Name:        "Burger",
		Price:       decimal.RequireFromString("5.00"),
		IsAvailable: true,
		Variations: []models.ItemVariation{
			{ID: uuid.New(), MenuItemID: itemID, Name: "Large", PriceDelta: decimal.RequireFromString("2.00")},
		},
		AddonGroups: []models.AddonGroup{
			{
				ID:         groupID,
				MenuItemID: itemID,
				Name:       "Sauces",
				MinSelect:  0,
				MaxSelect:  1,
				Addons: []models.Addon{
					{ID: uuid.New(), AddonGroupID: groupID, Name: "Mayo", Price: decimal.RequireFromString("1.50"), IsAvailable: true},
					{ID: uuid.New(), AddonGroupID: groupID, Name: "Ketchup", Price: decimal.RequireFromString("0.50"), IsAvailable: true},
				},
			},
		},
	}
}

func newCatalogService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc
}

func TestPriceSelectionBaseAndAddon(t *testing.T) {
	repo := newFakeRepository()
	item := burgerItem()
	repo.items[item.ID] = item
	svc := newCatalogService(t, repo)

	priced, err := svc.PriceSelection(context.Background(), Selection{
		MenuItemID: item.ID,
		AddonIDs:   []uuid.UUID{item.AddonGroups[0].Addons[0].ID},
		Quantity:   2,
	})
	if err != nil {
		t.Fatalf("price selection failed: %v", err)
	}
	if !priced.UnitPrice.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("unit price: %s", priced.UnitPrice)
	}
	if !priced.AddonsTotal.Equal(decimal.RequireFromString("1.50")) {
		t.Fatalf("addons total: %s", priced.AddonsTotal)
	}
	// Two burgers at 5.00 plus one 1.50 addon for the line, not per unit.
	if !priced.LineTotal.Equal(decimal.RequireFromString("11.50")) {
		t.Fatalf("line total: %s", priced.LineTotal)
	}
}

func TestPriceSelectionWithVariation(t *testing.T) {
	repo := newFakeRepository()
	item := burgerItem()
	repo.items[item.ID] = item
	svc := newCatalogService(t, repo)

	priced, err := svc.PriceSelection(context.Background(), Selection{
		MenuItemID:  item.ID,
		VariationID: &item.Variations[0].ID,
		Quantity:    1,
	})
	if err != nil {
		t.Fatalf("price selection failed: %v", err)
	}
	if !priced.UnitPrice.Equal(decimal.RequireFromString("7.00")) {
		t.Fatalf("unit price: %s", priced.UnitPrice)
	}
}

func TestPriceSelectionRejectsOverMax(t *testing.T) {
	repo := newFakeRepository()
	item := burgerItem()
	repo.items[item.ID] = item
	svc := newCatalogService(t, repo)

	_, err := svc.PriceSelection(context.Background(), Selection{
		MenuItemID: item.ID,
		AddonIDs: []uuid.UUID{
			item.AddonGroups[0].Addons[0].ID,
			item.AddonGroups[0].Addons[1].ID,
		},
		Quantity: 1,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPriceSelectionRejectsUnderMin(t *testing.T) {
	repo := newFakeRepository()
	item := burgerItem()
	item.AddonGroups[0].MinSelect = 1
	repo.items[item.ID] = item
	svc := newCatalogService(t, repo)

	_, err := svc.PriceSelection(context.Background(), Selection{
		MenuItemID: item.ID,
		Quantity:   1,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPriceSelectionRejectsForeignAddon(t *testing.T) {
	repo := newFakeRepository()
	item := burgerItem()
	repo.items[item.ID] = item
	svc := newCatalogService(t, repo)

	_, err := svc.PriceSelection(context.Background(), Selection{
		MenuItemID: item.ID,
		AddonIDs:   []uuid.UUID{uuid.New()},
		Quantity:   1,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPriceSelectionRejectsUnavailableItem(t *testing.T) {
	repo := newFakeRepository()
	item := burgerItem()
	item.IsAvailable = false
	repo.items[item.ID] = item
	svc := newCatalogService(t, repo)

	_, err := svc.PriceSelection(context.Background(), Selection{MenuItemID: item.ID, Quantity: 1})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCreateMenuItemValidatesBounds(t *testing.T) {
	svc := newCatalogService(t, newFakeRepository())

	_, err := svc.CreateMenuItem(context.Background(), CreateMenuItemInput{
		VendorID: uuid.New(),
		Name:     "Pizza",
		Price:    decimal.RequireFromString("9.00"),
		AddonGroups: []AddonGroupInput{
			{Name: "Toppings", MinSelect: 3, MaxSelect: 1},
		},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
