package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/pagination"
)

// Repository manages persistence for menu items and their options.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateMenuItem(ctx context.Context, item *models.MenuItem) error
	UpdateMenuItem(ctx context.Context, item *models.MenuItem) error
	DeleteMenuItem(ctx context.Context, id uuid.UUID) error
	FindMenuItemByID(ctx context.Context, id uuid.UUID) (*models.MenuItem, error)
	ListMenuItemsByVendor(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.MenuItem, error)
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) error
	CreateAddonGroup(ctx context.Context, group *models.AddonGroup) error
	DeleteAddonGroup(ctx context.Context, id uuid.UUID) error
	FindVariation(ctx context.Context, id uuid.UUID) (*models.ItemVariation, error)
	FindAddons(ctx context.Context, ids []uuid.UUID) ([]models.Addon, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateMenuItem(ctx context.Context, item *models.MenuItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) UpdateMenuItem(ctx context.Context, item *models.MenuItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repository) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.MenuItem{}, "id = ?", id).Error
}

func (r *repository) FindMenuItemByID(ctx context.Context, id uuid.UUID) (*models.MenuItem, error) {
	var item models.MenuItem
	err := r.db.WithContext(ctx).
		Preload("Variations").
		Preload("AddonGroups.Addons").
		First(&item, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListMenuItemsByVendor(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.MenuItem, error) {
	query := r.db.WithContext(ctx).
		Preload("Variations").
		Preload("AddonGroups.Addons").
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var items []models.MenuItem
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	return r.db.WithContext(ctx).
		Model(&models.MenuItem{}).
		Where("id = ?", id).
		Update("is_available", available).Error
}

func (r *repository) CreateAddonGroup(ctx context.Context, group *models.AddonGroup) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *repository) DeleteAddonGroup(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.AddonGroup{}, "id = ?", id).Error
}

func (r *repository) FindVariation(ctx context.Context, id uuid.UUID) (*models.ItemVariation, error) {
	var variation models.ItemVariation
	if err := r.db.WithContext(ctx).First(&variation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &variation, nil
}

func (r *repository) FindAddons(ctx context.Context, ids []uuid.UUID) ([]models.Addon, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var addons []models.Addon
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&addons).Error; err != nil {
		return nil, err
	}
	return addons, nil
}
