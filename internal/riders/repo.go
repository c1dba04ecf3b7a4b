package riders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/types"
)

// Repository manages persistence for riders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, rider *models.Rider) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Rider, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Rider, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Rider, error)
	ListByStatus(ctx context.Context, status enums.RiderStatus) ([]models.Rider, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.RiderStatus) error
	UpdateLocation(ctx context.Context, id uuid.UUID, location types.GeographyPoint, seenAt time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a rider repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, rider *models.Rider) error {
	return r.db.WithContext(ctx).Create(rider).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Rider, error) {
	var rider models.Rider
	if err := r.db.WithContext(ctx).First(&rider, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rider, nil
}

// FindByIDForUpdate locks the rider row so concurrent assignments serialize.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Rider, error) {
	var rider models.Rider
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rider, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &rider, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Rider, error) {
	var rider models.Rider
	if err := r.db.WithContext(ctx).First(&rider, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &rider, nil
}

func (r *repository) ListByStatus(ctx context.Context, status enums.RiderStatus) ([]models.Rider, error) {
	var result []models.Rider
	if err := r.db.WithContext(ctx).Where("status = ?", status).Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.RiderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Rider{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *repository) UpdateLocation(ctx context.Context, id uuid.UUID, location types.GeographyPoint, seenAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Rider{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"location":     location,
			"last_seen_at": seenAt,
		}).Error
}
