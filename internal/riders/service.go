package riders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/types"
)

// Service manages rider dispatch state.
type Service interface {
	Register(ctx context.Context, userID uuid.UUID, vehicleType *string) (*models.Rider, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Rider, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.Rider, error)
	SetStatus(ctx context.Context, id uuid.UUID, status enums.RiderStatus) (*models.Rider, error)
	ReportLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error
	Nearest(ctx context.Context, origin types.GeographyPoint, limit int) ([]RiderDistance, error)
}

// RiderDistance pairs an available rider with their distance from an origin.
type RiderDistance struct {
	Rider      models.Rider `json:"rider"`
	DistanceKM float64      `json:"distance_km"`
}

type service struct {
	repo     Repository
	delivery config.DeliveryConfig
}

// NewService builds the rider service.
func NewService(repo Repository, delivery config.DeliveryConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("rider repository required")
	}
	return &service{repo: repo, delivery: delivery}, nil
}

func (s *service) Register(ctx context.Context, userID uuid.UUID, vehicleType *string) (*models.Rider, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if _, err := s.repo.FindByUserID(ctx, userID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "rider already registered for user")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rider")
	}

	rider := &models.Rider{
		UserID:      userID,
		Status:      enums.RiderStatusOffline,
		VehicleType: vehicleType,
	}
	if err := s.repo.Create(ctx, rider); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create rider")
	}
	return rider, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Rider, error) {
	rider, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rider not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rider")
	}
	return rider, nil
}

func (s *service) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Rider, error) {
	rider, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rider not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rider")
	}
	return rider, nil
}

// SetStatus flips a rider's availability. A rider on an active delivery stays
// BUSY; the delivered transition releases them, not this endpoint.
func (s *service) SetStatus(ctx context.Context, id uuid.UUID, status enums.RiderStatus) (*models.Rider, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid rider status")
	}

	rider, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rider.Status == enums.RiderStatusBusy && status != enums.RiderStatusBusy {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "rider has an active delivery")
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update rider status")
	}
	rider.Status = status
	return rider, nil
}

func (s *service) ReportLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	point := types.GeographyPoint{Lat: lat, Lng: lng}
	if err := s.repo.UpdateLocation(ctx, id, point, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update rider location")
	}
	return nil
}

// Nearest returns AVAILABLE riders within the configured dispatch radius,
// closest first.
func (s *service) Nearest(ctx context.Context, origin types.GeographyPoint, limit int) ([]RiderDistance, error) {
	available, err := s.repo.ListByStatus(ctx, enums.RiderStatusAvailable)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list available riders")
	}

	var result []RiderDistance
	for _, rider := range available {
		distance := origin.DistanceKM(rider.Location)
		if s.delivery.MaxRiderKM > 0 && distance > s.delivery.MaxRiderKM {
			continue
		}
		result = append(result, RiderDistance{Rider: rider, DistanceKM: distance})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DistanceKM < result[j].DistanceKM })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
