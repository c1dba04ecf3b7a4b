package addresses

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/types"
)

// CreateInput is the payload for saving a delivery address.
type CreateInput struct {
	Label     string
	Street    string
	City      string
	State     *string
	Lat       float64
	Lng       float64
	IsDefault bool
}

// Service manages a user's saved delivery addresses.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.DeliveryAddress, error)
	Get(ctx context.Context, userID, addressID uuid.UUID) (*models.DeliveryAddress, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.DeliveryAddress, error)
	SetDefault(ctx context.Context, userID, addressID uuid.UUID) error
	Delete(ctx context.Context, userID, addressID uuid.UUID) error
}

type service struct {
	repo Repository
}

// NewService builds the address service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.DeliveryAddress, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Label == "" || input.Street == "" || input.City == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "label, street, and city are required")
	}
	if input.Lat < -90 || input.Lat > 90 || input.Lng < -180 || input.Lng > 180 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}

	if input.IsDefault {
		if err := s.repo.ClearDefault(ctx, userID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
		}
	}

	address := &models.DeliveryAddress{
		UserID:    userID,
		Label:     input.Label,
		Street:    input.Street,
		City:      input.City,
		State:     input.State,
		Location:  types.GeographyPoint{Lat: input.Lat, Lng: input.Lng},
		IsDefault: input.IsDefault,
	}
	if err := s.repo.Create(ctx, address); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create address")
	}
	return address, nil
}

func (s *service) Get(ctx context.Context, userID, addressID uuid.UUID) (*models.DeliveryAddress, error) {
	address, err := s.repo.FindByIDAndUser(ctx, addressID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	return address, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.DeliveryAddress, error) {
	result, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}
	return result, nil
}

func (s *service) SetDefault(ctx context.Context, userID, addressID uuid.UUID) error {
	address, err := s.Get(ctx, userID, addressID)
	if err != nil {
		return err
	}
	if err := s.repo.ClearDefault(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
	}
	address.IsDefault = true
	if err := s.repo.Update(ctx, address); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update address")
	}
	return nil
}

func (s *service) Delete(ctx context.Context, userID, addressID uuid.UUID) error {
	if _, err := s.Get(ctx, userID, addressID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, addressID, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete address")
	}
	return nil
}
