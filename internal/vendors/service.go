package vendors

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/pagination"
	"github.com/forkline-app/forkline-backend/pkg/types"
)

// CreateInput is the payload for onboarding a vendor.
type CreateInput struct {
	OwnerUserID uuid.UUID
	Name        string
	Type        enums.VendorType
	Description *string
	Phone       *string
	AddressLine string
	City        string
	Lat         float64
	Lng         float64
	Categories  []string
	LogoURL     *string
}

// UpdateInput carries the mutable vendor fields. Nil means keep.
type UpdateInput struct {
	Name        *string
	Description *string
	Phone       *string
	AddressLine *string
	City        *string
	Categories  []string
	LogoURL     *string
}

// VendorPage is one page of a vendor listing.
type VendorPage struct {
	Vendors    []models.Vendor `json:"vendors"`
	NextCursor *string         `json:"next_cursor,omitempty"`
}

// Service manages vendor storefronts.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Vendor, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	GetByOwner(ctx context.Context, ownerUserID uuid.UUID) (*models.Vendor, error)
	Update(ctx context.Context, ownerUserID, vendorID uuid.UUID, input UpdateInput) (*models.Vendor, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (*VendorPage, error)
	SetOpen(ctx context.Context, ownerUserID, vendorID uuid.UUID, open bool) error
	SetCommissionRate(ctx context.Context, vendorID uuid.UUID, rate *decimal.Decimal) error
}

type service struct {
	repo Repository
}

// NewService builds the vendor service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("vendor repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Vendor, error) {
	if input.OwnerUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner user id is required")
	}
	if input.Name == "" || input.AddressLine == "" || input.City == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name, address, and city are required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid vendor type")
	}
	if _, err := s.repo.FindByOwner(ctx, input.OwnerUserID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "owner already has a vendor")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}

	vendor := &models.Vendor{
		OwnerUserID: input.OwnerUserID,
		Name:        input.Name,
		Type:        input.Type,
		Description: input.Description,
		Phone:       input.Phone,
		AddressLine: input.AddressLine,
		City:        input.City,
		Location:    types.GeographyPoint{Lat: input.Lat, Lng: input.Lng},
		IsOpen:      true,
		Categories:  pq.StringArray(input.Categories),
		LogoURL:     input.LogoURL,
	}
	if err := s.repo.Create(ctx, vendor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create vendor")
	}
	return vendor, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	vendor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	return vendor, nil
}

func (s *service) GetByOwner(ctx context.Context, ownerUserID uuid.UUID) (*models.Vendor, error) {
	vendor, err := s.repo.FindByOwner(ctx, ownerUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	return vendor, nil
}

func (s *service) Update(ctx context.Context, ownerUserID, vendorID uuid.UUID, input UpdateInput) (*models.Vendor, error) {
	vendor, err := s.ownedVendor(ctx, ownerUserID, vendorID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		vendor.Name = *input.Name
	}
	if input.Description != nil {
		vendor.Description = input.Description
	}
	if input.Phone != nil {
		vendor.Phone = input.Phone
	}
	if input.AddressLine != nil {
		vendor.AddressLine = *input.AddressLine
	}
	if input.City != nil {
		vendor.City = *input.City
	}
	if input.Categories != nil {
		vendor.Categories = pq.StringArray(input.Categories)
	}
	if input.LogoURL != nil {
		vendor.LogoURL = input.LogoURL
	}

	if err := s.repo.Update(ctx, vendor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update vendor")
	}
	return vendor, nil
}

func (s *service) List(ctx context.Context, filter ListFilter, params pagination.Params) (*VendorPage, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	vendors, err := s.repo.List(ctx, filter, cursor, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendors")
	}

	page := &VendorPage{}
	if len(vendors) > limit {
		vendors = vendors[:limit]
		last := vendors[len(vendors)-1]
		next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		page.NextCursor = &next
	}
	page.Vendors = vendors
	return page, nil
}

func (s *service) SetOpen(ctx context.Context, ownerUserID, vendorID uuid.UUID, open bool) error {
	if _, err := s.ownedVendor(ctx, ownerUserID, vendorID); err != nil {
		return err
	}
	if err := s.repo.SetOpen(ctx, vendorID, open); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update vendor open state")
	}
	return nil
}

// SetCommissionRate sets or clears the vendor-level commission override.
// The rate applies to orders placed after the change; placed orders keep
// their snapshotted rate.
func (s *service) SetCommissionRate(ctx context.Context, vendorID uuid.UUID, rate *decimal.Decimal) error {
	vendor, err := s.Get(ctx, vendorID)
	if err != nil {
		return err
	}
	if rate != nil && (rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1))) {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 1")
	}
	vendor.CommissionRate = rate
	if err := s.repo.Update(ctx, vendor); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update vendor")
	}
	return nil
}

func (s *service) ownedVendor(ctx context.Context, ownerUserID, vendorID uuid.UUID) (*models.Vendor, error) {
	vendor, err := s.Get(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if vendor.OwnerUserID != ownerUserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor belongs to another owner")
	}
	return vendor, nil
}
