package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/api/middleware"
	"github.com/forkline-app/forkline-backend/api/responses"
	"github.com/forkline-app/forkline-backend/api/validators"
	"github.com/forkline-app/forkline-backend/internal/catalog"
	"github.com/forkline-app/forkline-backend/internal/vendors"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/pagination"
)

type menuVariationPayload struct {
	Name       string `json:"name" validate:"required,max=100"`
	PriceDelta string `json:"price_delta" validate:"required"`
}

type menuAddonPayload struct {
	Name  string `json:"name" validate:"required,max=100"`
	Price string `json:"price" validate:"required"`
}

type menuAddonGroupPayload struct {
	Name      string             `json:"name" validate:"required,max=100"`
	MinSelect int                `json:"min_select" validate:"min=0"`
	MaxSelect int                `json:"max_select" validate:"min=0"`
	Addons    []menuAddonPayload `json:"addons" validate:"required,min=1,dive"`
}

type createMenuItemPayload struct {
	Name            string                  `json:"name" validate:"required,max=200"`
	Description     *string                 `json:"description,omitempty" validate:"omitempty,max=2000"`
	Price           string                  `json:"price" validate:"required"`
	Category        *string                 `json:"category,omitempty" validate:"omitempty,max=100"`
	ImageURL        *string                 `json:"image_url,omitempty" validate:"omitempty,url"`
	PrepTimeMinutes int                     `json:"prep_time_minutes" validate:"min=0,max=240"`
	Variations      []menuVariationPayload  `json:"variations,omitempty" validate:"omitempty,dive"`
	AddonGroups     []menuAddonGroupPayload `json:"addon_groups,omitempty" validate:"omitempty,dive"`
}

type updateMenuItemPayload struct {
	Name            *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Description     *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Price           *string `json:"price,omitempty"`
	Category        *string `json:"category,omitempty" validate:"omitempty,max=100"`
	ImageURL        *string `json:"image_url,omitempty" validate:"omitempty,url"`
	PrepTimeMinutes *int    `json:"prep_time_minutes,omitempty" validate:"omitempty,min=0,max=240"`
}

type setAvailabilityPayload struct {
	Available bool `json:"available"`
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "invalid amount").WithDetails(map[string]any{"field": field})
	}
	return value, nil
}

// ownVendorID resolves the vendor owned by the authenticated user.
func ownVendorID(r *http.Request, vendorSvc vendors.Service) (uuid.UUID, error) {
	vendor, err := vendorSvc.GetByOwner(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, err
	}
	return vendor.ID, nil
}

func MenuItemCreate(svc catalog.Service, vendorSvc vendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload createMenuItemPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		vendorID, err := ownVendorID(r, vendorSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		price, err := parseAmount(payload.Price, "price")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := catalog.CreateMenuItemInput{
			VendorID:        vendorID,
			Name:            payload.Name,
			Description:     payload.Description,
			Price:           price,
			Category:        payload.Category,
			ImageURL:        payload.ImageURL,
			PrepTimeMinutes: payload.PrepTimeMinutes,
		}
		for _, variation := range payload.Variations {
			delta, parseErr := parseAmount(variation.PriceDelta, "price_delta")
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, parseErr)
				return
			}
			input.Variations = append(input.Variations, catalog.VariationInput{Name: variation.Name, PriceDelta: delta})
		}
		for _, group := range payload.AddonGroups {
			groupInput := catalog.AddonGroupInput{Name: group.Name, MinSelect: group.MinSelect, MaxSelect: group.MaxSelect}
			for _, addon := range group.Addons {
				addonPrice, parseErr := parseAmount(addon.Price, "price")
				if parseErr != nil {
					responses.WriteError(ctx, logg, w, parseErr)
					return
				}
				groupInput.Addons = append(groupInput.Addons, catalog.AddonInput{Name: addon.Name, Price: addonPrice})
			}
			input.AddonGroups = append(input.AddonGroups, groupInput)
		}

		item, err := svc.CreateMenuItem(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func MenuItemGet(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		itemID, err := validators.ParsePathUUID(chi.URLParam(r, "itemID"), "itemID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		item, err := svc.GetMenuItem(ctx, itemID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, item)
	}
}

func MenuList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		vendorID, err := validators.ParsePathUUID(chi.URLParam(r, "vendorID"), "vendorID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
		page, err := svc.ListMenu(ctx, vendorID, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

func MenuItemUpdate(svc catalog.Service, vendorSvc vendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		itemID, err := validators.ParsePathUUID(chi.URLParam(r, "itemID"), "itemID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload updateMenuItemPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		vendorID, err := ownVendorID(r, vendorSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := catalog.UpdateMenuItemInput{
			Name:            payload.Name,
			Description:     payload.Description,
			Category:        payload.Category,
			ImageURL:        payload.ImageURL,
			PrepTimeMinutes: payload.PrepTimeMinutes,
		}
		if payload.Price != nil {
			price, parseErr := parseAmount(*payload.Price, "price")
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, parseErr)
				return
			}
			input.Price = &price
		}

		item, err := svc.UpdateMenuItem(ctx, vendorID, itemID, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, item)
	}
}

func MenuItemDelete(svc catalog.Service, vendorSvc vendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		itemID, err := validators.ParsePathUUID(chi.URLParam(r, "itemID"), "itemID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		vendorID, err := ownVendorID(r, vendorSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.DeleteMenuItem(ctx, vendorID, itemID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func MenuItemSetAvailability(svc catalog.Service, vendorSvc vendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		itemID, err := validators.ParsePathUUID(chi.URLParam(r, "itemID"), "itemID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload setAvailabilityPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		vendorID, err := ownVendorID(r, vendorSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.SetAvailability(ctx, vendorID, itemID, payload.Available); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"available": payload.Available})
	}
}
