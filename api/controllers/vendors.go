package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/api/middleware"
	"github.com/forkline-app/forkline-backend/api/responses"
	"github.com/forkline-app/forkline-backend/api/validators"
	"github.com/forkline-app/forkline-backend/internal/vendors"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/pagination"
)

type createVendorPayload struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Type        string   `json:"type" validate:"required"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Phone       *string  `json:"phone,omitempty" validate:"omitempty,max=30"`
	AddressLine string   `json:"address_line" validate:"required,max=300"`
	City        string   `json:"city" validate:"required,max=100"`
	Lat         float64  `json:"lat" validate:"required"`
	Lng         float64  `json:"lng" validate:"required"`
	Categories  []string `json:"categories,omitempty" validate:"omitempty,max=20,dive,max=60"`
	LogoURL     *string  `json:"logo_url,omitempty" validate:"omitempty,url"`
}

type updateVendorPayload struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,max=200"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Phone       *string  `json:"phone,omitempty" validate:"omitempty,max=30"`
	AddressLine *string  `json:"address_line,omitempty" validate:"omitempty,max=300"`
	City        *string  `json:"city,omitempty" validate:"omitempty,max=100"`
	Categories  []string `json:"categories,omitempty" validate:"omitempty,max=20,dive,max=60"`
	LogoURL     *string  `json:"logo_url,omitempty" validate:"omitempty,url"`
}

type setOpenPayload struct {
	Open bool `json:"open"`
}

type setCommissionPayload struct {
	Rate *string `json:"rate"`
}

func VendorCreate(svc vendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload createVendorPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		vendorType, err := enums.ParseVendorType(payload.Type)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor type"))
			return
		}

		vendor, err := svc.Create(ctx, vendors.CreateInput{
			OwnerUserID: middleware.UserIDFromContext(ctx),
			Name:        payload.Name,
			Type:        vendorType,
			Description: payload.Description,
			Phone:       payload.Phone,
			AddressLine: payload.AddressLine,
			City:        payload.City,
			Lat:         payload.Lat,
			Lng:         payload.Lng,
			Categories:  payload.Categories,
			LogoURL:     payload.LogoURL,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, vendor)
	}
}

func VendorGet(svc vendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		vendorID, err := validators.ParsePathUUID(chi.URLParam(r, "vendorID"), "vendorID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		vendor, err := svc.Get(ctx, vendorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, vendor)
	}
}

func VendorMine(svc vendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		vendor, err := svc.GetByOwner(ctx, middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, vendor)
	}
}

func VendorList(svc vendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		filter := vendors.ListFilter{}
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			vendorType, parseErr := enums.ParseVendorType(raw)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid vendor type"))
				return
			}
			filter.Type = &vendorType
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("city")); raw != "" {
			filter.City = &raw
		}
		filter.OpenOnly = r.URL.Query().Get("open") == "true"

		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
		page, err := svc.List(ctx, filter, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

func VendorUpdate(svc vendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		vendorID, err := validators.ParsePathUUID(chi.URLParam(r, "vendorID"), "vendorID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload updateVendorPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		vendor, err := svc.Update(ctx, middleware.UserIDFromContext(ctx), vendorID, vendors.UpdateInput{
			Name:        payload.Name,
			Description: payload.Description,
			Phone:       payload.Phone,
			AddressLine: payload.AddressLine,
			City:        payload.City,
			Categories:  payload.Categories,
			LogoURL:     payload.LogoURL,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, vendor)
	}
}

func VendorSetOpen(svc vendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		vendorID, err := validators.ParsePathUUID(chi.URLParam(r, "vendorID"), "vendorID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload setOpenPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.SetOpen(ctx, middleware.UserIDFromContext(ctx), vendorID, payload.Open); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"open": payload.Open})
	}
}

// VendorSetCommission adjusts a vendor's commission override. Future orders
// pick up the new rate; placed ones keep their snapshot.
func VendorSetCommission(svc vendors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		vendorID, err := validators.ParsePathUUID(chi.URLParam(r, "vendorID"), "vendorID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload setCommissionPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var rate *decimal.Decimal
		if payload.Rate != nil {
			parsed, parseErr := decimal.NewFromString(*payload.Rate)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid commission rate"))
				return
			}
			rate = &parsed
		}

		if err := svc.SetCommissionRate(ctx, vendorID, rate); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "commission updated"})
	}
}
