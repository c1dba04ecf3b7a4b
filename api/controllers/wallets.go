package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forkline-app/forkline-backend/api/middleware"
	"github.com/forkline-app/forkline-backend/api/responses"
	"github.com/forkline-app/forkline-backend/api/validators"
	"github.com/forkline-app/forkline-backend/internal/ledger"
	"github.com/forkline-app/forkline-backend/internal/riders"
	"github.com/forkline-app/forkline-backend/internal/vendors"
	"github.com/forkline-app/forkline-backend/internal/wallet"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/pagination"
)

type topUpPayload struct {
	Amount    string `json:"amount" validate:"required"`
	Reference string `json:"reference" validate:"required,max=120"`
}

type withdrawPayload struct {
	Amount    string `json:"amount" validate:"required"`
	Reference string `json:"reference" validate:"required,max=120"`
	PIN       string `json:"pin" validate:"required,len=4"`
}

type transferPayload struct {
	ToOwnerType string    `json:"to_owner_type" validate:"required"`
	ToOwnerID   uuid.UUID `json:"to_owner_id" validate:"required"`
	Amount      string    `json:"amount" validate:"required"`
	Reference   string    `json:"reference" validate:"required,max=120"`
	PIN         string    `json:"pin" validate:"required,len=4"`
}

type setPINPayload struct {
	PIN        string `json:"pin" validate:"required,len=4"`
	CurrentPIN string `json:"current_pin,omitempty" validate:"omitempty,len=4"`
}

// WalletControllers bundles the lookups every wallet endpoint needs. Vendor
// and rider wallets are keyed by the vendor/rider id, so the caller's role
// decides which record owns the wallet. The platform wallet is never
// addressable through the API.
type WalletControllers struct {
	Wallets wallet.Service
	Ledger  ledger.Service
	Vendors vendors.Service
	Riders  riders.Service
	Log     *logger.Logger
}

func (c WalletControllers) owner(r *http.Request) (enums.WalletOwnerType, uuid.UUID, error) {
	ctx := r.Context()
	userID := middleware.UserIDFromContext(ctx)

	switch middleware.RoleFromContext(ctx) {
	case enums.ActorRoleVendor:
		vendor, err := c.Vendors.GetByOwner(ctx, userID)
		if err != nil {
			return "", uuid.Nil, err
		}
		return enums.WalletOwnerTypeVendor, vendor.ID, nil
	case enums.ActorRoleRider:
		rider, err := c.Riders.GetByUser(ctx, userID)
		if err != nil {
			return "", uuid.Nil, err
		}
		return enums.WalletOwnerTypeRider, rider.ID, nil
	default:
		return enums.WalletOwnerTypeUser, userID, nil
	}
}

func (c WalletControllers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ownerType, ownerID, err := c.owner(r)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		record, err := c.Wallets.EnsureWallet(ctx, ownerType, ownerID)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		responses.WriteSuccess(w, record)
	}
}

func (c WalletControllers) TopUp() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload topUpPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		amount, err := parseAmount(payload.Amount, "amount")
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		ownerType, ownerID, err := c.owner(r)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		entry, err := c.Wallets.TopUp(ctx, wallet.TopUpInput{
			OwnerType: ownerType,
			OwnerID:   ownerID,
			Amount:    amount,
			Reference: payload.Reference,
		})
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

func (c WalletControllers) Withdraw() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload withdrawPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		amount, err := parseAmount(payload.Amount, "amount")
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		ownerType, ownerID, err := c.owner(r)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		entry, err := c.Wallets.Withdraw(ctx, wallet.WithdrawInput{
			OwnerType: ownerType,
			OwnerID:   ownerID,
			Amount:    amount,
			Reference: payload.Reference,
			PIN:       payload.PIN,
		})
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

func (c WalletControllers) Transfer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload transferPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		toOwnerType, err := enums.ParseWalletOwnerType(payload.ToOwnerType)
		if err != nil || toOwnerType == enums.WalletOwnerTypePlatform {
			responses.WriteError(ctx, c.Log, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid transfer destination"))
			return
		}

		amount, err := parseAmount(payload.Amount, "amount")
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		ownerType, ownerID, err := c.owner(r)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		if err := c.Wallets.Transfer(ctx, wallet.TransferInput{
			FromOwnerType: ownerType,
			FromOwnerID:   ownerID,
			ToOwnerType:   toOwnerType,
			ToOwnerID:     payload.ToOwnerID,
			Amount:        amount,
			Reference:     payload.Reference,
			PIN:           payload.PIN,
		}); err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "transfer complete"})
	}
}

func (c WalletControllers) SetPIN() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload setPINPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		ownerType, ownerID, err := c.owner(r)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		if err := c.Wallets.SetPIN(ctx, wallet.SetPINInput{
			OwnerType:  ownerType,
			OwnerID:    ownerID,
			PIN:        payload.PIN,
			CurrentPIN: payload.CurrentPIN,
		}); err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "pin set"})
	}
}

func (c WalletControllers) History() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ownerType, ownerID, err := c.owner(r)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		record, err := c.Wallets.Get(ctx, ownerType, ownerID)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
		page, err := c.Ledger.ListByWallet(ctx, record.ID, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

// Entry serves one ledger entry by id, restricted to the caller's own wallet.
func (c WalletControllers) Entry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		entryID, err := validators.ParsePathUUID(chi.URLParam(r, "entryID"), "entryID")
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		ownerType, ownerID, err := c.owner(r)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		record, err := c.Wallets.Get(ctx, ownerType, ownerID)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		entry, err := c.Ledger.Get(ctx, entryID)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}
		if entry.WalletID != record.ID {
			responses.WriteError(ctx, c.Log, w, pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found"))
			return
		}

		responses.WriteSuccess(w, entry)
	}
}

func (c WalletControllers) Reconcile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ownerType, ownerID, err := c.owner(r)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		record, err := c.Wallets.Get(ctx, ownerType, ownerID)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		report, err := c.Wallets.Reconcile(ctx, record.ID)
		if err != nil {
			responses.WriteError(ctx, c.Log, w, err)
			return
		}

		responses.WriteSuccess(w, report)
	}
}
