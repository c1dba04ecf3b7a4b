package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/internal/ledger"
	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/security"
	"github.com/forkline-app/forkline-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns every balance mutation. Credit and Debit run inside a caller
// transaction so the settlement engine can post several movements atomically;
// the remaining operations open their own transaction.
type Service interface {
	EnsureWallet(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error)
	Get(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error)
	Credit(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.LedgerEntry, error)
	Debit(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.LedgerEntry, error)
	ReleasePending(ctx context.Context, tx *gorm.DB, input ReleaseInput) error
	TopUp(ctx context.Context, input TopUpInput) (*models.LedgerEntry, error)
	Withdraw(ctx context.Context, input WithdrawInput) (*models.LedgerEntry, error)
	Transfer(ctx context.Context, input TransferInput) error
	SetPIN(ctx context.Context, input SetPINInput) error
	SetLock(ctx context.Context, walletID uuid.UUID, locked bool) error
	Reconcile(ctx context.Context, walletID uuid.UUID) (*ReconcileReport, error)
}

type service struct {
	repo       Repository
	ledgerRepo ledger.Repository
	tx         txRunner
	walletCfg  config.WalletConfig
	pwCfg      config.PasswordConfig
}

// MovementInput is one balance change plus its ledger row. Pending targets the
// pending bucket instead of the withdrawable balance; a pending credit is
// written as a PENDING ledger entry until ReleasePending resolves it.
type MovementInput struct {
	WalletID             uuid.UUID
	OrderID              *uuid.UUID
	EntryType            enums.LedgerEntryType
	Amount               decimal.Decimal
	Reference            string
	CounterpartyWalletID *uuid.UUID
	Description          *string
	Metadata             types.JSONMap
	EnforceDailyLimit    bool
	Pending              bool
}

// ReleaseInput resolves a pending credit: Amount moves from the pending bucket
// to the withdrawable balance, and the entry recorded under Reference is marked
// COMPLETED. A zero Amount marks the entry FAILED instead (the pending funds
// were clawed back in full).
type ReleaseInput struct {
	WalletID  uuid.UUID
	Amount    decimal.Decimal
	Reference string
}

// TopUpInput funds a wallet from an external payment processor.
type TopUpInput struct {
	OwnerType enums.WalletOwnerType
	OwnerID   uuid.UUID
	Amount    decimal.Decimal
	Reference string
}

// WithdrawInput moves wallet funds out to the owner's bank account.
type WithdrawInput struct {
	OwnerType enums.WalletOwnerType
	OwnerID   uuid.UUID
	Amount    decimal.Decimal
	Reference string
	PIN       string
}

// TransferInput moves funds between two wallets.
type TransferInput struct {
	FromOwnerType enums.WalletOwnerType
	FromOwnerID   uuid.UUID
	ToOwnerType   enums.WalletOwnerType
	ToOwnerID     uuid.UUID
	Amount        decimal.Decimal
	Reference     string
	PIN           string
}

// SetPINInput sets or rotates the wallet transaction PIN.
type SetPINInput struct {
	OwnerType  enums.WalletOwnerType
	OwnerID    uuid.UUID
	PIN        string
	CurrentPIN string
}

// ReconcileReport compares the cached balances against the ledger replay. The
// ledger net equals the balance plus the pending bucket because a pending
// release moves funds between buckets without writing a new entry.
type ReconcileReport struct {
	WalletID       uuid.UUID       `json:"wallet_id"`
	Balance        decimal.Decimal `json:"balance"`
	PendingBalance decimal.Decimal `json:"pending_balance"`
	LedgerBalance  decimal.Decimal `json:"ledger_balance"`
	Consistent     bool            `json:"consistent"`
}

// NewService wires a wallet service with its dependencies.
func NewService(repo Repository, ledgerRepo ledger.Repository, tx txRunner, walletCfg config.WalletConfig, pwCfg config.PasswordConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:       repo,
		ledgerRepo: ledgerRepo,
		tx:         tx,
		walletCfg:  walletCfg,
		pwCfg:      pwCfg,
	}, nil
}

func (s *service) EnsureWallet(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error) {
	if !ownerType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid wallet owner type")
	}
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}

	wallet, err := s.repo.GetByOwner(ctx, ownerType, ownerID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	wallet = &models.Wallet{
		OwnerType:      ownerType,
		OwnerID:        ownerID,
		Balance:        decimal.Zero,
		PendingBalance: decimal.Zero,
		DailyLimit:     s.walletCfg.DailyLimit(),
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		// Lost a create race; the winner's row is what we want.
		existing, getErr := s.repo.GetByOwner(ctx, ownerType, ownerID)
		if getErr == nil {
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	return wallet, nil
}

func (s *service) Get(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	wallet, err := s.repo.GetByOwner(ctx, ownerType, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

// Credit adds funds. A locked wallet rejects credits the same as debits.
func (s *service) Credit(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.LedgerEntry, error) {
	return s.apply(ctx, tx, enums.EntryDirectionCredit, input)
}

// Debit removes funds, enforcing lock, balance, and daily limit rules.
func (s *service) Debit(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.LedgerEntry, error) {
	return s.apply(ctx, tx, enums.EntryDirectionDebit, input)
}

func (s *service) apply(ctx context.Context, tx *gorm.DB, direction enums.EntryDirection, input MovementInput) (*models.LedgerEntry, error) {
	if input.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	if input.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	if !input.EntryType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger entry type")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	ledgerRepo := s.ledgerRepo.WithTx(tx)

	// Replayed references return the original entry, no balance change.
	if existing, err := ledgerRepo.FindByReference(ctx, input.WalletID, input.Reference); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup ledger reference")
	}

	wallet, err := repo.GetByIDForUpdate(ctx, input.WalletID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	if wallet.IsLocked {
		return nil, pkgerrors.New(pkgerrors.CodeWalletLocked, "wallet is locked")
	}

	// The movement touches exactly one bucket; before/after snapshots
	// describe that bucket.
	bucketBefore := wallet.Balance
	if input.Pending {
		bucketBefore = wallet.PendingBalance
	}

	var bucketAfter decimal.Decimal
	switch direction {
	case enums.EntryDirectionCredit:
		bucketAfter = bucketBefore.Add(input.Amount)
	case enums.EntryDirectionDebit:
		if bucketBefore.LessThan(input.Amount) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance")
		}
		if !input.Pending && input.EnforceDailyLimit && wallet.DailyLimit.IsPositive() {
			startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
			spent, err := repo.SumDebitsSince(ctx, wallet.ID, startOfDay)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum daily debits")
			}
			if spent.Add(input.Amount).GreaterThan(wallet.DailyLimit) {
				return nil, pkgerrors.New(pkgerrors.CodeLimitExceeded, "daily spend limit exceeded")
			}
		}
		bucketAfter = bucketBefore.Sub(input.Amount)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid entry direction")
	}

	newBalance, newPending := bucketAfter, wallet.PendingBalance
	if input.Pending {
		newBalance, newPending = wallet.Balance, bucketAfter
	}

	ok, err := repo.UpdateBalances(ctx, wallet.ID, newBalance, newPending, wallet.Version)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "wallet version conflict")
	}

	status := enums.LedgerEntryStatusCompleted
	if input.Pending && direction == enums.EntryDirectionCredit {
		status = enums.LedgerEntryStatusPending
	}
	entry := &models.LedgerEntry{
		WalletID:             wallet.ID,
		OrderID:              input.OrderID,
		EntryType:            input.EntryType,
		Direction:            direction,
		Status:               status,
		Amount:               input.Amount,
		BalanceBefore:        bucketBefore,
		BalanceAfter:         bucketAfter,
		CounterpartyWalletID: input.CounterpartyWalletID,
		Reference:            input.Reference,
		Description:          input.Description,
		Metadata:             input.Metadata,
	}
	if err := ledgerRepo.Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
	}
	return entry, nil
}

// ReleasePending moves held funds from the pending bucket into the
// withdrawable balance and resolves the PENDING entry posted under
// input.Reference. It runs inside the caller's transaction alongside the
// other settlement movements.
func (s *service) ReleasePending(ctx context.Context, tx *gorm.DB, input ReleaseInput) error {
	if input.WalletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	if input.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	if input.Amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount cannot be negative")
	}

	repo := s.repo.WithTx(tx)
	ledgerRepo := s.ledgerRepo.WithTx(tx)

	wallet, err := repo.GetByIDForUpdate(ctx, input.WalletID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	entry, err := ledgerRepo.FindByReference(ctx, wallet.ID, input.Reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "pending entry not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup pending entry")
	}
	// Re-running a settlement must not release the funds twice.
	if entry.Status != enums.LedgerEntryStatusPending {
		return nil
	}

	if input.Amount.IsPositive() {
		if wallet.PendingBalance.LessThan(input.Amount) {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient pending balance")
		}
		ok, err := repo.UpdateBalances(ctx, wallet.ID,
			wallet.Balance.Add(input.Amount),
			wallet.PendingBalance.Sub(input.Amount),
			wallet.Version)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release pending balance")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "wallet version conflict")
		}
	}

	status := enums.LedgerEntryStatusCompleted
	if input.Amount.IsZero() {
		// Fully clawed back, nothing reached the withdrawable balance.
		status = enums.LedgerEntryStatusFailed
	}
	if err := ledgerRepo.SetStatusByReference(ctx, wallet.ID, input.Reference, status); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve pending entry")
	}
	return nil
}

func (s *service) TopUp(ctx context.Context, input TopUpInput) (*models.LedgerEntry, error) {
	wallet, err := s.EnsureWallet(ctx, input.OwnerType, input.OwnerID)
	if err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err = s.Credit(ctx, tx, MovementInput{
			WalletID:  wallet.ID,
			EntryType: enums.LedgerEntryTypeTopUp,
			Amount:    input.Amount,
			Reference: input.Reference,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Withdraw(ctx context.Context, input WithdrawInput) (*models.LedgerEntry, error) {
	wallet, err := s.Get(ctx, input.OwnerType, input.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := s.verifyPIN(wallet, input.PIN); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err = s.Debit(ctx, tx, MovementInput{
			WalletID:          wallet.ID,
			EntryType:         enums.LedgerEntryTypeWithdrawal,
			Amount:            input.Amount,
			Reference:         input.Reference,
			EnforceDailyLimit: true,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Transfer(ctx context.Context, input TransferInput) error {
	if input.FromOwnerType == input.ToOwnerType && input.FromOwnerID == input.ToOwnerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot transfer to the same wallet")
	}

	from, err := s.Get(ctx, input.FromOwnerType, input.FromOwnerID)
	if err != nil {
		return err
	}
	if err := s.verifyPIN(from, input.PIN); err != nil {
		return err
	}
	to, err := s.EnsureWallet(ctx, input.ToOwnerType, input.ToOwnerID)
	if err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.Debit(ctx, tx, MovementInput{
			WalletID:             from.ID,
			EntryType:            enums.LedgerEntryTypeTransfer,
			Amount:               input.Amount,
			Reference:            input.Reference + ":out",
			CounterpartyWalletID: &to.ID,
			EnforceDailyLimit:    true,
		}); err != nil {
			return err
		}
		_, err := s.Credit(ctx, tx, MovementInput{
			WalletID:             to.ID,
			EntryType:            enums.LedgerEntryTypeTransfer,
			Amount:               input.Amount,
			Reference:            input.Reference + ":in",
			CounterpartyWalletID: &from.ID,
		})
		return err
	})
}

func (s *service) SetPIN(ctx context.Context, input SetPINInput) error {
	wallet, err := s.EnsureWallet(ctx, input.OwnerType, input.OwnerID)
	if err != nil {
		return err
	}

	// Rotating an existing PIN requires proving the current one.
	if wallet.PINHash != nil {
		ok, err := security.VerifyPIN(input.CurrentPIN, *wallet.PINHash)
		if err != nil || !ok {
			return pkgerrors.New(pkgerrors.CodeForbidden, "current pin does not match")
		}
	}

	hash, err := security.HashPIN(input.PIN, s.pwCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pin")
	}
	if err := s.repo.SetPINHash(ctx, wallet.ID, hash); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store pin hash")
	}
	return nil
}

func (s *service) SetLock(ctx context.Context, walletID uuid.UUID, locked bool) error {
	if walletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	if err := s.repo.SetLocked(ctx, walletID, locked); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet lock")
	}
	return nil
}

// Reconcile replays the wallet's ledger and compares it to the cached balance.
func (s *service) Reconcile(ctx context.Context, walletID uuid.UUID) (*ReconcileReport, error) {
	wallet, err := s.repo.GetByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	net, err := s.ledgerRepo.NetBalance(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay ledger")
	}

	return &ReconcileReport{
		WalletID:       wallet.ID,
		Balance:        wallet.Balance,
		PendingBalance: wallet.PendingBalance,
		LedgerBalance:  net,
		Consistent:     wallet.Balance.Add(wallet.PendingBalance).Equal(net),
	}, nil
}

func (s *service) verifyPIN(wallet *models.Wallet, pin string) error {
	if wallet.PINHash == nil {
		return nil
	}
	ok, err := security.VerifyPIN(pin, *wallet.PINHash)
	if err != nil || !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "wallet pin does not match")
	}
	return nil
}
