package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/internal/ledger"
	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/pagination"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubWalletRepo struct {
	wallets     map[uuid.UUID]*models.Wallet
	byOwner     map[string]*models.Wallet
	debitsToday decimal.Decimal
	failVersion bool
	createErr   error
}

func newStubWalletRepo() *stubWalletRepo {
	return &stubWalletRepo{
		wallets: make(map[uuid.UUID]*models.Wallet),
		byOwner: make(map[string]*models.Wallet),
	}
}

func ownerKey(ownerType enums.WalletOwnerType, ownerID uuid.UUID) string {
	return string(ownerType) + "/" + ownerID.String()
}

func (s *stubWalletRepo) add(wallet *models.Wallet) *models.Wallet {
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	s.wallets[wallet.ID] = wallet
	s.byOwner[ownerKey(wallet.OwnerType, wallet.OwnerID)] = wallet
	return wallet
}

func (s *stubWalletRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubWalletRepo) Create(ctx context.Context, wallet *models.Wallet) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.add(wallet)
	return nil
}

func (s *stubWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	if wallet, ok := s.wallets[id]; ok {
		return wallet, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubWalletRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return s.GetByID(ctx, id)
}

func (s *stubWalletRepo) GetByOwner(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error) {
	if wallet, ok := s.byOwner[ownerKey(ownerType, ownerID)]; ok {
		return wallet, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubWalletRepo) UpdateBalances(ctx context.Context, id uuid.UUID, balance, pending decimal.Decimal, expectedVersion int64) (bool, error) {
	if s.failVersion {
		return false, nil
	}
	wallet, ok := s.wallets[id]
	if !ok || wallet.Version != expectedVersion {
		return false, nil
	}
	wallet.Balance = balance
	wallet.PendingBalance = pending
	wallet.Version++
	return true, nil
}

func (s *stubWalletRepo) SetPINHash(ctx context.Context, id uuid.UUID, pinHash string) error {
	if wallet, ok := s.wallets[id]; ok {
		wallet.PINHash = &pinHash
	}
	return nil
}

func (s *stubWalletRepo) SetLocked(ctx context.Context, id uuid.UUID, locked bool) error {
	if wallet, ok := s.wallets[id]; ok {
		wallet.IsLocked = locked
	}
	return nil
}

func (s *stubWalletRepo) SumDebitsSince(ctx context.Context, walletID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	return s.debitsToday, nil
}

type stubLedgerRepo struct {
	entries []*models.LedgerEntry
	refs    map[string]*models.LedgerEntry
}

func newStubLedgerRepo() *stubLedgerRepo {
	return &stubLedgerRepo{refs: make(map[string]*models.LedgerEntry)}
}

func (s *stubLedgerRepo) WithTx(tx *gorm.DB) ledger.Repository { return s }

func (s *stubLedgerRepo) Create(ctx context.Context, entry *models.LedgerEntry) error {
	s.entries = append(s.entries, entry)
	s.refs[entry.WalletID.String()+"/"+entry.Reference] = entry
	return nil
}

func (s *stubLedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	for _, entry := range s.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubLedgerRepo) FindByReference(ctx context.Context, walletID uuid.UUID, reference string) (*models.LedgerEntry, error) {
	if entry, ok := s.refs[walletID.String()+"/"+reference]; ok {
		return entry, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubLedgerRepo) SetStatusByReference(ctx context.Context, walletID uuid.UUID, reference string, status enums.LedgerEntryStatus) error {
	if entry, ok := s.refs[walletID.String()+"/"+reference]; ok {
		entry.Status = status
	}
	return nil
}

func (s *stubLedgerRepo) ListByWalletID(ctx context.Context, walletID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (s *stubLedgerRepo) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (s *stubLedgerRepo) NetBalance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	net := decimal.Zero
	for _, entry := range s.entries {
		if entry.WalletID != walletID {
			continue
		}
		if entry.Direction == enums.EntryDirectionCredit {
			net = net.Add(entry.Amount)
		} else {
			net = net.Sub(entry.Amount)
		}
	}
	return net, nil
}

func newTestService(t *testing.T, repo *stubWalletRepo, ledgerRepo *stubLedgerRepo) Service {
	t.Helper()
	svc, err := NewService(repo, ledgerRepo, stubTxRunner{}, config.WalletConfig{DefaultDailyLimit: "1000.00"}, config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc
}

func seedWallet(repo *stubWalletRepo, balance string) *models.Wallet {
	return repo.add(&models.Wallet{
		ID:        uuid.New(),
		OwnerType: enums.WalletOwnerTypeUser,
		OwnerID:   uuid.New(),
		Balance:   decimal.RequireFromString(balance),
	})
}

func TestDebitInsufficientFunds(t *testing.T) {
	repo := newStubWalletRepo()
	ledgerRepo := newStubLedgerRepo()
	svc := newTestService(t, repo, ledgerRepo)

	wallet := seedWallet(repo, "5.00")
	_, err := svc.Debit(context.Background(), nil, MovementInput{
		WalletID:  wallet.ID,
		EntryType: enums.LedgerEntryTypeOrderPayment,
		Amount:    decimal.NewFromFloat(40.00),
		Reference: "order-1",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("balance must be untouched, got %s", wallet.Balance)
	}
	if len(ledgerRepo.entries) != 0 {
		t.Fatal("no ledger entry may be written on a failed debit")
	}
}

func TestDebitLockedWallet(t *testing.T) {
	repo := newStubWalletRepo()
	svc := newTestService(t, repo, newStubLedgerRepo())

	wallet := seedWallet(repo, "100.00")
	wallet.IsLocked = true

	_, err := svc.Debit(context.Background(), nil, MovementInput{
		WalletID:  wallet.ID,
		EntryType: enums.LedgerEntryTypeOrderPayment,
		Amount:    decimal.NewFromFloat(10.00),
		Reference: "order-2",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeWalletLocked) {
		t.Fatalf("expected wallet locked, got %v", err)
	}
}

func TestCreditLockedWalletRejected(t *testing.T) {
	repo := newStubWalletRepo()
	ledgerRepo := newStubLedgerRepo()
	svc := newTestService(t, repo, ledgerRepo)

	wallet := seedWallet(repo, "10.00")
	wallet.IsLocked = true

	_, err := svc.Credit(context.Background(), nil, MovementInput{
		WalletID:  wallet.ID,
		EntryType: enums.LedgerEntryTypeRefund,
		Amount:    decimal.NewFromFloat(8.00),
		Reference: "refund-1",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeWalletLocked) {
		t.Fatalf("expected wallet locked, got %v", err)
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("balance must be untouched, got %s", wallet.Balance)
	}
	if len(ledgerRepo.entries) != 0 {
		t.Fatal("no ledger entry may be written on a rejected credit")
	}
}

func TestPendingCreditHeldUntilRelease(t *testing.T) {
	repo := newStubWalletRepo()
	ledgerRepo := newStubLedgerRepo()
	svc := newTestService(t, repo, ledgerRepo)

	wallet := seedWallet(repo, "0.00")
	entry, err := svc.Credit(context.Background(), nil, MovementInput{
		WalletID:  wallet.ID,
		EntryType: enums.LedgerEntryTypeVendorPayout,
		Amount:    decimal.NewFromFloat(38.00),
		Reference: "payout-1",
		Pending:   true,
	})
	if err != nil {
		t.Fatalf("pending credit failed: %v", err)
	}
	if !wallet.Balance.IsZero() {
		t.Fatalf("withdrawable balance must not move, got %s", wallet.Balance)
	}
	if !wallet.PendingBalance.Equal(decimal.RequireFromString("38.00")) {
		t.Fatalf("expected pending 38.00, got %s", wallet.PendingBalance)
	}
	if entry.Status != enums.LedgerEntryStatusPending {
		t.Fatalf("expected PENDING entry, got %s", entry.Status)
	}
	if !entry.BalanceBefore.IsZero() || !entry.BalanceAfter.Equal(wallet.PendingBalance) {
		t.Fatalf("bucket snapshots wrong: before=%s after=%s", entry.BalanceBefore, entry.BalanceAfter)
	}

	// Held funds are not withdrawable.
	_, err = svc.Debit(context.Background(), nil, MovementInput{
		WalletID:  wallet.ID,
		EntryType: enums.LedgerEntryTypeWithdrawal,
		Amount:    decimal.NewFromFloat(38.00),
		Reference: "wd-early",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds before release, got %v", err)
	}

	release := ReleaseInput{
		WalletID:  wallet.ID,
		Amount:    decimal.NewFromFloat(38.00),
		Reference: "payout-1",
	}
	if err := svc.ReleasePending(context.Background(), nil, release); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("38.00")) || !wallet.PendingBalance.IsZero() {
		t.Fatalf("release must move pending to balance, got %s / %s", wallet.Balance, wallet.PendingBalance)
	}
	if entry.Status != enums.LedgerEntryStatusCompleted {
		t.Fatalf("expected COMPLETED entry, got %s", entry.Status)
	}

	// A replayed release must not double the funds.
	if err := svc.ReleasePending(context.Background(), nil, release); err != nil {
		t.Fatalf("replayed release failed: %v", err)
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("38.00")) {
		t.Fatalf("replay moved funds twice: %s", wallet.Balance)
	}
}

func TestReleasePendingFullClawback(t *testing.T) {
	repo := newStubWalletRepo()
	ledgerRepo := newStubLedgerRepo()
	svc := newTestService(t, repo, ledgerRepo)

	wallet := seedWallet(repo, "0.00")
	entry, err := svc.Credit(context.Background(), nil, MovementInput{
		WalletID:  wallet.ID,
		EntryType: enums.LedgerEntryTypeVendorPayout,
		Amount:    decimal.NewFromFloat(20.00),
		Reference: "payout-2",
		Pending:   true,
	})
	if err != nil {
		t.Fatalf("pending credit failed: %v", err)
	}
	if _, err := svc.Debit(context.Background(), nil, MovementInput{
		WalletID:  wallet.ID,
		EntryType: enums.LedgerEntryTypeRefund,
		Amount:    decimal.NewFromFloat(20.00),
		Reference: "refund-2",
		Pending:   true,
	}); err != nil {
		t.Fatalf("pending clawback failed: %v", err)
	}

	if err := svc.ReleasePending(context.Background(), nil, ReleaseInput{
		WalletID:  wallet.ID,
		Amount:    decimal.Zero,
		Reference: "payout-2",
	}); err != nil {
		t.Fatalf("zero release failed: %v", err)
	}
	if entry.Status != enums.LedgerEntryStatusFailed {
		t.Fatalf("expected FAILED entry after full clawback, got %s", entry.Status)
	}
	if !wallet.Balance.IsZero() || !wallet.PendingBalance.IsZero() {
		t.Fatalf("nothing may reach the balance, got %s / %s", wallet.Balance, wallet.PendingBalance)
	}
}

func TestDebitDailyLimit(t *testing.T) {
	repo := newStubWalletRepo()
	svc := newTestService(t, repo, newStubLedgerRepo())

	wallet := seedWallet(repo, "500.00")
	wallet.DailyLimit = decimal.RequireFromString("100.00")
	repo.debitsToday = decimal.RequireFromString("95.00")

	_, err := svc.Debit(context.Background(), nil, MovementInput{
		WalletID:          wallet.ID,
		EntryType:         enums.LedgerEntryTypeOrderPayment,
		Amount:            decimal.NewFromFloat(10.00),
		Reference:         "order-3",
		EnforceDailyLimit: true,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeLimitExceeded) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}
}

func TestDebitVersionConflict(t *testing.T) {
	repo := newStubWalletRepo()
	svc := newTestService(t, repo, newStubLedgerRepo())

	wallet := seedWallet(repo, "50.00")
	repo.failVersion = true

	_, err := svc.Debit(context.Background(), nil, MovementInput{
		WalletID:  wallet.ID,
		EntryType: enums.LedgerEntryTypeOrderPayment,
		Amount:    decimal.NewFromFloat(10.00),
		Reference: "order-4",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestMovementReplayIsIdempotent(t *testing.T) {
	repo := newStubWalletRepo()
	ledgerRepo := newStubLedgerRepo()
	svc := newTestService(t, repo, ledgerRepo)

	wallet := seedWallet(repo, "100.00")
	input := MovementInput{
		WalletID:  wallet.ID,
		EntryType: enums.LedgerEntryTypeOrderPayment,
		Amount:    decimal.NewFromFloat(40.00),
		Reference: "order-5",
	}

	first, err := svc.Debit(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("first debit failed: %v", err)
	}
	second, err := svc.Debit(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("replayed debit failed: %v", err)
	}
	if first != second {
		t.Fatal("replay must return the original entry")
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("60.00")) {
		t.Fatalf("balance must change once, got %s", wallet.Balance)
	}
}

func TestTransferMovesBothSides(t *testing.T) {
	repo := newStubWalletRepo()
	ledgerRepo := newStubLedgerRepo()
	svc := newTestService(t, repo, ledgerRepo)

	from := seedWallet(repo, "100.00")
	to := repo.add(&models.Wallet{
		OwnerType: enums.WalletOwnerTypeVendor,
		OwnerID:   uuid.New(),
		Balance:   decimal.Zero,
	})

	err := svc.Transfer(context.Background(), TransferInput{
		FromOwnerType: from.OwnerType,
		FromOwnerID:   from.OwnerID,
		ToOwnerType:   to.OwnerType,
		ToOwnerID:     to.OwnerID,
		Amount:        decimal.NewFromFloat(25.00),
		Reference:     "xfer-1",
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if !from.Balance.Equal(decimal.RequireFromString("75.00")) {
		t.Fatalf("from balance: %s", from.Balance)
	}
	if !to.Balance.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("to balance: %s", to.Balance)
	}
	if len(ledgerRepo.entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(ledgerRepo.entries))
	}
}

func TestTopUpCreatesWallet(t *testing.T) {
	repo := newStubWalletRepo()
	ledgerRepo := newStubLedgerRepo()
	svc := newTestService(t, repo, ledgerRepo)

	ownerID := uuid.New()
	entry, err := svc.TopUp(context.Background(), TopUpInput{
		OwnerType: enums.WalletOwnerTypeUser,
		OwnerID:   ownerID,
		Amount:    decimal.NewFromFloat(60.00),
		Reference: "topup-1",
	})
	if err != nil {
		t.Fatalf("topup failed: %v", err)
	}

	wallet, err := repo.GetByOwner(context.Background(), enums.WalletOwnerTypeUser, ownerID)
	if err != nil {
		t.Fatalf("wallet not created: %v", err)
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("60.00")) {
		t.Fatalf("expected balance 60.00, got %s", wallet.Balance)
	}
	if !entry.BalanceAfter.Equal(wallet.Balance) {
		t.Fatalf("entry balance mismatch: %s", entry.BalanceAfter)
	}
}

func TestSetPINAndVerifyOnWithdraw(t *testing.T) {
	repo := newStubWalletRepo()
	svc := newTestService(t, repo, newStubLedgerRepo())

	wallet := seedWallet(repo, "200.00")
	if err := svc.SetPIN(context.Background(), SetPINInput{
		OwnerType: wallet.OwnerType,
		OwnerID:   wallet.OwnerID,
		PIN:       "4321",
	}); err != nil {
		t.Fatalf("set pin failed: %v", err)
	}

	_, err := svc.Withdraw(context.Background(), WithdrawInput{
		OwnerType: wallet.OwnerType,
		OwnerID:   wallet.OwnerID,
		Amount:    decimal.NewFromFloat(50.00),
		Reference: "wd-1",
		PIN:       "0000",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for wrong pin, got %v", err)
	}

	if _, err := svc.Withdraw(context.Background(), WithdrawInput{
		OwnerType: wallet.OwnerType,
		OwnerID:   wallet.OwnerID,
		Amount:    decimal.NewFromFloat(50.00),
		Reference: "wd-2",
		PIN:       "4321",
	}); err != nil {
		t.Fatalf("withdraw with correct pin failed: %v", err)
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("expected balance 150.00, got %s", wallet.Balance)
	}
}

func TestReconcile(t *testing.T) {
	repo := newStubWalletRepo()
	ledgerRepo := newStubLedgerRepo()
	svc := newTestService(t, repo, ledgerRepo)

	wallet := seedWallet(repo, "0.00")
	if _, err := svc.Credit(context.Background(), nil, MovementInput{
		WalletID:  wallet.ID,
		EntryType: enums.LedgerEntryTypeTopUp,
		Amount:    decimal.NewFromFloat(30.00),
		Reference: "rc-1",
	}); err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	report, err := svc.Reconcile(context.Background(), wallet.ID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !report.Consistent {
		t.Fatalf("expected consistent wallet, got %+v", report)
	}

	// Drift the cached balance behind the ledger's back.
	wallet.Balance = decimal.RequireFromString("99.00")
	report, err = svc.Reconcile(context.Background(), wallet.ID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if report.Consistent {
		t.Fatal("expected drifted wallet to be flagged")
	}
}
