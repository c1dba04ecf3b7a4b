package settlement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/internal/wallet"
	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
)

type movement struct {
	direction enums.EntryDirection
	input     wallet.MovementInput
}

// fakeMover records every posting and tracks running balances per wallet,
// split into the withdrawable and pending buckets, so tests can assert the
// postings stay zero-sum and held funds stay held.
type fakeMover struct {
	wallets   map[string]*models.Wallet
	balances  map[uuid.UUID]decimal.Decimal
	pendings  map[uuid.UUID]decimal.Decimal
	statuses  map[string]enums.LedgerEntryStatus
	movements []movement
	debitErr  error
}

func newFakeMover() *fakeMover {
	return &fakeMover{
		wallets:  make(map[string]*models.Wallet),
		balances: make(map[uuid.UUID]decimal.Decimal),
		pendings: make(map[uuid.UUID]decimal.Decimal),
		statuses: make(map[string]enums.LedgerEntryStatus),
	}
}

func (f *fakeMover) EnsureWallet(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error) {
	key := string(ownerType) + "/" + ownerID.String()
	if w, ok := f.wallets[key]; ok {
		return w, nil
	}
	w := &models.Wallet{ID: uuid.New(), OwnerType: ownerType, OwnerID: ownerID}
	f.wallets[key] = w
	f.balances[w.ID] = decimal.Zero
	f.pendings[w.ID] = decimal.Zero
	return w, nil
}

func (f *fakeMover) Credit(ctx context.Context, tx *gorm.DB, input wallet.MovementInput) (*models.LedgerEntry, error) {
	f.movements = append(f.movements, movement{enums.EntryDirectionCredit, input})
	if input.Pending {
		f.pendings[input.WalletID] = f.pendings[input.WalletID].Add(input.Amount)
		f.statuses[input.WalletID.String()+"/"+input.Reference] = enums.LedgerEntryStatusPending
	} else {
		f.balances[input.WalletID] = f.balances[input.WalletID].Add(input.Amount)
	}
	return &models.LedgerEntry{WalletID: input.WalletID, Amount: input.Amount}, nil
}

func (f *fakeMover) Debit(ctx context.Context, tx *gorm.DB, input wallet.MovementInput) (*models.LedgerEntry, error) {
	if f.debitErr != nil {
		return nil, f.debitErr
	}
	f.movements = append(f.movements, movement{enums.EntryDirectionDebit, input})
	if input.Pending {
		f.pendings[input.WalletID] = f.pendings[input.WalletID].Sub(input.Amount)
	} else {
		f.balances[input.WalletID] = f.balances[input.WalletID].Sub(input.Amount)
	}
	return &models.LedgerEntry{WalletID: input.WalletID, Amount: input.Amount}, nil
}

func (f *fakeMover) ReleasePending(ctx context.Context, tx *gorm.DB, input wallet.ReleaseInput) error {
	key := input.WalletID.String() + "/" + input.Reference
	if f.statuses[key] != enums.LedgerEntryStatusPending {
		return nil
	}
	if input.Amount.IsPositive() {
		f.pendings[input.WalletID] = f.pendings[input.WalletID].Sub(input.Amount)
		f.balances[input.WalletID] = f.balances[input.WalletID].Add(input.Amount)
		f.statuses[key] = enums.LedgerEntryStatusCompleted
	} else {
		f.statuses[key] = enums.LedgerEntryStatusFailed
	}
	return nil
}

func (f *fakeMover) netTotal() decimal.Decimal {
	net := decimal.Zero
	for _, bal := range f.balances {
		net = net.Add(bal)
	}
	for _, bal := range f.pendings {
		net = net.Add(bal)
	}
	return net
}

type passthroughTx struct {
	calls int
}

func (p *passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	p.calls++
	return fn(nil)
}

func testSettlementConfig() config.SettlementConfig {
	return config.SettlementConfig{
		DefaultCommissionRate:   "0.05",
		CardProcessingFeeRate:   "0.029",
		RefundPctPending:        100,
		RefundPctAccepted:       100,
		RefundPctPreparing:      80,
		RefundPctReadyForPickup: 50,
		RefundPctInTransit:      50,
		MaxAttempts:             3,
		RetryBaseDelay:          1,
		PlatformOwnerID:         "00000000-0000-0000-0000-000000000001",
	}
}

func newTestEngine(t *testing.T, mover *fakeMover, runner txRunner) Engine {
	t.Helper()
	cfg := testSettlementConfig()
	eng, err := NewEngine(NewPolicy(cfg, config.DeliveryConfig{FlatFee: "3.50"}), mover, runner, cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	return eng
}

func walletOrder(total string) *models.Order {
	rider := uuid.New()
	return &models.Order{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		VendorID:       uuid.New(),
		RiderID:        &rider,
		Status:         enums.OrderStatusPending,
		PaymentMethod:  enums.PaymentMethodWallet,
		Subtotal:       decimal.RequireFromString(total),
		DeliveryFee:    decimal.Zero,
		CommissionRate: decimal.RequireFromString("0.05"),
		Total:          decimal.RequireFromString(total),
	}
}

func TestSettlePaymentSplitsCommission(t *testing.T) {
	mover := newFakeMover()
	eng := newTestEngine(t, mover, &passthroughTx{})

	order := walletOrder("40.00")
	if err := eng.SettlePayment(context.Background(), nil, order); err != nil {
		t.Fatalf("settle payment failed: %v", err)
	}

	userWallet, _ := mover.EnsureWallet(context.Background(), enums.WalletOwnerTypeUser, order.UserID)
	vendorWallet, _ := mover.EnsureWallet(context.Background(), enums.WalletOwnerTypeVendor, order.VendorID)
	platformWallet, _ := mover.EnsureWallet(context.Background(), enums.WalletOwnerTypePlatform, uuid.MustParse("00000000-0000-0000-0000-000000000001"))

	if got := mover.balances[userWallet.ID]; !got.Equal(decimal.RequireFromString("-40.00")) {
		t.Fatalf("user delta: %s", got)
	}
	if got := mover.pendings[vendorWallet.ID]; !got.Equal(decimal.RequireFromString("38.00")) {
		t.Fatalf("vendor pending delta: %s", got)
	}
	if got := mover.balances[vendorWallet.ID]; !got.IsZero() {
		t.Fatalf("vendor earnings must be held until delivery, got %s", got)
	}
	if got := mover.balances[platformWallet.ID]; !got.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("platform delta: %s", got)
	}
	if !mover.netTotal().IsZero() {
		t.Fatalf("postings must be zero-sum, net %s", mover.netTotal())
	}
}

func TestSettlePaymentHoldsDeliveryFeeEscrow(t *testing.T) {
	mover := newFakeMover()
	eng := newTestEngine(t, mover, &passthroughTx{})

	order := walletOrder("20.00")
	order.DeliveryFee = decimal.RequireFromString("3.50")
	order.Total = decimal.RequireFromString("23.50")

	if err := eng.SettlePayment(context.Background(), nil, order); err != nil {
		t.Fatalf("settle payment failed: %v", err)
	}

	platformWallet, _ := mover.EnsureWallet(context.Background(), enums.WalletOwnerTypePlatform, uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	// commission 1.00 plus escrowed delivery fee 3.50
	if got := mover.balances[platformWallet.ID]; !got.Equal(decimal.RequireFromString("4.50")) {
		t.Fatalf("platform delta: %s", got)
	}
	if !mover.netTotal().IsZero() {
		t.Fatalf("postings must be zero-sum, net %s", mover.netTotal())
	}
}

func TestSettlePaymentCashMovesNothing(t *testing.T) {
	mover := newFakeMover()
	eng := newTestEngine(t, mover, &passthroughTx{})

	order := walletOrder("40.00")
	order.PaymentMethod = enums.PaymentMethodCash

	if err := eng.SettlePayment(context.Background(), nil, order); err != nil {
		t.Fatalf("settle payment failed: %v", err)
	}
	if len(mover.movements) != 0 {
		t.Fatalf("cash orders must not move wallet funds, got %d movements", len(mover.movements))
	}
}

func TestSettleDeliveryPaysRiderFromEscrow(t *testing.T) {
	mover := newFakeMover()
	eng := newTestEngine(t, mover, &passthroughTx{})

	order := walletOrder("20.00")
	order.DeliveryFee = decimal.RequireFromString("3.50")
	order.Total = decimal.RequireFromString("23.50")

	ctx := context.Background()
	if err := eng.SettlePayment(ctx, nil, order); err != nil {
		t.Fatalf("settle payment failed: %v", err)
	}
	if err := eng.SettleDelivery(ctx, nil, order); err != nil {
		t.Fatalf("settle delivery failed: %v", err)
	}

	riderWallet, _ := mover.EnsureWallet(ctx, enums.WalletOwnerTypeRider, *order.RiderID)
	if got := mover.balances[riderWallet.ID]; !got.Equal(decimal.RequireFromString("3.50")) {
		t.Fatalf("rider delta: %s", got)
	}
	platformWallet, _ := mover.EnsureWallet(ctx, enums.WalletOwnerTypePlatform, uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	// escrow drained, commission 1.00 remains
	if got := mover.balances[platformWallet.ID]; !got.Equal(decimal.RequireFromString("1.00")) {
		t.Fatalf("platform delta: %s", got)
	}
	// delivery releases the vendor's held earnings: 20.00 less 1.00 commission
	vendorWallet, _ := mover.EnsureWallet(ctx, enums.WalletOwnerTypeVendor, order.VendorID)
	if got := mover.balances[vendorWallet.ID]; !got.Equal(decimal.RequireFromString("19.00")) {
		t.Fatalf("vendor balance after delivery: %s", got)
	}
	if got := mover.pendings[vendorWallet.ID]; !got.IsZero() {
		t.Fatalf("vendor pending must be drained, got %s", got)
	}
}

func TestSettleDeliveryRequiresRider(t *testing.T) {
	mover := newFakeMover()
	eng := newTestEngine(t, mover, &passthroughTx{})

	order := walletOrder("20.00")
	order.RiderID = nil

	err := eng.SettleDelivery(context.Background(), nil, order)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSettleRefundByStage(t *testing.T) {
	cases := []struct {
		stage  enums.OrderStatus
		refund string
	}{
		{enums.OrderStatusPending, "40.00"},
		{enums.OrderStatusAccepted, "40.00"},
		{enums.OrderStatusPreparing, "32.00"},
		{enums.OrderStatusReadyForPickup, "20.00"},
		{enums.OrderStatusInTransit, "20.00"},
	}
	for _, tc := range cases {
		t.Run(string(tc.stage), func(t *testing.T) {
			mover := newFakeMover()
			eng := newTestEngine(t, mover, &passthroughTx{})

			order := walletOrder("40.00")
			ctx := context.Background()
			if err := eng.SettlePayment(ctx, nil, order); err != nil {
				t.Fatalf("settle payment failed: %v", err)
			}

			refund, err := eng.SettleRefund(ctx, nil, order, tc.stage)
			if err != nil {
				t.Fatalf("settle refund failed: %v", err)
			}
			if !refund.Equal(decimal.RequireFromString(tc.refund)) {
				t.Fatalf("refund: got %s want %s", refund, tc.refund)
			}

			userWallet, _ := mover.EnsureWallet(ctx, enums.WalletOwnerTypeUser, order.UserID)
			wantUser := refund.Sub(decimal.RequireFromString("40.00"))
			if got := mover.balances[userWallet.ID]; !got.Equal(wantUser) {
				t.Fatalf("user delta after refund: got %s want %s", got, wantUser)
			}
			if !mover.netTotal().IsZero() {
				t.Fatalf("postings must be zero-sum, net %s", mover.netTotal())
			}
		})
	}
}

func TestRefundSurvivesVendorWithdrawalWindow(t *testing.T) {
	mover := newFakeMover()
	eng := newTestEngine(t, mover, &passthroughTx{})

	order := walletOrder("40.00")
	ctx := context.Background()
	if err := eng.SettlePayment(ctx, nil, order); err != nil {
		t.Fatalf("settle payment failed: %v", err)
	}

	// Nothing withdrawable reaches the vendor before delivery, so a
	// withdrawal in the cancellation window cannot strand the refund.
	vendorWallet, _ := mover.EnsureWallet(ctx, enums.WalletOwnerTypeVendor, order.VendorID)
	if got := mover.balances[vendorWallet.ID]; !got.IsZero() {
		t.Fatalf("vendor withdrawable before delivery: %s", got)
	}

	refund, err := eng.SettleRefund(ctx, nil, order, enums.OrderStatusPending)
	if err != nil {
		t.Fatalf("settle refund failed: %v", err)
	}
	if !refund.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("refund: got %s want 40.00", refund)
	}

	userWallet, _ := mover.EnsureWallet(ctx, enums.WalletOwnerTypeUser, order.UserID)
	if got := mover.balances[userWallet.ID]; !got.IsZero() {
		t.Fatalf("user must be made whole, delta %s", got)
	}
	if got := mover.pendings[vendorWallet.ID]; !got.IsZero() {
		t.Fatalf("vendor pending must be clawed back, got %s", got)
	}
	key := vendorWallet.ID.String() + "/" + orderRef(order.ID, "vendor-payout")
	if mover.statuses[key] != enums.LedgerEntryStatusFailed {
		t.Fatalf("fully clawed-back payout must be FAILED, got %s", mover.statuses[key])
	}
}

func TestSettleRefundRejectsDelivered(t *testing.T) {
	mover := newFakeMover()
	eng := newTestEngine(t, mover, &passthroughTx{})

	_, err := eng.SettleRefund(context.Background(), nil, walletOrder("40.00"), enums.OrderStatusDelivered)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestRunRetriesVersionConflicts(t *testing.T) {
	mover := newFakeMover()
	runner := &passthroughTx{}
	eng := newTestEngine(t, mover, runner)

	attempts := 0
	err := eng.Run(context.Background(), "payment", func(tx *gorm.DB) error {
		attempts++
		if attempts < 3 {
			return pkgerrors.New(pkgerrors.CodeConflict, "wallet version conflict")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run should succeed after retries: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRunDoesNotRetryValidation(t *testing.T) {
	mover := newFakeMover()
	eng := newTestEngine(t, mover, &passthroughTx{})

	attempts := 0
	err := eng.Run(context.Background(), "refund", func(tx *gorm.DB) error {
		attempts++
		return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance")
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}
