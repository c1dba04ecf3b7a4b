package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/internal/wallet"
	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/metrics"
)

// walletMover is the slice of the wallet service the engine needs.
type walletMover interface {
	EnsureWallet(ctx context.Context, ownerType enums.WalletOwnerType, ownerID uuid.UUID) (*models.Wallet, error)
	Credit(ctx context.Context, tx *gorm.DB, input wallet.MovementInput) (*models.LedgerEntry, error)
	Debit(ctx context.Context, tx *gorm.DB, input wallet.MovementInput) (*models.LedgerEntry, error)
	ReleasePending(ctx context.Context, tx *gorm.DB, input wallet.ReleaseInput) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Engine turns order-lifecycle events into ledger postings. Every method that
// moves money takes the caller's transaction so the posting commits or rolls
// back together with the order-status change that triggered it.
type Engine interface {
	SettlePayment(ctx context.Context, tx *gorm.DB, order *models.Order) error
	SettleDelivery(ctx context.Context, tx *gorm.DB, order *models.Order) error
	SettleRefund(ctx context.Context, tx *gorm.DB, order *models.Order, stage enums.OrderStatus) (decimal.Decimal, error)
	Run(ctx context.Context, kind string, fn func(tx *gorm.DB) error) error
}

type engine struct {
	policy  Policy
	wallets walletMover
	tx      txRunner
	cfg     config.SettlementConfig
	metrics *metrics.SettlementMetrics
	log     *logger.Logger
}

// NewEngine wires a settlement engine. Metrics and logger may be nil.
func NewEngine(policy Policy, wallets walletMover, tx txRunner, cfg config.SettlementConfig, m *metrics.SettlementMetrics, log *logger.Logger) (Engine, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if cfg.PlatformWalletOwner() == uuid.Nil {
		return nil, fmt.Errorf("platform wallet owner id required")
	}
	return &engine{
		policy:  policy,
		wallets: wallets,
		tx:      tx,
		cfg:     cfg,
		metrics: m,
		log:     log,
	}, nil
}

// Run executes fn in a transaction, retrying version and serialization
// conflicts a bounded number of times before surfacing them.
func (e *engine) Run(ctx context.Context, kind string, fn func(tx *gorm.DB) error) error {
	start := time.Now()

	attempts := e.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(e.cfg.RetryBaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := e.tx.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if pkgerrors.IsRetryable(err) || db.IsSerializationFailure(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	e.metrics.ObserveDuration(kind, time.Since(start))
	if err != nil {
		e.metrics.IncFailure(kind)
		if e.log != nil {
			e.log.Error(ctx, "settlement "+kind+" failed", err)
		}
		return err
	}
	e.metrics.IncSuccess(kind)
	return nil
}

// SettlePayment posts the payment split for a newly placed order: the payer
// is debited for the full total, the vendor receives the subtotal net of
// commission and card fee, and the platform wallet retains commission, card
// fee, and the delivery fee held until the rider payout.
//
// The vendor's share lands in their pending bucket, not their withdrawable
// balance; it is released at delivery so a cancellation can still claw it
// back for the customer's refund.
//
// Cash orders move nothing here; the cash never enters the wallet system and
// the vendor and platform legs are posted at delivery instead.
func (e *engine) SettlePayment(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if order.PaymentMethod == enums.PaymentMethodCash {
		return nil
	}

	userWallet, vendorWallet, platformWallet, err := e.resolveWallets(ctx, order)
	if err != nil {
		return err
	}

	split := e.policy.SplitFor(order)

	if order.PaymentMethod == enums.PaymentMethodWallet {
		if _, err := e.wallets.Debit(ctx, tx, wallet.MovementInput{
			WalletID:             userWallet.ID,
			OrderID:              &order.ID,
			EntryType:            enums.LedgerEntryTypeOrderPayment,
			Amount:               order.Total,
			Reference:            orderRef(order.ID, "payment"),
			CounterpartyWalletID: &vendorWallet.ID,
			EnforceDailyLimit:    true,
		}); err != nil {
			return err
		}
	}

	return e.postSplit(ctx, tx, order, split, userWallet, vendorWallet, platformWallet, true)
}

// SettleDelivery pays the rider their delivery fee out of the platform's
// escrow and releases the vendor's pending earnings into their withdrawable
// balance. For cash orders it instead posts the vendor and platform legs that
// were deferred at placement; those are earned on the spot, so they skip the
// pending bucket.
func (e *engine) SettleDelivery(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if order.RiderID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no rider assigned")
	}

	split := e.policy.SplitFor(order)
	if order.PaymentMethod == enums.PaymentMethodCash {
		userWallet, vendorWallet, platformWallet, err := e.resolveWallets(ctx, order)
		if err != nil {
			return err
		}
		if err := e.postSplit(ctx, tx, order, split, userWallet, vendorWallet, platformWallet, false); err != nil {
			return err
		}
	} else if split.VendorNet.IsPositive() {
		vendorWallet, err := e.wallets.EnsureWallet(ctx, enums.WalletOwnerTypeVendor, order.VendorID)
		if err != nil {
			return err
		}
		if err := e.wallets.ReleasePending(ctx, tx, wallet.ReleaseInput{
			WalletID:  vendorWallet.ID,
			Amount:    split.VendorNet,
			Reference: orderRef(order.ID, "vendor-payout"),
		}); err != nil {
			return err
		}
	}

	fee := e.policy.RiderFee(order)
	if !fee.IsPositive() {
		return nil
	}

	riderWallet, err := e.wallets.EnsureWallet(ctx, enums.WalletOwnerTypeRider, *order.RiderID)
	if err != nil {
		return err
	}
	platformWallet, err := e.wallets.EnsureWallet(ctx, enums.WalletOwnerTypePlatform, e.cfg.PlatformWalletOwner())
	if err != nil {
		return err
	}

	if _, err := e.wallets.Debit(ctx, tx, wallet.MovementInput{
		WalletID:             platformWallet.ID,
		OrderID:              &order.ID,
		EntryType:            enums.LedgerEntryTypeDeliveryFeePayout,
		Amount:               fee,
		Reference:            orderRef(order.ID, "delivery-fee:out"),
		CounterpartyWalletID: &riderWallet.ID,
	}); err != nil {
		return err
	}
	_, err = e.wallets.Credit(ctx, tx, wallet.MovementInput{
		WalletID:             riderWallet.ID,
		OrderID:              &order.ID,
		EntryType:            enums.LedgerEntryTypeDeliveryFeePayout,
		Amount:               fee,
		Reference:            orderRef(order.ID, "delivery-fee"),
		CounterpartyWalletID: &platformWallet.ID,
	})
	return err
}

// SettleRefund reverses the stage-appropriate share of an order's money on
// cancellation. The vendor's share is clawed back from their pending bucket,
// where SettlePayment held it, so a withdrawal in between cannot strand the
// customer's refund; any remainder the vendor keeps is released to their
// withdrawable balance. The platform covers the rest so the postings stay
// zero-sum.
func (e *engine) SettleRefund(ctx context.Context, tx *gorm.DB, order *models.Order, stage enums.OrderStatus) (decimal.Decimal, error) {
	if stage == enums.OrderStatusDelivered {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeStateConflict, "delivered orders cannot be refunded")
	}

	refund := e.policy.RefundAmount(order.Total, stage)
	if !refund.IsPositive() {
		return decimal.Zero, nil
	}

	// Cash never entered the wallet system, so there is nothing to move back.
	if order.PaymentMethod == enums.PaymentMethodCash {
		return decimal.Zero, nil
	}

	userWallet, vendorWallet, platformWallet, err := e.resolveWallets(ctx, order)
	if err != nil {
		return decimal.Zero, err
	}

	split := e.policy.SplitFor(order)
	pct := decimal.NewFromInt(int64(e.policy.RefundPercent(stage))).Div(decimal.NewFromInt(100))

	vendorShare := split.VendorNet.Mul(pct).Round(2)
	if vendorShare.GreaterThan(refund) {
		vendorShare = refund
	}
	platformShare := refund.Sub(vendorShare)

	if vendorShare.IsPositive() {
		if _, err := e.wallets.Debit(ctx, tx, wallet.MovementInput{
			WalletID:             vendorWallet.ID,
			OrderID:              &order.ID,
			EntryType:            enums.LedgerEntryTypeRefund,
			Amount:               vendorShare,
			Reference:            orderRef(order.ID, "refund:vendor"),
			CounterpartyWalletID: &userWallet.ID,
			Pending:              true,
		}); err != nil {
			return decimal.Zero, err
		}
	}
	if split.VendorNet.IsPositive() {
		// Whatever the vendor keeps after the clawback becomes withdrawable;
		// a full clawback marks the payout failed.
		if err := e.wallets.ReleasePending(ctx, tx, wallet.ReleaseInput{
			WalletID:  vendorWallet.ID,
			Amount:    split.VendorNet.Sub(vendorShare),
			Reference: orderRef(order.ID, "vendor-payout"),
		}); err != nil {
			return decimal.Zero, err
		}
	}
	if platformShare.IsPositive() {
		if _, err := e.wallets.Debit(ctx, tx, wallet.MovementInput{
			WalletID:             platformWallet.ID,
			OrderID:              &order.ID,
			EntryType:            enums.LedgerEntryTypeRefund,
			Amount:               platformShare,
			Reference:            orderRef(order.ID, "refund:platform"),
			CounterpartyWalletID: &userWallet.ID,
		}); err != nil {
			return decimal.Zero, err
		}
	}

	if _, err := e.wallets.Credit(ctx, tx, wallet.MovementInput{
		WalletID:  userWallet.ID,
		OrderID:   &order.ID,
		EntryType: enums.LedgerEntryTypeRefund,
		Amount:    refund,
		Reference: orderRef(order.ID, "refund"),
	}); err != nil {
		return decimal.Zero, err
	}
	return refund, nil
}

// postSplit credits the vendor net and the platform's commission, card fee,
// and delivery-fee escrow. vendorPending holds the vendor's share in their
// pending bucket until delivery releases it.
func (e *engine) postSplit(ctx context.Context, tx *gorm.DB, order *models.Order, split Split, userWallet, vendorWallet, platformWallet *models.Wallet, vendorPending bool) error {
	if split.VendorNet.IsPositive() {
		if _, err := e.wallets.Credit(ctx, tx, wallet.MovementInput{
			WalletID:             vendorWallet.ID,
			OrderID:              &order.ID,
			EntryType:            enums.LedgerEntryTypeVendorPayout,
			Amount:               split.VendorNet,
			Reference:            orderRef(order.ID, "vendor-payout"),
			CounterpartyWalletID: &userWallet.ID,
			Pending:              vendorPending,
		}); err != nil {
			return err
		}
	}
	if split.Commission.IsPositive() {
		if _, err := e.wallets.Credit(ctx, tx, wallet.MovementInput{
			WalletID:             platformWallet.ID,
			OrderID:              &order.ID,
			EntryType:            enums.LedgerEntryTypeCommission,
			Amount:               split.Commission,
			Reference:            orderRef(order.ID, "commission"),
			CounterpartyWalletID: &vendorWallet.ID,
		}); err != nil {
			return err
		}
	}
	if split.CardFee.IsPositive() {
		if _, err := e.wallets.Credit(ctx, tx, wallet.MovementInput{
			WalletID:  platformWallet.ID,
			OrderID:   &order.ID,
			EntryType: enums.LedgerEntryTypeCardFee,
			Amount:    split.CardFee,
			Reference: orderRef(order.ID, "card-fee"),
		}); err != nil {
			return err
		}
	}
	if split.DeliveryFee.IsPositive() {
		if _, err := e.wallets.Credit(ctx, tx, wallet.MovementInput{
			WalletID:  platformWallet.ID,
			OrderID:   &order.ID,
			EntryType: enums.LedgerEntryTypeDeliveryFeePayout,
			Amount:    split.DeliveryFee,
			Reference: orderRef(order.ID, "delivery-escrow"),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e *engine) resolveWallets(ctx context.Context, order *models.Order) (userWallet, vendorWallet, platformWallet *models.Wallet, err error) {
	userWallet, err = e.wallets.EnsureWallet(ctx, enums.WalletOwnerTypeUser, order.UserID)
	if err != nil {
		return nil, nil, nil, err
	}
	vendorWallet, err = e.wallets.EnsureWallet(ctx, enums.WalletOwnerTypeVendor, order.VendorID)
	if err != nil {
		return nil, nil, nil, err
	}
	platformWallet, err = e.wallets.EnsureWallet(ctx, enums.WalletOwnerTypePlatform, e.cfg.PlatformWalletOwner())
	if err != nil {
		return nil, nil, nil, err
	}
	return userWallet, vendorWallet, platformWallet, nil
}

func orderRef(orderID uuid.UUID, leg string) string {
	return "order:" + orderID.String() + ":" + leg
}
