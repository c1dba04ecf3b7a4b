package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
)

// Policy holds the money rules the engine applies: commission, card fees, and
// the stage-based refund table. Everything comes from configuration so the
// rules live in one place instead of per-endpoint arithmetic.
type Policy struct {
	cfg      config.SettlementConfig
	delivery config.DeliveryConfig
}

// NewPolicy builds a policy from the injected configuration.
func NewPolicy(cfg config.SettlementConfig, delivery config.DeliveryConfig) Policy {
	return Policy{cfg: cfg, delivery: delivery}
}

// CommissionRateFor resolves the commission rate snapshotted onto a new order.
// A vendor-level override wins over the platform default.
func (p Policy) CommissionRateFor(vendor *models.Vendor) decimal.Decimal {
	if vendor != nil && vendor.CommissionRate != nil {
		return *vendor.CommissionRate
	}
	return p.cfg.CommissionRate()
}

// RefundPercent returns the percentage of the order total refunded when the
// order is cancelled from the given stage. Delivered orders refund nothing.
func (p Policy) RefundPercent(stage enums.OrderStatus) int {
	switch stage {
	case enums.OrderStatusPending:
		return p.cfg.RefundPctPending
	case enums.OrderStatusAccepted:
		return p.cfg.RefundPctAccepted
	case enums.OrderStatusPreparing:
		return p.cfg.RefundPctPreparing
	case enums.OrderStatusReadyForPickup:
		return p.cfg.RefundPctReadyForPickup
	case enums.OrderStatusInTransit:
		return p.cfg.RefundPctInTransit
	default:
		return 0
	}
}

// RefundAmount applies the stage percentage to the order total.
func (p Policy) RefundAmount(total decimal.Decimal, stage enums.OrderStatus) decimal.Decimal {
	pct := p.RefundPercent(stage)
	if pct <= 0 {
		return decimal.Zero
	}
	return total.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100)).Round(2)
}

// Split is the breakdown of one paid order across the parties.
type Split struct {
	Commission  decimal.Decimal
	CardFee     decimal.Decimal
	DeliveryFee decimal.Decimal
	VendorNet   decimal.Decimal
}

// SplitFor computes the payment breakdown from the order's snapshotted
// amounts. The commission rate comes off the order, never the live vendor
// row, so a rate change cannot alter an order already placed.
func (p Policy) SplitFor(order *models.Order) Split {
	commission := order.Subtotal.Mul(order.CommissionRate).Round(2)

	cardFee := decimal.Zero
	if order.PaymentMethod == enums.PaymentMethodCard {
		cardFee = order.Total.Mul(p.cfg.CardFeeRate()).Round(2)
	}

	return Split{
		Commission:  commission,
		CardFee:     cardFee,
		DeliveryFee: order.DeliveryFee,
		VendorNet:   order.Subtotal.Sub(commission).Sub(cardFee),
	}
}

// RiderFee returns the amount credited to the rider on delivery, falling back
// to the configured flat rate when the order carries no delivery fee.
func (p Policy) RiderFee(order *models.Order) decimal.Decimal {
	if order.DeliveryFee.IsPositive() {
		return order.DeliveryFee
	}
	return p.delivery.FlatFeeAmount()
}
