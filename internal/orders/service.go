package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/internal/addresses"
	"github.com/forkline-app/forkline-backend/internal/analytics"
	"github.com/forkline-app/forkline-backend/internal/cart"
	"github.com/forkline-app/forkline-backend/internal/catalog"
	"github.com/forkline-app/forkline-backend/internal/notifications"
	"github.com/forkline-app/forkline-backend/internal/riders"
	"github.com/forkline-app/forkline-backend/internal/settlement"
	"github.com/forkline-app/forkline-backend/internal/vendors"
	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/metrics"
	"github.com/forkline-app/forkline-backend/pkg/pagination"
)

// Service orchestrates the order lifecycle. Every status change and its
// money movement commit in the same database transaction.
type Service interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*OrderResponse, error)
	Get(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error)
	Transition(ctx context.Context, orderID uuid.UUID, input TransitionInput) (*OrderResponse, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actor enums.ActorRole, actorID uuid.UUID, reason *string) (*OrderResponse, error)
	Tracking(ctx context.Context, orderID uuid.UUID) ([]TrackingResponse, error)
	ListByUser(ctx context.Context, userID uuid.UUID, cursor *string, limit int) (*OrderPage, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, status *enums.OrderStatus, cursor *string, limit int) (*OrderPage, error)
	ListByRider(ctx context.Context, riderID uuid.UUID, cursor *string, limit int) (*OrderPage, error)
}

type service struct {
	repo     Repository
	carts    cart.Repository
	catalog  catalog.Repository
	vendors  vendors.Repository
	addrs    addresses.Repository
	riders   riders.Repository
	engine   settlement.Engine
	policy   settlement.Policy
	delivery config.DeliveryConfig
	notify   notifications.Dispatcher
	events   analytics.Recorder
	metrics  *metrics.SettlementMetrics
	log      *logger.Logger
}

// NewService wires the order orchestrator.
func NewService(
	repo Repository,
	carts cart.Repository,
	catalogRepo catalog.Repository,
	vendorRepo vendors.Repository,
	addrRepo addresses.Repository,
	riderRepo riders.Repository,
	engine settlement.Engine,
	policy settlement.Policy,
	delivery config.DeliveryConfig,
	notify notifications.Dispatcher,
	events analytics.Recorder,
	m *metrics.SettlementMetrics,
	log *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders: repository is required")
	}
	if carts == nil {
		return nil, fmt.Errorf("orders: cart repository is required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("orders: catalog repository is required")
	}
	if vendorRepo == nil {
		return nil, fmt.Errorf("orders: vendor repository is required")
	}
	if addrRepo == nil {
		return nil, fmt.Errorf("orders: address repository is required")
	}
	if riderRepo == nil {
		return nil, fmt.Errorf("orders: rider repository is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("orders: settlement engine is required")
	}
	if notify == nil {
		return nil, fmt.Errorf("orders: notification dispatcher is required")
	}
	if events == nil {
		return nil, fmt.Errorf("orders: analytics recorder is required")
	}
	if log == nil {
		return nil, fmt.Errorf("orders: logger is required")
	}
	return &service{
		repo:     repo,
		carts:    carts,
		catalog:  catalogRepo,
		vendors:  vendorRepo,
		addrs:    addrRepo,
		riders:   riderRepo,
		engine:   engine,
		policy:   policy,
		delivery: delivery,
		notify:   notify,
		events:   events,
		metrics:  m,
		log:      log,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*OrderResponse, error) {
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	cartRecord, err := s.carts.FindOpenByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if len(cartRecord.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart is empty")
	}

	vendor, err := s.vendors.FindByID(ctx, cartRecord.VendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendor")
	}
	if !vendor.IsOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "vendor is not accepting orders")
	}

	if _, err := s.addrs.FindByIDAndUser(ctx, input.AddressID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivery address")
	}

	items, err := s.snapshotItems(ctx, cartRecord)
	if err != nil {
		return nil, err
	}

	subtotal := cart.Subtotal(cartRecord)
	order := &models.Order{
		ID:             uuid.New(),
		UserID:         userID,
		VendorID:       vendor.ID,
		AddressID:      input.AddressID,
		Status:         enums.OrderStatusPending,
		PaymentMethod:  input.PaymentMethod,
		Subtotal:       subtotal,
		DeliveryFee:    s.deliveryFee(subtotal),
		CommissionRate: s.policy.CommissionRateFor(vendor),
		RefundedAmount: decimal.Zero,
		Note:           input.Note,
		Items:          items,
	}
	order.Total = order.Subtotal.Add(order.DeliveryFee)

	err = s.engine.Run(ctx, "place_order", func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if err := s.engine.SettlePayment(ctx, tx, order); err != nil {
			return err
		}
		if err := s.carts.WithTx(tx).Delete(ctx, cartRecord.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
		}
		return txRepo.AppendTracking(ctx, &models.OrderTracking{
			OrderID:   order.ID,
			ToStatus:  enums.OrderStatusPending,
			ActorRole: enums.ActorRoleUser,
			ActorID:   &userID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notify.OrderStatusChanged(ctx, order, "", enums.OrderStatusPending)
	s.events.RecordOrderEvent(ctx, enums.AnalyticsEventOrderPlaced, order, order.Total.StringFixed(2))
	return toOrderResponse(order), nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return toOrderResponse(order), nil
}

func (s *service) Transition(ctx context.Context, orderID uuid.UUID, input TransitionInput) (*OrderResponse, error) {
	if input.Target == enums.OrderStatusCancelled || input.Target == enums.OrderStatusRejected {
		return s.terminate(ctx, orderID, input)
	}
	return s.advance(ctx, orderID, input)
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor enums.ActorRole, actorID uuid.UUID, reason *string) (*OrderResponse, error) {
	return s.terminate(ctx, orderID, TransitionInput{
		Target:  enums.OrderStatusCancelled,
		Actor:   actor,
		ActorID: actorID,
		Reason:  reason,
	})
}

// advance handles the forward path of the lifecycle. Cancellations and
// rejections go through terminate because they move refund money.
func (s *service) advance(ctx context.Context, orderID uuid.UUID, input TransitionInput) (*OrderResponse, error) {
	var (
		order    *models.Order
		from     enums.OrderStatus
		assigned *uuid.UUID
	)
	err := s.engine.Run(ctx, "transition", func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		var err error
		order, err = txRepo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		from = order.Status
		assigned = nil

		if err := validateTransition(from, input.Target, input.Actor); err != nil {
			return err
		}
		if err := s.authorizeActor(ctx, order, input); err != nil {
			return err
		}

		now := time.Now().UTC()
		switch input.Target {
		case enums.OrderStatusAccepted:
			order.AcceptedAt = &now
		case enums.OrderStatusInTransit:
			riderID, err := s.claimRider(ctx, tx, input)
			if err != nil {
				return err
			}
			order.RiderID = &riderID
			assigned = &riderID
		case enums.OrderStatusDelivered:
			if err := s.engine.SettleDelivery(ctx, tx, order); err != nil {
				return err
			}
			order.DeliveredAt = &now
			if order.RiderID != nil {
				if err := s.riders.WithTx(tx).UpdateStatus(ctx, *order.RiderID, enums.RiderStatusAvailable); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release rider")
				}
			}
		}

		order.Status = input.Target
		if err := txRepo.Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order")
		}
		return txRepo.AppendTracking(ctx, &models.OrderTracking{
			OrderID:    order.ID,
			FromStatus: &from,
			ToStatus:   input.Target,
			ActorRole:  input.Actor,
			ActorID:    &input.ActorID,
			Note:       input.Reason,
			Location:   input.Location,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncTransition(string(input.Target))
	}
	s.notify.OrderStatusChanged(ctx, order, from, input.Target)
	if assigned != nil {
		s.notify.RiderAssigned(ctx, order, *assigned)
		s.events.RecordOrderEvent(ctx, enums.AnalyticsEventRiderAssigned, order, "")
	}
	switch input.Target {
	case enums.OrderStatusAccepted:
		s.events.RecordOrderEvent(ctx, enums.AnalyticsEventOrderAccepted, order, "")
	case enums.OrderStatusDelivered:
		s.events.RecordOrderEvent(ctx, enums.AnalyticsEventOrderDelivered, order, order.Total.StringFixed(2))
		s.events.RecordOrderEvent(ctx, enums.AnalyticsEventSettlementDone, order, order.DeliveryFee.StringFixed(2))
	}
	return toOrderResponse(order), nil
}

// terminate cancels or rejects the order and settles the stage-based refund
// in the same transaction as the status change.
func (s *service) terminate(ctx context.Context, orderID uuid.UUID, input TransitionInput) (*OrderResponse, error) {
	var (
		order    *models.Order
		from     enums.OrderStatus
		refunded decimal.Decimal
	)
	err := s.engine.Run(ctx, "refund", func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		var err error
		order, err = txRepo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		from = order.Status
		refunded = decimal.Zero

		if err := validateTransition(from, input.Target, input.Actor); err != nil {
			return err
		}
		if err := s.authorizeActor(ctx, order, input); err != nil {
			return err
		}
		if input.Target == enums.OrderStatusRejected && (input.Reason == nil || *input.Reason == "") {
			return pkgerrors.New(pkgerrors.CodeValidation, "a rejection reason is required")
		}

		refunded, err = s.engine.SettleRefund(ctx, tx, order, from)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		order.Status = input.Target
		order.RefundedAmount = refunded
		if input.Target == enums.OrderStatusRejected {
			order.RejectReason = input.Reason
		} else {
			order.CancelledAt = &now
		}
		if err := txRepo.Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order")
		}

		if order.RiderID != nil {
			if err := s.riders.WithTx(tx).UpdateStatus(ctx, *order.RiderID, enums.RiderStatusAvailable); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release rider")
			}
		}
		return txRepo.AppendTracking(ctx, &models.OrderTracking{
			OrderID:    order.ID,
			FromStatus: &from,
			ToStatus:   input.Target,
			ActorRole:  input.Actor,
			ActorID:    &input.ActorID,
			Note:       input.Reason,
			Location:   input.Location,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncTransition(string(input.Target))
	}
	s.notify.OrderStatusChanged(ctx, order, from, input.Target)
	if refunded.IsPositive() {
		s.notify.OrderRefunded(ctx, order, refunded)
		s.events.RecordOrderEvent(ctx, enums.AnalyticsEventRefundIssued, order, refunded.StringFixed(2))
	}
	if input.Target == enums.OrderStatusRejected {
		s.events.RecordOrderEvent(ctx, enums.AnalyticsEventOrderRejected, order, "")
	} else {
		s.events.RecordOrderEvent(ctx, enums.AnalyticsEventOrderCancelled, order, "")
	}
	return toOrderResponse(order), nil
}

func (s *service) Tracking(ctx context.Context, orderID uuid.UUID) ([]TrackingResponse, error) {
	if _, err := s.findOrder(ctx, orderID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListTracking(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tracking")
	}
	return toTrackingResponses(rows), nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, cursor *string, limit int) (*OrderPage, error) {
	return s.listPage(ctx, cursor, limit, func(c *pagination.Cursor, fetch int) ([]models.Order, error) {
		return s.repo.ListByUser(ctx, userID, c, fetch)
	})
}

func (s *service) ListByVendor(ctx context.Context, vendorID uuid.UUID, status *enums.OrderStatus, cursor *string, limit int) (*OrderPage, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status filter")
	}
	return s.listPage(ctx, cursor, limit, func(c *pagination.Cursor, fetch int) ([]models.Order, error) {
		return s.repo.ListByVendor(ctx, vendorID, status, c, fetch)
	})
}

func (s *service) ListByRider(ctx context.Context, riderID uuid.UUID, cursor *string, limit int) (*OrderPage, error) {
	return s.listPage(ctx, cursor, limit, func(c *pagination.Cursor, fetch int) ([]models.Order, error) {
		return s.repo.ListByRider(ctx, riderID, c, fetch)
	})
}

func (s *service) listPage(ctx context.Context, cursor *string, limit int, fetch func(*pagination.Cursor, int) ([]models.Order, error)) (*OrderPage, error) {
	limit = pagination.NormalizeLimit(limit)

	var parsed *pagination.Cursor
	if cursor != nil && *cursor != "" {
		var err error
		parsed, err = pagination.ParseCursor(*cursor)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
		}
	}

	records, err := fetch(parsed, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	page := &OrderPage{Orders: make([]OrderResponse, 0, len(records))}
	if len(records) > limit {
		records = records[:limit]
		last := records[len(records)-1]
		next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		page.NextCursor = &next
	}
	for i := range records {
		page.Orders = append(page.Orders, *toOrderResponse(&records[i]))
	}
	return page, nil
}

func (s *service) findOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

// authorizeActor binds the acting user to the party the role claims.
func (s *service) authorizeActor(ctx context.Context, order *models.Order, input TransitionInput) error {
	switch input.Actor {
	case enums.ActorRoleUser:
		if input.ActorID != order.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
	case enums.ActorRoleVendor:
		vendor, err := s.vendors.FindByID(ctx, order.VendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendor")
		}
		if vendor.OwnerUserID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another vendor")
		}
	case enums.ActorRoleRider:
		riderID := order.RiderID
		if riderID == nil {
			riderID = input.RiderID
		}
		if riderID == nil {
			return pkgerrors.New(pkgerrors.CodeForbidden, "no rider is assigned to this order")
		}
		rider, err := s.riders.FindByID(ctx, *riderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load rider")
		}
		if rider.UserID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order is assigned to another rider")
		}
	case enums.ActorRoleSystem:
		// internal callers skip party checks
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid actor role")
	}
	return nil
}

// claimRider locks the courier row and flips them to BUSY so two orders
// cannot grab the same rider.
func (s *service) claimRider(ctx context.Context, tx *gorm.DB, input TransitionInput) (uuid.UUID, error) {
	if input.RiderID == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "a rider is required to start delivery")
	}
	txRiders := s.riders.WithTx(tx)
	rider, err := txRiders.FindByIDForUpdate(ctx, *input.RiderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "rider not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load rider")
	}
	if rider.Status != enums.RiderStatusAvailable {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeStateConflict, "rider is not available")
	}
	if err := txRiders.UpdateStatus(ctx, rider.ID, enums.RiderStatusBusy); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim rider")
	}
	return rider.ID, nil
}

func (s *service) deliveryFee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(s.delivery.FreeDeliveryMinimum()) {
		return decimal.Zero
	}
	return s.delivery.FlatFeeAmount()
}

// snapshotItems copies the cart lines into order lines, resolving display
// names from the catalog. Prices come from the cart snapshot, not the
// current menu.
func (s *service) snapshotItems(ctx context.Context, cartRecord *models.Cart) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(cartRecord.Items))
	for _, line := range cartRecord.Items {
		menuItem, err := s.catalog.FindMenuItemByID(ctx, line.MenuItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a cart item is no longer on the menu")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load menu item")
		}
		if !menuItem.IsAvailable {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a cart item is currently unavailable")
		}

		item := models.OrderItem{
			ID:         uuid.New(),
			MenuItemID: line.MenuItemID,
			Name:       menuItem.Name,
			UnitPrice:  line.UnitPrice,
			Quantity:   line.Quantity,
			LineTotal:  line.LineSubtotal,
		}
		if line.VariationID != nil {
			variation, err := s.catalog.FindVariation(ctx, *line.VariationID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a cart item option is no longer on the menu")
				}
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variation")
			}
			name := variation.Name
			item.VariationName = &name
		}
		for _, addon := range line.Addons {
			item.Addons = append(item.Addons, models.OrderItemAddon{
				ID:    uuid.New(),
				Name:  addon.Name,
				Price: addon.Price,
			})
		}
		items = append(items, item)
	}
	return items, nil
}
