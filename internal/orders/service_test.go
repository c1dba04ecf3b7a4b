package orders

import (
	"context"
	"io"
	"sync"
	"testing"

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
	"github.com/forkline-app/forkline-backend/pkg/types"
)

type fakeOrderRepo struct {
	Repository
	orders   map[uuid.UUID]*models.Order
	tracking []models.OrderTracking
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[uuid.UUID]*models.Order{}}
}

func (f *fakeOrderRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeOrderRepo) Create(_ context.Context, order *models.Order) error {
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderRepo) Update(_ context.Context, order *models.Order) error {
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return order, nil
}

func (f *fakeOrderRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeOrderRepo) AppendTracking(_ context.Context, row *models.OrderTracking) error {
	f.tracking = append(f.tracking, *row)
	return nil
}

func (f *fakeOrderRepo) ListTracking(_ context.Context, orderID uuid.UUID) ([]models.OrderTracking, error) {
	var rows []models.OrderTracking
	for _, row := range f.tracking {
		if row.OrderID == orderID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

type fakeCartRepo struct {
	cart.Repository
	carts   map[uuid.UUID]*models.Cart
	deleted int
}

func (f *fakeCartRepo) WithTx(tx *gorm.DB) cart.Repository { return f }

func (f *fakeCartRepo) FindOpenByUser(_ context.Context, userID uuid.UUID) (*models.Cart, error) {
	for _, record := range f.carts {
		if record.UserID == userID {
			return record, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCartRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.carts, id)
	f.deleted++
	return nil
}

type fakeCatalogRepo struct {
	catalog.Repository
	items      map[uuid.UUID]*models.MenuItem
	variations map[uuid.UUID]*models.ItemVariation
}

func (f *fakeCatalogRepo) FindMenuItemByID(_ context.Context, id uuid.UUID) (*models.MenuItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return item, nil
}

func (f *fakeCatalogRepo) FindVariation(_ context.Context, id uuid.UUID) (*models.ItemVariation, error) {
	variation, ok := f.variations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return variation, nil
}

type fakeVendorRepo struct {
	vendors.Repository
	vendors map[uuid.UUID]*models.Vendor
}

func (f *fakeVendorRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Vendor, error) {
	vendor, ok := f.vendors[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return vendor, nil
}

type fakeAddressRepo struct {
	addresses.Repository
	owners map[uuid.UUID]uuid.UUID
}

func (f *fakeAddressRepo) FindByIDAndUser(_ context.Context, id, userID uuid.UUID) (*models.DeliveryAddress, error) {
	owner, ok := f.owners[id]
	if !ok || owner != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.DeliveryAddress{ID: id, UserID: userID}, nil
}

type fakeRiderRepo struct {
	riders.Repository
	riders map[uuid.UUID]*models.Rider
}

func (f *fakeRiderRepo) WithTx(tx *gorm.DB) riders.Repository { return f }

func (f *fakeRiderRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Rider, error) {
	rider, ok := f.riders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return rider, nil
}

func (f *fakeRiderRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Rider, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeRiderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status enums.RiderStatus) error {
	rider, ok := f.riders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	rider.Status = status
	return nil
}

// fakeEngine counts settlement calls and refunds by the real policy table so
// the orchestrator tests exercise the same percentages production uses. Run
// holds a mutex for the duration of the callback, standing in for the row
// lock FindByIDForUpdate takes inside a real transaction.
type fakeEngine struct {
	mu          sync.Mutex
	policy      settlement.Policy
	payments    int
	deliveries  int
	refunds     int
	refundStage enums.OrderStatus
}

func (f *fakeEngine) Run(_ context.Context, _ string, fn func(tx *gorm.DB) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(nil)
}

func (f *fakeEngine) SettlePayment(_ context.Context, _ *gorm.DB, _ *models.Order) error {
	f.payments++
	return nil
}

func (f *fakeEngine) SettleDelivery(_ context.Context, _ *gorm.DB, _ *models.Order) error {
	f.deliveries++
	return nil
}

func (f *fakeEngine) SettleRefund(_ context.Context, _ *gorm.DB, order *models.Order, stage enums.OrderStatus) (decimal.Decimal, error) {
	f.refunds++
	f.refundStage = stage
	return f.policy.RefundAmount(order.Total, stage), nil
}

type fixture struct {
	svc     Service
	repo    *fakeOrderRepo
	carts   *fakeCartRepo
	catalog *fakeCatalogRepo
	vendors *fakeVendorRepo
	addrs   *fakeAddressRepo
	riders  *fakeRiderRepo
	engine  *fakeEngine

	userID   uuid.UUID
	vendorID uuid.UUID
	ownerID  uuid.UUID
	addrID   uuid.UUID
	itemID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:     newFakeOrderRepo(),
		carts:    &fakeCartRepo{carts: map[uuid.UUID]*models.Cart{}},
		catalog:  &fakeCatalogRepo{items: map[uuid.UUID]*models.MenuItem{}, variations: map[uuid.UUID]*models.ItemVariation{}},
		vendors:  &fakeVendorRepo{vendors: map[uuid.UUID]*models.Vendor{}},
		addrs:    &fakeAddressRepo{owners: map[uuid.UUID]uuid.UUID{}},
		riders:   &fakeRiderRepo{riders: map[uuid.UUID]*models.Rider{}},
		userID:   uuid.New(),
		vendorID: uuid.New(),
		ownerID:  uuid.New(),
		addrID:   uuid.New(),
		itemID:   uuid.New(),
	}

	settlementCfg := config.SettlementConfig{
		DefaultCommissionRate:   "0.05",
		CardProcessingFeeRate:   "0.029",
		RefundPctPending:        100,
		RefundPctAccepted:       100,
		RefundPctPreparing:      80,
		RefundPctReadyForPickup: 50,
		RefundPctInTransit:      50,
	}
	deliveryCfg := config.DeliveryConfig{FlatFee: "3.50", FreeDeliveryMin: "25.00", MaxRiderKM: 15}
	policy := settlement.NewPolicy(settlementCfg, deliveryCfg)
	f.engine = &fakeEngine{policy: policy}

	f.vendors.vendors[f.vendorID] = &models.Vendor{
		ID:          f.vendorID,
		OwnerUserID: f.ownerID,
		IsOpen:      true,
	}
	f.addrs.owners[f.addrID] = f.userID
	f.catalog.items[f.itemID] = &models.MenuItem{
		ID:          f.itemID,
		Name:        "Jollof Rice",
		Price:       decimal.RequireFromString("99.00"),
		IsAvailable: true,
	}

	log := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	svc, err := NewService(
		f.repo, f.carts, f.catalog, f.vendors, f.addrs, f.riders,
		f.engine, policy, deliveryCfg,
		notifications.NewNoopDispatcher(), analytics.NewNoopRecorder(),
		nil, log,
	)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	f.svc = svc
	return f
}

// seedCart loads a cart with two units at 5.00 plus a 1.50 addon, the
// snapshot prices, regardless of what the menu currently charges.
func (f *fixture) seedCart() *models.Cart {
	record := &models.Cart{
		ID:       uuid.New(),
		UserID:   f.userID,
		VendorID: f.vendorID,
		Items: []models.CartItem{
			{
				ID:           uuid.New(),
				MenuItemID:   f.itemID,
				Quantity:     2,
				UnitPrice:    decimal.RequireFromString("5.75"),
				LineSubtotal: decimal.RequireFromString("11.50"),
				Addons: []models.CartItemAddon{
					{ID: uuid.New(), AddonID: uuid.New(), Name: "Plantain", Price: decimal.RequireFromString("1.50")},
				},
			},
		},
	}
	f.carts.carts[record.ID] = record
	return record
}

func (f *fixture) placeOrder(t *testing.T) *OrderResponse {
	t.Helper()
	f.seedCart()
	resp, err := f.svc.PlaceOrder(context.Background(), f.userID, PlaceOrderInput{
		AddressID:     f.addrID,
		PaymentMethod: enums.PaymentMethodWallet,
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
	return resp
}

func (f *fixture) mustTransition(t *testing.T, orderID uuid.UUID, input TransitionInput) *OrderResponse {
	t.Helper()
	resp, err := f.svc.Transition(context.Background(), orderID, input)
	if err != nil {
		t.Fatalf("Transition to %s error: %v", input.Target, err)
	}
	return resp
}

func expectCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	if !pkgerrors.IsCode(err, code) {
		t.Fatalf("expected code %s, got %v", code, err)
	}
}

func TestPlaceOrderSnapshotsCartPricing(t *testing.T) {
	f := newFixture(t)
	resp := f.placeOrder(t)

	if got := resp.Subtotal.StringFixed(2); got != "11.50" {
		t.Fatalf("subtotal = %s, want 11.50", got)
	}
	if got := resp.DeliveryFee.StringFixed(2); got != "3.50" {
		t.Fatalf("delivery fee = %s, want 3.50", got)
	}
	if got := resp.Total.StringFixed(2); got != "15.00" {
		t.Fatalf("total = %s, want 15.00", got)
	}
	// the line keeps the cart snapshot price even though the menu now
	// charges 99.00
	if got := resp.Items[0].UnitPrice.StringFixed(2); got != "5.75" {
		t.Fatalf("unit price = %s, want 5.75", got)
	}
	if resp.Items[0].Name != "Jollof Rice" {
		t.Fatalf("item name = %s", resp.Items[0].Name)
	}
	if f.engine.payments != 1 {
		t.Fatalf("payments = %d, want 1", f.engine.payments)
	}
	if f.carts.deleted != 1 {
		t.Fatal("cart was not cleared")
	}
	rows, _ := f.repo.ListTracking(context.Background(), resp.ID)
	if len(rows) != 1 || rows[0].ToStatus != enums.OrderStatusPending {
		t.Fatalf("tracking = %+v", rows)
	}
}

func TestPlaceOrderFreeDeliveryAboveMinimum(t *testing.T) {
	f := newFixture(t)
	record := f.seedCart()
	record.Items[0].Quantity = 6
	record.Items[0].LineSubtotal = decimal.RequireFromString("34.50")

	resp, err := f.svc.PlaceOrder(context.Background(), f.userID, PlaceOrderInput{
		AddressID:     f.addrID,
		PaymentMethod: enums.PaymentMethodWallet,
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
	if !resp.DeliveryFee.IsZero() {
		t.Fatalf("delivery fee = %s, want 0", resp.DeliveryFee)
	}
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PlaceOrder(context.Background(), f.userID, PlaceOrderInput{
		AddressID:     f.addrID,
		PaymentMethod: enums.PaymentMethodWallet,
	})
	expectCode(t, err, pkgerrors.CodeNotFound)
}

func TestPlaceOrderClosedVendor(t *testing.T) {
	f := newFixture(t)
	f.vendors.vendors[f.vendorID].IsOpen = false
	f.seedCart()

	_, err := f.svc.PlaceOrder(context.Background(), f.userID, PlaceOrderInput{
		AddressID:     f.addrID,
		PaymentMethod: enums.PaymentMethodWallet,
	})
	expectCode(t, err, pkgerrors.CodeStateConflict)
	if f.engine.payments != 0 {
		t.Fatal("no payment should settle for a rejected placement")
	}
}

func TestTransitionLifecycleToDelivered(t *testing.T) {
	f := newFixture(t)
	placed := f.placeOrder(t)

	riderUserID := uuid.New()
	riderID := uuid.New()
	f.riders.riders[riderID] = &models.Rider{ID: riderID, UserID: riderUserID, Status: enums.RiderStatusAvailable}

	vendorActor := TransitionInput{Actor: enums.ActorRoleVendor, ActorID: f.ownerID}

	accepted := f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusAccepted, Actor: vendorActor.Actor, ActorID: vendorActor.ActorID})
	if accepted.AcceptedAt == nil {
		t.Fatal("AcceptedAt not set")
	}
	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusPreparing, Actor: vendorActor.Actor, ActorID: vendorActor.ActorID})
	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusReadyForPickup, Actor: vendorActor.Actor, ActorID: vendorActor.ActorID})

	inTransit := f.mustTransition(t, placed.ID, TransitionInput{
		Target:  enums.OrderStatusInTransit,
		Actor:   enums.ActorRoleRider,
		ActorID: riderUserID,
		RiderID: &riderID,
	})
	if inTransit.RiderID == nil || *inTransit.RiderID != riderID {
		t.Fatal("rider was not assigned")
	}
	if f.riders.riders[riderID].Status != enums.RiderStatusBusy {
		t.Fatal("rider should be BUSY while delivering")
	}

	delivered := f.mustTransition(t, placed.ID, TransitionInput{
		Target:  enums.OrderStatusDelivered,
		Actor:   enums.ActorRoleRider,
		ActorID: riderUserID,
	})
	if delivered.DeliveredAt == nil {
		t.Fatal("DeliveredAt not set")
	}
	if f.engine.deliveries != 1 {
		t.Fatalf("deliveries = %d, want 1", f.engine.deliveries)
	}
	if f.riders.riders[riderID].Status != enums.RiderStatusAvailable {
		t.Fatal("rider should be released after delivery")
	}

	rows, _ := f.repo.ListTracking(context.Background(), placed.ID)
	if len(rows) != 6 {
		t.Fatalf("tracking rows = %d, want 6", len(rows))
	}
}

func TestInvalidTransitionAddsNoTracking(t *testing.T) {
	f := newFixture(t)
	placed := f.placeOrder(t)

	_, err := f.svc.Transition(context.Background(), placed.ID, TransitionInput{
		Target:  enums.OrderStatusDelivered,
		Actor:   enums.ActorRoleRider,
		ActorID: uuid.New(),
	})
	expectCode(t, err, pkgerrors.CodeStateConflict)

	rows, _ := f.repo.ListTracking(context.Background(), placed.ID)
	if len(rows) != 1 {
		t.Fatalf("tracking rows = %d, want 1", len(rows))
	}
	if f.engine.deliveries != 0 {
		t.Fatal("no delivery settlement should run")
	}
}

func TestTransitionActorForbidden(t *testing.T) {
	f := newFixture(t)
	placed := f.placeOrder(t)

	_, err := f.svc.Transition(context.Background(), placed.ID, TransitionInput{
		Target:  enums.OrderStatusAccepted,
		Actor:   enums.ActorRoleUser,
		ActorID: f.userID,
	})
	expectCode(t, err, pkgerrors.CodeForbidden)
}

func TestTransitionWrongVendorForbidden(t *testing.T) {
	f := newFixture(t)
	placed := f.placeOrder(t)

	_, err := f.svc.Transition(context.Background(), placed.ID, TransitionInput{
		Target:  enums.OrderStatusAccepted,
		Actor:   enums.ActorRoleVendor,
		ActorID: uuid.New(),
	})
	expectCode(t, err, pkgerrors.CodeForbidden)
}

func TestCancelRefundsByStage(t *testing.T) {
	f := newFixture(t)
	placed := f.placeOrder(t)
	vendorActor := TransitionInput{Actor: enums.ActorRoleVendor, ActorID: f.ownerID}
	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusAccepted, Actor: vendorActor.Actor, ActorID: vendorActor.ActorID})
	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusPreparing, Actor: vendorActor.Actor, ActorID: vendorActor.ActorID})

	cancelled, err := f.svc.Cancel(context.Background(), placed.ID, enums.ActorRoleUser, f.userID, nil)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if f.engine.refundStage != enums.OrderStatusPreparing {
		t.Fatalf("refund stage = %s, want PREPARING", f.engine.refundStage)
	}
	// 80% of the 15.00 total
	if got := cancelled.RefundedAmount.StringFixed(2); got != "12.00" {
		t.Fatalf("refunded = %s, want 12.00", got)
	}
	if cancelled.CancelledAt == nil {
		t.Fatal("CancelledAt not set")
	}
}

func TestCancelAfterDeliveryIsRejected(t *testing.T) {
	f := newFixture(t)
	placed := f.placeOrder(t)
	order := f.repo.orders[placed.ID]
	order.Status = enums.OrderStatusDelivered

	_, err := f.svc.Cancel(context.Background(), placed.ID, enums.ActorRoleUser, f.userID, nil)
	expectCode(t, err, pkgerrors.CodeStateConflict)
	if f.engine.refunds != 0 {
		t.Fatal("no refund should settle for a delivered order")
	}
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	placed := f.placeOrder(t)

	_, err := f.svc.Transition(context.Background(), placed.ID, TransitionInput{
		Target:  enums.OrderStatusRejected,
		Actor:   enums.ActorRoleVendor,
		ActorID: f.ownerID,
	})
	expectCode(t, err, pkgerrors.CodeValidation)

	reason := "out of stock"
	rejected := f.mustTransition(t, placed.ID, TransitionInput{
		Target:  enums.OrderStatusRejected,
		Actor:   enums.ActorRoleVendor,
		ActorID: f.ownerID,
		Reason:  &reason,
	})
	if rejected.RejectReason == nil || *rejected.RejectReason != reason {
		t.Fatal("reject reason not stored")
	}
	// full refund from PENDING
	if got := rejected.RefundedAmount.StringFixed(2); got != "15.00" {
		t.Fatalf("refunded = %s, want 15.00", got)
	}
}

func TestPlaceOrderUnavailableItemRejected(t *testing.T) {
	f := newFixture(t)
	f.catalog.items[f.itemID].IsAvailable = false
	f.seedCart()

	_, err := f.svc.PlaceOrder(context.Background(), f.userID, PlaceOrderInput{
		AddressID:     f.addrID,
		PaymentMethod: enums.PaymentMethodWallet,
	})
	expectCode(t, err, pkgerrors.CodeStateConflict)
	if f.engine.payments != 0 {
		t.Fatal("no payment should settle when an item is unavailable")
	}
	if f.carts.deleted != 0 {
		t.Fatal("the cart should survive a rejected placement")
	}
}

func TestTransitionRecordsRiderLocation(t *testing.T) {
	f := newFixture(t)
	placed := f.placeOrder(t)

	riderUserID := uuid.New()
	riderID := uuid.New()
	f.riders.riders[riderID] = &models.Rider{ID: riderID, UserID: riderUserID, Status: enums.RiderStatusAvailable}

	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusAccepted, Actor: enums.ActorRoleVendor, ActorID: f.ownerID})
	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusPreparing, Actor: enums.ActorRoleVendor, ActorID: f.ownerID})
	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusReadyForPickup, Actor: enums.ActorRoleVendor, ActorID: f.ownerID})

	f.mustTransition(t, placed.ID, TransitionInput{
		Target:   enums.OrderStatusInTransit,
		Actor:    enums.ActorRoleRider,
		ActorID:  riderUserID,
		RiderID:  &riderID,
		Location: &types.GeographyPoint{Lat: 6.5244, Lng: 3.3792},
	})

	rows, _ := f.repo.ListTracking(context.Background(), placed.ID)
	last := rows[len(rows)-1]
	if last.ToStatus != enums.OrderStatusInTransit {
		t.Fatalf("last tracking status = %s", last.ToStatus)
	}
	if last.Location == nil || last.Location.Lat != 6.5244 || last.Location.Lng != 3.3792 {
		t.Fatalf("tracking location = %+v", last.Location)
	}
	// earlier rows carry no location when the actor sent none
	if rows[0].Location != nil {
		t.Fatalf("placement tracking location = %+v", rows[0].Location)
	}
}

func TestConcurrentCancelAndDeliverSettleOnce(t *testing.T) {
	f := newFixture(t)
	placed := f.placeOrder(t)

	riderUserID := uuid.New()
	riderID := uuid.New()
	f.riders.riders[riderID] = &models.Rider{ID: riderID, UserID: riderUserID, Status: enums.RiderStatusAvailable}

	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusAccepted, Actor: enums.ActorRoleVendor, ActorID: f.ownerID})
	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusPreparing, Actor: enums.ActorRoleVendor, ActorID: f.ownerID})
	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusReadyForPickup, Actor: enums.ActorRoleVendor, ActorID: f.ownerID})
	f.mustTransition(t, placed.ID, TransitionInput{
		Target:  enums.OrderStatusInTransit,
		Actor:   enums.ActorRoleRider,
		ActorID: riderUserID,
		RiderID: &riderID,
	})

	var (
		wg         sync.WaitGroup
		deliverErr error
		cancelErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, deliverErr = f.svc.Transition(context.Background(), placed.ID, TransitionInput{
			Target:  enums.OrderStatusDelivered,
			Actor:   enums.ActorRoleRider,
			ActorID: riderUserID,
		})
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = f.svc.Cancel(context.Background(), placed.ID, enums.ActorRoleUser, f.userID, nil)
	}()
	wg.Wait()

	// whichever transaction commits first wins; the other must see the
	// terminal state and fail without settling
	if (deliverErr == nil) == (cancelErr == nil) {
		t.Fatalf("exactly one outcome must win: deliver=%v cancel=%v", deliverErr, cancelErr)
	}
	if deliverErr != nil {
		expectCode(t, deliverErr, pkgerrors.CodeStateConflict)
	}
	if cancelErr != nil {
		expectCode(t, cancelErr, pkgerrors.CodeStateConflict)
	}
	if got := f.engine.deliveries + f.engine.refunds; got != 1 {
		t.Fatalf("settlements = %d, want exactly 1", got)
	}
	final := f.repo.orders[placed.ID].Status
	if final != enums.OrderStatusDelivered && final != enums.OrderStatusCancelled {
		t.Fatalf("final status = %s", final)
	}
}

func TestInTransitRequiresAvailableRider(t *testing.T) {
	f := newFixture(t)
	placed := f.placeOrder(t)
	vendorActor := TransitionInput{Actor: enums.ActorRoleVendor, ActorID: f.ownerID}
	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusAccepted, Actor: vendorActor.Actor, ActorID: vendorActor.ActorID})
	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusPreparing, Actor: vendorActor.Actor, ActorID: vendorActor.ActorID})
	f.mustTransition(t, placed.ID, TransitionInput{Target: enums.OrderStatusReadyForPickup, Actor: vendorActor.Actor, ActorID: vendorActor.ActorID})

	riderID := uuid.New()
	f.riders.riders[riderID] = &models.Rider{ID: riderID, UserID: uuid.New(), Status: enums.RiderStatusBusy}

	_, err := f.svc.Transition(context.Background(), placed.ID, TransitionInput{
		Target:  enums.OrderStatusInTransit,
		Actor:   enums.ActorRoleVendor,
		ActorID: f.ownerID,
		RiderID: &riderID,
	})
	expectCode(t, err, pkgerrors.CodeStateConflict)
	if f.repo.orders[placed.ID].Status != enums.OrderStatusReadyForPickup {
		t.Fatal("order status should not change")
	}
}
