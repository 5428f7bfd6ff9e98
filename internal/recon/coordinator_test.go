package recon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/supplychain-recon/internal/domain/inventory"
	"github.com/example/supplychain-recon/internal/domain/order"
	"github.com/example/supplychain-recon/internal/domain/payment"
	"github.com/example/supplychain-recon/internal/domain/returns"
	"github.com/example/supplychain-recon/internal/domain/role"
	"github.com/example/supplychain-recon/internal/domain/shipment"
	"github.com/example/supplychain-recon/internal/infrastructure/store/mocks"
	"github.com/example/supplychain-recon/internal/readmodel"
)

var testItems = []order.LineItem{
	{SKU: "widget-a", Quantity: 10, UnitPrice: 100},
	{SKU: "widget-b", Quantity: 5, UnitPrice: 250},
}

// All five services share one event store so the coordinator tests drive the
// real replay paths end to end.
func newTestCoordinator() (*Coordinator, *mocks.MockEventStore, *mocks.MockReadStore) {
	eventStore := mocks.NewMockEventStore()
	readStore := mocks.NewMockReadStore()
	c := NewCoordinator(
		order.NewService(eventStore),
		shipment.NewService(eventStore),
		inventory.NewService(eventStore),
		payment.NewService(eventStore),
		returns.NewService(eventStore),
		readStore,
	)
	return c, eventStore, readStore
}

func placeOrder(t *testing.T, c *Coordinator) string {
	t.Helper()
	o, err := c.PlaceOrder(context.Background(), PlaceOrder{
		Actor:      role.Retailer,
		SellerRole: role.WarehouseManager,
		Items:      testItems,
	})
	require.NoError(t, err)
	return o.ID
}

func placeAndConfirm(t *testing.T, c *Coordinator) string {
	t.Helper()
	orderID := placeOrder(t, c)
	require.NoError(t, c.ConfirmOrder(context.Background(), ConfirmOrder{Actor: role.WarehouseManager, OrderID: orderID}))
	return orderID
}

func shipTo(t *testing.T, c *Coordinator, orderID, location string) *shipment.Shipment {
	t.Helper()
	sh, err := c.CreateShipment(context.Background(), CreateShipment{
		Actor:    role.WarehouseManager,
		OrderID:  orderID,
		Location: location,
		ETA:      time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	return sh
}

func advance(t *testing.T, c *Coordinator, shipmentID string, target shipment.Status) {
	t.Helper()
	require.NoError(t, c.AdvanceShipment(context.Background(), AdvanceShipment{
		Actor:      role.WarehouseManager,
		ShipmentID: shipmentID,
		Target:     target,
	}))
}

// deliverOrder runs the full confirmed-order-to-delivery flow.
func deliverOrder(t *testing.T, c *Coordinator, orderID string) *shipment.Shipment {
	t.Helper()
	sh := shipTo(t, c, orderID, "osaka-dc")
	advance(t, c, sh.ID, shipment.StatusInTransit)
	advance(t, c, sh.ID, shipment.StatusDelivered)
	return sh
}

func countAppends(eventStore *mocks.MockEventStore, eventType string) int {
	n := 0
	for _, call := range eventStore.AppendCalls {
		if call.EventType == eventType {
			n++
		}
	}
	return n
}

// ============================================
// Order Command Tests
// ============================================

func TestCoordinator_PlaceOrder_UnknownRole(t *testing.T) {
	c, _, _ := newTestCoordinator()

	_, err := c.PlaceOrder(context.Background(), PlaceOrder{
		Actor:      role.Role("auditor"),
		SellerRole: role.WarehouseManager,
		Items:      testItems,
	})

	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestCoordinator_ConfirmOrder_CreatesPayment(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeOrder(t, c)
	require.NoError(t, c.ConfirmOrder(ctx, ConfirmOrder{Actor: role.WarehouseManager, OrderID: orderID}))

	o, err := c.orders.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, o.Status)

	p, err := c.payments.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 2250, p.Amount)
	assert.Equal(t, payment.StatusPending, p.Status)
}

func TestCoordinator_ConfirmOrder_BuyerDenied(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeOrder(t, c)
	err := c.ConfirmOrder(context.Background(), ConfirmOrder{Actor: role.Retailer, OrderID: orderID})

	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestCoordinator_ConfirmOrder_RepairsMissingPayment(t *testing.T) {
	c, eventStore, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeOrder(t, c)

	// The confirm lands but the payment append fails, as after a crash
	// between the two writes.
	eventStore.AppendErrFor = map[string]error{payment.EventPaymentCreated: errors.New("store unavailable")}
	err := c.ConfirmOrder(ctx, ConfirmOrder{Actor: role.WarehouseManager, OrderID: orderID})
	require.Error(t, err)

	o, err := c.orders.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, o.Status)
	_, err = c.payments.Get(ctx, orderID)
	assert.ErrorIs(t, err, payment.ErrPaymentNotFound)

	// Retrying converges: the payment is created without a second confirm.
	require.NoError(t, c.ConfirmOrder(ctx, ConfirmOrder{Actor: role.WarehouseManager, OrderID: orderID}))

	_, err = c.payments.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 1, countAppends(eventStore, order.EventOrderConfirmed))
}

func TestCoordinator_ConfirmOrder_IdempotentOnRetry(t *testing.T) {
	c, eventStore, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	err := c.ConfirmOrder(ctx, ConfirmOrder{Actor: role.WarehouseManager, OrderID: orderID})

	require.NoError(t, err)
	assert.Equal(t, 1, countAppends(eventStore, order.EventOrderConfirmed))
	assert.Equal(t, 1, countAppends(eventStore, payment.EventPaymentCreated))
}

func TestCoordinator_CancelOrder_ByBuyer(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeOrder(t, c)
	require.NoError(t, c.CancelOrder(ctx, CancelOrder{Actor: role.Retailer, OrderID: orderID, Reason: "changed our forecast"}))

	o, err := c.orders.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)
}

func TestCoordinator_CancelOrder_ThirdPartyDenied(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeOrder(t, c)
	err := c.CancelOrder(context.Background(), CancelOrder{Actor: role.Supplier, OrderID: orderID, Reason: "nope"})

	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

// ============================================
// Shipment Command Tests
// ============================================

func TestCoordinator_CreateShipment_Success(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeAndConfirm(t, c)
	sh := shipTo(t, c, orderID, "osaka-dc")

	assert.Equal(t, orderID, sh.OrderID)
	assert.Equal(t, "osaka-dc", sh.Location)
	assert.Equal(t, shipment.StatusPending, sh.Status)

	active, ok := c.activeShipment(orderID)
	require.True(t, ok)
	assert.Equal(t, sh.ID, active)
}

func TestCoordinator_CreateShipment_DefaultLocation(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeAndConfirm(t, c)
	sh, err := c.CreateShipment(context.Background(), CreateShipment{
		Actor:   role.WarehouseManager,
		OrderID: orderID,
	})

	require.NoError(t, err)
	assert.Equal(t, "main", sh.Location)
}

func TestCoordinator_CreateShipment_NotWarehouseManager(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeAndConfirm(t, c)
	_, err := c.CreateShipment(context.Background(), CreateShipment{Actor: role.Retailer, OrderID: orderID})

	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestCoordinator_CreateShipment_OrderNotConfirmed(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeOrder(t, c)
	_, err := c.CreateShipment(context.Background(), CreateShipment{Actor: role.WarehouseManager, OrderID: orderID})

	assert.ErrorIs(t, err, order.ErrOrderNotConfirmed)
}

func TestCoordinator_CreateShipment_ActiveShipmentExists(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeAndConfirm(t, c)
	shipTo(t, c, orderID, "osaka-dc")

	_, err := c.CreateShipment(context.Background(), CreateShipment{Actor: role.WarehouseManager, OrderID: orderID})

	assert.ErrorIs(t, err, ErrActiveShipmentExists)
}

func TestCoordinator_AdvanceShipment_NotWarehouseManager(t *testing.T) {
	c, _, _ := newTestCoordinator()

	err := c.AdvanceShipment(context.Background(), AdvanceShipment{
		Actor:      role.Supplier,
		ShipmentID: "ship-1",
		Target:     shipment.StatusInTransit,
	})

	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestCoordinator_AdvanceShipment_Depart_MarksOrderShipped(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	sh := shipTo(t, c, orderID, "osaka-dc")
	advance(t, c, sh.ID, shipment.StatusInTransit)

	o, err := c.orders.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, o.Status)
	assert.Equal(t, sh.ID, o.ShipmentID)

	got, err := c.shipments.Get(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusInTransit, got.Status)
}

func TestCoordinator_AdvanceShipment_Depart_RetryAfterPartialFailure(t *testing.T) {
	c, eventStore, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	sh := shipTo(t, c, orderID, "osaka-dc")

	// The order write lands, the shipment write does not.
	eventStore.AppendErrFor = map[string]error{shipment.EventShipmentDeparted: errors.New("store unavailable")}
	err := c.AdvanceShipment(ctx, AdvanceShipment{Actor: role.WarehouseManager, ShipmentID: sh.ID, Target: shipment.StatusInTransit})
	require.Error(t, err)

	advance(t, c, sh.ID, shipment.StatusInTransit)

	// The order was only marked shipped once across both attempts.
	assert.Equal(t, 1, countAppends(eventStore, order.EventOrderShipped))
	got, err := c.shipments.Get(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusInTransit, got.Status)
}

// ============================================
// Delivery Trigger Tests
// ============================================

func TestCoordinator_Delivery_ReconcilesEverything(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()
	c.SetPaymentTerm(30 * 24 * time.Hour)

	orderID := placeAndConfirm(t, c)
	sh := deliverOrder(t, c, orderID)

	qty, err := c.QueryInventory(ctx, "widget-a", "osaka-dc")
	require.NoError(t, err)
	assert.Equal(t, 10, qty)
	qty, err = c.QueryInventory(ctx, "widget-b", "osaka-dc")
	require.NoError(t, err)
	assert.Equal(t, 5, qty)

	p, err := c.payments.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusDue, p.Status)
	require.NotNil(t, p.DueAt)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), *p.DueAt, time.Minute)

	o, err := c.orders.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)

	got, err := c.shipments.Get(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusDelivered, got.Status)

	_, ok := c.activeShipment(orderID)
	assert.False(t, ok)
}

func TestCoordinator_Delivery_DuplicateNotificationIsNoOp(t *testing.T) {
	c, eventStore, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	sh := deliverOrder(t, c, orderID)

	before := len(eventStore.AppendCalls)
	err := c.AdvanceShipment(ctx, AdvanceShipment{Actor: role.WarehouseManager, ShipmentID: sh.ID, Target: shipment.StatusDelivered})

	require.NoError(t, err)
	assert.Len(t, eventStore.AppendCalls, before)

	qty, err := c.QueryInventory(ctx, "widget-a", "osaka-dc")
	require.NoError(t, err)
	assert.Equal(t, 10, qty)
}

func TestCoordinator_Delivery_RetryAfterCrashConverges(t *testing.T) {
	c, eventStore, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	sh := shipTo(t, c, orderID, "osaka-dc")
	advance(t, c, sh.ID, shipment.StatusInTransit)

	// Crash after the inventory credits, before the payment due write.
	eventStore.AppendErrFor = map[string]error{payment.EventPaymentDue: errors.New("store unavailable")}
	err := c.AdvanceShipment(ctx, AdvanceShipment{Actor: role.WarehouseManager, ShipmentID: sh.ID, Target: shipment.StatusDelivered})
	require.Error(t, err)

	// Credits landed but the trigger did not commit.
	qty, err := c.QueryInventory(ctx, "widget-a", "osaka-dc")
	require.NoError(t, err)
	assert.Equal(t, 10, qty)
	got, err := c.shipments.Get(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusInTransit, got.Status)

	// The retry replays the credits as no-ops and completes the rest.
	advance(t, c, sh.ID, shipment.StatusDelivered)

	qty, err = c.QueryInventory(ctx, "widget-a", "osaka-dc")
	require.NoError(t, err)
	assert.Equal(t, 10, qty)
	assert.Equal(t, 2, countAppends(eventStore, inventory.EventDeltaApplied))

	p, err := c.payments.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusDue, p.Status)
	o, err := c.orders.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)
}

func TestCoordinator_Delivery_FromPendingRejected(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeAndConfirm(t, c)
	sh := shipTo(t, c, orderID, "osaka-dc")

	err := c.AdvanceShipment(context.Background(), AdvanceShipment{
		Actor:      role.WarehouseManager,
		ShipmentID: sh.ID,
		Target:     shipment.StatusDelivered,
	})

	assert.ErrorIs(t, err, shipment.ErrInvalidTransition)
}

// ============================================
// Payment Command Tests
// ============================================

func TestCoordinator_RecordPayment_AfterDelivery(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)

	require.NoError(t, c.RecordPayment(ctx, RecordPayment{Actor: role.Retailer, OrderID: orderID, Amount: 2250}))

	p, err := c.payments.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, p.Status)
}

func TestCoordinator_RecordPayment_BeforeDelivery(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeAndConfirm(t, c)
	err := c.RecordPayment(context.Background(), RecordPayment{Actor: role.Retailer, OrderID: orderID, Amount: 2250})

	assert.ErrorIs(t, err, payment.ErrInvalidTransition)
}

func TestCoordinator_RecordPayment_NotBuyer(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)

	err := c.RecordPayment(context.Background(), RecordPayment{Actor: role.WarehouseManager, OrderID: orderID, Amount: 2250})

	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

// ============================================
// Return Command Tests
// ============================================

func TestCoordinator_RequestReturn_Success(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)

	ret, err := c.RequestReturn(ctx, RequestReturn{
		Actor:    role.Retailer,
		OrderID:  orderID,
		SKU:      "widget-a",
		Quantity: 3,
		Reason:   "damaged in transit",
	})

	require.NoError(t, err)
	assert.Equal(t, 3, ret.Quantity)
	assert.Equal(t, returns.StatusPending, ret.Status)
}

func TestCoordinator_RequestReturn_ZeroMeansFullQuantity(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)

	ret, err := c.RequestReturn(context.Background(), RequestReturn{
		Actor:   role.Retailer,
		OrderID: orderID,
		SKU:     "widget-a",
		Reason:  "wrong spec",
	})

	require.NoError(t, err)
	assert.Equal(t, 10, ret.Quantity)
}

func TestCoordinator_RequestReturn_BeforeDelivery(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeAndConfirm(t, c)
	_, err := c.RequestReturn(context.Background(), RequestReturn{
		Actor:    role.Retailer,
		OrderID:  orderID,
		SKU:      "widget-a",
		Quantity: 1,
	})

	assert.ErrorIs(t, err, ErrOrderNotDelivered)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestCoordinator_RequestReturn_SKUNotInOrder(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)

	_, err := c.RequestReturn(context.Background(), RequestReturn{
		Actor:    role.Retailer,
		OrderID:  orderID,
		SKU:      "widget-z",
		Quantity: 1,
	})

	assert.ErrorIs(t, err, ErrSKUNotInOrder)
}

func TestCoordinator_RequestReturn_ExceedsOrdered(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)

	_, err := c.RequestReturn(context.Background(), RequestReturn{
		Actor:    role.Retailer,
		OrderID:  orderID,
		SKU:      "widget-a",
		Quantity: 11,
	})

	assert.ErrorIs(t, err, ErrReturnExceedsOrdered)
}

func TestCoordinator_RequestReturn_NotRetailer(t *testing.T) {
	c, _, _ := newTestCoordinator()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)

	_, err := c.RequestReturn(context.Background(), RequestReturn{
		Actor:    role.Supplier,
		OrderID:  orderID,
		SKU:      "widget-a",
		Quantity: 1,
	})

	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestCoordinator_ApproveReturn_ReversesLedgers(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)
	require.NoError(t, c.RecordPayment(ctx, RecordPayment{Actor: role.Retailer, OrderID: orderID, Amount: 2250}))

	ret, err := c.RequestReturn(ctx, RequestReturn{Actor: role.Retailer, OrderID: orderID, SKU: "widget-a", Quantity: 3, Reason: "damaged"})
	require.NoError(t, err)

	require.NoError(t, c.ApproveReturn(ctx, ApproveReturn{Actor: role.WarehouseManager, ReturnID: ret.ID}))

	qty, err := c.QueryInventory(ctx, "widget-a", "osaka-dc")
	require.NoError(t, err)
	assert.Equal(t, 7, qty)

	p, err := c.payments.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 300, p.RefundedAmount)
	assert.Equal(t, payment.StatusPaid, p.Status)

	got, err := c.returns.Get(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, returns.StatusApproved, got.Status)
}

func TestCoordinator_ApproveReturn_BeforePaymentReducesPayable(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)

	ret, err := c.RequestReturn(ctx, RequestReturn{Actor: role.Retailer, OrderID: orderID, SKU: "widget-b", Quantity: 2, Reason: "damaged"})
	require.NoError(t, err)
	require.NoError(t, c.ApproveReturn(ctx, ApproveReturn{Actor: role.WarehouseManager, ReturnID: ret.ID}))

	p, err := c.payments.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusDue, p.Status)
	assert.Equal(t, 2250-500, p.Payable())

	// The buyer settles the reduced balance.
	require.NoError(t, c.RecordPayment(ctx, RecordPayment{Actor: role.Retailer, OrderID: orderID, Amount: 1750}))
}

func TestCoordinator_ApproveReturn_NotSeller(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)
	ret, err := c.RequestReturn(ctx, RequestReturn{Actor: role.Retailer, OrderID: orderID, SKU: "widget-a", Quantity: 1})
	require.NoError(t, err)

	err = c.ApproveReturn(ctx, ApproveReturn{Actor: role.Retailer, ReturnID: ret.ID})

	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestCoordinator_ApproveReturn_AlreadyApproved(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)
	ret, err := c.RequestReturn(ctx, RequestReturn{Actor: role.Retailer, OrderID: orderID, SKU: "widget-a", Quantity: 3})
	require.NoError(t, err)
	require.NoError(t, c.ApproveReturn(ctx, ApproveReturn{Actor: role.WarehouseManager, ReturnID: ret.ID}))

	err = c.ApproveReturn(ctx, ApproveReturn{Actor: role.WarehouseManager, ReturnID: ret.ID})

	assert.ErrorIs(t, err, returns.ErrInvalidTransition)

	// The ledger effects were not applied twice.
	qty, err := c.QueryInventory(ctx, "widget-a", "osaka-dc")
	require.NoError(t, err)
	assert.Equal(t, 7, qty)
}

func TestCoordinator_ApproveReturn_RetryAfterCrashConverges(t *testing.T) {
	c, eventStore, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)
	require.NoError(t, c.RecordPayment(ctx, RecordPayment{Actor: role.Retailer, OrderID: orderID, Amount: 2250}))
	ret, err := c.RequestReturn(ctx, RequestReturn{Actor: role.Retailer, OrderID: orderID, SKU: "widget-a", Quantity: 3})
	require.NoError(t, err)

	// Crash after the ledger effects, before the approval commits.
	eventStore.AppendErrFor = map[string]error{returns.EventReturnApproved: errors.New("store unavailable")}
	err = c.ApproveReturn(ctx, ApproveReturn{Actor: role.WarehouseManager, ReturnID: ret.ID})
	require.Error(t, err)

	got, err := c.returns.Get(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, returns.StatusPending, got.Status)

	require.NoError(t, c.ApproveReturn(ctx, ApproveReturn{Actor: role.WarehouseManager, ReturnID: ret.ID}))

	// Both ledger effects applied exactly once across the two attempts.
	qty, err := c.QueryInventory(ctx, "widget-a", "osaka-dc")
	require.NoError(t, err)
	assert.Equal(t, 7, qty)
	p, err := c.payments.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 300, p.RefundedAmount)
	assert.Equal(t, 1, countAppends(eventStore, payment.EventPaymentRefunded))
}

func TestCoordinator_RejectReturn_NoLedgerEffects(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)
	ret, err := c.RequestReturn(ctx, RequestReturn{Actor: role.Retailer, OrderID: orderID, SKU: "widget-a", Quantity: 3})
	require.NoError(t, err)

	require.NoError(t, c.RejectReturn(ctx, RejectReturn{Actor: role.WarehouseManager, ReturnID: ret.ID, Reason: "outside window"}))

	got, err := c.returns.Get(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, returns.StatusRejected, got.Status)

	qty, err := c.QueryInventory(ctx, "widget-a", "osaka-dc")
	require.NoError(t, err)
	assert.Equal(t, 10, qty)
}

// ============================================
// Shared Ledger Concurrency Tests
// ============================================

// Deliveries and a return approval race on one (SKU, location) ledger. The
// canonical lock order serializes them, so every credit and the reversal land
// exactly once whatever the interleaving.
func TestCoordinator_ConcurrentDeliveryAndApproval_SharedLedger(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	order1 := placeAndConfirm(t, c)
	deliverOrder(t, c, order1)
	ret, err := c.RequestReturn(ctx, RequestReturn{Actor: role.Retailer, OrderID: order1, SKU: "widget-a", Quantity: 10, Reason: "damaged"})
	require.NoError(t, err)

	order2 := placeAndConfirm(t, c)
	sh2 := shipTo(t, c, order2, "osaka-dc")
	advance(t, c, sh2.ID, shipment.StatusInTransit)

	order3 := placeAndConfirm(t, c)
	sh3 := shipTo(t, c, order3, "osaka-dc")
	advance(t, c, sh3.ID, shipment.StatusInTransit)

	errs := make(chan error, 3)
	go func() {
		errs <- c.AdvanceShipment(ctx, AdvanceShipment{Actor: role.WarehouseManager, ShipmentID: sh2.ID, Target: shipment.StatusDelivered})
	}()
	go func() {
		errs <- c.AdvanceShipment(ctx, AdvanceShipment{Actor: role.WarehouseManager, ShipmentID: sh3.ID, Target: shipment.StatusDelivered})
	}()
	go func() {
		errs <- c.ApproveReturn(ctx, ApproveReturn{Actor: role.WarehouseManager, ReturnID: ret.ID})
	}()
	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}

	// 10 credited per delivery, 10 reversed by the approval.
	qty, err := c.QueryInventory(ctx, "widget-a", "osaka-dc")
	require.NoError(t, err)
	assert.Equal(t, 20, qty)
	qty, err = c.QueryInventory(ctx, "widget-b", "osaka-dc")
	require.NoError(t, err)
	assert.Equal(t, 15, qty)
}

// Two approvals compete for the same credited stock. Exactly one wins; the
// loser fails the ledger check with nothing written, and the quantity never
// goes negative.
func TestCoordinator_ConcurrentApprovals_NeverOverdrawLedger(t *testing.T) {
	c, eventStore, _ := newTestCoordinator()
	ctx := context.Background()

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)

	ret1, err := c.RequestReturn(ctx, RequestReturn{Actor: role.Retailer, OrderID: orderID, SKU: "widget-a", Quantity: 10, Reason: "damaged"})
	require.NoError(t, err)
	ret2, err := c.RequestReturn(ctx, RequestReturn{Actor: role.Retailer, OrderID: orderID, SKU: "widget-a", Quantity: 10, Reason: "damaged"})
	require.NoError(t, err)

	errs := make(chan error, 2)
	go func() {
		errs <- c.ApproveReturn(ctx, ApproveReturn{Actor: role.WarehouseManager, ReturnID: ret1.ID})
	}()
	go func() {
		errs <- c.ApproveReturn(ctx, ApproveReturn{Actor: role.WarehouseManager, ReturnID: ret2.ID})
	}()

	approved, rejected := 0, 0
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
			rejected++
		} else {
			approved++
		}
	}
	assert.Equal(t, 1, approved)
	assert.Equal(t, 1, rejected)

	qty, err := c.QueryInventory(ctx, "widget-a", "osaka-dc")
	require.NoError(t, err)
	assert.Equal(t, 0, qty)

	// Only the winning approval touched the payment.
	assert.Equal(t, 1, countAppends(eventStore, payment.EventPaymentRefunded))
}

// ============================================
// Overdue Sweep Tests
// ============================================

func TestCoordinator_SweepOverdue_MarksElapsedPayments(t *testing.T) {
	c, _, readStore := newTestCoordinator()
	ctx := context.Background()
	c.SetPaymentTerm(-time.Hour) // due date lands in the past at delivery

	overdueOrder := placeAndConfirm(t, c)
	deliverOrder(t, c, overdueOrder)

	c.SetPaymentTerm(30 * 24 * time.Hour)
	freshOrder := placeAndConfirm(t, c)
	deliverOrder(t, c, freshOrder)

	// Project the two payments by hand; the sweep reads the read models.
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(30 * 24 * time.Hour)
	readStore.Set(readmodel.CollectionPayments, overdueOrder, &readmodel.PaymentReadModel{
		OrderID: overdueOrder, Status: string(payment.StatusDue), DueAt: &past,
	})
	readStore.Set(readmodel.CollectionPayments, freshOrder, &readmodel.PaymentReadModel{
		OrderID: freshOrder, Status: string(payment.StatusDue), DueAt: &future,
	})

	marked := c.SweepOverdue(ctx, time.Now())

	assert.Equal(t, 1, marked)
	p, err := c.payments.Get(ctx, overdueOrder)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusOverdue, p.Status)
	p, err = c.payments.Get(ctx, freshOrder)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusDue, p.Status)
}

func TestCoordinator_SweepOverdue_SkipsStaleReadModels(t *testing.T) {
	c, _, readStore := newTestCoordinator()
	ctx := context.Background()
	c.SetPaymentTerm(-time.Hour)

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)
	require.NoError(t, c.RecordPayment(ctx, RecordPayment{Actor: role.Retailer, OrderID: orderID, Amount: 2250}))

	// The read model still says due, but the aggregate already settled.
	past := time.Now().Add(-time.Hour)
	readStore.Set(readmodel.CollectionPayments, orderID, &readmodel.PaymentReadModel{
		OrderID: orderID, Status: string(payment.StatusDue), DueAt: &past,
	})

	marked := c.SweepOverdue(ctx, time.Now())

	assert.Equal(t, 0, marked)
	p, err := c.payments.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, p.Status)
}

func TestCoordinator_SweepOverdue_Idempotent(t *testing.T) {
	c, eventStore, readStore := newTestCoordinator()
	ctx := context.Background()
	c.SetPaymentTerm(-time.Hour)

	orderID := placeAndConfirm(t, c)
	deliverOrder(t, c, orderID)

	past := time.Now().Add(-time.Hour)
	readStore.Set(readmodel.CollectionPayments, orderID, &readmodel.PaymentReadModel{
		OrderID: orderID, Status: string(payment.StatusDue), DueAt: &past,
	})

	assert.Equal(t, 1, c.SweepOverdue(ctx, time.Now()))

	// Re-sweeping against the stale read model writes nothing new.
	c.SweepOverdue(ctx, time.Now())
	assert.Equal(t, 1, countAppends(eventStore, payment.EventPaymentOverdue))
}

// ============================================
// Shipment Index Tests
// ============================================

func TestCoordinator_RebuildShipmentIndex(t *testing.T) {
	c, eventStore, _ := newTestCoordinator()

	orderA := placeAndConfirm(t, c)
	shA := shipTo(t, c, orderA, "osaka-dc")

	orderB := placeAndConfirm(t, c)
	deliverOrder(t, c, orderB)

	// A fresh coordinator over the same store rebuilds the same index.
	fresh := NewCoordinator(c.orders, c.shipments, c.inventory, c.payments, c.returns, c.readStore)
	fresh.RebuildShipmentIndex(eventStore.GetAllEvents())

	active, ok := fresh.activeShipment(orderA)
	require.True(t, ok)
	assert.Equal(t, shA.ID, active)

	_, ok = fresh.activeShipment(orderB)
	assert.False(t, ok)

	// The rebuilt index still blocks a second shipment for the open order.
	_, err := fresh.CreateShipment(context.Background(), CreateShipment{Actor: role.WarehouseManager, OrderID: orderA})
	assert.ErrorIs(t, err, ErrActiveShipmentExists)
}
