package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/supplychain-recon/internal/domain/inventory"
	"github.com/example/supplychain-recon/internal/domain/order"
	"github.com/example/supplychain-recon/internal/domain/payment"
	"github.com/example/supplychain-recon/internal/domain/returns"
	"github.com/example/supplychain-recon/internal/domain/role"
	"github.com/example/supplychain-recon/internal/domain/shipment"
	"github.com/example/supplychain-recon/internal/infrastructure/store"
	"github.com/example/supplychain-recon/internal/readmodel"
)

// DefaultPaymentTerm is how long after delivery a payment stays due before
// the sweep may mark it overdue.
const DefaultPaymentTerm = 30 * 24 * time.Hour

var (
	ErrAuthorizationDenied  = errors.New("role not authorized for this operation")
	ErrActiveShipmentExists = errors.New("order already has an active shipment")
	ErrOrderNotDelivered    = fmt.Errorf("%w: order must be delivered", order.ErrInvalidTransition)
	ErrSKUNotInOrder        = errors.New("sku is not part of the order")
	ErrReturnExceedsOrdered = errors.New("return quantity exceeds ordered quantity")
)

// Coordinator serializes cross-entity triggers so a state transition and its
// ledger effects commit together, exactly once. It is the only component that
// composes more than one domain service inside a single logical operation.
//
// Atomicity discipline: every operation (1) takes the resource locks in
// canonical order, (2) validates every transition and ledger precondition
// with nothing written, (3) appends effect events in replay-safe order with
// the triggering status write last. A retry after a failure between appends
// re-runs the idempotent effects as no-ops and completes the status write, so
// no replay can double-apply and no failure leaves an effect without its
// trigger committed.
//
// Append publishes the event to the bus as part of the write, so publication
// happens inside the lock scope and is part of each commit. Consumers are
// read-model projections and alerts only; nothing in a trigger waits on a
// consumer.
type Coordinator struct {
	orders    *order.Service
	shipments *shipment.Service
	inventory *inventory.Service
	payments  *payment.Service
	returns   *returns.Service
	readStore store.ReadStoreInterface

	locks       *keyedMutex
	paymentTerm time.Duration

	// active tracks the one allowed non-terminal shipment per order,
	// maintained synchronously under the order lock and rebuilt from the
	// event store on startup.
	mu     sync.Mutex
	active map[string]string // orderID -> shipmentID
}

func NewCoordinator(
	orderSvc *order.Service,
	shipmentSvc *shipment.Service,
	inventorySvc *inventory.Service,
	paymentSvc *payment.Service,
	returnSvc *returns.Service,
	readStore store.ReadStoreInterface,
) *Coordinator {
	return &Coordinator{
		orders:      orderSvc,
		shipments:   shipmentSvc,
		inventory:   inventorySvc,
		payments:    paymentSvc,
		returns:     returnSvc,
		readStore:   readStore,
		locks:       newKeyedMutex(),
		paymentTerm: DefaultPaymentTerm,
		active:      make(map[string]string),
	}
}

// SetPaymentTerm overrides the delivery-to-due window
func (c *Coordinator) SetPaymentTerm(d time.Duration) {
	c.paymentTerm = d
}

// deliveryEventKey identifies one shipment's delivery credit for one SKU
func deliveryEventKey(shipmentID, sku string) string {
	return shipmentID + ":Delivered:" + sku
}

// returnEventKey identifies one return approval across both ledgers
func returnEventKey(returnID string) string {
	return returnID + ":Approved"
}

// RebuildShipmentIndex restores the active-shipment-per-order index from the
// event history. Called once at startup before serving requests.
func (c *Coordinator) RebuildShipmentIndex(events []store.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, event := range events {
		if event.AggregateType != shipment.AggregateType {
			continue
		}
		switch event.EventType {
		case shipment.EventShipmentCreated:
			var data shipment.ShipmentCreated
			if err := json.Unmarshal(event.Data, &data); err != nil {
				continue
			}
			c.active[data.OrderID] = data.ShipmentID
		case shipment.EventShipmentDelivered:
			var data shipment.ShipmentDelivered
			if err := json.Unmarshal(event.Data, &data); err != nil {
				continue
			}
			delete(c.active, data.OrderID)
		}
	}
	log.Printf("[Recon] Shipment index rebuilt: %d active shipments", len(c.active))
}

func (c *Coordinator) activeShipment(orderID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.active[orderID]
	return id, ok
}

func (c *Coordinator) setActiveShipment(orderID, shipmentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[orderID] = shipmentID
}

func (c *Coordinator) clearActiveShipment(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, orderID)
}

// PlaceOrder creates an order in placed state. The actor is the buyer.
func (c *Coordinator) PlaceOrder(ctx context.Context, cmd PlaceOrder) (*order.Order, error) {
	if !role.Valid(cmd.Actor) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrAuthorizationDenied, cmd.Actor)
	}
	return c.orders.Create(ctx, cmd.Actor, cmd.SellerRole, cmd.Items)
}

// ConfirmOrder moves a placed order to confirmed and opens its payment
// record, as one unit. Only the order's seller may confirm. A retry after a
// failure between the two appends repairs the missing payment instead of
// failing, so the pair converges.
func (c *Coordinator) ConfirmOrder(ctx context.Context, cmd ConfirmOrder) error {
	o, err := c.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if cmd.Actor != o.SellerRole {
		return fmt.Errorf("%w: %s cannot confirm an order sold by %s", ErrAuthorizationDenied, cmd.Actor, o.SellerRole)
	}

	release := c.locks.acquire(lockOrder+cmd.OrderID, lockPayment+cmd.OrderID)
	defer release()

	o, err = c.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}

	switch o.Status {
	case order.StatusPlaced:
		if _, err := c.orders.Confirm(ctx, cmd.OrderID); err != nil {
			return err
		}
	case order.StatusConfirmed:
		// fall through to the payment repair path
	default:
		return fmt.Errorf("%w: cannot confirm %s order", order.ErrInvalidTransition, o.Status)
	}

	if _, err := c.payments.Get(ctx, cmd.OrderID); err == nil {
		return nil
	} else if !errors.Is(err, payment.ErrPaymentNotFound) {
		return err
	}

	_, err = c.payments.Create(ctx, cmd.OrderID, o.Total)
	return err
}

// CancelOrder cancels a placed or confirmed order. Buyer or seller may cancel.
func (c *Coordinator) CancelOrder(ctx context.Context, cmd CancelOrder) error {
	o, err := c.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if cmd.Actor != o.BuyerRole && cmd.Actor != o.SellerRole {
		return fmt.Errorf("%w: %s is not a party to this order", ErrAuthorizationDenied, cmd.Actor)
	}

	release := c.locks.acquire(lockOrder + cmd.OrderID)
	defer release()

	return c.orders.Cancel(ctx, cmd.OrderID, cmd.Reason)
}

// CreateShipment opens a pending shipment for a confirmed order. At most one
// non-terminal shipment may exist per order.
func (c *Coordinator) CreateShipment(ctx context.Context, cmd CreateShipment) (*shipment.Shipment, error) {
	if cmd.Actor != role.WarehouseManager {
		return nil, fmt.Errorf("%w: only a warehouse manager may create shipments", ErrAuthorizationDenied)
	}

	release := c.locks.acquire(lockOrder + cmd.OrderID)
	defer release()

	o, err := c.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusConfirmed {
		return nil, fmt.Errorf("%w: order is %s", order.ErrOrderNotConfirmed, o.Status)
	}
	if existing, ok := c.activeShipment(cmd.OrderID); ok {
		return nil, fmt.Errorf("%w: shipment %s", ErrActiveShipmentExists, existing)
	}

	location := cmd.Location
	if location == "" {
		location = "main"
	}

	sh, err := c.shipments.Create(ctx, cmd.OrderID, location, cmd.ETA)
	if err != nil {
		return nil, err
	}
	c.setActiveShipment(cmd.OrderID, sh.ID)
	return sh, nil
}

// AdvanceShipment moves a shipment forward. Only a warehouse manager may
// advance. Departure also marks the owning order shipped; delivery runs the
// full reconciliation (inventory credit, payment due, order delivered)
// atomically with the shipment's own status write. A delivery notification
// for an already-delivered shipment is a no-op, never an error.
func (c *Coordinator) AdvanceShipment(ctx context.Context, cmd AdvanceShipment) error {
	if cmd.Actor != role.WarehouseManager {
		return fmt.Errorf("%w: only a warehouse manager may advance shipments", ErrAuthorizationDenied)
	}

	// Resolve the owning order before locking; lock keys must be known up front.
	sh, err := c.shipments.Get(ctx, cmd.ShipmentID)
	if err != nil {
		return err
	}
	orderID := sh.OrderID

	switch cmd.Target {
	case shipment.StatusInTransit:
		return c.departShipment(ctx, orderID, cmd.ShipmentID)
	case shipment.StatusDelivered:
		return c.deliverShipment(ctx, orderID, cmd.ShipmentID)
	default:
		return fmt.Errorf("%w: cannot advance to %s", shipment.ErrInvalidTransition, cmd.Target)
	}
}

func (c *Coordinator) departShipment(ctx context.Context, orderID, shipmentID string) error {
	release := c.locks.acquire(lockOrder + orderID)
	defer release()

	sh, err := c.shipments.Get(ctx, shipmentID)
	if err != nil {
		return err
	}
	if !sh.CanTransitionTo(shipment.StatusInTransit) {
		return fmt.Errorf("%w: cannot advance from %s to %s", shipment.ErrInvalidTransition, sh.Status, shipment.StatusInTransit)
	}

	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	// The order may already be shipped if a prior departure attempt failed
	// after the order write; re-running converges.
	if o.Status != order.StatusShipped {
		if !o.CanTransitionTo(order.StatusShipped) {
			return fmt.Errorf("%w: order is %s", order.ErrInvalidTransition, o.Status)
		}
		if err := c.orders.MarkShipped(ctx, orderID, shipmentID); err != nil {
			return err
		}
	}

	return c.shipments.Depart(ctx, shipmentID)
}

// deliverShipment is the delivery trigger. Effect order matters: the
// idempotent ledger effects are appended first and the shipment status write
// goes last, so a crash mid-sequence is repaired by replaying the whole
// trigger.
func (c *Coordinator) deliverShipment(ctx context.Context, orderID, shipmentID string) error {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}

	ledgerIDs := make([]string, 0, len(o.Items))
	shPeek, err := c.shipments.Get(ctx, shipmentID)
	if err != nil {
		return err
	}
	for _, item := range o.Items {
		ledgerIDs = append(ledgerIDs, inventory.LedgerID(item.SKU, shPeek.Location))
	}

	keys := append([]string{lockOrder + orderID}, inventoryKeys(ledgerIDs)...)
	keys = append(keys, lockPayment+orderID)
	release := c.locks.acquire(keys...)
	defer release()

	sh, err := c.shipments.Get(ctx, shipmentID)
	if err != nil {
		return err
	}
	if sh.Status == shipment.StatusDelivered {
		// Duplicate delivery notification; already fully reconciled.
		return nil
	}
	if !sh.CanTransitionTo(shipment.StatusDelivered) {
		return fmt.Errorf("%w: cannot advance from %s to %s", shipment.ErrInvalidTransition, sh.Status, shipment.StatusDelivered)
	}

	o, err = c.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != order.StatusShipped && o.Status != order.StatusDelivered {
		return fmt.Errorf("%w: order is %s", order.ErrInvalidTransition, o.Status)
	}
	if _, err := c.payments.Get(ctx, orderID); err != nil {
		return err
	}

	// Inventory credits, keyed per shipment and SKU; replays return the
	// recorded result without re-applying.
	for _, item := range o.Items {
		if _, err := c.inventory.ApplyDelta(ctx, item.SKU, sh.Location, item.Quantity, deliveryEventKey(shipmentID, item.SKU)); err != nil {
			return err
		}
	}

	if err := c.payments.MarkDue(ctx, orderID, time.Now().Add(c.paymentTerm)); err != nil {
		return err
	}

	if err := c.orders.MarkDelivered(ctx, orderID, shipmentID); err != nil {
		return err
	}

	if err := c.shipments.Deliver(ctx, shipmentID); err != nil {
		return err
	}

	c.clearActiveShipment(orderID)
	log.Printf("[Recon] Shipment %s delivered: order %s reconciled", shipmentID, orderID)
	return nil
}

// RecordPayment settles a due or overdue payment. Only the buyer may pay.
// Paid is unreachable before delivery because due status only ever follows
// the delivery trigger.
func (c *Coordinator) RecordPayment(ctx context.Context, cmd RecordPayment) error {
	o, err := c.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if cmd.Actor != o.BuyerRole {
		return fmt.Errorf("%w: %s is not the buyer of this order", ErrAuthorizationDenied, cmd.Actor)
	}

	release := c.locks.acquire(lockPayment + cmd.OrderID)
	defer release()

	return c.payments.RecordPayment(ctx, cmd.OrderID, cmd.Amount)
}

// RequestReturn opens a return for a delivered order. Retailer-only, per the
// role contract; the SKU must belong to the order and the quantity may not
// exceed what was ordered.
func (c *Coordinator) RequestReturn(ctx context.Context, cmd RequestReturn) (*returns.ReturnRequest, error) {
	if cmd.Actor != role.Retailer {
		return nil, fmt.Errorf("%w: only a retailer may request returns", ErrAuthorizationDenied)
	}

	release := c.locks.acquire(lockOrder + cmd.OrderID)
	defer release()

	o, err := c.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusDelivered {
		return nil, fmt.Errorf("%w: order is %s", ErrOrderNotDelivered, o.Status)
	}

	ordered, _, ok := o.QuantityOf(cmd.SKU)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSKUNotInOrder, cmd.SKU)
	}
	quantity := cmd.Quantity
	if quantity == 0 {
		quantity = ordered
	}
	if quantity > ordered {
		return nil, fmt.Errorf("%w: %d > %d", ErrReturnExceedsOrdered, quantity, ordered)
	}

	return c.returns.Request(ctx, cmd.OrderID, cmd.SKU, quantity, cmd.Reason)
}

// ApproveReturn approves a pending return and applies its ledger effects as
// one unit: the inventory credit from delivery is reversed and the payment is
// adjusted (refund if paid, payable reduction otherwise). Only the order's
// seller may approve. Both ledger effects are keyed by the return, so a
// replayed approval cannot double-apply.
func (c *Coordinator) ApproveReturn(ctx context.Context, cmd ApproveReturn) error {
	ret, err := c.returns.Get(ctx, cmd.ReturnID)
	if err != nil {
		return err
	}
	orderID := ret.OrderID

	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if cmd.Actor != o.SellerRole {
		return fmt.Errorf("%w: %s cannot approve a return sold by %s", ErrAuthorizationDenied, cmd.Actor, o.SellerRole)
	}

	sh, err := c.shipments.Get(ctx, o.ShipmentID)
	if err != nil {
		return err
	}
	ledgerID := inventory.LedgerID(ret.SKU, sh.Location)

	keys := append([]string{lockOrder + orderID}, inventoryKeys([]string{ledgerID})...)
	keys = append(keys, lockPayment+orderID)
	release := c.locks.acquire(keys...)
	defer release()

	ret, err = c.returns.Get(ctx, cmd.ReturnID)
	if err != nil {
		return err
	}
	if ret.Status != returns.StatusPending {
		return fmt.Errorf("%w: cannot approve %s return", returns.ErrInvalidTransition, ret.Status)
	}

	o, err = c.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != order.StatusDelivered {
		return fmt.Errorf("%w: order is %s", ErrOrderNotDelivered, o.Status)
	}

	_, unitPrice, ok := o.QuantityOf(ret.SKU)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSKUNotInOrder, ret.SKU)
	}

	key := returnEventKey(cmd.ReturnID)

	// Reverse the delivery credit. This can fail with insufficient stock if
	// the goods have already moved on, in which case nothing is written.
	if _, err := c.inventory.ApplyDelta(ctx, ret.SKU, sh.Location, -ret.Quantity, key); err != nil {
		return err
	}

	if err := c.payments.Refund(ctx, orderID, ret.Quantity*unitPrice, key); err != nil {
		return err
	}

	if err := c.returns.Approve(ctx, cmd.ReturnID); err != nil {
		return err
	}

	log.Printf("[Recon] Return %s approved: order %s reconciled", cmd.ReturnID, orderID)
	return nil
}

// RejectReturn rejects a pending return. Pure status change, no ledger
// effects. Only the order's seller may reject.
func (c *Coordinator) RejectReturn(ctx context.Context, cmd RejectReturn) error {
	ret, err := c.returns.Get(ctx, cmd.ReturnID)
	if err != nil {
		return err
	}

	o, err := c.orders.Get(ctx, ret.OrderID)
	if err != nil {
		return err
	}
	if cmd.Actor != o.SellerRole {
		return fmt.Errorf("%w: %s cannot reject a return sold by %s", ErrAuthorizationDenied, cmd.Actor, o.SellerRole)
	}

	release := c.locks.acquire(lockOrder + ret.OrderID)
	defer release()

	return c.returns.Reject(ctx, cmd.ReturnID, cmd.Reason)
}

// QueryInventory returns the authoritative quantity for a (SKU, location)
// ledger. Read-only; takes no locks.
func (c *Coordinator) QueryInventory(ctx context.Context, sku, location string) (int, error) {
	return c.inventory.Query(ctx, sku, location)
}

// SweepOverdue marks every due payment whose due date has elapsed as
// overdue. Scheduled and idempotent; it scans the payment read models and
// re-validates against the aggregate under the payment lock only, so it
// never contends with delivery or return triggers beyond the payment row.
func (c *Coordinator) SweepOverdue(ctx context.Context, now time.Time) int {
	items, err := c.readStore.GetAll(readmodel.CollectionPayments)
	if err != nil {
		log.Printf("[Recon] Overdue sweep failed to list payments: %v", err)
		return 0
	}

	marked := 0
	for _, item := range items {
		pm, ok := item.(*readmodel.PaymentReadModel)
		if !ok {
			continue
		}
		if pm.Status != string(payment.StatusDue) || pm.DueAt == nil || now.Before(*pm.DueAt) {
			continue
		}

		release := c.locks.acquire(lockPayment + pm.OrderID)
		err := c.payments.MarkOverdue(ctx, pm.OrderID, now)
		release()

		if err != nil {
			// The read model may lag the aggregate; a payment that moved on
			// since projection is simply skipped.
			if !errors.Is(err, payment.ErrInvalidTransition) && !errors.Is(err, payment.ErrNotDue) {
				log.Printf("[Recon] Overdue sweep: order %s: %v", pm.OrderID, err)
			}
			continue
		}
		marked++
	}

	if marked > 0 {
		log.Printf("[Recon] Overdue sweep marked %d payments", marked)
	}
	return marked
}
