package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/supplychain-recon/internal/domain/payment"
	"github.com/example/supplychain-recon/internal/domain/returns"
	"github.com/example/supplychain-recon/internal/domain/shipment"
	"github.com/example/supplychain-recon/internal/email"
	"github.com/example/supplychain-recon/internal/infrastructure/store"
	"github.com/example/supplychain-recon/internal/readmodel"
)

// Handler processes events for sending notifications. Contact addresses are
// keyed by role name since trading partners are identified by role, not by
// individual accounts.
type Handler struct {
	emailService *email.Service
	readStore    store.ReadStoreInterface
	contacts     map[string]string // role name -> email address
}

// NewHandler creates a new notification handler
func NewHandler(emailSvc *email.Service, readStore store.ReadStoreInterface, contacts map[string]string) *Handler {
	return &Handler{
		emailService: emailSvc,
		readStore:    readStore,
		contacts:     contacts,
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	switch event.EventType {
	case shipment.EventShipmentDelivered:
		return h.handleShipmentDelivered(event)
	case payment.EventPaymentOverdue:
		return h.handlePaymentOverdue(event)
	case returns.EventReturnApproved:
		return h.handleReturnApproved(event)
	}

	return nil
}

func (h *Handler) handleShipmentDelivered(event store.Event) error {
	var e shipment.ShipmentDelivered
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal ShipmentDelivered event: %v", err)
		return err
	}

	o, ok := h.getOrder(e.OrderID)
	if !ok {
		return nil
	}

	to, ok := h.contacts[o.BuyerRole]
	if !ok {
		log.Printf("[Notifier] No contact address for role %s, skipping delivery alert", o.BuyerRole)
		return nil
	}

	items := make([]email.OrderItem, len(o.Items))
	for i, item := range o.Items {
		items[i] = email.OrderItem{
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	location := ""
	if shData, exists, _ := h.readStore.Get(readmodel.CollectionShipments, e.ShipmentID); exists {
		if sh, ok := shData.(*readmodel.ShipmentReadModel); ok {
			location = sh.Location
		}
	}

	if err := h.emailService.SendDeliveryAlert(to, e.OrderID, e.ShipmentID, location, items); err != nil {
		log.Printf("[Notifier] Failed to send delivery alert to %s: %v", to, err)
		return err
	}

	log.Printf("[Notifier] Delivery alert sent to %s for order %s", to, e.OrderID)
	return nil
}

func (h *Handler) handlePaymentOverdue(event store.Event) error {
	var e payment.PaymentOverdue
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal PaymentOverdue event: %v", err)
		return err
	}

	o, ok := h.getOrder(e.OrderID)
	if !ok {
		return nil
	}

	to, ok := h.contacts[o.BuyerRole]
	if !ok {
		log.Printf("[Notifier] No contact address for role %s, skipping overdue alert", o.BuyerRole)
		return nil
	}

	amount := o.Total
	dueAt := e.MarkedAt
	if pmData, exists, _ := h.readStore.Get(readmodel.CollectionPayments, e.OrderID); exists {
		if pm, ok := pmData.(*readmodel.PaymentReadModel); ok {
			amount = pm.Amount - pm.RefundedAmount
			if pm.DueAt != nil {
				dueAt = *pm.DueAt
			}
		}
	}

	if err := h.emailService.SendOverdueAlert(to, e.OrderID, amount, dueAt); err != nil {
		log.Printf("[Notifier] Failed to send overdue alert to %s: %v", to, err)
		return err
	}

	log.Printf("[Notifier] Overdue alert sent to %s for order %s", to, e.OrderID)
	return nil
}

func (h *Handler) handleReturnApproved(event store.Event) error {
	var e returns.ReturnApproved
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal ReturnApproved event: %v", err)
		return err
	}

	o, ok := h.getOrder(e.OrderID)
	if !ok {
		return nil
	}

	// The retailer requested the return, so the buyer of the order is the
	// party waiting on the outcome.
	to, ok := h.contacts[o.BuyerRole]
	if !ok {
		log.Printf("[Notifier] No contact address for role %s, skipping return alert", o.BuyerRole)
		return nil
	}

	sku := ""
	quantity := 0
	refund := 0
	if retData, exists, _ := h.readStore.Get(readmodel.CollectionReturns, e.ReturnID); exists {
		if ret, ok := retData.(*readmodel.ReturnReadModel); ok {
			sku = ret.SKU
			quantity = ret.Quantity
			for _, item := range o.Items {
				if item.SKU == ret.SKU {
					refund = ret.Quantity * item.UnitPrice
					break
				}
			}
		}
	}

	if err := h.emailService.SendReturnApprovedAlert(to, e.ReturnID, e.OrderID, sku, quantity, refund); err != nil {
		log.Printf("[Notifier] Failed to send return alert to %s: %v", to, err)
		return err
	}

	log.Printf("[Notifier] Return approved alert sent to %s for return %s", to, e.ReturnID)
	return nil
}

func (h *Handler) getOrder(orderID string) (*readmodel.OrderReadModel, bool) {
	data, exists, err := h.readStore.Get(readmodel.CollectionOrders, orderID)
	if err != nil {
		log.Printf("[Notifier] Error getting order %s: %v", orderID, err)
		return nil, false
	}
	if !exists {
		log.Printf("[Notifier] Order not found: %s", orderID)
		return nil, false
	}
	o, ok := data.(*readmodel.OrderReadModel)
	if !ok {
		log.Printf("[Notifier] Invalid order data type for order: %s", orderID)
		return nil, false
	}
	return o, true
}
