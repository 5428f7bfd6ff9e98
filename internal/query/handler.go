package query

import (
	"log"

	"github.com/example/supplychain-recon/internal/domain/inventory"
	"github.com/example/supplychain-recon/internal/infrastructure/store"
	"github.com/example/supplychain-recon/internal/readmodel"
)

type Handler struct {
	readStore store.ReadStoreInterface
}

func NewHandler(readStore store.ReadStoreInterface) *Handler {
	return &Handler{readStore: readStore}
}

// Orders
func (h *Handler) GetOrder(id string) (*OrderReadModel, bool) {
	data, ok, err := h.readStore.Get(readmodel.CollectionOrders, id)
	if err != nil {
		log.Printf("[Query] Error getting order %s: %v", id, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return data.(*OrderReadModel), true
}

// ListOrdersByRole returns orders where the given role is buyer or seller
func (h *Handler) ListOrdersByRole(roleName string) []*OrderReadModel {
	items, err := h.readStore.GetAll(readmodel.CollectionOrders)
	if err != nil {
		log.Printf("[Query] Error listing orders: %v", err)
		return nil
	}
	orders := make([]*OrderReadModel, 0)
	for _, item := range items {
		o := item.(*OrderReadModel)
		if o.BuyerRole == roleName || o.SellerRole == roleName {
			orders = append(orders, o)
		}
	}
	return orders
}

func (h *Handler) ListAllOrders() []*OrderReadModel {
	items, err := h.readStore.GetAll(readmodel.CollectionOrders)
	if err != nil {
		log.Printf("[Query] Error listing all orders: %v", err)
		return nil
	}
	orders := make([]*OrderReadModel, 0, len(items))
	for _, item := range items {
		orders = append(orders, item.(*OrderReadModel))
	}
	return orders
}

// Shipments
func (h *Handler) GetShipment(id string) (*ShipmentReadModel, bool) {
	data, ok, err := h.readStore.Get(readmodel.CollectionShipments, id)
	if err != nil {
		log.Printf("[Query] Error getting shipment %s: %v", id, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return data.(*ShipmentReadModel), true
}

// ListShipmentsByOrder returns every shipment ever opened for an order
func (h *Handler) ListShipmentsByOrder(orderID string) []*ShipmentReadModel {
	items, err := h.readStore.GetAll(readmodel.CollectionShipments)
	if err != nil {
		log.Printf("[Query] Error listing shipments: %v", err)
		return nil
	}
	shipments := make([]*ShipmentReadModel, 0)
	for _, item := range items {
		sh := item.(*ShipmentReadModel)
		if sh.OrderID == orderID {
			shipments = append(shipments, sh)
		}
	}
	return shipments
}

// Inventory
func (h *Handler) GetInventory(sku, location string) (*InventoryReadModel, bool) {
	id := inventory.LedgerID(sku, location)
	data, ok, err := h.readStore.Get(readmodel.CollectionInventory, id)
	if err != nil {
		log.Printf("[Query] Error getting inventory %s: %v", id, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return data.(*InventoryReadModel), true
}

func (h *Handler) ListInventory() []*InventoryReadModel {
	items, err := h.readStore.GetAll(readmodel.CollectionInventory)
	if err != nil {
		log.Printf("[Query] Error listing inventory: %v", err)
		return nil
	}
	ledgers := make([]*InventoryReadModel, 0, len(items))
	for _, item := range items {
		ledgers = append(ledgers, item.(*InventoryReadModel))
	}
	return ledgers
}

// Payments
func (h *Handler) GetPayment(orderID string) (*PaymentReadModel, bool) {
	data, ok, err := h.readStore.Get(readmodel.CollectionPayments, orderID)
	if err != nil {
		log.Printf("[Query] Error getting payment for order %s: %v", orderID, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return data.(*PaymentReadModel), true
}

// ListPaymentsByStatus filters payments by status; an empty status lists all
func (h *Handler) ListPaymentsByStatus(status string) []*PaymentReadModel {
	items, err := h.readStore.GetAll(readmodel.CollectionPayments)
	if err != nil {
		log.Printf("[Query] Error listing payments: %v", err)
		return nil
	}
	payments := make([]*PaymentReadModel, 0)
	for _, item := range items {
		pm := item.(*PaymentReadModel)
		if status == "" || pm.Status == status {
			payments = append(payments, pm)
		}
	}
	return payments
}

// Returns
func (h *Handler) GetReturn(id string) (*ReturnReadModel, bool) {
	data, ok, err := h.readStore.Get(readmodel.CollectionReturns, id)
	if err != nil {
		log.Printf("[Query] Error getting return %s: %v", id, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return data.(*ReturnReadModel), true
}

func (h *Handler) ListReturnsByOrder(orderID string) []*ReturnReadModel {
	items, err := h.readStore.GetAll(readmodel.CollectionReturns)
	if err != nil {
		log.Printf("[Query] Error listing returns: %v", err)
		return nil
	}
	rets := make([]*ReturnReadModel, 0)
	for _, item := range items {
		r := item.(*ReturnReadModel)
		if r.OrderID == orderID {
			rets = append(rets, r)
		}
	}
	return rets
}
