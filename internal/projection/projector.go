package projection

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/supplychain-recon/internal/domain/inventory"
	"github.com/example/supplychain-recon/internal/domain/order"
	"github.com/example/supplychain-recon/internal/domain/payment"
	"github.com/example/supplychain-recon/internal/domain/returns"
	"github.com/example/supplychain-recon/internal/domain/shipment"
	"github.com/example/supplychain-recon/internal/infrastructure/store"
	"github.com/example/supplychain-recon/internal/readmodel"
)

type Projector struct {
	readStore store.ReadStoreInterface
}

func NewProjector(readStore store.ReadStoreInterface) *Projector {
	return &Projector{readStore: readStore}
}

func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}

	log.Printf("[Projector] Received event: %s (aggregate: %s)", event.EventType, event.AggregateType)

	switch event.AggregateType {
	case order.AggregateType:
		return p.handleOrderEvent(event)
	case shipment.AggregateType:
		return p.handleShipmentEvent(event)
	case inventory.AggregateType:
		return p.handleInventoryEvent(event)
	case payment.AggregateType:
		return p.handlePaymentEvent(event)
	case returns.AggregateType:
		return p.handleReturnEvent(event)
	}

	return nil
}

func (p *Projector) handleOrderEvent(event store.Event) error {
	switch event.EventType {
	case order.EventOrderCreated:
		var e order.OrderCreated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		items := make([]readmodel.OrderItemReadModel, len(e.Items))
		for i, item := range e.Items {
			items[i] = readmodel.OrderItemReadModel{
				SKU:       item.SKU,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			}
		}
		p.readStore.Set(readmodel.CollectionOrders, e.OrderID, &readmodel.OrderReadModel{
			ID:         e.OrderID,
			BuyerRole:  string(e.BuyerRole),
			SellerRole: string(e.SellerRole),
			Items:      items,
			Total:      e.Total,
			Status:     string(order.StatusPlaced),
			CreatedAt:  e.CreatedAt,
			UpdatedAt:  e.CreatedAt,
		})

	case order.EventOrderConfirmed:
		var e order.OrderConfirmed
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update(readmodel.CollectionOrders, e.OrderID, func(current any) any {
			o := current.(*readmodel.OrderReadModel)
			o.Status = string(order.StatusConfirmed)
			o.UpdatedAt = e.ConfirmedAt
			return o
		})

	case order.EventOrderShipped:
		var e order.OrderShipped
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update(readmodel.CollectionOrders, e.OrderID, func(current any) any {
			o := current.(*readmodel.OrderReadModel)
			o.Status = string(order.StatusShipped)
			o.ShipmentID = e.ShipmentID
			o.UpdatedAt = e.ShippedAt
			return o
		})

	case order.EventOrderDelivered:
		var e order.OrderDelivered
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update(readmodel.CollectionOrders, e.OrderID, func(current any) any {
			o := current.(*readmodel.OrderReadModel)
			o.Status = string(order.StatusDelivered)
			o.UpdatedAt = e.DeliveredAt
			return o
		})

	case order.EventOrderCancelled:
		var e order.OrderCancelled
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update(readmodel.CollectionOrders, e.OrderID, func(current any) any {
			o := current.(*readmodel.OrderReadModel)
			o.Status = string(order.StatusCancelled)
			o.UpdatedAt = e.CancelledAt
			return o
		})
	}

	return nil
}

func (p *Projector) handleShipmentEvent(event store.Event) error {
	switch event.EventType {
	case shipment.EventShipmentCreated:
		var e shipment.ShipmentCreated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Set(readmodel.CollectionShipments, e.ShipmentID, &readmodel.ShipmentReadModel{
			ID:        e.ShipmentID,
			OrderID:   e.OrderID,
			Location:  e.Location,
			Status:    string(shipment.StatusPending),
			ETA:       e.ETA,
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.CreatedAt,
		})

	case shipment.EventShipmentDeparted:
		var e shipment.ShipmentDeparted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update(readmodel.CollectionShipments, e.ShipmentID, func(current any) any {
			sh := current.(*readmodel.ShipmentReadModel)
			sh.Status = string(shipment.StatusInTransit)
			sh.DepartedAt = &e.DepartedAt
			sh.UpdatedAt = e.DepartedAt
			return sh
		})

	case shipment.EventShipmentDelivered:
		var e shipment.ShipmentDelivered
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update(readmodel.CollectionShipments, e.ShipmentID, func(current any) any {
			sh := current.(*readmodel.ShipmentReadModel)
			sh.Status = string(shipment.StatusDelivered)
			sh.DeliveredAt = &e.DeliveredAt
			sh.UpdatedAt = e.DeliveredAt
			return sh
		})
	}

	return nil
}

func (p *Projector) handleInventoryEvent(event store.Event) error {
	switch event.EventType {
	case inventory.EventDeltaApplied:
		var e inventory.DeltaApplied
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		// The event carries the resulting quantity, so projection is a plain
		// overwrite regardless of delivery order.
		p.readStore.Set(readmodel.CollectionInventory, inventory.LedgerID(e.SKU, e.Location), &readmodel.InventoryReadModel{
			SKU:          e.SKU,
			Location:     e.Location,
			Quantity:     e.Quantity,
			LastEventKey: e.EventKey,
			UpdatedAt:    e.AppliedAt,
		})
	}

	return nil
}

func (p *Projector) handlePaymentEvent(event store.Event) error {
	switch event.EventType {
	case payment.EventPaymentCreated:
		var e payment.PaymentCreated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Set(readmodel.CollectionPayments, e.OrderID, &readmodel.PaymentReadModel{
			ID:        e.PaymentID,
			OrderID:   e.OrderID,
			Amount:    e.Amount,
			Status:    string(payment.StatusPending),
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.CreatedAt,
		})

	case payment.EventPaymentDue:
		var e payment.PaymentDue
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update(readmodel.CollectionPayments, e.OrderID, func(current any) any {
			pm := current.(*readmodel.PaymentReadModel)
			pm.Status = string(payment.StatusDue)
			pm.DueAt = &e.DueAt
			pm.UpdatedAt = e.MarkedAt
			return pm
		})

	case payment.EventPaymentOverdue:
		var e payment.PaymentOverdue
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update(readmodel.CollectionPayments, e.OrderID, func(current any) any {
			pm := current.(*readmodel.PaymentReadModel)
			pm.Status = string(payment.StatusOverdue)
			pm.UpdatedAt = e.MarkedAt
			return pm
		})

	case payment.EventPaymentRecorded:
		var e payment.PaymentRecorded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update(readmodel.CollectionPayments, e.OrderID, func(current any) any {
			pm := current.(*readmodel.PaymentReadModel)
			pm.Status = string(payment.StatusPaid)
			pm.PaidAt = &e.PaidAt
			pm.UpdatedAt = e.PaidAt
			return pm
		})

	case payment.EventPaymentRefunded:
		var e payment.PaymentRefunded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update(readmodel.CollectionPayments, e.OrderID, func(current any) any {
			pm := current.(*readmodel.PaymentReadModel)
			pm.RefundedAmount += e.Amount
			if e.Full {
				pm.Status = string(payment.StatusRefunded)
			}
			pm.UpdatedAt = e.RefundedAt
			return pm
		})
	}

	return nil
}

func (p *Projector) handleReturnEvent(event store.Event) error {
	switch event.EventType {
	case returns.EventReturnRequested:
		var e returns.ReturnRequested
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Set(readmodel.CollectionReturns, e.ReturnID, &readmodel.ReturnReadModel{
			ID:          e.ReturnID,
			OrderID:     e.OrderID,
			SKU:         e.SKU,
			Quantity:    e.Quantity,
			Reason:      e.Reason,
			Status:      string(returns.StatusPending),
			RequestedAt: e.RequestedAt,
		})

	case returns.EventReturnApproved:
		var e returns.ReturnApproved
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update(readmodel.CollectionReturns, e.ReturnID, func(current any) any {
			r := current.(*readmodel.ReturnReadModel)
			r.Status = string(returns.StatusApproved)
			r.ResolvedAt = &e.ApprovedAt
			return r
		})

	case returns.EventReturnRejected:
		var e returns.ReturnRejected
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.readStore.Update(readmodel.CollectionReturns, e.ReturnID, func(current any) any {
			r := current.(*readmodel.ReturnReadModel)
			r.Status = string(returns.StatusRejected)
			r.ResolvedAt = &e.RejectedAt
			return r
		})
	}

	return nil
}
