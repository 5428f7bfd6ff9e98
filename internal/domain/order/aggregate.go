package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/supplychain-recon/internal/domain/aggregate"
	"github.com/example/supplychain-recon/internal/domain/role"
	"github.com/example/supplychain-recon/internal/infrastructure/store"
	"github.com/google/uuid"
)

const AggregateType = "Order"

type Status string

const (
	StatusPlaced    Status = "placed"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyOrder        = errors.New("order must have at least one line item")
	ErrInvalidLineItem   = errors.New("line item must have a sku and positive quantity")
	ErrInvalidRolePair   = errors.New("buyer role cannot order from seller role")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrOrderCancelled    = errors.New("order is already cancelled")
	ErrOrderNotConfirmed = errors.New("order must be confirmed before shipping")
	ErrOrderShipped      = errors.New("cannot cancel an order that has shipped")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPlaced:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: {}, // terminal state
	StatusCancelled: {}, // terminal state
}

type Order struct {
	ID         string     `json:"id"`
	BuyerRole  role.Role  `json:"buyer_role"`
	SellerRole role.Role  `json:"seller_role"`
	Items      []LineItem `json:"items"`
	Total      int        `json:"total"`
	Status     Status     `json:"status"`
	ShipmentID string     `json:"shipment_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Version    int        `json:"version"` // Current event version
}

// Aggregate interface implementation
func (o *Order) GetID() string    { return o.ID }
func (o *Order) GetVersion() int  { return o.Version }
func (o *Order) SetVersion(v int) { o.Version = v }

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusCancelled:
		return ErrOrderCancelled
	case (o.Status == StatusShipped || o.Status == StatusDelivered) && target == StatusCancelled:
		return ErrOrderShipped
	case o.Status == StatusPlaced && target == StatusShipped:
		return ErrOrderNotConfirmed
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, target)
	}
}

// QuantityOf returns the ordered quantity and unit price for a SKU
func (o *Order) QuantityOf(sku string) (quantity, unitPrice int, ok bool) {
	for _, item := range o.Items {
		if item.SKU == sku {
			return item.Quantity, item.UnitPrice, true
		}
	}
	return 0, 0, false
}

// ApplyEvent applies a single event to the order state (implements aggregate.Aggregate)
func (o *Order) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventOrderCreated:
		var data OrderCreated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.ID = data.OrderID
		o.BuyerRole = data.BuyerRole
		o.SellerRole = data.SellerRole
		o.Items = data.Items
		o.Total = data.Total
		o.Status = StatusPlaced
		o.CreatedAt = data.CreatedAt
		o.UpdatedAt = data.CreatedAt
	case EventOrderConfirmed:
		var data OrderConfirmed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusConfirmed
		o.UpdatedAt = data.ConfirmedAt
	case EventOrderShipped:
		var data OrderShipped
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusShipped
		o.ShipmentID = data.ShipmentID
		o.UpdatedAt = data.ShippedAt
	case EventOrderDelivered:
		var data OrderDelivered
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusDelivered
		o.UpdatedAt = data.DeliveredAt
	case EventOrderCancelled:
		var data OrderCancelled
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusCancelled
		o.UpdatedAt = data.CancelledAt
	}
	o.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

// Get loads an order by replaying events, using snapshot if available
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	o, found, err := aggregate.LoadAggregate(ctx, s.eventStore, orderID, func() *Order {
		return &Order{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) Create(ctx context.Context, buyer, seller role.Role, items []LineItem) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, item := range items {
		if item.SKU == "" || item.Quantity <= 0 || item.UnitPrice < 0 {
			return nil, ErrInvalidLineItem
		}
	}
	if !role.ValidTradingPair(buyer, seller) {
		return nil, fmt.Errorf("%w: %s from %s", ErrInvalidRolePair, buyer, seller)
	}

	orderID := uuid.New().String()
	now := time.Now()

	var total int
	for _, item := range items {
		total += item.UnitPrice * item.Quantity
	}

	event := OrderCreated{
		OrderID:    orderID,
		BuyerRole:  buyer,
		SellerRole: seller,
		Items:      items,
		Total:      total,
		CreatedAt:  now,
	}

	storedEvent, err := s.eventStore.Append(ctx, orderID, AggregateType, EventOrderCreated, event)
	if err != nil {
		return nil, err
	}

	version := 0
	if storedEvent != nil {
		version = storedEvent.Version
	}

	o := &Order{
		ID:         orderID,
		BuyerRole:  buyer,
		SellerRole: seller,
		Items:      items,
		Total:      total,
		Status:     StatusPlaced,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    version,
	}

	s.maybeSnapshot(ctx, o)
	return o, nil
}

func (s *Service) Confirm(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !o.CanTransitionTo(StatusConfirmed) {
		return nil, o.transitionError(StatusConfirmed)
	}

	event := OrderConfirmed{
		OrderID:     orderID,
		ConfirmedAt: time.Now(),
	}

	storedEvent, err := s.eventStore.Append(ctx, orderID, AggregateType, EventOrderConfirmed, event)
	if err != nil {
		return nil, err
	}

	o.Status = StatusConfirmed
	if storedEvent != nil {
		o.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, o)
	return o, nil
}

func (s *Service) MarkShipped(ctx context.Context, orderID, shipmentID string) error {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if !o.CanTransitionTo(StatusShipped) {
		return o.transitionError(StatusShipped)
	}

	event := OrderShipped{
		OrderID:    orderID,
		ShipmentID: shipmentID,
		ShippedAt:  time.Now(),
	}

	storedEvent, err := s.eventStore.Append(ctx, orderID, AggregateType, EventOrderShipped, event)
	if err != nil {
		return err
	}

	o.Status = StatusShipped
	o.ShipmentID = shipmentID
	if storedEvent != nil {
		o.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, o)
	return nil
}

// MarkDelivered records delivery. Calling it for an already-delivered order
// is a no-op so delivery triggers can be replayed safely.
func (s *Service) MarkDelivered(ctx context.Context, orderID, shipmentID string) error {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if o.Status == StatusDelivered {
		return nil
	}

	if !o.CanTransitionTo(StatusDelivered) {
		return o.transitionError(StatusDelivered)
	}

	event := OrderDelivered{
		OrderID:     orderID,
		ShipmentID:  shipmentID,
		DeliveredAt: time.Now(),
	}

	storedEvent, err := s.eventStore.Append(ctx, orderID, AggregateType, EventOrderDelivered, event)
	if err != nil {
		return err
	}

	o.Status = StatusDelivered
	if storedEvent != nil {
		o.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, o)
	return nil
}

func (s *Service) Cancel(ctx context.Context, orderID, reason string) error {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if !o.CanTransitionTo(StatusCancelled) {
		return o.transitionError(StatusCancelled)
	}

	event := OrderCancelled{
		OrderID:     orderID,
		Reason:      reason,
		CancelledAt: time.Now(),
	}

	storedEvent, err := s.eventStore.Append(ctx, orderID, AggregateType, EventOrderCancelled, event)
	if err != nil {
		return err
	}

	o.Status = StatusCancelled
	if storedEvent != nil {
		o.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, o)
	return nil
}

func (s *Service) maybeSnapshot(ctx context.Context, o *Order) {
	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, o, AggregateType); err != nil {
		log.Printf("[Order] Failed to create snapshot for order %s: %v", o.ID, err)
	}
}
