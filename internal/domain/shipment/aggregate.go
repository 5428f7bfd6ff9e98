package shipment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/supplychain-recon/internal/domain/aggregate"
	"github.com/example/supplychain-recon/internal/infrastructure/store"
	"github.com/google/uuid"
)

const AggregateType = "Shipment"

type Status string

const (
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
)

var (
	ErrShipmentNotFound  = errors.New("shipment not found")
	ErrInvalidTransition = errors.New("invalid shipment status transition")
	ErrUnknownStatus     = errors.New("unknown shipment status")
)

// validTransitions is strictly forward: pending -> in_transit -> delivered
var validTransitions = map[Status]Status{
	StatusPending:   StatusInTransit,
	StatusInTransit: StatusDelivered,
}

// ParseStatus converts a wire value into a Status
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusInTransit, StatusDelivered:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

type Shipment struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	Location    string     `json:"location"`
	Status      Status     `json:"status"`
	ETA         time.Time  `json:"eta"`
	DepartedAt  *time.Time `json:"departed_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Version     int        `json:"version"`
}

// Aggregate interface implementation
func (sh *Shipment) GetID() string    { return sh.ID }
func (sh *Shipment) GetVersion() int  { return sh.Version }
func (sh *Shipment) SetVersion(v int) { sh.Version = v }

// IsTerminal reports whether the shipment has reached its final state
func (sh *Shipment) IsTerminal() bool {
	return sh.Status == StatusDelivered
}

// CanTransitionTo checks if the shipment can advance to the target status
func (sh *Shipment) CanTransitionTo(target Status) bool {
	return validTransitions[sh.Status] == target
}

// ApplyEvent applies a single event to the shipment state (implements aggregate.Aggregate)
func (sh *Shipment) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventShipmentCreated:
		var data ShipmentCreated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		sh.ID = data.ShipmentID
		sh.OrderID = data.OrderID
		sh.Location = data.Location
		sh.ETA = data.ETA
		sh.Status = StatusPending
		sh.CreatedAt = data.CreatedAt
		sh.UpdatedAt = data.CreatedAt
	case EventShipmentDeparted:
		var data ShipmentDeparted
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		sh.Status = StatusInTransit
		sh.DepartedAt = &data.DepartedAt
		sh.UpdatedAt = data.DepartedAt
	case EventShipmentDelivered:
		var data ShipmentDelivered
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		sh.Status = StatusDelivered
		sh.DeliveredAt = &data.DeliveredAt
		sh.UpdatedAt = data.DeliveredAt
	}
	sh.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

// Get loads a shipment by replaying events, using snapshot if available
func (s *Service) Get(ctx context.Context, shipmentID string) (*Shipment, error) {
	sh, found, err := aggregate.LoadAggregate(ctx, s.eventStore, shipmentID, func() *Shipment {
		return &Shipment{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrShipmentNotFound
	}
	return sh, nil
}

// Create opens a shipment in pending state. Order-level preconditions (order
// confirmed, no other active shipment) are the coordinator's responsibility.
func (s *Service) Create(ctx context.Context, orderID, location string, eta time.Time) (*Shipment, error) {
	shipmentID := uuid.New().String()
	now := time.Now()

	event := ShipmentCreated{
		ShipmentID: shipmentID,
		OrderID:    orderID,
		Location:   location,
		ETA:        eta,
		CreatedAt:  now,
	}

	storedEvent, err := s.eventStore.Append(ctx, shipmentID, AggregateType, EventShipmentCreated, event)
	if err != nil {
		return nil, err
	}

	version := 0
	if storedEvent != nil {
		version = storedEvent.Version
	}

	sh := &Shipment{
		ID:        shipmentID,
		OrderID:   orderID,
		Location:  location,
		Status:    StatusPending,
		ETA:       eta,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   version,
	}

	s.maybeSnapshot(ctx, sh)
	return sh, nil
}

// Depart moves a pending shipment into transit
func (s *Service) Depart(ctx context.Context, shipmentID string) error {
	sh, err := s.Get(ctx, shipmentID)
	if err != nil {
		return err
	}

	if !sh.CanTransitionTo(StatusInTransit) {
		return fmt.Errorf("%w: cannot advance from %s to %s", ErrInvalidTransition, sh.Status, StatusInTransit)
	}

	now := time.Now()
	event := ShipmentDeparted{
		ShipmentID: shipmentID,
		OrderID:    sh.OrderID,
		DepartedAt: now,
	}

	storedEvent, err := s.eventStore.Append(ctx, shipmentID, AggregateType, EventShipmentDeparted, event)
	if err != nil {
		return err
	}

	sh.Status = StatusInTransit
	sh.DepartedAt = &now
	if storedEvent != nil {
		sh.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, sh)
	return nil
}

// Deliver records the terminal delivered state. The caller must have checked
// the transition already; the ledger effects of delivery live in the
// coordinator so they commit together with this status write.
func (s *Service) Deliver(ctx context.Context, shipmentID string) error {
	sh, err := s.Get(ctx, shipmentID)
	if err != nil {
		return err
	}

	if !sh.CanTransitionTo(StatusDelivered) {
		return fmt.Errorf("%w: cannot advance from %s to %s", ErrInvalidTransition, sh.Status, StatusDelivered)
	}

	now := time.Now()
	event := ShipmentDelivered{
		ShipmentID:  shipmentID,
		OrderID:     sh.OrderID,
		DeliveredAt: now,
	}

	storedEvent, err := s.eventStore.Append(ctx, shipmentID, AggregateType, EventShipmentDelivered, event)
	if err != nil {
		return err
	}

	sh.Status = StatusDelivered
	sh.DeliveredAt = &now
	if storedEvent != nil {
		sh.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, sh)
	return nil
}

func (s *Service) maybeSnapshot(ctx context.Context, sh *Shipment) {
	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, sh, AggregateType); err != nil {
		log.Printf("[Shipment] Failed to create snapshot for shipment %s: %v", sh.ID, err)
	}
}
