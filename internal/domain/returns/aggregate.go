package returns

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

const AggregateType = "Return"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var (
	ErrReturnNotFound    = errors.New("return request not found")
	ErrInvalidTransition = errors.New("invalid return status transition")
	ErrInvalidQuantity   = errors.New("return quantity must be positive")
	ErrMissingSKU        = errors.New("return must name a sku")
)

type ReturnRequest struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	SKU         string     `json:"sku"`
	Quantity    int        `json:"quantity"`
	Reason      string     `json:"reason"`
	Status      Status     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Version     int        `json:"version"`
}

// Aggregate interface implementation
func (r *ReturnRequest) GetID() string    { return r.ID }
func (r *ReturnRequest) GetVersion() int  { return r.Version }
func (r *ReturnRequest) SetVersion(v int) { r.Version = v }

// ApplyEvent applies a single event to the return state (implements aggregate.Aggregate)
func (r *ReturnRequest) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventReturnRequested:
		var data ReturnRequested
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		r.ID = data.ReturnID
		r.OrderID = data.OrderID
		r.SKU = data.SKU
		r.Quantity = data.Quantity
		r.Reason = data.Reason
		r.Status = StatusPending
		r.RequestedAt = data.RequestedAt
	case EventReturnApproved:
		var data ReturnApproved
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		r.Status = StatusApproved
		r.ResolvedAt = &data.ApprovedAt
	case EventReturnRejected:
		var data ReturnRejected
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		r.Status = StatusRejected
		r.ResolvedAt = &data.RejectedAt
	}
	r.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

// Get loads a return request by replaying events
func (s *Service) Get(ctx context.Context, returnID string) (*ReturnRequest, error) {
	r, found, err := aggregate.LoadAggregate(ctx, s.eventStore, returnID, func() *ReturnRequest {
		return &ReturnRequest{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrReturnNotFound
	}
	return r, nil
}

// Request opens a pending return. The order-delivered precondition is checked
// by the coordinator, which owns the order lock.
func (s *Service) Request(ctx context.Context, orderID, sku string, quantity int, reason string) (*ReturnRequest, error) {
	if sku == "" {
		return nil, ErrMissingSKU
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	returnID := uuid.New().String()
	now := time.Now()

	event := ReturnRequested{
		ReturnID:    returnID,
		OrderID:     orderID,
		SKU:         sku,
		Quantity:    quantity,
		Reason:      reason,
		RequestedAt: now,
	}

	storedEvent, err := s.eventStore.Append(ctx, returnID, AggregateType, EventReturnRequested, event)
	if err != nil {
		return nil, err
	}

	version := 0
	if storedEvent != nil {
		version = storedEvent.Version
	}

	r := &ReturnRequest{
		ID:          returnID,
		OrderID:     orderID,
		SKU:         sku,
		Quantity:    quantity,
		Reason:      reason,
		Status:      StatusPending,
		RequestedAt: now,
		Version:     version,
	}

	s.maybeSnapshot(ctx, r)
	return r, nil
}

// Approve marks a pending return approved. The inventory reversal and payment
// adjustment are appended by the coordinator in the same logical operation.
func (s *Service) Approve(ctx context.Context, returnID string) error {
	r, err := s.Get(ctx, returnID)
	if err != nil {
		return err
	}

	if r.Status != StatusPending {
		return fmt.Errorf("%w: cannot approve %s return", ErrInvalidTransition, r.Status)
	}

	now := time.Now()
	event := ReturnApproved{
		ReturnID:   returnID,
		OrderID:    r.OrderID,
		ApprovedAt: now,
	}

	storedEvent, err := s.eventStore.Append(ctx, returnID, AggregateType, EventReturnApproved, event)
	if err != nil {
		return err
	}

	r.Status = StatusApproved
	r.ResolvedAt = &now
	if storedEvent != nil {
		r.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, r)
	return nil
}

// Reject marks a pending return rejected. Pure status change, no ledger effects.
func (s *Service) Reject(ctx context.Context, returnID, reason string) error {
	r, err := s.Get(ctx, returnID)
	if err != nil {
		return err
	}

	if r.Status != StatusPending {
		return fmt.Errorf("%w: cannot reject %s return", ErrInvalidTransition, r.Status)
	}

	now := time.Now()
	event := ReturnRejected{
		ReturnID:   returnID,
		OrderID:    r.OrderID,
		Reason:     reason,
		RejectedAt: now,
	}

	storedEvent, err := s.eventStore.Append(ctx, returnID, AggregateType, EventReturnRejected, event)
	if err != nil {
		return err
	}

	r.Status = StatusRejected
	r.ResolvedAt = &now
	if storedEvent != nil {
		r.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, r)
	return nil
}

func (s *Service) maybeSnapshot(ctx context.Context, r *ReturnRequest) {
	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, r, AggregateType); err != nil {
		log.Printf("[Return] Failed to create snapshot for return %s: %v", r.ID, err)
	}
}
