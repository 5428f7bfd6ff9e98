package payment

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

const AggregateType = "Payment"

type Status string

const (
	StatusPending  Status = "pending"
	StatusDue      Status = "due"
	StatusOverdue  Status = "overdue"
	StatusPaid     Status = "paid"
	StatusRefunded Status = "refunded"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentExists        = errors.New("payment already exists for order")
	ErrInvalidTransition    = errors.New("invalid payment status transition")
	ErrAmountMismatch       = errors.New("payment amount does not match payable total")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrNotDue               = errors.New("payment is not due")
	ErrRefundExceedsPayment = errors.New("refund exceeds the paid amount")
)

// AggregateID derives the payment aggregate ID for an order. One payment per
// order, per the data model.
func AggregateID(orderID string) string {
	return "payment-" + orderID
}

type Payment struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"order_id"`
	Amount         int             `json:"amount"`
	RefundedAmount int             `json:"refunded_amount"`
	Status         Status          `json:"status"`
	DueAt          *time.Time      `json:"due_at,omitempty"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	Applied        map[string]bool `json:"applied"` // refund event keys already applied
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Version        int             `json:"version"`
}

// Aggregate interface implementation
func (p *Payment) GetID() string    { return AggregateID(p.OrderID) }
func (p *Payment) GetVersion() int  { return p.Version }
func (p *Payment) SetVersion(v int) { p.Version = v }

// Payable returns the amount still owed for the order
func (p *Payment) Payable() int {
	return p.Amount - p.RefundedAmount
}

// ApplyEvent applies a single event to the payment state (implements aggregate.Aggregate)
func (p *Payment) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventPaymentCreated:
		var data PaymentCreated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.ID = data.PaymentID
		p.OrderID = data.OrderID
		p.Amount = data.Amount
		p.Status = StatusPending
		p.CreatedAt = data.CreatedAt
		p.UpdatedAt = data.CreatedAt
	case EventPaymentDue:
		var data PaymentDue
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.Status = StatusDue
		p.DueAt = &data.DueAt
		p.UpdatedAt = data.MarkedAt
	case EventPaymentOverdue:
		var data PaymentOverdue
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.Status = StatusOverdue
		p.UpdatedAt = data.MarkedAt
	case EventPaymentRecorded:
		var data PaymentRecorded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.Status = StatusPaid
		p.PaidAt = &data.PaidAt
		p.UpdatedAt = data.PaidAt
	case EventPaymentRefunded:
		var data PaymentRefunded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.RefundedAmount += data.Amount
		if data.Full {
			p.Status = StatusRefunded
		}
		if p.Applied == nil {
			p.Applied = make(map[string]bool)
		}
		p.Applied[data.EventKey] = true
		p.UpdatedAt = data.RefundedAt
	}
	p.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

// Get loads the payment record for an order
func (s *Service) Get(ctx context.Context, orderID string) (*Payment, error) {
	p, found, err := aggregate.LoadAggregate(ctx, s.eventStore, AggregateID(orderID), func() *Payment {
		return &Payment{Applied: make(map[string]bool)}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

// Create opens the payment record when an order is confirmed
func (s *Service) Create(ctx context.Context, orderID string, amount int) (*Payment, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if existing, err := s.Get(ctx, orderID); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrPaymentExists, orderID)
	}

	now := time.Now()
	event := PaymentCreated{
		PaymentID: uuid.New().String(),
		OrderID:   orderID,
		Amount:    amount,
		CreatedAt: now,
	}

	storedEvent, err := s.eventStore.Append(ctx, AggregateID(orderID), AggregateType, EventPaymentCreated, event)
	if err != nil {
		return nil, err
	}

	version := 0
	if storedEvent != nil {
		version = storedEvent.Version
	}

	p := &Payment{
		ID:        event.PaymentID,
		OrderID:   orderID,
		Amount:    amount,
		Status:    StatusPending,
		Applied:   make(map[string]bool),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   version,
	}

	s.maybeSnapshot(ctx, p)
	return p, nil
}

// MarkDue is triggered by shipment delivery. A payment that is already due is
// left unchanged so replayed delivery triggers stay no-ops.
func (s *Service) MarkDue(ctx context.Context, orderID string, dueAt time.Time) error {
	p, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if p.Status == StatusDue {
		return nil
	}
	if p.Status != StatusPending {
		return fmt.Errorf("%w: cannot mark %s payment due", ErrInvalidTransition, p.Status)
	}

	now := time.Now()
	event := PaymentDue{
		OrderID:  orderID,
		DueAt:    dueAt,
		MarkedAt: now,
	}

	storedEvent, err := s.eventStore.Append(ctx, AggregateID(orderID), AggregateType, EventPaymentDue, event)
	if err != nil {
		return err
	}

	p.Status = StatusDue
	p.DueAt = &dueAt
	if storedEvent != nil {
		p.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, p)
	return nil
}

// MarkOverdue flips a due payment whose due date has elapsed. The sweep runs
// on a schedule and may see the same payment twice; an already-overdue
// payment is a no-op.
func (s *Service) MarkOverdue(ctx context.Context, orderID string, now time.Time) error {
	p, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if p.Status == StatusOverdue {
		return nil
	}
	if p.Status != StatusDue {
		return fmt.Errorf("%w: cannot mark %s payment overdue", ErrInvalidTransition, p.Status)
	}
	if p.DueAt == nil || now.Before(*p.DueAt) {
		return fmt.Errorf("%w: order %s", ErrNotDue, orderID)
	}

	event := PaymentOverdue{
		OrderID:  orderID,
		MarkedAt: now,
	}

	storedEvent, err := s.eventStore.Append(ctx, AggregateID(orderID), AggregateType, EventPaymentOverdue, event)
	if err != nil {
		return err
	}

	p.Status = StatusOverdue
	if storedEvent != nil {
		p.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, p)
	return nil
}

// RecordPayment settles a due or overdue payment in full
func (s *Service) RecordPayment(ctx context.Context, orderID string, amount int) error {
	p, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if p.Status != StatusDue && p.Status != StatusOverdue {
		return fmt.Errorf("%w: cannot record payment for %s payment", ErrInvalidTransition, p.Status)
	}
	if amount != p.Payable() {
		return fmt.Errorf("%w: got %d, payable %d", ErrAmountMismatch, amount, p.Payable())
	}

	now := time.Now()
	event := PaymentRecorded{
		OrderID: orderID,
		Amount:  amount,
		PaidAt:  now,
	}

	storedEvent, err := s.eventStore.Append(ctx, AggregateID(orderID), AggregateType, EventPaymentRecorded, event)
	if err != nil {
		return err
	}

	p.Status = StatusPaid
	p.PaidAt = &now
	if storedEvent != nil {
		p.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, p)
	return nil
}

// Refund applies a (possibly partial) return credit keyed by the approving
// return. A replayed event key returns without effect. On a paid payment a
// full refund moves it to refunded; a partial one stays paid with the total
// recorded. On a due or overdue payment the credit reduces the payable
// amount instead, since nothing has changed hands yet.
func (s *Service) Refund(ctx context.Context, orderID string, amount int, eventKey string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	p, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if p.Applied[eventKey] {
		return nil
	}
	switch p.Status {
	case StatusDue, StatusOverdue, StatusPaid:
	default:
		return fmt.Errorf("%w: cannot refund %s payment", ErrInvalidTransition, p.Status)
	}
	if p.RefundedAmount+amount > p.Amount {
		return fmt.Errorf("%w: refunded %d + %d exceeds %d", ErrRefundExceedsPayment, p.RefundedAmount, amount, p.Amount)
	}

	now := time.Now()
	full := p.Status == StatusPaid && p.RefundedAmount+amount == p.Amount
	event := PaymentRefunded{
		OrderID:    orderID,
		Amount:     amount,
		EventKey:   eventKey,
		Full:       full,
		RefundedAt: now,
	}

	storedEvent, err := s.eventStore.Append(ctx, AggregateID(orderID), AggregateType, EventPaymentRefunded, event)
	if err != nil {
		return err
	}

	p.RefundedAmount += amount
	if full {
		p.Status = StatusRefunded
	}
	p.Applied[eventKey] = true
	if storedEvent != nil {
		p.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, p)
	return nil
}

func (s *Service) maybeSnapshot(ctx context.Context, p *Payment) {
	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, p, AggregateType); err != nil {
		log.Printf("[Payment] Failed to create snapshot for order %s: %v", p.OrderID, err)
	}
}
