package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/supplychain-recon/internal/domain/aggregate"
	"github.com/example/supplychain-recon/internal/infrastructure/store"
)

const AggregateType = "Inventory"

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrZeroDelta         = errors.New("delta must be non-zero")
	ErrMissingEventKey   = errors.New("event key is required")
)

// LedgerID derives the aggregate ID for a (SKU, location) ledger
func LedgerID(sku, location string) string {
	return sku + "@" + location
}

// Ledger is the authoritative quantity record for one SKU at one location.
// Applied maps event keys to the quantity that resulted from applying them,
// which makes every delta replay-safe.
type Ledger struct {
	SKU          string         `json:"sku"`
	Location     string         `json:"location"`
	Quantity     int            `json:"quantity"`
	Applied      map[string]int `json:"applied"`
	LastEventKey string         `json:"last_event_key"`
	Version      int            `json:"version"`
}

// Aggregate interface implementation
func (l *Ledger) GetID() string    { return LedgerID(l.SKU, l.Location) }
func (l *Ledger) GetVersion() int  { return l.Version }
func (l *Ledger) SetVersion(v int) { l.Version = v }

// AppliedResult returns the resulting quantity of a previously applied event key
func (l *Ledger) AppliedResult(eventKey string) (int, bool) {
	result, ok := l.Applied[eventKey]
	return result, ok
}

// ApplyEvent applies a single event to the ledger state (implements aggregate.Aggregate)
func (l *Ledger) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventDeltaApplied:
		var data DeltaApplied
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		l.SKU = data.SKU
		l.Location = data.Location
		l.Quantity = data.Quantity
		l.LastEventKey = data.EventKey
		if l.Applied == nil {
			l.Applied = make(map[string]int)
		}
		l.Applied[data.EventKey] = data.Quantity
	}
	l.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

// Get loads a ledger; an untouched (SKU, location) pair is an empty ledger
func (s *Service) Get(ctx context.Context, sku, location string) (*Ledger, error) {
	id := LedgerID(sku, location)
	l, found, err := aggregate.LoadAggregate(ctx, s.eventStore, id, func() *Ledger {
		return &Ledger{SKU: sku, Location: location, Applied: make(map[string]int)}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return &Ledger{SKU: sku, Location: location, Applied: make(map[string]int)}, nil
	}
	return l, nil
}

// ApplyDelta applies a signed quantity change keyed by eventKey. A key that
// was already applied returns the prior resulting quantity unchanged. A delta
// that would drive the quantity negative fails with ErrInsufficientStock and
// writes nothing.
func (s *Service) ApplyDelta(ctx context.Context, sku, location string, delta int, eventKey string) (int, error) {
	if delta == 0 {
		return 0, ErrZeroDelta
	}
	if eventKey == "" {
		return 0, ErrMissingEventKey
	}

	l, err := s.Get(ctx, sku, location)
	if err != nil {
		return 0, err
	}

	if result, ok := l.AppliedResult(eventKey); ok {
		return result, nil
	}

	resulting := l.Quantity + delta
	if resulting < 0 {
		return 0, fmt.Errorf("%w: %s at %s has %d, delta %d", ErrInsufficientStock, sku, location, l.Quantity, delta)
	}

	event := DeltaApplied{
		SKU:       sku,
		Location:  location,
		Delta:     delta,
		Quantity:  resulting,
		EventKey:  eventKey,
		AppliedAt: time.Now(),
	}

	storedEvent, err := s.eventStore.Append(ctx, LedgerID(sku, location), AggregateType, EventDeltaApplied, event)
	if err != nil {
		return 0, err
	}

	l.Quantity = resulting
	l.LastEventKey = eventKey
	l.Applied[eventKey] = resulting
	if storedEvent != nil {
		l.Version = storedEvent.Version
	}

	s.maybeSnapshot(ctx, l)
	return resulting, nil
}

// Query returns the current quantity for a (SKU, location) ledger
func (s *Service) Query(ctx context.Context, sku, location string) (int, error) {
	l, err := s.Get(ctx, sku, location)
	if err != nil {
		return 0, err
	}
	return l.Quantity, nil
}

func (s *Service) maybeSnapshot(ctx context.Context, l *Ledger) {
	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, l, AggregateType); err != nil {
		log.Printf("[Inventory] Failed to create snapshot for ledger %s: %v", l.GetID(), err)
	}
}
