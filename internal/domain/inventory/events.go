package inventory

import "time"

const (
	EventDeltaApplied = "InventoryDeltaApplied"
)

// DeltaApplied is the only way inventory quantity changes. EventKey is the
// idempotence key of the trigger that produced the delta; Quantity is the
// resulting quantity after the delta, so replays can answer without
// re-applying.
type DeltaApplied struct {
	SKU       string    `json:"sku"`
	Location  string    `json:"location"`
	Delta     int       `json:"delta"`
	Quantity  int       `json:"quantity"`
	EventKey  string    `json:"event_key"`
	AppliedAt time.Time `json:"applied_at"`
}
