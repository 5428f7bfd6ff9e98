package shipment

import "time"

const (
	EventShipmentCreated   = "ShipmentCreated"
	EventShipmentDeparted  = "ShipmentDeparted"
	EventShipmentDelivered = "ShipmentDelivered"
)

type ShipmentCreated struct {
	ShipmentID string    `json:"shipment_id"`
	OrderID    string    `json:"order_id"`
	Location   string    `json:"location"` // destination warehouse location
	ETA        time.Time `json:"eta"`
	CreatedAt  time.Time `json:"created_at"`
}

type ShipmentDeparted struct {
	ShipmentID string    `json:"shipment_id"`
	OrderID    string    `json:"order_id"`
	DepartedAt time.Time `json:"departed_at"`
}

type ShipmentDelivered struct {
	ShipmentID  string    `json:"shipment_id"`
	OrderID     string    `json:"order_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}
