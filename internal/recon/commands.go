package recon

import (
	"time"

	"github.com/example/supplychain-recon/internal/domain/order"
	"github.com/example/supplychain-recon/internal/domain/role"
	"github.com/example/supplychain-recon/internal/domain/shipment"
)

// Every command carries the role identity of the caller; the coordinator
// authorizes it against the entity before touching anything.

// Order commands
type PlaceOrder struct {
	Actor      role.Role        `json:"actor"`
	SellerRole role.Role        `json:"seller_role"`
	Items      []order.LineItem `json:"items"`
}

type ConfirmOrder struct {
	Actor   role.Role `json:"actor"`
	OrderID string    `json:"order_id"`
}

type CancelOrder struct {
	Actor   role.Role `json:"actor"`
	OrderID string    `json:"order_id"`
	Reason  string    `json:"reason"`
}

// Shipment commands
type CreateShipment struct {
	Actor    role.Role `json:"actor"`
	OrderID  string    `json:"order_id"`
	Location string    `json:"location"`
	ETA      time.Time `json:"eta"`
}

type AdvanceShipment struct {
	Actor      role.Role       `json:"actor"`
	ShipmentID string          `json:"shipment_id"`
	Target     shipment.Status `json:"target"`
}

// Payment commands
type RecordPayment struct {
	Actor   role.Role `json:"actor"`
	OrderID string    `json:"order_id"`
	Amount  int       `json:"amount"`
}

// Return commands
type RequestReturn struct {
	Actor    role.Role `json:"actor"`
	OrderID  string    `json:"order_id"`
	SKU      string    `json:"sku"`
	Quantity int       `json:"quantity"` // 0 means the full ordered quantity
	Reason   string    `json:"reason"`
}

type ApproveReturn struct {
	Actor    role.Role `json:"actor"`
	ReturnID string    `json:"return_id"`
}

type RejectReturn struct {
	Actor    role.Role `json:"actor"`
	ReturnID string    `json:"return_id"`
	Reason   string    `json:"reason"`
}
