package order

import (
	"time"

	"github.com/example/supplychain-recon/internal/domain/role"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderShipped   = "OrderShipped"
	EventOrderDelivered = "OrderDelivered"
	EventOrderCancelled = "OrderCancelled"
)

type LineItem struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int    `json:"unit_price"`
}

type OrderCreated struct {
	OrderID    string     `json:"order_id"`
	BuyerRole  role.Role  `json:"buyer_role"`
	SellerRole role.Role  `json:"seller_role"`
	Items      []LineItem `json:"items"`
	Total      int        `json:"total"`
	CreatedAt  time.Time  `json:"created_at"`
}

type OrderConfirmed struct {
	OrderID     string    `json:"order_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type OrderShipped struct {
	OrderID    string    `json:"order_id"`
	ShipmentID string    `json:"shipment_id"`
	ShippedAt  time.Time `json:"shipped_at"`
}

type OrderDelivered struct {
	OrderID     string    `json:"order_id"`
	ShipmentID  string    `json:"shipment_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type OrderCancelled struct {
	OrderID     string    `json:"order_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}
