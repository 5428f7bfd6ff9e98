package readmodel

import "time"

// Collection names used across the read store
const (
	CollectionOrders    = "orders"
	CollectionShipments = "shipments"
	CollectionInventory = "inventory"
	CollectionPayments  = "payments"
	CollectionReturns   = "returns"
)

type OrderItemReadModel struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int    `json:"unit_price"`
}

type OrderReadModel struct {
	ID         string               `json:"id"`
	BuyerRole  string               `json:"buyer_role"`
	SellerRole string               `json:"seller_role"`
	Items      []OrderItemReadModel `json:"items"`
	Total      int                  `json:"total"`
	Status     string               `json:"status"`
	ShipmentID string               `json:"shipment_id,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

type ShipmentReadModel struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	Location    string     `json:"location"`
	Status      string     `json:"status"`
	DepartedAt  *time.Time `json:"departed_at,omitempty"`
	ETA         time.Time  `json:"eta"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type InventoryReadModel struct {
	SKU          string    `json:"sku"`
	Location     string    `json:"location"`
	Quantity     int       `json:"quantity"`
	LastEventKey string    `json:"last_event_key"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PaymentReadModel struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	Amount         int        `json:"amount"`
	RefundedAmount int        `json:"refunded_amount"`
	Status         string     `json:"status"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type ReturnReadModel struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	SKU         string     `json:"sku"`
	Quantity    int        `json:"quantity"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}
