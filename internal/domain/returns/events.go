package returns

import "time"

const (
	EventReturnRequested = "ReturnRequested"
	EventReturnApproved  = "ReturnApproved"
	EventReturnRejected  = "ReturnRejected"
)

type ReturnRequested struct {
	ReturnID    string    `json:"return_id"`
	OrderID     string    `json:"order_id"`
	SKU         string    `json:"sku"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

type ReturnApproved struct {
	ReturnID   string    `json:"return_id"`
	OrderID    string    `json:"order_id"`
	ApprovedAt time.Time `json:"approved_at"`
}

type ReturnRejected struct {
	ReturnID   string    `json:"return_id"`
	OrderID    string    `json:"order_id"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
}
