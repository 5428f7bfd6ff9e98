package payment

import "time"

const (
	EventPaymentCreated  = "PaymentCreated"
	EventPaymentDue      = "PaymentDue"
	EventPaymentOverdue  = "PaymentOverdue"
	EventPaymentRecorded = "PaymentRecorded"
	EventPaymentRefunded = "PaymentRefunded"
)

type PaymentCreated struct {
	PaymentID string    `json:"payment_id"`
	OrderID   string    `json:"order_id"`
	Amount    int       `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type PaymentDue struct {
	OrderID  string    `json:"order_id"`
	DueAt    time.Time `json:"due_at"`
	MarkedAt time.Time `json:"marked_at"`
}

type PaymentOverdue struct {
	OrderID  string    `json:"order_id"`
	MarkedAt time.Time `json:"marked_at"`
}

type PaymentRecorded struct {
	OrderID string    `json:"order_id"`
	Amount  int       `json:"amount"`
	PaidAt  time.Time `json:"paid_at"`
}

// PaymentRefunded carries the idempotence key of the approved return that
// triggered it so a replayed approval cannot refund twice.
type PaymentRefunded struct {
	OrderID    string    `json:"order_id"`
	Amount     int       `json:"amount"`
	EventKey   string    `json:"event_key"`
	Full       bool      `json:"full"`
	RefundedAt time.Time `json:"refunded_at"`
}
