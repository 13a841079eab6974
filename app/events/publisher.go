package events

import (
	"context"
	"time"
)

// Bus topics. Messages are keyed by order id so a partitioned bus preserves
// per-order ordering.
const (
	TopicOrderPaid       = "payments.order_paid"
	TopicPaymentFailed   = "payments.payment_failed"
	TopicRefundProcessed = "payments.refund_processed"
)

type OrderPaidEvent struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	PaymentID  string    `json:"payment_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Provider   string    `json:"provider"`
	Timestamp  time.Time `json:"timestamp"`
}

type PaymentFailedEvent struct {
	OrderID       string    `json:"order_id"`
	CustomerID    string    `json:"customer_id"`
	PaymentID     string    `json:"payment_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Provider      string    `json:"provider"`
	FailureReason string    `json:"failure_reason"`
	Timestamp     time.Time `json:"timestamp"`
}

type RefundProcessedEvent struct {
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	RefundID  string    `json:"refund_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher announces terminal payment outcomes to the rest of the platform.
// Delivery is at-least-once; producers are expected to be idempotent at the
// bus level, so callers never track "already sent" state themselves.
type Publisher interface {
	PublishOrderPaid(ctx context.Context, event *OrderPaidEvent) error
	PublishPaymentFailed(ctx context.Context, event *PaymentFailedEvent) error
	PublishRefundProcessed(ctx context.Context, event *RefundProcessedEvent) error
}
