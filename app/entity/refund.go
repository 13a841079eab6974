package entity

import "time"

const (
	RefundStatusPending   = "pending"
	RefundStatusSucceeded = "succeeded"
	RefundStatusFailed    = "failed"
)

// Refund is a reversal against a succeeded payment. The sum of all
// non-failed refunds for a payment never exceeds the payment amount.
type Refund struct {
	ID        string
	PaymentID string

	AmountCents int64
	Currency    string

	Status string
	Reason *string

	ProviderRefundID string

	ProcessedAt time.Time
	CreatedAt   time.Time
}
