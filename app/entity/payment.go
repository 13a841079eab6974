package entity

import "time"

// Payment is the result of confirming an intent. An intent yields at most
// one payment row; the unique key on payment_intent_id enforces that.
type Payment struct {
	ID              string
	PaymentIntentID string
	OrderID         string
	CustomerID      string

	AmountCents int64
	Currency    string

	Status   string
	Provider string

	ProviderPaymentID string

	TokenID  *string
	LastFour *string
	Brand    *string

	ThreeDSecureURL *string
	FailureReason   *string

	RefundedCents int64

	ProcessedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
