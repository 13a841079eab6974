package entity

import "time"

// Canonical payment lifecycle statuses. Every provider adapter maps its
// native vocabulary onto these values.
const (
	StatusPending        = "pending"
	StatusProcessing     = "processing"
	StatusRequiresAction = "requires_action"
	StatusSucceeded      = "succeeded"
	StatusFailed         = "failed"
	StatusCanceled       = "canceled"
)

func IsTerminalStatus(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// PaymentIntent is an authorized-but-not-yet-captured charge attempt.
// The provider is immutable after creation; retried attempts create a new
// intent rather than mutating an existing one.
type PaymentIntent struct {
	ID         string
	OrderID    string
	CustomerID string

	AmountCents int64
	Currency    string

	Status   string
	Provider string

	ProviderIntentID string
	ClientSecret     *string

	FraudAction string

	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}
