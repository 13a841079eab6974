package entity

import "time"

// PaymentEvent is an append-only audit trail entry for intent and payment
// lifecycle changes.
type PaymentEvent struct {
	ID uint64

	PaymentIntentID string
	PaymentID       *string

	EventType string

	OldStatus *string
	NewStatus string

	ProviderEventID *string
	PayloadJSON     *string

	CreatedAt time.Time
}
