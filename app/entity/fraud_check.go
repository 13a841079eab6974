package entity

import "time"

const (
	FraudActionAllow  = "allow"
	FraudActionReview = "review"
	FraudActionBlock  = "block"
)

// FraudCheck is an append-only audit record of a risk evaluation. It is
// written even when the engine fails open.
type FraudCheck struct {
	ID              string
	CustomerID      string
	PaymentIntentID string

	RiskScore   int
	RiskFactors []string
	Action      string
	Reason      string

	CreatedAt time.Time
}
