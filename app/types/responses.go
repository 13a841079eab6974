package types

import "time"

// Machine-readable error codes carried alongside HTTP statuses so callers
// can branch without string matching.
const (
	ErrCodeValidation      = "validation_error"
	ErrCodeFraudBlocked    = "fraud_blocked"
	ErrCodePaymentDeclined = "payment_declined"
	ErrCodeNotFound        = "not_found"
	ErrCodeProvider        = "provider_error"
	ErrCodeInternal        = "internal_error"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type PaymentIntentResponse struct {
	ID           string            `json:"id"`
	OrderID      string            `json:"order_id"`
	CustomerID   string            `json:"customer_id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Provider     string            `json:"provider"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type PaymentResponse struct {
	ID              string    `json:"id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	OrderID         string    `json:"order_id"`
	CustomerID      string    `json:"customer_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	Provider        string    `json:"provider"`
	TokenID         string    `json:"token_id,omitempty"`
	LastFour        string    `json:"last_four,omitempty"`
	Brand           string    `json:"brand,omitempty"`
	ThreeDSecureURL string    `json:"three_d_secure_url,omitempty"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	RefundedAmount  int64     `json:"refunded_amount"`
	ProcessedAt     time.Time `json:"processed_at"`
}

type RefundResponse struct {
	ID          string    `json:"id"`
	PaymentID   string    `json:"payment_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}
