package provider

import (
	"context"
	"fmt"
)

const (
	CodeIyzico = "iyzico"
	CodeStripe = "stripe"
	CodeTest   = "test"
)

const (
	PaymentMethodCard  = "card"
	PaymentMethodToken = "token"
)

// Card carries raw card data for a single confirmation call. It must never
// be logged or persisted; adapters forward it to the processor and drop it.
type Card struct {
	Number     string
	ExpMonth   int
	ExpYear    int
	CVC        string
	HolderName string
}

// PaymentMethod is a tagged union: exactly one of Card or Token is set,
// selected by Type.
type PaymentMethod struct {
	Type  string
	Card  *Card
	Token string
}

type CreateIntentInput struct {
	AmountCents int64
	Currency    string
	CustomerRef string
	OrderRef    string
	Description string
	Metadata    map[string]string
}

type IntentOutput struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
	Currency     string
}

type ConfirmInput struct {
	IntentID      string
	PaymentMethod PaymentMethod
	Use3DSecure   bool
	ReturnURL     string
}

type ConfirmOutput struct {
	ID          string
	Status      string
	AmountCents int64
	Currency    string

	ThreeDSecureURL string
	LastFour        string
	Brand           string
	Token           string

	FailureReason string
}

type RefundInput struct {
	ProviderPaymentID string
	AmountCents       int64
	Reason            string
	Metadata          map[string]string
}

type RefundOutput struct {
	ID                string
	ProviderPaymentID string
	AmountCents       int64
	Currency          string
	Status            string
	Reason            string
}

// WebhookEvent is the canonical shape a validated provider notification is
// reduced to before the orchestrator sees it.
type WebhookEvent struct {
	ID                string
	Type              string
	ProviderPaymentID string
	ProviderIntentID  string
	Status            string
	FailureReason     string
}

const (
	WebhookEventSucceeded      = "payment.succeeded"
	WebhookEventFailed         = "payment.failed"
	WebhookEventDisputeCreated = "dispute.created"
)

type WebhookResult struct {
	IsValid bool
	Event   *WebhookEvent
	Error   string
}

// Error wraps a processor-side failure. Adapters map provider-specific
// initialization and confirmation failures into this type so the
// orchestrator can treat them uniformly.
type Error struct {
	Provider string
	Op       string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(providerCode, op, message string, err error) *Error {
	return &Error{Provider: providerCode, Op: op, Message: message, Err: err}
}

// Adapter is the capability contract implemented once per external payment
// processor. New processors are added by implementing this interface; the
// orchestrator is never modified for them.
type Adapter interface {
	Code() string
	CreateIntent(ctx context.Context, input *CreateIntentInput) (*IntentOutput, error)
	ConfirmPayment(ctx context.Context, input *ConfirmInput) (*ConfirmOutput, error)
	CreateRefund(ctx context.Context, input *RefundInput) (*RefundOutput, error)
	ValidateWebhook(rawPayload []byte, signatureHeader string) *WebhookResult
	GetStatus(ctx context.Context, providerPaymentID string) (string, error)
}
