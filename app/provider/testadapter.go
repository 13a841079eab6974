package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cloverpay/payment-core/app/entity"
)

// Fixed test card numbers recognized by the deterministic adapter.
const (
	TestCardDeclined       = "4000000000000002"
	TestCardRequires3DS    = "4000000000003220"
	testWebhookSecret      = "whsec_test_adapter"
	testChallengeURLPrefix = "https://3ds.test.local/challenge/"
)

type testIntent struct {
	status      string
	amountCents int64
	currency    string
}

// TestAdapter simulates a payment processor entirely in memory. Outcomes are
// keyed off fixed card numbers so suites run fully offline.
type TestAdapter struct {
	mu      sync.Mutex
	intents map[string]*testIntent
}

func NewTestAdapter() *TestAdapter {
	return &TestAdapter{intents: make(map[string]*testIntent)}
}

func (a *TestAdapter) Code() string {
	return CodeTest
}

func (a *TestAdapter) CreateIntent(_ context.Context, input *CreateIntentInput) (*IntentOutput, error) {
	if input.AmountCents <= 0 {
		return nil, NewError(CodeTest, "create_intent", "amount must be positive", nil)
	}

	id := "ti_" + uuid.NewString()
	a.mu.Lock()
	a.intents[id] = &testIntent{
		status:      entity.StatusPending,
		amountCents: input.AmountCents,
		currency:    strings.ToUpper(input.Currency),
	}
	a.mu.Unlock()

	return &IntentOutput{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString(),
		Status:       entity.StatusPending,
		AmountCents:  input.AmountCents,
		Currency:     strings.ToUpper(input.Currency),
	}, nil
}

func (a *TestAdapter) ConfirmPayment(_ context.Context, input *ConfirmInput) (*ConfirmOutput, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	intent, ok := a.intents[input.IntentID]
	if !ok {
		return nil, NewError(CodeTest, "confirm", "unknown intent", nil)
	}

	out := &ConfirmOutput{
		ID:          input.IntentID,
		AmountCents: intent.amountCents,
		Currency:    intent.currency,
	}

	switch input.PaymentMethod.Type {
	case PaymentMethodToken:
		if strings.TrimSpace(input.PaymentMethod.Token) == "" {
			return nil, NewError(CodeTest, "confirm", "empty token", nil)
		}
		out.Status = entity.StatusSucceeded
	case PaymentMethodCard:
		card := input.PaymentMethod.Card
		if card == nil {
			return nil, NewError(CodeTest, "confirm", "card payment method without card data", nil)
		}
		out.LastFour = lastFour(card.Number)
		switch card.Number {
		case TestCardDeclined:
			out.Status = entity.StatusFailed
			out.FailureReason = "card_declined"
		case TestCardRequires3DS:
			out.Status = entity.StatusRequiresAction
			out.ThreeDSecureURL = testChallengeURLPrefix + input.IntentID
		default:
			out.Status = entity.StatusSucceeded
			out.Token = "tok_" + uuid.NewString()
		}
	default:
		return nil, NewError(CodeTest, "confirm", "unsupported payment method type", nil)
	}

	intent.status = out.Status
	return out, nil
}

func (a *TestAdapter) CreateRefund(_ context.Context, input *RefundInput) (*RefundOutput, error) {
	a.mu.Lock()
	intent, ok := a.intents[input.ProviderPaymentID]
	a.mu.Unlock()
	if !ok {
		return nil, NewError(CodeTest, "refund", "unknown payment", nil)
	}
	if intent.status != entity.StatusSucceeded {
		return nil, NewError(CodeTest, "refund", "payment is not refundable", nil)
	}

	return &RefundOutput{
		ID:                "re_" + uuid.NewString(),
		ProviderPaymentID: input.ProviderPaymentID,
		AmountCents:       input.AmountCents,
		Currency:          intent.currency,
		Status:            entity.RefundStatusSucceeded,
		Reason:            input.Reason,
	}, nil
}

func (a *TestAdapter) GetStatus(_ context.Context, providerPaymentID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	intent, ok := a.intents[providerPaymentID]
	if !ok {
		return "", NewError(CodeTest, "get_status", "unknown payment", nil)
	}
	return intent.status, nil
}

func (a *TestAdapter) ValidateWebhook(rawPayload []byte, signatureHeader string) *WebhookResult {
	if SignTestWebhook(rawPayload) != strings.TrimSpace(signatureHeader) {
		return &WebhookResult{IsValid: false, Error: "invalid signature"}
	}

	var event struct {
		ID            string `json:"id"`
		Type          string `json:"type"`
		PaymentID     string `json:"payment_id"`
		FailureReason string `json:"failure_reason"`
	}
	if err := json.Unmarshal(rawPayload, &event); err != nil {
		return &WebhookResult{IsValid: false, Error: "unparseable payload"}
	}

	parsed := &WebhookEvent{
		ID:                event.ID,
		Type:              event.Type,
		ProviderPaymentID: event.PaymentID,
		ProviderIntentID:  event.PaymentID,
		FailureReason:     event.FailureReason,
	}
	switch event.Type {
	case WebhookEventSucceeded:
		parsed.Status = entity.StatusSucceeded
	case WebhookEventFailed:
		parsed.Status = entity.StatusFailed
	case WebhookEventDisputeCreated:
	default:
		return &WebhookResult{IsValid: true}
	}

	return &WebhookResult{IsValid: true, Event: parsed}
}

// SignTestWebhook produces the signature the test adapter expects for a
// payload, for use by offline suites.
func SignTestWebhook(rawPayload []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	_, _ = mac.Write(rawPayload)
	return hex.EncodeToString(mac.Sum(nil))
}

func lastFour(number string) string {
	if len(number) < 4 {
		return number
	}
	return number[len(number)-4:]
}

var _ Adapter = (*TestAdapter)(nil)
