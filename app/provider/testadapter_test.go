package provider

import (
	"context"
	"testing"

	"github.com/cloverpay/payment-core/app/entity"
)

func confirmCard(t *testing.T, adapter *TestAdapter, intentID, number string) (*ConfirmOutput, error) {
	t.Helper()
	return adapter.ConfirmPayment(context.Background(), &ConfirmInput{
		IntentID: intentID,
		PaymentMethod: PaymentMethod{
			Type: PaymentMethodCard,
			Card: &Card{Number: number, ExpMonth: 12, ExpYear: 2030, CVC: "123"},
		},
	})
}

func createTestIntent(t *testing.T, adapter *TestAdapter) *IntentOutput {
	t.Helper()
	out, err := adapter.CreateIntent(context.Background(), &CreateIntentInput{AmountCents: 5000, Currency: "try"})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	return out
}

func TestTestAdapterDeterministicCards(t *testing.T) {
	adapter := NewTestAdapter()

	declined := createTestIntent(t, adapter)
	out, err := confirmCard(t, adapter, declined.ID, TestCardDeclined)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if out.Status != entity.StatusFailed || out.FailureReason != "card_declined" {
		t.Fatalf("declined card mismatch: %+v", out)
	}

	challenge := createTestIntent(t, adapter)
	out, err = confirmCard(t, adapter, challenge.ID, TestCardRequires3DS)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if out.Status != entity.StatusRequiresAction || out.ThreeDSecureURL == "" {
		t.Fatalf("3ds card mismatch: %+v", out)
	}

	plain := createTestIntent(t, adapter)
	out, err = confirmCard(t, adapter, plain.ID, "4242424242424242")
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if out.Status != entity.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", out.Status)
	}
	if out.LastFour != "4242" {
		t.Fatalf("unexpected last four: %s", out.LastFour)
	}
	if out.Token == "" {
		t.Fatal("successful card confirm must mint a token")
	}
}

func TestTestAdapterTokenConfirm(t *testing.T) {
	adapter := NewTestAdapter()
	intent := createTestIntent(t, adapter)

	out, err := adapter.ConfirmPayment(context.Background(), &ConfirmInput{
		IntentID:      intent.ID,
		PaymentMethod: PaymentMethod{Type: PaymentMethodToken, Token: "tok_1"},
	})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if out.Status != entity.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", out.Status)
	}

	status, err := adapter.GetStatus(context.Background(), intent.ID)
	if err != nil {
		t.Fatalf("get status failed: %v", err)
	}
	if status != entity.StatusSucceeded {
		t.Fatalf("expected succeeded status, got %s", status)
	}
}

func TestTestAdapterRefundRequiresSettledPayment(t *testing.T) {
	adapter := NewTestAdapter()
	intent := createTestIntent(t, adapter)

	if _, err := adapter.CreateRefund(context.Background(), &RefundInput{ProviderPaymentID: intent.ID, AmountCents: 100}); err == nil {
		t.Fatal("refund before settlement must fail")
	}

	if _, err := adapter.ConfirmPayment(context.Background(), &ConfirmInput{
		IntentID:      intent.ID,
		PaymentMethod: PaymentMethod{Type: PaymentMethodToken, Token: "tok_1"},
	}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	refund, err := adapter.CreateRefund(context.Background(), &RefundInput{ProviderPaymentID: intent.ID, AmountCents: 100})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refund.Status != entity.RefundStatusSucceeded || refund.AmountCents != 100 {
		t.Fatalf("unexpected refund: %+v", refund)
	}
}

func TestTestAdapterWebhookSignature(t *testing.T) {
	adapter := NewTestAdapter()
	payload := []byte(`{"id":"evt_1","type":"payment.succeeded","payment_id":"ti_1"}`)

	result := adapter.ValidateWebhook(payload, SignTestWebhook(payload))
	if !result.IsValid || result.Event == nil {
		t.Fatalf("expected valid webhook with event, got %+v", result)
	}
	if result.Event.Status != entity.StatusSucceeded {
		t.Fatalf("unexpected status: %s", result.Event.Status)
	}

	if got := adapter.ValidateWebhook(payload, "ffff"); got.IsValid {
		t.Fatal("wrong signature must not validate")
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(NewTestAdapter())

	adapter, err := registry.Get("TEST")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if adapter.Code() != CodeTest {
		t.Fatalf("unexpected adapter: %s", adapter.Code())
	}

	if _, err := registry.Get("paypal"); err != ErrProviderNotSupported {
		t.Fatalf("expected ErrProviderNotSupported, got %v", err)
	}
}
