package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloverpay/payment-core/app/entity"
)

func newIyzicoTestAdapter(baseURL string) *IyzicoAdapter {
	return NewIyzicoAdapter(IyzicoConfig{
		APIKey:    "api-key",
		SecretKey: "secret-key",
		BaseURL:   baseURL,
	})
}

func TestIyzicoCreateIntent(t *testing.T) {
	var gotAuth, gotRnd string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment/intents" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotRnd = r.Header.Get("x-iyzi-rnd")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":        "success",
			"paymentId":     "iyz_1",
			"checkoutToken": "tok_secret",
			"price":         "150.00",
			"currency":      "TRY",
		})
	}))
	defer server.Close()

	adapter := newIyzicoTestAdapter(server.URL)
	out, err := adapter.CreateIntent(context.Background(), &CreateIntentInput{
		AmountCents: 15000,
		Currency:    "try",
		CustomerRef: "cust-1",
		OrderRef:    "order-1",
	})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}

	if out.ID != "iyz_1" || out.ClientSecret != "tok_secret" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if out.Status != entity.StatusPending {
		t.Fatalf("expected pending, got %s", out.Status)
	}
	if gotBody["price"] != "150.00" {
		t.Fatalf("amount must be formatted in major units, got %v", gotBody["price"])
	}
	if gotAuth == "" || gotRnd == "" {
		t.Fatal("request must carry signature and random key headers")
	}
	if len(gotAuth) < len("IYZWSv2 ") || gotAuth[:8] != "IYZWSv2 " {
		t.Fatalf("unexpected authorization scheme: %s", gotAuth)
	}
}

func TestIyzicoCreateIntentProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "failure",
			"errorMessage": "invalid merchant",
		})
	}))
	defer server.Close()

	adapter := newIyzicoTestAdapter(server.URL)
	_, err := adapter.CreateIntent(context.Background(), &CreateIntentInput{AmountCents: 100, Currency: "TRY"})
	if err == nil {
		t.Fatal("expected provider error")
	}

	var providerErr *Error
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected *provider.Error, got %T", err)
	}
	if providerErr.Provider != CodeIyzico {
		t.Fatalf("unexpected provider code: %s", providerErr.Provider)
	}
}

func TestIyzicoConfirmPayment3DSInitialize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment/3dsecure/initialize" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":             "success",
			"paymentStatus":      "INIT_THREEDS",
			"paymentId":          "iyz_2",
			"threeDSRedirectUrl": "https://3ds.iyzico.test/redirect",
			"price":              "42.50",
			"currency":           "TRY",
		})
	}))
	defer server.Close()

	adapter := newIyzicoTestAdapter(server.URL)
	out, err := adapter.ConfirmPayment(context.Background(), &ConfirmInput{
		IntentID: "iyz_2",
		PaymentMethod: PaymentMethod{
			Type: PaymentMethodCard,
			Card: &Card{Number: "5528790000000008", ExpMonth: 12, ExpYear: 2030, CVC: "123"},
		},
		Use3DSecure: true,
		ReturnURL:   "https://shop.example/return",
	})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	if out.Status != entity.StatusRequiresAction {
		t.Fatalf("expected requires_action, got %s", out.Status)
	}
	if out.ThreeDSecureURL != "https://3ds.iyzico.test/redirect" {
		t.Fatalf("unexpected redirect url: %s", out.ThreeDSecureURL)
	}
	if out.AmountCents != 4250 {
		t.Fatalf("expected 4250 cents, got %d", out.AmountCents)
	}
}

func TestIyzicoValidateWebhook(t *testing.T) {
	adapter := newIyzicoTestAdapter("https://api.iyzipay.com")

	payload := []byte(`{"iyziEventId":"evt_1","iyziEventType":"PAYMENT_API","paymentId":"iyz_3","status":"SUCCESS"}`)
	signature := adapter.SignWebhook(payload)

	result := adapter.ValidateWebhook(payload, signature)
	if !result.IsValid || result.Event == nil {
		t.Fatalf("expected valid webhook with event, got %+v", result)
	}
	if result.Event.Type != WebhookEventSucceeded || result.Event.ProviderIntentID != "iyz_3" {
		t.Fatalf("unexpected event: %+v", result.Event)
	}

	if got := adapter.ValidateWebhook(payload, "bm90LWEtc2lnbmF0dXJl"); got.IsValid {
		t.Fatal("forged signature must not validate")
	}

	tampered := []byte(`{"iyziEventId":"evt_1","iyziEventType":"PAYMENT_API","paymentId":"iyz_other","status":"SUCCESS"}`)
	if got := adapter.ValidateWebhook(tampered, signature); got.IsValid {
		t.Fatal("tampered payload must not validate")
	}
}

func TestIyzicoValidateWebhookFailureEvent(t *testing.T) {
	adapter := newIyzicoTestAdapter("https://api.iyzipay.com")

	payload := []byte(`{"iyziEventId":"evt_2","iyziEventType":"THREE_DS_AUTH","paymentId":"iyz_4","status":"FAILURE","errorMessage":"3ds challenge failed"}`)
	result := adapter.ValidateWebhook(payload, adapter.SignWebhook(payload))

	if !result.IsValid || result.Event == nil {
		t.Fatalf("expected valid webhook with event, got %+v", result)
	}
	if result.Event.Type != WebhookEventFailed || result.Event.FailureReason != "3ds challenge failed" {
		t.Fatalf("unexpected event: %+v", result.Event)
	}
}

func TestMapIyzicoStatus(t *testing.T) {
	cases := []struct {
		status        string
		paymentStatus string
		want          string
	}{
		{"success", "SUCCESS", entity.StatusSucceeded},
		{"success", "INIT_THREEDS", entity.StatusRequiresAction},
		{"success", "CALLBACK_THREEDS", entity.StatusRequiresAction},
		{"success", "PENDING_FRAUD_CHECK", entity.StatusProcessing},
		{"success", "FAILURE", entity.StatusFailed},
		{"failure", "SUCCESS", entity.StatusFailed},
	}
	for _, tc := range cases {
		if got := mapIyzicoStatus(tc.status, tc.paymentStatus); got != tc.want {
			t.Errorf("mapIyzicoStatus(%s, %s) = %s, want %s", tc.status, tc.paymentStatus, got, tc.want)
		}
	}
}

func TestMinorUnitsRoundTrip(t *testing.T) {
	cases := map[int64]string{
		0:     "0.00",
		5:     "0.05",
		4250:  "42.50",
		15000: "150.00",
	}
	for cents, want := range cases {
		if got := formatMinorUnits(cents); got != want {
			t.Errorf("formatMinorUnits(%d) = %s, want %s", cents, got, want)
		}
		if got := parsePriceToCents(want); got != cents {
			t.Errorf("parsePriceToCents(%s) = %d, want %d", want, got, cents)
		}
	}

	if parsePriceToCents("42.5") != 4250 {
		t.Error("single-digit fraction must be scaled to cents")
	}
	if parsePriceToCents("bogus") != 0 {
		t.Error("non-numeric price must parse to zero")
	}
}
