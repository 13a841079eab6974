package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloverpay/payment-core/app/entity"
)

type IyzicoConfig struct {
	APIKey      string
	SecretKey   string
	BaseURL     string
	HTTPTimeout time.Duration
}

// IyzicoAdapter drives the iyzico REST API. Request authentication and
// webhook validation both use an HMAC-SHA256 over a canonicalized
// random-key-plus-body string, base64 encoded.
type IyzicoAdapter struct {
	cfg    IyzicoConfig
	client *http.Client
}

func NewIyzicoAdapter(cfg IyzicoConfig) *IyzicoAdapter {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.iyzipay.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &IyzicoAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (a *IyzicoAdapter) Code() string {
	return CodeIyzico
}

func (a *IyzicoAdapter) CreateIntent(ctx context.Context, input *CreateIntentInput) (*IntentOutput, error) {
	if strings.TrimSpace(a.cfg.APIKey) == "" || strings.TrimSpace(a.cfg.SecretKey) == "" {
		return nil, NewError(CodeIyzico, "create_intent", "api credentials are not configured", nil)
	}

	request := map[string]interface{}{
		"conversationId": input.OrderRef,
		"price":          formatMinorUnits(input.AmountCents),
		"currency":       strings.ToUpper(input.Currency),
		"buyerId":        input.CustomerRef,
		"description":    input.Description,
		"metadata":       input.Metadata,
	}

	body, err := a.postJSON(ctx, "/payment/intents", request)
	if err != nil {
		return nil, NewError(CodeIyzico, "create_intent", "intent initialization failed", err)
	}

	var payload struct {
		Status         string `json:"status"`
		ErrorMessage   string `json:"errorMessage"`
		PaymentID      string `json:"paymentId"`
		CheckoutToken  string `json:"checkoutToken"`
		Price          string `json:"price"`
		Currency       string `json:"currency"`
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewError(CodeIyzico, "create_intent", "unexpected response payload", err)
	}
	if payload.Status != "success" {
		return nil, NewError(CodeIyzico, "create_intent", payload.ErrorMessage, nil)
	}

	return &IntentOutput{
		ID:           payload.PaymentID,
		ClientSecret: payload.CheckoutToken,
		Status:       entity.StatusPending,
		AmountCents:  input.AmountCents,
		Currency:     strings.ToUpper(input.Currency),
	}, nil
}

func (a *IyzicoAdapter) ConfirmPayment(ctx context.Context, input *ConfirmInput) (*ConfirmOutput, error) {
	request := map[string]interface{}{
		"paymentId": input.IntentID,
	}

	switch input.PaymentMethod.Type {
	case PaymentMethodCard:
		card := input.PaymentMethod.Card
		if card == nil {
			return nil, NewError(CodeIyzico, "confirm", "card payment method without card data", nil)
		}
		request["paymentCard"] = map[string]interface{}{
			"cardNumber":     card.Number,
			"expireMonth":    fmt.Sprintf("%02d", card.ExpMonth),
			"expireYear":     fmt.Sprintf("%d", card.ExpYear),
			"cvc":            card.CVC,
			"cardHolderName": card.HolderName,
		}
	case PaymentMethodToken:
		request["cardToken"] = input.PaymentMethod.Token
	default:
		return nil, NewError(CodeIyzico, "confirm", "unsupported payment method type", nil)
	}

	path := "/payment/auth"
	if input.Use3DSecure {
		path = "/payment/3dsecure/initialize"
		request["callbackUrl"] = input.ReturnURL
	}

	body, err := a.postJSON(ctx, path, request)
	if err != nil {
		return nil, NewError(CodeIyzico, "confirm", "confirmation failed", err)
	}

	var payload struct {
		Status            string `json:"status"`
		PaymentStatus     string `json:"paymentStatus"`
		ErrorMessage      string `json:"errorMessage"`
		PaymentID         string `json:"paymentId"`
		Price             string `json:"price"`
		Currency          string `json:"currency"`
		ThreeDSHTMLURL    string `json:"threeDSRedirectUrl"`
		LastFourDigits    string `json:"lastFourDigits"`
		CardAssociation   string `json:"cardAssociation"`
		CardToken         string `json:"cardToken"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewError(CodeIyzico, "confirm", "unexpected response payload", err)
	}

	out := &ConfirmOutput{
		ID:              payload.PaymentID,
		Status:          mapIyzicoStatus(payload.Status, payload.PaymentStatus),
		AmountCents:     parsePriceToCents(payload.Price),
		Currency:        strings.ToUpper(payload.Currency),
		ThreeDSecureURL: payload.ThreeDSHTMLURL,
		LastFour:        payload.LastFourDigits,
		Brand:           strings.ToLower(payload.CardAssociation),
		Token:           payload.CardToken,
		FailureReason:   payload.ErrorMessage,
	}

	return out, nil
}

func (a *IyzicoAdapter) CreateRefund(ctx context.Context, input *RefundInput) (*RefundOutput, error) {
	request := map[string]interface{}{
		"paymentTransactionId": input.ProviderPaymentID,
		"price":                formatMinorUnits(input.AmountCents),
		"reason":               input.Reason,
	}

	body, err := a.postJSON(ctx, "/payment/refund", request)
	if err != nil {
		return nil, NewError(CodeIyzico, "refund", "refund creation failed", err)
	}

	var payload struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"errorMessage"`
		RefundID     string `json:"refundId"`
		PaymentID    string `json:"paymentId"`
		Currency     string `json:"currency"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewError(CodeIyzico, "refund", "unexpected response payload", err)
	}
	if payload.Status != "success" {
		return nil, NewError(CodeIyzico, "refund", payload.ErrorMessage, nil)
	}

	return &RefundOutput{
		ID:                payload.RefundID,
		ProviderPaymentID: payload.PaymentID,
		AmountCents:       input.AmountCents,
		Currency:          strings.ToUpper(payload.Currency),
		Status:            entity.RefundStatusSucceeded,
		Reason:            input.Reason,
	}, nil
}

func (a *IyzicoAdapter) GetStatus(ctx context.Context, providerPaymentID string) (string, error) {
	request := map[string]interface{}{
		"paymentId": providerPaymentID,
	}

	body, err := a.postJSON(ctx, "/payment/detail", request)
	if err != nil {
		return "", NewError(CodeIyzico, "get_status", "detail lookup failed", err)
	}

	var payload struct {
		Status        string `json:"status"`
		PaymentStatus string `json:"paymentStatus"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}

	return mapIyzicoStatus(payload.Status, payload.PaymentStatus), nil
}

// ValidateWebhook verifies base64(HMAC-SHA256(secret, eventId+body)) carried
// in the X-Iyz-Signature-V1 header.
func (a *IyzicoAdapter) ValidateWebhook(rawPayload []byte, signatureHeader string) *WebhookResult {
	if strings.TrimSpace(a.cfg.SecretKey) == "" {
		return &WebhookResult{IsValid: false, Error: "secret key is not configured"}
	}

	var event struct {
		IyziEventID   string `json:"iyziEventId"`
		IyziEventType string `json:"iyziEventType"`
		PaymentID     string `json:"paymentId"`
		Status        string `json:"status"`
		ErrorMessage  string `json:"errorMessage"`
	}
	if err := json.Unmarshal(rawPayload, &event); err != nil {
		return &WebhookResult{IsValid: false, Error: "unparseable payload"}
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.SecretKey))
	_, _ = mac.Write([]byte(event.IyziEventID))
	_, _ = mac.Write(rawPayload)
	expected := mac.Sum(nil)

	candidate, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureHeader))
	if err != nil || !hmac.Equal(candidate, expected) {
		return &WebhookResult{IsValid: false, Error: "invalid signature"}
	}

	parsed := &WebhookEvent{
		ID:                event.IyziEventID,
		ProviderPaymentID: event.PaymentID,
		ProviderIntentID:  event.PaymentID,
	}
	switch event.IyziEventType {
	case "PAYMENT_API", "CHECKOUT_FORM_AUTH", "THREE_DS_AUTH":
		if event.Status == "SUCCESS" {
			parsed.Type = WebhookEventSucceeded
			parsed.Status = entity.StatusSucceeded
		} else {
			parsed.Type = WebhookEventFailed
			parsed.Status = entity.StatusFailed
			parsed.FailureReason = event.ErrorMessage
		}
	case "DISPUTE":
		parsed.Type = WebhookEventDisputeCreated
	default:
		return &WebhookResult{IsValid: true}
	}

	return &WebhookResult{IsValid: true, Event: parsed}
}

// SignWebhook produces the signature a legitimate iyzico notification would
// carry for the given payload. Exposed for offline test suites.
func (a *IyzicoAdapter) SignWebhook(rawPayload []byte) string {
	var event struct {
		IyziEventID string `json:"iyziEventId"`
	}
	_ = json.Unmarshal(rawPayload, &event)

	mac := hmac.New(sha256.New, []byte(a.cfg.SecretKey))
	_, _ = mac.Write([]byte(event.IyziEventID))
	_, _ = mac.Write(rawPayload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (a *IyzicoAdapter) postJSON(ctx context.Context, path string, request map[string]interface{}) ([]byte, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	randomKey := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "IYZWSv2 "+a.requestSignature(randomKey, payload))
	req.Header.Set("x-iyzi-rnd", randomKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("iyzico request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}

// requestSignature canonicalizes apiKey+randomKey+body and signs it with the
// secret key.
func (a *IyzicoAdapter) requestSignature(randomKey string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(a.cfg.SecretKey))
	_, _ = mac.Write([]byte(a.cfg.APIKey))
	_, _ = mac.Write([]byte(randomKey))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func mapIyzicoStatus(status, paymentStatus string) string {
	if status != "success" {
		return entity.StatusFailed
	}
	switch paymentStatus {
	case "SUCCESS":
		return entity.StatusSucceeded
	case "INIT_THREEDS", "CALLBACK_THREEDS":
		return entity.StatusRequiresAction
	case "PENDING_CREDIT", "PENDING_FRAUD_CHECK":
		return entity.StatusProcessing
	case "FAILURE":
		return entity.StatusFailed
	default:
		return entity.StatusProcessing
	}
}

func formatMinorUnits(amountCents int64) string {
	return fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100)
}

func parsePriceToCents(price string) int64 {
	price = strings.TrimSpace(price)
	if price == "" {
		return 0
	}
	whole, frac, _ := strings.Cut(price, ".")
	var cents int64
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0
		}
		cents = cents*10 + int64(r-'0')
	}
	cents *= 100
	if len(frac) > 0 {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		var f int64
		for _, r := range frac {
			if r < '0' || r > '9' {
				return 0
			}
			f = f*10 + int64(r-'0')
		}
		if len(frac) == 1 {
			f *= 10
		}
		cents += f
	}
	return cents
}

var _ Adapter = (*IyzicoAdapter)(nil)
