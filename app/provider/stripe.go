package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloverpay/payment-core/app/entity"
)

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type StripeAdapter struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tolerance := cfg.SignatureToleranceSeconds
	if tolerance <= 0 {
		tolerance = 300
	}
	cfg.SignatureToleranceSeconds = tolerance

	return &StripeAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (a *StripeAdapter) Code() string {
	return CodeStripe
}

func (a *StripeAdapter) CreateIntent(ctx context.Context, input *CreateIntentInput) (*IntentOutput, error) {
	if strings.TrimSpace(a.cfg.SecretKey) == "" {
		return nil, NewError(CodeStripe, "create_intent", "secret key is not configured", nil)
	}

	values := url.Values{}
	values.Set("amount", strconv.FormatInt(input.AmountCents, 10))
	values.Set("currency", strings.ToLower(input.Currency))
	values.Set("description", input.Description)
	for k, v := range input.Metadata {
		values.Set("metadata["+k+"]", v)
	}
	values.Set("metadata[order_ref]", input.OrderRef)
	values.Set("metadata[customer_ref]", input.CustomerRef)

	body, err := a.postForm(ctx, "/v1/payment_intents", values)
	if err != nil {
		return nil, NewError(CodeStripe, "create_intent", "payment intent creation failed", err)
	}

	var payload struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
		Status       string `json:"status"`
		Amount       int64  `json:"amount"`
		Currency     string `json:"currency"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewError(CodeStripe, "create_intent", "unexpected response payload", err)
	}

	return &IntentOutput{
		ID:           payload.ID,
		ClientSecret: payload.ClientSecret,
		Status:       mapStripeStatus(payload.Status),
		AmountCents:  payload.Amount,
		Currency:     strings.ToUpper(payload.Currency),
	}, nil
}

func (a *StripeAdapter) ConfirmPayment(ctx context.Context, input *ConfirmInput) (*ConfirmOutput, error) {
	values := url.Values{}

	switch input.PaymentMethod.Type {
	case PaymentMethodCard:
		card := input.PaymentMethod.Card
		if card == nil {
			return nil, NewError(CodeStripe, "confirm", "card payment method without card data", nil)
		}
		values.Set("payment_method_data[type]", "card")
		values.Set("payment_method_data[card][number]", card.Number)
		values.Set("payment_method_data[card][exp_month]", strconv.Itoa(card.ExpMonth))
		values.Set("payment_method_data[card][exp_year]", strconv.Itoa(card.ExpYear))
		values.Set("payment_method_data[card][cvc]", card.CVC)
	case PaymentMethodToken:
		values.Set("payment_method", input.PaymentMethod.Token)
	default:
		return nil, NewError(CodeStripe, "confirm", "unsupported payment method type", nil)
	}

	if input.Use3DSecure {
		values.Set("payment_method_options[card][request_three_d_secure]", "any")
	}
	if strings.TrimSpace(input.ReturnURL) != "" {
		values.Set("return_url", input.ReturnURL)
	}

	body, err := a.postForm(ctx, "/v1/payment_intents/"+url.PathEscape(input.IntentID)+"/confirm", values)
	if err != nil {
		return nil, NewError(CodeStripe, "confirm", "confirmation failed", err)
	}

	var payload struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		Amount     int64  `json:"amount"`
		Currency   string `json:"currency"`
		NextAction struct {
			RedirectToURL struct {
				URL string `json:"url"`
			} `json:"redirect_to_url"`
		} `json:"next_action"`
		Charges struct {
			Data []struct {
				PaymentMethodDetails struct {
					Card struct {
						Last4 string `json:"last4"`
						Brand string `json:"brand"`
					} `json:"card"`
				} `json:"payment_method_details"`
			} `json:"data"`
		} `json:"charges"`
		LastPaymentError struct {
			Message string `json:"message"`
		} `json:"last_payment_error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewError(CodeStripe, "confirm", "unexpected response payload", err)
	}

	out := &ConfirmOutput{
		ID:              payload.ID,
		Status:          mapStripeStatus(payload.Status),
		AmountCents:     payload.Amount,
		Currency:        strings.ToUpper(payload.Currency),
		ThreeDSecureURL: payload.NextAction.RedirectToURL.URL,
		FailureReason:   payload.LastPaymentError.Message,
	}
	if len(payload.Charges.Data) > 0 {
		out.LastFour = payload.Charges.Data[0].PaymentMethodDetails.Card.Last4
		out.Brand = payload.Charges.Data[0].PaymentMethodDetails.Card.Brand
	}

	return out, nil
}

func (a *StripeAdapter) CreateRefund(ctx context.Context, input *RefundInput) (*RefundOutput, error) {
	values := url.Values{}
	values.Set("payment_intent", input.ProviderPaymentID)
	if input.AmountCents > 0 {
		values.Set("amount", strconv.FormatInt(input.AmountCents, 10))
	}
	if strings.TrimSpace(input.Reason) != "" {
		values.Set("metadata[reason]", input.Reason)
	}
	for k, v := range input.Metadata {
		values.Set("metadata["+k+"]", v)
	}

	body, err := a.postForm(ctx, "/v1/refunds", values)
	if err != nil {
		return nil, NewError(CodeStripe, "refund", "refund creation failed", err)
	}

	var payload struct {
		ID            string `json:"id"`
		PaymentIntent string `json:"payment_intent"`
		Amount        int64  `json:"amount"`
		Currency      string `json:"currency"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewError(CodeStripe, "refund", "unexpected response payload", err)
	}

	status := entity.RefundStatusPending
	switch payload.Status {
	case "succeeded":
		status = entity.RefundStatusSucceeded
	case "failed", "canceled":
		status = entity.RefundStatusFailed
	}

	return &RefundOutput{
		ID:                payload.ID,
		ProviderPaymentID: payload.PaymentIntent,
		AmountCents:       payload.Amount,
		Currency:          strings.ToUpper(payload.Currency),
		Status:            status,
		Reason:            input.Reason,
	}, nil
}

func (a *StripeAdapter) GetStatus(ctx context.Context, providerPaymentID string) (string, error) {
	if strings.TrimSpace(providerPaymentID) == "" {
		return "", NewError(CodeStripe, "get_status", "provider payment id is empty", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.stripe.com/v1/payment_intents/"+url.PathEscape(providerPaymentID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", NewError(CodeStripe, "get_status", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", NewError(CodeStripe, "get_status", fmt.Sprintf("status=%d body=%s", resp.StatusCode, string(body)), nil)
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}

	return mapStripeStatus(payload.Status), nil
}

// ValidateWebhook checks the timestamped t=...,v1=... HMAC-SHA256 signature
// scheme and reduces the event to the canonical webhook shape.
func (a *StripeAdapter) ValidateWebhook(rawPayload []byte, signatureHeader string) *WebhookResult {
	if strings.TrimSpace(a.cfg.WebhookSecret) == "" {
		return &WebhookResult{IsValid: false, Error: "webhook secret is not configured"}
	}
	if !verifyStripeSignature(rawPayload, signatureHeader, a.cfg.WebhookSecret, a.cfg.SignatureToleranceSeconds) {
		return &WebhookResult{IsValid: false, Error: "invalid signature"}
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID               string `json:"id"`
				LastPaymentError struct {
					Message string `json:"message"`
				} `json:"last_payment_error"`
				PaymentIntent string `json:"payment_intent"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawPayload, &event); err != nil {
		return &WebhookResult{IsValid: false, Error: "unparseable payload"}
	}

	parsed := &WebhookEvent{ID: event.ID}
	switch event.Type {
	case "payment_intent.succeeded":
		parsed.Type = WebhookEventSucceeded
		parsed.Status = entity.StatusSucceeded
		parsed.ProviderIntentID = event.Data.Object.ID
		parsed.ProviderPaymentID = event.Data.Object.ID
	case "payment_intent.payment_failed":
		parsed.Type = WebhookEventFailed
		parsed.Status = entity.StatusFailed
		parsed.ProviderIntentID = event.Data.Object.ID
		parsed.ProviderPaymentID = event.Data.Object.ID
		parsed.FailureReason = event.Data.Object.LastPaymentError.Message
	case "charge.dispute.created":
		parsed.Type = WebhookEventDisputeCreated
		parsed.ProviderPaymentID = event.Data.Object.PaymentIntent
	default:
		return &WebhookResult{IsValid: true}
	}

	return &WebhookResult{IsValid: true, Event: parsed}
}

func (a *StripeAdapter) postForm(ctx context.Context, path string, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.stripe.com"+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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
		return nil, fmt.Errorf("stripe request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}

func mapStripeStatus(status string) string {
	switch status {
	case "requires_payment_method", "requires_confirmation":
		return entity.StatusPending
	case "processing":
		return entity.StatusProcessing
	case "requires_action", "requires_capture":
		return entity.StatusRequiresAction
	case "succeeded":
		return entity.StatusSucceeded
	case "canceled":
		return entity.StatusCanceled
	default:
		return entity.StatusFailed
	}
}

func verifyStripeSignature(payload []byte, signatureHeader string, webhookSecret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	signedPayload := []byte(ts + "." + string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}

var _ Adapter = (*StripeAdapter)(nil)
