package types

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
)

type Customer struct {
	ID      string `json:"id"`
	Country string `json:"country,omitempty"`
}

type CreateIntentRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	OrderID     string            `json:"order_id"`
	Customer    Customer          `json:"customer"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Provider    string            `json:"provider"`
}

func NewCreateIntentRequestFromContext(ctx echo.Context) (*CreateIntentRequest, error) {
	var body CreateIntentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.OrderID = strings.TrimSpace(body.OrderID)
	body.Customer.ID = strings.TrimSpace(body.Customer.ID)
	body.Customer.Country = strings.ToUpper(strings.TrimSpace(body.Customer.Country))
	body.Provider = strings.ToLower(strings.TrimSpace(body.Provider))

	return &body, nil
}

func (r *CreateIntentRequest) Validate() error {
	if r.Amount <= 0 {
		return errors.New("amount must be > 0")
	}
	if len(r.Currency) != 3 {
		return errors.New("currency must be a 3-letter ISO 4217 code")
	}
	if r.OrderID == "" {
		return errors.New("order_id is required")
	}
	if r.Customer.ID == "" {
		return errors.New("customer.id is required")
	}
	if r.Provider == "" {
		return errors.New("provider is required")
	}
	return nil
}

type CardRequest struct {
	Number     string `json:"number"`
	ExpMonth   int    `json:"exp_month"`
	ExpYear    int    `json:"exp_year"`
	CVC        string `json:"cvc"`
	HolderName string `json:"holder_name,omitempty"`
}

type PaymentMethodRequest struct {
	Type  string       `json:"type"`
	Card  *CardRequest `json:"card,omitempty"`
	Token string       `json:"token,omitempty"`
}

type ConfirmPaymentRequest struct {
	IntentID      string               `json:"-"`
	PaymentMethod PaymentMethodRequest `json:"payment_method"`
	ThreeDSecure  bool                 `json:"three_d_secure,omitempty"`
	ReturnURL     string               `json:"return_url,omitempty"`
}

func NewConfirmPaymentRequestFromContext(ctx echo.Context) (*ConfirmPaymentRequest, error) {
	var body ConfirmPaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.IntentID = strings.TrimSpace(ctx.Param("id"))
	body.PaymentMethod.Type = strings.ToLower(strings.TrimSpace(body.PaymentMethod.Type))
	body.PaymentMethod.Token = strings.TrimSpace(body.PaymentMethod.Token)
	body.ReturnURL = strings.TrimSpace(body.ReturnURL)

	return &body, nil
}

func (r *ConfirmPaymentRequest) Validate() error {
	if r.IntentID == "" {
		return errors.New("payment intent id is required")
	}
	switch r.PaymentMethod.Type {
	case "card":
		if r.PaymentMethod.Card == nil {
			return errors.New("payment_method.card is required for type card")
		}
		card := r.PaymentMethod.Card
		if strings.TrimSpace(card.Number) == "" {
			return errors.New("card number is required")
		}
		if card.ExpMonth < 1 || card.ExpMonth > 12 {
			return errors.New("card exp_month must be between 1 and 12")
		}
		if card.ExpYear < 2000 {
			return errors.New("card exp_year is invalid")
		}
		if len(strings.TrimSpace(card.CVC)) < 3 {
			return errors.New("card cvc is invalid")
		}
	case "token":
		if r.PaymentMethod.Token == "" {
			return errors.New("payment_method.token is required for type token")
		}
	default:
		return errors.New("payment_method.type must be card or token")
	}
	return nil
}

type CreateRefundRequest struct {
	PaymentID string            `json:"-"`
	Amount    int64             `json:"amount,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func NewCreateRefundRequestFromContext(ctx echo.Context) (*CreateRefundRequest, error) {
	var body CreateRefundRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	body.PaymentID = strings.TrimSpace(ctx.Param("id"))
	body.Reason = strings.TrimSpace(body.Reason)

	return &body, nil
}

func (r *CreateRefundRequest) Validate() error {
	if r.PaymentID == "" {
		return errors.New("payment id is required")
	}
	if r.Amount < 0 {
		return errors.New("amount must be >= 0")
	}
	return nil
}

type WebhookRequest struct {
	Provider  string
	Signature string
	Payload   []byte
}

func NewWebhookRequestFromContext(ctx echo.Context) (*WebhookRequest, error) {
	provider := strings.ToLower(strings.TrimSpace(ctx.Param("provider")))

	signature := strings.TrimSpace(ctx.Request().Header.Get("Stripe-Signature"))
	if signature == "" {
		signature = strings.TrimSpace(ctx.Request().Header.Get("X-Iyz-Signature-V1"))
	}
	if signature == "" {
		signature = strings.TrimSpace(ctx.Request().Header.Get("X-Provider-Signature"))
	}

	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &WebhookRequest{
		Provider:  provider,
		Signature: signature,
		Payload:   rawBody,
	}, nil
}

func (r *WebhookRequest) Validate() error {
	if r.Provider == "" {
		return errors.New("provider is required")
	}
	if r.Signature == "" {
		return errors.New("provider signature is required")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if !json.Valid(r.Payload) {
		return errors.New("payload must be valid JSON")
	}
	return nil
}
