package service

import "errors"

var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrProviderUnsupported    = errors.New("provider is not supported")
	ErrFraudBlocked           = errors.New("payment blocked by risk screening")
	ErrIntentNotFound         = errors.New("payment intent not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrIntentAlreadyConfirmed = errors.New("payment intent already confirmed")
	ErrConfirmInProgress      = errors.New("a confirmation for this intent is already in progress")
	ErrPaymentNotRefundable   = errors.New("payment is not refundable")
	ErrRefundExceedsBalance   = errors.New("refund amount exceeds remaining balance")
	ErrWebhookInvalid         = errors.New("webhook signature validation failed")
)
