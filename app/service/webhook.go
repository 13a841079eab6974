package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cloverpay/payment-core/app/entity"
	"github.com/cloverpay/payment-core/app/provider"
	"github.com/cloverpay/payment-core/app/types"
)

// HandleWebhook verifies and applies an asynchronous provider notification.
// An invalid signature rejects the delivery before any state is touched.
// Deliveries are at-least-once, so applying a status the intent already
// holds is a silent no-op rather than an error.
func (o *Orchestrator) HandleWebhook(ctx context.Context, req *types.WebhookRequest) error {
	adapter, err := o.providers.Get(req.Provider)
	if err != nil {
		return ErrProviderUnsupported
	}

	result := adapter.ValidateWebhook(req.Payload, req.Signature)
	if result == nil || !result.IsValid {
		reason := ""
		if result != nil {
			reason = result.Error
		}
		o.logger.WithFields(logrus.Fields{
			"provider": req.Provider,
			"reason":   reason,
		}).Warn("webhook_rejected")
		return ErrWebhookInvalid
	}
	if result.Event == nil {
		// Valid signature, event type we do not track.
		return nil
	}

	event := result.Event
	intent, err := o.resolveIntent(ctx, adapter.Code(), event)
	if err != nil {
		return err
	}

	switch event.Type {
	case provider.WebhookEventSucceeded:
		return o.applyAsyncStatus(ctx, intent, entity.StatusSucceeded, "", event.ID)
	case provider.WebhookEventFailed:
		return o.applyAsyncStatus(ctx, intent, entity.StatusFailed, event.FailureReason, event.ID)
	case provider.WebhookEventDisputeCreated:
		o.logger.WithFields(logrus.Fields{
			"provider":          adapter.Code(),
			"payment_intent_id": intent.ID,
			"provider_event_id": event.ID,
		}).Warn("dispute_opened")
		o.recordEvent(ctx, intent.ID, nil, "dispute_created", nil, intent.Status, &event.ID)
		return nil
	default:
		return nil
	}
}

func (o *Orchestrator) resolveIntent(ctx context.Context, providerCode string, event *provider.WebhookEvent) (*entity.PaymentIntent, error) {
	if event.ProviderIntentID != "" {
		intent, err := o.intents.FindByProviderIntentID(ctx, providerCode, event.ProviderIntentID)
		if err != nil {
			return nil, err
		}
		if intent != nil {
			return intent, nil
		}
	}

	if event.ProviderPaymentID != "" {
		payment, err := o.payments.FindByProviderPaymentID(ctx, providerCode, event.ProviderPaymentID)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return o.GetIntent(ctx, payment.PaymentIntentID)
		}
	}

	return nil, ErrIntentNotFound
}

// applyAsyncStatus settles an intent from a provider-side signal, either a
// webhook or the reconciliation job. The shared path keeps both sources
// idempotent: a terminal intent absorbs repeats without emitting events.
func (o *Orchestrator) applyAsyncStatus(ctx context.Context, intent *entity.PaymentIntent, status, failureReason, providerEventID string) error {
	if intent.Status == status {
		return nil
	}
	if entity.IsTerminalStatus(intent.Status) {
		o.logger.WithFields(logrus.Fields{
			"payment_intent_id": intent.ID,
			"current_status":    intent.Status,
			"incoming_status":   status,
		}).Info("async_status_ignored_terminal")
		return nil
	}

	now := o.now().UTC()
	previousStatus := intent.Status
	if err := o.intents.UpdateStatus(ctx, intent.ID, status, now); err != nil {
		return err
	}

	payment, err := o.payments.FindByIntentID(ctx, intent.ID)
	if err != nil {
		return err
	}
	if payment != nil {
		payment.Status = status
		payment.ThreeDSecureURL = nil
		payment.UpdatedAt = now
		if failureReason != "" {
			reason := failureReason
			payment.FailureReason = &reason
		}
		if err := o.payments.Update(ctx, payment); err != nil {
			return err
		}
	} else if status == entity.StatusSucceeded {
		// Succeeded without a local payment row: the confirm call never
		// returned but the charge landed. Materialize the row now.
		payment = &entity.Payment{
			ID:              "pay_" + uuid.NewString(),
			PaymentIntentID: intent.ID,
			OrderID:         intent.OrderID,
			CustomerID:      intent.CustomerID,
			AmountCents:     intent.AmountCents,
			Currency:        intent.Currency,
			Status:          status,
			Provider:        intent.Provider,
			ProcessedAt:     now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := o.payments.Create(ctx, payment); err != nil {
			return err
		}
	}

	var eventID *string
	if providerEventID != "" {
		id := providerEventID
		eventID = &id
	}
	var paymentID *string
	if payment != nil {
		paymentID = &payment.ID
	}
	o.recordEvent(ctx, intent.ID, paymentID, "async_status_applied", &previousStatus, status, eventID)

	if payment != nil {
		o.announceOutcome(ctx, payment)
	}

	return nil
}
