package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cloverpay/payment-core/app/entity"
	"github.com/cloverpay/payment-core/app/events"
	"github.com/cloverpay/payment-core/app/metrics"
	"github.com/cloverpay/payment-core/app/provider"
	"github.com/cloverpay/payment-core/app/types"
)

// CreateRefund reverses part or all of a succeeded payment. The refundable
// balance is reserved in the store with a guarded increment before the
// provider is called, so two concurrent refunds can never over-refund even
// if both pass the local balance read.
func (o *Orchestrator) CreateRefund(ctx context.Context, req *types.CreateRefundRequest) (*entity.Refund, error) {
	payment, err := o.payments.FindByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if payment.Status != entity.StatusSucceeded {
		return nil, ErrPaymentNotRefundable
	}

	amount := req.Amount
	if amount == 0 {
		amount = payment.AmountCents - payment.RefundedCents
	}
	if amount <= 0 || amount > payment.AmountCents-payment.RefundedCents {
		return nil, ErrRefundExceedsBalance
	}

	adapter, err := o.providers.Get(payment.Provider)
	if err != nil {
		return nil, ErrProviderUnsupported
	}

	now := o.now().UTC()
	rows, err := o.payments.AddRefundedCents(ctx, payment.ID, amount, now)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// Lost the race against another refund.
		return nil, ErrRefundExceedsBalance
	}

	providerCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()

	start := o.now()
	out, err := adapter.CreateRefund(providerCtx, &provider.RefundInput{
		ProviderPaymentID: payment.ProviderPaymentID,
		AmountCents:       amount,
		Reason:            req.Reason,
		Metadata:          req.Metadata,
	})
	metrics.ProviderCallDuration.WithLabelValues(adapter.Code(), "refund").Observe(time.Since(start).Seconds())
	if err != nil {
		// Release the reservation so the balance stays refundable.
		if _, releaseErr := o.payments.AddRefundedCents(ctx, payment.ID, -amount, o.now().UTC()); releaseErr != nil {
			o.logger.WithError(releaseErr).WithField("payment_id", payment.ID).Error("refund reservation release failed")
		}
		return nil, err
	}

	now = o.now().UTC()
	refund := &entity.Refund{
		ID:               "re_" + uuid.NewString(),
		PaymentID:        payment.ID,
		AmountCents:      amount,
		Currency:         payment.Currency,
		Status:           entity.RefundStatusSucceeded,
		ProviderRefundID: out.ID,
		ProcessedAt:      now,
		CreatedAt:        now,
	}
	if req.Reason != "" {
		reason := req.Reason
		refund.Reason = &reason
	}
	if out.Status != "" {
		refund.Status = out.Status
	}

	if err := o.refunds.Create(ctx, refund); err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"payment_id":         payment.ID,
			"provider_refund_id": out.ID,
		}).Error("refund row write failed after provider refund")
		return nil, err
	}

	o.recordEvent(ctx, payment.PaymentIntentID, &payment.ID, "refund_created", nil, refund.Status, nil)

	publishErr := o.publisher.PublishRefundProcessed(ctx, &events.RefundProcessedEvent{
		OrderID:   payment.OrderID,
		PaymentID: payment.ID,
		RefundID:  refund.ID,
		Amount:    refund.AmountCents,
		Currency:  refund.Currency,
		Reason:    req.Reason,
		Timestamp: now,
	})
	o.trackPublish(events.TopicRefundProcessed, payment, publishErr)

	return refund, nil
}

func (o *Orchestrator) ListRefunds(ctx context.Context, paymentID string) ([]*entity.Refund, error) {
	payment, err := o.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return o.refunds.ListByPaymentID(ctx, paymentID)
}
