package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloverpay/payment-core/app/entity"
)

// RunReconcileBatch sweeps intents stuck in processing or requires_action
// past the configured age and settles them from the provider's authoritative
// status. It shares the async settlement path with webhooks, so a webhook
// landing mid-sweep is absorbed idempotently.
func (o *Orchestrator) RunReconcileBatch(ctx context.Context) (int, error) {
	staleAge := o.cfg.ReconcileStaleAge
	if staleAge <= 0 {
		staleAge = 15 * time.Minute
	}

	cutoff := o.now().UTC().Add(-staleAge)
	stale, err := o.intents.ListStaleProcessing(ctx, cutoff, o.batchSize())
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, intent := range stale {
		if err := o.reconcileIntent(ctx, intent); err != nil {
			o.logger.WithError(err).WithField("payment_intent_id", intent.ID).Warn("reconcile_skipped")
			continue
		}
		reconciled++
	}

	if len(stale) > 0 {
		o.logger.WithFields(logrus.Fields{
			"stale":      len(stale),
			"reconciled": reconciled,
		}).Info("reconcile_batch_done")
	}

	return reconciled, nil
}

func (o *Orchestrator) reconcileIntent(ctx context.Context, intent *entity.PaymentIntent) error {
	adapter, err := o.providers.Get(intent.Provider)
	if err != nil {
		return err
	}

	providerCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()

	status, err := adapter.GetStatus(providerCtx, intent.ProviderIntentID)
	if err != nil {
		return err
	}

	switch status {
	case entity.StatusSucceeded:
		return o.applyAsyncStatus(ctx, intent, entity.StatusSucceeded, "", "")
	case entity.StatusFailed:
		return o.applyAsyncStatus(ctx, intent, entity.StatusFailed, "settled as failed during reconciliation", "")
	case entity.StatusCanceled:
		now := o.now().UTC()
		previousStatus := intent.Status
		if err := o.intents.UpdateStatus(ctx, intent.ID, entity.StatusCanceled, now); err != nil {
			return err
		}
		o.recordEvent(ctx, intent.ID, nil, "reconciled_canceled", &previousStatus, entity.StatusCanceled, nil)
		return nil
	default:
		// Still in flight on the provider side. Leave it for the next sweep.
		return nil
	}
}
