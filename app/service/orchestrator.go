package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cloverpay/payment-core/app/entity"
	"github.com/cloverpay/payment-core/app/events"
	"github.com/cloverpay/payment-core/app/factory"
	"github.com/cloverpay/payment-core/app/fraud"
	"github.com/cloverpay/payment-core/app/metrics"
	"github.com/cloverpay/payment-core/app/provider"
	"github.com/cloverpay/payment-core/app/types"
	"github.com/cloverpay/payment-core/config"
)

const defaultBatchSize = int32(100)

type intentRepository interface {
	Create(ctx context.Context, intent *entity.PaymentIntent) error
	FindByID(ctx context.Context, id string) (*entity.PaymentIntent, error)
	FindByProviderIntentID(ctx context.Context, providerCode, providerIntentID string) (*entity.PaymentIntent, error)
	TransitionStatus(ctx context.Context, id, from, to string, now time.Time) (int64, error)
	UpdateStatus(ctx context.Context, id, status string, now time.Time) error
	ListStaleProcessing(ctx context.Context, before time.Time, limit int32) ([]*entity.PaymentIntent, error)
}

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	Update(ctx context.Context, payment *entity.Payment) error
	FindByID(ctx context.Context, id string) (*entity.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (*entity.Payment, error)
	FindByProviderPaymentID(ctx context.Context, providerCode, providerPaymentID string) (*entity.Payment, error)
	ListByOrderID(ctx context.Context, orderID string) ([]*entity.Payment, error)
	AddRefundedCents(ctx context.Context, id string, amountCents int64, now time.Time) (int64, error)
}

type refundRepository interface {
	Create(ctx context.Context, refund *entity.Refund) error
	ListByPaymentID(ctx context.Context, paymentID string) ([]*entity.Refund, error)
}

type fraudCheckRepository interface {
	Create(ctx context.Context, check *entity.FraudCheck) error
}

type eventLogRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type fraudChecker interface {
	CheckPayment(ctx context.Context, input *fraud.CheckInput) *entity.FraudCheck
	MarkPaymentSucceeded(ctx context.Context, customerID string)
}

type cardTokenizer interface {
	TokenizeCard(ctx context.Context, customerID string, card *provider.Card, providerCode, providerTokenID string) (*entity.CardToken, error)
	AttachProviderToken(ctx context.Context, tokenID, providerTokenID string) error
}

// Orchestrator owns the payment and refund state machines. It is stateless:
// per-entity state lives in the backing store and concurrent confirmations
// are serialized there via compare-and-swap status transitions.
type Orchestrator struct {
	intents   intentRepository
	payments  paymentRepository
	refunds   refundRepository
	fraudLog  fraudCheckRepository
	eventLog  eventLogRepository
	providers *provider.Registry
	fraud     fraudChecker
	tokens    cardTokenizer
	publisher events.Publisher

	cfg    config.PaymentsConfig
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewOrchestrator(
	intents intentRepository,
	payments paymentRepository,
	refunds refundRepository,
	fraudLog fraudCheckRepository,
	eventLog eventLogRepository,
	providers *provider.Registry,
	fraudEngine fraudChecker,
	tokens cardTokenizer,
	publisher events.Publisher,
	cfg config.PaymentsConfig,
) *Orchestrator {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}

	return &Orchestrator{
		intents:   intents,
		payments:  payments,
		refunds:   refunds,
		fraudLog:  fraudLog,
		eventLog:  eventLog,
		providers: providers,
		fraud:     fraudEngine,
		tokens:    tokens,
		publisher: publisher,
		cfg:       cfg,
		logger:    factory.NewModuleLogger("orchestrator"),
		now:       time.Now,
	}
}

// CreateIntent screens the attempt through the fraud engine and, unless
// blocked, opens an intent with the resolved provider. A block aborts before
// any provider call is made.
func (o *Orchestrator) CreateIntent(ctx context.Context, req *types.CreateIntentRequest) (*entity.PaymentIntent, error) {
	adapter, err := o.providers.Get(req.Provider)
	if err != nil {
		return nil, ErrProviderUnsupported
	}

	intentID := "pi_" + uuid.NewString()

	check := o.fraud.CheckPayment(ctx, &fraud.CheckInput{
		CustomerID:      req.Customer.ID,
		PaymentIntentID: intentID,
		AmountCents:     req.Amount,
		Currency:        req.Currency,
		CustomerCountry: req.Customer.Country,
	})
	if err := o.fraudLog.Create(ctx, check); err != nil {
		o.logger.WithError(err).Warn("fraud check audit write failed")
	}
	metrics.FraudDecisionsTotal.WithLabelValues(check.Action).Inc()

	switch check.Action {
	case entity.FraudActionBlock:
		o.logger.WithFields(logrus.Fields{
			"customer_id": req.Customer.ID,
			"order_id":    req.OrderID,
			"risk_score":  check.RiskScore,
		}).Warn("payment_blocked")
		return nil, ErrFraudBlocked
	case entity.FraudActionReview:
		o.logger.WithFields(logrus.Fields{
			"customer_id":       req.Customer.ID,
			"payment_intent_id": intentID,
			"risk_score":        check.RiskScore,
			"risk_factors":      check.RiskFactors,
		}).Info("payment_flagged_for_review")
	}

	providerCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()

	start := o.now()
	out, err := adapter.CreateIntent(providerCtx, &provider.CreateIntentInput{
		AmountCents: req.Amount,
		Currency:    req.Currency,
		CustomerRef: req.Customer.ID,
		OrderRef:    req.OrderID,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	metrics.ProviderCallDuration.WithLabelValues(adapter.Code(), "create_intent").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	intent := &entity.PaymentIntent{
		ID:               intentID,
		OrderID:          req.OrderID,
		CustomerID:       req.Customer.ID,
		AmountCents:      req.Amount,
		Currency:         req.Currency,
		Status:           entity.StatusPending,
		Provider:         adapter.Code(),
		ProviderIntentID: out.ID,
		FraudAction:      check.Action,
		Metadata:         req.Metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if out.ClientSecret != "" {
		secret := out.ClientSecret
		intent.ClientSecret = &secret
	}

	if err := o.intents.Create(ctx, intent); err != nil {
		return nil, err
	}

	o.recordEvent(ctx, intent.ID, nil, "intent_created", nil, intent.Status, nil)

	return intent, nil
}

func (o *Orchestrator) GetIntent(ctx context.Context, id string) (*entity.PaymentIntent, error) {
	intent, err := o.intents.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, ErrIntentNotFound
	}
	return intent, nil
}

// ConfirmPayment drives the money-moving step. An intent is confirmable only
// from pending or requires_action; the transition to processing is a
// compare-and-swap in the store, so a second concurrent confirm loses the
// race and is rejected rather than retried against the provider.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, req *types.ConfirmPaymentRequest) (*entity.Payment, error) {
	intent, err := o.intents.FindByID(ctx, req.IntentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, ErrIntentNotFound
	}

	switch intent.Status {
	case entity.StatusPending, entity.StatusRequiresAction:
	case entity.StatusProcessing:
		return nil, ErrConfirmInProgress
	default:
		return nil, ErrIntentAlreadyConfirmed
	}

	adapter, err := o.providers.Get(intent.Provider)
	if err != nil {
		return nil, ErrProviderUnsupported
	}

	now := o.now().UTC()
	rows, err := o.intents.TransitionStatus(ctx, intent.ID, intent.Status, entity.StatusProcessing, now)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrConfirmInProgress
	}
	previousStatus := intent.Status
	intent.Status = entity.StatusProcessing

	method := provider.PaymentMethod{Type: req.PaymentMethod.Type, Token: req.PaymentMethod.Token}
	var tokenID *string
	if req.PaymentMethod.Type == provider.PaymentMethodCard {
		card := &provider.Card{
			Number:     req.PaymentMethod.Card.Number,
			ExpMonth:   req.PaymentMethod.Card.ExpMonth,
			ExpYear:    req.PaymentMethod.Card.ExpYear,
			CVC:        req.PaymentMethod.Card.CVC,
			HolderName: req.PaymentMethod.Card.HolderName,
		}
		method.Card = card

		cardToken, err := o.tokens.TokenizeCard(ctx, intent.CustomerID, card, intent.Provider, "")
		if err != nil {
			// Undo the processing claim so the caller can retry with a
			// valid card.
			if _, revertErr := o.intents.TransitionStatus(ctx, intent.ID, entity.StatusProcessing, previousStatus, o.now().UTC()); revertErr != nil {
				o.logger.WithError(revertErr).Error("intent status revert failed")
			}
			return nil, err
		}
		tokenID = &cardToken.ID
	}

	providerCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()

	start := o.now()
	out, err := adapter.ConfirmPayment(providerCtx, &provider.ConfirmInput{
		IntentID:      intent.ProviderIntentID,
		PaymentMethod: method,
		Use3DSecure:   req.ThreeDSecure,
		ReturnURL:     req.ReturnURL,
	})
	metrics.ProviderCallDuration.WithLabelValues(adapter.Code(), "confirm").Observe(time.Since(start).Seconds())
	if err != nil {
		// Outcome unknown: the charge may or may not have landed. The
		// intent stays in processing and the provider's webhook settles it;
		// retrying here could double-charge.
		o.recordEvent(ctx, intent.ID, nil, "confirm_provider_error", &previousStatus, entity.StatusProcessing, nil)
		return nil, err
	}

	// The provider vaults the card during a successful charge; persist its
	// reference so the stored token works for future charges.
	if tokenID != nil && out.Token != "" {
		if err := o.tokens.AttachProviderToken(ctx, *tokenID, out.Token); err != nil {
			o.logger.WithError(err).WithField("token_id", *tokenID).Warn("provider token attach failed")
		}
	}

	now = o.now().UTC()
	payment, err := o.upsertPayment(ctx, intent, out, tokenID, now)
	if err != nil {
		return nil, err
	}

	if err := o.intents.UpdateStatus(ctx, intent.ID, out.Status, now); err != nil {
		o.logger.WithError(err).Error("intent status update failed")
	}
	o.recordEvent(ctx, intent.ID, &payment.ID, "payment_confirmed", &previousStatus, out.Status, nil)

	o.announceOutcome(ctx, payment)

	return payment, nil
}

func (o *Orchestrator) GetPayment(ctx context.Context, id string) (*entity.Payment, error) {
	payment, err := o.payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

func (o *Orchestrator) ListPayments(ctx context.Context, orderID string) ([]*entity.Payment, error) {
	return o.payments.ListByOrderID(ctx, orderID)
}

// upsertPayment persists the confirmation result. A requires_action round
// leaves a non-terminal payment row behind; the follow-up confirmation
// updates it in place instead of violating the one-payment-per-intent key.
func (o *Orchestrator) upsertPayment(ctx context.Context, intent *entity.PaymentIntent, out *provider.ConfirmOutput, tokenID *string, now time.Time) (*entity.Payment, error) {
	payment, err := o.payments.FindByIntentID(ctx, intent.ID)
	if err != nil {
		return nil, err
	}

	if payment == nil {
		payment = &entity.Payment{
			ID:              "pay_" + uuid.NewString(),
			PaymentIntentID: intent.ID,
			OrderID:         intent.OrderID,
			CustomerID:      intent.CustomerID,
			AmountCents:     intent.AmountCents,
			Currency:        intent.Currency,
			Provider:        intent.Provider,
			ProcessedAt:     now,
			CreatedAt:       now,
		}
		applyConfirmOutput(payment, out, tokenID, now)
		if err := o.payments.Create(ctx, payment); err != nil {
			return nil, err
		}
		return payment, nil
	}

	applyConfirmOutput(payment, out, tokenID, now)
	if err := o.payments.Update(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func applyConfirmOutput(payment *entity.Payment, out *provider.ConfirmOutput, tokenID *string, now time.Time) {
	payment.Status = out.Status
	payment.ProviderPaymentID = out.ID
	payment.UpdatedAt = now
	if tokenID != nil {
		payment.TokenID = tokenID
	}
	if out.LastFour != "" {
		lastFour := out.LastFour
		payment.LastFour = &lastFour
	}
	if out.Brand != "" {
		brand := out.Brand
		payment.Brand = &brand
	}
	if out.ThreeDSecureURL != "" {
		challengeURL := out.ThreeDSecureURL
		payment.ThreeDSecureURL = &challengeURL
	} else {
		payment.ThreeDSecureURL = nil
	}
	if out.FailureReason != "" {
		reason := out.FailureReason
		payment.FailureReason = &reason
	}
}

// announceOutcome publishes the terminal event for a payment. Publication
// failure after the money already moved is a reconciliation gap, logged and
// never surfaced to the caller.
func (o *Orchestrator) announceOutcome(ctx context.Context, payment *entity.Payment) {
	now := o.now().UTC()

	switch payment.Status {
	case entity.StatusSucceeded:
		o.fraud.MarkPaymentSucceeded(ctx, payment.CustomerID)
		err := o.publisher.PublishOrderPaid(ctx, &events.OrderPaidEvent{
			OrderID:    payment.OrderID,
			CustomerID: payment.CustomerID,
			PaymentID:  payment.ID,
			Amount:     payment.AmountCents,
			Currency:   payment.Currency,
			Provider:   payment.Provider,
			Timestamp:  now,
		})
		o.trackPublish(events.TopicOrderPaid, payment, err)
	case entity.StatusFailed:
		failureReason := ""
		if payment.FailureReason != nil {
			failureReason = *payment.FailureReason
		}
		err := o.publisher.PublishPaymentFailed(ctx, &events.PaymentFailedEvent{
			OrderID:       payment.OrderID,
			CustomerID:    payment.CustomerID,
			PaymentID:     payment.ID,
			Amount:        payment.AmountCents,
			Currency:      payment.Currency,
			Provider:      payment.Provider,
			FailureReason: failureReason,
			Timestamp:     now,
		})
		o.trackPublish(events.TopicPaymentFailed, payment, err)
	}

	metrics.PaymentsTotal.WithLabelValues(payment.Provider, payment.Status).Inc()
}

func (o *Orchestrator) trackPublish(topic string, payment *entity.Payment, err error) {
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(topic, "error").Inc()
		o.logger.WithError(err).WithFields(logrus.Fields{
			"topic":      topic,
			"order_id":   payment.OrderID,
			"payment_id": payment.ID,
		}).Error("event_publish_reconciliation_gap")
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(topic, "ok").Inc()
}

func (o *Orchestrator) recordEvent(ctx context.Context, intentID string, paymentID *string, eventType string, oldStatus *string, newStatus string, providerEventID *string) {
	if err := o.eventLog.Create(ctx, &entity.PaymentEvent{
		PaymentIntentID: intentID,
		PaymentID:       paymentID,
		EventType:       eventType,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
		ProviderEventID: providerEventID,
		CreatedAt:       o.now().UTC(),
	}); err != nil {
		o.logger.WithError(err).Warn("payment event audit write failed")
	}
}

func (o *Orchestrator) batchSize() int32 {
	if o.cfg.JobBatchSize > 0 {
		return o.cfg.JobBatchSize
	}
	return defaultBatchSize
}
