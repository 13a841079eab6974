package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloverpay/payment-core/app/entity"
	"github.com/cloverpay/payment-core/app/events"
	"github.com/cloverpay/payment-core/app/fraud"
	"github.com/cloverpay/payment-core/app/provider"
	"github.com/cloverpay/payment-core/app/types"
	"github.com/cloverpay/payment-core/config"
)

type fakeIntentRepo struct {
	intents        map[string]*entity.PaymentIntent
	failTransition bool
}

func newFakeIntentRepo() *fakeIntentRepo {
	return &fakeIntentRepo{intents: map[string]*entity.PaymentIntent{}}
}

func (r *fakeIntentRepo) Create(_ context.Context, intent *entity.PaymentIntent) error {
	copyItem := *intent
	r.intents[intent.ID] = &copyItem
	return nil
}

func (r *fakeIntentRepo) FindByID(_ context.Context, id string) (*entity.PaymentIntent, error) {
	item, ok := r.intents[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeIntentRepo) FindByProviderIntentID(_ context.Context, providerCode, providerIntentID string) (*entity.PaymentIntent, error) {
	for _, item := range r.intents {
		if item.Provider == providerCode && item.ProviderIntentID == providerIntentID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeIntentRepo) TransitionStatus(_ context.Context, id, from, to string, now time.Time) (int64, error) {
	if r.failTransition {
		return 0, nil
	}
	item, ok := r.intents[id]
	if !ok || item.Status != from {
		return 0, nil
	}
	item.Status = to
	item.UpdatedAt = now
	return 1, nil
}

func (r *fakeIntentRepo) UpdateStatus(_ context.Context, id, status string, now time.Time) error {
	item, ok := r.intents[id]
	if !ok {
		return errors.New("intent not found")
	}
	item.Status = status
	item.UpdatedAt = now
	return nil
}

func (r *fakeIntentRepo) ListStaleProcessing(_ context.Context, before time.Time, limit int32) ([]*entity.PaymentIntent, error) {
	items := make([]*entity.PaymentIntent, 0)
	for _, item := range r.intents {
		if item.Status == entity.StatusProcessing && !item.UpdatedAt.After(before) {
			copyItem := *item
			items = append(items, &copyItem)
		}
		if int32(len(items)) == limit {
			break
		}
	}
	return items, nil
}

type fakePaymentRepo struct {
	payments map[string]*entity.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: map[string]*entity.Payment{}}
}

func (r *fakePaymentRepo) Create(_ context.Context, payment *entity.Payment) error {
	for _, item := range r.payments {
		if item.PaymentIntentID == payment.PaymentIntentID {
			return errors.New("duplicate payment for intent")
		}
	}
	copyItem := *payment
	r.payments[payment.ID] = &copyItem
	return nil
}

func (r *fakePaymentRepo) Update(_ context.Context, payment *entity.Payment) error {
	if _, ok := r.payments[payment.ID]; !ok {
		return errors.New("payment not found")
	}
	copyItem := *payment
	r.payments[payment.ID] = &copyItem
	return nil
}

func (r *fakePaymentRepo) FindByID(_ context.Context, id string) (*entity.Payment, error) {
	item, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakePaymentRepo) FindByIntentID(_ context.Context, intentID string) (*entity.Payment, error) {
	for _, item := range r.payments {
		if item.PaymentIntentID == intentID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) FindByProviderPaymentID(_ context.Context, providerCode, providerPaymentID string) (*entity.Payment, error) {
	for _, item := range r.payments {
		if item.Provider == providerCode && item.ProviderPaymentID == providerPaymentID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) ListByOrderID(_ context.Context, orderID string) ([]*entity.Payment, error) {
	items := make([]*entity.Payment, 0)
	for _, item := range r.payments {
		if item.OrderID == orderID {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return items, nil
}

func (r *fakePaymentRepo) AddRefundedCents(_ context.Context, id string, amountCents int64, now time.Time) (int64, error) {
	item, ok := r.payments[id]
	if !ok {
		return 0, nil
	}
	next := item.RefundedCents + amountCents
	if next < 0 || next > item.AmountCents {
		return 0, nil
	}
	item.RefundedCents = next
	item.UpdatedAt = now
	return 1, nil
}

type fakeRefundRepo struct {
	refunds []*entity.Refund
}

func (r *fakeRefundRepo) Create(_ context.Context, refund *entity.Refund) error {
	copyItem := *refund
	r.refunds = append(r.refunds, &copyItem)
	return nil
}

func (r *fakeRefundRepo) ListByPaymentID(_ context.Context, paymentID string) ([]*entity.Refund, error) {
	items := make([]*entity.Refund, 0)
	for _, item := range r.refunds {
		if item.PaymentID == paymentID {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return items, nil
}

type fakeFraudCheckRepo struct {
	checks []*entity.FraudCheck
}

func (r *fakeFraudCheckRepo) Create(_ context.Context, check *entity.FraudCheck) error {
	copyItem := *check
	r.checks = append(r.checks, &copyItem)
	return nil
}

type fakeEventLogRepo struct {
	events []*entity.PaymentEvent
}

func (r *fakeEventLogRepo) Create(_ context.Context, event *entity.PaymentEvent) error {
	copyItem := *event
	r.events = append(r.events, &copyItem)
	return nil
}

type fakePublisher struct {
	paid     []*events.OrderPaidEvent
	failed   []*events.PaymentFailedEvent
	refunded []*events.RefundProcessedEvent
	err      error
}

func (p *fakePublisher) PublishOrderPaid(_ context.Context, event *events.OrderPaidEvent) error {
	if p.err != nil {
		return p.err
	}
	p.paid = append(p.paid, event)
	return nil
}

func (p *fakePublisher) PublishPaymentFailed(_ context.Context, event *events.PaymentFailedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.failed = append(p.failed, event)
	return nil
}

func (p *fakePublisher) PublishRefundProcessed(_ context.Context, event *events.RefundProcessedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.refunded = append(p.refunded, event)
	return nil
}

type stubFraudChecker struct {
	action    string
	score     int
	succeeded []string
}

func (s *stubFraudChecker) CheckPayment(_ context.Context, input *fraud.CheckInput) *entity.FraudCheck {
	action := s.action
	if action == "" {
		action = entity.FraudActionAllow
	}
	return &entity.FraudCheck{
		ID:              "fc_stub",
		CustomerID:      input.CustomerID,
		PaymentIntentID: input.PaymentIntentID,
		RiskScore:       s.score,
		RiskFactors:     []string{},
		Action:          action,
		Reason:          "stubbed",
		CreatedAt:       time.Now().UTC(),
	}
}

func (s *stubFraudChecker) MarkPaymentSucceeded(_ context.Context, customerID string) {
	s.succeeded = append(s.succeeded, customerID)
}

type stubTokenizer struct {
	err      error
	calls    int
	attaches map[string]string
}

func (s *stubTokenizer) TokenizeCard(_ context.Context, customerID string, _ *provider.Card, providerCode, _ string) (*entity.CardToken, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &entity.CardToken{ID: "ct_stub", CustomerID: customerID, Provider: providerCode}, nil
}

func (s *stubTokenizer) AttachProviderToken(_ context.Context, tokenID, providerTokenID string) error {
	if s.attaches == nil {
		s.attaches = map[string]string{}
	}
	s.attaches[tokenID] = providerTokenID
	return nil
}

type harness struct {
	orchestrator *Orchestrator
	intents      *fakeIntentRepo
	payments     *fakePaymentRepo
	refunds      *fakeRefundRepo
	fraudChecks  *fakeFraudCheckRepo
	eventLog     *fakeEventLogRepo
	publisher    *fakePublisher
	fraudStub    *stubFraudChecker
	tokenizer    *stubTokenizer
	adapter      *provider.TestAdapter
}

func newHarness(adapters ...provider.Adapter) *harness {
	h := &harness{
		intents:     newFakeIntentRepo(),
		payments:    newFakePaymentRepo(),
		refunds:     &fakeRefundRepo{},
		fraudChecks: &fakeFraudCheckRepo{},
		eventLog:    &fakeEventLogRepo{},
		publisher:   &fakePublisher{},
		fraudStub:   &stubFraudChecker{},
		tokenizer:   &stubTokenizer{},
		adapter:     provider.NewTestAdapter(),
	}
	if len(adapters) == 0 {
		adapters = []provider.Adapter{h.adapter}
	}
	h.orchestrator = NewOrchestrator(
		h.intents,
		h.payments,
		h.refunds,
		h.fraudChecks,
		h.eventLog,
		provider.NewRegistry(adapters...),
		h.fraudStub,
		h.tokenizer,
		h.publisher,
		config.PaymentsConfig{ProviderTimeout: 5 * time.Second, JobBatchSize: 10},
	)
	return h
}

func createIntentRequest() *types.CreateIntentRequest {
	return &types.CreateIntentRequest{
		Amount:   5000,
		Currency: "TRY",
		OrderID:  "order-1",
		Customer: types.Customer{ID: "cust-1", Country: "TR"},
		Provider: provider.CodeTest,
	}
}

func mustCreateIntent(t *testing.T, h *harness) *entity.PaymentIntent {
	t.Helper()
	intent, err := h.orchestrator.CreateIntent(context.Background(), createIntentRequest())
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	return intent
}

func confirmRequest(intentID string, method types.PaymentMethodRequest) *types.ConfirmPaymentRequest {
	return &types.ConfirmPaymentRequest{IntentID: intentID, PaymentMethod: method}
}

func tokenMethod() types.PaymentMethodRequest {
	return types.PaymentMethodRequest{Type: provider.PaymentMethodToken, Token: "tok_abc"}
}

func cardMethod(number string) types.PaymentMethodRequest {
	return types.PaymentMethodRequest{
		Type: provider.PaymentMethodCard,
		Card: &types.CardRequest{Number: number, ExpMonth: 12, ExpYear: 2030, CVC: "123"},
	}
}

func TestCreateIntentHappyPath(t *testing.T) {
	h := newHarness()

	intent := mustCreateIntent(t, h)

	if intent.Status != entity.StatusPending {
		t.Fatalf("expected pending intent, got %s", intent.Status)
	}
	if intent.ProviderIntentID == "" {
		t.Fatal("expected provider intent id to be set")
	}
	if intent.ClientSecret == nil || *intent.ClientSecret == "" {
		t.Fatal("expected client secret")
	}
	if len(h.fraudChecks.checks) != 1 {
		t.Fatalf("expected 1 fraud check recorded, got %d", len(h.fraudChecks.checks))
	}
	if h.fraudChecks.checks[0].PaymentIntentID != intent.ID {
		t.Fatal("fraud check not linked to intent")
	}
	if stored, _ := h.intents.FindByID(context.Background(), intent.ID); stored == nil {
		t.Fatal("intent not persisted")
	}
}

func TestCreateIntentFraudBlocked(t *testing.T) {
	h := newHarness()
	h.fraudStub.action = entity.FraudActionBlock
	h.fraudStub.score = 90

	_, err := h.orchestrator.CreateIntent(context.Background(), createIntentRequest())
	if !errors.Is(err, ErrFraudBlocked) {
		t.Fatalf("expected ErrFraudBlocked, got %v", err)
	}
	if len(h.intents.intents) != 0 {
		t.Fatal("blocked attempt must not persist an intent")
	}
	if len(h.fraudChecks.checks) != 1 {
		t.Fatal("blocked attempt must still leave an audit row")
	}
}

func TestCreateIntentReviewProceeds(t *testing.T) {
	h := newHarness()
	h.fraudStub.action = entity.FraudActionReview
	h.fraudStub.score = 50

	intent := mustCreateIntent(t, h)
	if intent.FraudAction != entity.FraudActionReview {
		t.Fatalf("expected review action on intent, got %s", intent.FraudAction)
	}
	if intent.Status != entity.StatusPending {
		t.Fatalf("review must not alter the flow, got status %s", intent.Status)
	}
}

func TestCreateIntentUnknownProvider(t *testing.T) {
	h := newHarness()
	req := createIntentRequest()
	req.Provider = "paypal"

	_, err := h.orchestrator.CreateIntent(context.Background(), req)
	if !errors.Is(err, ErrProviderUnsupported) {
		t.Fatalf("expected ErrProviderUnsupported, got %v", err)
	}
}

func TestConfirmPaymentWithTokenSucceeds(t *testing.T) {
	h := newHarness()
	intent := mustCreateIntent(t, h)

	payment, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest(intent.ID, tokenMethod()))
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if payment.Status != entity.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", payment.Status)
	}
	if h.tokenizer.calls != 0 {
		t.Fatal("token payment must not re-tokenize")
	}

	stored, _ := h.intents.FindByID(context.Background(), intent.ID)
	if stored.Status != entity.StatusSucceeded {
		t.Fatalf("intent not settled, status %s", stored.Status)
	}
	if len(h.publisher.paid) != 1 {
		t.Fatalf("expected 1 order paid event, got %d", len(h.publisher.paid))
	}
	if h.publisher.paid[0].OrderID != intent.OrderID {
		t.Fatal("order paid event carries wrong order id")
	}
	if len(h.fraudStub.succeeded) != 1 || h.fraudStub.succeeded[0] != intent.CustomerID {
		t.Fatal("successful payment must be marked with the fraud engine")
	}
}

func TestConfirmPaymentCardDeclined(t *testing.T) {
	h := newHarness()
	intent := mustCreateIntent(t, h)

	payment, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest(intent.ID, cardMethod(provider.TestCardDeclined)))
	if err != nil {
		t.Fatalf("declined card is a completed confirmation, got error %v", err)
	}
	if payment.Status != entity.StatusFailed {
		t.Fatalf("expected failed, got %s", payment.Status)
	}
	if payment.FailureReason == nil || *payment.FailureReason != "card_declined" {
		t.Fatalf("expected card_declined reason, got %v", payment.FailureReason)
	}
	if h.tokenizer.calls != 1 {
		t.Fatal("card payment must tokenize exactly once")
	}
	if len(h.publisher.failed) != 1 {
		t.Fatalf("expected 1 payment failed event, got %d", len(h.publisher.failed))
	}
	if len(h.publisher.paid) != 0 {
		t.Fatal("declined payment must not publish order paid")
	}
}

func TestConfirmPaymentCardAttachesProviderToken(t *testing.T) {
	h := newHarness()
	intent := mustCreateIntent(t, h)

	payment, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest(intent.ID, cardMethod("4242424242424242")))
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if payment.Status != entity.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", payment.Status)
	}

	providerToken, ok := h.tokenizer.attaches["ct_stub"]
	if !ok {
		t.Fatal("successful card charge must attach the provider vault token to the stored card token")
	}
	if providerToken == "" {
		t.Fatal("attached provider token must not be empty")
	}
}

func TestConfirmPaymentDeclinedCardAttachesNothing(t *testing.T) {
	h := newHarness()
	intent := mustCreateIntent(t, h)

	if _, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest(intent.ID, cardMethod(provider.TestCardDeclined))); err != nil {
		t.Fatalf("declined card is a completed confirmation, got error %v", err)
	}
	if len(h.tokenizer.attaches) != 0 {
		t.Fatal("declined charge must not attach a provider token")
	}
}

func TestConfirmPaymentThreeDSecureRoundTrip(t *testing.T) {
	h := newHarness()
	intent := mustCreateIntent(t, h)

	payment, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest(intent.ID, cardMethod(provider.TestCardRequires3DS)))
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if payment.Status != entity.StatusRequiresAction {
		t.Fatalf("expected requires_action, got %s", payment.Status)
	}
	if payment.ThreeDSecureURL == nil || *payment.ThreeDSecureURL == "" {
		t.Fatal("expected challenge url")
	}
	if len(h.publisher.paid)+len(h.publisher.failed) != 0 {
		t.Fatal("non-terminal outcome must not publish events")
	}

	second, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest(intent.ID, tokenMethod()))
	if err != nil {
		t.Fatalf("re-confirm after challenge failed: %v", err)
	}
	if second.ID != payment.ID {
		t.Fatal("re-confirm must update the same payment row")
	}
	if second.Status != entity.StatusSucceeded {
		t.Fatalf("expected succeeded after challenge, got %s", second.Status)
	}
	if second.ThreeDSecureURL != nil {
		t.Fatal("challenge url must be cleared after settlement")
	}
	if len(h.payments.payments) != 1 {
		t.Fatalf("expected exactly 1 payment row, got %d", len(h.payments.payments))
	}
}

func TestConfirmPaymentTerminalIntentRejected(t *testing.T) {
	h := newHarness()
	intent := mustCreateIntent(t, h)

	if _, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest(intent.ID, tokenMethod())); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}

	_, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest(intent.ID, tokenMethod()))
	if !errors.Is(err, ErrIntentAlreadyConfirmed) {
		t.Fatalf("expected ErrIntentAlreadyConfirmed, got %v", err)
	}
	if len(h.publisher.paid) != 1 {
		t.Fatal("repeat confirm must not publish again")
	}
}

func TestConfirmPaymentLosesTransitionRace(t *testing.T) {
	h := newHarness()
	intent := mustCreateIntent(t, h)
	h.intents.failTransition = true

	_, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest(intent.ID, tokenMethod()))
	if !errors.Is(err, ErrConfirmInProgress) {
		t.Fatalf("expected ErrConfirmInProgress, got %v", err)
	}
}

func TestConfirmPaymentUnknownIntent(t *testing.T) {
	h := newHarness()

	_, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest("pi_missing", tokenMethod()))
	if !errors.Is(err, ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
}

func TestConfirmPaymentInvalidCardRevertsStatus(t *testing.T) {
	h := newHarness()
	intent := mustCreateIntent(t, h)
	h.tokenizer.err = errors.New("invalid card")

	_, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest(intent.ID, cardMethod("4242424242424242")))
	if err == nil {
		t.Fatal("expected tokenization error")
	}

	stored, _ := h.intents.FindByID(context.Background(), intent.ID)
	if stored.Status != entity.StatusPending {
		t.Fatalf("intent must revert to pending, got %s", stored.Status)
	}
}

func settledPayment(t *testing.T, h *harness) *entity.Payment {
	t.Helper()
	intent := mustCreateIntent(t, h)
	payment, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest(intent.ID, tokenMethod()))
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	return payment
}

func TestCreateRefundPartialThenRemainder(t *testing.T) {
	h := newHarness()
	payment := settledPayment(t, h)

	refund, err := h.orchestrator.CreateRefund(context.Background(), &types.CreateRefundRequest{PaymentID: payment.ID, Amount: 2000, Reason: "damaged item"})
	if err != nil {
		t.Fatalf("partial refund failed: %v", err)
	}
	if refund.AmountCents != 2000 {
		t.Fatalf("unexpected refund amount: %d", refund.AmountCents)
	}

	remainder, err := h.orchestrator.CreateRefund(context.Background(), &types.CreateRefundRequest{PaymentID: payment.ID})
	if err != nil {
		t.Fatalf("remainder refund failed: %v", err)
	}
	if remainder.AmountCents != 3000 {
		t.Fatalf("expected remainder 3000, got %d", remainder.AmountCents)
	}
	if len(h.publisher.refunded) != 2 {
		t.Fatalf("expected 2 refund events, got %d", len(h.publisher.refunded))
	}

	_, err = h.orchestrator.CreateRefund(context.Background(), &types.CreateRefundRequest{PaymentID: payment.ID, Amount: 1})
	if !errors.Is(err, ErrRefundExceedsBalance) {
		t.Fatalf("expected ErrRefundExceedsBalance on drained balance, got %v", err)
	}
}

func TestCreateRefundOverCap(t *testing.T) {
	h := newHarness()
	payment := settledPayment(t, h)

	_, err := h.orchestrator.CreateRefund(context.Background(), &types.CreateRefundRequest{PaymentID: payment.ID, Amount: payment.AmountCents + 1})
	if !errors.Is(err, ErrRefundExceedsBalance) {
		t.Fatalf("expected ErrRefundExceedsBalance, got %v", err)
	}
	stored, _ := h.payments.FindByID(context.Background(), payment.ID)
	if stored.RefundedCents != 0 {
		t.Fatalf("failed refund must not move the balance, got %d", stored.RefundedCents)
	}
}

func TestCreateRefundRequiresSucceededPayment(t *testing.T) {
	h := newHarness()
	intent := mustCreateIntent(t, h)
	payment, err := h.orchestrator.ConfirmPayment(context.Background(), confirmRequest(intent.ID, cardMethod(provider.TestCardDeclined)))
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	_, err = h.orchestrator.CreateRefund(context.Background(), &types.CreateRefundRequest{PaymentID: payment.ID, Amount: 100})
	if !errors.Is(err, ErrPaymentNotRefundable) {
		t.Fatalf("expected ErrPaymentNotRefundable, got %v", err)
	}
}

type failingRefundAdapter struct {
	*provider.TestAdapter
}

func (a *failingRefundAdapter) CreateRefund(_ context.Context, _ *provider.RefundInput) (*provider.RefundOutput, error) {
	return nil, provider.NewError(provider.CodeTest, "refund", "gateway unavailable", nil)
}

func TestCreateRefundProviderFailureReleasesReservation(t *testing.T) {
	adapter := &failingRefundAdapter{TestAdapter: provider.NewTestAdapter()}
	h := newHarness(adapter)
	h.adapter = adapter.TestAdapter
	payment := settledPayment(t, h)

	_, err := h.orchestrator.CreateRefund(context.Background(), &types.CreateRefundRequest{PaymentID: payment.ID, Amount: 1000})
	if err == nil {
		t.Fatal("expected provider error")
	}

	stored, _ := h.payments.FindByID(context.Background(), payment.ID)
	if stored.RefundedCents != 0 {
		t.Fatalf("reservation must be released on provider failure, got %d", stored.RefundedCents)
	}
	if len(h.refunds.refunds) != 0 {
		t.Fatal("failed provider refund must not persist a refund row")
	}
}

func TestCreateRefundUnknownPayment(t *testing.T) {
	h := newHarness()

	_, err := h.orchestrator.CreateRefund(context.Background(), &types.CreateRefundRequest{PaymentID: "pay_missing", Amount: 100})
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestRunReconcileBatchSettlesStaleIntent(t *testing.T) {
	h := newHarness()
	intent := mustCreateIntent(t, h)

	// Confirm on the provider side only, then strand the local intent in
	// processing as if the confirm response was lost.
	if _, err := h.adapter.ConfirmPayment(context.Background(), &provider.ConfirmInput{
		IntentID:      intent.ProviderIntentID,
		PaymentMethod: provider.PaymentMethod{Type: provider.PaymentMethodToken, Token: "tok_abc"},
	}); err != nil {
		t.Fatalf("provider-side confirm failed: %v", err)
	}

	stale := time.Now().UTC().Add(-time.Hour)
	if _, err := h.intents.TransitionStatus(context.Background(), intent.ID, entity.StatusPending, entity.StatusProcessing, stale); err != nil {
		t.Fatalf("setup transition failed: %v", err)
	}

	reconciled, err := h.orchestrator.RunReconcileBatch(context.Background())
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if reconciled != 1 {
		t.Fatalf("expected 1 reconciled intent, got %d", reconciled)
	}

	stored, _ := h.intents.FindByID(context.Background(), intent.ID)
	if stored.Status != entity.StatusSucceeded {
		t.Fatalf("expected succeeded after reconcile, got %s", stored.Status)
	}
	payment, _ := h.payments.FindByIntentID(context.Background(), intent.ID)
	if payment == nil || payment.Status != entity.StatusSucceeded {
		t.Fatal("reconcile must materialize the succeeded payment")
	}
	if len(h.publisher.paid) != 1 {
		t.Fatalf("expected 1 order paid event from reconcile, got %d", len(h.publisher.paid))
	}
}
