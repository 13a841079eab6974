package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloverpay/payment-core/app/entity"
)

type memoryCounterStore struct {
	counters map[string]int64
	flags    map[string]bool
	err      error
}

func newMemoryCounterStore() *memoryCounterStore {
	return &memoryCounterStore{
		counters: map[string]int64{},
		flags:    map[string]bool{},
	}
}

func (s *memoryCounterStore) IncrWithExpiry(_ context.Context, key string, by int64, _ time.Duration) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.counters[key] += by
	return s.counters[key], nil
}

func (s *memoryCounterStore) GetInt(_ context.Context, key string) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.counters[key], nil
}

func (s *memoryCounterStore) SetFlag(_ context.Context, key string, _ time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.flags[key] = true
	return nil
}

func (s *memoryCounterStore) HasFlag(_ context.Context, key string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.flags[key], nil
}

// newTestEngine pins the clock to mid-afternoon so the unusual-time signal
// stays quiet unless a test moves the clock itself.
func newTestEngine(store CounterStore) *Engine {
	engine := NewEngine(store, DefaultConfig())
	engine.now = func() time.Time {
		return time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)
	}
	return engine
}

func checkInput(amountCents int64) *CheckInput {
	return &CheckInput{
		CustomerID:      "cust-1",
		PaymentIntentID: "pi_1",
		AmountCents:     amountCents,
		Currency:        "TRY",
		CustomerCountry: "TR",
	}
}

func hasFactor(check *entity.FraudCheck, factor string) bool {
	for _, f := range check.RiskFactors {
		if f == factor {
			return true
		}
	}
	return false
}

func TestCheckPaymentCleanAttemptAllowed(t *testing.T) {
	store := newMemoryCounterStore()
	store.flags["fraud:paid:cust-1"] = true
	engine := newTestEngine(store)

	check := engine.CheckPayment(context.Background(), checkInput(5000))

	if check.Action != entity.FraudActionAllow {
		t.Fatalf("expected allow, got %s", check.Action)
	}
	if check.RiskScore != 0 {
		t.Fatalf("expected zero score, got %d", check.RiskScore)
	}
	if len(check.RiskFactors) != 0 {
		t.Fatalf("expected no factors, got %v", check.RiskFactors)
	}
}

func TestCheckPaymentFirstTimeHighAmountFlagsReview(t *testing.T) {
	store := newMemoryCounterStore()
	engine := newTestEngine(store)

	// 30 for high amount plus 20 for a first payment above the cap.
	check := engine.CheckPayment(context.Background(), checkInput(150_000))

	if check.Action != entity.FraudActionReview {
		t.Fatalf("expected review, got %s (score %d)", check.Action, check.RiskScore)
	}
	if check.RiskScore != 50 {
		t.Fatalf("expected score 50, got %d", check.RiskScore)
	}
	if !hasFactor(check, FactorHighAmount) || !hasFactor(check, FactorFirstTimeHighAmount) {
		t.Fatalf("missing expected factors: %v", check.RiskFactors)
	}
}

func TestCheckPaymentRestrictedCountryBlocks(t *testing.T) {
	store := newMemoryCounterStore()
	engine := newTestEngine(store)

	input := checkInput(150_000)
	input.CustomerCountry = "XX"

	// 60 restricted country + 30 high amount + 20 first-time high.
	check := engine.CheckPayment(context.Background(), input)

	if check.Action != entity.FraudActionBlock {
		t.Fatalf("expected block, got %s (score %d)", check.Action, check.RiskScore)
	}
	if !hasFactor(check, FactorRestrictedCountry) {
		t.Fatalf("missing restricted country factor: %v", check.RiskFactors)
	}
}

func TestCheckPaymentVelocityLimit(t *testing.T) {
	store := newMemoryCounterStore()
	store.flags["fraud:paid:cust-1"] = true
	engine := newTestEngine(store)

	for i := 0; i < 10; i++ {
		engine.CheckPayment(context.Background(), checkInput(100))
	}

	check := engine.CheckPayment(context.Background(), checkInput(100))
	if !hasFactor(check, FactorHighVelocity) {
		t.Fatalf("expected velocity factor after %d attempts: %v", 11, check.RiskFactors)
	}
	if check.Action != entity.FraudActionReview {
		t.Fatalf("expected review at score 40, got %s", check.Action)
	}
}

func TestCheckPaymentDailyAmountLimit(t *testing.T) {
	store := newMemoryCounterStore()
	store.flags["fraud:paid:cust-1"] = true
	engine := newTestEngine(store)

	store.counters["fraud:amount:cust-1:20260310"] = 495_000

	check := engine.CheckPayment(context.Background(), checkInput(10_000))
	if !hasFactor(check, FactorDailyLimitExceeded) {
		t.Fatalf("expected daily limit factor: %v", check.RiskFactors)
	}
}

func TestCheckPaymentUnusualHour(t *testing.T) {
	store := newMemoryCounterStore()
	store.flags["fraud:paid:cust-1"] = true
	engine := NewEngine(store, DefaultConfig())
	engine.now = func() time.Time {
		return time.Date(2026, time.March, 10, 3, 0, 0, 0, time.UTC)
	}

	check := engine.CheckPayment(context.Background(), checkInput(100))
	if !hasFactor(check, FactorUnusualTime) {
		t.Fatalf("expected unusual time factor at 03:00 UTC: %v", check.RiskFactors)
	}
	if check.Action != entity.FraudActionAllow {
		t.Fatalf("10 points alone must still allow, got %s", check.Action)
	}
}

func TestCheckPaymentFailsOpenOnStoreError(t *testing.T) {
	store := newMemoryCounterStore()
	store.err = errors.New("connection refused")
	engine := newTestEngine(store)

	check := engine.CheckPayment(context.Background(), checkInput(150_000))

	if check.Action != entity.FraudActionAllow {
		t.Fatalf("store outage must fail open, got %s", check.Action)
	}
	if check.RiskScore != 0 {
		t.Fatalf("degraded check must carry zero score, got %d", check.RiskScore)
	}
	if !hasFactor(check, FactorCheckFailed) {
		t.Fatalf("degraded check must be marked: %v", check.RiskFactors)
	}
}

func TestCheckPaymentRecordsAttemptCounters(t *testing.T) {
	store := newMemoryCounterStore()
	store.flags["fraud:paid:cust-1"] = true
	engine := newTestEngine(store)

	engine.CheckPayment(context.Background(), checkInput(2500))

	if store.counters["fraud:txn:cust-1:2026031014"] != 1 {
		t.Fatalf("hourly counter not bumped: %v", store.counters)
	}
	if store.counters["fraud:amount:cust-1:20260310"] != 2500 {
		t.Fatalf("daily amount counter not bumped: %v", store.counters)
	}
}

func TestMarkPaymentSucceededSuppressesFirstTimeSignal(t *testing.T) {
	store := newMemoryCounterStore()
	engine := newTestEngine(store)

	before := engine.CheckPayment(context.Background(), checkInput(50_000))
	if !hasFactor(before, FactorFirstTimeHighAmount) {
		t.Fatalf("expected first-time factor before any success: %v", before.RiskFactors)
	}

	engine.MarkPaymentSucceeded(context.Background(), "cust-1")

	after := engine.CheckPayment(context.Background(), checkInput(50_000))
	if hasFactor(after, FactorFirstTimeHighAmount) {
		t.Fatalf("first-time factor must be suppressed after a success: %v", after.RiskFactors)
	}
}
