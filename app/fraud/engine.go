package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cloverpay/payment-core/app/entity"
	"github.com/cloverpay/payment-core/app/factory"
)

// Risk signal names recorded in the audit trail.
const (
	FactorHighAmount          = "high_amount"
	FactorHighVelocity        = "high_velocity"
	FactorDailyLimitExceeded  = "daily_limit_exceeded"
	FactorRestrictedCountry   = "restricted_country"
	FactorUnusualTime         = "unusual_time"
	FactorFirstTimeHighAmount = "first_time_high_amount"
	FactorCheckFailed         = "fraud_check_failed"
)

const (
	hourlyWindow       = time.Hour
	dailyWindow        = 24 * time.Hour
	firstPaymentWindow = 30 * 24 * time.Hour
)

// Config carries the scoring weights and thresholds. Values ship with
// defaults but are configuration, not invariants.
type Config struct {
	BlockThreshold  int
	ReviewThreshold int

	MaxAmountCents          int64
	FirstPaymentAmountCents int64
	HourlyTxnLimit          int64
	DailyAmountLimitCents   int64
	AllowedCountries        []string
	UnusualHourStart        int
	UnusualHourEnd          int

	WeightHighAmount          int
	WeightHighVelocity        int
	WeightDailyLimitExceeded  int
	WeightRestrictedCountry   int
	WeightUnusualTime         int
	WeightFirstTimeHighAmount int
}

func DefaultConfig() Config {
	return Config{
		BlockThreshold:  70,
		ReviewThreshold: 40,

		MaxAmountCents:          1_000_00,
		FirstPaymentAmountCents: 250_00,
		HourlyTxnLimit:          10,
		DailyAmountLimitCents:   5_000_00,
		AllowedCountries:        []string{"TR", "US", "GB", "DE", "FR", "NL"},
		UnusualHourStart:        2,
		UnusualHourEnd:          5,

		WeightHighAmount:          30,
		WeightHighVelocity:        40,
		WeightDailyLimitExceeded:  50,
		WeightRestrictedCountry:   60,
		WeightUnusualTime:         10,
		WeightFirstTimeHighAmount: 20,
	}
}

type CheckInput struct {
	CustomerID      string
	PaymentIntentID string
	AmountCents     int64
	Currency        string
	CustomerCountry string
}

// Engine computes an additive risk score from independent signals against a
// shared time-windowed counter store. On store failure it fails open:
// availability wins over false blocking.
type Engine struct {
	store  CounterStore
	cfg    Config
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewEngine(store CounterStore, cfg Config) *Engine {
	if cfg.BlockThreshold == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: factory.NewModuleLogger("fraud-engine"),
		now:    time.Now,
	}
}

func (e *Engine) CheckPayment(ctx context.Context, input *CheckInput) *entity.FraudCheck {
	now := e.now().UTC()
	check := &entity.FraudCheck{
		ID:              "fc_" + uuid.NewString(),
		CustomerID:      input.CustomerID,
		PaymentIntentID: input.PaymentIntentID,
		RiskFactors:     []string{},
		CreatedAt:       now,
	}

	score, factors, err := e.score(ctx, input, now)
	if err != nil {
		// Fail open: the counter store being unreachable must not block
		// legitimate charges.
		e.logger.WithError(err).WithFields(logrus.Fields{
			"customer_id":       input.CustomerID,
			"payment_intent_id": input.PaymentIntentID,
		}).Warn("fraud_check_degraded")

		check.RiskScore = 0
		check.RiskFactors = []string{FactorCheckFailed}
		check.Action = entity.FraudActionAllow
		check.Reason = "risk evaluation unavailable, failing open"
	} else {
		check.RiskScore = score
		check.RiskFactors = factors
		switch {
		case score >= e.cfg.BlockThreshold:
			check.Action = entity.FraudActionBlock
			check.Reason = fmt.Sprintf("risk score %d at or above block threshold %d", score, e.cfg.BlockThreshold)
		case score >= e.cfg.ReviewThreshold:
			check.Action = entity.FraudActionReview
			check.Reason = fmt.Sprintf("risk score %d flagged for review", score)
		default:
			check.Action = entity.FraudActionAllow
			check.Reason = "risk score below review threshold"
		}
	}

	e.recordAttempt(ctx, input)

	return check
}

func (e *Engine) score(ctx context.Context, input *CheckInput, now time.Time) (int, []string, error) {
	score := 0
	factors := []string{}

	if input.AmountCents > e.cfg.MaxAmountCents {
		score += e.cfg.WeightHighAmount
		factors = append(factors, FactorHighAmount)
	}

	hourly, err := e.store.GetInt(ctx, e.hourlyKey(input.CustomerID, now))
	if err != nil {
		return 0, nil, err
	}
	if hourly >= e.cfg.HourlyTxnLimit {
		score += e.cfg.WeightHighVelocity
		factors = append(factors, FactorHighVelocity)
	}

	dailyAmount, err := e.store.GetInt(ctx, e.dailyAmountKey(input.CustomerID, now))
	if err != nil {
		return 0, nil, err
	}
	if dailyAmount+input.AmountCents > e.cfg.DailyAmountLimitCents {
		score += e.cfg.WeightDailyLimitExceeded
		factors = append(factors, FactorDailyLimitExceeded)
	}

	if input.CustomerCountry != "" && !e.countryAllowed(input.CustomerCountry) {
		score += e.cfg.WeightRestrictedCountry
		factors = append(factors, FactorRestrictedCountry)
	}

	hour := now.Hour()
	if hour >= e.cfg.UnusualHourStart && hour < e.cfg.UnusualHourEnd {
		score += e.cfg.WeightUnusualTime
		factors = append(factors, FactorUnusualTime)
	}

	hasPaid, err := e.store.HasFlag(ctx, e.paidBeforeKey(input.CustomerID))
	if err != nil {
		return 0, nil, err
	}
	if !hasPaid && input.AmountCents > e.cfg.FirstPaymentAmountCents {
		score += e.cfg.WeightFirstTimeHighAmount
		factors = append(factors, FactorFirstTimeHighAmount)
	}

	return score, factors, nil
}

// recordAttempt bumps the windowed counters after every check, including
// fail-open ones. Each key expires with its window so the store self-prunes.
func (e *Engine) recordAttempt(ctx context.Context, input *CheckInput) {
	now := e.now().UTC()
	if _, err := e.store.IncrWithExpiry(ctx, e.hourlyKey(input.CustomerID, now), 1, hourlyWindow); err != nil {
		e.logger.WithError(err).Debug("hourly counter increment failed")
	}
	if _, err := e.store.IncrWithExpiry(ctx, e.dailyAmountKey(input.CustomerID, now), input.AmountCents, dailyWindow); err != nil {
		e.logger.WithError(err).Debug("daily amount increment failed")
	}
}

// MarkPaymentSucceeded records that the customer has a successful payment,
// suppressing the first-time-high-amount signal for the coming window.
func (e *Engine) MarkPaymentSucceeded(ctx context.Context, customerID string) {
	if err := e.store.SetFlag(ctx, e.paidBeforeKey(customerID), firstPaymentWindow); err != nil {
		e.logger.WithError(err).Debug("first payment marker set failed")
	}
}

func (e *Engine) countryAllowed(country string) bool {
	for _, allowed := range e.cfg.AllowedCountries {
		if allowed == country {
			return true
		}
	}
	return false
}

func (e *Engine) hourlyKey(customerID string, now time.Time) string {
	return fmt.Sprintf("fraud:txn:%s:%s", customerID, now.Format("2006010215"))
}

func (e *Engine) dailyAmountKey(customerID string, now time.Time) string {
	return fmt.Sprintf("fraud:amount:%s:%s", customerID, now.Format("20060102"))
}

func (e *Engine) paidBeforeKey(customerID string) string {
	return fmt.Sprintf("fraud:paid:%s", customerID)
}
