package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cloverpay/payment-core/app/entity"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
)

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			id, payment_intent_id, order_id, customer_id, amount_cents, currency,
			status, provider, provider_payment_id, token_id, last_four, brand,
			three_d_secure_url, failure_reason, refunded_cents,
			processed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.PaymentIntentID,
		payment.OrderID,
		payment.CustomerID,
		payment.AmountCents,
		payment.Currency,
		payment.Status,
		payment.Provider,
		payment.ProviderPaymentID,
		nullableStringValue(payment.TokenID),
		nullableStringValue(payment.LastFour),
		nullableStringValue(payment.Brand),
		nullableStringValue(payment.ThreeDSecureURL),
		nullableStringValue(payment.FailureReason),
		payment.RefundedCents,
		payment.ProcessedAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments SET
			status = ?,
			provider_payment_id = ?,
			token_id = ?,
			last_four = ?,
			brand = ?,
			three_d_secure_url = ?,
			failure_reason = ?,
			refunded_cents = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.Status,
		payment.ProviderPaymentID,
		nullableStringValue(payment.TokenID),
		nullableStringValue(payment.LastFour),
		nullableStringValue(payment.Brand),
		nullableStringValue(payment.ThreeDSecureURL),
		nullableStringValue(payment.FailureReason),
		payment.RefundedCents,
		payment.UpdatedAt,
		payment.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// AddRefundedCents atomically bumps the refunded amount, guarded so the
// total can never exceed the payment amount even under concurrent refunds.
func (r *PaymentRepository) AddRefundedCents(ctx context.Context, id string, amountCents int64, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET refunded_cents = refunded_cents + ?, updated_at = ?
		WHERE id = ? AND refunded_cents + ? <= amount_cents
	`, amountCents, now, id, amountCents)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*entity.Payment, error) {
	query := selectPaymentColumns + ` WHERE id = ?`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, id), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *PaymentRepository) FindByIntentID(ctx context.Context, intentID string) (*entity.Payment, error) {
	query := selectPaymentColumns + ` WHERE payment_intent_id = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, intentID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *PaymentRepository) FindByProviderPaymentID(ctx context.Context, providerCode, providerPaymentID string) (*entity.Payment, error) {
	query := selectPaymentColumns + ` WHERE provider = ? AND provider_payment_id = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, providerCode, providerPaymentID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *PaymentRepository) ListByOrderID(ctx context.Context, orderID string) ([]*entity.Payment, error) {
	query := selectPaymentColumns + ` WHERE order_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

const selectPaymentColumns = `
	SELECT id, payment_intent_id, order_id, customer_id, amount_cents, currency,
		status, provider, provider_payment_id, token_id, last_four, brand,
		three_d_secure_url, failure_reason, refunded_cents,
		processed_at, created_at, updated_at
	FROM payments
`

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var tokenID sql.NullString
	var lastFour sql.NullString
	var brand sql.NullString
	var threeDSecureURL sql.NullString
	var failureReason sql.NullString

	err := scan.Scan(
		&payment.ID,
		&payment.PaymentIntentID,
		&payment.OrderID,
		&payment.CustomerID,
		&payment.AmountCents,
		&payment.Currency,
		&payment.Status,
		&payment.Provider,
		&payment.ProviderPaymentID,
		&tokenID,
		&lastFour,
		&brand,
		&threeDSecureURL,
		&failureReason,
		&payment.RefundedCents,
		&payment.ProcessedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.TokenID = stringPtrFromNull(tokenID)
	payment.LastFour = stringPtrFromNull(lastFour)
	payment.Brand = stringPtrFromNull(brand)
	payment.ThreeDSecureURL = stringPtrFromNull(threeDSecureURL)
	payment.FailureReason = stringPtrFromNull(failureReason)
	return nil
}
