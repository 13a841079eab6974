package repository

import (
	"context"
	"database/sql"

	"github.com/cloverpay/payment-core/app/entity"
)

type RefundRepository struct {
	db DBTX
}

func NewRefundRepository(db DBTX) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, refund *entity.Refund) error {
	query := `
		INSERT INTO refunds (
			id, payment_id, amount_cents, currency, status, reason,
			provider_refund_id, processed_at, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		refund.ID,
		refund.PaymentID,
		refund.AmountCents,
		refund.Currency,
		refund.Status,
		nullableStringValue(refund.Reason),
		refund.ProviderRefundID,
		refund.ProcessedAt,
		refund.CreatedAt,
	)
	return err
}

func (r *RefundRepository) ListByPaymentID(ctx context.Context, paymentID string) ([]*entity.Refund, error) {
	query := selectRefundColumns + ` WHERE payment_id = ? ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]*entity.Refund, 0)
	for rows.Next() {
		item := &entity.Refund{}
		if err := scanRefund(rows, item); err != nil {
			return nil, err
		}
		refunds = append(refunds, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refunds, nil
}

const selectRefundColumns = `
	SELECT id, payment_id, amount_cents, currency, status, reason,
		provider_refund_id, processed_at, created_at
	FROM refunds
`

func scanRefund(scan rowScanner, refund *entity.Refund) error {
	var reason sql.NullString

	err := scan.Scan(
		&refund.ID,
		&refund.PaymentID,
		&refund.AmountCents,
		&refund.Currency,
		&refund.Status,
		&reason,
		&refund.ProviderRefundID,
		&refund.ProcessedAt,
		&refund.CreatedAt,
	)
	if err != nil {
		return err
	}

	refund.Reason = stringPtrFromNull(reason)
	return nil
}
