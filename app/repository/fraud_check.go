package repository

import (
	"context"

	"github.com/cloverpay/payment-core/app/entity"
)

type FraudCheckRepository struct {
	db DBTX
}

func NewFraudCheckRepository(db DBTX) *FraudCheckRepository {
	return &FraudCheckRepository{db: db}
}

// Create appends an audit row. Fraud checks are never updated or deleted.
func (r *FraudCheckRepository) Create(ctx context.Context, check *entity.FraudCheck) error {
	query := `
		INSERT INTO fraud_checks (
			id, customer_id, payment_intent_id, risk_score, risk_factors,
			action, reason, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		check.ID,
		check.CustomerID,
		check.PaymentIntentID,
		check.RiskScore,
		serializeStringList(check.RiskFactors),
		check.Action,
		check.Reason,
		check.CreatedAt,
	)
	return err
}
