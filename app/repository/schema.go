package repository

import "context"

// InitSchema creates the backing tables when they do not exist yet. The
// unique key on payments.payment_intent_id is what caps an intent at one
// terminal payment.
func InitSchema(ctx context.Context, db DBTX) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_intents (
			id VARCHAR(64) PRIMARY KEY,
			order_id VARCHAR(64) NOT NULL,
			customer_id VARCHAR(64) NOT NULL,
			amount_cents BIGINT NOT NULL,
			currency CHAR(3) NOT NULL,
			status VARCHAR(32) NOT NULL,
			provider VARCHAR(32) NOT NULL,
			provider_intent_id VARCHAR(128) NOT NULL,
			client_secret VARCHAR(255),
			fraud_action VARCHAR(16) NOT NULL,
			metadata_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			INDEX idx_payment_intents_order (order_id),
			INDEX idx_payment_intents_status_updated (status, updated_at)
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id VARCHAR(64) PRIMARY KEY,
			payment_intent_id VARCHAR(64) NOT NULL,
			order_id VARCHAR(64) NOT NULL,
			customer_id VARCHAR(64) NOT NULL,
			amount_cents BIGINT NOT NULL,
			currency CHAR(3) NOT NULL,
			status VARCHAR(32) NOT NULL,
			provider VARCHAR(32) NOT NULL,
			provider_payment_id VARCHAR(128) NOT NULL,
			token_id VARCHAR(64),
			last_four CHAR(4),
			brand VARCHAR(32),
			three_d_secure_url VARCHAR(512),
			failure_reason VARCHAR(512),
			refunded_cents BIGINT NOT NULL DEFAULT 0,
			processed_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE KEY uq_payments_intent (payment_intent_id),
			INDEX idx_payments_order (order_id),
			INDEX idx_payments_provider_ref (provider_payment_id)
		)`,
		`CREATE TABLE IF NOT EXISTS refunds (
			id VARCHAR(64) PRIMARY KEY,
			payment_id VARCHAR(64) NOT NULL,
			amount_cents BIGINT NOT NULL,
			currency CHAR(3) NOT NULL,
			status VARCHAR(32) NOT NULL,
			reason VARCHAR(512),
			provider_refund_id VARCHAR(128) NOT NULL,
			processed_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			INDEX idx_refunds_payment (payment_id)
		)`,
		`CREATE TABLE IF NOT EXISTS card_tokens (
			id VARCHAR(64) PRIMARY KEY,
			customer_id VARCHAR(64) NOT NULL,
			last_four CHAR(4) NOT NULL,
			brand VARCHAR(32) NOT NULL,
			exp_month TINYINT NOT NULL,
			exp_year SMALLINT NOT NULL,
			provider VARCHAR(32) NOT NULL,
			provider_token_id VARCHAR(128) NOT NULL,
			is_active TINYINT(1) NOT NULL DEFAULT 1,
			deactivated_reason VARCHAR(255),
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			INDEX idx_card_tokens_customer (customer_id)
		)`,
		`CREATE TABLE IF NOT EXISTS fraud_checks (
			id VARCHAR(64) PRIMARY KEY,
			customer_id VARCHAR(64) NOT NULL,
			payment_intent_id VARCHAR(64) NOT NULL,
			risk_score INT NOT NULL,
			risk_factors VARCHAR(512) NOT NULL,
			action VARCHAR(16) NOT NULL,
			reason VARCHAR(512) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			INDEX idx_fraud_checks_customer (customer_id)
		)`,
		`CREATE TABLE IF NOT EXISTS payment_events (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			payment_intent_id VARCHAR(64) NOT NULL,
			payment_id VARCHAR(64),
			event_type VARCHAR(64) NOT NULL,
			old_status VARCHAR(32),
			new_status VARCHAR(32) NOT NULL,
			provider_event_id VARCHAR(128),
			payload_json MEDIUMTEXT,
			created_at TIMESTAMP NOT NULL,
			INDEX idx_payment_events_intent (payment_intent_id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}
