package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cloverpay/payment-core/app/entity"
)

var (
	ErrIntentNotFound      = errors.New("payment intent not found")
	ErrIntentAlreadyExists = errors.New("payment intent already exists")
)

type PaymentIntentRepository struct {
	db DBTX
}

func NewPaymentIntentRepository(db DBTX) *PaymentIntentRepository {
	return &PaymentIntentRepository{db: db}
}

func (r *PaymentIntentRepository) Create(ctx context.Context, intent *entity.PaymentIntent) error {
	metadataJSON, err := serializeStringMap(intent.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payment_intents (
			id, order_id, customer_id, amount_cents, currency, status, provider,
			provider_intent_id, client_secret, fraud_action, metadata_json,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		intent.ID,
		intent.OrderID,
		intent.CustomerID,
		intent.AmountCents,
		intent.Currency,
		intent.Status,
		intent.Provider,
		intent.ProviderIntentID,
		nullableStringValue(intent.ClientSecret),
		intent.FraudAction,
		metadataJSON,
		intent.CreatedAt,
		intent.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrIntentAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PaymentIntentRepository) FindByID(ctx context.Context, id string) (*entity.PaymentIntent, error) {
	query := selectIntentColumns + ` WHERE id = ?`

	intent := &entity.PaymentIntent{}
	if err := scanIntent(r.db.QueryRowContext(ctx, query, id), intent); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return intent, nil
}

func (r *PaymentIntentRepository) FindByProviderIntentID(ctx context.Context, providerCode, providerIntentID string) (*entity.PaymentIntent, error) {
	query := selectIntentColumns + ` WHERE provider = ? AND provider_intent_id = ? LIMIT 1`

	intent := &entity.PaymentIntent{}
	if err := scanIntent(r.db.QueryRowContext(ctx, query, providerCode, providerIntentID), intent); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return intent, nil
}

// TransitionStatus performs a compare-and-swap on the intent status. It
// returns the number of affected rows: zero means another worker won the
// race or the intent was not in the expected status.
func (r *PaymentIntentRepository) TransitionStatus(ctx context.Context, id, from, to string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, to, now, id, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PaymentIntentRepository) UpdateStatus(ctx context.Context, id, status string, now time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_intents SET status = ?, updated_at = ? WHERE id = ?
	`, status, now, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrIntentNotFound
	}
	return nil
}

// ListStaleProcessing returns intents stuck in a non-terminal status whose
// last update predates the cutoff, for provider reconciliation.
func (r *PaymentIntentRepository) ListStaleProcessing(ctx context.Context, before time.Time, limit int32) ([]*entity.PaymentIntent, error) {
	query := selectIntentColumns + `
		WHERE status IN (?, ?)
		  AND provider_intent_id != ''
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.StatusProcessing, entity.StatusRequiresAction, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	intents := make([]*entity.PaymentIntent, 0)
	for rows.Next() {
		item := &entity.PaymentIntent{}
		if err := scanIntent(rows, item); err != nil {
			return nil, err
		}
		intents = append(intents, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return intents, nil
}

const selectIntentColumns = `
	SELECT id, order_id, customer_id, amount_cents, currency, status, provider,
		provider_intent_id, client_secret, fraud_action, metadata_json,
		created_at, updated_at
	FROM payment_intents
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntent(scan rowScanner, intent *entity.PaymentIntent) error {
	var clientSecret sql.NullString
	var metadataJSON string

	err := scan.Scan(
		&intent.ID,
		&intent.OrderID,
		&intent.CustomerID,
		&intent.AmountCents,
		&intent.Currency,
		&intent.Status,
		&intent.Provider,
		&intent.ProviderIntentID,
		&clientSecret,
		&intent.FraudAction,
		&metadataJSON,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return err
	}

	intent.ClientSecret = stringPtrFromNull(clientSecret)
	metadata, err := parseStringMap(metadataJSON)
	if err != nil {
		return err
	}
	intent.Metadata = metadata
	return nil
}
