package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cloverpay/payment-core/app/entity"
)

var ErrCardTokenNotFound = errors.New("card token not found")

type CardTokenRepository struct {
	db DBTX
}

func NewCardTokenRepository(db DBTX) *CardTokenRepository {
	return &CardTokenRepository{db: db}
}

func (r *CardTokenRepository) Create(ctx context.Context, token *entity.CardToken) error {
	query := `
		INSERT INTO card_tokens (
			id, customer_id, last_four, brand, exp_month, exp_year,
			provider, provider_token_id, is_active, deactivated_reason,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.CustomerID,
		token.LastFour,
		token.Brand,
		token.ExpMonth,
		token.ExpYear,
		token.Provider,
		token.ProviderTokenID,
		token.IsActive,
		nullableStringValue(token.DeactivatedReason),
		token.CreatedAt,
		token.UpdatedAt,
	)
	return err
}

func (r *CardTokenRepository) Update(ctx context.Context, token *entity.CardToken) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE card_tokens
		SET is_active = ?, deactivated_reason = ?, updated_at = ?
		WHERE id = ?
	`, token.IsActive, nullableStringValue(token.DeactivatedReason), token.UpdatedAt, token.ID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCardTokenNotFound
	}
	return nil
}

func (r *CardTokenRepository) FindByID(ctx context.Context, id string) (*entity.CardToken, error) {
	query := `
		SELECT id, customer_id, last_four, brand, exp_month, exp_year,
			provider, provider_token_id, is_active, deactivated_reason,
			created_at, updated_at
		FROM card_tokens
		WHERE id = ?
	`

	token := &entity.CardToken{}
	var deactivatedReason sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.CustomerID,
		&token.LastFour,
		&token.Brand,
		&token.ExpMonth,
		&token.ExpYear,
		&token.Provider,
		&token.ProviderTokenID,
		&token.IsActive,
		&deactivatedReason,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	token.DeactivatedReason = stringPtrFromNull(deactivatedReason)
	return token, nil
}
