package token

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cloverpay/payment-core/app/entity"
	"github.com/cloverpay/payment-core/app/factory"
	"github.com/cloverpay/payment-core/app/provider"
)

var (
	ErrInvalidCard      = errors.New("invalid card")
	ErrTokenNotFound    = errors.New("card token not found")
	ErrTokenDeactivated = errors.New("card token is deactivated")
)

type tokenRepository interface {
	Create(ctx context.Context, token *entity.CardToken) error
	FindByID(ctx context.Context, id string) (*entity.CardToken, error)
	Update(ctx context.Context, token *entity.CardToken) error
}

// Service converts raw card data into vault-safe references. The PAN and CVC
// never reach a log line or a persisted record; only brand, last four, and
// expiry survive the call.
type Service struct {
	repo   tokenRepository
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewService(repo tokenRepository) *Service {
	return &Service{
		repo:   repo,
		logger: factory.NewModuleLogger("tokenization"),
		now:    time.Now,
	}
}

func (s *Service) TokenizeCard(ctx context.Context, customerID string, card *provider.Card, providerCode string, providerTokenID string) (*entity.CardToken, error) {
	if card == nil {
		return nil, ErrInvalidCard
	}
	number := strings.ReplaceAll(strings.TrimSpace(card.Number), " ", "")
	if !ValidLuhn(number) {
		return nil, ErrInvalidCard
	}

	now := s.now().UTC()
	if card.ExpYear < now.Year() || (card.ExpYear == now.Year() && card.ExpMonth < int(now.Month())) {
		return nil, ErrInvalidCard
	}

	if strings.TrimSpace(providerTokenID) == "" {
		providerTokenID = "ptk_" + uuid.NewString()
	}

	item := &entity.CardToken{
		ID:              "ct_" + uuid.NewString(),
		CustomerID:      customerID,
		LastFour:        number[len(number)-4:],
		Brand:           DetectBrand(number),
		ExpMonth:        card.ExpMonth,
		ExpYear:         card.ExpYear,
		Provider:        providerCode,
		ProviderTokenID: providerTokenID,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"token_id":    item.ID,
		"customer_id": customerID,
		"brand":       item.Brand,
		"last_four":   item.LastFour,
		"provider":    providerCode,
	}).Info("card_tokenized")

	return item, nil
}

// AttachProviderToken records the vault reference the provider returned for
// a charged card, replacing the locally minted placeholder so future charges
// can reuse the stored token against the processor.
func (s *Service) AttachProviderToken(ctx context.Context, tokenID, providerTokenID string) error {
	providerTokenID = strings.TrimSpace(providerTokenID)
	if providerTokenID == "" {
		return errors.New("provider token id is required")
	}

	item, err := s.repo.FindByID(ctx, tokenID)
	if err != nil {
		return err
	}
	if item == nil {
		return ErrTokenNotFound
	}

	item.ProviderTokenID = providerTokenID
	item.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, item); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"token_id":    tokenID,
		"customer_id": item.CustomerID,
		"provider":    item.Provider,
	}).Info("provider_token_attached")

	return nil
}

// ValidateToken checks activity and expiry locally, without a provider call.
func (s *Service) ValidateToken(ctx context.Context, tokenID string) (bool, error) {
	item, err := s.repo.FindByID(ctx, tokenID)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, ErrTokenNotFound
	}
	if !item.IsActive {
		return false, nil
	}
	return !item.Expired(s.now().UTC()), nil
}

// DeactivateToken is a one-way transition; a deactivated token never comes
// back.
func (s *Service) DeactivateToken(ctx context.Context, tokenID, reason string) error {
	item, err := s.repo.FindByID(ctx, tokenID)
	if err != nil {
		return err
	}
	if item == nil {
		return ErrTokenNotFound
	}
	if !item.IsActive {
		return ErrTokenDeactivated
	}

	now := s.now().UTC()
	reason = strings.TrimSpace(reason)
	item.IsActive = false
	item.DeactivatedReason = &reason
	item.UpdatedAt = now

	if err := s.repo.Update(ctx, item); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"token_id":    tokenID,
		"customer_id": item.CustomerID,
		"reason":      reason,
	}).Info("card_token_deactivated")

	return nil
}
