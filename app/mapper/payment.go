package mapper

import (
	"github.com/cloverpay/payment-core/app/entity"
	"github.com/cloverpay/payment-core/app/types"
)

func IntentToResponse(item *entity.PaymentIntent) *types.PaymentIntentResponse {
	if item == nil {
		return nil
	}

	return &types.PaymentIntentResponse{
		ID:           item.ID,
		OrderID:      item.OrderID,
		CustomerID:   item.CustomerID,
		Amount:       item.AmountCents,
		Currency:     item.Currency,
		Status:       item.Status,
		Provider:     item.Provider,
		ClientSecret: derefString(item.ClientSecret),
		Metadata:     item.Metadata,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
}

func PaymentToResponse(item *entity.Payment) *types.PaymentResponse {
	if item == nil {
		return nil
	}

	return &types.PaymentResponse{
		ID:              item.ID,
		PaymentIntentID: item.PaymentIntentID,
		OrderID:         item.OrderID,
		CustomerID:      item.CustomerID,
		Amount:          item.AmountCents,
		Currency:        item.Currency,
		Status:          item.Status,
		Provider:        item.Provider,
		TokenID:         derefString(item.TokenID),
		LastFour:        derefString(item.LastFour),
		Brand:           derefString(item.Brand),
		ThreeDSecureURL: derefString(item.ThreeDSecureURL),
		FailureReason:   derefString(item.FailureReason),
		RefundedAmount:  item.RefundedCents,
		ProcessedAt:     item.ProcessedAt,
	}
}

func RefundToResponse(item *entity.Refund) *types.RefundResponse {
	if item == nil {
		return nil
	}

	return &types.RefundResponse{
		ID:          item.ID,
		PaymentID:   item.PaymentID,
		Amount:      item.AmountCents,
		Currency:    item.Currency,
		Status:      item.Status,
		Reason:      derefString(item.Reason),
		ProcessedAt: item.ProcessedAt,
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
