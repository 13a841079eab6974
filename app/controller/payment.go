package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/cloverpay/payment-core/app/entity"
	"github.com/cloverpay/payment-core/app/factory"
	"github.com/cloverpay/payment-core/app/mapper"
	"github.com/cloverpay/payment-core/app/provider"
	"github.com/cloverpay/payment-core/app/service"
	"github.com/cloverpay/payment-core/app/types"
)

type PaymentController struct {
	orchestrator *service.Orchestrator
	logger       logrus.FieldLogger
}

func NewPaymentController(orchestrator *service.Orchestrator) *PaymentController {
	return &PaymentController{
		orchestrator: orchestrator,
		logger:       factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) CreateIntent(ctx echo.Context) error {
	req, err := types.NewCreateIntentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, err.Error())
	}

	item, err := c.orchestrator.CreateIntent(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrProviderUnsupported):
			return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, err.Error())
		case errors.Is(err, service.ErrFraudBlocked):
			return c.writeError(ctx, http.StatusPaymentRequired, types.ErrCodeFraudBlocked, err.Error())
		default:
			return c.writeUpstreamError(ctx, err, "Create intent failed")
		}
	}

	return ctx.JSON(http.StatusCreated, mapper.IntentToResponse(item))
}

func (c *PaymentController) GetIntent(ctx echo.Context) error {
	id := ctx.Param("id")
	if id == "" {
		return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, "payment intent id is required")
	}

	item, err := c.orchestrator.GetIntent(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrIntentNotFound) {
			return c.writeError(ctx, http.StatusNotFound, types.ErrCodeNotFound, "payment intent not found")
		}
		c.logger.WithError(err).Error("Get intent failed")
		return c.writeError(ctx, http.StatusInternalServerError, types.ErrCodeInternal, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.IntentToResponse(item))
}

func (c *PaymentController) ConfirmPayment(ctx echo.Context) error {
	req, err := types.NewConfirmPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, err.Error())
	}

	item, err := c.orchestrator.ConfirmPayment(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrIntentNotFound):
			return c.writeError(ctx, http.StatusNotFound, types.ErrCodeNotFound, "payment intent not found")
		case errors.Is(err, service.ErrIntentAlreadyConfirmed), errors.Is(err, service.ErrConfirmInProgress):
			return c.writeError(ctx, http.StatusConflict, types.ErrCodeValidation, err.Error())
		case errors.Is(err, service.ErrProviderUnsupported):
			return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, err.Error())
		default:
			return c.writeUpstreamError(ctx, err, "Confirm payment failed")
		}
	}

	// A declined card is a completed confirmation with a failed payment,
	// not a transport error. Surface it as 402 with the provider's reason.
	if item.Status == entity.StatusFailed {
		reason := "payment declined"
		if item.FailureReason != nil {
			reason = *item.FailureReason
		}
		return ctx.JSON(http.StatusPaymentRequired, &types.ErrorResponse{Error: reason, Code: types.ErrCodePaymentDeclined})
	}

	return ctx.JSON(http.StatusOK, mapper.PaymentToResponse(item))
}

func (c *PaymentController) GetPayment(ctx echo.Context) error {
	id := ctx.Param("id")
	if id == "" {
		return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, "payment id is required")
	}

	item, err := c.orchestrator.GetPayment(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			return c.writeError(ctx, http.StatusNotFound, types.ErrCodeNotFound, "payment not found")
		}
		c.logger.WithError(err).Error("Get payment failed")
		return c.writeError(ctx, http.StatusInternalServerError, types.ErrCodeInternal, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.PaymentToResponse(item))
}

func (c *PaymentController) ListPayments(ctx echo.Context) error {
	orderID := ctx.QueryParam("order_id")
	if orderID == "" {
		return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, "order_id query parameter is required")
	}

	items, err := c.orchestrator.ListPayments(ctx.Request().Context(), orderID)
	if err != nil {
		c.logger.WithError(err).Error("List payments failed")
		return c.writeError(ctx, http.StatusInternalServerError, types.ErrCodeInternal, "internal server error")
	}

	responses := make([]*types.PaymentResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, mapper.PaymentToResponse(item))
	}
	return ctx.JSON(http.StatusOK, responses)
}

func (c *PaymentController) CreateRefund(ctx echo.Context) error {
	req, err := types.NewCreateRefundRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, err.Error())
	}

	item, err := c.orchestrator.CreateRefund(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			return c.writeError(ctx, http.StatusNotFound, types.ErrCodeNotFound, "payment not found")
		case errors.Is(err, service.ErrPaymentNotRefundable), errors.Is(err, service.ErrRefundExceedsBalance):
			return c.writeError(ctx, http.StatusUnprocessableEntity, types.ErrCodeValidation, err.Error())
		default:
			return c.writeUpstreamError(ctx, err, "Create refund failed")
		}
	}

	return ctx.JSON(http.StatusCreated, mapper.RefundToResponse(item))
}

func (c *PaymentController) ListRefunds(ctx echo.Context) error {
	id := ctx.Param("id")
	if id == "" {
		return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, "payment id is required")
	}

	items, err := c.orchestrator.ListRefunds(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			return c.writeError(ctx, http.StatusNotFound, types.ErrCodeNotFound, "payment not found")
		}
		c.logger.WithError(err).Error("List refunds failed")
		return c.writeError(ctx, http.StatusInternalServerError, types.ErrCodeInternal, "internal server error")
	}

	responses := make([]*types.RefundResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, mapper.RefundToResponse(item))
	}
	return ctx.JSON(http.StatusOK, responses)
}

func (c *PaymentController) HandleWebhook(ctx echo.Context) error {
	req, err := types.NewWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, err.Error())
	}

	if err := c.orchestrator.HandleWebhook(ctx.Request().Context(), req); err != nil {
		switch {
		case errors.Is(err, service.ErrWebhookInvalid):
			return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, err.Error())
		case errors.Is(err, service.ErrProviderUnsupported):
			return c.writeError(ctx, http.StatusBadRequest, types.ErrCodeValidation, err.Error())
		case errors.Is(err, service.ErrIntentNotFound):
			return c.writeError(ctx, http.StatusNotFound, types.ErrCodeNotFound, "payment intent not found")
		default:
			c.logger.WithError(err).Error("Handle webhook failed")
			return c.writeError(ctx, http.StatusInternalServerError, types.ErrCodeInternal, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Webhook processed"})
}

// writeUpstreamError distinguishes processor failures from our own. Provider
// errors come back as 502 so callers can tell a gateway outage from a local
// bug.
func (c *PaymentController) writeUpstreamError(ctx echo.Context, err error, logMessage string) error {
	var providerErr *provider.Error
	if errors.As(err, &providerErr) {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"provider": providerErr.Provider,
			"op":       providerErr.Op,
		}).Error(logMessage)
		return c.writeError(ctx, http.StatusBadGateway, types.ErrCodeProvider, "payment provider error")
	}

	c.logger.WithError(err).Error(logMessage)
	return c.writeError(ctx, http.StatusInternalServerError, types.ErrCodeInternal, "internal server error")
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, code, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message, Code: code})
}
