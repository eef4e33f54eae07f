package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/internal/service"
	"github.com/Okemwag/Subscribee/pkg/tenant"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// idParam parses a numeric path parameter.
func idParam(c echo.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

// writeServiceError maps service-layer errors onto HTTP responses. Tenant
// violations deliberately answer 404 so resource existence is not leaked
// across businesses.
func writeServiceError(c echo.Context, log *zap.Logger, err error) error {
	var transitionErr *model.InvalidTransitionError
	var paymentErr *service.PaymentProcessingError
	var refundErr *service.RefundProcessingError

	switch {
	case errors.Is(err, tenant.ErrPermissionDenied):
		log.Warn("Cross-business access denied",
			zap.String("path", c.Request().URL.Path),
			zap.Error(err))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "resource not found"})

	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "resource not found"})

	case errors.Is(err, tenant.ErrNoTenantContext):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authorization required"})

	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "resource was modified concurrently, retry"})

	case errors.Is(err, service.ErrDuplicateCustomerEmail),
		errors.Is(err, service.ErrDuplicateBusinessEmail),
		errors.Is(err, service.ErrDuplicateActiveSubscription):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})

	case errors.Is(err, service.ErrCustomerInactive),
		errors.Is(err, service.ErrSubscriptionNotBillable),
		errors.Is(err, service.ErrPaymentNotRefundable),
		errors.Is(err, service.ErrRefundExceedsOriginal),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidBillingCycle):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})

	case errors.As(err, &transitionErr):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": transitionErr.Error()})

	case errors.As(err, &paymentErr):
		// The payment record exists in FAILED state; surface it so the
		// client can poll or retry.
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error":      "payment processing failed",
			"payment_id": paymentErr.PaymentID,
			"reason":     paymentErr.Reason,
		})

	case errors.As(err, &refundErr):
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error":      "refund processing failed",
			"payment_id": refundErr.PaymentID,
			"reason":     refundErr.Reason,
		})
	}

	log.Error("Unhandled service error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}
