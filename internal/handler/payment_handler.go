package handler

import (
	"net/http"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/internal/service"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentHandler exposes payment processing endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Process charges a subscription through the gateway for its payment method.
func (h *PaymentHandler) Process(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		SubscriptionID uint            `json:"subscription_id"`
		InvoiceID      *uint           `json:"invoice_id"`
		Amount         decimal.Decimal `json:"amount"`
		Currency       string          `json:"currency"`
		Method         string          `json:"method"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse payment request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}
	if req.SubscriptionID == 0 || req.Method == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "subscription_id and method are required"})
	}

	payment, err := h.payments.Process(c.Request().Context(), service.ProcessPaymentInput{
		SubscriptionID: req.SubscriptionID,
		InvoiceID:      req.InvoiceID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Method:         model.PaymentMethod(req.Method),
	})
	if err != nil {
		return writeServiceError(c, log, err)
	}

	// A bank transfer stays PENDING until confirmed externally.
	status := http.StatusCreated
	if payment.Status == model.PaymentStatusPending {
		status = http.StatusAccepted
	}
	return c.JSON(status, payment)
}

// Get returns one payment.
func (h *PaymentHandler) Get(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	payment, err := h.payments.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, payment)
}

// Refund refunds up to the original amount of a completed payment.
func (h *PaymentHandler) Refund(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}

	receipt, err := h.payments.Refund(c.Request().Context(), id, req.Amount, req.Reason)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, receipt)
}

// Cancel cancels a payment still awaiting settlement.
func (h *PaymentHandler) Cancel(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.payments.Cancel(c.Request().Context(), id); err != nil {
		return writeServiceError(c, log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
