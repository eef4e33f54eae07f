package handler

import (
	"net/http"
	"time"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/internal/service"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InvoiceHandler exposes invoice lifecycle endpoints.
type InvoiceHandler struct {
	invoices *service.InvoiceService
}

func NewInvoiceHandler(invoices *service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// Create raises a DRAFT invoice against a subscription.
func (h *InvoiceHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		SubscriptionID uint            `json:"subscription_id"`
		Subtotal       decimal.Decimal `json:"subtotal"`
		TaxRate        decimal.Decimal `json:"tax_rate"`
		DueDate        *time.Time      `json:"due_date"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse invoice request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}
	if req.SubscriptionID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "subscription_id is required"})
	}

	invoice, err := h.invoices.Create(c.Request().Context(), service.CreateInvoiceInput{
		SubscriptionID: req.SubscriptionID,
		Subtotal:       req.Subtotal,
		TaxRate:        req.TaxRate,
		DueDate:        req.DueDate,
	})
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusCreated, invoice)
}

// Get returns one invoice.
func (h *InvoiceHandler) Get(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	invoice, err := h.invoices.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, invoice)
}

// UpdateStatus moves an invoice through its state machine.
func (h *InvoiceHandler) UpdateStatus(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status is required"})
	}

	invoice, err := h.invoices.UpdateStatus(c.Request().Context(), id, model.InvoiceStatus(req.Status))
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, invoice)
}

// UpdateAmounts recomputes a pre-terminal invoice's totals from new inputs.
func (h *InvoiceHandler) UpdateAmounts(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Subtotal decimal.Decimal `json:"subtotal"`
		TaxRate  decimal.Decimal `json:"tax_rate"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}

	invoice, err := h.invoices.UpdateAmounts(c.Request().Context(), id, req.Subtotal, req.TaxRate)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, invoice)
}

// MarkPaid settles an invoice. Already-paid invoices are a no-op.
func (h *InvoiceHandler) MarkPaid(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.invoices.MarkPaid(c.Request().Context(), id); err != nil {
		return writeServiceError(c, log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListOverdue returns the business's overdue invoices.
func (h *InvoiceHandler) ListOverdue(c echo.Context) error {
	log := logger.FromEcho(c)

	invoices, err := h.invoices.ListOverdueByBusiness(c.Request().Context())
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, invoices)
}
