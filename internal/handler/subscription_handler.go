package handler

import (
	"net/http"
	"time"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/internal/service"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// SubscriptionHandler exposes subscription lifecycle endpoints.
type SubscriptionHandler struct {
	subscriptions *service.SubscriptionService
	invoices      *service.InvoiceService
	payments      *service.PaymentService
}

func NewSubscriptionHandler(subscriptions *service.SubscriptionService, invoices *service.InvoiceService, payments *service.PaymentService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		invoices:      invoices,
		payments:      payments,
	}
}

// Create starts a subscription for a customer on a plan.
func (h *SubscriptionHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		CustomerID         uint       `json:"customer_id"`
		SubscriptionPlanID uint       `json:"subscription_plan_id"`
		StartDate          *time.Time `json:"start_date"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse subscription request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}
	if req.CustomerID == 0 || req.SubscriptionPlanID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "customer_id and subscription_plan_id are required"})
	}

	subscription, err := h.subscriptions.Create(c.Request().Context(), service.CreateSubscriptionInput{
		CustomerID:         req.CustomerID,
		SubscriptionPlanID: req.SubscriptionPlanID,
		StartDate:          req.StartDate,
	})
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusCreated, subscription)
}

// Get returns one subscription.
func (h *SubscriptionHandler) Get(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	subscription, err := h.subscriptions.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, subscription)
}

// List returns the business's subscriptions, optionally filtered by status.
func (h *SubscriptionHandler) List(c echo.Context) error {
	log := logger.FromEcho(c)

	var status *model.SubscriptionStatus
	if raw := c.QueryParam("status"); raw != "" {
		s := model.SubscriptionStatus(raw)
		status = &s
	}

	subscriptions, err := h.subscriptions.ListByBusiness(c.Request().Context(), status)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, subscriptions)
}

// Update modifies subscription dates, or its status through the state
// machine.
func (h *SubscriptionHandler) Update(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		EndDate         *time.Time `json:"end_date"`
		Status          *string    `json:"status"`
		NextBillingDate *time.Time `json:"next_billing_date"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}

	input := service.UpdateSubscriptionInput{
		EndDate:         req.EndDate,
		NextBillingDate: req.NextBillingDate,
	}
	if req.Status != nil {
		s := model.SubscriptionStatus(*req.Status)
		input.Status = &s
	}

	subscription, err := h.subscriptions.Update(c.Request().Context(), id, input)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, subscription)
}

// UpdateStatus moves the subscription through the state machine.
func (h *SubscriptionHandler) UpdateStatus(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}
	if req.Status == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status is required"})
	}

	subscription, err := h.subscriptions.Transition(c.Request().Context(), id, model.SubscriptionStatus(req.Status))
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, subscription)
}

// Cancel cancels a subscription. Cancellation is terminal.
func (h *SubscriptionHandler) Cancel(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional for cancellation.
	_ = c.Bind(&req)

	if err := h.subscriptions.Cancel(c.Request().Context(), id, req.Reason); err != nil {
		return writeServiceError(c, log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Renew advances the subscription by one billing cycle; a trial becomes
// active.
func (h *SubscriptionHandler) Renew(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	subscription, err := h.subscriptions.Renew(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, subscription)
}

// Invoices lists the subscription's invoices.
func (h *SubscriptionHandler) Invoices(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	invoices, err := h.invoices.ListBySubscription(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, invoices)
}

// Payments lists the subscription's payments.
func (h *SubscriptionHandler) Payments(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	payments, err := h.payments.ListBySubscription(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, payments)
}
