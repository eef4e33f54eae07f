package handler

import (
	"net/http"

	"github.com/Okemwag/Subscribee/internal/service"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// CustomerHandler exposes customer endpoints, all scoped to the caller's
// business.
type CustomerHandler struct {
	customers     *service.CustomerService
	subscriptions *service.SubscriptionService
	invoices      *service.InvoiceService
	payments      *service.PaymentService
}

func NewCustomerHandler(customers *service.CustomerService, subscriptions *service.SubscriptionService, invoices *service.InvoiceService, payments *service.PaymentService) *CustomerHandler {
	return &CustomerHandler{
		customers:     customers,
		subscriptions: subscriptions,
		invoices:      invoices,
		payments:      payments,
	}
}

// Create registers a customer.
func (h *CustomerHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Name              string `json:"name"`
		Email             string `json:"email"`
		PhoneNumber       string `json:"phone_number"`
		PreferredLanguage string `json:"preferred_language"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse customer request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}
	if req.Name == "" || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and email are required"})
	}

	customer, err := h.customers.Create(c.Request().Context(), service.CreateCustomerInput{
		Name:              req.Name,
		Email:             req.Email,
		PhoneNumber:       req.PhoneNumber,
		PreferredLanguage: req.PreferredLanguage,
	})
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusCreated, customer)
}

// Get returns one customer.
func (h *CustomerHandler) Get(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	customer, err := h.customers.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, customer)
}

// List returns all customers of the business.
func (h *CustomerHandler) List(c echo.Context) error {
	log := logger.FromEcho(c)

	customers, err := h.customers.List(c.Request().Context())
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, customers)
}

// Update modifies one customer.
func (h *CustomerHandler) Update(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Name              *string `json:"name"`
		Email             *string `json:"email"`
		PhoneNumber       *string `json:"phone_number"`
		PreferredLanguage *string `json:"preferred_language"`
		Active            *bool   `json:"active"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}

	customer, err := h.customers.Update(c.Request().Context(), id, service.UpdateCustomerInput{
		Name:              req.Name,
		Email:             req.Email,
		PhoneNumber:       req.PhoneNumber,
		PreferredLanguage: req.PreferredLanguage,
		Active:            req.Active,
	})
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, customer)
}

// Delete soft-deletes one customer.
func (h *CustomerHandler) Delete(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.customers.Delete(c.Request().Context(), id); err != nil {
		return writeServiceError(c, log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Deactivate marks a customer inactive without removing the record. Inactive
// customers cannot start new subscriptions.
func (h *CustomerHandler) Deactivate(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.customers.Deactivate(c.Request().Context(), id); err != nil {
		return writeServiceError(c, log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Subscriptions lists the customer's subscriptions.
func (h *CustomerHandler) Subscriptions(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	subscriptions, err := h.subscriptions.ListByCustomer(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, subscriptions)
}

// InvoiceHistory lists the customer's invoices across all their
// subscriptions, newest first.
func (h *CustomerHandler) InvoiceHistory(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	invoices, err := h.invoices.HistoryByCustomer(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, invoices)
}

// PaymentHistory lists the customer's payments across all their
// subscriptions, newest first.
func (h *CustomerHandler) PaymentHistory(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	payments, err := h.payments.HistoryByCustomer(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, payments)
}
