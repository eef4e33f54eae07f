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

// PlanHandler exposes subscription plan endpoints.
type PlanHandler struct {
	plans *service.PlanService
}

func NewPlanHandler(plans *service.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// Create adds a plan to the business.
func (h *PlanHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Name         string          `json:"name"`
		Description  string          `json:"description"`
		Price        decimal.Decimal `json:"price"`
		BillingCycle string          `json:"billing_cycle"`
		TrialDays    int             `json:"trial_days"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse plan request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}
	if req.Name == "" || req.BillingCycle == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and billing_cycle are required"})
	}

	plan, err := h.plans.Create(c.Request().Context(), service.CreatePlanInput{
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		BillingCycle: model.BillingCycle(req.BillingCycle),
		TrialDays:    req.TrialDays,
	})
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusCreated, plan)
}

// Get returns one plan.
func (h *PlanHandler) Get(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	plan, err := h.plans.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, plan)
}

// List returns all plans of the business.
func (h *PlanHandler) List(c echo.Context) error {
	log := logger.FromEcho(c)

	plans, err := h.plans.List(c.Request().Context())
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, plans)
}

// Update modifies one plan.
func (h *PlanHandler) Update(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Name        *string          `json:"name"`
		Description *string          `json:"description"`
		Price       *decimal.Decimal `json:"price"`
		TrialDays   *int             `json:"trial_days"`
		Active      *bool            `json:"active"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}

	plan, err := h.plans.Update(c.Request().Context(), id, service.UpdatePlanInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		TrialDays:   req.TrialDays,
		Active:      req.Active,
	})
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, plan)
}

// Deactivate retires a plan from new subscriptions.
func (h *PlanHandler) Deactivate(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.plans.Deactivate(c.Request().Context(), id); err != nil {
		return writeServiceError(c, log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
