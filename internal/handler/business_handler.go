package handler

import (
	"net/http"

	"github.com/Okemwag/Subscribee/internal/service"
	"github.com/Okemwag/Subscribee/pkg/jwtutil"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// BusinessHandler exposes tenant account endpoints.
type BusinessHandler struct {
	businesses *service.BusinessService
	jwtUtil    *jwtutil.JWTUtil
}

func NewBusinessHandler(businesses *service.BusinessService, jwtUtil *jwtutil.JWTUtil) *BusinessHandler {
	return &BusinessHandler{businesses: businesses, jwtUtil: jwtUtil}
}

// Register creates a new business account and returns an API token scoped to
// it. This is the only unauthenticated write endpoint.
func (h *BusinessHandler) Register(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		PhoneNumber string `json:"phone_number"`
		Timezone    string `json:"timezone"`
		Currency    string `json:"currency"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse business registration request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}
	if req.Name == "" || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and email are required"})
	}

	business, err := h.businesses.Register(c.Request().Context(), service.RegisterBusinessInput{
		Name:        req.Name,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Timezone:    req.Timezone,
		Currency:    req.Currency,
	})
	if err != nil {
		return writeServiceError(c, log, err)
	}

	token, err := h.jwtUtil.GenerateToken(business.Email, business.ID)
	if err != nil {
		log.Error("Failed to issue token for new business", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"business": business,
		"token":    token,
	})
}

// GetProfile returns the caller's own business.
func (h *BusinessHandler) GetProfile(c echo.Context) error {
	log := logger.FromEcho(c)

	business, err := h.businesses.Get(c.Request().Context())
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, business)
}

// UpdateProfile modifies the caller's own business.
func (h *BusinessHandler) UpdateProfile(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Name        *string `json:"name"`
		PhoneNumber *string `json:"phone_number"`
		Timezone    *string `json:"timezone"`
		Currency    *string `json:"currency"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not parse request body"})
	}

	business, err := h.businesses.Update(c.Request().Context(), service.UpdateBusinessInput{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		Timezone:    req.Timezone,
		Currency:    req.Currency,
	})
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, business)
}

// Deactivate marks the caller's business inactive.
func (h *BusinessHandler) Deactivate(c echo.Context) error {
	log := logger.FromEcho(c)

	if err := h.businesses.Deactivate(c.Request().Context()); err != nil {
		return writeServiceError(c, log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
