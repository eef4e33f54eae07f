package middleware

import (
	"net/http"
	"strings"

	"github.com/Okemwag/Subscribee/pkg/jwtutil"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/Okemwag/Subscribee/pkg/tenant"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// BusinessAuthMiddleware validates the bearer token and installs the tenant
// identity into the request context. Every handler behind it can rely on
// tenant.FromContext resolving to the authenticated business.
func BusinessAuthMiddleware(jwtUtil *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing access token")
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "authorization required",
				})
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Warn("Invalid token scheme", zap.String("scheme", strings.Split(authHeader, " ")[0]))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "token must use Bearer scheme",
				})
			}

			claims, err := jwtUtil.ValidateToken(authHeader[7:])
			if err != nil {
				log.Warn("Invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "the access token is invalid",
				})
			}

			// Install tenant identity into the request context so service
			// calls can enforce business ownership.
			ctx := tenant.WithBusiness(c.Request().Context(), claims.BusinessID, claims.Email)

			// Carry the request-scoped logger across too.
			log = log.With(
				zap.Uint("business_id", claims.BusinessID),
				zap.String("email", claims.Email),
			)
			ctx = logger.WithContext(ctx, log)
			c.SetRequest(c.Request().WithContext(ctx))

			c.Set("logger", log)
			c.Set("business_id", claims.BusinessID)

			return next(c)
		}
	}
}
