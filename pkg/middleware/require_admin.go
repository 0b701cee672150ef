package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireAdminToken guards operational routes with a static bearer token.
// With an empty token every request is rejected, so the admin routes stay
// closed until ADMIN_API_TOKEN is configured.
func RequireAdminToken(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error":   "admin_disabled",
					"message": "Admin API is not configured",
				})
			}

			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			presented, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || presented == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "unauthorized",
					"message": "Authentication required",
				})
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error":   "insufficient_permissions",
					"message": "Admin access required",
				})
			}

			return next(c)
		}
	}
}
