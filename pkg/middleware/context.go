package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/context"
)

// HeaderTenantID carries the tenant slug or id
const HeaderTenantID = "X-Tenant-ID"

// Context assigns the request id, reusing the caller's X-Request-ID when present,
// and echoes it on the response.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			c.SetRequest(req.WithContext(context.SetRequestID(req.Context(), requestID)))

			return next(c)
		}
	}
}
