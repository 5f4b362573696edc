package middleware

import (
	stdctx "context"
	"errors"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/context"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tenant"
)

// TenantResolver resolves tenants for the Tenant middleware.
type TenantResolver interface {
	Resolve(ctx stdctx.Context, identifier string, forceRefresh bool) (*tenant.TenantContext, error)
}

// Tenant resolves the X-Tenant-ID header (slug or id) and stores the tenant context
// on the request. Unknown or inactive tenants are answered with 404.
func Tenant(logger ectologger.Logger, resolver TenantResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			identifier := strings.TrimSpace(c.Request().Header.Get(HeaderTenantID))
			if identifier == "" {
				return httperror.NewHTTPError(http.StatusBadRequest, "missing "+HeaderTenantID+" header")
			}

			tc, err := resolver.Resolve(ctx, identifier, false)
			if errors.Is(err, tenant.ErrNotFound) {
				return httperror.NewHTTPErrorf(http.StatusNotFound, "tenant %s not found", identifier)
			}
			if err != nil {
				logger.WithContext(ctx).WithError(err).WithField("tenant", identifier).Error("failed to resolve tenant")
				return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve tenant")
			}

			ctx = tenant.WithContext(ctx, tc)
			ctx = context.SetTenantID(ctx, tc.ID().String())
			ctx = context.SetTenantSlug(ctx, tc.Tenant.Slug)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
