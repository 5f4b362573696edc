package handlers

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
)

// TenantInvalidator drops cached tenant contexts on every replica.
type TenantInvalidator interface {
	Invalidate(ctx context.Context, identifier string)
	InvalidateAll(ctx context.Context)
}

// TenantHandler serves the tenant's public context and the cache admin operations
type TenantHandler struct {
	cache  TenantInvalidator
	logger ectologger.Logger
}

func NewTenantHandler(cache TenantInvalidator, logger ectologger.Logger) *TenantHandler {
	return &TenantHandler{cache: cache, logger: logger}
}

// RegisterRoutes registers the tenant-scoped routes, each wrapped in m.
func (h *TenantHandler) RegisterRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.GET("/tenant", h.Get, m...)
}

// RegisterAdminRoutes registers the cache invalidation routes
func (h *TenantHandler) RegisterAdminRoutes(g *echo.Group) {
	g.POST("/tenants/invalidate", h.InvalidateAll)
	g.POST("/tenants/:identifier/invalidate", h.Invalidate)
}

// Get handles GET /tenant
func (h *TenantHandler) Get(c echo.Context) error {
	tc, err := GetTenant(c)
	if err != nil {
		return err
	}
	return SuccessResponse(c, tc.PublicView())
}

// Invalidate handles POST /admin/tenants/:identifier/invalidate
func (h *TenantHandler) Invalidate(c echo.Context) error {
	ctx := c.Request().Context()

	identifier := strings.TrimSpace(c.Param("identifier"))
	if identifier == "" {
		return BadRequest("missing identifier")
	}

	h.cache.Invalidate(ctx, identifier)
	h.logger.WithContext(ctx).WithField("tenant", identifier).Info("Invalidated tenant context")

	return NoContentResponse(c)
}

// InvalidateAll handles POST /admin/tenants/invalidate
func (h *TenantHandler) InvalidateAll(c echo.Context) error {
	ctx := c.Request().Context()

	h.cache.InvalidateAll(ctx)
	h.logger.WithContext(ctx).Info("Invalidated all tenant contexts")

	return NoContentResponse(c)
}
