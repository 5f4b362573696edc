package tenant

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
)

// TenantContext is the resolved, request-ready view of a tenant.
type TenantContext struct {
	Tenant      models.TenantConfig
	Credentials *models.Credentials
	BaseURL     string
	LoadedAt    time.Time
	TTL         time.Duration
}

// ID returns the tenant id, or uuid.Nil for a nil context.
func (tc *TenantContext) ID() uuid.UUID {
	if tc == nil {
		return uuid.Nil
	}
	return tc.Tenant.ID
}

// HasCredentials reports whether external calls can be authenticated.
func (tc *TenantContext) HasCredentials() bool {
	return tc != nil && tc.Credentials != nil
}

// Expired reports whether the entry is older than its TTL at now.
func (tc *TenantContext) Expired(now time.Time) bool {
	return now.Sub(tc.LoadedAt) > tc.TTL
}

// PublicView is the tenant data safe to return to unauthenticated callers.
type PublicView struct {
	ID                uuid.UUID            `json:"id"`
	Slug              string               `json:"slug"`
	Name              string               `json:"name"`
	Display           models.TenantDisplay `json:"display"`
	AIDirectives      []string             `json:"ai_directives"`
	HasExternalSystem bool                 `json:"has_external_system"`
}

// PublicView strips credentials and the external system address.
func (tc *TenantContext) PublicView() PublicView {
	directives := tc.Tenant.AIDirectives.Data
	if directives == nil {
		directives = []string{}
	}
	return PublicView{
		ID:                tc.Tenant.ID,
		Slug:              tc.Tenant.Slug,
		Name:              tc.Tenant.Name,
		Display:           tc.Tenant.Display.Data,
		AIDirectives:      directives,
		HasExternalSystem: tc.HasCredentials() && tc.BaseURL != "",
	}
}

func newTenantContext(cfg *models.TenantConfig, creds *models.Credentials, loadedAt time.Time, ttl time.Duration) *TenantContext {
	return &TenantContext{
		Tenant:      *cfg,
		Credentials: creds,
		BaseURL:     strings.TrimRight(strings.TrimSpace(cfg.ExternalBaseURL), "/"),
		LoadedAt:    loadedAt,
		TTL:         ttl,
	}
}

type ctxKey struct{}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc *TenantContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the tenant resolved for this request, if any.
func FromContext(ctx context.Context) (*TenantContext, bool) {
	tc, ok := ctx.Value(ctxKey{}).(*TenantContext)
	return tc, ok && tc != nil
}
