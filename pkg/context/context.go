// Package context carries request-scoped identifiers through context.Context.
package context

import "context"

type ContextKey string

var (
	RequestIDKey  = ContextKey("X-Request-Id")
	TenantIDKey   = ContextKey("X-Tenant-Id")
	TenantSlugKey = ContextKey("X-Tenant-Slug")
	UserIDKey     = ContextKey("X-User-Id")
)

// fieldNames maps each key to the log field it is reported under.
var fieldNames = map[ContextKey]string{
	RequestIDKey:  "request_id",
	TenantIDKey:   "tenant_id",
	TenantSlugKey: "tenant_slug",
	UserIDKey:     "user_id",
}

func getString(ctx context.Context, key ContextKey) string {
	value, _ := ctx.Value(key).(string)
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

// SetTenantID stores the resolved tenant id (UUID string).
func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

func GetTenantID(ctx context.Context) string {
	return getString(ctx, TenantIDKey)
}

func SetTenantSlug(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, TenantSlugKey, slug)
}

func GetTenantSlug(ctx context.Context) string {
	return getString(ctx, TenantSlugKey)
}

// SetUserID stores the authenticated subject. Empty for anonymous requests.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return getString(ctx, UserIDKey)
}

// Fields returns the identifiers set on ctx as log fields, skipping empty ones.
func Fields(ctx context.Context) map[string]any {
	fields := make(map[string]any, len(fieldNames))
	for key, name := range fieldNames {
		if value := getString(ctx, key); value != "" {
			fields[name] = value
		}
	}
	return fields
}
