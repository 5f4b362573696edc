package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Fields(ctx))

	ctx = SetRequestID(ctx, "req-1")
	ctx = SetTenantID(ctx, "3f1c0e9a-7d7e-4c0b-9d55-0d1f3c2a9b10")
	ctx = SetTenantSlug(ctx, "acme")
	ctx = SetUserID(ctx, "")

	assert.Equal(t, map[string]any{
		"request_id":  "req-1",
		"tenant_id":   "3f1c0e9a-7d7e-4c0b-9d55-0d1f3c2a9b10",
		"tenant_slug": "acme",
	}, Fields(ctx))
	assert.Equal(t, "acme", GetTenantSlug(ctx))
	assert.Empty(t, GetUserID(ctx))
}
