package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/database"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
)

const tenantsTable = "tenants"

var tenantStruct = database.NewStruct(new(models.TenantConfig))

// TenantRepository handles database reads for tenant configuration
type TenantRepository struct {
	*Repository
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db database.DB, logger ectologger.Logger) *TenantRepository {
	return &TenantRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetBySlug retrieves a tenant by its routing slug
func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*models.TenantConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "TenantRepository.GetBySlug")
	defer span.End()

	sb := tenantStruct.SelectFrom(tenantsTable)
	sb.Where(sb.Equal("slug", slug))

	return r.get(ctx, sb.Build, "slug", slug)
}

// GetByID retrieves a tenant by id
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TenantConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "TenantRepository.GetByID")
	defer span.End()

	sb := tenantStruct.SelectFrom(tenantsTable)
	sb.Where(sb.Equal("id", id))

	return r.get(ctx, sb.Build, "id", id.String())
}

func (r *TenantRepository) get(ctx context.Context, build func() (string, []any), field, value string) (*models.TenantConfig, error) {
	query, args := build()

	var tenant models.TenantConfig
	err := r.DB().GetContext(ctx, &tenant, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("tenant %s %s does not exist", field, value)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_" + field: value,
		}).Error("failed to get tenant")
		return nil, Internal("failed to get tenant")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenant.ID,
		"tenant_slug": tenant.Slug,
	}).Debugf("Retrieved %s", tenantsTable)
	return &tenant, nil
}
