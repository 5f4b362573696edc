package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/database"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
)

const patientsTable = "patients"

var patientStruct = database.NewStruct(new(models.PatientRecord))

// UpsertResult is the stored row after an upsert and whether it was newly created.
type UpsertResult struct {
	models.PatientRecord
	Inserted bool `db:"inserted"`
}

// upsertPatientSQL merges on (tenant_id, phone) in a single statement so concurrent
// reconciliations of the same phone converge on one row.
//
// Merge rules:
//   - non-empty incoming values replace stored ones, empty values never erase
//   - a MEMBER row stays MEMBER
//   - sync_status follows the incoming row only when it confirms membership
//   - attributes are merged key by key, incoming keys winning
var upsertPatientSQL = fmt.Sprintf(`
INSERT INTO patients (
	id, tenant_id, name, phone, email, national_id, association_category,
	responsible_name, responsible_national_id, membership_status, external_id,
	sync_status, attributes, last_context_update, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
ON CONFLICT (tenant_id, phone) DO UPDATE SET
	name = COALESCE(NULLIF(EXCLUDED.name, ''), patients.name),
	email = COALESCE(NULLIF(EXCLUDED.email, ''), patients.email),
	national_id = COALESCE(NULLIF(EXCLUDED.national_id, ''), patients.national_id),
	association_category = COALESCE(NULLIF(EXCLUDED.association_category, ''), patients.association_category),
	responsible_name = COALESCE(NULLIF(EXCLUDED.responsible_name, ''), patients.responsible_name),
	responsible_national_id = COALESCE(NULLIF(EXCLUDED.responsible_national_id, ''), patients.responsible_national_id),
	membership_status = CASE
		WHEN patients.membership_status = 'MEMBER' THEN 'MEMBER'
		ELSE EXCLUDED.membership_status
	END,
	external_id = COALESCE(NULLIF(EXCLUDED.external_id, ''), patients.external_id),
	sync_status = CASE
		WHEN EXCLUDED.membership_status = 'MEMBER' THEN EXCLUDED.sync_status
		ELSE patients.sync_status
	END,
	attributes = COALESCE(patients.attributes, '{}'::jsonb) || COALESCE(EXCLUDED.attributes, '{}'::jsonb),
	last_context_update = COALESCE(EXCLUDED.last_context_update, patients.last_context_update),
	updated_at = NOW()
RETURNING %s, (xmax = 0) AS inserted`, strings.Join(patientStruct.Columns(""), ", "))

// PatientRepository handles database operations for local patient records
type PatientRepository struct {
	*Repository
}

// NewPatientRepository creates a new patient repository
func NewPatientRepository(db database.DB, logger ectologger.Logger) *PatientRepository {
	return &PatientRepository{
		Repository: NewRepository(db, logger),
	}
}

// FindByPhone returns the record for a normalized phone, or nil when none exists
func (r *PatientRepository) FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*models.PatientRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "PatientRepository.FindByPhone")
	defer span.End()

	sb := patientStruct.SelectFrom(patientsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("phone", phone),
	)
	query, args := sb.Build()

	var patient models.PatientRecord
	err := r.DB().GetContext(ctx, &patient, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("failed to find patient by phone")
		return nil, Internal("failed to find patient")
	}

	return &patient, nil
}

// GetByID retrieves a patient owned by the tenant
func (r *PatientRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.PatientRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "PatientRepository.GetByID")
	defer span.End()

	sb := patientStruct.SelectFrom(patientsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
	)
	query, args := sb.Build()

	var patient models.PatientRecord
	err := r.DB().GetContext(ctx, &patient, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("patient %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":  tenantID,
			"patient_id": id,
		}).Error("failed to get patient")
		return nil, Internal("failed to get patient")
	}

	return &patient, nil
}

// Upsert inserts or merges a patient record keyed by (tenant_id, phone)
func (r *PatientRepository) Upsert(ctx context.Context, record *models.PatientRecord) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "PatientRepository.Upsert")
	defer span.End()

	if err := record.Validate(); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id := record.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	attributes := record.Attributes
	if attributes.Data == nil {
		attributes = database.NewJSONB(map[string]any{})
	}

	var result UpsertResult
	err := r.DB().GetContext(ctx, &result, upsertPatientSQL,
		id,
		record.TenantID,
		record.Name,
		record.Phone,
		record.Email,
		record.NationalID,
		string(record.AssociationCategory),
		record.ResponsibleName,
		record.ResponsibleNationalID,
		string(record.MembershipStatus),
		record.ExternalID,
		string(record.SyncStatus),
		attributes,
		record.LastContextUpdate,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":         record.TenantID,
			"membership_status": record.MembershipStatus,
		}).Error("failed to upsert patient")
		return nil, Internal("failed to save patient")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  result.TenantID,
		"patient_id": result.ID,
		"inserted":   result.Inserted,
	}).Debug("Upserted patient")
	return &result, nil
}
