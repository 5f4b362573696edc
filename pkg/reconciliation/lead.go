package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/database"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/events"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/metrics"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/normalizers"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LeadRequest carries the minimal identifying data collected from an unknown contact.
// Fields are validated after normalization.
type LeadRequest struct {
	Phone      string `json:"phone" validate:"required,numeric,min=10,max=11"`
	Name       string `json:"name" validate:"required,min=2,max=120"`
	NationalID string `json:"national_id" validate:"required,numeric,len=11"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
}

func (r LeadRequest) normalized() LeadRequest {
	return LeadRequest{
		Phone:      normalizers.NormalizePhone(r.Phone),
		Name:       normalizers.NormalizeName(r.Name),
		NationalID: normalizers.NormalizeNationalID(r.NationalID),
		Email:      strings.ToLower(strings.TrimSpace(r.Email)),
	}
}

// CreateLead registers a contact that reconciliation could not find. An existing
// record for the phone is enriched with any fields it lacks and keeps its status.
func (e *Engine) CreateLead(ctx context.Context, tenantID uuid.UUID, req LeadRequest) (*models.PatientRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "ReconciliationEngine.CreateLead")
	defer span.End()

	req = req.normalized()
	if err := validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	upserted, err := e.patients.Upsert(ctx, &models.PatientRecord{
		TenantID:         tenantID,
		Name:             req.Name,
		Phone:            req.Phone,
		Email:            models.StringPtr(req.Email),
		NationalID:       models.StringPtr(req.NationalID),
		MembershipStatus: models.MembershipLead,
		SyncStatus:       models.SyncPending,
		Attributes:       database.NewJSONB(map[string]any{}),
	})
	if err != nil {
		return nil, err
	}

	record := upserted.PatientRecord
	metrics.LeadsCreated.WithLabelValues(tenantID.String(), fmt.Sprint(upserted.Inserted)).Inc()

	if upserted.Inserted {
		e.events.Emit(ctx, events.TypePatientLeadCreated, tenantID.String(), record.ID.String(), map[string]any{
			"patient_id": record.ID,
		})
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":         tenantID,
		"patient_id":        record.ID,
		"inserted":          upserted.Inserted,
		"membership_status": record.MembershipStatus,
	}).Info("Registered lead")

	return &record, nil
}

// validationError turns validator output into a 400 naming each failed field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fieldMessage(fe))
	}
	return httperror.NewHTTPError(http.StatusBadRequest, strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := jsonFieldName(fe.StructField())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "max":
		return fmt.Sprintf("%s must have between %s characters", field, lengthRange(fe))
	case "len":
		return fmt.Sprintf("%s must have exactly %s digits", field, fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must contain digits", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func lengthRange(fe validator.FieldError) string {
	if fe.StructField() == "Phone" {
		return fmt.Sprintf("%d and %d", normalizers.MinPhoneDigits, normalizers.MaxPhoneDigits)
	}
	return "2 and 120"
}

func jsonFieldName(structField string) string {
	switch structField {
	case "NationalID":
		return "national_id"
	default:
		return strings.ToLower(structField)
	}
}
