// Package reconciliation decides who a phone number belongs to for a tenant.
package reconciliation

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/events"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/external"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/metrics"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/normalizers"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/repositories"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tenant"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
)

type Status string

const (
	StatusFoundExternal Status = "found_external"
	StatusFoundLocal    Status = "found_local"
	StatusNotFound      Status = "not_found"
)

// Result is the outcome of a reconciliation. Record is nil for StatusNotFound.
type Result struct {
	Status   Status                `json:"status"`
	Phone    string                `json:"phone"`
	Record   *models.PatientRecord `json:"record,omitempty"`
	Inserted bool                  `json:"inserted"`
}

// ExternalLookup finds a patient in the tenant's system of record.
type ExternalLookup interface {
	LookupByPhone(ctx context.Context, tc *tenant.TenantContext, normalizedPhone string) (*external.ExternalRecord, error)
}

// Engine reconciles phones against the external system and the local store.
type Engine struct {
	external ExternalLookup
	patients repositories.PatientRepo
	events   events.Emitter
	logger   ectologger.Logger
	now      func() time.Time
}

func NewEngine(lookup ExternalLookup, patients repositories.PatientRepo, emitter events.Emitter, logger ectologger.Logger) *Engine {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Engine{
		external: lookup,
		patients: patients,
		events:   emitter,
		logger:   logger,
		now:      time.Now,
	}
}

// Reconcile resolves rawPhone for the tenant. Only malformed phones (400) and
// store failures are returned as errors; external failures degrade to the local store.
func (e *Engine) Reconcile(ctx context.Context, tc *tenant.TenantContext, rawPhone string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "ReconciliationEngine.Reconcile")
	defer span.End()

	if tc == nil {
		return nil, errMissingTenant()
	}

	phone, err := normalizers.ParsePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := e.reconcile(ctx, tc, phone)
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues(tc.ID().String(), "error").Inc()
		return nil, err
	}

	metrics.ReconciliationsTotal.WithLabelValues(tc.ID().String(), string(result.Status)).Inc()
	metrics.ReconciliationDuration.WithLabelValues(string(result.Status)).Observe(time.Since(start).Seconds())
	return result, nil
}

func (e *Engine) reconcile(ctx context.Context, tc *tenant.TenantContext, phone string) (*Result, error) {
	log := e.logger.WithContext(ctx).WithField("tenant_id", tc.ID())

	if match := e.lookupExternal(ctx, tc, phone); match != nil {
		upserted, err := e.patients.Upsert(ctx, memberFromExternal(tc.ID(), match, e.now()))
		if err != nil {
			return nil, err
		}

		record := upserted.PatientRecord
		e.events.Emit(ctx, events.TypePatientReconciled, tc.ID().String(), record.ID.String(), map[string]any{
			"patient_id":  record.ID,
			"external_id": models.StringValue(record.ExternalID),
			"inserted":    upserted.Inserted,
		})
		log.WithFields(map[string]any{
			"patient_id": record.ID,
			"inserted":   upserted.Inserted,
		}).Info("Reconciled patient against external system")

		return &Result{Status: StatusFoundExternal, Phone: phone, Record: &record, Inserted: upserted.Inserted}, nil
	}

	local, err := e.patients.FindByPhone(ctx, tc.ID(), phone)
	if err != nil {
		return nil, err
	}
	if local != nil {
		return &Result{Status: StatusFoundLocal, Phone: phone, Record: local}, nil
	}

	return &Result{Status: StatusNotFound, Phone: phone}, nil
}

// lookupExternal returns nil for every soft failure.
func (e *Engine) lookupExternal(ctx context.Context, tc *tenant.TenantContext, phone string) *external.ExternalRecord {
	if e.external == nil || !tc.HasCredentials() {
		return nil
	}

	record, err := e.external.LookupByPhone(ctx, tc, phone)
	switch {
	case errors.Is(err, external.ErrNoCredentials):
		return nil
	case err != nil:
		e.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tc.ID()).
			Warn("external lookup failed; falling back to the local store")
		return nil
	}
	return record
}

// Refresh re-runs reconciliation for a stored patient, typically after the
// tenant changed the record in its own system.
func (e *Engine) Refresh(ctx context.Context, tc *tenant.TenantContext, patientID uuid.UUID) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "ReconciliationEngine.Refresh")
	defer span.End()

	if tc == nil {
		return nil, errMissingTenant()
	}

	record, err := e.patients.GetByID(ctx, tc.ID(), patientID)
	if err != nil {
		return nil, err
	}
	return e.Reconcile(ctx, tc, record.Phone)
}

func errMissingTenant() error {
	return httperror.NewHTTPError(http.StatusBadRequest, "tenant is required")
}
