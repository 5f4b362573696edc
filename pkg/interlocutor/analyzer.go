// Package interlocutor works out who is speaking for a patient record and how to address them.
package interlocutor

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/metrics"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/normalizers"
)

type Scenario string

const (
	ScenarioPatient     Scenario = "patient"
	ScenarioResponsible Scenario = "responsible"
)

type AddressingMode string

const (
	AddressingDirect      AddressingMode = "direct"
	AddressingThirdPerson AddressingMode = "third_person"
)

// FallbackReason names the policy applied when the record could not be taken at face value.
type FallbackReason string

const (
	FallbackNone                   FallbackReason = ""
	FallbackMissingResponsibleData FallbackReason = "missing_responsible_data"
	FallbackUnknownAssociationType FallbackReason = "unknown_association_type"
)

// Snapshot is the association data the decision was based on.
type Snapshot struct {
	AssociationCategory   string `json:"association_category,omitempty"`
	ResponsibleName       string `json:"responsible_name,omitempty"`
	ResponsibleNationalID string `json:"responsible_national_id,omitempty"`
}

// Context describes the active speaker. When Scenario is responsible, InterlocutorName
// is the responsible party and differs from PatientName; otherwise both are the patient.
type Context struct {
	Scenario         Scenario        `json:"scenario"`
	InterlocutorName string          `json:"interlocutor_name"`
	PatientName      string          `json:"patient_name"`
	AddressingMode   AddressingMode  `json:"addressing_mode"`
	Snapshot         Snapshot        `json:"snapshot"`
	FallbackReason   FallbackReason  `json:"fallback_reason,omitempty"`
	Rules            AddressingRules `json:"rules"`
}

// Analyzer derives interlocutor contexts. It never fails.
type Analyzer struct {
	logger ectologger.Logger
}

func NewAnalyzer(logger ectologger.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Analyze returns the speaker context for record. A nil record yields the
// unknown-association fallback with empty names.
func (a *Analyzer) Analyze(ctx context.Context, record *models.PatientRecord) Context {
	if record == nil {
		return a.fallback(ctx, nil, Snapshot{}, FallbackUnknownAssociationType)
	}

	snapshot := Snapshot{
		AssociationCategory:   string(record.AssociationCategory),
		ResponsibleName:       normalizers.NormalizeName(models.StringValue(record.ResponsibleName)),
		ResponsibleNationalID: models.StringValue(record.ResponsibleNationalID),
	}
	patientName := normalizers.NormalizeName(record.Name)

	category, known := NormalizeCategory(string(record.AssociationCategory))
	switch {
	case !known:
		return a.fallback(ctx, record, snapshot, FallbackUnknownAssociationType)

	case category == models.AssociationDirect:
		return newContext(ScenarioPatient, patientName, patientName, snapshot, FallbackNone)

	case snapshot.ResponsibleName == "" || strings.EqualFold(snapshot.ResponsibleName, patientName):
		return a.fallback(ctx, record, snapshot, FallbackMissingResponsibleData)

	default:
		return newContext(ScenarioResponsible, snapshot.ResponsibleName, patientName, snapshot, FallbackNone)
	}
}

func (a *Analyzer) fallback(ctx context.Context, record *models.PatientRecord, snapshot Snapshot, reason FallbackReason) Context {
	metrics.InterlocutorFallbacks.WithLabelValues(string(reason)).Inc()

	fields := map[string]any{
		"fallback_reason":      reason,
		"association_category": snapshot.AssociationCategory,
	}
	var patientName string
	if record != nil {
		patientName = normalizers.NormalizeName(record.Name)
		fields["patient_id"] = record.ID
		fields["tenant_id"] = record.TenantID
	}

	log := a.logger.WithContext(ctx).WithFields(fields)
	if reason == FallbackMissingResponsibleData {
		log.Error("responsible-mediated patient has no responsible name; addressing the patient directly")
	} else {
		log.Warn("unknown association type; addressing the patient directly")
	}

	return newContext(ScenarioPatient, patientName, patientName, snapshot, reason)
}

func newContext(scenario Scenario, interlocutor, patient string, snapshot Snapshot, reason FallbackReason) Context {
	mode := AddressingDirect
	if scenario == ScenarioResponsible {
		mode = AddressingThirdPerson
	}
	c := Context{
		Scenario:         scenario,
		InterlocutorName: interlocutor,
		PatientName:      patient,
		AddressingMode:   mode,
		Snapshot:         snapshot,
		FallbackReason:   reason,
	}
	c.Rules = DeriveRules(c)
	return c
}
