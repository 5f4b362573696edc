package reconciliation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/database"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/external"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/interlocutor"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
)

// memberFromExternal builds the record written on an external match. Empty
// fields are left empty so the upsert keeps whatever is already stored.
func memberFromExternal(tenantID uuid.UUID, ext *external.ExternalRecord, now time.Time) *models.PatientRecord {
	return &models.PatientRecord{
		TenantID:              tenantID,
		Name:                  ext.Name,
		Phone:                 ext.Phone,
		NationalID:            models.StringPtr(ext.NationalID),
		AssociationCategory:   canonicalCategory(ext.AssociationCategory),
		ResponsibleName:       models.StringPtr(ext.ResponsibleName),
		ResponsibleNationalID: models.StringPtr(ext.ResponsibleNationalID),
		MembershipStatus:      models.MembershipMember,
		ExternalID:            models.StringPtr(ext.ExternalID),
		SyncStatus:            models.SyncSynced,
		Attributes:            database.NewJSONB(attributeBag(ext.Attributes)),
		LastContextUpdate:     &now,
	}
}

// canonicalCategory stores known aliases in canonical form and anything else verbatim.
func canonicalCategory(raw string) models.AssociationCategory {
	if category, ok := interlocutor.NormalizeCategory(raw); ok {
		return category
	}
	return models.AssociationCategory(strings.TrimSpace(raw))
}

func attributeBag(attrs map[string]any) map[string]any {
	if attrs == nil {
		return map[string]any{}
	}
	return attrs
}
