package models

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/database"
)

// MembershipStatus tells whether a contact was confirmed against the external system.
type MembershipStatus string

const (
	MembershipLead   MembershipStatus = "LEAD"
	MembershipMember MembershipStatus = "MEMBER"
)

// SyncStatus tracks how much of the external record has been merged locally.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncPartial SyncStatus = "partial"
	SyncSynced  SyncStatus = "synced"
)

// AssociationCategory is the canonical form of the external association type.
// Unrecognized external values are stored verbatim.
type AssociationCategory string

const (
	AssociationDirect      AssociationCategory = "direct"
	AssociationResponsible AssociationCategory = "responsible"
)

var ErrMemberWithoutExternalID = errors.New("member patient requires an external id")

// PatientRecord is the local canonical record of a contact, unique per (tenant, phone).
type PatientRecord struct {
	ID                    uuid.UUID                      `db:"id" json:"id"`
	TenantID              uuid.UUID                      `db:"tenant_id" json:"tenant_id"`
	Name                  string                         `db:"name" json:"name"`
	Phone                 string                         `db:"phone" json:"phone"`
	Email                 *string                        `db:"email" json:"email,omitempty"`
	NationalID            *string                        `db:"national_id" json:"national_id,omitempty"`
	AssociationCategory   AssociationCategory            `db:"association_category" json:"association_category,omitempty"`
	ResponsibleName       *string                        `db:"responsible_name" json:"responsible_name,omitempty"`
	ResponsibleNationalID *string                        `db:"responsible_national_id" json:"responsible_national_id,omitempty"`
	MembershipStatus      MembershipStatus               `db:"membership_status" json:"membership_status"`
	ExternalID            *string                        `db:"external_id" json:"external_id,omitempty"`
	SyncStatus            SyncStatus                     `db:"sync_status" json:"sync_status"`
	Attributes            database.JSONB[map[string]any] `db:"attributes" json:"attributes"`
	LastContextUpdate     *time.Time                     `db:"last_context_update" json:"last_context_update,omitempty"`
	CreatedAt             time.Time                      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time                      `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (PatientRecord) TableName() string {
	return "patients"
}

// Validate checks the rules the store relies on.
func (p *PatientRecord) Validate() error {
	if p.MembershipStatus == MembershipMember && (p.ExternalID == nil || *p.ExternalID == "") {
		return ErrMemberWithoutExternalID
	}
	return nil
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences a possibly nil string.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
