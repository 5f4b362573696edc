package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/database"
)

// TenantDisplay is the public-facing presentation data of a tenant.
type TenantDisplay struct {
	LogoURL        string `json:"logo_url,omitempty"`
	WelcomeMessage string `json:"welcome_message,omitempty"`
	PrimaryColor   string `json:"primary_color,omitempty"`
}

// TenantConfig is a tenant's configuration record. It is read-only for this service.
type TenantConfig struct {
	ID                   uuid.UUID                         `db:"id" json:"id"`
	Slug                 string                            `db:"slug" json:"slug"`
	Name                 string                            `db:"name" json:"name"`
	ExternalBaseURL      string                            `db:"external_base_url" json:"external_base_url"`
	EncryptedCredentials []byte                            `db:"encrypted_credentials" json:"-"`
	Active               bool                              `db:"active" json:"active"`
	AIDirectives         database.JSONB[[]string]          `db:"ai_directives" json:"ai_directives"`
	Display              database.JSONB[TenantDisplay]     `db:"display" json:"display"`
	FieldMapping         database.JSONB[map[string]string] `db:"field_mapping" json:"field_mapping,omitempty"`
	CreatedAt            time.Time                         `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time                         `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (TenantConfig) TableName() string {
	return "tenants"
}

// Credentials authenticate calls to a tenant's external system of record.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
