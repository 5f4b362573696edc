package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/database"
)

// ConversationState is the persisted position of a conversation in the state machine.
type ConversationState struct {
	ConversationID string                         `db:"conversation_id" json:"conversation_id"`
	TenantID       uuid.UUID                      `db:"tenant_id" json:"tenant_id"`
	State          string                         `db:"state" json:"state"`
	StateData      database.JSONB[map[string]any] `db:"state_data" json:"state_data"`
	Version        int                            `db:"version" json:"version"`
	CreatedAt      time.Time                      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time                      `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (ConversationState) TableName() string {
	return "conversation_states"
}
