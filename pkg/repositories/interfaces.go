package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
)

// TenantRepo reads tenant configuration records. There is no write path.
type TenantRepo interface {
	GetBySlug(ctx context.Context, slug string) (*models.TenantConfig, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.TenantConfig, error)
}

// PatientRepo reads and writes local patient records keyed by (tenant, phone).
type PatientRepo interface {
	FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*models.PatientRecord, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.PatientRecord, error)
	Upsert(ctx context.Context, record *models.PatientRecord) (*UpsertResult, error)
}

// TransitionFunc receives the locked current row and returns the next state and data.
// Returning an error aborts the transition and leaves the row unchanged.
type TransitionFunc func(current *models.ConversationState) (next string, data map[string]any, err error)

// ConversationStateRepo persists conversation state machine positions.
type ConversationStateRepo interface {
	GetOrCreate(ctx context.Context, tenantID uuid.UUID, conversationID, initialState string) (*models.ConversationState, error)
	Transition(ctx context.Context, tenantID uuid.UUID, conversationID string, apply TransitionFunc) (*models.ConversationState, error)
}
