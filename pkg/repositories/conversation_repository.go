package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/database"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
)

const conversationStatesTable = "conversation_states"

var conversationStateStruct = database.NewStruct(new(models.ConversationState))

var insertConversationStateSQL = `
INSERT INTO conversation_states (conversation_id, tenant_id, state, state_data, version, created_at, updated_at)
VALUES ($1, $2, $3, '{}'::jsonb, 1, NOW(), NOW())
ON CONFLICT (tenant_id, conversation_id) DO NOTHING`

var updateConversationStateSQL = fmt.Sprintf(`
UPDATE conversation_states
SET state = $1, state_data = $2, version = version + 1, updated_at = NOW()
WHERE tenant_id = $3 AND conversation_id = $4
RETURNING %s`, strings.Join(conversationStateStruct.Columns(""), ", "))

// ConversationStateRepository persists conversation state rows
type ConversationStateRepository struct {
	*Repository
}

// NewConversationStateRepository creates a new conversation state repository
func NewConversationStateRepository(db database.DB, logger ectologger.Logger) *ConversationStateRepository {
	return &ConversationStateRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetOrCreate returns the conversation's row, creating it in initialState when absent.
// Rows are keyed by (tenant_id, conversation_id); each tenant gets its own conversation.
func (r *ConversationStateRepository) GetOrCreate(ctx context.Context, tenantID uuid.UUID, conversationID, initialState string) (*models.ConversationState, error) {
	ctx, span := tracing.StartSpan(ctx, "ConversationStateRepository.GetOrCreate")
	defer span.End()

	if _, err := r.DB().ExecContext(ctx, insertConversationStateSQL, conversationID, tenantID, initialState); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("conversation_id", conversationID).Error("failed to create conversation state")
		return nil, Internal("failed to create conversation state")
	}

	sb := conversationStateStruct.SelectFrom(conversationStatesTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("conversation_id", conversationID),
	)
	query, args := sb.Build()

	var state models.ConversationState
	err := r.DB().GetContext(ctx, &state, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("conversation %s does not exist", conversationID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("conversation_id", conversationID).Error("failed to get conversation state")
		return nil, Internal("failed to get conversation state")
	}

	return &state, nil
}

// Transition locks the row with SELECT ... FOR UPDATE, lets apply decide the next
// state and writes it in the same transaction.
func (r *ConversationStateRepository) Transition(ctx context.Context, tenantID uuid.UUID, conversationID string, apply TransitionFunc) (*models.ConversationState, error) {
	ctx, span := tracing.StartSpan(ctx, "ConversationStateRepository.Transition")
	defer span.End()

	ctx, tx, err := database.GetTx(ctx, r.logger, r.DB(), nil)
	if err != nil {
		return nil, Internal("failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	sb := conversationStateStruct.SelectFrom(conversationStatesTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("conversation_id", conversationID),
	)
	sb.ForUpdate()
	query, args := sb.Build()

	var current models.ConversationState
	err = tx.GetContext(ctx, &current, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("conversation %s does not exist", conversationID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("conversation_id", conversationID).Error("failed to lock conversation state")
		return nil, Internal("failed to lock conversation state")
	}

	next, data, err := apply(&current)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = current.StateData.Data
	}
	if data == nil {
		data = map[string]any{}
	}

	var updated models.ConversationState
	err = tx.GetContext(ctx, &updated, updateConversationStateSQL, next, database.NewJSONB(data), tenantID, conversationID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("conversation_id", conversationID).Error("failed to update conversation state")
		return nil, Internal("failed to update conversation state")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, Internal("failed to commit conversation state")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"conversation_id": conversationID,
		"from":            current.State,
		"to":              updated.State,
		"version":         updated.Version,
	}).Debug("Updated conversation state")
	return &updated, nil
}
