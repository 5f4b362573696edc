package handlers

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/conversation"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tenant"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/turn"
)

// StateMachine is the conversation manager as seen by the API.
type StateMachine interface {
	CurrentState(ctx context.Context, tenantID uuid.UUID, conversationID string) (*models.ConversationState, error)
	Transition(ctx context.Context, tenantID uuid.UUID, conversationID string, next conversation.State, stateData map[string]any) (*conversation.TransitionResult, error)
}

// TurnPreparer builds the per-message context for the dialogue engine.
type TurnPreparer interface {
	Prepare(ctx context.Context, tc *tenant.TenantContext, conversationID, rawPhone string) (*turn.TurnContext, error)
}

// ConversationHandler handles conversation state requests
type ConversationHandler struct {
	states StateMachine
	turns  TurnPreparer
	logger ectologger.Logger
}

func NewConversationHandler(states StateMachine, turns TurnPreparer, logger ectologger.Logger) *ConversationHandler {
	return &ConversationHandler{states: states, turns: turns, logger: logger}
}

// StateResponse is the body of GET /conversations/:id/state
type StateResponse struct {
	ConversationState *models.ConversationState `json:"conversation_state"`
	Description       string                    `json:"description"`
	ValidActions      []conversation.Action     `json:"valid_actions"`
	NextStates        []conversation.State      `json:"next_states"`
}

// TransitionRequest is the request body for POST /conversations/:id/transitions
type TransitionRequest struct {
	State     string         `json:"state" validate:"required"`
	StateData map[string]any `json:"state_data,omitempty"`
}

// TurnRequest is the request body for POST /conversations/:id/turn
type TurnRequest struct {
	Phone string `json:"phone" validate:"required"`
}

// RegisterRoutes registers the conversation routes, each wrapped in m.
func (h *ConversationHandler) RegisterRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	conversations := g.Group("/conversations")
	conversations.GET("/:id/state", h.GetState, m...)
	conversations.POST("/:id/transitions", h.Transition, m...)
	conversations.POST("/:id/turn", h.Turn, m...)
}

// GetState handles GET /conversations/:id/state
func (h *ConversationHandler) GetState(c echo.Context) error {
	ctx := c.Request().Context()

	tc, err := GetTenant(c)
	if err != nil {
		return err
	}

	state, err := h.states.CurrentState(ctx, tc.ID(), c.Param("id"))
	if err != nil {
		return err
	}

	current := conversation.State(state.State)
	return SuccessResponse(c, StateResponse{
		ConversationState: state,
		Description:       conversation.StateInfoMap[current].Description,
		ValidActions:      conversation.ValidActions(current),
		NextStates:        conversation.AllowedTargets(current),
	})
}

// Transition handles POST /conversations/:id/transitions
func (h *ConversationHandler) Transition(c echo.Context) error {
	ctx := c.Request().Context()

	tc, err := GetTenant(c)
	if err != nil {
		return err
	}

	req, err := BindRequest[TransitionRequest](c)
	if err != nil {
		return err
	}

	next, ok := conversation.ParseState(req.State)
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown state %q", req.State).
			AddMetaValue("states", conversation.States())
	}

	result, err := h.states.Transition(ctx, tc.ID(), c.Param("id"), next, req.StateData)
	if err != nil {
		return err
	}

	return SuccessResponse(c, result)
}

// Turn handles POST /conversations/:id/turn
func (h *ConversationHandler) Turn(c echo.Context) error {
	ctx := c.Request().Context()

	tc, err := GetTenant(c)
	if err != nil {
		return err
	}

	req, err := BindRequest[TurnRequest](c)
	if err != nil {
		return err
	}

	turnCtx, err := h.turns.Prepare(ctx, tc, c.Param("id"), req.Phone)
	if err != nil {
		return err
	}

	return SuccessResponse(c, turnCtx)
}
