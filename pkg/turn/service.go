// Package turn assembles everything the dialogue engine needs before answering a message.
package turn

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/conversation"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/interlocutor"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/reconciliation"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tenant"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
)

type Reconciler interface {
	Reconcile(ctx context.Context, tc *tenant.TenantContext, rawPhone string) (*reconciliation.Result, error)
}

type StateMachine interface {
	CurrentState(ctx context.Context, tenantID uuid.UUID, conversationID string) (*models.ConversationState, error)
	Transition(ctx context.Context, tenantID uuid.UUID, conversationID string, next conversation.State, stateData map[string]any) (*conversation.TransitionResult, error)
}

// TurnContext is the per-message context handed to the dialogue engine.
// Interlocutor is nil when the phone matched no patient.
type TurnContext struct {
	Tenant            tenant.PublicView         `json:"tenant"`
	Reconciliation    *reconciliation.Result    `json:"reconciliation"`
	Interlocutor      *interlocutor.Context     `json:"interlocutor,omitempty"`
	ConversationState *models.ConversationState `json:"conversation_state"`
	ValidActions      []conversation.Action     `json:"valid_actions"`
	NextStates        []conversation.State      `json:"next_states"`
}

type Service struct {
	reconciler Reconciler
	analyzer   *interlocutor.Analyzer
	states     StateMachine
	logger     ectologger.Logger
}

func NewService(reconciler Reconciler, analyzer *interlocutor.Analyzer, states StateMachine, logger ectologger.Logger) *Service {
	return &Service{
		reconciler: reconciler,
		analyzer:   analyzer,
		states:     states,
		logger:     logger,
	}
}

// Prepare reconciles the sender and loads the conversation state concurrently.
func (s *Service) Prepare(ctx context.Context, tc *tenant.TenantContext, conversationID, rawPhone string) (*TurnContext, error) {
	ctx, span := tracing.StartSpan(ctx, "TurnService.Prepare")
	defer span.End()

	var (
		result *reconciliation.Result
		state  *models.ConversationState
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		result, err = s.reconciler.Reconcile(gctx, tc, rawPhone)
		return err
	})
	g.Go(func() error {
		var err error
		state, err = s.states.CurrentState(gctx, tc.ID(), conversationID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	turn := &TurnContext{
		Tenant:            tc.PublicView(),
		Reconciliation:    result,
		ConversationState: state,
		ValidActions:      conversation.ValidActions(conversation.State(state.State)),
		NextStates:        conversation.AllowedTargets(conversation.State(state.State)),
	}
	if result.Record != nil {
		analysis := s.analyzer.Analyze(ctx, result.Record)
		turn.Interlocutor = &analysis
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":       tc.ID(),
		"conversation_id": state.ConversationID,
		"status":          result.Status,
		"state":           state.State,
	}).Debug("Prepared turn context")

	return turn, nil
}

// Report records the state the dialogue engine moved the conversation to.
func (s *Service) Report(ctx context.Context, tc *tenant.TenantContext, conversationID string, next conversation.State, data map[string]any) (*conversation.TransitionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "TurnService.Report")
	defer span.End()

	return s.states.Transition(ctx, tc.ID(), conversationID, next, data)
}
