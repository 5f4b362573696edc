package conversation

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/events"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/metrics"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/redis"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/repositories"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
)

const (
	DefaultLockTTL  = 10 * time.Second
	DefaultLockWait = 3 * time.Second

	lockKeyPrefix = "conversation:"
)

// TransitionResult is the outcome of an accepted transition.
type TransitionResult struct {
	From         State                     `json:"from"`
	To           State                     `json:"to"`
	State        *models.ConversationState `json:"conversation_state"`
	ValidActions []Action                  `json:"valid_actions"`
}

// Option configures a Manager
type Option func(*Manager)

// WithLocker adds a distributed lock around transitions so replicas serialize too.
func WithLocker(locker *redis.Locker, ttl, wait time.Duration) Option {
	return func(m *Manager) {
		m.locker = locker
		if ttl > 0 {
			m.lockTTL = ttl
		}
		if wait > 0 {
			m.lockWait = wait
		}
	}
}

// Manager reads and advances conversation state.
type Manager struct {
	repo     repositories.ConversationStateRepo
	events   events.Emitter
	logger   ectologger.Logger
	locks    *keyMutex
	locker   *redis.Locker
	lockTTL  time.Duration
	lockWait time.Duration
}

func NewManager(repo repositories.ConversationStateRepo, emitter events.Emitter, logger ectologger.Logger, opts ...Option) *Manager {
	if emitter == nil {
		emitter = events.Nop{}
	}
	m := &Manager{
		repo:     repo,
		events:   emitter,
		logger:   logger,
		locks:    newKeyMutex(),
		lockTTL:  DefaultLockTTL,
		lockWait: DefaultLockWait,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func parseConversationID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}
	return id, nil
}

// CurrentState returns the conversation's state, starting it in greeting when it is new.
func (m *Manager) CurrentState(ctx context.Context, tenantID uuid.UUID, conversationID string) (*models.ConversationState, error) {
	ctx, span := tracing.StartSpan(ctx, "ConversationManager.CurrentState")
	defer span.End()

	id, err := parseConversationID(conversationID)
	if err != nil {
		return nil, err
	}
	return m.repo.GetOrCreate(ctx, tenantID, id, string(InitialState))
}

// Transition moves the conversation to next. A nil stateData keeps the stored data.
// Rejected edges return a *TransitionError matching ErrInvalidTransition.
func (m *Manager) Transition(ctx context.Context, tenantID uuid.UUID, conversationID string, next State, stateData map[string]any) (*TransitionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ConversationManager.Transition")
	defer span.End()

	id, err := parseConversationID(conversationID)
	if err != nil {
		return nil, err
	}
	if !next.IsValid() {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown conversation state %q", next)
	}

	key := lockKey(tenantID, id)
	unlock := m.locks.Lock(key)
	defer unlock()

	release, err := m.acquireDistributed(ctx, key, id)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := m.repo.GetOrCreate(ctx, tenantID, id, string(InitialState)); err != nil {
		return nil, err
	}

	var from State
	updated, err := m.repo.Transition(ctx, tenantID, id, func(current *models.ConversationState) (string, map[string]any, error) {
		from = State(current.State)
		if !CanTransition(from, next) {
			return "", nil, &TransitionError{From: from, To: next, Allowed: AllowedTargets(from)}
		}
		return string(next), stateData, nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			metrics.StateTransitionsTotal.WithLabelValues(string(from), string(next), "rejected").Inc()
			m.logger.WithContext(ctx).WithFields(map[string]any{
				"conversation_id": id,
				"from":            from,
				"to":              next,
			}).Warn("Rejected conversation state transition")
		}
		return nil, err
	}

	metrics.StateTransitionsTotal.WithLabelValues(string(from), string(next), "ok").Inc()
	m.events.Emit(ctx, events.TypeConversationStateChanged, tenantID.String(), id, map[string]any{
		"conversation_id": id,
		"from":            from,
		"to":              next,
		"version":         updated.Version,
	})
	m.logger.WithContext(ctx).WithFields(map[string]any{
		"conversation_id": id,
		"from":            from,
		"to":              next,
	}).Info("Conversation state changed")

	return &TransitionResult{
		From:         from,
		To:           next,
		State:        updated,
		ValidActions: ValidActions(next),
	}, nil
}

// lockKey is tenant scoped; conversation ids are only unique within a tenant.
func lockKey(tenantID uuid.UUID, id string) string {
	return lockKeyPrefix + tenantID.String() + ":" + id
}

// acquireDistributed takes the cross-replica lock when one is configured. A Redis
// outage degrades to the row lock taken by the store.
func (m *Manager) acquireDistributed(ctx context.Context, key, id string) (func(), error) {
	if m.locker == nil {
		return func() {}, nil
	}

	lock, err := m.locker.TryAcquire(ctx, key, m.lockTTL, m.lockWait)
	switch {
	case errors.Is(err, redis.ErrLockNotAcquired):
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "conversation %s is being updated, retry later", id)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case err != nil:
		m.logger.WithContext(ctx).WithError(err).WithField("conversation_id", id).
			Warn("distributed conversation lock unavailable; relying on the row lock")
		return func() {}, nil
	}

	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			m.logger.WithContext(ctx).WithError(err).WithField("conversation_id", id).Warn("failed to release conversation lock")
		}
	}, nil
}
