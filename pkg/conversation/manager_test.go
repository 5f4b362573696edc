package conversation

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/database"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/events"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/redis"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/repositories"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type stateKey struct {
	tenantID       uuid.UUID
	conversationID string
}

// memoryStates mimics the (tenant_id, conversation_id) key and the row lock of the
// SQL store with a single mutex.
type memoryStates struct {
	mu     sync.Mutex
	rows   map[stateKey]*models.ConversationState
	writes int
	delay  time.Duration
}

func newMemoryStates() *memoryStates {
	return &memoryStates{rows: map[stateKey]*models.ConversationState{}}
}

func (m *memoryStates) GetOrCreate(_ context.Context, tenantID uuid.UUID, conversationID, initialState string) (*models.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stateKey{tenantID, conversationID}
	row, ok := m.rows[key]
	if !ok {
		row = &models.ConversationState{
			ConversationID: conversationID,
			TenantID:       tenantID,
			State:          initialState,
			StateData:      database.NewJSONB(map[string]any{}),
			Version:        1,
		}
		m.rows[key] = row
	}
	cp := *row
	return &cp, nil
}

func (m *memoryStates) Transition(_ context.Context, tenantID uuid.UUID, conversationID string, apply repositories.TransitionFunc) (*models.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[stateKey{tenantID, conversationID}]
	if !ok {
		return nil, repositories.NotFound("conversation %s does not exist", conversationID)
	}

	cp := *row
	next, data, err := apply(&cp)
	if err != nil {
		return nil, err
	}
	time.Sleep(m.delay)
	if data == nil {
		data = row.StateData.Data
	}
	row.State = next
	row.StateData = database.NewJSONB(maps.Clone(data))
	row.Version++
	row.UpdatedAt = time.Now()
	m.writes++

	updated := *row
	return &updated, nil
}

func (m *memoryStates) state(tenantID uuid.UUID, id string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State(m.rows[stateKey{tenantID, id}].State)
}

func TestManager_CurrentStateStartsInGreeting(t *testing.T) {
	store := newMemoryStates()
	manager := NewManager(store, nil, getTestLogger())
	tenantID := uuid.New()

	state, err := manager.CurrentState(context.Background(), tenantID, " conv-1 ")
	require.NoError(t, err)
	assert.Equal(t, string(StateGreeting), state.State)
	assert.Equal(t, "conv-1", state.ConversationID)

	_, err = manager.CurrentState(context.Background(), tenantID, "  ")
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestManager_TransitionHappyPath(t *testing.T) {
	store := newMemoryStates()
	recorder := &events.Recorder{}
	manager := NewManager(store, recorder, getTestLogger())
	tenantID := uuid.New()
	ctx := context.Background()

	path := []State{
		StateCollectingOrderItems,
		StateAwaitingQuoteConfirmation,
		StateAwaitingPayment,
		StateOrderConfirmed,
		StateGreeting,
	}
	from := StateGreeting
	for _, next := range path {
		result, err := manager.Transition(ctx, tenantID, "conv-1", next, map[string]any{"step": string(next)})
		require.NoError(t, err, "%s -> %s", from, next)
		assert.Equal(t, from, result.From)
		assert.Equal(t, next, result.To)
		assert.Equal(t, string(next), result.State.State)
		assert.Equal(t, string(next), result.State.StateData.Data["step"])
		assert.Equal(t, ValidActions(next), result.ValidActions)
		from = next
	}

	published := recorder.OfType(events.TypeConversationStateChanged)
	require.Len(t, published, len(path))
	assert.Equal(t, "conv-1", published[0].Key)
	assert.Equal(t, StateGreeting, published[0].Data["from"])
}

func TestManager_TransitionKeepsDataWhenNil(t *testing.T) {
	store := newMemoryStates()
	manager := NewManager(store, nil, getTestLogger())
	tenantID := uuid.New()
	ctx := context.Background()

	_, err := manager.Transition(ctx, tenantID, "conv-1", StateCollectingOrderItems, map[string]any{"items": 2})
	require.NoError(t, err)
	result, err := manager.Transition(ctx, tenantID, "conv-1", StateAwaitingQuoteConfirmation, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.State.StateData.Data["items"])
}

func TestManager_TransitionRejected(t *testing.T) {
	store := newMemoryStates()
	recorder := &events.Recorder{}
	manager := NewManager(store, recorder, getTestLogger())
	tenantID := uuid.New()

	_, err := manager.Transition(context.Background(), tenantID, "conv-1", StateOrderConfirmed, map[string]any{"x": 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, StateGreeting, terr.From)
	assert.Equal(t, StateOrderConfirmed, terr.To)
	assert.Equal(t, AllowedTargets(StateGreeting), terr.Allowed)

	httpErr := terr.ToHTTPError()
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(httpErr))

	assert.Equal(t, StateGreeting, store.state(tenantID, "conv-1"))
	assert.Zero(t, store.writes)
	assert.Empty(t, recorder.Events())
}

func TestManager_TransitionRejectsSelfAndUnknown(t *testing.T) {
	manager := NewManager(newMemoryStates(), nil, getTestLogger())
	tenantID := uuid.New()

	_, err := manager.Transition(context.Background(), tenantID, "conv-1", StateGreeting, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = manager.Transition(context.Background(), tenantID, "conv-1", "shipping", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestManager_ConversationIDsAreScopedPerTenant(t *testing.T) {
	store := newMemoryStates()
	manager := NewManager(store, nil, getTestLogger())
	ctx := context.Background()
	tenantA, tenantB := uuid.New(), uuid.New()
	const phone = "5585996201636"

	_, err := manager.Transition(ctx, tenantA, phone, StateCollectingOrderItems, map[string]any{"cart": 2})
	require.NoError(t, err)

	state, err := manager.CurrentState(ctx, tenantB, phone)
	require.NoError(t, err)
	assert.Equal(t, string(StateGreeting), state.State)
	assert.Equal(t, tenantB, state.TenantID)

	result, err := manager.Transition(ctx, tenantB, phone, StateAwaitingPrescription, nil)
	require.NoError(t, err)
	assert.Equal(t, StateGreeting, result.From)

	assert.Equal(t, StateCollectingOrderItems, store.state(tenantA, phone))
	assert.Equal(t, StateAwaitingPrescription, store.state(tenantB, phone))
}

func TestManager_ConcurrentTransitionsSerialize(t *testing.T) {
	store := newMemoryStates()
	store.delay = 5 * time.Millisecond
	manager := NewManager(store, nil, getTestLogger())
	tenantID := uuid.New()

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Transition(context.Background(), tenantID, "conv-1", StateAwaitingPrescription, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInvalidTransition):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, rejected)
	assert.Equal(t, 1, store.writes)
	assert.Zero(t, manager.locks.size())
}

func newTestLocker(t *testing.T) (*redis.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return redis.NewLocker(redis.NewClientFromRedis(rdb, getTestLogger()), ""), mr
}

func TestManager_DistributedLock(t *testing.T) {
	locker, mr := newTestLocker(t)
	manager := NewManager(newMemoryStates(), nil, getTestLogger(), WithLocker(locker, time.Second, 50*time.Millisecond))
	tenantID := uuid.New()
	ctx := context.Background()

	_, err := manager.Transition(ctx, tenantID, "conv-1", StateAwaitingUserDetails, nil)
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:"+lockKey(tenantID, "conv-1")))

	held, err := locker.Acquire(ctx, lockKey(tenantID, "conv-1"), time.Second)
	require.NoError(t, err)

	_, err = manager.Transition(ctx, tenantID, "conv-1", StateAwaitingPayment, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	require.NoError(t, held.Release(ctx))
	_, err = manager.Transition(ctx, tenantID, "conv-1", StateAwaitingPayment, nil)
	require.NoError(t, err)
}

func TestManager_RedisOutageFallsBackToRowLock(t *testing.T) {
	locker, mr := newTestLocker(t)
	manager := NewManager(newMemoryStates(), nil, getTestLogger(), WithLocker(locker, time.Second, 50*time.Millisecond))
	mr.Close()

	result, err := manager.Transition(context.Background(), uuid.New(), "conv-1", StateAwaitingPrescription, nil)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPrescription, result.To)
}
