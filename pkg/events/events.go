// Package events emits domain events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/oklog/ulid/v2"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/metrics"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
)

const (
	TypePatientReconciled        = "patient.reconciled"
	TypePatientLeadCreated       = "patient.lead_created"
	TypeConversationStateChanged = "conversation.state_changed"
)

// Event is the envelope written to the event topic.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurred_at"`
	TraceID    string         `json:"trace_id,omitempty"`
	Data       map[string]any `json:"data"`
}

// Writer is the transport an Emitter publishes through.
type Writer interface {
	Write(ctx context.Context, key string, headers map[string]string, value []byte) error
}

// Emitter publishes events. Publishing failures are logged and counted but never
// fail the operation that produced the event.
type Emitter interface {
	Emit(ctx context.Context, eventType, tenantID, key string, data map[string]any)
}

type emitter struct {
	writer Writer
	logger ectologger.Logger
	now    func() time.Time
}

// NewEmitter creates an Emitter writing through w. A nil writer yields a no-op emitter.
func NewEmitter(w Writer, logger ectologger.Logger) Emitter {
	if w == nil {
		return Nop{}
	}
	return &emitter{writer: w, logger: logger, now: time.Now}
}

func (e *emitter) Emit(ctx context.Context, eventType, tenantID, key string, data map[string]any) {
	ctx, span := tracing.StartSpan(ctx, "Emitter.Emit")
	defer span.End()

	evt := Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		TenantID:   tenantID,
		Key:        key,
		OccurredAt: e.now().UTC(),
		TraceID:    tracing.GetTraceID(ctx),
		Data:       data,
	}

	value, err := json.Marshal(evt)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(eventType, "marshal_error").Inc()
		e.logger.WithContext(ctx).WithError(err).Errorf("failed to marshal %s event", eventType)
		return
	}

	headers := map[string]string{
		"type":      eventType,
		"tenant_id": tenantID,
		"event_id":  evt.ID,
	}
	if err := e.writer.Write(ctx, key, headers, value); err != nil {
		metrics.EventsPublished.WithLabelValues(eventType, "error").Inc()
		e.logger.WithContext(ctx).WithError(err).WithField("event_id", evt.ID).Warnf("failed to publish %s event", eventType)
		return
	}

	metrics.EventsPublished.WithLabelValues(eventType, "ok").Inc()
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, string, string, string, map[string]any) {}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, eventType, tenantID, key string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		TenantID:   tenantID,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, evt := range r.Events() {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}
