package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter — where catalog events go
// ─────────────────────────────────────────────────────────────

// EventEmitter receives catalog events such as "catalog:refreshed".
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event as a structured log line.
type LogEmitter struct{}

func (LogEmitter) Emit(_ context.Context, event string, data any) {
	log.Info().Str("event", event).Interface("data", data).Msg("catalog event")
}

// MockEmitter records all calls. Safe for use from watcher goroutines.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Recorded returns a copy of the events seen so far.
func (m *MockEmitter) Recorded() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.Events...)
}
