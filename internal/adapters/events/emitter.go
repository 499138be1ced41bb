package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/eleven-am/flux/internal/domain"
)

type typedSubscription struct {
	id      string
	handler func(payload interface{})
}

type genericSubscription struct {
	id      string
	handler func(eventType domain.EventType, payload interface{})
}

// Emitter fans lifecycle events out to subscribed handlers. Handlers run
// synchronously on the emitting goroutine; anything slow belongs on the
// subscriber's side of the hook.
type Emitter struct {
	logger *slog.Logger

	mu      sync.RWMutex
	typed   map[domain.EventType][]typedSubscription
	generic []genericSubscription
}

func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Emitter{
		logger: logger.With("component", "event-emitter"),
		typed:  make(map[domain.EventType][]typedSubscription),
	}
}

func (e *Emitter) Emit(eventType domain.EventType, payload interface{}) {
	e.mu.RLock()
	typed := e.typed[eventType]
	generic := e.generic
	e.mu.RUnlock()

	for _, sub := range typed {
		e.invoke(eventType, func() { sub.handler(payload) })
	}
	for _, sub := range generic {
		e.invoke(eventType, func() { sub.handler(eventType, payload) })
	}
}

func (e *Emitter) Subscribe(eventType domain.EventType, handler func(payload interface{})) func() {
	id := uuid.New().String()

	e.mu.Lock()
	e.typed[eventType] = append(e.typed[eventType], typedSubscription{id: id, handler: handler})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.typed[eventType]
		for i, sub := range subs {
			if sub.id == id {
				e.typed[eventType] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

func (e *Emitter) SubscribeAll(handler func(eventType domain.EventType, payload interface{})) func() {
	id := uuid.New().String()

	e.mu.Lock()
	e.generic = append(e.generic, genericSubscription{id: id, handler: handler})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, sub := range e.generic {
			if sub.id == id {
				e.generic = append(e.generic[:i], e.generic[i+1:]...)
				return
			}
		}
	}
}

// invoke shields the emitter from panicking handlers; a bad subscriber must
// never take an execution down with it.
func (e *Emitter) invoke(eventType domain.EventType, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				"event_type", eventType,
				"panic", r)
		}
	}()
	fn()
}
