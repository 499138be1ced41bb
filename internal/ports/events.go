package ports

import (
	"github.com/eleven-am/flux/internal/domain"
)

// EventEmitterPort is the single emit hook the engine needs; transport to
// any live-monitoring consumer is an external concern.
type EventEmitterPort interface {
	Emit(eventType domain.EventType, payload interface{})
	Subscribe(eventType domain.EventType, handler func(payload interface{})) (unsubscribe func())
	SubscribeAll(handler func(eventType domain.EventType, payload interface{})) (unsubscribe func())
}
