package ports

import (
	"github.com/eleven-am/flux/internal/domain"
)

type TriggerRegistryPort interface {
	Register(key string, binding domain.TriggerBinding) error
	Lookup(key string) (domain.TriggerBinding, error)
	Unregister(key string)
	Rebuild() error
	RegisterGraph(graph *domain.GraphDefinition)
	UnregisterGraph(graph *domain.GraphDefinition)
	Keys() []string
	Teardown()
}
