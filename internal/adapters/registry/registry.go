package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eleven-am/flux/internal/domain"
	"github.com/eleven-am/flux/internal/ports"
)

// TriggerRegistry is the process-wide map from trigger key to binding.
// Lookups are O(1) by exact key; the map is fully rebuildable from the
// persisted active graphs at any time.
type TriggerRegistry struct {
	store  ports.GraphStorePort
	logger *slog.Logger

	mu       sync.RWMutex
	bindings map[string]domain.TriggerBinding
}

func NewTriggerRegistry(store ports.GraphStorePort, logger *slog.Logger) *TriggerRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	return &TriggerRegistry{
		store:    store,
		logger:   logger.With("component", "trigger-registry"),
		bindings: make(map[string]domain.TriggerBinding),
	}
}

func (r *TriggerRegistry) Register(key string, binding domain.TriggerBinding) error {
	if key == "" {
		return domain.Error{
			Type:    domain.ErrorTypeInvalidInput,
			Message: "trigger key cannot be empty",
			Err:     domain.ErrInvalidInput,
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.bindings[key]; exists {
		r.logger.Warn("overwriting existing trigger registration",
			"trigger_key", key,
			"previous_graph_id", existing.GraphID,
			"graph_id", binding.GraphID)
	}

	binding.TriggerKey = key
	r.bindings[key] = binding

	r.logger.Debug("trigger registered",
		"trigger_key", key,
		"graph_id", binding.GraphID,
		"trigger_node_id", binding.TriggerNodeID,
		"trigger_type", binding.TriggerType)

	return nil
}

func (r *TriggerRegistry) Lookup(key string) (domain.TriggerBinding, error) {
	r.mu.RLock()
	binding, exists := r.bindings[key]
	r.mu.RUnlock()

	if !exists {
		r.logger.Debug("trigger lookup miss", "trigger_key", key)
		return domain.TriggerBinding{}, domain.NewTriggerNotFoundError(key)
	}

	return binding, nil
}

func (r *TriggerRegistry) Unregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bindings[key]; !exists {
		return
	}

	delete(r.bindings, key)
	r.logger.Debug("trigger unregistered", "trigger_key", key)
}

// Rebuild repopulates the map from every persisted active graph. Safe to
// call repeatedly; two consecutive rebuilds yield an identical entry set.
func (r *TriggerRegistry) Rebuild() error {
	graphs, err := r.store.ListActiveGraphs(context.Background())
	if err != nil {
		return domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to list active graphs for rebuild",
			Err:     err,
		}
	}

	r.mu.Lock()
	r.bindings = make(map[string]domain.TriggerBinding)
	count := 0
	for _, graph := range graphs {
		for _, binding := range bindingsForGraph(graph) {
			r.bindings[binding.TriggerKey] = binding
			count++
		}
	}
	r.mu.Unlock()

	r.logger.Info("trigger registry rebuilt",
		"graphs", len(graphs),
		"triggers", count)

	return nil
}

// RegisterGraph upserts every trigger of a graph; called on activation and
// on save of an already active graph.
func (r *TriggerRegistry) RegisterGraph(graph *domain.GraphDefinition) {
	for _, binding := range bindingsForGraph(graph) {
		if err := r.Register(binding.TriggerKey, binding); err != nil {
			r.logger.Warn("skipping trigger with invalid key",
				"graph_id", graph.ID,
				"trigger_id", binding.TriggerID,
				"error", err)
		}
	}
}

func (r *TriggerRegistry) UnregisterGraph(graph *domain.GraphDefinition) {
	for _, binding := range bindingsForGraph(graph) {
		r.Unregister(binding.TriggerKey)
	}
}

func (r *TriggerRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.bindings))
	for key := range r.bindings {
		keys = append(keys, key)
	}
	return keys
}

func (r *TriggerRegistry) Teardown() {
	r.mu.Lock()
	r.bindings = make(map[string]domain.TriggerBinding)
	r.mu.Unlock()

	r.logger.Debug("trigger registry torn down")
}

func bindingsForGraph(graph *domain.GraphDefinition) []domain.TriggerBinding {
	bindings := make([]domain.TriggerBinding, 0, len(graph.Triggers))
	for _, trigger := range graph.Triggers {
		if !graph.HasNode(trigger.NodeID) {
			continue
		}
		bindings = append(bindings, domain.TriggerBinding{
			TriggerKey:    trigger.TriggerKey(graph.ID),
			GraphID:       graph.ID,
			TriggerID:     trigger.ID,
			TriggerNodeID: trigger.NodeID,
			TriggerType:   trigger.Type,
			Settings:      trigger.Settings,
		})
	}
	return bindings
}
