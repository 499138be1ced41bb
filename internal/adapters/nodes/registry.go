package nodes

import (
	"log/slog"
	"sync"

	"github.com/eleven-am/flux/internal/domain"
	"github.com/eleven-am/flux/internal/ports"
)

// ExecutorRegistry maps a node-type string to its ExecutorPort
// implementation. The engine resolves every node through this map and holds
// no per-type logic itself.
type ExecutorRegistry struct {
	executors map[string]ports.ExecutorPort
	mu        sync.RWMutex
	logger    *slog.Logger
}

func NewExecutorRegistry(logger *slog.Logger) *ExecutorRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	return &ExecutorRegistry{
		executors: make(map[string]ports.ExecutorPort),
		logger:    logger.With("component", "executor-registry"),
	}
}

func (r *ExecutorRegistry) RegisterExecutor(nodeType string, executor ports.ExecutorPort) error {
	if executor == nil {
		return ports.ExecutorRegistrationError{
			NodeType: nodeType,
			Reason:   "executor cannot be nil",
		}
	}

	if nodeType == "" {
		return ports.ExecutorRegistrationError{
			NodeType: nodeType,
			Reason:   "node type cannot be empty",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[nodeType]; exists {
		r.logger.Warn("executor registration conflict detected", "node_type", nodeType)
		return ports.ExecutorRegistrationError{
			NodeType: nodeType,
			Reason:   "executor already registered",
		}
	}

	r.executors[nodeType] = executor
	r.logger.Info("executor registered", "node_type", nodeType)
	return nil
}

func (r *ExecutorRegistry) GetExecutor(nodeType string) (ports.ExecutorPort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, exists := r.executors[nodeType]
	if !exists {
		r.logger.Debug("executor not found", "node_type", nodeType)
		return nil, domain.Error{
			Type:    domain.ErrorTypeNotFound,
			Message: "no executor registered for node type",
			Details: map[string]interface{}{"node_type": nodeType},
		}
	}

	return executor, nil
}

func (r *ExecutorRegistry) ListExecutors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodeTypes := make([]string, 0, len(r.executors))
	for nodeType := range r.executors {
		nodeTypes = append(nodeTypes, nodeType)
	}
	return nodeTypes
}

func (r *ExecutorRegistry) UnregisterExecutor(nodeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[nodeType]; !exists {
		r.logger.Warn("attempt to unregister unknown executor", "node_type", nodeType)
		return domain.Error{
			Type:    domain.ErrorTypeNotFound,
			Message: "no executor registered for node type",
			Details: map[string]interface{}{"node_type": nodeType},
		}
	}

	delete(r.executors, nodeType)
	r.logger.Info("executor unregistered", "node_type", nodeType)
	return nil
}

func (r *ExecutorRegistry) HasExecutor(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.executors[nodeType]
	return exists
}
