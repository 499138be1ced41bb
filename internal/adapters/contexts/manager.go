package contexts

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/eleven-am/flux/internal/domain"
	json "github.com/eleven-am/flux/internal/xjson"
)

// Manager owns one isolated ExecutionContext per run, keyed by execution id,
// plus an explicit per-consumer "current" pointer used only to filter
// queries. There is no flat node-keyed state shared across runs and no
// implicit most-recent fallback: the pointer is set explicitly or queries
// report "not participating".
type Manager struct {
	retention domain.RetentionConfig
	logger    *slog.Logger

	mu       sync.RWMutex
	contexts map[string]*domain.ExecutionContext
	current  map[string]string
}

func NewManager(retention domain.RetentionConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		retention: retention,
		logger:    logger.With("component", "context-manager"),
		contexts:  make(map[string]*domain.ExecutionContext),
		current:   make(map[string]string),
	}
}

func (m *Manager) StartExecution(executionID string, binding domain.TriggerBinding, affectedNodeIDs map[string]struct{}) (*domain.ExecutionContext, error) {
	if executionID == "" {
		return nil, domain.Error{
			Type:    domain.ErrorTypeInvalidInput,
			Message: "execution id cannot be empty",
			Err:     domain.ErrInvalidInput,
		}
	}

	affected := make(map[string]struct{}, len(affectedNodeIDs))
	nodeStates := make(map[string]*domain.NodeState, len(affectedNodeIDs))
	for nodeID := range affectedNodeIDs {
		affected[nodeID] = struct{}{}
		nodeStates[nodeID] = &domain.NodeState{
			NodeID: nodeID,
			Status: domain.NodeStatusIdle,
		}
	}

	execution := &domain.ExecutionContext{
		ExecutionID:     executionID,
		GraphID:         binding.GraphID,
		TriggerID:       binding.TriggerID,
		TriggerNodeID:   binding.TriggerNodeID,
		AffectedNodeIDs: affected,
		Status:          domain.ExecutionStatusRunning,
		NodeStates:      nodeStates,
		StartedAt:       time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.contexts[executionID]; exists {
		return nil, domain.Error{
			Type:    domain.ErrorTypeConflict,
			Message: "execution context already exists",
			Details: map[string]interface{}{"execution_id": executionID},
		}
	}

	m.contexts[executionID] = execution

	m.logger.Debug("execution context created",
		"execution_id", executionID,
		"graph_id", binding.GraphID,
		"affected_nodes", len(affected))

	return execution, nil
}

func (m *Manager) SetCurrentExecution(consumerID, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.contexts[executionID]; !exists {
		return domain.NewContextNotFoundError(executionID)
	}

	m.current[consumerID] = executionID
	m.logger.Debug("current execution set",
		"consumer_id", consumerID,
		"execution_id", executionID)
	return nil
}

func (m *Manager) ClearCurrentExecution(consumerID string) {
	m.mu.Lock()
	delete(m.current, consumerID)
	m.mu.Unlock()
}

func (m *Manager) SetNodeQueued(executionID, nodeID string) error {
	return m.updateNode(executionID, nodeID, func(state *domain.NodeState) {
		state.Status = domain.NodeStatusQueued
	})
}

func (m *Manager) SetNodeRunning(executionID, nodeID string) error {
	return m.updateNode(executionID, nodeID, func(state *domain.NodeState) {
		now := time.Now()
		state.Status = domain.NodeStatusRunning
		state.StartTime = &now
	})
}

func (m *Manager) SetNodeCompleted(executionID, nodeID string, output map[string]json.RawMessage) error {
	return m.updateNode(executionID, nodeID, func(state *domain.NodeState) {
		now := time.Now()
		state.Status = domain.NodeStatusCompleted
		state.EndTime = &now
		state.Output = output
	})
}

func (m *Manager) SetNodeError(executionID, nodeID string, nodeErr error) error {
	return m.updateNode(executionID, nodeID, func(state *domain.NodeState) {
		now := time.Now()
		state.Status = domain.NodeStatusError
		state.EndTime = &now
		if nodeErr != nil {
			state.Error = nodeErr.Error()
		}
	})
}

func (m *Manager) SetNodeSkipped(executionID, nodeID string) error {
	return m.updateNode(executionID, nodeID, func(state *domain.NodeState) {
		now := time.Now()
		state.Status = domain.NodeStatusSkipped
		state.EndTime = &now
	})
}

// updateNode applies a mutation to one node's entry. Updates for nodes
// outside the context's affected set are rejected and logged; this is the
// guard that keeps a result from one run out of another. Terminal contexts
// and terminal node states are frozen: a worker whose task was still pending
// when the run was cancelled must not resurrect a node that was already
// marked skipped, nor touch a context that settled.
func (m *Manager) updateNode(executionID, nodeID string, mutate func(*domain.NodeState)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	execution, exists := m.contexts[executionID]
	if !exists {
		return domain.NewContextNotFoundError(executionID)
	}

	if execution.Status.IsTerminal() {
		m.logger.Debug("rejected node update on terminal execution",
			"execution_id", executionID,
			"node_id", nodeID,
			"status", execution.Status)
		return domain.Error{
			Type:    domain.ErrorTypeConflict,
			Message: "execution already reached a terminal status",
			Details: map[string]interface{}{
				"execution_id": executionID,
				"node_id":      nodeID,
				"status":       string(execution.Status),
			},
		}
	}

	if !execution.IsAffected(nodeID) {
		m.logger.Warn("rejected node update outside affected set",
			"execution_id", executionID,
			"node_id", nodeID,
			"graph_id", execution.GraphID)
		return domain.Error{
			Type:    domain.ErrorTypeInvalidInput,
			Message: "node is not part of this execution",
			Details: map[string]interface{}{
				"execution_id": executionID,
				"node_id":      nodeID,
			},
			Err: domain.ErrInvalidInput,
		}
	}

	state := execution.NodeStates[nodeID]
	if state.Status.IsTerminal() {
		m.logger.Debug("rejected update on terminal node",
			"execution_id", executionID,
			"node_id", nodeID,
			"status", state.Status)
		return domain.Error{
			Type:    domain.ErrorTypeConflict,
			Message: "node already reached a terminal status",
			Details: map[string]interface{}{
				"execution_id": executionID,
				"node_id":      nodeID,
				"status":       string(state.Status),
			},
		}
	}

	mutate(state)
	return nil
}

// IsNodeExecutingInCurrent reports true only when all four conditions hold:
// the consumer has a current execution, that execution is running, the node
// belongs to its affected set, and that node's status is running. An
// unrelated context that happens to contain a node with the same id never
// produces a match.
func (m *Manager) IsNodeExecutingInCurrent(consumerID, nodeID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	executionID, exists := m.current[consumerID]
	if !exists {
		return false
	}

	execution, exists := m.contexts[executionID]
	if !exists {
		return false
	}

	if execution.Status != domain.ExecutionStatusRunning {
		return false
	}

	if !execution.IsAffected(nodeID) {
		return false
	}

	return execution.NodeStates[nodeID].Status == domain.NodeStatusRunning
}

func (m *Manager) CompleteExecution(executionID string, status domain.ExecutionStatus) error {
	if !status.IsTerminal() {
		return domain.Error{
			Type:    domain.ErrorTypeInvalidInput,
			Message: "completion status must be terminal",
			Details: map[string]interface{}{"status": string(status)},
			Err:     domain.ErrInvalidInput,
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	execution, exists := m.contexts[executionID]
	if !exists {
		return domain.NewContextNotFoundError(executionID)
	}

	now := time.Now()
	execution.Status = status
	execution.CompletedAt = &now

	m.logger.Debug("execution context completed",
		"execution_id", executionID,
		"graph_id", execution.GraphID,
		"status", status)

	m.evictLocked(execution.GraphID)
	return nil
}

func (m *Manager) ClearExecution(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	execution, exists := m.contexts[executionID]
	if !exists {
		return
	}

	if !execution.Status.IsTerminal() {
		now := time.Now()
		execution.Status = domain.ExecutionStatusCancelled
		execution.CompletedAt = &now
	}

	delete(m.contexts, executionID)
	for consumerID, current := range m.current {
		if current == executionID {
			delete(m.current, consumerID)
		}
	}

	m.logger.Debug("execution context cleared", "execution_id", executionID)
}

// Snapshot returns a deep copy of one context's node states, or nil for an
// unknown or expired execution id. Callers translate nil into an empty
// result, never an error.
func (m *Manager) Snapshot(executionID string) *domain.NodeStatusSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	execution, exists := m.contexts[executionID]
	if !exists {
		return nil
	}

	states := make(map[string]*domain.NodeState, len(execution.NodeStates))
	for nodeID, state := range execution.NodeStates {
		copied := *state
		states[nodeID] = &copied
	}

	return &domain.NodeStatusSnapshot{
		ExecutionID: execution.ExecutionID,
		GraphID:     execution.GraphID,
		Status:      execution.Status,
		NodeStates:  states,
	}
}

// ActiveExecutionForGraph reports whether some run for the graph is still in
// a non-terminal status. Used by conflict policies, never by node queries.
func (m *Manager) ActiveExecutionForGraph(graphID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for executionID, execution := range m.contexts {
		if execution.GraphID == graphID && !execution.Status.IsTerminal() {
			return executionID, true
		}
	}
	return "", false
}

// evictLocked enforces the bounded retention policy for one graph: keep the
// N most recent terminal contexts inside the retention window, drop the
// rest. Running contexts are never touched. Caller holds m.mu.
func (m *Manager) evictLocked(graphID string) {
	type finished struct {
		executionID string
		completedAt time.Time
	}

	var terminal []finished
	for executionID, execution := range m.contexts {
		if execution.GraphID != graphID || !execution.Status.IsTerminal() {
			continue
		}
		completedAt := execution.StartedAt
		if execution.CompletedAt != nil {
			completedAt = *execution.CompletedAt
		}
		terminal = append(terminal, finished{executionID, completedAt})
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].completedAt.After(terminal[j].completedAt)
	})

	cutoff := time.Now().Add(-m.retention.RetentionWindow)
	for i, entry := range terminal {
		if i < m.retention.MaxRetainedPerGraph && (m.retention.RetentionWindow <= 0 || entry.completedAt.After(cutoff)) {
			continue
		}

		delete(m.contexts, entry.executionID)
		for consumerID, current := range m.current {
			if current == entry.executionID {
				delete(m.current, consumerID)
			}
		}

		m.logger.Debug("evicted completed execution context",
			"execution_id", entry.executionID,
			"graph_id", graphID)
	}
}
