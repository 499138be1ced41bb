// Package flux provides a trigger dispatch and execution engine for
// user-defined automation graphs.
//
// A graph is a set of nodes joined by directed data connections. Flux maps
// an external event (a webhook call, a timer, a manual request) to the
// right graph and entry node in O(1), decides how overlapping events for
// the same graph are scheduled, and executes the reachable nodes in
// dependency order with fully isolated per-run state. It provides:
//   - A rebuildable trigger registry keyed by webhook identifier
//   - Pluggable conflict policies (queue, reject, parallel-isolated)
//   - Per-execution state isolation with an explicit "current" pointer
//   - Named output ports, per-node continue-on-fail, node and run timeouts
//   - Persistence of graphs and finalized results, webhook ingress, and a
//     lifecycle event hook
//
// Basic usage:
//
//	manager, err := flux.New(&flux.Config{Logger: logger})
//	manager.RegisterExecutor("http.request", &HTTPRequestExecutor{})
//	manager.Start(context.Background())
//
//	manager.SaveGraph(ctx, graph)
//	manager.ActivateGraph(ctx, graph.ID)
//
//	ack, err := manager.Dispatch("order-hook", payload)
//	status := manager.GetExecutionStatus(ack.ExecutionID)
package flux

import (
	"github.com/eleven-am/flux/internal/core"
	"github.com/eleven-am/flux/internal/domain"
	"github.com/eleven-am/flux/internal/ports"
)

// Manager owns the trigger registry, dispatcher, execution engine and their
// collaborator adapters.
type Manager = core.Manager

// Config is the full configuration object; zero values fall back to
// DefaultConfig.
type Config = domain.Config

// GraphDefinition describes a graph: nodes, connections and triggers.
type GraphDefinition = domain.GraphDefinition

// GraphNode is one step in a graph with an opaque parameter blob.
type GraphNode = domain.GraphNode

// Connection is a directed data edge between two node ports.
type Connection = domain.Connection

// TriggerDefinition binds an external event to a node in a graph.
type TriggerDefinition = domain.TriggerDefinition

// TriggerBinding is a resolved registry entry for a trigger key.
type TriggerBinding = domain.TriggerBinding

// DispatchAck is the synchronous answer to a trigger event.
type DispatchAck = domain.DispatchAck

// ExecutionResult is the immutable record of one finished run.
type ExecutionResult = domain.ExecutionResult

// NodeResult is one node's terminal record inside an ExecutionResult.
type NodeResult = domain.NodeResult

// NodeStatusSnapshot is the isolation-filtered per-node status view.
type NodeStatusSnapshot = domain.NodeStatusSnapshot

// NodeState tracks a node's progress within a single execution.
type NodeState = domain.NodeState

// ExecutionInput carries a node's input payloads, parameters and
// credential accessor.
type ExecutionInput = ports.ExecutionInput

// ExecutionOutput maps output port names to payloads.
type ExecutionOutput = ports.ExecutionOutput

// Executor is the single contract every node type implements.
type Executor = ports.ExecutorPort

// CredentialsAccessor resolves stored credentials by name.
type CredentialsAccessor = ports.CredentialsAccessor

// DispatchMetrics is a snapshot of the engine's execution counters.
type DispatchMetrics = domain.DispatchMetrics

// EventType identifies a lifecycle event emitted through Subscribe.
type EventType = domain.EventType

// Lifecycle event payloads.
type ExecutionStartedEvent = domain.ExecutionStartedEvent
type ExecutionCompletedEvent = domain.ExecutionCompletedEvent
type ExecutionErrorEvent = domain.ExecutionErrorEvent
type ExecutionCancelledEvent = domain.ExecutionCancelledEvent
type NodeStartedEvent = domain.NodeStartedEvent
type NodeCompletedEvent = domain.NodeCompletedEvent
type NodeErrorEvent = domain.NodeErrorEvent
type TriggerObservedEvent = domain.TriggerObservedEvent

// Trigger types.
const (
	TriggerTypeWebhook  = domain.TriggerTypeWebhook
	TriggerTypeSchedule = domain.TriggerTypeSchedule
	TriggerTypeManual   = domain.TriggerTypeManual
)

// Conflict policies governing overlapping events for the same graph.
const (
	ConflictPolicyQueue            = domain.ConflictPolicyQueue
	ConflictPolicyReject           = domain.ConflictPolicyReject
	ConflictPolicyParallelIsolated = domain.ConflictPolicyParallelIsolated
)

// Node statuses.
const (
	NodeStatusIdle      = domain.NodeStatusIdle
	NodeStatusQueued    = domain.NodeStatusQueued
	NodeStatusRunning   = domain.NodeStatusRunning
	NodeStatusCompleted = domain.NodeStatusCompleted
	NodeStatusError     = domain.NodeStatusError
	NodeStatusSkipped   = domain.NodeStatusSkipped
)

// Execution statuses.
const (
	ExecutionStatusRunning   = domain.ExecutionStatusRunning
	ExecutionStatusCompleted = domain.ExecutionStatusCompleted
	ExecutionStatusFailed    = domain.ExecutionStatusFailed
	ExecutionStatusCancelled = domain.ExecutionStatusCancelled
)

// Event type constants for Subscribe.
const (
	EventExecutionStarted   = domain.EventExecutionStarted
	EventExecutionCompleted = domain.EventExecutionCompleted
	EventExecutionFailed    = domain.EventExecutionFailed
	EventExecutionCancelled = domain.EventExecutionCancelled
	EventExecutionQueued    = domain.EventExecutionQueued
	EventNodeStarted        = domain.EventNodeStarted
	EventNodeCompleted      = domain.EventNodeCompleted
	EventNodeError          = domain.EventNodeError
	EventTriggerObserved    = domain.EventTriggerObserved
)

// MemoryDataDir selects in-memory storage instead of an on-disk database.
const MemoryDataDir = domain.MemoryDataDir

// New creates a Manager from a configuration; nil selects the defaults.
func New(config *Config) (*Manager, error) {
	return core.New(config)
}

// DefaultConfig returns the default configuration: queue conflict policy,
// eight workers, 300s node timeout, bounded retention of ten contexts per
// graph.
func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

// IsTriggerNotFound reports whether an error is a registry miss.
func IsTriggerNotFound(err error) bool {
	return domain.IsTriggerNotFound(err)
}

// IsBusy reports whether a dispatch was rejected by the conflict policy.
func IsBusy(err error) bool {
	return domain.IsBusy(err)
}

// IsContextNotFound reports whether an execution id is unknown or expired.
func IsContextNotFound(err error) bool {
	return domain.IsContextNotFound(err)
}
