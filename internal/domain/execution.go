package domain

import (
	"time"

	json "github.com/eleven-am/flux/internal/xjson"
)

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

type NodeStatus string

const (
	NodeStatusIdle      NodeStatus = "idle"
	NodeStatusQueued    NodeStatus = "queued"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusError     NodeStatus = "error"
	NodeStatusSkipped   NodeStatus = "skipped"
)

func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeStatusCompleted, NodeStatusError, NodeStatusSkipped:
		return true
	}
	return false
}

// NodeState tracks one node's progress within a single execution. Output is
// keyed by output port name.
type NodeState struct {
	NodeID    string                     `json:"node_id"`
	Status    NodeStatus                 `json:"status"`
	StartTime *time.Time                 `json:"start_time,omitempty"`
	EndTime   *time.Time                 `json:"end_time,omitempty"`
	Output    map[string]json.RawMessage `json:"output,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// ExecutionContext is the isolated state record for one run. AffectedNodeIDs
// is computed once at creation and never changes, even if the live graph is
// edited mid-run.
type ExecutionContext struct {
	ExecutionID     string                `json:"execution_id"`
	GraphID         string                `json:"graph_id"`
	TriggerID       string                `json:"trigger_id"`
	TriggerNodeID   string                `json:"trigger_node_id"`
	AffectedNodeIDs map[string]struct{}   `json:"-"`
	Status          ExecutionStatus       `json:"status"`
	NodeStates      map[string]*NodeState `json:"node_states"`
	StartedAt       time.Time             `json:"started_at"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
}

func (c *ExecutionContext) IsAffected(nodeID string) bool {
	_, ok := c.AffectedNodeIDs[nodeID]
	return ok
}

// NodeResult is a node's final record inside an ExecutionResult.
type NodeResult struct {
	NodeID   string                     `json:"node_id"`
	Status   NodeStatus                 `json:"status"`
	Output   map[string]json.RawMessage `json:"output,omitempty"`
	Error    string                     `json:"error,omitempty"`
	Duration time.Duration              `json:"duration"`
}

// ExecutionResult is written once when a run reaches a terminal status and
// is immutable thereafter.
type ExecutionResult struct {
	ExecutionID string                 `json:"execution_id"`
	GraphID     string                 `json:"graph_id"`
	Success     bool                   `json:"success"`
	NodeResults map[string]*NodeResult `json:"node_results"`
	Duration    time.Duration          `json:"duration"`
	Error       string                 `json:"error,omitempty"`
	FinishedAt  time.Time              `json:"finished_at"`
}

// NodeStatusSnapshot is the isolation-filtered view returned by status
// queries; it never exposes the live context.
type NodeStatusSnapshot struct {
	ExecutionID string                `json:"execution_id"`
	GraphID     string                `json:"graph_id"`
	Status      ExecutionStatus       `json:"status"`
	NodeStates  map[string]*NodeState `json:"node_states"`
}

// DispatchAck is the synchronous answer to a trigger event: either an
// accepted execution id or a mapped rejection.
type DispatchAck struct {
	ExecutionID string `json:"execution_id"`
	GraphID     string `json:"graph_id"`
	Accepted    bool   `json:"accepted"`
	Queued      bool   `json:"queued,omitempty"`
}
