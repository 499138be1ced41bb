package domain

import (
	"time"
)

type EventType string

const (
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionCompleted EventType = "execution.completed"
	EventExecutionFailed    EventType = "execution.failed"
	EventExecutionCancelled EventType = "execution.cancelled"
	EventExecutionQueued    EventType = "execution.queued"
	EventNodeStarted        EventType = "node.started"
	EventNodeCompleted      EventType = "node.completed"
	EventNodeError          EventType = "node.error"
	EventTriggerObserved    EventType = "trigger.observed"
)

type ExecutionStartedEvent struct {
	ExecutionID   string    `json:"execution_id"`
	GraphID       string    `json:"graph_id"`
	TriggerID     string    `json:"trigger_id"`
	TriggerNodeID string    `json:"trigger_node_id"`
	AffectedNodes []string  `json:"affected_nodes"`
	StartedAt     time.Time `json:"started_at"`
}

type ExecutionCompletedEvent struct {
	ExecutionID string        `json:"execution_id"`
	GraphID     string        `json:"graph_id"`
	Success     bool          `json:"success"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

type ExecutionErrorEvent struct {
	ExecutionID string    `json:"execution_id"`
	GraphID     string    `json:"graph_id"`
	FailedNode  string    `json:"failed_node"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failed_at"`
}

type ExecutionCancelledEvent struct {
	ExecutionID string    `json:"execution_id"`
	GraphID     string    `json:"graph_id"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type NodeStartedEvent struct {
	ExecutionID string    `json:"execution_id"`
	GraphID     string    `json:"graph_id"`
	NodeID      string    `json:"node_id"`
	NodeType    string    `json:"node_type"`
	StartedAt   time.Time `json:"started_at"`
}

type NodeCompletedEvent struct {
	ExecutionID string        `json:"execution_id"`
	GraphID     string        `json:"graph_id"`
	NodeID      string        `json:"node_id"`
	NodeType    string        `json:"node_type"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

type NodeErrorEvent struct {
	ExecutionID string    `json:"execution_id"`
	GraphID     string    `json:"graph_id"`
	NodeID      string    `json:"node_id"`
	NodeType    string    `json:"node_type"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failed_at"`
}

// TriggerObservedEvent correlates an accepted dispatch with its graph for
// external live monitoring. Emitted only when the observe flag is set.
type TriggerObservedEvent struct {
	ExecutionID string    `json:"execution_id"`
	GraphID     string    `json:"graph_id"`
	TriggerKey  string    `json:"trigger_key"`
	ObservedAt  time.Time `json:"observed_at"`
}
