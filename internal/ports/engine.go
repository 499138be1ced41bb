package ports

import (
	"context"

	"github.com/eleven-am/flux/internal/domain"
	json "github.com/eleven-am/flux/internal/xjson"
)

type EnginePort interface {
	// ExecuteFromTrigger runs every affected node of the snapshot in
	// dependency order and finalizes the execution result. The affected set
	// is the one frozen into the execution context at dispatch time. It
	// blocks until the run reaches a terminal status; the dispatcher calls
	// it from a goroutine.
	ExecuteFromTrigger(ctx context.Context, snapshot *domain.GraphDefinition, triggerNodeID, executionID string, payload json.RawMessage, affectedNodeIDs map[string]struct{}) *domain.ExecutionResult

	CancelExecution(executionID string) bool
	Stop()
}

type DispatcherPort interface {
	Dispatch(triggerKey string, payload json.RawMessage, observe bool) (*domain.DispatchAck, error)
	DispatchManual(graphID, triggerNodeID string, payload json.RawMessage) (*domain.DispatchAck, error)
	CancelExecution(executionID string) error
	Stop()
}
