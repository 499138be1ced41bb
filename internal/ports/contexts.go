package ports

import (
	"github.com/eleven-am/flux/internal/domain"
	json "github.com/eleven-am/flux/internal/xjson"
)

// ContextManagerPort owns one isolated state record per run. Updates are
// accepted only for nodes inside the context's affected set; everything else
// is rejected so state from one run can never leak into another.
type ContextManagerPort interface {
	StartExecution(executionID string, binding domain.TriggerBinding, affectedNodeIDs map[string]struct{}) (*domain.ExecutionContext, error)

	SetCurrentExecution(consumerID, executionID string) error
	ClearCurrentExecution(consumerID string)

	SetNodeQueued(executionID, nodeID string) error
	SetNodeRunning(executionID, nodeID string) error
	SetNodeCompleted(executionID, nodeID string, output map[string]json.RawMessage) error
	SetNodeError(executionID, nodeID string, nodeErr error) error
	SetNodeSkipped(executionID, nodeID string) error

	IsNodeExecutingInCurrent(consumerID, nodeID string) bool

	CompleteExecution(executionID string, status domain.ExecutionStatus) error
	ClearExecution(executionID string)

	Snapshot(executionID string) *domain.NodeStatusSnapshot
	ActiveExecutionForGraph(graphID string) (string, bool)
}
