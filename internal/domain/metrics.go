package domain

import (
	"sync/atomic"
)

type DispatchMetrics struct {
	TriggersDispatched int64 `json:"triggers_dispatched"`
	TriggersRejected   int64 `json:"triggers_rejected"`
	TriggersQueued     int64 `json:"triggers_queued"`
	TriggersNotFound   int64 `json:"triggers_not_found"`

	ExecutionsCompleted int64 `json:"executions_completed"`
	ExecutionsFailed    int64 `json:"executions_failed"`
	ExecutionsCancelled int64 `json:"executions_cancelled"`

	NodesExecuted  int64 `json:"nodes_executed"`
	NodesSucceeded int64 `json:"nodes_succeeded"`
	NodesFailed    int64 `json:"nodes_failed"`
	NodesSkipped   int64 `json:"nodes_skipped"`
	NodesTimedOut  int64 `json:"nodes_timed_out"`
}

func NewDispatchMetrics() *DispatchMetrics {
	return &DispatchMetrics{}
}

func (m *DispatchMetrics) IncrementTriggersDispatched() {
	atomic.AddInt64(&m.TriggersDispatched, 1)
}

func (m *DispatchMetrics) IncrementTriggersRejected() {
	atomic.AddInt64(&m.TriggersRejected, 1)
}

func (m *DispatchMetrics) IncrementTriggersQueued() {
	atomic.AddInt64(&m.TriggersQueued, 1)
}

func (m *DispatchMetrics) IncrementTriggersNotFound() {
	atomic.AddInt64(&m.TriggersNotFound, 1)
}

func (m *DispatchMetrics) IncrementExecutionsCompleted() {
	atomic.AddInt64(&m.ExecutionsCompleted, 1)
}

func (m *DispatchMetrics) IncrementExecutionsFailed() {
	atomic.AddInt64(&m.ExecutionsFailed, 1)
}

func (m *DispatchMetrics) IncrementExecutionsCancelled() {
	atomic.AddInt64(&m.ExecutionsCancelled, 1)
}

func (m *DispatchMetrics) IncrementNodesExecuted() {
	atomic.AddInt64(&m.NodesExecuted, 1)
}

func (m *DispatchMetrics) IncrementNodesSucceeded() {
	atomic.AddInt64(&m.NodesSucceeded, 1)
}

func (m *DispatchMetrics) IncrementNodesFailed() {
	atomic.AddInt64(&m.NodesFailed, 1)
}

func (m *DispatchMetrics) IncrementNodesSkipped() {
	atomic.AddInt64(&m.NodesSkipped, 1)
}

func (m *DispatchMetrics) IncrementNodesTimedOut() {
	atomic.AddInt64(&m.NodesTimedOut, 1)
}

func (m *DispatchMetrics) GetSnapshot() DispatchMetrics {
	return DispatchMetrics{
		TriggersDispatched:  atomic.LoadInt64(&m.TriggersDispatched),
		TriggersRejected:    atomic.LoadInt64(&m.TriggersRejected),
		TriggersQueued:      atomic.LoadInt64(&m.TriggersQueued),
		TriggersNotFound:    atomic.LoadInt64(&m.TriggersNotFound),
		ExecutionsCompleted: atomic.LoadInt64(&m.ExecutionsCompleted),
		ExecutionsFailed:    atomic.LoadInt64(&m.ExecutionsFailed),
		ExecutionsCancelled: atomic.LoadInt64(&m.ExecutionsCancelled),
		NodesExecuted:       atomic.LoadInt64(&m.NodesExecuted),
		NodesSucceeded:      atomic.LoadInt64(&m.NodesSucceeded),
		NodesFailed:         atomic.LoadInt64(&m.NodesFailed),
		NodesSkipped:        atomic.LoadInt64(&m.NodesSkipped),
		NodesTimedOut:       atomic.LoadInt64(&m.NodesTimedOut),
	}
}
