package engine

import (
	"context"
	"time"

	"github.com/eleven-am/flux/internal/domain"
	json "github.com/eleven-am/flux/internal/xjson"
)

type nodeOutcome struct {
	nodeID   string
	output   map[string]json.RawMessage
	err      error
	duration time.Duration
}

// run holds the scheduling state for one execution. All maps are owned by
// the run loop goroutine; pool workers only receive inputs built before
// submission and report back through the completions channel.
type run struct {
	engine        *Engine
	snapshot      *domain.GraphDefinition
	executionID   string
	triggerNodeID string
	payload       json.RawMessage
	affected      map[string]struct{}

	incoming map[string][]domain.Connection

	states    map[string]domain.NodeStatus
	outputs   map[string]map[string]json.RawMessage
	errors    map[string]string
	durations map[string]time.Duration
	inFlight  int

	failedNode  string
	completions chan nodeOutcome
}

func newRun(e *Engine, snapshot *domain.GraphDefinition, triggerNodeID, executionID string, payload json.RawMessage, affected map[string]struct{}) *run {
	incoming := make(map[string][]domain.Connection)
	for _, conn := range snapshot.Connections {
		if _, ok := affected[conn.SourceNodeID]; !ok {
			continue
		}
		if _, ok := affected[conn.TargetNodeID]; !ok {
			continue
		}
		incoming[conn.TargetNodeID] = append(incoming[conn.TargetNodeID], conn)
	}

	states := make(map[string]domain.NodeStatus, len(affected))
	for nodeID := range affected {
		states[nodeID] = domain.NodeStatusIdle
	}

	return &run{
		engine:        e,
		snapshot:      snapshot,
		executionID:   executionID,
		triggerNodeID: triggerNodeID,
		payload:       payload,
		affected:      affected,
		incoming:      incoming,
		states:        states,
		outputs:       make(map[string]map[string]json.RawMessage, len(affected)),
		errors:        make(map[string]string),
		durations:     make(map[string]time.Duration, len(affected)),
		completions:   make(chan nodeOutcome, len(affected)),
	}
}

func (r *run) remaining() int {
	count := 0
	for _, status := range r.states {
		if !status.IsTerminal() {
			count++
		}
	}
	return count
}

// execute drives the run to a terminal status. It returns the execution
// status the context should end in.
func (r *run) execute(ctx context.Context) domain.ExecutionStatus {
	r.scheduleReady(ctx)

	for r.remaining() > 0 {
		select {
		case <-ctx.Done():
			r.abort()
			if ctx.Err() == context.DeadlineExceeded {
				r.engine.logger.Warn("execution timeout exceeded",
					"execution_id", r.executionID,
					"graph_id", r.snapshot.ID)
				return domain.ExecutionStatusFailed
			}
			return domain.ExecutionStatusCancelled

		case outcome := <-r.completions:
			r.applyOutcome(outcome)
			r.scheduleReady(ctx)
		}
	}

	if len(r.errors) > 0 {
		return domain.ExecutionStatusFailed
	}
	return domain.ExecutionStatusCompleted
}

func (r *run) applyOutcome(outcome nodeOutcome) {
	r.inFlight--
	r.durations[outcome.nodeID] = outcome.duration

	if outcome.err != nil {
		r.states[outcome.nodeID] = domain.NodeStatusError
		r.errors[outcome.nodeID] = outcome.err.Error()
		if r.failedNode == "" {
			r.failedNode = outcome.nodeID
		}

		if err := r.engine.contexts.SetNodeError(r.executionID, outcome.nodeID, outcome.err); err != nil {
			r.engine.logger.Error("failed to record node error",
				"execution_id", r.executionID,
				"node_id", outcome.nodeID,
				"error", err)
		}

		r.engine.metrics.IncrementNodesFailed()
		if domain.IsTimeout(outcome.err) {
			r.engine.metrics.IncrementNodesTimedOut()
		}
		r.engine.emitNodeError(r.executionID, r.snapshot, outcome.nodeID, outcome.err)
		return
	}

	r.states[outcome.nodeID] = domain.NodeStatusCompleted
	r.outputs[outcome.nodeID] = outcome.output

	if err := r.engine.contexts.SetNodeCompleted(r.executionID, outcome.nodeID, outcome.output); err != nil {
		r.engine.logger.Error("failed to record node completion",
			"execution_id", r.executionID,
			"node_id", outcome.nodeID,
			"error", err)
	}

	r.engine.metrics.IncrementNodesSucceeded()
	r.engine.emitNodeCompleted(r.executionID, r.snapshot, outcome.nodeID, outcome.duration)
}

// scheduleReady promotes every idle node whose dependencies are satisfied,
// cascades skips from failed upstreams, and breaks scheduling deadlocks
// left behind by cyclic graphs.
func (r *run) scheduleReady(ctx context.Context) {
	for {
		progressed := false

		for nodeID := range r.affected {
			if r.states[nodeID] != domain.NodeStatusIdle {
				continue
			}

			switch r.dependencyState(nodeID) {
			case depsReady:
				r.dispatchNode(ctx, nodeID)
				progressed = true
			case depsBlocked:
				r.skipNode(nodeID)
				progressed = true
			}
		}

		if !progressed {
			break
		}
	}

	// A cyclic subgraph can leave idle nodes waiting on each other with
	// nothing in flight; resolve by skipping the remainder.
	if r.inFlight == 0 && r.remaining() > 0 {
		stuck := false
		for nodeID := range r.affected {
			if r.states[nodeID] == domain.NodeStatusIdle {
				stuck = true
				break
			}
		}
		if stuck {
			r.engine.logger.Warn("skipping unschedulable nodes",
				"execution_id", r.executionID,
				"graph_id", r.snapshot.ID)
			for nodeID := range r.affected {
				if r.states[nodeID] == domain.NodeStatusIdle {
					r.skipNode(nodeID)
				}
			}
		}
	}
}

type dependencyState int

const (
	depsWaiting dependencyState = iota
	depsReady
	depsBlocked
)

func (r *run) dependencyState(nodeID string) dependencyState {
	if nodeID == r.triggerNodeID {
		return depsReady
	}

	conns := r.incoming[nodeID]
	for _, conn := range conns {
		sourceStatus := r.states[conn.SourceNodeID]
		switch sourceStatus {
		case domain.NodeStatusSkipped:
			return depsBlocked
		case domain.NodeStatusError:
			source, _ := r.snapshot.Node(conn.SourceNodeID)
			if source == nil || !source.ContinueOnFail {
				return depsBlocked
			}
		case domain.NodeStatusCompleted:
		default:
			return depsWaiting
		}
	}

	return depsReady
}

func (r *run) skipNode(nodeID string) {
	r.states[nodeID] = domain.NodeStatusSkipped

	if err := r.engine.contexts.SetNodeSkipped(r.executionID, nodeID); err != nil {
		r.engine.logger.Error("failed to record node skip",
			"execution_id", r.executionID,
			"node_id", nodeID,
			"error", err)
	}

	r.engine.metrics.IncrementNodesSkipped()
}

// buildInputs assembles a node's input payloads from its upstream outputs,
// routed by (source output port -> target input port). Upstreams that failed
// with continue-on-fail contribute an error-shaped payload instead.
func (r *run) buildInputs(nodeID string) map[string]json.RawMessage {
	if nodeID == r.triggerNodeID {
		payload := r.payload
		if payload == nil {
			payload = json.RawMessage(`{}`)
		}
		return map[string]json.RawMessage{domain.DefaultOutputPort: payload}
	}

	byPort := make(map[string][]json.RawMessage)
	for _, conn := range r.incoming[nodeID] {
		inputPort := conn.TargetInputPort
		if inputPort == "" {
			inputPort = domain.DefaultOutputPort
		}

		if r.states[conn.SourceNodeID] == domain.NodeStatusError {
			byPort[inputPort] = append(byPort[inputPort], errorShapedPayload(conn.SourceNodeID, r.errors[conn.SourceNodeID]))
			continue
		}

		outputPort := conn.SourceOutputPort
		if outputPort == "" {
			outputPort = domain.DefaultOutputPort
		}
		if payload, ok := r.outputs[conn.SourceNodeID][outputPort]; ok {
			byPort[inputPort] = append(byPort[inputPort], payload)
		}
	}

	inputs := make(map[string]json.RawMessage, len(byPort))
	for port, payloads := range byPort {
		inputs[port] = mergePayloads(payloads)
	}
	return inputs
}

func (r *run) dispatchNode(ctx context.Context, nodeID string) {
	r.states[nodeID] = domain.NodeStatusQueued
	if err := r.engine.contexts.SetNodeQueued(r.executionID, nodeID); err != nil {
		r.engine.logger.Error("failed to record node queued",
			"execution_id", r.executionID,
			"node_id", nodeID,
			"error", err)
	}

	inputs := r.buildInputs(nodeID)
	r.inFlight++

	if err := r.engine.submitNode(ctx, r, nodeID, inputs); err != nil {
		r.inFlight--
		r.states[nodeID] = domain.NodeStatusError
		r.errors[nodeID] = err.Error()
		if r.failedNode == "" {
			r.failedNode = nodeID
		}
		if recordErr := r.engine.contexts.SetNodeError(r.executionID, nodeID, err); recordErr != nil {
			r.engine.logger.Error("failed to record node error",
				"execution_id", r.executionID,
				"node_id", nodeID,
				"error", recordErr)
		}
		r.engine.metrics.IncrementNodesFailed()
	}
}

// abort marks every non-terminal node skipped after a cancellation or
// execution-level timeout. In-flight workers still send outcomes into the
// buffered completions channel; they are simply never consumed.
func (r *run) abort() {
	for nodeID := range r.affected {
		if !r.states[nodeID].IsTerminal() {
			r.skipNode(nodeID)
		}
	}
}

func (r *run) result(status domain.ExecutionStatus, startedAt time.Time) *domain.ExecutionResult {
	nodeResults := make(map[string]*domain.NodeResult, len(r.affected))
	for nodeID := range r.affected {
		nodeResults[nodeID] = &domain.NodeResult{
			NodeID:   nodeID,
			Status:   r.states[nodeID],
			Output:   r.outputs[nodeID],
			Error:    r.errors[nodeID],
			Duration: r.durations[nodeID],
		}
	}

	result := &domain.ExecutionResult{
		ExecutionID: r.executionID,
		GraphID:     r.snapshot.ID,
		Success:     status == domain.ExecutionStatusCompleted,
		NodeResults: nodeResults,
		Duration:    time.Since(startedAt),
		FinishedAt:  time.Now(),
	}

	switch {
	case r.failedNode != "":
		result.Error = "node " + r.failedNode + " failed: " + r.errors[r.failedNode]
	case status == domain.ExecutionStatusCancelled:
		result.Error = "execution cancelled"
	case status == domain.ExecutionStatusFailed:
		result.Error = domain.ErrExecutionTimeout.Error()
	}

	return result
}
