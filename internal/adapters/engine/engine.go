package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/eleven-am/flux/internal/domain"
	"github.com/eleven-am/flux/internal/ports"
	json "github.com/eleven-am/flux/internal/xjson"
)

// Engine executes graph snapshots in dependency order. One shared worker
// pool carries node executions for all in-flight runs; scheduling state is
// per-run, so unrelated executions never contend beyond pool capacity.
type Engine struct {
	config      domain.EngineConfig
	executors   ports.ExecutorRegistryPort
	contexts    ports.ContextManagerPort
	emitter     ports.EventEmitterPort
	sink        ports.ResultSinkPort
	credentials ports.CredentialsAccessor
	metrics     *domain.DispatchMetrics
	logger      *slog.Logger

	pool *ants.Pool

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewEngine(config domain.EngineConfig, executors ports.ExecutorRegistryPort, contexts ports.ContextManagerPort, emitter ports.EventEmitterPort, sink ports.ResultSinkPort, credentials ports.CredentialsAccessor, metrics *domain.DispatchMetrics, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = domain.NewDispatchMetrics()
	}

	pool, err := ants.NewPool(config.WorkerCount)
	if err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to create worker pool",
			Details: map[string]interface{}{"worker_count": config.WorkerCount},
			Err:     err,
		}
	}

	return &Engine{
		config:      config,
		executors:   executors,
		contexts:    contexts,
		emitter:     emitter,
		sink:        sink,
		credentials: credentials,
		metrics:     metrics,
		logger:      logger.With("component", "engine"),
		pool:        pool,
		cancels:     make(map[string]context.CancelFunc),
	}, nil
}

// ExecuteFromTrigger runs every affected node of the snapshot, reporting
// each transition to the context manager synchronously, and finalizes the
// execution result. It blocks until the run is terminal; the dispatcher
// invokes it from a goroutine.
func (e *Engine) ExecuteFromTrigger(ctx context.Context, snapshot *domain.GraphDefinition, triggerNodeID, executionID string, payload json.RawMessage, affected map[string]struct{}) *domain.ExecutionResult {
	startedAt := time.Now()

	var runCtx context.Context
	var cancel context.CancelFunc
	if e.config.ExecutionTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.config.ExecutionTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	e.mu.Lock()
	e.cancels[executionID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, executionID)
		e.mu.Unlock()
	}()

	e.logger.Debug("starting execution",
		"execution_id", executionID,
		"graph_id", snapshot.ID,
		"trigger_node_id", triggerNodeID,
		"affected_nodes", len(affected))

	r := newRun(e, snapshot, triggerNodeID, executionID, payload, affected)
	status := r.execute(runCtx)

	result := r.result(status, startedAt)

	if err := e.contexts.CompleteExecution(executionID, status); err != nil {
		e.logger.Error("failed to complete execution context",
			"execution_id", executionID,
			"error", err)
	}

	switch status {
	case domain.ExecutionStatusCompleted:
		e.metrics.IncrementExecutionsCompleted()
		e.emit(domain.EventExecutionCompleted, domain.ExecutionCompletedEvent{
			ExecutionID: executionID,
			GraphID:     snapshot.ID,
			Success:     true,
			Duration:    result.Duration,
			CompletedAt: result.FinishedAt,
		})
	case domain.ExecutionStatusFailed:
		e.metrics.IncrementExecutionsFailed()
		e.emit(domain.EventExecutionFailed, domain.ExecutionErrorEvent{
			ExecutionID: executionID,
			GraphID:     snapshot.ID,
			FailedNode:  r.failedNode,
			Error:       result.Error,
			FailedAt:    result.FinishedAt,
		})
	case domain.ExecutionStatusCancelled:
		e.metrics.IncrementExecutionsCancelled()
		e.emit(domain.EventExecutionCancelled, domain.ExecutionCancelledEvent{
			ExecutionID: executionID,
			GraphID:     snapshot.ID,
			CancelledAt: result.FinishedAt,
		})
	}

	e.persistResult(result, snapshot)

	e.logger.Info("execution finished",
		"execution_id", executionID,
		"graph_id", snapshot.ID,
		"status", status,
		"duration", result.Duration)

	return result
}

// CancelExecution cancels a run in flight. Returns false when no such run
// is currently executing.
func (e *Engine) CancelExecution(executionID string) bool {
	e.mu.Lock()
	cancel, exists := e.cancels[executionID]
	e.mu.Unlock()

	if !exists {
		return false
	}

	e.logger.Debug("cancelling execution", "execution_id", executionID)
	cancel()
	return true
}

func (e *Engine) Stop() {
	e.mu.Lock()
	for executionID, cancel := range e.cancels {
		e.logger.Debug("cancelling execution on shutdown", "execution_id", executionID)
		cancel()
	}
	e.mu.Unlock()

	e.pool.Release()
	e.logger.Debug("engine stopped")
}

// submitNode hands one node execution to the worker pool. The worker owns
// only its pre-built inputs and reports back through the run's buffered
// completions channel, so a send never blocks an abandoned run.
func (e *Engine) submitNode(ctx context.Context, r *run, nodeID string, inputs map[string]json.RawMessage) error {
	node, ok := r.snapshot.Node(nodeID)
	if !ok {
		return domain.Error{
			Type:    domain.ErrorTypeNotFound,
			Message: "node missing from graph snapshot",
			Details: map[string]interface{}{"node_id": nodeID},
		}
	}

	executor, err := e.executors.GetExecutor(node.Type)
	if err != nil {
		return err
	}

	submitErr := e.pool.Submit(func() {
		r.completions <- e.executeNode(ctx, r, node, executor, inputs)
	})
	if submitErr != nil {
		return domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to submit node to worker pool",
			Details: map[string]interface{}{"node_id": nodeID},
			Err:     submitErr,
		}
	}

	return nil
}

func (e *Engine) executeNode(ctx context.Context, r *run, node *domain.GraphNode, executor ports.ExecutorPort, inputs map[string]json.RawMessage) nodeOutcome {
	if err := e.contexts.SetNodeRunning(r.executionID, node.ID); err != nil {
		// The run settled before this worker got scheduled; never execute a
		// node on behalf of a terminal context.
		e.logger.Debug("skipping node for finished execution",
			"execution_id", r.executionID,
			"node_id", node.ID,
			"error", err)
		return nodeOutcome{nodeID: node.ID, err: err}
	}

	e.metrics.IncrementNodesExecuted()
	e.emit(domain.EventNodeStarted, domain.NodeStartedEvent{
		ExecutionID: r.executionID,
		GraphID:     r.snapshot.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		StartedAt:   time.Now(),
	})

	nodeCtx := ctx
	var cancel context.CancelFunc
	if e.config.NodeTimeout > 0 {
		nodeCtx, cancel = context.WithTimeout(ctx, e.config.NodeTimeout)
		defer cancel()
	}

	startTime := time.Now()
	output, err := executor.Execute(nodeCtx, ports.ExecutionInput{
		ExecutionID: r.executionID,
		NodeID:      node.ID,
		Inputs:      inputs,
		Parameters:  node.Parameters,
		Credentials: e.credentials,
	})
	duration := time.Since(startTime)

	if err != nil {
		if nodeCtx.Err() == context.DeadlineExceeded {
			e.logger.Warn("node execution timed out",
				"execution_id", r.executionID,
				"node_id", node.ID,
				"timeout", e.config.NodeTimeout)
			err = domain.Error{
				Type:    domain.ErrorTypeTimeout,
				Message: "node execution exceeded timeout",
				Details: map[string]interface{}{
					"node_id": node.ID,
					"timeout": e.config.NodeTimeout.String(),
				},
				Err: domain.ErrNodeTimeout,
			}
		}
		return nodeOutcome{nodeID: node.ID, err: err, duration: duration}
	}

	outputs := normalizeOutput(output)
	return nodeOutcome{nodeID: node.ID, output: outputs, duration: duration}
}

func normalizeOutput(output *ports.ExecutionOutput) map[string]json.RawMessage {
	if output == nil || len(output.Outputs) == 0 {
		return map[string]json.RawMessage{domain.DefaultOutputPort: json.RawMessage(`{}`)}
	}
	return output.Outputs
}

func (e *Engine) persistResult(result *domain.ExecutionResult, snapshot *domain.GraphDefinition) {
	if e.sink == nil {
		return
	}

	// Best effort: completion never depends on the sink.
	if err := e.sink.PersistResult(context.Background(), result, snapshot); err != nil {
		e.logger.Warn("failed to persist execution result",
			"execution_id", result.ExecutionID,
			"graph_id", result.GraphID,
			"error", err)
	}
}

func (e *Engine) emit(eventType domain.EventType, payload interface{}) {
	if e.emitter != nil {
		e.emitter.Emit(eventType, payload)
	}
}

func (e *Engine) emitNodeCompleted(executionID string, snapshot *domain.GraphDefinition, nodeID string, duration time.Duration) {
	node, _ := snapshot.Node(nodeID)
	nodeType := ""
	if node != nil {
		nodeType = node.Type
	}
	e.emit(domain.EventNodeCompleted, domain.NodeCompletedEvent{
		ExecutionID: executionID,
		GraphID:     snapshot.ID,
		NodeID:      nodeID,
		NodeType:    nodeType,
		Duration:    duration,
		CompletedAt: time.Now(),
	})
}

func (e *Engine) emitNodeError(executionID string, snapshot *domain.GraphDefinition, nodeID string, nodeErr error) {
	node, _ := snapshot.Node(nodeID)
	nodeType := ""
	if node != nil {
		nodeType = node.Type
	}
	e.emit(domain.EventNodeError, domain.NodeErrorEvent{
		ExecutionID: executionID,
		GraphID:     snapshot.ID,
		NodeID:      nodeID,
		NodeType:    nodeType,
		Error:       nodeErr.Error(),
		FailedAt:    time.Now(),
	})
}
