package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eleven-am/flux/internal/domain"
	"github.com/eleven-am/flux/internal/helpers/graphs"
	"github.com/eleven-am/flux/internal/ports"
	json "github.com/eleven-am/flux/internal/xjson"
)

// invocation is one accepted trigger event waiting to run. Under the queue
// policy invocations for a busy graph are parked here with their execution
// id already assigned; the context is created only when the prior run
// finishes, so the conflict policy always acts before context creation.
type invocation struct {
	executionID string
	binding     domain.TriggerBinding
	snapshot    *domain.GraphDefinition
	payload     json.RawMessage
}

// Dispatcher is the single entry point for external events. Lookup, policy
// decision and context creation happen synchronously; the run itself is
// handed to the engine on a goroutine so new events are never blocked by
// executions in flight.
type Dispatcher struct {
	config   domain.DispatcherConfig
	registry ports.TriggerRegistryPort
	store    ports.GraphStorePort
	contexts ports.ContextManagerPort
	engine   ports.EnginePort
	emitter  ports.EventEmitterPort
	metrics  *domain.DispatchMetrics
	logger   *slog.Logger

	mu      sync.Mutex
	queues  map[string][]*invocation
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(config domain.DispatcherConfig, registry ports.TriggerRegistryPort, store ports.GraphStorePort, contexts ports.ContextManagerPort, engine ports.EnginePort, emitter ports.EventEmitterPort, metrics *domain.DispatchMetrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = domain.NewDispatchMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		config:   config,
		registry: registry,
		store:    store,
		contexts: contexts,
		engine:   engine,
		emitter:  emitter,
		metrics:  metrics,
		logger:   logger.With("component", "dispatcher"),
		queues:   make(map[string][]*invocation),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Dispatch resolves a trigger key and either starts, queues, or rejects a
// run according to the conflict policy. A registry miss returns
// TriggerNotFound synchronously with no context created.
func (d *Dispatcher) Dispatch(triggerKey string, payload json.RawMessage, observe bool) (*domain.DispatchAck, error) {
	binding, err := d.registry.Lookup(triggerKey)
	if err != nil {
		d.metrics.IncrementTriggersNotFound()
		d.logger.Debug("dispatch for unknown trigger", "trigger_key", triggerKey)
		return nil, err
	}

	ack, err := d.accept(binding, payload)
	if err != nil {
		return nil, err
	}

	if observe {
		d.emit(domain.EventTriggerObserved, domain.TriggerObservedEvent{
			ExecutionID: ack.ExecutionID,
			GraphID:     ack.GraphID,
			TriggerKey:  triggerKey,
			ObservedAt:  time.Now(),
		})
	}

	return ack, nil
}

// DispatchManual starts a run from a manual trigger bound to the given node
// without going through a webhook key.
func (d *Dispatcher) DispatchManual(graphID, triggerNodeID string, payload json.RawMessage) (*domain.DispatchAck, error) {
	snapshot, err := d.store.GetGraph(context.Background(), graphID)
	if err != nil {
		return nil, err
	}

	binding := domain.TriggerBinding{
		GraphID:       graphID,
		TriggerNodeID: triggerNodeID,
		TriggerType:   domain.TriggerTypeManual,
	}
	for _, trigger := range snapshot.Triggers {
		if trigger.Type == domain.TriggerTypeManual && trigger.NodeID == triggerNodeID {
			binding.TriggerID = trigger.ID
			binding.Settings = trigger.Settings
			break
		}
	}

	if !snapshot.HasNode(triggerNodeID) {
		return nil, domain.Error{
			Type:    domain.ErrorTypeInvalidInput,
			Message: "trigger node not present in graph",
			Details: map[string]interface{}{
				"graph_id": graphID,
				"node_id":  triggerNodeID,
			},
			Err: domain.ErrInvalidInput,
		}
	}

	return d.acceptSnapshot(binding, snapshot, payload)
}

func (d *Dispatcher) accept(binding domain.TriggerBinding, payload json.RawMessage) (*domain.DispatchAck, error) {
	snapshot, err := d.store.GetGraph(context.Background(), binding.GraphID)
	if err != nil {
		return nil, err
	}
	return d.acceptSnapshot(binding, snapshot, payload)
}

func (d *Dispatcher) acceptSnapshot(binding domain.TriggerBinding, snapshot *domain.GraphDefinition, payload json.RawMessage) (*domain.DispatchAck, error) {
	executionID := uuid.New().String()
	inv := &invocation{
		executionID: executionID,
		binding:     binding,
		snapshot:    snapshot,
		payload:     payload,
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "dispatcher is stopped",
			Err:     domain.ErrNotStarted,
		}
	}

	_, active := d.contexts.ActiveExecutionForGraph(binding.GraphID)
	queuedAhead := len(d.queues[binding.GraphID])

	switch d.config.ConflictPolicy {
	case domain.ConflictPolicyReject:
		if active || queuedAhead > 0 {
			d.mu.Unlock()
			d.metrics.IncrementTriggersRejected()
			d.logger.Debug("dispatch rejected, graph busy",
				"graph_id", binding.GraphID,
				"trigger_key", binding.TriggerKey)
			return nil, domain.NewBusyError(binding.GraphID)
		}

	case domain.ConflictPolicyQueue:
		if active || queuedAhead > 0 {
			if d.config.QueueDepth > 0 && queuedAhead >= d.config.QueueDepth {
				d.mu.Unlock()
				d.metrics.IncrementTriggersRejected()
				d.logger.Warn("dispatch rejected, queue depth exceeded",
					"graph_id", binding.GraphID,
					"queue_depth", d.config.QueueDepth)
				return nil, domain.NewBusyError(binding.GraphID)
			}

			d.queues[binding.GraphID] = append(d.queues[binding.GraphID], inv)
			d.mu.Unlock()

			d.metrics.IncrementTriggersQueued()
			d.logger.Debug("dispatch queued behind active run",
				"graph_id", binding.GraphID,
				"execution_id", executionID,
				"position", queuedAhead+1)
			d.emit(domain.EventExecutionQueued, domain.DispatchAck{
				ExecutionID: executionID,
				GraphID:     binding.GraphID,
				Accepted:    true,
				Queued:      true,
			})

			return &domain.DispatchAck{
				ExecutionID: executionID,
				GraphID:     binding.GraphID,
				Accepted:    true,
				Queued:      true,
			}, nil
		}

	case domain.ConflictPolicyParallelIsolated:
		// Always start a fresh isolated context; node implementations are
		// assumed safe to run concurrently against the same graph.
	}

	started, err := d.startLocked(inv)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	d.emit(domain.EventExecutionStarted, *started)

	return &domain.DispatchAck{
		ExecutionID: executionID,
		GraphID:     binding.GraphID,
		Accepted:    true,
	}, nil
}

// startLocked creates the isolated context and hands the run to the engine
// asynchronously. Caller holds d.mu and emits the returned started event
// after unlocking; a subscriber may call back into the dispatcher.
func (d *Dispatcher) startLocked(inv *invocation) (*domain.ExecutionStartedEvent, error) {
	affected := graphs.ComputeAffectedNodes(inv.snapshot, inv.binding.TriggerNodeID, d.logger)
	if len(affected) == 0 {
		return nil, domain.Error{
			Type:    domain.ErrorTypeInvalidInput,
			Message: "trigger node not present in graph",
			Details: map[string]interface{}{
				"graph_id": inv.binding.GraphID,
				"node_id":  inv.binding.TriggerNodeID,
			},
			Err: domain.ErrInvalidInput,
		}
	}

	execution, err := d.contexts.StartExecution(inv.executionID, inv.binding, affected)
	if err != nil {
		return nil, err
	}

	d.metrics.IncrementTriggersDispatched()

	affectedList := make([]string, 0, len(affected))
	for nodeID := range affected {
		affectedList = append(affectedList, nodeID)
	}

	d.logger.Debug("execution accepted",
		"execution_id", inv.executionID,
		"graph_id", inv.binding.GraphID,
		"trigger_node_id", inv.binding.TriggerNodeID,
		"affected_nodes", len(affected))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.engine.ExecuteFromTrigger(d.ctx, inv.snapshot, inv.binding.TriggerNodeID, inv.executionID, inv.payload, affected)
		d.pumpQueue(inv.binding.GraphID)
	}()

	return &domain.ExecutionStartedEvent{
		ExecutionID:   inv.executionID,
		GraphID:       inv.binding.GraphID,
		TriggerID:     inv.binding.TriggerID,
		TriggerNodeID: inv.binding.TriggerNodeID,
		AffectedNodes: affectedList,
		StartedAt:     execution.StartedAt,
	}, nil
}

// pumpQueue starts the next queued invocation for a graph, strictly after
// the prior run reached a terminal status. Invocations that can no longer
// start are dropped and the pump moves on, so one bad entry never stalls
// the queue behind it.
func (d *Dispatcher) pumpQueue(graphID string) {
	var started *domain.ExecutionStartedEvent
	var dropped []domain.ExecutionErrorEvent

	d.mu.Lock()
	for !d.stopped {
		pending := d.queues[graphID]
		if len(pending) == 0 {
			break
		}

		next := pending[0]
		d.queues[graphID] = pending[1:]
		if len(d.queues[graphID]) == 0 {
			delete(d.queues, graphID)
		}

		d.logger.Debug("starting queued execution",
			"graph_id", graphID,
			"execution_id", next.executionID,
			"still_queued", len(d.queues[graphID]))

		// A queued run executes against the graph as it exists when it
		// starts, not as it was when it was enqueued.
		snapshot, err := d.store.GetGraph(context.Background(), graphID)
		if err == nil {
			next.snapshot = snapshot
			started, err = d.startLocked(next)
		}
		if err == nil {
			break
		}

		d.logger.Error("dropping queued execution",
			"graph_id", graphID,
			"execution_id", next.executionID,
			"error", err)
		d.metrics.IncrementExecutionsFailed()
		dropped = append(dropped, domain.ExecutionErrorEvent{
			ExecutionID: next.executionID,
			GraphID:     graphID,
			Error:       err.Error(),
			FailedAt:    time.Now(),
		})
	}
	d.mu.Unlock()

	for _, event := range dropped {
		d.emit(domain.EventExecutionFailed, event)
	}
	if started != nil {
		d.emit(domain.EventExecutionStarted, *started)
	}
}

// CancelExecution aborts a run in flight, or drops it from the pending
// queue if it has not started yet.
func (d *Dispatcher) CancelExecution(executionID string) error {
	d.mu.Lock()
	for graphID, pending := range d.queues {
		for i, inv := range pending {
			if inv.executionID != executionID {
				continue
			}
			d.queues[graphID] = append(pending[:i], pending[i+1:]...)
			if len(d.queues[graphID]) == 0 {
				delete(d.queues, graphID)
			}
			d.mu.Unlock()
			d.logger.Debug("cancelled queued execution",
				"execution_id", executionID,
				"graph_id", graphID)
			return nil
		}
	}
	d.mu.Unlock()

	if d.engine.CancelExecution(executionID) {
		return nil
	}
	return domain.NewContextNotFoundError(executionID)
}

// Stop refuses new dispatches, drops queued invocations, cancels the runs
// in flight and waits for them to unwind.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	dropped := 0
	for _, pending := range d.queues {
		dropped += len(pending)
	}
	d.queues = make(map[string][]*invocation)
	d.mu.Unlock()

	if dropped > 0 {
		d.logger.Warn("dropped queued invocations on shutdown", "count", dropped)
	}

	d.cancel()
	d.wg.Wait()
	d.logger.Debug("dispatcher stopped")
}

func (d *Dispatcher) emit(eventType domain.EventType, payload interface{}) {
	if d.emitter != nil {
		d.emitter.Emit(eventType, payload)
	}
}
