package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/flux/internal/adapters/contexts"
	"github.com/eleven-am/flux/internal/adapters/dispatch"
	"github.com/eleven-am/flux/internal/adapters/engine"
	"github.com/eleven-am/flux/internal/adapters/events"
	"github.com/eleven-am/flux/internal/adapters/nodes"
	"github.com/eleven-am/flux/internal/adapters/registry"
	"github.com/eleven-am/flux/internal/adapters/storage"
	"github.com/eleven-am/flux/internal/adapters/webhook"
	"github.com/eleven-am/flux/internal/domain"
	"github.com/eleven-am/flux/internal/ports"
	json "github.com/eleven-am/flux/internal/xjson"
)

// Manager wires the trigger registry, context manager, engine, dispatcher
// and collaborator adapters together and owns their lifecycle.
type Manager struct {
	config *domain.Config
	logger *slog.Logger

	db          *badger.DB
	graphStore  ports.GraphStorePort
	resultSink  ports.ResultSinkPort
	registry    ports.TriggerRegistryPort
	contexts    ports.ContextManagerPort
	executors   ports.ExecutorRegistryPort
	engine      ports.EnginePort
	dispatcher  ports.DispatcherPort
	emitter     ports.EventEmitterPort
	webhook     *webhook.Server
	metrics     *domain.DispatchMetrics
	credentials ports.CredentialsAccessor

	started bool
}

func New(config *domain.Config) (*Manager, error) {
	config, err := domain.ApplyDefaults(config)
	if err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if err := config.Validate(); err != nil {
		config.Logger.Error("invalid configuration", "error", err)
		return nil, err
	}

	logger := config.Logger.With("component", "flux")

	return &Manager{
		config:    config,
		logger:    logger,
		metrics:   domain.NewDispatchMetrics(),
		emitter:   events.NewEmitter(config.Logger),
		executors: nodes.NewExecutorRegistry(config.Logger),
	}, nil
}

// SetCredentialsAccessor injects the external credential resolver handed to
// every node execution. Must be called before Start.
func (m *Manager) SetCredentialsAccessor(accessor ports.CredentialsAccessor) {
	m.credentials = accessor
}

// Start opens storage, rebuilds the trigger registry from the persisted
// active graphs and brings up the webhook ingress.
func (m *Manager) Start(ctx context.Context) error {
	if m.started {
		return domain.ErrAlreadyStarted
	}

	db, err := storage.OpenDB(m.config.DataDir, m.config.Logger)
	if err != nil {
		return err
	}
	m.db = db

	m.graphStore = storage.NewGraphStore(db, m.config.Logger)
	m.resultSink = storage.NewResultSink(db, m.config.Logger)
	m.registry = registry.NewTriggerRegistry(m.graphStore, m.config.Logger)
	m.contexts = contexts.NewManager(m.config.Retention, m.config.Logger)

	eng, err := engine.NewEngine(m.config.Engine, m.executors, m.contexts, m.emitter, m.resultSink, m.credentials, m.metrics, m.config.Logger)
	if err != nil {
		m.db.Close()
		return err
	}
	m.engine = eng

	m.dispatcher = dispatch.NewDispatcher(m.config.Dispatcher, m.registry, m.graphStore, m.contexts, m.engine, m.emitter, m.metrics, m.config.Logger)

	if err := m.registry.Rebuild(); err != nil {
		m.logger.Error("failed to rebuild trigger registry", "error", err)
		m.db.Close()
		return err
	}

	if !m.config.Webhook.Disabled && m.config.Webhook.BindAddr != "" {
		m.webhook = webhook.NewServer(m.config.Webhook, m.dispatcher, m.contexts, m.config.Logger)
		if err := m.webhook.Start(); err != nil {
			m.db.Close()
			return err
		}
	}

	m.started = true
	m.logger.Info("flux started",
		"data_dir", m.config.DataDir,
		"conflict_policy", m.config.Dispatcher.ConflictPolicy,
		"triggers", len(m.registry.Keys()))

	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	if !m.started {
		return domain.ErrNotStarted
	}

	if m.webhook != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := m.webhook.Stop(shutdownCtx); err != nil {
			m.logger.Warn("webhook server shutdown failed", "error", err)
		}
		cancel()
	}

	m.dispatcher.Stop()
	m.engine.Stop()
	m.registry.Teardown()

	if err := m.db.Close(); err != nil {
		m.logger.Error("failed to close storage", "error", err)
		return err
	}

	m.started = false
	m.logger.Info("flux stopped")
	return nil
}

// RegisterExecutor binds a node-type string to its implementation.
func (m *Manager) RegisterExecutor(nodeType string, executor ports.ExecutorPort) error {
	return m.executors.RegisterExecutor(nodeType, executor)
}

// SaveGraph persists a graph definition; if it is active its triggers are
// re-registered so edits take effect for future dispatches only.
func (m *Manager) SaveGraph(ctx context.Context, graph *domain.GraphDefinition) error {
	if err := m.graphStore.SaveGraph(ctx, graph); err != nil {
		return err
	}
	if graph.Active {
		m.registry.RegisterGraph(graph)
	}
	return nil
}

// ActivateGraph marks a graph active and registers its triggers.
func (m *Manager) ActivateGraph(ctx context.Context, graphID string) error {
	graph, err := m.graphStore.GetGraph(ctx, graphID)
	if err != nil {
		return err
	}

	graph.Active = true
	if err := m.graphStore.SaveGraph(ctx, graph); err != nil {
		return err
	}

	m.registry.RegisterGraph(graph)
	m.logger.Info("graph activated", "graph_id", graphID)
	return nil
}

// DeactivateGraph removes the graph's triggers; runs in flight finish
// against their frozen snapshots.
func (m *Manager) DeactivateGraph(ctx context.Context, graphID string) error {
	graph, err := m.graphStore.GetGraph(ctx, graphID)
	if err != nil {
		return err
	}

	m.registry.UnregisterGraph(graph)

	graph.Active = false
	if err := m.graphStore.SaveGraph(ctx, graph); err != nil {
		return err
	}

	m.logger.Info("graph deactivated", "graph_id", graphID)
	return nil
}

func (m *Manager) DeleteGraph(ctx context.Context, graphID string) error {
	graph, err := m.graphStore.GetGraph(ctx, graphID)
	if err != nil {
		if domain.IsGraphNotFound(err) {
			return nil
		}
		return err
	}

	m.registry.UnregisterGraph(graph)
	return m.graphStore.DeleteGraph(ctx, graphID)
}

// Dispatch feeds an external event into the dispatcher.
func (m *Manager) Dispatch(triggerKey string, payload json.RawMessage) (*domain.DispatchAck, error) {
	return m.dispatcher.Dispatch(triggerKey, payload, m.config.Webhook.EmitObserve)
}

func (m *Manager) DispatchManual(graphID, triggerNodeID string, payload json.RawMessage) (*domain.DispatchAck, error) {
	return m.dispatcher.DispatchManual(graphID, triggerNodeID, payload)
}

func (m *Manager) CancelExecution(executionID string) error {
	return m.dispatcher.CancelExecution(executionID)
}

// GetExecutionStatus returns the isolation-filtered snapshot for one run;
// an unknown id yields an empty snapshot.
func (m *Manager) GetExecutionStatus(executionID string) *domain.NodeStatusSnapshot {
	snapshot := m.contexts.Snapshot(executionID)
	if snapshot == nil {
		return &domain.NodeStatusSnapshot{
			ExecutionID: executionID,
			NodeStates:  map[string]*domain.NodeState{},
		}
	}
	return snapshot
}

// SetCurrentExecution pins the isolation pointer for a consumer.
func (m *Manager) SetCurrentExecution(consumerID, executionID string) error {
	return m.contexts.SetCurrentExecution(consumerID, executionID)
}

func (m *Manager) IsNodeExecutingInCurrent(consumerID, nodeID string) bool {
	return m.contexts.IsNodeExecutingInCurrent(consumerID, nodeID)
}

func (m *Manager) GetResult(ctx context.Context, executionID string) (*domain.ExecutionResult, error) {
	return m.resultSink.GetResult(ctx, executionID)
}

func (m *Manager) GetMetrics() domain.DispatchMetrics {
	return m.metrics.GetSnapshot()
}

// Subscribe attaches a handler to one lifecycle event type; the returned
// function removes it.
func (m *Manager) Subscribe(eventType domain.EventType, handler func(payload interface{})) func() {
	return m.emitter.Subscribe(eventType, handler)
}

func (m *Manager) SubscribeAll(handler func(eventType domain.EventType, payload interface{})) func() {
	return m.emitter.SubscribeAll(handler)
}
