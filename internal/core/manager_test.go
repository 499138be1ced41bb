package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/flux/internal/domain"
	"github.com/eleven-am/flux/internal/ports"
	json "github.com/eleven-am/flux/internal/xjson"
)

type recordingExecutor struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, input ports.ExecutionInput) (*ports.ExecutionOutput, error)
}

func (r *recordingExecutor) Execute(ctx context.Context, input ports.ExecutionInput) (*ports.ExecutionOutput, error) {
	r.mu.Lock()
	r.calls = append(r.calls, input.NodeID)
	r.mu.Unlock()

	if r.fn != nil {
		return r.fn(ctx, input)
	}
	return &ports.ExecutionOutput{Outputs: map[string]json.RawMessage{
		domain.DefaultOutputPort: json.RawMessage(fmt.Sprintf(`{"from":%q}`, input.NodeID)),
	}}, nil
}

func (r *recordingExecutor) callOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func testConfig() *domain.Config {
	config := domain.DefaultConfig()
	config.DataDir = domain.MemoryDataDir
	config.Webhook.Disabled = true
	return config
}

func startManager(t *testing.T, config *domain.Config) *Manager {
	t.Helper()

	manager, err := New(config)
	require.NoError(t, err)
	require.NoError(t, manager.Start(context.Background()))
	t.Cleanup(func() { manager.Stop(context.Background()) })
	return manager
}

func pipelineGraph(id, triggerKey string) *domain.GraphDefinition {
	return &domain.GraphDefinition{
		ID:     id,
		Name:   "pipeline",
		Active: true,
		Nodes: []domain.GraphNode{
			{ID: "receive", Type: "step"},
			{ID: "transform", Type: "step"},
			{ID: "store", Type: "step"},
		},
		Connections: []domain.Connection{
			{SourceNodeID: "receive", SourceOutputPort: domain.DefaultOutputPort, TargetNodeID: "transform", TargetInputPort: domain.DefaultOutputPort},
			{SourceNodeID: "transform", SourceOutputPort: domain.DefaultOutputPort, TargetNodeID: "store", TargetInputPort: domain.DefaultOutputPort},
		},
		Triggers: []domain.TriggerDefinition{
			{
				ID:       "t1",
				Type:     domain.TriggerTypeWebhook,
				NodeID:   "receive",
				Settings: map[string]interface{}{"trigger_key": triggerKey},
			},
		},
	}
}

func waitForResult(t *testing.T, manager *Manager, executionID string) *domain.ExecutionResult {
	t.Helper()

	var result *domain.ExecutionResult
	require.Eventually(t, func() bool {
		var err error
		result, err = manager.GetResult(context.Background(), executionID)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)
	return result
}

func TestManager_EndToEndDispatch(t *testing.T) {
	manager := startManager(t, testConfig())

	executor := &recordingExecutor{}
	require.NoError(t, manager.RegisterExecutor("step", executor))

	ctx := context.Background()
	require.NoError(t, manager.SaveGraph(ctx, pipelineGraph("g1", "order-hook")))

	ack, err := manager.Dispatch("order-hook", json.RawMessage(`{"order":7}`))
	require.NoError(t, err)
	assert.True(t, ack.Accepted)

	result := waitForResult(t, manager, ack.ExecutionID)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"receive", "transform", "store"}, executor.callOrder())

	snapshot := manager.GetExecutionStatus(ack.ExecutionID)
	assert.Equal(t, domain.ExecutionStatusCompleted, snapshot.Status)
	for _, nodeID := range []string{"receive", "transform", "store"} {
		assert.Equal(t, domain.NodeStatusCompleted, snapshot.NodeStates[nodeID].Status)
	}
}

func TestManager_DispatchUnknownTrigger(t *testing.T) {
	manager := startManager(t, testConfig())

	_, err := manager.Dispatch("nope", nil)
	assert.True(t, domain.IsTriggerNotFound(err))
}

func TestManager_GetExecutionStatusUnknownIsEmpty(t *testing.T) {
	manager := startManager(t, testConfig())

	snapshot := manager.GetExecutionStatus("ghost")
	require.NotNil(t, snapshot)
	assert.Equal(t, "ghost", snapshot.ExecutionID)
	assert.Empty(t, snapshot.NodeStates)
}

func TestManager_ActivateDeactivate(t *testing.T) {
	manager := startManager(t, testConfig())
	require.NoError(t, manager.RegisterExecutor("step", &recordingExecutor{}))

	ctx := context.Background()
	graph := pipelineGraph("g1", "hook")
	graph.Active = false
	require.NoError(t, manager.SaveGraph(ctx, graph))

	// inactive graph: trigger not registered
	_, err := manager.Dispatch("hook", nil)
	assert.True(t, domain.IsTriggerNotFound(err))

	require.NoError(t, manager.ActivateGraph(ctx, "g1"))
	ack, err := manager.Dispatch("hook", nil)
	require.NoError(t, err)
	waitForResult(t, manager, ack.ExecutionID)

	require.NoError(t, manager.DeactivateGraph(ctx, "g1"))
	_, err = manager.Dispatch("hook", nil)
	assert.True(t, domain.IsTriggerNotFound(err))
}

func TestManager_DeleteGraphUnregistersTriggers(t *testing.T) {
	manager := startManager(t, testConfig())
	require.NoError(t, manager.RegisterExecutor("step", &recordingExecutor{}))

	ctx := context.Background()
	require.NoError(t, manager.SaveGraph(ctx, pipelineGraph("g1", "hook")))
	require.NoError(t, manager.DeleteGraph(ctx, "g1"))

	_, err := manager.Dispatch("hook", nil)
	assert.True(t, domain.IsTriggerNotFound(err))

	// deleting a missing graph is a no-op
	assert.NoError(t, manager.DeleteGraph(ctx, "g1"))
}

func TestManager_RegistryRebuiltOnStart(t *testing.T) {
	dir := t.TempDir()

	config := testConfig()
	config.DataDir = dir

	manager := startManager(t, config)
	require.NoError(t, manager.RegisterExecutor("step", &recordingExecutor{}))
	require.NoError(t, manager.SaveGraph(context.Background(), pipelineGraph("g1", "persistent-hook")))
	require.NoError(t, manager.Stop(context.Background()))

	// a fresh manager over the same data dir resolves the trigger again
	reopened, err := New(config)
	require.NoError(t, err)
	require.NoError(t, reopened.Start(context.Background()))
	defer reopened.Stop(context.Background())
	require.NoError(t, reopened.RegisterExecutor("step", &recordingExecutor{}))

	ack, err := reopened.Dispatch("persistent-hook", nil)
	require.NoError(t, err)
	waitForResult(t, reopened, ack.ExecutionID)
}

func TestManager_DispatchManual(t *testing.T) {
	manager := startManager(t, testConfig())
	require.NoError(t, manager.RegisterExecutor("step", &recordingExecutor{}))

	ctx := context.Background()
	graph := pipelineGraph("g1", "hook")
	graph.Triggers = append(graph.Triggers, domain.TriggerDefinition{
		ID:     "t-manual",
		Type:   domain.TriggerTypeManual,
		NodeID: "transform",
	})
	require.NoError(t, manager.SaveGraph(ctx, graph))

	ack, err := manager.DispatchManual("g1", "transform", json.RawMessage(`{}`))
	require.NoError(t, err)

	result := waitForResult(t, manager, ack.ExecutionID)
	require.True(t, result.Success)

	// only nodes downstream of the manual entry point ran
	assert.NotContains(t, result.NodeResults, "receive")
	assert.Contains(t, result.NodeResults, "transform")
	assert.Contains(t, result.NodeResults, "store")
}

func TestManager_ContinueOnFailProducesFailedResult(t *testing.T) {
	manager := startManager(t, testConfig())

	executor := &recordingExecutor{fn: func(_ context.Context, input ports.ExecutionInput) (*ports.ExecutionOutput, error) {
		if input.NodeID == "transform" {
			return nil, fmt.Errorf("transform broke")
		}
		return &ports.ExecutionOutput{}, nil
	}}
	require.NoError(t, manager.RegisterExecutor("step", executor))

	ctx := context.Background()
	graph := pipelineGraph("g1", "hook")
	node, _ := graph.Node("transform")
	node.ContinueOnFail = true
	require.NoError(t, manager.SaveGraph(ctx, graph))

	ack, err := manager.Dispatch("hook", nil)
	require.NoError(t, err)

	result := waitForResult(t, manager, ack.ExecutionID)
	assert.False(t, result.Success)
	assert.Equal(t, domain.NodeStatusError, result.NodeResults["transform"].Status)
	assert.Equal(t, domain.NodeStatusCompleted, result.NodeResults["store"].Status)
}

func TestManager_CurrentExecutionIsolation(t *testing.T) {
	config := testConfig()
	config.Dispatcher.ConflictPolicy = domain.ConflictPolicyParallelIsolated
	manager := startManager(t, config)

	release := make(chan struct{})
	started := make(chan string, 2)
	executor := &recordingExecutor{fn: func(ctx context.Context, input ports.ExecutionInput) (*ports.ExecutionOutput, error) {
		started <- input.ExecutionID
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &ports.ExecutionOutput{}, nil
	}}
	require.NoError(t, manager.RegisterExecutor("blocking", executor))

	ctx := context.Background()
	graphA := &domain.GraphDefinition{
		ID: "ga", Active: true,
		Nodes:    []domain.GraphNode{{ID: "n1", Type: "blocking"}},
		Triggers: []domain.TriggerDefinition{{ID: "t", Type: domain.TriggerTypeWebhook, NodeID: "n1", Settings: map[string]interface{}{"trigger_key": "hook-a"}}},
	}
	graphB := &domain.GraphDefinition{
		ID: "gb", Active: true,
		Nodes:    []domain.GraphNode{{ID: "n3", Type: "blocking"}},
		Triggers: []domain.TriggerDefinition{{ID: "t", Type: domain.TriggerTypeWebhook, NodeID: "n3", Settings: map[string]interface{}{"trigger_key": "hook-b"}}},
	}
	require.NoError(t, manager.SaveGraph(ctx, graphA))
	require.NoError(t, manager.SaveGraph(ctx, graphB))

	ackA, err := manager.Dispatch("hook-a", nil)
	require.NoError(t, err)
	ackB, err := manager.Dispatch("hook-b", nil)
	require.NoError(t, err)

	<-started
	<-started

	// the consumer pinned to B must not see A's running node
	require.NoError(t, manager.SetCurrentExecution("ui", ackB.ExecutionID))
	assert.False(t, manager.IsNodeExecutingInCurrent("ui", "n1"))
	assert.True(t, manager.IsNodeExecutingInCurrent("ui", "n3"))

	close(release)
	waitForResult(t, manager, ackA.ExecutionID)
	waitForResult(t, manager, ackB.ExecutionID)
}

func TestManager_MetricsAndEvents(t *testing.T) {
	manager := startManager(t, testConfig())
	require.NoError(t, manager.RegisterExecutor("step", &recordingExecutor{}))
	require.NoError(t, manager.SaveGraph(context.Background(), pipelineGraph("g1", "hook")))

	var mu sync.Mutex
	var seen []domain.EventType
	unsubscribe := manager.SubscribeAll(func(eventType domain.EventType, _ interface{}) {
		mu.Lock()
		seen = append(seen, eventType)
		mu.Unlock()
	})
	defer unsubscribe()

	ack, err := manager.Dispatch("hook", nil)
	require.NoError(t, err)
	waitForResult(t, manager, ack.ExecutionID)

	metrics := manager.GetMetrics()
	assert.Equal(t, int64(1), metrics.TriggersDispatched)
	assert.Equal(t, int64(1), metrics.ExecutionsCompleted)
	assert.Equal(t, int64(3), metrics.NodesSucceeded)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, domain.EventExecutionStarted)
	assert.Contains(t, seen, domain.EventExecutionCompleted)
	assert.Contains(t, seen, domain.EventNodeStarted)
	assert.Contains(t, seen, domain.EventNodeCompleted)
}

func TestManager_StartStopLifecycle(t *testing.T) {
	manager, err := New(testConfig())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, manager.Start(ctx))
	assert.ErrorIs(t, manager.Start(ctx), domain.ErrAlreadyStarted)
	require.NoError(t, manager.Stop(ctx))
	assert.ErrorIs(t, manager.Stop(ctx), domain.ErrNotStarted)
}

func TestManager_InvalidConfigRejected(t *testing.T) {
	config := testConfig()
	config.Dispatcher.ConflictPolicy = "bogus"

	_, err := New(config)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
