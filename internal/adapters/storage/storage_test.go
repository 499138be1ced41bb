package storage

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/flux/internal/domain"
	json "github.com/eleven-am/flux/internal/xjson"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()

	db, err := OpenDB(domain.MemoryDataDir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleGraph(id string, active bool) *domain.GraphDefinition {
	return &domain.GraphDefinition{
		ID:     id,
		Name:   "sample",
		Active: active,
		Nodes: []domain.GraphNode{
			{ID: "start", Type: "trigger.webhook"},
			{ID: "work", Type: "transform", Parameters: json.RawMessage(`{"mode":"strict"}`)},
		},
		Connections: []domain.Connection{
			{SourceNodeID: "start", SourceOutputPort: domain.DefaultOutputPort, TargetNodeID: "work", TargetInputPort: domain.DefaultOutputPort},
		},
		Triggers: []domain.TriggerDefinition{
			{ID: "t1", Type: domain.TriggerTypeWebhook, NodeID: "start", Settings: map[string]interface{}{"trigger_key": id + "-hook"}},
		},
	}
}

func TestGraphStore_SaveAndGet(t *testing.T) {
	store := NewGraphStore(openTestDB(t), nil)
	ctx := context.Background()

	graph := sampleGraph("g1", true)
	require.NoError(t, store.SaveGraph(ctx, graph))

	loaded, err := store.GetGraph(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, graph.ID, loaded.ID)
	assert.True(t, loaded.Active)
	require.Len(t, loaded.Nodes, 2)
	assert.JSONEq(t, `{"mode":"strict"}`, string(loaded.Nodes[1].Parameters))
	require.Len(t, loaded.Triggers, 1)
	assert.Equal(t, "g1-hook", loaded.Triggers[0].Settings["trigger_key"])
}

func TestGraphStore_GetUnknown(t *testing.T) {
	store := NewGraphStore(openTestDB(t), nil)

	_, err := store.GetGraph(context.Background(), "missing")
	assert.True(t, domain.IsGraphNotFound(err))
}

func TestGraphStore_SaveRejectsEmptyID(t *testing.T) {
	store := NewGraphStore(openTestDB(t), nil)

	assert.Error(t, store.SaveGraph(context.Background(), &domain.GraphDefinition{}))
	assert.Error(t, store.SaveGraph(context.Background(), nil))
}

func TestGraphStore_SaveOverwrites(t *testing.T) {
	store := NewGraphStore(openTestDB(t), nil)
	ctx := context.Background()

	require.NoError(t, store.SaveGraph(ctx, sampleGraph("g1", false)))
	updated := sampleGraph("g1", true)
	updated.Name = "renamed"
	require.NoError(t, store.SaveGraph(ctx, updated))

	loaded, err := store.GetGraph(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", loaded.Name)
	assert.True(t, loaded.Active)
}

func TestGraphStore_Delete(t *testing.T) {
	store := NewGraphStore(openTestDB(t), nil)
	ctx := context.Background()

	require.NoError(t, store.SaveGraph(ctx, sampleGraph("g1", true)))
	require.NoError(t, store.DeleteGraph(ctx, "g1"))

	_, err := store.GetGraph(ctx, "g1")
	assert.True(t, domain.IsGraphNotFound(err))

	// deleting again is a no-op
	assert.NoError(t, store.DeleteGraph(ctx, "g1"))
}

func TestGraphStore_ListActiveGraphs(t *testing.T) {
	store := NewGraphStore(openTestDB(t), nil)
	ctx := context.Background()

	require.NoError(t, store.SaveGraph(ctx, sampleGraph("g1", true)))
	require.NoError(t, store.SaveGraph(ctx, sampleGraph("g2", false)))
	require.NoError(t, store.SaveGraph(ctx, sampleGraph("g3", true)))

	active, err := store.ListActiveGraphs(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(active))
	for _, graph := range active {
		ids = append(ids, graph.ID)
	}
	assert.ElementsMatch(t, []string{"g1", "g3"}, ids)
}

func TestResultSink_PersistAndGet(t *testing.T) {
	sink := NewResultSink(openTestDB(t), nil)
	ctx := context.Background()

	result := &domain.ExecutionResult{
		ExecutionID: "e1",
		GraphID:     "g1",
		Success:     true,
		NodeResults: map[string]*domain.NodeResult{
			"work": {
				NodeID: "work",
				Status: domain.NodeStatusCompleted,
				Output: map[string]json.RawMessage{domain.DefaultOutputPort: json.RawMessage(`{"ok":true}`)},
			},
		},
		Duration:   120 * time.Millisecond,
		FinishedAt: time.Now().UTC(),
	}
	require.NoError(t, sink.PersistResult(ctx, result, sampleGraph("g1", true)))

	loaded, err := sink.GetResult(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "g1", loaded.GraphID)
	assert.True(t, loaded.Success)
	require.Contains(t, loaded.NodeResults, "work")
	assert.Equal(t, domain.NodeStatusCompleted, loaded.NodeResults["work"].Status)
	assert.JSONEq(t, `{"ok":true}`, string(loaded.NodeResults["work"].Output[domain.DefaultOutputPort]))
}

func TestResultSink_PersistWithoutSnapshot(t *testing.T) {
	sink := NewResultSink(openTestDB(t), nil)
	ctx := context.Background()

	result := &domain.ExecutionResult{ExecutionID: "e2", GraphID: "g1", Success: false, Error: "node work failed"}
	require.NoError(t, sink.PersistResult(ctx, result, nil))

	loaded, err := sink.GetResult(ctx, "e2")
	require.NoError(t, err)
	assert.Equal(t, "node work failed", loaded.Error)
}

func TestResultSink_NilResult(t *testing.T) {
	sink := NewResultSink(openTestDB(t), nil)

	assert.Error(t, sink.PersistResult(context.Background(), nil, nil))
}

func TestResultSink_GetUnknown(t *testing.T) {
	sink := NewResultSink(openTestDB(t), nil)

	_, err := sink.GetResult(context.Background(), "missing")
	assert.True(t, domain.IsContextNotFound(err))
}

func TestOpenDB_EmptyDirIsInMemory(t *testing.T) {
	db, err := OpenDB("", nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestOpenDB_OnDisk(t *testing.T) {
	dir := t.TempDir()

	db, err := OpenDB(dir, nil)
	require.NoError(t, err)

	store := NewGraphStore(db, nil)
	require.NoError(t, store.SaveGraph(context.Background(), sampleGraph("g1", true)))
	require.NoError(t, db.Close())

	// data survives a reopen
	db, err = OpenDB(dir, nil)
	require.NoError(t, err)
	defer db.Close()

	loaded, err := NewGraphStore(db, nil).GetGraph(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", loaded.ID)
}
