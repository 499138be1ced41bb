package ports

import (
	"context"

	"github.com/eleven-am/flux/internal/domain"
)

// GraphStorePort delivers graph definitions as immutable snapshots. The
// engine reads a graph once at run start and never subscribes to edits.
type GraphStorePort interface {
	GetGraph(ctx context.Context, graphID string) (*domain.GraphDefinition, error)
	SaveGraph(ctx context.Context, graph *domain.GraphDefinition) error
	DeleteGraph(ctx context.Context, graphID string) error
	ListActiveGraphs(ctx context.Context) ([]*domain.GraphDefinition, error)
	Close() error
}

// ResultSinkPort receives finalized execution results together with the
// graph snapshot that produced them. Best effort: engine-side completion
// never depends on the sink succeeding.
type ResultSinkPort interface {
	PersistResult(ctx context.Context, result *domain.ExecutionResult, snapshot *domain.GraphDefinition) error
	GetResult(ctx context.Context, executionID string) (*domain.ExecutionResult, error)
	Close() error
}
