package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/flux/internal/domain"
	json "github.com/eleven-am/flux/internal/xjson"
)

// GraphStore persists graph definitions in badger. Reads hand out fresh
// copies, so a caller always receives an immutable snapshot decoupled from
// later saves.
type GraphStore struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewGraphStore(db *badger.DB, logger *slog.Logger) *GraphStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &GraphStore{
		db:     db,
		logger: logger.With("component", "graph-store"),
	}
}

func (s *GraphStore) GetGraph(ctx context.Context, graphID string) (*domain.GraphDefinition, error) {
	var graph domain.GraphDefinition

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(graphKeyPrefix + graphID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &graph)
		})
	})

	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.NewGraphNotFoundError(graphID)
		}
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to load graph",
			Details: map[string]interface{}{"graph_id": graphID},
			Err:     err,
		}
	}

	return &graph, nil
}

func (s *GraphStore) SaveGraph(ctx context.Context, graph *domain.GraphDefinition) error {
	if graph == nil || graph.ID == "" {
		return domain.Error{
			Type:    domain.ErrorTypeInvalidInput,
			Message: "graph must have an id",
			Err:     domain.ErrInvalidInput,
		}
	}

	encoded, err := json.Marshal(graph)
	if err != nil {
		return domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to serialize graph",
			Details: map[string]interface{}{"graph_id": graph.ID},
			Err:     err,
		}
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(graphKeyPrefix+graph.ID), encoded)
	})
	if err != nil {
		return domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to persist graph",
			Details: map[string]interface{}{"graph_id": graph.ID},
			Err:     err,
		}
	}

	s.logger.Debug("graph saved",
		"graph_id", graph.ID,
		"active", graph.Active,
		"nodes", len(graph.Nodes),
		"triggers", len(graph.Triggers))

	return nil
}

func (s *GraphStore) DeleteGraph(ctx context.Context, graphID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(graphKeyPrefix + graphID))
	})
	if err != nil {
		return domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to delete graph",
			Details: map[string]interface{}{"graph_id": graphID},
			Err:     err,
		}
	}

	s.logger.Debug("graph deleted", "graph_id", graphID)
	return nil
}

// ListActiveGraphs scans every persisted graph and returns those marked
// active; this is the source of truth for registry rebuilds.
func (s *GraphStore) ListActiveGraphs(ctx context.Context) ([]*domain.GraphDefinition, error) {
	var graphs []*domain.GraphDefinition

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(graphKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var graph domain.GraphDefinition
				if err := json.Unmarshal(value, &graph); err != nil {
					s.logger.Warn("skipping corrupt graph record",
						"key", string(it.Item().Key()),
						"error", err)
					return nil
				}
				if graph.Active {
					graphs = append(graphs, &graph)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to list active graphs",
			Err:     err,
		}
	}

	return graphs, nil
}

func (s *GraphStore) Close() error {
	return nil
}
