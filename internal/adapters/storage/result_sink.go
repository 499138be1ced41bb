package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/flux/internal/domain"
	json "github.com/eleven-am/flux/internal/xjson"
)

// ResultSink archives finalized execution results together with the graph
// snapshot that produced them. The engine treats it as a best-effort side
// channel; a failed write is logged by the caller and the run still
// completes.
type ResultSink struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewResultSink(db *badger.DB, logger *slog.Logger) *ResultSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &ResultSink{
		db:     db,
		logger: logger.With("component", "result-sink"),
	}
}

func (s *ResultSink) PersistResult(ctx context.Context, result *domain.ExecutionResult, snapshot *domain.GraphDefinition) error {
	if result == nil {
		return domain.Error{
			Type:    domain.ErrorTypeInvalidInput,
			Message: "result cannot be nil",
			Err:     domain.ErrInvalidInput,
		}
	}

	encodedResult, err := json.Marshal(result)
	if err != nil {
		return domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to serialize execution result",
			Details: map[string]interface{}{"execution_id": result.ExecutionID},
			Err:     err,
		}
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(resultKeyPrefix+result.ExecutionID), encodedResult); err != nil {
			return err
		}

		if snapshot != nil {
			encodedSnapshot, err := json.Marshal(snapshot)
			if err != nil {
				return err
			}
			return txn.Set([]byte(snapshotKeyPrefix+result.ExecutionID), encodedSnapshot)
		}
		return nil
	})
	if err != nil {
		return domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to persist execution result",
			Details: map[string]interface{}{"execution_id": result.ExecutionID},
			Err:     err,
		}
	}

	s.logger.Debug("execution result persisted",
		"execution_id", result.ExecutionID,
		"graph_id", result.GraphID,
		"success", result.Success)

	return nil
}

func (s *ResultSink) GetResult(ctx context.Context, executionID string) (*domain.ExecutionResult, error) {
	var result domain.ExecutionResult

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(resultKeyPrefix + executionID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &result)
		})
	})

	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.NewContextNotFoundError(executionID)
		}
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to load execution result",
			Details: map[string]interface{}{"execution_id": executionID},
			Err:     err,
		}
	}

	return &result, nil
}

func (s *ResultSink) Close() error {
	return nil
}
