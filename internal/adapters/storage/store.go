package storage

import (
	"log/slog"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/flux/internal/domain"
)

const (
	graphKeyPrefix    = "graph:"
	resultKeyPrefix   = "result:"
	snapshotKeyPrefix = "snapshot:"
)

// OpenDB opens the badger database backing the graph store and result sink.
func OpenDB(dataDir string, logger *slog.Logger) (*badger.DB, error) {
	var opts badger.Options
	if dataDir == "" || dataDir == domain.MemoryDataDir {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(dataDir, "flux"))
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to open storage database",
			Details: map[string]interface{}{"data_dir": dataDir},
			Err:     err,
		}
	}

	return db, nil
}
