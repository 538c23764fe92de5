package backend

import (
	"context"
	"fmt"
	"log/slog"

	"billminder/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		p   storage.Persister
		err error
	)
	switch config.Type {
	case JSONBackend:
		p = storage.NewJSONFile(config.BillsFile)
		f.logger.InfoContext(ctx, "Initialized JSON file backend", "path", config.BillsFile)
	case SQLiteBackend:
		p, err = storage.NewSQLite(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite backend: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case BoltBackend:
		p, err = storage.NewBolt(config.BoltDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Bolt backend: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Bolt backend", "db_path", config.BoltDBPath)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	return &BackendResult{
		Persister: p,
		Cleanup:   p.Close,
	}, nil
}
