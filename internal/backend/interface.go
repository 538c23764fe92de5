package backend

import (
	"context"

	"billminder/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the persister and its cleanup function
type BackendResult struct {
	Persister storage.Persister
	Cleanup   CleanupFunc
}

// Factory creates persisters based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	BillsFile    string
	SQLiteDBPath string
	BoltDBPath   string
}

// BackendType represents the type of backend
type BackendType string

const (
	JSONBackend   BackendType = "json"
	SQLiteBackend BackendType = "sqlite"
	BoltBackend   BackendType = "bolt"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case JSONBackend, SQLiteBackend, BoltBackend:
		return true
	default:
		return false
	}
}
