// Package storage holds the durable backends for the bill collection. Every
// backend reads and writes the whole collection at once.
package storage

import (
	"context"

	"billminder/internal/core"
)

// Persister loads and saves the full set of bills.
type Persister interface {
	Load(ctx context.Context) ([]core.Bill, error)
	Save(ctx context.Context, bills []core.Bill) error
	Close() error
}
