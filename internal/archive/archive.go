package archive

import (
	"context"

	"github.com/prodlens/prodlens/internal/types"
)

// Archive persists finished product records. It is optional: when
// archiving is disabled the orchestrator holds a Noop.
type Archive interface {
	// Store writes one finished record. Raw page bytes never reach
	// the archive, only the extracted record.
	Store(ctx context.Context, rec *types.ProductRecord) error

	// Close releases the backing connection.
	Close(ctx context.Context) error
}

// Noop discards records.
type Noop struct{}

func (Noop) Store(context.Context, *types.ProductRecord) error { return nil }
func (Noop) Close(context.Context) error                       { return nil }
