package ports

import (
	"context"

	"signalTracker/internal/domain"
)

// TradeTable defines the interface for the durable trade ledger.
// The ledger is read and written as a whole: callers load every row, mutate
// in memory, and persist the complete row set back. Implementations do no
// internal locking; a single active writer is assumed.
type TradeTable interface {
	// LoadAll retrieves every trade row in stable order.
	// An empty or not yet created table yields an empty slice, not an error.
	LoadAll(ctx context.Context) ([]*domain.Trade, error)
	// ReplaceAll overwrites the persisted table with exactly the given rows.
	ReplaceAll(ctx context.Context, trades []*domain.Trade) error
}
