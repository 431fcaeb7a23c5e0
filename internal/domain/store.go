package domain

import (
	"context"
	"time"
)

// PairStore persists pair executions for audit and merge scanning.
type PairStore interface {
	Create(ctx context.Context, pair PairExecution) error
	UpdateFills(ctx context.Context, pair PairExecution) error
	GetByID(ctx context.Context, id string) (PairExecution, error)
	// ListMergeable returns hedged pairs whose window closed before the
	// given instant and that have not been merged yet.
	ListMergeable(ctx context.Context, closedBefore time.Time, limit int) ([]PairExecution, error)
	MarkMerged(ctx context.Context, id, txHash string, at time.Time) error
	ListRecent(ctx context.Context, limit int) ([]PairExecution, error)
}
