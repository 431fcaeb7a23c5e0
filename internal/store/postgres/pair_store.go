package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

// PairStore implements domain.PairStore using PostgreSQL.
type PairStore struct {
	pool *pgxpool.Pool
}

// NewPairStore creates a new PairStore.
func NewPairStore(pool *pgxpool.Pool) *PairStore {
	return &PairStore{pool: pool}
}

const pairColumns = `id, window_id, condition_id, symbol, yes_asset_id, no_asset_id,
	yes_order_id, no_order_id, yes_price, no_price, yes_filled, no_filled,
	size, combined, profit_ratio, reservation_id, neg_risk, status, merge_tx_hash,
	window_close_at, created_at, merged_at`

// Create inserts a pair execution record.
func (s *PairStore) Create(ctx context.Context, pair domain.PairExecution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pair_executions (`+pairColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		pair.ID, pair.WindowID, pair.ConditionID, pair.Symbol, pair.YesAssetID, pair.NoAssetID,
		pair.YesOrderID, pair.NoOrderID, pair.YesPrice, pair.NoPrice, pair.YesFilled, pair.NoFilled,
		pair.Size, pair.Combined, pair.ProfitRatio, pair.ReservationID, pair.NegRisk, string(pair.Status), pair.MergeTxHash,
		pair.WindowCloseAt, pair.CreatedAt, pair.MergedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert pair_execution: %w", err)
	}
	return nil
}

// UpdateFills writes the resolved fill sizes and status for a pair.
func (s *PairStore) UpdateFills(ctx context.Context, pair domain.PairExecution) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pair_executions
		SET yes_order_id = $2, no_order_id = $3, yes_filled = $4, no_filled = $5, status = $6
		WHERE id = $1`,
		pair.ID, pair.YesOrderID, pair.NoOrderID, pair.YesFilled, pair.NoFilled, string(pair.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: update pair_execution %s: %w", pair.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update pair_execution %s: %w", pair.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns a pair execution by its ID.
func (s *PairStore) GetByID(ctx context.Context, id string) (domain.PairExecution, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pairColumns+` FROM pair_executions WHERE id = $1`, id)
	pair, err := scanPair(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PairExecution{}, domain.ErrNotFound
		}
		return domain.PairExecution{}, fmt.Errorf("postgres: get pair_execution %s: %w", id, err)
	}
	return pair, nil
}

// ListMergeable returns hedged, unmerged pairs whose window closed before
// the given instant, oldest first.
func (s *PairStore) ListMergeable(ctx context.Context, closedBefore time.Time, limit int) ([]domain.PairExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+pairColumns+`
		FROM pair_executions
		WHERE status = $1 AND window_close_at < $2
		ORDER BY window_close_at ASC
		LIMIT $3`,
		string(domain.PairStatusHedged), closedBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list mergeable pairs: %w", err)
	}
	defer rows.Close()
	return scanPairs(rows)
}

// MarkMerged stamps a pair as merged with the relayer transaction hash.
func (s *PairStore) MarkMerged(ctx context.Context, id, txHash string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pair_executions
		SET status = $2, merge_tx_hash = $3, merged_at = $4
		WHERE id = $1`,
		id, string(domain.PairStatusMerged), txHash, at,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark pair_execution %s merged: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark pair_execution %s merged: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent returns the most recent pair executions.
func (s *PairStore) ListRecent(ctx context.Context, limit int) ([]domain.PairExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+pairColumns+`
		FROM pair_executions
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pair_executions: %w", err)
	}
	defer rows.Close()
	return scanPairs(rows)
}

func scanPair(row pgx.Row) (domain.PairExecution, error) {
	var pair domain.PairExecution
	var status string
	err := row.Scan(
		&pair.ID, &pair.WindowID, &pair.ConditionID, &pair.Symbol, &pair.YesAssetID, &pair.NoAssetID,
		&pair.YesOrderID, &pair.NoOrderID, &pair.YesPrice, &pair.NoPrice, &pair.YesFilled, &pair.NoFilled,
		&pair.Size, &pair.Combined, &pair.ProfitRatio, &pair.ReservationID, &pair.NegRisk, &status, &pair.MergeTxHash,
		&pair.WindowCloseAt, &pair.CreatedAt, &pair.MergedAt,
	)
	if err != nil {
		return domain.PairExecution{}, err
	}
	pair.Status = domain.PairStatus(status)
	return pair, nil
}

func scanPairs(rows pgx.Rows) ([]domain.PairExecution, error) {
	var list []domain.PairExecution
	for rows.Next() {
		pair, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, pair)
	}
	return list, rows.Err()
}

// Compile-time interface check.
var _ domain.PairStore = (*PairStore)(nil)
