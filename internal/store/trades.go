package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"spot-exchange/internal/models"
)

// TradeStore appends to and reads the trade journal (transactions
// table). Grounded on the teacher's insertTradeStmt/GetTrades.
type TradeStore struct{}

// NewTradeStore returns a TradeStore. It is stateless.
func NewTradeStore() *TradeStore {
	return &TradeStore{}
}

// Insert appends a trade record. Trades are never mutated once written.
func (s *TradeStore) Insert(ctx context.Context, tx *sql.Tx, t *models.Trade) error {
	t.ID = uuid.New()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, ticker, price, qty, executed_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Ticker, t.Price, t.Qty, t.ExecutedAt)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListByTicker returns the most recent `limit` trades for a ticker,
// newest first.
func (s *TradeStore) ListByTicker(ctx context.Context, q Queryer, ticker string, limit int) ([]*models.Trade, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, ticker, price, qty, executed_at FROM transactions
		 WHERE ticker = ? ORDER BY executed_at DESC, id DESC LIMIT ?`,
		ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []*models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.Ticker, &t.Price, &t.Qty, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return out, nil
}
