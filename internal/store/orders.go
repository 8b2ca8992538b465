// Package store implements the order and trade persistence of spec
// §4.2, grounded on the teacher's prepared-statement style
// (internal/engine/engine.go) but generalized to the spec's status
// vocabulary and query specializations (opposite-side / same-side
// resting orders, both needed by the matcher and the order book view
// respectively).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"spot-exchange/internal/apperr"
	"spot-exchange/internal/models"
)

// OrderStore provides CRUD and the price-time query specializations
// over the orders table.
type OrderStore struct{}

// NewOrderStore returns an OrderStore. It is stateless.
func NewOrderStore() *OrderStore {
	return &OrderStore{}
}

// Create inserts a new order row, assigning it a fresh ID.
func (s *OrderStore) Create(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	o.ID = uuid.New()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, ticker, direction, type, qty, price, filled, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Ticker, o.Direction, o.Type, o.Qty, o.Price, o.Filled, o.Status, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, ticker, direction, type, qty, price, filled, status, created_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	var o models.Order
	var price sql.NullInt64
	if err := row.Scan(&o.ID, &o.UserID, &o.Ticker, &o.Direction, &o.Type, &o.Qty, &price, &o.Filled, &o.Status, &o.CreatedAt); err != nil {
		return nil, err
	}
	if price.Valid {
		p := price.Int64
		o.Price = &p
	}
	return &o, nil
}

// GetByID fetches an order by ID, optionally locking it FOR UPDATE for
// a mutating caller (cancellation).
func (s *OrderStore) GetByID(ctx context.Context, tx *sql.Tx, id uuid.UUID, forUpdate bool) (*models.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = ?`, orderColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	row := tx.QueryRowContext(ctx, query, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "order not found")
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListByUser returns every order the given user owns, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, q Queryer, userID uuid.UUID) ([]*models.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC`, orderColumns)
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders by user: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ListOppositeResting fetches the resting LIMIT orders on the opposite
// side of `direction` for `ticker`, locked FOR UPDATE, in price-time
// priority order: best price first (ascending for resting SELLs when the
// taker is a BUY, descending for resting BUYs when the taker is a
// SELL), ties broken by earlier created_at then by id.
func (s *OrderStore) ListOppositeResting(ctx context.Context, tx *sql.Tx, ticker string, takerDirection models.Direction) ([]*models.Order, error) {
	restingDirection := models.DirectionSell
	priceOrder := "ASC" // best ask = lowest price first
	if takerDirection == models.DirectionSell {
		restingDirection = models.DirectionBuy
		priceOrder = "DESC" // best bid = highest price first
	}

	query := fmt.Sprintf(`
		SELECT %s FROM orders
		WHERE ticker = ? AND direction = ? AND type = 'LIMIT'
		  AND status IN ('NEW', 'PARTIALLY_EXECUTED')
		ORDER BY price %s, created_at ASC, id ASC
		FOR UPDATE`, orderColumns, priceOrder)

	rows, err := tx.QueryContext(ctx, query, ticker, restingDirection)
	if err != nil {
		return nil, fmt.Errorf("list opposite resting: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ListSameSideResting fetches resting LIMIT orders on `direction` for
// `ticker`, ordered best-price-first for order book aggregation: bids
// descending, asks ascending. No locking — this is a read view, not a
// mutating path.
func (s *OrderStore) ListSameSideResting(ctx context.Context, q Queryer, ticker string, direction models.Direction) ([]*models.Order, error) {
	priceOrder := "ASC"
	if direction == models.DirectionBuy {
		priceOrder = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT %s FROM orders
		WHERE ticker = ? AND direction = ? AND type = 'LIMIT'
		  AND status IN ('NEW', 'PARTIALLY_EXECUTED')
		ORDER BY price %s, created_at ASC, id ASC`, orderColumns, priceOrder)

	rows, err := q.QueryContext(ctx, query, ticker, direction)
	if err != nil {
		return nil, fmt.Errorf("list same side resting: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// WorstRestingPrice returns the worst (highest) resting ask price for a
// ticker, used to size a BUY MARKET order's conservative reservation.
// Returns ok=false if no asks exist.
func (s *OrderStore) WorstRestingPrice(ctx context.Context, tx *sql.Tx, ticker string, direction models.Direction) (price int64, ok bool, err error) {
	order := "DESC" // worst ask = highest price
	if direction == models.DirectionBuy {
		order = "ASC" // worst bid = lowest price
	}
	query := fmt.Sprintf(`
		SELECT price FROM orders
		WHERE ticker = ? AND direction = ? AND type = 'LIMIT'
		  AND status IN ('NEW', 'PARTIALLY_EXECUTED') AND price IS NOT NULL
		ORDER BY price %s LIMIT 1`, order)
	row := tx.QueryRowContext(ctx, query, ticker, direction)
	var p sql.NullInt64
	if err := row.Scan(&p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("worst resting price: %w", err)
	}
	return p.Int64, true, nil
}

// UpdateFill persists an order's filled/status after a match or
// finalisation step.
func (s *OrderStore) UpdateFill(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET filled = ?, status = ? WHERE id = ?`,
		o.Filled, o.Status, o.ID)
	if err != nil {
		return fmt.Errorf("update order fill: %w", err)
	}
	return nil
}

// Cancel marks an order CANCELLED without touching filled (the
// remainder simply stops being eligible to match further).
func (s *OrderStore) Cancel(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ?`,
		models.OrderStatusCancelled, id)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return nil
}

// Queryer is satisfied by both *sql.DB and *sql.Tx, letting read-only
// queries run either inside or outside a transaction.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func scanOrders(rows *sql.Rows) ([]*models.Order, error) {
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}
