package store

import (
	"context"
	"database/sql"
	"fmt"

	"spot-exchange/internal/apperr"
	"spot-exchange/internal/models"
)

// InstrumentStore persists tradable tickers (spec §3 Instrument).
type InstrumentStore struct{}

// NewInstrumentStore returns an InstrumentStore. It is stateless.
func NewInstrumentStore() *InstrumentStore {
	return &InstrumentStore{}
}

// List returns every instrument, including the quote asset RUB.
func (s *InstrumentStore) List(ctx context.Context, db *sql.DB) ([]*models.Instrument, error) {
	rows, err := db.QueryContext(ctx, `SELECT ticker, name FROM instruments ORDER BY ticker ASC`)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var out []*models.Instrument
	for rows.Next() {
		var i models.Instrument
		if err := rows.Scan(&i.Ticker, &i.Name); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, &i)
	}
	return out, rows.Err()
}

// Create inserts a new instrument. Fails CONFLICT if the ticker or
// name is already taken.
func (s *InstrumentStore) Create(ctx context.Context, db *sql.DB, ticker, name string) error {
	_, err := db.ExecContext(ctx, `INSERT INTO instruments (ticker, name) VALUES (?, ?)`, ticker, name)
	if err != nil {
		if isDuplicateKey(err) {
			return apperr.New(apperr.KindConflict, "instrument %q already exists", ticker)
		}
		return fmt.Errorf("create instrument: %w", err)
	}
	return nil
}

// Delete removes an instrument. Callers must reject deletion of the
// quote asset before calling this (spec §6, RUB delete → 403).
func (s *InstrumentStore) Delete(ctx context.Context, db *sql.DB, ticker string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM instruments WHERE ticker = ?`, ticker)
	if err != nil {
		return fmt.Errorf("delete instrument: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete instrument rows affected: %w", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "instrument %q not found", ticker)
	}
	return nil
}
