// Package ledger implements the balance ledger of spec §4.1: per-user
// per-ticker total/reserved bookkeeping, reservation, and settlement.
// Every operation takes the caller's *sql.Tx so admission, matching, and
// cancellation can compose it inside one transaction.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"spot-exchange/internal/apperr"
)

// Ledger executes balance operations against the balances table.
type Ledger struct{}

// New returns a Ledger. It is stateless; all state lives in the DB.
func New() *Ledger {
	return &Ledger{}
}

// ensureRow locks (or creates, if absent) the balance row for
// (userID, ticker) and returns its current total/reserved.
func (l *Ledger) ensureRow(ctx context.Context, tx *sql.Tx, userID uuid.UUID, ticker string) (total, reserved int64, err error) {
	row := tx.QueryRowContext(ctx,
		`SELECT total, reserved FROM balances WHERE user_id = ? AND ticker = ? FOR UPDATE`,
		userID, ticker)
	err = row.Scan(&total, &reserved)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO balances (user_id, ticker, total, reserved) VALUES (?, ?, 0, 0)`,
			userID, ticker); err != nil {
			return 0, 0, fmt.Errorf("create balance row: %w", err)
		}
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("lock balance row: %w", err)
	}
	return total, reserved, nil
}

// Deposit increments total, creating the row if absent. Fails NOT_FOUND
// if the user or ticker does not exist (enforced by the FK constraints;
// checked explicitly here to produce the right error kind).
func (l *Ledger) Deposit(ctx context.Context, tx *sql.Tx, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return apperr.New(apperr.KindValidation, "deposit amount must be positive")
	}
	if err := checkPrincipalAndTicker(ctx, tx, userID, ticker); err != nil {
		return err
	}
	total, _, err := l.ensureRow(ctx, tx, userID, ticker)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE balances SET total = ? WHERE user_id = ? AND ticker = ?`,
		total+amount, userID, ticker)
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	return nil
}

// Withdraw decrements total. Fails INSUFFICIENT if total-amount would
// drop below reserved — withdrawals must never break reserved <= total.
func (l *Ledger) Withdraw(ctx context.Context, tx *sql.Tx, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return apperr.New(apperr.KindValidation, "withdraw amount must be positive")
	}
	if err := checkPrincipalAndTicker(ctx, tx, userID, ticker); err != nil {
		return err
	}
	total, reserved, err := l.ensureRow(ctx, tx, userID, ticker)
	if err != nil {
		return err
	}
	if total-amount < reserved {
		return apperr.New(apperr.KindInsufficient, "withdraw would breach reserved balance for %s", ticker)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE balances SET total = ? WHERE user_id = ? AND ticker = ?`,
		total-amount, userID, ticker)
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	return nil
}

// Available returns total-reserved, or 0 if no balance row exists. Does
// not lock the row (read-only, used for read paths outside the
// transactional critical section).
func (l *Ledger) Available(ctx context.Context, tx *sql.Tx, userID uuid.UUID, ticker string) (int64, error) {
	var total, reserved int64
	row := tx.QueryRowContext(ctx,
		`SELECT total, reserved FROM balances WHERE user_id = ? AND ticker = ?`,
		userID, ticker)
	if err := row.Scan(&total, &reserved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("available: %w", err)
	}
	return total - reserved, nil
}

// Reserved returns the currently reserved quantity for (userID, ticker),
// or 0 if no balance row exists. Read-only, no row lock: used by the
// matcher's defensive anomaly check, not by a mutating path.
func (l *Ledger) Reserved(ctx context.Context, tx *sql.Tx, userID uuid.UUID, ticker string) (int64, error) {
	var reserved int64
	row := tx.QueryRowContext(ctx,
		`SELECT reserved FROM balances WHERE user_id = ? AND ticker = ?`,
		userID, ticker)
	if err := row.Scan(&reserved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("reserved: %w", err)
	}
	return reserved, nil
}

// Reserve adjusts reserved by delta under a row lock. A positive delta
// fails INSUFFICIENT if it would push reserved above total. A negative
// delta clamps reserved at zero rather than going negative.
func (l *Ledger) Reserve(ctx context.Context, tx *sql.Tx, userID uuid.UUID, ticker string, delta int64) error {
	total, reserved, err := l.ensureRow(ctx, tx, userID, ticker)
	if err != nil {
		return err
	}

	newReserved := reserved + delta
	if delta > 0 && newReserved > total {
		return apperr.New(apperr.KindInsufficient, "insufficient available balance of %s", ticker)
	}
	if delta < 0 && newReserved < 0 {
		newReserved = 0
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE balances SET reserved = ? WHERE user_id = ? AND ticker = ?`,
		newReserved, userID, ticker)
	if err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	return nil
}

// Change is one leg of a Settle call: add delta to (userID, ticker)'s
// total.
type Change struct {
	UserID uuid.UUID
	Ticker string
	Delta  int64
}

// Settle applies every change to total under row locks acquired in
// (user_id, ticker) order, the canonical order that prevents deadlock
// between concurrently matching transactions. Fails INSUFFICIENT if any
// resulting total would go negative; all changes are rolled back by the
// caller's transaction in that case.
func (l *Ledger) Settle(ctx context.Context, tx *sql.Tx, changes []Change) error {
	ordered := make([]Change, len(changes))
	copy(ordered, changes)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].UserID != ordered[j].UserID {
			return ordered[i].UserID.String() < ordered[j].UserID.String()
		}
		return ordered[i].Ticker < ordered[j].Ticker
	})

	for _, c := range ordered {
		total, _, err := l.ensureRow(ctx, tx, c.UserID, c.Ticker)
		if err != nil {
			return err
		}
		newTotal := total + c.Delta
		if newTotal < 0 {
			return apperr.New(apperr.KindInsufficient, "settlement would drive %s balance negative", c.Ticker)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE balances SET total = ? WHERE user_id = ? AND ticker = ?`,
			newTotal, c.UserID, c.Ticker); err != nil {
			return fmt.Errorf("settle: %w", err)
		}
	}
	return nil
}

func checkPrincipalAndTicker(ctx context.Context, tx *sql.Tx, userID uuid.UUID, ticker string) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM principals WHERE id = ?`, userID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "user not found")
		}
		return fmt.Errorf("check principal: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM instruments WHERE ticker = ?`, ticker).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "instrument not found")
		}
		return fmt.Errorf("check instrument: %w", err)
	}
	return nil
}
