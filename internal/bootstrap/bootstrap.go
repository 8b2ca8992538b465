// Package bootstrap seeds the fixed state every fresh exchange needs
// before it can serve requests: the RUB quote instrument and a single
// admin principal keyed by a well-known API key (spec §2, §9).
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spot-exchange/internal/models"
)

// Seed is idempotent: it inserts RUB and the admin principal only if
// they are not already present, so it is safe to run on every startup
// (mirrors the teacher's LoadOpenOrders being safe to call repeatedly).
func Seed(ctx context.Context, db *sql.DB, adminAPIKey uuid.UUID, log zerolog.Logger) error {
	if _, err := db.ExecContext(ctx,
		`INSERT IGNORE INTO instruments (ticker, name) VALUES (?, ?)`,
		models.QuoteTicker, "Russian Ruble"); err != nil {
		return fmt.Errorf("seed quote instrument: %w", err)
	}

	var exists int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM principals WHERE api_key = ?`, adminAPIKey).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		adminID := uuid.New()
		if _, err := db.ExecContext(ctx,
			`INSERT INTO principals (id, name, role, api_key, created_at) VALUES (?, ?, ?, ?, ?)`,
			adminID, "admin", models.RoleAdmin, adminAPIKey, time.Now()); err != nil {
			return fmt.Errorf("seed admin principal: %w", err)
		}
		log.Info().Str("principal_id", adminID.String()).Msg("seeded admin principal")
	case err != nil:
		return fmt.Errorf("check admin principal: %w", err)
	}

	return nil
}
