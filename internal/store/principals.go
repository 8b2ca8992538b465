package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"spot-exchange/internal/apperr"
	"spot-exchange/internal/models"
)

// PrincipalStore persists users and admins (spec §3 Principal).
type PrincipalStore struct{}

// NewPrincipalStore returns a PrincipalStore. It is stateless.
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{}
}

const principalColumns = `id, name, role, api_key, created_at`

func scanPrincipal(row interface{ Scan(...interface{}) error }) (*models.Principal, error) {
	var p models.Principal
	if err := row.Scan(&p.ID, &p.Name, &p.Role, &p.APIKey, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Register creates a USER principal with a freshly generated ID and
// API key. Fails CONFLICT if name is already taken (unique index).
func (s *PrincipalStore) Register(ctx context.Context, db *sql.DB, name string) (*models.Principal, error) {
	p := &models.Principal{
		ID:        uuid.New(),
		Name:      name,
		Role:      models.RoleUser,
		APIKey:    uuid.New(),
		CreatedAt: time.Now(),
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO principals (id, name, role, api_key, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Role, p.APIKey, p.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, apperr.New(apperr.KindConflict, "name %q is already registered", name)
		}
		return nil, fmt.Errorf("register principal: %w", err)
	}
	return p, nil
}

// GetByAPIKey looks up the principal presenting apiKey, used by the
// authentication middleware. Fails UNAUTHENTICATED if no match.
func (s *PrincipalStore) GetByAPIKey(ctx context.Context, db *sql.DB, apiKey uuid.UUID) (*models.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM principals WHERE api_key = ?`, principalColumns)
	p, err := scanPrincipal(db.QueryRowContext(ctx, query, apiKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindUnauthenticated, "unknown api key")
		}
		return nil, fmt.Errorf("get principal by api key: %w", err)
	}
	return p, nil
}

// GetByID fetches a principal by ID.
func (s *PrincipalStore) GetByID(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM principals WHERE id = ?`, principalColumns)
	p, err := scanPrincipal(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return p, nil
}

// Delete removes a principal and returns the row as it was before
// deletion, for the admin endpoint's response body. Balances, orders
// and cascading foreign keys are removed by the schema's ON DELETE
// CASCADE.
func (s *PrincipalStore) Delete(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.Principal, error) {
	p, err := s.GetByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM principals WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete principal: %w", err)
	}
	return p, nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
