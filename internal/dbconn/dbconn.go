// Package dbconn establishes the relational connection selected by
// DATABASE_URL and applies the exchange's schema. Connection and DSN
// handling is adapted near-verbatim from the teacher's
// internal/db/mysql.go; Migrate is new, since the teacher assumes a
// pre-provisioned database and schema migrations are an explicit
// out-of-scope surface in the spec.
package dbconn

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// convertURIToDSN converts a mysql:// URI (e.g. a TiDB Cloud connection
// string) into the go-sql-driver/mysql DSN format. Traditional DSNs are
// passed through unchanged.
func convertURIToDSN(connectionString string) (string, error) {
	if !strings.HasPrefix(connectionString, "mysql://") {
		return connectionString, nil
	}

	u, err := url.Parse(connectionString)
	if err != nil {
		return "", fmt.Errorf("failed to parse URI: %w", err)
	}
	if u.Scheme != "mysql" {
		return "", fmt.Errorf("unsupported scheme: %s (expected mysql)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("host is required")
	}

	var userInfo string
	if u.User != nil {
		username := u.User.Username()
		password, _ := u.User.Password()
		if password != "" {
			userInfo = username + ":" + password
		} else {
			userInfo = username
		}
	}

	database := strings.TrimPrefix(u.Path, "/")
	if database == "" {
		database = "exchange"
	}

	dsn := fmt.Sprintf("%s@tcp(%s)/%s", userInfo, u.Host, database)

	defaultParams := url.Values{
		"parseTime": []string{"true"},
		"charset":   []string{"utf8mb4"},
		"collation": []string{"utf8mb4_unicode_ci"},
	}
	existingParams := u.Query()
	for key, values := range defaultParams {
		if !existingParams.Has(key) {
			existingParams[key] = values
		}
	}
	if len(existingParams) > 0 {
		dsn += "?" + existingParams.Encode()
	}
	return dsn, nil
}

// Connect opens and pings a connection to the backend named by
// DATABASE_URL (accepted either as a traditional DSN or a mysql:// URI).
func Connect(databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	dsn, err := convertURIToDSN(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to process connection string: %w", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	return db, nil
}

// schema is the exchange's relational schema. Idempotent so repeated
// Migrate calls (process restarts) are safe.
const schema = `
CREATE TABLE IF NOT EXISTS principals (
	id CHAR(36) PRIMARY KEY,
	name VARCHAR(64) NOT NULL UNIQUE,
	role ENUM('USER','ADMIN') NOT NULL,
	api_key CHAR(36) NOT NULL UNIQUE,
	created_at DATETIME(6) NOT NULL
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS instruments (
	ticker VARCHAR(10) PRIMARY KEY,
	name VARCHAR(128) NOT NULL UNIQUE
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS balances (
	user_id CHAR(36) NOT NULL,
	ticker VARCHAR(10) NOT NULL,
	total BIGINT NOT NULL DEFAULT 0,
	reserved BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, ticker),
	FOREIGN KEY (user_id) REFERENCES principals(id) ON DELETE CASCADE,
	FOREIGN KEY (ticker) REFERENCES instruments(ticker) ON DELETE CASCADE
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS orders (
	id CHAR(36) PRIMARY KEY,
	user_id CHAR(36) NOT NULL,
	ticker VARCHAR(10) NOT NULL,
	direction ENUM('BUY','SELL') NOT NULL,
	type ENUM('LIMIT','MARKET') NOT NULL,
	qty BIGINT NOT NULL,
	price BIGINT NULL,
	filled BIGINT NOT NULL DEFAULT 0,
	status ENUM('NEW','PARTIALLY_EXECUTED','EXECUTED','CANCELLED') NOT NULL,
	created_at DATETIME(6) NOT NULL,
	FOREIGN KEY (user_id) REFERENCES principals(id) ON DELETE CASCADE,
	FOREIGN KEY (ticker) REFERENCES instruments(ticker) ON DELETE CASCADE,
	INDEX idx_orders_resting (ticker, direction, status, price, created_at)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS transactions (
	id CHAR(36) PRIMARY KEY,
	ticker VARCHAR(10) NOT NULL,
	price BIGINT NOT NULL,
	qty BIGINT NOT NULL,
	executed_at DATETIME(6) NOT NULL,
	FOREIGN KEY (ticker) REFERENCES instruments(ticker) ON DELETE CASCADE,
	INDEX idx_transactions_ticker (ticker, executed_at)
) ENGINE=InnoDB;
`

// Migrate applies the exchange's schema, creating tables that don't
// already exist.
func Migrate(db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";\n\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
