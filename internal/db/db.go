package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// Open returns a handle limited to a single physical connection. Nothing is
// dialed until the first ping or query.
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// PostgresDSN builds a URL-form DSN. connect_timeout mirrors the selector's
// bound so the server side gives up at the same point.
func PostgresDSN(host string, port int, user, password, name string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, password),
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + name,
	}
	q := url.Values{}
	q.Set("connect_timeout", strconv.Itoa(int(ConnectTimeout.Seconds())))
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

// SQLiteDSN treats host as a database file path. The directory must exist.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
}

var schema = map[string][]string{
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS host_metrics (
			id SERIAL PRIMARY KEY,
			cpu_usage DOUBLE PRECISION NOT NULL,
			memory_usage DOUBLE PRECISION NOT NULL,
			memory_total BIGINT NOT NULL,
			memory_used BIGINT NOT NULL,
			host_ip VARCHAR(64) NOT NULL,
			ping_latency DOUBLE PRECISION NOT NULL,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_host_metrics_timestamp ON host_metrics(timestamp DESC);`,
	},
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS host_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cpu_usage REAL NOT NULL,
			memory_usage REAL NOT NULL,
			memory_total INTEGER NOT NULL,
			memory_used INTEGER NOT NULL,
			host_ip TEXT NOT NULL,
			ping_latency REAL NOT NULL,
			timestamp TIMESTAMP NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
		);`,
		`CREATE INDEX IF NOT EXISTS idx_host_metrics_timestamp ON host_metrics(timestamp DESC);`,
	},
}

func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	stmts, ok := schema[driver]
	if !ok {
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}
