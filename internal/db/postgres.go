package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DriverName is the database/sql name registered by pgx's stdlib package.
const DriverName = "pgx"

// Webhook handlers do a few indexed reads and one insert per request, so the
// pool stays small and connections are recycled well inside RDS idle limits.
const (
	maxOpenConns    = 20
	maxIdleConns    = 10
	connMaxLifetime = 30 * time.Minute
	connMaxIdleTime = 5 * time.Minute
	openPingTimeout = 5 * time.Second
)

// Open connects to Postgres and verifies the connection before returning.
// dsn carries the password and must never be logged.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	sqlDB, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	if err := Ping(ctx, sqlDB, openPingTimeout); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

// Ping backs /readyz. A nil handle counts as ready so the API can run against
// in-memory stores.
func Ping(ctx context.Context, sqlDB *sql.DB, timeout time.Duration) error {
	if sqlDB == nil {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("db: ping: %w", err)
	}
	return nil
}
