package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"visakal-form/internal/config"
)

const pingTimeout = 5 * time.Second

// OpenPostgres opens the drafts database and waits for one successful ping.
func OpenPostgres(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("open drafts database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	// drafts traffic is bursty; recycle connections so a failover is picked up
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping drafts database %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

// Close tolerates a nil handle, which is what callers hold when the DB is disabled.
func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
