package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
)

// Open connects to Postgres through the pgx stdlib driver. The database often
// starts alongside the API, so the first ping is retried with backoff.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := ping(ctx, db, connectAttempts, connectBackoff); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ping(ctx context.Context, db *sql.DB, attempts int, backoff time.Duration) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		log.Printf("store: database not ready (attempt %d/%d): %v", attempt, attempts, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping db: %w", ctx.Err())
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("ping db after %d attempts: %w", attempts, err)
}
