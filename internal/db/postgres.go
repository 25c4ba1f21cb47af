// Package db is the single persistence layer. Every component talks to
// PostgreSQL through PostgresStore; primary-key conflicts are the
// idempotency boundary, so re-running any pipeline stage is safe.
package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside the runtime image without shipping the .sql file alongside it.
//
//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the bounded connection pool using pgx.
func Connect(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log.Println("[DB] Connected to PostgreSQL")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Println("[DB] Schema initialized")
	return nil
}

// GetPool exposes the connection pool for subsystems that batch their own
// statements.
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}

// jsonOrEmpty marshals a set-valued field for a JSONB column, mapping nil
// to an empty JSON container instead of SQL null.
func jsonOrEmpty(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		switch v.(type) {
		case map[string]string:
			return "{}"
		default:
			return "[]"
		}
	}
	return string(b)
}

// scanJSON unmarshals a JSONB column into dst, tolerating SQL null.
func scanJSON(raw []byte, dst any) {
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Printf("[DB] Malformed JSON column skipped: %v", err)
	}
}
