package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xvierd/stepflow/internal/ports"
)

// stateRepository implements ports.StateRepository with a key/value table.
type stateRepository struct {
	db *sql.DB
}

func newStateRepository(db *sql.DB) ports.StateRepository {
	return &stateRepository{db: db}
}

// Load returns the value stored under key, or nil when there is none.
func (r *stateRepository) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state %q: %w", key, err)
	}
	return value, nil
}

// Save stores value under key, replacing any earlier value.
func (r *stateRepository) Save(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, utc(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save state %q: %w", key, err)
	}
	return nil
}
