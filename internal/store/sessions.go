package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/session"
)

// Load implements session.Store. Expired rows are reported as session.ErrNotFound.
func (s *PostgresStore) Load(ctx context.Context, id string) (map[string]json.RawMessage, error) {
	query := `SELECT data FROM sessions WHERE session_key = $1 AND expires_at > $2;`
	var data []byte
	err := s.db.QueryRowContext(ctx, query, id, time.Now().UTC()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("store: LoadSession failed to scan row: %w", err)
	}

	values := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("store: LoadSession failed to decode data: %w", err)
	}
	return values, nil
}

// Save implements session.Store as an upsert.
func (s *PostgresStore) Save(ctx context.Context, id string, values map[string]json.RawMessage, expiresAt time.Time) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("store: SaveSession failed to encode data: %w", err)
	}
	query := `
		INSERT INTO sessions (session_key, data, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_key) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at;
	`
	if _, err := s.db.ExecContext(ctx, query, id, data, expiresAt.UTC()); err != nil {
		return fmt.Errorf("store: SaveSession failed to execute upsert: %w", err)
	}
	return nil
}

// Delete implements session.Store. Deleting an unknown session is not an error.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE session_key = $1;`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("store: DeleteSession failed to execute delete: %w", err)
	}
	return nil
}

// DeleteExpired removes every expired session and returns how many rows went away.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= $1;`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("store: DeleteExpired failed to execute delete: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: DeleteExpired failed to get rows affected: %w", err)
	}
	return n, nil
}
