package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// GetMeta reads a process-persisted key from system_meta. found is
// false if the key has never been set (spec.md §4.10's last_sync_time).
func (s *Store) GetMeta(ctx context.Context, key string) (value string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM system_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlstore: get meta %s: %w", key, err)
	}
	return value, true, nil
}

// SetMeta upserts a process-persisted key/value pair.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("sqlstore: set meta %s: %w", key, err)
	}
	return nil
}
