package store

import (
	"context"
	"fmt"
	"time"
)

// SystemConfig reads one key from the system_config key-value table.
// The gateway and engine do not read this table; their settings come
// from the service configuration at startup.
func (s *Store) SystemConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM system_config WHERE key = ?`, key)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return "", false, nil
		}
		return "", false, fmt.Errorf("store: reading config key %q: %w", key, err)
	}
	return value, true, nil
}

// SetSystemConfig upserts a config key.
func (s *Store) SetSystemConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	return err
}
