package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting returns "" if the key is not set
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var res string
	err := db.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&res)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("can't get setting %s: %w", key, err)
	}
	return res, nil
}

// SetSetting stores value
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("can't set setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes the key
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	if _, err := db.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("can't delete setting %s: %w", key, err)
	}
	return nil
}
