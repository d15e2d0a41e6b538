package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
)

// SettingRepository stores configuration flags in the settings table
type SettingRepository struct {
	db *sql.DB
}

// NewSettingRepository creates the settings table when missing
func NewSettingRepository(ctx context.Context, db *sql.DB) (*SettingRepository, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		updated_by TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}
	return &SettingRepository{db: db}, nil
}

// Get returns one setting
func (r *SettingRepository) Get(ctx context.Context, key string) (*entities.Setting, error) {
	var s entities.Setting
	err := r.db.QueryRowContext(ctx,
		`SELECT key, value, updated_at, updated_by FROM settings WHERE key = ?`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedAt, &s.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrSettingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Set writes the setting and reads it back
func (r *SettingRepository) Set(ctx context.Context, setting *entities.Setting) (*entities.Setting, error) {
	updatedAt := setting.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at, updated_by) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		setting.Key, setting.Value, updatedAt, setting.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, setting.Key)
}

// List returns every stored setting ordered by key
func (r *SettingRepository) List(ctx context.Context) ([]*entities.Setting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, updated_at, updated_by FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entities.Setting
	for rows.Next() {
		var s entities.Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt, &s.UpdatedBy); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
