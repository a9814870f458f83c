package store

import (
	"database/sql"
	"errors"
	"time"
)

// Setting keys.
const (
	SettingRateConfig = "rate_config"
)

func (db *DB) GetSetting(key string) (string, error) {
	var v string
	err := db.QueryRow(db.Q(`SELECT value FROM settings WHERE key=?`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

func (db *DB) PutSetting(key, value string) error {
	_, err := db.Exec(db.Q(`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`),
		key, value, db.timeArg(time.Now()))
	return err
}
