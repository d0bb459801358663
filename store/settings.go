package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

const settingsKey = "app_settings"

// GetSettings loads the settings record, merged over defaults so a record
// written by an older version still loads cleanly.
func (s *Store) GetSettings() (Settings, error) {
	settings := DefaultSettings()
	if !s.enabled {
		return settings, nil
	}

	var value string
	err := s.conn.QueryRow(
		"SELECT value FROM settings WHERE key = ?", settingsKey,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return settings, nil
	}
	if err != nil {
		return settings, storageErr("get settings", err)
	}

	if err := json.Unmarshal([]byte(value), &settings); err != nil {
		// Corrupt record; fall back to defaults
		return DefaultSettings(), nil
	}
	return settings, nil
}

// SaveSettings persists the settings record
func (s *Store) SaveSettings(settings Settings) error {
	if !s.enabled {
		return nil
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return storageErr("save settings", err)
	}

	_, err = s.conn.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		settingsKey, string(data), time.Now(),
	)
	if err != nil {
		return storageErr("save settings", err)
	}
	return nil
}
