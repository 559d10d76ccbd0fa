package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Keys of the persisted sync state in app_config
const (
	KeyLastSyncTime   = "last_sync_time"
	KeyLastSyncStatus = "last_sync_status"
)

// --- App Config ---

// GetAppConfig retrieves an app config value, "" when unset
func (db *DB) GetAppConfig(key string) (string, error) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM app_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get app config: %w", err)
	}
	return value, nil
}

// SetAppConfig sets an app config value
func (db *DB) SetAppConfig(key, value, valueType string) error {
	now := time.Now().Unix()
	_, err := db.conn.Exec(`
		INSERT INTO app_config (key, value, value_type, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			value_type = excluded.value_type,
			updated_at = excluded.updated_at
	`, key, value, valueType, now)
	if err != nil {
		return fmt.Errorf("set app config: %w", err)
	}
	return nil
}

// GetAllAppConfig retrieves all app config values
func (db *DB) GetAllAppConfig() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT key, value FROM app_config`)
	if err != nil {
		return nil, fmt.Errorf("query app config: %w", err)
	}
	defer rows.Close()

	config := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan app config: %w", err)
		}
		config[key] = value
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate app config: %w", err)
	}

	return config, nil
}

// --- Sync state ---

// LastSync returns the recorded last sync time and status. The time is zero
// when no pass has completed yet.
func (db *DB) LastSync() (time.Time, string, error) {
	raw, err := db.GetAppConfig(KeyLastSyncTime)
	if err != nil {
		return time.Time{}, "", err
	}
	status, err := db.GetAppConfig(KeyLastSyncStatus)
	if err != nil {
		return time.Time{}, "", err
	}
	if raw == "" {
		return time.Time{}, status, nil
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, status, fmt.Errorf("parse %s %q: %w", KeyLastSyncTime, raw, err)
	}
	return t, status, nil
}

// SetLastSync records the end of a pass
func (db *DB) SetLastSync(at time.Time, status string) error {
	return db.Transaction(func(tx *sql.Tx) error {
		now := time.Now().Unix()
		stmt := `
			INSERT INTO app_config (key, value, value_type, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				value_type = excluded.value_type,
				updated_at = excluded.updated_at`
		if _, err := tx.Exec(stmt, KeyLastSyncTime, at.UTC().Format(time.RFC3339Nano), "time", now); err != nil {
			return fmt.Errorf("set last sync time: %w", err)
		}
		if _, err := tx.Exec(stmt, KeyLastSyncStatus, status, "string", now); err != nil {
			return fmt.Errorf("set last sync status: %w", err)
		}
		return nil
	})
}

// SetLastSyncStatus records the outcome of a pass that does not move the
// last sync time, e.g. a failed one
func (db *DB) SetLastSyncStatus(status string) error {
	return db.SetAppConfig(KeyLastSyncStatus, status, "string")
}

// PasswordKey is the app_config key holding the password of a provider, e.g. webdav_password
func PasswordKey(provider string) string {
	return provider + "_password"
}

// ProviderPassword returns the stored (encrypted) password blob, "" when unset
func (db *DB) ProviderPassword(provider string) (string, error) {
	return db.GetAppConfig(PasswordKey(provider))
}

// SetProviderPassword stores an encrypted password blob. Plaintext never goes here.
func (db *DB) SetProviderPassword(provider, blob string) error {
	return db.SetAppConfig(PasswordKey(provider), blob, "encrypted")
}
