package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
)

// ConflictStore persists pending conflicts so they survive restarts
type ConflictStore struct {
	db *DB
}

// NewConflictStore returns a syncpkg.ConflictStore backed by db
func NewConflictStore(db *DB) *ConflictStore {
	return &ConflictStore{db: db}
}

// Put stores c, replacing any pending conflict for the same item
func (s *ConflictStore) Put(ctx context.Context, c *syncpkg.ConflictItem) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal conflict: %w", err)
	}

	return s.db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM pending_conflicts WHERE item_id = ? AND id != ?`, c.ItemID, c.ID); err != nil {
			return fmt.Errorf("replace conflict: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pending_conflicts (id, item_id, name, detected_at, payload)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				item_id = excluded.item_id,
				name = excluded.name,
				detected_at = excluded.detected_at,
				payload = excluded.payload
		`, c.ID, c.ItemID, c.Name, c.DetectedAt.UnixMilli(), string(payload))
		if err != nil {
			return fmt.Errorf("insert conflict: %w", err)
		}
		return nil
	})
}

// GetAll returns the pending conflicts ordered by name
func (s *ConflictStore) GetAll(ctx context.Context) ([]*syncpkg.ConflictItem, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT payload FROM pending_conflicts ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := make([]*syncpkg.ConflictItem, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		c, err := decodeConflict(payload)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}
	return conflicts, nil
}

// Get returns one pending conflict
func (s *ConflictStore) Get(ctx context.Context, id string) (*syncpkg.ConflictItem, error) {
	var payload string
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT payload FROM pending_conflicts WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", syncpkg.ErrConflictNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict: %w", err)
	}
	return decodeConflict(payload)
}

// Resolve removes the conflict and returns it
func (s *ConflictStore) Resolve(ctx context.Context, id string) (*syncpkg.ConflictItem, error) {
	var c *syncpkg.ConflictItem
	err := s.db.Transaction(func(tx *sql.Tx) error {
		var payload string
		err := tx.QueryRowContext(ctx,
			`SELECT payload FROM pending_conflicts WHERE id = ?`, id).Scan(&payload)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", syncpkg.ErrConflictNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("get conflict: %w", err)
		}
		if c, err = decodeConflict(payload); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_conflicts WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete conflict: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Count returns the number of pending conflicts
func (s *ConflictStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_conflicts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count conflicts: %w", err)
	}
	return n, nil
}

func decodeConflict(payload string) (*syncpkg.ConflictItem, error) {
	var c syncpkg.ConflictItem
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("decode conflict: %w", err)
	}
	return &c, nil
}
