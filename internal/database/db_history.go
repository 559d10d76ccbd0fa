package database

import (
	"fmt"
	"strings"
	"time"

	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
)

// maxErrorSummary bounds the stored error text of one pass
const maxErrorSummary = 2000

// HistoryFromResult builds a history row from a finished pass
func HistoryFromResult(provider string, r *syncpkg.SyncResult) *SyncHistory {
	return &SyncHistory{
		PassID:           r.PassID,
		Provider:         provider,
		StartedAt:        r.StartTime,
		FinishedAt:       r.EndTime,
		Uploaded:         r.Uploaded,
		Downloaded:       r.Downloaded,
		Skipped:          r.Skipped,
		Failed:           r.Failed,
		Conflicts:        len(r.Conflicts),
		BytesTransferred: r.BytesTransferred,
		Duration:         r.Duration,
		Status:           ResultStatus(r),
		ErrorSummary:     truncate(strings.Join(r.Errors, "; "), maxErrorSummary),
	}
}

// ResultStatus maps a pass outcome onto the last_sync_status vocabulary
func ResultStatus(r *syncpkg.SyncResult) string {
	switch {
	case r.Cancelled:
		return HistoryCancelled
	case r.Success:
		return HistorySuccess
	case r.Uploaded+r.Downloaded > 0:
		return HistoryPartial
	default:
		return HistoryFailed
	}
}

// InsertSyncHistory inserts a sync history entry
func (db *DB) InsertSyncHistory(h *SyncHistory) error {
	result, err := db.conn.Exec(`
		INSERT INTO sync_history (
			pass_id, provider, started_at, finished_at,
			uploaded, downloaded, skipped, failed, conflicts,
			bytes_transferred, duration_ms, status, error_summary
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		h.PassID, h.Provider, h.StartedAt.UnixMilli(), h.FinishedAt.UnixMilli(),
		h.Uploaded, h.Downloaded, h.Skipped, h.Failed, h.Conflicts,
		h.BytesTransferred, h.Duration.Milliseconds(), h.Status, h.ErrorSummary,
	)
	if err != nil {
		return fmt.Errorf("insert sync history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	h.ID = id
	return nil
}

// ListSyncHistory returns the most recent passes first
func (db *DB) ListSyncHistory(limit int) ([]*SyncHistory, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`
		SELECT id, pass_id, provider, started_at, finished_at,
			uploaded, downloaded, skipped, failed, conflicts,
			bytes_transferred, duration_ms, status, error_summary
		FROM sync_history
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync history: %w", err)
	}
	defer rows.Close()

	var history []*SyncHistory
	for rows.Next() {
		var h SyncHistory
		var started, finished, durationMs int64
		err := rows.Scan(
			&h.ID, &h.PassID, &h.Provider, &started, &finished,
			&h.Uploaded, &h.Downloaded, &h.Skipped, &h.Failed, &h.Conflicts,
			&h.BytesTransferred, &durationMs, &h.Status, &h.ErrorSummary,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sync history: %w", err)
		}
		h.StartedAt = time.UnixMilli(started).UTC()
		h.FinishedAt = time.UnixMilli(finished).UTC()
		h.Duration = time.Duration(durationMs) * time.Millisecond
		history = append(history, &h)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync history: %w", err)
	}

	return history, nil
}

// PruneSyncHistory keeps the newest keep rows
func (db *DB) PruneSyncHistory(keep int) (int64, error) {
	result, err := db.conn.Exec(`
		DELETE FROM sync_history
		WHERE id NOT IN (
			SELECT id FROM sync_history ORDER BY started_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune sync history: %w", err)
	}
	return result.RowsAffected()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
