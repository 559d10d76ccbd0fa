package database

import "time"

// History status values
const (
	HistorySuccess   = "success"
	HistoryPartial   = "partial"
	HistoryFailed    = "failed"
	HistoryCancelled = "cancelled"
)

// SyncHistory is one recorded engine pass
type SyncHistory struct {
	ID               int64         `json:"id"`
	PassID           string        `json:"pass_id"`
	Provider         string        `json:"provider"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Uploaded         int           `json:"uploaded"`
	Downloaded       int           `json:"downloaded"`
	Skipped          int           `json:"skipped"`
	Failed           int           `json:"failed"`
	Conflicts        int           `json:"conflicts"`
	BytesTransferred int64         `json:"bytes_transferred"`
	Duration         time.Duration `json:"duration"`
	Status           string        `json:"status"` // success, partial, failed, cancelled
	ErrorSummary     string        `json:"error_summary,omitempty"`
}
