package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ScannerRunStatus tracks a pipeline invocation
type ScannerRunStatus string

const (
	ScannerRunning   ScannerRunStatus = "running"
	ScannerSucceeded ScannerRunStatus = "succeeded"
	ScannerFailed    ScannerRunStatus = "failed"
)

// ScannerRun is per-day run metadata kept for observability
type ScannerRun struct {
	RunID          uuid.UUID        `db:"run_id"`
	RunDate        time.Time        `db:"run_date"`
	GamesScheduled sql.NullInt32    `db:"games_scheduled"`
	GamesWithProps sql.NullInt32    `db:"games_with_props"`
	PicksCreated   sql.NullInt32    `db:"picks_created"`
	Status         ScannerRunStatus `db:"status"`
	ExitCode       sql.NullInt32    `db:"exit_code"`
	LogPath        sql.NullString   `db:"log_path"`
	StartedAt      time.Time        `db:"started_at"`
	FinishedAt     sql.NullTime     `db:"finished_at"`
}
