package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/alansee1/flooorgang/internal/models"
	"github.com/rs/zerolog/log"
)

// ScannerRunRepository records pipeline invocations
type ScannerRunRepository struct {
	db *Database
}

// Start inserts a run row in the running state
func (r *ScannerRunRepository) Start(ctx context.Context, run *models.ScannerRun) error {
	query := `
		INSERT INTO scanner_runs (run_id, run_date, status, log_path)
		VALUES ($1, $2::date, $3, $4)
		RETURNING started_at
	`

	start := time.Now()
	err := r.db.Pool.QueryRow(ctx, query,
		run.RunID, run.RunDate.Format(models.DateLayout), string(run.Status), run.LogPath,
	).Scan(&run.StartedAt)
	observe("insert", "scanner_runs", start, err)
	if err != nil {
		return fmt.Errorf("failed to record scanner run start: %w", err)
	}

	log.Debug().
		Str("run_id", run.RunID.String()).
		Str("run_date", run.RunDate.Format(models.DateLayout)).
		Msg("Scanner run started")

	return nil
}

// Finish writes the final counters, status and exit code
func (r *ScannerRunRepository) Finish(ctx context.Context, run *models.ScannerRun) error {
	query := `
		UPDATE scanner_runs SET
			games_scheduled = $2,
			games_with_props = $3,
			picks_created = $4,
			status = $5,
			exit_code = $6,
			finished_at = $7
		WHERE run_id = $1
	`

	start := time.Now()
	tag, err := r.db.Pool.Exec(ctx, query,
		run.RunID, run.GamesScheduled, run.GamesWithProps, run.PicksCreated,
		string(run.Status), run.ExitCode, run.FinishedAt,
	)
	observe("update", "scanner_runs", start, err)
	if err != nil {
		return fmt.Errorf("failed to record scanner run finish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scanner run %s: %w", run.RunID, ErrNotFound)
	}

	return nil
}

// ListByDate returns the runs for a day, newest first
func (r *ScannerRunRepository) ListByDate(ctx context.Context, runDate string) ([]*models.ScannerRun, error) {
	query := `
		SELECT run_id, run_date, games_scheduled, games_with_props, picks_created,
			status, exit_code, log_path, started_at, finished_at
		FROM scanner_runs
		WHERE run_date = $1::date
		ORDER BY started_at DESC
	`

	start := time.Now()
	rows, err := r.db.Pool.Query(ctx, query, runDate)
	if err != nil {
		observe("select", "scanner_runs", start, err)
		return nil, fmt.Errorf("failed to query scanner runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ScannerRun
	for rows.Next() {
		var (
			run    models.ScannerRun
			status string
		)
		err := rows.Scan(
			&run.RunID, &run.RunDate, &run.GamesScheduled, &run.GamesWithProps, &run.PicksCreated,
			&status, &run.ExitCode, &run.LogPath, &run.StartedAt, &run.FinishedAt,
		)
		if err != nil {
			observe("select", "scanner_runs", start, err)
			return nil, fmt.Errorf("failed to scan scanner run: %w", err)
		}
		run.Status = models.ScannerRunStatus(status)
		runs = append(runs, &run)
	}
	err = rows.Err()
	observe("select", "scanner_runs", start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating scanner runs: %w", err)
	}

	return runs, nil
}
