package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alansee1/flooorgang/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// ScheduledRunRepository stores the per-day scheduling marker.
// The run_date primary key makes Claim an atomic insert-if-absent.
type ScheduledRunRepository struct {
	db *Database
}

// Claim inserts the marker for rec.RunDate and reports whether this call won.
func (r *ScheduledRunRepository) Claim(ctx context.Context, rec *models.ScheduledRunRecord) (bool, error) {
	query := `
		INSERT INTO scheduled_runs (run_date, reason, start_time, job_id)
		VALUES ($1::date, $2, $3, $4)
		ON CONFLICT (run_date) DO NOTHING
	`

	start := time.Now()
	tag, err := r.db.Pool.Exec(ctx, query, rec.RunDate, string(rec.Reason), rec.StartTime, rec.JobID)
	observe("insert", "scheduled_runs", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to claim run date %s: %w", rec.RunDate, err)
	}

	won := tag.RowsAffected() == 1
	log.Debug().
		Str("run_date", rec.RunDate).
		Str("reason", string(rec.Reason)).
		Bool("claimed", won).
		Msg("Run date claim")

	return won, nil
}

// SetJobID records the OS job id on an existing marker
func (r *ScheduledRunRepository) SetJobID(ctx context.Context, runDate, jobID string) error {
	start := time.Now()
	tag, err := r.db.Pool.Exec(ctx, `UPDATE scheduled_runs SET job_id = $2 WHERE run_date = $1::date`, runDate, jobID)
	observe("update", "scheduled_runs", start, err)
	if err != nil {
		return fmt.Errorf("failed to set job id for %s: %w", runDate, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scheduled run %s: %w", runDate, ErrNotFound)
	}
	return nil
}

// Release deletes the marker so a later check-in can arm the day again
func (r *ScheduledRunRepository) Release(ctx context.Context, runDate string) error {
	start := time.Now()
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM scheduled_runs WHERE run_date = $1::date`, runDate)
	observe("delete", "scheduled_runs", start, err)
	if err != nil {
		return fmt.Errorf("failed to release run date %s: %w", runDate, err)
	}
	return nil
}

// Get returns the marker for runDate, or nil when the day is unclaimed
func (r *ScheduledRunRepository) Get(ctx context.Context, runDate string) (*models.ScheduledRunRecord, error) {
	query := `
		SELECT run_date::text, reason, start_time, job_id, created_at
		FROM scheduled_runs
		WHERE run_date = $1::date
	`

	var (
		rec    models.ScheduledRunRecord
		reason string
	)

	start := time.Now()
	err := r.db.Pool.QueryRow(ctx, query, runDate).Scan(&rec.RunDate, &reason, &rec.StartTime, &rec.JobID, &rec.CreatedAt)
	observe("select", "scheduled_runs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled run %s: %w", runDate, err)
	}

	rec.Reason = models.RunReason(reason)
	return &rec, nil
}
