package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/alansee1/flooorgang/internal/metrics"
	"github.com/alansee1/flooorgang/internal/models"
	"github.com/alansee1/flooorgang/internal/pipeline"
	"github.com/rs/zerolog/log"
)

// ErrFacilityUnavailable means one-shot jobs cannot be submitted on this host.
// It is a configuration error and is never retried.
var ErrFacilityUnavailable = errors.New("deferred execution facility unavailable")

// RunLedger persists the one-per-day scheduling marker.
type RunLedger interface {
	// Claim inserts the marker for rec.RunDate if absent and reports whether this call inserted it.
	Claim(ctx context.Context, rec *models.ScheduledRunRecord) (bool, error)
	SetJobID(ctx context.Context, runDate, jobID string) error
	Release(ctx context.Context, runDate string) error
	// Get returns nil, nil when no marker exists.
	Get(ctx context.Context, runDate string) (*models.ScheduledRunRecord, error)
}

// PipelineRunner runs the analysis pipeline synchronously for a day.
type PipelineRunner interface {
	Run(ctx context.Context, runDate string) error
}

// CommandSpec describes how a detached job invokes the pipeline.
type CommandSpec struct {
	Bin    string // propsched binary
	Dir    string
	Env    []string
	LogDir string
}

// For builds the job command for runDate
func (s CommandSpec) For(runDate string) Command {
	return Command{
		Dir:     s.Dir,
		Env:     s.Env,
		Args:    []string{s.Bin, "run", "--date", runDate},
		LogPath: pipeline.LogPath(s.LogDir, runDate),
	}
}

// ArmResult describes what Arm did
type ArmResult struct {
	Reason       models.RunReason
	JobID        string
	AlreadyArmed bool
	Ran          bool
}

// Deferred arms at most one pipeline run per day.
type Deferred struct {
	executor DeferredExecutor
	ledger   RunLedger
	pipeline PipelineRunner
	command  CommandSpec
}

// NewDeferred creates a deferred job scheduler
func NewDeferred(executor DeferredExecutor, ledger RunLedger, pipeline PipelineRunner, command CommandSpec) *Deferred {
	return &Deferred{
		executor: executor,
		ledger:   ledger,
		pipeline: pipeline,
		command:  command,
	}
}

// Arm acts on a day's decision. Repeated calls for the same day are no-ops.
func (d *Deferred) Arm(ctx context.Context, run models.ScheduledRun) (ArmResult, error) {
	res := ArmResult{Reason: run.Reason}

	switch run.Reason {
	case models.ReasonNoGames:
		// The marker stops check-ins from polling the calendar again today.
		claimed, err := d.ledger.Claim(ctx, &models.ScheduledRunRecord{RunDate: run.RunDate, Reason: run.Reason})
		if err != nil {
			log.Warn().Err(err).Str("run_date", run.RunDate).Msg("Failed to record no-games marker")
		}
		res.AlreadyArmed = err == nil && !claimed
		metrics.RecordArm("skipped")
		log.Info().Str("run_date", run.RunDate).Msg("No games today, nothing to arm")
		return res, nil
	case models.ReasonScheduled, models.ReasonRunImmediately:
	default:
		return res, fmt.Errorf("unknown run reason %q", run.Reason)
	}

	if run.StartTime == nil {
		return res, fmt.Errorf("run for %s has reason %s but no start time", run.RunDate, run.Reason)
	}

	if run.Reason == models.ReasonScheduled {
		if err := d.executor.Available(ctx); err != nil {
			metrics.RecordArm("error")
			return res, err
		}
	}

	claimed, err := d.ledger.Claim(ctx, &models.ScheduledRunRecord{
		RunDate:   run.RunDate,
		Reason:    run.Reason,
		StartTime: run.StartTime,
	})
	if err != nil {
		metrics.RecordArm("error")
		return res, fmt.Errorf("failed to claim run for %s: %w", run.RunDate, err)
	}
	if !claimed {
		metrics.RecordArm("already_armed")
		log.Debug().Str("run_date", run.RunDate).Msg("Run already armed for today")
		res.AlreadyArmed = true
		return res, nil
	}

	if run.Reason == models.ReasonRunImmediately {
		log.Info().Str("run_date", run.RunDate).Msg("Start time has passed, running scanner now")
		res.Ran = true
		metrics.RecordArm("ran")
		if err := d.pipeline.Run(ctx, run.RunDate); err != nil {
			return res, fmt.Errorf("immediate scanner run failed: %w", err)
		}
		return res, nil
	}

	jobID, err := d.executor.Submit(ctx, *run.StartTime, d.command.For(run.RunDate))
	if err != nil {
		if relErr := d.ledger.Release(ctx, run.RunDate); relErr != nil {
			log.Error().Err(relErr).Str("run_date", run.RunDate).Msg("Failed to release run claim")
		}
		metrics.RecordArm("error")
		return res, fmt.Errorf("failed to submit scanner job: %w", err)
	}
	res.JobID = jobID

	if err := d.ledger.SetJobID(ctx, run.RunDate, jobID); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record job id, cancel will need atrm")
	}

	metrics.RecordArm("armed")
	metrics.NextRunTimestamp.Set(float64(run.StartTime.Unix()))
	log.Info().
		Str("run_date", run.RunDate).
		Str("job_id", jobID).
		Time("start_time", *run.StartTime).
		Msg("Scanner job armed")

	return res, nil
}

// Cancel removes the day's armed job, if any, and clears its marker.
func (d *Deferred) Cancel(ctx context.Context, runDate string) (bool, error) {
	rec, err := d.ledger.Get(ctx, runDate)
	if err != nil {
		return false, fmt.Errorf("failed to load run marker for %s: %w", runDate, err)
	}
	if rec == nil {
		return false, nil
	}

	if rec.JobID != nil {
		if err := d.executor.Remove(ctx, *rec.JobID); err != nil {
			return false, err
		}
	}

	if err := d.ledger.Release(ctx, runDate); err != nil {
		return false, fmt.Errorf("failed to release run marker for %s: %w", runDate, err)
	}

	log.Info().Str("run_date", runDate).Msg("Scheduled run cancelled")
	return true, nil
}

// Status returns the day's marker and the executor's pending queue.
func (d *Deferred) Status(ctx context.Context, runDate string) (*models.ScheduledRunRecord, []Job, error) {
	rec, err := d.ledger.Get(ctx, runDate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load run marker for %s: %w", runDate, err)
	}
	jobs, err := d.executor.Pending(ctx)
	if err != nil {
		return rec, nil, err
	}
	return rec, jobs, nil
}

// Armed reports whether a marker already exists for runDate.
func (d *Deferred) Armed(ctx context.Context, runDate string) (bool, error) {
	rec, err := d.ledger.Get(ctx, runDate)
	if err != nil {
		return false, fmt.Errorf("failed to load run marker for %s: %w", runDate, err)
	}
	return rec != nil, nil
}
