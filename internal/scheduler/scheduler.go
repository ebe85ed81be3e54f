package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/alansee1/flooorgang/internal/config"
	"github.com/alansee1/flooorgang/internal/reconciler"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// ResultsRunner scores a day's picks
type ResultsRunner interface {
	Run(ctx context.Context, date string, unscoredOnly bool) (*reconciler.Report, error)
}

// Daemon drives the daily workflow from cron:
// - plan and arm today's scanner run each morning
// - check in every 30 minutes in case the morning plan failed
// - score yesterday's picks the next morning
type Daemon struct {
	cfg      *config.Config
	planner  *Planner
	results  ResultsRunner
	location *time.Location
	cron     *cron.Cron
}

// NewDaemon creates a new daemon instance
func NewDaemon(cfg *config.Config, planner *Planner, results ResultsRunner) *Daemon {
	loc := cfg.Location()
	return &Daemon{
		cfg:      cfg,
		planner:  planner,
		results:  results,
		location: loc,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
	}
}

// Start registers the cron jobs and starts the scheduler
func (d *Daemon) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	jobs := []struct {
		name string
		expr string
		fn   func()
	}{
		{"daily plan", d.cfg.PlanCron, func() { d.checkIn(ctx, "plan") }},
		{"check-in", d.cfg.CheckinCron, func() { d.checkIn(ctx, "checkin") }},
		{"results", d.cfg.ResultsCron, func() { d.scoreYesterday(ctx) }},
	}

	for _, j := range jobs {
		if _, err := d.cron.AddFunc(j.expr, j.fn); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", j.name, err)
		}
		log.Info().
			Str("job", j.name).
			Str("schedule", j.expr).
			Str("timezone", d.location.String()).
			Msg("Cron job scheduled")
	}

	d.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (d *Daemon) Stop() {
	log.Info().Msg("Stopping scheduler...")
	<-d.cron.Stop().Done()
	log.Info().Msg("Scheduler stopped")
}

func (d *Daemon) checkIn(ctx context.Context, trigger string) {
	runDate := d.planner.Today()
	run, res, err := d.planner.PlanAndArm(ctx, runDate)
	if err != nil {
		log.Error().Err(err).Str("trigger", trigger).Str("run_date", runDate).Msg("Planning failed")
		return
	}
	if res.AlreadyArmed {
		return
	}
	log.Info().
		Str("trigger", trigger).
		Str("run_date", runDate).
		Str("reason", string(run.Reason)).
		Str("job_id", res.JobID).
		Msg("Check-in complete")
}

func (d *Daemon) scoreYesterday(ctx context.Context) {
	date := d.planner.now().In(d.location).AddDate(0, 0, -1).Format("2006-01-02")
	log.Info().Str("date", date).Msg("Running results tracker...")

	report, err := d.results.Run(ctx, date, true)
	if err != nil {
		log.Error().Err(err).Str("date", date).Msg("Results tracker failed")
		return
	}
	log.Info().
		Str("date", date).
		Int("scored", len(report.Results)).
		Int("left_unscored", report.Transient).
		Msg("Results tracker finished")
}
