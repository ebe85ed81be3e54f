package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alansee1/flooorgang/internal/metrics"
	"github.com/alansee1/flooorgang/internal/models"
	"github.com/alansee1/flooorgang/internal/notify"
	"github.com/rs/zerolog/log"
)

// CalendarProvider lists the games on a calendar day. An empty slice means no games.
type CalendarProvider interface {
	FetchGames(ctx context.Context, runDate string) ([]models.Game, error)
}

// Planner turns the day's calendar into an armed run.
type Planner struct {
	calendar CalendarProvider
	deferred *Deferred
	policy   Policy
	notifier notify.Sink
	now      func() time.Time
}

// NewPlanner creates a planner
func NewPlanner(calendar CalendarProvider, deferred *Deferred, policy Policy, notifier notify.Sink) *Planner {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if notifier == nil {
		notifier = notify.NopSink{}
	}
	return &Planner{
		calendar: calendar,
		deferred: deferred,
		policy:   policy,
		notifier: notifier,
		now:      time.Now,
	}
}

// Today is the current calendar day in the display zone
func (p *Planner) Today() string {
	return models.DayIn(p.now(), p.policy.Location)
}

// PlanDay fetches the calendar and computes the decision without arming anything.
func (p *Planner) PlanDay(ctx context.Context, runDate string) (models.ScheduledRun, []models.Game, error) {
	games, err := p.calendar.FetchGames(ctx, runDate)
	if err != nil {
		return models.ScheduledRun{RunDate: runDate}, nil, fmt.Errorf("failed to fetch games for %s: %w", runDate, err)
	}

	run := Plan(runDate, models.StartTimes(games), p.now(), p.policy)
	return run, games, nil
}

// PlanAndArm plans runDate and arms it. Once a marker exists the calendar is not fetched again.
func (p *Planner) PlanAndArm(ctx context.Context, runDate string) (models.ScheduledRun, ArmResult, error) {
	armed, err := p.deferred.Armed(ctx, runDate)
	if err != nil {
		p.fail(ctx, runDate, err)
		return models.ScheduledRun{RunDate: runDate}, ArmResult{}, err
	}
	if armed {
		log.Debug().Str("run_date", runDate).Msg("Check-in: run already handled today")
		return models.ScheduledRun{RunDate: runDate}, ArmResult{AlreadyArmed: true}, nil
	}

	run, games, err := p.PlanDay(ctx, runDate)
	if err != nil {
		p.fail(ctx, runDate, err)
		return run, ArmResult{}, err
	}

	metrics.RecordDecision(string(run.Reason))
	log.Info().
		Str("run_date", runDate).
		Str("reason", string(run.Reason)).
		Int("games", len(games)).
		Str("start_time", p.policy.Display(run)).
		Msg("Run planned")

	res, err := p.deferred.Arm(ctx, run)
	if err != nil {
		// A failed immediate run has already been reported by the pipeline.
		if !res.Ran {
			p.fail(ctx, runDate, err)
		}
		return run, res, err
	}

	if res.AlreadyArmed {
		return run, res, nil
	}

	switch run.Reason {
	case models.ReasonNoGames:
		notify.Safe(ctx, p.notifier, notify.Event{
			Kind:    notify.SchedulerNoGames,
			Message: "No games found for today - scanner not scheduled.",
			Context: []notify.Field{notify.F("Date", runDate)},
		})
	case models.ReasonScheduled:
		first := earliestGame(games)
		notify.Safe(ctx, p.notifier, notify.Event{
			Kind:    notify.SchedulerSuccess,
			Message: "Scheduler ran successfully!",
			Context: []notify.Field{
				notify.F("First game", fmt.Sprintf("%s vs %s at %s", first.HomeTeam, first.AwayTeam,
					first.StartTime.In(p.policy.Location).Format("03:04 PM MST"))),
				notify.F("Scanner scheduled for", p.policy.Display(run)),
				notify.F("Job", res.JobID),
			},
		})
	}

	return run, res, nil
}

func (p *Planner) fail(ctx context.Context, runDate string, err error) {
	errType := "transient"
	if errors.Is(err, ErrFacilityUnavailable) {
		errType = "configuration"
	}
	metrics.RecordError("scheduler", errType)

	notify.Safe(ctx, p.notifier, notify.Event{
		Kind:    notify.SchedulerError,
		Message: "Scheduler failed with error:",
		Context: []notify.Field{notify.F("Date", runDate), notify.F("Class", errType)},
		Detail:  err.Error(),
	})
}

func earliestGame(games []models.Game) models.Game {
	first := games[0]
	for _, g := range games[1:] {
		if g.StartTime.Before(first.StartTime) {
			first = g
		}
	}
	return first
}
