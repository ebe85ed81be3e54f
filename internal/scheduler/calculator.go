package scheduler

import (
	"time"

	"github.com/alansee1/flooorgang/internal/models"
)

// Policy controls how a day's calendar turns into a run time.
type Policy struct {
	// LeadTime is how long before the first tip-off the scanner should run.
	LeadTime time.Duration
	// MinDeferral collapses very near runs into an immediate one. Zero disables it.
	MinDeferral time.Duration
	// Location is used for display only. All comparisons happen in UTC.
	Location *time.Location
}

// Plan maps the day's game start times to a single run decision.
func Plan(runDate string, starts []time.Time, now time.Time, p Policy) models.ScheduledRun {
	run := models.ScheduledRun{RunDate: runDate}

	if len(starts) == 0 {
		run.Reason = models.ReasonNoGames
		return run
	}

	now = now.UTC()
	earliest := starts[0].UTC()
	for _, s := range starts[1:] {
		if s.UTC().Before(earliest) {
			earliest = s.UTC()
		}
	}

	candidate := earliest.Add(-p.LeadTime)
	if !candidate.After(now) || (p.MinDeferral > 0 && candidate.Sub(now) < p.MinDeferral) {
		run.Reason = models.ReasonRunImmediately
		run.StartTime = &now
		return run
	}

	run.Reason = models.ReasonScheduled
	run.StartTime = &candidate
	return run
}

// Display renders the run time in the policy's display zone.
func (p Policy) Display(run models.ScheduledRun) string {
	if run.StartTime == nil {
		return "-"
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	return run.StartTime.In(loc).Format("2006-01-02 03:04 PM MST")
}
