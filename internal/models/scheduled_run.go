package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used on the CLI, in log names and in storage
const DateLayout = "2006-01-02"

// RunReason explains a day's scheduling decision
type RunReason string

const (
	ReasonScheduled      RunReason = "SCHEDULED"
	ReasonRunImmediately RunReason = "RUN_IMMEDIATELY"
	ReasonNoGames        RunReason = "NO_GAMES"
)

// ScheduledRun is one day's deferred execution decision.
// StartTime is nil when the day is skipped.
type ScheduledRun struct {
	RunDate   string
	StartTime *time.Time
	Reason    RunReason
}

// ScheduledRunRecord is the per-day marker persisted in scheduled_runs
type ScheduledRunRecord struct {
	RunDate   string     `db:"run_date"`
	Reason    RunReason  `db:"reason"`
	StartTime *time.Time `db:"start_time"`
	JobID     *string    `db:"job_id"`
	CreatedAt time.Time  `db:"created_at"`
}

// ParseDate parses a YYYY-MM-DD calendar day as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return d, nil
}

// DayIn returns the calendar day of t in loc.
func DayIn(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
