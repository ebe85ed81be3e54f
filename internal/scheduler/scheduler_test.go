package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alansee1/flooorgang/internal/config"
	"github.com/alansee1/flooorgang/internal/models"
	"github.com/alansee1/flooorgang/internal/reconciler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResults struct {
	dates        []string
	unscoredOnly []bool
}

func (f *fakeResults) Run(ctx context.Context, date string, unscoredOnly bool) (*reconciler.Report, error) {
	f.dates = append(f.dates, date)
	f.unscoredOnly = append(f.unscoredOnly, unscoredOnly)
	return &reconciler.Report{Date: date, Counts: map[models.Outcome]int{}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		DisplayTimezone: "America/Los_Angeles",
		PlanCron:        "0 9 * * *",
		CheckinCron:     "*/30 * * * *",
		ResultsCron:     "0 8 * * *",
	}
}

func TestDaemon_StartStop(t *testing.T) {
	cal := &fakeCalendar{}
	p, _, _, _ := newTestPlanner(cal, utc(12, 0))
	d := NewDaemon(testConfig(), p, &fakeResults{})

	require.NoError(t, d.Start(context.Background()))
	assert.Len(t, d.cron.Entries(), 3)
	d.Stop()
}

func TestDaemon_BadCron(t *testing.T) {
	cfg := testConfig()
	cfg.CheckinCron = "every half hour"

	p, _, _, _ := newTestPlanner(&fakeCalendar{}, utc(12, 0))
	d := NewDaemon(cfg, p, &fakeResults{})
	assert.Error(t, d.Start(context.Background()))
}

func TestDaemon_CheckInArmsToday(t *testing.T) {
	// 12:00Z is 04:00 in Los Angeles on Nov 12
	cal := &fakeCalendar{games: []models.Game{{ID: "g1", StartTime: utc(19, 0)}}}
	p, exec, _, _ := newTestPlanner(cal, utc(12, 0))
	p.policy.Location = testConfig().Location()
	d := NewDaemon(testConfig(), p, &fakeResults{})

	d.checkIn(context.Background(), "plan")
	d.checkIn(context.Background(), "checkin")

	jobs, err := exec.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, utc(16, 0), jobs[0].At)
}

func TestDaemon_ScoresYesterday(t *testing.T) {
	results := &fakeResults{}
	// 15:00Z Nov 13 is 07:00 Nov 13 in Los Angeles
	p, _, _, _ := newTestPlanner(&fakeCalendar{}, time.Date(2025, 11, 13, 15, 0, 0, 0, time.UTC))
	d := NewDaemon(testConfig(), p, results)

	d.scoreYesterday(context.Background())
	assert.Equal(t, []string{"2025-11-12"}, results.dates)
	assert.Equal(t, []bool{true}, results.unscoredOnly)
}
