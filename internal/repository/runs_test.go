//go:build integration

package repository

import (
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alansee1/flooorgang/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreResultRepository_UpsertReplaces(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	date := testDate()
	defer cleanupDate(t, db, date)

	pick := insertPick(t, ctx, db, date, models.BetOver, "20.5")

	require.NoError(t, db.Results.Upsert(ctx, &models.ScoreResult{
		PickID:   pick.PickID,
		Outcome:  models.OutcomeUnscorable,
		ScoredAt: time.Now().UTC(),
	}))

	actual := decimal.RequireFromString("20.5")
	require.NoError(t, db.Results.Upsert(ctx, &models.ScoreResult{
		PickID:      pick.PickID,
		ActualValue: &actual,
		Outcome:     models.OutcomePush,
		ScoredAt:    time.Now().UTC(),
	}))

	got, err := db.Results.GetByPickID(ctx, pick.PickID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePush, got.Outcome)
	require.NotNil(t, got.ActualValue)
	assert.True(t, got.ActualValue.Equal(actual))

	counts, err := db.Results.CountByDate(ctx, date.Format(models.DateLayout))
	require.NoError(t, err)
	assert.Equal(t, map[models.Outcome]int{models.OutcomePush: 1}, counts)
}

func TestScoreResultRepository_NotFound(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	_, err := db.Results.GetByPickID(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestScheduledRunRepository_ClaimOnce(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	runDate := testDate().Format(models.DateLayout)
	defer func() { _ = db.ScheduledRuns.Release(ctx, runDate) }()

	start := time.Date(2025, 11, 12, 16, 0, 0, 0, time.UTC)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := db.ScheduledRuns.Claim(ctx, &models.ScheduledRunRecord{
				RunDate:   runDate,
				Reason:    models.ReasonScheduled,
				StartTime: &start,
			})
			assert.NoError(t, err)
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	require.NoError(t, db.ScheduledRuns.SetJobID(ctx, runDate, "42"))

	rec, err := db.ScheduledRuns.Get(ctx, runDate)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, runDate, rec.RunDate)
	assert.Equal(t, models.ReasonScheduled, rec.Reason)
	require.NotNil(t, rec.JobID)
	assert.Equal(t, "42", *rec.JobID)
	require.NotNil(t, rec.StartTime)
	assert.True(t, rec.StartTime.Equal(start))

	require.NoError(t, db.ScheduledRuns.Release(ctx, runDate))
	rec, err = db.ScheduledRuns.Get(ctx, runDate)
	require.NoError(t, err)
	assert.Nil(t, rec)

	err = db.ScheduledRuns.SetJobID(ctx, runDate, "43")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestScannerRunRepository_Lifecycle(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	date := testDate()
	defer func() {
		_, _ = db.Pool.Exec(ctx, `DELETE FROM scanner_runs WHERE run_date = $1::date`, date.Format(models.DateLayout))
	}()

	run := &models.ScannerRun{
		RunID:   uuid.New(),
		RunDate: date,
		Status:  models.ScannerRunning,
		LogPath: sql.NullString{String: "logs/scanner.log", Valid: true},
	}
	require.NoError(t, db.ScannerRuns.Start(ctx, run))
	assert.False(t, run.StartedAt.IsZero())

	run.Status = models.ScannerSucceeded
	run.GamesScheduled = sql.NullInt32{Int32: 9, Valid: true}
	run.GamesWithProps = sql.NullInt32{Int32: 7, Valid: true}
	run.PicksCreated = sql.NullInt32{Int32: 4, Valid: true}
	run.ExitCode = sql.NullInt32{Int32: 0, Valid: true}
	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	require.NoError(t, db.ScannerRuns.Finish(ctx, run))

	runs, err := db.ScannerRuns.ListByDate(ctx, date.Format(models.DateLayout))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.ScannerSucceeded, runs[0].Status)
	assert.Equal(t, int32(9), runs[0].GamesScheduled.Int32)
	assert.Equal(t, int32(7), runs[0].GamesWithProps.Int32)
	assert.Equal(t, int32(4), runs[0].PicksCreated.Int32)
	assert.True(t, runs[0].FinishedAt.Valid)
}
