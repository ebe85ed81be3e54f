package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alansee1/flooorgang/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLedger is an in-memory RunLedger with the same insert-if-absent semantics as scheduled_runs.
type memLedger struct {
	mu   sync.Mutex
	recs map[string]models.ScheduledRunRecord
}

func newMemLedger() *memLedger {
	return &memLedger{recs: make(map[string]models.ScheduledRunRecord)}
}

func (l *memLedger) Claim(ctx context.Context, rec *models.ScheduledRunRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.recs[rec.RunDate]; ok {
		return false, nil
	}
	l.recs[rec.RunDate] = *rec
	return true, nil
}

func (l *memLedger) SetJobID(ctx context.Context, runDate, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.recs[runDate]
	if !ok {
		return errors.New("no marker")
	}
	rec.JobID = &jobID
	l.recs[runDate] = rec
	return nil
}

func (l *memLedger) Release(ctx context.Context, runDate string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.recs, runDate)
	return nil
}

func (l *memLedger) Get(ctx context.Context, runDate string) (*models.ScheduledRunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.recs[runDate]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

type fakePipeline struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (f *fakePipeline) Run(ctx context.Context, runDate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, runDate)
	return f.err
}

func (f *fakePipeline) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

var testCommand = CommandSpec{
	Bin:    "/usr/local/bin/propsched",
	Dir:    "/srv/flooorgang",
	Env:    []string{"APP_ENV=production"},
	LogDir: "/srv/flooorgang/logs",
}

func newTestDeferred() (*Deferred, *MemoryExecutor, *memLedger, *fakePipeline) {
	exec := NewMemoryExecutor()
	ledger := newMemLedger()
	pipe := &fakePipeline{}
	return NewDeferred(exec, ledger, pipe, testCommand), exec, ledger, pipe
}

func scheduledRun(at time.Time) models.ScheduledRun {
	return models.ScheduledRun{RunDate: "2025-11-12", StartTime: &at, Reason: models.ReasonScheduled}
}

func TestArm_NoGamesArmsNothing(t *testing.T) {
	d, exec, _, pipe := newTestDeferred()
	ctx := context.Background()

	res, err := d.Arm(ctx, models.ScheduledRun{RunDate: "2025-11-12", Reason: models.ReasonNoGames})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonNoGames, res.Reason)
	assert.Empty(t, res.JobID)

	jobs, err := exec.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Equal(t, 0, pipe.count())
}

func TestArm_ScheduledSubmitsOneJob(t *testing.T) {
	d, exec, ledger, pipe := newTestDeferred()
	ctx := context.Background()
	at := utc(16, 0)

	res, err := d.Arm(ctx, scheduledRun(at))
	require.NoError(t, err)
	assert.False(t, res.AlreadyArmed)
	assert.NotEmpty(t, res.JobID)

	jobs, err := exec.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, at, jobs[0].At)
	assert.Equal(t, []string{"/usr/local/bin/propsched", "run", "--date", "2025-11-12"}, jobs[0].Command.Args)
	assert.Equal(t, "/srv/flooorgang", jobs[0].Command.Dir)
	assert.Equal(t, "/srv/flooorgang/logs/scanner_2025-11-12.log", jobs[0].Command.LogPath)
	assert.Equal(t, 0, pipe.count(), "scheduled runs are not executed in-process")

	rec, err := ledger.Get(ctx, "2025-11-12")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.JobID)
	assert.Equal(t, res.JobID, *rec.JobID)
}

func TestArm_IdempotentPerDay(t *testing.T) {
	d, exec, _, _ := newTestDeferred()
	ctx := context.Background()
	run := scheduledRun(utc(16, 0))

	_, err := d.Arm(ctx, run)
	require.NoError(t, err)

	res, err := d.Arm(ctx, run)
	require.NoError(t, err)
	assert.True(t, res.AlreadyArmed)

	jobs, err := exec.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestArm_ConcurrentCheckIns(t *testing.T) {
	d, exec, _, _ := newTestDeferred()
	ctx := context.Background()
	run := scheduledRun(utc(16, 0))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Arm(ctx, run)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	jobs, err := exec.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestArm_RunImmediately(t *testing.T) {
	d, exec, _, pipe := newTestDeferred()
	ctx := context.Background()
	now := utc(17, 0)

	res, err := d.Arm(ctx, models.ScheduledRun{RunDate: "2025-11-12", StartTime: &now, Reason: models.ReasonRunImmediately})
	require.NoError(t, err)
	assert.True(t, res.Ran)
	assert.Equal(t, []string{"2025-11-12"}, pipe.runs)

	jobs, err := exec.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs, "no deferral on the immediate path")

	// a later check-in the same day must not run the pipeline again
	res, err = d.Arm(ctx, models.ScheduledRun{RunDate: "2025-11-12", StartTime: &now, Reason: models.ReasonRunImmediately})
	require.NoError(t, err)
	assert.True(t, res.AlreadyArmed)
	assert.Equal(t, 1, pipe.count())
}

func TestArm_RunImmediatelyFailureIsNotRetried(t *testing.T) {
	d, _, _, pipe := newTestDeferred()
	pipe.err = errors.New("exit status 1")
	ctx := context.Background()
	now := utc(17, 0)
	run := models.ScheduledRun{RunDate: "2025-11-12", StartTime: &now, Reason: models.ReasonRunImmediately}

	_, err := d.Arm(ctx, run)
	require.Error(t, err)

	res, err := d.Arm(ctx, run)
	require.NoError(t, err)
	assert.True(t, res.AlreadyArmed)
	assert.Equal(t, 1, pipe.count())
}

func TestArm_FacilityUnavailableIsFatal(t *testing.T) {
	d, exec, ledger, pipe := newTestDeferred()
	exec.Unavailable = true
	ctx := context.Background()

	_, err := d.Arm(ctx, scheduledRun(utc(16, 0)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFacilityUnavailable))
	assert.Equal(t, 0, pipe.count(), "must not fall back to running now")

	rec, err := ledger.Get(ctx, "2025-11-12")
	require.NoError(t, err)
	assert.Nil(t, rec, "no marker left behind")
}

func TestArm_SubmitFailureReleasesClaim(t *testing.T) {
	d, exec, ledger, _ := newTestDeferred()
	exec.SubmitErr = errors.New("at: cannot open lockfile")
	ctx := context.Background()
	run := scheduledRun(utc(16, 0))

	_, err := d.Arm(ctx, run)
	require.Error(t, err)

	rec, err := ledger.Get(ctx, "2025-11-12")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// the next check-in can arm it
	exec.SubmitErr = nil
	res, err := d.Arm(ctx, run)
	require.NoError(t, err)
	assert.NotEmpty(t, res.JobID)
}

func TestArm_ScheduledWithoutStartTime(t *testing.T) {
	d, _, _, _ := newTestDeferred()
	_, err := d.Arm(context.Background(), models.ScheduledRun{RunDate: "2025-11-12", Reason: models.ReasonScheduled})
	assert.Error(t, err)
}

func TestCancel(t *testing.T) {
	d, exec, _, _ := newTestDeferred()
	ctx := context.Background()

	cancelled, err := d.Cancel(ctx, "2025-11-12")
	require.NoError(t, err)
	assert.False(t, cancelled)

	_, err = d.Arm(ctx, scheduledRun(utc(16, 0)))
	require.NoError(t, err)

	cancelled, err = d.Cancel(ctx, "2025-11-12")
	require.NoError(t, err)
	assert.True(t, cancelled)

	jobs, err := exec.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	armed, err := d.Armed(ctx, "2025-11-12")
	require.NoError(t, err)
	assert.False(t, armed)
}
