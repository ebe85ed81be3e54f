package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/alansee1/flooorgang/internal/metrics"
	"github.com/alansee1/flooorgang/internal/models"
	"github.com/alansee1/flooorgang/internal/notify"
	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"
)

// GraphicFlag is appended to the scanner command when graphics are enabled
const GraphicFlag = "--graphic"

// Environment handed to the scanner so it can tag the picks it writes
const (
	EnvRunID    = "FLOOORGANG_RUN_ID"
	EnvScanDate = "FLOOORGANG_SCAN_DATE"
)

var (
	gamesScheduledRe = regexp.MustCompile(`(?m)^Games scheduled:\s*(\d+)`)
	gamesWithPropsRe = regexp.MustCompile(`(?m)^Games with props:\s*(\d+)`)
)

// RunStore records scanner invocations
type RunStore interface {
	Start(ctx context.Context, run *models.ScannerRun) error
	Finish(ctx context.Context, run *models.ScannerRun) error
}

// PickCounter counts the picks a run wrote
type PickCounter interface {
	CountByRun(ctx context.Context, runID uuid.UUID) (int, error)
}

// Config describes the scanner invocation
type Config struct {
	Command  string
	Dir      string
	Env      []string
	Graphics bool
	Timeout  time.Duration
	LogDir   string
}

// Runner executes the analysis pipeline once for a day
type Runner struct {
	cfg      Config
	runs     RunStore
	picks    PickCounter
	notifier notify.Sink
	now      func() time.Time
}

// NewRunner creates a pipeline runner. runs and picks may be nil.
func NewRunner(cfg Config, runs RunStore, picks PickCounter, notifier notify.Sink) *Runner {
	return &Runner{
		cfg:      cfg,
		runs:     runs,
		picks:    picks,
		notifier: notifier,
		now:      time.Now,
	}
}

// Args returns the scanner argv
func (r *Runner) Args() ([]string, error) {
	args, err := shellquote.Split(r.cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scanner command %q: %w", r.cfg.Command, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("scanner command is empty")
	}
	if r.cfg.Graphics {
		args = append(args, GraphicFlag)
	}
	return args, nil
}

// LogPath is the dated log artifact for a run day
func LogPath(dir, runDate string) string {
	return filepath.Join(dir, fmt.Sprintf("scanner_%s.log", runDate))
}

// Run executes the scanner for runDate and reports the outcome.
// A non-zero exit is returned as an error and is not retried.
func (r *Runner) Run(ctx context.Context, runDate string) error {
	date, err := models.ParseDate(runDate)
	if err != nil {
		return err
	}

	args, err := r.Args()
	if err != nil {
		return err
	}

	logPath := LogPath(r.cfg.LogDir, runDate)
	if err := os.MkdirAll(r.cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open scanner log: %w", err)
	}
	defer logFile.Close()

	run := &models.ScannerRun{
		RunID:   uuid.New(),
		RunDate: date,
		Status:  models.ScannerRunning,
		LogPath: sql.NullString{String: logPath, Valid: true},
	}
	r.recordStart(ctx, run)

	log.Info().
		Str("run_date", runDate).
		Str("run_id", run.RunID.String()).
		Strs("args", args).
		Str("log", logPath).
		Msg("Running scanner")

	fmt.Fprintf(logFile, "=== scanner run %s for %s at %s ===\n", run.RunID, runDate, r.now().UTC().Format(time.RFC3339))

	runCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = r.cfg.Dir
	cmd.Env = append(os.Environ(), r.cfg.Env...)
	cmd.Env = append(cmd.Env, EnvRunID+"="+run.RunID.String(), EnvScanDate+"="+runDate)
	cmd.Stdout = io.MultiWriter(logFile, &output)
	cmd.Stderr = io.MultiWriter(logFile, &output)

	start := r.now()
	runErr := cmd.Run()
	duration := r.now().Sub(start)

	exitCode := 0
	if runErr != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			runErr = fmt.Errorf("scanner timed out after %s: %w", r.cfg.Timeout, runCtx.Err())
		}
	}

	stats := ParseStats(output.String())
	run.GamesScheduled = stats.GamesScheduled
	run.GamesWithProps = stats.GamesWithProps
	run.ExitCode = sql.NullInt32{Int32: int32(exitCode), Valid: true}
	run.FinishedAt = sql.NullTime{Time: r.now().UTC(), Valid: true}
	run.Status = models.ScannerSucceeded
	if runErr != nil {
		run.Status = models.ScannerFailed
	}
	r.countPicks(ctx, run)
	r.recordFinish(ctx, run)

	fields := []notify.Field{
		notify.F("Date", runDate),
		notify.F("Duration", duration.Round(time.Second)),
		notify.F("Log", logPath),
	}

	if runErr != nil {
		metrics.RecordPipelineRun("failed", duration.Seconds())
		metrics.RecordError("pipeline", "exit")
		log.Error().
			Err(runErr).
			Int("exit_code", exitCode).
			Str("run_date", runDate).
			Str("log", logPath).
			Dur("duration", duration).
			Msg("Scanner failed")

		notify.Safe(ctx, r.notifier, notify.Event{
			Kind:    notify.ScannerError,
			Message: fmt.Sprintf("Scanner failed with exit code %d", exitCode),
			Context: append([]notify.Field{notify.F("Exit code", exitCode)}, fields...),
			Detail:  output.String(),
		})
		return fmt.Errorf("scanner exited with code %d: %w", exitCode, runErr)
	}

	metrics.RecordPipelineRun("succeeded", duration.Seconds())
	log.Info().
		Str("run_date", runDate).
		Dur("duration", duration).
		Int32("games_scheduled", run.GamesScheduled.Int32).
		Int32("games_with_props", run.GamesWithProps.Int32).
		Int32("picks_created", run.PicksCreated.Int32).
		Msg("Scanner completed")

	if run.GamesScheduled.Valid {
		fields = append(fields, notify.F("Games", fmt.Sprintf("%d/%d had props", run.GamesWithProps.Int32, run.GamesScheduled.Int32)))
	}
	if run.PicksCreated.Valid {
		fields = append(fields, notify.F("Picks", run.PicksCreated.Int32))
	}
	notify.Safe(ctx, r.notifier, notify.Event{
		Kind:    notify.ScannerSuccess,
		Message: fmt.Sprintf("Scanner completed for %s", runDate),
		Context: fields,
	})

	return nil
}

// Stats are the counters the scanner prints
type Stats struct {
	GamesScheduled sql.NullInt32
	GamesWithProps sql.NullInt32
}

// ParseStats extracts the games counters from scanner output.
// The last occurrence of each line wins.
func ParseStats(output string) Stats {
	return Stats{
		GamesScheduled: lastInt(gamesScheduledRe, output),
		GamesWithProps: lastInt(gamesWithPropsRe, output),
	}
}

func lastInt(re *regexp.Regexp, s string) sql.NullInt32 {
	matches := re.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return sql.NullInt32{}
	}
	n, err := strconv.ParseInt(matches[len(matches)-1][1], 10, 32)
	if err != nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(n), Valid: true}
}

func (r *Runner) recordStart(ctx context.Context, run *models.ScannerRun) {
	if r.runs == nil {
		return
	}
	if err := r.runs.Start(ctx, run); err != nil {
		log.Warn().Err(err).Str("run_id", run.RunID.String()).Msg("Failed to record scanner run start")
	}
}

func (r *Runner) recordFinish(ctx context.Context, run *models.ScannerRun) {
	if r.runs == nil {
		return
	}
	if err := r.runs.Finish(ctx, run); err != nil {
		log.Warn().Err(err).Str("run_id", run.RunID.String()).Msg("Failed to record scanner run finish")
	}
}

func (r *Runner) countPicks(ctx context.Context, run *models.ScannerRun) {
	if r.picks == nil {
		return
	}
	n, err := r.picks.CountByRun(ctx, run.RunID)
	if err != nil {
		log.Warn().Err(err).Str("run_id", run.RunID.String()).Msg("Failed to count picks")
		return
	}
	run.PicksCreated = sql.NullInt32{Int32: int32(n), Valid: true}
}
