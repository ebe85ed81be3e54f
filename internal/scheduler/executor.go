package scheduler

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"
)

// Command is everything needed to start the pipeline from a detached job.
type Command struct {
	Dir     string
	Env     []string // KEY=VALUE
	Args    []string
	LogPath string // stdout and stderr are appended here
}

// Job is a pending one-shot execution.
type Job struct {
	ID      string
	At      time.Time
	Command Command
}

// DeferredExecutor runs a command once at a future instant.
type DeferredExecutor interface {
	// Available reports ErrFacilityUnavailable when jobs cannot be submitted.
	Available(ctx context.Context) error
	Submit(ctx context.Context, at time.Time, cmd Command) (string, error)
	Pending(ctx context.Context) ([]Job, error)
	Remove(ctx context.Context, id string) error
}

// runFunc executes name with args, feeding stdin, and returns combined output.
type runFunc func(ctx context.Context, stdin string, name string, args ...string) (string, error)

func execRun(ctx context.Context, stdin string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

var (
	atJobRe = regexp.MustCompile(`job (\d+) at`)
	atqRe   = regexp.MustCompile(`^(\d+)\s+(\w{3} \w{3}\s+\d+ \d{2}:\d{2}:\d{2} \d{4})`)
)

const atqTimeLayout = "Mon Jan _2 15:04:05 2006"

// AtExecutor submits jobs to the host's at(1) daemon.
type AtExecutor struct {
	AtBin   string
	AtqBin  string
	AtrmBin string
	// Location is the zone atd interprets times in (the host's local zone).
	Location *time.Location

	run      runFunc
	lookPath func(string) (string, error)
}

// NewAtExecutor creates an executor using at, atq and atrm from PATH
func NewAtExecutor() *AtExecutor {
	return &AtExecutor{
		AtBin:    "at",
		AtqBin:   "atq",
		AtrmBin:  "atrm",
		Location: time.Local,
		run:      execRun,
		lookPath: exec.LookPath,
	}
}

// Available checks that the at tools exist and the queue can be read.
func (e *AtExecutor) Available(ctx context.Context) error {
	for _, bin := range []string{e.AtBin, e.AtqBin, e.AtrmBin} {
		if _, err := e.lookPath(bin); err != nil {
			return fmt.Errorf("%w: %s not found: %v", ErrFacilityUnavailable, bin, err)
		}
	}
	if out, err := e.run(ctx, "", e.AtqBin); err != nil {
		return fmt.Errorf("%w: atq failed: %v: %s", ErrFacilityUnavailable, err, strings.TrimSpace(out))
	}
	return nil
}

// Submit queues cmd to run at the given instant and returns the at job number.
func (e *AtExecutor) Submit(ctx context.Context, at time.Time, cmd Command) (string, error) {
	script, err := Script(cmd)
	if err != nil {
		return "", err
	}

	stamp := at.In(e.location()).Format("200601021504.05")
	out, err := e.run(ctx, script, e.AtBin, "-t", stamp)
	if err != nil {
		return "", fmt.Errorf("failed to submit at job: %w: %s", err, strings.TrimSpace(out))
	}

	m := atJobRe.FindStringSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("failed to parse at output: %q", strings.TrimSpace(out))
	}

	log.Debug().
		Str("job_id", m[1]).
		Str("at", stamp).
		Msg("at job submitted")

	return m[1], nil
}

// Pending lists queued jobs. Commands are not recoverable from atq.
func (e *AtExecutor) Pending(ctx context.Context) ([]Job, error) {
	out, err := e.run(ctx, "", e.AtqBin)
	if err != nil {
		return nil, fmt.Errorf("failed to list at jobs: %w", err)
	}
	return parseAtq(out, e.location()), nil
}

// Remove deletes a queued job
func (e *AtExecutor) Remove(ctx context.Context, id string) error {
	if out, err := e.run(ctx, "", e.AtrmBin, id); err != nil {
		return fmt.Errorf("failed to remove at job %s: %w: %s", id, err, strings.TrimSpace(out))
	}
	return nil
}

func (e *AtExecutor) location() *time.Location {
	if e.Location == nil {
		return time.Local
	}
	return e.Location
}

func parseAtq(out string, loc *time.Location) []Job {
	var jobs []Job
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		m := atqRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		at, err := time.ParseInLocation(atqTimeLayout, m[2], loc)
		if err != nil {
			log.Warn().Err(err).Str("line", sc.Text()).Msg("Skipping unparseable atq line")
			continue
		}
		jobs = append(jobs, Job{ID: m[1], At: at.UTC()})
	}
	return jobs
}

// Script renders the shell script an at job runs for cmd.
func Script(cmd Command) (string, error) {
	if len(cmd.Args) == 0 {
		return "", fmt.Errorf("command has no arguments")
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	for _, kv := range cmd.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return "", fmt.Errorf("invalid environment entry %q", kv)
		}
		fmt.Fprintf(&b, "export %s=%s\n", k, shellquote.Join(v))
	}
	if cmd.Dir != "" {
		fmt.Fprintf(&b, "cd %s || exit 1\n", shellquote.Join(cmd.Dir))
	}
	b.WriteString(shellquote.Join(cmd.Args...))
	if cmd.LogPath != "" {
		fmt.Fprintf(&b, " >> %s 2>&1", shellquote.Join(cmd.LogPath))
	}
	b.WriteString("\n")
	return b.String(), nil
}

// MemoryExecutor records submissions without running anything.
type MemoryExecutor struct {
	mu     sync.Mutex
	nextID int
	jobs   map[string]Job

	// Unavailable makes Available fail, as if atd were not running.
	Unavailable bool
	// SubmitErr is returned by Submit when set.
	SubmitErr error
}

// NewMemoryExecutor creates an empty in-memory executor
func NewMemoryExecutor() *MemoryExecutor {
	return &MemoryExecutor{jobs: make(map[string]Job)}
}

func (m *MemoryExecutor) Available(ctx context.Context) error {
	if m.Unavailable {
		return fmt.Errorf("%w: memory executor disabled", ErrFacilityUnavailable)
	}
	return nil
}

func (m *MemoryExecutor) Submit(ctx context.Context, at time.Time, cmd Command) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	m.nextID++
	id := strconv.Itoa(m.nextID)
	m.jobs[id] = Job{ID: id, At: at.UTC(), Command: cmd}
	return id, nil
}

func (m *MemoryExecutor) Pending(ctx context.Context) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].At.Before(jobs[j].At) })
	return jobs, nil
}

func (m *MemoryExecutor) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return fmt.Errorf("job %s not found", id)
	}
	delete(m.jobs, id)
	return nil
}
