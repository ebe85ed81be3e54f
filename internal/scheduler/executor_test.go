package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	stdin string
	name  string
	args  []string
}

func stubAt(outputs map[string]string, errs map[string]error) (*AtExecutor, *[]call) {
	var calls []call
	e := NewAtExecutor()
	e.Location = time.UTC
	e.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	e.run = func(ctx context.Context, stdin string, name string, args ...string) (string, error) {
		calls = append(calls, call{stdin: stdin, name: name, args: args})
		return outputs[name], errs[name]
	}
	return e, &calls
}

func TestScript(t *testing.T) {
	script, err := Script(Command{
		Dir:     "/srv/floor gang",
		Env:     []string{"APP_ENV=production", "EMPTY="},
		Args:    []string{"/usr/local/bin/propsched", "run", "--date", "2025-11-12"},
		LogPath: "/srv/floor gang/logs/scanner_2025-11-12.log",
	})
	require.NoError(t, err)

	assert.Equal(t, strings.Join([]string{
		"#!/bin/sh",
		"export APP_ENV=production",
		"export EMPTY=''",
		"cd '/srv/floor gang' || exit 1",
		"/usr/local/bin/propsched run --date 2025-11-12 >> '/srv/floor gang/logs/scanner_2025-11-12.log' 2>&1",
		"",
	}, "\n"), script)

	_, err = Script(Command{})
	assert.Error(t, err)

	_, err = Script(Command{Args: []string{"x"}, Env: []string{"NOEQUALS"}})
	assert.Error(t, err)
}

func TestAtExecutor_Submit(t *testing.T) {
	e, calls := stubAt(map[string]string{
		"at": "warning: commands will be executed using /bin/sh\njob 42 at Wed Nov 12 16:00:00 2025\n",
	}, nil)

	id, err := e.Submit(context.Background(), utc(16, 0), Command{Args: []string{"propsched", "run"}})
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, "at", c.name)
	assert.Equal(t, []string{"-t", "202511121600.00"}, c.args)
	assert.Contains(t, c.stdin, "propsched run")
}

func TestAtExecutor_SubmitErrors(t *testing.T) {
	e, _ := stubAt(map[string]string{"at": "garbled"}, nil)
	_, err := e.Submit(context.Background(), utc(16, 0), Command{Args: []string{"x"}})
	assert.Error(t, err)

	e, _ = stubAt(map[string]string{"at": "Can't open /var/run/atd.pid"}, map[string]error{"at": errors.New("exit status 1")})
	_, err = e.Submit(context.Background(), utc(16, 0), Command{Args: []string{"x"}})
	assert.Error(t, err)
}

func TestAtExecutor_Available(t *testing.T) {
	e, _ := stubAt(nil, nil)
	assert.NoError(t, e.Available(context.Background()))

	e, _ = stubAt(nil, map[string]error{"atq": errors.New("exit status 1")})
	err := e.Available(context.Background())
	assert.True(t, errors.Is(err, ErrFacilityUnavailable))

	e, _ = stubAt(nil, nil)
	e.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	err = e.Available(context.Background())
	assert.True(t, errors.Is(err, ErrFacilityUnavailable))
}

func TestAtExecutor_PendingAndRemove(t *testing.T) {
	e, calls := stubAt(map[string]string{
		"atq": "42\tWed Nov 12 16:00:00 2025 a deploy\n7\tThu Nov  6 09:30:00 2025 a deploy\nnoise\n",
	}, nil)

	jobs, err := e.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "42", jobs[0].ID)
	assert.Equal(t, utc(16, 0), jobs[0].At)
	assert.Equal(t, time.Date(2025, 11, 6, 9, 30, 0, 0, time.UTC), jobs[1].At)

	require.NoError(t, e.Remove(context.Background(), "42"))
	last := (*calls)[len(*calls)-1]
	assert.Equal(t, "atrm", last.name)
	assert.Equal(t, []string{"42"}, last.args)
}

func TestMemoryExecutor(t *testing.T) {
	m := NewMemoryExecutor()
	ctx := context.Background()

	id1, err := m.Submit(ctx, utc(18, 0), Command{Args: []string{"b"}})
	require.NoError(t, err)
	_, err = m.Submit(ctx, utc(16, 0), Command{Args: []string{"a"}})
	require.NoError(t, err)

	jobs, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, []string{"a"}, jobs[0].Command.Args, "ordered by instant")

	require.NoError(t, m.Remove(ctx, id1))
	assert.Error(t, m.Remove(ctx, id1))
}
