package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskrec/internal/config"
	"deskrec/internal/control"
	"deskrec/internal/event"
	"deskrec/internal/platform"
	"deskrec/internal/store"
)

// executeCommand runs the root command with args and captures its output.
func executeCommand(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--data-dir", dir}, args...))
	err := root.Execute()
	return buf.String(), err
}

// writeLiveLock makes the data directory look like a recorder is running.
// The parent process stands in for the recorder because it is alive and
// is not this process.
func writeLiveLock(t *testing.T, paths control.Paths) {
	t.Helper()
	lock := control.Lock{SessionID: "s1", PID: os.Getppid(), StartWallMs: 1, StartWallISO: "2024-01-01T00:00:00Z"}
	require.NoError(t, os.WriteFile(paths.Lock(), lock.Marshal(), 0600))
}

func TestStatusStopped(t *testing.T) {
	dir := t.TempDir()
	out, err := executeCommand(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorder status: stopped")
}

func TestSignalsWithoutRecorder(t *testing.T) {
	dir := t.TempDir()
	for _, cmd := range []string{"stop", "pause", "resume", "reload"} {
		out, err := executeCommand(t, dir, cmd)
		require.NoError(t, err, cmd)
		assert.Contains(t, out, "Recorder is not running", cmd)
	}
	_, err := os.Stat(filepath.Join(dir, control.StopFile))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPauseResumeStatus(t *testing.T) {
	dir := t.TempDir()
	paths := control.NewPaths(dir)
	writeLiveLock(t, paths)

	out, err := executeCommand(t, dir, "pause")
	require.NoError(t, err)
	assert.Contains(t, out, "Pause requested")

	out, err = executeCommand(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorder status: paused")
	assert.Contains(t, out, "Session: s1")

	_, err = executeCommand(t, dir, "resume")
	require.NoError(t, err)
	out, err = executeCommand(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorder status: running")
}

func TestInitConfig(t *testing.T) {
	dir := t.TempDir()
	out, err := executeCommand(t, dir, "init-config")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default configuration")

	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().MouseHz, cfg.MouseHz)

	out, err = executeCommand(t, dir, "init-config")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestSetVideo(t *testing.T) {
	dir := t.TempDir()
	paths := control.NewPaths(dir)
	st, err := store.Open(paths.Database())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.InsertSession(ctx, event.NewSession("old", time.UnixMilli(1000))))
	require.NoError(t, st.InsertSession(ctx, event.NewSession("new", time.UnixMilli(2000))))
	require.NoError(t, st.Close())

	_, err = executeCommand(t, dir, "set-video", "--session", "old", "old.mkv")
	require.NoError(t, err)
	_, err = executeCommand(t, dir, "set-video", "latest.mkv")
	require.NoError(t, err)
	_, err = executeCommand(t, dir, "set-video", "--session", "missing", "x.mkv")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	st, err = store.Open(paths.Database())
	require.NoError(t, err)
	defer st.Close()
	old, err := st.Session(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "old.mkv", old.VideoPath)
	latest, err := st.Session(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "latest.mkv", latest.VideoPath)

	out, err := executeCommand(t, dir, "status", "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "Latest session: new")
	assert.Contains(t, out, "Video:   latest.mkv")
}

func TestRunRefusesSecondRecorder(t *testing.T) {
	dir := t.TempDir()
	paths := control.NewPaths(dir)
	writeLiveLock(t, paths)

	err := runRecorder(context.Background(), paths, simulatedFactory(platform.NewSimulated()))
	assert.ErrorIs(t, err, control.ErrAlreadyRunning)

	data, err := os.ReadFile(paths.Lock())
	require.NoError(t, err)
	assert.Contains(t, string(data), "pid="+strconv.Itoa(os.Getppid()), "lock left alone")
}

func TestRunUntilStopFlag(t *testing.T) {
	dir := t.TempDir()
	paths := control.NewPaths(dir)
	sim := platform.NewSimulated()
	sim.Activate(platform.Window{Handle: 1, ProcessPath: `C:\Windows\notepad.exe`})

	done := make(chan error, 1)
	go func() { done <- runRecorder(context.Background(), paths, simulatedFactory(sim)) }()
	require.Eventually(t, sim.Installed, 5*time.Second, 5*time.Millisecond)

	report, err := control.Status(paths)
	require.NoError(t, err)
	require.Equal(t, control.StateRunning, report.State)

	// The watcher clears stop flags older than itself, so keep asking.
	var runErr error
	require.Eventually(t, func() bool {
		select {
		case runErr = <-done:
			return true
		default:
			control.RequestStop(paths)
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)
	require.NoError(t, runErr)

	assert.False(t, sim.Installed())
	_, err = os.Stat(paths.Lock())
	assert.True(t, errors.Is(err, os.ErrNotExist), "lock removed")

	st, err := store.Open(paths.Database())
	require.NoError(t, err)
	defer st.Close()
	events, err := st.Events(context.Background(), report.Lock.SessionID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, event.SessionStop, last.Type)
	assert.Equal(t, "stop_signal", last.Payload["reason"])

	assert.Equal(t, event.SessionStart, events[0].Type)
}

func TestRunHookFailure(t *testing.T) {
	dir := t.TempDir()
	paths := control.NewPaths(dir)
	sim := platform.NewSimulated()
	sim.FailStart(errors.New("hooks denied"))

	err := runRecorder(context.Background(), paths, simulatedFactory(sim))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hooks denied")
	_, err = os.Stat(paths.Lock())
	assert.True(t, errors.Is(err, os.ErrNotExist), "lock removed after failed start")
}

func simulatedFactory(sim *platform.Simulated) platformFactory {
	return func(*slog.Logger, platform.Options) (*platform.Platform, error) {
		return sim.Platform(), nil
	}
}
