//go:build !windows

package supervisor

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hekabrain/watchdog/internal/wstore"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "target.sh")
	content := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	return path
}

func newTestSupervisor(t *testing.T, scriptBody string) (*Supervisor, *wstore.Store) {
	t.Helper()
	store := wstore.New(t.TempDir())
	cfg := wstore.DefaultConfig()
	cfg.Mode = wstore.ModeProduction
	cfg.TargetExePath = writeScript(t, scriptBody)
	cfg.MaxRestarts = 5
	cfg.RestartWindowMs = 300000
	cfg.HealthCheckPort = 1 // nothing listens; probe is diagnostic only
	cfg.HealthCheckIntervalMs = 50
	require.NoError(t, store.SaveConfig(cfg))

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	sv, err := New(store, log, nil)
	require.NoError(t, err)
	t.Cleanup(sv.Close)
	return sv, store
}

func waitForStatus(t *testing.T, sv *Supervisor, want State, timeout time.Duration) StatusInfo {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		st := sv.Status()
		if st.Status == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status never reached %s, last was %s", want, sv.Status().Status)
	return StatusInfo{}
}

func TestStartTransitionsIdleToRunning(t *testing.T) {
	sv, _ := newTestSupervisor(t, "sleep 5")
	require.Equal(t, StateIdle, sv.Status().Status)

	require.NoError(t, sv.Start(nil))
	st := waitForStatus(t, sv, StateRunning, time.Second)
	require.NotZero(t, st.PID)
	require.NotEmpty(t, st.RunID)
}

func TestStartTwiceReturnsError(t *testing.T) {
	sv, _ := newTestSupervisor(t, "sleep 5")
	require.NoError(t, sv.Start(nil))
	waitForStatus(t, sv, StateRunning, time.Second)

	err := sv.Start(nil)
	require.Error(t, err)
}

func TestNaturalExitCodeZeroGoesToStopped(t *testing.T) {
	sv, _ := newTestSupervisor(t, "exit 0")
	require.NoError(t, sv.Start(nil))
	st := waitForStatus(t, sv, StateStopped, time.Second)
	require.Empty(t, sv.Crashes())
	require.Zero(t, st.RecentCrashes)
}

func TestCrashOnNonZeroExit(t *testing.T) {
	sv, store := newTestSupervisor(t, "exit 1")
	require.NoError(t, sv.Start(nil))
	waitForStatus(t, sv, StateRestarting, 2*time.Second)

	crashes := sv.Crashes()
	require.Len(t, crashes, 1)
	require.NotNil(t, crashes[0].ExitCode)
	require.Equal(t, 1, *crashes[0].ExitCode)

	persisted, err := store.LoadCrashes()
	require.NoError(t, err)
	require.Len(t, persisted, 1)
}

// TestRecentCrashesDecaysAfterWindowElapses guards against recentCrashes
// staying stuck at a stale count once its crash ages out of the window:
// the target crashes once, then (on its second invocation, detected via a
// marker file) stays up, so by the time the restart lands the crash is
// already outside the tiny restart window and must no longer be counted.
func TestRecentCrashesDecaysAfterWindowElapses(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran-once")
	t.Setenv("TARGET_MARKER_PATH", marker)
	script := writeScript(t, `if [ -f "$TARGET_MARKER_PATH" ]; then
  sleep 5
else
  touch "$TARGET_MARKER_PATH"
  exit 1
fi`)

	store := wstore.New(t.TempDir())
	cfg := wstore.DefaultConfig()
	cfg.Mode = wstore.ModeProduction
	cfg.TargetExePath = script
	cfg.MaxRestarts = 5
	cfg.RestartWindowMs = 100
	require.NoError(t, store.SaveConfig(cfg))

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	sv, err := New(store, log, nil)
	require.NoError(t, err)
	defer sv.Close()

	require.NoError(t, sv.Start(nil))
	waitForStatus(t, sv, StateRestarting, 2*time.Second)
	require.Equal(t, 1, sv.Status().RecentCrashes)

	// The initial backoff (1s) outlasts the 100ms restart window, so by the
	// time the child is running again the earlier crash must have aged out.
	st := waitForStatus(t, sv, StateRunning, 3*time.Second)
	require.Equal(t, 0, st.RecentCrashes)
}

func TestStopDuringRunningIsOrderly(t *testing.T) {
	sv, _ := newTestSupervisor(t, "sleep 30")
	require.NoError(t, sv.Start(nil))
	waitForStatus(t, sv, StateRunning, time.Second)

	require.NoError(t, sv.Stop())
	st := sv.Status()
	require.Equal(t, StateStopped, st.Status)
	require.Empty(t, sv.Crashes())
}

func TestStopIsIdempotent(t *testing.T) {
	sv, _ := newTestSupervisor(t, "sleep 5")
	require.NoError(t, sv.Stop())
	require.NoError(t, sv.Stop())
	require.Equal(t, StateStopped, sv.Status().Status)
}

func TestAutoRestartDisabledStaysOnCrashed(t *testing.T) {
	store := wstore.New(t.TempDir())
	cfg := wstore.DefaultConfig()
	cfg.Mode = wstore.ModeProduction
	cfg.TargetExePath = writeScript(t, "exit 1")
	cfg.AutoRestart = false
	require.NoError(t, store.SaveConfig(cfg))

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	sv, err := New(store, log, nil)
	require.NoError(t, err)
	defer sv.Close()

	require.NoError(t, sv.Start(nil))
	st := waitForStatus(t, sv, StateCrashed, time.Second)
	require.Equal(t, StateCrashed, st.Status)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, StateCrashed, sv.Status().Status)
}

func TestFastCrashesReachMaxRestarts(t *testing.T) {
	store := wstore.New(t.TempDir())
	cfg := wstore.DefaultConfig()
	cfg.Mode = wstore.ModeProduction
	cfg.TargetExePath = writeScript(t, "exit 1")
	cfg.MaxRestarts = 2
	cfg.RestartWindowMs = 300000
	require.NoError(t, store.SaveConfig(cfg))

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	sv, err := New(store, log, nil)
	require.NoError(t, err)
	defer sv.Close()

	var maxRestartsFired bool
	sv.OnMaxRestarts(func() { maxRestartsFired = true })

	require.NoError(t, sv.Start(nil))
	waitForStatus(t, sv, StateMaxRestarts, 5*time.Second)
	require.True(t, maxRestartsFired)
	require.Len(t, sv.Crashes(), 2)
}

func TestRestartResetsFromMaxRestarts(t *testing.T) {
	store := wstore.New(t.TempDir())
	cfg := wstore.DefaultConfig()
	cfg.Mode = wstore.ModeProduction
	cfg.TargetExePath = writeScript(t, "exit 1")
	cfg.MaxRestarts = 1
	require.NoError(t, store.SaveConfig(cfg))

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	sv, err := New(store, log, nil)
	require.NoError(t, err)
	defer sv.Close()

	require.NoError(t, sv.Start(nil))
	waitForStatus(t, sv, StateMaxRestarts, 2*time.Second)

	require.NoError(t, sv.Restart())
	waitForStatus(t, sv, StateMaxRestarts, 2*time.Second)
	require.Equal(t, 1, sv.Status().RecentCrashes)
}

func TestManualStopDuringRestartingPreventsSpawn(t *testing.T) {
	store := wstore.New(t.TempDir())
	cfg := wstore.DefaultConfig()
	cfg.Mode = wstore.ModeProduction
	cfg.TargetExePath = writeScript(t, "exit 1")
	cfg.MaxRestarts = 5
	require.NoError(t, store.SaveConfig(cfg))

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	sv, err := New(store, log, nil)
	require.NoError(t, err)
	defer sv.Close()

	require.NoError(t, sv.Start(nil))
	waitForStatus(t, sv, StateRestarting, time.Second)

	require.NoError(t, sv.Stop())
	time.Sleep(1200 * time.Millisecond) // longer than the 1s initial backoff
	require.Equal(t, StateStopped, sv.Status().Status)
}

func TestUpdateConfigPersistsAndMerges(t *testing.T) {
	sv, store := newTestSupervisor(t, "sleep 5")
	maxRestarts := 9
	merged, err := sv.UpdateConfig(ConfigPatch{MaxRestarts: &maxRestarts})
	require.NoError(t, err)
	require.Equal(t, 9, merged.MaxRestarts)

	persisted, err := store.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 9, persisted.MaxRestarts)
}

func TestBuildAndRunRequiresDevPath(t *testing.T) {
	sv, _ := newTestSupervisor(t, "sleep 5")
	err := sv.BuildAndRun()
	require.Error(t, err)
}

func TestStatusChangedListenerFiresOnTransitions(t *testing.T) {
	sv, _ := newTestSupervisor(t, "exit 0")
	var seen []State
	sv.OnStatusChanged(func(s StatusInfo) { seen = append(seen, s.Status) })

	require.NoError(t, sv.Start(nil))
	waitForStatus(t, sv, StateStopped, time.Second)

	require.Contains(t, seen, StateRunning)
	require.Contains(t, seen, StateStopped)
}

func TestClearCrashesEmptiesHistory(t *testing.T) {
	sv, store := newTestSupervisor(t, "exit 1")
	require.NoError(t, sv.Start(nil))
	waitForStatus(t, sv, StateRestarting, 2*time.Second)
	require.NotEmpty(t, sv.Crashes())

	require.NoError(t, sv.Stop())
	require.NoError(t, sv.ClearCrashes())
	require.Empty(t, sv.Crashes())

	persisted, err := store.LoadCrashes()
	require.NoError(t, err)
	require.Empty(t, persisted)
}

func TestStdoutCapturedIntoLogs(t *testing.T) {
	sv, _ := newTestSupervisor(t, "echo hello-from-child")
	require.NoError(t, sv.Start(nil))
	waitForStatus(t, sv, StateStopped, time.Second)

	found := false
	for _, e := range sv.Logs(0, "") {
		if e.Message == "hello-from-child" {
			found = true
		}
	}
	require.True(t, found)
}
