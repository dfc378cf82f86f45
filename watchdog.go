// Package watchdog is a thin, stable facade over internal/supervisor for
// external embedders: it re-exports the types needed to drive a single
// supervised process without reaching into internal packages.
package watchdog

import (
	"log/slog"

	"github.com/hekabrain/watchdog/internal/logbuffer"
	"github.com/hekabrain/watchdog/internal/supervisor"
	"github.com/hekabrain/watchdog/internal/wstore"
)

// Re-exported types for external consumers. These are aliases so
// conversions between the facade and internal packages are zero-cost.

type State = supervisor.State

const (
	StateIdle        = supervisor.StateIdle
	StateRunning     = supervisor.StateRunning
	StateCrashed     = supervisor.StateCrashed
	StateRestarting  = supervisor.StateRestarting
	StateStopped     = supervisor.StateStopped
	StateMaxRestarts = supervisor.StateMaxRestarts
)

type StatusInfo = supervisor.StatusInfo

type Config = wstore.Config

type ConfigPatch = supervisor.ConfigPatch

type Mode = wstore.Mode

const (
	ModeDev        = wstore.ModeDev
	ModeProduction = wstore.ModeProduction
)

type CrashEntry = wstore.CrashEntry

type LogEntry = logbuffer.Entry

type LogCategory = logbuffer.Category

type WatchedFile = logbuffer.WatchedFile

// Watchdog is a thin facade over internal/supervisor.Supervisor. It
// provides a stable public API for embedding the process supervisor in a
// host application without exposing internal packages.
type Watchdog struct{ inner *supervisor.Supervisor }

// New loads persisted configuration and crash history from dir (typically
// wstore.DefaultDir()) and starts the supervisor's command loop. The
// returned Watchdog is idle until Start is called.
func New(dir string, log *slog.Logger, watchedFiles []WatchedFile) (*Watchdog, error) {
	store := wstore.New(dir)
	inner, err := supervisor.New(store, log, watchedFiles)
	if err != nil {
		return nil, err
	}
	return &Watchdog{inner: inner}, nil
}

// Close stops the command loop and file tailer. It does not terminate a
// running child; call Stop first if that is desired.
func (w *Watchdog) Close() { w.inner.Close() }

// Start spawns the child in the given mode, or the configured mode if nil.
func (w *Watchdog) Start(mode *Mode) error { return w.inner.Start(mode) }

// Stop terminates the child, if any, and leaves the supervisor stopped.
func (w *Watchdog) Stop() error { return w.inner.Stop() }

// Restart stops the child, resets the crash-rate window and backoff, and
// starts again.
func (w *Watchdog) Restart() error { return w.inner.Restart() }

// BuildAndRun stops the child, runs the project's build command, and on
// success starts the production build.
func (w *Watchdog) BuildAndRun() error { return w.inner.BuildAndRun() }

// ClearCrashes empties the in-memory and persisted crash history.
func (w *Watchdog) ClearCrashes() error { return w.inner.ClearCrashes() }

// UpdateConfig merges patch into the current configuration, persists it,
// and returns the merged view.
func (w *Watchdog) UpdateConfig(patch ConfigPatch) (Config, error) {
	return w.inner.UpdateConfig(patch)
}

// Status returns a non-blocking, self-consistent snapshot.
func (w *Watchdog) Status() StatusInfo { return w.inner.Status() }

// Config returns the current merged configuration.
func (w *Watchdog) Config() Config { return w.inner.Config() }

// Crashes returns a copy of the full in-memory crash history.
func (w *Watchdog) Crashes() []CrashEntry { return w.inner.Crashes() }

// Logs returns the tail of the log ring, filtered by category (empty means
// all categories), truncated to the last limit entries.
func (w *Watchdog) Logs(limit int, category LogCategory) []LogEntry {
	return w.inner.Logs(limit, category)
}

// ClearLogs empties the in-memory log ring.
func (w *Watchdog) ClearLogs() { w.inner.ClearLogs() }

// OnStatusChanged registers a callback invoked whenever the status
// snapshot changes.
func (w *Watchdog) OnStatusChanged(f func(StatusInfo)) { w.inner.OnStatusChanged(f) }

// OnCrash registers a callback invoked once per crash.
func (w *Watchdog) OnCrash(f func(CrashEntry)) { w.inner.OnCrash(f) }

// OnLog registers a callback invoked once per appended log entry.
func (w *Watchdog) OnLog(f func(LogEntry)) { w.inner.OnLog(f) }

// OnMaxRestarts registers a callback invoked when the crash-rate limit is
// reached.
func (w *Watchdog) OnMaxRestarts(f func()) { w.inner.OnMaxRestarts(f) }

// DefaultStoreDir returns the default persistence directory for New.
func DefaultStoreDir() string { return wstore.DefaultDir() }

// DefaultWatchedFiles returns the standard set of external log files
// tailed into the log ring, rooted under home.
func DefaultWatchedFiles(home string) []WatchedFile {
	return logbuffer.DefaultWatchedFiles(home)
}
