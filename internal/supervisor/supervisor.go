// Package supervisor implements the child-process lifecycle state machine:
// spawn, crash detection, rate-limited exponential-backoff restart, and
// coordination of the health prober, resource sampler and log capture for
// a single supervised target.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hekabrain/watchdog/internal/health"
	"github.com/hekabrain/watchdog/internal/logbuffer"
	"github.com/hekabrain/watchdog/internal/process"
	"github.com/hekabrain/watchdog/internal/wstore"
)

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdRestart
	cmdBuildAndRun
	cmdUpdateConfig
	cmdClearCrashes
)

type command struct {
	kind     cmdKind
	mode     *wstore.Mode
	patch    ConfigPatch
	errReply chan error
	cfgReply chan wstore.Config
}

// Supervisor owns one child process handle and the finite state machine
// driving it. All mutable state is touched only by the single loop
// goroutine; every exported method either serializes through cmdChan,
// reads the mutex-protected snapshot, or goes to the internally
// synchronized log buffer or listener list, per the single-owner
// concurrency model.
type Supervisor struct {
	store *wstore.Store
	logs  *logbuffer.Buffer
	log   *slog.Logger

	healthProber *health.Prober
	listeners    listeners

	ctx    context.Context
	cancel context.CancelFunc

	cmdChan      chan command
	healthChan   chan healthEvent
	resourceChan chan resourceEvent

	// loop-owned state
	cfg        wstore.Config
	runMode    wstore.Mode
	state      State
	handle     *process.Handle
	runID      string
	startTime  time.Time
	stderrAcc  *stderrAccumulator
	stdoutPump *linePump
	stderrPump *linePump
	runCancel  context.CancelFunc

	crashes      []wstore.CrashEntry
	crashDeque   []int64
	backoffMs    int
	backoffTimer *time.Timer

	lastHealthCheck *int64
	healthCheckOk   bool
	memory          *uint64
	cpu             *float64

	mu          sync.RWMutex
	snapshot    StatusInfo
	snapCfg     wstore.Config
	snapCrashes []wstore.CrashEntry
}

// New loads persisted config and crash history from store and starts the
// supervisor's command loop and file tailer. The returned Supervisor is
// idle until Start is called.
func New(store *wstore.Store, log *slog.Logger, watchedFiles []logbuffer.WatchedFile) (*Supervisor, error) {
	cfg, err := store.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("supervisor: load config: %w", err)
	}
	crashes, err := store.LoadCrashes()
	if err != nil {
		return nil, fmt.Errorf("supervisor: load crashes: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sv := &Supervisor{
		store:        store,
		log:          log,
		cfg:          cfg,
		runMode:      cfg.Mode,
		crashes:      crashes,
		state:        StateIdle,
		backoffMs:    initialBackoffMs,
		cmdChan:      make(chan command),
		healthChan:   make(chan healthEvent, 8),
		resourceChan: make(chan resourceEvent, 8),
		ctx:          ctx,
		cancel:       cancel,
		healthProber: health.New(),
	}
	sv.logs = logbuffer.New(func(e logbuffer.Entry) { sv.listeners.emitLog(e) })
	sv.updateSnapshotLocked()

	go sv.loop()
	if len(watchedFiles) > 0 {
		tailer := logbuffer.NewTailer(sv.logs, watchedFiles)
		go tailer.Run(ctx)
	}

	return sv, nil
}

// Close stops the command loop and file tailer. It does not terminate a
// running child; call Stop first if that is desired.
func (sv *Supervisor) Close() {
	sv.cancel()
}

func (sv *Supervisor) loop() {
	for {
		var doneCh <-chan struct{}
		if sv.handle != nil {
			doneCh = sv.handle.Done()
		}
		var backoffCh <-chan time.Time
		if sv.backoffTimer != nil {
			backoffCh = sv.backoffTimer.C
		}

		select {
		case <-sv.ctx.Done():
			return
		case cmd := <-sv.cmdChan:
			sv.handleCommand(cmd)
		case <-doneCh:
			sv.handleExit()
		case <-backoffCh:
			sv.backoffTimer = nil
			sv.startFromBackoff()
		case ev := <-sv.healthChan:
			sv.handleHealthResult(ev)
		case ev := <-sv.resourceChan:
			sv.handleResourceSample(ev)
		}
	}
}

func (sv *Supervisor) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdStart:
		cmd.errReply <- sv.doStart(cmd.mode)
	case cmdStop:
		cmd.errReply <- sv.doStop()
	case cmdRestart:
		cmd.errReply <- sv.doRestart()
	case cmdBuildAndRun:
		cmd.errReply <- sv.doBuildAndRun()
	case cmdUpdateConfig:
		merged, err := sv.doUpdateConfig(cmd.patch)
		cmd.cfgReply <- merged
		cmd.errReply <- err
	case cmdClearCrashes:
		cmd.errReply <- sv.doClearCrashes()
	}
}

func (sv *Supervisor) sendCommand(cmd command) error {
	reply := make(chan error, 1)
	cmd.errReply = reply
	select {
	case sv.cmdChan <- cmd:
	case <-sv.ctx.Done():
		return fmt.Errorf("supervisor: closed")
	}
	select {
	case err := <-reply:
		return err
	case <-sv.ctx.Done():
		return fmt.Errorf("supervisor: closed")
	}
}

// Start spawns the child in the given mode, or the configured mode if nil.
// Valid only from idle or stopped; use Restart to recover from crashed or
// max_restarts.
func (sv *Supervisor) Start(mode *wstore.Mode) error {
	return sv.sendCommand(command{kind: cmdStart, mode: mode})
}

// Stop terminates the child (if any), canceling a pending restart backoff,
// and leaves the supervisor in the stopped state. Idempotent.
func (sv *Supervisor) Stop() error {
	return sv.sendCommand(command{kind: cmdStop})
}

// Restart stops the child, resets the crash-rate window and backoff, and
// starts again. Valid from any state, including max_restarts.
func (sv *Supervisor) Restart() error {
	return sv.sendCommand(command{kind: cmdRestart})
}

// BuildAndRun stops the child, runs the project's build command, and on
// success starts the production build.
func (sv *Supervisor) BuildAndRun() error {
	return sv.sendCommand(command{kind: cmdBuildAndRun})
}

// ClearCrashes empties the in-memory and persisted crash history.
func (sv *Supervisor) ClearCrashes() error {
	return sv.sendCommand(command{kind: cmdClearCrashes})
}

// UpdateConfig merges patch into the current configuration, persists it,
// and returns the merged view.
func (sv *Supervisor) UpdateConfig(patch ConfigPatch) (wstore.Config, error) {
	reply := make(chan error, 1)
	cfgReply := make(chan wstore.Config, 1)
	cmd := command{kind: cmdUpdateConfig, patch: patch, errReply: reply, cfgReply: cfgReply}
	select {
	case sv.cmdChan <- cmd:
	case <-sv.ctx.Done():
		return wstore.Config{}, fmt.Errorf("supervisor: closed")
	}
	err := <-reply
	cfg := <-cfgReply
	return cfg, err
}

// Status returns a non-blocking, self-consistent snapshot.
func (sv *Supervisor) Status() StatusInfo {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return sv.snapshot
}

// Config returns the current merged configuration.
func (sv *Supervisor) Config() wstore.Config {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return sv.snapCfg
}

// Crashes returns a copy of the full in-memory crash history.
func (sv *Supervisor) Crashes() []wstore.CrashEntry {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return append([]wstore.CrashEntry{}, sv.snapCrashes...)
}

// Logs returns the tail of the log ring, filtered by category (empty
// means all categories), truncated to the last limit entries.
func (sv *Supervisor) Logs(limit int, category logbuffer.Category) []logbuffer.Entry {
	return sv.logs.Query(limit, category)
}

// ClearLogs empties the in-memory log ring.
func (sv *Supervisor) ClearLogs() {
	sv.logs.Clear()
}

// OnStatusChanged registers a callback invoked whenever the status
// snapshot changes.
func (sv *Supervisor) OnStatusChanged(f func(StatusInfo)) { sv.listeners.addStatusChanged(f) }

// OnCrash registers a callback invoked once per crash.
func (sv *Supervisor) OnCrash(f func(wstore.CrashEntry)) { sv.listeners.addCrash(f) }

// OnLog registers a callback invoked once per appended log entry.
func (sv *Supervisor) OnLog(f func(logbuffer.Entry)) { sv.listeners.addLog(f) }

// OnMaxRestarts registers a callback invoked when the crash-rate limit is
// reached.
func (sv *Supervisor) OnMaxRestarts(f func()) { sv.listeners.addMaxRestarts(f) }

func (sv *Supervisor) pushErrorLog(msg string) {
	sv.logs.PushDirect("[ERROR] "+msg, logbuffer.SourceStderr, time.Now())
}

// updateSnapshotLocked rebuilds the published snapshot from loop-owned
// state; callers must be the loop goroutine. Prunes the crash-rate window
// against the current time first, so recentCrashes decays as crashes age
// out of the window even when no new crash has happened since. Returns the
// new snapshot.
func (sv *Supervisor) updateSnapshotLocked() StatusInfo {
	sv.pruneCrashDeque(time.Now().UnixMilli())

	var uptimeMs int64
	if sv.state == StateRunning {
		uptimeMs = time.Since(sv.startTime).Milliseconds()
	}
	var pid *int
	if sv.handle != nil {
		p := sv.handle.PID()
		pid = &p
	}

	info := StatusInfo{
		Status:          sv.state,
		Mode:            string(sv.runMode),
		ExePath:         resolveExePath(sv.runMode, sv.cfg),
		PID:             pid,
		UptimeMs:        uptimeMs,
		TotalCrashes:    len(sv.crashes),
		RecentCrashes:   len(sv.crashDeque),
		BackoffMs:       sv.backoffMs,
		LastHealthCheck: sv.lastHealthCheck,
		HealthCheckOk:   sv.healthCheckOk,
		Memory:          sv.memory,
		CPU:             sv.cpu,
		RunID:           sv.runID,
	}
	crashesCopy := append([]wstore.CrashEntry{}, sv.crashes...)

	sv.mu.Lock()
	sv.snapshot = info
	sv.snapCfg = sv.cfg
	sv.snapCrashes = crashesCopy
	sv.mu.Unlock()

	return info
}

// publishSnapshot updates the snapshot and fires OnStatusChanged.
func (sv *Supervisor) publishSnapshot() {
	info := sv.updateSnapshotLocked()
	sv.listeners.emitStatusChanged(info)
}

// refreshSnapshot updates the snapshot without firing an event, for
// high-frequency health/resource updates that are not state transitions.
func (sv *Supervisor) refreshSnapshot() {
	sv.updateSnapshotLocked()
}

func (sv *Supervisor) handleHealthResult(ev healthEvent) {
	if ev.runID != sv.runID || sv.state != StateRunning {
		return
	}
	ts := ev.result.At.UnixMilli()
	sv.lastHealthCheck = &ts
	sv.healthCheckOk = ev.result.Ok
	sv.refreshSnapshot()
}

func (sv *Supervisor) handleResourceSample(ev resourceEvent) {
	if ev.runID != sv.runID || sv.state != StateRunning {
		return
	}
	sv.memory = ev.sample.MemoryBytes
	sv.cpu = ev.sample.CPUPercent
	sv.refreshSnapshot()
}

func (sv *Supervisor) pruneCrashDeque(now int64) {
	windowMs := int64(sv.cfg.RestartWindowMs)
	kept := sv.crashDeque[:0]
	for _, ts := range sv.crashDeque {
		if now-ts <= windowMs {
			kept = append(kept, ts)
		}
	}
	sv.crashDeque = kept
}
