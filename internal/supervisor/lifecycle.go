package supervisor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/hekabrain/watchdog/internal/logbuffer"
	"github.com/hekabrain/watchdog/internal/process"
	"github.com/hekabrain/watchdog/internal/wstore"
)

const gracefulStopTimeout = 5 * time.Second

// doStart is the user-invoked start path, valid only from idle or stopped.
// The automatic restart after a backoff elapses uses startFromBackoff
// instead, which bypasses this guard for the restarting -> running edge.
func (sv *Supervisor) doStart(mode *wstore.Mode) error {
	if sv.state != StateIdle && sv.state != StateStopped {
		return fmt.Errorf("supervisor: cannot start from state %s", sv.state)
	}
	effective := sv.cfg.Mode
	if mode != nil {
		effective = *mode
	}
	return sv.spawn(effective)
}

// startFromBackoff fires when a scheduled restart's timer elapses. A
// concurrent stop() may have already moved the state away from restarting
// (and canceled the timer) by the time this runs in a single-owner loop,
// but the nil-channel/timer-Stop discipline in loop() and doStop() makes
// that race impossible in practice; the state check is a defensive no-op.
func (sv *Supervisor) startFromBackoff() {
	if sv.state != StateRestarting {
		return
	}
	if err := sv.spawn(sv.cfg.Mode); err != nil {
		sv.log.Error("scheduled restart failed to spawn", "error", err)
	}
}

// spawn launches the child in mode and transitions to running, or pushes
// an error log and transitions to stopped on spawn failure (which is not
// counted as a crash and does not advance the backoff ladder).
func (sv *Supervisor) spawn(mode wstore.Mode) error {
	cmdName, args, dir, err := spawnCommand(mode, sv.cfg)
	if err != nil {
		sv.pushErrorLog(fmt.Sprintf("spawn failed: %v", err))
		sv.state = StateStopped
		sv.publishSnapshot()
		return err
	}

	acc := newStderrAccumulator()
	outPump := newLinePump(sv.logs, logbuffer.SourceStdout)
	errPump := newLinePump(sv.logs, logbuffer.SourceStderr)

	h, err := process.Spawn(process.SpawnSpec{
		Command: cmdName,
		Args:    args,
		Dir:     dir,
		Env:     childEnv(sv.cfg.HealthCheckPort),
		Stdout:  outPump,
		Stderr:  io.MultiWriter(errPump, acc),
	})
	if err != nil {
		sv.pushErrorLog(fmt.Sprintf("spawn failed: %v", err))
		sv.state = StateStopped
		sv.publishSnapshot()
		return err
	}

	sv.handle = h
	sv.runID = uuid.NewString()
	sv.startTime = time.Now()
	sv.stderrAcc = acc
	sv.stdoutPump = outPump
	sv.stderrPump = errPump
	sv.runMode = mode
	sv.state = StateRunning
	sv.lastHealthCheck = nil
	sv.healthCheckOk = false
	sv.memory = nil
	sv.cpu = nil

	runCtx, cancel := context.WithCancel(sv.ctx)
	sv.runCancel = cancel
	go sv.runHealthAndResource(runCtx, h.PID(), sv.runID)

	sv.publishSnapshot()
	return nil
}

// doStop cancels any pending backoff, tears down the per-run goroutines,
// and terminates the child (graceful, escalating to force-kill after 5s).
// The state is set to stopped before termination so handleExit, if it
// still observes the exit, treats it as an orderly shutdown. Idempotent:
// calling it with no child running just cancels any pending restart and
// sets the state to stopped; backoffMs is left unchanged.
func (sv *Supervisor) doStop() error {
	if sv.backoffTimer != nil {
		sv.backoffTimer.Stop()
		sv.backoffTimer = nil
	}
	if sv.runCancel != nil {
		sv.runCancel()
		sv.runCancel = nil
	}
	sv.state = StateStopped

	if sv.handle != nil {
		h := sv.handle
		exited, err := h.Terminate(sv.ctx, gracefulStopTimeout)
		if err != nil {
			sv.log.Error("graceful terminate failed", "error", err)
		}
		if !exited {
			if err := h.ForceKill(); err != nil {
				sv.log.Error("force kill failed", "error", err)
			}
			<-h.Done()
		}
		if sv.stdoutPump != nil {
			sv.stdoutPump.Flush()
		}
		if sv.stderrPump != nil {
			sv.stderrPump.Flush()
		}
		sv.handle = nil
	}

	sv.lastHealthCheck = nil
	sv.healthCheckOk = false
	sv.memory = nil
	sv.cpu = nil
	sv.publishSnapshot()
	return nil
}

// doRestart stops the child, resets the crash-rate window and backoff
// ladder, and starts again. Valid from any state, including max_restarts.
func (sv *Supervisor) doRestart() error {
	_ = sv.doStop()
	sv.crashDeque = nil
	sv.backoffMs = initialBackoffMs
	return sv.doStart(nil)
}

// doBuildAndRun stops the child, runs the project's build command
// synchronously (streaming output through the log buffer), and on success
// starts the production build.
func (sv *Supervisor) doBuildAndRun() error {
	if sv.cfg.TargetDevPath == "" {
		return fmt.Errorf("supervisor: targetDevPath not configured")
	}
	_ = sv.doStop()

	outPump := newLinePump(sv.logs, logbuffer.SourceStdout)
	errPump := newLinePump(sv.logs, logbuffer.SourceStderr)
	h, err := process.Spawn(process.SpawnSpec{
		Command: buildCommand[0],
		Args:    buildCommand[1:],
		Dir:     sv.cfg.TargetDevPath,
		Stdout:  outPump,
		Stderr:  errPump,
	})
	if err != nil {
		sv.pushErrorLog(fmt.Sprintf("build failed to start: %v", err))
		return err
	}

	<-h.Done()
	outPump.Flush()
	errPump.Flush()

	status := h.ExitStatus()
	if status.Signaled || status.ExitCode != 0 {
		sv.pushErrorLog(fmt.Sprintf("build failed: exitCode=%d signaled=%v", status.ExitCode, status.Signaled))
		return fmt.Errorf("supervisor: build failed")
	}

	prod := wstore.ModeProduction
	return sv.doStart(&prod)
}

// doUpdateConfig merges patch into the current config and persists it.
// Health port/interval changes take effect on the running prober's next
// cycle (it re-reads config each cycle); mode/path changes take effect on
// the next start().
func (sv *Supervisor) doUpdateConfig(patch ConfigPatch) (wstore.Config, error) {
	merged := applyPatch(sv.cfg, patch)
	if err := sv.store.SaveConfig(merged); err != nil {
		return sv.cfg, fmt.Errorf("supervisor: persist config: %w", err)
	}
	sv.cfg = merged
	sv.publishSnapshot()
	return merged, nil
}

// doClearCrashes empties the in-memory and persisted crash history.
func (sv *Supervisor) doClearCrashes() error {
	sv.crashes = nil
	sv.crashDeque = nil
	if err := sv.store.SaveCrashes(nil); err != nil {
		return fmt.Errorf("supervisor: clear crash history: %w", err)
	}
	sv.publishSnapshot()
	return nil
}

// handleExit runs the 8-step exit handling contract whenever the child's
// Handle.Done() fires while the loop still owns it (i.e. the exit was not
// already consumed synchronously by doStop).
func (sv *Supervisor) handleExit() {
	if sv.runCancel != nil {
		sv.runCancel()
		sv.runCancel = nil
	}
	if sv.stdoutPump != nil {
		sv.stdoutPump.Flush()
	}
	if sv.stderrPump != nil {
		sv.stderrPump.Flush()
	}

	status := sv.handle.ExitStatus()
	uptimeMs := time.Since(sv.startTime).Milliseconds()
	wasStopped := sv.state == StateStopped

	sv.handle = nil
	sv.lastHealthCheck = nil
	sv.healthCheckOk = false
	sv.memory = nil
	sv.cpu = nil

	if wasStopped || (!status.Signaled && status.ExitCode == 0) {
		sv.state = StateStopped
		sv.publishSnapshot()
		return
	}

	entry := wstore.CrashEntry{
		Timestamp: time.Now().UnixMilli(),
		UptimeMs:  uptimeMs,
		RunID:     sv.runID,
	}
	if status.Signaled {
		sig := status.Signal
		entry.Signal = &sig
	} else {
		code := status.ExitCode
		entry.ExitCode = &code
	}
	if sv.stderrAcc != nil {
		entry.Stderr = sv.stderrAcc.Tail()
	}

	sv.crashes = append(sv.crashes, entry)
	if err := sv.store.SaveCrashes(sv.crashes); err != nil {
		sv.log.Error("persist crash history failed", "error", err)
	}

	now := entry.Timestamp
	sv.crashDeque = append(sv.crashDeque, now)
	sv.pruneCrashDeque(now)

	sv.state = StateCrashed
	sv.listeners.emitCrash(entry)

	if !sv.cfg.AutoRestart {
		sv.publishSnapshot()
		return
	}

	if len(sv.crashDeque) >= sv.cfg.MaxRestarts {
		sv.state = StateMaxRestarts
		sv.publishSnapshot()
		sv.listeners.emitMaxRestarts()
		return
	}

	if uptimeMs > stabilityResetMs {
		sv.backoffMs = initialBackoffMs
	}

	sv.state = StateRestarting
	delay := sv.backoffMs
	sv.backoffMs = nextBackoffMs(sv.backoffMs)
	sv.backoffTimer = time.NewTimer(time.Duration(delay) * time.Millisecond)
	sv.publishSnapshot()
}
