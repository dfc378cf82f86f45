package supervisor

import (
	"context"
	"time"

	"github.com/hekabrain/watchdog/internal/health"
	"github.com/hekabrain/watchdog/internal/resource"
	"golang.org/x/sync/errgroup"
)

type healthEvent struct {
	runID  string
	result health.Result
}

type resourceEvent struct {
	runID  string
	sample resource.Sample
}

// runHealthAndResource coordinates the health prober and resource sampler
// for a single child run under one errgroup.Group, so cancelling runCtx
// tears both down together without a separate teardown checklist per loop.
// Results are handed back to the single-owner loop over channels rather
// than mutated here, preserving serialized access to supervisor state.
func (sv *Supervisor) runHealthAndResource(runCtx context.Context, pid int, runID string) {
	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		cfgFunc := func() (int, time.Duration) {
			cfg := sv.Config()
			return cfg.HealthCheckPort, time.Duration(cfg.HealthCheckIntervalMs) * time.Millisecond
		}
		sv.healthProber.Run(gCtx, cfgFunc, func(res health.Result) {
			select {
			case sv.healthChan <- healthEvent{runID: runID, result: res}:
			case <-gCtx.Done():
			}
		})
		return nil
	})

	g.Go(func() error {
		resource.Run(gCtx, pid, func(s resource.Sample) {
			select {
			case sv.resourceChan <- resourceEvent{runID: runID, sample: s}:
			case <-gCtx.Done():
			}
		})
		return nil
	})

	_ = g.Wait()
}
