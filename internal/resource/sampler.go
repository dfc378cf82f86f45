// Package resource samples the supervised child's memory and CPU usage via
// gopsutil, the same mechanism the teacher's metrics collector uses.
package resource

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const sampleInterval = 5 * time.Second

// Sample is one resource reading. Either field is nil when the underlying
// query or parse failed.
type Sample struct {
	MemoryBytes *uint64
	CPUPercent  *float64
}

// Collect queries the OS for pid's resident memory and CPU percentage. Any
// failure leaves the corresponding field nil rather than returning an error,
// since a sampling miss is not actionable by the caller.
func Collect(pid int) Sample {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return Sample{}
	}

	var sample Sample
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		rss := memInfo.RSS
		sample.MemoryBytes = &rss
	}
	if cpuPercent, err := proc.CPUPercent(); err == nil {
		sample.CPUPercent = &cpuPercent
	}
	return sample
}

// Run samples pid every 5 seconds, invoking onSample with each reading,
// until ctx is canceled.
func Run(ctx context.Context, pid int, onSample func(Sample)) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			onSample(Collect(pid))
		}
	}
}
