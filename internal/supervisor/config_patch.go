package supervisor

import "github.com/hekabrain/watchdog/internal/wstore"

// ConfigPatch carries a partial update for UpdateConfig: nil fields leave
// the current value unchanged.
type ConfigPatch struct {
	TargetExePath         *string
	TargetDevPath         *string
	Mode                  *wstore.Mode
	AutoRestart           *bool
	MaxRestarts           *int
	RestartWindowMs       *int
	HealthCheckPort       *int
	HealthCheckIntervalMs *int
}

func applyPatch(cfg wstore.Config, patch ConfigPatch) wstore.Config {
	if patch.TargetExePath != nil {
		cfg.TargetExePath = *patch.TargetExePath
	}
	if patch.TargetDevPath != nil {
		cfg.TargetDevPath = *patch.TargetDevPath
	}
	if patch.Mode != nil {
		cfg.Mode = *patch.Mode
	}
	if patch.AutoRestart != nil {
		cfg.AutoRestart = *patch.AutoRestart
	}
	if patch.MaxRestarts != nil {
		cfg.MaxRestarts = *patch.MaxRestarts
	}
	if patch.RestartWindowMs != nil {
		cfg.RestartWindowMs = *patch.RestartWindowMs
	}
	if patch.HealthCheckPort != nil {
		cfg.HealthCheckPort = *patch.HealthCheckPort
	}
	if patch.HealthCheckIntervalMs != nil {
		cfg.HealthCheckIntervalMs = *patch.HealthCheckIntervalMs
	}
	return cfg
}
