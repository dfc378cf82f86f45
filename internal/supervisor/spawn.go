package supervisor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hekabrain/watchdog/internal/wstore"
)

// devCommand and buildCommand are the project conventions this supervisor
// runs in dev mode and during buildAndRun, matching the electron-vite-based
// workflow spec.md describes ("electron-vite dev" as used in practice):
// both resolve to the project's package.json scripts.
var (
	devCommand   = []string{"npm", "run", "dev"}
	buildCommand = []string{"npm", "run", "build"}
)

// resolveExePath returns the executable path for the given run mode.
func resolveExePath(mode wstore.Mode, cfg wstore.Config) string {
	if mode == wstore.ModeProduction {
		return cfg.TargetExePath
	}
	return cfg.TargetDevPath
}

// spawnCommand returns the command, args and working directory for
// launching the target in the given mode.
func spawnCommand(mode wstore.Mode, cfg wstore.Config) (command string, args []string, dir string, err error) {
	switch mode {
	case wstore.ModeProduction:
		if cfg.TargetExePath == "" {
			return "", nil, "", fmt.Errorf("supervisor: targetExePath not configured")
		}
		return cfg.TargetExePath, nil, filepath.Dir(cfg.TargetExePath), nil
	default: // dev
		if cfg.TargetDevPath == "" {
			return "", nil, "", fmt.Errorf("supervisor: targetDevPath not configured")
		}
		return devCommand[0], devCommand[1:], cfg.TargetDevPath, nil
	}
}

// childEnv passes through the parent environment plus HEKABRAIN_API_PORT
// so the target knows where to expose its probe endpoint.
func childEnv(healthCheckPort int) []string {
	env := append([]string{}, os.Environ()...)
	return append(env, fmt.Sprintf("HEKABRAIN_API_PORT=%d", healthCheckPort))
}
