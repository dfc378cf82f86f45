// Package wstore persists the supervisor's configuration and crash history
// as two flat JSON documents under a per-user config directory.
package wstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const dirName = ".claude-launcher"

const (
	configFileName  = "watchdog-config.json"
	crashesFileName = "watchdog-crashes.json"
)

// Mode is the supervised target's run mode.
type Mode string

const (
	ModeDev        Mode = "dev"
	ModeProduction Mode = "production"
)

// Config is the persisted supervisor configuration. Unknown fields on read
// are ignored; missing fields take the defaults below.
type Config struct {
	TargetExePath         string `json:"targetExePath" mapstructure:"targetExePath"`
	TargetDevPath         string `json:"targetDevPath" mapstructure:"targetDevPath"`
	Mode                  Mode   `json:"mode" mapstructure:"mode"`
	AutoRestart           bool   `json:"autoRestart" mapstructure:"autoRestart"`
	MaxRestarts           int    `json:"maxRestarts" mapstructure:"maxRestarts"`
	RestartWindowMs       int    `json:"restartWindowMs" mapstructure:"restartWindowMs"`
	HealthCheckPort       int    `json:"healthCheckPort" mapstructure:"healthCheckPort"`
	HealthCheckIntervalMs int    `json:"healthCheckIntervalMs" mapstructure:"healthCheckIntervalMs"`
}

// DefaultConfig returns the configuration defaults spec.md §3 mandates.
func DefaultConfig() Config {
	return Config{
		Mode:                  ModeDev,
		AutoRestart:           true,
		MaxRestarts:           5,
		RestartWindowMs:       300000,
		HealthCheckPort:       3001,
		HealthCheckIntervalMs: 10000,
	}
}

// CrashEntry is one appended record in the crash history file.
type CrashEntry struct {
	Timestamp int64   `json:"timestamp"`
	ExitCode  *int    `json:"exitCode"`
	Signal    *string `json:"signal"`
	UptimeMs  int64   `json:"uptimeMs"`
	Stderr    string  `json:"stderr"`
	RunID     string  `json:"runID"`
}

// Store reads and writes the config and crash-history documents under dir.
// It assumes a single writer (the supervisor) and performs no locking.
type Store struct {
	dir string
}

// New returns a Store rooted at dir (typically "<home>/.claude-launcher").
func New(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir returns "<home>/.claude-launcher", falling back to the current
// directory if the home directory cannot be resolved.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}

func (s *Store) configPath() string  { return filepath.Join(s.dir, configFileName) }
func (s *Store) crashesPath() string { return filepath.Join(s.dir, crashesFileName) }

func (s *Store) ensureDir() error {
	return os.MkdirAll(s.dir, 0o750)
}

// LoadConfig reads the config document, applying defaults for missing
// fields and WATCHDOG_*-prefixed environment variable overrides on top of
// whatever the file contains. Absence of the file is not an error: it
// yields DefaultConfig() with environment overrides applied.
func (s *Store) LoadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigFile(s.configPath())
	v.SetConfigType("json")
	v.SetEnvPrefix("WATCHDOG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := DefaultConfig()
	setViperDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("wstore: read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("wstore: unmarshal config: %w", err)
	}
	return cfg, nil
}

func setViperDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("targetExePath", cfg.TargetExePath)
	v.SetDefault("targetDevPath", cfg.TargetDevPath)
	v.SetDefault("mode", string(cfg.Mode))
	v.SetDefault("autoRestart", cfg.AutoRestart)
	v.SetDefault("maxRestarts", cfg.MaxRestarts)
	v.SetDefault("restartWindowMs", cfg.RestartWindowMs)
	v.SetDefault("healthCheckPort", cfg.HealthCheckPort)
	v.SetDefault("healthCheckIntervalMs", cfg.HealthCheckIntervalMs)
}

// SaveConfig overwrites the config document with pretty-printed JSON.
// Viper has no stable-field-order pretty writer, so this always goes
// through encoding/json directly, per §4.5's literal on-disk format
// requirement.
func (s *Store) SaveConfig(cfg Config) error {
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("wstore: create dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("wstore: marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(s.configPath(), data, 0o640); err != nil {
		return fmt.Errorf("wstore: write config: %w", err)
	}
	return nil
}

// LoadCrashes reads the crash history. A missing file yields an empty,
// non-nil slice rather than an error.
func (s *Store) LoadCrashes() ([]CrashEntry, error) {
	data, err := os.ReadFile(s.crashesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []CrashEntry{}, nil
		}
		return nil, fmt.Errorf("wstore: read crashes: %w", err)
	}
	var entries []CrashEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return []CrashEntry{}, nil // tolerant of a corrupt/foreign file
	}
	if entries == nil {
		entries = []CrashEntry{}
	}
	return entries, nil
}

// SaveCrashes overwrites the crash history with pretty-printed JSON.
func (s *Store) SaveCrashes(entries []CrashEntry) error {
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("wstore: create dir: %w", err)
	}
	if entries == nil {
		entries = []CrashEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("wstore: marshal crashes: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(s.crashesPath(), data, 0o640); err != nil {
		return fmt.Errorf("wstore: write crashes: %w", err)
	}
	return nil
}
