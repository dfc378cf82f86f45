// Command watchdog supervises a single target process: run it in the
// foreground under the restart/backoff state machine, or query a
// previously persisted configuration and crash history from a one-shot
// invocation.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	watchdog "github.com/hekabrain/watchdog"
	"github.com/hekabrain/watchdog/internal/logbuffer"
	"github.com/hekabrain/watchdog/internal/logger"
	"github.com/hekabrain/watchdog/internal/wstore"
	"github.com/spf13/cobra"
)

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func main() {
	var (
		storeDir string
		debug    bool
	)

	root := &cobra.Command{Use: "watchdog"}
	root.PersistentFlags().StringVar(&storeDir, "store-dir", "", "config/crash-history directory (default: per-user config dir)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug-level logging")

	dir := func() string {
		if storeDir != "" {
			return storeDir
		}
		return watchdog.DefaultStoreDir()
	}

	cmdStatus := &cobra.Command{
		Use:   "status",
		Short: "Show an idle status snapshot built from the persisted configuration and crash history",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(logger.Config{Debug: debug})
			wd, err := watchdog.New(dir(), log, nil)
			if err != nil {
				return err
			}
			defer wd.Close()
			printJSON(wd.Status())
			return nil
		},
	}

	cmdCrashes := &cobra.Command{
		Use:   "crashes",
		Short: "Show the crash history",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(logger.Config{Debug: debug})
			wd, err := watchdog.New(dir(), log, nil)
			if err != nil {
				return err
			}
			defer wd.Close()
			printJSON(wd.Crashes())
			return nil
		},
	}

	var logLimit int
	var logCategory string
	cmdLogs := &cobra.Command{
		Use:   "logs",
		Short: "Show log lines captured during this invocation (the ring starts empty; existing file content is not replayed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(logger.Config{Debug: debug})
			home, _ := os.UserHomeDir()
			wd, err := watchdog.New(dir(), log, watchdog.DefaultWatchedFiles(home))
			if err != nil {
				return err
			}
			defer wd.Close()
			printJSON(wd.Logs(logLimit, logbuffer.Category(logCategory)))
			return nil
		},
	}
	cmdLogs.Flags().IntVar(&logLimit, "limit", 200, "maximum number of log entries to return")
	cmdLogs.Flags().StringVar(&logCategory, "category", "", "filter by category (empty means all)")

	cmdConfig := &cobra.Command{
		Use:   "config",
		Short: "Show the persisted configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(logger.Config{Debug: debug})
			wd, err := watchdog.New(dir(), log, nil)
			if err != nil {
				return err
			}
			defer wd.Close()
			printJSON(wd.Config())
			return nil
		},
	}

	var (
		exePath     string
		devPath     string
		modeFlag    string
		autoRestart bool
	)
	cmdRun := &cobra.Command{
		Use:   "run",
		Short: "Run the supervisor in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, _ := os.UserHomeDir()
			log := logger.New(logger.Config{Dir: dir(), Debug: debug})

			wd, err := watchdog.New(dir(), log, watchdog.DefaultWatchedFiles(home))
			if err != nil {
				return err
			}
			defer wd.Close()

			patch := watchdog.ConfigPatch{}
			if exePath != "" {
				patch.TargetExePath = &exePath
			}
			if devPath != "" {
				patch.TargetDevPath = &devPath
			}
			if modeFlag != "" {
				m := wstore.Mode(modeFlag)
				patch.Mode = &m
			}
			if cmd.Flags().Changed("auto-restart") {
				patch.AutoRestart = &autoRestart
			}
			if _, err := wd.UpdateConfig(patch); err != nil {
				return fmt.Errorf("apply config: %w", err)
			}

			wd.OnStatusChanged(func(s watchdog.StatusInfo) {
				log.Info("status changed", "status", s.Status, "pid", s.PID, "backoffMs", s.BackoffMs)
			})
			wd.OnCrash(func(c watchdog.CrashEntry) {
				log.Warn("target crashed", "exitCode", c.ExitCode, "signal", c.Signal, "uptimeMs", c.UptimeMs)
			})
			wd.OnMaxRestarts(func() {
				log.Error("restart rate limit reached, giving up")
			})

			if err := wd.Start(nil); err != nil {
				return fmt.Errorf("start: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			log.Info("shutting down")
			return wd.Stop()
		},
	}
	cmdRun.Flags().StringVar(&exePath, "exe", "", "path to the production executable")
	cmdRun.Flags().StringVar(&devPath, "dev-path", "", "path to the project for dev mode / build")
	cmdRun.Flags().StringVar(&modeFlag, "mode", "", "run mode: dev or production")
	cmdRun.Flags().BoolVar(&autoRestart, "auto-restart", true, "restart automatically on crash")

	root.AddCommand(cmdStatus, cmdCrashes, cmdLogs, cmdConfig, cmdRun)

	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
