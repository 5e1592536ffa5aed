package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/hotreload/pkg/client"
	"github.com/jamesainslie/hotreload/pkg/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background diagnostics daemon",
	Long: `Manage a 'hotreload serve' process running in the background.

The daemon keeps watching files after the terminal is closed and answers
health checks from editors, test runners and CI scripts.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start [paths...]",
	Short: "Start the daemon",
	Long:  `Start 'hotreload serve' in the background for the given paths.`,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Long:  `Stop the daemon gracefully.`,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart [paths...]",
	Short: "Restart the daemon",
	Long:  `Stop and start the daemon.`,
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status [paths...]",
	Short: "Show daemon status",
	Long: `Show the current status of the daemon, and the health of each given
path as the daemon sees it.`,
	RunE: runDaemonStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func runDaemonStart(_ *cobra.Command, args []string) error {
	paths := daemonPaths(cfg)
	printVerbose("starting daemon...")
	if err := client.StartDaemon(paths, args...); err != nil {
		printVerbose("start failed: %v", err)
		return err
	}
	printVerbose("daemon started successfully")
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	paths := daemonPaths(cfg)
	printVerbose("checking PID file: %s", paths.PID)

	if !daemon.IsDaemonRunning(paths.PID) {
		printVerbose("daemon not running (PID check failed)")
		return errors.New("daemon is not running")
	}

	if err := client.StopDaemon(paths); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	paths := daemonPaths(cfg)

	// Stop if running
	if daemon.IsDaemonRunning(paths.PID) {
		if err := runDaemonStop(cmd, nil); err != nil {
			return fmt.Errorf("failed to stop daemon: %w", err)
		}
	}

	if err := runDaemonStart(cmd, args); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	return nil
}

func runDaemonStatus(_ *cobra.Command, args []string) error {
	paths := daemonPaths(cfg)

	if !daemon.IsDaemonRunning(paths.PID) {
		printInfo("Daemon status: not running")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		printInfo("Daemon status: running (but not responding)")
		return nil
	}
	defer c.Close()

	ready, err := c.Ready(ctx)
	if err != nil {
		return fmt.Errorf("failed to get daemon status: %w", err)
	}
	if !ready {
		printInfo("Daemon status: shutting down")
		return nil
	}

	printInfo("Daemon status: running")
	if st, err := daemon.ReadStatus(paths.Status); err == nil {
		printInfo("  PID:     %d", st.PID)
		printInfo("  Socket:  %s", st.Socket)
		if st.MetricsAddr != "" {
			printInfo("  Metrics: http://%s/metrics", st.MetricsAddr)
		}
		if !st.StartedAt.IsZero() {
			printInfo("  Uptime:  %s", formatDuration(time.Since(st.StartedAt)))
		}
	}

	if len(args) > 0 {
		printInfo("  Paths:")
		for _, p := range args {
			h, err := c.Check(ctx, p)
			switch {
			case errors.Is(err, client.ErrUnknownPath):
				printInfo("    %-12s %s", "not watched", p)
			case err != nil:
				return fmt.Errorf("checking %s: %w", p, err)
			default:
				printInfo("    %-12s %s", h, p)
			}
		}
	}

	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
