package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/hotreload/pkg/client"
	"github.com/jamesainslie/hotreload/pkg/reload/config"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
	"github.com/jamesainslie/hotreload/pkg/reload/reloader"
)

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"debounce":      "debounce",
	"pattern":       "patterns",
	"remove-policy": "remove_policy",
	"persist":       "cache.persist",
}

// newViper builds the config reader with flag overrides bound.
func newViper() (*viper.Viper, error) {
	v, err := config.New()
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return nil, fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return v, nil
}

// initializeLogging is the PersistentPreRunE hook. It creates the config,
// data and state directories, loads configuration and starts logging.
func initializeLogging(cmd *cobra.Command, _ []string) error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{configDir, config.DataDir(), config.StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	v, err := newViper()
	if err != nil {
		return err
	}
	loaded, err := config.LoadFrom(v)
	if err != nil {
		// The config commands must still work to repair a broken file.
		if !isConfigCommand(cmd) {
			return err
		}
		printError("Failed to load configuration: %v", err)
		return logging.Init(logging.Config{Level: "info", Rotation: logging.DefaultRotationConfig(), ConsoleLevel: consoleLevel()})
	}
	cfg = loaded

	lc, err := cfg.Logging.Logging()
	if err != nil {
		return err
	}
	lc.ConsoleLevel = consoleLevel()
	if err := logging.Init(lc); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	printVerbose("debounce %s, patterns %v, remove policy %s", cfg.Debounce, cfg.Patterns, cfg.RemovePolicy)
	return nil
}

// initTUILogging switches logging to the TUI's in-memory buffer so log lines
// do not tear the alternate screen.
func initTUILogging() error {
	lc, err := cfg.Logging.Logging()
	if err != nil {
		return err
	}
	lc.TUIMode = true
	return logging.Init(lc)
}

func closeLogging(_ *cobra.Command, _ []string) {
	_ = logging.Close()
}

// consoleLevel mirrors warnings to stderr unless -q, and everything with -v.
func consoleLevel() string {
	switch {
	case getQuiet():
		return ""
	case getVerbose():
		return "debug"
	default:
		return "warn"
	}
}

func isConfigCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == configCmd {
			return true
		}
	}
	return false
}

// removePolicy converts the config string into a reloader policy.
func removePolicy(c *config.Config) reloader.RemovePolicy {
	if c.RemovePolicy == "drop" {
		return reloader.Drop
	}
	return reloader.KeepLastGood
}

// daemonPaths returns the daemon file locations from config, with defaults
// filled in.
func daemonPaths(c *config.Config) client.DaemonPaths {
	p := client.DaemonPaths{
		Socket: config.DefaultSocketPath(),
		PID:    config.DefaultPIDPath(),
		Status: config.DefaultStatusPath(),
	}
	if c != nil && c.Daemon.SocketPath != "" {
		p.Socket = c.Daemon.SocketPath
	}
	if c != nil && c.Daemon.PIDPath != "" {
		p.PID = c.Daemon.PIDPath
	}
	return p
}
