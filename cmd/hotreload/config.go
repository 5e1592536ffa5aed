package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/hotreload/pkg/reload/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage hotreload configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/hotreload/config.yaml (if set)
  2. ~/.config/hotreload/config.yaml

Environment variables can override config file settings using the HOTRELOAD_ prefix:
  HOTRELOAD_DEBOUNCE=150ms
  HOTRELOAD_REMOVE_POLICY=drop
  HOTRELOAD_DAEMON_METRICS_ADDR=127.0.0.1:9000`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// envOverrides lists the environment variables config show reports.
var envOverrides = []string{
	"debounce",
	"patterns",
	"remove_policy",
	"cache.persist",
	"cache.path",
	"logging.level",
	"logging.path",
	"daemon.socket_path",
	"daemon.metrics_addr",
	"daemon.pid_path",
}

// envName returns the environment variable that overrides key.
func envName(key string) string {
	return "HOTRELOAD_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// runConfigShow displays the current configuration.
func runConfigShow(_ *cobra.Command, _ []string) error {
	v, err := newViper()
	if err != nil {
		return err
	}
	c, err := config.LoadFrom(v)
	if err != nil {
		printError("Failed to load configuration: %v", err)
		// Show defaults anyway
		c = &config.Config{
			Debounce:     config.DefaultDebounce,
			Patterns:     config.DefaultPatterns,
			RemovePolicy: config.DefaultRemovePolicy,
		}
		c.Logging.Level = "info"
		c.Daemon.MetricsAddr = config.DefaultMetricsAddr
	}

	if configFile := v.ConfigFileUsed(); configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			fmt.Printf("Config file: %s\n\n", configFile)
		} else {
			fmt.Printf("Config file: (using defaults, %s not found)\n\n", configFile)
		}
	} else {
		fmt.Println("Config file: (using defaults, no file found)")
		fmt.Println()
	}

	paths := daemonPaths(c)
	snapshot := c.SnapshotPath()
	if snapshot == "" {
		snapshot = "(disabled)"
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("debounce:             %s\n", c.Debounce)
	fmt.Printf("patterns:             %v\n", c.Patterns)
	fmt.Printf("remove_policy:        %s\n", c.RemovePolicy)
	fmt.Printf("cache.snapshot:       %s\n", snapshot)
	fmt.Printf("logging.level:        %s\n", c.Logging.Level)
	fmt.Printf("daemon.socket_path:   %s\n", paths.Socket)
	fmt.Printf("daemon.metrics_addr:  %s\n", c.Daemon.MetricsAddr)
	fmt.Printf("daemon.pid_path:      %s\n", paths.PID)

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	anyOverrides := false
	for _, key := range envOverrides {
		name := envName(key)
		if val := os.Getenv(name); val != "" {
			fmt.Printf("%s=%s\n", name, val)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Println("(none)")
	}

	return nil
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(_ *cobra.Command, _ []string) error {
	configPath, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	// Determine editor
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath) //nolint:gosec // editor comes from the user's environment
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}

	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'hotreload config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	fmt.Println(configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}

	return nil
}
