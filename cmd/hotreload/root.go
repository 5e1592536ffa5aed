package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/hotreload/pkg/reload/config"
)

var (
	cfgFile string

	// cfg is loaded by the PersistentPreRunE hook before any command runs.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "hotreload [paths...]",
		Short: "Reload declarative UI documents as they change on disk",
		Long: `Hotreload watches UI document files and reparses them whenever their
content actually changes. Editor saves that rewrite identical bytes are
absorbed by a content cache and never reach the parser.

By default, hotreload opens an interactive view of the watched files, their
current document trees and recent reloads. Use --no-interactive for plain
line output.

Examples:
  hotreload                      # Watch *.yaml/*.yml under the current directory
  hotreload ui/ screens/main.yaml
  hotreload -p '**/*.ui.yaml' .  # Watch with a custom pattern
  hotreload -n --json ui/        # One JSON line per reload
  hotreload serve -d ui/         # Run the diagnostics daemon in the background
  hotreload config show          # Show configuration`,
		Args: cobra.ArbitraryArgs,
	}
)

func init() {
	// Set here rather than in the literal to avoid an initialization cycle.
	rootCmd.PersistentPreRunE = initializeLogging
	rootCmd.PersistentPostRun = closeLogging
	rootCmd.RunE = runWatch

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/hotreload/config.yaml)")
	rootCmd.PersistentFlags().Duration("debounce", 0, "settling period per file (default from config, 75ms)")
	rootCmd.PersistentFlags().StringSliceP("pattern", "p", nil, "glob for files picked up in watched directories (repeatable)")
	rootCmd.PersistentFlags().String("remove-policy", "", "what to do when a file is deleted: keep or drop")
	rootCmd.PersistentFlags().Bool("persist", false, "persist content hashes across restarts")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	addWatchFlags(rootCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	v, _ := rootCmd.PersistentFlags().GetBool("verbose")
	return v
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	q, _ := rootCmd.PersistentFlags().GetBool("quiet")
	return q
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
