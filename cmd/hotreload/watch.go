package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/hotreload/cmd/hotreload/tui"
	"github.com/jamesainslie/hotreload/pkg/markup"
	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/config"
	"github.com/jamesainslie/hotreload/pkg/reload/engine"
	"github.com/jamesainslie/hotreload/pkg/reload/events"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
	"github.com/jamesainslie/hotreload/pkg/reload/reloader"
)

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Watch files and reload documents on change",
	Long: `Watch files and directories and reparse documents whose content changed.

Directories are walked once at startup and every file matching the configured
patterns is watched. Files created later are not picked up.`,
	RunE: runWatch,
}

func init() {
	addWatchFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

// addWatchFlags registers the output flags shared by the root and watch commands.
func addWatchFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("no-interactive", "n", false, "disable TUI, print one line per reload")
	cmd.Flags().BoolP("json", "j", false, "print one JSON object per reload (implies --no-interactive)")
}

// runWatch is the main watch command handler.
func runWatch(cmd *cobra.Command, args []string) error {
	noInteractive, _ := cmd.Flags().GetBool("no-interactive")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(engine.Options{
		Debounce:     cfg.Debounce,
		Patterns:     cfg.Patterns,
		SnapshotPath: cfg.SnapshotPath(),
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			printError("closing engine: %v", err)
		}
	}()

	// Subscribe before watching so install failures are delivered.
	sub, err := eng.Subscribe(events.Filter{})
	if err != nil {
		return err
	}
	defer sub.Close()

	files, err := watchPaths(eng, args)
	if err != nil {
		return err
	}

	r := reloader.New[*markup.Document](markup.Parser{}, reloader.Options{RemovePolicy: removePolicy(cfg)})
	for _, id := range files {
		res := r.Load(id)
		if res.Diagnostic != nil {
			printVerbose("initial load: %s", res.Diagnostic)
		}
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	if noInteractive || asJSON {
		printInfo("Watching %s (debounce %s). Press Ctrl+C to stop.",
			english.Plural(len(files), "file", ""), eng.Debounce())
		return consume(ctx, sub, r, reportFunc(asJSON))
	}

	if err := initTUILogging(); err != nil {
		return fmt.Errorf("failed to initialize TUI logging: %w", err)
	}
	return tui.Run(tui.Options{
		Source:       eng,
		Subscription: sub,
		Reloader:     r,
		Files:        files,
		Logs:         logging.Buffer(),
	})
}

// pathWatcher is the part of the engine used to install watches.
type pathWatcher interface {
	Watch(path string) (cache.Identity, error)
	WatchDir(root string, patterns ...string) ([]cache.Identity, error)
}

// watchPaths installs watches for every argument, walking directories.
// Individual failures are reported and skipped; it fails only when nothing
// could be watched.
func watchPaths(w pathWatcher, args []string) ([]cache.Identity, error) {
	if len(args) == 0 {
		args = []string{"."}
	}

	var files []cache.Identity
	for _, arg := range args {
		path, err := config.ExpandPath(arg)
		if err != nil {
			return nil, err
		}

		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				printError("path does not exist: %s", path)
				continue
			}
			printError("cannot access path: %v", err)
			continue
		}

		if info.IsDir() {
			ids, err := w.WatchDir(path)
			if err != nil {
				printError("%v", err)
			}
			printVerbose("%s: %s", path, english.Plural(len(ids), "file", ""))
			files = append(files, ids...)
			continue
		}

		id, err := w.Watch(path)
		if err != nil {
			printError("%v", err)
			continue
		}
		files = append(files, id)
	}

	slices.Sort(files)
	files = slices.Compact(files)
	if len(files) == 0 {
		return nil, errors.New("no files to watch")
	}
	return files, nil
}

// consume applies events until ctx ends or the subscription closes.
func consume(ctx context.Context, sub *events.Subscription, r *reloader.Reloader[*markup.Document], report func(reloader.Result[*markup.Document])) error {
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, events.ErrClosed) {
				return nil
			}
			return err
		}
		report(r.Apply(ev))
	}
}

func reportFunc(asJSON bool) func(reloader.Result[*markup.Document]) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		return func(res reloader.Result[*markup.Document]) {
			_ = enc.Encode(newReport(res))
		}
	}
	return func(res reloader.Result[*markup.Document]) {
		printResult(os.Stdout, os.Stderr, res)
	}
}

// report is the --json line format.
type report struct {
	Path       string               `json:"path"`
	Outcome    string               `json:"outcome"`
	Nodes      int                  `json:"nodes,omitempty"`
	Diagnostic *reloader.Diagnostic `json:"diagnostic,omitempty"`
}

func newReport(res reloader.Result[*markup.Document]) report {
	rep := report{
		Path:    res.Identity.String(),
		Outcome: res.Outcome.String(),
	}
	if res.HasDoc && res.Document != nil {
		rep.Nodes = res.Document.Count()
	}
	if res.Outcome != reloader.OutcomeReloaded && res.Outcome != reloader.OutcomeUnchanged {
		rep.Diagnostic = res.Diagnostic
	}
	return rep
}

// printResult writes one human-readable line per outcome.
func printResult(out, errOut io.Writer, res reloader.Result[*markup.Document]) {
	switch res.Outcome {
	case reloader.OutcomeReloaded:
		nodes := 0
		if res.Document != nil {
			nodes = res.Document.Count()
		}
		if !getQuiet() {
			fmt.Fprintf(out, "reloaded %s (%s)\n", res.Identity, english.Plural(nodes, "node", ""))
		}
	case reloader.OutcomeUnchanged:
		printVerbose("unchanged %s", res.Identity)
	case reloader.OutcomeRemoved:
		if !getQuiet() {
			fmt.Fprintf(out, "removed  %s\n", res.Identity)
		}
	default:
		if res.Diagnostic != nil {
			fmt.Fprintln(errOut, res.Diagnostic.String())
			return
		}
		fmt.Fprintf(errOut, "%s %s\n", res.Outcome, res.Identity)
	}
}
