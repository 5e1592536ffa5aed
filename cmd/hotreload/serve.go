package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/hotreload/pkg/client"
	"github.com/jamesainslie/hotreload/pkg/daemon"
	"github.com/jamesainslie/hotreload/pkg/markup"
	"github.com/jamesainslie/hotreload/pkg/reload/engine"
	"github.com/jamesainslie/hotreload/pkg/reload/events"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
	"github.com/jamesainslie/hotreload/pkg/reload/reloader"
)

var serveCmd = &cobra.Command{
	Use:   "serve [paths...]",
	Short: "Run the diagnostics daemon",
	Long: `Watch files in the foreground and expose their state to other tools.

The daemon serves the standard gRPC health protocol on a Unix socket, with
one service per watched file: SERVING while the file reloads cleanly and
NOT_SERVING when its watch failed. The overall service "" reports the daemon
itself.

When --metrics-addr is set, an HTTP listener exposes:
  /metrics   Prometheus metrics (cache hits, events, watch states)
  /state     JSON snapshot of every watched path (?path= for one)
  /healthz   liveness, "degraded" while any watch has failed

Use --detach to start the daemon in the background and return once it is
ready. Stop it with 'hotreload daemon stop'.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolP("detach", "d", false, "start in the background and return when ready")
	serveCmd.Flags().String("socket", "", "Unix socket for the gRPC health service")
	serveCmd.Flags().String("metrics-addr", "", "HTTP address for /metrics, /state and /healthz (\"off\" disables)")
	rootCmd.AddCommand(serveCmd)
}

// runServe is the serve command handler.
func runServe(cmd *cobra.Command, args []string) error {
	paths := daemonPaths(cfg)
	if s, _ := cmd.Flags().GetString("socket"); s != "" {
		paths.Socket = s
	}
	metricsAddr := cfg.Daemon.MetricsAddr
	if cmd.Flags().Changed("metrics-addr") {
		metricsAddr, _ = cmd.Flags().GetString("metrics-addr")
	}
	if metricsAddr == "off" {
		metricsAddr = ""
	}

	if detach, _ := cmd.Flags().GetBool("detach"); detach {
		printVerbose("starting daemon in the background...")
		if err := client.StartDaemon(paths, forwardArgs(cmd, args)...); err != nil {
			return err
		}
		printInfo("Daemon started (socket %s)", paths.Socket)
		return nil
	}

	if daemon.IsDaemonRunning(paths.PID) {
		return fmt.Errorf("%w (pid file %s)", daemon.ErrDaemonAlreadyRunning, paths.PID)
	}
	if err := daemon.RecoverFromStaleDaemon(paths.PID, paths.Socket, cfg.SnapshotPath()); err != nil {
		printVerbose("stale daemon recovery: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, paths, metricsAddr, args); err != nil {
		if werr := daemon.WriteStatusError(paths.Status, err); werr != nil {
			printVerbose("writing status: %v", werr)
		}
		return err
	}
	return nil
}

// serve runs the engine and daemon until ctx ends.
func serve(ctx context.Context, paths client.DaemonPaths, metricsAddr string, args []string) error {
	log := logging.Get("daemon")

	health := daemon.NewHealthTracker()
	eng, err := engine.New(engine.Options{
		Debounce:      cfg.Debounce,
		Patterns:      cfg.Patterns,
		SnapshotPath:  cfg.SnapshotPath(),
		OnStateChange: health.Observe,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Error("closing engine", "error", err)
		}
	}()

	sub, err := eng.Subscribe(events.Filter{})
	if err != nil {
		return err
	}
	files, err := watchPaths(eng, args)
	if err != nil {
		return err
	}

	r := reloader.New[*markup.Document](markup.Parser{}, reloader.Options{RemovePolicy: removePolicy(cfg)})
	for _, id := range files {
		r.Load(id)
	}

	srv, err := daemon.NewServer(daemon.Config{SocketPath: paths.Socket, MetricsAddr: metricsAddr}, eng, health)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	if err := daemon.WritePIDFile(paths.PID); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() {
		if err := daemon.RemovePIDFile(paths.PID); err != nil {
			log.Warn("failed to remove PID file", "error", err)
		}
		_ = daemon.RemoveStatus(paths.Status)
	}()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	if err := daemon.WriteStatusReady(paths.Status, srv.SocketPath(), srv.HTTPAddr()); err != nil {
		log.Warn("failed to write status file", "error", err)
	}
	log.Info("daemon ready", "socket", srv.SocketPath(), "http", srv.HTTPAddr(), "files", len(files))
	printInfo("Serving %d files on %s", len(files), srv.SocketPath())
	if addr := srv.HTTPAddr(); addr != "" {
		printInfo("Metrics at http://%s/metrics", addr)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gCtx)
	})
	g.Go(func() error {
		return consume(gCtx, sub, r, func(res reloader.Result[*markup.Document]) {
			log.Debug("applied", "path", res.Identity, "outcome", res.Outcome)
		})
	})
	g.Go(func() error {
		<-gCtx.Done()
		return eng.Close()
	})

	err = g.Wait()
	log.Info("daemon stopped")
	return err
}

// forwardArgs rebuilds the flags set on this invocation for the detached
// child, minus --detach itself.
func forwardArgs(cmd *cobra.Command, args []string) []string {
	var out []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Name == "detach" {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			for _, s := range sv.GetSlice() {
				out = append(out, "--"+f.Name+"="+s)
			}
			return
		}
		out = append(out, "--"+f.Name+"="+f.Value.String())
	})
	return append(out, args...)
}
