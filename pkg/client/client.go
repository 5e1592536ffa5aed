// Package client talks to a running `hotreload serve` daemon.
// It wraps the gRPC health client with per-path convenience methods and
// starts or stops the daemon process.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/jamesainslie/hotreload/pkg/daemon"
	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/config"
)

// ErrUnknownPath is returned by Check for a path the daemon never watched.
var ErrUnknownPath = errors.New("path not known to daemon")

// Health is the daemon's view of one watched path.
type Health string

// Health values.
const (
	HealthServing    Health = "serving"
	HealthNotServing Health = "not_serving"
	HealthUnwatched  Health = "unwatched"
	HealthUnknown    Health = "unknown"
)

// Client connects to the hotreload daemon via gRPC.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// Connect establishes a connection to the daemon.
// Uses a default timeout of 5 seconds.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext establishes a connection to the daemon with a custom context.
func ConnectWithContext(ctx context.Context, socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon socket not found at %s", socketPath)
	}

	target := "unix://" + socketPath

	//nolint:staticcheck // grpc.DialContext is deprecated but NewClient doesn't support blocking
	conn, err := grpc.DialContext(
		ctx,
		target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	return &Client{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
	}, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Ready reports whether the daemon itself is serving.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Check returns the health of one path. Relative paths are resolved against
// the caller's working directory.
func (c *Client) Check(ctx context.Context, path string) (Health, error) {
	id, err := cache.NewIdentity(path)
	if err != nil {
		return HealthUnknown, err
	}

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: id.String()})
	if status.Code(err) == codes.NotFound {
		return HealthUnknown, fmt.Errorf("%w: %s", ErrUnknownPath, id)
	}
	if err != nil {
		return HealthUnknown, fmt.Errorf("health check failed: %w", err)
	}
	return healthFromProto(resp.GetStatus()), nil
}

// Watch streams health changes for path until ctx is cancelled or the
// daemon goes away. The current status is delivered first.
func (c *Client) Watch(ctx context.Context, path string) (<-chan Health, error) {
	id, err := cache.NewIdentity(path)
	if err != nil {
		return nil, err
	}

	stream, err := c.health.Watch(ctx, &healthpb.HealthCheckRequest{Service: id.String()})
	if err != nil {
		return nil, fmt.Errorf("health watch failed: %w", err)
	}

	updates := make(chan Health, 16)
	go func() {
		defer close(updates)
		for {
			resp, err := stream.Recv()
			if err != nil {
				return // Stream closed or error
			}

			select {
			case updates <- healthFromProto(resp.GetStatus()):
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, nil
}

func healthFromProto(s healthpb.HealthCheckResponse_ServingStatus) Health {
	switch s {
	case healthpb.HealthCheckResponse_SERVING:
		return HealthServing
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return HealthNotServing
	case healthpb.HealthCheckResponse_SERVICE_UNKNOWN:
		return HealthUnwatched
	default:
		return HealthUnknown
	}
}

// DaemonPaths configures paths for daemon operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary string // Path to hotreload binary (current executable if empty)
	Socket string // Unix socket path
	PID    string // PID file path
	Status string // Startup status file path
}

// withDefaults returns a copy with empty fields filled with defaults.
func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Socket == "" {
		p.Socket = config.DefaultSocketPath()
	}
	if p.PID == "" {
		p.PID = config.DefaultPIDPath()
	}
	if p.Status == "" {
		p.Status = config.DefaultStatusPath()
	}
	return p
}

// StartDaemon runs `hotreload serve args...` in the background and waits
// for it to report ready.
// Idempotent: returns nil if daemon is already running.
func StartDaemon(paths DaemonPaths, args ...string) error {
	paths = paths.withDefaults()

	if daemon.IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find hotreload: %w", err)
	}

	_ = os.Remove(paths.Status)

	// Use exec.Command (not CommandContext) intentionally: daemon must outlive caller
	cmd := exec.Command(binary, append([]string{"serve"}, args...)...) //nolint:gosec // binary path is validated
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	// Detach so daemon outlives caller
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	return waitReady(paths, 50, 100*time.Millisecond)
}

// waitReady polls the status file until the daemon reports ready or error.
func waitReady(paths DaemonPaths, attempts int, interval time.Duration) error {
	for range attempts {
		time.Sleep(interval)

		if st, err := daemon.ReadStatus(paths.Status); err == nil {
			switch st.Status {
			case "ready":
				return nil
			case "error":
				return fmt.Errorf("daemon failed to start: %s", st.Error)
			}
		}
	}

	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon sends SIGTERM to the daemon and waits for it to exit.
// Idempotent: returns nil if daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	pid, err := daemon.ReadPIDFile(paths.PID)
	if err != nil || !daemon.IsProcessRunning(pid) {
		return nil //nolint:nilerr // no pid file means nothing to stop
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon: %w", err)
	}

	for range 20 {
		time.Sleep(250 * time.Millisecond)
		if !daemon.IsProcessRunning(pid) {
			return nil
		}
	}

	return errors.New("daemon did not stop within timeout")
}

// resolveBinary finds the hotreload binary path.
// Priority: configured path > current executable > PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	if execPath, err := os.Executable(); err == nil {
		return execPath, nil
	}

	if path, err := exec.LookPath("hotreload"); err == nil {
		return path, nil
	}

	return "", errors.New("hotreload not found")
}
