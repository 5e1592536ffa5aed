package client

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jamesainslie/hotreload/pkg/daemon"
	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/watcher"
)

// setupTestServer serves a health tracker on a Unix socket.
func setupTestServer(t *testing.T) (string, *daemon.HealthTracker) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "hotreload-client-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	socketPath := filepath.Join(tmpDir, "test.sock")

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create listener: %v", err)
	}

	tracker := daemon.NewHealthTracker()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, tracker.Server())

	go func() {
		_ = srv.Serve(listener)
	}()

	t.Cleanup(func() {
		srv.Stop()
		_ = os.RemoveAll(tmpDir)
	})

	return socketPath, tracker
}

func connect(t *testing.T, socketPath string) *Client {
	t.Helper()
	c, err := Connect(socketPath)
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnect(t *testing.T) {
	socketPath, _ := setupTestServer(t)
	c := connect(t, socketPath)

	if c.conn == nil {
		t.Error("Connect() returned client with nil conn")
	}
}

func TestConnectInvalidSocket(t *testing.T) {
	_, err := Connect("/nonexistent/path/to/socket.sock")
	if err == nil {
		t.Error("Connect() should fail for nonexistent socket")
	}
}

func TestReady(t *testing.T) {
	socketPath, tracker := setupTestServer(t)
	c := connect(t, socketPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ready, err := c.Ready(ctx)
	if err != nil {
		t.Fatalf("Ready() failed: %v", err)
	}
	if !ready {
		t.Error("Ready() = false, want true")
	}

	tracker.Shutdown()
	ready, err = c.Ready(ctx)
	if err != nil {
		t.Fatalf("Ready() after shutdown failed: %v", err)
	}
	if ready {
		t.Error("Ready() = true after shutdown, want false")
	}
}

func TestCheck(t *testing.T) {
	socketPath, tracker := setupTestServer(t)
	c := connect(t, socketPath)

	ok := cache.Identity("/ui/main.yaml")
	failed := cache.Identity("/ui/broken.yaml")
	gone := cache.Identity("/ui/old.yaml")
	tracker.Observe(ok, watcher.StateUnwatched, watcher.StateIdle)
	tracker.Observe(ok, watcher.StateIdle, watcher.StatePending)
	tracker.Observe(failed, watcher.StateUnwatched, watcher.StateFailed)
	tracker.Observe(gone, watcher.StateUnwatched, watcher.StateIdle)
	tracker.Observe(gone, watcher.StateIdle, watcher.StateUnwatched)

	tests := []struct {
		path string
		want Health
	}{
		{string(ok), HealthServing},
		{string(failed), HealthNotServing},
		{string(gone), HealthUnwatched},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			got, err := c.Check(ctx, tt.path)
			if err != nil {
				t.Fatalf("Check() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Check(%s) = %s, want %s", tt.path, got, tt.want)
			}
		})
	}

	t.Run("never watched", func(t *testing.T) {
		_, err := c.Check(ctx, "/ui/never.yaml")
		if !errors.Is(err, ErrUnknownPath) {
			t.Errorf("Check() error = %v, want ErrUnknownPath", err)
		}
	})
}

func TestWatch(t *testing.T) {
	socketPath, tracker := setupTestServer(t)
	c := connect(t, socketPath)

	id := cache.Identity("/ui/main.yaml")
	tracker.Observe(id, watcher.StateUnwatched, watcher.StateIdle)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates, err := c.Watch(ctx, string(id))
	if err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}

	next := func() Health {
		t.Helper()
		select {
		case h, ok := <-updates:
			if !ok {
				t.Fatal("updates closed early")
			}
			return h
		case <-ctx.Done():
			t.Fatal("timed out waiting for update")
			return HealthUnknown
		}
	}

	if got := next(); got != HealthServing {
		t.Errorf("first update = %s, want serving", got)
	}

	tracker.Observe(id, watcher.StateIdle, watcher.StateFailed)
	if got := next(); got != HealthNotServing {
		t.Errorf("second update = %s, want not_serving", got)
	}

	cancel()
	for range updates {
	}
}

func TestHealthFromProto(t *testing.T) {
	tests := []struct {
		in   healthpb.HealthCheckResponse_ServingStatus
		want Health
	}{
		{healthpb.HealthCheckResponse_SERVING, HealthServing},
		{healthpb.HealthCheckResponse_NOT_SERVING, HealthNotServing},
		{healthpb.HealthCheckResponse_SERVICE_UNKNOWN, HealthUnwatched},
		{healthpb.HealthCheckResponse_UNKNOWN, HealthUnknown},
	}
	for _, tt := range tests {
		if got := healthFromProto(tt.in); got != tt.want {
			t.Errorf("healthFromProto(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestWaitReady(t *testing.T) {
	dir := t.TempDir()
	paths := DaemonPaths{Status: filepath.Join(dir, "status.json")}

	t.Run("ready", func(t *testing.T) {
		if err := daemon.WriteStatusReady(paths.Status, "/tmp/h.sock", ""); err != nil {
			t.Fatal(err)
		}
		if err := waitReady(paths, 3, time.Millisecond); err != nil {
			t.Errorf("waitReady() = %v, want nil", err)
		}
	})

	t.Run("error", func(t *testing.T) {
		if err := daemon.WriteStatusError(paths.Status, errors.New("bind failed")); err != nil {
			t.Fatal(err)
		}
		err := waitReady(paths, 3, time.Millisecond)
		if err == nil || err.Error() != "daemon failed to start: bind failed" {
			t.Errorf("waitReady() = %v, want startup error", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		_ = os.Remove(paths.Status)
		if err := waitReady(paths, 3, time.Millisecond); err == nil {
			t.Error("waitReady() should time out without a status file")
		}
	})
}

func TestStopDaemonNotRunning(t *testing.T) {
	dir := t.TempDir()
	paths := DaemonPaths{PID: filepath.Join(dir, "hotreload.pid")}

	if err := StopDaemon(paths); err != nil {
		t.Errorf("StopDaemon() with no pid file = %v, want nil", err)
	}

	if err := os.WriteFile(paths.PID, []byte("999999999"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := StopDaemon(paths); err != nil {
		t.Errorf("StopDaemon() with stale pid = %v, want nil", err)
	}
}

func TestResolveBinary(t *testing.T) {
	if _, err := resolveBinary("/nonexistent/hotreload"); err == nil {
		t.Error("resolveBinary() should fail for a missing configured path")
	}

	self, err := os.Executable()
	if err != nil {
		t.Skip("no executable path")
	}
	got, err := resolveBinary("")
	if err != nil {
		t.Fatalf("resolveBinary() failed: %v", err)
	}
	if got != self {
		t.Errorf("resolveBinary() = %q, want %q", got, self)
	}
}

func TestDaemonPathsDefaults(t *testing.T) {
	p := DaemonPaths{}.withDefaults()
	for name, v := range map[string]string{"socket": p.Socket, "pid": p.PID, "status": p.Status} {
		if !filepath.IsAbs(v) {
			t.Errorf("default %s path should be absolute, got %q", name, v)
		}
	}
}
