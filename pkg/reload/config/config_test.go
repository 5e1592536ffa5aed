package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	return home
}

func writeConfig(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, ".config", AppName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Debounce != DefaultDebounce {
		t.Errorf("Debounce = %v, want %v", cfg.Debounce, DefaultDebounce)
	}
	if len(cfg.Patterns) != len(DefaultPatterns) {
		t.Errorf("Patterns = %v, want %v", cfg.Patterns, DefaultPatterns)
	}
	if cfg.RemovePolicy != "keep" {
		t.Errorf("RemovePolicy = %q, want keep", cfg.RemovePolicy)
	}
	if cfg.Cache.Persist {
		t.Error("Cache.Persist = true, want false")
	}
	if cfg.SnapshotPath() != "" {
		t.Errorf("SnapshotPath() = %q, want empty when persistence is off", cfg.SnapshotPath())
	}
	if cfg.Daemon.MetricsAddr != DefaultMetricsAddr {
		t.Errorf("Daemon.MetricsAddr = %q, want %q", cfg.Daemon.MetricsAddr, DefaultMetricsAddr)
	}
	if cfg.Logging.Components["detector"] != "warn" {
		t.Errorf("Logging.Components[detector] = %q, want warn", cfg.Logging.Components["detector"])
	}
}

func TestLoad_FromFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, home, `
debounce: 150ms
patterns:
  - "*.ui.yaml"
remove_policy: drop
cache:
  persist: true
  path: ~/snapshots
daemon:
  metrics_addr: 127.0.0.1:9999
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Debounce != 150*time.Millisecond {
		t.Errorf("Debounce = %v, want 150ms", cfg.Debounce)
	}
	if len(cfg.Patterns) != 1 || cfg.Patterns[0] != "*.ui.yaml" {
		t.Errorf("Patterns = %v", cfg.Patterns)
	}
	if cfg.RemovePolicy != "drop" {
		t.Errorf("RemovePolicy = %q, want drop", cfg.RemovePolicy)
	}
	if want := filepath.Join(home, "snapshots"); cfg.SnapshotPath() != want {
		t.Errorf("SnapshotPath() = %q, want %q", cfg.SnapshotPath(), want)
	}
	if cfg.Daemon.MetricsAddr != "127.0.0.1:9999" {
		t.Errorf("Daemon.MetricsAddr = %q", cfg.Daemon.MetricsAddr)
	}
}

func TestLoad_XDGConfigHome(t *testing.T) {
	isolate(t)
	xdgHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdgHome)

	dir := filepath.Join(xdgHome, AppName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("debounce: 40ms\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Debounce != 40*time.Millisecond {
		t.Errorf("Debounce = %v, want 40ms", cfg.Debounce)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("HOTRELOAD_DEBOUNCE", "250ms")
	t.Setenv("HOTRELOAD_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Debounce != 250*time.Millisecond {
		t.Errorf("Debounce = %v, want 250ms", cfg.Debounce)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative debounce", "debounce: -1s\n"},
		{"bad policy", "remove_policy: shred\n"},
		{"bad level", "logging:\n  level: loud\n"},
		{"malformed yaml", "debounce: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := isolate(t)
			writeConfig(t, home, tt.content)

			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoggingConversion(t *testing.T) {
	lc := LoggingConfig{
		Level: "warn",
		Rotation: RotationConfig{
			MaxSize:    "2MB",
			MaxAge:     3,
			MaxBackups: 2,
			Daily:      true,
		},
		Components: map[string]string{"watcher": "debug"},
	}

	got, err := lc.Logging()
	if err != nil {
		t.Fatalf("Logging() error = %v", err)
	}
	if got.Rotation.MaxSize != 2_000_000 {
		t.Errorf("Rotation.MaxSize = %d, want 2000000", got.Rotation.MaxSize)
	}
	if got.Level != "warn" || got.Components["watcher"] != "debug" {
		t.Errorf("unexpected config: %+v", got)
	}

	lc.Rotation.MaxSize = "lots"
	if _, err := lc.Logging(); err == nil {
		t.Error("expected error for unparseable size")
	}
}

func TestWriteDefault(t *testing.T) {
	isolate(t)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading default config: %v", err)
	}
	if !strings.Contains(string(data), "debounce: 75ms") {
		t.Errorf("default config missing debounce:\n%s", data)
	}

	// The written file must load cleanly.
	if _, err := Load(); err != nil {
		t.Fatalf("Load() after WriteDefault error = %v", err)
	}

	if err := os.WriteFile(path, []byte("debounce: 1s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteDefault(); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "debounce: 1s\n" {
		t.Error("WriteDefault overwrote an existing file")
	}
}

func TestExpandPath(t *testing.T) {
	home := isolate(t)

	got, err := ExpandPath("~/x/y")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "x", "y") {
		t.Errorf("ExpandPath = %q", got)
	}

	got, _ = ExpandPath("/abs/path")
	if got != "/abs/path" {
		t.Errorf("ExpandPath changed an absolute path: %q", got)
	}
}

func TestDefaultPaths(t *testing.T) {
	for name, p := range map[string]string{
		"socket":   DefaultSocketPath(),
		"pid":      DefaultPIDPath(),
		"snapshot": DefaultSnapshotPath(),
		"status":   DefaultStatusPath(),
	} {
		if !strings.Contains(p, AppName) {
			t.Errorf("%s path %q not under an %s directory", name, p, AppName)
		}
	}
}
