package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotatingWriterRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hotreload.log")

	w, err := NewRotatingWriter(path, RotationConfig{MaxSize: 64})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer w.Close()

	line := []byte(strings.Repeat("x", 40) + "\n")
	for range 3 {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) < 2 {
		t.Errorf("expected a rotated file next to the active log, got %d files", len(entries))
	}
}

func TestRotatingWriterPrunesBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hotreload.log")

	old := time.Now().Add(-time.Hour)
	for i, name := range []string{"hotreload.a.log", "hotreload.b.log", "hotreload.c.log"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("old"), 0o644); err != nil {
			t.Fatal(err)
		}
		stamp := old.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(p, stamp, stamp); err != nil {
			t.Fatal(err)
		}
	}

	w, err := NewRotatingWriter(path, RotationConfig{MaxBackups: 1})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(filepath.Join(dir, "hotreload.c.log")); err != nil {
		t.Errorf("newest backup should survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "hotreload.a.log")); !os.IsNotExist(err) {
		t.Errorf("oldest backup should be pruned, stat err = %v", err)
	}
}

func TestRotatingWriterDue(t *testing.T) {
	w := &RotatingWriter{cfg: RotationConfig{MaxSize: 100, Daily: true}}
	w.openedAt = time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)

	if w.due(10, w.openedAt.Add(30*time.Second)) {
		t.Error("same day and under size should not rotate")
	}
	if !w.due(10, w.openedAt.Add(2*time.Minute)) {
		t.Error("crossing midnight should rotate")
	}
	if !w.due(101, w.openedAt) {
		t.Error("exceeding MaxSize should rotate")
	}
}

func TestRotatingWriterWriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "x.log"), RotationConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("expected error writing to a closed writer")
	}
}

func TestLogBufferWraps(t *testing.T) {
	b := NewLogBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		b.Add(LogEntry{Message: msg})
	}

	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}
	got := b.Last(10)
	if got[0].Message != "b" || got[2].Message != "d" {
		t.Errorf("unexpected order: %+v", got)
	}
	if last := b.Last(1); last[0].Message != "d" {
		t.Errorf("Last(1) = %+v", last)
	}
}
