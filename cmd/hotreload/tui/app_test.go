package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/hotreload/pkg/markup"
	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/events"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
	"github.com/jamesainslie/hotreload/pkg/reload/reloader"
	"github.com/jamesainslie/hotreload/pkg/reload/watcher"
)

const screen = `kind: window
id: main
children:
  - kind: button
    id: save
`

type fakeSource struct {
	metrics cache.MetricsSnapshot
	states  []watcher.StateInfo
}

func (f *fakeSource) Metrics() cache.MetricsSnapshot { return f.metrics }
func (f *fakeSource) States() []watcher.StateInfo    { return f.states }
func (f *fakeSource) Debounce() time.Duration        { return 75 * time.Millisecond }

type testEnv struct {
	model  Model
	source *fakeSource
	b      *events.Broadcaster
	r      *reloader.Reloader[*markup.Document]
	files  []cache.Identity
}

func newTestEnv(t *testing.T, names ...string) *testEnv {
	t.Helper()

	dir := t.TempDir()
	r := reloader.New[*markup.Document](markup.Parser{}, reloader.Options{})

	var files []cache.Identity
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(screen), 0644); err != nil {
			t.Fatal(err)
		}
		id, err := cache.NewIdentity(path)
		if err != nil {
			t.Fatal(err)
		}
		if res := r.Load(id); res.Outcome != reloader.OutcomeReloaded {
			t.Fatalf("initial load of %s: %v", name, res.Outcome)
		}
		files = append(files, id)
	}

	b := events.New()
	sub, err := b.Subscribe(events.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)

	src := &fakeSource{}
	m := NewModel(Options{
		Source:       src,
		Subscription: sub,
		Reloader:     r,
		Files:        files,
	})
	t.Cleanup(m.cancel)

	return &testEnv{model: m, source: src, b: b, r: r, files: files}
}

func (e *testEnv) update(msg tea.Msg) tea.Cmd {
	next, cmd := e.model.Update(msg)
	e.model = next.(Model)
	return cmd
}

func (e *testEnv) write(t *testing.T, id cache.Identity, content string) cache.Hash {
	t.Helper()
	if err := os.WriteFile(id.String(), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return cache.Sum([]byte(content))
}

func TestView_ShowsFilesAndDocument(t *testing.T) {
	env := newTestEnv(t, "a.yaml", "b.yaml")

	view := env.model.View()
	for _, want := range []string{"HOTRELOAD", "2 files", "debounce 75ms", "a.yaml", "b.yaml", "window", "#save", "LIVE"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestUpdate_ChangedEventReloads(t *testing.T) {
	env := newTestEnv(t, "a.yaml")
	id := env.files[0]

	h := env.write(t, id, "kind: window\nid: main\nchildren:\n  - kind: input\n    id: title\n")
	cmd := env.update(eventMsg{ev: events.NewChanged(id, h)})
	if cmd == nil {
		t.Error("expected a command to wait for the next event")
	}

	doc, ok := env.r.Document(id)
	if !ok {
		t.Fatal("document missing after reload")
	}
	if _, ok := doc.Find("title"); !ok {
		t.Error("reloaded document should contain the new node")
	}

	view := env.model.View()
	if !strings.Contains(view, "#title") || !strings.Contains(view, "reloaded") {
		t.Errorf("view should show the new tree and activity:\n%s", view)
	}
}

func TestUpdate_ParseFailureKeepsDocument(t *testing.T) {
	env := newTestEnv(t, "a.yaml")
	id := env.files[0]

	h := env.write(t, id, "kind: window\ncolour: red\n")
	env.update(eventMsg{ev: events.NewChanged(id, h)})

	if _, ok := env.r.Document(id); !ok {
		t.Fatal("last good document should be kept")
	}
	view := env.model.View()
	if !strings.Contains(view, "✗") {
		t.Errorf("view should mark the file as failing:\n%s", view)
	}
	if !strings.Contains(view, "a.yaml:2:1:") || !strings.Contains(view, `unknown field "colour"`) {
		t.Errorf("view should show the located diagnostic:\n%s", view)
	}
	if !strings.Contains(view, "#save") {
		t.Errorf("view should still show the last good tree:\n%s", view)
	}
}

func TestCursorSurvivesReload(t *testing.T) {
	env := newTestEnv(t, "a.yaml", "b.yaml", "c.yaml")

	env.update(tea.KeyMsg{Type: tea.KeyDown})
	env.update(tea.KeyMsg{Type: tea.KeyDown})
	if got := env.model.cursor(); got != 2 {
		t.Fatalf("cursor = %d, want 2", got)
	}

	h := env.write(t, env.files[0], "kind: window\n")
	env.update(eventMsg{ev: events.NewChanged(env.files[0], h)})

	if got := env.model.cursor(); got != 2 {
		t.Errorf("cursor after reload = %d, want 2", got)
	}
	if v, ok := reloader.Value[int](env.r.Session(), cursorKey); !ok || v != 2 {
		t.Errorf("session cursor = %d, %v; want 2, true", v, ok)
	}

	// Clamped at both ends
	env.update(tea.KeyMsg{Type: tea.KeyDown})
	if got := env.model.cursor(); got != 2 {
		t.Errorf("cursor past end = %d, want 2", got)
	}
	for range 5 {
		env.update(tea.KeyMsg{Type: tea.KeyUp})
	}
	if got := env.model.cursor(); got != 0 {
		t.Errorf("cursor past start = %d, want 0", got)
	}
}

func TestUpdate_RemovedEvent(t *testing.T) {
	env := newTestEnv(t, "a.yaml")
	id := env.files[0]

	env.update(eventMsg{ev: events.NewRemoved(id)})

	if got := env.model.statusIcon(id); !strings.Contains(got, "–") {
		t.Errorf("statusIcon = %q, want removed marker", got)
	}
	if !strings.Contains(env.model.View(), "1 removal") {
		t.Errorf("status line should count the removal:\n%s", env.model.View())
	}
}

func TestUpdate_UnknownFileIsAdded(t *testing.T) {
	env := newTestEnv(t, "a.yaml")
	other := cache.Identity(filepath.Join(filepath.Dir(env.files[0].String()), "new.yaml"))

	env.write(t, other, screen)
	env.update(eventMsg{ev: events.NewChanged(other, cache.Sum([]byte(screen)))})

	if len(env.model.files) != 2 {
		t.Errorf("files = %v, want the new file added", env.model.files)
	}
}

func TestWaitForEvent(t *testing.T) {
	env := newTestEnv(t, "a.yaml")
	id := env.files[0]

	if _, ok := env.b.Publish(events.NewRemoved(id)); !ok {
		t.Fatal("publish failed")
	}
	msg := env.model.waitForEvent()()
	em, ok := msg.(eventMsg)
	if !ok {
		t.Fatalf("waitForEvent() = %T, want eventMsg", msg)
	}
	if em.ev.Kind() != events.KindRemoved {
		t.Errorf("event kind = %v, want removed", em.ev.Kind())
	}

	env.b.Close()
	if _, ok := env.model.waitForEvent()().(closedMsg); !ok {
		t.Error("expected closedMsg after the broadcaster closes")
	}
	env.update(closedMsg{})
	if !strings.Contains(env.model.View(), "STOPPED") {
		t.Error("view should show the stopped indicator")
	}
}

func TestStatusIcon_PendingShowsSpinner(t *testing.T) {
	env := newTestEnv(t, "a.yaml")
	id := env.files[0]

	env.source.states = []watcher.StateInfo{{Identity: id, State: watcher.StatePending}}
	env.update(tickMsg{})

	if got := env.model.statusIcon(id); got != env.model.spinner.View() {
		t.Errorf("statusIcon = %q, want spinner frame", got)
	}

	env.source.states = []watcher.StateInfo{{Identity: id, State: watcher.StateFailed}}
	env.update(tickMsg{})
	if got := env.model.statusIcon(id); !strings.Contains(got, "!") {
		t.Errorf("statusIcon = %q, want failed marker", got)
	}
}

func TestRenderStatusLine(t *testing.T) {
	tests := []struct {
		name    string
		stats   reloader.Stats
		metrics cache.MetricsSnapshot
		want    []string
		absent  []string
	}{
		{
			name:    "singular",
			stats:   reloader.Stats{Reloads: 1},
			metrics: cache.MetricsSnapshot{Hits: 1},
			want:    []string{"1 reload", "1 redundant write skipped"},
			absent:  []string{"failure", "removal"},
		},
		{
			name:    "plural with failures",
			stats:   reloader.Stats{Reloads: 1200, Failures: 2},
			metrics: cache.MetricsSnapshot{Hits: 3},
			want:    []string{"1,200 reloads", "3 redundant writes skipped", "2 failures"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderStatusLine(tt.stats, tt.metrics)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("status line %q missing %q", got, w)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(got, a) {
					t.Errorf("status line %q should not contain %q", got, a)
				}
			}
		})
	}
}

func TestRenderTree_Truncates(t *testing.T) {
	doc, err := markup.Parse([]byte(screen))
	if err != nil {
		t.Fatal(err)
	}

	got := renderTree(doc, 1)
	if !strings.Contains(got, "window") || strings.Contains(got, "button") {
		t.Errorf("renderTree(1) = %q", got)
	}
	if !strings.Contains(got, "1 more node") {
		t.Errorf("renderTree(1) should report hidden nodes: %q", got)
	}
	if got := renderTree(doc, 0); !strings.Contains(got, "2 more nodes") {
		t.Errorf("renderTree(0) = %q, want \"2 more nodes\"", got)
	}
}

func TestLogPanel(t *testing.T) {
	buf := logging.NewLogBuffer(10)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	buf.Add(logging.LogEntry{Time: now, Level: logging.LevelDebug, Component: "watcher", Message: "armed"})
	buf.Add(logging.LogEntry{Time: now, Level: logging.LevelWarn, Component: "reloader", Message: "reload failed"})

	env := newTestEnv(t, "a.yaml")
	env.model.opts.Logs = buf

	env.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'l'}})
	if !env.model.showLogs {
		t.Fatal("l should open the log panel")
	}

	view := env.model.View()
	if !strings.Contains(view, "reload failed") || strings.Contains(view, "armed") {
		t.Errorf("info filter should hide debug entries:\n%s", view)
	}

	env.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'1'}})
	if !strings.Contains(env.model.View(), "armed") {
		t.Error("debug filter should show debug entries")
	}
}

func TestRenderLogEntry(t *testing.T) {
	e := logging.LogEntry{
		Time:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:     logging.LevelError,
		Component: "averyverylongcomponent",
		Message:   strings.Repeat("x", 200),
	}
	got := renderLogEntry(e, 60)
	if !strings.Contains(got, "03:04:05") || !strings.Contains(got, "[E]") {
		t.Errorf("renderLogEntry = %q", got)
	}
	if !strings.Contains(got, "averyveryl:") {
		t.Errorf("component should be truncated to 10 chars: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("long message should be truncated: %q", got)
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path     string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"/very/long/path/to/file.txt", 20, ".../path/to/file.txt"},
		{"abcd", 3, "abc"},
	}

	for _, tt := range tests {
		if got := truncatePath(tt.path, tt.maxLen); got != tt.expected {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.path, tt.maxLen, got, tt.expected)
		}
	}
}
