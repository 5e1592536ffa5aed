package tui

import (
	"context"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/hotreload/pkg/markup"
	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/events"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
	"github.com/jamesainslie/hotreload/pkg/reload/reloader"
	"github.com/jamesainslie/hotreload/pkg/reload/watcher"
)

const (
	// cursorKey stores the selected file in the reloader session so the
	// selection survives document reloads.
	cursorKey = "tui.cursor"

	maxActivity = 8
	refresh     = 250 * time.Millisecond
)

// Source reports engine state for the header and file list.
type Source interface {
	Metrics() cache.MetricsSnapshot
	States() []watcher.StateInfo
	Debounce() time.Duration
}

// Options configures the TUI application.
type Options struct {
	Source       Source
	Subscription *events.Subscription
	Reloader     *reloader.Reloader[*markup.Document]
	Files        []cache.Identity
	// Logs feeds the log panel. Nil hides it.
	Logs *logging.LogBuffer
}

// activity is one line of the recent-activity list.
type activity struct {
	at      time.Time
	id      cache.Identity
	outcome reloader.Outcome
	detail  string
}

// eventMsg carries one event from the subscription.
type eventMsg struct {
	ev events.FileEvent
}

// closedMsg reports that the subscription ended.
type closedMsg struct {
	err error
}

// tickMsg refreshes watcher state in the file list.
type tickMsg struct{}

// Model is the Bubble Tea model for `hotreload watch`.
type Model struct {
	opts    Options
	ctx     context.Context
	cancel  context.CancelFunc
	files   []cache.Identity
	spinner spinner.Model

	activity []activity
	states   map[cache.Identity]watcher.State
	closed   bool

	showLogs bool
	logLevel logging.Level

	width  int
	height int
}

// NewModel creates a new TUI model with the given options.
func NewModel(opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(warningColor)

	files := slices.Clone(opts.Files)
	slices.Sort(files)

	m := Model{
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		files:    files,
		spinner:  s,
		states:   make(map[cache.Identity]watcher.State),
		logLevel: logging.LevelInfo,
		width:    80,
		height:   24,
	}
	m.refreshStates()
	return m
}

// Init starts the spinner, the event listener and the refresh tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForEvent(),
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(refresh, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// waitForEvent blocks on the subscription until the next event.
func (m Model) waitForEvent() tea.Cmd {
	sub, ctx := m.opts.Subscription, m.ctx
	return func() tea.Msg {
		ev, err := sub.Next(ctx)
		if err != nil {
			return closedMsg{err: err}
		}
		return eventMsg{ev: ev}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.apply(msg.ev)
		return m, m.waitForEvent()

	case closedMsg:
		m.closed = true
		return m, nil

	case tickMsg:
		m.refreshStates()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey handles keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "ctrl+c", "q", "esc":
		m.cancel()
		return m, tea.Quit
	case "up", "k":
		m.setCursor(m.cursor() - 1)
	case "down", "j":
		m.setCursor(m.cursor() + 1)
	case "home", "g":
		m.setCursor(0)
	case "end", "G":
		m.setCursor(len(m.files) - 1)
	case "l":
		if m.opts.Logs != nil {
			m.showLogs = !m.showLogs
		}
	case "1", "2", "3", "4":
		if m.showLogs {
			m.logLevel = logging.Level(key[0] - '1')
		}
	}
	return m, nil
}

// apply runs ev through the reloader and records the outcome.
func (m *Model) apply(ev events.FileEvent) {
	res := m.opts.Reloader.Apply(ev)

	if _, found := slices.BinarySearch(m.files, res.Identity); !found {
		m.files = append(m.files, res.Identity)
		slices.Sort(m.files)
	}

	a := activity{at: ev.Meta().At, id: res.Identity, outcome: res.Outcome}
	if a.at.IsZero() {
		a.at = time.Now()
	}
	if res.Diagnostic != nil && res.Outcome != reloader.OutcomeReloaded {
		a.detail = res.Diagnostic.Message
	}
	logging.Get("tui").Debug("event applied", "path", res.Identity, "kind", ev.Kind(), "outcome", res.Outcome)
	m.activity = append([]activity{a}, m.activity...)
	if len(m.activity) > maxActivity {
		m.activity = m.activity[:maxActivity]
	}
	m.refreshStates()
}

func (m *Model) refreshStates() {
	if m.opts.Source == nil {
		return
	}
	clear(m.states)
	for _, info := range m.opts.Source.States() {
		m.states[info.Identity] = info.State
	}
}

// cursor returns the selected file index, clamped to the file list.
func (m Model) cursor() int {
	c, _ := reloader.Value[int](m.opts.Reloader.Session(), cursorKey)
	return max(0, min(c, len(m.files)-1))
}

func (m Model) setCursor(c int) {
	c = max(0, min(c, len(m.files)-1))
	m.opts.Reloader.Session().Set(cursorKey, c)
}

// selected returns the file under the cursor.
func (m Model) selected() (cache.Identity, bool) {
	if len(m.files) == 0 {
		return "", false
	}
	return m.files[m.cursor()], true
}

// Run runs the TUI until the user quits.
func Run(opts Options) error {
	model := NewModel(opts)
	defer model.cancel()

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
