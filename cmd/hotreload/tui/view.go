package tui

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/jamesainslie/hotreload/pkg/markup"
	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/reloader"
	"github.com/jamesainslie/hotreload/pkg/reload/watcher"
)

const maxTreeRows = 12

// View renders the screen.
func (m Model) View() string {
	var b strings.Builder
	width := max(m.width-2, 20)

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(renderDivider(width))
	b.WriteString("\n")

	b.WriteString(m.renderFiles(width))
	b.WriteString(renderDivider(width))
	b.WriteString("\n")

	b.WriteString(m.renderSelected(width))
	b.WriteString(renderDivider(width))
	b.WriteString("\n")

	b.WriteString(m.renderActivity(width))
	b.WriteString(renderDivider(width))
	b.WriteString("\n")

	var metrics cache.MetricsSnapshot
	if m.opts.Source != nil {
		metrics = m.opts.Source.Metrics()
	}
	b.WriteString(renderStatusLine(m.opts.Reloader.Stats(), metrics))
	b.WriteString("\n")

	if m.showLogs && m.opts.Logs != nil {
		b.WriteString(renderDivider(width))
		b.WriteString("\n")
		b.WriteString(renderLogPanel(m.opts.Logs.Last(-1), m.logLevel, width, max(m.height/3, 5)))
	}

	hints := []string{"↑/↓", "select"}
	if m.opts.Logs != nil {
		hints = append(hints, "l", "logs")
	}
	hints = append(hints, "q", "quit")
	b.WriteString(renderKeyHints(hints...))

	return b.String()
}

func (m Model) renderHeader() string {
	name := titleStyle.Render("HOTRELOAD")

	parts := []string{english.Plural(len(m.files), "file", "")}
	if m.opts.Source != nil {
		parts = append(parts, "debounce "+m.opts.Source.Debounce().String())
	}
	header := fmt.Sprintf(" ⟳ %s%s", name, mutedTextStyle.Render("  "+strings.Join(parts, "  •  ")))

	if m.closed {
		return header + errorTextStyle.Render("  ○ STOPPED")
	}
	return header + successTextStyle.Render("  ● LIVE")
}

func (m Model) renderFiles(width int) string {
	var b strings.Builder
	if len(m.files) == 0 {
		b.WriteString(mutedTextStyle.Render("  No files watched"))
		b.WriteString("\n")
		return b.String()
	}

	cur := m.cursor()
	for i, id := range m.files {
		prefix := "  "
		if i == cur {
			prefix = cursorStyle.Render("> ")
		}

		line := fmt.Sprintf("%s %s", m.statusIcon(id), truncatePath(id.String(), width-12))
		if i == cur {
			line = selectedItemStyle.Render(line)
		} else {
			line = normalItemStyle.Render(line)
		}
		b.WriteString(prefix + line + "\n")
	}
	return b.String()
}

// statusIcon summarizes a file: spinner while a change is settling, then
// the reloader's view of the last outcome.
func (m Model) statusIcon(id cache.Identity) string {
	switch m.states[id] {
	case watcher.StatePending, watcher.StateEmitting:
		return m.spinner.View()
	case watcher.StateFailed:
		return errorTextStyle.Render("!")
	}

	r := m.opts.Reloader
	outcome, _, ok := r.LastOutcome(id)
	_, hasDoc := r.Document(id)
	_, hasDiag := r.Diagnostic(id)
	switch {
	case !ok:
		return mutedTextStyle.Render("·")
	case outcome == reloader.OutcomeRemoved:
		return warningTextStyle.Render("–")
	case hasDiag:
		return errorTextStyle.Render("✗")
	case hasDoc:
		return successTextStyle.Render("✓")
	default:
		return mutedTextStyle.Render("·")
	}
}

func (m Model) renderSelected(width int) string {
	var b strings.Builder

	id, ok := m.selected()
	if !ok {
		return ""
	}

	title := id.Base()
	if _, at, ok := m.opts.Reloader.LastOutcome(id); ok && !at.IsZero() {
		title += mutedTextStyle.Render("  updated " + humanize.Time(at))
	}
	b.WriteString(sectionStyle.Render(" "+title) + "\n")

	if d, ok := m.opts.Reloader.Diagnostic(id); ok {
		b.WriteString("  " + errorTextStyle.Render(truncatePath(d.String(), width-2)) + "\n")
	}

	doc, ok := m.opts.Reloader.Document(id)
	if !ok {
		b.WriteString(mutedTextStyle.Render("  (no document)") + "\n")
		return b.String()
	}
	b.WriteString(renderTree(doc, maxTreeRows))
	return b.String()
}

// renderTree draws up to rows nodes of doc, indented by depth.
func renderTree(doc *markup.Document, rows int) string {
	var b strings.Builder
	n := 0
	doc.Walk(func(node *markup.Node, depth int) {
		n++
		if n > rows {
			return
		}
		line := strings.Repeat("  ", depth+1) + kindStyle.Render(node.Kind)
		if node.ID != "" {
			line += mutedTextStyle.Render(" #" + node.ID)
		}
		b.WriteString(line + "\n")
	})
	if n > rows {
		b.WriteString(mutedTextStyle.Render(fmt.Sprintf("  … %d more %s", n-rows, english.PluralWord(n-rows, "node", ""))) + "\n")
	}
	return b.String()
}

func (m Model) renderActivity(width int) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render(" Activity") + "\n")
	if len(m.activity) == 0 {
		b.WriteString(mutedTextStyle.Render("  Waiting for changes…") + "\n")
		return b.String()
	}

	for _, a := range m.activity {
		line := fmt.Sprintf("  %s %-11s %s",
			logTimeStyle.Render(a.at.Format("15:04:05")),
			outcomeStyle(a.outcome),
			a.id.Base())
		if a.detail != "" {
			line += mutedTextStyle.Render("  " + truncatePath(a.detail, max(width-40, 10)))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func outcomeStyle(o reloader.Outcome) string {
	switch o {
	case reloader.OutcomeReloaded:
		return successTextStyle.Render(o.String())
	case reloader.OutcomeFailed, reloader.OutcomeWatchFailed:
		return errorTextStyle.Render(o.String())
	case reloader.OutcomeRemoved:
		return warningTextStyle.Render(o.String())
	default:
		return mutedTextStyle.Render(o.String())
	}
}

// renderStatusLine summarizes reloads and the writes the cache absorbed.
func renderStatusLine(stats reloader.Stats, metrics cache.MetricsSnapshot) string {
	parts := []string{
		humanize.Comma(stats.Reloads) + " " + english.PluralWord(int(stats.Reloads), "reload", ""),
		humanize.Comma(metrics.Hits) + " redundant " + english.PluralWord(int(metrics.Hits), "write", "") + " skipped",
	}
	if stats.Failures > 0 {
		parts = append(parts, errorTextStyle.Render(humanize.Comma(stats.Failures)+" "+english.PluralWord(int(stats.Failures), "failure", "")))
	}
	if stats.Removals > 0 {
		parts = append(parts, humanize.Comma(stats.Removals)+" "+english.PluralWord(int(stats.Removals), "removal", ""))
	}
	return " " + strings.Join(parts, mutedTextStyle.Render(" · "))
}
