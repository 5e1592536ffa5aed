package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/hotreload/pkg/reload/logging"
)

// filterEntriesByLevel returns entries at or above the specified level.
func filterEntriesByLevel(entries []logging.LogEntry, minLevel logging.Level) []logging.LogEntry {
	result := make([]logging.LogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Level >= minLevel {
			result = append(result, e)
		}
	}
	return result
}

// logLevelStyle returns the style for a log level.
func logLevelStyle(level logging.Level) lipgloss.Style {
	switch level {
	case logging.LevelDebug:
		return logDebugStyle
	case logging.LevelWarn:
		return logWarnStyle
	case logging.LevelError:
		return logErrorStyle
	default:
		return logInfoStyle
	}
}

// logLevelChar returns a single character for the log level.
func logLevelChar(level logging.Level) string {
	switch level {
	case logging.LevelDebug:
		return "D"
	case logging.LevelInfo:
		return "I"
	case logging.LevelWarn:
		return "W"
	case logging.LevelError:
		return "E"
	default:
		return "?"
	}
}

// renderLogPanel renders the newest entries that fit in height rows.
func renderLogPanel(entries []logging.LogEntry, minLevel logging.Level, width, height int) string {
	if height < 3 {
		return ""
	}

	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf(" Logs [%s] ", minLevel)))
	b.WriteString(mutedTextStyle.Render("[1-4] filter  [l] close"))
	b.WriteString("\n")
	b.WriteString(renderDivider(width))
	b.WriteString("\n")

	rows := height - 2
	filtered := filterEntriesByLevel(entries, minLevel)
	if len(filtered) > rows {
		filtered = filtered[len(filtered)-rows:]
	}
	for _, e := range filtered {
		b.WriteString(renderLogEntry(e, width))
		b.WriteString("\n")
	}
	if len(filtered) == 0 {
		b.WriteString(mutedTextStyle.Render("  (no log entries)"))
		b.WriteString("\n")
	}

	return b.String()
}

// renderLogEntry renders a single entry as HH:MM:SS [L] component: message.
func renderLogEntry(entry logging.LogEntry, width int) string {
	comp := entry.Component
	if len(comp) > 10 {
		comp = comp[:10]
	}

	prefixWidth := 8 + 1 + 3 + 1 + len(comp) + 2
	msgWidth := max(width-prefixWidth, 10)

	msg := entry.Message
	if len(msg) > msgWidth {
		msg = msg[:msgWidth-3] + "..."
	}

	return fmt.Sprintf("%s %s %s: %s",
		logTimeStyle.Render(entry.Time.Format("15:04:05")),
		logLevelStyle(entry.Level).Render("["+logLevelChar(entry.Level)+"]"),
		logComponentStyle.Render(comp),
		msg)
}
