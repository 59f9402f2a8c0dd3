package msglist

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/theme"
)

// MessageItem wraps a model.Message so it can be used in a bubbles/list.
type MessageItem struct {
	Message model.Message
}

// FilterValue returns the string used for fuzzy filtering.
func (i MessageItem) FilterValue() string { return i.Message.Subject }

// ItemDelegate renders one message per line: status glyphs, sender,
// subject, and date.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single message line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	mi, ok := item.(MessageItem)
	if !ok {
		return
	}
	msg := mi.Message
	isSelected := index == m.Index()

	glyphs := statusGlyphs(msg)
	from := truncate(msg.From(), 24)
	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}

	width := m.Width() - 4
	dateStr := relativeTime(msg.Date)
	line := fmt.Sprintf("%s %-24s %s", glyphs, from, subject)
	line = truncate(line, width-lipgloss.Width(dateStr)-2)
	gap := width - lipgloss.Width(line) - lipgloss.Width(dateStr)
	if gap < 1 {
		gap = 1
	}
	line = line + lipgloss.NewStyle().Width(gap).Render("") + dateStr

	style := theme.ListItemStyle
	switch {
	case isSelected:
		style = theme.SelectedItemStyle
	case msg.SyncFailed:
		style = style.Inherit(theme.FailedStyle)
	case !msg.Read:
		style = style.Inherit(theme.UnreadStyle)
	}
	fmt.Fprint(w, style.Render(line))
}

// statusGlyphs builds the leading marker column for a message row.
func statusGlyphs(msg model.Message) string {
	read := " "
	if !msg.Read {
		read = "●"
	}
	star := " "
	if msg.Flagged {
		star = theme.FlaggedStyle.Render("★")
	}
	failed := " "
	if msg.SyncFailed {
		failed = theme.FailedStyle.Render("!")
	}
	return read + star + failed
}

// relativeTime formats a timestamp compactly: clock time today, month
// and day this year, otherwise the date.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := time.Now()
	switch {
	case t.Year() == now.Year() && t.YearDay() == now.YearDay():
		return t.Format("15:04")
	case t.Year() == now.Year():
		return t.Format("Jan 02")
	default:
		return t.Format("2006-01-02")
	}
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}
