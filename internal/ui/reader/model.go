// Package reader is the message reading pane.
package reader

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tomatyss/linsky/internal/keys"
	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// BodyLoadedMsg carries a fetched message body.
type BodyLoadedMsg struct {
	RemoteID string
	Body     *model.Body
}

// Model is the message reading view component.
type Model struct {
	message  *model.Message
	body     *model.Body
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new reader model.
func New(k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the reader.
func (m Model) Init() tea.Cmd {
	return nil
}

// SetMessage switches the reader to a message whose body may still be
// on its way.
func (m *Model) SetMessage(msg model.Message, body *model.Body) {
	m.message = &msg
	m.body = body
	m.loading = body == nil
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// CurrentMessage returns the message being displayed.
func (m Model) CurrentMessage() (model.Message, bool) {
	if m.message == nil {
		return model.Message{}, false
	}
	return *m.message, true
}

// Update handles messages for the reader.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case BodyLoadedMsg:
		if m.message == nil || m.message.RemoteID != msg.RemoteID {
			return m, nil
		}
		m.body = msg.Body
		m.loading = false
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Back) {
			return m, func() tea.Msg {
				return BackMsg{}
			}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the reader.
func (m Model) View() string {
	if m.message == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No message selected")
	}

	return m.viewport.View()
}

// renderContent builds the full reading-pane content string.
func (m Model) renderContent() string {
	if m.message == nil {
		return ""
	}

	msg := m.message
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	sections = append(sections, titleStyle.Render(subject))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	sections = append(sections, fmt.Sprintf(
		"%s  %s",
		metaStyle.Render("From:"),
		valStyle.Render(msg.From()),
	))
	if len(msg.To) > 0 {
		sections = append(sections, fmt.Sprintf(
			"%s    %s",
			metaStyle.Render("To:"),
			valStyle.Render(strings.Join(msg.To, ", ")),
		))
	}
	if !msg.Date.IsZero() {
		sections = append(sections, fmt.Sprintf(
			"%s  %s",
			metaStyle.Render("Date:"),
			valStyle.Render(msg.Date.Format("2006-01-02 15:04")),
		))
	}
	if msg.SyncFailed {
		sections = append(sections, theme.FailedStyle.Render(
			"A queued change to this message could not be applied to the server.",
		))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", min(m.width-4, 80)))
	sections = append(sections, "")
	sections = append(sections, separator)
	sections = append(sections, "")

	switch {
	case m.loading:
		sections = append(sections, lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("Fetching message body..."))
	case m.body == nil || (m.body.Text == "" && m.body.HTML == ""):
		sections = append(sections, lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("Empty message"))
	case m.body.Text != "":
		sections = append(sections, m.body.Text)
	default:
		sections = append(sections, stripHTML(m.body.HTML))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
	m.viewport.SetContent(m.renderContent())
}

// SetSize updates the reader dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
}
