// Package movefolder is the huh-based target picker for moving a
// message between folders.
package movefolder

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/theme"
)

// MoveMsg is dispatched when the user picks a target folder.
type MoveMsg struct {
	Message model.Message
	Target  string
}

// CancelMsg is dispatched when the user abandons the picker.
type CancelMsg struct{}

// Model is the Bubble Tea model for the move-target picker.
type Model struct {
	form    *huh.Form
	target  *string
	message model.Message
	width   int
	height  int
}

// New creates a new move picker model.
func New(width, height int) Model {
	return Model{
		target: new(string),
		width:  width,
		height: height,
	}
}

// Start initializes the picker for one message. folders is the
// account's folder list; the message's current folder is excluded.
func (m *Model) Start(msg model.Message, folders []model.Folder) tea.Cmd {
	m.message = msg

	var opts []huh.Option[string]
	for _, f := range folders {
		if f.Name == msg.Folder {
			continue
		}
		opts = append(opts, huh.NewOption(f.Name, f.Name))
	}
	*m.target = ""
	if len(opts) > 0 {
		*m.target = opts[0].Value
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Move to").
				Options(opts...).
				Value(m.target),
		),
	).WithWidth(m.width - 4).WithHeight(m.height - 4)
	return m.form.Init()
}

// Update handles messages for the picker.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		message, target := m.message, *m.target
		if target == "" {
			return m, func() tea.Msg { return CancelMsg{} }
		}
		return m, func() tea.Msg {
			return MoveMsg{Message: message, Target: target}
		}
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the picker.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Move Message") + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the picker dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
