// Package composeform is the huh-based form for writing and replying
// to messages.
package composeform

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/theme"
)

// SubmitMsg is dispatched when the user submits a composed message.
type SubmitMsg struct {
	Message model.OutgoingMessage
}

// CancelMsg is dispatched when the user abandons the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's
// Value() pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	to      string
	cc      string
	subject string
	body    string
}

// Model is the Bubble Tea model for the compose form.
type Model struct {
	form      *huh.Form
	fb        *formBindings
	accountID string
	from      string
	inReplyTo string
	replyMode bool
	width     int
	height    int
}

// New creates a new compose form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// StartCompose initializes the form for a fresh message.
func (m *Model) StartCompose(accountID, from string) tea.Cmd {
	m.accountID = accountID
	m.from = from
	m.inReplyTo = ""
	m.replyMode = false
	m.fb.to = ""
	m.fb.cc = ""
	m.fb.subject = ""
	m.fb.body = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// StartReply initializes the form as a reply to an existing message.
func (m *Model) StartReply(accountID, from string, original model.Message) tea.Cmd {
	m.accountID = accountID
	m.from = from
	m.inReplyTo = original.MessageID
	m.replyMode = true
	m.fb.to = original.FromAddr
	m.fb.cc = ""
	m.fb.subject = replySubject(original.Subject)
	m.fb.body = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the compose form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the compose form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleText := "New Message"
	if m.replyMode {
		titleText = "Reply"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render(titleText) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("To").
				Placeholder("alice@example.com, bob@example.com").
				Value(&m.fb.to).
				Validate(validateAddressList("To", true)),
			huh.NewInput().
				Title("Cc").
				Placeholder("optional").
				Value(&m.fb.cc).
				Validate(validateAddressList("Cc", false)),
			huh.NewInput().
				Title("Subject").
				Value(&m.fb.subject),
			huh.NewText().
				Title("Body").
				Value(&m.fb.body),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) handleSubmit() tea.Cmd {
	out := model.OutgoingMessage{
		AccountID: m.accountID,
		From:      m.from,
		To:        splitAddresses(m.fb.to),
		Cc:        splitAddresses(m.fb.cc),
		Subject:   m.fb.subject,
		Body:      m.fb.body,
		InReplyTo: m.inReplyTo,
	}
	return func() tea.Msg { return SubmitMsg{Message: out} }
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

// replySubject prefixes the subject with "Re: " unless it already has
// one.
func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// splitAddresses parses a comma-separated address list.
func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateAddressList(fieldName string, required bool) func(string) error {
	return func(s string) error {
		addrs := splitAddresses(s)
		if required && len(addrs) == 0 {
			return fmt.Errorf("%s is required", fieldName)
		}
		for _, a := range addrs {
			if !strings.Contains(a, "@") {
				return fmt.Errorf("%q does not look like an address", a)
			}
		}
		return nil
	}
}
