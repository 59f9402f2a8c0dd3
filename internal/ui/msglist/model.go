// Package msglist is the folder message list view.
package msglist

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tomatyss/linsky/internal/keys"
	"github.com/tomatyss/linsky/internal/mailbox"
	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/theme"
)

// MessagesLoadedMsg is sent when the folder's messages have been
// loaded from the cache.
type MessagesLoadedMsg struct {
	AccountID string
	Folder    string
	Messages  []model.Message
}

// SelectedMessageMsg is sent when the user opens a message.
type SelectedMessageMsg struct {
	Message model.Message
}

// Model is the message list view component.
type Model struct {
	list      list.Model
	mailbox   *mailbox.Mailbox
	keys      *keys.KeyMap
	accountID string
	folder    string
	width     int
	height    int
}

// New creates a new message list model.
func New(mb *mailbox.Mailbox, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Messages"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:    l,
		mailbox: mb,
		keys:    k,
		folder:  "INBOX",
		width:   width,
		height:  height,
	}
}

// SetFolder switches the view to another account or folder and reloads.
func (m *Model) SetFolder(accountID, folder string) tea.Cmd {
	m.accountID = accountID
	m.folder = folder
	m.list.Title = fmt.Sprintf("%s / %s", accountID, folder)
	return m.LoadMessages()
}

// Folder reports the currently displayed account and folder.
func (m Model) Folder() (accountID, folder string) {
	return m.accountID, m.folder
}

// SelectedMessage returns the message under the cursor.
func (m Model) SelectedMessage() (model.Message, bool) {
	item, ok := m.list.SelectedItem().(MessageItem)
	if !ok {
		return model.Message{}, false
	}
	return item.Message, true
}

// Init returns a command that loads the initial message list.
func (m Model) Init() tea.Cmd {
	return m.LoadMessages()
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case MessagesLoadedMsg:
		if msg.AccountID != m.accountID || msg.Folder != m.folder {
			return m, nil
		}
		items := make([]list.Item, len(msg.Messages))
		for i, message := range msg.Messages {
			items[i] = MessageItem{Message: message}
		}
		cmd := m.list.SetItems(items)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Select) {
			item, ok := m.list.SelectedItem().(MessageItem)
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg {
				return SelectedMessageMsg{Message: item.Message}
			}
		}
	}

	// Delegate to list model for navigation and other messages
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the message list.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

// renderEmptyState shows guidance text when no messages are cached.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.accountID == "" {
		return style.Render("No accounts configured.\nAdd one to ~/.config/linsky/config.yaml.")
	}
	return style.Render("No messages yet.\nPress r to refresh.")
}

// LoadMessages returns a tea.Cmd that queries the cache for the
// current folder.
func (m Model) LoadMessages() tea.Cmd {
	mb := m.mailbox
	accountID, folder := m.accountID, m.folder
	return func() tea.Msg {
		if accountID == "" {
			return MessagesLoadedMsg{}
		}
		messages, err := mb.ListMessages(context.Background(), accountID, folder)
		if err != nil {
			return MessagesLoadedMsg{AccountID: accountID, Folder: folder}
		}
		return MessagesLoadedMsg{AccountID: accountID, Folder: folder, Messages: messages}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
