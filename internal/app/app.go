// Package app is the root Bubble Tea model: view routing, layout, and
// the bridge between the terminal frontend and the mailbox facade.
package app

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tomatyss/linsky/internal/keys"
	"github.com/tomatyss/linsky/internal/mailbox"
	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/store"
	appsync "github.com/tomatyss/linsky/internal/sync"
	"github.com/tomatyss/linsky/internal/ui"
	"github.com/tomatyss/linsky/internal/ui/composeform"
	"github.com/tomatyss/linsky/internal/ui/helpview"
	"github.com/tomatyss/linsky/internal/ui/movefolder"
	"github.com/tomatyss/linsky/internal/ui/msglist"
	"github.com/tomatyss/linsky/internal/ui/reader"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewReader
	ViewCompose
	ViewMove
	ViewHelp
)

// eventMsg wraps a facade event for the Bubble Tea runtime.
type eventMsg struct {
	event appsync.Event
}

// foldersLoadedMsg carries an account's folder list from the cache.
type foldersLoadedMsg struct {
	accountID string
	folders   []model.Folder
}

// mutationFailedMsg reports a facade write that failed before it ever
// reached the pending queue, usually a local store error.
type mutationFailedMsg struct {
	err error
}

// openedMessageMsg carries a message picked from the list together
// with its body, if already cached.
type openedMessageMsg struct {
	message model.Message
	body    *model.Body
	cached  bool
}

// Model is the root Bubble Tea model that manages view routing,
// layout, and access to the mailbox facade.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	mailbox      *mailbox.Mailbox
	keys         *keys.KeyMap
	accounts     []model.AccountConfig
	accountIdx   int
	folders      []model.Folder
	folderIdx    int
	msgList      msglist.Model
	reader       reader.Model
	composeView  composeform.Model
	moveView     movefolder.Model
	helpView     helpview.Model
	ready        bool
	statusNote   string
}

// New creates a new root application model over the mailbox facade.
// Account enumeration comes from the facade, like every other read.
func New(mb *mailbox.Mailbox) Model {
	k := keys.DefaultKeyMap()
	accounts := mb.ListAccounts()

	ml := msglist.New(mb, k, 80, 24)
	if len(accounts) > 0 {
		ml.SetFolder(accounts[0].ID, "INBOX")
	}

	return Model{
		currentView: ViewList,
		mailbox:     mb,
		keys:        k,
		accounts:    accounts,
		msgList:     ml,
		reader:      reader.New(k, 80, 24),
		composeView: composeform.New(80, 24),
		moveView:    movefolder.New(80, 24),
		helpView:    helpview.New(k, 80, 24),
	}
}

// Init loads the initial message list and subscribes to facade events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.msgList.Init(),
		m.loadFolders(),
		m.waitForEvent(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.msgList.SetSize(contentWidth, contentHeight)
		m.reader.SetSize(contentWidth, contentHeight)
		m.composeView.SetSize(contentWidth, contentHeight)
		m.moveView.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case eventMsg:
		return m.handleEvent(msg.event)

	case foldersLoadedMsg:
		if len(m.accounts) > 0 && msg.accountID == m.accounts[m.accountIdx].ID {
			m.folders = msg.folders
			m.folderIdx = m.currentFolderIndex()
		}
		return m, nil

	case msglist.SelectedMessageMsg:
		m.previousView = m.currentView
		m.currentView = ViewReader
		return m, m.openMessage(msg.Message)

	case openedMessageMsg:
		m.reader.SetMessage(msg.message, msg.body)
		var markCmd tea.Cmd
		if !msg.message.Read {
			markCmd = m.setFlag(msg.message, model.FlagRead, true)
		}
		return m, markCmd

	case reader.BackMsg:
		m.currentView = ViewList
		return m, m.msgList.LoadMessages()

	case composeform.SubmitMsg:
		m.currentView = ViewList
		m.statusNote = "message queued for sending"
		return m, m.sendMessage(msg.Message)

	case composeform.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case movefolder.MoveMsg:
		m.currentView = ViewList
		return m, tea.Sequence(
			m.moveMessage(msg.Message, msg.Target),
			m.msgList.LoadMessages(),
		)

	case movefolder.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case mutationFailedMsg:
		m.statusNote = fmt.Sprintf("action failed: %v", msg.err)
		return m, nil

	case tea.KeyMsg:
		if mdl, cmd, handled := m.handleGlobalKeys(msg); handled {
			return mdl, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleGlobalKeys processes keys that apply regardless of the active
// view, except while a form has input focus.
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit, true
	}

	// Forms own the keyboard while visible.
	if m.currentView == ViewCompose || m.currentView == ViewMove {
		return m, nil, false
	}

	switch msg.String() {
	case "q":
		if m.currentView == ViewList {
			return m, tea.Quit, true
		}

	case "?":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case "r":
		m.mailbox.RefreshAll()
		return m, m.msgList.LoadMessages(), true

	case "tab":
		if m.currentView == ViewList && len(m.accounts) > 1 {
			m.accountIdx = (m.accountIdx + 1) % len(m.accounts)
			m.folderIdx = 0
			cmd := m.msgList.SetFolder(m.accounts[m.accountIdx].ID, "INBOX")
			return m, tea.Batch(cmd, m.loadFolders()), true
		}

	case "f":
		if m.currentView == ViewList && len(m.folders) > 1 {
			m.folderIdx = (m.folderIdx + 1) % len(m.folders)
			folder := m.folders[m.folderIdx].Name
			cmd := m.msgList.SetFolder(m.accounts[m.accountIdx].ID, folder)
			return m, cmd, true
		}

	case "c":
		if m.currentView == ViewList && len(m.accounts) > 0 {
			account := m.accounts[m.accountIdx]
			m.previousView = m.currentView
			m.currentView = ViewCompose
			return m, m.composeView.StartCompose(account.ID, account.Email), true
		}

	case "a":
		if m.currentView == ViewReader {
			original, ok := m.reader.CurrentMessage()
			if !ok {
				return m, nil, true
			}
			account := m.accounts[m.accountIdx]
			m.previousView = m.currentView
			m.currentView = ViewCompose
			return m, m.composeView.StartReply(account.ID, account.Email, original), true
		}

	case "u":
		if message, ok := m.actionTarget(); ok {
			return m, tea.Sequence(
				m.setFlag(message, model.FlagRead, !message.Read),
				m.msgList.LoadMessages(),
			), true
		}

	case "s":
		if message, ok := m.actionTarget(); ok {
			return m, tea.Sequence(
				m.setFlag(message, model.FlagFlagged, !message.Flagged),
				m.msgList.LoadMessages(),
			), true
		}

	case "d":
		if message, ok := m.actionTarget(); ok {
			m.currentView = ViewList
			return m, tea.Sequence(
				m.deleteMessage(message),
				m.msgList.LoadMessages(),
			), true
		}

	case "m":
		if message, ok := m.actionTarget(); ok && len(m.folders) > 1 {
			if m.accounts[m.accountIdx].Protocol == model.ProtocolPOP3 {
				m.statusNote = "POP3 accounts cannot move messages"
				return m, nil, true
			}
			m.previousView = m.currentView
			m.currentView = ViewMove
			return m, m.moveView.Start(message, m.folders), true
		}
	}

	return m, nil, false
}

// actionTarget returns the message the current view is acting on.
func (m Model) actionTarget() (model.Message, bool) {
	switch m.currentView {
	case ViewList:
		return m.msgList.SelectedMessage()
	case ViewReader:
		return m.reader.CurrentMessage()
	}
	return model.Message{}, false
}

// handleEvent reacts to a facade notification and re-subscribes.
func (m Model) handleEvent(ev appsync.Event) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.waitForEvent()}

	currentAccount, _ := m.msgList.Folder()
	switch ev.Kind {
	case appsync.EventSyncCompleted:
		m.statusNote = ""
		if ev.AccountID == currentAccount {
			cmds = append(cmds, m.msgList.LoadMessages(), m.loadFolders())
		}

	case appsync.EventSyncFailed:
		if ev.Err != nil {
			m.statusNote = fmt.Sprintf("%s: sync failed", ev.AccountID)
		}

	case appsync.EventActionAbandoned:
		m.statusNote = fmt.Sprintf("a change to a message in %s could not be applied", ev.Folder)
		if ev.AccountID == currentAccount {
			cmds = append(cmds, m.msgList.LoadMessages())
		}

	case appsync.EventBodyFetched:
		cmds = append(cmds, m.loadFetchedBody(ev))

	case appsync.EventOutgoingSent:
		m.statusNote = "message sent"

	case appsync.EventOutgoingFailed:
		m.statusNote = "sending failed, will retry"
	}

	return m, tea.Batch(cmds...)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.msgList, cmd = m.msgList.Update(msg)
	case ViewReader:
		m.reader, cmd = m.reader.Update(msg)
	case ViewCompose:
		m.composeView, cmd = m.composeView.Update(msg)
	case ViewMove:
		m.moveView, cmd = m.moveView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("Linsky", m.syncStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.msgList.View()
	case ViewReader:
		return m.reader.View()
	case ViewCompose:
		return m.composeView.View()
	case ViewMove:
		return m.moveView.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the combined account
// state for the header.
func (m Model) syncStatus() string {
	statuses := m.mailbox.Statuses()
	if len(statuses) == 0 {
		return "no accounts"
	}

	syncing := 0
	offline := 0
	degraded := 0
	for _, s := range statuses {
		switch s.State {
		case model.StateSyncing:
			syncing++
		case model.StateOffline:
			offline++
		case model.StateDegraded:
			degraded++
		}
	}

	switch {
	case syncing > 0:
		return fmt.Sprintf("syncing (%d)", syncing)
	case offline > 0:
		return fmt.Sprintf("offline (%d)", offline)
	case degraded > 0:
		return fmt.Sprintf("degraded (%d)", degraded)
	default:
		return "synced"
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.statusNote != "" && m.currentView == ViewList {
		return m.statusNote
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewReader:
		return "esc back | a reply | u read | s star | d delete | m move | j/k scroll"
	case ViewCompose:
		return "enter next field | esc cancel"
	case ViewMove:
		return "enter move | esc cancel"
	default:
		return "q quit | ? help | r refresh | tab account | f folder | c compose"
	}
}

// loadFolders returns a command that reads the current account's
// folders from the cache.
func (m Model) loadFolders() tea.Cmd {
	if len(m.accounts) == 0 {
		return nil
	}
	mb := m.mailbox
	accountID := m.accounts[m.accountIdx].ID
	return func() tea.Msg {
		folders, err := mb.ListFolders(context.Background(), accountID)
		if err != nil {
			return foldersLoadedMsg{accountID: accountID}
		}
		return foldersLoadedMsg{accountID: accountID, folders: folders}
	}
}

// currentFolderIndex locates the displayed folder in the loaded
// folder list.
func (m Model) currentFolderIndex() int {
	_, folder := m.msgList.Folder()
	for i, f := range m.folders {
		if f.Name == folder {
			return i
		}
	}
	return 0
}

// openMessage returns a command that loads a message body from the
// cache, starting a background fetch when it is missing.
func (m Model) openMessage(message model.Message) tea.Cmd {
	mb := m.mailbox
	return func() tea.Msg {
		body, cached, err := mb.GetBody(context.Background(), messageKey(message))
		if err != nil {
			return openedMessageMsg{message: message}
		}
		return openedMessageMsg{message: message, body: body, cached: cached}
	}
}

// loadFetchedBody reloads a freshly cached body for the reader.
func (m Model) loadFetchedBody(ev appsync.Event) tea.Cmd {
	current, ok := m.reader.CurrentMessage()
	if !ok || current.RemoteID != ev.RemoteID || current.Folder != ev.Folder {
		return nil
	}
	mb := m.mailbox
	return func() tea.Msg {
		body, _, err := mb.GetBody(context.Background(), messageKey(current))
		if err != nil {
			return nil
		}
		return reader.BodyLoadedMsg{RemoteID: current.RemoteID, Body: body}
	}
}

func (m Model) setFlag(message model.Message, flag model.Flag, value bool) tea.Cmd {
	mb := m.mailbox
	return func() tea.Msg {
		if err := mb.SetFlag(context.Background(), messageKey(message), flag, value); err != nil {
			return mutationFailedMsg{err: err}
		}
		return nil
	}
}

func (m Model) deleteMessage(message model.Message) tea.Cmd {
	mb := m.mailbox
	return func() tea.Msg {
		if err := mb.Delete(context.Background(), messageKey(message)); err != nil {
			return mutationFailedMsg{err: err}
		}
		return nil
	}
}

func (m Model) moveMessage(message model.Message, target string) tea.Cmd {
	mb := m.mailbox
	return func() tea.Msg {
		if err := mb.Move(context.Background(), messageKey(message), target); err != nil {
			return mutationFailedMsg{err: err}
		}
		return nil
	}
}

func (m Model) sendMessage(out model.OutgoingMessage) tea.Cmd {
	mb := m.mailbox
	return func() tea.Msg {
		if err := mb.Send(context.Background(), out); err != nil {
			return mutationFailedMsg{err: err}
		}
		return nil
	}
}

// waitForEvent returns a command that waits for the next facade event.
func (m Model) waitForEvent() tea.Cmd {
	events := m.mailbox.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg{event: ev}
	}
}

// messageKey builds the cache key identifying a message.
func messageKey(message model.Message) store.MessageKey {
	return store.MessageKey{
		AccountID: message.AccountID,
		Folder:    message.Folder,
		Epoch:     message.Epoch,
		RemoteID:  message.RemoteID,
	}
}
