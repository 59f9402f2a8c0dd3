// Package mailbox is the read/write surface the frontend talks to.
// Reads are served from the local cache only; writes are applied to
// the cache optimistically and queued for replay against the server.
package mailbox

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/protocol/imap"
	"github.com/tomatyss/linsky/internal/protocol/pop3"
	"github.com/tomatyss/linsky/internal/send"
	"github.com/tomatyss/linsky/internal/store"
	syncpkg "github.com/tomatyss/linsky/internal/sync"
)

// ErrMoveUnsupported is returned for move requests on accounts whose
// protocol has no folder concept.
var ErrMoveUnsupported = errors.New("mailbox: account protocol does not support moving messages")

// Mailbox ties the store, the sync coordinator, and the sender into
// one facade. All methods are safe for concurrent use.
type Mailbox struct {
	store       store.Store
	coordinator *syncpkg.Coordinator
	sender      *send.Sender
	log         *slog.Logger
	events      chan syncpkg.Event

	mu        gosync.RWMutex
	accounts  []model.AccountConfig
	protocols map[string]model.Protocol
}

// New assembles a mailbox over an opened store. Accounts are added
// with AddAccount; nothing runs until Start.
func New(s store.Store, logger *slog.Logger, bodyKeep int) *Mailbox {
	if logger == nil {
		logger = slog.Default()
	}
	events := make(chan syncpkg.Event, 64)
	engine := syncpkg.NewEngine(s, logger, bodyKeep, events)
	return &Mailbox{
		store:       s,
		coordinator: syncpkg.NewCoordinator(s, engine, logger, events),
		sender:      send.NewSender(s, logger, events),
		log:         logger,
		events:      events,
		protocols:   make(map[string]model.Protocol),
	}
}

// AddAccount registers an account for syncing and sending. The dialer
// is picked from the account's protocol.
func (m *Mailbox) AddAccount(cfg model.AccountConfig) {
	m.mu.Lock()
	m.protocols[cfg.ID] = cfg.Protocol
	replaced := false
	for i := range m.accounts {
		if m.accounts[i].ID == cfg.ID {
			m.accounts[i] = cfg
			replaced = true
			break
		}
	}
	if !replaced {
		m.accounts = append(m.accounts, cfg)
	}
	m.mu.Unlock()

	switch cfg.Protocol {
	case model.ProtocolPOP3:
		m.coordinator.AddAccount(cfg, pop3.Dialer{})
	default:
		m.coordinator.AddAccount(cfg, imap.Dialer{})
	}
	m.sender.AddAccount(cfg)
}

// ListAccounts returns the registered accounts in registration order.
func (m *Mailbox) ListAccounts() []model.AccountConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.AccountConfig, len(m.accounts))
	copy(out, m.accounts)
	return out
}

func (m *Mailbox) protocolOf(accountID string) model.Protocol {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.protocols[accountID]
}

// Start launches the background sync loops and the outgoing sender.
func (m *Mailbox) Start(ctx context.Context) {
	m.coordinator.Start(ctx)
	go m.sender.Run(ctx)
}

// Close shuts the background workers down.
func (m *Mailbox) Close() error {
	return m.coordinator.Close()
}

// Events is the notification stream for interactive frontends.
func (m *Mailbox) Events() <-chan syncpkg.Event {
	return m.events
}

// Statuses reports the current sync state of every account.
func (m *Mailbox) Statuses() []model.AccountStatus {
	return m.coordinator.Statuses()
}

// Refresh requests an immediate sync of one account.
func (m *Mailbox) Refresh(accountID string) {
	m.coordinator.Refresh(accountID)
}

// RefreshAll requests an immediate sync of every account.
func (m *Mailbox) RefreshAll() {
	m.coordinator.RefreshAll()
}

// RemoveAccount stops syncing the account and deletes its cached
// state.
func (m *Mailbox) RemoveAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	delete(m.protocols, accountID)
	for i := range m.accounts {
		if m.accounts[i].ID == accountID {
			m.accounts = append(m.accounts[:i], m.accounts[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	return m.coordinator.RemoveAccount(ctx, accountID)
}

// ListFolders returns the account's known folders from the cache.
func (m *Mailbox) ListFolders(ctx context.Context, accountID string) ([]model.Folder, error) {
	return m.store.ListFolders(ctx, accountID)
}

// ListMessages returns the cached message list for a folder, newest
// first.
func (m *Mailbox) ListMessages(ctx context.Context, accountID, folder string) ([]model.Message, error) {
	return m.store.ListMessages(ctx, accountID, folder)
}

// GetBody returns a cached body. If the body is not cached yet a
// background fetch is started and cached reports false; the fetch
// completion arrives as an EventBodyFetched event.
func (m *Mailbox) GetBody(ctx context.Context, key store.MessageKey) (body *model.Body, cached bool, err error) {
	body, err = m.store.GetBody(ctx, key)
	if err == nil {
		return body, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := m.coordinator.FetchBody(ctx, key.AccountID, key); err != nil {
			m.log.Warn("body fetch failed",
				"account", key.AccountID, "folder", key.Folder,
				"message", key.RemoteID, "error", err)
		}
	}()
	return nil, false, nil
}

// SetFlag applies a flag change to the cache immediately and, on
// protocols with server-side flags, queues it for replay. The
// optimistic value stays visible until a later sync observes the
// server state.
func (m *Mailbox) SetFlag(ctx context.Context, key store.MessageKey, flag model.Flag, value bool) error {
	if err := m.store.SetMessageFlag(ctx, key, flag, value); err != nil {
		return err
	}
	if m.protocolOf(key.AccountID) == model.ProtocolPOP3 {
		// POP3 has no flag commands; the change is local only.
		return nil
	}

	_, err := m.store.EnqueueAction(ctx, model.PendingAction{
		AccountID: key.AccountID,
		Folder:    key.Folder,
		Epoch:     key.Epoch,
		RemoteID:  key.RemoteID,
		Kind:      model.ActionSetFlag,
		Flag:      flag,
		Value:     value,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	m.coordinator.Refresh(key.AccountID)
	return nil
}

// Delete removes the message from the cache immediately and queues
// the server-side deletion.
func (m *Mailbox) Delete(ctx context.Context, key store.MessageKey) error {
	if err := m.store.RemoveMessage(ctx, key); err != nil {
		return err
	}
	_, err := m.store.EnqueueAction(ctx, model.PendingAction{
		AccountID: key.AccountID,
		Folder:    key.Folder,
		Epoch:     key.Epoch,
		RemoteID:  key.RemoteID,
		Kind:      model.ActionDelete,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	m.coordinator.Refresh(key.AccountID)
	return nil
}

// Move removes the message from its cached source folder and queues
// the server-side move. The target folder picks the message up on its
// next sync.
func (m *Mailbox) Move(ctx context.Context, key store.MessageKey, target string) error {
	if m.protocolOf(key.AccountID) == model.ProtocolPOP3 {
		return ErrMoveUnsupported
	}
	if err := m.store.RemoveMessage(ctx, key); err != nil {
		return err
	}
	_, err := m.store.EnqueueAction(ctx, model.PendingAction{
		AccountID:    key.AccountID,
		Folder:       key.Folder,
		Epoch:        key.Epoch,
		RemoteID:     key.RemoteID,
		Kind:         model.ActionMove,
		TargetFolder: target,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return err
	}
	m.coordinator.Refresh(key.AccountID)
	return nil
}

// Send queues an outgoing message and triggers an immediate delivery
// attempt. The message survives restarts until the submission server
// accepts it.
func (m *Mailbox) Send(ctx context.Context, out model.OutgoingMessage) error {
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now()
	}
	if err := m.store.EnqueueOutgoing(ctx, out); err != nil {
		return err
	}
	m.sender.Trigger()
	return nil
}

// RetryOutgoing forces a sweep of the outgoing queue, including
// messages past their automatic retry budget.
func (m *Mailbox) RetryOutgoing() {
	m.sender.Trigger()
}

// Outgoing lists the queued outgoing messages for an account.
func (m *Mailbox) Outgoing(ctx context.Context, accountID string) ([]model.OutgoingMessage, error) {
	return m.store.ListOutgoing(ctx, accountID)
}
