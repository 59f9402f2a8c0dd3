package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/protocol"
	"github.com/tomatyss/linsky/internal/store"
)

// cycleTimeout is the maximum time allowed for a single account sync
// cycle, including pending-action replay.
const cycleTimeout = 2 * time.Minute

// bodyFetchTimeout bounds an on-demand body fetch, dial included.
const bodyFetchTimeout = 30 * time.Second

const (
	initialBackoff = 5 * time.Second
	maxBackoff     = 5 * time.Minute
)

// accountRunner holds the per-account loop state. Each account gets
// its own goroutine and its own connection; accounts never share a
// session.
type accountRunner struct {
	cfg       model.AccountConfig
	dialer    protocol.Dialer
	triggerCh chan struct{}
	cancel    context.CancelFunc
	backoff   time.Duration
}

// Coordinator owns one sync loop per configured account. It dials
// sessions, runs engine cycles on a fixed interval plus on-demand
// triggers, applies exponential backoff after failures, and tracks
// per-account status for the frontend.
type Coordinator struct {
	store    store.Store
	engine   *Engine
	log      *slog.Logger
	events   chan<- Event
	runners  map[string]*accountRunner
	statuses map[string]*model.AccountStatus
	grp      *errgroup.Group
	grpCtx   context.Context
	mu       gosync.Mutex
	running  bool

	// Backoff bounds for failed cycles; fixed except in tests.
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewCoordinator creates a coordinator; events may be nil.
func NewCoordinator(s store.Store, e *Engine, logger *slog.Logger, events chan<- Event) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:          s,
		engine:         e,
		log:            logger,
		events:         events,
		runners:        make(map[string]*accountRunner),
		statuses:       make(map[string]*model.AccountStatus),
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}
}

// AddAccount registers an account with the dialer for its protocol.
// If the coordinator is already running the account's loop starts
// immediately.
func (c *Coordinator) AddAccount(cfg model.AccountConfig, dialer protocol.Dialer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := &accountRunner{
		cfg:       cfg,
		dialer:    dialer,
		triggerCh: make(chan struct{}, 1),
		backoff:   c.initialBackoff,
	}
	c.runners[cfg.ID] = r
	c.statuses[cfg.ID] = &model.AccountStatus{
		AccountID: cfg.ID,
		State:     model.StateOffline,
	}

	if c.running {
		c.startRunner(r)
	}
}

// Start launches the loop goroutines for all registered accounts.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}
	c.running = true
	c.grp, c.grpCtx = errgroup.WithContext(ctx)

	for _, r := range c.runners {
		c.startRunner(r)
	}
}

// startRunner must be called with c.mu held.
func (c *Coordinator) startRunner(r *accountRunner) {
	ctx, cancel := context.WithCancel(c.grpCtx)
	r.cancel = cancel
	c.grp.Go(func() error {
		return c.runAccount(ctx, r)
	})
}

// Close stops all account loops and waits for in-flight cycles to
// wind down, bounded by a short grace period.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	for _, r := range c.runners {
		if r.cancel != nil {
			r.cancel()
		}
	}
	grp := c.grp
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- grp.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return errors.New("sync: shutdown grace period elapsed")
	}
}

// Refresh requests an immediate sync cycle for the account. Requests
// arriving while a cycle is in flight coalesce into at most one
// queued follow-up.
func (c *Coordinator) Refresh(accountID string) {
	c.mu.Lock()
	r, ok := c.runners[accountID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

// RefreshAll triggers a cycle for every account.
func (c *Coordinator) RefreshAll() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.runners))
	for id := range c.runners {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Refresh(id)
	}
}

// RemoveAccount stops the account's loop and deletes everything the
// account owns from the store. Other accounts are untouched.
func (c *Coordinator) RemoveAccount(ctx context.Context, accountID string) error {
	c.mu.Lock()
	r, ok := c.runners[accountID]
	if ok {
		if r.cancel != nil {
			r.cancel()
		}
		delete(c.runners, accountID)
		delete(c.statuses, accountID)
	}
	c.mu.Unlock()

	return c.store.DeleteAccount(ctx, accountID)
}

// Statuses reports the current state of every account.
func (c *Coordinator) Statuses() []model.AccountStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.AccountStatus, 0, len(c.statuses))
	for _, s := range c.statuses {
		out = append(out, *s)
	}
	return out
}

// FetchBody dials a short-lived session, fetches and caches the body
// of one message, and tears the session down. Body fetches do not go
// through the account loop so a long sync cycle cannot delay them.
func (c *Coordinator) FetchBody(ctx context.Context, accountID string, key store.MessageKey) (*model.Body, error) {
	c.mu.Lock()
	r, ok := c.runners[accountID]
	c.mu.Unlock()
	if !ok {
		return nil, errors.New("sync: unknown account " + accountID)
	}

	ctx, cancel := context.WithTimeout(ctx, bodyFetchTimeout)
	defer cancel()

	sess, err := r.dialer.Dial(ctx, r.cfg)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	body, err := c.engine.FetchBody(ctx, sess, key)
	if err != nil {
		return nil, err
	}
	c.emit(Event{Kind: EventBodyFetched, AccountID: accountID, Folder: key.Folder, RemoteID: key.RemoteID})
	return body, nil
}

// runAccount is the per-account loop: an initial cycle, then cycles on
// the poll interval and on explicit triggers. After a failed cycle a
// retry fires on an exponential backoff timer; the backoff resets on
// the first success.
func (c *Coordinator) runAccount(ctx context.Context, r *accountRunner) error {
	interval := time.Duration(r.cfg.SyncIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var retryCh <-chan time.Time
	cycle := func() error {
		err := c.syncOnce(ctx, r)
		switch {
		case err == nil:
			r.backoff = c.initialBackoff
			retryCh = nil
		case errors.Is(err, context.Canceled):
			retryCh = nil
		case store.IsStoreError(err):
			// The local cache is broken; retrying cannot help.
			return err
		default:
			retryCh = time.After(r.backoff)
			r.backoff = min(r.backoff*2, c.maxBackoff)
		}
		return nil
	}

	if err := cycle(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := cycle(); err != nil {
				return err
			}
		case <-r.triggerCh:
			if err := cycle(); err != nil {
				return err
			}
		case <-retryCh:
			if err := cycle(); err != nil {
				return err
			}
		}
	}
}

// syncOnce dials a session and runs one full engine cycle over all of
// the account's folders.
func (c *Coordinator) syncOnce(ctx context.Context, r *accountRunner) error {
	ctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	c.setState(r.cfg.ID, model.StateSyncing, nil)
	c.emit(Event{Kind: EventSyncStarted, AccountID: r.cfg.ID})

	sess, err := r.dialer.Dial(ctx, r.cfg)
	if err != nil {
		c.log.Warn("dial failed", "account", r.cfg.ID, "error", err)
		c.setState(r.cfg.ID, model.StateOffline, err)
		c.emit(Event{Kind: EventSyncFailed, AccountID: r.cfg.ID, Err: err})
		return err
	}
	defer sess.Close()

	if err := c.engine.SyncAccount(ctx, sess, r.cfg.ID); err != nil {
		if store.IsStoreError(err) {
			c.log.Error("local store failure, stopping account loop", "account", r.cfg.ID, "error", err)
			c.setState(r.cfg.ID, model.StateDegraded, err)
			c.emit(Event{Kind: EventSyncFailed, AccountID: r.cfg.ID, Err: err})
			return err
		}
		c.log.Warn("sync cycle failed", "account", r.cfg.ID, "error", err)
		c.setState(r.cfg.ID, model.StateDegraded, err)
		c.emit(Event{Kind: EventSyncFailed, AccountID: r.cfg.ID, Err: err})
		return err
	}

	c.setState(r.cfg.ID, model.StateSynced, nil)
	c.emit(Event{Kind: EventSyncCompleted, AccountID: r.cfg.ID})
	return nil
}

func (c *Coordinator) setState(accountID string, state model.AccountState, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.statuses[accountID]
	if !ok {
		return
	}
	status.State = state
	status.Err = err
	if state == model.StateSynced {
		status.LastSync = time.Now()
	}
}

func (c *Coordinator) emit(ev Event) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}
