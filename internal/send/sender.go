package send

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/store"
	syncpkg "github.com/tomatyss/linsky/internal/sync"
)

// maxSendAttempts is the automatic retry budget for one queued
// message. Past it the message stays queued with its last error
// recorded and is only retried on an explicit trigger.
const maxSendAttempts = 5

// drainInterval is how often the sender sweeps the outgoing queue
// between explicit triggers.
const drainInterval = time.Minute

// Failed messages back off exponentially between automatic attempts,
// doubling from the base per recorded attempt up to the cap.
const (
	sendBackoffBase = time.Minute
	sendBackoffMax  = 30 * time.Minute
)

// sendTimeout bounds a single submission attempt, dial included.
const sendTimeout = 30 * time.Second

// Sender drains the persistent outgoing queue over SMTP. Messages
// survive restarts; a message leaves the queue only when the
// submission server accepts it.
type Sender struct {
	store     store.Store
	log       *slog.Logger
	events    chan<- syncpkg.Event
	accounts  map[string]model.AccountConfig
	triggerCh chan struct{}
	mu        gosync.Mutex
}

// NewSender creates a sender; events may be nil.
func NewSender(s store.Store, logger *slog.Logger, events chan<- syncpkg.Event) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		store:     s,
		log:       logger,
		events:    events,
		accounts:  make(map[string]model.AccountConfig),
		triggerCh: make(chan struct{}, 1),
	}
}

// AddAccount registers an account's submission settings.
func (s *Sender) AddAccount(cfg model.AccountConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[cfg.ID] = cfg
}

// Trigger requests an immediate queue sweep. A triggered sweep also
// retries messages that exhausted their automatic budget.
func (s *Sender) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Run sweeps the queue on an interval and on triggers until the
// context is cancelled. It always returns nil; send failures are
// recorded per message, not surfaced as loop errors.
func (s *Sender) Run(ctx context.Context) error {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	s.drain(ctx, false)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.drain(ctx, false)
		case <-s.triggerCh:
			s.drain(ctx, true)
		}
	}
}

// drain attempts every queued message for every account. force
// includes messages past the automatic retry budget.
func (s *Sender) drain(ctx context.Context, force bool) {
	s.mu.Lock()
	accounts := make([]model.AccountConfig, 0, len(s.accounts))
	for _, cfg := range s.accounts {
		accounts = append(accounts, cfg)
	}
	s.mu.Unlock()

	for _, cfg := range accounts {
		if ctx.Err() != nil {
			return
		}
		queued, err := s.store.ListOutgoing(ctx, cfg.ID)
		if err != nil {
			s.log.Error("listing outgoing queue", "account", cfg.ID, "error", err)
			continue
		}
		for _, out := range queued {
			if ctx.Err() != nil {
				return
			}
			if !force && (out.Attempts >= maxSendAttempts || !retryDue(out, time.Now())) {
				continue
			}
			s.attempt(ctx, cfg, out)
		}
	}
}

// retryDelay is the wait before the next automatic attempt after the
// given number of failures.
func retryDelay(attempts int) time.Duration {
	d := sendBackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= sendBackoffMax {
			return sendBackoffMax
		}
	}
	return d
}

// retryDue reports whether a previously failed message has waited out
// its backoff window.
func retryDue(out model.OutgoingMessage, now time.Time) bool {
	if out.Attempts == 0 {
		return true
	}
	return now.Sub(out.LastAttemptAt) >= retryDelay(out.Attempts)
}

func (s *Sender) attempt(ctx context.Context, cfg model.AccountConfig, out model.OutgoingMessage) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := s.submit(ctx, cfg.SMTP, out); err != nil {
		attempts, recErr := s.store.RecordSendFailure(ctx, out.ID, err.Error())
		if recErr != nil {
			s.log.Error("recording send failure", "message", out.ID, "error", recErr)
		}
		s.log.Warn("send attempt failed",
			"account", cfg.ID, "message", out.ID,
			"attempts", attempts, "error", err)
		s.emit(syncpkg.Event{Kind: syncpkg.EventOutgoingFailed, AccountID: cfg.ID, RemoteID: out.ID, Err: err})
		return
	}

	if err := s.store.DeleteOutgoing(ctx, out.ID); err != nil {
		s.log.Error("dequeuing sent message", "message", out.ID, "error", err)
		return
	}
	s.log.Info("message sent", "account", cfg.ID, "message", out.ID, "to", out.To)
	s.emit(syncpkg.Event{Kind: syncpkg.EventOutgoingSent, AccountID: cfg.ID, RemoteID: out.ID})
}

// submit performs one SMTP submission. Implicit TLS and STARTTLS are
// both supported; authentication is SASL PLAIN.
func (s *Sender) submit(ctx context.Context, server model.ServerConfig, out model.OutgoingMessage) error {
	raw, _, err := BuildMessage(out, server.Host)
	if err != nil {
		return err
	}

	tlsConfig := &tls.Config{ServerName: server.Host}

	var client *smtp.Client
	if server.TLS {
		client, err = smtp.DialTLS(server.Addr(), tlsConfig)
	} else {
		client, err = smtp.DialStartTLS(server.Addr(), tlsConfig)
	}
	if err != nil {
		return fmt.Errorf("dialing %s: %w", server.Addr(), err)
	}
	defer client.Close()

	if server.Username != "" {
		auth := sasl.NewPlainClient("", server.Username, server.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := client.Mail(out.From, nil); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	for _, rcpt := range append(append([]string{}, out.To...), out.Cc...) {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("writing message data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message data: %w", err)
	}

	if err := client.Quit(); err != nil {
		// The server already accepted the message.
		s.log.Debug("SMTP QUIT failed", "error", err)
	}
	return nil
}

func (s *Sender) emit(ev syncpkg.Event) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}
