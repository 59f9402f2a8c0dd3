// Package imap implements the protocol.Session contract over IMAP4rev1
// using go-imap v2.
package imap

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/protocol"
)

// Dialer connects and authenticates IMAP sessions.
type Dialer struct{}

// Dial establishes a connection to the account's IMAP server and logs
// in. Connection and authentication failures are reported as
// *protocol.ConnectionError.
func (Dialer) Dial(ctx context.Context, account model.AccountConfig) (protocol.Session, error) {
	cfg := account.IMAP
	if cfg == nil {
		return nil, &protocol.ConnectionError{
			AccountID: account.ID,
			Err:       errors.New("imap is not configured for this account"),
		}
	}

	var client *imapclient.Client
	var err error

	if cfg.TLS {
		client, err = imapclient.DialTLS(cfg.Addr(), nil)
	} else {
		client, err = imapclient.DialStartTLS(cfg.Addr(), nil)
	}
	if err != nil {
		return nil, &protocol.ConnectionError{AccountID: account.ID, Err: err}
	}

	if err := client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &protocol.ConnectionError{
			AccountID: account.ID,
			Err:       fmt.Errorf("authentication failed for %s: %w", cfg.Username, err),
		}
	}

	return &session{client: client, accountID: account.ID}, nil
}

// session is one serialized IMAP connection. Not safe for concurrent
// use; the sync engine issues commands one at a time.
type session struct {
	client    *imapclient.Client
	accountID string

	// selected is the currently selected mailbox, or "" if none.
	selected string
}

func (s *session) ListFolders(ctx context.Context) ([]protocol.FolderInfo, error) {
	mailboxes, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, &protocol.TransportError{Op: "list", Err: err}
	}

	folders := make([]protocol.FolderInfo, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		folders = append(folders, protocol.FolderInfo{Name: mbox.Mailbox})
	}
	return folders, nil
}

// selectFolder selects the mailbox if it is not already selected and
// returns the server's select data (message count, UIDVALIDITY).
func (s *session) selectFolder(folder string) (*goimap.SelectData, error) {
	data, err := s.client.Select(folder, nil).Wait()
	if err != nil {
		s.selected = ""
		return nil, classify("select "+folder, err)
	}
	s.selected = folder
	return data, nil
}

func (s *session) FetchChanges(ctx context.Context, folder string, cursor model.SyncCursor, known []string) (*model.FolderDelta, error) {
	sel, err := s.selectFolder(folder)
	if err != nil {
		return nil, err
	}

	epoch := sel.UIDValidity
	if cursor.Epoch != 0 && epoch != cursor.Epoch {
		return nil, &protocol.FullResyncError{
			Folder:   folder,
			OldEpoch: cursor.Epoch,
			NewEpoch: epoch,
		}
	}

	delta := &model.FolderDelta{Epoch: epoch, LastUID: cursor.LastUID}

	if len(known) > 0 {
		if err := s.reconcileKnown(folder, known, delta); err != nil {
			return nil, err
		}
	}

	if sel.NumMessages > 0 {
		if err := s.fetchNew(folder, cursor.LastUID, delta); err != nil {
			return nil, err
		}
	}

	return delta, nil
}

// reconcileKnown fetches the current flags of every locally known UID.
// UIDs the server no longer reports go into delta.Removed; survivors
// are reported with their full current flag set so delta application
// stays idempotent.
func (s *session) reconcileKnown(folder string, known []string, delta *model.FolderDelta) error {
	uids := make([]goimap.UID, 0, len(known))
	for _, id := range known {
		n, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			// A non-numeric identifier cannot exist on this server.
			delta.Removed = append(delta.Removed, id)
			continue
		}
		uids = append(uids, goimap.UID(n))
	}
	if len(uids) == 0 {
		return nil
	}

	fetchCmd := s.client.Fetch(goimap.UIDSetNum(uids...), &goimap.FetchOptions{
		Flags: true,
		UID:   true,
	})
	defer fetchCmd.Close()

	seen := make(map[string]bool, len(uids))
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		id := strconv.FormatUint(uint64(buf.UID), 10)
		seen[id] = true
		delta.Flagged = append(delta.Flagged, flagChange(id, buf.Flags))
	}
	if err := fetchCmd.Close(); err != nil {
		return classify("fetch flags", err)
	}

	for _, id := range known {
		if !seen[id] {
			delta.Removed = append(delta.Removed, id)
		}
	}
	return nil
}

// fetchNew searches for UIDs above the cursor and fetches their
// envelopes.
func (s *session) fetchNew(folder string, lastUID uint32, delta *model.FolderDelta) error {
	criteria := &goimap.SearchCriteria{
		UID: []goimap.UIDSet{{goimap.UIDRange{Start: goimap.UID(lastUID + 1), Stop: 0}}},
	}
	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return classify("uid search", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	fetchCmd := s.client.Fetch(goimap.UIDSetNum(uids...), &goimap.FetchOptions{
		Envelope:   true,
		Flags:      true,
		UID:        true,
		RFC822Size: true,
	})
	defer fetchCmd.Close()

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		m := messageFromBuffer(s.accountID, folder, delta.Epoch, buf)
		delta.Added = append(delta.Added, m)
		if m.UID > delta.LastUID {
			delta.LastUID = m.UID
		}
	}
	if err := fetchCmd.Close(); err != nil {
		return classify("fetch envelopes", err)
	}
	return nil
}

func (s *session) FetchBody(ctx context.Context, folder string, remoteID string) ([]byte, error) {
	if _, err := s.selectFolder(folder); err != nil {
		return nil, err
	}

	uid, err := parseUID(remoteID)
	if err != nil {
		return nil, err
	}

	bodySection := &goimap.FetchItemBodySection{Peek: true}
	fetchCmd := s.client.Fetch(goimap.UIDSetNum(uid), &goimap.FetchOptions{
		UID:         true,
		BodySection: []*goimap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, &protocol.ActionRejectedError{RemoteID: remoteID, Reason: "message not found"}
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, classify("fetch body", err)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, classify("fetch body", err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, &protocol.ProtocolError{Op: "fetch body", Detail: "server returned no body section"}
	}
	return raw, nil
}

func (s *session) ApplyFlag(ctx context.Context, folder string, remoteID string, flag model.Flag, value bool) error {
	if _, err := s.selectFolder(folder); err != nil {
		return err
	}

	uid, err := parseUID(remoteID)
	if err != nil {
		return err
	}

	op := goimap.StoreFlagsAdd
	if !value {
		op = goimap.StoreFlagsDel
	}

	storeCmd := s.client.Store(goimap.UIDSetNum(uid), &goimap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  []goimap.Flag{imapFlag(flag)},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return classify("store flags", err)
	}
	return nil
}

// Expunge marks the message \Deleted and expunges that UID alone, so
// other messages carrying \Deleted are untouched. The command is
// destructive and is never retried here; a dropped connection
// mid-command is resolved by the next sync's delta.
func (s *session) Expunge(ctx context.Context, folder string, remoteID string) error {
	if err := s.ApplyFlag(ctx, folder, remoteID, model.FlagDeleted, true); err != nil {
		return err
	}
	uid, err := parseUID(remoteID)
	if err != nil {
		return err
	}
	if err := s.client.UIDExpunge(goimap.UIDSetNum(uid)).Close(); err != nil {
		return classify("expunge", err)
	}
	return nil
}

func (s *session) Move(ctx context.Context, folder string, remoteID string, target string) error {
	if _, err := s.selectFolder(folder); err != nil {
		return err
	}

	uid, err := parseUID(remoteID)
	if err != nil {
		return err
	}

	if _, err := s.client.Move(goimap.UIDSetNum(uid), target).Wait(); err != nil {
		return classify("move to "+target, err)
	}
	return nil
}

func (s *session) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Logout().Wait()
	s.client = nil
	return err
}

// classify maps an imapclient error to the protocol error taxonomy:
// a tagged NO response is a semantic rejection, anything else is a
// transport failure.
func classify(op string, err error) error {
	var imapErr *goimap.Error
	if errors.As(err, &imapErr) {
		if imapErr.Type == goimap.StatusResponseTypeNo {
			return &protocol.ActionRejectedError{Reason: imapErr.Text}
		}
		return &protocol.ProtocolError{Op: op, Detail: imapErr.Text}
	}
	return &protocol.TransportError{Op: op, Err: err}
}

func parseUID(remoteID string) (goimap.UID, error) {
	n, err := strconv.ParseUint(remoteID, 10, 32)
	if err != nil {
		return 0, &protocol.ProtocolError{Op: "parse uid", Detail: "invalid identifier " + remoteID}
	}
	return goimap.UID(n), nil
}

func imapFlag(flag model.Flag) goimap.Flag {
	switch flag {
	case model.FlagRead:
		return goimap.FlagSeen
	case model.FlagFlagged:
		return goimap.FlagFlagged
	case model.FlagAnswered:
		return goimap.FlagAnswered
	case model.FlagDeleted:
		return goimap.FlagDeleted
	}
	return goimap.Flag(flag)
}

func flagChange(id string, flags []goimap.Flag) model.FlagChange {
	fc := model.FlagChange{RemoteID: id}
	for _, f := range flags {
		switch f {
		case goimap.FlagSeen:
			fc.Read = true
		case goimap.FlagFlagged:
			fc.Flagged = true
		case goimap.FlagAnswered:
			fc.Answered = true
		case goimap.FlagDeleted:
			fc.Deleted = true
		}
	}
	return fc
}

// messageFromBuffer builds a cached message from a fetch response.
func messageFromBuffer(accountID, folder string, epoch uint32, buf *imapclient.FetchMessageBuffer) model.Message {
	m := model.Message{
		AccountID: accountID,
		Folder:    folder,
		Epoch:     epoch,
		UID:       uint32(buf.UID),
		RemoteID:  strconv.FormatUint(uint64(buf.UID), 10),
		Size:      buf.RFC822Size,
	}

	if buf.Envelope != nil {
		m.MessageID = buf.Envelope.MessageID
		m.Subject = buf.Envelope.Subject
		m.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			m.FromAddr = from.Addr()
			m.FromName = from.Name
		}
		for _, to := range buf.Envelope.To {
			m.To = append(m.To, to.Addr())
		}
	}

	fc := flagChange(m.RemoteID, buf.Flags)
	m.Read = fc.Read
	m.Flagged = fc.Flagged
	m.Answered = fc.Answered
	m.Deleted = fc.Deleted

	return m
}
