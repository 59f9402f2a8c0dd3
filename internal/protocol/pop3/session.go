// Package pop3 implements the protocol.Session contract over POP3 as a
// degraded, single-folder source: message identifiers are UIDL tokens,
// flags never round-trip to the server, and delete maps to DELE.
package pop3

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/tomatyss/linsky/internal/mimeutil"
	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/protocol"
)

// Inbox is the synthetic folder name every POP3 message lives in.
const Inbox = "INBOX"

// epoch is the constant validity token for POP3 folders. The protocol
// has no equivalent of UIDVALIDITY; UIDL tokens are assumed stable.
const epoch = 1

const dialTimeout = 30 * time.Second

// Dialer connects and authenticates POP3 sessions.
type Dialer struct{}

// Dial connects to the account's POP3 server and authenticates with
// USER/PASS. Failures are reported as *protocol.ConnectionError.
func (Dialer) Dial(ctx context.Context, account model.AccountConfig) (protocol.Session, error) {
	cfg := account.POP3
	if cfg == nil {
		return nil, &protocol.ConnectionError{
			AccountID: account.ID,
			Err:       errors.New("pop3 is not configured for this account"),
		}
	}

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, &protocol.ConnectionError{AccountID: account.ID, Err: err}
	}

	if cfg.TLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: cfg.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &protocol.ConnectionError{AccountID: account.ID, Err: err}
		}
		conn = tlsConn
	}

	s := &session{
		conn:      conn,
		text:      textproto.NewConn(conn),
		accountID: account.ID,
	}

	greeting, err := s.text.ReadLine()
	if err != nil || !strings.HasPrefix(greeting, "+OK") {
		conn.Close()
		return nil, &protocol.ConnectionError{
			AccountID: account.ID,
			Err:       errors.New("unexpected POP3 greeting: " + greeting),
		}
	}

	if _, err := s.cmd("USER %s", cfg.Username); err != nil {
		conn.Close()
		return nil, &protocol.ConnectionError{AccountID: account.ID, Err: err}
	}
	if _, err := s.cmd("PASS %s", cfg.Password); err != nil {
		conn.Close()
		return nil, &protocol.ConnectionError{AccountID: account.ID, Err: err}
	}

	return s, nil
}

// session is one POP3 connection. Commands are serial; the maildrop is
// locked by the server for the session's lifetime.
type session struct {
	conn      net.Conn
	text      *textproto.Conn
	accountID string

	// numByUID maps UIDL tokens to message numbers. Message numbers are
	// only valid within this session, so the map is rebuilt per session.
	numByUID map[string]int
}

// errResponse is a server -ERR reply to an otherwise delivered command.
type errResponse struct{ line string }

func (e *errResponse) Error() string { return e.line }

// cmd sends one command and reads the single-line status response.
func (s *session) cmd(format string, args ...interface{}) (string, error) {
	if err := s.text.PrintfLine(format, args...); err != nil {
		return "", &protocol.TransportError{Op: "pop3 send", Err: err}
	}
	line, err := s.text.ReadLine()
	if err != nil {
		return "", &protocol.TransportError{Op: "pop3 read", Err: err}
	}
	if !strings.HasPrefix(line, "+OK") {
		return "", &errResponse{line: line}
	}
	return line, nil
}

// readDotBody reads a dot-terminated multi-line response body.
func (s *session) readDotBody() ([]byte, error) {
	data, err := io.ReadAll(s.text.DotReader())
	if err != nil {
		return nil, &protocol.TransportError{Op: "pop3 read body", Err: err}
	}
	return data, nil
}

func (s *session) ListFolders(ctx context.Context) ([]protocol.FolderInfo, error) {
	return []protocol.FolderInfo{{Name: Inbox}}, nil
}

// uidl refreshes the UIDL token to message number mapping.
func (s *session) uidl() (map[string]int, error) {
	if _, err := s.cmd("UIDL"); err != nil {
		var rejected *errResponse
		if errors.As(err, &rejected) {
			return nil, &protocol.ProtocolError{Op: "uidl", Detail: rejected.line}
		}
		return nil, err
	}

	body, err := s.readDotBody()
	if err != nil {
		return nil, err
	}

	uids := make(map[string]int)
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, &protocol.ProtocolError{Op: "uidl", Detail: "malformed listing: " + line}
		}
		num, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, &protocol.ProtocolError{Op: "uidl", Detail: "malformed listing: " + line}
		}
		uids[parts[1]] = num
	}

	s.numByUID = uids
	return uids, nil
}

// sizes returns the octet size of each message number from LIST.
func (s *session) sizes() (map[int]int64, error) {
	if _, err := s.cmd("LIST"); err != nil {
		return nil, err
	}
	body, err := s.readDotBody()
	if err != nil {
		return nil, err
	}

	sizes := make(map[int]int64)
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		num, err1 := strconv.Atoi(parts[0])
		size, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 == nil && err2 == nil {
			sizes[num] = size
		}
	}
	return sizes, nil
}

func (s *session) FetchChanges(ctx context.Context, folder string, cursor model.SyncCursor, known []string) (*model.FolderDelta, error) {
	uids, err := s.uidl()
	if err != nil {
		return nil, err
	}
	msgSizes, err := s.sizes()
	if err != nil {
		return nil, err
	}

	knownSet := make(map[string]bool, len(known))
	for _, id := range known {
		knownSet[id] = true
	}

	delta := &model.FolderDelta{Epoch: epoch}

	for uid, num := range uids {
		if knownSet[uid] {
			continue
		}

		// TOP n 0 retrieves headers only; envelope metadata is all the
		// listing needs, bodies stay lazy.
		if _, err := s.cmd("TOP %d 0", num); err != nil {
			var rejected *errResponse
			if errors.As(err, &rejected) {
				continue
			}
			return nil, err
		}
		raw, err := s.readDotBody()
		if err != nil {
			return nil, err
		}

		env, _ := mimeutil.ParseEnvelope(raw)
		delta.Added = append(delta.Added, model.Message{
			AccountID: s.accountID,
			Folder:    Inbox,
			Epoch:     epoch,
			RemoteID:  uid,
			MessageID: env.MessageID,
			Subject:   env.Subject,
			FromAddr:  env.FromAddr,
			FromName:  env.FromName,
			To:        env.To,
			Date:      env.Date,
			Size:      msgSizes[num],
		})
	}

	for _, id := range known {
		if _, ok := uids[id]; !ok {
			delta.Removed = append(delta.Removed, id)
		}
	}

	return delta, nil
}

func (s *session) FetchBody(ctx context.Context, folder string, remoteID string) ([]byte, error) {
	num, err := s.messageNumber(remoteID)
	if err != nil {
		return nil, err
	}

	if _, err := s.cmd("RETR %d", num); err != nil {
		var rejected *errResponse
		if errors.As(err, &rejected) {
			return nil, &protocol.ActionRejectedError{RemoteID: remoteID, Reason: rejected.line}
		}
		return nil, err
	}
	return s.readDotBody()
}

// ApplyFlag acknowledges the flag without contacting the server: POP3
// has no flag storage, so flag state is local-only by contract.
func (s *session) ApplyFlag(ctx context.Context, folder string, remoteID string, flag model.Flag, value bool) error {
	return nil
}

// Expunge issues DELE. The server commits deletions when the session
// ends with QUIT.
func (s *session) Expunge(ctx context.Context, folder string, remoteID string) error {
	num, err := s.messageNumber(remoteID)
	if err != nil {
		return err
	}

	if _, err := s.cmd("DELE %d", num); err != nil {
		var rejected *errResponse
		if errors.As(err, &rejected) {
			return &protocol.ActionRejectedError{RemoteID: remoteID, Reason: rejected.line}
		}
		return err
	}
	delete(s.numByUID, remoteID)
	return nil
}

// Move is not expressible in POP3.
func (s *session) Move(ctx context.Context, folder string, remoteID string, target string) error {
	return &protocol.ActionRejectedError{RemoteID: remoteID, Reason: "pop3 does not support move"}
}

func (s *session) messageNumber(remoteID string) (int, error) {
	if s.numByUID == nil {
		if _, err := s.uidl(); err != nil {
			return 0, err
		}
	}
	num, ok := s.numByUID[remoteID]
	if !ok {
		return 0, &protocol.ActionRejectedError{RemoteID: remoteID, Reason: "message not in maildrop"}
	}
	return num, nil
}

func (s *session) Close() error {
	if s.conn == nil {
		return nil
	}
	_, _ = s.cmd("QUIT")
	err := s.conn.Close()
	s.conn = nil
	return err
}
