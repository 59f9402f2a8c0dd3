package pop3

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"

	"github.com/tomatyss/linsky/internal/protocol"

	"github.com/tomatyss/linsky/internal/model"
)

// popMsg is one message in the scripted maildrop.
type popMsg struct {
	uid     string
	content string
	deleted bool
}

// serveMaildrop speaks just enough POP3 for the session under test.
// It runs until QUIT or until the client side closes.
func serveMaildrop(t *testing.T, conn net.Conn, msgs []popMsg) {
	t.Helper()
	tp := textproto.NewConn(conn)

	writeListing := func(line func(num int, m popMsg) string) {
		w := tp.DotWriter()
		for i, m := range msgs {
			if m.deleted {
				continue
			}
			fmt.Fprintf(w, "%s\r\n", line(i+1, m))
		}
		w.Close()
	}

	for {
		cmd, err := tp.ReadLine()
		if err != nil {
			return
		}
		fields := strings.Fields(cmd)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "UIDL":
			tp.PrintfLine("+OK")
			writeListing(func(num int, m popMsg) string {
				return fmt.Sprintf("%d %s", num, m.uid)
			})

		case "LIST":
			tp.PrintfLine("+OK")
			writeListing(func(num int, m popMsg) string {
				return fmt.Sprintf("%d %d", num, len(m.content))
			})

		case "TOP", "RETR":
			num, _ := strconv.Atoi(fields[1])
			if num < 1 || num > len(msgs) || msgs[num-1].deleted {
				tp.PrintfLine("-ERR no such message")
				continue
			}
			tp.PrintfLine("+OK")
			w := tp.DotWriter()
			content := msgs[num-1].content
			if fields[0] == "TOP" {
				content, _, _ = strings.Cut(content, "\r\n\r\n")
				content += "\r\n"
			}
			fmt.Fprint(w, content)
			w.Close()

		case "DELE":
			num, _ := strconv.Atoi(fields[1])
			if num < 1 || num > len(msgs) || msgs[num-1].deleted {
				tp.PrintfLine("-ERR no such message")
				continue
			}
			msgs[num-1].deleted = true
			tp.PrintfLine("+OK")

		case "QUIT":
			tp.PrintfLine("+OK bye")
			return

		default:
			tp.PrintfLine("-ERR unknown command")
		}
	}
}

// newTestSession wires a session to a scripted maildrop over an
// in-memory pipe, skipping the TLS dial and authentication.
func newTestSession(t *testing.T, msgs []popMsg) *session {
	t.Helper()
	client, server := net.Pipe()
	go serveMaildrop(t, server, msgs)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	return &session{
		conn:      client,
		text:      textproto.NewConn(client),
		accountID: "test",
	}
}

func TestFetchChangesReportsNewAndRemoved(t *testing.T) {
	msgs := []popMsg{
		{uid: "tok-aaa", content: "Subject: first\r\nFrom: Alice <alice@example.com>\r\n\r\nhello"},
		{uid: "tok-bbb", content: "Subject: second\r\nFrom: Bob <bob@example.com>\r\n\r\nworld"},
	}
	s := newTestSession(t, msgs)

	// tok-bbb is already cached; tok-gone vanished from the maildrop.
	delta, err := s.FetchChanges(context.Background(), Inbox, model.SyncCursor{Epoch: 1}, []string{"tok-bbb", "tok-gone"})
	if err != nil {
		t.Fatalf("FetchChanges: %v", err)
	}

	if delta.Epoch != 1 {
		t.Errorf("epoch = %d, want the constant 1", delta.Epoch)
	}
	if len(delta.Added) != 1 {
		t.Fatalf("got %d added, want 1", len(delta.Added))
	}
	added := delta.Added[0]
	if added.RemoteID != "tok-aaa" || added.Subject != "first" || added.FromAddr != "alice@example.com" {
		t.Errorf("added = %+v", added)
	}
	if added.Folder != Inbox {
		t.Errorf("added folder = %q, want %q", added.Folder, Inbox)
	}
	if len(delta.Removed) != 1 || delta.Removed[0] != "tok-gone" {
		t.Errorf("removed = %v, want [tok-gone]", delta.Removed)
	}
}

func TestFetchBodyRetrievesFullMessage(t *testing.T) {
	msgs := []popMsg{
		{uid: "tok-aaa", content: "Subject: first\r\n\r\nfull body here"},
	}
	s := newTestSession(t, msgs)

	raw, err := s.FetchBody(context.Background(), Inbox, "tok-aaa")
	if err != nil {
		t.Fatalf("FetchBody: %v", err)
	}
	if !strings.Contains(string(raw), "full body here") {
		t.Errorf("body = %q", raw)
	}
}

func TestExpungeIssuesDele(t *testing.T) {
	msgs := []popMsg{
		{uid: "tok-aaa", content: "Subject: x\r\n\r\nbody"},
	}
	s := newTestSession(t, msgs)

	if err := s.Expunge(context.Background(), Inbox, "tok-aaa"); err != nil {
		t.Fatalf("Expunge: %v", err)
	}

	// The message number mapping forgets the deleted message, so a
	// second expunge is reported as moot rather than retried.
	err := s.Expunge(context.Background(), Inbox, "tok-aaa")
	if !protocol.IsActionRejected(err) {
		t.Errorf("second expunge: %v, want ActionRejectedError", err)
	}
}

func TestExpungeUnknownMessageIsRejected(t *testing.T) {
	s := newTestSession(t, nil)

	err := s.Expunge(context.Background(), Inbox, "tok-missing")
	if !protocol.IsActionRejected(err) {
		t.Errorf("err = %v, want ActionRejectedError", err)
	}
}

func TestApplyFlagIsLocalOnly(t *testing.T) {
	// No maildrop at all: a flag change must not touch the server.
	s := &session{accountID: "test"}

	if err := s.ApplyFlag(context.Background(), Inbox, "tok-aaa", model.FlagRead, true); err != nil {
		t.Errorf("ApplyFlag: %v", err)
	}
}

func TestMoveIsRejected(t *testing.T) {
	s := &session{accountID: "test"}

	err := s.Move(context.Background(), Inbox, "tok-aaa", "Archive")
	var rejected *protocol.ActionRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want ActionRejectedError", err)
	}
}
