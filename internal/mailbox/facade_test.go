package mailbox_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tomatyss/linsky/internal/mailbox"
	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/store"
	"github.com/tomatyss/linsky/tests/testutil"
)

func newTestMailbox(t *testing.T) *mailbox.Mailbox {
	t.Helper()
	return mailbox.New(testutil.NewTestStore(t), nil, 0)
}

func TestListAccountsFollowsRegistration(t *testing.T) {
	mb := newTestMailbox(t)
	mb.AddAccount(model.AccountConfig{ID: "work", Email: "me@work.example", Protocol: model.ProtocolIMAP})
	mb.AddAccount(model.AccountConfig{ID: "home", Email: "me@home.example", Protocol: model.ProtocolPOP3})

	accounts := mb.ListAccounts()
	if len(accounts) != 2 {
		t.Fatalf("got %d accounts, want 2", len(accounts))
	}
	if accounts[0].ID != "work" || accounts[1].ID != "home" {
		t.Errorf("account order = %q, %q", accounts[0].ID, accounts[1].ID)
	}

	// Re-adding an account updates it in place instead of duplicating.
	mb.AddAccount(model.AccountConfig{ID: "work", Email: "new@work.example", Protocol: model.ProtocolIMAP})
	accounts = mb.ListAccounts()
	if len(accounts) != 2 {
		t.Fatalf("after re-add got %d accounts, want 2", len(accounts))
	}
	if accounts[0].Email != "new@work.example" {
		t.Errorf("re-added account email = %q", accounts[0].Email)
	}

	if err := mb.RemoveAccount(context.Background(), "work"); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}
	accounts = mb.ListAccounts()
	if len(accounts) != 1 || accounts[0].ID != "home" {
		t.Errorf("after removal accounts = %+v", accounts)
	}
}

func TestMoveRejectedOnPOP3Account(t *testing.T) {
	mb := newTestMailbox(t)
	mb.AddAccount(model.AccountConfig{ID: "home", Protocol: model.ProtocolPOP3})

	key := store.MessageKey{AccountID: "home", Folder: "INBOX", Epoch: 1, RemoteID: "tok-1"}
	err := mb.Move(context.Background(), key, "Archive")
	if !errors.Is(err, mailbox.ErrMoveUnsupported) {
		t.Errorf("err = %v, want ErrMoveUnsupported", err)
	}
}
