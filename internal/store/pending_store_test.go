package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/store"
	"github.com/tomatyss/linsky/tests/testutil"
)

func enqueue(t *testing.T, s *store.SQLiteStore, a model.PendingAction) int64 {
	t.Helper()
	seq, err := s.EnqueueAction(context.Background(), a)
	if err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}
	return seq
}

func TestPendingActionsOrderedBySeq(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	first := enqueue(t, s, model.PendingAction{
		AccountID: testAccount, Folder: testFolder, Epoch: 1, RemoteID: "10",
		Kind: model.ActionSetFlag, Flag: model.FlagRead, Value: true,
		CreatedAt: time.Now(),
	})
	second := enqueue(t, s, model.PendingAction{
		AccountID: testAccount, Folder: testFolder, Epoch: 1, RemoteID: "11",
		Kind: model.ActionDelete, CreatedAt: time.Now(),
	})
	if second <= first {
		t.Fatalf("sequence not monotonic: %d then %d", first, second)
	}

	actions, err := s.ListActions(ctx, testAccount, testFolder)
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[0].Seq != first || actions[1].Seq != second {
		t.Errorf("order = %d, %d; want %d, %d", actions[0].Seq, actions[1].Seq, first, second)
	}
	if actions[0].Kind != model.ActionSetFlag || actions[0].Flag != model.FlagRead || !actions[0].Value {
		t.Errorf("first action round trip broken: %+v", actions[0])
	}
}

func TestBumpActionAttempts(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	seq := enqueue(t, s, model.PendingAction{
		AccountID: testAccount, Folder: testFolder, Epoch: 1, RemoteID: "1",
		Kind: model.ActionMove, TargetFolder: "Archive", CreatedAt: time.Now(),
	})

	for want := 1; want <= 3; want++ {
		got, err := s.BumpActionAttempts(ctx, seq)
		if err != nil {
			t.Fatalf("BumpActionAttempts: %v", err)
		}
		if got != want {
			t.Errorf("attempts = %d, want %d", got, want)
		}
	}

	actions, _ := s.ListActions(ctx, testAccount, testFolder)
	if len(actions) != 1 || actions[0].Attempts != 3 {
		t.Errorf("persisted attempts = %+v, want 3", actions)
	}
}

func TestDeleteAction(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	seq := enqueue(t, s, model.PendingAction{
		AccountID: testAccount, Folder: testFolder, Epoch: 1, RemoteID: "1",
		Kind: model.ActionDelete, CreatedAt: time.Now(),
	})

	if err := s.DeleteAction(ctx, seq); err != nil {
		t.Fatalf("DeleteAction: %v", err)
	}
	actions, _ := s.ListActions(ctx, testAccount, testFolder)
	if len(actions) != 0 {
		t.Errorf("%d actions left after delete", len(actions))
	}
}

func TestOutgoingQueueRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	msg := model.OutgoingMessage{
		ID:        "out-1",
		AccountID: testAccount,
		From:      "me@example.com",
		To:        []string{"alice@example.com"},
		Cc:        []string{"bob@example.com"},
		Subject:   "hello",
		Body:      "body text",
		CreatedAt: time.Now(),
	}
	if err := s.EnqueueOutgoing(ctx, msg); err != nil {
		t.Fatalf("EnqueueOutgoing: %v", err)
	}

	attempts, err := s.RecordSendFailure(ctx, "out-1", "connection refused")
	if err != nil {
		t.Fatalf("RecordSendFailure: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}

	queued, err := s.ListOutgoing(ctx, testAccount)
	if err != nil {
		t.Fatalf("ListOutgoing: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("got %d outgoing messages, want 1", len(queued))
	}
	got := queued[0]
	if got.Attempts != 1 || got.LastError != "connection refused" {
		t.Errorf("failure not recorded: %+v", got)
	}
	if got.LastAttemptAt.IsZero() {
		t.Error("last attempt time not recorded")
	}
	if len(got.To) != 1 || got.To[0] != "alice@example.com" || len(got.Cc) != 1 {
		t.Errorf("recipients round trip broken: %+v", got)
	}

	if err := s.DeleteOutgoing(ctx, "out-1"); err != nil {
		t.Fatalf("DeleteOutgoing: %v", err)
	}
	queued, _ = s.ListOutgoing(ctx, testAccount)
	if len(queued) != 0 {
		t.Errorf("%d messages left after delete", len(queued))
	}
}
