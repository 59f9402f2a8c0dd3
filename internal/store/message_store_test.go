package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/store"
	"github.com/tomatyss/linsky/tests/testutil"
)

const (
	testAccount = "work"
	testFolder  = "INBOX"
)

func testMessage(epoch uint32, uid uint32) model.Message {
	return model.Message{
		AccountID: testAccount,
		Folder:    testFolder,
		Epoch:     epoch,
		RemoteID:  fmt.Sprintf("%d", uid),
		UID:       uid,
		Subject:   fmt.Sprintf("message %d", uid),
		FromAddr:  "alice@example.com",
		FromName:  "Alice",
		To:        []string{"bob@example.com"},
		Date:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Minute),
		Size:      1024,
	}
}

func applyDelta(t *testing.T, s store.Store, delta *model.FolderDelta) {
	t.Helper()
	if err := s.ApplyDelta(context.Background(), testAccount, testFolder, delta); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
}

func TestApplyDeltaInsertAndCursor(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	applyDelta(t, s, &model.FolderDelta{
		Epoch:   7,
		Added:   []model.Message{testMessage(7, 101), testMessage(7, 102)},
		LastUID: 102,
	})

	msgs, err := s.ListMessages(ctx, testAccount, testFolder)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// Newest first.
	if msgs[0].RemoteID != "102" || msgs[1].RemoteID != "101" {
		t.Errorf("unexpected order: %s, %s", msgs[0].RemoteID, msgs[1].RemoteID)
	}

	f, err := s.GetFolder(ctx, testAccount, testFolder)
	if err != nil {
		t.Fatalf("GetFolder: %v", err)
	}
	if f.Cursor.Epoch != 7 || f.Cursor.LastUID != 102 {
		t.Errorf("cursor = %+v, want epoch 7 last uid 102", f.Cursor)
	}
	if f.Cursor.LastSyncAt.IsZero() {
		t.Error("LastSyncAt not set")
	}
}

func TestApplyDeltaIsIdempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	delta := &model.FolderDelta{
		Epoch:   1,
		Added:   []model.Message{testMessage(1, 5)},
		LastUID: 5,
	}
	applyDelta(t, s, delta)
	applyDelta(t, s, delta)

	msgs, err := s.ListMessages(ctx, testAccount, testFolder)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages after double apply, want 1", len(msgs))
	}
}

func TestApplyDeltaFlagsAndRemovals(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	applyDelta(t, s, &model.FolderDelta{
		Epoch:   1,
		Added:   []model.Message{testMessage(1, 1), testMessage(1, 2), testMessage(1, 3)},
		LastUID: 3,
	})

	applyDelta(t, s, &model.FolderDelta{
		Epoch:   1,
		Removed: []string{"2"},
		Flagged: []model.FlagChange{
			{RemoteID: "1", Read: true, Flagged: true},
		},
		LastUID: 3,
	})

	msgs, err := s.ListMessages(ctx, testAccount, testFolder)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.RemoteID == "2" {
			t.Error("removed message still present")
		}
		if m.RemoteID == "1" && (!m.Read || !m.Flagged) {
			t.Errorf("flag change not applied: %+v", m)
		}
	}
}

func TestClearFolderResetsEverything(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	applyDelta(t, s, &model.FolderDelta{
		Epoch:   1,
		Added:   []model.Message{testMessage(1, 101), testMessage(1, 102)},
		LastUID: 102,
	})

	key := store.MessageKey{AccountID: testAccount, Folder: testFolder, Epoch: 1, RemoteID: "101"}
	if err := s.SaveBody(ctx, key, model.Body{Text: "hello", FetchedAt: time.Now()}); err != nil {
		t.Fatalf("SaveBody: %v", err)
	}
	if _, err := s.EnqueueAction(ctx, model.PendingAction{
		AccountID: testAccount, Folder: testFolder, Epoch: 1, RemoteID: "101",
		Kind: model.ActionSetFlag, Flag: model.FlagRead, Value: true,
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}

	if err := s.ClearFolder(ctx, testAccount, testFolder); err != nil {
		t.Fatalf("ClearFolder: %v", err)
	}

	msgs, _ := s.ListMessages(ctx, testAccount, testFolder)
	if len(msgs) != 0 {
		t.Errorf("%d messages survived ClearFolder", len(msgs))
	}
	if _, err := s.GetBody(ctx, key); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetBody after clear: %v, want ErrNotFound", err)
	}
	actions, _ := s.ListActions(ctx, testAccount, testFolder)
	if len(actions) != 0 {
		t.Errorf("%d pending actions survived ClearFolder", len(actions))
	}
	f, err := s.GetFolder(ctx, testAccount, testFolder)
	if err != nil {
		t.Fatalf("GetFolder: %v", err)
	}
	if !f.Cursor.Zero() {
		t.Errorf("cursor not reset: %+v", f.Cursor)
	}
}

func TestEpochChangeRepopulation(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	applyDelta(t, s, &model.FolderDelta{
		Epoch:   1,
		Added:   []model.Message{testMessage(1, 101), testMessage(1, 102)},
		LastUID: 102,
	})
	if err := s.ClearFolder(ctx, testAccount, testFolder); err != nil {
		t.Fatalf("ClearFolder: %v", err)
	}
	applyDelta(t, s, &model.FolderDelta{
		Epoch:   2,
		Added:   []model.Message{testMessage(2, 1), testMessage(2, 2), testMessage(2, 3)},
		LastUID: 3,
	})

	msgs, err := s.ListMessages(ctx, testAccount, testFolder)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages under new epoch, want 3", len(msgs))
	}
	for _, m := range msgs {
		if m.Epoch != 2 {
			t.Errorf("message %s has epoch %d, want 2", m.RemoteID, m.Epoch)
		}
	}
}

func TestKnownRemoteIDsFiltersByEpoch(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	applyDelta(t, s, &model.FolderDelta{
		Epoch:   3,
		Added:   []model.Message{testMessage(3, 9), testMessage(3, 4)},
		LastUID: 9,
	})

	known, err := s.KnownRemoteIDs(ctx, testAccount, testFolder, 3)
	if err != nil {
		t.Fatalf("KnownRemoteIDs: %v", err)
	}
	if len(known) != 2 || known[0] != "4" || known[1] != "9" {
		t.Errorf("known = %v, want [4 9]", known)
	}

	other, err := s.KnownRemoteIDs(ctx, testAccount, testFolder, 4)
	if err != nil {
		t.Fatalf("KnownRemoteIDs: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("known under wrong epoch = %v, want empty", other)
	}
}

func TestSetMessageFlagAndSyncFailed(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	applyDelta(t, s, &model.FolderDelta{
		Epoch:   1,
		Added:   []model.Message{testMessage(1, 1)},
		LastUID: 1,
	})
	key := store.MessageKey{AccountID: testAccount, Folder: testFolder, Epoch: 1, RemoteID: "1"}

	if err := s.SetMessageFlag(ctx, key, model.FlagRead, true); err != nil {
		t.Fatalf("SetMessageFlag: %v", err)
	}
	if err := s.MarkSyncFailed(ctx, key, true); err != nil {
		t.Fatalf("MarkSyncFailed: %v", err)
	}

	m, err := s.GetMessage(ctx, key)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !m.Read || !m.SyncFailed {
		t.Errorf("read=%v syncFailed=%v, want both true", m.Read, m.SyncFailed)
	}
}

func TestEvictBodiesKeepsNewestAndMetadata(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	var added []model.Message
	for uid := uint32(1); uid <= 5; uid++ {
		added = append(added, testMessage(1, uid))
	}
	applyDelta(t, s, &model.FolderDelta{Epoch: 1, Added: added, LastUID: 5})

	for uid := uint32(1); uid <= 5; uid++ {
		key := store.MessageKey{AccountID: testAccount, Folder: testFolder, Epoch: 1, RemoteID: fmt.Sprintf("%d", uid)}
		body := model.Body{
			Text:      fmt.Sprintf("body %d", uid),
			FetchedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Hour),
		}
		if err := s.SaveBody(ctx, key, body); err != nil {
			t.Fatalf("SaveBody %d: %v", uid, err)
		}
	}

	evicted, err := s.EvictBodies(ctx, testAccount, testFolder, 2)
	if err != nil {
		t.Fatalf("EvictBodies: %v", err)
	}
	if evicted != 3 {
		t.Errorf("evicted %d bodies, want 3", evicted)
	}

	// The two most recently fetched bodies survive.
	for uid := uint32(4); uid <= 5; uid++ {
		key := store.MessageKey{AccountID: testAccount, Folder: testFolder, Epoch: 1, RemoteID: fmt.Sprintf("%d", uid)}
		if _, err := s.GetBody(ctx, key); err != nil {
			t.Errorf("body %d evicted unexpectedly: %v", uid, err)
		}
	}
	key1 := store.MessageKey{AccountID: testAccount, Folder: testFolder, Epoch: 1, RemoteID: "1"}
	if _, err := s.GetBody(ctx, key1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("oldest body still cached: %v", err)
	}

	// Metadata is untouched by eviction.
	msgs, err := s.ListMessages(ctx, testAccount, testFolder)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 5 {
		t.Errorf("eviction removed metadata: %d messages left", len(msgs))
	}
	for _, m := range msgs {
		wantBody := m.RemoteID == "4" || m.RemoteID == "5"
		if m.HasBody != wantBody {
			t.Errorf("message %s HasBody=%v, want %v", m.RemoteID, m.HasBody, wantBody)
		}
	}
}

func TestDeleteAccountIsScoped(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	applyDelta(t, s, &model.FolderDelta{
		Epoch:   1,
		Added:   []model.Message{testMessage(1, 1)},
		LastUID: 1,
	})
	other := testMessage(1, 1)
	other.AccountID = "personal"
	if err := s.ApplyDelta(ctx, "personal", testFolder, &model.FolderDelta{
		Epoch: 1, Added: []model.Message{other}, LastUID: 1,
	}); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	if err := s.DeleteAccount(ctx, testAccount); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	gone, _ := s.ListMessages(ctx, testAccount, testFolder)
	if len(gone) != 0 {
		t.Errorf("deleted account still has %d messages", len(gone))
	}
	kept, _ := s.ListMessages(ctx, "personal", testFolder)
	if len(kept) != 1 {
		t.Errorf("other account lost messages: %d left", len(kept))
	}
}
