package send

import (
	"context"
	"testing"
	"time"

	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/tests/testutil"
)

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{10, sendBackoffMax},
	}
	for _, c := range cases {
		if got := retryDelay(c.attempts); got != c.want {
			t.Errorf("retryDelay(%d) = %v, want %v", c.attempts, got, c.want)
		}
	}
}

func TestRetryDue(t *testing.T) {
	now := time.Now()

	fresh := model.OutgoingMessage{Attempts: 0}
	if !retryDue(fresh, now) {
		t.Error("message with no attempts should always be due")
	}

	recent := model.OutgoingMessage{Attempts: 1, LastAttemptAt: now.Add(-10 * time.Second)}
	if retryDue(recent, now) {
		t.Error("message that just failed should wait out its backoff")
	}

	waited := model.OutgoingMessage{Attempts: 1, LastAttemptAt: now.Add(-2 * time.Minute)}
	if !retryDue(waited, now) {
		t.Error("message past its backoff window should be due")
	}
}

func TestDrainSkipsRecentlyFailedMessage(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	sender := NewSender(st, nil, nil)
	sender.AddAccount(model.AccountConfig{ID: "work"})

	msg := model.OutgoingMessage{
		ID:        "out-1",
		AccountID: "work",
		From:      "me@example.com",
		To:        []string{"alice@example.com"},
		Subject:   "hi",
		Body:      "hello",
		CreatedAt: time.Now(),
	}
	if err := st.EnqueueOutgoing(ctx, msg); err != nil {
		t.Fatalf("EnqueueOutgoing: %v", err)
	}
	if _, err := st.RecordSendFailure(ctx, "out-1", "connection refused"); err != nil {
		t.Fatalf("RecordSendFailure: %v", err)
	}

	// The failure just happened, so the sweep must leave the message
	// alone instead of dialing again.
	sender.drain(ctx, false)

	queued, err := st.ListOutgoing(ctx, "work")
	if err != nil {
		t.Fatalf("ListOutgoing: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("got %d queued messages, want 1", len(queued))
	}
	if queued[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (message was retried inside its backoff window)", queued[0].Attempts)
	}
}
