package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/protocol"
	"github.com/tomatyss/linsky/tests/testutil"
)

// stubSession answers every command with an empty result so a cycle
// completes as soon as it is dialed.
type stubSession struct{}

func (stubSession) ListFolders(context.Context) ([]protocol.FolderInfo, error) {
	return []protocol.FolderInfo{{Name: "INBOX"}}, nil
}

func (stubSession) FetchChanges(_ context.Context, _ string, cursor model.SyncCursor, _ []string) (*model.FolderDelta, error) {
	epoch := cursor.Epoch
	if epoch == 0 {
		epoch = 1
	}
	return &model.FolderDelta{Epoch: epoch, LastUID: cursor.LastUID}, nil
}

func (stubSession) FetchBody(context.Context, string, string) ([]byte, error) {
	return []byte("Subject: x\r\n\r\nbody"), nil
}

func (stubSession) ApplyFlag(context.Context, string, string, model.Flag, bool) error {
	return nil
}

func (stubSession) Expunge(context.Context, string, string) error { return nil }

func (stubSession) Move(context.Context, string, string, string) error { return nil }

func (stubSession) Close() error { return nil }

// gateDialer parks every Dial until the test hands it a verdict, so
// the test controls exactly when each cycle starts and how it ends.
type gateDialer struct {
	started chan struct{}
	verdict chan error
}

func newGateDialer() *gateDialer {
	return &gateDialer{
		started: make(chan struct{}),
		verdict: make(chan error),
	}
}

func (d *gateDialer) Dial(ctx context.Context, account model.AccountConfig) (protocol.Session, error) {
	d.started <- struct{}{}
	if err := <-d.verdict; err != nil {
		return nil, err
	}
	return stubSession{}, nil
}

func newTestCoordinator(t *testing.T, d protocol.Dialer) *Coordinator {
	t.Helper()
	st := testutil.NewTestStore(t)
	engine := NewEngine(st, nil, 0, nil)
	c := NewCoordinator(st, engine, nil, nil)
	c.AddAccount(model.AccountConfig{ID: "work", SyncIntervalSec: 3600}, d)
	return c
}

func TestRefreshCoalescesWhileCycleInFlight(t *testing.T) {
	d := newGateDialer()
	c := newTestCoordinator(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	// Initial cycle is dialing; everything below arrives mid-flight.
	<-d.started
	c.Refresh("work")
	c.Refresh("work")
	c.Refresh("work")
	d.verdict <- nil

	// The three refreshes collapse into exactly one follow-up cycle.
	<-d.started
	d.verdict <- nil

	select {
	case <-d.started:
		t.Fatal("coalesced refreshes produced more than one follow-up cycle")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDialFailureRetriesWithBackoffAndResets(t *testing.T) {
	d := newGateDialer()
	c := newTestCoordinator(t, d)
	c.initialBackoff = 10 * time.Millisecond
	c.maxBackoff = 40 * time.Millisecond
	c.runners["work"].backoff = c.initialBackoff

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	dialErr := &protocol.ConnectionError{AccountID: "work", Err: errors.New("connection refused")}

	<-d.started
	d.verdict <- dialErr

	// The retry timer, not a trigger, produces the next dial.
	<-d.started
	if got := c.Statuses()[0].State; got != model.StateOffline {
		t.Errorf("state after dial failure = %v, want offline", got)
	}
	d.verdict <- dialErr

	<-d.started
	d.verdict <- nil

	// Park the runner in a fresh dial; the previous cycle has fully
	// finished, so the backoff value is stable to read.
	c.Refresh("work")
	<-d.started
	if c.Statuses()[0].LastSync.IsZero() {
		t.Error("LastSync not recorded after successful cycle")
	}
	if got := c.runners["work"].backoff; got != c.initialBackoff {
		t.Errorf("backoff after success = %v, want reset to %v", got, c.initialBackoff)
	}
	d.verdict <- nil

	cancel()
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
