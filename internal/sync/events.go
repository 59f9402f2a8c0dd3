package sync

// EventKind labels a notification emitted by the background workers.
type EventKind int

const (
	// EventSyncStarted fires when an account begins a sync cycle.
	EventSyncStarted EventKind = iota
	// EventSyncCompleted fires after a successful cycle.
	EventSyncCompleted
	// EventSyncFailed fires when a cycle aborts with an error.
	EventSyncFailed
	// EventBodyFetched fires when an on-demand body fetch lands in
	// the cache.
	EventBodyFetched
	// EventActionAbandoned fires when a pending action exhausts its
	// retry budget.
	EventActionAbandoned
	// EventOutgoingSent fires when a queued outgoing message is
	// accepted by the submission server.
	EventOutgoingSent
	// EventOutgoingFailed fires when a send attempt fails.
	EventOutgoingFailed
)

// Event is a notification for interactive frontends. Delivery is best
// effort; workers never block on a slow consumer.
type Event struct {
	Kind      EventKind
	AccountID string
	Folder    string
	RemoteID  string
	Err       error
}
