package model

import "time"

// OutgoingMessage is a composed message queued for transmission. It is
// independent of any folder; it is removed once the send transport
// reports success and retried with backoff on transient failure.
type OutgoingMessage struct {
	ID        string
	AccountID string

	From    string
	To      []string
	Cc      []string
	Subject string
	Body    string

	// InReplyTo carries the Message-ID being replied to, if any.
	InReplyTo string

	Attempts int

	// LastError and LastAttemptAt describe the most recent failed
	// attempt; LastAttemptAt spaces automatic retries exponentially.
	LastError     string
	LastAttemptAt time.Time

	CreatedAt time.Time
}
