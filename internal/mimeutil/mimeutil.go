// Package mimeutil wraps go-message behind the two narrow operations
// the rest of the client needs: envelope extraction from raw headers
// and body extraction from a full raw message.
package mimeutil

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Envelope is the parsed header metadata of a message.
type Envelope struct {
	MessageID string
	Subject   string
	FromAddr  string
	FromName  string
	To        []string
	Date      time.Time
}

// ParseEnvelope extracts envelope metadata from raw message bytes.
// The input may be headers only (e.g., from POP3 TOP) or a full
// message.
func ParseEnvelope(raw []byte) (Envelope, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && mr == nil {
		return Envelope{}, err
	}
	defer mr.Close()

	var env Envelope
	h := mr.Header

	env.Subject, _ = h.Subject()
	env.MessageID, _ = h.MessageID()
	env.Date, _ = h.Date()

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		env.FromAddr = from[0].Address
		env.FromName = from[0].Name
	}
	if to, err := h.AddressList("To"); err == nil {
		for _, addr := range to {
			env.To = append(env.To, addr.Address)
		}
	}

	return env, nil
}

// ParseBody parses a raw RFC 5322 message and extracts the text/plain
// and text/html parts. If MIME parsing fails, the whole input is
// returned as plain text rather than losing the message.
func ParseBody(raw []byte) (textBody, htmlBody string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), ""
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			if textBody == "" {
				textBody = string(body)
			}
		case strings.HasPrefix(contentType, "text/html"):
			if htmlBody == "" {
				htmlBody = string(body)
			}
		}
	}

	return textBody, htmlBody
}
