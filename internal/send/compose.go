// Package send builds RFC 5322 messages from composed drafts and
// drains the outgoing queue over SMTP.
package send

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/tomatyss/linsky/internal/model"
)

// BuildMessage renders an outgoing message as a plain-text MIME
// document and returns the raw bytes together with the generated
// Message-ID.
func BuildMessage(out model.OutgoingMessage, hostname string) ([]byte, string, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: out.From}})
	h.SetAddressList("To", toAddresses(out.To))
	if len(out.Cc) > 0 {
		h.SetAddressList("Cc", toAddresses(out.Cc))
	}
	h.SetSubject(out.Subject)

	msgID := fmt.Sprintf("%s@%s", uuid.NewString(), hostname)
	h.SetMessageID(msgID)
	if out.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{out.InReplyTo})
		h.SetMsgIDList("References", []string{out.InReplyTo})
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(w, out.Body); err != nil {
		return nil, "", fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing message writer: %w", err)
	}

	return buf.Bytes(), msgID, nil
}

func toAddresses(addrs []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, &mail.Address{Address: a})
	}
	return out
}
