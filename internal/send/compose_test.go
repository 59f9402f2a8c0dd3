package send

import (
	"strings"
	"testing"

	"github.com/tomatyss/linsky/internal/mimeutil"
	"github.com/tomatyss/linsky/internal/model"
)

func TestBuildMessageHeadersAndBody(t *testing.T) {
	out := model.OutgoingMessage{
		From:      "me@example.com",
		To:        []string{"alice@example.com", "bob@example.com"},
		Cc:        []string{"carol@example.com"},
		Subject:   "Weekly status",
		Body:      "All green this week.",
		InReplyTo: "parent-123@example.com",
	}

	raw, msgID, err := BuildMessage(out, "mail.example.com")
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}

	if !strings.HasSuffix(msgID, "@mail.example.com") {
		t.Errorf("message id = %q, want @mail.example.com suffix", msgID)
	}

	env, err := mimeutil.ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("parsing built message: %v", err)
	}
	if env.Subject != "Weekly status" {
		t.Errorf("subject = %q", env.Subject)
	}
	if env.FromAddr != "me@example.com" {
		t.Errorf("from = %q", env.FromAddr)
	}
	if len(env.To) != 2 || env.To[0] != "alice@example.com" {
		t.Errorf("to = %v", env.To)
	}
	if env.MessageID != msgID {
		t.Errorf("envelope message id = %q, want %q", env.MessageID, msgID)
	}

	text := string(raw)
	if !strings.Contains(text, "Cc:") || !strings.Contains(text, "carol@example.com") {
		t.Errorf("missing Cc header in:\n%s", text)
	}
	if !strings.Contains(text, "In-Reply-To:") || !strings.Contains(text, "parent-123@example.com") {
		t.Errorf("missing In-Reply-To header in:\n%s", text)
	}

	textBody, _ := mimeutil.ParseBody(raw)
	if !strings.Contains(textBody, "All green this week.") {
		t.Errorf("body = %q", textBody)
	}
}

func TestBuildMessageOmitsEmptyOptionalHeaders(t *testing.T) {
	out := model.OutgoingMessage{
		From:    "me@example.com",
		To:      []string{"alice@example.com"},
		Subject: "hi",
		Body:    "hello",
	}

	raw, _, err := BuildMessage(out, "mail.example.com")
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}

	text := string(raw)
	if strings.Contains(text, "Cc:") {
		t.Error("unexpected Cc header")
	}
	if strings.Contains(text, "In-Reply-To:") {
		t.Error("unexpected In-Reply-To header")
	}
}
