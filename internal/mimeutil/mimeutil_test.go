package mimeutil

import (
	"strings"
	"testing"
)

const sampleMessage = "From: Alice Example <alice@example.com>\r\n" +
	"To: bob@example.com, carol@example.com\r\n" +
	"Subject: Lunch plans\r\n" +
	"Message-ID: <abc-123@example.com>\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"How about noon?\r\n"

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(sampleMessage))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}

	if env.Subject != "Lunch plans" {
		t.Errorf("subject = %q", env.Subject)
	}
	if env.FromAddr != "alice@example.com" || env.FromName != "Alice Example" {
		t.Errorf("from = %q <%q>", env.FromName, env.FromAddr)
	}
	if len(env.To) != 2 || env.To[1] != "carol@example.com" {
		t.Errorf("to = %v", env.To)
	}
	if env.MessageID != "abc-123@example.com" {
		t.Errorf("message id = %q", env.MessageID)
	}
	if env.Date.IsZero() {
		t.Error("date not parsed")
	}
}

func TestParseEnvelopeHeadersOnly(t *testing.T) {
	headers := "From: alice@example.com\r\nSubject: top only\r\n\r\n"

	env, err := ParseEnvelope([]byte(headers))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if env.Subject != "top only" {
		t.Errorf("subject = %q", env.Subject)
	}
}

func TestParseBodyPlainText(t *testing.T) {
	text, html := ParseBody([]byte(sampleMessage))
	if !strings.Contains(text, "How about noon?") {
		t.Errorf("text = %q", text)
	}
	if html != "" {
		t.Errorf("html = %q, want empty", html)
	}
}

func TestParseBodyMultipartAlternative(t *testing.T) {
	msg := "From: alice@example.com\r\n" +
		"Subject: both parts\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"plain version\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>html version</p>\r\n" +
		"--XYZ--\r\n"

	text, html := ParseBody([]byte(msg))
	if !strings.Contains(text, "plain version") {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains(html, "html version") {
		t.Errorf("html = %q", html)
	}
}

func TestParseBodyFallsBackOnGarbage(t *testing.T) {
	raw := []byte("not a mime message at all")
	text, _ := ParseBody(raw)
	if text != string(raw) {
		t.Errorf("fallback text = %q", text)
	}
}
