package channel

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/KlubJagiellonski/pola-facebook/internal/bus"
	"github.com/KlubJagiellonski/pola-facebook/internal/config"
	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

func testChLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func startMessenger(t *testing.T) (*Messenger, *bus.InMemoryBus) {
	t.Helper()
	b := bus.New(10, testChLogger())
	t.Cleanup(b.Close)

	m := NewMessenger(MessengerChannelConfig{
		Config: config.MessengerConfig{
			Enabled:     true,
			VerifyToken: "verify-me",
			AccessToken: "token",
			WebhookPath: "/webhook",
		},
		Logger: testChLogger(),
	})
	if err := m.Start(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	return m, b
}

func receive(t *testing.T, b *bus.InMemoryBus) domain.InboundEvent {
	t.Helper()
	select {
	case ev := <-b.Subscribe():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return domain.InboundEvent{}
	}
}

func TestMessenger_VerificationChallenge(t *testing.T) {
	m, _ := startMessenger(t)

	req := httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Errorf("body = %q, want challenge echoed", rec.Body.String())
	}
}

func TestMessenger_VerificationRejectsBadToken(t *testing.T) {
	m, _ := startMessenger(t)

	req := httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 403 {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestMessenger_TextMessagePublished(t *testing.T) {
	m, b := startMessenger(t)

	body := `{
		"object": "page",
		"entry": [{"id": "p1", "time": 1700000000000, "messaging": [{
			"sender": {"id": "user-1"},
			"recipient": {"id": "page-1"},
			"timestamp": 1700000000000,
			"message": {"mid": "m1", "text": "dzień dobry"}
		}]}]
	}`
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}

	ev := receive(t, b)
	if ev.Type != domain.EventText || ev.Text != "dzień dobry" || ev.SenderID != "user-1" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Timestamp.UnixMilli() != 1700000000000 {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
}

func TestMessenger_QuickReplyPublished(t *testing.T) {
	m, b := startMessenger(t)

	body := `{
		"object": "page",
		"entry": [{"messaging": [{
			"sender": {"id": "user-1"},
			"timestamp": 1700000000000,
			"message": {"text": "Pomoc", "quick_reply": {"payload": "HELP"}}
		}]}]
	}`
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	m.Handler().ServeHTTP(httptest.NewRecorder(), req)

	ev := receive(t, b)
	if ev.Type != domain.EventQuickReply || ev.Payload != "HELP" || ev.Text != "Pomoc" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestMessenger_AttachmentsPublishedAsOneEvent(t *testing.T) {
	m, b := startMessenger(t)

	body := `{
		"object": "page",
		"entry": [{"messaging": [{
			"sender": {"id": "user-1"},
			"timestamp": 1700000000000,
			"message": {"attachments": [
				{"type": "image", "payload": {"url": "https://cdn/a.jpg"}},
				{"type": "image", "payload": {"url": "https://cdn/b.jpg"}}
			]}
		}]}]
	}`
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	m.Handler().ServeHTTP(httptest.NewRecorder(), req)

	ev := receive(t, b)
	if ev.Type != domain.EventAttachment {
		t.Fatalf("type = %v", ev.Type)
	}
	if len(ev.Attachments) != 2 || ev.Attachments[1].URL != "https://cdn/b.jpg" {
		t.Errorf("attachments = %v", ev.Attachments)
	}
}

func TestMessenger_PostbackPublished(t *testing.T) {
	m, b := startMessenger(t)

	body := `{
		"object": "page",
		"entry": [{"messaging": [{
			"sender": {"id": "user-1"},
			"timestamp": 1700000000000,
			"postback": {"title": "Start", "payload": "INFO"}
		}]}]
	}`
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	m.Handler().ServeHTTP(httptest.NewRecorder(), req)

	ev := receive(t, b)
	if ev.Type != domain.EventPostback || ev.Payload != "INFO" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestMessenger_BadPayloadRejected(t *testing.T) {
	m, _ := startMessenger(t)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
