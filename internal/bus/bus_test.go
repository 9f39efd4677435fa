package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

func testBusLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestBus_PublishAndSubscribe(t *testing.T) {
	b := New(10, testBusLogger())
	defer b.Close()

	b.Publish(domain.InboundEvent{Channel: "cli", SenderID: "u1", Type: domain.EventText, Text: "hej"})

	select {
	case ev := <-b.Subscribe():
		if ev.SenderID != "u1" || ev.Text != "hej" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_OutboundRoutedByChannel(t *testing.T) {
	b := New(10, testBusLogger())
	defer b.Close()

	var got []domain.OutgoingMessage
	b.OnOutbound("messenger", func(msg domain.OutgoingMessage) {
		got = append(got, msg)
	})

	b.SendOutbound(domain.OutgoingMessage{Channel: "messenger", RecipientID: "u1", Text: "cześć"})
	b.SendOutbound(domain.OutgoingMessage{Channel: "telegram", RecipientID: "u1", Text: "dropped"})

	if len(got) != 1 || got[0].Text != "cześć" {
		t.Errorf("messenger handler got %v", got)
	}
}

func TestBus_PublishAfterCloseDoesNotPanic(t *testing.T) {
	b := New(1, testBusLogger())
	b.Close()

	b.Publish(domain.InboundEvent{Channel: "cli", SenderID: "u1"})
	b.Close() // double close is safe
}

func TestBus_SubscribeChannelClosesOnClose(t *testing.T) {
	b := New(1, testBusLogger())
	inbound := b.Subscribe()
	b.Close()

	select {
	case _, ok := <-inbound:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("inbound channel did not close")
	}
}
