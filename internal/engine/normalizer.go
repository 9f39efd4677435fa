package engine

import (
	"log/slog"
	"net/url"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

// Normalize converts one raw channel event into the canonical engine inputs.
// Text, quick-reply and postback events map to a single message; attachment
// events yield one message per attachment so each runs the state machine as
// its own turn. Malformed attachment references are skipped with an error
// log, unsupported attachment types are dropped at debug level; the rest of
// the event still proceeds.
func Normalize(ev domain.InboundEvent, logger *slog.Logger) []domain.IncomingMessage {
	base := domain.IncomingMessage{
		SenderID: ev.SenderID,
		Channel:  ev.Channel,
	}

	switch ev.Type {
	case domain.EventText:
		base.Text = ev.Text
		return []domain.IncomingMessage{base}

	case domain.EventQuickReply:
		base.Text = ev.Text
		base.Payload = ev.Payload
		return []domain.IncomingMessage{base}

	case domain.EventPostback:
		base.Payload = ev.Payload
		return []domain.IncomingMessage{base}

	case domain.EventAttachment:
		var msgs []domain.IncomingMessage
		for _, raw := range ev.Attachments {
			att, ok := validateAttachment(raw, logger)
			if !ok {
				continue
			}
			msg := base
			msg.Attachments = []domain.Attachment{att}
			msgs = append(msgs, msg)
		}
		return msgs
	}

	logger.Debug("unsupported event type received", "type", ev.Type, "channel", ev.Channel)
	return nil
}

func validateAttachment(raw domain.RawAttachment, logger *slog.Logger) (domain.Attachment, bool) {
	if raw.Type != string(domain.AttachmentImage) {
		logger.Debug("unsupported attachment type received", "type", raw.Type)
		return domain.Attachment{}, false
	}

	u, err := url.ParseRequestURI(raw.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		logger.Error("attachment could not be added, invalid URL", "url", raw.URL, "err", err)
		return domain.Attachment{}, false
	}

	return domain.Attachment{Type: domain.AttachmentImage, URL: raw.URL}, true
}
