package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/KlubJagiellonski/pola-facebook/internal/config"
	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

const messengerAPIBase = "https://graph.facebook.com/v2.6"

// Messenger implements domain.Channel for the Facebook Messenger Platform.
// Inbound traffic arrives on a webhook that the platform calls; outbound
// traffic goes through the Graph Send API.
type Messenger struct {
	cfg    config.MessengerConfig
	bus    domain.MessageBus
	logger *slog.Logger
	client *http.Client
	mux    *http.ServeMux
}

type MessengerChannelConfig struct {
	Config config.MessengerConfig
	Logger *slog.Logger
}

func NewMessenger(cfg MessengerChannelConfig) *Messenger {
	return &Messenger{
		cfg:    cfg.Config,
		logger: cfg.Logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (m *Messenger) Name() string { return "messenger" }

func (m *Messenger) Start(ctx context.Context, bus domain.MessageBus) error {
	m.bus = bus

	bus.OnOutbound("messenger", func(msg domain.OutgoingMessage) {
		if msg.Action != "" {
			if err := m.sendAction(ctx, msg.RecipientID, msg.Action); err != nil {
				m.logger.Warn("messenger sender action failed", "err", err, "recipient", msg.RecipientID)
			}
			return
		}
		if err := m.sendMessage(ctx, msg.RecipientID, msg.Text, msg.QuickReplies); err != nil {
			m.logger.Error("messenger send failed", "err", err, "recipient", msg.RecipientID)
		}
	})

	m.mux = http.NewServeMux()
	webhookPath := m.cfg.WebhookPath
	if webhookPath == "" {
		webhookPath = "/webhook"
	}

	m.mux.HandleFunc(webhookPath, func(rw http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			m.handleVerification(rw, r)
		case http.MethodPost:
			m.handleIncoming(rw, r)
		default:
			http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})

	m.logger.Info("messenger channel ready", "webhook", webhookPath)
	return nil
}

func (m *Messenger) Stop() error { return nil }

// Handler returns the HTTP handler for the Messenger webhook (to be mounted on the main mux).
func (m *Messenger) Handler() http.Handler {
	if m.mux == nil {
		return http.NotFoundHandler()
	}
	return m.mux
}

// --- Webhook handlers ---

// handleVerification handles the Messenger webhook verification challenge.
func (m *Messenger) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == m.cfg.VerifyToken {
		m.logger.Info("messenger webhook verified")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, html.EscapeString(challenge))
		return
	}

	m.logger.Warn("messenger webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

// handleIncoming parses the Messenger webhook payload into inbound events.
// Each messaging entry becomes exactly one event: text, quick reply,
// attachment batch, or postback.
func (m *Messenger) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	var payload fbPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		m.logger.Warn("messenger bad payload", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, msg := range entry.Messaging {
			ev, ok := m.toEvent(msg)
			if !ok {
				continue
			}
			m.logger.Info("messenger event received",
				"from", ev.SenderID, "type", ev.Type)
			m.bus.Publish(ev)
		}
	}

	rw.WriteHeader(http.StatusOK)
}

// toEvent maps one messaging entry to a domain event.
func (m *Messenger) toEvent(msg fbMessaging) (domain.InboundEvent, bool) {
	ev := domain.InboundEvent{
		Channel:   "messenger",
		SenderID:  msg.Sender.ID,
		Timestamp: time.UnixMilli(msg.Timestamp),
	}

	switch {
	case msg.Postback != nil:
		ev.Type = domain.EventPostback
		ev.Payload = msg.Postback.Payload
	case msg.Message != nil && msg.Message.QuickReply != nil:
		ev.Type = domain.EventQuickReply
		ev.Text = msg.Message.Text
		ev.Payload = msg.Message.QuickReply.Payload
	case msg.Message != nil && len(msg.Message.Attachments) > 0:
		ev.Type = domain.EventAttachment
		for _, att := range msg.Message.Attachments {
			ev.Attachments = append(ev.Attachments, domain.RawAttachment{
				Type: att.Type,
				URL:  att.Payload.URL,
			})
		}
	case msg.Message != nil:
		ev.Type = domain.EventText
		ev.Text = msg.Message.Text
	default:
		return domain.InboundEvent{}, false
	}

	return ev, true
}

// sendAction posts a sender action (mark_seen, typing) to the Send API.
func (m *Messenger) sendAction(ctx context.Context, recipient string, action domain.SenderAction) error {
	return m.post(ctx, map[string]any{
		"recipient":     map[string]string{"id": recipient},
		"sender_action": string(action),
	})
}

// sendMessage sends a text message with optional quick replies.
func (m *Messenger) sendMessage(ctx context.Context, recipient, text string, quickReplies []domain.QuickReply) error {
	message := map[string]any{"text": text}
	if len(quickReplies) > 0 {
		var qrs []map[string]string
		for _, qr := range quickReplies {
			qrs = append(qrs, map[string]string{
				"content_type": "text",
				"title":        qr.Title,
				"payload":      qr.Payload,
			})
		}
		message["quick_replies"] = qrs
	}
	return m.post(ctx, map[string]any{
		"recipient": map[string]string{"id": recipient},
		"message":   message,
	})
}

func (m *Messenger) post(ctx context.Context, payload map[string]any) error {
	url := fmt.Sprintf("%s/me/messages?access_token=%s", messengerAPIBase, m.cfg.AccessToken)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("messenger API %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// --- Messenger webhook payload types ---

type fbPayload struct {
	Object string    `json:"object"`
	Entry  []fbEntry `json:"entry"`
}

type fbEntry struct {
	ID        string        `json:"id"`
	Time      int64         `json:"time"`
	Messaging []fbMessaging `json:"messaging"`
}

type fbMessaging struct {
	Sender    fbParty     `json:"sender"`
	Recipient fbParty     `json:"recipient"`
	Timestamp int64       `json:"timestamp"`
	Message   *fbMessage  `json:"message,omitempty"`
	Postback  *fbPostback `json:"postback,omitempty"`
}

type fbParty struct {
	ID string `json:"id"`
}

type fbMessage struct {
	MID         string         `json:"mid"`
	Text        string         `json:"text"`
	QuickReply  *fbQuickReply  `json:"quick_reply,omitempty"`
	Attachments []fbAttachment `json:"attachments,omitempty"`
}

type fbQuickReply struct {
	Payload string `json:"payload"`
}

type fbAttachment struct {
	Type    string              `json:"type"`
	Payload fbAttachmentPayload `json:"payload"`
}

type fbAttachmentPayload struct {
	URL string `json:"url"`
}

type fbPostback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}
