package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

const telegramMaxMsgLen = 4000

// Telegram implements domain.Channel over the Telegram Bot API with long
// polling. Quick replies are rendered as inline keyboards; pressing a button
// comes back as a quick-reply event carrying the button payload.
type Telegram struct {
	token string

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

type TelegramConfig struct {
	Token  string
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		token:  cfg.Token,
		logger: cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound("telegram", func(msg domain.OutgoingMessage) {
		chatID, err := strconv.ParseInt(msg.RecipientID, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat ID for telegram outbound", "chatID", msg.RecipientID, "err", err)
			return
		}
		if msg.Action != "" {
			// Telegram has no mark_seen; typing is the closest signal.
			typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
			_, _ = t.bot.Send(typing)
			return
		}
		t.sendMessage(chatID, msg.Text, msg.QuickReplies)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled.
func (t *Telegram) Stop() error {
	return nil
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		t.handleCallback(update.CallbackQuery)
		return
	}

	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}
	msg := update.Message

	ev := domain.InboundEvent{
		Channel:   "telegram",
		SenderID:  strconv.FormatInt(msg.Chat.ID, 10),
		Timestamp: time.Unix(int64(msg.Date), 0),
	}

	switch {
	case len(msg.Photo) > 0:
		// Telegram sends several resolutions; the last is the largest.
		largest := msg.Photo[len(msg.Photo)-1]
		url, err := t.bot.GetFileDirectURL(largest.FileID)
		if err != nil {
			t.logger.Error("telegram photo URL resolution failed", "err", err)
			return
		}
		ev.Type = domain.EventAttachment
		ev.Attachments = []domain.RawAttachment{{Type: "image", URL: url}}
	case strings.TrimSpace(msg.Text) != "":
		ev.Type = domain.EventText
		ev.Text = msg.Text
	default:
		return
	}

	t.logger.Info("telegram event received",
		"chat_id", msg.Chat.ID, "type", ev.Type)

	t.bus.Publish(ev)
}

// handleCallback turns an inline-keyboard press into a quick-reply event.
func (t *Telegram) handleCallback(cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	chatID := cq.Message.Chat.ID

	callback := tgbotapi.NewCallback(cq.ID, "")
	_, _ = t.bot.Request(callback)

	t.bus.Publish(domain.InboundEvent{
		Channel:   "telegram",
		SenderID:  strconv.FormatInt(chatID, 10),
		Type:      domain.EventQuickReply,
		Payload:   cq.Data,
		Timestamp: time.Now(),
	})
}

func (t *Telegram) sendMessage(chatID int64, text string, quickReplies []domain.QuickReply) {
	// Telegram has a 4096 char limit per message.
	for len(text) > telegramMaxMsgLen {
		cutAt := strings.LastIndex(text[:telegramMaxMsgLen], "\n")
		if cutAt < telegramMaxMsgLen/2 {
			cutAt = telegramMaxMsgLen
		}
		t.sendChunk(chatID, text[:cutAt], nil)
		text = text[cutAt:]
	}
	t.sendChunk(chatID, text, quickReplies)
}

func (t *Telegram) sendChunk(chatID int64, text string, quickReplies []domain.QuickReply) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(quickReplies) > 0 {
		var row []tgbotapi.InlineKeyboardButton
		for _, qr := range quickReplies {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(qr.Title, qr.Payload))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(row...))
	}
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("telegram send failed", "err", err, "chat", chatID)
	}
}
