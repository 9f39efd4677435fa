package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

// CLI implements domain.Channel for interactive terminal chat. Useful for
// exercising the conversation flow without a Messenger or Telegram account.
// Typing "1234567890123" simulates a typed code, "/photo <url>" simulates an
// image attachment.
type CLI struct {
	bus    domain.MessageBus
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &CLI{
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the interactive REPL and blocks until context is cancelled.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	bus.OnOutbound("cli", func(msg domain.OutgoingMessage) {
		if msg.Action != "" {
			return // sender actions have no terminal rendering
		}
		_, _ = fmt.Fprintln(c.out, "--- Pola ---")
		_, _ = fmt.Fprintln(c.out, msg.Text)
		for _, qr := range msg.QuickReplies {
			_, _ = fmt.Fprintf(c.out, "  [%s -> %s]\n", qr.Title, qr.Payload)
		}
		_, _ = fmt.Fprintln(c.out, "------------")
		_, _ = fmt.Fprint(c.out, "You> ")
	})

	_, _ = fmt.Fprintln(c.out, "Pola CLI. Type a message, an EAN code, or /photo <url>. Type /quit to exit.")
	_, _ = fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		ev := domain.InboundEvent{
			Channel:   "cli",
			SenderID:  "local",
			Type:      domain.EventText,
			Text:      line,
			Timestamp: time.Now(),
		}
		if url, ok := strings.CutPrefix(line, "/photo "); ok {
			ev.Type = domain.EventAttachment
			ev.Text = ""
			ev.Attachments = []domain.RawAttachment{{Type: "image", URL: strings.TrimSpace(url)}}
		}
		c.bus.Publish(ev)
	}
}

// Stop is a no-op for CLI (we exit when Start returns).
func (c *CLI) Stop() error { return nil }
