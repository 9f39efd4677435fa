package domain

import "context"

// Channel is the interface for user-facing transports (Messenger, Telegram,
// CLI). A channel decodes platform events into InboundEvents, publishes them
// on the bus, and delivers OutgoingMessages routed back to it.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
