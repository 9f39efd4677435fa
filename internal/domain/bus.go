package domain

// MessageBus routes events between channel adapters and the conversation
// engine.
type MessageBus interface {
	Publish(ev InboundEvent)
	Subscribe() <-chan InboundEvent
	SendOutbound(msg OutgoingMessage)
	OnOutbound(channelName string, handler func(OutgoingMessage))
	Close()
}
