package domain

import "time"

// EventType classifies a raw platform event as produced by a channel adapter.
type EventType string

const (
	EventText       EventType = "text"
	EventQuickReply EventType = "quick_reply"
	EventAttachment EventType = "attachment"
	EventPostback   EventType = "postback"
)

// AttachmentType classifies a validated attachment reference.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
)

// Attachment is a validated reference to user-supplied media, fetched lazily.
type Attachment struct {
	Type AttachmentType `json:"type"`
	URL  string         `json:"url"`
}

// RawAttachment is an unvalidated attachment reference as received from the
// platform. The normalizer turns it into an Attachment or drops it.
type RawAttachment struct {
	Type string
	URL  string
}

// InboundEvent is one platform event after channel-level decoding but before
// normalization. Channels publish these on the message bus.
type InboundEvent struct {
	Channel     string
	SenderID    string
	Type        EventType
	Text        string
	Payload     string
	Attachments []RawAttachment
	Timestamp   time.Time
}

// IncomingMessage is the canonical engine input for one turn.
// Immutable once constructed.
type IncomingMessage struct {
	Text        string
	SenderID    string
	Channel     string
	Payload     string
	Attachments []Attachment
}

// HasAttachmentType reports whether the message carries at least one
// attachment of the given type.
func (m IncomingMessage) HasAttachmentType(t AttachmentType) bool {
	for _, a := range m.Attachments {
		if a.Type == t {
			return true
		}
	}
	return false
}

// QuickReply is one tappable reply option attached to an outgoing message.
type QuickReply struct {
	Title   string
	Payload string
}

// SenderAction is a non-message signal delivered through a channel, such as
// the "seen" indicator. Delivery is best effort.
type SenderAction string

const (
	ActionMarkSeen SenderAction = "mark_seen"
)

// OutgoingMessage is one reply produced by the engine. Sending is delegated
// to the channel adapter; the struct itself is side-effect free.
// When Action is set, Text and QuickReplies are empty.
type OutgoingMessage struct {
	Channel      string
	RecipientID  string
	Text         string
	QuickReplies []QuickReply
	Action       SenderAction
}
