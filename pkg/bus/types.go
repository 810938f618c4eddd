package bus

// InboundMessage is one user event delivered by a channel.
type InboundMessage struct {
	Channel    string
	SenderID   string
	ChatID     string
	Content    string
	SessionKey string
	// Metadata carries channel specifics, e.g. callback="1" for button presses.
	Metadata map[string]string
}

// IsCallback reports whether this message came from an inline button press
// rather than typed text.
func (m InboundMessage) IsCallback() bool {
	return m.Metadata["callback"] == "1"
}

// OutboundMessage is one message to deliver to a chat. Buttons, when present,
// are rendered as an inline keyboard attached to this message.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	Buttons []string
}
