package orchestrator

// Notification is an outbound message the orchestrator wants sent. Command
// handlers and phase processing return intents rather than sending directly
// so the transition logic stays testable without a live chat connection.
type Notification struct {
	// ChannelID is set for public channel replies.
	ChannelID string
	// Identity is set for direct messages; empty when ChannelID is used.
	Identity string
	Text     string
	// SVG carries a rendered map to attach, when available.
	SVG string
}

func reply(channelID, text string) Notification {
	return Notification{ChannelID: channelID, Text: text}
}

func dm(identity, text string) Notification {
	return Notification{Identity: identity, Text: text}
}
