package bus

import "time"

// InboundMessage is one platform message on its way into the agent loop.
// MessageID and ReplyToID are platform-native ids; stable storage ids are
// derived from them later in the pipeline.
type InboundMessage struct {
	Channel    string
	SenderID   string
	SenderName string
	ChatID     string
	MessageID  string
	Content    string
	ReplyToID  string
	Metadata   map[string]string
	ReceivedAt time.Time
}

// DeliveryResult reports one platform-specific message part that was sent.
// Long replies can split into several parts; each gets its own result.
type DeliveryResult struct {
	MessageID string
	ChatID    string
}
