package memory

import (
	"time"

	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/identity"
)

// FromInbound maps a platform message onto its canonical Memory. All ids are
// derived, so the same platform message always maps onto the same record.
func FromInbound(msg bus.InboundMessage, agentID string) *Memory {
	content := Content{
		Text:     msg.Content,
		Source:   msg.Channel,
		Metadata: msg.Metadata,
	}
	if msg.ReplyToID != "" {
		content.InReplyTo = identity.ForMessage(msg.Channel, msg.ReplyToID)
	}
	createdAt := msg.ReceivedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Memory{
		ID:        identity.ForMessage(msg.Channel, msg.MessageID),
		AgentID:   agentID,
		SenderID:  identity.ForEntity(msg.Channel, msg.SenderID),
		RoomID:    identity.ForRoom(msg.Channel, msg.ChatID),
		Content:   content,
		CreatedAt: createdAt,
	}
}
