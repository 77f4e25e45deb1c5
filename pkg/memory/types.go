package memory

import "time"

// Memory is the canonical append-only record of one inbound or outbound
// message. Never mutated after creation; corrections are new Memories
// pointing at the original via Content.InReplyTo.
type Memory struct {
	ID        string
	AgentID   string
	SenderID  string
	RoomID    string
	Content   Content
	CreatedAt time.Time
	Embedding []float32
}

// Content is the message payload carried by a Memory.
type Content struct {
	Text      string            `json:"text"`
	Source    string            `json:"source"`
	InReplyTo string            `json:"in_reply_to,omitempty"`
	Action    string            `json:"action,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Room groups Memories for one external conversation. Created lazily on
// first reference to a conversation id.
type Room struct {
	ID        string
	Source    string
	ChatID    string
	CreatedAt time.Time
}

// Entity is a participant known to the system, human or agent. Created and
// updated lazily on first observed activity.
type Entity struct {
	ID          string
	Source      string
	ExternalID  string
	DisplayName string
	IsAgent     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
