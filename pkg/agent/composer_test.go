package agent

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/identity"
	"github.com/dotsetgreg/relay/pkg/memory"
)

func TestComposeAttributesSpeakersBySenderID(t *testing.T) {
	store, err := memory.NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	agentID := identity.ForEntity("agent", "relay")
	roomID := identity.ForRoom("testchan", "chat-1")
	now := time.Now()

	// The agent line deliberately carries no action tag; attribution must
	// come from the sender id alone.
	history := []*memory.Memory{
		{
			ID:        identity.ForMessage("testchan", "m-1"),
			SenderID:  identity.ForEntity("testchan", "user-1"),
			RoomID:    roomID,
			Content:   memory.Content{Text: "what time is it"},
			CreatedAt: now.Add(-2 * time.Second),
		},
		{
			ID:        identity.ForMessage("testchan", "m-2"),
			AgentID:   agentID,
			SenderID:  agentID,
			RoomID:    roomID,
			Content:   memory.Content{Text: "half past nine"},
			CreatedAt: now.Add(-time.Second),
		},
	}
	for _, m := range history {
		if err := store.CreateMemory(ctx, m); err != nil {
			t.Fatalf("CreateMemory: %v", err)
		}
	}

	msg := bus.InboundMessage{
		Channel:    "testchan",
		SenderID:   "user-1",
		SenderName: "Ada",
		ChatID:     "chat-1",
		MessageID:  "m-3",
		Content:    "and now?",
		ReceivedAt: now,
	}
	inbound := memory.FromInbound(msg, agentID)

	composer := NewComposer(store, agentID, "relay", 20)
	prompt := composer.Compose(ctx, msg, inbound, nil, "REPLY: send a reply")

	if !strings.Contains(prompt, "[participant] what time is it") {
		t.Fatalf("user line not attributed to participant:\n%s", prompt)
	}
	if !strings.Contains(prompt, "[relay] half past nine") {
		t.Fatalf("agent line not attributed to the agent:\n%s", prompt)
	}
}
